package middleware

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/kendall-kelly/service-spot-api/logger"
	"github.com/kendall-kelly/service-spot-api/models"
	"github.com/kendall-kelly/service-spot-api/services"
)

const (
	actorKey     = "actor"
	principalKey = "principal"
	tokenKey     = "session_token"
)

var errNoSession = &services.ServiceError{Kind: services.KindUnauthenticated, Message: "authentication required"}

// SessionResolver turns an opaque session token into the acting principal
type SessionResolver interface {
	Resolve(ctx context.Context, token string) (*services.Actor, *models.Principal, error)
}

// BearerToken extracts the token from an "Authorization: Bearer <token>" header
func BearerToken(header string) string {
	scheme, token, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// RequireSession resolves the bearer token on every request. The request is
// rejected unless the token names a live session of an active principal.
func RequireSession(resolver SessionResolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := BearerToken(c.GetHeader("Authorization"))

		actor, principal, err := resolver.Resolve(c.Request.Context(), token)
		if err != nil {
			logger.DebugContext(c.Request.Context(), "Session rejected", "error", err)
			AbortWithError(c, err)
			return
		}

		c.Set(actorKey, actor)
		c.Set(principalKey, principal)
		c.Set(tokenKey, token)
		c.Request = c.Request.WithContext(logger.WithPrincipalID(c.Request.Context(), actor.ID))

		c.Next()
	}
}

// RequireRole rejects actors whose role is not one of roles. It must run
// after RequireSession.
func RequireRole(roles ...models.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, err := GetActor(c)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		if err := services.Authorize(actor, services.AnyRole(roles...)); err != nil {
			AbortWithError(c, err)
			return
		}
		c.Next()
	}
}

// GetActor extracts the resolved actor from the Gin context
func GetActor(c *gin.Context) (*services.Actor, error) {
	value, exists := c.Get(actorKey)
	if !exists {
		return nil, errNoSession
	}

	actor, ok := value.(*services.Actor)
	if !ok || actor == nil {
		return nil, errNoSession
	}

	return actor, nil
}

// GetPrincipal extracts the principal loaded while resolving the session
func GetPrincipal(c *gin.Context) (*models.Principal, error) {
	value, exists := c.Get(principalKey)
	if !exists {
		return nil, errNoSession
	}

	principal, ok := value.(*models.Principal)
	if !ok || principal == nil {
		return nil, errNoSession
	}

	return principal, nil
}

// GetSessionToken returns the raw token of the current request
func GetSessionToken(c *gin.Context) string {
	return c.GetString(tokenKey)
}

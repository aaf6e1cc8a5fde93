package controllers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kendall-kelly/service-spot-api/middleware"
	"github.com/kendall-kelly/service-spot-api/models"
	"github.com/kendall-kelly/service-spot-api/services"
)

// ConfirmDeleteRequest represents the second phase of a permanent delete
type ConfirmDeleteRequest struct {
	ConfirmationToken string `json:"confirmation_token"`
	Confirm           bool   `json:"confirm"`
}

// ListPrincipals handles GET /api/v1/admin/principals?role=&limit=&offset=
func (a *API) ListPrincipals(c *gin.Context) {
	act, ok := actor(c)
	if !ok {
		return
	}
	limit, ok := queryInt(c, "limit")
	if !ok {
		return
	}
	offset, ok := queryInt(c, "offset")
	if !ok {
		return
	}

	var role models.Role
	if raw := c.Query("role"); raw != "" {
		parsed, err := models.ParseRole(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, middleware.ErrorBody("VALIDATION_ERROR", err.Error()))
			return
		}
		role = parsed
	}

	principals, err := a.moderation.ListPrincipals(c.Request.Context(), act, services.PrincipalFilter{
		Role:   role,
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		middleware.RespondError(c, err)
		return
	}

	respond(c, http.StatusOK, principals)
}

// ListPendingProviders handles GET /api/v1/admin/principals/pending
func (a *API) ListPendingProviders(c *gin.Context) {
	act, ok := actor(c)
	if !ok {
		return
	}

	principals, err := a.moderation.PendingVerifications(c.Request.Context(), act)
	if err != nil {
		middleware.RespondError(c, err)
		return
	}

	respond(c, http.StatusOK, principals)
}

type moderationAction func(*services.ModerationService, context.Context, *services.Actor, uint) (*models.Principal, error)

// moderate adapts a single-principal moderation operation to a handler
func (a *API) moderate(action moderationAction) gin.HandlerFunc {
	return func(c *gin.Context) {
		act, ok := actor(c)
		if !ok {
			return
		}
		id, ok := pathID(c, "id")
		if !ok {
			return
		}

		principal, err := action(a.moderation, c.Request.Context(), act, id)
		if err != nil {
			middleware.RespondError(c, err)
			return
		}

		respond(c, http.StatusOK, principal)
	}
}

// VerifyPrincipal handles POST /api/v1/admin/principals/:id/verify
func (a *API) VerifyPrincipal() gin.HandlerFunc {
	return a.moderate((*services.ModerationService).Verify)
}

// SuspendPrincipal handles POST /api/v1/admin/principals/:id/suspend
func (a *API) SuspendPrincipal() gin.HandlerFunc {
	return a.moderate((*services.ModerationService).Suspend)
}

// ReactivatePrincipal handles POST /api/v1/admin/principals/:id/reactivate
func (a *API) ReactivatePrincipal() gin.HandlerFunc {
	return a.moderate((*services.ModerationService).Reactivate)
}

// PreviewDeletePrincipal handles POST /api/v1/admin/principals/:id/delete-preview.
// The response carries the single-use confirmation token.
func (a *API) PreviewDeletePrincipal(c *gin.Context) {
	act, ok := actor(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	preview, err := a.moderation.PreviewDelete(c.Request.Context(), act, id)
	if err != nil {
		middleware.RespondError(c, err)
		return
	}

	respond(c, http.StatusOK, preview)
}

// DeletePrincipal handles POST /api/v1/admin/principals/:id/delete
func (a *API) DeletePrincipal(c *gin.Context) {
	act, ok := actor(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req ConfirmDeleteRequest
	if !bindJSON(c, &req) {
		return
	}

	removed, err := a.moderation.ConfirmDelete(c.Request.Context(), act, id, req.ConfirmationToken, req.Confirm)
	if err != nil {
		middleware.RespondError(c, err)
		return
	}

	respond(c, http.StatusOK, gin.H{
		"principal_id": id,
		"removed":      removed,
	})
}

// GetPlatformStatistics handles GET /api/v1/admin/statistics
func (a *API) GetPlatformStatistics(c *gin.Context) {
	act, ok := actor(c)
	if !ok {
		return
	}

	stats, err := a.statistics.PlatformStatistics(c.Request.Context(), act)
	if err != nil {
		middleware.RespondError(c, err)
		return
	}

	respond(c, http.StatusOK, stats)
}

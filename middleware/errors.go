package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kendall-kelly/service-spot-api/logger"
	"github.com/kendall-kelly/service-spot-api/services"
)

var statusByKind = map[services.ErrorKind]int{
	services.KindValidation:         http.StatusBadRequest,
	services.KindNotFound:           http.StatusNotFound,
	services.KindForbidden:          http.StatusForbidden,
	services.KindAccountSuspended:   http.StatusForbidden,
	services.KindUnauthenticated:    http.StatusUnauthorized,
	services.KindInvalidCredentials: http.StatusUnauthorized,
	services.KindInvalidTransition:  http.StatusConflict,
	services.KindConflict:           http.StatusConflict,
	services.KindRateLimited:        http.StatusTooManyRequests,
	services.KindInternal:           http.StatusInternalServerError,
}

// StatusFor maps a service error to its HTTP status code
func StatusFor(err error) int {
	if status, ok := statusByKind[services.KindOf(err)]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// ErrorBody builds the standard failure envelope
func ErrorBody(code, message string) gin.H {
	return gin.H{
		"success": false,
		"error": gin.H{
			"code":    code,
			"message": message,
		},
	}
}

// RespondError writes err using the standard failure envelope. Internal
// details are logged and never sent to the client.
func RespondError(c *gin.Context, err error) {
	status := StatusFor(err)
	kind := services.KindOf(err)
	message := services.MessageOf(err)

	if status == http.StatusInternalServerError {
		logger.ErrorContext(c.Request.Context(), "Request failed", "error", err, "path", c.FullPath())
		kind = services.KindInternal
		message = "An internal error occurred"
	}

	c.JSON(status, ErrorBody(string(kind), message))
}

// AbortWithError responds with err and stops the handler chain
func AbortWithError(c *gin.Context, err error) {
	RespondError(c, err)
	c.Abort()
}

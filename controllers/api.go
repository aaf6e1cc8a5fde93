package controllers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/kendall-kelly/service-spot-api/middleware"
	"github.com/kendall-kelly/service-spot-api/services"
)

// API holds the services behind the HTTP handlers
type API struct {
	identity   *services.IdentityService
	bookings   *services.BookingService
	reviews    *services.ReviewService
	offerings  *services.OfferingService
	moderation *services.ModerationService
	statistics *services.StatisticsService
}

// Services groups the dependencies needed to build an API
type Services struct {
	Identity   *services.IdentityService
	Bookings   *services.BookingService
	Reviews    *services.ReviewService
	Offerings  *services.OfferingService
	Moderation *services.ModerationService
	Statistics *services.StatisticsService
}

// New creates the API handlers
func New(s Services) *API {
	return &API{
		identity:   s.Identity,
		bookings:   s.Bookings,
		reviews:    s.Reviews,
		offerings:  s.Offerings,
		moderation: s.Moderation,
		statistics: s.Statistics,
	}
}

func respond(c *gin.Context, status int, data any) {
	c.JSON(status, gin.H{
		"success": true,
		"data":    data,
	})
}

// bindJSON decodes the request body, answering 400 on malformed input
func bindJSON(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "VALIDATION_ERROR",
				"message": "Invalid request data",
				"details": err.Error(),
			},
		})
		return false
	}
	return true
}

// pathID parses a positive numeric path parameter
func pathID(c *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, middleware.ErrorBody("INVALID_ID", "Invalid "+name))
		return 0, false
	}
	return uint(id), true
}

// queryInt reads an optional integer query parameter
func queryInt(c *gin.Context, name string) (int, bool) {
	raw := c.Query(name)
	if raw == "" {
		return 0, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, middleware.ErrorBody("VALIDATION_ERROR", name+" must be an integer"))
		return 0, false
	}
	return v, true
}

// actor returns the resolved actor or writes the error response
func actor(c *gin.Context) (*services.Actor, bool) {
	a, err := middleware.GetActor(c)
	if err != nil {
		middleware.RespondError(c, err)
		return nil, false
	}
	return a, true
}

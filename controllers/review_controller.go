package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kendall-kelly/service-spot-api/middleware"
	"github.com/kendall-kelly/service-spot-api/services"
)

// CreateReviewRequest represents the request body for reviewing a booking
type CreateReviewRequest struct {
	BookingID uint   `json:"booking_id" binding:"required"`
	Rating    int    `json:"rating"`
	Comment   string `json:"comment"`
}

// CreateReview handles POST /api/v1/reviews - customers review completed bookings
func (a *API) CreateReview(c *gin.Context) {
	act, ok := actor(c)
	if !ok {
		return
	}

	var req CreateReviewRequest
	if !bindJSON(c, &req) {
		return
	}

	review, err := a.reviews.Create(c.Request.Context(), act, services.CreateReviewInput{
		BookingID: req.BookingID,
		Rating:    req.Rating,
		Comment:   req.Comment,
	})
	if err != nil {
		middleware.RespondError(c, err)
		return
	}

	respond(c, http.StatusCreated, review)
}

// ListProviderReviews handles GET /api/v1/providers/:id/reviews
func (a *API) ListProviderReviews(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	reviews, err := a.reviews.ListForProvider(c.Request.Context(), id)
	if err != nil {
		middleware.RespondError(c, err)
		return
	}
	stats, err := a.reviews.ProviderStatistics(c.Request.Context(), id)
	if err != nil {
		middleware.RespondError(c, err)
		return
	}

	respond(c, http.StatusOK, gin.H{
		"reviews":    reviews,
		"statistics": stats,
	})
}

// GetProviderRating handles GET /api/v1/providers/:id/rating - the exact mean
// of the provider's ratings, 0 when there are none
func (a *API) GetProviderRating(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	average, err := a.reviews.AverageRating(c.Request.Context(), id)
	if err != nil {
		middleware.RespondError(c, err)
		return
	}

	respond(c, http.StatusOK, gin.H{
		"provider_id":    id,
		"average_rating": average,
	})
}

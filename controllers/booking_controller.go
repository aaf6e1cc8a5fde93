package controllers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kendall-kelly/service-spot-api/middleware"
	"github.com/kendall-kelly/service-spot-api/models"
	"github.com/kendall-kelly/service-spot-api/services"
)

// CreateBookingRequest represents the request body for requesting a booking
type CreateBookingRequest struct {
	ProviderID        uint      `json:"provider_id" binding:"required"`
	ServiceOfferingID uint      `json:"service_offering_id" binding:"required"`
	RequestedSlot     time.Time `json:"requested_slot"`
	Notes             string    `json:"notes"`
}

// TransitionRequest represents the request body for a lifecycle event
type TransitionRequest struct {
	Event string `json:"event" binding:"required"`
}

// CreateBooking handles POST /api/v1/bookings - the caller books as the customer
func (a *API) CreateBooking(c *gin.Context) {
	act, ok := actor(c)
	if !ok {
		return
	}

	var req CreateBookingRequest
	if !bindJSON(c, &req) {
		return
	}

	booking, err := a.bookings.Create(c.Request.Context(), act, services.CreateBookingInput{
		CustomerID:        act.ID,
		ProviderID:        req.ProviderID,
		ServiceOfferingID: req.ServiceOfferingID,
		RequestedSlot:     req.RequestedSlot,
		Notes:             req.Notes,
	})
	if err != nil {
		middleware.RespondError(c, err)
		return
	}

	respond(c, http.StatusCreated, booking)
}

// ListBookings handles GET /api/v1/bookings - bookings the caller takes part in
// Query parameters: status, limit, offset
func (a *API) ListBookings(c *gin.Context) {
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

	bookings, err := a.bookings.ListForPrincipal(c.Request.Context(), act.ID, act.Role, services.BookingFilter{
		Status: models.BookingStatus(c.Query("status")),
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		middleware.RespondError(c, err)
		return
	}

	respond(c, http.StatusOK, bookings)
}

// GetBooking handles GET /api/v1/bookings/:id
func (a *API) GetBooking(c *gin.Context) {
	act, ok := actor(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	booking, err := a.bookings.Get(c.Request.Context(), act, id)
	if err != nil {
		middleware.RespondError(c, err)
		return
	}

	respond(c, http.StatusOK, booking)
}

// TransitionBooking handles POST /api/v1/bookings/:id/transitions and returns
// the stored post-transition booking
func (a *API) TransitionBooking(c *gin.Context) {
	act, ok := actor(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req TransitionRequest
	if !bindJSON(c, &req) {
		return
	}

	booking, err := a.bookings.Transition(c.Request.Context(), act, id, models.BookingEvent(req.Event))
	if err != nil {
		middleware.RespondError(c, err)
		return
	}

	respond(c, http.StatusOK, booking)
}

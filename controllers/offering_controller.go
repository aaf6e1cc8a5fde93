package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kendall-kelly/service-spot-api/middleware"
	"github.com/kendall-kelly/service-spot-api/services"
)

// CreateOfferingRequest represents the request body for publishing an offering
type CreateOfferingRequest struct {
	Title           string  `json:"title"`
	Description     string  `json:"description"`
	BasePrice       float64 `json:"base_price"`
	DurationMinutes int     `json:"duration_minutes"`
}

// CreateOffering handles POST /api/v1/offerings (providers only)
func (a *API) CreateOffering(c *gin.Context) {
	act, ok := actor(c)
	if !ok {
		return
	}

	var req CreateOfferingRequest
	if !bindJSON(c, &req) {
		return
	}

	offering, err := a.offerings.Create(c.Request.Context(), act, services.CreateOfferingInput{
		Title:           req.Title,
		Description:     req.Description,
		BasePrice:       req.BasePrice,
		DurationMinutes: req.DurationMinutes,
	})
	if err != nil {
		middleware.RespondError(c, err)
		return
	}

	respond(c, http.StatusCreated, offering)
}

// GetOffering handles GET /api/v1/offerings/:id
func (a *API) GetOffering(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	offering, err := a.offerings.Get(c.Request.Context(), id)
	if err != nil {
		middleware.RespondError(c, err)
		return
	}

	respond(c, http.StatusOK, offering)
}

// UploadOfferingImage handles POST /api/v1/offerings/:id/image - multipart
// field "image", PNG only
func (a *API) UploadOfferingImage(c *gin.Context) {
	act, ok := actor(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	// A missing file is reported by the upload validation
	fileHeader, _ := c.FormFile("image")

	offering, err := a.offerings.AttachImage(c.Request.Context(), act, id, fileHeader)
	if err != nil {
		middleware.RespondError(c, err)
		return
	}

	respond(c, http.StatusOK, offering)
}

// ListProviderOfferings handles GET /api/v1/providers/:id/offerings
func (a *API) ListProviderOfferings(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	offerings, err := a.offerings.ListByProvider(c.Request.Context(), id)
	if err != nil {
		middleware.RespondError(c, err)
		return
	}

	respond(c, http.StatusOK, offerings)
}

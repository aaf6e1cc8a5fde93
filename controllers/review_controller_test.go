package controllers

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/kendall-kelly/service-spot-api/models"
	"github.com/kendall-kelly/service-spot-api/services"
	"github.com/kendall-kelly/service-spot-api/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateReview(t *testing.T) {
	f := newAPIFixture(t)
	p := newBookingParties(t, f)
	completed := testutil.CreateBooking(t, f.db, p.customer, p.provider, p.offering, models.BookingCompleted)
	confirmed := testutil.CreateBooking(t, f.db, p.customer, p.provider, p.offering, models.BookingConfirmed)

	review := CreateReviewRequest{BookingID: completed.ID, Rating: 4, Comment: "Quick and tidy work"}

	w := f.request(t, http.MethodPost, "/reviews", p.providerToken, review)
	requireError(t, w, http.StatusForbidden, "FORBIDDEN")

	w = f.request(t, http.MethodPost, "/reviews", p.customerToken, CreateReviewRequest{BookingID: confirmed.ID, Rating: 4, Comment: "Quick and tidy work"})
	requireError(t, w, http.StatusForbidden, "FORBIDDEN")

	w = f.request(t, http.MethodPost, "/reviews", p.customerToken, CreateReviewRequest{BookingID: completed.ID, Rating: 6, Comment: "Quick and tidy work"})
	requireError(t, w, http.StatusBadRequest, "VALIDATION_ERROR")

	w = f.request(t, http.MethodPost, "/reviews", p.customerToken, review)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var created models.Review
	decodeData(t, w, &created)
	assert.Equal(t, p.provider.ID, created.ProviderID)

	w = f.request(t, http.MethodPost, "/reviews", p.customerToken, review)
	requireError(t, w, http.StatusConflict, "CONFLICT")

	w = f.request(t, http.MethodPost, "/reviews", p.customerToken, CreateReviewRequest{BookingID: 777, Rating: 4, Comment: "Quick and tidy work"})
	requireError(t, w, http.StatusNotFound, "NOT_FOUND")
}

func TestProviderReviewsAndRating(t *testing.T) {
	f := newAPIFixture(t)
	p := newBookingParties(t, f)

	ratingPath := fmt.Sprintf("/providers/%d/rating", p.provider.ID)

	var rating struct {
		ProviderID    uint    `json:"provider_id"`
		AverageRating float64 `json:"average_rating"`
	}
	decodeData(t, f.request(t, http.MethodGet, ratingPath, "", nil), &rating)
	assert.Equal(t, 0.0, rating.AverageRating)

	for _, stars := range []int{5, 4, 4} {
		b := testutil.CreateBooking(t, f.db, p.customer, p.provider, p.offering, models.BookingCompleted)
		testutil.CreateReview(t, f.db, b, stars)
	}

	decodeData(t, f.request(t, http.MethodGet, ratingPath, "", nil), &rating)
	assert.Equal(t, p.provider.ID, rating.ProviderID)
	assert.InDelta(t, 13.0/3.0, rating.AverageRating, 1e-9)

	var listing struct {
		Reviews    []models.Review             `json:"reviews"`
		Statistics services.ProviderStatistics `json:"statistics"`
	}
	decodeData(t, f.request(t, http.MethodGet, fmt.Sprintf("/providers/%d/reviews", p.provider.ID), "", nil), &listing)
	assert.Len(t, listing.Reviews, 3)
	assert.Equal(t, int64(3), listing.Statistics.TotalReviews)
	assert.Equal(t, 4.3, listing.Statistics.AverageRating)
	assert.Equal(t, int64(3), listing.Statistics.PositiveCount)
	assert.Equal(t, int64(2), listing.Statistics.Distribution[4])
}

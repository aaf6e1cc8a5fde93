package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCountersIncrement(t *testing.T) {
	before := testutil.ToFloat64(BookingTransitions.WithLabelValues("accept", OutcomeSuccess))
	BookingTransitions.WithLabelValues("accept", OutcomeSuccess).Inc()
	assert.Equal(t, before+1, testutil.ToFloat64(BookingTransitions.WithLabelValues("accept", OutcomeSuccess)))
}

func TestHandlerExposesCollectors(t *testing.T) {
	ReviewsCreated.Inc()

	w := httptest.NewRecorder()
	Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "service_spot_reviews_created_total")
}

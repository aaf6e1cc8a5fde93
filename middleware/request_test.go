package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/kendall-kelly/service-spot-api/logger"
	"github.com/kendall-kelly/service-spot-api/metrics"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRequestIDGeneratesAndPropagates(t *testing.T) {
	var seen any
	router := gin.New()
	router.Use(RequestID())
	router.GET("/ping", func(c *gin.Context) {
		seen = c.Request.Context().Value(logger.RequestIDKey)
		c.Status(http.StatusNoContent)
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))

	id := w.Header().Get(RequestIDHeader)
	assert.Len(t, id, 36)
	assert.Equal(t, id, seen)
}

func TestRequestIDReusesCallerValue(t *testing.T) {
	router := gin.New()
	router.Use(RequestID())
	router.GET("/ping", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set(RequestIDHeader, "req-42")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, "req-42", w.Header().Get(RequestIDHeader))
}

func TestRequestLoggerRecordsMetrics(t *testing.T) {
	router := gin.New()
	router.Use(RequestLogger())
	router.GET("/things/:id", func(c *gin.Context) { c.Status(http.StatusTeapot) })

	counter := metrics.HTTPRequests.WithLabelValues(http.MethodGet, "/things/:id", "418")
	before := promtest.ToFloat64(counter)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/things/9", nil))

	assert.Equal(t, http.StatusTeapot, w.Code)
	assert.Equal(t, before+1, promtest.ToFloat64(counter))
}

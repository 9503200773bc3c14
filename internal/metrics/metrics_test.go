package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics(t *testing.T) {
	t.Run("Should count pipeline outcomes", func(t *testing.T) {
		m := New()
		m.ObserveIngest(StatusSucceeded, 4, 120*time.Millisecond)
		m.ObserveIngest(StatusFailed, 0, time.Millisecond)
		m.ObserveQuery(StatusSucceeded, 3, 300*time.Millisecond)

		assert.InDelta(t, 1, testutil.ToFloat64(m.ingestRuns.WithLabelValues(StatusSucceeded)), 0)
		assert.InDelta(t, 1, testutil.ToFloat64(m.ingestRuns.WithLabelValues(StatusFailed)), 0)
		assert.InDelta(t, 4, testutil.ToFloat64(m.ingestChunks), 0)
		assert.InDelta(t, 1, testutil.ToFloat64(m.queryRuns.WithLabelValues(StatusSucceeded)), 0)
	})

	t.Run("Should be safe to use when nil", func(t *testing.T) {
		var m *Metrics
		assert.NotPanics(t, func() {
			m.ObserveIngest(StatusSucceeded, 1, time.Second)
			m.ObserveQuery(StatusFailed, 0, time.Second)
		})
		rec := httptest.NewRecorder()
		m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})

	t.Run("Should expose collectors and label requests by route", func(t *testing.T) {
		gin.SetMode(gin.TestMode)
		m := New()
		r := gin.New()
		r.Use(m.GinMiddleware())
		r.GET("/items/:id", func(c *gin.Context) { c.Status(http.StatusNoContent) })
		r.GET("/metrics", gin.WrapH(m.Handler()))

		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/items/42", nil))
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

		require.Equal(t, http.StatusOK, rec.Code)
		body := rec.Body.String()
		assert.Contains(t, body, `docqa_http_requests_total{code="204",method="GET",route="/items/:id"} 1`)
		assert.Contains(t, body, "go_goroutines")
	})
}

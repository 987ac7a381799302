package metrics

import (
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// findMetric gathers the default registry and returns the metric family by name.
func findMetric(t *testing.T, name string) *dto.MetricFamily {
	t.Helper()
	families, err := prometheus.DefaultGatherer.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() == name {
			return mf
		}
	}
	return nil
}

func TestGinMiddleware_CountsRequests(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(GinMiddleware())
	r.GET("/api/queue", func(c *gin.Context) { c.Status(200) })

	req := httptest.NewRequest("GET", "/api/queue", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	mf := findMetric(t, "duetrack_http_requests_total")
	require.NotNil(t, mf)

	var found bool
	for _, m := range mf.GetMetric() {
		labels := map[string]string{}
		for _, lp := range m.GetLabel() {
			labels[lp.GetName()] = lp.GetValue()
		}
		if labels["path"] == "/api/queue" && labels["method"] == "GET" && labels["status"] == "200" {
			found = true
			assert.GreaterOrEqual(t, m.GetCounter().GetValue(), float64(1))
		}
	}
	assert.True(t, found, "expected a counter sample for GET /api/queue 200")
}

func TestDrainOutcomesCounter(t *testing.T) {
	DrainOutcomesTotal.WithLabelValues("accepted").Inc()
	DrainOutcomesTotal.WithLabelValues("accepted").Inc()

	mf := findMetric(t, "duetrack_drain_outcomes_total")
	require.NotNil(t, mf)

	var value float64
	for _, m := range mf.GetMetric() {
		for _, lp := range m.GetLabel() {
			if lp.GetName() == "outcome" && lp.GetValue() == "accepted" {
				value = m.GetCounter().GetValue()
			}
		}
	}
	assert.GreaterOrEqual(t, value, float64(2))
}

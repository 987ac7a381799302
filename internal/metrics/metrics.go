// Package metrics provides Prometheus instrumentation for the dues tracker.
package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "duetrack",
			Name:      "http_requests_total",
			Help:      "Total HTTP requests by method, path pattern, and status code.",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration observes request latency by method and path.
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "duetrack",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// QueueDepth tracks the number of submissions waiting in the offline queue.
	QueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "duetrack",
			Name:      "offline_queue_depth",
			Help:      "Number of pending submissions in the offline queue.",
		},
	)

	// DrainOutcomesTotal counts drain results per submission by outcome.
	DrainOutcomesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "duetrack",
			Name:      "drain_outcomes_total",
			Help:      "Drain outcomes per submission: accepted, retryable, terminal, attention.",
		},
		[]string{"outcome"},
	)

	// NotificationsTotal counts notification dispatch results.
	NotificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "duetrack",
			Name:      "notifications_total",
			Help:      "Notification dispatch results by kind and result (created, deduped, failed).",
		},
		[]string{"kind", "result"},
	)

	// ConnectivityTransitions counts committed online/offline transitions.
	ConnectivityTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "duetrack",
			Name:      "connectivity_transitions_total",
			Help:      "Committed connectivity transitions by from-state and to-state.",
		},
		[]string{"from", "to"},
	)

	// CacheReadsTotal counts cache reads by result (fresh, stale, miss).
	CacheReadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "duetrack",
			Name:      "cache_reads_total",
			Help:      "Snapshot cache reads by result.",
		},
		[]string{"result"},
	)

	// ActiveWebSocketClients tracks connected WebSocket clients.
	ActiveWebSocketClients = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "duetrack",
			Name:      "active_websocket_clients",
			Help:      "Number of currently connected WebSocket clients.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		QueueDepth,
		DrainOutcomesTotal,
		NotificationsTotal,
		ConnectivityTransitions,
		CacheReadsTotal,
		ActiveWebSocketClients,
	)
}

// GinMiddleware records request counts and latency for every route.
func GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		status := strconv.Itoa(c.Writer.Status())

		HTTPRequestsTotal.WithLabelValues(c.Request.Method, path, status).Inc()
		HTTPRequestDuration.WithLabelValues(c.Request.Method, path).Observe(time.Since(start).Seconds())
	}
}

// Handler returns the /metrics HTTP handler.
func Handler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

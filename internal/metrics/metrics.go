// Package metrics holds the Prometheus collectors of the service.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	CacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tradehub_cache_lookups_total",
			Help: "Query cache lookups by key and result (hit, miss)",
		},
		[]string{"key", "result"},
	)

	CacheInvalidations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tradehub_cache_invalidations_total",
			Help: "Explicit query cache invalidations by key",
		},
		[]string{"key"},
	)

	DBOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tradehub_db_operation_duration_seconds",
			Help:    "Duration of database operations in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"table", "operation"},
	)

	ValidationFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tradehub_validation_failures_total",
			Help: "Create and update requests rejected by form validation",
		},
		[]string{"table"},
	)

	RealtimeEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tradehub_realtime_events_total",
			Help: "Table change notifications received from the database",
		},
		[]string{"table", "op"},
	)

	WebsocketClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "tradehub_websocket_clients",
			Help: "Connected dashboard websocket clients",
		},
	)

	ActiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "tradehub_active_sessions",
			Help: "Admin sessions currently open",
		},
	)
)

// TrackDBOperation returns a function that records the duration of a database
// operation started at the given time.
func TrackDBOperation(table, op string) func(start time.Time) {
	return func(start time.Time) {
		DBOperationDuration.WithLabelValues(table, op).Observe(time.Since(start).Seconds())
	}
}

// HTTPMetrics records request counts, durations and status categories.
type HTTPMetrics struct {
	requests    *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	statusClass *prometheus.CounterVec
}

func NewHTTPMetrics(reg prometheus.Registerer) *HTTPMetrics {
	m := &HTTPMetrics{
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path", "status"},
		),
		statusClass: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_status_category_total",
				Help: "Total number of responses by status category (2xx, 4xx, 5xx)",
			},
			[]string{"category", "method", "path"},
		),
	}
	reg.MustRegister(m.requests, m.duration, m.statusClass)
	return m
}

// Observe records one finished request. path should be the route pattern,
// not the raw URL, to keep label cardinality bounded.
func (m *HTTPMetrics) Observe(method, path string, status int, elapsed time.Duration) {
	code := strconv.Itoa(status)
	m.requests.WithLabelValues(method, path, code).Inc()
	m.duration.WithLabelValues(method, path, code).Observe(elapsed.Seconds())
	if category := StatusCategory(status); category != "" {
		m.statusClass.WithLabelValues(category, method, path).Inc()
	}
}

func StatusCategory(status int) string {
	switch {
	case status >= 200 && status < 300:
		return "2xx"
	case status >= 400 && status < 500:
		return "4xx"
	case status >= 500 && status < 600:
		return "5xx"
	}
	return ""
}

func Handler() http.Handler {
	return promhttp.Handler()
}

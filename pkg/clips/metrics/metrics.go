package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTP request metrics
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clips_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "clips_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	// Lifecycle metrics
	OperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clips_operations_total",
			Help: "Total number of clip lifecycle operations by outcome",
		},
		[]string{"operation", "outcome"},
	)

	ConflictRetries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clips_conflict_retries_total",
			Help: "Read-modify-write attempts repeated after a version conflict",
		},
		[]string{"operation"},
	)

	BlobDeleteFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "clips_blob_delete_failures_total",
			Help: "Object deletions that failed during clip delete",
		},
	)

	// Reconciliation metrics
	ReconcileActions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clips_reconcile_actions_total",
			Help: "Reconciliation actions by kind and outcome",
		},
		[]string{"action", "dry_run", "outcome"},
	)

	// Event publishing metrics
	EventsPublished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clips_events_published_total",
			Help: "Lifecycle events published by transport and status",
		},
		[]string{"transport", "type", "status"},
	)
)

func init() {
	prometheus.MustRegister(
		RequestsTotal,
		RequestDuration,
		OperationsTotal,
		ConflictRetries,
		BlobDeleteFailures,
		ReconcileActions,
		EventsPublished,
	)
}

// Handler serves the default registry
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordOperation counts one lifecycle operation
func RecordOperation(operation string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	OperationsTotal.WithLabelValues(operation, outcome).Inc()
}

// RecordRequest records request count and latency
func RecordRequest(method, route string, status int, duration time.Duration) {
	RequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	RequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// Middleware records every request under its chi route pattern so ids do
// not explode label cardinality.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		RecordRequest(r.Method, route, status, time.Since(start))
	})
}

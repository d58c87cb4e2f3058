package server

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metric label values shared across registrations.
const (
	// labelHandler is the "handler" label value used to partition metrics by
	// the logical endpoint name rather than the raw URL path.
	labelHandler = "handler"

	outcomeOK       = "ok"
	outcomeInvalid  = "invalid"
	outcomeNotFound = "not_found"
	outcomeTimeout  = "timeout"
	outcomeError    = "error"

	opSummary     = "summary"
	opActions     = "actions"
	opSuggestions = "suggestions"
)

// serverMetrics holds all Prometheus metrics owned by the HTTP server.
// A single instance is created in New and stored on Server so that tests can
// inject a fresh prometheus.Registry without polluting the default one.
type serverMetrics struct {
	// queryRequestsTotal counts completed /api/query requests, partitioned by
	// outcome: "ok", "invalid", "timeout", or "error".
	queryRequestsTotal *prometheus.CounterVec

	// queryDurationSeconds records the wall-clock duration of each /api/query
	// request.
	queryDurationSeconds *prometheus.HistogramVec

	// queriesInFlight is the number of /api/query requests currently running.
	queriesInFlight prometheus.Gauge

	// analysisRequestsTotal counts /api/documents/* operations by operation
	// and outcome.
	analysisRequestsTotal *prometheus.CounterVec

	// throttledTotal counts requests rejected by the per-client throttle.
	throttledTotal *prometheus.CounterVec

	// httpRequestsTotal counts all HTTP requests handled by the mux,
	// partitioned by method, path pattern, and status code.
	httpRequestsTotal *prometheus.CounterVec

	// httpDurationSeconds records the latency of all HTTP requests.
	httpDurationSeconds *prometheus.HistogramVec
}

// newServerMetrics registers all server metrics against reg and returns the
// populated serverMetrics. promauto.With(reg) is used so that each call
// registers into the provided registry rather than the global default.
func newServerMetrics(reg prometheus.Registerer) *serverMetrics {
	factory := promauto.With(reg)

	return &serverMetrics{
		queryRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "specqa",
			Subsystem: "query",
			Name:      "requests_total",
			Help:      "Total number of /api/query requests completed, partitioned by outcome.",
		}, []string{"outcome"}),

		queryDurationSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "specqa",
			Subsystem: "query",
			Name:      "duration_seconds",
			Help:      "Wall-clock duration of /api/query requests from receipt to response.",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"outcome"}),

		queriesInFlight: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "specqa",
			Subsystem: "query",
			Name:      "in_flight",
			Help:      "Number of /api/query requests currently being answered.",
		}),

		analysisRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "specqa",
			Subsystem: "analysis",
			Name:      "requests_total",
			Help:      "Total number of document analysis requests, partitioned by operation and outcome.",
		}, []string{"operation", "outcome"}),

		throttledTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "specqa",
			Subsystem: "http",
			Name:      "throttled_total",
			Help:      "Requests rejected with 429 by the per-client throttle, partitioned by handler.",
		}, []string{labelHandler}),

		httpRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "specqa",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled by the server, partitioned by method, handler, and status code.",
		}, []string{"method", labelHandler, "code"}),

		httpDurationSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "specqa",
			Subsystem: "http",
			Name:      "duration_seconds",
			Help:      "Latency of HTTP requests handled by the server.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", labelHandler}),
	}
}

// observeQuery records one finished /api/query request.
func (m *serverMetrics) observeQuery(outcome string, d time.Duration) {
	m.queryRequestsTotal.WithLabelValues(outcome).Inc()
	m.queryDurationSeconds.WithLabelValues(outcome).Observe(d.Seconds())
}

// analysis records one finished analysis request.
func (m *serverMetrics) analysis(op, outcome string) {
	m.analysisRequestsTotal.WithLabelValues(op, outcome).Inc()
}

// throttled records one request rejected by the throttle.
func (m *serverMetrics) throttled(r *http.Request) {
	m.throttledTotal.WithLabelValues(routeLabel(r.Pattern)).Inc()
}

// instrument wraps a ServeMux and records request counts and latency. The
// handler label is the matched route path, or "unmatched", to keep label
// cardinality bounded.
func (m *serverMetrics) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}

		start := time.Now()
		next.ServeHTTP(rw, r)
		elapsed := time.Since(start)

		handler := routeLabel(r.Pattern)
		m.httpRequestsTotal.WithLabelValues(r.Method, handler, strconv.Itoa(rw.status)).Inc()
		m.httpDurationSeconds.WithLabelValues(r.Method, handler).Observe(elapsed.Seconds())
	})
}

// routeLabel strips the method from a ServeMux pattern such as
// "POST /api/query".
func routeLabel(pattern string) string {
	if pattern == "" {
		return "unmatched"
	}
	if _, path, ok := strings.Cut(pattern, " "); ok {
		return path
	}
	return pattern
}

package engine

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Query outcomes used as metric label values.
const (
	outcomeAnswered  = "answered"
	outcomeNoResults = "no_results"
	outcomeError     = "error"
)

// Metrics holds the Prometheus collectors for end-to-end queries. A nil
// *Metrics records nothing.
type Metrics struct {
	// queriesTotal counts queries by outcome.
	queriesTotal *prometheus.CounterVec
	// queryDuration observes end-to-end query latency.
	queryDuration prometheus.Histogram
	// stageDuration observes per-stage latency ("retrieve", "synthesize").
	stageDuration *prometheus.HistogramVec
}

// NewMetrics registers engine metrics against reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		queriesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "specqa",
			Subsystem: "engine",
			Name:      "queries_total",
			Help:      "Queries processed, partitioned by outcome.",
		}, []string{"outcome"}),

		queryDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "specqa",
			Subsystem: "engine",
			Name:      "query_duration_seconds",
			Help:      "End-to-end query latency.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),

		stageDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "specqa",
			Subsystem: "engine",
			Name:      "stage_duration_seconds",
			Help:      "Latency of each query stage.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"stage"}),
	}
}

func (m *Metrics) observe(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.queriesTotal.WithLabelValues(outcome).Inc()
	m.queryDuration.Observe(d.Seconds())
}

func (m *Metrics) stage(name string, d time.Duration) {
	if m == nil {
		return
	}
	m.stageDuration.WithLabelValues(name).Observe(d.Seconds())
}

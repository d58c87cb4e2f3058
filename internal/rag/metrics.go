package rag

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors owned by the Retriever. A nil
// *Metrics is valid and records nothing, which keeps tests and library use
// free of registry plumbing.
type Metrics struct {
	// embedCallsTotal counts embedding service calls by kind ("query",
	// "chunk") and outcome ("ok", "error").
	embedCallsTotal *prometheus.CounterVec

	// cacheLookupsTotal counts embedding cache lookups by result
	// ("hit", "miss", "error").
	cacheLookupsTotal *prometheus.CounterVec

	// chunksScored is the number of chunks scored per retrieval.
	chunksScored prometheus.Histogram

	// skippedDocumentsTotal counts documents dropped under the skip-document
	// failure policy.
	skippedDocumentsTotal prometheus.Counter
}

// NewMetrics registers retrieval metrics against reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		embedCallsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "specqa",
			Subsystem: "retrieval",
			Name:      "embed_calls_total",
			Help:      "Embedding service calls, partitioned by kind and outcome.",
		}, []string{"kind", "outcome"}),

		cacheLookupsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "specqa",
			Subsystem: "retrieval",
			Name:      "cache_lookups_total",
			Help:      "Embedding cache lookups, partitioned by result.",
		}, []string{"result"}),

		chunksScored: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "specqa",
			Subsystem: "retrieval",
			Name:      "chunks_scored",
			Help:      "Number of chunks scored against the query per retrieval.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
		}),

		skippedDocumentsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "specqa",
			Subsystem: "retrieval",
			Name:      "skipped_documents_total",
			Help:      "Documents dropped from a retrieval because their embeddings failed.",
		}),
	}
}

func (m *Metrics) embedCall(kind string, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.embedCallsTotal.WithLabelValues(kind, outcome).Inc()
}

func (m *Metrics) cacheLookup(result string) {
	if m == nil {
		return
	}
	m.cacheLookupsTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) scored(n int) {
	if m == nil {
		return
	}
	m.chunksScored.Observe(float64(n))
}

func (m *Metrics) skipped() {
	if m == nil {
		return
	}
	m.skippedDocumentsTotal.Inc()
}

package ingest

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// DocumentsTotal counts ingestion attempts.
	// Labels: status (success, or a failure reason from Reason)
	DocumentsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "docrag",
			Subsystem: "ingest",
			Name:      "documents_total",
			Help:      "Total number of document ingestion attempts",
		},
		[]string{"status"},
	)

	// ChunksTotal counts chunks by outcome.
	// Labels: outcome (indexed, dropped)
	ChunksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "docrag",
			Subsystem: "ingest",
			Name:      "chunks_total",
			Help:      "Total number of chunks indexed or dropped",
		},
		[]string{"outcome"},
	)

	// Duration tracks end-to-end ingestion latency.
	Duration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "docrag",
			Subsystem: "ingest",
			Name:      "duration_seconds",
			Help:      "Duration of document ingestion in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
	)

	// SummaryFailures counts summaries replaced by the unavailable sentinel.
	SummaryFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "docrag",
			Subsystem: "ingest",
			Name:      "summary_failures_total",
			Help:      "Total number of summaries that fell back to the unavailable sentinel",
		},
	)
)

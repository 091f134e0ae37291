package vectorstore

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// OperationsTotal counts store operations.
	// Labels: provider, op (upsert, query, ensure), status (success, error, dimension_mismatch)
	OperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "docrag",
			Subsystem: "vectorstore",
			Name:      "operations_total",
			Help:      "Total number of vector store operations",
		},
		[]string{"provider", "op", "status"},
	)

	// OperationDuration tracks store operation latency.
	OperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "docrag",
			Subsystem: "vectorstore",
			Name:      "operation_duration_seconds",
			Help:      "Duration of vector store operations in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"provider", "op", "status"},
	)

	// RecordsUpserted counts vectors written.
	RecordsUpserted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "docrag",
			Subsystem: "vectorstore",
			Name:      "records_upserted_total",
			Help:      "Total number of vectors upserted",
		},
		[]string{"provider"},
	)

	// QuarantineOperations counts chromem collection quarantines.
	// Labels: result (success, error)
	QuarantineOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "docrag",
			Subsystem: "vectorstore",
			Name:      "quarantine_operations_total",
			Help:      "Total number of quarantine operations",
		},
		[]string{"result"},
	)
)

// Instrumented records Prometheus metrics around another Store.
type Instrumented struct {
	inner    Store
	provider string
}

// Instrument wraps store with per-operation metrics labelled by provider.
func Instrument(store Store, provider string) *Instrumented {
	return &Instrumented{inner: store, provider: provider}
}

func (i *Instrumented) observe(op string, start time.Time, err error) {
	status := "success"
	switch {
	case errors.Is(err, ErrDimensionMismatch):
		status = "dimension_mismatch"
	case err != nil:
		status = "error"
	}
	OperationsTotal.WithLabelValues(i.provider, op, status).Inc()
	OperationDuration.WithLabelValues(i.provider, op, status).Observe(time.Since(start).Seconds())
}

func (i *Instrumented) Upsert(ctx context.Context, records []Record) (int, error) {
	start := time.Now()
	n, err := i.inner.Upsert(ctx, records)
	i.observe("upsert", start, err)
	if err == nil {
		RecordsUpserted.WithLabelValues(i.provider).Add(float64(n))
	}
	return n, err
}

func (i *Instrumented) Query(ctx context.Context, vector []float32, topK int) ([]Match, error) {
	start := time.Now()
	matches, err := i.inner.Query(ctx, vector, topK)
	i.observe("query", start, err)
	return matches, err
}

func (i *Instrumented) EnsureCollection(ctx context.Context) error {
	start := time.Now()
	err := i.inner.EnsureCollection(ctx)
	i.observe("ensure", start, err)
	return err
}

func (i *Instrumented) Delete(ctx context.Context, ids []string) error {
	start := time.Now()
	err := Delete(ctx, i.inner, ids)
	i.observe("delete", start, err)
	return err
}

func (i *Instrumented) Close() error {
	return i.inner.Close()
}

func (i *Instrumented) Health(ctx context.Context) error {
	return Health(ctx, i.inner)
}

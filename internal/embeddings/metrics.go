package embeddings

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

const instrumentationName = "github.com/fyrsmithlabs/docrag/internal/embeddings"

// Metrics holds embedding instruments. Instruments that fail to register are
// left nil and skipped.
type Metrics struct {
	meter    metric.Meter
	logger   *zap.Logger
	requests metric.Int64Counter
	duration metric.Float64Histogram
	empty    metric.Int64Counter
}

// NewMetrics registers instruments on meter, or the global meter when nil.
func NewMetrics(meter metric.Meter, logger *zap.Logger) *Metrics {
	if meter == nil {
		meter = otel.Meter(instrumentationName)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Metrics{meter: meter, logger: logger}
	m.init()
	return m
}

func (m *Metrics) init() {
	var err error

	m.requests, err = m.meter.Int64Counter(
		"docrag.embedding.requests_total",
		metric.WithDescription("Embedding requests by provider and status (ok, error)"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		m.logger.Warn("failed to create requests counter", zap.Error(err))
	}

	m.duration, err = m.meter.Float64Histogram(
		"docrag.embedding.duration_seconds",
		metric.WithDescription("Latency of a single embedding call in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0),
	)
	if err != nil {
		m.logger.Warn("failed to create duration histogram", zap.Error(err))
	}

	m.empty, err = m.meter.Int64Counter(
		"docrag.embedding.empty_total",
		metric.WithDescription("Embeddings that collapsed to the empty sentinel, by reason"),
		metric.WithUnit("{embedding}"),
	)
	if err != nil {
		m.logger.Warn("failed to create empty counter", zap.Error(err))
	}
}

// RecordRequest records one provider call.
func (m *Metrics) RecordRequest(ctx context.Context, provider string, d time.Duration, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	attrs := metric.WithAttributes(
		attribute.String("provider", provider),
		attribute.String("status", status),
	)
	if m.requests != nil {
		m.requests.Add(ctx, 1, attrs)
	}
	if m.duration != nil {
		m.duration.Record(ctx, d.Seconds(), attrs)
	}
}

// RecordEmpty records a sentinel result.
func (m *Metrics) RecordEmpty(ctx context.Context, provider string, reason Reason) {
	if m == nil || m.empty == nil {
		return
	}
	m.empty.Add(ctx, 1, metric.WithAttributes(
		attribute.String("provider", provider),
		attribute.String("reason", string(reason)),
	))
}

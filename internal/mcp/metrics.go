package mcp

import (
	"context"
	"errors"
	"io/fs"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/docrag/internal/answer"
	"github.com/fyrsmithlabs/docrag/internal/ingest"
)

const meterName = "github.com/fyrsmithlabs/docrag/internal/mcp"

// toolMetrics records per-tool call counts, latency, failures and calls in
// flight. Instruments that fail to register stay nil and are skipped.
type toolMetrics struct {
	calls    metric.Int64Counter
	latency  metric.Float64Histogram
	failures metric.Int64Counter
	inFlight metric.Int64UpDownCounter
}

func newToolMetrics(meter metric.Meter, logger *zap.Logger) *toolMetrics {
	if meter == nil {
		meter = otel.Meter(meterName)
	}
	warn := func(name string, err error) {
		if err != nil {
			logger.Warn("mcp metric unavailable", zap.String("metric", name), zap.Error(err))
		}
	}

	m := &toolMetrics{}
	var err error
	m.calls, err = meter.Int64Counter("docrag.mcp.tool.invocations_total",
		metric.WithDescription("MCP tool calls"),
		metric.WithUnit("{invocation}"))
	warn("invocations_total", err)

	// Answers wait on the LLM, so the upper buckets matter.
	m.latency, err = meter.Float64Histogram("docrag.mcp.tool.duration_seconds",
		metric.WithDescription("MCP tool call latency"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120))
	warn("duration_seconds", err)

	m.failures, err = meter.Int64Counter("docrag.mcp.tool.errors_total",
		metric.WithDescription("MCP tool calls that returned an error, by reason"),
		metric.WithUnit("{error}"))
	warn("errors_total", err)

	m.inFlight, err = meter.Int64UpDownCounter("docrag.mcp.tool.active_requests",
		metric.WithDescription("MCP tool calls in progress"),
		metric.WithUnit("{request}"))
	warn("active_requests", err)

	return m
}

// begin marks a call to tool as started. The returned func ends it and
// records the outcome.
func (m *toolMetrics) begin(ctx context.Context, tool string) func(error) {
	start := time.Now()
	attrs := metric.WithAttributes(attribute.String("tool", tool))
	if m.inFlight != nil {
		m.inFlight.Add(ctx, 1, attrs)
	}
	return func(err error) {
		if m.inFlight != nil {
			m.inFlight.Add(ctx, -1, attrs)
		}
		if m.calls != nil {
			m.calls.Add(ctx, 1, attrs)
		}
		if m.latency != nil {
			m.latency.Record(ctx, time.Since(start).Seconds(), attrs)
		}
		if err != nil && m.failures != nil {
			m.failures.Add(ctx, 1, metric.WithAttributes(
				attribute.String("tool", tool),
				attribute.String("reason", failureReason(err)),
			))
		}
	}
}

// failureReason maps a tool error onto a small, fixed label set.
func failureReason(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ingest.ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, ingest.ErrInvalidRequest), errors.Is(err, answer.ErrInvalidRequest):
		return "validation_error"
	case errors.Is(err, ingest.ErrExtractionInsufficient):
		return "extraction_error"
	case errors.Is(err, fs.ErrNotExist):
		return "not_found"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	}

	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "invalid") {
		return "validation_error"
	}
	if strings.Contains(msg, "vector store") || strings.Contains(msg, "metadata") {
		return "storage_error"
	}
	return "internal_error"
}

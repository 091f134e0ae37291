package http

import (
	"time"

	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

const meterName = "github.com/fyrsmithlabs/docrag/internal/http"

// unmatchedRoute labels requests that matched no route, keeping label
// cardinality bounded by the route table.
const unmatchedRoute = "unmatched"

// requestMetrics records OpenTelemetry instruments for every request.
// An instrument that fails to register is left nil and skipped.
type requestMetrics struct {
	requests  metric.Int64Counter
	duration  metric.Float64Histogram
	inFlight  metric.Int64UpDownCounter
	uploadLen metric.Int64Histogram
}

func newRequestMetrics(meter metric.Meter, logger *zap.Logger) *requestMetrics {
	if meter == nil {
		meter = otel.Meter(meterName)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	warn := func(name string, err error) {
		if err != nil {
			logger.Warn("failed to register http instrument", zap.String("instrument", name), zap.Error(err))
		}
	}

	m := &requestMetrics{}
	var err error
	m.requests, err = meter.Int64Counter("docrag.http.requests_total",
		metric.WithDescription("HTTP requests by method, route and status code"),
		metric.WithUnit("{request}"))
	warn("requests_total", err)

	m.duration, err = meter.Float64Histogram("docrag.http.request_duration_seconds",
		metric.WithDescription("HTTP request latency by method, route and status code"),
		metric.WithUnit("s"),
		// Ingestion embeds every chunk inline, so the upper buckets reach minutes.
		metric.WithExplicitBucketBoundaries(0.005, 0.025, 0.1, 0.25, 0.5, 1, 2.5, 5, 15, 30, 60, 180))
	warn("request_duration_seconds", err)

	m.inFlight, err = meter.Int64UpDownCounter("docrag.http.in_flight_requests",
		metric.WithDescription("HTTP requests currently being served"),
		metric.WithUnit("{request}"))
	warn("in_flight_requests", err)

	m.uploadLen, err = meter.Int64Histogram("docrag.http.upload_size_bytes",
		metric.WithDescription("Size of ingest request bodies"),
		metric.WithUnit("By"),
		metric.WithExplicitBucketBoundaries(1<<10, 16<<10, 128<<10, 1<<20, 5<<20, 10<<20, 20<<20))
	warn("upload_size_bytes", err)

	return m
}

func (m *requestMetrics) middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := c.Request().Context()
			start := time.Now()
			if m.inFlight != nil {
				m.inFlight.Add(ctx, 1)
				defer m.inFlight.Add(ctx, -1)
			}

			err := next(c)
			if err != nil {
				// Let echo write the error response so the status is final.
				c.Error(err)
			}

			route := routeLabel(c.Path())
			attrs := metric.WithAttributes(
				attribute.String("method", c.Request().Method),
				attribute.String("route", route),
				attribute.Int("status", c.Response().Status),
			)
			if m.requests != nil {
				m.requests.Add(ctx, 1, attrs)
			}
			if m.duration != nil {
				m.duration.Record(ctx, time.Since(start).Seconds(), attrs)
			}
			if m.uploadLen != nil && route == ingestRoute && c.Request().ContentLength > 0 {
				m.uploadLen.Record(ctx, c.Request().ContentLength)
			}
			return nil
		}
	}
}

// routeLabel returns the matched route template.
func routeLabel(path string) string {
	if path == "" {
		return unmatchedRoute
	}
	return path
}

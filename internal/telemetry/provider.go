package telemetry

import (
	"context"
	"crypto/tls"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"google.golang.org/grpc/credentials"
)

// collector is where OTLP data goes and how the connection is secured.
type collector struct {
	overHTTP bool
	endpoint string
	insecure bool
	tls      *tls.Config
}

func collectorFor(cfg *Config) collector {
	c := collector{
		overHTTP: cfg.Protocol == "http/protobuf",
		endpoint: cfg.Endpoint,
		insecure: cfg.Insecure,
	}
	if c.overHTTP {
		c.endpoint = stripScheme(c.endpoint)
	}
	if !c.insecure && cfg.TLSSkipVerify {
		c.tls = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // operator opt-in for internal CAs
	}
	return c
}

// newResource builds a standalone resource so its schema URL never clashes
// with resource.Default().
func newResource(cfg *Config) *resource.Resource {
	return resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(cfg.ServiceName),
		semconv.ServiceVersion(cfg.ServiceVersion),
	)
}

func (c collector) spanExporter(ctx context.Context) (trace.SpanExporter, error) {
	if c.overHTTP {
		opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(c.endpoint)}
		switch {
		case c.insecure:
			opts = append(opts, otlptracehttp.WithInsecure())
		case c.tls != nil:
			opts = append(opts, otlptracehttp.WithTLSClientConfig(c.tls))
		}
		return otlptracehttp.New(ctx, opts...)
	}
	opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(c.endpoint)}
	switch {
	case c.insecure:
		opts = append(opts, otlptracegrpc.WithInsecure())
	case c.tls != nil:
		opts = append(opts, otlptracegrpc.WithTLSCredentials(credentials.NewTLS(c.tls)))
	}
	return otlptracegrpc.New(ctx, opts...)
}

// alwaysCumulative overrides any temporality preference inherited from the
// environment; Prometheus-compatible backends need cumulative sums.
func alwaysCumulative(metric.InstrumentKind) metricdata.Temporality {
	return metricdata.CumulativeTemporality
}

func (c collector) metricExporter(ctx context.Context) (metric.Exporter, error) {
	if c.overHTTP {
		opts := []otlpmetrichttp.Option{
			otlpmetrichttp.WithEndpoint(c.endpoint),
			otlpmetrichttp.WithTemporalitySelector(alwaysCumulative),
		}
		switch {
		case c.insecure:
			opts = append(opts, otlpmetrichttp.WithInsecure())
		case c.tls != nil:
			opts = append(opts, otlpmetrichttp.WithTLSClientConfig(c.tls))
		}
		return otlpmetrichttp.New(ctx, opts...)
	}
	opts := []otlpmetricgrpc.Option{
		otlpmetricgrpc.WithEndpoint(c.endpoint),
		otlpmetricgrpc.WithTemporalitySelector(alwaysCumulative),
	}
	switch {
	case c.insecure:
		opts = append(opts, otlpmetricgrpc.WithInsecure())
	case c.tls != nil:
		opts = append(opts, otlpmetricgrpc.WithTLSCredentials(credentials.NewTLS(c.tls)))
	}
	return otlpmetricgrpc.New(ctx, opts...)
}

// sampler honors the parent's decision and samples roots at rate.
func sampler(rate float64) trace.Sampler {
	root := trace.TraceIDRatioBased(rate)
	if rate >= 1 {
		root = trace.AlwaysSample()
	} else if rate <= 0 {
		root = trace.NeverSample()
	}
	return trace.ParentBased(root)
}

func newTracerProvider(ctx context.Context, cfg *Config, res *resource.Resource) (*trace.TracerProvider, error) {
	exp, err := collectorFor(cfg).spanExporter(ctx)
	if err != nil {
		return nil, fmt.Errorf("creating trace exporter: %w", err)
	}
	return trace.NewTracerProvider(
		trace.WithBatcher(exp),
		trace.WithResource(res),
		trace.WithSampler(sampler(cfg.Sampling.Rate)),
	), nil
}

// newMeterProvider returns nil when metric export is off.
func newMeterProvider(ctx context.Context, cfg *Config, res *resource.Resource) (*metric.MeterProvider, error) {
	if !cfg.Metrics.Enabled {
		return nil, nil
	}
	exp, err := collectorFor(cfg).metricExporter(ctx)
	if err != nil {
		return nil, fmt.Errorf("creating metric exporter: %w", err)
	}
	reader := metric.NewPeriodicReader(exp, metric.WithInterval(cfg.Metrics.ExportInterval.Duration()))
	return metric.NewMeterProvider(metric.WithResource(res), metric.WithReader(reader)), nil
}

// stripScheme drops an http:// or https:// prefix; the HTTP exporters and the
// endpoint check take host:port.
func stripScheme(endpoint string) string {
	return strings.TrimPrefix(strings.TrimPrefix(endpoint, "https://"), "http://")
}

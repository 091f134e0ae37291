package telemetry

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/trace"
	oteltrace "go.opentelemetry.io/otel/trace"
)

// Telemetry owns the process-wide tracer and meter providers. An exporter
// that cannot be built degrades the instance instead of failing startup;
// the affected signal falls back to the global no-op provider.
type Telemetry struct {
	config *Config

	tracerProvider *trace.TracerProvider
	meterProvider  *sdkmetric.MeterProvider
	logProvider    log.LoggerProvider

	mu     sync.Mutex
	status HealthStatus
}

// HealthStatus is the telemetry part of /health.
type HealthStatus struct {
	Healthy  bool
	Degraded bool
	Error    string
}

// New validates cfg and installs the configured providers globally. With
// telemetry disabled nothing is installed.
func New(ctx context.Context, cfg *Config) (*Telemetry, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid telemetry config: %w", err)
	}
	t := &Telemetry{config: cfg, status: HealthStatus{Healthy: true}}
	if !cfg.Enabled {
		return t, nil
	}

	res := newResource(cfg)
	if tp, err := newTracerProvider(ctx, cfg, res); err != nil {
		t.degrade(fmt.Errorf("tracer provider failed: %w", err))
	} else {
		t.tracerProvider = tp
		otel.SetTracerProvider(tp)
	}
	if mp, err := newMeterProvider(ctx, cfg, res); err != nil {
		t.degrade(fmt.Errorf("meter provider failed: %w", err))
	} else if mp != nil {
		t.meterProvider = mp
		otel.SetMeterProvider(mp)
	}

	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	return t, nil
}

func (t *Telemetry) Tracer(name string, opts ...oteltrace.TracerOption) oteltrace.Tracer {
	if t == nil || t.tracerProvider == nil {
		return otel.GetTracerProvider().Tracer(name, opts...)
	}
	return t.tracerProvider.Tracer(name, opts...)
}

func (t *Telemetry) Meter(name string, opts ...metric.MeterOption) metric.Meter {
	if t == nil || t.meterProvider == nil {
		return otel.GetMeterProvider().Meter(name, opts...)
	}
	return t.meterProvider.Meter(name, opts...)
}

// LoggerProvider feeds the otelzap bridge. Nil means log export is off.
func (t *Telemetry) LoggerProvider() log.LoggerProvider {
	if t == nil {
		return nil
	}
	return t.logProvider
}

// SetLoggerProvider installs a provider for the otelzap bridge.
func (t *Telemetry) SetLoggerProvider(lp log.LoggerProvider) {
	if t != nil {
		t.logProvider = lp
	}
}

// both runs the non-nil provider funcs and joins their errors.
func both(ctx context.Context, verb string, traceFn, meterFn func(context.Context) error) error {
	var errs []error
	if traceFn != nil {
		if err := traceFn(ctx); err != nil {
			errs = append(errs, fmt.Errorf("trace provider %s: %w", verb, err))
		}
	}
	if meterFn != nil {
		if err := meterFn(ctx); err != nil {
			errs = append(errs, fmt.Errorf("meter provider %s: %w", verb, err))
		}
	}
	return errors.Join(errs...)
}

// Shutdown flushes and stops the providers. Without a deadline on ctx the
// configured shutdown timeout applies. The instance reports unhealthy after.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	if t == nil {
		return nil
	}
	if _, ok := ctx.Deadline(); !ok && t.config != nil {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.config.Shutdown.Timeout.Duration())
		defer cancel()
	}

	var traceFn, meterFn func(context.Context) error
	if t.tracerProvider != nil {
		traceFn = t.tracerProvider.Shutdown
	}
	if t.meterProvider != nil {
		meterFn = t.meterProvider.Shutdown
	}
	err := both(ctx, "shutdown", traceFn, meterFn)

	t.mu.Lock()
	t.status.Healthy = false
	t.mu.Unlock()
	return err
}

// ForceFlush exports anything still buffered.
func (t *Telemetry) ForceFlush(ctx context.Context) error {
	if t == nil {
		return nil
	}
	var traceFn, meterFn func(context.Context) error
	if t.tracerProvider != nil {
		traceFn = t.tracerProvider.ForceFlush
	}
	if t.meterProvider != nil {
		meterFn = t.meterProvider.ForceFlush
	}
	return both(ctx, "flush", traceFn, meterFn)
}

// Health returns a snapshot of the provider state. A nil instance is
// reported as degraded.
func (t *Telemetry) Health() HealthStatus {
	if t == nil {
		return HealthStatus{Degraded: true}
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

// IsEnabled reports whether export is configured and not yet shut down.
func (t *Telemetry) IsEnabled() bool {
	if t == nil || t.config == nil || !t.config.Enabled {
		return false
	}
	return t.Health().Healthy
}

func (t *Telemetry) degrade(err error) {
	t.mu.Lock()
	t.status.Degraded = true
	t.status.Error = err.Error()
	t.mu.Unlock()
}

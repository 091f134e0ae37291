package embeddings

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/time/rate"

	"github.com/fyrsmithlabs/docrag/internal/telemetry"
)

// EventEmbeddingFailed is reported whenever Embed returns Empty.
const EventEmbeddingFailed = "embedding.failed"

// Reason classifies why an embedding collapsed to Empty.
type Reason string

const (
	ReasonEmptyInput        Reason = "empty_input"
	ReasonRateLimited       Reason = "rate_limited"
	ReasonTimeout           Reason = "timeout"
	ReasonCanceled          Reason = "canceled"
	ReasonProviderError     Reason = "provider_error"
	ReasonEmptyResult       Reason = "empty_result"
	ReasonDimensionMismatch Reason = "dimension_mismatch"
)

// Config controls the Adapter.
type Config struct {
	// Dimension is D; results of any other length are rejected.
	Dimension int
	// RequestsPerSecond bounds provider calls. Zero disables limiting.
	RequestsPerSecond float64
	// Timeout bounds a single provider call. Zero disables it.
	Timeout time.Duration
	// Name labels metrics; defaults to "embeddings".
	Name string
}

// Adapter makes a Provider safe for the pipelines.
type Adapter struct {
	provider Provider
	cfg      Config
	limiter  *rate.Limiter
	reporter telemetry.Reporter
	metrics  *Metrics
}

var _ Embedder = (*Adapter)(nil)

// AdapterOption configures an Adapter.
type AdapterOption func(*Adapter)

// WithMetrics records request and sentinel metrics.
func WithMetrics(m *Metrics) AdapterOption {
	return func(a *Adapter) { a.metrics = m }
}

// NewAdapter wraps provider. reporter may be nil.
func NewAdapter(provider Provider, cfg Config, reporter telemetry.Reporter, opts ...AdapterOption) (*Adapter, error) {
	if provider == nil {
		return nil, fmt.Errorf("%w: provider required", ErrInvalidConfig)
	}
	if cfg.Dimension <= 0 {
		return nil, fmt.Errorf("%w: dimension must be > 0", ErrInvalidConfig)
	}
	if cfg.Name == "" {
		cfg.Name = "embeddings"
	}

	a := &Adapter{provider: provider, cfg: cfg, reporter: reporter}
	if cfg.RequestsPerSecond > 0 {
		burst := max(1, int(cfg.RequestsPerSecond))
		a.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// Dimension returns D.
func (a *Adapter) Dimension() int {
	return a.cfg.Dimension
}

// Embed returns the vector for text, or Empty on any failure.
func (a *Adapter) Embed(ctx context.Context, text string) Vector {
	if strings.TrimSpace(text) == "" {
		return a.fail(ctx, text, ReasonEmptyInput, ErrEmptyInput)
	}

	if a.limiter != nil {
		if err := a.limiter.Wait(ctx); err != nil {
			return a.fail(ctx, text, classify(ctx, err, ReasonRateLimited), err)
		}
	}

	callCtx := ctx
	if a.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, a.cfg.Timeout)
		defer cancel()
	}

	start := time.Now()
	values, err := a.provider.EmbedQuery(callCtx, text)
	a.metrics.RecordRequest(ctx, a.cfg.Name, time.Since(start), err)

	switch {
	case err != nil:
		return a.fail(ctx, text, classify(callCtx, err, ReasonProviderError), err)
	case len(values) == 0:
		return a.fail(ctx, text, ReasonEmptyResult, fmt.Errorf("%w: empty result", ErrEmbeddingFailed))
	case len(values) != a.cfg.Dimension:
		return a.fail(ctx, text, ReasonDimensionMismatch,
			fmt.Errorf("%w: got %d dimensions, want %d", ErrEmbeddingFailed, len(values), a.cfg.Dimension))
	}
	return Vector(values)
}

func (a *Adapter) fail(ctx context.Context, text string, reason Reason, err error) Vector {
	a.metrics.RecordEmpty(ctx, a.cfg.Name, reason)
	if a.reporter != nil {
		a.reporter.Recoverable(ctx, EventEmbeddingFailed, err,
			attribute.Int("input.length", len(text)),
			attribute.String("reason", string(reason)),
		)
	}
	return Empty
}

// classify prefers the context's own state so a deadline surfaces as a
// timeout even when the provider wrapped it.
func classify(ctx context.Context, err error, fallback Reason) Reason {
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(ctx.Err(), context.DeadlineExceeded):
		return ReasonTimeout
	case errors.Is(err, context.Canceled), errors.Is(ctx.Err(), context.Canceled):
		return ReasonCanceled
	default:
		return fallback
	}
}

package embeddings

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// SpanEmbed is the span emitted around every provider call.
const SpanEmbed = "embeddings.embed"

type tracedProvider struct {
	next   Provider
	tracer trace.Tracer
}

// Traced decorates p with an "embeddings.embed" span per call. Tracing
// problems never alter the result.
func Traced(p Provider, tracer trace.Tracer) Provider {
	if tracer == nil {
		return p
	}
	return &tracedProvider{next: p, tracer: tracer}
}

func (t *tracedProvider) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	ctx, span := t.start(ctx, len(text))
	values, err := t.next.EmbedQuery(ctx, text)
	t.end(span, len(values), err)
	return values, err
}

func (t *tracedProvider) Dimension() int {
	return t.next.Dimension()
}

// Close forwards to the wrapped provider when it holds resources.
func (t *tracedProvider) Close() error {
	if c, ok := t.next.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}

func (t *tracedProvider) start(ctx context.Context, inputLen int) (spanCtx context.Context, span trace.Span) {
	defer func() {
		if recover() != nil {
			spanCtx, span = ctx, nil
		}
	}()
	return t.tracer.Start(ctx, SpanEmbed, trace.WithAttributes(attribute.Int("input.length", inputLen)))
}

func (t *tracedProvider) end(span trace.Span, dim int, err error) {
	if span == nil {
		return
	}
	defer func() { _ = recover() }()

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetAttributes(attribute.Int("output.dimension", dim))
	}
	span.End()
}

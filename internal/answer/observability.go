package answer

import (
	"context"

	"go.opentelemetry.io/otel/attribute"

	"github.com/fyrsmithlabs/docrag/internal/telemetry"
)

type observed struct {
	inner Answerer
	hooks *telemetry.Hooks
}

// WithObservability wraps svc with an answer.question span.
func WithObservability(svc Answerer, hooks *telemetry.Hooks) Answerer {
	return &observed{inner: svc, hooks: hooks}
}

func (o *observed) Answer(ctx context.Context, question string) (*Result, error) {
	ctx, span := o.hooks.Start(ctx, "answer.question",
		attribute.Int("question.length", len(question)))

	res, err := o.inner.Answer(ctx, question)
	if err != nil {
		span.End(err)
		return nil, err
	}
	span.End(nil,
		attribute.Bool("used_context", res.UsedContext),
		attribute.Int("context_length", res.ContextLength),
		attribute.Int("sources", len(res.Sources)))
	return res, nil
}

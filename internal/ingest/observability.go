package ingest

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel/attribute"

	"github.com/fyrsmithlabs/docrag/internal/telemetry"
)

// Terminal event names.
const (
	EventCompleted = "ingest.completed"
	EventFailed    = "ingest.failed"
)

type observed struct {
	inner Ingester
	hooks *telemetry.Hooks
}

// WithObservability wraps svc with an ingest.document span and a terminal
// ingest.completed or ingest.failed event.
func WithObservability(svc Ingester, hooks *telemetry.Hooks) Ingester {
	return &observed{inner: svc, hooks: hooks}
}

func (o *observed) Ingest(ctx context.Context, up Upload) (*Result, error) {
	ctx, span := o.hooks.Start(ctx, "ingest.document",
		attribute.String("file.name", up.Filename),
		attribute.Int("file.size", len(up.Data)),
	)

	res, err := o.inner.Ingest(ctx, up)
	if err != nil {
		reason := Reason(err)
		attrs := []attribute.KeyValue{
			attribute.String("reason", reason),
			attribute.String("file.name", up.Filename),
		}
		var rl *RateLimitError
		if errors.As(err, &rl) {
			attrs = append(attrs, attribute.Int("retry_after_seconds", rl.RetryAfterSeconds()))
		}
		span.End(err, attribute.String("reason", reason))
		o.hooks.Emit(ctx, telemetry.Event{
			Name:  EventFailed,
			Level: telemetry.LevelError,
			Attrs: telemetry.Attrs(attrs...),
			Err:   err.Error(),
		})
		return nil, err
	}

	attrs := []attribute.KeyValue{
		attribute.String("document.id", res.DocumentID),
		attribute.String("path", res.StoragePath),
		attribute.Int("chunks", res.Chunks),
		attribute.Int("indexed", res.Indexed),
		attribute.Int("dropped", res.Dropped),
	}
	span.End(nil, attrs...)
	o.hooks.Emit(ctx, telemetry.Event{Name: EventCompleted, Level: telemetry.LevelInfo, Attrs: telemetry.Attrs(attrs...)})
	return res, nil
}

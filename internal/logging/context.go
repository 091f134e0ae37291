package logging

import (
	"context"
	"regexp"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type (
	requestIDKey    struct{}
	documentPathKey struct{}
)

// requestIDPattern bounds client-supplied request IDs.
var requestIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,128}$`)

// ContextFields returns the correlation fields carried by ctx: the active
// span, the request ID and the document being ingested.
func ContextFields(ctx context.Context) []zap.Field {
	var fields []zap.Field
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		fields = append(fields,
			zap.String("trace_id", sc.TraceID().String()),
			zap.String("span_id", sc.SpanID().String()),
		)
		if sc.IsSampled() {
			fields = append(fields, zap.Bool("trace_sampled", true))
		}
	}
	if id := RequestIDFromContext(ctx); id != "" {
		fields = append(fields, zap.String("request.id", id))
	}
	if p := DocumentPathFromContext(ctx); p != "" {
		fields = append(fields, zap.String("document.path", p))
	}
	return fields
}

// WithRequestID tags ctx with a request ID. IDs that are empty, longer than
// 128 bytes or outside [A-Za-z0-9_-] are dropped.
func WithRequestID(ctx context.Context, id string) context.Context {
	if !requestIDPattern.MatchString(id) {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey{}, id)
}

func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// WithDocumentPath tags ctx with the storage path of the document being
// ingested.
func WithDocumentPath(ctx context.Context, path string) context.Context {
	if path == "" {
		return ctx
	}
	return context.WithValue(ctx, documentPathKey{}, path)
}

func DocumentPathFromContext(ctx context.Context) string {
	p, _ := ctx.Value(documentPathKey{}).(string)
	return p
}

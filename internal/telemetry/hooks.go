package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/docrag/internal/logging"
)

// Level classifies an Event.
type Level string

const (
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// Event is a structured record delivered to every sink.
type Event struct {
	Name      string                 `json:"name"`
	Level     Level                  `json:"level"`
	TraceID   string                 `json:"trace_id,omitempty"`
	RequestID string                 `json:"request_id,omitempty"`
	Attrs     map[string]interface{} `json:"attrs,omitempty"`
	Err       string                 `json:"error,omitempty"`
	Time      time.Time              `json:"time"`
}

// Sink receives events. Errors are logged at debug and otherwise ignored.
type Sink interface {
	Emit(ctx context.Context, ev Event) error
}

// Reporter is the narrow surface pipeline components report degraded
// conditions through.
type Reporter interface {
	Recoverable(ctx context.Context, name string, err error, attrs ...attribute.KeyValue)
}

var _ Reporter = (*Hooks)(nil)

// Hooks fans spans and events out to the tracer, the logger and the sinks.
// The zero of *Hooks (nil) is a valid no-op.
type Hooks struct {
	tracer trace.Tracer
	logger *logging.Logger
	sinks  []Sink
}

// NewHooks builds hooks. A nil tracer or logger is replaced with a no-op.
func NewHooks(tracer trace.Tracer, logger *logging.Logger, sinks ...Sink) *Hooks {
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer("docrag")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Hooks{tracer: tracer, logger: logger, sinks: sinks}
}

// Span is a started operation. A nil *Span is a valid no-op.
type Span struct {
	hooks *Hooks
	span  trace.Span
	ctx   context.Context
	name  string
	start time.Time
}

// Start opens a span named name.
func (h *Hooks) Start(ctx context.Context, name string, attrs ...attribute.KeyValue) (_ context.Context, s *Span) {
	if h == nil {
		return ctx, nil
	}
	defer func() {
		if r := recover(); r != nil {
			h.logger.Debug(ctx, "telemetry start panicked", zap.String("span", name), zap.Any("panic", r))
			s = nil
		}
	}()

	spanCtx, span := h.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
	return spanCtx, &Span{hooks: h, span: span, ctx: spanCtx, name: name, start: time.Now()}
}

// End closes the span, recording err as its status when non-nil.
func (s *Span) End(err error, attrs ...attribute.KeyValue) {
	if s == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			s.hooks.logger.Debug(s.ctx, "telemetry end panicked", zap.String("span", s.name), zap.Any("panic", r))
		}
	}()

	s.span.SetAttributes(attrs...)
	if err != nil {
		s.span.RecordError(err)
		s.span.SetStatus(codes.Error, err.Error())
	} else {
		s.span.SetStatus(codes.Ok, "")
	}
	s.span.End()

	s.hooks.logger.Debug(s.ctx, "span ended",
		zap.String("span", s.name),
		zap.Duration("duration", time.Since(s.start)),
		zap.Bool("error", err != nil),
	)
}

// Recoverable records a degraded-but-handled condition: an event on the
// active span plus a warn-level Event to every sink.
func (h *Hooks) Recoverable(ctx context.Context, name string, err error, attrs ...attribute.KeyValue) {
	if h == nil {
		return
	}
	func() {
		defer func() {
			if r := recover(); r != nil {
				h.logger.Debug(ctx, "telemetry span event panicked", zap.String("event", name), zap.Any("panic", r))
			}
		}()
		eventAttrs := attrs
		if err != nil {
			eventAttrs = append(append([]attribute.KeyValue{}, attrs...), attribute.String("error", err.Error()))
		}
		trace.SpanFromContext(ctx).AddEvent(name, trace.WithAttributes(eventAttrs...))
	}()

	ev := Event{Name: name, Level: LevelWarn, Attrs: Attrs(attrs...)}
	if err != nil {
		ev.Err = err.Error()
	}
	h.Emit(ctx, ev)
}

// Emit fills correlation fields and delivers ev to every sink.
func (h *Hooks) Emit(ctx context.Context, ev Event) {
	if h == nil {
		return
	}
	if ev.Time.IsZero() {
		ev.Time = time.Now().UTC()
	}
	if ev.Level == "" {
		ev.Level = LevelInfo
	}
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() && ev.TraceID == "" {
		ev.TraceID = sc.TraceID().String()
	}
	if ev.RequestID == "" {
		ev.RequestID = logging.RequestIDFromContext(ctx)
	}

	for _, sink := range h.sinks {
		if err := h.deliver(ctx, sink, ev); err != nil {
			h.logger.Debug(ctx, "event sink failed", zap.String("event", ev.Name), zap.Error(err))
		}
	}
}

func (h *Hooks) deliver(ctx context.Context, sink Sink, ev Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("sink panicked: %v", r)
		}
	}()
	return sink.Emit(ctx, ev)
}

// Attrs converts attributes to an Event attribute map. It returns nil for
// no attributes.
func Attrs(attrs ...attribute.KeyValue) map[string]interface{} {
	if len(attrs) == 0 {
		return nil
	}
	m := make(map[string]interface{}, len(attrs))
	for _, kv := range attrs {
		m[string(kv.Key)] = kv.Value.AsInterface()
	}
	return m
}

// LogSink writes events through the structured logger.
type LogSink struct {
	logger *logging.Logger
}

// NewLogSink creates a sink that logs each event.
func NewLogSink(logger *logging.Logger) *LogSink {
	return &LogSink{logger: logger}
}

// Emit implements Sink.
func (s *LogSink) Emit(ctx context.Context, ev Event) error {
	fields := []zap.Field{
		zap.String("event", ev.Name),
		zap.Time("event_time", ev.Time),
	}
	if ev.Err != "" {
		fields = append(fields, zap.String("error", ev.Err))
	}
	for k, v := range ev.Attrs {
		fields = append(fields, zap.Any(k, v))
	}

	switch ev.Level {
	case LevelError:
		s.logger.Error(ctx, "event", fields...)
	case LevelWarn:
		s.logger.Warn(ctx, "event", fields...)
	default:
		s.logger.Info(ctx, "event", fields...)
	}
	return nil
}

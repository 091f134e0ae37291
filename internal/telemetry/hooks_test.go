package telemetry

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap/zapcore"

	"github.com/fyrsmithlabs/docrag/internal/logging"
)

type failingSink struct{}

func (failingSink) Emit(context.Context, Event) error { return errors.New("broker down") }

type panickingSink struct{}

func (panickingSink) Emit(context.Context, Event) error { panic("boom") }

func TestHooks_StartEnd(t *testing.T) {
	tt := NewTestTelemetry()
	hooks := NewHooks(tt.Tracer("test"), logging.NewNop())

	_, span := hooks.Start(context.Background(), "answer.question", attribute.Int("question.length", 12))
	span.End(nil, attribute.Bool("used_context", true), attribute.Int("context_length", 420))

	tt.AssertSpanExists(t, "answer.question")
	tt.AssertSpanAttribute(t, "answer.question", "question.length", int64(12))
	tt.AssertSpanAttribute(t, "answer.question", "used_context", true)
	tt.AssertSpanAttribute(t, "answer.question", "context_length", int64(420))
	assert.Equal(t, codes.Ok, tt.SpanByName("answer.question").Status().Code)
}

func TestHooks_EndRecordsError(t *testing.T) {
	tt := NewTestTelemetry()
	hooks := NewHooks(tt.Tracer("test"), logging.NewNop())

	_, span := hooks.Start(context.Background(), "ingest.document")
	span.End(errors.New("store unavailable"))

	recorded := tt.SpanByName("ingest.document")
	require.NotNil(t, recorded)
	assert.Equal(t, codes.Error, recorded.Status().Code)
	assert.Equal(t, "store unavailable", recorded.Status().Description)
}

func TestHooks_RecoverableEmitsEventWithCorrelation(t *testing.T) {
	tt := NewTestTelemetry()
	sink := &RecordingSink{}
	hooks := NewHooks(tt.Tracer("test"), logging.NewNop(), sink)

	ctx := logging.WithRequestID(context.Background(), "req-42")
	ctx, span := hooks.Start(ctx, "ingest.document")
	hooks.Recoverable(ctx, "embedding.failed", errors.New("timeout"), attribute.Int("chunk.index", 3))
	span.End(nil)

	events := sink.Named("embedding.failed")
	require.Len(t, events, 1)
	ev := events[0]
	assert.Equal(t, LevelWarn, ev.Level)
	assert.Equal(t, "timeout", ev.Err)
	assert.Equal(t, "req-42", ev.RequestID)
	assert.NotEmpty(t, ev.TraceID)
	assert.Equal(t, int64(3), ev.Attrs["chunk.index"])
	assert.False(t, ev.Time.IsZero())

	recorded := tt.SpanByName("ingest.document")
	require.NotNil(t, recorded)
	require.Len(t, recorded.Events(), 1)
	assert.Equal(t, "embedding.failed", recorded.Events()[0].Name)
}

func TestHooks_SinkFailuresAreAbsorbed(t *testing.T) {
	sink := &RecordingSink{}
	logger := logging.NewTestLogger()
	hooks := NewHooks(nil, logger.Logger, failingSink{}, panickingSink{}, sink)

	assert.NotPanics(t, func() {
		hooks.Emit(context.Background(), Event{Name: "ingest.completed"})
	})

	assert.Len(t, sink.Events(), 1, "later sinks still receive the event")
	assert.Equal(t, LevelInfo, sink.Events()[0].Level)
	assert.Len(t, logger.FilterMessage("event sink failed").All(), 2)
}

func TestHooks_NilIsNoop(t *testing.T) {
	var hooks *Hooks
	var reporter Reporter = hooks

	assert.NotPanics(t, func() {
		ctx, span := hooks.Start(context.Background(), "x")
		assert.Nil(t, span)
		span.End(errors.New("ignored"))
		hooks.Emit(ctx, Event{Name: "x"})
		reporter.Recoverable(ctx, "x", nil)
	})
}

func TestLogSink_LevelMapping(t *testing.T) {
	logger := logging.NewTestLogger()
	sink := NewLogSink(logger.Logger)
	ctx := context.Background()

	require.NoError(t, sink.Emit(ctx, Event{Name: "retrieval.failed", Level: LevelWarn, Err: "qdrant down"}))
	require.NoError(t, sink.Emit(ctx, Event{Name: "ingest.completed", Level: LevelInfo, Attrs: map[string]interface{}{"chunks": 4}}))

	logger.AssertLogged(t, zapcore.WarnLevel, "event")
	logger.AssertField(t, "event", "error", "qdrant down")

	entries := logger.All()
	require.Len(t, entries, 2)
	assert.Equal(t, "ingest.completed", entries[1].ContextMap()["event"])
	assert.Equal(t, int64(4), entries[1].ContextMap()["chunks"])
}

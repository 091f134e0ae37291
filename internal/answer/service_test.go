package answer

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/docrag/internal/embeddings"
	"github.com/fyrsmithlabs/docrag/internal/generation"
	"github.com/fyrsmithlabs/docrag/internal/logging"
	"github.com/fyrsmithlabs/docrag/internal/prompts"
	"github.com/fyrsmithlabs/docrag/internal/telemetry"
	"github.com/fyrsmithlabs/docrag/internal/vectorstore"
)

type stubEmbedder struct{ empty bool }

func (s stubEmbedder) Embed(context.Context, string) embeddings.Vector {
	if s.empty {
		return embeddings.Empty
	}
	return embeddings.Vector{0.5, 0.5}
}

func (stubEmbedder) Dimension() int { return 2 }

type stubStore struct {
	matches []vectorstore.Match
	err     error
	topK    int
}

func (s *stubStore) Upsert(context.Context, []vectorstore.Record) (int, error) { return 0, nil }

func (s *stubStore) Query(_ context.Context, _ []float32, topK int) ([]vectorstore.Match, error) {
	s.topK = topK
	return s.matches, s.err
}

func (s *stubStore) EnsureCollection(context.Context) error { return nil }

func (s *stubStore) Close() error { return nil }

type recordingGenerator struct {
	reply  string
	err    error
	calls  int
	prompt generation.Prompt
}

func (g *recordingGenerator) Generate(ctx context.Context, p generation.Prompt) (string, error) {
	g.calls++
	g.prompt = p
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return g.reply, g.err
}

type staticPrompt string

func (p staticPrompt) SystemPrompt(context.Context) string { return string(p) }

func match(text, source string, idx int, score float32) vectorstore.Match {
	return vectorstore.Match{
		ID:       vectorstore.RecordID(source, idx),
		Score:    score,
		Metadata: vectorstore.Metadata{Text: text, Source: source, ChunkIndex: idx},
	}
}

func newService(t *testing.T, store *stubStore, gen *recordingGenerator, mutate func(*Deps)) *Service {
	t.Helper()
	deps := Deps{
		Embedder:  stubEmbedder{},
		Vectors:   store,
		Generator: gen,
		Prompts:   staticPrompt("answer from context"),
	}
	if mutate != nil {
		mutate(&deps)
	}
	svc, err := NewService(0, deps)
	require.NoError(t, err)
	return svc
}

func TestAnswer_WithContext(t *testing.T) {
	store := &stubStore{matches: []vectorstore.Match{
		match("Paris is the capital of France.", "1-geo.txt", 0, 0.9),
		match("The Seine flows through Paris.", "1-geo.txt", 1, 0.7),
	}}
	gen := &recordingGenerator{reply: "Paris."}
	svc := newService(t, store, gen, nil)

	res, err := svc.Answer(context.Background(), "  What is the capital of France?  ")
	require.NoError(t, err)

	assert.Equal(t, "Paris.", res.Answer)
	assert.True(t, res.UsedContext)
	want := "Paris is the capital of France.\n\nThe Seine flows through Paris."
	assert.Equal(t, len(want), res.ContextLength)
	require.Len(t, res.Sources, 2)
	assert.Equal(t, Source{Path: "1-geo.txt", ChunkIndex: 1, Score: 0.7}, res.Sources[1])

	assert.Equal(t, DefaultTopK, store.topK)
	assert.Equal(t, want, gen.prompt.Context)
	assert.Equal(t, "What is the capital of France?", gen.prompt.Question)
	assert.Equal(t, "answer from context", gen.prompt.System)
}

func TestAnswer_NoMatchesRefuses(t *testing.T) {
	gen := &recordingGenerator{reply: "made up"}
	svc := newService(t, &stubStore{}, gen, nil)

	res, err := svc.Answer(context.Background(), "anything?")
	require.NoError(t, err)
	assert.Equal(t, RefusalAnswer, res.Answer)
	assert.False(t, res.UsedContext)
	assert.Zero(t, res.ContextLength)
	assert.Zero(t, gen.calls, "generation is skipped without context")
}

func TestAnswer_BlankMatchesRefuse(t *testing.T) {
	store := &stubStore{matches: []vectorstore.Match{match("   ", "a", 0, 0.1)}}
	gen := &recordingGenerator{reply: "x"}
	svc := newService(t, store, gen, nil)

	res, err := svc.Answer(context.Background(), "q")
	require.NoError(t, err)
	assert.Equal(t, RefusalAnswer, res.Answer)
	assert.Zero(t, gen.calls)
}

func TestAnswer_EmptyQuestionEmbeddingRefuses(t *testing.T) {
	store := &stubStore{matches: []vectorstore.Match{match("text", "a", 0, 1)}}
	gen := &recordingGenerator{reply: "x"}
	svc := newService(t, store, gen, func(d *Deps) { d.Embedder = stubEmbedder{empty: true} })

	res, err := svc.Answer(context.Background(), "q")
	require.NoError(t, err)
	assert.Equal(t, RefusalAnswer, res.Answer)
	assert.Zero(t, store.topK, "store is not queried")
}

func TestAnswer_StoreErrorDegrades(t *testing.T) {
	sink := &telemetry.RecordingSink{}
	store := &stubStore{err: vectorstore.ErrStoreQuery}
	gen := &recordingGenerator{reply: "x"}
	svc := newService(t, store, gen, func(d *Deps) {
		d.Reporter = telemetry.NewHooks(nil, logging.NewNop(), sink)
	})

	res, err := svc.Answer(context.Background(), "q")
	require.NoError(t, err)
	assert.Equal(t, RefusalAnswer, res.Answer)
	assert.False(t, res.UsedContext)

	events := sink.Named(EventRetrievalFailed)
	require.Len(t, events, 1)
	assert.Equal(t, telemetry.LevelWarn, events[0].Level)
}

func TestAnswer_GenerationFailures(t *testing.T) {
	tests := []struct {
		name string
		gen  *recordingGenerator
	}{
		{"error", &recordingGenerator{err: errors.New("upstream 503")}},
		{"blank reply", &recordingGenerator{reply: " \n "}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &stubStore{matches: []vectorstore.Match{match("ctx", "a", 0, 1)}}
			svc := newService(t, store, tt.gen, nil)

			res, err := svc.Answer(context.Background(), "q")
			require.NoError(t, err)
			assert.Equal(t, FallbackAnswer, res.Answer)
			assert.True(t, res.UsedContext)
			assert.Equal(t, 3, res.ContextLength)
		})
	}
}

func TestAnswer_CancellationReachesGeneration(t *testing.T) {
	store := &stubStore{matches: []vectorstore.Match{match("ctx", "a", 0, 1)}}
	gen := &recordingGenerator{reply: "never"}
	svc := newService(t, store, gen, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := svc.Answer(ctx, "q")
	require.NoError(t, err)
	assert.Equal(t, 1, gen.calls)
	assert.Equal(t, FallbackAnswer, res.Answer)
}

func TestAnswer_BlankQuestion(t *testing.T) {
	svc := newService(t, &stubStore{}, &recordingGenerator{}, nil)

	for _, q := range []string{"", "   ", "\n\t"} {
		_, err := svc.Answer(context.Background(), q)
		assert.ErrorIs(t, err, ErrInvalidRequest)
	}
}

func TestAnswer_SystemPromptDefaultsToFallback(t *testing.T) {
	tests := []struct {
		name    string
		prompts prompts.Provider
	}{
		{name: "no provider", prompts: nil},
		{name: "blank prompt", prompts: staticPrompt("  \n")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &stubStore{matches: []vectorstore.Match{match("refunds within 30 days", "a", 0, 1)}}
			gen := &recordingGenerator{reply: "ok"}
			svc := newService(t, store, gen, func(d *Deps) { d.Prompts = tt.prompts })

			_, err := svc.Answer(context.Background(), "What is the refund policy?")
			require.NoError(t, err)
			assert.Equal(t, prompts.FallbackSystemPrompt, gen.prompt.System)
		})
	}
}

func TestAnswer_AgainstChromem(t *testing.T) {
	chromem, err := vectorstore.NewChromemStore(vectorstore.ChromemConfig{CollectionName: "docs", VectorSize: 2}, nil)
	require.NoError(t, err)
	_, err = chromem.Upsert(context.Background(), []vectorstore.Record{
		{ID: "p-0", Values: []float32{0.5, 0.5}, Metadata: vectorstore.Metadata{Text: "alpha", Source: "p", ChunkIndex: 0}},
	})
	require.NoError(t, err)

	gen := &recordingGenerator{reply: "alpha it is"}
	svc, err := NewService(3, Deps{Embedder: stubEmbedder{}, Vectors: chromem, Generator: gen})
	require.NoError(t, err)

	res, err := svc.Answer(context.Background(), "which?")
	require.NoError(t, err)
	assert.Equal(t, "alpha it is", res.Answer)
	assert.Equal(t, "alpha", gen.prompt.Context)
	require.Len(t, res.Sources, 1)
	assert.Equal(t, "p", res.Sources[0].Path)
}

func TestNewService_RequiresDeps(t *testing.T) {
	_, err := NewService(5, Deps{})
	assert.Error(t, err)
}

func TestWithObservability(t *testing.T) {
	tt := telemetry.NewTestTelemetry()
	hooks := telemetry.NewHooks(tt.Tracer("test"), logging.NewNop())

	store := &stubStore{matches: []vectorstore.Match{match("ctx", "a", 0, 1)}}
	svc := WithObservability(newService(t, store, &recordingGenerator{reply: "ok"}, nil), hooks)

	_, err := svc.Answer(context.Background(), "q")
	require.NoError(t, err)
	tt.AssertSpanAttribute(t, "answer.question", "used_context", true)
	tt.AssertSpanAttribute(t, "answer.question", "context_length", int64(3))

	_, err = svc.Answer(context.Background(), " ")
	require.ErrorIs(t, err, ErrInvalidRequest)
}

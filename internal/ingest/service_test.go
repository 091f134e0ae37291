package ingest

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/docrag/internal/embeddings"
	"github.com/fyrsmithlabs/docrag/internal/extraction"
	"github.com/fyrsmithlabs/docrag/internal/logging"
	"github.com/fyrsmithlabs/docrag/internal/metadata"
	"github.com/fyrsmithlabs/docrag/internal/secrets"
	"github.com/fyrsmithlabs/docrag/internal/storage"
	"github.com/fyrsmithlabs/docrag/internal/telemetry"
	"github.com/fyrsmithlabs/docrag/internal/vectorstore"
)

const testDim = 4

type extractFunc func(ctx context.Context, filename, contentType string, data []byte) (string, error)

func (f extractFunc) Extract(ctx context.Context, filename, contentType string, data []byte) (string, error) {
	return f(ctx, filename, contentType, data)
}

// passthrough treats the upload bytes as the extracted text.
var passthrough = extractFunc(func(_ context.Context, _, _ string, data []byte) (string, error) {
	return string(data), nil
})

type fakeEmbedder struct {
	fail     func(text string) bool
	onEmbed  func(ctx context.Context)
	inFlight atomic.Int32
	peak     atomic.Int32
	delay    time.Duration
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) embeddings.Vector {
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		p := f.peak.Load()
		if n <= p || f.peak.CompareAndSwap(p, n) {
			break
		}
	}
	if f.onEmbed != nil {
		f.onEmbed(ctx)
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.fail != nil && f.fail(text) {
		return embeddings.Empty
	}
	return embeddings.Vector{1, 0, 0, 0}
}

func (f *fakeEmbedder) Dimension() int { return testDim }

type recordingStore struct {
	mu        sync.Mutex
	records   []vectorstore.Record
	calls     int
	err       error
	deleted   []string
	deleteErr error
}

func (s *recordingStore) Upsert(_ context.Context, records []vectorstore.Record) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return 0, s.err
	}
	s.records = append(s.records, records...)
	return len(records), nil
}

func (s *recordingStore) Query(context.Context, []float32, int) ([]vectorstore.Match, error) {
	return nil, nil
}

func (s *recordingStore) Delete(_ context.Context, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.deleteErr != nil {
		return s.deleteErr
	}
	s.deleted = append(s.deleted, ids...)
	s.records = slices.DeleteFunc(s.records, func(r vectorstore.Record) bool {
		return slices.Contains(ids, r.ID)
	})
	return nil
}

func (s *recordingStore) EnsureCollection(context.Context) error { return nil }

func (s *recordingStore) Close() error { return nil }

type fakeSummarizer struct {
	summary string
	err     error
}

func (f fakeSummarizer) Summarize(context.Context, string) (string, error) {
	return f.summary, f.err
}

type failingObjects struct{}

func (failingObjects) Put(context.Context, string, []byte) error {
	return errors.New("disk full")
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type harness struct {
	svc      *Service
	meta     *metadata.SQLiteStore
	objects  *storage.FileStore
	vectors  *recordingStore
	embedder *fakeEmbedder
	sink     *telemetry.RecordingSink
	clock    *clock
}

func newHarness(t *testing.T, cfg Config, mutate func(*Deps)) *harness {
	t.Helper()
	ctx := context.Background()

	meta, err := metadata.NewSQLiteStore(ctx, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = meta.Close() })

	objects, err := storage.NewFileStore(t.TempDir(), nil)
	require.NoError(t, err)

	h := &harness{
		meta:     meta,
		objects:  objects,
		vectors:  &recordingStore{},
		embedder: &fakeEmbedder{},
		sink:     &telemetry.RecordingSink{},
		clock:    &clock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)},
	}

	deps := Deps{
		Metadata:   meta,
		Objects:    objects,
		Extractor:  passthrough,
		Embedder:   h.embedder,
		Vectors:    h.vectors,
		Summarizer: fakeSummarizer{summary: "A test summary."},
		Reporter:   telemetry.NewHooks(nil, logging.NewNop(), h.sink),
		Now:        h.clock.Now,
	}
	if mutate != nil {
		mutate(&deps)
	}

	h.svc, err = NewService(cfg, deps)
	require.NoError(t, err)
	return h
}

func upload(text string) Upload {
	return Upload{Filename: "report.txt", ContentType: "text/plain", Data: []byte(text)}
}

func TestIngest_ThreeChunks(t *testing.T) {
	h := newHarness(t, DefaultConfig(), nil)

	res, err := h.svc.Ingest(context.Background(), upload(strings.Repeat("a", 2000)))
	require.NoError(t, err)

	path := storage.ObjectPath(h.clock.Now(), "report.txt")
	assert.Equal(t, path, res.StoragePath)
	assert.Equal(t, "report.txt", res.Filename)
	assert.Equal(t, "A test summary.", res.Summary)
	assert.Equal(t, 3, res.Chunks)
	assert.Equal(t, 3, res.Indexed)
	assert.Equal(t, 0, res.Dropped)
	assert.NotEmpty(t, res.DocumentID)

	require.Equal(t, 1, h.vectors.calls, "upsert is a single batch")
	require.Len(t, h.vectors.records, 3)
	for i, r := range h.vectors.records {
		assert.Equal(t, vectorstore.RecordID(path, i), r.ID)
		assert.Equal(t, path, r.Metadata.Source)
		assert.Equal(t, i, r.Metadata.ChunkIndex)
		assert.Len(t, r.Values, testDim)
	}

	raw, err := h.objects.Get(context.Background(), path)
	require.NoError(t, err)
	assert.Len(t, raw, 2000)

	doc, err := h.meta.GetDocument(context.Background(), res.DocumentID)
	require.NoError(t, err)
	assert.Equal(t, path, doc.StoragePath)
	assert.Equal(t, "A test summary.", doc.Summary)

	latest, ok, err := h.meta.LatestUpload(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, latest.Equal(h.clock.Now()))
}

func TestIngest_PartialEmbeddingFailure(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ChunkSize, cfg.ChunkOverlap, cfg.MinTextLength = 10, 0, 1
	h := newHarness(t, cfg, nil)
	h.embedder.fail = func(text string) bool { return strings.HasPrefix(text, "c") }

	text := strings.Repeat("a", 10) + strings.Repeat("b", 10) + strings.Repeat("c", 10) +
		strings.Repeat("d", 10) + strings.Repeat("e", 10)
	res, err := h.svc.Ingest(context.Background(), upload(text))
	require.NoError(t, err)

	assert.Equal(t, 5, res.Chunks)
	assert.Equal(t, 4, res.Indexed)
	assert.Equal(t, 1, res.Dropped)

	require.Len(t, h.vectors.records, 4)
	var indexes []int
	for _, r := range h.vectors.records {
		indexes = append(indexes, r.Metadata.ChunkIndex)
	}
	assert.Equal(t, []int{0, 1, 3, 4}, indexes, "survivors keep chunk order")

	dropped := h.sink.Named(EventChunkDropped)
	require.Len(t, dropped, 1)
	assert.Equal(t, int64(2), dropped[0].Attrs["chunk.index"])
	assert.Len(t, h.sink.Events(), 1)
}

func TestIngest_AllEmbeddingsFail(t *testing.T) {
	h := newHarness(t, DefaultConfig(), nil)
	h.embedder.fail = func(string) bool { return true }

	_, err := h.svc.Ingest(context.Background(), upload(strings.Repeat("x", 2000)))
	require.ErrorIs(t, err, ErrNoValidVectors)

	assert.Zero(t, h.vectors.calls, "nothing is upserted")

	docs, err := h.meta.ListDocuments(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, docs)

	_, ok, err := h.meta.LatestUpload(context.Background())
	require.NoError(t, err)
	assert.False(t, ok, "a failed ingestion does not count against the rate limit")
}

func TestIngest_RateLimit(t *testing.T) {
	h := newHarness(t, DefaultConfig(), nil)
	doc := upload(strings.Repeat("rate limited text ", 10))

	_, err := h.svc.Ingest(context.Background(), doc)
	require.NoError(t, err)

	h.clock.Advance(30 * time.Second)
	_, err = h.svc.Ingest(context.Background(), doc)
	require.ErrorIs(t, err, ErrRateLimited)

	var rl *RateLimitError
	require.True(t, errors.As(err, &rl))
	assert.Equal(t, 30*time.Second, rl.RetryAfter)
	assert.Equal(t, 30, rl.RetryAfterSeconds())
	assert.Equal(t, 1, h.vectors.calls, "rate-limited request has no side effects")

	h.clock.Advance(31 * time.Second)
	_, err = h.svc.Ingest(context.Background(), doc)
	require.NoError(t, err)
	assert.Equal(t, 2, h.vectors.calls)
}

func TestIngest_InvalidRequest(t *testing.T) {
	h := newHarness(t, DefaultConfig(), nil)

	tests := []struct {
		name string
		up   Upload
	}{
		{"no filename", Upload{Data: []byte("data")}},
		{"blank filename", Upload{Filename: "  ", Data: []byte("data")}},
		{"no data", Upload{Filename: "a.txt"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.svc.Ingest(context.Background(), tt.up)
			assert.ErrorIs(t, err, ErrInvalidRequest)
		})
	}
}

func TestIngest_InsufficientText(t *testing.T) {
	h := newHarness(t, DefaultConfig(), nil)

	// 49 non-space characters padded with whitespace.
	text := strings.Repeat("a ", 49) + "\n\n\t"
	_, err := h.svc.Ingest(context.Background(), upload(text))
	require.ErrorIs(t, err, ErrExtractionInsufficient)
	assert.Zero(t, h.vectors.calls)
}

func TestIngest_ExtractionFailure(t *testing.T) {
	h := newHarness(t, DefaultConfig(), func(d *Deps) {
		d.Extractor = extractFunc(func(context.Context, string, string, []byte) (string, error) {
			return "", extraction.ErrUnsupportedFormat
		})
	})

	_, err := h.svc.Ingest(context.Background(), Upload{Filename: "a.exe", Data: []byte{1, 2}})
	require.ErrorIs(t, err, ErrExtractionInsufficient)
	assert.ErrorIs(t, err, extraction.ErrUnsupportedFormat)
}

func TestIngest_StorageFailure(t *testing.T) {
	h := newHarness(t, DefaultConfig(), func(d *Deps) { d.Objects = failingObjects{} })

	_, err := h.svc.Ingest(context.Background(), upload(strings.Repeat("a", 100)))
	require.ErrorIs(t, err, ErrStorageUpload)
	assert.Zero(t, h.vectors.calls)
}

func TestIngest_UpsertFailure(t *testing.T) {
	h := newHarness(t, DefaultConfig(), nil)
	h.vectors.err = vectorstore.ErrStoreWrite

	_, err := h.svc.Ingest(context.Background(), upload(strings.Repeat("a", 100)))
	require.ErrorIs(t, err, ErrStoreWrite)
	assert.ErrorIs(t, err, vectorstore.ErrStoreWrite)

	docs, err := h.meta.ListDocuments(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, docs, "metadata is written only after a successful upsert")
}

func TestIngest_MetadataWriteFailure(t *testing.T) {
	h := newHarness(t, DefaultConfig(), nil)
	h.svc.deps.Metadata = commitFailStore{Store: h.meta}

	_, err := h.svc.Ingest(context.Background(), upload(strings.Repeat("a", 100)))
	require.ErrorIs(t, err, ErrMetadataWrite)
	assert.Equal(t, 1, h.vectors.calls)

	assert.Empty(t, h.vectors.records, "vectors of an uncommitted document are removed")
	require.Len(t, h.vectors.deleted, 1)
	assert.Equal(t, vectorstore.RecordID(storage.ObjectPath(h.clock.Now(), "report.txt"), 0), h.vectors.deleted[0])
	assert.Empty(t, h.sink.Named(EventRollbackFailed))
}

func TestIngest_MetadataWriteFailureRollbackFails(t *testing.T) {
	h := newHarness(t, DefaultConfig(), nil)
	h.svc.deps.Metadata = commitFailStore{Store: h.meta}
	h.vectors.deleteErr = errors.New("qdrant unavailable")

	_, err := h.svc.Ingest(context.Background(), upload(strings.Repeat("a", 100)))
	require.ErrorIs(t, err, ErrMetadataWrite)
	assert.Len(t, h.vectors.records, 1)
	assert.Len(t, h.sink.Named(EventRollbackFailed), 1)
}

type commitFailStore struct {
	metadata.Store
}

func (commitFailStore) CommitIngestion(context.Context, metadata.Document) (metadata.Document, error) {
	return metadata.Document{}, errors.New("constraint violation")
}

func TestIngest_SummaryFailure(t *testing.T) {
	h := newHarness(t, DefaultConfig(), func(d *Deps) {
		d.Summarizer = fakeSummarizer{err: errors.New("quota exceeded")}
	})

	res, err := h.svc.Ingest(context.Background(), upload(strings.Repeat("a", 100)))
	require.NoError(t, err)
	assert.Equal(t, metadata.SummaryUnavailable, res.Summary)

	events := h.sink.Named(EventSummaryFailed)
	require.Len(t, events, 1)
	assert.Equal(t, "quota exceeded", events[0].Err)

	pending, err := h.meta.PendingSummaries(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, res.DocumentID, pending[0].ID)
}

func TestIngest_BlankSummaryUsesSentinel(t *testing.T) {
	h := newHarness(t, DefaultConfig(), func(d *Deps) {
		d.Summarizer = fakeSummarizer{summary: "   "}
	})

	res, err := h.svc.Ingest(context.Background(), upload(strings.Repeat("a", 100)))
	require.NoError(t, err)
	assert.Equal(t, metadata.SummaryUnavailable, res.Summary)
}

func TestIngest_DetachedFromClientCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var embedCtxErr atomic.Value
	h := newHarness(t, DefaultConfig(), func(d *Deps) {
		d.Extractor = extractFunc(func(_ context.Context, _, _ string, data []byte) (string, error) {
			cancel()
			return string(data), nil
		})
	})
	h.embedder.onEmbed = func(ctx context.Context) {
		if err := ctx.Err(); err != nil {
			embedCtxErr.Store(err)
		}
	}

	res, err := h.svc.Ingest(ctx, upload(strings.Repeat("a", 100)))
	require.NoError(t, err)
	assert.Equal(t, 1, res.Indexed)
	assert.Nil(t, embedCtxErr.Load())
	require.Error(t, ctx.Err())
}

func TestIngest_Timeout(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Timeout = 20 * time.Millisecond
	h := newHarness(t, cfg, func(d *Deps) {
		d.Extractor = extractFunc(func(ctx context.Context, _, _ string, _ []byte) (string, error) {
			<-ctx.Done()
			return "", ctx.Err()
		})
	})

	_, err := h.svc.Ingest(context.Background(), upload("anything"))
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.ErrorIs(t, err, ErrExtractionInsufficient)
}

func TestIngest_BoundedConcurrency(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ChunkSize, cfg.ChunkOverlap, cfg.MinTextLength, cfg.EmbedConcurrency = 10, 0, 1, 3
	h := newHarness(t, cfg, nil)
	h.embedder.delay = 5 * time.Millisecond

	res, err := h.svc.Ingest(context.Background(), upload(strings.Repeat("z", 200)))
	require.NoError(t, err)
	assert.Equal(t, 20, res.Indexed)
	assert.LessOrEqual(t, h.embedder.peak.Load(), int32(3))
}

func TestIngest_IdempotentReingest(t *testing.T) {
	store, err := vectorstore.NewChromemStore(vectorstore.ChromemConfig{CollectionName: "docs", VectorSize: testDim}, nil)
	require.NoError(t, err)

	cfg := DefaultConfig()
	cfg.Cooldown = 0
	h := newHarness(t, cfg, func(d *Deps) { d.Vectors = vectorstore.NewGuard(store, testDim) })

	doc := upload(strings.Repeat("b", 2000))
	_, err = h.svc.Ingest(context.Background(), doc)
	require.NoError(t, err)
	_, err = h.svc.Ingest(context.Background(), doc)
	require.NoError(t, err)

	assert.Equal(t, 3, store.Count(), "same path and chunk index overwrite")
}

type replaceScrubber struct{}

func (replaceScrubber) Scrub(content string) *secrets.Result {
	out := strings.ReplaceAll(content, "hunter2hunter2", secrets.Marker("generic-api-key"))
	n := strings.Count(content, "hunter2hunter2")
	res := &secrets.Result{Scrubbed: out, TotalFindings: n, ByRule: map[string]int{}}
	if n > 0 {
		res.ByRule["generic-api-key"] = n
	}
	return res
}

func (replaceScrubber) IsEnabled() bool { return true }

func TestIngest_RedactsBeforeIndexing(t *testing.T) {
	h := newHarness(t, DefaultConfig(), func(d *Deps) { d.Scrubber = replaceScrubber{} })

	text := "The staging password is hunter2hunter2 and must be rotated every quarter."
	res, err := h.svc.Ingest(context.Background(), upload(text))
	require.NoError(t, err)

	for _, r := range h.vectors.records {
		assert.NotContains(t, r.Metadata.Text, "hunter2")
	}
	doc, err := h.meta.GetDocument(context.Background(), res.DocumentID)
	require.NoError(t, err)
	assert.Contains(t, doc.RawText, "[REDACTED:generic-api-key]")
}

func TestNewService_Validation(t *testing.T) {
	_, err := NewService(Config{ChunkSize: 10, ChunkOverlap: 10}, Deps{})
	assert.Error(t, err)

	_, err = NewService(DefaultConfig(), Deps{})
	assert.Error(t, err)
}

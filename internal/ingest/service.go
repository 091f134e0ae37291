// Package ingest turns an uploaded document into indexed chunk vectors and
// a document record.
//
// Ingest runs a fixed sequence: validate, rate-limit check, extract,
// redact, store raw, then summarize concurrently with chunk embedding,
// upsert, and finally commit the document and upload log together. Once
// the rate-limit check passes the pipeline runs to a terminal state even
// if the caller goes away.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/fyrsmithlabs/docrag/internal/chunker"
	"github.com/fyrsmithlabs/docrag/internal/config"
	"github.com/fyrsmithlabs/docrag/internal/embeddings"
	"github.com/fyrsmithlabs/docrag/internal/extraction"
	"github.com/fyrsmithlabs/docrag/internal/generation"
	"github.com/fyrsmithlabs/docrag/internal/logging"
	"github.com/fyrsmithlabs/docrag/internal/metadata"
	"github.com/fyrsmithlabs/docrag/internal/secrets"
	"github.com/fyrsmithlabs/docrag/internal/storage"
	"github.com/fyrsmithlabs/docrag/internal/telemetry"
	"github.com/fyrsmithlabs/docrag/internal/vectorstore"
)

// Recoverable event names.
const (
	EventChunkDropped   = "ingest.chunk_dropped"
	EventSummaryFailed  = "ingest.summary_failed"
	EventRollbackFailed = "ingest.rollback_failed"
)

// Upload is one file submitted for ingestion.
type Upload struct {
	Filename    string
	ContentType string
	Data        []byte
}

// Result describes a completed ingestion.
type Result struct {
	DocumentID  string `json:"document_id"`
	Filename    string `json:"filename"`
	StoragePath string `json:"path"`
	Summary     string `json:"summary"`
	Chunks      int    `json:"chunks"`
	Indexed     int    `json:"indexed"`
	Dropped     int    `json:"dropped"`
}

// Ingester is the ingestion entry point used by transports.
type Ingester interface {
	Ingest(ctx context.Context, up Upload) (*Result, error)
}

// Config controls the pipeline.
type Config struct {
	ChunkSize        int
	ChunkOverlap     int
	Cooldown         time.Duration
	MinTextLength    int
	EmbedConcurrency int
	Timeout          time.Duration
}

// DefaultConfig returns the pipeline defaults.
func DefaultConfig() Config {
	return Config{
		ChunkSize:        chunker.DefaultSize,
		ChunkOverlap:     chunker.DefaultOverlap,
		Cooldown:         60 * time.Second,
		MinTextLength:    50,
		EmbedConcurrency: 4,
		Timeout:          5 * time.Minute,
	}
}

// ConfigFromSettings converts the ingest config section.
func ConfigFromSettings(s config.IngestConfig) Config {
	return Config{
		ChunkSize:        s.ChunkSize,
		ChunkOverlap:     s.ChunkOverlap,
		Cooldown:         s.Cooldown.Duration(),
		MinTextLength:    s.MinTextLength,
		EmbedConcurrency: s.EmbedConcurrency,
		Timeout:          s.Timeout.Duration(),
	}
}

// Deps are the collaborators of the pipeline. Scrubber, Reporter and
// Logger are optional.
type Deps struct {
	Metadata   metadata.Store
	Objects    storage.ObjectStore
	Extractor  extraction.Extractor
	Embedder   embeddings.Embedder
	Vectors    vectorstore.Store
	Summarizer generation.Summarizer
	Scrubber   secrets.Scrubber
	Reporter   telemetry.Reporter
	Logger     *zap.Logger

	// Now overrides the clock.
	Now func() time.Time
}

// Service runs the ingestion pipeline.
type Service struct {
	cfg     Config
	deps    Deps
	chunker *chunker.Chunker
	logger  *zap.Logger
	now     func() time.Time
}

var _ Ingester = (*Service)(nil)

// NewService validates cfg and deps.
func NewService(cfg Config, deps Deps) (*Service, error) {
	ch, err := chunker.New(cfg.ChunkSize, cfg.ChunkOverlap)
	if err != nil {
		return nil, err
	}
	switch {
	case deps.Metadata == nil:
		return nil, errors.New("ingest: metadata store required")
	case deps.Objects == nil:
		return nil, errors.New("ingest: object store required")
	case deps.Extractor == nil:
		return nil, errors.New("ingest: extractor required")
	case deps.Embedder == nil:
		return nil, errors.New("ingest: embedder required")
	case deps.Vectors == nil:
		return nil, errors.New("ingest: vector store required")
	case deps.Summarizer == nil:
		return nil, errors.New("ingest: summarizer required")
	}
	if cfg.EmbedConcurrency <= 0 {
		cfg.EmbedConcurrency = 1
	}
	if deps.Scrubber == nil {
		deps.Scrubber = secrets.NoopScrubber{}
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	return &Service{cfg: cfg, deps: deps, chunker: ch, logger: logger, now: now}, nil
}

// Ingest implements Ingester.
func (s *Service) Ingest(ctx context.Context, up Upload) (res *Result, err error) {
	start := time.Now()
	defer func() {
		status := "success"
		if err != nil {
			status = Reason(err)
		}
		DocumentsTotal.WithLabelValues(status).Inc()
		Duration.Observe(time.Since(start).Seconds())
	}()

	if strings.TrimSpace(up.Filename) == "" || len(up.Data) == 0 {
		return nil, fmt.Errorf("%w: file is required", ErrInvalidRequest)
	}

	now := s.now()
	if err := s.checkRateLimit(ctx, now); err != nil {
		return nil, err
	}

	// Past this point the pipeline ignores client cancellation.
	ctx = context.WithoutCancel(ctx)
	if s.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.Timeout)
		defer cancel()
	}

	return s.run(ctx, up, now)
}

func (s *Service) checkRateLimit(ctx context.Context, now time.Time) error {
	if s.cfg.Cooldown <= 0 {
		return nil
	}
	latest, ok, err := s.deps.Metadata.LatestUpload(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMetadataRead, err)
	}
	if !ok {
		return nil
	}
	if elapsed := now.Sub(latest); elapsed < s.cfg.Cooldown {
		return &RateLimitError{RetryAfter: s.cfg.Cooldown - elapsed}
	}
	return nil
}

func (s *Service) run(ctx context.Context, up Upload, now time.Time) (*Result, error) {
	text, err := s.extract(ctx, up)
	if err != nil {
		return nil, err
	}

	if s.deps.Scrubber.IsEnabled() {
		scrubbed := s.deps.Scrubber.Scrub(text)
		if scrubbed.HasFindings() {
			s.logger.Info("redacted secrets from document",
				zap.String("filename", up.Filename),
				zap.Int("findings", scrubbed.TotalFindings),
				zap.Strings("rules", scrubbed.RuleIDs()))
		}
		text = scrubbed.Scrubbed
	}

	path := storage.ObjectPath(now, up.Filename)
	ctx = logging.WithDocumentPath(ctx, path)
	if err := s.deps.Objects.Put(ctx, path, up.Data); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageUpload, err)
	}

	summaryCh := make(chan string, 1)
	go func() {
		summaryCh <- s.summarize(ctx, text)
	}()

	chunks := chunker.Collect(s.chunker.Chunks(text))
	records, dropped := s.embedChunks(ctx, chunks, path)
	ChunksTotal.WithLabelValues("indexed").Add(float64(len(records)))
	ChunksTotal.WithLabelValues("dropped").Add(float64(dropped))

	if len(records) == 0 {
		return nil, fmt.Errorf("%w: all %d chunks failed to embed", ErrNoValidVectors, len(chunks))
	}

	indexed, err := s.deps.Vectors.Upsert(ctx, records)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStoreWrite, err)
	}

	summary := <-summaryCh

	doc, err := s.deps.Metadata.CommitIngestion(ctx, metadata.Document{
		Filename:    up.Filename,
		RawText:     text,
		Summary:     summary,
		StoragePath: path,
		CreatedAt:   now,
	})
	if err != nil {
		s.rollbackVectors(ctx, records)
		return nil, fmt.Errorf("%w: %v", ErrMetadataWrite, err)
	}

	s.logger.Info("document ingested",
		zap.String("document_id", doc.ID),
		zap.String("path", path),
		zap.Int("chunks", len(chunks)),
		zap.Int("indexed", indexed),
		zap.Int("dropped", dropped))

	return &Result{
		DocumentID:  doc.ID,
		Filename:    up.Filename,
		StoragePath: path,
		Summary:     summary,
		Chunks:      len(chunks),
		Indexed:     indexed,
		Dropped:     dropped,
	}, nil
}

func (s *Service) extract(ctx context.Context, up Upload) (string, error) {
	text, err := s.deps.Extractor.Extract(ctx, up.Filename, up.ContentType, up.Data)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrExtractionInsufficient, err)
	}
	if n := nonSpaceLen(text); n < s.cfg.MinTextLength {
		return "", fmt.Errorf("%w: %d characters, need at least %d", ErrExtractionInsufficient, n, s.cfg.MinTextLength)
	}
	return text, nil
}

// summarize never fails; errors become the unavailable sentinel.
func (s *Service) summarize(ctx context.Context, text string) string {
	summary, err := s.deps.Summarizer.Summarize(ctx, text)
	if err == nil && strings.TrimSpace(summary) != "" {
		return summary
	}
	if err == nil {
		err = generation.ErrEmptyResponse
	}
	SummaryFailures.Inc()
	s.report(ctx, EventSummaryFailed, err, attribute.Int("text.length", len(text)))
	return metadata.SummaryUnavailable
}

// embedChunks embeds every chunk on a bounded pool and returns the
// survivors in chunk order.
func (s *Service) embedChunks(ctx context.Context, chunks []chunker.Chunk, path string) ([]vectorstore.Record, int) {
	vectors := make([]embeddings.Vector, len(chunks))

	var g errgroup.Group
	g.SetLimit(s.cfg.EmbedConcurrency)
	for i, c := range chunks {
		g.Go(func() error {
			vectors[i] = s.deps.Embedder.Embed(ctx, c.Text)
			return nil
		})
	}
	_ = g.Wait()

	records := make([]vectorstore.Record, 0, len(chunks))
	dropped := 0
	for i, c := range chunks {
		if vectors[i].IsEmpty() {
			dropped++
			s.report(ctx, EventChunkDropped, nil,
				attribute.Int("chunk.index", c.Index),
				attribute.String("path", path))
			continue
		}
		records = append(records, vectorstore.Record{
			ID:     vectorstore.RecordID(path, c.Index),
			Values: vectors[i],
			Metadata: vectorstore.Metadata{
				Text:       c.Text,
				Source:     path,
				ChunkIndex: c.Index,
			},
		})
	}
	return records, dropped
}

// rollbackVectors removes the records of a document whose metadata commit
// failed, so retrieval never returns chunks of an unlisted document.
func (s *Service) rollbackVectors(ctx context.Context, records []vectorstore.Record) {
	ids := make([]string, len(records))
	for i, r := range records {
		ids[i] = r.ID
	}
	if err := vectorstore.Delete(ctx, s.deps.Vectors, ids); err != nil {
		s.logger.Warn("orphaned vectors left after metadata failure",
			zap.Int("records", len(ids)), zap.Error(err))
		s.report(ctx, EventRollbackFailed, err, attribute.Int("records", len(ids)))
	}
}

func (s *Service) report(ctx context.Context, name string, err error, attrs ...attribute.KeyValue) {
	if s.deps.Reporter != nil {
		s.deps.Reporter.Recoverable(ctx, name, err, attrs...)
	}
}

func nonSpaceLen(s string) int {
	n := 0
	for _, r := range s {
		if !unicode.IsSpace(r) {
			n++
		}
	}
	return n
}

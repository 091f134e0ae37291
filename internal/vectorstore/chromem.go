package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	chromem "github.com/philippgille/chromem-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

var chromemTracer = otel.Tracer("docrag.vectorstore.chromem")

// errPrecomputedOnly is returned if chromem ever tries to embed content itself.
var errPrecomputedOnly = errors.New("chromem collection only accepts precomputed embeddings")

// ChromemConfig holds configuration for the embedded chromem-go index.
type ChromemConfig struct {
	// Path is the directory for persistent storage. Empty keeps the index in memory.
	Path string

	// Compress enables gzip compression for persisted files.
	Compress bool

	// CollectionName is the collection holding chunk vectors.
	CollectionName string

	// VectorSize is the expected embedding dimension.
	VectorSize int
}

// Validate validates the configuration.
func (c ChromemConfig) Validate() error {
	if c.VectorSize <= 0 {
		return fmt.Errorf("%w: vector size must be positive", ErrInvalidConfig)
	}
	return ValidateCollectionName(c.CollectionName)
}

// ChromemStore is a Store backed by an embedded chromem-go database.
type ChromemStore struct {
	db     *chromem.DB
	config ChromemConfig
	logger *zap.Logger

	mu         sync.Mutex
	collection *chromem.Collection
}

// NewChromemStore opens a persistent index under config.Path, or an in-memory
// index when the path is empty.
func NewChromemStore(config ChromemConfig, logger *zap.Logger) (*ChromemStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	var db *chromem.DB
	if config.Path == "" {
		db = chromem.NewDB()
	} else {
		path, err := expandChromemPath(config.Path)
		if err != nil {
			return nil, fmt.Errorf("expanding path: %w", err)
		}
		if err := os.MkdirAll(path, 0o755); err != nil {
			return nil, fmt.Errorf("creating directory %s: %w", path, err)
		}
		db, err = openPersistentChromem(path, config.Compress, logger)
		if err != nil {
			return nil, fmt.Errorf("%w: opening chromem DB: %v", ErrConnectionFailed, err)
		}
		config.Path = path
	}

	return &ChromemStore{db: db, config: config, logger: logger}, nil
}

// EnsureCollection creates the collection if it does not exist.
func (s *ChromemStore) EnsureCollection(ctx context.Context) error {
	_, err := s.getCollection()
	return err
}

func (s *ChromemStore) getCollection() (*chromem.Collection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.collection != nil {
		return s.collection, nil
	}
	c, err := s.db.GetOrCreateCollection(s.config.CollectionName, nil, precomputedOnly)
	if err != nil {
		return nil, fmt.Errorf("creating collection %s: %w", s.config.CollectionName, err)
	}
	s.collection = c
	return c, nil
}

// Upsert stores records with their precomputed embeddings. Existing IDs are overwritten.
func (s *ChromemStore) Upsert(ctx context.Context, records []Record) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}

	ctx, span := chromemTracer.Start(ctx, "ChromemStore.Upsert")
	defer span.End()
	span.SetAttributes(
		attribute.Int("record_count", len(records)),
		attribute.String("collection", s.config.CollectionName),
	)

	collection, err := s.getCollection()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return 0, fmt.Errorf("%w: %v", ErrStoreWrite, err)
	}

	docs := make([]chromem.Document, len(records))
	for i, r := range records {
		docs[i] = chromem.Document{
			ID:        r.ID,
			Content:   r.Metadata.Text,
			Embedding: r.Values,
			Metadata:  toChromemMetadata(r.Metadata),
		}
	}

	if err := collection.AddDocuments(ctx, docs, 1); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return 0, fmt.Errorf("%w: adding %d documents: %v", ErrStoreWrite, len(docs), err)
	}

	span.SetStatus(codes.Ok, "success")
	return len(docs), nil
}

// Query returns up to topK nearest documents by cosine similarity.
func (s *ChromemStore) Query(ctx context.Context, vector []float32, topK int) ([]Match, error) {
	if topK <= 0 {
		return nil, nil
	}

	ctx, span := chromemTracer.Start(ctx, "ChromemStore.Query")
	defer span.End()
	span.SetAttributes(attribute.Int("top_k", topK))

	collection, err := s.getCollection()
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("%w: %v", ErrStoreQuery, err)
	}

	// chromem rejects nResults larger than the collection.
	n := min(topK, collection.Count())
	if n == 0 {
		return []Match{}, nil
	}

	results, err := collection.QueryEmbedding(ctx, vector, n, nil, nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("%w: %v", ErrStoreQuery, err)
	}

	matches := make([]Match, len(results))
	for i, r := range results {
		matches[i] = Match{
			ID:       r.ID,
			Score:    r.Similarity,
			Metadata: fromChromemMetadata(r.Metadata, r.Content),
		}
	}

	span.SetAttributes(attribute.Int("results_count", len(matches)))
	span.SetStatus(codes.Ok, "success")
	return matches, nil
}

// Delete removes the given record IDs.
func (s *ChromemStore) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	ctx, span := chromemTracer.Start(ctx, "ChromemStore.Delete")
	defer span.End()
	span.SetAttributes(attribute.Int("id_count", len(ids)))

	collection, err := s.getCollection()
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("%w: %v", ErrStoreWrite, err)
	}
	if err := collection.Delete(ctx, nil, nil, ids...); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("%w: deleting %d documents: %v", ErrStoreWrite, len(ids), err)
	}
	span.SetStatus(codes.Ok, "success")
	return nil
}

// Count returns the number of stored vectors.
func (s *ChromemStore) Count() int {
	c, err := s.getCollection()
	if err != nil {
		return 0
	}
	return c.Count()
}

// Close releases the store. chromem persists on every write so there is nothing to flush.
func (s *ChromemStore) Close() error {
	return nil
}

// Health always succeeds for the embedded index.
func (s *ChromemStore) Health(ctx context.Context) error {
	return nil
}

func precomputedOnly(ctx context.Context, text string) ([]float32, error) {
	return nil, errPrecomputedOnly
}

func toChromemMetadata(m Metadata) map[string]string {
	return map[string]string{
		payloadSource:     m.Source,
		payloadChunkIndex: strconv.Itoa(m.ChunkIndex),
	}
}

func fromChromemMetadata(md map[string]string, content string) Metadata {
	idx, _ := strconv.Atoi(md[payloadChunkIndex])
	return Metadata{
		Text:       content,
		Source:     md[payloadSource],
		ChunkIndex: idx,
	}
}

// expandChromemPath expands a leading ~ to the user's home directory.
func expandChromemPath(path string) (string, error) {
	if !strings.HasPrefix(path, "~") {
		return filepath.Clean(path), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("getting home directory: %w", err)
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}

package vectorstore

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

var pgTracer = otel.Tracer("docrag.vectorstore.pgvector")

// DefaultPGVectorTable is the table holding chunk vectors.
const DefaultPGVectorTable = "chunk_vectors"

// PGVectorConfig holds configuration for the Postgres pgvector backend.
type PGVectorConfig struct {
	// Table is the table holding chunk vectors.
	Table string

	// VectorSize is the embedding dimension of the vector column.
	VectorSize int

	// Retry controls query retries.
	Retry RetryConfig
}

// Validate validates the configuration.
func (c PGVectorConfig) Validate() error {
	if c.VectorSize <= 0 {
		return fmt.Errorf("%w: vector size must be positive", ErrInvalidConfig)
	}
	return ValidateCollectionName(c.Table)
}

// pgxPool is the subset of *pgxpool.Pool used by PGVectorStore.
type pgxPool interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Ping(ctx context.Context) error
	Close()
}

var _ pgxPool = (*pgxpool.Pool)(nil)

// PGVectorStore is a Store backed by a Postgres table with a vector column.
type PGVectorStore struct {
	pool     pgxPool
	ownsPool bool
	config   PGVectorConfig
	retry    *retrier
	logger   *zap.Logger
}

// NewPGVectorStore uses pool for all statements. When ownsPool is false the
// pool is left open on Close so it can be shared with the metadata store.
func NewPGVectorStore(pool *pgxpool.Pool, ownsPool bool, config PGVectorConfig, logger *zap.Logger) (*PGVectorStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("%w: pgvector requires a database pool", ErrInvalidConfig)
	}
	return newPGVectorStore(pool, ownsPool, config, logger)
}

func newPGVectorStore(pool pgxPool, ownsPool bool, config PGVectorConfig, logger *zap.Logger) (*PGVectorStore, error) {
	if config.Table == "" {
		config.Table = DefaultPGVectorTable
	}
	if config.Retry == (RetryConfig{}) {
		config.Retry = DefaultRetryConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PGVectorStore{
		pool:     pool,
		ownsPool: ownsPool,
		config:   config,
		retry:    newRetrier(config.Retry),
		logger:   logger,
	}, nil
}

func (s *PGVectorStore) schemaStatements() []string {
	t := s.config.Table
	return []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	id          TEXT PRIMARY KEY,
	embedding   vector(%d) NOT NULL,
	text        TEXT NOT NULL,
	source      TEXT NOT NULL,
	chunk_index INTEGER NOT NULL
)`, t, s.config.VectorSize),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_embedding_idx ON %s USING hnsw (embedding vector_cosine_ops)`, t, t),
	}
}

func (s *PGVectorStore) upsertSQL() string {
	return fmt.Sprintf(`INSERT INTO %s (id, embedding, text, source, chunk_index)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (id) DO UPDATE SET
	embedding = EXCLUDED.embedding,
	text = EXCLUDED.text,
	source = EXCLUDED.source,
	chunk_index = EXCLUDED.chunk_index`, s.config.Table)
}

func (s *PGVectorStore) querySQL() string {
	return fmt.Sprintf(`SELECT id, text, source, chunk_index, 1 - (embedding <=> $1) AS score
FROM %s
ORDER BY embedding <=> $1
LIMIT $2`, s.config.Table)
}

func (s *PGVectorStore) deleteSQL() string {
	return fmt.Sprintf(`DELETE FROM %s WHERE id = ANY($1)`, s.config.Table)
}

// EnsureCollection creates the extension, table and HNSW index if missing.
func (s *PGVectorStore) EnsureCollection(ctx context.Context) error {
	ctx, span := pgTracer.Start(ctx, "PGVectorStore.EnsureCollection")
	defer span.End()
	span.SetAttributes(attribute.String("table", s.config.Table))

	for _, stmt := range s.schemaStatements() {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return fmt.Errorf("ensuring table %s: %w", s.config.Table, err)
		}
	}
	span.SetStatus(codes.Ok, "success")
	return nil
}

// Upsert writes all records in one batch inside a single transaction.
func (s *PGVectorStore) Upsert(ctx context.Context, records []Record) (n int, err error) {
	if len(records) == 0 {
		return 0, nil
	}

	ctx, span := pgTracer.Start(ctx, "PGVectorStore.Upsert")
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetStatus(codes.Ok, "success")
		}
		span.End()
	}()
	span.SetAttributes(attribute.Int("record_count", len(records)))

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: begin: %v", ErrStoreWrite, err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	sql := s.upsertSQL()
	batch := &pgx.Batch{}
	for _, r := range records {
		batch.Queue(sql, r.ID, pgvector.NewVector(r.Values), r.Metadata.Text, r.Metadata.Source, r.Metadata.ChunkIndex)
	}

	br := tx.SendBatch(ctx, batch)
	for i := range records {
		if _, execErr := br.Exec(); execErr != nil {
			_ = br.Close()
			return 0, fmt.Errorf("%w: record %s: %v", ErrStoreWrite, records[i].ID, execErr)
		}
	}
	if err = br.Close(); err != nil {
		return 0, fmt.Errorf("%w: closing batch: %v", ErrStoreWrite, err)
	}
	if err = tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("%w: commit: %v", ErrStoreWrite, err)
	}
	return len(records), nil
}

// Query returns the topK nearest rows by cosine distance, scored as 1 - distance.
func (s *PGVectorStore) Query(ctx context.Context, vector []float32, topK int) ([]Match, error) {
	if topK <= 0 {
		return nil, nil
	}

	ctx, span := pgTracer.Start(ctx, "PGVectorStore.Query")
	defer span.End()
	span.SetAttributes(attribute.Int("top_k", topK))

	var matches []Match
	err := s.retry.do(ctx, "query", func() error {
		rows, err := s.pool.Query(ctx, s.querySQL(), pgvector.NewVector(vector), topK)
		if err != nil {
			return err
		}
		defer rows.Close()

		matches = matches[:0]
		for rows.Next() {
			var (
				m     Match
				score float64
			)
			if err := rows.Scan(&m.ID, &m.Metadata.Text, &m.Metadata.Source, &m.Metadata.ChunkIndex, &score); err != nil {
				return err
			}
			m.Score = float32(score)
			matches = append(matches, m)
		}
		return rows.Err()
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("%w: %v", ErrStoreQuery, err)
	}

	span.SetAttributes(attribute.Int("results_count", len(matches)))
	span.SetStatus(codes.Ok, "success")
	return matches, nil
}

// Delete removes the rows with the given IDs in one statement.
func (s *PGVectorStore) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	ctx, span := pgTracer.Start(ctx, "PGVectorStore.Delete")
	defer span.End()
	span.SetAttributes(attribute.Int("id_count", len(ids)))

	if _, err := s.pool.Exec(ctx, s.deleteSQL(), ids); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("%w: delete: %v", ErrStoreWrite, err)
	}
	span.SetStatus(codes.Ok, "success")
	return nil
}

// Health pings the database.
func (s *PGVectorStore) Health(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close closes the pool if this store owns it.
func (s *PGVectorStore) Close() error {
	if s.ownsPool {
		s.pool.Close()
	}
	return nil
}

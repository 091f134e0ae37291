package metadata

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// ConnectOptions controls ConnectPostgres.
type ConnectOptions struct {
	MaxConns     int32
	ConnectTries int
	ConnectDelay time.Duration
}

// ConnectPostgres opens a pool and pings it, retrying while the database
// comes up. The pgvector extension is not created here.
func ConnectPostgres(ctx context.Context, url string, opts ConnectOptions, logger *zap.Logger) (*pgxpool.Pool, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("unable to parse database url: %w", err)
	}
	if opts.MaxConns > 0 {
		cfg.MaxConns = opts.MaxConns
	}
	cfg.MaxConnLifetime = time.Hour
	cfg.MaxConnIdleTime = 30 * time.Minute

	tries := max(opts.ConnectTries, 1)
	for attempt := 1; ; attempt++ {
		pool, err := pgxpool.NewWithConfig(ctx, cfg)
		if err == nil {
			pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err = pool.Ping(pingCtx)
			cancel()
			if err == nil {
				logger.Info("connected to database", zap.Int("attempt", attempt))
				return pool, nil
			}
			pool.Close()
		}

		if attempt >= tries {
			return nil, fmt.Errorf("failed to connect to the database after %d attempts: %w", tries, err)
		}
		logger.Warn("database connection failed, retrying",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", tries),
			zap.Duration("retry_in", opts.ConnectDelay),
			zap.Error(err))

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(opts.ConnectDelay):
		}
	}
}

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS documents (
	id         TEXT PRIMARY KEY,
	filename   TEXT NOT NULL,
	raw_text   TEXT NOT NULL,
	summary    TEXT NOT NULL,
	path       TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`,
	`CREATE INDEX IF NOT EXISTS documents_created_at_idx ON documents (created_at DESC)`,
	`CREATE TABLE IF NOT EXISTS upload_logs (
	id         BIGSERIAL PRIMARY KEY,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`,
	`CREATE INDEX IF NOT EXISTS upload_logs_created_at_idx ON upload_logs (created_at DESC)`,
}

// PostgresStore is a Store backed by Postgres.
type PostgresStore struct {
	pool     *pgxpool.Pool
	ownsPool bool
	now      func() time.Time
}

// NewPostgresStore runs migrations on pool. When ownsPool is true Close closes the pool.
func NewPostgresStore(ctx context.Context, pool *pgxpool.Pool, ownsPool bool) (*PostgresStore, error) {
	if pool == nil {
		return nil, errors.New("postgres store requires a pool")
	}
	s := &PostgresStore{pool: pool, ownsPool: ownsPool, now: time.Now}
	if err := s.migrate(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *PostgresStore) migrate(ctx context.Context) error {
	for _, stmt := range postgresSchema {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("running migrations: %w", err)
		}
	}
	return nil
}

func (s *PostgresStore) LatestUpload(ctx context.Context) (time.Time, bool, error) {
	var ts pgtype.Timestamptz
	if err := s.pool.QueryRow(ctx, `SELECT MAX(created_at) FROM upload_logs`).Scan(&ts); err != nil {
		return time.Time{}, false, fmt.Errorf("reading latest upload: %w", err)
	}
	if !ts.Valid {
		return time.Time{}, false, nil
	}
	return ts.Time, true, nil
}

func (s *PostgresStore) CommitIngestion(ctx context.Context, doc Document) (Document, error) {
	doc, err := prepare(doc, s.now())
	if err != nil {
		return Document{}, err
	}

	err = pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			`INSERT INTO documents (id, filename, raw_text, summary, path, created_at) VALUES ($1, $2, $3, $4, $5, $6)`,
			doc.ID, doc.Filename, doc.RawText, doc.Summary, doc.StoragePath, doc.CreatedAt); err != nil {
			return fmt.Errorf("inserting document: %w", err)
		}
		if _, err := tx.Exec(ctx, `INSERT INTO upload_logs (created_at) VALUES ($1)`, doc.CreatedAt); err != nil {
			return fmt.Errorf("inserting upload log: %w", err)
		}
		return nil
	})
	if err != nil {
		return Document{}, err
	}
	return doc, nil
}

func (s *PostgresStore) ListDocuments(ctx context.Context, limit int) ([]Document, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, filename, summary, path, created_at FROM documents ORDER BY created_at DESC LIMIT $1`,
		clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("listing documents: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (Document, error) {
		var d Document
		err := row.Scan(&d.ID, &d.Filename, &d.Summary, &d.StoragePath, &d.CreatedAt)
		return d, err
	})
}

func (s *PostgresStore) GetDocument(ctx context.Context, id string) (Document, error) {
	var d Document
	err := s.pool.QueryRow(ctx,
		`SELECT id, filename, raw_text, summary, path, created_at FROM documents WHERE id = $1`, id).
		Scan(&d.ID, &d.Filename, &d.RawText, &d.Summary, &d.StoragePath, &d.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Document{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return Document{}, fmt.Errorf("reading document: %w", err)
	}
	return d, nil
}

func (s *PostgresStore) PendingSummaries(ctx context.Context, limit int) ([]Document, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, filename, summary, path, created_at FROM documents WHERE summary = $1 ORDER BY created_at ASC LIMIT $2`,
		SummaryUnavailable, clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("listing pending summaries: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (Document, error) {
		var d Document
		err := row.Scan(&d.ID, &d.Filename, &d.Summary, &d.StoragePath, &d.CreatedAt)
		return d, err
	})
}

func (s *PostgresStore) UpdateSummary(ctx context.Context, id, summary string) error {
	tag, err := s.pool.Exec(ctx, `UPDATE documents SET summary = $1 WHERE id = $2`, summary, id)
	if err != nil {
		return fmt.Errorf("updating summary: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *PostgresStore) Close() error {
	if s.ownsPool {
		s.pool.Close()
	}
	return nil
}

var _ Store = (*PostgresStore)(nil)

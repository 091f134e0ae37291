package metadata

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver
)

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS documents (
	id         TEXT PRIMARY KEY,
	filename   TEXT NOT NULL,
	raw_text   TEXT NOT NULL,
	summary    TEXT NOT NULL,
	path       TEXT NOT NULL,
	created_at INTEGER NOT NULL
)`,
	`CREATE INDEX IF NOT EXISTS documents_created_at_idx ON documents (created_at DESC)`,
	`CREATE TABLE IF NOT EXISTS upload_logs (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	created_at INTEGER NOT NULL
)`,
}

// SQLiteStore is a Store backed by a local SQLite file.
// Timestamps are stored as Unix nanoseconds.
type SQLiteStore struct {
	db   *sql.DB
	path string
	now  func() time.Time
}

// NewSQLiteStore opens (creating if needed) the database at path.
// ":memory:" gives a private in-memory database.
func NewSQLiteStore(ctx context.Context, path string) (*SQLiteStore, error) {
	dsn := path
	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o700); err != nil {
				return nil, fmt.Errorf("creating data directory: %w", err)
			}
		}
		dsn = path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// A single connection serializes writers and keeps :memory: databases shared.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db, path: path, now: time.Now}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) migrate(ctx context.Context) error {
	for _, stmt := range sqliteSchema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("running migrations: %w", err)
		}
	}
	return nil
}

// Path returns the database file path.
func (s *SQLiteStore) Path() string {
	return s.path
}

func (s *SQLiteStore) LatestUpload(ctx context.Context) (time.Time, bool, error) {
	var ts sql.NullInt64
	if err := s.db.QueryRowContext(ctx, `SELECT MAX(created_at) FROM upload_logs`).Scan(&ts); err != nil {
		return time.Time{}, false, fmt.Errorf("reading latest upload: %w", err)
	}
	if !ts.Valid {
		return time.Time{}, false, nil
	}
	return time.Unix(0, ts.Int64).UTC(), true, nil
}

func (s *SQLiteStore) CommitIngestion(ctx context.Context, doc Document) (Document, error) {
	doc, err := prepare(doc, s.now())
	if err != nil {
		return Document{}, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Document{}, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	created := doc.CreatedAt.UnixNano()
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO documents (id, filename, raw_text, summary, path, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		doc.ID, doc.Filename, doc.RawText, doc.Summary, doc.StoragePath, created); err != nil {
		return Document{}, fmt.Errorf("inserting document: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO upload_logs (created_at) VALUES (?)`, created); err != nil {
		return Document{}, fmt.Errorf("inserting upload log: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return Document{}, fmt.Errorf("committing ingestion: %w", err)
	}
	return doc, nil
}

func (s *SQLiteStore) ListDocuments(ctx context.Context, limit int) ([]Document, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, filename, summary, path, created_at FROM documents ORDER BY created_at DESC LIMIT ?`,
		clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("listing documents: %w", err)
	}
	return scanDocuments(rows)
}

func (s *SQLiteStore) GetDocument(ctx context.Context, id string) (Document, error) {
	var (
		d       Document
		created int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, filename, raw_text, summary, path, created_at FROM documents WHERE id = ?`, id).
		Scan(&d.ID, &d.Filename, &d.RawText, &d.Summary, &d.StoragePath, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return Document{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return Document{}, fmt.Errorf("reading document: %w", err)
	}
	d.CreatedAt = time.Unix(0, created).UTC()
	return d, nil
}

func (s *SQLiteStore) PendingSummaries(ctx context.Context, limit int) ([]Document, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, filename, summary, path, created_at FROM documents WHERE summary = ? ORDER BY created_at ASC LIMIT ?`,
		SummaryUnavailable, clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("listing pending summaries: %w", err)
	}
	return scanDocuments(rows)
}

func (s *SQLiteStore) UpdateSummary(ctx context.Context, id, summary string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE documents SET summary = ? WHERE id = ?`, summary, id)
	if err != nil {
		return fmt.Errorf("updating summary: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("updating summary: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func scanDocuments(rows *sql.Rows) ([]Document, error) {
	defer rows.Close()
	docs := []Document{}
	for rows.Next() {
		var (
			d       Document
			created int64
		)
		if err := rows.Scan(&d.ID, &d.Filename, &d.Summary, &d.StoragePath, &created); err != nil {
			return nil, fmt.Errorf("scanning document: %w", err)
		}
		d.CreatedAt = time.Unix(0, created).UTC()
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

var _ Store = (*SQLiteStore)(nil)

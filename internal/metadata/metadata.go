// Package metadata persists document records and the upload log used for
// rate limiting.
//
// Two backends implement Store: Postgres through a pgx pool, and SQLite
// through the pure-Go modernc driver for local use and tests.
package metadata

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// SummaryUnavailable is stored when summarization fails. Documents carrying it
// are picked up by the summary back-fill workflow.
const SummaryUnavailable = "Summary unavailable"

var (
	// ErrNotFound is returned when a document does not exist.
	ErrNotFound = errors.New("document not found")

	// ErrInvalidDocument is returned when a document is missing required fields.
	ErrInvalidDocument = errors.New("invalid document")
)

// Document is the record written once per successful ingestion.
type Document struct {
	ID          string    `json:"id"`
	Filename    string    `json:"filename"`
	RawText     string    `json:"raw_text,omitempty"`
	Summary     string    `json:"summary"`
	StoragePath string    `json:"path"`
	CreatedAt   time.Time `json:"created_at"`
}

// Store is the relational metadata contract.
type Store interface {
	// LatestUpload returns the time of the most recent successful ingestion.
	// ok is false when nothing has been ingested yet.
	LatestUpload(ctx context.Context) (ts time.Time, ok bool, err error)

	// CommitIngestion writes the document row and an upload_logs row in one
	// transaction. A missing ID or CreatedAt is filled in.
	CommitIngestion(ctx context.Context, doc Document) (Document, error)

	// ListDocuments returns the newest documents first, without raw text.
	ListDocuments(ctx context.Context, limit int) ([]Document, error)

	// GetDocument returns one document including its raw text.
	GetDocument(ctx context.Context, id string) (Document, error)

	// PendingSummaries returns documents whose summary is SummaryUnavailable, oldest first.
	PendingSummaries(ctx context.Context, limit int) ([]Document, error)

	// UpdateSummary replaces a document's summary.
	UpdateSummary(ctx context.Context, id, summary string) error

	Ping(ctx context.Context) error
	Close() error
}

// DefaultListLimit bounds list queries when the caller passes a non-positive limit.
const DefaultListLimit = 50

// MaxListLimit caps list queries.
const MaxListLimit = 500

func clampLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultListLimit
	case limit > MaxListLimit:
		return MaxListLimit
	default:
		return limit
	}
}

// prepare validates doc and fills its ID and creation time.
func prepare(doc Document, now time.Time) (Document, error) {
	if strings.TrimSpace(doc.Filename) == "" || doc.StoragePath == "" {
		return Document{}, ErrInvalidDocument
	}
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = now
	}
	doc.CreatedAt = doc.CreatedAt.UTC()
	return doc, nil
}

// Package vectorstore stores chunk embeddings and answers nearest-neighbour
// queries against them.
//
// Three backends implement Store: Qdrant over gRPC, an embedded chromem-go
// index, and Postgres with the pgvector extension. Callers should wrap any
// backend with NewGuard so every vector that reaches the index has the
// configured dimension.
package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
)

var (
	// ErrDimensionMismatch is returned when a vector's length differs from
	// the configured dimension.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")

	// ErrStoreWrite wraps every failure of an upsert.
	ErrStoreWrite = errors.New("vector store write failed")

	// ErrStoreQuery wraps every failure of a query.
	ErrStoreQuery = errors.New("vector store query failed")

	// ErrDeleteUnsupported is returned by Delete for backends that cannot remove records.
	ErrDeleteUnsupported = errors.New("vector store does not support delete")

	// ErrInvalidConfig indicates a backend was configured incorrectly.
	ErrInvalidConfig = errors.New("invalid vector store configuration")

	// ErrConnectionFailed indicates the backend could not be reached.
	ErrConnectionFailed = errors.New("vector store connection failed")

	// ErrInvalidCollectionName indicates a collection name failed validation.
	ErrInvalidCollectionName = errors.New("invalid collection name")

	// ErrCircuitOpen is returned while the query circuit breaker is open.
	ErrCircuitOpen = errors.New("circuit breaker open")
)

// Metadata is the payload stored alongside each vector.
type Metadata struct {
	Text       string `json:"text"`
	Source     string `json:"source"`
	ChunkIndex int    `json:"chunk_index"`
}

// Record is a single vector to upsert.
type Record struct {
	ID       string
	Values   []float32
	Metadata Metadata
}

// Match is a single query hit. Higher scores are more similar.
type Match struct {
	ID       string
	Score    float32
	Metadata Metadata
}

// Store is the vector index contract.
//
// Upsert writes all records or returns an error wrapping ErrStoreWrite; it is
// never retried. Query returns at most topK matches in descending score order
// as reported by the backend.
type Store interface {
	Upsert(ctx context.Context, records []Record) (int, error)
	Query(ctx context.Context, vector []float32, topK int) ([]Match, error)
	EnsureCollection(ctx context.Context) error
	Close() error
}

// HealthChecker is implemented by stores that can report backend health.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// Deleter is implemented by stores that can remove records by ID. Unknown
// IDs are ignored.
type Deleter interface {
	Delete(ctx context.Context, ids []string) error
}

// RecordID returns the deterministic record ID for a chunk of a stored document.
func RecordID(storagePath string, chunkIndex int) string {
	return storagePath + "-" + strconv.Itoa(chunkIndex)
}

var collectionNamePattern = regexp.MustCompile(`^[a-z0-9_]{1,64}$`)

// ValidateCollectionName checks that name is safe to use as a collection
// or table name on every backend.
func ValidateCollectionName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: collection name cannot be empty", ErrInvalidCollectionName)
	}
	if !collectionNamePattern.MatchString(name) {
		return fmt.Errorf("%w: collection name must match pattern ^[a-z0-9_]{1,64}$, got %q", ErrInvalidCollectionName, name)
	}
	return nil
}

// Health reports backend health when the store supports it.
func Health(ctx context.Context, s Store) error {
	if hc, ok := s.(HealthChecker); ok {
		return hc.Health(ctx)
	}
	return nil
}

// Delete removes ids from s, or returns ErrDeleteUnsupported.
func Delete(ctx context.Context, s Store, ids []string) error {
	if d, ok := s.(Deleter); ok {
		return d.Delete(ctx, ids)
	}
	return ErrDeleteUnsupported
}

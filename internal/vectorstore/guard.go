package vectorstore

import (
	"context"
	"fmt"
)

// Guard enforces a fixed vector dimension in front of another Store.
type Guard struct {
	inner Store
	dim   int
}

// NewGuard wraps store so that every upserted or queried vector must have
// exactly dim components.
func NewGuard(store Store, dim int) *Guard {
	return &Guard{inner: store, dim: dim}
}

// Dimension returns the enforced vector length.
func (g *Guard) Dimension() int {
	return g.dim
}

// Upsert rejects the whole batch if any record has the wrong length.
func (g *Guard) Upsert(ctx context.Context, records []Record) (int, error) {
	for _, r := range records {
		if len(r.Values) != g.dim {
			return 0, fmt.Errorf("%w: record %s has %d values, want %d", ErrDimensionMismatch, r.ID, len(r.Values), g.dim)
		}
	}
	return g.inner.Upsert(ctx, records)
}

// Query rejects a query vector of the wrong length.
func (g *Guard) Query(ctx context.Context, vector []float32, topK int) ([]Match, error) {
	if len(vector) != g.dim {
		return nil, fmt.Errorf("%w: query has %d values, want %d", ErrDimensionMismatch, len(vector), g.dim)
	}
	return g.inner.Query(ctx, vector, topK)
}

func (g *Guard) EnsureCollection(ctx context.Context) error {
	return g.inner.EnsureCollection(ctx)
}

func (g *Guard) Close() error {
	return g.inner.Close()
}

// Health forwards to the wrapped store.
func (g *Guard) Health(ctx context.Context) error {
	return Health(ctx, g.inner)
}

// Delete forwards to the wrapped store.
func (g *Guard) Delete(ctx context.Context, ids []string) error {
	return Delete(ctx, g.inner, ids)
}

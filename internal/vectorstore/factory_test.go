package vectorstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/fyrsmithlabs/docrag/internal/config"
)

func TestNewStore_DefaultsToChromem(t *testing.T) {
	cfg := config.Default().VectorStore
	cfg.Provider = ""

	store, err := NewStore(context.Background(), cfg, 3, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	require.NoError(t, store.EnsureCollection(context.Background()))
	_, err = store.Upsert(context.Background(), []Record{{ID: "x-0", Values: []float32{1, 2}}})
	assert.ErrorIs(t, err, ErrDimensionMismatch, "factory stores are dimension guarded")

	n, err := store.Upsert(context.Background(), testRecords())
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.NoError(t, Health(context.Background(), store))
}

func TestNewStore_Errors(t *testing.T) {
	cfg := config.Default().VectorStore

	cfg.Provider = "faiss"
	_, err := NewStore(context.Background(), cfg, 3, nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	cfg.Provider = "pgvector"
	_, err = NewStore(context.Background(), cfg, 3, nil)
	assert.ErrorIs(t, err, ErrInvalidConfig, "pgvector needs a pool")

	cfg.Provider = "chromem"
	cfg.Collection = "Not Valid"
	_, err = NewStore(context.Background(), cfg, 3, nil)
	assert.ErrorIs(t, err, ErrInvalidCollectionName)
}

//go:build cgo

package embeddings

import (
	"testing"

	fastembed "github.com/anush008/fastembed-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookupLocalModel(t *testing.T) {
	m, ok := lookupLocalModel("BAAI/bge-base-en-v1.5")
	require.True(t, ok)
	assert.Equal(t, 768, m.dim)

	m, ok = lookupLocalModel(string(fastembed.AllMiniLML6V2))
	require.True(t, ok)
	assert.Equal(t, 384, m.dim)

	_, ok = lookupLocalModel("openai/text-embedding-3-small")
	assert.False(t, ok)
}

func TestNewFastEmbedProvider_UnknownModel(t *testing.T) {
	_, err := NewFastEmbedProvider(FastEmbedConfig{Model: "word2vec"})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

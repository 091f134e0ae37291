//go:build !cgo

package embeddings

import (
	"context"
	"errors"
)

// ErrFastEmbedUnavailable is returned by builds without cgo.
var ErrFastEmbedUnavailable = errors.New("fastembed: not available (binary built without cgo, use the openai or ollama provider)")

// FastEmbedConfig holds configuration for the local FastEmbed provider.
type FastEmbedConfig struct {
	Model     string
	CacheDir  string
	MaxLength int
}

// FastEmbedProvider is unavailable without cgo.
type FastEmbedProvider struct{}

// NewFastEmbedProvider always fails without cgo.
func NewFastEmbedProvider(_ FastEmbedConfig) (*FastEmbedProvider, error) {
	return nil, ErrFastEmbedUnavailable
}

// EmbedQuery implements Provider.
func (p *FastEmbedProvider) EmbedQuery(_ context.Context, _ string) ([]float32, error) {
	return nil, ErrFastEmbedUnavailable
}

// Dimension implements Provider.
func (p *FastEmbedProvider) Dimension() int { return 0 }

// Close implements io.Closer.
func (p *FastEmbedProvider) Close() error { return nil }

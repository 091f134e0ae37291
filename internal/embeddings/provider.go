package embeddings

import (
	"context"
	"errors"
	"fmt"

	"github.com/fyrsmithlabs/docrag/internal/config"
)

var (
	// ErrInvalidConfig indicates invalid provider configuration.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrEmptyInput indicates blank input text.
	ErrEmptyInput = errors.New("empty input text")

	// ErrEmbeddingFailed indicates the provider could not produce a vector.
	ErrEmbeddingFailed = errors.New("embedding generation failed")
)

// Provider is the raw embedding service.
type Provider interface {
	// EmbedQuery returns the embedding for a single text.
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
	// Dimension returns the vector length the provider is configured for.
	Dimension() int
}

// Embedder is what the pipelines depend on. Embed never fails; a failure is
// reported as Empty.
type Embedder interface {
	Embed(ctx context.Context, text string) Vector
	Dimension() int
}

// NewProvider builds the provider named by cfg.Provider.
func NewProvider(cfg config.EmbeddingsConfig) (Provider, error) {
	if cfg.Dimension <= 0 {
		return nil, fmt.Errorf("%w: dimension must be > 0", ErrInvalidConfig)
	}

	switch cfg.Provider {
	case "openai", "":
		return NewOpenAIProvider(LangChainConfig{
			BaseURL:   cfg.BaseURL,
			Model:     cfg.Model,
			APIKey:    cfg.APIKey.Value(),
			Dimension: cfg.Dimension,
		})
	case "ollama":
		return NewOllamaProvider(LangChainConfig{
			BaseURL:   cfg.BaseURL,
			Model:     cfg.Model,
			Dimension: cfg.Dimension,
		})
	case "fastembed":
		p, err := NewFastEmbedProvider(FastEmbedConfig{
			Model:    cfg.Model,
			CacheDir: cfg.CacheDir,
		})
		if err != nil {
			return nil, err
		}
		if p.Dimension() != cfg.Dimension {
			_ = p.Close()
			return nil, fmt.Errorf("%w: fastembed model %q produces %d dimensions, configured %d",
				ErrInvalidConfig, cfg.Model, p.Dimension(), cfg.Dimension)
		}
		return p, nil
	default:
		return nil, fmt.Errorf("%w: unknown provider %q", ErrInvalidConfig, cfg.Provider)
	}
}

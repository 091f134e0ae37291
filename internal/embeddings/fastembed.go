//go:build cgo

package embeddings

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	fastembed "github.com/anush008/fastembed-go"
)

// FastEmbedConfig holds configuration for the local FastEmbed provider.
type FastEmbedConfig struct {
	// Model defaults to BAAI/bge-base-en-v1.5, which matches the 768-dim index.
	Model string
	// CacheDir defaults to ~/.cache/docrag/models.
	CacheDir string
	// MaxLength defaults to 512 tokens.
	MaxLength int
}

// FastEmbedProvider embeds locally with an ONNX model.
type FastEmbedProvider struct {
	mu        sync.RWMutex
	model     *fastembed.FlagEmbedding
	name      string
	dimension int
}

type localModel struct {
	id  fastembed.EmbeddingModel
	dim int
}

// localModels is keyed by the Hugging Face name; lookupLocalModel also
// accepts fastembed's own identifiers.
var localModels = map[string]localModel{
	"BAAI/bge-small-en-v1.5":                 {fastembed.BGESmallENV15, 384},
	"BAAI/bge-base-en-v1.5":                  {fastembed.BGEBaseENV15, 768},
	"BAAI/bge-base-en":                       {fastembed.BGEBaseEN, 768},
	"sentence-transformers/all-MiniLM-L6-v2": {fastembed.AllMiniLML6V2, 384},
}

func lookupLocalModel(name string) (localModel, bool) {
	if m, ok := localModels[name]; ok {
		return m, true
	}
	for _, m := range localModels {
		if string(m.id) == name {
			return m, true
		}
	}
	return localModel{}, false
}

// NewFastEmbedProvider loads the model, installing the ONNX runtime first
// when it is missing.
func NewFastEmbedProvider(cfg FastEmbedConfig) (*FastEmbedProvider, error) {
	if cfg.Model == "" {
		cfg.Model = "BAAI/bge-base-en-v1.5"
	}
	if cfg.CacheDir == "" {
		cfg.CacheDir = filepath.Join(defaultCacheRoot(), "models")
	}
	if cfg.MaxLength == 0 {
		cfg.MaxLength = 512
	}
	m, ok := lookupLocalModel(cfg.Model)
	if !ok {
		return nil, fmt.Errorf("%w: unsupported fastembed model %q", ErrInvalidConfig, cfg.Model)
	}

	if _, err := EnsureONNXRuntime(context.Background()); err != nil {
		return nil, err
	}

	quiet := false
	fe, err := fastembed.NewFlagEmbedding(&fastembed.InitOptions{
		Model:                m.id,
		CacheDir:             cfg.CacheDir,
		MaxLength:            cfg.MaxLength,
		ShowDownloadProgress: &quiet,
	})
	if err != nil {
		return nil, fmt.Errorf("initializing FastEmbed: %w", err)
	}
	return &FastEmbedProvider{model: fe, name: cfg.Model, dimension: m.dim}, nil
}

// EmbedQuery embeds chunks and questions alike with the "query: " prefix,
// so both sides of the similarity search share one space.
func (p *FastEmbedProvider) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, ErrEmptyInput
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.model == nil {
		return nil, fmt.Errorf("%w: provider closed", ErrEmbeddingFailed)
	}
	vec, err := p.model.QueryEmbed(text)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
	}
	return vec, nil
}

func (p *FastEmbedProvider) Dimension() int { return p.dimension }

// Close releases the ONNX session. Later calls are no-ops.
func (p *FastEmbedProvider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.model == nil {
		return nil
	}
	err := p.model.Destroy()
	p.model = nil
	return err
}

package embeddings

import (
	"context"
	"fmt"
	"math"
	"strings"

	lcembeddings "github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
)

// LangChainConfig configures the langchaingo-backed providers.
type LangChainConfig struct {
	BaseURL   string
	Model     string
	APIKey    string
	Dimension int
}

// LangChainProvider embeds through a langchaingo embedder.
//
// Models trained with Matryoshka representation (gemini-embedding-001,
// text-embedding-3-*) return longer vectors than D; those are truncated to
// D and re-normalized. Shorter vectors are returned unchanged and rejected
// by the Adapter.
type LangChainProvider struct {
	embedder  lcembeddings.Embedder
	model     string
	dimension int
}

// NewOpenAIProvider targets any OpenAI-compatible embeddings endpoint,
// including Gemini's compatibility layer, vLLM and TEI.
func NewOpenAIProvider(cfg LangChainConfig) (*LangChainProvider, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("%w: model required", ErrInvalidConfig)
	}

	// langchaingo requires a token even for unauthenticated endpoints.
	token := cfg.APIKey
	if token == "" {
		token = "placeholder"
	}

	opts := []openai.Option{
		openai.WithModel(cfg.Model),
		openai.WithEmbeddingModel(cfg.Model),
		openai.WithToken(token),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}

	llm, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("creating OpenAI client: %w", err)
	}
	return newLangChainProvider(llm, cfg)
}

// NewOllamaProvider targets a local Ollama server.
func NewOllamaProvider(cfg LangChainConfig) (*LangChainProvider, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("%w: model required", ErrInvalidConfig)
	}

	opts := []ollama.Option{ollama.WithModel(cfg.Model)}
	if cfg.BaseURL != "" {
		opts = append(opts, ollama.WithServerURL(cfg.BaseURL))
	}

	llm, err := ollama.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("creating Ollama client: %w", err)
	}
	return newLangChainProvider(llm, cfg)
}

func newLangChainProvider(client lcembeddings.EmbedderClient, cfg LangChainConfig) (*LangChainProvider, error) {
	embedder, err := lcembeddings.NewEmbedder(client, lcembeddings.WithStripNewLines(false))
	if err != nil {
		return nil, fmt.Errorf("creating embedder: %w", err)
	}
	return &LangChainProvider{embedder: embedder, model: cfg.Model, dimension: cfg.Dimension}, nil
}

// EmbedQuery implements Provider.
func (p *LangChainProvider) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyInput
	}

	vec, err := p.embedder.EmbedQuery(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
	}
	return truncate(vec, p.dimension), nil
}

// Dimension implements Provider.
func (p *LangChainProvider) Dimension() int {
	return p.dimension
}

// Model returns the configured model name.
func (p *LangChainProvider) Model() string {
	return p.model
}

// truncate keeps the first dim values of a longer vector and rescales them
// to unit length.
func truncate(vec []float32, dim int) []float32 {
	if dim <= 0 || len(vec) <= dim {
		return vec
	}
	out := make([]float32, dim)
	copy(out, vec[:dim])

	var norm float64
	for _, v := range out {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		return out
	}
	scale := float32(1 / math.Sqrt(norm))
	for i := range out {
		out[i] *= scale
	}
	return out
}

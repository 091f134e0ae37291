package generation

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
	"github.com/tmc/langchaingo/schema"

	"github.com/fyrsmithlabs/docrag/internal/config"
)

const (
	defaultTemperature = 0.2
	defaultTimeout     = 60 * time.Second
)

// LangChainConfig configures a langchaingo chat model.
type LangChainConfig struct {
	Provider string
	BaseURL  string
	Model    string
	APIKey   string
	Timeout  time.Duration

	// SummaryLimit overrides SummaryInputLimit.
	SummaryLimit int
}

// LangChainClient implements Generator and Summarizer on a langchaingo model.
type LangChainClient struct {
	model        llms.Model
	timeout      time.Duration
	summaryLimit int
}

var (
	_ Generator  = (*LangChainClient)(nil)
	_ Summarizer = (*LangChainClient)(nil)
)

// New builds the client named by cfg.Provider. summaryLimit of zero uses
// SummaryInputLimit.
func New(cfg config.GenerationConfig, summaryLimit int) (*LangChainClient, error) {
	return NewLangChainClient(LangChainConfig{
		Provider:     cfg.Provider,
		BaseURL:      cfg.BaseURL,
		Model:        cfg.Model,
		APIKey:       cfg.APIKey.Value(),
		Timeout:      cfg.Timeout.Duration(),
		SummaryLimit: summaryLimit,
	})
}

// NewLangChainClient builds an openai-compatible or ollama chat client.
func NewLangChainClient(cfg LangChainConfig) (*LangChainClient, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("%w: model required", ErrInvalidConfig)
	}

	var (
		model llms.Model
		err   error
	)
	switch cfg.Provider {
	case "openai", "":
		token := cfg.APIKey
		if token == "" {
			token = "placeholder"
		}
		opts := []openai.Option{openai.WithModel(cfg.Model), openai.WithToken(token)}
		if cfg.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
		}
		model, err = openai.New(opts...)
	case "ollama":
		opts := []ollama.Option{ollama.WithModel(cfg.Model)}
		if cfg.BaseURL != "" {
			opts = append(opts, ollama.WithServerURL(cfg.BaseURL))
		}
		model, err = ollama.New(opts...)
	default:
		return nil, fmt.Errorf("%w: unknown provider %q", ErrInvalidConfig, cfg.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("creating %s client: %w", cfg.Provider, err)
	}

	return NewWithModel(model, cfg.Timeout, cfg.SummaryLimit), nil
}

// NewWithModel wraps an existing langchaingo model.
func NewWithModel(model llms.Model, timeout time.Duration, summaryLimit int) *LangChainClient {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if summaryLimit <= 0 {
		summaryLimit = SummaryInputLimit
	}
	return &LangChainClient{model: model, timeout: timeout, summaryLimit: summaryLimit}
}

// Generate sends the system prompt and the context-plus-question turn as
// separate messages.
func (c *LangChainClient) Generate(ctx context.Context, p Prompt) (string, error) {
	messages := make([]llms.MessageContent, 0, 2)
	if strings.TrimSpace(p.System) != "" {
		messages = append(messages, llms.TextParts(schema.ChatMessageTypeSystem, p.System))
	}
	messages = append(messages, llms.TextParts(schema.ChatMessageTypeHuman, p.HumanMessage()))
	return c.complete(ctx, messages)
}

// Summarize condenses the first summaryLimit characters of text.
func (c *LangChainClient) Summarize(ctx context.Context, text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", ErrEmptyInput
	}
	messages := []llms.MessageContent{
		llms.TextParts(schema.ChatMessageTypeHuman, SummaryPrompt(text, c.summaryLimit)),
	}
	return c.complete(ctx, messages)
}

func (c *LangChainClient) complete(ctx context.Context, messages []llms.MessageContent) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.model.GenerateContent(ctx, messages, llms.WithTemperature(defaultTemperature))
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrGenerationFailed, err)
	}
	if resp == nil || len(resp.Choices) == 0 || resp.Choices[0] == nil {
		return "", ErrEmptyResponse
	}

	text := strings.TrimSpace(resp.Choices[0].Content)
	if text == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}

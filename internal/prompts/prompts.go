// Package prompts resolves the system prompt used for answer generation.
//
// Sources are consulted in order: a remote prompt registry, a local TOML
// file, then the built-in FallbackSystemPrompt. Resolution never fails.
package prompts

import (
	"context"
	"errors"
	"io"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/docrag/internal/config"
	"github.com/fyrsmithlabs/docrag/internal/telemetry"
)

// FallbackSystemPrompt is used when no configured source yields a prompt.
const FallbackSystemPrompt = `You are a document-based assistant.

Rules:
- Answer ONLY using the provided context
- If the answer is not present, say "I don't know"
- Be concise and factual`

// EventPromptFallback is reported each time a source is skipped.
const EventPromptFallback = "prompt.fallback"

var (
	// ErrPromptUnavailable indicates a source could not produce a prompt.
	ErrPromptUnavailable = errors.New("prompt unavailable")

	// ErrEmptyPrompt indicates a source returned blank text.
	ErrEmptyPrompt = errors.New("prompt is empty")

	// ErrInvalidPromptFile indicates a prompt file could not be parsed.
	ErrInvalidPromptFile = errors.New("invalid prompt file")
)

// Source yields a system prompt or an error.
type Source interface {
	SystemPrompt(ctx context.Context) (string, error)
	Name() string
}

// Provider is what generation callers depend on.
type Provider interface {
	SystemPrompt(ctx context.Context) string
}

// Chain tries each Source in order and falls back to FallbackSystemPrompt.
type Chain struct {
	sources  []Source
	reporter telemetry.Reporter
	logger   *zap.Logger
}

var _ Provider = (*Chain)(nil)

// NewChain builds a chain. reporter and logger may be nil.
func NewChain(reporter telemetry.Reporter, logger *zap.Logger, sources ...Source) *Chain {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Chain{sources: sources, reporter: reporter, logger: logger}
}

// SystemPrompt returns the first non-blank prompt from the chain.
func (c *Chain) SystemPrompt(ctx context.Context) string {
	for _, src := range c.sources {
		text, err := src.SystemPrompt(ctx)
		if err == nil && strings.TrimSpace(text) == "" {
			err = ErrEmptyPrompt
		}
		if err == nil {
			return text
		}

		c.logger.Debug("prompt source skipped", zap.String("source", src.Name()), zap.Error(err))
		if c.reporter != nil {
			c.reporter.Recoverable(ctx, EventPromptFallback, err, attribute.String("source", src.Name()))
		}
	}
	return FallbackSystemPrompt
}

// Close closes every source that holds resources.
func (c *Chain) Close() error {
	var errs []error
	for _, src := range c.sources {
		if closer, ok := src.(io.Closer); ok {
			errs = append(errs, closer.Close())
		}
	}
	return errors.Join(errs...)
}

// New builds the chain described by cfg. A configured prompt file is
// watched for changes until ctx is done or the chain is closed.
func New(ctx context.Context, cfg config.PromptsConfig, reporter telemetry.Reporter, logger *zap.Logger) (*Chain, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	var sources []Source
	if cfg.RemoteURL != "" {
		remote, err := NewRemoteSource(RemoteConfig{
			BaseURL:   cfg.RemoteURL,
			Name:      cfg.Name,
			Label:     cfg.Label,
			PublicKey: cfg.PublicKey.Value(),
			SecretKey: cfg.SecretKey.Value(),
			CacheTTL:  cfg.CacheTTL.Duration(),
			Timeout:   cfg.Timeout.Duration(),
		}, logger.Named("remote"))
		if err != nil {
			return nil, err
		}
		sources = append(sources, remote)
	}

	if cfg.File != "" {
		file, err := NewFileSource(cfg.File, logger.Named("file"))
		if err != nil {
			return nil, err
		}
		if err := file.Watch(ctx); err != nil {
			logger.Warn("prompt file hot reload disabled", zap.String("path", cfg.File), zap.Error(err))
		}
		sources = append(sources, file)
	}

	return NewChain(reporter, logger, sources...), nil
}

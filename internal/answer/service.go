// Package answer retrieves stored chunks for a question and asks the
// generation service to answer from them.
package answer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/docrag/internal/embeddings"
	"github.com/fyrsmithlabs/docrag/internal/generation"
	"github.com/fyrsmithlabs/docrag/internal/prompts"
	"github.com/fyrsmithlabs/docrag/internal/telemetry"
	"github.com/fyrsmithlabs/docrag/internal/vectorstore"
)

// Fixed replies.
const (
	RefusalAnswer  = "I don't know."
	FallbackAnswer = "Sorry, I couldn't generate an answer at the moment."
)

// DefaultTopK is the number of chunks retrieved per question.
const DefaultTopK = 5

// EventRetrievalFailed is reported when the vector store query fails.
const EventRetrievalFailed = "retrieval.failed"

// ErrInvalidRequest indicates a blank question.
var ErrInvalidRequest = errors.New("invalid request")

// Source identifies one chunk that contributed to the context.
type Source struct {
	Path       string  `json:"path"`
	ChunkIndex int     `json:"chunk_index"`
	Score      float32 `json:"score"`
}

// Result is the reply to one question.
type Result struct {
	Answer        string   `json:"answer"`
	UsedContext   bool     `json:"used_context"`
	ContextLength int      `json:"context_length"`
	Sources       []Source `json:"sources"`
}

// Answerer is the question entry point used by transports.
type Answerer interface {
	Answer(ctx context.Context, question string) (*Result, error)
}

// Deps are the collaborators of the service. Prompts, Reporter and Logger
// are optional; without Prompts the built-in fallback system prompt is sent.
type Deps struct {
	Embedder  embeddings.Embedder
	Vectors   vectorstore.Store
	Generator generation.Generator
	Prompts   prompts.Provider
	Reporter  telemetry.Reporter
	Logger    *zap.Logger
}

// Service answers questions from the indexed corpus.
type Service struct {
	topK   int
	deps   Deps
	logger *zap.Logger
}

var _ Answerer = (*Service)(nil)

// NewService validates deps. A non-positive topK uses DefaultTopK.
func NewService(topK int, deps Deps) (*Service, error) {
	switch {
	case deps.Embedder == nil:
		return nil, errors.New("answer: embedder required")
	case deps.Vectors == nil:
		return nil, errors.New("answer: vector store required")
	case deps.Generator == nil:
		return nil, errors.New("answer: generator required")
	}
	if topK <= 0 {
		topK = DefaultTopK
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{topK: topK, deps: deps, logger: logger}, nil
}

// Answer implements Answerer. Only a blank question is an error; every
// downstream failure degrades to RefusalAnswer or FallbackAnswer.
func (s *Service) Answer(ctx context.Context, question string) (*Result, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, fmt.Errorf("%w: message is required", ErrInvalidRequest)
	}

	vec := s.deps.Embedder.Embed(ctx, question)
	if vec.IsEmpty() {
		AnswersTotal.WithLabelValues(outcomeNoContext).Inc()
		return &Result{Answer: RefusalAnswer, Sources: []Source{}}, nil
	}

	matches, err := s.deps.Vectors.Query(ctx, vec, s.topK)
	if err != nil {
		s.logger.Warn("retrieval failed, answering without context", zap.Error(err))
		if s.deps.Reporter != nil {
			s.deps.Reporter.Recoverable(ctx, EventRetrievalFailed, err, attribute.Int("top_k", s.topK))
		}
		matches = nil
	}

	text, sources := buildContext(matches)
	if text == "" {
		AnswersTotal.WithLabelValues(outcomeNoContext).Inc()
		return &Result{Answer: RefusalAnswer, Sources: sources}, nil
	}

	res := &Result{
		UsedContext:   true,
		ContextLength: utf8.RuneCountInString(text),
		Sources:       sources,
	}

	prompt := generation.Prompt{Context: text, Question: question, System: prompts.FallbackSystemPrompt}
	if s.deps.Prompts != nil {
		if system := s.deps.Prompts.SystemPrompt(ctx); strings.TrimSpace(system) != "" {
			prompt.System = system
		}
	}

	reply, err := s.deps.Generator.Generate(ctx, prompt)
	switch {
	case err != nil:
		s.logger.Warn("generation failed", zap.Error(err))
		AnswersTotal.WithLabelValues(outcomeFallback).Inc()
		res.Answer = FallbackAnswer
	case strings.TrimSpace(reply) == "":
		AnswersTotal.WithLabelValues(outcomeFallback).Inc()
		res.Answer = FallbackAnswer
	default:
		AnswersTotal.WithLabelValues(outcomeAnswered).Inc()
		res.Answer = reply
	}
	return res, nil
}

// buildContext joins non-blank match texts in store order.
func buildContext(matches []vectorstore.Match) (string, []Source) {
	parts := make([]string, 0, len(matches))
	sources := make([]Source, 0, len(matches))
	for _, m := range matches {
		if strings.TrimSpace(m.Metadata.Text) == "" {
			continue
		}
		parts = append(parts, m.Metadata.Text)
		sources = append(sources, Source{
			Path:       m.Metadata.Source,
			ChunkIndex: m.Metadata.ChunkIndex,
			Score:      m.Score,
		})
	}
	return strings.Join(parts, "\n\n"), sources
}

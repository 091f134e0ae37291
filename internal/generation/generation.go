// Package generation produces grounded answers and document summaries
// through a chat model.
package generation

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidConfig indicates invalid provider configuration.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrGenerationFailed indicates the model call failed.
	ErrGenerationFailed = errors.New("generation failed")

	// ErrEmptyResponse indicates the model returned no text.
	ErrEmptyResponse = errors.New("empty model response")

	// ErrEmptyInput indicates there was nothing to summarize.
	ErrEmptyInput = errors.New("empty input text")
)

// NoContext stands in for an empty context in the human message.
const NoContext = "No context available"

// SummaryInputLimit is how many characters of a document are summarized.
const SummaryInputLimit = 15000

// SummaryInstruction prefixes the document text in summary requests.
const SummaryInstruction = "Summarize the following document clearly and concisely:\n\n"

// Prompt is one grounded question.
type Prompt struct {
	System   string
	Context  string
	Question string
}

// HumanMessage renders the user turn sent alongside the system message.
func (p Prompt) HumanMessage() string {
	ctx := p.Context
	if strings.TrimSpace(ctx) == "" {
		ctx = NoContext
	}
	return fmt.Sprintf("Context:\n%s\n\nQuestion:\n%s", ctx, p.Question)
}

// Generator answers a prompt.
type Generator interface {
	Generate(ctx context.Context, p Prompt) (string, error)
}

// Summarizer condenses a document.
type Summarizer interface {
	Summarize(ctx context.Context, text string) (string, error)
}

// SummaryPrompt builds the summary request for text, keeping at most
// limit characters of it.
func SummaryPrompt(text string, limit int) string {
	return SummaryInstruction + truncateRunes(text, limit)
}

func truncateRunes(s string, limit int) string {
	if limit <= 0 {
		return s
	}
	n := 0
	for i := range s {
		if n == limit {
			return s[:i]
		}
		n++
	}
	return s
}

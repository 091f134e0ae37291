// Package chunker splits extracted document text into overlapping
// fixed-size windows.
package chunker

import (
	"errors"
	"fmt"
	"iter"
	"strings"
	"unicode/utf8"
)

// Default window settings.
const (
	DefaultSize    = 800
	DefaultOverlap = 100
)

// ErrInvalidConfig is returned when size and overlap cannot form a window.
var ErrInvalidConfig = errors.New("invalid chunker config")

// Chunk is one trimmed window of source text.
type Chunk struct {
	// Index is dense over emitted chunks, starting at 0.
	Index int
	Text  string
	// Offset is the byte offset of the window start in the source text.
	Offset int
}

// Chunker produces sliding rune windows of Size with stride Size-Overlap.
type Chunker struct {
	size    int
	overlap int
}

// New validates size and overlap.
func New(size, overlap int) (*Chunker, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: size must be > 0, got %d", ErrInvalidConfig, size)
	}
	if overlap < 0 || overlap >= size {
		return nil, fmt.Errorf("%w: overlap must be in [0, %d), got %d", ErrInvalidConfig, size, overlap)
	}
	return &Chunker{size: size, overlap: overlap}, nil
}

// Size returns the window length in runes.
func (c *Chunker) Size() int { return c.size }

// Overlap returns the overlap length in runes.
func (c *Chunker) Overlap() int { return c.overlap }

// Chunks returns a lazy sequence over text. Each iteration recomputes the
// windows, so ranging twice yields the same chunks.
func (c *Chunker) Chunks(text string) iter.Seq[Chunk] {
	return func(yield func(Chunk) bool) {
		if text == "" {
			return
		}

		// Byte offset of each rune, plus len(text) as the end sentinel.
		offsets := make([]int, 0, utf8.RuneCountInString(text)+1)
		for i := range text {
			offsets = append(offsets, i)
		}
		runes := len(offsets)
		offsets = append(offsets, len(text))

		stride := c.size - c.overlap
		index := 0
		for start := 0; start < runes; start += stride {
			end := min(start+c.size, runes)
			window := strings.TrimSpace(text[offsets[start]:offsets[end]])
			if window != "" {
				if !yield(Chunk{Index: index, Text: window, Offset: offsets[start]}) {
					return
				}
				index++
			}
		}
	}
}

// Split is the one-shot form of New(size, overlap).Chunks(text).
func Split(text string, size, overlap int) (iter.Seq[Chunk], error) {
	c, err := New(size, overlap)
	if err != nil {
		return nil, err
	}
	return c.Chunks(text), nil
}

// Collect drains seq into a slice.
func Collect(seq iter.Seq[Chunk]) []Chunk {
	var out []Chunk
	for ch := range seq {
		out = append(out, ch)
	}
	return out
}

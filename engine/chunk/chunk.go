// Package chunk splits document text into overlapping windows for indexing.
package chunk

import (
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/textsplitter"
)

// Defaults match the index's expected chunk shape.
const (
	DefaultSize    = 1000
	DefaultOverlap = 150
)

// Chunker splits text recursively on paragraph, line and word boundaries,
// falling back to raw character cuts for long unbroken runs. Lengths are
// measured in runes.
type Chunker struct {
	size     int
	overlap  int
	splitter textsplitter.RecursiveCharacter
}

// New creates a Chunker. Non-positive size or an overlap outside [0, size)
// falls back to the defaults.
func New(size, overlap int) *Chunker {
	if size <= 0 {
		size = DefaultSize
	}
	if overlap < 0 || overlap >= size {
		overlap = min(DefaultOverlap, size/2)
	}
	return &Chunker{
		size:    size,
		overlap: overlap,
		splitter: textsplitter.NewRecursiveCharacter(
			textsplitter.WithSeparators([]string{"\n\n", "\n", " ", ""}),
			textsplitter.WithChunkSize(size),
			textsplitter.WithChunkOverlap(overlap),
		),
	}
}

// Size returns the target chunk size.
func (c *Chunker) Size() int { return c.size }

// Overlap returns the overlap between neighbouring chunks.
func (c *Chunker) Overlap() int { return c.overlap }

// Split returns the ordered chunks of text. Whitespace-only input yields no
// chunks and no error.
func (c *Chunker) Split(text string) ([]string, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}
	parts, err := c.splitter.SplitText(text)
	if err != nil {
		return nil, fmt.Errorf("chunk: split: %w", err)
	}
	out := parts[:0]
	for _, p := range parts {
		if strings.TrimSpace(p) != "" {
			out = append(out, p)
		}
	}
	return out, nil
}

// Package chunker splits extracted text into overlapping fixed-size windows.
// The split is deterministic: the same text and configuration always yield
// the same spans, which re-indexing relies on.
package chunker

import (
	"fmt"

	"github.com/fabfab/doc-chat/fault"
)

// Chunker holds a validated window configuration. Size and Overlap are
// measured in runes so multi-byte text never splits mid-character.
type Chunker struct {
	size    int
	overlap int
}

// New validates the window configuration. Overlap must be smaller than size.
func New(size, overlap int) (*Chunker, error) {
	if size <= 0 {
		return nil, fmt.Errorf("chunk size %d must be positive: %w", size, fault.ErrInvalidConfig)
	}
	if overlap < 0 || overlap >= size {
		return nil, fmt.Errorf("overlap %d must be non-negative and less than size %d: %w", overlap, size, fault.ErrInvalidConfig)
	}
	return &Chunker{size: size, overlap: overlap}, nil
}

// Split returns the ordered sequence of spans. Span i starts at
// i*(size-overlap); every span is at most size runes and only the last may
// be shorter. Empty input yields no spans.
func (c *Chunker) Split(text string) []string {
	runes := []rune(text)
	if len(runes) == 0 {
		return nil
	}

	step := c.size - c.overlap
	spans := make([]string, 0, (len(runes)+step-1)/step)

	for start := 0; start < len(runes); start += step {
		end := start + c.size
		if end > len(runes) {
			end = len(runes)
		}
		spans = append(spans, string(runes[start:end]))
		if end == len(runes) {
			break
		}
	}

	return spans
}

// Size returns the configured window size.
func (c *Chunker) Size() int { return c.size }

// Overlap returns the configured window overlap.
func (c *Chunker) Overlap() int { return c.overlap }

// Package chunker splits document bodies into overlapping chunks sized in
// words, preferring paragraph and sentence boundaries.
package chunker

import (
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/textsplitter"
)

// Chunker splits text into chunks.
type Chunker struct {
	splitter textsplitter.RecursiveCharacter
}

// New returns a Chunker producing chunks of at most size words, with overlap
// words repeated between neighbours.
func New(size, overlap int) *Chunker {
	return &Chunker{
		splitter: textsplitter.NewRecursiveCharacter(
			textsplitter.WithChunkSize(size),
			textsplitter.WithChunkOverlap(overlap),
			textsplitter.WithSeparators([]string{"\n\n", "\n", ". ", " ", ""}),
			textsplitter.WithLenFunc(wordCount),
		),
	}
}

// Split returns the chunks of text. Blank text has no chunks.
func (c *Chunker) Split(text string) ([]string, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}
	parts, err := c.splitter.SplitText(text)
	if err != nil {
		return nil, fmt.Errorf("splitting text: %w", err)
	}
	chunks := parts[:0]
	for _, p := range parts {
		if strings.TrimSpace(p) != "" {
			chunks = append(chunks, p)
		}
	}
	return chunks, nil
}

func wordCount(s string) int {
	return len(strings.Fields(s))
}

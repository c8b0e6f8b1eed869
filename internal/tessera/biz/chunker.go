package biz

import (
	"strings"
	"unicode"
)

// Default chunking parameters.
const (
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 200

	// minChunkRunes drops mid-split trailing fragments too small to be a
	// useful citation. A whole document shorter than this still yields one
	// chunk.
	minChunkRunes = 20
)

// Chunker splits document text into overlapping passages.
// Chunking is deterministic: the same text and parameters always produce the
// same chunk boundaries.
type Chunker struct {
	size    int
	overlap int
}

// NewChunker creates a chunker with the given window size and overlap, both
// counted in runes. Invalid parameters fall back to the defaults.
func NewChunker(size, overlap int) *Chunker {
	if size <= 0 {
		size = DefaultChunkSize
	}
	if overlap < 0 || overlap >= size {
		overlap = DefaultChunkOverlap
		if overlap >= size {
			overlap = size / 5
		}
	}
	return &Chunker{size: size, overlap: overlap}
}

// Split produces the ordered chunk sequence for text.
// Windows advance by size-overlap runes; each window is trimmed back to the
// last whitespace boundary when one exists in its final fifth, so words are
// not cut mid-token. Text with no extractable content yields no chunks.
func (c *Chunker) Split(text string) []string {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil
	}

	runes := []rune(trimmed)
	if len(runes) <= c.size {
		return []string{trimmed}
	}

	var chunks []string
	step := c.size - c.overlap
	for i := 0; i < len(runes); i += step {
		end := i + c.size
		last := false
		if end >= len(runes) {
			end = len(runes)
			last = true
		} else {
			end = c.breakAt(runes, i, end)
		}

		chunk := strings.TrimSpace(string(runes[i:end]))
		if len([]rune(chunk)) >= minChunkRunes {
			chunks = append(chunks, chunk)
		}
		if last {
			break
		}
	}

	return chunks
}

// breakAt moves the window end back to the nearest whitespace so chunks end
// on a word boundary. It only scans the final fifth of the window; when no
// boundary is found there, the hard cut stands.
func (c *Chunker) breakAt(runes []rune, start, end int) int {
	limit := end - c.size/5
	if limit < start+1 {
		limit = start + 1
	}
	for i := end - 1; i >= limit; i-- {
		if unicode.IsSpace(runes[i]) {
			return i + 1
		}
	}
	return end
}

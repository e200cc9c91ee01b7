// Package indexer provides repository chunking and the background indexing job.
package indexer

import "strings"

// Chunker splits text into overlapping character windows, preferring to cut
// at paragraph, line, or word boundaries near the window end.
type Chunker struct {
	window  int
	overlap int
}

// NewChunker creates a chunker with the given window and overlap (in characters).
// Overlap must be smaller than window; invalid values fall back to window/8.
func NewChunker(window, overlap int) *Chunker {
	if window <= 0 {
		window = 1500
	}
	if overlap < 0 || overlap >= window {
		overlap = window / 8
	}
	return &Chunker{window: window, overlap: overlap}
}

// Split splits text into pieces of at most window characters. Consecutive
// pieces overlap by up to overlap characters, are produced in document order,
// and their non-overlapping spans concatenate back to the original text.
// Empty or whitespace-only input returns nil. Deterministic.
func (c *Chunker) Split(text string) []string {
	spans := c.splitSpans(text)
	if spans == nil {
		return nil
	}
	pieces := make([]string, len(spans))
	for i, s := range spans {
		pieces[i] = text[s[0]:s[1]]
	}
	return pieces
}

// splitSpans returns the [start, end) byte spans of each piece.
// Each span ends where the next piece's non-overlapping region begins,
// so span ends tile the text exactly.
func (c *Chunker) splitSpans(text string) [][2]int {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	var spans [][2]int
	start := 0
	for start < len(text) {
		end := start + c.window
		if end >= len(text) {
			spans = append(spans, [2]int{start, len(text)})
			break
		}
		cut := c.cutPoint(text, start, end)
		spans = append(spans, [2]int{start, cut})
		next := cut - c.overlap
		if next <= start {
			next = cut
		}
		start = next
	}
	return spans
}

// cutPoint picks where to end the piece starting at start, at most at hardEnd.
// It searches the tail of the window for a paragraph break, then a line break,
// then a space, and hard-cuts at hardEnd when none is found.
func (c *Chunker) cutPoint(text string, start, hardEnd int) int {
	// Only cut at a boundary if it keeps the piece reasonably full.
	floor := hardEnd - c.window/4
	if floor < start+1 {
		floor = start + 1
	}
	window := text[start:hardEnd]
	for _, sep := range []string{"\n\n", "\n", " "} {
		if idx := strings.LastIndex(window, sep); idx >= 0 {
			cut := start + idx + len(sep)
			if cut >= floor {
				return cut
			}
		}
	}
	return hardEnd
}

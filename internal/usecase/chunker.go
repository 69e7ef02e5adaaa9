package usecase

import (
	"strings"

	"ragresearch/internal/domain"
)

// Chunker splits extracted paper text into overlapping spans sized for
// the embedding model.
type Chunker struct {
	size    int
	overlap float64
}

func NewChunker(size int, overlapFraction float64) *Chunker {
	if size <= 0 {
		size = 1000
	}
	if overlapFraction < 0 || overlapFraction >= 1 {
		overlapFraction = 0.2
	}
	return &Chunker{size: size, overlap: overlapFraction}
}

// Split breaks text into chunks of roughly c.size characters with the
// configured overlap between consecutive chunks. Boundaries prefer
// sentence ends near the target size so chunks stay readable. Non-empty
// input always yields at least one chunk.
func (c *Chunker) Split(paperID, text string) []domain.Chunk {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	runes := []rune(text)
	overlapRunes := int(float64(c.size) * c.overlap)

	var chunks []domain.Chunk
	start := 0
	for start < len(runes) {
		end := start + c.size
		if end >= len(runes) {
			end = len(runes)
		} else {
			end = sentenceBoundary(runes, start, end)
		}

		content := strings.TrimSpace(string(runes[start:end]))
		if content != "" {
			chunks = append(chunks, domain.Chunk{
				PaperID: paperID,
				Seq:     len(chunks),
				Content: content,
			})
		}
		if end == len(runes) {
			break
		}

		next := end - overlapRunes
		if next <= start {
			next = start + 1
		}
		start = next
	}
	return chunks
}

// sentenceBoundary scans back from end for a sentence terminator, but
// never shrinks the chunk below half the requested span.
func sentenceBoundary(runes []rune, start, end int) int {
	min := start + (end-start)/2
	for i := end - 1; i > min; i-- {
		switch runes[i] {
		case '.', '!', '?', '\n':
			return i + 1
		}
	}
	return end
}

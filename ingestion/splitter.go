package ingestion

import (
	"strings"

	"github.com/poiesic/docrag/core"
)

const (
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 200
)

// Splitter cuts page text into fixed-size rune windows. Consecutive chunks of
// a page share Overlap runes; chunks never span pages.
type Splitter struct {
	size    int
	overlap int
}

// NewSplitter creates a Splitter. size must be positive and overlap in [0, size).
func NewSplitter(size, overlap int) (*Splitter, error) {
	if size <= 0 || overlap < 0 || overlap >= size {
		return nil, ErrInvalidChunking
	}
	return &Splitter{size: size, overlap: overlap}, nil
}

// Split returns the chunks of pages in document order. Output depends only on
// the input and the splitter settings.
func (s *Splitter) Split(documentID string, pages []core.Page) []core.DocumentChunk {
	var chunks []core.DocumentChunk
	for _, page := range pages {
		if strings.TrimSpace(page.Text) == "" {
			continue
		}
		runes := []rune(page.Text)

		start := 0
		for {
			end := min(start+s.size, len(runes))
			overlap := 0
			if start > 0 {
				overlap = s.overlap
			}

			index := len(chunks)
			chunks = append(chunks, core.DocumentChunk{
				Key:        core.ChunkKey(documentID, index),
				DocumentID: documentID,
				Index:      index,
				Text:       string(runes[start:end]),
				Overlap:    overlap,
				Page:       page.Number,
				Offset:     start,
			})

			if end == len(runes) {
				break
			}
			start = end - s.overlap
		}
	}
	return chunks
}

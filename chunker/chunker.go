package chunker

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Chunk is a bounded substring of a document's text. Offsets count runes into
// the document text the chunk was split from.
type Chunk struct {
	Id            string
	DocumentId    string
	SequenceIndex int
	Text          string
	StartOffset   int
	EndOffset     int
}

type Chunker struct {
	options Options
}

// Split walks the text in strides of ChunkSize-ChunkOverlap runes and emits one
// chunk per stride, clipped to the end of the text. Consecutive chunks overlap
// by exactly ChunkOverlap runes except possibly the final one, which may be
// shorter than ChunkSize. Windows never cut through a multi-byte rune, so every
// chunk is valid UTF-8. Chunks are returned in reading order.
func (c *Chunker) Split(documentId string, text string) ([]Chunk, error) {
	if c.options.ChunkSize <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", c.options.ChunkSize)
	}

	if c.options.ChunkOverlap < 0 || c.options.ChunkOverlap >= c.options.ChunkSize {
		return nil, fmt.Errorf("chunk overlap must be in [0, %d), got %d", c.options.ChunkSize, c.options.ChunkOverlap)
	}

	if len(strings.TrimSpace(text)) == 0 {
		return nil, fmt.Errorf("document %s has no text to split", documentId)
	}

	stride := c.options.ChunkSize - c.options.ChunkOverlap

	runes := []rune(text)

	var chunks []Chunk

	for offset := 0; offset < len(runes); offset += stride {
		end := offset + c.options.ChunkSize
		if end > len(runes) {
			end = len(runes)
		}

		chunks = append(chunks, Chunk{
			Id:            uuid.New().String(),
			DocumentId:    documentId,
			SequenceIndex: len(chunks),
			Text:          string(runes[offset:end]),
			StartOffset:   offset,
			EndOffset:     end,
		})
	}

	return chunks, nil
}

func New(opts ...Option) *Chunker {
	options := NewOptions(opts...)

	return &Chunker{
		options: options,
	}
}

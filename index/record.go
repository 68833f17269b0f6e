package index

import "time"

// Record pairs one embedding vector with the chunk it was computed from, so
// search can return human-readable context without a second store lookup.
type Record struct {
	Id            string    `json:"id"`
	DocumentId    string    `json:"document_id"`
	SequenceIndex int       `json:"sequence_index"`
	Text          string    `json:"text"`
	StartOffset   int       `json:"start_offset"`
	EndOffset     int       `json:"end_offset"`
	Embedding     []float32 `json:"embedding"`
	Score         float32   `json:"score,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

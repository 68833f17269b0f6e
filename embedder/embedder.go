package embedder

import "context"

// Embedder maps texts to fixed-length vectors. Implementations must preserve
// input order, return exactly one vector per input text, and fail as a unit
// when the upstream call fails or returns a mismatched count or dimension.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
}

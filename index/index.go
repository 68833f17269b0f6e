package index

import (
	"context"
	"fmt"
)

// Index stores embedding records and answers k-nearest-neighbor queries by
// cosine similarity. Insertion is append-only. The first successful insert
// establishes the vector dimension for an empty index; every later vector must
// match it.
type Index interface {
	// Insert appends the batch and returns the number of records inserted.
	// The whole batch is validated before the index is touched, so a failed
	// insert never mutates the index.
	Insert(ctx context.Context, records []Record) (int, error)

	// Search returns at most k records ordered by decreasing similarity, with
	// ties broken by insertion order. An empty index yields an empty result,
	// not an error.
	Search(ctx context.Context, vector []float32, k int) ([]Record, error)

	// Persist writes the full record set to durable storage. Backends that
	// are already durable treat this as a no-op.
	Persist(ctx context.Context) error

	// Load restores previously persisted state. A missing snapshot is not an
	// error; a corrupt one is.
	Load(ctx context.Context) error

	// Reset discards all records. The dimension reverts to unestablished.
	Reset(ctx context.Context) error

	Count(ctx context.Context) (int, error)

	// Dimension reports the established vector dimension, 0 if none.
	Dimension() int
}

// DimensionError reports a vector whose length does not match the index's
// established dimension.
type DimensionError struct {
	Want int
	Got  int
}

func (e *DimensionError) Error() string {
	return fmt.Sprintf("vector dimension %d does not match index dimension %d", e.Got, e.Want)
}

package flat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/w-h-a/pdfrag/index"
)

// flatIndex is an exact brute-force cosine index. Records live in insertion
// order in a single slice, which doubles as the tie-break order for search.
type flatIndex struct {
	options   index.Options
	dimension int
	records   []index.Record
	mtx       sync.RWMutex
}

type snapshot struct {
	Dimension int            `json:"dimension"`
	Records   []index.Record `json:"records"`
}

func (f *flatIndex) Insert(ctx context.Context, records []index.Record) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}

	f.mtx.Lock()
	defer f.mtx.Unlock()

	dimension := f.dimension
	if dimension == 0 {
		dimension = len(records[0].Embedding)
	}

	if dimension == 0 {
		return 0, errors.New("cannot insert empty vectors")
	}

	for _, rec := range records {
		if len(rec.Embedding) != dimension {
			return 0, &index.DimensionError{Want: dimension, Got: len(rec.Embedding)}
		}
	}

	now := time.Now().UTC()

	for _, rec := range records {
		cpy := make([]float32, len(rec.Embedding))
		copy(cpy, rec.Embedding)

		rec.Embedding = cpy
		rec.CreatedAt = now

		f.records = append(f.records, rec)
	}

	f.dimension = dimension

	return len(records), nil
}

func (f *flatIndex) Search(ctx context.Context, vector []float32, k int) ([]index.Record, error) {
	if k <= 0 {
		return nil, fmt.Errorf("k must be positive, got %d", k)
	}

	f.mtx.RLock()
	defer f.mtx.RUnlock()

	if len(f.records) == 0 {
		return []index.Record{}, nil
	}

	if len(vector) != f.dimension {
		return nil, &index.DimensionError{Want: f.dimension, Got: len(vector)}
	}

	candidates := make([]index.Record, len(f.records))

	for i, rec := range f.records {
		rec.Score = float32(index.Cosine(vector, rec.Embedding))
		candidates[i] = rec
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Score > candidates[j].Score
	})

	if len(candidates) > k {
		candidates = candidates[:k]
	}

	return candidates, nil
}

func (f *flatIndex) Persist(ctx context.Context) error {
	f.mtx.RLock()
	snap := snapshot{
		Dimension: f.dimension,
		Records:   f.records,
	}
	data, err := json.Marshal(snap)
	f.mtx.RUnlock()

	if err != nil {
		return fmt.Errorf("failed to encode index snapshot: %w", err)
	}

	dir := filepath.Dir(f.options.Location)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create snapshot directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".index-*")
	if err != nil {
		return fmt.Errorf("failed to create snapshot file: %w", err)
	}

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write snapshot: %w", err)
	}

	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to close snapshot: %w", err)
	}

	if err := os.Rename(tmp.Name(), f.options.Location); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to move snapshot into place: %w", err)
	}

	return nil
}

func (f *flatIndex) Load(ctx context.Context) error {
	data, err := os.ReadFile(f.options.Location)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read index snapshot %s: %w", f.options.Location, err)
	}

	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("corrupt index snapshot %s: %w", f.options.Location, err)
	}

	for _, rec := range snap.Records {
		if len(rec.Embedding) != snap.Dimension {
			return fmt.Errorf("corrupt index snapshot %s: record %s has dimension %d, want %d", f.options.Location, rec.Id, len(rec.Embedding), snap.Dimension)
		}
	}

	f.mtx.Lock()
	defer f.mtx.Unlock()

	f.dimension = snap.Dimension
	f.records = snap.Records

	return nil
}

func (f *flatIndex) Reset(ctx context.Context) error {
	f.mtx.Lock()
	defer f.mtx.Unlock()

	f.dimension = 0
	f.records = nil

	return nil
}

func (f *flatIndex) Count(ctx context.Context) (int, error) {
	f.mtx.RLock()
	defer f.mtx.RUnlock()

	return len(f.records), nil
}

func (f *flatIndex) Dimension() int {
	f.mtx.RLock()
	defer f.mtx.RUnlock()

	return f.dimension
}

func NewIndex(opts ...index.Option) index.Index {
	options := index.NewOptions(opts...)

	if len(options.Location) == 0 {
		options.Location = "pdfrag.index.json"
	}

	f := &flatIndex{
		options: options,
	}

	return f
}

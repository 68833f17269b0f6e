package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/w-h-a/pdfrag/chunker"
	"github.com/w-h-a/pdfrag/embedder"
	"github.com/w-h-a/pdfrag/extractor"
	"github.com/w-h-a/pdfrag/index"
)

type IngestStats struct {
	TotalDocuments  int
	TotalChunks     int
	TotalEmbeddings int
	Durable         bool
}

type QueryResult struct {
	Context          []string
	Scores           []float32
	NumContextChunks int
}

// Pipeline orchestrates ingestion (chunk, embed, insert) and query (embed,
// search) against the one index it owns. It keeps no other state.
type Pipeline struct {
	chunker  *chunker.Chunker
	embedder embedder.Embedder
	index    index.Index

	// serializes insert/persist/reset/load so a concurrent search observes
	// either the pre-batch or post-batch index state, never a partial batch
	mtx sync.Mutex
}

// Ingest runs each document through chunking and embedding, then inserts the
// document's records as one atomic batch. A failure embeds or inserts nothing
// for that document; other documents proceed independently, and the stats
// count only fully ingested documents. After the last document the index is
// persisted synchronously; if that write fails the in-memory insert is kept
// and a PersistenceError reports the durability gap.
func (p *Pipeline) Ingest(ctx context.Context, docs []extractor.Document) (IngestStats, error) {
	stats := IngestStats{Durable: true}

	if len(docs) == 0 {
		return stats, &InputError{Err: errors.New("no documents to ingest")}
	}

	var firstErr error

	for _, doc := range docs {
		inserted, err := p.ingestOne(ctx, doc)
		if err != nil {
			slog.WarnContext(ctx, "skipping document", "document", doc.Filename, "error", err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}

		stats.TotalDocuments++
		stats.TotalChunks += inserted
		stats.TotalEmbeddings += inserted
	}

	if stats.TotalDocuments == 0 {
		return IngestStats{}, firstErr
	}

	p.mtx.Lock()
	err := p.index.Persist(ctx)
	p.mtx.Unlock()

	if err != nil {
		stats.Durable = false
		return stats, &PersistenceError{Err: err}
	}

	return stats, nil
}

// ingestOne builds the full batch of records before touching the shared
// index, so the insert is all-or-nothing with respect to concurrent search.
func (p *Pipeline) ingestOne(ctx context.Context, doc extractor.Document) (int, error) {
	chunks, err := p.chunker.Split(doc.Id, doc.Text)
	if err != nil {
		return 0, &InputError{Err: err}
	}

	texts := make([]string, len(chunks))
	for i, chunk := range chunks {
		texts[i] = chunk.Text
	}

	vectors, err := p.embedder.Embed(ctx, texts)
	if err != nil {
		return 0, &ExternalError{Op: "embed", Err: err}
	}

	if len(vectors) != len(chunks) {
		return 0, &ExternalError{Op: "embed", Err: fmt.Errorf("got %d vectors for %d chunks", len(vectors), len(chunks))}
	}

	records := make([]index.Record, len(chunks))
	for i, chunk := range chunks {
		records[i] = index.Record{
			Id:            chunk.Id,
			DocumentId:    chunk.DocumentId,
			SequenceIndex: chunk.SequenceIndex,
			Text:          chunk.Text,
			StartOffset:   chunk.StartOffset,
			EndOffset:     chunk.EndOffset,
			Embedding:     vectors[i],
		}
	}

	p.mtx.Lock()
	defer p.mtx.Unlock()

	return p.index.Insert(ctx, records)
}

// Query embeds the question and returns the top-k most similar chunk texts
// with their scores. An empty index yields an empty result, not an error.
func (p *Pipeline) Query(ctx context.Context, question string, topK int) (QueryResult, error) {
	if len(strings.TrimSpace(question)) == 0 {
		return QueryResult{}, &InputError{Err: errors.New("question is required")}
	}

	if topK <= 0 {
		return QueryResult{}, &InputError{Err: fmt.Errorf("top_k must be positive, got %d", topK)}
	}

	count, err := p.index.Count(ctx)
	if err != nil {
		return QueryResult{}, err
	}

	if count == 0 {
		return QueryResult{Context: []string{}, Scores: []float32{}}, nil
	}

	vectors, err := p.embedder.Embed(ctx, []string{question})
	if err != nil {
		return QueryResult{}, &ExternalError{Op: "embed", Err: err}
	}

	results, err := p.index.Search(ctx, vectors[0], topK)
	if err != nil {
		return QueryResult{}, err
	}

	out := QueryResult{
		Context:          make([]string, 0, len(results)),
		Scores:           make([]float32, 0, len(results)),
		NumContextChunks: len(results),
	}

	for _, rec := range results {
		out.Context = append(out.Context, rec.Text)
		out.Scores = append(out.Scores, rec.Score)
	}

	return out, nil
}

// Reset discards all ingested state and persists the cleared index so a
// restart cannot resurrect it.
func (p *Pipeline) Reset(ctx context.Context) error {
	p.mtx.Lock()
	defer p.mtx.Unlock()

	if err := p.index.Reset(ctx); err != nil {
		return err
	}

	if err := p.index.Persist(ctx); err != nil {
		return &PersistenceError{Err: err}
	}

	return nil
}

// Load restores the persisted index at startup. Corruption propagates so the
// process can fail fast with a clear message.
func (p *Pipeline) Load(ctx context.Context) error {
	p.mtx.Lock()
	defer p.mtx.Unlock()

	return p.index.Load(ctx)
}

func New(c *chunker.Chunker, e embedder.Embedder, idx index.Index) *Pipeline {
	return &Pipeline{
		chunker:  c,
		embedder: e,
		index:    idx,
	}
}

package pdfrag

import (
	"context"
	"errors"
	"fmt"

	"github.com/w-h-a/pdfrag/extractor"
	"github.com/w-h-a/pdfrag/generator"
	"github.com/w-h-a/pdfrag/pipeline"
)

const defaultTopK = 5

// File is one uploaded document: a filename and its raw bytes.
type File struct {
	Filename string
	Content  []byte
}

// Answer is the full query response: the generated text plus the retrieved
// context it was grounded on.
type Answer struct {
	Response         string
	Context          []string
	Scores           []float32
	NumContextChunks int
}

// RAG wires the extraction boundary, the retrieval pipeline, and the answer
// generator into the three operations the API exposes.
type RAG struct {
	extractor extractor.Extractor
	pipeline  *pipeline.Pipeline
	generator generator.Generator
}

// IngestPDFs extracts text from each file and hands the documents to the
// pipeline. An unreadable file fails the whole call before any ingestion
// starts, so the caller can fix the upload and retry it as a unit.
func (r *RAG) IngestPDFs(ctx context.Context, files []File) (pipeline.IngestStats, error) {
	if len(files) == 0 {
		return pipeline.IngestStats{}, &pipeline.InputError{Err: errors.New("no files to ingest")}
	}

	docs := make([]extractor.Document, 0, len(files))

	for _, file := range files {
		doc, err := r.extractor.Extract(ctx, file.Filename, file.Content)
		if err != nil {
			return pipeline.IngestStats{}, &pipeline.InputError{Err: err}
		}
		docs = append(docs, doc)
	}

	return r.pipeline.Ingest(ctx, docs)
}

// Ask retrieves context for the question and asks the generator to answer
// from it. A zero topK means the caller left it unset and falls back to the
// default; a negative one is rejected. The generator is invoked even with
// empty context; what it says then is its own contract.
func (r *RAG) Ask(ctx context.Context, question string, topK int) (Answer, error) {
	if topK < 0 {
		return Answer{}, &pipeline.InputError{Err: fmt.Errorf("top_k must not be negative, got %d", topK)}
	}

	if topK == 0 {
		topK = defaultTopK
	}

	result, err := r.pipeline.Query(ctx, question, topK)
	if err != nil {
		return Answer{}, err
	}

	response, err := r.generator.Generate(ctx, question, result.Context)
	if err != nil {
		return Answer{}, &pipeline.ExternalError{Op: "generate", Err: err}
	}

	return Answer{
		Response:         response,
		Context:          result.Context,
		Scores:           result.Scores,
		NumContextChunks: result.NumContextChunks,
	}, nil
}

func (r *RAG) Reset(ctx context.Context) error {
	return r.pipeline.Reset(ctx)
}

func (r *RAG) Load(ctx context.Context) error {
	return r.pipeline.Load(ctx)
}

func New(e extractor.Extractor, p *pipeline.Pipeline, g generator.Generator) *RAG {
	return &RAG{
		extractor: e,
		pipeline:  p,
		generator: g,
	}
}

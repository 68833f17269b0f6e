package google

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/generative-ai-go/genai"
	"github.com/w-h-a/pdfrag/embedder"
	genaiopt "google.golang.org/api/option"
)

type googleEmbedder struct {
	options embedder.Options
	client  *genai.Client
}

func (e *googleEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, errors.New("no texts to embed")
	}

	ctx, cancel := context.WithTimeout(ctx, e.options.Timeout)
	defer cancel()

	model := e.client.EmbeddingModel(e.options.Model)

	batch := model.NewBatch()
	for _, text := range texts {
		batch = batch.AddContent(genai.Text(text))
	}

	rsp, err := model.BatchEmbedContents(ctx, batch)
	if err != nil {
		return nil, err
	}

	if rsp == nil || len(rsp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("google returned %d embeddings for %d texts", countEmbeddings(rsp), len(texts))
	}

	vectors := make([][]float32, len(texts))

	for i, content := range rsp.Embeddings {
		if content == nil || len(content.Values) != e.options.Dimension {
			return nil, fmt.Errorf("google returned a %d-dimension vector for text %d, want %d", countValues(content), i, e.options.Dimension)
		}
		vectors[i] = content.Values
	}

	return vectors, nil
}

func (e *googleEmbedder) Dimension() int {
	return e.options.Dimension
}

func countEmbeddings(rsp *genai.BatchEmbedContentsResponse) int {
	if rsp == nil {
		return 0
	}
	return len(rsp.Embeddings)
}

func countValues(content *genai.ContentEmbedding) int {
	if content == nil {
		return 0
	}
	return len(content.Values)
}

func NewEmbedder(opts ...embedder.Option) embedder.Embedder {
	options := embedder.NewOptions(opts...)

	if len(options.Model) == 0 {
		options.Model = "text-embedding-004"
	}

	e := &googleEmbedder{
		options: options,
	}

	client, err := genai.NewClient(
		context.Background(),
		genaiopt.WithAPIKey(options.ApiKey),
	)
	if err != nil {
		panic(err)
	}

	e.client = client

	return e
}

package openai

import (
	"context"
	"errors"
	"fmt"

	"github.com/sashabaranov/go-openai"
	"github.com/w-h-a/pdfrag/embedder"
)

type openAIEmbedder struct {
	options embedder.Options
	client  *openai.Client
}

func (e *openAIEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, errors.New("no texts to embed")
	}

	ctx, cancel := context.WithTimeout(ctx, e.options.Timeout)
	defer cancel()

	rsp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input:      texts,
		Model:      openai.EmbeddingModel(e.options.Model),
		Dimensions: e.options.Dimension,
	})
	if err != nil {
		return nil, err
	}

	if len(rsp.Data) != len(texts) {
		return nil, fmt.Errorf("openai returned %d embeddings for %d texts", len(rsp.Data), len(texts))
	}

	vectors := make([][]float32, len(texts))

	for _, data := range rsp.Data {
		if data.Index < 0 || data.Index >= len(vectors) {
			return nil, fmt.Errorf("openai returned out-of-range embedding index %d", data.Index)
		}
		if len(data.Embedding) != e.options.Dimension {
			return nil, fmt.Errorf("openai returned a %d-dimension vector, want %d", len(data.Embedding), e.options.Dimension)
		}
		vectors[data.Index] = data.Embedding
	}

	for i, vec := range vectors {
		if vec == nil {
			return nil, fmt.Errorf("openai returned no embedding for text %d", i)
		}
	}

	return vectors, nil
}

func (e *openAIEmbedder) Dimension() int {
	return e.options.Dimension
}

func NewEmbedder(opts ...embedder.Option) embedder.Embedder {
	options := embedder.NewOptions(opts...)

	if len(options.Model) == 0 {
		options.Model = string(openai.LargeEmbedding3)
	}

	e := &openAIEmbedder{
		options: options,
	}

	client := openai.NewClient(options.ApiKey)

	e.client = client

	return e
}

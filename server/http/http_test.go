package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pdfrag "github.com/w-h-a/pdfrag"
	"github.com/w-h-a/pdfrag/chunker"
	"github.com/w-h-a/pdfrag/extractor"
	"github.com/w-h-a/pdfrag/index"
	"github.com/w-h-a/pdfrag/index/flat"
	"github.com/w-h-a/pdfrag/pipeline"
	"github.com/w-h-a/pdfrag/server"
)

type fakeExtractor struct{}

func (e *fakeExtractor) Extract(ctx context.Context, filename string, content []byte) (extractor.Document, error) {
	if len(content) == 0 {
		return extractor.Document{}, errors.New("empty file")
	}
	return extractor.Document{
		Id:        filename,
		Filename:  filename,
		PageCount: 1,
		Text:      string(content),
	}, nil
}

type fakeEmbedder struct {
	err error
}

func (e *fakeEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if e.err != nil {
		return nil, e.err
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = []float32{1, float32(len(text) % 10), 0}
	}
	return out, nil
}

func (e *fakeEmbedder) Dimension() int {
	return 3
}

type fakeGenerator struct {
	response string
	err      error
	contexts []string
}

func (g *fakeGenerator) Generate(ctx context.Context, question string, contextTexts []string) (string, error) {
	g.contexts = contextTexts
	if g.err != nil {
		return "", g.err
	}
	return g.response, nil
}

func newTestHandler(t *testing.T, e *fakeEmbedder, g *fakeGenerator) http.Handler {
	t.Helper()

	c := chunker.New(chunker.WithChunkSize(100), chunker.WithChunkOverlap(20))
	idx := flat.NewIndex(index.WithLocation(filepath.Join(t.TempDir(), "index.json")))

	p := pipeline.New(c, e, idx)

	return NewHandler(pdfrag.New(&fakeExtractor{}, p, g))
}

func multipartBody(t *testing.T, filenames map[string]string) (*bytes.Buffer, string) {
	t.Helper()

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	for name, content := range filenames {
		part, err := writer.CreateFormFile("files", name)
		require.NoError(t, err)
		_, err = part.Write([]byte(content))
		require.NoError(t, err)
	}

	require.NoError(t, writer.Close())

	return body, writer.FormDataContentType()
}

func TestHealth(t *testing.T) {
	handler := newTestHandler(t, &fakeEmbedder{}, &fakeGenerator{})

	for _, path := range []string{"/", "/health"} {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "healthy")
	}
}

func TestIngestPDF(t *testing.T) {
	handler := newTestHandler(t, &fakeEmbedder{}, &fakeGenerator{})

	body, contentType := multipartBody(t, map[string]string{
		"doc.pdf": strings.Repeat("sample text ", 30),
	})

	req := httptest.NewRequest(http.MethodPost, "/ingest-pdf", body)
	req.Header.Set("Content-Type", contentType)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var rsp ingestResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rsp))

	assert.Equal(t, 1, rsp.TotalDocuments)
	assert.Greater(t, rsp.TotalChunks, 0)
	assert.Equal(t, rsp.TotalChunks, rsp.TotalEmbeddings)
	assert.True(t, rsp.Durable)
}

func TestIngestRejectsNonPDF(t *testing.T) {
	handler := newTestHandler(t, &fakeEmbedder{}, &fakeGenerator{})

	body, contentType := multipartBody(t, map[string]string{
		"notes.txt": "plain text",
	})

	req := httptest.NewRequest(http.MethodPost, "/ingest-pdf", body)
	req.Header.Set("Content-Type", contentType)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "not a pdf")
}

func TestIngestRejectsEmptyUpload(t *testing.T) {
	handler := newTestHandler(t, &fakeEmbedder{}, &fakeGenerator{})

	body, contentType := multipartBody(t, map[string]string{})

	req := httptest.NewRequest(http.MethodPost, "/ingest-pdf", body)
	req.Header.Set("Content-Type", contentType)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestIngestMapsExternalErrors(t *testing.T) {
	handler := newTestHandler(t, &fakeEmbedder{err: errors.New("quota exceeded")}, &fakeGenerator{})

	body, contentType := multipartBody(t, map[string]string{
		"doc.pdf": strings.Repeat("sample text ", 30),
	})

	req := httptest.NewRequest(http.MethodPost, "/ingest-pdf", body)
	req.Header.Set("Content-Type", contentType)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Contains(t, rec.Body.String(), "quota exceeded")
}

func TestQueryEmptyIndex(t *testing.T) {
	g := &fakeGenerator{response: "I have no documents to draw on."}
	handler := newTestHandler(t, &fakeEmbedder{}, g)

	payload := `{"question": "what is in the corpus?", "top_k": 5}`

	req := httptest.NewRequest(http.MethodPost, "/query-pdf", strings.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var rsp queryResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rsp))

	assert.Equal(t, g.response, rsp.Response)
	assert.Empty(t, rsp.Context)
	assert.Empty(t, rsp.SimilarityScores)
	assert.Zero(t, rsp.NumContextChunks)

	// the generator is still invoked, with empty context
	assert.Empty(t, g.contexts)
}

func TestQueryAfterIngest(t *testing.T) {
	e := &fakeEmbedder{}
	g := &fakeGenerator{response: "the document is about testing"}

	c := chunker.New(chunker.WithChunkSize(100), chunker.WithChunkOverlap(20))
	idx := flat.NewIndex(index.WithLocation(filepath.Join(t.TempDir(), "index.json")))
	handler := NewHandler(pdfrag.New(&fakeExtractor{}, pipeline.New(c, e, idx), g))

	body, contentType := multipartBody(t, map[string]string{
		"doc.pdf": strings.Repeat("all about testing ", 20),
	})

	ingestReq := httptest.NewRequest(http.MethodPost, "/ingest-pdf", body)
	ingestReq.Header.Set("Content-Type", contentType)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, ingestReq)
	require.Equal(t, http.StatusOK, rec.Code)

	queryReq := httptest.NewRequest(http.MethodPost, "/query-pdf", strings.NewReader(`{"question": "what is it about?"}`))
	queryReq.Header.Set("Content-Type", "application/json")

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, queryReq)
	require.Equal(t, http.StatusOK, rec.Code)

	var rsp queryResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rsp))

	assert.Equal(t, g.response, rsp.Response)
	assert.NotEmpty(t, rsp.Context)
	assert.Len(t, rsp.SimilarityScores, len(rsp.Context))
	assert.Equal(t, len(rsp.Context), rsp.NumContextChunks)
}

func TestQueryValidation(t *testing.T) {
	handler := newTestHandler(t, &fakeEmbedder{}, &fakeGenerator{})

	cases := []string{
		`{"question": ""}`,
		`{"question": "   "}`,
		`{"question": "ok", "top_k": -1}`,
		`not json`,
	}

	for _, payload := range cases {
		req := httptest.NewRequest(http.MethodPost, "/query-pdf", strings.NewReader(payload))
		req.Header.Set("Content-Type", "application/json")

		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code, "payload: %s", payload)
	}
}

func TestResetThenQuery(t *testing.T) {
	e := &fakeEmbedder{}
	g := &fakeGenerator{response: "nothing indexed"}

	c := chunker.New(chunker.WithChunkSize(100), chunker.WithChunkOverlap(20))
	idx := flat.NewIndex(index.WithLocation(filepath.Join(t.TempDir(), "index.json")))
	handler := NewHandler(pdfrag.New(&fakeExtractor{}, pipeline.New(c, e, idx), g))

	body, contentType := multipartBody(t, map[string]string{
		"doc.pdf": strings.Repeat("content ", 50),
	})

	ingestReq := httptest.NewRequest(http.MethodPost, "/ingest-pdf", body)
	ingestReq.Header.Set("Content-Type", contentType)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, ingestReq)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/reset-pdf", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	queryReq := httptest.NewRequest(http.MethodPost, "/query-pdf", strings.NewReader(`{"question": "anything?"}`))
	queryReq.Header.Set("Content-Type", "application/json")

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, queryReq)
	require.Equal(t, http.StatusOK, rec.Code)

	var rsp queryResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rsp))
	assert.Zero(t, rsp.NumContextChunks)
}

func TestMiddlewareOption(t *testing.T) {
	var seen []string

	mw := func(h http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			seen = append(seen, r.URL.Path)
			h.ServeHTTP(w, r)
		})
	}

	options := server.NewOptions(WithMiddleware(mw))

	ms, ok := MiddlewareFrom(options.Context)
	require.True(t, ok)
	require.Len(t, ms, 1)

	c := chunker.New(chunker.WithChunkSize(100), chunker.WithChunkOverlap(20))
	idx := flat.NewIndex(index.WithLocation(filepath.Join(t.TempDir(), "index.json")))
	rag := pdfrag.New(&fakeExtractor{}, pipeline.New(c, &fakeEmbedder{}, idx), &fakeGenerator{})

	handler := NewHandler(rag, ms...)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"/health"}, seen)
}

func TestCORSPreflight(t *testing.T) {
	handler := newTestHandler(t, &fakeEmbedder{}, &fakeGenerator{})

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodOptions, "/query-pdf", nil))

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

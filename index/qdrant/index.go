package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/w-h-a/pdfrag/index"
	getsafe "github.com/w-h-a/pdfrag/util/get_safe"
)

// qdrantIndex delegates storage and nearest-neighbor search to a qdrant
// collection with Cosine distance. Ordering among equal scores is whatever
// qdrant returns, which is within the approximation tolerance the contract
// allows for non-flat structures.
type qdrantIndex struct {
	options index.Options
	client  *http.Client
}

func (s *qdrantIndex) Insert(ctx context.Context, records []index.Record) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}

	for _, rec := range records {
		if len(rec.Embedding) != s.options.Dimension {
			return 0, &index.DimensionError{Want: s.options.Dimension, Got: len(rec.Embedding)}
		}
	}

	now := time.Now().UTC()

	points := make([]map[string]any, 0, len(records))

	for _, rec := range records {
		payload := map[string]any{
			"document_id":    rec.DocumentId,
			"sequence_index": rec.SequenceIndex,
			"content":        rec.Text,
			"start_offset":   rec.StartOffset,
			"end_offset":     rec.EndOffset,
			"created_at":     now.Format(time.RFC3339Nano),
		}

		points = append(points, map[string]any{
			"id":      rec.Id,
			"vector":  rec.Embedding,
			"payload": payload,
		})
	}

	req := map[string]any{
		"points": points,
	}

	var rsp qdrantEnvelope[json.RawMessage]

	path := fmt.Sprintf("/collections/%s/points?wait=true", url.PathEscape(s.options.Collection))

	if err := s.do(ctx, http.MethodPut, path, req, &rsp); err != nil {
		return 0, err
	}

	if !strings.EqualFold(rsp.Status.State, "ok") && len(rsp.Status.Error) > 0 {
		return 0, errors.New(rsp.Status.Error)
	}

	return len(records), nil
}

func (s *qdrantIndex) Search(ctx context.Context, vector []float32, k int) ([]index.Record, error) {
	if k <= 0 {
		return nil, fmt.Errorf("k must be positive, got %d", k)
	}

	if len(vector) != s.options.Dimension {
		return nil, &index.DimensionError{Want: s.options.Dimension, Got: len(vector)}
	}

	req := map[string]any{
		"vector":       vector,
		"limit":        k,
		"with_vector":  true,
		"with_payload": true,
	}

	var rsp qdrantEnvelope[[]qdrantPointResult]

	path := fmt.Sprintf("/collections/%s/points/search", url.PathEscape(s.options.Collection))

	if err := s.do(ctx, http.MethodPost, path, req, &rsp); err != nil {
		return nil, err
	}

	results := make([]index.Record, 0, len(rsp.Result))

	for _, point := range rsp.Result {
		payload := point.Payload

		createdAt, _ := time.Parse(time.RFC3339Nano, getsafe.String(payload, "created_at"))

		rec := index.Record{
			Id:            point.Id,
			DocumentId:    getsafe.String(payload, "document_id"),
			SequenceIndex: getsafe.Int(payload, "sequence_index"),
			Text:          getsafe.String(payload, "content"),
			StartOffset:   getsafe.Int(payload, "start_offset"),
			EndOffset:     getsafe.Int(payload, "end_offset"),
			Embedding:     point.Vector,
			Score:         float32(point.Score),
			CreatedAt:     createdAt,
		}

		results = append(results, rec)
	}

	return results, nil
}

func (s *qdrantIndex) Persist(ctx context.Context) error {
	// points are written with wait=true, so they are already durable
	return nil
}

func (s *qdrantIndex) Load(ctx context.Context) error {
	return s.configure()
}

func (s *qdrantIndex) Reset(ctx context.Context) error {
	path := fmt.Sprintf("/collections/%s", url.PathEscape(s.options.Collection))

	var rsp qdrantEnvelope[json.RawMessage]

	if err := s.do(ctx, http.MethodDelete, path, nil, &rsp); err != nil {
		return err
	}

	return s.createCollection()
}

func (s *qdrantIndex) Count(ctx context.Context) (int, error) {
	req := map[string]any{
		"exact": true,
	}

	var rsp qdrantEnvelope[qdrantCountResult]

	path := fmt.Sprintf("/collections/%s/points/count", url.PathEscape(s.options.Collection))

	if err := s.do(ctx, http.MethodPost, path, req, &rsp); err != nil {
		return 0, err
	}

	return rsp.Result.Count, nil
}

func (s *qdrantIndex) Dimension() int {
	return s.options.Dimension
}

func (s *qdrantIndex) do(ctx context.Context, method string, path string, req any, rsp any) error {
	u := s.options.Location + path
	var buf io.Reader
	if req != nil {
		data, err := json.Marshal(req)
		if err != nil {
			return err
		}
		buf = bytes.NewReader(data)
	}

	request, err := http.NewRequestWithContext(ctx, method, u, buf)
	if err != nil {
		return err
	}

	request.Header.Set("Content-Type", "application/json")

	if len(s.options.ApiKey) > 0 {
		request.Header.Set("api-key", s.options.ApiKey)
		request.Header.Set("Authorization", "Bearer "+s.options.ApiKey)
	}

	response, err := s.client.Do(request)
	if err != nil {
		return err
	}
	defer response.Body.Close()

	payload, err := io.ReadAll(response.Body)
	if err != nil {
		return err
	}

	if response.StatusCode >= 400 {
		return fmt.Errorf("qdrant http %d: %s", response.StatusCode, string(payload))
	}

	if rsp != nil && len(payload) > 0 {
		if err := json.Unmarshal(payload, rsp); err != nil {
			return err
		}
	}

	return nil
}

func (s *qdrantIndex) configure() error {
	exists, err := s.collectionExists()
	if err != nil {
		return err
	}

	if exists {
		return nil
	}

	return s.createCollection()
}

func (s *qdrantIndex) collectionExists() (bool, error) {
	path := fmt.Sprintf("/collections/%s", url.PathEscape(s.options.Collection))

	var rsp qdrantEnvelope[json.RawMessage]

	err := s.do(context.Background(), http.MethodGet, path, nil, &rsp)
	if err != nil {
		if strings.Contains(err.Error(), "404") {
			return false, nil
		}
		return false, err
	}

	return strings.EqualFold(rsp.Status.State, "ok"), nil
}

func (s *qdrantIndex) createCollection() error {
	req := map[string]any{
		"vectors": map[string]any{
			"size":     s.options.Dimension,
			"distance": "Cosine",
		},
	}

	path := fmt.Sprintf("/collections/%s", url.PathEscape(s.options.Collection))

	var rsp qdrantEnvelope[json.RawMessage]

	if err := s.do(context.Background(), http.MethodPut, path, req, &rsp); err != nil {
		return err
	}

	if !strings.EqualFold(rsp.Status.State, "ok") && len(rsp.Status.Error) > 0 {
		return errors.New(rsp.Status.Error)
	}

	return nil
}

func NewIndex(opts ...index.Option) index.Index {
	options := index.NewOptions(opts...)

	if len(options.Collection) == 0 {
		options.Collection = "pdfrag-chunks"
	}

	if options.Dimension <= 0 {
		panic("qdrant index requires a configured dimension")
	}

	s := &qdrantIndex{
		options: options,
		client:  &http.Client{Timeout: 30 * time.Second},
	}

	return s
}

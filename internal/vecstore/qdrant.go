package vecstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/qazmed/diagdex/internal/protocol"
)

// indexingThreshold delays HNSW graph building until the collection has
// enough points; the whole corpus fits below it and uploads stay fast.
const indexingThreshold = 20000

const scrollPageSize = 1000

// QdrantStore talks to a Qdrant server over its REST API.
type QdrantStore struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewQdrantStore returns a store for the given Qdrant base URL. An empty
// apiKey disables authentication (local server).
func NewQdrantStore(url, apiKey string, timeout time.Duration) *QdrantStore {
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &QdrantStore{
		baseURL: strings.TrimRight(url, "/"),
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
	}
}

// EnsureCollection creates the collection when absent. When it exists with a
// different vector size the collection is dropped and recreated.
func (s *QdrantStore) EnsureCollection(ctx context.Context, name string, dims int) error {
	size, exists, err := s.collectionDims(ctx, name)
	if err != nil {
		return err
	}
	if exists {
		if size == dims {
			return nil
		}
		if _, err := s.doRequest(ctx, http.MethodDelete, "/collections/"+name, nil); err != nil {
			return fmt.Errorf("drop collection %s (dim %d != %d): %w", name, size, dims, err)
		}
	}
	req := map[string]any{
		"vectors": map[string]any{
			"size":     dims,
			"distance": "Cosine",
		},
		"optimizers_config": map[string]any{
			"indexing_threshold": indexingThreshold,
		},
	}
	if _, err := s.doRequest(ctx, http.MethodPut, "/collections/"+name, req); err != nil {
		return fmt.Errorf("create collection %s: %w", name, err)
	}
	return nil
}

func (s *QdrantStore) collectionDims(ctx context.Context, name string) (int, bool, error) {
	data, err := s.doRequest(ctx, http.MethodGet, "/collections/"+name, nil)
	if err != nil {
		if isNotFound(err) {
			return 0, false, nil
		}
		return 0, false, err
	}
	var parsed struct {
		Result struct {
			Config struct {
				Params struct {
					Vectors struct {
						Size int `json:"size"`
					} `json:"vectors"`
				} `json:"params"`
			} `json:"config"`
		} `json:"result"`
	}
	if err := json.Unmarshal(data, &parsed); err != nil {
		return 0, false, fmt.Errorf("parse collection info: %w", err)
	}
	return parsed.Result.Config.Params.Vectors.Size, true, nil
}

// UpsertPoints writes a batch of points, idempotent on id.
func (s *QdrantStore) UpsertPoints(ctx context.Context, collection string, points []Point) error {
	if len(points) == 0 {
		return nil
	}
	payload := make([]map[string]any, 0, len(points))
	for _, p := range points {
		if err := validatePayload(p.Payload); err != nil {
			return fmt.Errorf("point %s: %w", p.ID, err)
		}
		payload = append(payload, map[string]any{
			"id":      p.ID,
			"vector":  p.Vector,
			"payload": p.Payload,
		})
	}
	req := map[string]any{"points": payload}
	_, err := s.doRequest(ctx, http.MethodPut, "/collections/"+collection+"/points?wait=true", req)
	return err
}

// SearchPoints runs a nearest-neighbor search and decodes payloads into the
// fixed chunk payload shape.
func (s *QdrantStore) SearchPoints(ctx context.Context, collection string, vector []float32, limit int) ([]SearchPoint, error) {
	if limit <= 0 {
		limit = 10
	}
	req := map[string]any{
		"vector":       vector,
		"limit":        limit,
		"with_payload": true,
	}
	data, err := s.doRequest(ctx, http.MethodPost, "/collections/"+collection+"/points/search", req)
	if err != nil {
		return nil, err
	}
	var parsed struct {
		Result []struct {
			ID      any             `json:"id"`
			Score   float64         `json:"score"`
			Payload json.RawMessage `json:"payload"`
		} `json:"result"`
	}
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("parse search response: %w", err)
	}
	points := make([]SearchPoint, 0, len(parsed.Result))
	for _, item := range parsed.Result {
		var payload protocol.ChunkPayload
		if len(item.Payload) > 0 {
			if err := json.Unmarshal(item.Payload, &payload); err != nil {
				return nil, fmt.Errorf("point %v: decode payload: %w", item.ID, err)
			}
		}
		points = append(points, SearchPoint{
			ID:      fmt.Sprintf("%v", item.ID),
			Score:   item.Score,
			Payload: payload,
		})
	}
	return points, nil
}

// ScrollPointIDs pages through the whole collection and returns the set of
// point ids already present. Payloads and vectors are not transferred.
func (s *QdrantStore) ScrollPointIDs(ctx context.Context, collection string) (map[string]struct{}, error) {
	ids := make(map[string]struct{})
	var offset any
	for {
		req := map[string]any{
			"limit":        scrollPageSize,
			"with_payload": false,
			"with_vector":  false,
		}
		if offset != nil {
			req["offset"] = offset
		}
		data, err := s.doRequest(ctx, http.MethodPost, "/collections/"+collection+"/points/scroll", req)
		if err != nil {
			return nil, err
		}
		var parsed struct {
			Result struct {
				Points []struct {
					ID any `json:"id"`
				} `json:"points"`
				NextPageOffset any `json:"next_page_offset"`
			} `json:"result"`
		}
		if err := json.Unmarshal(data, &parsed); err != nil {
			return nil, fmt.Errorf("parse scroll response: %w", err)
		}
		for _, p := range parsed.Result.Points {
			ids[fmt.Sprintf("%v", p.ID)] = struct{}{}
		}
		if parsed.Result.NextPageOffset == nil {
			return ids, nil
		}
		offset = parsed.Result.NextPageOffset
	}
}

func (s *QdrantStore) Close() error { return nil }

type statusError struct {
	status int
	body   string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("qdrant status %d: %s", e.status, e.body)
}

func isNotFound(err error) bool {
	se, ok := err.(*statusError)
	return ok && se.status == http.StatusNotFound
}

func (s *QdrantStore) doRequest(ctx context.Context, method, path string, body any) ([]byte, error) {
	var buf io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		buf = bytes.NewBuffer(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("api-key", s.apiKey)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &statusError{status: resp.StatusCode, body: strings.TrimSpace(string(data))}
	}
	return data, nil
}

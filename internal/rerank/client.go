// Package rerank scores (query, passage) pairs with a cross-encoder
// relevance model served over HTTP.
package rerank

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/qazmed/diagdex/internal/config"
)

// Reranker scores each candidate text against the query; higher is more
// relevant. The returned slice is index-aligned with texts.
type Reranker interface {
	Score(ctx context.Context, query string, texts []string) ([]float64, error)
}

// HTTPClient implements Reranker against a text-embeddings-inference style
// POST /rerank endpoint.
type HTTPClient struct {
	endpoint string
	apiKey   string
	client   *http.Client
}

type rerankRequest struct {
	Query string   `json:"query"`
	Texts []string `json:"texts"`
}

type rerankResult struct {
	Index int     `json:"index"`
	Score float64 `json:"score"`
}

// NewHTTPClient creates a reranker client for cfg.Endpoint
func NewHTTPClient(cfg *config.RerankConfig) (*HTTPClient, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("rerank endpoint is required")
	}
	return &HTTPClient{
		endpoint: strings.TrimRight(cfg.Endpoint, "/") + "/rerank",
		apiKey:   cfg.APIKey,
		client: &http.Client{
			Timeout: 60 * time.Second,
		},
	}, nil
}

// Score sends all pairs in one request and maps the scores back to input
// order. The endpoint returns results sorted by relevance, so the index field
// is authoritative.
func (c *HTTPClient) Score(ctx context.Context, query string, texts []string) ([]float64, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	reqBody, err := json.Marshal(rerankRequest{Query: query, Texts: texts})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("rerank API returned status %d: %s", resp.StatusCode, string(body))
	}

	var results []rerankResult
	if err := json.Unmarshal(body, &results); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	if len(results) != len(texts) {
		return nil, fmt.Errorf("expected %d scores, got %d", len(texts), len(results))
	}

	sort.Slice(results, func(i, j int) bool { return results[i].Index < results[j].Index })
	scores := make([]float64, len(texts))
	for i, r := range results {
		if r.Index != i {
			return nil, fmt.Errorf("invalid rerank index: %d", r.Index)
		}
		scores[i] = r.Score
	}
	return scores, nil
}

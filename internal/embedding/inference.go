package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/qazmed/diagdex/internal/config"
)

// InferenceClient implements Client against a hosted inference API of the
// HuggingFace feature-extraction shape: {"inputs": [...]} in, raw vectors
// out. Used by the reduced pipeline when no local embedding server exists.
type InferenceClient struct {
	endpoint string
	apiKey   string
	dims     int
	client   *http.Client
}

// NewInferenceClient creates a remote inference API client
func NewInferenceClient(cfg *config.EmbeddingConfig) (*InferenceClient, error) {
	if cfg.InferenceEndpoint == "" {
		return nil, fmt.Errorf("embedding inference_endpoint is required")
	}
	return &InferenceClient{
		endpoint: cfg.InferenceEndpoint,
		apiKey:   cfg.InferenceAPIKey,
		dims:     cfg.Dimensions,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}, nil
}

// EmbedBatch generates embeddings for multiple texts. The inference API has
// no role hint; the role parameter is accepted for interface compatibility
// and ignored.
func (c *InferenceClient) EmbedBatch(ctx context.Context, texts []string, _ Role) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	reqBody, err := json.Marshal(map[string]any{"inputs": texts})
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
		return nil, fmt.Errorf("inference API returned status %d: %s", resp.StatusCode, string(body))
	}

	return parseInferenceVectors(body, len(texts))
}

// parseInferenceVectors tolerates the API returning either one vector per
// input or, for a single input, a bare vector.
func parseInferenceVectors(body []byte, want int) ([][]float32, error) {
	var vectors [][]float32
	if err := json.Unmarshal(body, &vectors); err == nil && len(vectors) == want {
		return vectors, nil
	}

	if want == 1 {
		var single []float32
		if err := json.Unmarshal(body, &single); err == nil && len(single) > 0 {
			return [][]float32{single}, nil
		}
	}

	return nil, fmt.Errorf("unexpected inference API response shape (want %d vectors)", want)
}

// Dimensions returns the dimension of the embeddings
func (c *InferenceClient) Dimensions() int {
	return c.dims
}

package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/qazmed/diagdex/internal/config"
)

// OpenAIClient implements Client against an OpenAI-compatible /v1/embeddings
// endpoint, typically a locally hosted embedding server.
type OpenAIClient struct {
	endpoint string
	apiKey   string
	model    string
	dims     int
	client   *http.Client
}

// openAIEmbeddingRequest is the request format for the embeddings API.
// InputType is the role hint; servers that do not support it ignore it.
type openAIEmbeddingRequest struct {
	Input     []string `json:"input"`
	Model     string   `json:"model"`
	InputType string   `json:"input_type,omitempty"`
}

// openAIEmbeddingResponse is the response from the embeddings API
type openAIEmbeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
	Model string `json:"model"`
}

// NewOpenAIClient creates a new embedding client for cfg.Endpoint
func NewOpenAIClient(cfg *config.EmbeddingConfig) (*OpenAIClient, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("embedding endpoint is required")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("embedding model is required")
	}
	return &OpenAIClient{
		endpoint: strings.TrimRight(cfg.Endpoint, "/") + "/v1/embeddings",
		apiKey:   cfg.APIKey,
		model:    cfg.Model,
		dims:     cfg.Dimensions,
		client: &http.Client{
			Timeout: 60 * time.Second,
		},
	}, nil
}

// EmbedBatch generates embeddings for multiple texts
func (c *OpenAIClient) EmbedBatch(ctx context.Context, texts []string, role Role) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	req := openAIEmbeddingRequest{
		Input:     texts,
		Model:     c.model,
		InputType: string(role),
	}

	reqBody, err := json.Marshal(req)
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
		return nil, fmt.Errorf("embedding API returned status %d: %s", resp.StatusCode, string(body))
	}

	var apiResp openAIEmbeddingResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	if len(apiResp.Data) != len(texts) {
		return nil, fmt.Errorf("expected %d embeddings, got %d", len(texts), len(apiResp.Data))
	}

	embeddings := make([][]float32, len(texts))
	for _, data := range apiResp.Data {
		if data.Index < 0 || data.Index >= len(texts) {
			return nil, fmt.Errorf("invalid embedding index: %d", data.Index)
		}
		embeddings[data.Index] = data.Embedding
	}

	return embeddings, nil
}

// Dimensions returns the dimension of the embeddings
func (c *OpenAIClient) Dimensions() int {
	return c.dims
}

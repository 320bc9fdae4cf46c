package embedding

import (
	"context"
	"fmt"
	"math"

	"github.com/qazmed/diagdex/internal/config"
)

// Service provides embedding generation functionality
type Service struct {
	cfg    *config.EmbeddingConfig
	client Client
}

// NewService creates a new embedding service for the configured provider
func NewService(cfg *config.EmbeddingConfig) (*Service, error) {
	svc := &Service{cfg: cfg}

	var client Client
	var err error

	switch cfg.Provider {
	case "local":
		client, err = NewOpenAIClient(cfg)
	case "inference":
		client, err = NewInferenceClient(cfg)
	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s", cfg.Provider)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to create embedding client: %w", err)
	}

	svc.client = client
	return svc, nil
}

// NewServiceWithClient wraps an existing client; used by tests and by the
// backend selector when it has already probed a client.
func NewServiceWithClient(cfg *config.EmbeddingConfig, client Client) *Service {
	return &Service{cfg: cfg, client: client}
}

// EmbedQuery generates one embedding with the query role hint
func (s *Service) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, fmt.Errorf("cannot embed empty text")
	}
	vectors, err := s.client.EmbedBatch(ctx, []string{text}, RoleQuery)
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("no embedding returned")
	}
	return vectors[0], nil
}

// EmbedDocuments generates embeddings for multiple document texts, batching
// requests to the configured batch size. Empty texts are rejected up front:
// a silent gap would misalign results with inputs.
func (s *Service) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	for i, text := range texts {
		if text == "" {
			return nil, fmt.Errorf("text %d is empty", i)
		}
	}

	batchSize := s.cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 16
	}

	results := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += batchSize {
		end := start + batchSize
		if end > len(texts) {
			end = len(texts)
		}
		vectors, err := s.client.EmbedBatch(ctx, texts[start:end], RoleDocument)
		if err != nil {
			return nil, fmt.Errorf("failed to embed batch %d-%d: %w", start, end, err)
		}
		if len(vectors) != end-start {
			return nil, fmt.Errorf("batch %d-%d: expected %d embeddings, got %d", start, end, end-start, len(vectors))
		}
		results = append(results, vectors...)
	}

	return results, nil
}

// Dimensions returns the dimension of the embeddings
func (s *Service) Dimensions() int {
	return s.client.Dimensions()
}

// Similarity computes cosine similarity between two vectors
func Similarity(a, b []float32) float32 {
	if len(a) != len(b) {
		panic(fmt.Sprintf("vector dimension mismatch: %d vs %d", len(a), len(b)))
	}

	var dotProduct float32
	var normA float32
	var normB float32

	for i := 0; i < len(a); i++ {
		dotProduct += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dotProduct / (float32(math.Sqrt(float64(normA))) * float32(math.Sqrt(float64(normB))))
}

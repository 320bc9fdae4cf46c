// Package vecstore provides the vector index used for protocol retrieval:
// a Qdrant server over its REST API, or a local SQLite-backed store for
// running without one.
package vecstore

import (
	"context"
	"fmt"

	"github.com/qazmed/diagdex/internal/protocol"
)

// Point is one embedded chunk ready for the index.
type Point struct {
	ID      string
	Vector  []float32
	Payload protocol.ChunkPayload
}

// SearchPoint is one similarity-search hit. Score is the index's similarity
// score until a reranker replaces it.
type SearchPoint struct {
	ID      string
	Score   float64
	Payload protocol.ChunkPayload
}

// Store is the vector index contract. Upserts are idempotent on point id, so
// re-uploading after a partial run is safe. EnsureCollection must recreate a
// collection whose dimensionality no longer matches: a dimensionality change
// means the embedding model was swapped and stale vectors are unusable.
type Store interface {
	EnsureCollection(ctx context.Context, name string, dims int) error
	UpsertPoints(ctx context.Context, collection string, points []Point) error
	SearchPoints(ctx context.Context, collection string, vector []float32, limit int) ([]SearchPoint, error)
	ScrollPointIDs(ctx context.Context, collection string) (map[string]struct{}, error)
	Close() error
}

// validatePayload rejects payloads that cannot ground a diagnosis before they
// cross the index boundary in either direction.
func validatePayload(p protocol.ChunkPayload) error {
	if p.Title == "" && p.SourceFile == "" {
		return fmt.Errorf("payload has neither title nor source file")
	}
	if p.ChunkType == "" {
		return fmt.Errorf("payload missing chunk_type")
	}
	return nil
}

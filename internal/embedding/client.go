// Package embedding turns text into fixed-length vectors via an external
// embedding model endpoint.
package embedding

import "context"

// Role hints how the text will be used. Asymmetric retrieval models embed
// queries and documents differently; endpoints that do not support the hint
// ignore it.
type Role string

const (
	RoleQuery    Role = "query"
	RoleDocument Role = "document"
)

// Client is the interface for embedding API clients
type Client interface {
	EmbedBatch(ctx context.Context, texts []string, role Role) ([][]float32, error)
	Dimensions() int
}

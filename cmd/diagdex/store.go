package main

import (
	"time"

	"github.com/qazmed/diagdex/internal/config"
	"github.com/qazmed/diagdex/internal/vecstore"
)

// newStore opens the configured vector store: the embedded SQLite store when
// qdrant.local_path is set, a Qdrant server otherwise.
func newStore(cfg *config.Config) (vecstore.Store, error) {
	if cfg.Qdrant.LocalPath != "" {
		return vecstore.NewLocalStore(cfg.Qdrant.LocalPath)
	}
	timeout := time.Duration(cfg.Qdrant.TimeoutSeconds) * time.Second
	return vecstore.NewQdrantStore(cfg.Qdrant.URL, cfg.Qdrant.APIKey, timeout), nil
}

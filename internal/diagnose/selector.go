package diagnose

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/qazmed/diagdex/internal/config"
	"github.com/qazmed/diagdex/internal/embedding"
	"github.com/qazmed/diagdex/internal/llm"
	"github.com/qazmed/diagdex/internal/rerank"
	"github.com/qazmed/diagdex/internal/retrieval"
	"github.com/qazmed/diagdex/internal/vecstore"
)

// Backend names, most capable first.
const (
	BackendFull   = "full"
	BackendLight  = "light"
	BackendStatic = "static"
)

// Select builds the most capable Diagnoser the configuration supports.
//
// The full backend needs a local embedding server and a reranker; the light
// one runs on a hosted inference API with similarity-only retrieval. Each
// backend that cannot be constructed is logged and the next one is tried; the
// static stub always succeeds.
func Select(cfg *config.Config, store vecstore.Store, log *zap.Logger) (Diagnoser, string) {
	if log == nil {
		log = zap.NewNop()
	}
	backends := []struct {
		name  string
		build func() (Diagnoser, error)
	}{
		{BackendFull, func() (Diagnoser, error) { return newFull(cfg, store, log) }},
		{BackendLight, func() (Diagnoser, error) { return newLight(cfg, store, log) }},
	}
	for _, b := range backends {
		d, err := b.build()
		if err != nil {
			log.Warn("diagnosis backend unavailable",
				zap.String("backend", b.name),
				zap.Error(err))
			continue
		}
		log.Info("diagnosis backend selected", zap.String("backend", b.name))
		return d, b.name
	}
	log.Warn("all retrieval backends unavailable, using static fallback")
	return StaticDiagnoser{}, BackendStatic
}

func newFull(cfg *config.Config, store vecstore.Store, log *zap.Logger) (Diagnoser, error) {
	if !cfg.Rerank.Enabled {
		return nil, fmt.Errorf("reranker is disabled")
	}
	embCfg := cfg.Embedding
	embCfg.Provider = "local"
	embedder, err := embedding.NewService(&embCfg)
	if err != nil {
		return nil, fmt.Errorf("embedding service: %w", err)
	}
	reranker, err := rerank.NewHTTPClient(&cfg.Rerank)
	if err != nil {
		return nil, fmt.Errorf("reranker: %w", err)
	}
	return newService(cfg, store, embedder, reranker, log)
}

func newLight(cfg *config.Config, store vecstore.Store, log *zap.Logger) (Diagnoser, error) {
	embCfg := cfg.Embedding
	embCfg.Provider = "inference"
	embedder, err := embedding.NewService(&embCfg)
	if err != nil {
		return nil, fmt.Errorf("embedding service: %w", err)
	}
	return newService(cfg, store, embedder, nil, log)
}

func newService(cfg *config.Config, store vecstore.Store, embedder *embedding.Service, reranker rerank.Reranker, log *zap.Logger) (Diagnoser, error) {
	llmClient, err := llm.NewHTTPClient(&cfg.LLM)
	if err != nil {
		return nil, fmt.Errorf("completion client: %w", err)
	}
	retriever := retrieval.New(store, embedder, reranker, retrieval.Options{
		Collection: cfg.Qdrant.Collection,
		TopK:       cfg.Retrieval.TopK,
		PoolSize:   cfg.Retrieval.PoolSize,
	}, log)
	generator := NewGenerator(llmClient, cfg.Generation.TopN, log)
	return NewService(retriever, generator, log), nil
}

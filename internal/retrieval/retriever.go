// Package retrieval finds the protocol chunks most relevant to a symptom
// query: vector search for recall, cross-encoder reranking for precision.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/qazmed/diagdex/internal/embedding"
	"github.com/qazmed/diagdex/internal/protocol"
	"github.com/qazmed/diagdex/internal/rerank"
	"github.com/qazmed/diagdex/internal/vecstore"
)

// ErrNoContext is returned when the index yields zero candidates for a
// query. The caller must surface it: answering without protocol context is
// worse than failing.
var ErrNoContext = errors.New("no matching protocol context")

// queryPrefix aligns the query embedding with the passage distribution of an
// asymmetric retrieval model.
const queryPrefix = "Клинический случай для диагностики по МКБ-10: "

// Candidate is one retrieved chunk. Score is what the pipeline ranks by: the
// rerank score when a reranker ran, otherwise the index similarity.
type Candidate struct {
	Payload    protocol.ChunkPayload
	Similarity float64
	Score      float64
}

// Retriever runs the two-stage retrieval pass. All fields are read-only
// after construction and safe for concurrent use.
type Retriever struct {
	store      vecstore.Store
	embedder   *embedding.Service
	reranker   rerank.Reranker // nil disables reranking
	collection string
	topK       int
	poolSize   int
	timeout    time.Duration
	log        *zap.Logger
}

// Options configures a Retriever.
type Options struct {
	Collection string
	TopK       int
	PoolSize   int
	// Timeout bounds the vector search (and query embedding) per request.
	Timeout time.Duration
}

// New creates a Retriever. Pass a nil reranker for similarity-only retrieval.
func New(store vecstore.Store, embedder *embedding.Service, reranker rerank.Reranker, opts Options, log *zap.Logger) *Retriever {
	if opts.TopK <= 0 {
		opts.TopK = 5
	}
	if opts.PoolSize < opts.TopK {
		opts.PoolSize = opts.TopK
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 20 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Retriever{
		store:      store,
		embedder:   embedder,
		reranker:   reranker,
		collection: opts.Collection,
		topK:       opts.TopK,
		poolSize:   opts.PoolSize,
		timeout:    opts.Timeout,
		log:        log,
	}
}

// Retrieve returns at most TopK candidates for the query, best first.
//
// Without a reranker the pool is not widened: the index order is final, so
// fetching more than TopK buys nothing. With one, a wider pool is fetched and
// re-scored pairwise against the query; ties keep their retrieval order.
func (r *Retriever) Retrieve(ctx context.Context, query string) ([]Candidate, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	vector, err := r.embedder.EmbedQuery(ctx, queryPrefix+query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	limit := r.topK
	if r.reranker != nil {
		limit = r.poolSize
	}
	points, err := r.store.SearchPoints(ctx, r.collection, vector, limit)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}
	if len(points) == 0 {
		return nil, ErrNoContext
	}

	candidates := make([]Candidate, len(points))
	for i, p := range points {
		candidates[i] = Candidate{
			Payload:    p.Payload,
			Similarity: p.Score,
			Score:      p.Score,
		}
	}

	if r.reranker != nil {
		if err := r.rerankCandidates(ctx, query, candidates); err != nil {
			return nil, err
		}
	}

	if len(candidates) > r.topK {
		candidates = candidates[:r.topK]
	}
	r.log.Debug("retrieved candidates",
		zap.Int("count", len(candidates)),
		zap.Bool("reranked", r.reranker != nil))
	return candidates, nil
}

// rerankCandidates replaces each candidate's score with the cross-encoder's
// and re-sorts. The pair text includes the protocol title so the model sees
// what condition the excerpt belongs to, not just the excerpt.
func (r *Retriever) rerankCandidates(ctx context.Context, query string, candidates []Candidate) error {
	texts := make([]string, len(candidates))
	for i, c := range candidates {
		texts[i] = fmt.Sprintf("ПРОТОКОЛ: %s. СОДЕРЖАНИЕ: %s", c.Payload.Title, c.Payload.Text)
	}
	scores, err := r.reranker.Score(ctx, query, texts)
	if err != nil {
		return fmt.Errorf("rerank: %w", err)
	}
	for i := range candidates {
		candidates[i].Score = scores[i]
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Score > candidates[j].Score
	})
	return nil
}

package retrieval

import (
	"context"
	"errors"
	"testing"

	"github.com/qazmed/diagdex/internal/config"
	"github.com/qazmed/diagdex/internal/embedding"
	"github.com/qazmed/diagdex/internal/protocol"
	"github.com/qazmed/diagdex/internal/vecstore"
)

type stubEmbedder struct{}

func (stubEmbedder) EmbedBatch(_ context.Context, texts []string, _ embedding.Role) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0, 0}
	}
	return out, nil
}

func (stubEmbedder) Dimensions() int { return 3 }

type stubStore struct {
	points    []vecstore.SearchPoint
	lastLimit int
	searches  int
}

func (s *stubStore) EnsureCollection(context.Context, string, int) error { return nil }
func (s *stubStore) UpsertPoints(context.Context, string, []vecstore.Point) error {
	return nil
}
func (s *stubStore) SearchPoints(_ context.Context, _ string, _ []float32, limit int) ([]vecstore.SearchPoint, error) {
	s.searches++
	s.lastLimit = limit
	if len(s.points) > limit {
		return s.points[:limit], nil
	}
	return s.points, nil
}
func (s *stubStore) ScrollPointIDs(context.Context, string) (map[string]struct{}, error) {
	return nil, nil
}
func (s *stubStore) Close() error { return nil }

type stubReranker struct {
	scores []float64
	calls  int
}

func (r *stubReranker) Score(_ context.Context, _ string, texts []string) ([]float64, error) {
	r.calls++
	if len(r.scores) != len(texts) {
		return nil, errors.New("score count mismatch in stub")
	}
	return r.scores, nil
}

func makePoints(n int) []vecstore.SearchPoint {
	points := make([]vecstore.SearchPoint, n)
	for i := range points {
		points[i] = vecstore.SearchPoint{
			ID:    protocol.PointID("p.pdf", "P", i, protocol.ChunkClinical),
			Score: 1.0 - float64(i)*0.01,
			Payload: protocol.ChunkPayload{
				Title:      "Острый бронхит",
				SourceFile: "p.pdf",
				ICDCodes:   []string{"J20.9"},
				ChunkType:  protocol.ChunkClinical,
				ChunkIndex: i,
				Text:       "кашель",
			},
		}
	}
	return points
}

func newEmbedService() *embedding.Service {
	return embedding.NewServiceWithClient(&config.EmbeddingConfig{BatchSize: 16}, stubEmbedder{})
}

func TestRetrieveTopKBound(t *testing.T) {
	store := &stubStore{points: makePoints(30)}
	reranker := &stubReranker{scores: make([]float64, 30)}
	r := New(store, newEmbedService(), reranker, Options{TopK: 5, PoolSize: 30}, nil)

	candidates, err := r.Retrieve(context.Background(), "кашель, температура 38")
	if err != nil {
		t.Fatalf("Retrieve() error: %v", err)
	}
	if len(candidates) != 5 {
		t.Errorf("got %d candidates, want 5", len(candidates))
	}
	if store.lastLimit != 30 {
		t.Errorf("search limit = %d, want pool size 30", store.lastLimit)
	}
	if reranker.calls != 1 {
		t.Errorf("reranker calls = %d, want 1", reranker.calls)
	}
}

func TestRetrieveWithoutRerankerFetchesOnlyTopK(t *testing.T) {
	store := &stubStore{points: makePoints(30)}
	r := New(store, newEmbedService(), nil, Options{TopK: 5, PoolSize: 30}, nil)

	candidates, err := r.Retrieve(context.Background(), "кашель")
	if err != nil {
		t.Fatalf("Retrieve() error: %v", err)
	}
	if len(candidates) != 5 {
		t.Errorf("got %d candidates, want 5", len(candidates))
	}
	if store.lastLimit != 5 {
		t.Errorf("search limit = %d, want 5 without reranker", store.lastLimit)
	}
	// Index order stands when no reranker runs.
	for i := 1; i < len(candidates); i++ {
		if candidates[i].Score > candidates[i-1].Score {
			t.Errorf("candidates out of order at %d", i)
		}
	}
}

func TestRetrieveNoContext(t *testing.T) {
	store := &stubStore{}
	r := New(store, newEmbedService(), nil, Options{TopK: 5}, nil)

	_, err := r.Retrieve(context.Background(), "кашель")
	if !errors.Is(err, ErrNoContext) {
		t.Fatalf("err = %v, want ErrNoContext", err)
	}
}

func TestRerankReplacesScoresAndReorders(t *testing.T) {
	store := &stubStore{points: makePoints(3)}
	// Last retrieval candidate is most relevant to the cross-encoder.
	reranker := &stubReranker{scores: []float64{0.1, 0.5, 0.9}}
	r := New(store, newEmbedService(), reranker, Options{TopK: 3, PoolSize: 3}, nil)

	candidates, err := r.Retrieve(context.Background(), "кашель")
	if err != nil {
		t.Fatalf("Retrieve() error: %v", err)
	}
	if candidates[0].Payload.ChunkIndex != 2 {
		t.Errorf("top candidate chunk index = %d, want 2", candidates[0].Payload.ChunkIndex)
	}
	if candidates[0].Score != 0.9 {
		t.Errorf("top score = %v, want rerank score 0.9", candidates[0].Score)
	}
	if candidates[0].Similarity == candidates[0].Score {
		t.Error("similarity should be preserved separately from rerank score")
	}
}

func TestRerankStableOnTies(t *testing.T) {
	store := &stubStore{points: makePoints(4)}
	reranker := &stubReranker{scores: []float64{0.5, 0.5, 0.5, 0.5}}
	r := New(store, newEmbedService(), reranker, Options{TopK: 4, PoolSize: 4}, nil)

	candidates, err := r.Retrieve(context.Background(), "кашель")
	if err != nil {
		t.Fatalf("Retrieve() error: %v", err)
	}
	for i, c := range candidates {
		if c.Payload.ChunkIndex != i {
			t.Errorf("tied candidates reordered: position %d has chunk index %d", i, c.Payload.ChunkIndex)
		}
	}
}

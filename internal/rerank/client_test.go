package rerank

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/qazmed/diagdex/internal/config"
)

func TestScoreMapsResultsToInputOrder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/rerank" {
			t.Errorf("path = %s, want /rerank", r.URL.Path)
		}
		var req rerankRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		// The endpoint answers sorted by score, not by input position.
		_ = json.NewEncoder(w).Encode([]rerankResult{
			{Index: 2, Score: 0.9},
			{Index: 0, Score: 0.5},
			{Index: 1, Score: 0.1},
		})
	}))
	defer srv.Close()

	client, err := NewHTTPClient(&config.RerankConfig{Endpoint: srv.URL})
	if err != nil {
		t.Fatalf("NewHTTPClient() error: %v", err)
	}
	scores, err := client.Score(context.Background(), "кашель", []string{"a", "b", "c"})
	if err != nil {
		t.Fatalf("Score() error: %v", err)
	}
	want := []float64{0.5, 0.1, 0.9}
	for i := range want {
		if scores[i] != want[i] {
			t.Errorf("scores[%d] = %v, want %v", i, scores[i], want[i])
		}
	}
}

func TestScoreCountMismatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode([]rerankResult{{Index: 0, Score: 1}})
	}))
	defer srv.Close()

	client, err := NewHTTPClient(&config.RerankConfig{Endpoint: srv.URL})
	if err != nil {
		t.Fatalf("NewHTTPClient() error: %v", err)
	}
	if _, err := client.Score(context.Background(), "q", []string{"a", "b"}); err == nil {
		t.Fatal("expected error for score count mismatch")
	}
}

func TestScoreEmptyInput(t *testing.T) {
	client, err := NewHTTPClient(&config.RerankConfig{Endpoint: "http://localhost:8081"})
	if err != nil {
		t.Fatalf("NewHTTPClient() error: %v", err)
	}
	scores, err := client.Score(context.Background(), "q", nil)
	if err != nil {
		t.Fatalf("Score() error: %v", err)
	}
	if scores != nil {
		t.Errorf("scores = %v, want nil", scores)
	}
}

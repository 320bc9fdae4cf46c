package embedding

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/qazmed/diagdex/internal/config"
)

type fakeClient struct {
	dims    int
	calls   int
	batches [][]string
	roles   []Role
}

func (f *fakeClient) EmbedBatch(_ context.Context, texts []string, role Role) ([][]float32, error) {
	f.calls++
	f.batches = append(f.batches, texts)
	f.roles = append(f.roles, role)
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{float32(len(texts[i])), 0, 1}
	}
	return out, nil
}

func (f *fakeClient) Dimensions() int { return f.dims }

func TestEmbedDocumentsBatching(t *testing.T) {
	client := &fakeClient{dims: 3}
	svc := NewServiceWithClient(&config.EmbeddingConfig{BatchSize: 2}, client)

	texts := []string{"a", "bb", "ccc", "dddd", "eeeee"}
	vectors, err := svc.EmbedDocuments(context.Background(), texts)
	if err != nil {
		t.Fatalf("EmbedDocuments() error: %v", err)
	}
	if len(vectors) != len(texts) {
		t.Fatalf("got %d vectors, want %d", len(vectors), len(texts))
	}
	if client.calls != 3 {
		t.Errorf("got %d batches, want 3", client.calls)
	}
	for i, role := range client.roles {
		if role != RoleDocument {
			t.Errorf("batch %d role = %q, want %q", i, role, RoleDocument)
		}
	}
	// Order must survive batching.
	if vectors[4][0] != 5 {
		t.Errorf("vector 4 = %v, want first element 5", vectors[4])
	}
}

func TestEmbedDocumentsRejectsEmptyText(t *testing.T) {
	svc := NewServiceWithClient(&config.EmbeddingConfig{BatchSize: 2}, &fakeClient{})
	if _, err := svc.EmbedDocuments(context.Background(), []string{"ok", ""}); err == nil {
		t.Fatal("expected error for empty text")
	}
}

func TestEmbedQueryUsesQueryRole(t *testing.T) {
	client := &fakeClient{dims: 3}
	svc := NewServiceWithClient(&config.EmbeddingConfig{}, client)

	if _, err := svc.EmbedQuery(context.Background(), "кашель"); err != nil {
		t.Fatalf("EmbedQuery() error: %v", err)
	}
	if len(client.roles) != 1 || client.roles[0] != RoleQuery {
		t.Errorf("roles = %v, want [query]", client.roles)
	}

	if _, err := svc.EmbedQuery(context.Background(), ""); err == nil {
		t.Error("expected error for empty query")
	}
}

func TestOpenAIClientEmbedBatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req openAIEmbeddingRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.InputType != "document" {
			t.Errorf("input_type = %q, want document", req.InputType)
		}
		resp := openAIEmbeddingResponse{Model: req.Model}
		// Answer out of order: the client must restore input order by index.
		for i := len(req.Input) - 1; i >= 0; i-- {
			resp.Data = append(resp.Data, struct {
				Embedding []float32 `json:"embedding"`
				Index     int       `json:"index"`
			}{Embedding: []float32{float32(i)}, Index: i})
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	client, err := NewOpenAIClient(&config.EmbeddingConfig{
		Endpoint:   srv.URL,
		Model:      "BAAI/bge-m3",
		Dimensions: 1,
	})
	if err != nil {
		t.Fatalf("NewOpenAIClient() error: %v", err)
	}
	vectors, err := client.EmbedBatch(context.Background(), []string{"a", "b", "c"}, RoleDocument)
	if err != nil {
		t.Fatalf("EmbedBatch() error: %v", err)
	}
	for i, vec := range vectors {
		if vec[0] != float32(i) {
			t.Errorf("vector %d = %v, want [%d]", i, vec, i)
		}
	}
}

func TestParseInferenceVectors(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		want    int
		wantErr bool
	}{
		{"vector per input", `[[0.1, 0.2], [0.3, 0.4]]`, 2, false},
		{"bare vector for single input", `[0.1, 0.2, 0.3]`, 1, false},
		{"count mismatch", `[[0.1]]`, 2, true},
		{"garbage", `{"error": "loading"}`, 1, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			vectors, err := parseInferenceVectors([]byte(tt.body), tt.want)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("parseInferenceVectors() error: %v", err)
			}
			if len(vectors) != tt.want {
				t.Errorf("got %d vectors, want %d", len(vectors), tt.want)
			}
		})
	}
}

func TestSimilarity(t *testing.T) {
	tests := []struct {
		name     string
		a        []float32
		b        []float32
		expected float32
	}{
		{
			name:     "identical vectors",
			a:        []float32{1, 2, 3},
			b:        []float32{1, 2, 3},
			expected: 1.0,
		},
		{
			name:     "orthogonal vectors",
			a:        []float32{1, 0, 0},
			b:        []float32{0, 1, 0},
			expected: 0.0,
		},
		{
			name:     "opposite vectors",
			a:        []float32{1, 1, 1},
			b:        []float32{-1, -1, -1},
			expected: -1.0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := Similarity(tt.a, tt.b)
			diff := result - tt.expected
			if diff < 0 {
				diff = -diff
			}
			if diff > 0.001 {
				t.Errorf("Similarity() = %v, want %v (diff: %v)", result, tt.expected, diff)
			}
		})
	}
}

func TestSimilarityPanic(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Error("Expected panic for dimension mismatch")
		}
	}()

	Similarity([]float32{1, 2}, []float32{1, 2, 3})
}

package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/qazmed/diagdex/internal/config"
)

func newTestClient(t *testing.T, endpoint string) *HTTPClient {
	t.Helper()
	client, err := NewHTTPClient(&config.LLMConfig{
		Endpoint:    endpoint,
		Model:       "oss-120b",
		Temperature: 0.1,
		MaxTokens:   2048,
	})
	if err != nil {
		t.Fatalf("NewHTTPClient() error: %v", err)
	}
	return client
}

func TestComplete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path = %s, want /chat/completions", r.URL.Path)
		}
		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.Model != "oss-120b" || req.Temperature != 0.1 || req.MaxTokens != 2048 {
			t.Errorf("request = %+v", req)
		}
		if len(req.Messages) != 2 || req.Messages[0].Role != "system" || req.Messages[1].Role != "user" {
			t.Errorf("messages = %+v", req.Messages)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"content": "ответ"}},
			},
		})
	}))
	defer srv.Close()

	got, err := newTestClient(t, srv.URL).Complete(context.Background(), "система", "вопрос")
	if err != nil {
		t.Fatalf("Complete() error: %v", err)
	}
	if got != "ответ" {
		t.Errorf("Complete() = %q, want %q", got, "ответ")
	}
}

func TestCompleteAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]any{"message": "model overloaded", "type": "server_error"},
		})
	}))
	defer srv.Close()

	if _, err := newTestClient(t, srv.URL).Complete(context.Background(), "s", "u"); err == nil {
		t.Fatal("expected error for error response body")
	}
}

func TestCompleteNoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"choices": []any{}})
	}))
	defer srv.Close()

	if _, err := newTestClient(t, srv.URL).Complete(context.Background(), "s", "u"); err == nil {
		t.Fatal("expected error for empty choices")
	}
}

func TestNewHTTPClientValidation(t *testing.T) {
	if _, err := NewHTTPClient(&config.LLMConfig{Model: "m"}); err == nil {
		t.Error("expected error for missing endpoint")
	}
	if _, err := NewHTTPClient(&config.LLMConfig{Endpoint: "http://x"}); err == nil {
		t.Error("expected error for missing model")
	}
}

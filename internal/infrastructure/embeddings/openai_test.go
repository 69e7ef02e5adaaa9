package embeddings

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"ragresearch/internal/domain"
)

func TestOpenAIEmbedderEmbed(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("missing auth header: %q", got)
		}

		var req struct {
			Input []string `json:"input"`
			Model string   `json:"model"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.Model != "text-embedding-3-small" {
			t.Errorf("unexpected model: %s", req.Model)
		}

		// Respond out of order to exercise index-based placement.
		resp := map[string]any{
			"data": []map[string]any{
				{"embedding": []float64{0.4, 0.5}, "index": 1},
				{"embedding": []float64{0.1, 0.2}, "index": 0},
			},
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	e := NewOpenAIEmbedder("test-key", "text-embedding-3-small", server.URL, server.Client())

	vecs, err := e.Embed(context.Background(), []string{"first", "second"})
	if err != nil {
		t.Fatalf("embed: %v", err)
	}
	if len(vecs) != 2 {
		t.Fatalf("expected 2 vectors, got %d", len(vecs))
	}
	if vecs[0][0] != 0.1 || vecs[1][0] != 0.4 {
		t.Fatalf("index order not honored: %v", vecs)
	}
}

func TestOpenAIEmbedderEmptyInput(t *testing.T) {
	t.Parallel()

	e := NewOpenAIEmbedder("key", "model", "http://unused", nil)
	vecs, err := e.Embed(context.Background(), nil)
	if err != nil {
		t.Fatalf("embed: %v", err)
	}
	if len(vecs) != 0 {
		t.Fatalf("expected no vectors, got %d", len(vecs))
	}
}

func TestOpenAIEmbedderCountMismatch(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{{"embedding": []float64{0.1}, "index": 0}},
		})
	}))
	defer server.Close()

	e := NewOpenAIEmbedder("key", "model", server.URL, server.Client())
	if _, err := e.Embed(context.Background(), []string{"a", "b"}); err == nil {
		t.Fatal("expected count mismatch error")
	}
}

func TestOpenAIEmbedderRateLimitIsTransient(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	e := NewOpenAIEmbedder("key", "model", server.URL, server.Client())
	_, err := e.Embed(context.Background(), []string{"a"})
	if !domain.IsTransient(err) {
		t.Fatalf("429 should be transient, got %v", err)
	}
}

func TestOpenAIEmbedderBadRequestIsPermanent(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	e := NewOpenAIEmbedder("key", "model", server.URL, server.Client())
	_, err := e.Embed(context.Background(), []string{"a"})
	if err == nil || domain.IsTransient(err) {
		t.Fatalf("400 should be a permanent error, got %v", err)
	}
}

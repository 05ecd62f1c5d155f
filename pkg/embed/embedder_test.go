package embed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHashEmbedder(t *testing.T) {
	ctx := context.Background()
	h := NewHashEmbedder(64)

	if h.Dim() != 64 {
		t.Errorf("expected dim 64, got %d", h.Dim())
	}
	if h.Name() != "local/hash-64" {
		t.Errorf("unexpected name: %q", h.Name())
	}

	t.Run("Deterministic", func(t *testing.T) {
		first, err := h.Embed(ctx, []string{"remote work policy"})
		if err != nil {
			t.Fatalf("embed failed: %v", err)
		}
		second, err := h.Embed(ctx, []string{"remote work policy"})
		if err != nil {
			t.Fatalf("embed failed: %v", err)
		}
		for i := range first[0] {
			if first[0][i] != second[0][i] {
				t.Fatalf("embedding not deterministic at %d: %v vs %v", i, first[0][i], second[0][i])
			}
		}
	})

	t.Run("OnePerText", func(t *testing.T) {
		vectors, err := h.Embed(ctx, []string{"a", "b", "c"})
		if err != nil {
			t.Fatalf("embed failed: %v", err)
		}
		if len(vectors) != 3 {
			t.Fatalf("expected 3 vectors, got %d", len(vectors))
		}
		for i, vec := range vectors {
			if len(vec) != 64 {
				t.Errorf("vector %d: expected dim 64, got %d", i, len(vec))
			}
		}
	})

	t.Run("Normalized", func(t *testing.T) {
		vectors, err := h.Embed(ctx, []string{"several distinct tokens here"})
		if err != nil {
			t.Fatalf("embed failed: %v", err)
		}
		var norm float64
		for _, v := range vectors[0] {
			norm += float64(v) * float64(v)
		}
		if math.Abs(norm-1) > 1e-5 {
			t.Errorf("expected unit norm, got %v", norm)
		}
	})

	t.Run("SharedVocabularyCloser", func(t *testing.T) {
		vectors, err := h.Embed(ctx, []string{
			"vacation policy days",
			"vacation policy rules",
			"quarterly revenue report",
		})
		if err != nil {
			t.Fatalf("embed failed: %v", err)
		}
		related := cosine(vectors[0], vectors[1])
		unrelated := cosine(vectors[0], vectors[2])
		if related <= unrelated {
			t.Errorf("expected shared-vocabulary texts closer: %v vs %v", related, unrelated)
		}
	})

	t.Run("CancelledContext", func(t *testing.T) {
		cancelled, cancel := context.WithCancel(ctx)
		cancel()
		if _, err := h.Embed(cancelled, []string{"x"}); !errors.Is(err, ErrEmbeddingFailed) {
			t.Errorf("expected ErrEmbeddingFailed, got %v", err)
		}
	})
}

func cosine(a, b []float32) float64 {
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot
}

func TestPerText(t *testing.T) {
	ctx := context.Background()
	p := NewPerText("test/per-text", 1, 2, func(_ context.Context, text string) ([]float32, error) {
		if text == "bad" {
			return nil, fmt.Errorf("%w: rejected", ErrEmbeddingFailed)
		}
		return []float32{float32(len(text))}, nil
	})

	t.Run("PreservesOrder", func(t *testing.T) {
		vectors, err := p.Embed(ctx, []string{"a", "bb", "ccc", "dddd", "eeeee"})
		if err != nil {
			t.Fatalf("embed failed: %v", err)
		}
		for i, vec := range vectors {
			if vec[0] != float32(i+1) {
				t.Errorf("position %d: expected %d, got %v", i, i+1, vec[0])
			}
		}
	})

	t.Run("AllOrNothing", func(t *testing.T) {
		if _, err := p.Embed(ctx, []string{"ok", "bad", "ok"}); !errors.Is(err, ErrEmbeddingFailed) {
			t.Errorf("expected ErrEmbeddingFailed, got %v", err)
		}
	})
}

func TestHTTPEmbedder(t *testing.T) {
	ctx := context.Background()

	t.Run("Success", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/api/embed" {
				t.Errorf("unexpected path: %s", r.URL.Path)
			}
			if got := r.Header.Get("Authorization"); got != "Bearer secret" {
				t.Errorf("unexpected auth header: %q", got)
			}
			var req embedRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				t.Errorf("failed to decode request: %v", err)
			}
			if req.Model != "test-model" {
				t.Errorf("unexpected model: %q", req.Model)
			}
			vectors := make([][]float32, len(req.Input))
			for i := range vectors {
				vectors[i] = []float32{float32(i), 1}
			}
			json.NewEncoder(w).Encode(embedResponse{Embeddings: vectors})
		}))
		defer server.Close()

		e := NewHTTPEmbedder(HTTPConfig{
			BaseURL: server.URL,
			Model:   "test-model",
			APIKey:  "secret",
			Dim:     2,
		})
		if e.Name() != "http/test-model" {
			t.Errorf("unexpected name: %q", e.Name())
		}
		vectors, err := e.Embed(ctx, []string{"one", "two"})
		if err != nil {
			t.Fatalf("embed failed: %v", err)
		}
		if len(vectors) != 2 || vectors[1][0] != 1 {
			t.Errorf("unexpected vectors: %v", vectors)
		}
	})

	t.Run("ServerError", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "model not found", http.StatusNotFound)
		}))
		defer server.Close()

		e := NewHTTPEmbedder(HTTPConfig{BaseURL: server.URL, Model: "missing"})
		if _, err := e.Embed(ctx, []string{"x"}); !errors.Is(err, ErrEmbeddingFailed) {
			t.Errorf("expected ErrEmbeddingFailed, got %v", err)
		}
	})

	t.Run("ErrorField", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			json.NewEncoder(w).Encode(embedResponse{Error: "overloaded"})
		}))
		defer server.Close()

		e := NewHTTPEmbedder(HTTPConfig{BaseURL: server.URL, Model: "m"})
		if _, err := e.Embed(ctx, []string{"x"}); !errors.Is(err, ErrEmbeddingFailed) {
			t.Errorf("expected ErrEmbeddingFailed, got %v", err)
		}
	})

	t.Run("CountMismatch", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			json.NewEncoder(w).Encode(embedResponse{Embeddings: [][]float32{{1}}})
		}))
		defer server.Close()

		e := NewHTTPEmbedder(HTTPConfig{BaseURL: server.URL, Model: "m"})
		if _, err := e.Embed(ctx, []string{"x", "y"}); !errors.Is(err, ErrEmbeddingFailed) {
			t.Errorf("expected ErrEmbeddingFailed, got %v", err)
		}
	})

	t.Run("Unreachable", func(t *testing.T) {
		e := NewHTTPEmbedder(HTTPConfig{BaseURL: "http://127.0.0.1:1", Model: "m"})
		if _, err := e.Embed(ctx, []string{"x"}); !errors.Is(err, ErrEmbeddingFailed) {
			t.Errorf("expected ErrEmbeddingFailed, got %v", err)
		}
	})
}

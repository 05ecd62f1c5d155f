package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// HTTPEmbedder calls a remote embedding endpoint speaking a minimal JSON
// shape: POST {model, input: [texts]} returning {embeddings: [[...]]}.
// Model servers such as Ollama expose this directly; other APIs need a
// thin proxy or their own Embedder implementation.
type HTTPEmbedder struct {
	baseURL string
	model   string
	apiKey  string
	dim     int
	client  *http.Client
}

// HTTPConfig configures an HTTPEmbedder.
type HTTPConfig struct {
	// BaseURL of the embedding server, e.g. "http://localhost:11434".
	BaseURL string
	// Model name sent with each request.
	Model string
	// APIKey, if set, is sent as a bearer token.
	APIKey string
	// Dim is the dimensionality the model produces.
	Dim int
	// Timeout bounds each request. Zero means 30s.
	Timeout time.Duration
}

type embedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
	Error      string      `json:"error,omitempty"`
}

// NewHTTPEmbedder creates a remote provider for the given server.
func NewHTTPEmbedder(cfg HTTPConfig) *HTTPEmbedder {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &HTTPEmbedder{
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		model:   cfg.Model,
		apiKey:  cfg.APIKey,
		dim:     cfg.Dim,
		client:  &http.Client{Timeout: timeout},
	}
}

func (e *HTTPEmbedder) Dim() int {
	return e.dim
}

func (e *HTTPEmbedder) Name() string {
	return "http/" + e.model
}

// Embed sends all texts in one request. Any transport, auth or server
// failure is reported as ErrEmbeddingFailed; no partial results are
// returned.
func (e *HTTPEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	body, err := json.Marshal(embedRequest{Model: e.model, Input: texts})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/api/embed", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if e.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+e.apiKey)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%w: server returned %d: %s", ErrEmbeddingFailed, resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var parsed embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
	}
	if parsed.Error != "" {
		return nil, fmt.Errorf("%w: %s", ErrEmbeddingFailed, parsed.Error)
	}
	if len(parsed.Embeddings) != len(texts) {
		return nil, fmt.Errorf("%w: got %d embeddings for %d texts", ErrEmbeddingFailed, len(parsed.Embeddings), len(texts))
	}
	return parsed.Embeddings, nil
}

// Package embed defines the embedding-provider boundary: anything that
// can turn text into fixed-length vectors, local model or remote API.
package embed

import (
	"context"
	"errors"

	"golang.org/x/sync/errgroup"
)

// Embedder converts texts into vectors. Implementations must return one
// vector per input text, preserving order, and must produce vectors of a
// fixed dimensionality reported by Dim.
type Embedder interface {
	// Embed converts texts into vectors. The call is all-or-nothing: on
	// error no vectors are returned.
	Embed(ctx context.Context, texts []string) ([][]float32, error)

	// Dim returns the dimensionality of produced vectors.
	Dim() int

	// Name identifies the provider. Collections record it and refuse
	// embedders with a different name.
	Name() string
}

// Errors related to embedding operations.
var (
	// ErrNotConfigured is returned when an operation needs an embedder
	// but none was attached to the collection.
	ErrNotConfigured = errors.New("embed: no embedder configured")

	// ErrEmbeddingFailed is returned when a provider fails to produce
	// vectors, including network and auth failures of remote providers.
	ErrEmbeddingFailed = errors.New("embed: embedding failed")
)

// PerText adapts a single-text embedding function into an Embedder by
// fanning texts out over a bounded number of goroutines. Useful for
// providers whose API only accepts one input at a time.
type PerText struct {
	name        string
	dim         int
	concurrency int
	fn          func(ctx context.Context, text string) ([]float32, error)
}

// NewPerText creates a PerText embedder. concurrency <= 0 means 4.
func NewPerText(name string, dim, concurrency int, fn func(ctx context.Context, text string) ([]float32, error)) *PerText {
	if concurrency <= 0 {
		concurrency = 4
	}
	return &PerText{name: name, dim: dim, concurrency: concurrency, fn: fn}
}

func (p *PerText) Name() string { return p.name }
func (p *PerText) Dim() int     { return p.dim }

// Embed calls the per-text function concurrently, preserving order.
func (p *PerText) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency)
	for i, text := range texts {
		i, text := i, text
		g.Go(func() error {
			vec, err := p.fn(ctx, text)
			if err != nil {
				return err
			}
			vectors[i] = vec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return vectors, nil
}

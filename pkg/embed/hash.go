package embed

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"strings"
)

// HashEmbedder is a deterministic local provider. It hashes whitespace
// tokens into a fixed number of buckets and L2-normalizes the result, so
// texts sharing vocabulary land near each other. It stands in for a real
// local model in tests, demos and offline use.
type HashEmbedder struct {
	dim int
}

// NewHashEmbedder creates a hash embedder producing dim-length vectors.
// dim <= 0 defaults to 128.
func NewHashEmbedder(dim int) *HashEmbedder {
	if dim <= 0 {
		dim = 128
	}
	return &HashEmbedder{dim: dim}
}

func (h *HashEmbedder) Dim() int {
	return h.dim
}

func (h *HashEmbedder) Name() string {
	return fmt.Sprintf("local/hash-%d", h.dim)
}

// Embed produces one vector per text. It never fails, but honors
// context cancellation between texts.
func (h *HashEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
		}
		vectors[i] = h.embedOne(text)
	}
	return vectors, nil
}

func (h *HashEmbedder) embedOne(text string) []float32 {
	vec := make([]float32, h.dim)
	for _, token := range strings.Fields(strings.ToLower(text)) {
		hasher := fnv.New32a()
		hasher.Write([]byte(token))
		sum := hasher.Sum32()

		bucket := int(sum % uint32(h.dim))
		// High bit decides the sign so buckets cancel rather than
		// saturate on long texts.
		if sum&0x80000000 != 0 {
			vec[bucket] -= 1
		} else {
			vec[bucket] += 1
		}
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm > 0 {
		inv := float32(1 / math.Sqrt(norm))
		for i := range vec {
			vec[i] *= inv
		}
	}
	return vec
}

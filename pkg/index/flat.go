// Package index provides exact nearest-neighbor search over the vectors
// of a single collection.
package index

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrDimensionMismatch is returned when a vector's length does not match
// the index dimensionality.
var ErrDimensionMismatch = errors.New("vector dimension mismatch")

// Neighbor is one search result: a stored id and its distance from the
// query vector.
type Neighbor struct {
	ID       string
	Distance float64
}

// FlatIndex is a brute-force exact index. Every query scans all stored
// vectors in insertion order, so equal distances resolve to the earlier
// inserted id. The dimensionality is fixed by the first inserted vector.
type FlatIndex struct {
	mu       sync.RWMutex
	metric   Metric
	distFunc DistanceFunc
	dim      int
	vectors  map[string][]float32
	order    []string
}

// NewFlatIndex creates an empty index using the given metric.
func NewFlatIndex(metric Metric) *FlatIndex {
	return &FlatIndex{
		metric:   metric,
		distFunc: metric.Func(),
		vectors:  make(map[string][]float32),
	}
}

// Metric returns the index's distance metric.
func (f *FlatIndex) Metric() Metric {
	return f.metric
}

// Dim returns the fixed dimensionality, or 0 before the first insert.
func (f *FlatIndex) Dim() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.dim
}

// SetDim fixes the dimensionality of an empty index ahead of inserts,
// used when restoring an index whose dimensionality is already known.
// It is a no-op once the dimensionality is set.
func (f *FlatIndex) SetDim(dim int) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.dim == 0 && dim > 0 {
		f.dim = dim
	}
}

// Len returns the number of stored vectors.
func (f *FlatIndex) Len() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.vectors)
}

// Insert adds a vector under id, replacing any prior vector for the same
// id in place. The first insert fixes the index dimensionality.
func (f *FlatIndex) Insert(id string, vector []float32) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.dim == 0 {
		f.dim = len(vector)
	} else if len(vector) != f.dim {
		return fmt.Errorf("%w: expected %d, got %d", ErrDimensionMismatch, f.dim, len(vector))
	}

	v := make([]float32, len(vector))
	copy(v, vector)

	if _, exists := f.vectors[id]; !exists {
		f.order = append(f.order, id)
	}
	f.vectors[id] = v
	return nil
}

// Remove deletes the vector stored under id. Absent ids are ignored.
func (f *FlatIndex) Remove(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, exists := f.vectors[id]; !exists {
		return
	}
	delete(f.vectors, id)
	for i, oid := range f.order {
		if oid == id {
			f.order = append(f.order[:i], f.order[i+1:]...)
			break
		}
	}
}

// IDs returns the stored ids in insertion order.
func (f *FlatIndex) IDs() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()

	out := make([]string, len(f.order))
	copy(out, f.order)
	return out
}

// Vector returns a copy of the vector stored under id.
func (f *FlatIndex) Vector(id string) ([]float32, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	v, ok := f.vectors[id]
	if !ok {
		return nil, false
	}
	out := make([]float32, len(v))
	copy(out, v)
	return out, true
}

// Nearest returns up to k neighbors ordered by ascending distance.
// An empty index yields an empty result, not an error.
func (f *FlatIndex) Nearest(query []float32, k int) ([]Neighbor, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if len(f.vectors) == 0 || k <= 0 {
		return []Neighbor{}, nil
	}
	if len(query) != f.dim {
		return nil, fmt.Errorf("%w: expected %d, got %d", ErrDimensionMismatch, f.dim, len(query))
	}

	neighbors := make([]Neighbor, 0, len(f.order))
	for _, id := range f.order {
		neighbors = append(neighbors, Neighbor{
			ID:       id,
			Distance: f.distFunc(query, f.vectors[id]),
		})
	}

	// Stable sort over the insertion-ordered scan keeps the earlier id
	// first on distance ties.
	sort.SliceStable(neighbors, func(i, j int) bool {
		return neighbors[i].Distance < neighbors[j].Distance
	})

	if k < len(neighbors) {
		neighbors = neighbors[:k]
	}
	return neighbors, nil
}

package index

import (
	"errors"
	"math"
	"testing"
)

func TestFlatIndexNearest(t *testing.T) {
	idx := NewFlatIndex(MetricL2)

	vectors := map[string][]float32{
		"a": {0, 0},
		"b": {1, 0},
		"c": {0, 1},
	}
	for _, id := range []string{"a", "b", "c"} {
		if err := idx.Insert(id, vectors[id]); err != nil {
			t.Fatalf("Insert(%s) failed: %v", id, err)
		}
	}

	neighbors, err := idx.Nearest([]float32{0.1, 0}, 1)
	if err != nil {
		t.Fatalf("Nearest failed: %v", err)
	}
	if len(neighbors) != 1 {
		t.Fatalf("expected 1 neighbor, got %d", len(neighbors))
	}
	if neighbors[0].ID != "a" {
		t.Errorf("expected nearest id 'a', got %q", neighbors[0].ID)
	}
	if math.Abs(neighbors[0].Distance-0.01) > 1e-6 {
		t.Errorf("expected distance 0.01, got %v", neighbors[0].Distance)
	}
}

func TestFlatIndexOrdering(t *testing.T) {
	idx := NewFlatIndex(MetricL2)
	if err := idx.Insert("far", []float32{5, 5}); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if err := idx.Insert("near", []float32{1, 0}); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if err := idx.Insert("mid", []float32{2, 0}); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	neighbors, err := idx.Nearest([]float32{0, 0}, 10)
	if err != nil {
		t.Fatalf("Nearest failed: %v", err)
	}
	if len(neighbors) != 3 {
		t.Fatalf("expected all 3 neighbors, got %d", len(neighbors))
	}
	for i := 1; i < len(neighbors); i++ {
		if neighbors[i].Distance < neighbors[i-1].Distance {
			t.Errorf("results not sorted ascending: %v", neighbors)
		}
	}
	if neighbors[0].ID != "near" || neighbors[1].ID != "mid" || neighbors[2].ID != "far" {
		t.Errorf("unexpected order: %v", neighbors)
	}
}

func TestFlatIndexTieBreak(t *testing.T) {
	idx := NewFlatIndex(MetricL2)
	// Same distance from the origin; the earlier insert must win.
	if err := idx.Insert("second-nearest", []float32{0, 1}); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if err := idx.Insert("tied", []float32{1, 0}); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	neighbors, err := idx.Nearest([]float32{0, 0}, 1)
	if err != nil {
		t.Fatalf("Nearest failed: %v", err)
	}
	if neighbors[0].ID != "second-nearest" {
		t.Errorf("expected earlier-inserted id to win the tie, got %q", neighbors[0].ID)
	}
}

func TestFlatIndexEmpty(t *testing.T) {
	idx := NewFlatIndex(MetricL2)
	neighbors, err := idx.Nearest([]float32{1, 2, 3}, 5)
	if err != nil {
		t.Fatalf("Nearest on empty index failed: %v", err)
	}
	if len(neighbors) != 0 {
		t.Errorf("expected empty result, got %v", neighbors)
	}
}

func TestFlatIndexDimensionMismatch(t *testing.T) {
	idx := NewFlatIndex(MetricL2)
	if err := idx.Insert("a", []float32{1, 2}); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	if err := idx.Insert("b", []float32{1, 2, 3}); !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("expected ErrDimensionMismatch on insert, got %v", err)
	}
	if _, err := idx.Nearest([]float32{1}, 1); !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("expected ErrDimensionMismatch on query, got %v", err)
	}
}

func TestFlatIndexSetDim(t *testing.T) {
	idx := NewFlatIndex(MetricL2)
	idx.SetDim(3)
	if idx.Dim() != 3 {
		t.Fatalf("expected dim 3, got %d", idx.Dim())
	}

	if err := idx.Insert("a", []float32{1, 2}); !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("expected ErrDimensionMismatch, got %v", err)
	}
	if err := idx.Insert("a", []float32{1, 2, 3}); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	// Once set, the dimensionality cannot change.
	idx.SetDim(5)
	if idx.Dim() != 3 {
		t.Errorf("expected dim to stay 3, got %d", idx.Dim())
	}
}

func TestFlatIndexRemove(t *testing.T) {
	idx := NewFlatIndex(MetricL2)
	if err := idx.Insert("a", []float32{0, 0}); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if err := idx.Insert("b", []float32{1, 1}); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	idx.Remove("a")
	idx.Remove("missing") // no-op

	if idx.Len() != 1 {
		t.Fatalf("expected 1 vector after remove, got %d", idx.Len())
	}
	if _, ok := idx.Vector("a"); ok {
		t.Error("removed vector still present")
	}
	ids := idx.IDs()
	if len(ids) != 1 || ids[0] != "b" {
		t.Errorf("unexpected ids after remove: %v", ids)
	}
}

func TestFlatIndexReplaceKeepsPosition(t *testing.T) {
	idx := NewFlatIndex(MetricL2)
	if err := idx.Insert("a", []float32{9, 9}); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if err := idx.Insert("b", []float32{1, 0}); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	// Replacing a's vector must not move it behind b in insertion order.
	if err := idx.Insert("a", []float32{0, 1}); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	neighbors, err := idx.Nearest([]float32{0, 0}, 2)
	if err != nil {
		t.Fatalf("Nearest failed: %v", err)
	}
	if neighbors[0].ID != "a" {
		t.Errorf("expected replaced 'a' to win the distance tie, got %q", neighbors[0].ID)
	}
	if idx.Len() != 2 {
		t.Errorf("expected 2 vectors, got %d", idx.Len())
	}
}

func TestDistanceFuncs(t *testing.T) {
	a := []float32{1, 0}
	b := []float32{0, 1}

	if d := SquaredEuclidean(a, b); d != 2 {
		t.Errorf("SquaredEuclidean: expected 2, got %v", d)
	}
	if d := CosineDistance(a, a); math.Abs(d) > 1e-9 {
		t.Errorf("CosineDistance of identical vectors: expected 0, got %v", d)
	}
	if d := CosineDistance(a, b); math.Abs(d-1) > 1e-9 {
		t.Errorf("CosineDistance of orthogonal vectors: expected 1, got %v", d)
	}
	if d := CosineDistance([]float32{0, 0}, a); d != 1 {
		t.Errorf("CosineDistance with zero vector: expected 1, got %v", d)
	}
	if d := InnerProductDistance(a, a); d != 0 {
		t.Errorf("InnerProductDistance: expected 0, got %v", d)
	}
}

func TestParseMetric(t *testing.T) {
	for _, name := range []string{"l2", "cosine", "ip"} {
		if _, err := ParseMetric(name); err != nil {
			t.Errorf("ParseMetric(%q) failed: %v", name, err)
		}
	}
	if _, err := ParseMetric("hamming"); err == nil {
		t.Error("expected error for unknown metric")
	}
}

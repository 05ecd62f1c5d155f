package index

import (
	"fmt"
	"math"
)

// DistanceFunc computes the distance between two vectors of equal length.
// Smaller values mean more similar vectors.
type DistanceFunc func(a, b []float32) float64

// Metric names a distance function for storage in a collection record.
type Metric string

const (
	// MetricL2 is squared Euclidean distance.
	MetricL2 Metric = "l2"
	// MetricCosine is cosine distance (1 - cosine similarity).
	MetricCosine Metric = "cosine"
	// MetricIP is inner-product distance (1 - dot product).
	MetricIP Metric = "ip"
)

// ParseMetric validates a metric name.
func ParseMetric(name string) (Metric, error) {
	switch Metric(name) {
	case MetricL2, MetricCosine, MetricIP:
		return Metric(name), nil
	default:
		return "", fmt.Errorf("unknown distance metric %q", name)
	}
}

// Func returns the distance function for the metric. Unknown metrics
// fall back to squared Euclidean.
func (m Metric) Func() DistanceFunc {
	switch m {
	case MetricCosine:
		return CosineDistance
	case MetricIP:
		return InnerProductDistance
	default:
		return SquaredEuclidean
	}
}

// SquaredEuclidean returns the sum of squared component differences.
func SquaredEuclidean(a, b []float32) float64 {
	var sum float64
	for i := 0; i < len(a); i++ {
		diff := float64(a[i]) - float64(b[i])
		sum += diff * diff
	}
	return sum
}

// CosineDistance returns 1 minus the cosine similarity of a and b.
// Zero vectors are treated as maximally distant.
func CosineDistance(a, b []float32) float64 {
	var dot, normA, normB float64
	for i := 0; i < len(a); i++ {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 1.0
	}
	return 1.0 - dot/(math.Sqrt(normA)*math.Sqrt(normB))
}

// InnerProductDistance returns 1 minus the dot product of a and b.
func InnerProductDistance(a, b []float32) float64 {
	var dot float64
	for i := 0; i < len(a); i++ {
		dot += float64(a[i]) * float64(b[i])
	}
	return 1.0 - dot
}

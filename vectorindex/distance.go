package vectorindex

import "math"

// Metric selects the distance function. It is fixed at index construction
// and must match the embedding provider's geometry.
type Metric string

const (
	// Cosine distance: 1 - cos(a, b). Range [0, 2], 0 is identical
	// direction.
	Cosine Metric = "cosine"

	// Euclidean distance (squared, monotone-equivalent to L2 for
	// ranking).
	Euclidean Metric = "euclidean"
)

// Valid reports whether m names a supported metric.
func (m Metric) Valid() bool {
	return m == Cosine || m == Euclidean
}

func cosineDistance(a, b []float32) float32 {
	var dot, normA, normB float32
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 1
	}
	return 1 - dot/float32(math.Sqrt(float64(normA))*math.Sqrt(float64(normB)))
}

func euclideanDistance(a, b []float32) float32 {
	var sum float32
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return sum
}

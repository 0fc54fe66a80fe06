// Package mock provides a deterministic embedder for tests.
package mock

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
)

// Embedder generates deterministic embeddings without a model. The same
// text always maps to the same unit vector, and texts sharing words produce
// correlated vectors, so similarity ordering in tests is meaningful.
type Embedder struct {
	dimensions int
}

// New creates a mock embedder with the given dimension (default 384,
// matching all-MiniLM-L6-v2).
func New(dimensions int) *Embedder {
	if dimensions <= 0 {
		dimensions = 384
	}
	return &Embedder{dimensions: dimensions}
}

// Embed builds a bag-of-words vector: each token contributes a hash-seeded
// pseudo-random direction, so shared vocabulary means higher cosine
// similarity. The result is normalized to a unit vector.
func (m *Embedder) Embed(_ context.Context, text string) ([]float32, error) {
	embedding := make([]float32, m.dimensions)

	for _, token := range tokenize(text) {
		h := fnv.New64a()
		h.Write([]byte(token))
		seed := h.Sum64()

		for i := 0; i < m.dimensions; i++ {
			// LCG keeps each token's direction deterministic.
			seed = seed*6364136223846793005 + 1442695040888963407
			embedding[i] += float32(int64(seed)) / float32(math.MaxInt64)
		}
	}

	return normalize(embedding), nil
}

// Dimensions returns the embedding size.
func (m *Embedder) Dimensions() int {
	return m.dimensions
}

func tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !('a' <= r && r <= 'z' || '0' <= r && r <= '9')
	})
	if len(fields) == 0 {
		return []string{""}
	}
	return fields
}

func normalize(vec []float32) []float32 {
	var norm float32
	for _, v := range vec {
		norm += v * v
	}
	if norm == 0 {
		return vec
	}
	norm = float32(math.Sqrt(float64(norm)))
	for i, v := range vec {
		vec[i] = v / norm
	}
	return vec
}

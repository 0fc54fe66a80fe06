// Package embedder defines the embedding provider interface and shared
// decorators. Concrete providers live in subpackages:
//
//   - ollama: HTTP adapter for a local inference engine
//   - onnx:   in-process all-MiniLM-L6-v2 via ONNX Runtime (build tag "onnx")
//   - mock:   deterministic embeddings for tests
//
// The provider's geometry (dimension, implied distance metric) is fixed
// configuration: the vector index is constructed against it and a mismatch
// is a startup error, never silently corrected.
package embedder

import "context"

// Provider converts text to fixed-dimension vectors.
type Provider interface {
	// Embed converts a single text to an embedding vector.
	Embed(ctx context.Context, text string) ([]float32, error)

	// Dimensions returns the embedding vector size.
	Dimensions() int
}

// Package onnx provides an in-process embedding provider running
// all-MiniLM-L6-v2 (or a compatible BERT-family model) through ONNX Runtime.
// Useful for fully-offline deployments where no Ollama server is running.
//
// The real provider is behind the "onnx" build tag; without it New reports
// that the binary was built without ONNX support.
package onnx

// Config configures the ONNX embedding provider.
type Config struct {
	// ModelPath is the path to the ONNX model file.
	ModelPath string

	// TokenizerPath is the path to the HuggingFace tokenizer.json.
	TokenizerPath string

	// LibraryPath is the path to libonnxruntime. Empty uses the
	// ONNXRUNTIME_LIB environment variable.
	LibraryPath string

	// Dimensions is the embedding size (default 384 for all-MiniLM-L6-v2).
	Dimensions int

	// MaxSequenceLength bounds tokenized input (default 128).
	MaxSequenceLength int
}

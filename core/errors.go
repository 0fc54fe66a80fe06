package core

import (
	"errors"
	"fmt"
)

// Sentinel errors for the failure taxonomy. Callers match with errors.Is;
// wrapping with fmt.Errorf("...: %w", err) preserves the category.
var (
	// ErrStoreUnavailable means the persistence layer is unreachable.
	// Fatal for the current request, not for the process.
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrEmbeddingUnavailable means the embedding provider could not be
	// reached. Ingestion and retrieval abort with no partial writes.
	ErrEmbeddingUnavailable = errors.New("embedding provider unavailable")

	// ErrDimensionMismatch means a vector's dimension does not match the
	// index configuration. Vectors are never truncated or padded.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")

	// ErrInvalidParameters means tool parameters failed schema validation.
	// No network call is made.
	ErrInvalidParameters = errors.New("invalid tool parameters")

	// ErrToolTimeout means a tool invocation exceeded its configured
	// timeout. The router never retries on its own.
	ErrToolTimeout = errors.New("tool invocation timed out")

	// ErrNotFound is the benign missing-record error.
	ErrNotFound = errors.New("not found")
)

// ToolError is a structured failure reported by a tool server. It is
// recoverable: the dispatcher surfaces it to the agent loop so the model can
// react (apologize, retry with different parameters).
type ToolError struct {
	Tool    string
	Code    string
	Message string
}

func (e *ToolError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("tool %s failed (%s): %s", e.Tool, e.Code, e.Message)
	}
	return fmt.Sprintf("tool %s failed: %s", e.Tool, e.Message)
}

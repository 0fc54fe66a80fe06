// Package core defines the shared domain types of the memory and knowledge
// subsystem: sessions with ordered turns, user-scoped memories, session
// summaries, ingested knowledge documents, and generated artifacts.
//
// All stores exchange these types; none of them owns behavior beyond
// trivial accessors. Ownership:
//   - memory.Store exclusively owns Session/Turn/Memory/SessionSummary
//   - knowledge.Store exclusively owns KnowledgeDocument/KnowledgeChunk
//   - tools.Router owns Artifact records
package core

import "time"

// Role identifies the author of a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
	RoleTool      Role = "tool"
)

// Turn is one message within a session. Index is assigned by the store and
// strictly increases within a session; Timestamp is non-decreasing in Index
// order.
type Turn struct {
	SessionID string
	Index     int
	Role      Role
	Content   string
	Timestamp time.Time
}

// Session identifies one conversation thread. A session belongs to exactly
// one user and is created implicitly on the first appended turn.
type Session struct {
	ID         string
	UserID     string
	CreatedAt  time.Time
	LastActive time.Time
	TurnCount  int
}

// Memory is a durable, user-scoped fact extracted from conversation.
// Memories are immutable once written; superseding facts are recorded as new
// memories. Deletion happens only on explicit user request.
type Memory struct {
	ID              string
	UserID          string
	Content         string
	SourceSessionID string
	Topics          []string
	CreatedAt       time.Time
}

// SessionSummary is the condensed history of a session up to CoversThrough
// (exclusive turn index). At most one current summary exists per session and
// CoversThrough never decreases.
type SessionSummary struct {
	SessionID     string
	Text          string
	CoversThrough int
	UpdatedAt     time.Time
}

// KnowledgeDocument is an ingested source document and the ordered chunk ids
// derived from it.
type KnowledgeDocument struct {
	ID         string
	Title      string
	IngestedAt time.Time
	ChunkIDs   []string
}

// KnowledgeChunk is a text fragment of a document paired with its embedding.
// Vectors are never mutated after insertion; re-ingestion creates new chunks
// and retires the old ones.
type KnowledgeChunk struct {
	ID         string
	DocumentID string
	Position   int
	Text       string
	Embedding  []float32
}

// ArtifactKind categorizes generated files by the producing tool class.
type ArtifactKind string

const (
	ArtifactDocument ArtifactKind = "document"
	ArtifactChart    ArtifactKind = "chart"
	ArtifactImage    ArtifactKind = "image"
)

// SharedConversationID is the reserved conversation namespace for artifacts
// not tied to a single conversation.
const SharedConversationID = "_shared"

// Artifact is a file produced by a successful tool invocation, namespaced by
// conversation id. Artifacts are never auto-deleted by the core.
type Artifact struct {
	ID             string
	ConversationID string
	Kind           ArtifactKind
	Path           string
	Tool           string
	CreatedAt      time.Time
}

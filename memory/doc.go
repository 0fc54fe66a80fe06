// Package memory persists conversation state: sessions with strictly ordered
// turns, user-scoped durable memories, and per-session summaries.
//
// The Store is the only writer of session/memory/summary records and is safe
// for concurrent use; turns for the same session are serialized so append
// order is preserved, while different sessions proceed independently.
//
// Two layers build on the Store:
//   - RecallIndex ranks a user's memories by embedding similarity so callers
//     can prefer relevance over recency.
//   - Summarizer condenses uncovered turns into the session summary; its
//     covers-through marker only moves forward.
package memory

package memory

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	chromem "github.com/philippgille/chromem-go"

	"github.com/lunai408/local-agent-factory/core"
	"github.com/lunai408/local-agent-factory/embedder"
)

// RecallIndex ranks a user's memories by embedding similarity. It is an
// optional layer over the Store: the Store remains the source of truth and
// guarantees chronological recall even when no index is available.
//
// chromem-go keeps everything in memory, so the index is rebuilt from the
// Store at startup via Warm.
type RecallIndex struct {
	db       *chromem.DB
	provider embedder.Provider

	mu          sync.RWMutex
	collections map[string]*chromem.Collection
}

// NewRecallIndex creates an empty in-memory recall index.
func NewRecallIndex(provider embedder.Provider) *RecallIndex {
	return &RecallIndex{
		db:          chromem.NewDB(),
		provider:    provider,
		collections: make(map[string]*chromem.Collection),
	}
}

// collection returns the per-user collection, creating it on first use.
// Per-user collections keep one user's memories out of another's results.
func (r *RecallIndex) collection(userID string) (*chromem.Collection, error) {
	r.mu.RLock()
	col, ok := r.collections[userID]
	r.mu.RUnlock()
	if ok {
		return col, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if col, ok := r.collections[userID]; ok {
		return col, nil
	}

	name := "user_" + userID
	if userID == "" {
		name = "global"
	}
	col, err := r.db.CreateCollection(name, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("create collection: %w", err)
	}
	r.collections[userID] = col
	return col, nil
}

// Add embeds a memory's content and indexes it under its user. An
// unreachable provider surfaces as ErrEmbeddingUnavailable; the caller
// decides whether that degrades recall or fails the operation.
func (r *RecallIndex) Add(ctx context.Context, mem core.Memory) error {
	col, err := r.collection(mem.UserID)
	if err != nil {
		return err
	}

	vec, err := r.provider.Embed(ctx, mem.Content)
	if err != nil {
		return fmt.Errorf("embed memory %s: %w", mem.ID, err)
	}

	doc := chromem.Document{
		ID:        mem.ID,
		Content:   mem.Content,
		Embedding: vec,
		Metadata: map[string]string{
			"user_id":           mem.UserID,
			"source_session_id": mem.SourceSessionID,
			"created_at":        mem.CreatedAt.Format(time.RFC3339),
		},
	}
	if err := col.AddDocument(ctx, doc); err != nil {
		return fmt.Errorf("index memory %s: %w", mem.ID, err)
	}
	return nil
}

// Remove drops a memory from the index. Missing entries are ignored so the
// index never blocks a Store deletion.
func (r *RecallIndex) Remove(ctx context.Context, userID, memoryID string) error {
	r.mu.RLock()
	col, ok := r.collections[userID]
	r.mu.RUnlock()
	if !ok {
		return nil
	}
	if err := col.Delete(ctx, nil, nil, memoryID); err != nil {
		return fmt.Errorf("unindex memory %s: %w", memoryID, err)
	}
	return nil
}

// RecallResult is one relevance-ranked hit.
type RecallResult struct {
	MemoryID   string
	Content    string
	Similarity float32
}

// Query embeds the query text and returns up to limit memories for the
// user, most similar first. An empty index yields an empty slice.
func (r *RecallIndex) Query(ctx context.Context, userID, query string, limit int) ([]RecallResult, error) {
	col, err := r.collection(userID)
	if err != nil {
		return nil, err
	}

	// chromem rejects nResults larger than the collection.
	if n := col.Count(); n < limit {
		limit = n
	}
	if limit <= 0 {
		return nil, nil
	}

	vec, err := r.provider.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed recall query: %w", err)
	}

	results, err := col.QueryEmbedding(ctx, vec, limit, nil, nil)
	if err != nil {
		if isInsufficientDocsError(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("recall query: %w", err)
	}

	out := make([]RecallResult, 0, len(results))
	for _, res := range results {
		out = append(out, RecallResult{
			MemoryID:   res.ID,
			Content:    res.Content,
			Similarity: res.Similarity,
		})
	}
	log.Printf("[RECALL] %d of %d memories matched for user %s", len(out), col.Count(), userID)
	return out, nil
}

// Warm rebuilds the index from the Store's persisted memories. Embedding
// failures for individual memories are logged and skipped so one bad record
// does not block startup.
func (r *RecallIndex) Warm(ctx context.Context, store *Store, userID string, limit int) error {
	memories, err := store.RecallMemories(ctx, userID, limit)
	if err != nil {
		return err
	}
	indexed := 0
	for _, mem := range memories {
		if err := r.Add(ctx, mem); err != nil {
			log.Printf("[RECALL] Skipping memory %s: %v", mem.ID, err)
			continue
		}
		indexed++
	}
	log.Printf("[RECALL] Warmed %d/%d memories for user %s", indexed, len(memories), userID)
	return nil
}

// chromem reports a too-large nResults as a plain error string.
func isInsufficientDocsError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "nResults must be") || strings.Contains(msg, "number of documents")
}

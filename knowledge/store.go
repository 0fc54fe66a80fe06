// Package knowledge owns ingested documents and their chunks. Chunk text
// lives in SQLite; chunk geometry lives in the vector index. The store keeps
// the two in step: a chunk either has both its text row and its vector, or
// neither.
package knowledge

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"math/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/lunai408/local-agent-factory/core"
	"github.com/lunai408/local-agent-factory/embedder"
	"github.com/lunai408/local-agent-factory/vectorindex"
)

// Store is the knowledge base: ingest documents, retrieve relevant chunks.
// Safe for concurrent use; the index and the database each guard their own
// state and no Store call holds both at once.
type Store struct {
	db       *sql.DB
	index    *vectorindex.Index
	provider embedder.Provider
	chunking ChunkOptions

	idMu    sync.Mutex
	entropy *ulid.MonotonicEntropy
}

// NewStore creates a knowledge store over an open database handle. The
// provider's dimension must match the index; a mismatch is a configuration
// error detected here, at startup.
func NewStore(db *sql.DB, index *vectorindex.Index, provider embedder.Provider, chunking ChunkOptions) (*Store, error) {
	if provider.Dimensions() != index.Dimensions() {
		return nil, fmt.Errorf("provider emits %d dims, index configured for %d: %w",
			provider.Dimensions(), index.Dimensions(), core.ErrDimensionMismatch)
	}
	if chunking.SentencesPerChunk <= 0 {
		chunking = DefaultChunkOptions()
	}

	s := &Store{
		db:       db,
		index:    index,
		provider: provider,
		chunking: chunking,
		entropy:  ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0),
	}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("knowledge migrate: %v: %w", err, core.ErrStoreUnavailable)
	}
	return s, nil
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`
	CREATE TABLE IF NOT EXISTS knowledge_documents (
		id          TEXT PRIMARY KEY,
		title       TEXT NOT NULL,
		ingested_at TEXT NOT NULL
	);
	CREATE TABLE IF NOT EXISTS knowledge_chunks (
		id          TEXT PRIMARY KEY,
		document_id TEXT NOT NULL REFERENCES knowledge_documents(id),
		position    INTEGER NOT NULL,
		text        TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_chunks_document ON knowledge_chunks(document_id);
	`)
	return err
}

// newID returns a fresh ULID. Monotonic entropy keeps ids strictly
// increasing within a millisecond, so id order is creation order.
func (s *Store) newID() string {
	s.idMu.Lock()
	defer s.idMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), s.entropy).String()
}

// Ingest chunks the source text, embeds every chunk, and persists chunk text
// plus document linkage. All embeddings are computed before anything is
// written, so an unreachable provider aborts with ErrEmbeddingUnavailable
// and no partial state. Returns the new document id.
func (s *Store) Ingest(ctx context.Context, title, text string) (string, error) {
	chunks := ChunkText(text, s.chunking)
	if len(chunks) == 0 {
		return "", fmt.Errorf("ingest %q: document has no content", title)
	}

	// Embed first. Nothing is persisted until every chunk has a vector.
	vectors := make([][]float32, len(chunks))
	for i, chunk := range chunks {
		vec, err := s.provider.Embed(ctx, chunk)
		if err != nil {
			return "", fmt.Errorf("embed chunk %d of %q: %w", i, title, err)
		}
		vectors[i] = vec
	}

	docID := s.newID()
	chunkIDs := make([]string, len(chunks))
	for i := range chunks {
		chunkIDs[i] = s.newID()
	}

	// Vectors go in first; a failed text transaction rolls them back so no
	// orphaned geometry survives.
	for i, vec := range vectors {
		if err := s.index.Insert(chunkIDs[i], vec); err != nil {
			s.retireVectors(chunkIDs[:i])
			return "", fmt.Errorf("index chunk %d of %q: %w", i, title, err)
		}
	}

	if err := s.persistDocument(ctx, docID, title, chunkIDs, chunks); err != nil {
		s.retireVectors(chunkIDs)
		return "", err
	}

	log.Printf("[KNOWLEDGE] Ingested %q: %d chunks (doc %s)", title, len(chunks), docID)
	return docID, nil
}

func (s *Store) persistDocument(ctx context.Context, docID, title string, chunkIDs, chunks []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin ingest tx: %v: %w", err, core.ErrStoreUnavailable)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO knowledge_documents (id, title, ingested_at) VALUES (?, ?, ?)`,
		docID, title, time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("insert document: %v: %w", err, core.ErrStoreUnavailable)
	}

	for i, chunk := range chunks {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO knowledge_chunks (id, document_id, position, text) VALUES (?, ?, ?, ?)`,
			chunkIDs[i], docID, i, chunk)
		if err != nil {
			return fmt.Errorf("insert chunk: %v: %w", err, core.ErrStoreUnavailable)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit ingest: %v: %w", err, core.ErrStoreUnavailable)
	}
	return nil
}

func (s *Store) retireVectors(ids []string) {
	for _, id := range ids {
		if err := s.index.Remove(id); err != nil {
			log.Printf("[KNOWLEDGE] Rollback: remove vector %s: %v", id, err)
		}
	}
}

// Retrieve embeds the query and returns up to k chunk texts, most relevant
// first. An empty store yields an empty result, not an error.
func (s *Store) Retrieve(ctx context.Context, query string, k int) ([]string, error) {
	if s.index.Len() == 0 {
		return nil, nil
	}

	vec, err := s.provider.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	hits, err := s.index.Query(vec, k)
	if err != nil {
		return nil, err
	}

	texts := make([]string, 0, len(hits))
	for _, hit := range hits {
		var text string
		err := s.db.QueryRowContext(ctx,
			`SELECT text FROM knowledge_chunks WHERE id = ?`, hit.ID).Scan(&text)
		if err == sql.ErrNoRows {
			// Vector outlived its text row; skip rather than fail the query.
			log.Printf("[KNOWLEDGE] Chunk %s has no text row, skipping", hit.ID)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("resolve chunk %s: %v: %w", hit.ID, err, core.ErrStoreUnavailable)
		}
		texts = append(texts, text)
	}
	return texts, nil
}

// GetDocument returns a document and its ordered chunk ids.
func (s *Store) GetDocument(ctx context.Context, docID string) (*core.KnowledgeDocument, error) {
	var doc core.KnowledgeDocument
	var ingested string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, title, ingested_at FROM knowledge_documents WHERE id = ?`, docID).
		Scan(&doc.ID, &doc.Title, &ingested)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("document %s: %w", docID, core.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get document: %v: %w", err, core.ErrStoreUnavailable)
	}
	doc.IngestedAt, _ = time.Parse(time.RFC3339Nano, ingested)

	rows, err := s.db.QueryContext(ctx,
		`SELECT id FROM knowledge_chunks WHERE document_id = ? ORDER BY position`, docID)
	if err != nil {
		return nil, fmt.Errorf("list chunks: %v: %w", err, core.ErrStoreUnavailable)
	}
	defer rows.Close()
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		doc.ChunkIDs = append(doc.ChunkIDs, id)
	}
	return &doc, rows.Err()
}

// ListDocuments returns all documents, newest first.
func (s *Store) ListDocuments(ctx context.Context) ([]core.KnowledgeDocument, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, title, ingested_at FROM knowledge_documents ORDER BY id DESC`)
	if err != nil {
		return nil, fmt.Errorf("list documents: %v: %w", err, core.ErrStoreUnavailable)
	}
	defer rows.Close()

	var docs []core.KnowledgeDocument
	for rows.Next() {
		var doc core.KnowledgeDocument
		var ingested string
		if err := rows.Scan(&doc.ID, &doc.Title, &ingested); err != nil {
			return nil, err
		}
		doc.IngestedAt, _ = time.Parse(time.RFC3339Nano, ingested)
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

// RemoveDocument retires a document: its vectors are tombstoned in the index
// and its rows deleted. Re-ingesting the same source later creates fresh
// chunks with fresh ids.
func (s *Store) RemoveDocument(ctx context.Context, docID string) error {
	doc, err := s.GetDocument(ctx, docID)
	if err != nil {
		return err
	}

	// Vectors first: a chunk must never be findable by similarity after its
	// text is gone.
	s.retireVectors(doc.ChunkIDs)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin remove tx: %v: %w", err, core.ErrStoreUnavailable)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM knowledge_chunks WHERE document_id = ?`, docID); err != nil {
		return fmt.Errorf("delete chunks: %v: %w", err, core.ErrStoreUnavailable)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM knowledge_documents WHERE id = ?`, docID); err != nil {
		return fmt.Errorf("delete document: %v: %w", err, core.ErrStoreUnavailable)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit remove: %v: %w", err, core.ErrStoreUnavailable)
	}

	log.Printf("[KNOWLEDGE] Removed document %s (%d chunks)", docID, len(doc.ChunkIDs))
	return nil
}

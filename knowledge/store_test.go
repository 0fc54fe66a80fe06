package knowledge_test

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/lunai408/local-agent-factory/core"
	"github.com/lunai408/local-agent-factory/embedder/mock"
	"github.com/lunai408/local-agent-factory/knowledge"
	"github.com/lunai408/local-agent-factory/storage"
	"github.com/lunai408/local-agent-factory/vectorindex"
)

const testDims = 384

// failingEmbedder simulates an unreachable embedding provider.
type failingEmbedder struct{}

func (failingEmbedder) Embed(context.Context, string) ([]float32, error) {
	return nil, core.ErrEmbeddingUnavailable
}

func (failingEmbedder) Dimensions() int { return testDims }

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := storage.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func newTestStore(t *testing.T, provider interface {
	Embed(context.Context, string) ([]float32, error)
	Dimensions() int
}, opts knowledge.ChunkOptions) *knowledge.Store {
	t.Helper()
	idx, err := vectorindex.New(vectorindex.Config{Dimensions: testDims, Metric: vectorindex.Cosine})
	if err != nil {
		t.Fatalf("new index: %v", err)
	}
	s, err := knowledge.NewStore(newTestDB(t), idx, provider, opts)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	return s
}

func TestIngestAndRetrieve(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, mock.New(testDims), knowledge.ChunkOptions{SentencesPerChunk: 1})

	docID, err := s.Ingest(ctx, "architecture notes",
		"SurrealDB stores vectors. HNSW speeds search. Agents query memory.")
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}

	doc, err := s.GetDocument(ctx, docID)
	if err != nil {
		t.Fatalf("GetDocument: %v", err)
	}
	if len(doc.ChunkIDs) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(doc.ChunkIDs))
	}

	texts, err := s.Retrieve(ctx, "how does search get faster?", 1)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(texts) != 1 {
		t.Fatalf("expected 1 result, got %d", len(texts))
	}
	if texts[0] != "HNSW speeds search." {
		t.Errorf("expected the search chunk, got %q", texts[0])
	}
}

func TestRetrieve_EmptyStore(t *testing.T) {
	s := newTestStore(t, mock.New(testDims), knowledge.DefaultChunkOptions())

	texts, err := s.Retrieve(context.Background(), "anything", 5)
	if err != nil {
		t.Fatalf("Retrieve on empty store must not error: %v", err)
	}
	if len(texts) != 0 {
		t.Errorf("expected empty result, got %v", texts)
	}
}

func TestIngest_EmbeddingUnavailable_NoPartialWrites(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, failingEmbedder{}, knowledge.DefaultChunkOptions())

	_, err := s.Ingest(ctx, "doc", "Some content here. More content there.")
	if !errors.Is(err, core.ErrEmbeddingUnavailable) {
		t.Fatalf("expected ErrEmbeddingUnavailable, got %v", err)
	}

	docs, err := s.ListDocuments(ctx)
	if err != nil {
		t.Fatalf("ListDocuments: %v", err)
	}
	if len(docs) != 0 {
		t.Errorf("failed ingest must persist nothing, found %d documents", len(docs))
	}
}

func TestRemoveDocument(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, mock.New(testDims), knowledge.ChunkOptions{SentencesPerChunk: 1})

	docID, err := s.Ingest(ctx, "doc", "Alpha topic sentence. Beta topic sentence.")
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}

	if err := s.RemoveDocument(ctx, docID); err != nil {
		t.Fatalf("RemoveDocument: %v", err)
	}
	if _, err := s.GetDocument(ctx, docID); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("expected ErrNotFound after removal, got %v", err)
	}

	texts, err := s.Retrieve(ctx, "alpha topic", 5)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(texts) != 0 {
		t.Errorf("removed chunks must not be retrievable, got %v", texts)
	}

	if err := s.RemoveDocument(ctx, docID); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("removing twice should be ErrNotFound, got %v", err)
	}
}

func TestIngest_SameTextSameBoundaries(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, mock.New(testDims), knowledge.DefaultChunkOptions())

	text := "One sentence. Two sentence. Three sentence. Four sentence. Five sentence."
	idA, err := s.Ingest(ctx, "a", text)
	if err != nil {
		t.Fatalf("Ingest a: %v", err)
	}
	idB, err := s.Ingest(ctx, "b", text)
	if err != nil {
		t.Fatalf("Ingest b: %v", err)
	}
	if idA == idB {
		t.Fatal("documents must get distinct ids")
	}

	docA, _ := s.GetDocument(ctx, idA)
	docB, _ := s.GetDocument(ctx, idB)
	if len(docA.ChunkIDs) != len(docB.ChunkIDs) {
		t.Errorf("same text produced %d vs %d chunks", len(docA.ChunkIDs), len(docB.ChunkIDs))
	}
}

func TestIngest_ConcurrentDocuments(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, mock.New(testDims), knowledge.ChunkOptions{SentencesPerChunk: 1})

	const writers, perWriter = 4, 10
	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				title := fmt.Sprintf("doc-%d-%d", w, i)
				if _, err := s.Ingest(ctx, title, "Vectors index text. Queries rank chunks."); err != nil {
					t.Errorf("Ingest %s: %v", title, err)
				}
			}
		}(w)
	}
	wg.Wait()

	docs, err := s.ListDocuments(ctx)
	if err != nil {
		t.Fatalf("ListDocuments: %v", err)
	}
	if len(docs) != writers*perWriter {
		t.Fatalf("expected %d documents, got %d", writers*perWriter, len(docs))
	}
	seen := make(map[string]bool, len(docs))
	for _, doc := range docs {
		if seen[doc.ID] {
			t.Fatalf("duplicate document id %s", doc.ID)
		}
		seen[doc.ID] = true
	}
}

func TestListDocuments_NewestFirst(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, mock.New(testDims), knowledge.ChunkOptions{SentencesPerChunk: 1})

	titles := []string{"first", "second", "third"}
	for _, title := range titles {
		if _, err := s.Ingest(ctx, title, "A single sentence."); err != nil {
			t.Fatalf("Ingest %s: %v", title, err)
		}
	}

	docs, err := s.ListDocuments(ctx)
	if err != nil {
		t.Fatalf("ListDocuments: %v", err)
	}
	if len(docs) != 3 {
		t.Fatalf("expected 3 documents, got %d", len(docs))
	}
	for i, want := range []string{"third", "second", "first"} {
		if docs[i].Title != want {
			t.Errorf("docs[%d] = %q, want %q", i, docs[i].Title, want)
		}
	}
}

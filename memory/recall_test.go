package memory_test

import (
	"context"
	"testing"
	"time"

	"github.com/lunai408/local-agent-factory/core"
	"github.com/lunai408/local-agent-factory/embedder/mock"
	"github.com/lunai408/local-agent-factory/memory"
)

func TestRecallIndex_RanksByRelevance(t *testing.T) {
	ctx := context.Background()
	idx := memory.NewRecallIndex(mock.New(384))

	memories := []core.Memory{
		{ID: "m1", UserID: "alice", Content: "prefers dark roast coffee in the morning", CreatedAt: time.Now()},
		{ID: "m2", UserID: "alice", Content: "works remotely from Berlin three days a week", CreatedAt: time.Now()},
		{ID: "m3", UserID: "alice", Content: "training for a marathon in October", CreatedAt: time.Now()},
	}
	for _, mem := range memories {
		if err := idx.Add(ctx, mem); err != nil {
			t.Fatalf("Add %s: %v", mem.ID, err)
		}
	}

	results, err := idx.Query(ctx, "alice", "what coffee does she like", 2)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].MemoryID != "m1" {
		t.Errorf("expected the coffee memory first, got %s (%q)", results[0].MemoryID, results[0].Content)
	}
}

func TestRecallIndex_UserIsolation(t *testing.T) {
	ctx := context.Background()
	idx := memory.NewRecallIndex(mock.New(384))

	if err := idx.Add(ctx, core.Memory{ID: "m1", UserID: "alice", Content: "allergic to peanuts"}); err != nil {
		t.Fatalf("Add: %v", err)
	}

	results, err := idx.Query(ctx, "bob", "food allergies", 5)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("bob sees alice's memories: %+v", results)
	}
}

func TestRecallIndex_EmptyQuery(t *testing.T) {
	idx := memory.NewRecallIndex(mock.New(384))

	results, err := idx.Query(context.Background(), "alice", "anything", 5)
	if err != nil {
		t.Fatalf("Query on empty index: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("expected empty result, got %+v", results)
	}
}

func TestRecallIndex_Remove(t *testing.T) {
	ctx := context.Background()
	idx := memory.NewRecallIndex(mock.New(384))

	if err := idx.Add(ctx, core.Memory{ID: "m1", UserID: "alice", Content: "prefers window seats on flights"}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := idx.Remove(ctx, "alice", "m1"); err != nil {
		t.Fatalf("Remove: %v", err)
	}

	results, err := idx.Query(ctx, "alice", "window seats", 5)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("removed memory still returned: %+v", results)
	}
}

func TestRecallIndex_Warm(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	idx := memory.NewRecallIndex(mock.New(384))

	if _, err := s.RecordMemory(ctx, "alice", "prefers dark roast coffee", "sess-1", nil); err != nil {
		t.Fatalf("RecordMemory: %v", err)
	}
	if _, err := s.RecordMemory(ctx, "alice", "lives near the river", "sess-1", nil); err != nil {
		t.Fatalf("RecordMemory: %v", err)
	}

	if err := idx.Warm(ctx, s, "alice", 100); err != nil {
		t.Fatalf("Warm: %v", err)
	}
	results, err := idx.Query(ctx, "alice", "coffee preference", 1)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 result after warm, got %d", len(results))
	}
}

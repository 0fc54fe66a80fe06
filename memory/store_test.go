package memory_test

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/lunai408/local-agent-factory/core"
	"github.com/lunai408/local-agent-factory/memory"
	"github.com/lunai408/local-agent-factory/storage"
)

func newTestStore(t *testing.T) *memory.Store {
	s, _ := newTestStoreDB(t)
	return s
}

func newTestStoreDB(t *testing.T) (*memory.Store, *sql.DB) {
	t.Helper()
	db, err := storage.Open(filepath.Join(t.TempDir(), "memory.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	s, err := memory.NewStore(db)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	return s, db
}

func TestAppendTurn_OrderAndIndexes(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	for i := 0; i < 5; i++ {
		role := core.RoleUser
		if i%2 == 1 {
			role = core.RoleAssistant
		}
		turn, err := s.AppendTurn(ctx, "sess-1", "alice", role, fmt.Sprintf("message %d", i))
		if err != nil {
			t.Fatalf("AppendTurn %d: %v", i, err)
		}
		if turn.Index != i {
			t.Fatalf("turn %d got index %d", i, turn.Index)
		}
	}

	turns, err := s.RecentTurns(ctx, "sess-1", 10)
	if err != nil {
		t.Fatalf("RecentTurns: %v", err)
	}
	if len(turns) != 5 {
		t.Fatalf("expected 5 turns, got %d", len(turns))
	}
	for i, turn := range turns {
		if turn.Index != i {
			t.Errorf("position %d holds index %d", i, turn.Index)
		}
		if i > 0 && turn.Timestamp.Before(turns[i-1].Timestamp) {
			t.Errorf("timestamp at index %d precedes index %d", i, i-1)
		}
	}

	sess, err := s.Session(ctx, "sess-1")
	if err != nil {
		t.Fatalf("Session: %v", err)
	}
	if sess.UserID != "alice" || sess.TurnCount != 5 {
		t.Errorf("session = %+v", sess)
	}
}

func TestAppendTurn_WrongUser(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	if _, err := s.AppendTurn(ctx, "sess-1", "alice", core.RoleUser, "hi"); err != nil {
		t.Fatalf("AppendTurn: %v", err)
	}
	_, err := s.AppendTurn(ctx, "sess-1", "bob", core.RoleUser, "hi")
	if !errors.Is(err, core.ErrInvalidParameters) {
		t.Fatalf("expected ErrInvalidParameters, got %v", err)
	}
}

func TestAppendTurn_ConcurrentSessions(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	const sessions = 4
	const perSession = 25

	var wg sync.WaitGroup
	errs := make(chan error, sessions*perSession)
	for si := 0; si < sessions; si++ {
		sessionID := fmt.Sprintf("sess-%d", si)
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perSession; i++ {
				if _, err := s.AppendTurn(ctx, sessionID, "alice", core.RoleUser, fmt.Sprintf("m%d", i)); err != nil {
					errs <- err
					return
				}
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("concurrent append: %v", err)
	}

	for si := 0; si < sessions; si++ {
		sessionID := fmt.Sprintf("sess-%d", si)
		turns, err := s.RecentTurns(ctx, sessionID, perSession)
		if err != nil {
			t.Fatalf("RecentTurns %s: %v", sessionID, err)
		}
		if len(turns) != perSession {
			t.Fatalf("%s has %d turns, want %d", sessionID, len(turns), perSession)
		}
		for i, turn := range turns {
			if turn.Index != i {
				t.Errorf("%s position %d holds index %d", sessionID, i, turn.Index)
			}
		}
	}
}

func TestRecallMemories_EmptyIsNotError(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	for i := 0; i < 5; i++ {
		if _, err := s.AppendTurn(ctx, "sess-1", "alice", core.RoleUser, fmt.Sprintf("m%d", i)); err != nil {
			t.Fatalf("AppendTurn: %v", err)
		}
	}

	memories, err := s.RecallMemories(ctx, "alice", 10)
	if err != nil {
		t.Fatalf("RecallMemories must not error on empty set: %v", err)
	}
	if len(memories) != 0 {
		t.Errorf("expected no memories, got %d", len(memories))
	}
}

func TestRecordAndRecallMemories(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	first, err := s.RecordMemory(ctx, "alice", "prefers dark roast coffee", "sess-1", []string{"preferences"})
	if err != nil {
		t.Fatalf("RecordMemory: %v", err)
	}
	second, err := s.RecordMemory(ctx, "alice", "works in Berlin", "sess-2", nil)
	if err != nil {
		t.Fatalf("RecordMemory: %v", err)
	}
	if _, err := s.RecordMemory(ctx, "bob", "allergic to peanuts", "sess-3", nil); err != nil {
		t.Fatalf("RecordMemory: %v", err)
	}

	memories, err := s.RecallMemories(ctx, "alice", 10)
	if err != nil {
		t.Fatalf("RecallMemories: %v", err)
	}
	if len(memories) != 2 {
		t.Fatalf("expected 2 memories for alice, got %d", len(memories))
	}
	if memories[0].ID != second.ID || memories[1].ID != first.ID {
		t.Errorf("expected most-recent-first order, got %s then %s", memories[0].ID, memories[1].ID)
	}
	if memories[1].Topics[0] != "preferences" {
		t.Errorf("topics lost: %+v", memories[1].Topics)
	}
}

func TestRecallMemories_OrderSurvivesTimestampPrecision(t *testing.T) {
	ctx := context.Background()
	s, db := newTestStoreDB(t)

	// RFC 3339 trims trailing fractional zeros, so the older timestamp
	// string sorts after the newer one lexicographically. Recall order
	// must come from the time-ordered ids, not the timestamp text.
	rows := []struct{ id, content, created string }{
		{"01J0000000AAAAAAAAAAAAAAAA", "older fact", "2026-08-30T10:00:05.5Z"},
		{"01J0000000BBBBBBBBBBBBBBBB", "newer fact", "2026-08-30T10:00:05.51Z"},
	}
	for _, row := range rows {
		if _, err := db.Exec(
			`INSERT INTO memories (id, user_id, content, source_session_id, topics, created_at)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			row.id, "alice", row.content, "sess-1", "[]", row.created); err != nil {
			t.Fatalf("seed memory: %v", err)
		}
	}

	memories, err := s.RecallMemories(ctx, "alice", 10)
	if err != nil {
		t.Fatalf("RecallMemories: %v", err)
	}
	if len(memories) != 2 {
		t.Fatalf("expected 2 memories, got %d", len(memories))
	}
	if memories[0].Content != "newer fact" {
		t.Errorf("most-recent-first violated: got %q first", memories[0].Content)
	}
}

func TestDeleteMemory(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	mem, err := s.RecordMemory(ctx, "alice", "likes hiking", "sess-1", nil)
	if err != nil {
		t.Fatalf("RecordMemory: %v", err)
	}

	// Another user's id must not reach it.
	if err := s.DeleteMemory(ctx, "bob", mem.ID); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("cross-user delete should be ErrNotFound, got %v", err)
	}
	if err := s.DeleteMemory(ctx, "alice", mem.ID); err != nil {
		t.Fatalf("DeleteMemory: %v", err)
	}
	if err := s.DeleteMemory(ctx, "alice", mem.ID); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("double delete should be ErrNotFound, got %v", err)
	}
}

func TestPutSummary_Monotonic(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	if _, err := s.Summary(ctx, "sess-1"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound before first summary, got %v", err)
	}

	if err := s.PutSummary(ctx, core.SessionSummary{SessionID: "sess-1", Text: "first", CoversThrough: 4}); err != nil {
		t.Fatalf("PutSummary: %v", err)
	}
	// Equal covers-through is a legal idempotent overwrite.
	if err := s.PutSummary(ctx, core.SessionSummary{SessionID: "sess-1", Text: "first again", CoversThrough: 4}); err != nil {
		t.Fatalf("equal covers-through rejected: %v", err)
	}
	err := s.PutSummary(ctx, core.SessionSummary{SessionID: "sess-1", Text: "older", CoversThrough: 2})
	if !errors.Is(err, core.ErrInvalidParameters) {
		t.Fatalf("regression should be ErrInvalidParameters, got %v", err)
	}

	sum, err := s.Summary(ctx, "sess-1")
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}
	if sum.CoversThrough != 4 || sum.Text != "first again" {
		t.Errorf("summary = %+v", sum)
	}
}

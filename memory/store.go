package memory

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"math/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/lunai408/local-agent-factory/core"
)

// Store persists sessions, turns, memories, and summaries in SQLite.
//
// AppendTurn serializes writers per session so turn indexes are strictly
// increasing and match arrival order; everything else relies on the
// database for consistency. Safe for concurrent use.
type Store struct {
	db      *sql.DB
	entropy *ulid.MonotonicEntropy

	mu       sync.Mutex
	sessions map[string]*sync.Mutex
}

// NewStore creates a memory store over an open database handle and runs
// migrations.
func NewStore(db *sql.DB) (*Store, error) {
	s := &Store{
		db:       db,
		entropy:  ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0),
		sessions: make(map[string]*sync.Mutex),
	}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("memory migrate: %v: %w", err, core.ErrStoreUnavailable)
	}
	return s, nil
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`
	CREATE TABLE IF NOT EXISTS sessions (
		id          TEXT PRIMARY KEY,
		user_id     TEXT NOT NULL,
		created_at  TEXT NOT NULL,
		last_active TEXT NOT NULL
	);
	CREATE TABLE IF NOT EXISTS turns (
		session_id TEXT NOT NULL REFERENCES sessions(id),
		idx        INTEGER NOT NULL,
		role       TEXT NOT NULL,
		content    TEXT NOT NULL,
		created_at TEXT NOT NULL,
		PRIMARY KEY (session_id, idx)
	);
	CREATE TABLE IF NOT EXISTS memories (
		id                TEXT PRIMARY KEY,
		user_id           TEXT NOT NULL,
		content           TEXT NOT NULL,
		source_session_id TEXT NOT NULL,
		topics            TEXT NOT NULL,
		created_at        TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_memories_user ON memories(user_id, id);
	CREATE TABLE IF NOT EXISTS summaries (
		session_id     TEXT PRIMARY KEY REFERENCES sessions(id),
		summary        TEXT NOT NULL,
		covers_through INTEGER NOT NULL,
		updated_at     TEXT NOT NULL
	);
	`)
	return err
}

// newID returns a fresh ULID. Monotonic entropy keeps ids strictly
// increasing within a millisecond, so id order is creation order.
func (s *Store) newID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), s.entropy).String()
}

// sessionLock returns the mutex serializing appends for one session.
func (s *Store) sessionLock(sessionID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.sessions[sessionID]
	if !ok {
		lock = &sync.Mutex{}
		s.sessions[sessionID] = lock
	}
	return lock
}

// AppendTurn appends a turn strictly after the last existing one, creating
// the session on first use. The session's last-active timestamp advances
// only when the write succeeds. Appending to another user's session fails
// with ErrInvalidParameters.
func (s *Store) AppendTurn(ctx context.Context, sessionID, userID string, role core.Role, content string) (*core.Turn, error) {
	lock := s.sessionLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin append: %v: %w", err, core.ErrStoreUnavailable)
	}
	defer tx.Rollback()

	now := time.Now().UTC()

	var owner string
	err = tx.QueryRowContext(ctx, `SELECT user_id FROM sessions WHERE id = ?`, sessionID).Scan(&owner)
	switch {
	case err == sql.ErrNoRows:
		_, err = tx.ExecContext(ctx,
			`INSERT INTO sessions (id, user_id, created_at, last_active) VALUES (?, ?, ?, ?)`,
			sessionID, userID, now.Format(time.RFC3339Nano), now.Format(time.RFC3339Nano))
		if err != nil {
			return nil, fmt.Errorf("create session: %v: %w", err, core.ErrStoreUnavailable)
		}
		log.Printf("[MEMORY] Created session %s for user %s", sessionID, userID)
	case err != nil:
		return nil, fmt.Errorf("load session: %v: %w", err, core.ErrStoreUnavailable)
	case owner != userID:
		return nil, fmt.Errorf("session %s belongs to another user: %w", sessionID, core.ErrInvalidParameters)
	}

	var next int
	err = tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(idx), -1) + 1 FROM turns WHERE session_id = ?`, sessionID).Scan(&next)
	if err != nil {
		return nil, fmt.Errorf("next index: %v: %w", err, core.ErrStoreUnavailable)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO turns (session_id, idx, role, content, created_at) VALUES (?, ?, ?, ?, ?)`,
		sessionID, next, string(role), content, now.Format(time.RFC3339Nano))
	if err != nil {
		return nil, fmt.Errorf("insert turn: %v: %w", err, core.ErrStoreUnavailable)
	}
	_, err = tx.ExecContext(ctx,
		`UPDATE sessions SET last_active = ? WHERE id = ?`, now.Format(time.RFC3339Nano), sessionID)
	if err != nil {
		return nil, fmt.Errorf("touch session: %v: %w", err, core.ErrStoreUnavailable)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit append: %v: %w", err, core.ErrStoreUnavailable)
	}

	return &core.Turn{
		SessionID: sessionID,
		Index:     next,
		Role:      role,
		Content:   content,
		Timestamp: now,
	}, nil
}

// Session returns session metadata including its turn count.
func (s *Store) Session(ctx context.Context, sessionID string) (*core.Session, error) {
	var sess core.Session
	var created, active string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, created_at, last_active FROM sessions WHERE id = ?`, sessionID).
		Scan(&sess.ID, &sess.UserID, &created, &active)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("session %s: %w", sessionID, core.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load session: %v: %w", err, core.ErrStoreUnavailable)
	}
	sess.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
	sess.LastActive, _ = time.Parse(time.RFC3339Nano, active)

	err = s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM turns WHERE session_id = ?`, sessionID).Scan(&sess.TurnCount)
	if err != nil {
		return nil, fmt.Errorf("count turns: %v: %w", err, core.ErrStoreUnavailable)
	}
	return &sess, nil
}

// RecentTurns returns the last n turns of a session in index order. A
// session with no turns yields an empty slice.
func (s *Store) RecentTurns(ctx context.Context, sessionID string, n int) ([]core.Turn, error) {
	if n <= 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT session_id, idx, role, content, created_at FROM (
			SELECT session_id, idx, role, content, created_at
			FROM turns WHERE session_id = ? ORDER BY idx DESC LIMIT ?
		) ORDER BY idx ASC`, sessionID, n)
	if err != nil {
		return nil, fmt.Errorf("recent turns: %v: %w", err, core.ErrStoreUnavailable)
	}
	defer rows.Close()
	return scanTurns(rows)
}

// TurnsSince returns every turn with index >= from, in index order. Used by
// the summarizer to read the uncovered tail of a session.
func (s *Store) TurnsSince(ctx context.Context, sessionID string, from int) ([]core.Turn, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT session_id, idx, role, content, created_at
		 FROM turns WHERE session_id = ? AND idx >= ? ORDER BY idx ASC`, sessionID, from)
	if err != nil {
		return nil, fmt.Errorf("turns since: %v: %w", err, core.ErrStoreUnavailable)
	}
	defer rows.Close()
	return scanTurns(rows)
}

func scanTurns(rows *sql.Rows) ([]core.Turn, error) {
	var turns []core.Turn
	for rows.Next() {
		var t core.Turn
		var role, created string
		if err := rows.Scan(&t.SessionID, &t.Index, &role, &t.Content, &created); err != nil {
			return nil, fmt.Errorf("scan turn: %v: %w", err, core.ErrStoreUnavailable)
		}
		t.Role = core.Role(role)
		t.Timestamp, _ = time.Parse(time.RFC3339Nano, created)
		turns = append(turns, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate turns: %v: %w", err, core.ErrStoreUnavailable)
	}
	return turns, nil
}

// RecordMemory appends a new immutable memory for a user. No deduplication
// happens here; superseding facts are recorded as additional rows.
func (s *Store) RecordMemory(ctx context.Context, userID, content, sourceSessionID string, topics []string) (*core.Memory, error) {
	if content == "" {
		return nil, fmt.Errorf("empty memory content: %w", core.ErrInvalidParameters)
	}
	mem := &core.Memory{
		ID:              s.newID(),
		UserID:          userID,
		Content:         content,
		SourceSessionID: sourceSessionID,
		Topics:          topics,
		CreatedAt:       time.Now().UTC(),
	}
	topicsJSON, err := json.Marshal(topics)
	if err != nil {
		return nil, fmt.Errorf("marshal topics: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO memories (id, user_id, content, source_session_id, topics, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		mem.ID, mem.UserID, mem.Content, mem.SourceSessionID, string(topicsJSON),
		mem.CreatedAt.Format(time.RFC3339Nano))
	if err != nil {
		return nil, fmt.Errorf("insert memory: %v: %w", err, core.ErrStoreUnavailable)
	}
	return mem, nil
}

// DeleteMemory removes one of a user's memories. Deleting a memory that does
// not exist (or belongs to someone else) is ErrNotFound.
func (s *Store) DeleteMemory(ctx context.Context, userID, memoryID string) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM memories WHERE id = ? AND user_id = ?`, memoryID, userID)
	if err != nil {
		return fmt.Errorf("delete memory: %v: %w", err, core.ErrStoreUnavailable)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete memory: %v: %w", err, core.ErrStoreUnavailable)
	}
	if n == 0 {
		return fmt.Errorf("memory %s: %w", memoryID, core.ErrNotFound)
	}
	return nil
}

// RecallMemories returns a user's memories, most recent first. A user with
// no memories yields an empty slice, not an error.
func (s *Store) RecallMemories(ctx context.Context, userID string, limit int) ([]core.Memory, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, content, source_session_id, topics, created_at
		 FROM memories WHERE user_id = ?
		 ORDER BY id DESC LIMIT ?`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("recall memories: %v: %w", err, core.ErrStoreUnavailable)
	}
	defer rows.Close()

	var memories []core.Memory
	for rows.Next() {
		var m core.Memory
		var topicsJSON, created string
		if err := rows.Scan(&m.ID, &m.UserID, &m.Content, &m.SourceSessionID, &topicsJSON, &created); err != nil {
			return nil, fmt.Errorf("scan memory: %v: %w", err, core.ErrStoreUnavailable)
		}
		if err := json.Unmarshal([]byte(topicsJSON), &m.Topics); err != nil {
			m.Topics = nil
		}
		m.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
		memories = append(memories, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate memories: %v: %w", err, core.ErrStoreUnavailable)
	}
	return memories, nil
}

// Summary returns the current summary for a session, or ErrNotFound when the
// session has never been summarized.
func (s *Store) Summary(ctx context.Context, sessionID string) (*core.SessionSummary, error) {
	var sum core.SessionSummary
	var updated string
	err := s.db.QueryRowContext(ctx,
		`SELECT session_id, summary, covers_through, updated_at FROM summaries WHERE session_id = ?`,
		sessionID).Scan(&sum.SessionID, &sum.Text, &sum.CoversThrough, &updated)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("summary for session %s: %w", sessionID, core.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load summary: %v: %w", err, core.ErrStoreUnavailable)
	}
	sum.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updated)
	return &sum, nil
}

// PutSummary replaces the session's summary in place. CoversThrough must not
// move backwards; an equal value is allowed so re-running the summarizer on
// unchanged input is a no-op overwrite.
func (s *Store) PutSummary(ctx context.Context, sum core.SessionSummary) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin summary: %v: %w", err, core.ErrStoreUnavailable)
	}
	defer tx.Rollback()

	var existing int
	err = tx.QueryRowContext(ctx,
		`SELECT covers_through FROM summaries WHERE session_id = ?`, sum.SessionID).Scan(&existing)
	if err != nil && err != sql.ErrNoRows {
		return fmt.Errorf("load summary: %v: %w", err, core.ErrStoreUnavailable)
	}
	if err == nil && sum.CoversThrough < existing {
		return fmt.Errorf("covers-through %d would regress below %d: %w",
			sum.CoversThrough, existing, core.ErrInvalidParameters)
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err = tx.ExecContext(ctx, `
		INSERT INTO summaries (session_id, summary, covers_through, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(session_id) DO UPDATE SET
			summary = excluded.summary,
			covers_through = excluded.covers_through,
			updated_at = excluded.updated_at`,
		sum.SessionID, sum.Text, sum.CoversThrough, now)
	if err != nil {
		return fmt.Errorf("write summary: %v: %w", err, core.ErrStoreUnavailable)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit summary: %v: %w", err, core.ErrStoreUnavailable)
	}
	return nil
}

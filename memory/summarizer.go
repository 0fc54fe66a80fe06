package memory

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/lunai408/local-agent-factory/core"
)

// TextGenerator produces a completion for a system prompt and user prompt.
// The engine's model client satisfies this; tests substitute a canned
// generator.
type TextGenerator interface {
	GenerateText(ctx context.Context, system, prompt string) (string, error)
}

const summarizerSystemPrompt = `You condense conversation history. Given the previous summary and the new turns, produce an updated summary that preserves facts, decisions, names, and open tasks. Write plain prose, no preamble, at most 200 words.`

// Summarizer folds a session's uncovered turns into its summary. It is a
// stateless function of (existing summary, turns since covers-through);
// calling Refresh twice without new turns leaves the summary and its
// covers-through marker unchanged.
type Summarizer struct {
	store *Store
	model TextGenerator

	// EveryTurns is the trigger threshold: Due reports true once at least
	// this many turns are uncovered.
	EveryTurns int
}

// NewSummarizer creates a summarizer over the store. everyTurns <= 0 falls
// back to a threshold of 10.
func NewSummarizer(store *Store, model TextGenerator, everyTurns int) *Summarizer {
	if everyTurns <= 0 {
		everyTurns = 10
	}
	return &Summarizer{store: store, model: model, EveryTurns: everyTurns}
}

// Due reports whether the session has accumulated enough uncovered turns to
// warrant a refresh.
func (s *Summarizer) Due(ctx context.Context, sessionID string) (bool, error) {
	covered, _, err := s.existing(ctx, sessionID)
	if err != nil {
		return false, err
	}
	turns, err := s.store.TurnsSince(ctx, sessionID, covered)
	if err != nil {
		return false, err
	}
	return len(turns) >= s.EveryTurns, nil
}

// Refresh summarizes the turns appended since the current covers-through
// marker and replaces the session summary. With no new turns it writes
// nothing and returns the current summary as-is.
func (s *Summarizer) Refresh(ctx context.Context, sessionID string) (*core.SessionSummary, error) {
	covered, current, err := s.existing(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	turns, err := s.store.TurnsSince(ctx, sessionID, covered)
	if err != nil {
		return nil, err
	}
	if len(turns) == 0 {
		log.Printf("[SUMMARY] Session %s has no uncovered turns, keeping covers-through=%d", sessionID, covered)
		return current, nil
	}

	prior := ""
	if current != nil {
		prior = current.Text
	}
	text, err := s.model.GenerateText(ctx, summarizerSystemPrompt, buildSummaryPrompt(prior, turns))
	if err != nil {
		return nil, fmt.Errorf("summarize session %s: %w", sessionID, err)
	}

	next := core.SessionSummary{
		SessionID:     sessionID,
		Text:          strings.TrimSpace(text),
		CoversThrough: turns[len(turns)-1].Index + 1,
	}
	if err := s.store.PutSummary(ctx, next); err != nil {
		return nil, err
	}
	log.Printf("[SUMMARY] Session %s covers-through %d -> %d", sessionID, covered, next.CoversThrough)
	return &next, nil
}

// existing returns the covers-through marker and current summary, treating
// a never-summarized session as covering nothing.
func (s *Summarizer) existing(ctx context.Context, sessionID string) (int, *core.SessionSummary, error) {
	current, err := s.store.Summary(ctx, sessionID)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return 0, nil, nil
		}
		return 0, nil, err
	}
	return current.CoversThrough, current, nil
}

func buildSummaryPrompt(prior string, turns []core.Turn) string {
	var b strings.Builder
	if prior != "" {
		b.WriteString("Previous summary:\n")
		b.WriteString(prior)
		b.WriteString("\n\n")
	}
	b.WriteString("New turns:\n")
	for _, t := range turns {
		fmt.Fprintf(&b, "%s: %s\n", t.Role, t.Content)
	}
	return b.String()
}

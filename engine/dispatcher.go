package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/lunai408/local-agent-factory/core"
	"github.com/lunai408/local-agent-factory/knowledge"
	"github.com/lunai408/local-agent-factory/memory"
	"github.com/lunai408/local-agent-factory/tools"
)

// TurnState tracks a turn through the dispatch state machine.
type TurnState int

const (
	StateReceived TurnState = iota
	StateContextAssembled
	StateToolCallPending
	StateResponded
	StatePersisted
)

func (s TurnState) String() string {
	switch s {
	case StateReceived:
		return "received"
	case StateContextAssembled:
		return "context_assembled"
	case StateToolCallPending:
		return "tool_call_pending"
	case StateResponded:
		return "responded"
	case StatePersisted:
		return "persisted"
	default:
		return "unknown"
	}
}

// Config holds the dispatcher's startup configuration. Nothing here is
// runtime-mutable.
type Config struct {
	// SystemPrompt is the default instruction block; an agent profile's
	// prompt overrides it for the turn.
	SystemPrompt string

	// ContextBudget caps the byte size of the transcript sent to the
	// model. The summary is never dropped to fit; oldest non-summarized
	// turns go first.
	ContextBudget int

	// RecentTurns is how many trailing turns are considered for the
	// transcript before the budget applies.
	RecentTurns int

	// RecallLimit caps recalled memories per turn.
	RecallLimit int

	// KnowledgeResults caps retrieved knowledge chunks per turn.
	KnowledgeResults int

	// MaxToolRounds bounds tool-call rounds within one turn.
	MaxToolRounds int

	Model     string
	MaxTokens int64
}

func (c Config) withDefaults() Config {
	if c.SystemPrompt == "" {
		c.SystemPrompt = DefaultSystemPrompt
	}
	if c.ContextBudget <= 0 {
		c.ContextBudget = 16 * 1024
	}
	if c.RecentTurns <= 0 {
		c.RecentTurns = 20
	}
	if c.RecallLimit <= 0 {
		c.RecallLimit = 5
	}
	if c.KnowledgeResults <= 0 {
		c.KnowledgeResults = 4
	}
	if c.MaxToolRounds <= 0 {
		c.MaxToolRounds = 5
	}
	return c
}

// DefaultSystemPrompt is used when neither the config nor the routed agent
// provides one.
const DefaultSystemPrompt = `You are a helpful assistant with durable memory and a knowledge base.

GUIDELINES:
- Be conversational and concise
- Use the provided memories and knowledge snippets when they are relevant
- Use tools when a generated file (chart, document, image) would serve the user better than text
- If a tool fails, explain what went wrong and offer an alternative`

// Dispatcher drives one turn through the state machine
// Received -> ContextAssembled -> (ToolCallPending)* -> Responded -> Persisted.
//
// It is the only component that decides user-facing degradation: knowledge
// retrieval failures degrade to responding without snippets, store failures
// fail the request.
type Dispatcher struct {
	model      ModelClient
	store      *memory.Store
	summarizer *memory.Summarizer
	recall     *memory.RecallIndex
	knowledge  *knowledge.Store
	router     *tools.Router
	extractor  memory.TextGenerator
	team       *TeamConfig
	cfg        Config
}

// Option configures the dispatcher.
type Option func(*Dispatcher)

// WithRecall enables relevance-ranked memory recall. Without it recall is
// chronological.
func WithRecall(idx *memory.RecallIndex) Option {
	return func(d *Dispatcher) { d.recall = idx }
}

// WithKnowledge enables knowledge retrieval during context assembly.
func WithKnowledge(ks *knowledge.Store) Option {
	return func(d *Dispatcher) { d.knowledge = ks }
}

// WithRouter enables tool dispatch.
func WithRouter(r *tools.Router) Option {
	return func(d *Dispatcher) { d.router = r }
}

// WithExtractor enables memory extraction after each turn.
func WithExtractor(gen memory.TextGenerator) Option {
	return func(d *Dispatcher) { d.extractor = gen }
}

// WithTeam enables team routing ahead of context assembly.
func WithTeam(team *TeamConfig) Option {
	return func(d *Dispatcher) { d.team = team }
}

// NewDispatcher creates a dispatcher. The model and store are required;
// everything else is optional.
func NewDispatcher(model ModelClient, store *memory.Store, summarizer *memory.Summarizer, cfg Config, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		model:      model,
		store:      store,
		summarizer: summarizer,
		cfg:        cfg.withDefaults(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// TurnRequest is one incoming user turn.
type TurnRequest struct {
	SessionID string
	UserID    string
	Message   string

	// Stream receives response deltas when set.
	Stream func(chunk string, done bool)
}

// TurnResult is the outcome of a handled turn.
type TurnResult struct {
	Text      string
	State     TurnState
	Agent     string
	Artifacts []core.Artifact
	ToolsUsed []string
}

// HandleTurn runs one user turn to completion. Concurrent turns for the same
// session serialize at the store's append; turns for different sessions are
// independent.
func (d *Dispatcher) HandleTurn(ctx context.Context, req *TurnRequest) (*TurnResult, error) {
	if req.SessionID == "" || req.Message == "" {
		return nil, fmt.Errorf("turn needs a session id and a message: %w", core.ErrInvalidParameters)
	}
	state := StateReceived
	log.Printf("[DISPATCH] session=%s state=%s", req.SessionID, state)

	// Routing happens once, before any context is pulled.
	decision := RouteTurn(req.Message, d.team)
	agent := decision.Agent
	if agent.AgentName != "" {
		log.Printf("[DISPATCH] session=%s routed to %s (%s), topics=%v",
			req.SessionID, agent.AgentName, agent.Kind(), decision.MatchedTopics)
	}

	system, transcript, err := d.assembleContext(ctx, req, agent.Capabilities())
	if err != nil {
		return nil, err
	}
	state = StateContextAssembled
	log.Printf("[DISPATCH] session=%s state=%s", req.SessionID, state)

	result := &TurnResult{Agent: agent.AgentName}
	messages := append(transcript, Message{Role: core.RoleUser, Content: req.Message})
	specs := d.toolSpecs(agent.Capabilities().Tools)

	var text string
	for round := 0; ; round++ {
		reqModel := &Request{
			System:    system,
			Messages:  messages,
			Model:     firstNonEmpty(agent.Capabilities().Model, d.cfg.Model),
			MaxTokens: d.cfg.MaxTokens,
			Stream:    req.Stream,
		}
		if round < d.cfg.MaxToolRounds {
			reqModel.Tools = specs
		}
		if caps := agent.Capabilities(); caps.MaxTokens > 0 {
			reqModel.MaxTokens = caps.MaxTokens
		}

		resp, err := d.model.Generate(ctx, reqModel)
		if err != nil {
			return nil, fmt.Errorf("inference failed: %w", err)
		}
		// Past the round limit tools were withheld; take whatever text
		// came back even if the model still asked for calls.
		if len(resp.ToolCalls) == 0 || round >= d.cfg.MaxToolRounds {
			text = resp.Text
			break
		}

		state = StateToolCallPending
		log.Printf("[DISPATCH] session=%s state=%s round=%d calls=%d",
			req.SessionID, state, round, len(resp.ToolCalls))

		messages = append(messages, Message{
			Role:      core.RoleAssistant,
			Content:   resp.Text,
			ToolCalls: resp.ToolCalls,
		})
		for _, call := range resp.ToolCalls {
			messages = append(messages, d.runToolCall(ctx, req.SessionID, call, result))
		}
	}

	state = StateResponded
	log.Printf("[DISPATCH] session=%s state=%s", req.SessionID, state)

	if err := d.persist(ctx, req, text); err != nil {
		return nil, err
	}
	state = StatePersisted
	log.Printf("[DISPATCH] session=%s state=%s", req.SessionID, state)

	result.Text = text
	result.State = state
	return result, nil
}

// assembleContext builds the system prompt and transcript: summary (never
// dropped), recent non-summarized turns under the byte budget, recalled
// memories, and knowledge snippets.
func (d *Dispatcher) assembleContext(ctx context.Context, req *TurnRequest, caps core.Capabilities) (string, []Message, error) {
	summary, err := d.store.Summary(ctx, req.SessionID)
	if err != nil && !errors.Is(err, core.ErrNotFound) {
		return "", nil, err
	}

	turns, err := d.store.RecentTurns(ctx, req.SessionID, d.cfg.RecentTurns)
	if err != nil {
		return "", nil, err
	}
	coveredThrough := 0
	if summary != nil {
		coveredThrough = summary.CoversThrough
	}

	// Summarized turns are already represented by the summary text.
	var uncovered []core.Turn
	for _, t := range turns {
		if t.Index >= coveredThrough {
			uncovered = append(uncovered, t)
		}
	}
	// Oldest non-summarized turns are dropped first to fit the budget.
	budget := d.cfg.ContextBudget
	size := 0
	for _, t := range uncovered {
		size += len(t.Content)
	}
	for len(uncovered) > 0 && size > budget {
		size -= len(uncovered[0].Content)
		uncovered = uncovered[1:]
	}

	transcript := make([]Message, 0, len(uncovered))
	for _, t := range uncovered {
		transcript = append(transcript, Message{Role: t.Role, Content: t.Content})
	}

	var b strings.Builder
	b.WriteString(firstNonEmpty(caps.SystemPrompt, d.cfg.SystemPrompt))
	if summary != nil && summary.Text != "" {
		b.WriteString("\n\nCONVERSATION SUMMARY SO FAR:\n")
		b.WriteString(summary.Text)
	}
	if section := d.recallSection(ctx, req); section != "" {
		b.WriteString("\n\nRELEVANT MEMORIES ABOUT THE USER:\n")
		b.WriteString(section)
	}
	if section := d.knowledgeSection(ctx, req.Message); section != "" {
		b.WriteString("\n\nKNOWLEDGE BASE EXCERPTS:\n")
		b.WriteString(section)
	}
	return b.String(), transcript, nil
}

// recallSection prefers relevance-ranked recall and degrades to
// chronological recall when embeddings are unavailable.
func (d *Dispatcher) recallSection(ctx context.Context, req *TurnRequest) string {
	if d.recall != nil {
		hits, err := d.recall.Query(ctx, req.UserID, req.Message, d.cfg.RecallLimit)
		if err == nil {
			var lines []string
			for _, hit := range hits {
				lines = append(lines, "- "+hit.Content)
			}
			return strings.Join(lines, "\n")
		}
		log.Printf("[DISPATCH] Relevance recall failed, falling back to chronological: %v", err)
	}

	memories, err := d.store.RecallMemories(ctx, req.UserID, d.cfg.RecallLimit)
	if err != nil {
		log.Printf("[DISPATCH] Memory recall failed: %v", err)
		return ""
	}
	var lines []string
	for _, mem := range memories {
		lines = append(lines, "- "+mem.Content)
	}
	return strings.Join(lines, "\n")
}

// knowledgeSection degrades silently: a failed retrieval means responding
// without knowledge context, not failing the turn.
func (d *Dispatcher) knowledgeSection(ctx context.Context, query string) string {
	if d.knowledge == nil {
		return ""
	}
	chunks, err := d.knowledge.Retrieve(ctx, query, d.cfg.KnowledgeResults)
	if err != nil {
		log.Printf("[DISPATCH] Knowledge retrieval failed, responding without it: %v", err)
		return ""
	}
	var lines []string
	for _, chunk := range chunks {
		lines = append(lines, "- "+chunk)
	}
	return strings.Join(lines, "\n")
}

func (d *Dispatcher) toolSpecs(allowed []string) []ToolSpec {
	if d.router == nil {
		return nil
	}
	allowAll := len(allowed) == 0
	allow := make(map[string]bool, len(allowed))
	for _, name := range allowed {
		allow[name] = true
	}

	var specs []ToolSpec
	for _, def := range d.router.Definitions() {
		if !allowAll && !allow[def.Name] {
			continue
		}
		specs = append(specs, ToolSpec{
			Name:        def.Name,
			Description: def.Description,
			InputSchema: def.InputSchema,
		})
	}
	return specs
}

// runToolCall executes one requested invocation and converts the outcome
// into a tool-result message. Failures become structured errors the model
// can react to, never a dispatcher crash.
func (d *Dispatcher) runToolCall(ctx context.Context, sessionID string, call ToolCall, result *TurnResult) Message {
	result.ToolsUsed = append(result.ToolsUsed, call.Name)
	if d.router == nil {
		return Message{
			Role:       core.RoleTool,
			ToolCallID: call.ID,
			Content:    "no tools are available",
			IsError:    true,
		}
	}

	artifact, err := d.router.Invoke(ctx, call.Name, call.Params, sessionID)
	if err != nil {
		log.Printf("[DISPATCH] Tool %s failed: %v", call.Name, err)
		return Message{
			Role:       core.RoleTool,
			ToolCallID: call.ID,
			Content:    toolFailureMessage(call.Name, err),
			IsError:    true,
		}
	}

	result.Artifacts = append(result.Artifacts, *artifact)
	payload, _ := json.Marshal(map[string]string{
		"status": "created",
		"kind":   string(artifact.Kind),
		"path":   artifact.Path,
	})
	return Message{
		Role:       core.RoleTool,
		ToolCallID: call.ID,
		Content:    string(payload),
	}
}

func toolFailureMessage(tool string, err error) string {
	switch {
	case errors.Is(err, core.ErrToolTimeout):
		return fmt.Sprintf("%s timed out; the operation was abandoned and not retried", tool)
	case errors.Is(err, core.ErrInvalidParameters):
		return fmt.Sprintf("%s rejected the parameters: %v", tool, err)
	default:
		return err.Error()
	}
}

// persist writes the user and assistant turns, extracts memories, and
// refreshes the summary when due. A store failure here fails the request;
// extraction and summarization failures only log.
func (d *Dispatcher) persist(ctx context.Context, req *TurnRequest, reply string) error {
	if _, err := d.store.AppendTurn(ctx, req.SessionID, req.UserID, core.RoleUser, req.Message); err != nil {
		return err
	}
	if _, err := d.store.AppendTurn(ctx, req.SessionID, req.UserID, core.RoleAssistant, reply); err != nil {
		return err
	}

	if d.extractor != nil {
		d.extractMemories(ctx, req, reply)
	}

	if d.summarizer != nil {
		due, err := d.summarizer.Due(ctx, req.SessionID)
		if err != nil {
			log.Printf("[DISPATCH] Summary check failed: %v", err)
			return nil
		}
		if due {
			if _, err := d.summarizer.Refresh(ctx, req.SessionID); err != nil {
				log.Printf("[DISPATCH] Summary refresh failed: %v", err)
			}
		}
	}
	return nil
}

func (d *Dispatcher) extractMemories(ctx context.Context, req *TurnRequest, reply string) {
	facts, err := ExtractFacts(ctx, d.extractor, req.Message, reply)
	if err != nil {
		log.Printf("[DISPATCH] Memory extraction failed: %v", err)
		return
	}
	for _, fact := range facts {
		mem, err := d.store.RecordMemory(ctx, req.UserID, fact, req.SessionID, nil)
		if err != nil {
			log.Printf("[DISPATCH] Failed to record memory: %v", err)
			continue
		}
		if d.recall != nil {
			if err := d.recall.Add(ctx, *mem); err != nil {
				log.Printf("[DISPATCH] Failed to index memory %s: %v", mem.ID, err)
			}
		}
	}
	if len(facts) > 0 {
		log.Printf("[DISPATCH] Recorded %d memories for user %s", len(facts), req.UserID)
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

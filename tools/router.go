package tools

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/lunai408/local-agent-factory/core"
)

// Router dispatches tool invocations to their HTTP servers and owns the
// resulting artifacts. The registry is fixed at construction; Invoke is safe
// for concurrent use.
type Router struct {
	db      *sql.DB
	baseDir string
	client  *http.Client
	defs    map[string]Definition
	order   []string
}

// NewRouter validates the definitions and creates the router. Artifacts are
// written under baseDir using the {category}/{conversation_id}/{filename}
// layout.
func NewRouter(db *sql.DB, baseDir string, defs []Definition) (*Router, error) {
	r := &Router{
		db:      db,
		baseDir: baseDir,
		client:  &http.Client{},
		defs:    make(map[string]Definition, len(defs)),
	}
	for _, def := range defs {
		if err := validateDefinition(def); err != nil {
			return nil, err
		}
		if _, dup := r.defs[def.Name]; dup {
			return nil, fmt.Errorf("duplicate tool %q", def.Name)
		}
		r.defs[def.Name] = def
		r.order = append(r.order, def.Name)
	}
	if err := r.migrate(); err != nil {
		return nil, fmt.Errorf("tools migrate: %v: %w", err, core.ErrStoreUnavailable)
	}
	return r, nil
}

func validateDefinition(def Definition) error {
	if def.Name == "" {
		return errors.New("tool definition without a name")
	}
	if def.Endpoint == "" {
		return fmt.Errorf("tool %q has no endpoint", def.Name)
	}
	switch def.Category {
	case core.ArtifactDocument, core.ArtifactChart, core.ArtifactImage:
	default:
		return fmt.Errorf("tool %q has unknown category %q", def.Name, def.Category)
	}
	if typ, _ := def.InputSchema["type"].(string); typ != "object" {
		return fmt.Errorf("tool %q schema must be an object schema", def.Name)
	}
	if def.Timeout <= 0 {
		return fmt.Errorf("tool %q has no timeout", def.Name)
	}
	return nil
}

func (r *Router) migrate() error {
	_, err := r.db.Exec(`
	CREATE TABLE IF NOT EXISTS artifacts (
		id              TEXT PRIMARY KEY,
		conversation_id TEXT NOT NULL,
		kind            TEXT NOT NULL,
		path            TEXT NOT NULL,
		tool            TEXT NOT NULL,
		created_at      TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_artifacts_conversation ON artifacts(conversation_id);
	`)
	return err
}

// Definitions returns the registered tools in registration order, for
// exposing tool specifications to the model.
func (r *Router) Definitions() []Definition {
	out := make([]Definition, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.defs[name])
	}
	return out
}

// toolResponse is the wire contract with tool servers: a generated file, or
// a structured error.
type toolResponse struct {
	Filename string `json:"filename"`
	Data     string `json:"data"` // base64
	Error    *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Invoke validates parameters, calls the tool server, and persists the
// returned file as an artifact of the conversation. Parameters failing
// validation never reach the network. A timeout returns ErrToolTimeout with
// nothing written; the router never retries, since repeating a generation
// call can silently produce a different artifact.
func (r *Router) Invoke(ctx context.Context, toolName string, params map[string]interface{}, conversationID string) (*core.Artifact, error) {
	def, ok := r.defs[toolName]
	if !ok {
		return nil, fmt.Errorf("unknown tool %q: %w", toolName, core.ErrInvalidParameters)
	}
	if err := ValidateParams(def.InputSchema, params); err != nil {
		return nil, err
	}
	convID := SanitizeConversationID(conversationID)

	ctx, cancel := context.WithTimeout(ctx, def.Timeout)
	defer cancel()

	body, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("marshal parameters: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, def.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Conversation-ID", convID)

	start := time.Now()
	resp, err := r.client.Do(req)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("tool %s after %s: %w", toolName, def.Timeout, core.ErrToolTimeout)
		}
		return nil, &core.ToolError{Tool: toolName, Code: "unreachable", Message: err.Error()}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("tool %s after %s: %w", toolName, def.Timeout, core.ErrToolTimeout)
		}
		return nil, &core.ToolError{Tool: toolName, Code: "read_response", Message: err.Error()}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &core.ToolError{
			Tool:    toolName,
			Code:    fmt.Sprintf("http_%d", resp.StatusCode),
			Message: string(raw),
		}
	}

	var payload toolResponse
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, &core.ToolError{Tool: toolName, Code: "bad_response", Message: err.Error()}
	}
	if payload.Error != nil {
		return nil, &core.ToolError{Tool: toolName, Code: payload.Error.Code, Message: payload.Error.Message}
	}

	filename := filepath.Base(payload.Filename)
	if filename == "" || filename == "." || filename == ".." || filename == string(filepath.Separator) {
		return nil, &core.ToolError{Tool: toolName, Code: "bad_response", Message: "missing or unsafe filename"}
	}
	data, err := base64.StdEncoding.DecodeString(payload.Data)
	if err != nil {
		return nil, &core.ToolError{Tool: toolName, Code: "bad_response", Message: "payload is not valid base64"}
	}

	dir := filepath.Join(r.baseDir, string(def.Category), convID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create artifact dir: %w", err)
	}
	path := filepath.Join(dir, filename)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return nil, fmt.Errorf("write artifact: %w", err)
	}

	artifact := &core.Artifact{
		ID:             uuid.NewString(),
		ConversationID: convID,
		Kind:           def.Category,
		Path:           path,
		Tool:           toolName,
		CreatedAt:      time.Now().UTC(),
	}
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO artifacts (id, conversation_id, kind, path, tool, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		artifact.ID, artifact.ConversationID, string(artifact.Kind), artifact.Path,
		artifact.Tool, artifact.CreatedAt.Format(time.RFC3339Nano))
	if err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("record artifact: %v: %w", err, core.ErrStoreUnavailable)
	}

	log.Printf("[TOOLS] %s produced %s in %s", toolName, path, time.Since(start).Round(time.Millisecond))
	return artifact, nil
}

// ListArtifacts returns a conversation's artifacts, most recent first. The
// layout under baseDir is a compatibility contract with UIs listing
// generated files, so paths are returned as written.
func (r *Router) ListArtifacts(ctx context.Context, conversationID string) ([]core.Artifact, error) {
	convID := SanitizeConversationID(conversationID)
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, conversation_id, kind, path, tool, created_at
		 FROM artifacts WHERE conversation_id = ?
		 ORDER BY rowid DESC`, convID)
	if err != nil {
		return nil, fmt.Errorf("list artifacts: %v: %w", err, core.ErrStoreUnavailable)
	}
	defer rows.Close()

	var artifacts []core.Artifact
	for rows.Next() {
		var a core.Artifact
		var kind, created string
		if err := rows.Scan(&a.ID, &a.ConversationID, &kind, &a.Path, &a.Tool, &created); err != nil {
			return nil, fmt.Errorf("scan artifact: %v: %w", err, core.ErrStoreUnavailable)
		}
		a.Kind = core.ArtifactKind(kind)
		a.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
		artifacts = append(artifacts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate artifacts: %v: %w", err, core.ErrStoreUnavailable)
	}
	return artifacts, nil
}

// SanitizeConversationID maps a raw conversation id onto the filesystem-safe
// alphabet (alphanumerics, hyphen, underscore), truncated to 64 characters.
// Empty input falls back to the shared namespace.
func SanitizeConversationID(raw string) string {
	if raw == "" {
		return core.SharedConversationID
	}
	if len(raw) > 64 {
		raw = raw[:64]
	}
	out := make([]byte, len(raw))
	for i := 0; i < len(raw); i++ {
		c := raw[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '-', c == '_':
			out[i] = c
		default:
			out[i] = '_'
		}
	}
	return string(out)
}

package engine

import (
	"context"

	"github.com/lunai408/local-agent-factory/core"
)

// ToolSpec is a tool description exposed to the model.
type ToolSpec struct {
	Name        string
	Description string
	InputSchema map[string]interface{}
}

// ToolCall is the model asking for one tool invocation.
type ToolCall struct {
	ID     string
	Name   string
	Params map[string]interface{}
}

// Message is one entry of the model transcript. An assistant message may
// carry tool calls; a tool message carries the result for ToolCallID.
type Message struct {
	Role       core.Role
	Content    string
	ToolCalls  []ToolCall
	ToolCallID string
	IsError    bool
}

// Request is one inference call: instructions, transcript, and the tools the
// model may request.
type Request struct {
	System    string
	Messages  []Message
	Tools     []ToolSpec
	Model     string
	MaxTokens int64

	// Stream, when set, receives text deltas as they arrive and a final
	// call with done=true.
	Stream func(chunk string, done bool)
}

// Response is the model's reply: text, tool calls, or both.
type Response struct {
	Text      string
	ToolCalls []ToolCall
}

// ModelClient is the inference engine binding. The dispatcher treats it as
// an opaque text generator that may request tool calls.
type ModelClient interface {
	Generate(ctx context.Context, req *Request) (*Response, error)
}

package engine

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/lunai408/local-agent-factory/core"
)

// AnthropicClient adapts the Anthropic API to the ModelClient interface.
type AnthropicClient struct {
	client    *anthropic.Client
	model     string
	maxTokens int64
}

// NewAnthropicClient wraps an Anthropic client with default model settings.
// Request-level Model/MaxTokens override the defaults.
func NewAnthropicClient(client *anthropic.Client, model string, maxTokens int64) *AnthropicClient {
	if model == "" {
		model = "claude-sonnet-4-20250514"
	}
	if maxTokens == 0 {
		maxTokens = 4096
	}
	return &AnthropicClient{client: client, model: model, maxTokens: maxTokens}
}

// Generate runs one inference call, streaming deltas to req.Stream when set.
func (c *AnthropicClient) Generate(ctx context.Context, req *Request) (*Response, error) {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: c.maxTokens,
		Messages:  toAPIMessages(req.Messages),
		System: []anthropic.TextBlockParam{
			{Text: req.System},
		},
	}
	if req.Model != "" {
		params.Model = anthropic.Model(req.Model)
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = req.MaxTokens
	}
	if len(req.Tools) > 0 {
		params.Tools = toAPITools(req.Tools)
	}

	var resp *anthropic.Message
	var err error
	if req.Stream != nil {
		resp, err = c.generateStreaming(ctx, params, req.Stream)
	} else {
		resp, err = c.client.Messages.New(ctx, params)
	}
	if err != nil {
		return nil, fmt.Errorf("model request: %w", err)
	}

	out := &Response{}
	for _, block := range resp.Content {
		switch block.Type {
		case "text":
			out.Text += block.Text
		case "tool_use":
			var inputParams map[string]interface{}
			if err := json.Unmarshal(block.Input, &inputParams); err != nil {
				return nil, fmt.Errorf("tool call %s has invalid input JSON: %w", block.Name, err)
			}
			out.ToolCalls = append(out.ToolCalls, ToolCall{
				ID:     block.ID,
				Name:   block.Name,
				Params: inputParams,
			})
		}
	}
	return out, nil
}

// GenerateText runs a single-prompt completion with no tools. Satisfies
// memory.TextGenerator for the summarizer and memory extraction.
func (c *AnthropicClient) GenerateText(ctx context.Context, system, prompt string) (string, error) {
	resp, err := c.Generate(ctx, &Request{
		System:   system,
		Messages: []Message{{Role: core.RoleUser, Content: prompt}},
	})
	if err != nil {
		return "", err
	}
	return resp.Text, nil
}

func (c *AnthropicClient) generateStreaming(ctx context.Context, params anthropic.MessageNewParams, callback func(string, bool)) (*anthropic.Message, error) {
	stream := c.client.Messages.NewStreaming(ctx, params)
	defer stream.Close()

	message := anthropic.Message{}
	for stream.Next() {
		event := stream.Current()
		if err := message.Accumulate(event); err != nil {
			continue
		}
		switch evt := event.AsAny().(type) {
		case anthropic.ContentBlockDeltaEvent:
			switch delta := evt.Delta.AsAny().(type) {
			case anthropic.TextDelta:
				callback(delta.Text, false)
			}
		case anthropic.MessageStopEvent:
			callback("", true)
		}
	}
	if err := stream.Err(); err != nil {
		return nil, err
	}
	return &message, nil
}

func toAPIMessages(messages []Message) []anthropic.MessageParam {
	out := make([]anthropic.MessageParam, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case core.RoleAssistant:
			var blocks []anthropic.ContentBlockParamUnion
			if msg.Content != "" {
				blocks = append(blocks, anthropic.NewTextBlock(msg.Content))
			}
			for _, call := range msg.ToolCalls {
				input, _ := json.Marshal(call.Params)
				blocks = append(blocks, anthropic.NewToolUseBlock(call.ID, json.RawMessage(input), call.Name))
			}
			out = append(out, anthropic.NewAssistantMessage(blocks...))
		case core.RoleTool:
			out = append(out, anthropic.NewUserMessage(
				anthropic.NewToolResultBlock(msg.ToolCallID, msg.Content, msg.IsError)))
		default:
			out = append(out, anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Content)))
		}
	}
	return out
}

func toAPITools(specs []ToolSpec) []anthropic.ToolUnionParam {
	out := make([]anthropic.ToolUnionParam, 0, len(specs))
	for _, spec := range specs {
		properties, _ := spec.InputSchema["properties"].(map[string]interface{})
		required, _ := spec.InputSchema["required"].([]string)
		out = append(out, anthropic.ToolUnionParam{
			OfTool: &anthropic.ToolParam{
				Name:        spec.Name,
				Description: anthropic.String(spec.Description),
				InputSchema: anthropic.ToolInputSchemaParam{
					Properties: properties,
					Required:   required,
				},
			},
		})
	}
	return out
}

package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/lunai408/local-agent-factory/memory"
)

const extractSystemPrompt = `You extract durable facts about the user from a conversational exchange. Return a JSON array of short declarative strings, e.g. ["prefers dark roast coffee", "works in Berlin"]. Only include facts worth remembering across sessions: preferences, biography, relationships, ongoing projects. Return [] when the exchange contains none. Return only the JSON array.`

// ExtractFacts asks the model for durable user facts in the exchange.
// Model output is treated as untrusted: anything that does not parse as a
// JSON string array yields no facts rather than an error, except when the
// model call itself failed.
func ExtractFacts(ctx context.Context, gen memory.TextGenerator, userMessage, reply string) ([]string, error) {
	prompt := fmt.Sprintf("User: %s\nAssistant: %s", userMessage, reply)
	raw, err := gen.GenerateText(ctx, extractSystemPrompt, prompt)
	if err != nil {
		return nil, err
	}
	return parseFactArray(raw), nil
}

// parseFactArray salvages the JSON array from model output that may carry
// prose or code fences around it.
func parseFactArray(raw string) []string {
	start := strings.Index(raw, "[")
	end := strings.LastIndex(raw, "]")
	if start < 0 || end <= start {
		return nil
	}

	var facts []string
	if err := json.Unmarshal([]byte(raw[start:end+1]), &facts); err != nil {
		return nil
	}

	out := facts[:0]
	for _, fact := range facts {
		fact = strings.TrimSpace(fact)
		if fact != "" {
			out = append(out, fact)
		}
	}
	return out
}

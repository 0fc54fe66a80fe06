package engine_test

import (
	"context"
	"reflect"
	"testing"

	"github.com/lunai408/local-agent-factory/engine"
)

func TestExtractFacts_ToleratesMessyOutput(t *testing.T) {
	cases := []struct {
		name  string
		reply string
		want  []string
	}{
		{"clean array", `["likes jazz", "lives in Oslo"]`, []string{"likes jazz", "lives in Oslo"}},
		{"fenced", "```json\n[\"has two cats\"]\n```", []string{"has two cats"}},
		{"prose around it", `Here are the facts: ["runs marathons"] hope that helps`, []string{"runs marathons"}},
		{"empty array", `[]`, nil},
		{"no array at all", `I could not find any facts.`, nil},
		{"malformed json", `["unterminated`, nil},
		{"wrong element types", `[1, 2, 3]`, nil},
		{"blank entries dropped", `["", "  ", "real fact"]`, []string{"real fact"}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			facts, err := engine.ExtractFacts(context.Background(),
				cannedGenerator{reply: tc.reply}, "user msg", "assistant msg")
			if err != nil {
				t.Fatalf("ExtractFacts: %v", err)
			}
			if len(facts) == 0 && len(tc.want) == 0 {
				return
			}
			if !reflect.DeepEqual(facts, tc.want) {
				t.Errorf("facts = %v, want %v", facts, tc.want)
			}
		})
	}
}

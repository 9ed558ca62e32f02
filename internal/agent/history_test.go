package agent

import (
	"testing"

	"github.com/nugget/shopkeep/internal/llm"
	"github.com/nugget/shopkeep/internal/prompts"
)

func TestRecentExchanges(t *testing.T) {
	thread := []llm.Message{
		{Role: "user", Content: "u1"},
		{Role: "assistant", Content: "a1"},
		{Role: "user", Content: "u2"},
		{Role: "assistant", ToolCalls: []llm.ToolCall{{ID: "c1"}}},
		{Role: "tool", Content: `{"status":"success"}`, ToolCallID: "c1"},
		{Role: "assistant", Content: "a2"},
		{Role: "user", Content: "u3"},
		{Role: "assistant", Content: "a3"},
		{Role: "user", Content: "current"},
	}

	tests := []struct {
		name string
		msgs []llm.Message
		n    int
		want []prompts.Exchange
	}{
		{"all", thread, 5, []prompts.Exchange{{User: "u1", Assistant: "a1"}, {User: "u2", Assistant: "a2"}, {User: "u3", Assistant: "a3"}}},
		{"window", thread, 2, []prompts.Exchange{{User: "u2", Assistant: "a2"}, {User: "u3", Assistant: "a3"}}},
		{"first message", thread[:1], 5, nil},
		{"zero window", thread, 0, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := RecentExchanges(tt.msgs, tt.n)
			if len(got) != len(tt.want) {
				t.Fatalf("got %d exchanges %+v, want %d", len(got), got, len(tt.want))
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("exchange %d = %+v, want %+v", i, got[i], tt.want[i])
				}
			}
		})
	}
}

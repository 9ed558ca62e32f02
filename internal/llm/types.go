// Package llm provides the language-model clients used by the assistant
// node: an Ollama adapter for local models, an Anthropic adapter, and a
// router that picks between them by model name.
package llm

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"
)

// LevelTrace is below Debug, used for wire-level payload logging.
const LevelTrace = slog.Level(-8)

// Message represents a chat message for the LLM.
type Message struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"` // For tool responses
}

// ToolCall represents a tool call proposed by the model.
type ToolCall struct {
	ID       string       `json:"id,omitempty"`
	Function ToolFunction `json:"function"`
}

// ToolFunction names the tool and carries its arguments.
type ToolFunction struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`

	// ArgumentsError is set when the provider sent arguments that were
	// neither an object nor a JSON-encoded object. Arguments is nil then.
	ArgumentsError string `json:"-"`
}

// UnmarshalJSON accepts arguments as an object, a JSON string holding an
// object, or null. Anything else is recorded in ArgumentsError rather
// than failing the whole response.
func (f *ToolFunction) UnmarshalJSON(data []byte) error {
	var raw struct {
		Name      string          `json:"name"`
		Arguments json.RawMessage `json:"arguments"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	f.Name = raw.Name
	f.Arguments = nil
	f.ArgumentsError = ""

	args := bytes.TrimSpace(raw.Arguments)
	if len(args) == 0 || bytes.Equal(args, []byte("null")) {
		return nil
	}

	if args[0] == '"' {
		var s string
		if err := json.Unmarshal(args, &s); err != nil {
			f.ArgumentsError = err.Error()
			return nil
		}
		if s == "" {
			return nil
		}
		args = []byte(s)
	}

	var m map[string]any
	if err := json.Unmarshal(args, &m); err != nil {
		f.ArgumentsError = fmt.Sprintf("arguments are not an object: %v", err)
		return nil
	}
	f.Arguments = m
	return nil
}

// ChatResponse is the unified response from any LLM provider.
type ChatResponse struct {
	Model     string
	CreatedAt time.Time
	Message   Message
	Done      bool

	InputTokens  int
	OutputTokens int

	TotalDuration time.Duration
}

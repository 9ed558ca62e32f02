package llm

import "context"

// Client is the interface that all LLM providers implement.
type Client interface {
	// Chat sends a chat completion request. tools uses the
	// OpenAI-style {"type":"function","function":{...}} shape.
	Chat(ctx context.Context, model string, messages []Message, tools []map[string]any) (*ChatResponse, error)

	// Ping checks if the provider is reachable.
	Ping(ctx context.Context) error
}

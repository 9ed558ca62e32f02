package llm

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestConvertToAnthropic(t *testing.T) {
	messages := []Message{
		{Role: "system", Content: "Bạn là trợ lý bán hàng."},
		{Role: "user", Content: "mua áo thun"},
		{
			Role: "assistant",
			ToolCalls: []ToolCall{{
				ID:       "call_1",
				Function: ToolFunction{Name: "create_order", Arguments: map[string]any{"product_name": "áo thun"}},
			}},
		},
		{Role: "tool", Content: `{"status":"ok"}`, ToolCallID: "call_1"},
	}

	result, system := convertToAnthropic(messages)

	if system != "Bạn là trợ lý bán hàng." {
		t.Errorf("system = %q", system)
	}
	if len(result) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(result))
	}

	blocks, ok := result[1].Content.([]anthropicContent)
	if !ok || len(blocks) != 1 || blocks[0].Type != "tool_use" || blocks[0].ID != "call_1" {
		t.Errorf("assistant blocks = %+v", result[1].Content)
	}

	toolResult, ok := result[2].Content.([]anthropicContent)
	if !ok || result[2].Role != "user" || toolResult[0].ToolUseID != "call_1" {
		t.Errorf("tool result = %+v", result[2])
	}
}

func TestConvertToolsToAnthropic(t *testing.T) {
	tools := []map[string]any{
		{"type": "function", "function": map[string]any{
			"name":        "search_products",
			"description": "Search the catalog",
			"parameters":  map[string]any{"type": "object"},
		}},
		{"type": "function", "function": map[string]any{"name": "chitchat"}},
		{"type": "bogus"},
	}

	got := convertToolsToAnthropic(tools)
	if len(got) != 2 {
		t.Fatalf("got %d tools, want 2", len(got))
	}
	if got[1].InputSchema == nil {
		t.Error("missing parameters should default to an empty object schema")
	}
}

func TestAnthropicClient_Chat(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("x-api-key") != "test-key" {
			t.Errorf("x-api-key = %q", r.Header.Get("x-api-key"))
		}
		var req anthropicRequest
		json.NewDecoder(r.Body).Decode(&req)
		if req.System == "" {
			t.Error("system prompt not lifted")
		}
		w.Write([]byte(`{"id":"msg_1","role":"assistant","model":"claude","stop_reason":"tool_use",
			"content":[{"type":"text","text":"Để mình tìm."},
			{"type":"tool_use","id":"toolu_1","name":"search_products","input":{"query":"áo"}}],
			"usage":{"input_tokens":20,"output_tokens":5}}`))
	}))
	defer srv.Close()

	c := NewAnthropicClient("test-key", discardLogger())
	c.url = srv.URL

	resp, err := c.Chat(t.Context(), "claude", []Message{
		{Role: "system", Content: "sys"},
		{Role: "user", Content: "áo"},
	}, nil)
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if resp.Message.Content != "Để mình tìm." {
		t.Errorf("content = %q", resp.Message.Content)
	}
	if len(resp.Message.ToolCalls) != 1 || resp.Message.ToolCalls[0].ID != "toolu_1" {
		t.Fatalf("tool calls = %+v", resp.Message.ToolCalls)
	}
	if resp.InputTokens != 20 {
		t.Errorf("InputTokens = %d", resp.InputTokens)
	}
}

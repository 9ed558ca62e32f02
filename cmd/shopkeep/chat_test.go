package main

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/nugget/shopkeep/internal/checkpoint"
	"github.com/nugget/shopkeep/internal/llm"
	"github.com/nugget/shopkeep/internal/workflow"
)

// pausingConversation pauses every message once on cancel_order and
// records the decisions it receives.
type pausingConversation struct {
	decisions []workflow.Decision
	failNext  bool
}

func (c *pausingConversation) HandleMessage(_ context.Context, m workflow.Message) (*workflow.Result, error) {
	if c.failNext {
		c.failNext = false
		return nil, errors.New("model unavailable")
	}
	return &workflow.Result{
		ThreadID: "t1",
		Reply:    "Dạ, em hủy đơn #7 nhé?",
		Interrupt: &workflow.Interrupt{
			ThreadID: "t1",
			Node:     checkpoint.NodeSensitiveTool,
			ToolCall: llm.ToolCall{
				ID:       "call_1",
				Function: llm.ToolFunction{Name: "cancel_order", Arguments: map[string]any{"order_id": float64(7)}},
			},
		},
	}, nil
}

func (c *pausingConversation) Resume(_ context.Context, sig workflow.ResumeSignal) (*workflow.Result, error) {
	c.decisions = append(c.decisions, sig.Decision)
	reply := "Đã hủy đơn #7."
	if sig.Decision == workflow.Deny {
		reply = "Dạ, em giữ nguyên đơn."
	}
	return &workflow.Result{ThreadID: sig.ThreadID, Reply: reply}, nil
}

func TestChatLoop(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		want      []workflow.Decision
		wantReply string
	}{
		{name: "approve", input: "hủy đơn 7\ny\n/quit\n", want: []workflow.Decision{workflow.Approve}, wantReply: "Đã hủy đơn #7."},
		{name: "yes is approve", input: "hủy đơn 7\n YES \n", want: []workflow.Decision{workflow.Approve}, wantReply: "Đã hủy đơn #7."},
		{name: "anything else denies", input: "hủy đơn 7\nkhông\n/exit\n", want: []workflow.Decision{workflow.Deny}, wantReply: "giữ nguyên"},
		{name: "blank lines are ignored", input: "\n\nhủy đơn 7\nn\n", want: []workflow.Decision{workflow.Deny}, wantReply: "giữ nguyên"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conv := &pausingConversation{}
			var out bytes.Buffer
			if err := chatLoop(context.Background(), conv, strings.NewReader(tt.input), &out); err != nil {
				t.Fatalf("chatLoop: %v", err)
			}
			if len(conv.decisions) != len(tt.want) || conv.decisions[0] != tt.want[0] {
				t.Errorf("decisions = %v, want %v", conv.decisions, tt.want)
			}
			got := out.String()
			if !strings.Contains(got, `[sensitive_tool] cancel_order {"order_id":7}`) {
				t.Errorf("pending action not shown:\n%s", got)
			}
			if !strings.Contains(got, tt.wantReply) {
				t.Errorf("output missing %q:\n%s", tt.wantReply, got)
			}
		})
	}
}

func TestChatLoop_InputClosedWhileWaiting(t *testing.T) {
	conv := &pausingConversation{}
	var out bytes.Buffer
	err := chatLoop(context.Background(), conv, strings.NewReader("hủy đơn 7\n"), &out)
	if err == nil || !strings.Contains(err.Error(), "input closed") {
		t.Fatalf("err = %v, want input closed", err)
	}
	if len(conv.decisions) != 0 {
		t.Errorf("no decision should be sent, got %v", conv.decisions)
	}
}

func TestChatLoop_MessageErrorKeepsGoing(t *testing.T) {
	conv := &pausingConversation{failNext: true}
	var out bytes.Buffer
	if err := chatLoop(context.Background(), conv, strings.NewReader("xin chào\nhủy đơn 7\ny\n"), &out); err != nil {
		t.Fatalf("chatLoop: %v", err)
	}
	if !strings.Contains(out.String(), "! model unavailable") {
		t.Errorf("error not reported:\n%s", out.String())
	}
	if len(conv.decisions) != 1 {
		t.Errorf("decisions = %v, want one", conv.decisions)
	}
}

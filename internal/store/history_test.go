package store

import (
	"context"
	"testing"
)

func TestSaveConversation_CreatesTableLazily(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	var name string
	err := s.db.QueryRowContext(ctx,
		`SELECT name FROM sqlite_master WHERE type = 'table' AND name = 'conversation_history'`).Scan(&name)
	if err == nil {
		t.Fatal("conversation_history should not exist before the first save")
	}

	for i, msg := range []string{"xin chào", "mua áo thun", "xác nhận"} {
		if err := s.SaveConversation(ctx, ConversationRecord{
			CustomerID:  7,
			UserMessage: msg,
			BotResponse: "ok",
			ToolCalls:   `[{"name":"search_products"}]`,
		}); err != nil {
			t.Fatalf("SaveConversation %d: %v", i, err)
		}
	}
	if err := s.SaveConversation(ctx, ConversationRecord{CustomerID: 8, UserMessage: "hi"}); err != nil {
		t.Fatal(err)
	}

	recs, err := s.ConversationHistory(ctx, 7, 2)
	if err != nil {
		t.Fatalf("ConversationHistory: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("got %d records, want 2", len(recs))
	}
	if recs[0].UserMessage != "mua áo thun" || recs[1].UserMessage != "xác nhận" {
		t.Errorf("records = %q, %q; want the last two oldest first", recs[0].UserMessage, recs[1].UserMessage)
	}
	if recs[0].Timestamp.IsZero() {
		t.Error("timestamp not set")
	}
}

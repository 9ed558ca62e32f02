package store

import (
	"context"
	"fmt"
	"time"
)

// SaveConversation appends one assistant turn to conversation_history.
// The table is created on first use.
func (s *Store) SaveConversation(ctx context.Context, rec ConversationRecord) error {
	if err := s.ensureHistory(ctx); err != nil {
		return err
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now()
	}
	if rec.ToolCalls == "" {
		rec.ToolCalls = "[]"
	}

	_, err := s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO conversation_history (customer_id, user_message, bot_response, tool_calls, timestamp)
		VALUES (?, ?, ?, ?, ?)`),
		rec.CustomerID, rec.UserMessage, rec.BotResponse, rec.ToolCalls,
		rec.Timestamp.UTC().Format(timeLayout))
	if err != nil {
		return fmt.Errorf("save conversation: %w", err)
	}
	return nil
}

// ConversationHistory returns the customer's most recent records, oldest
// first, at most limit of them.
func (s *Store) ConversationHistory(ctx context.Context, customerID int64, limit int) ([]ConversationRecord, error) {
	if err := s.ensureHistory(ctx); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, s.rebind(`
		SELECT customer_id, user_message, bot_response, tool_calls, timestamp
		FROM conversation_history
		WHERE customer_id = ?
		ORDER BY id DESC
		LIMIT ?`), customerID, limit)
	if err != nil {
		return nil, fmt.Errorf("conversation history: %w", err)
	}
	defer rows.Close()

	var recs []ConversationRecord
	for rows.Next() {
		var (
			r  ConversationRecord
			ts string
		)
		if err := rows.Scan(&r.CustomerID, &r.UserMessage, &r.BotResponse, &r.ToolCalls, &ts); err != nil {
			return nil, fmt.Errorf("scan conversation: %w", err)
		}
		r.Timestamp = parseTime(ts)
		recs = append(recs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i, j := 0, len(recs)-1; i < j; i, j = i+1, j-1 {
		recs[i], recs[j] = recs[j], recs[i]
	}
	return recs, nil
}

func (s *Store) ensureHistory(ctx context.Context) error {
	s.historyMu.Lock()
	defer s.historyMu.Unlock()
	if s.historyReady {
		return nil
	}

	id := "INTEGER PRIMARY KEY AUTOINCREMENT"
	if s.dialect == Postgres {
		id = "BIGSERIAL PRIMARY KEY"
	}
	if _, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS conversation_history (
			id           `+id+`,
			customer_id  BIGINT NOT NULL,
			user_message TEXT NOT NULL,
			bot_response TEXT NOT NULL,
			tool_calls   TEXT NOT NULL,
			timestamp    TEXT NOT NULL
		)`); err != nil {
		return fmt.Errorf("create conversation_history: %w", err)
	}
	s.historyReady = true
	return nil
}

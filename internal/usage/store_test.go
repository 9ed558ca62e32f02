package usage

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "usage_test.db")
	s, err := NewStore(dbPath)
	if err != nil {
		t.Fatalf("NewStore(%q): %v", dbPath, err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRecord_And_Summaries(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	now := time.Now().UTC()
	recs := []Record{
		{Timestamp: now, ThreadID: "t1", CustomerID: 7, Model: "qwen2.5:7b", Provider: "ollama", InputTokens: 1000, OutputTokens: 200},
		{Timestamp: now, ThreadID: "t1", CustomerID: 7, Model: "qwen2.5:7b", Provider: "ollama", InputTokens: 1100, OutputTokens: 50, Purpose: "reprompt"},
		{Timestamp: now, ThreadID: "t2", CustomerID: 8, Model: "claude-sonnet-4-20250514", Provider: "anthropic", InputTokens: 500, OutputTokens: 100},
	}
	for _, rec := range recs {
		if err := s.Record(ctx, rec); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}

	sum, err := s.Summary(ctx, now.Add(-time.Minute), now.Add(time.Minute))
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}
	if sum.TotalRecords != 3 || sum.TotalInputTokens != 2600 || sum.TotalOutputTokens != 350 {
		t.Errorf("Summary = %+v", sum)
	}

	thread, err := s.ThreadSummary(ctx, "t1")
	if err != nil {
		t.Fatalf("ThreadSummary: %v", err)
	}
	if thread.TotalRecords != 2 || thread.TotalInputTokens != 2100 {
		t.Errorf("ThreadSummary(t1) = %+v", thread)
	}

	byModel, err := s.SummaryByModel(ctx, now.Add(-time.Minute), now.Add(time.Minute))
	if err != nil {
		t.Fatalf("SummaryByModel: %v", err)
	}
	if len(byModel) != 2 || byModel["qwen2.5:7b"].TotalOutputTokens != 250 {
		t.Errorf("SummaryByModel = %v", byModel)
	}
}

func TestSummary_OutsideWindow(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	old := time.Now().Add(-48 * time.Hour)
	if err := s.Record(ctx, Record{Timestamp: old, ThreadID: "t", Model: "m", Provider: "ollama", InputTokens: 10}); err != nil {
		t.Fatal(err)
	}

	sum, err := s.Summary(ctx, time.Now().Add(-time.Hour), time.Now())
	if err != nil {
		t.Fatal(err)
	}
	if sum.TotalRecords != 0 {
		t.Errorf("TotalRecords = %d, want 0", sum.TotalRecords)
	}
}

func TestThreadSummary_Empty(t *testing.T) {
	s := testStore(t)
	sum, err := s.ThreadSummary(context.Background(), "none")
	if err != nil {
		t.Fatal(err)
	}
	if sum.TotalRecords != 0 || sum.TotalInputTokens != 0 {
		t.Errorf("empty thread summary = %+v", sum)
	}
}

package trace

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func newTestSink(t *testing.T) *SQLiteSink {
	t.Helper()
	sink, err := NewSQLiteSink(filepath.Join(t.TempDir(), "traces.db"))
	if err != nil {
		t.Fatalf("new sink: %v", err)
	}
	t.Cleanup(func() { sink.Close() })
	return sink
}

func testExecution(model string, startedAt time.Time, in, out int, cost float64) *Execution {
	return &Execution{
		ConversationID: "conv-1",
		UserInput:      "what's next?",
		FinalText:      "Nothing urgent.",
		Model:          model,
		StartedAt:      startedAt,
		CompletedAt:    startedAt.Add(2 * time.Second),
		Duration:       2 * time.Second,
		InputTokens:    in,
		OutputTokens:   out,
		CostUSD:        cost,
		Iterations: []Iteration{
			{Number: 1, InputTokens: in, OutputTokens: out, StopReason: "end_turn", Timestamp: startedAt},
		},
	}
}

func TestSink_SaveAssignsID(t *testing.T) {
	sink := newTestSink(t)

	ex := testExecution("claude-sonnet-4-20250514", time.Now(), 100, 20, 0.001)
	if err := sink.Save(context.Background(), ex); err != nil {
		t.Fatalf("save: %v", err)
	}
	if ex.ID == "" {
		t.Error("save did not assign an id")
	}
}

func TestSink_Summarize(t *testing.T) {
	sink := newTestSink(t)
	ctx := context.Background()
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		ex := testExecution("claude-sonnet-4-20250514", base.Add(time.Duration(i)*time.Hour), 100, 20, 0.01)
		if err := sink.Save(ctx, ex); err != nil {
			t.Fatalf("save %d: %v", i, err)
		}
	}
	// One outside the window.
	old := testExecution("claude-sonnet-4-20250514", base.AddDate(0, -1, 0), 999, 999, 9.99)
	if err := sink.Save(ctx, old); err != nil {
		t.Fatalf("save old: %v", err)
	}

	sum, err := sink.Summarize(ctx, base.Add(-time.Hour), base.Add(24*time.Hour))
	if err != nil {
		t.Fatalf("summarize: %v", err)
	}
	if sum.TotalRuns != 3 {
		t.Errorf("runs = %d, want 3", sum.TotalRuns)
	}
	if sum.TotalInputTokens != 300 || sum.TotalOutputTokens != 60 {
		t.Errorf("tokens = %d/%d, want 300/60", sum.TotalInputTokens, sum.TotalOutputTokens)
	}
	if sum.TotalCostUSD < 0.029 || sum.TotalCostUSD > 0.031 {
		t.Errorf("cost = %v, want ~0.03", sum.TotalCostUSD)
	}
}

func TestSink_SummarizeByModel(t *testing.T) {
	sink := newTestSink(t)
	ctx := context.Background()
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	for _, model := range []string{"model-a", "model-a", "model-b"} {
		if err := sink.Save(ctx, testExecution(model, base, 50, 10, 0.005)); err != nil {
			t.Fatalf("save: %v", err)
		}
	}

	byModel, err := sink.SummarizeByModel(ctx, base.Add(-time.Hour), base.Add(time.Hour))
	if err != nil {
		t.Fatalf("summarize by model: %v", err)
	}
	if len(byModel) != 2 {
		t.Fatalf("models = %d, want 2", len(byModel))
	}
	if byModel["model-a"].TotalRuns != 2 || byModel["model-b"].TotalRuns != 1 {
		t.Errorf("runs = %d/%d, want 2/1", byModel["model-a"].TotalRuns, byModel["model-b"].TotalRuns)
	}
}

func TestSink_SummarizeEmpty(t *testing.T) {
	sink := newTestSink(t)

	sum, err := sink.Summarize(context.Background(), time.Now().Add(-time.Hour), time.Now())
	if err != nil {
		t.Fatalf("summarize: %v", err)
	}
	if sum.TotalRuns != 0 || sum.TotalCostUSD != 0 {
		t.Errorf("empty summary = %+v", sum)
	}
}

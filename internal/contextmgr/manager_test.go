package contextmgr

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"testing"

	"github.com/valet-agent/valet/internal/convo"
	"github.com/valet-agent/valet/internal/llm"
	"github.com/valet-agent/valet/internal/prompts"
	"github.com/valet-agent/valet/internal/tokens"
)

// fakeClient returns a canned summary or a canned error.
type fakeClient struct {
	summary string
	err     error
	calls   int
	lastMsg string
}

func (f *fakeClient) Chat(ctx context.Context, model string, messages []llm.Message, tools []map[string]any, maxOutputTokens int) (*llm.ChatResponse, error) {
	f.calls++
	if len(messages) > 0 {
		f.lastMsg = messages[len(messages)-1].Content
	}
	if f.err != nil {
		return nil, f.err
	}
	return &llm.ChatResponse{
		Message:    llm.Message{Role: "assistant", Content: f.summary},
		StopReason: llm.StopEndTurn,
	}, nil
}

func (f *fakeClient) Ping(ctx context.Context) error { return nil }

func newTestManager(t *testing.T, client llm.Client, threshold, keepRecent int) *Manager {
	t.Helper()
	est := tokens.NewEstimator()
	t.Cleanup(func() { est.Close() })
	return NewManager(client, est, Config{
		Threshold:  threshold,
		KeepRecent: keepRecent,
		Model:      "test-model",
	}, slog.New(slog.DiscardHandler))
}

func makeMessages(n int) []convo.Message {
	msgs := make([]convo.Message, n)
	for i := range msgs {
		role := "user"
		if i%2 == 1 {
			role = "assistant"
		}
		msgs[i] = convo.Message{Role: role, Content: fmt.Sprintf("message number %d", i)}
	}
	return msgs
}

func TestNeedsSummarization(t *testing.T) {
	tests := []struct {
		tokenCount int
		threshold  int
		want       bool
	}{
		{100_000, 150_000, false},
		{160_000, 150_000, true},
		{150_000, 150_000, true}, // at threshold counts
		{0, 150_000, false},
	}
	for _, tt := range tests {
		c := &convo.Conversation{TokenCount: tt.tokenCount}
		if got := NeedsSummarization(c, tt.threshold); got != tt.want {
			t.Errorf("NeedsSummarization(count=%d, threshold=%d) = %v, want %v",
				tt.tokenCount, tt.threshold, got, tt.want)
		}
	}
}

func TestSummarizeOldMessages_InsufficientHistory(t *testing.T) {
	m := newTestManager(t, &fakeClient{summary: "irrelevant"}, 1000, 10)

	_, err := m.SummarizeOldMessages(context.Background(), makeMessages(10), 10)
	if !errors.Is(err, ErrInsufficientHistory) {
		t.Fatalf("got %v, want ErrInsufficientHistory", err)
	}

	_, err = m.SummarizeOldMessages(context.Background(), makeMessages(5), 10)
	if !errors.Is(err, ErrInsufficientHistory) {
		t.Fatalf("got %v, want ErrInsufficientHistory", err)
	}
}

func TestSummarizeOldMessages_FoldsOldIntoSummary(t *testing.T) {
	client := &fakeClient{summary: "The user planned their week."}
	m := newTestManager(t, client, 1000, 20)

	in := makeMessages(30)
	result, err := m.SummarizeOldMessages(context.Background(), in, 20)
	if err != nil {
		t.Fatalf("summarize: %v", err)
	}

	if len(result.Messages) != 21 {
		t.Fatalf("got %d messages, want 21 (summary + 20 recent)", len(result.Messages))
	}
	head := result.Messages[0]
	if head.Role != "user" {
		t.Errorf("summary message role = %q, want user", head.Role)
	}
	if !strings.Contains(head.Content, prompts.SummaryMarker) {
		t.Errorf("summary message missing marker: %q", head.Content)
	}
	if !strings.Contains(head.Content, client.summary) {
		t.Errorf("summary message missing model output: %q", head.Content)
	}
	for i, msg := range result.Messages[1:] {
		if want := in[10+i].Content; msg.Content != want {
			t.Errorf("recent message %d = %q, want %q", i, msg.Content, want)
		}
	}

	md := result.Metadata
	if md.OriginalCount != 30 || md.KeptCount != 20 {
		t.Errorf("metadata counts = %d/%d, want 30/20", md.OriginalCount, md.KeptCount)
	}
	if md.TokensBefore <= 0 || md.TokensAfter <= 0 {
		t.Errorf("metadata tokens = %d/%d, want positive", md.TokensBefore, md.TokensAfter)
	}
}

func TestSummarizeOldMessages_InputNotMutated(t *testing.T) {
	m := newTestManager(t, &fakeClient{summary: "short"}, 1000, 2)

	in := makeMessages(6)
	originals := make([]string, len(in))
	for i, msg := range in {
		originals[i] = msg.Content
	}

	if _, err := m.SummarizeOldMessages(context.Background(), in, 2); err != nil {
		t.Fatalf("summarize: %v", err)
	}
	for i, msg := range in {
		if msg.Content != originals[i] {
			t.Errorf("input message %d mutated: %q", i, msg.Content)
		}
	}
}

func TestSummarizeOldMessages_ProviderFailure(t *testing.T) {
	m := newTestManager(t, &fakeClient{err: errors.New("rate limited")}, 1000, 2)

	_, err := m.SummarizeOldMessages(context.Background(), makeMessages(6), 2)
	if err == nil {
		t.Fatal("expected error")
	}
	var provErr *ProviderError
	if !errors.As(err, &provErr) {
		t.Fatalf("got %T, want *ProviderError", err)
	}
}

func TestApply_BelowThreshold(t *testing.T) {
	client := &fakeClient{summary: "unused"}
	m := newTestManager(t, client, 150_000, 10)

	c := &convo.Conversation{ID: "c1", Messages: makeMessages(30), TokenCount: 100_000}
	out, err := m.Apply(context.Background(), c)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if out != c {
		t.Error("below threshold should return the input unchanged")
	}
	if client.calls != 0 {
		t.Errorf("provider called %d times, want 0", client.calls)
	}
}

func TestApply_Disabled(t *testing.T) {
	client := &fakeClient{summary: "unused"}
	m := newTestManager(t, client, 0, 10)

	c := &convo.Conversation{ID: "c1", Messages: makeMessages(30), TokenCount: 999_999}
	out, err := m.Apply(context.Background(), c)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if out != c || client.calls != 0 {
		t.Error("zero threshold should disable summarization")
	}
}

func TestApply_ReplacesMessagesAndAppendsMetadata(t *testing.T) {
	m := newTestManager(t, &fakeClient{summary: "Weekly planning recap."}, 100, 10)

	c := &convo.Conversation{ID: "c1", Messages: makeMessages(30), TokenCount: 5000}
	out, err := m.Apply(context.Background(), c)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if out == c {
		t.Fatal("apply should return a new conversation")
	}
	if len(out.Messages) != 11 {
		t.Errorf("got %d messages, want 11", len(out.Messages))
	}
	if len(out.Summaries) != 1 {
		t.Fatalf("got %d summary records, want 1", len(out.Summaries))
	}
	if out.TokenCount != out.Summaries[0].TokensAfter {
		t.Errorf("token count %d not refreshed to %d", out.TokenCount, out.Summaries[0].TokensAfter)
	}
	if len(c.Messages) != 30 {
		t.Errorf("input conversation mutated: %d messages", len(c.Messages))
	}
}

func TestApply_FailureLeavesInputUntouched(t *testing.T) {
	m := newTestManager(t, &fakeClient{err: errors.New("boom")}, 100, 10)

	c := &convo.Conversation{ID: "c1", Messages: makeMessages(30), TokenCount: 5000}
	_, err := m.Apply(context.Background(), c)
	if err == nil {
		t.Fatal("expected error")
	}
	if len(c.Messages) != 30 || len(c.Summaries) != 0 || c.TokenCount != 5000 {
		t.Error("failed apply mutated the input conversation")
	}
}

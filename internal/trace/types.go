// Package trace captures per-iteration and per-run observability data
// for agent turns: token counts, cost, timing, and tool outcomes.
// Records are append-only and persisted independently of the
// conversation transcript.
package trace

import "time"

// ToolInvocation records one tool call within an iteration. Created
// once per call, immutable thereafter.
type ToolInvocation struct {
	ToolName  string         `json:"tool_name"`
	CallID    string         `json:"call_id"`
	Input     map[string]any `json:"input,omitempty"`
	Result    string         `json:"result,omitempty"`
	Success   bool           `json:"success"`
	StartedAt time.Time      `json:"started_at"`
	EndedAt   time.Time      `json:"ended_at"`
	Duration  time.Duration  `json:"duration_ns"`
}

// Iteration records one provider round trip within a turn.
type Iteration struct {
	// Number is 1-indexed.
	Number       int              `json:"number"`
	InputTokens  int              `json:"input_tokens"`
	OutputTokens int              `json:"output_tokens"`
	StopReason   string           `json:"stop_reason"`
	ToolCalls    []ToolInvocation `json:"tool_calls,omitempty"`
	Timestamp    time.Time        `json:"timestamp"`
}

// Execution aggregates a full turn: one per call to the agent loop.
type Execution struct {
	ID             string        `json:"id"`
	ConversationID string        `json:"conversation_id"`
	UserInput      string        `json:"user_input"`
	FinalText      string        `json:"final_text"`
	Model          string        `json:"model"`
	StartedAt      time.Time     `json:"started_at"`
	CompletedAt    time.Time     `json:"completed_at"`
	Duration       time.Duration `json:"duration_ns"`
	InputTokens    int           `json:"input_tokens"`
	OutputTokens   int           `json:"output_tokens"`
	CostUSD        float64       `json:"cost_usd"`
	Iterations     []Iteration   `json:"iterations"`
}

// Summary holds aggregated token and cost totals over a time window.
type Summary struct {
	TotalRuns         int
	TotalInputTokens  int64
	TotalOutputTokens int64
	TotalCostUSD      float64
}

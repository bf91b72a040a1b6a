// Package llm provides LLM provider client implementations.
package llm

import (
	"fmt"
	"time"
)

// Message represents a chat message for the LLM.
//
// Tool interaction uses the flat form: an assistant message carries
// ToolCalls, and the correlated results follow as role "tool" messages
// with ToolCallID set. Conversion to the provider's content-block wire
// format happens at the provider boundary (anthropic.go).
type Message struct {
	Role       string     `json:"role"` // system, user, assistant, tool
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"` // For tool responses
}

// ToolCall represents a tool invocation requested by the model.
type ToolCall struct {
	// ID is the provider-assigned call identifier, required for
	// tool_result correlation.
	ID        string         `json:"id,omitempty"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// Stop reasons reported by the provider, normalized across providers.
const (
	StopEndTurn   = "end_turn"
	StopToolUse   = "tool_use"
	StopMaxTokens = "max_tokens"
)

// ChatResponse is the unified response from any LLM provider.
// All fields use proper Go types — wire format conversion happens
// at provider boundaries.
type ChatResponse struct {
	Model      string
	CreatedAt  time.Time
	Message    Message
	StopReason string

	// Token usage (provider-neutral)
	InputTokens  int
	OutputTokens int
}

// APIError is returned when the provider rejects a request at the HTTP
// layer (auth, rate limit, malformed request, server error). It is
// distinguishable from transport errors so callers can classify the
// failure without string matching.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("provider API error %d: %s", e.StatusCode, e.Body)
}

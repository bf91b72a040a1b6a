// Package convo defines the durable conversation model and its
// persistence interface. A Conversation is owned exclusively by the
// agent loop for the duration of a turn and persisted between turns.
package convo

import (
	"time"

	"github.com/valet-agent/valet/internal/llm"
)

// Message is one entry in a conversation transcript. Messages are
// immutable once appended; the loop builds new slices rather than
// mutating in place.
type Message struct {
	Role       string         `json:"role"` // user, assistant, tool
	Content    string         `json:"content"`
	ToolCalls  []llm.ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
	Timestamp  time.Time      `json:"timestamp"`
}

// LLM converts the message to the provider-neutral LLM form.
func (m Message) LLM() llm.Message {
	return llm.Message{
		Role:       m.Role,
		Content:    m.Content,
		ToolCalls:  m.ToolCalls,
		ToolCallID: m.ToolCallID,
	}
}

// LLMMessages converts a transcript to the provider-neutral LLM form.
func LLMMessages(msgs []Message) []llm.Message {
	out := make([]llm.Message, len(msgs))
	for i, m := range msgs {
		out[i] = m.LLM()
	}
	return out
}

// SummaryMetadata records one summarization pass over a conversation.
// Entries are append-only and never removed.
type SummaryMetadata struct {
	Timestamp     time.Time `json:"timestamp"`
	OriginalCount int       `json:"original_count"` // messages before summarization
	KeptCount     int       `json:"kept_count"`     // messages retained verbatim
	TokensBefore  int       `json:"tokens_before"`
	TokensAfter   int       `json:"tokens_after"`
}

// Conversation is the durable transcript plus its tracked token count.
// TokenCount is always recomputable from Messages and must be refreshed
// after any mutation.
type Conversation struct {
	ID            string            `json:"id"`
	CreatedAt     time.Time         `json:"created_at"`
	LastMessageAt time.Time         `json:"last_message_at"`
	Messages      []Message         `json:"messages"`
	TokenCount    int               `json:"token_count"`
	Summaries     []SummaryMetadata `json:"summaries,omitempty"`
}

// Clone returns a deep copy of the conversation. The loop works on a
// clone so a failed turn never leaves partial mutations behind.
func (c *Conversation) Clone() *Conversation {
	out := &Conversation{
		ID:            c.ID,
		CreatedAt:     c.CreatedAt,
		LastMessageAt: c.LastMessageAt,
		TokenCount:    c.TokenCount,
	}
	out.Messages = make([]Message, len(c.Messages))
	copy(out.Messages, c.Messages)
	out.Summaries = make([]SummaryMetadata, len(c.Summaries))
	copy(out.Summaries, c.Summaries)
	return out
}

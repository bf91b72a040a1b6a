// Package events provides a publish/subscribe event bus for
// operational observability. Events flow from the agent loop to
// subscribers (the WebSocket handler, a logging subscriber). The bus
// is nil-safe: calling Publish on a nil *Bus is a no-op, so the loop
// does not need guard checks.
package events

import (
	"sync"
	"time"
)

// SourceAgent identifies events from the core agent loop.
const SourceAgent = "agent"

// Kind constants describe the type of event within a source.
const (
	// KindTurnStart signals the beginning of an agent turn.
	// Data: conversation_id, input_len.
	KindTurnStart = "turn_start"
	// KindLLMCall signals the start of a provider call.
	// Data: conversation_id, iteration, model, est_tokens.
	KindLLMCall = "llm_call"
	// KindLLMResponse signals completion of a provider call.
	// Data: conversation_id, iteration, stop_reason, tokens_in,
	// tokens_out, tool_calls.
	KindLLMResponse = "llm_response"
	// KindToolCall signals the start of a tool execution.
	// Data: conversation_id, tool, call_id.
	KindToolCall = "tool_call"
	// KindToolDone signals completion of a tool execution.
	// Data: conversation_id, tool, ok, duration_ms.
	KindToolDone = "tool_done"
	// KindTurnComplete signals the end of an agent turn.
	// Data: conversation_id, iterations, tokens_in, tokens_out,
	// cost_usd, elapsed_ms.
	KindTurnComplete = "turn_complete"
	// KindSummarized signals a context summarization pass ran.
	// Data: conversation_id, tokens_before, tokens_after.
	KindSummarized = "summarized"
)

// Event represents a single operational event published by a component.
type Event struct {
	// Timestamp is when the event occurred.
	Timestamp time.Time `json:"ts"`
	// Source identifies the component that published the event.
	Source string `json:"source"`
	// Kind describes the type of event within the source.
	Kind string `json:"kind"`
	// Data holds event-specific key/value pairs.
	Data map[string]any `json:"data,omitempty"`
}

// Bus is a non-blocking broadcast event bus. Subscribers receive
// events on buffered channels; slow subscribers miss events rather
// than blocking publishers.
type Bus struct {
	mu   sync.RWMutex
	subs map[chan Event]struct{}
	// recvToSend maps the receive-only channel returned by Subscribe
	// back to the bidirectional channel stored in subs, so Unsubscribe
	// can accept the caller's <-chan view.
	recvToSend map[<-chan Event]chan Event
}

// New creates a new event bus ready for use.
func New() *Bus {
	return &Bus{
		subs:       make(map[chan Event]struct{}),
		recvToSend: make(map[<-chan Event]chan Event),
	}
}

// Publish sends an event to all subscribers. Non-blocking: if a
// subscriber's channel is full, the event is dropped for that
// subscriber. Safe to call on a nil receiver (no-op).
func (b *Bus) Publish(e Event) {
	if b == nil {
		return
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subs {
		select {
		case ch <- e:
		default:
			// Subscriber is full — drop the event rather than block.
		}
	}
}

// Subscribe returns a channel that receives published events. The
// caller must eventually call Unsubscribe to avoid resource leaks.
// bufSize controls the channel buffer; 64 is a reasonable default for
// WebSocket consumers.
func (b *Bus) Subscribe(bufSize int) <-chan Event {
	ch := make(chan Event, bufSize)
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[ch] = struct{}{}
	b.recvToSend[ch] = ch
	return ch
}

// Unsubscribe removes a subscription and closes the channel. Safe to
// call with a channel that is already unsubscribed (no-op).
func (b *Bus) Unsubscribe(ch <-chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	sendCh, ok := b.recvToSend[ch]
	if !ok {
		return
	}
	delete(b.subs, sendCh)
	delete(b.recvToSend, ch)
	close(sendCh)
}

// SubscriberCount returns the number of active subscribers.
func (b *Bus) SubscriberCount() int {
	if b == nil {
		return 0
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Package tokens approximates the token cost of text, message
// sequences, and tool schemas before a provider call is made. The
// estimate is deterministic and monotonic in input length; it does not
// match any provider's exact tokenizer and is intended for threshold
// guards (pre-flight budget checks, summarization triggers), not for
// billing-accurate counts.
package tokens

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/valet-agent/valet/internal/llm"
)

// Overhead constants model the role/delimiter framing cost the
// provider charges beyond raw content.
const (
	// messageOverhead is added per message (role label, delimiters).
	messageOverhead = 4
	// toolOverhead is added per tool definition (schema framing).
	toolOverhead = 8
	// replyPrimer is added once per request for the assistant primer.
	replyPrimer = 3
)

// Estimator computes token estimates using a shared sub-word model.
// The underlying tokenizer is lazily initialized on first use and must
// be released exactly once with Close at process shutdown. An Estimator
// is safe for concurrent use.
type Estimator struct {
	mu  sync.Mutex
	tok *tokenizer
}

// NewEstimator returns an estimator whose tokenizer is initialized on
// first use.
func NewEstimator() *Estimator {
	return &Estimator{}
}

// Close releases the tokenizer resource. It must be called exactly
// once; a second call reports an error. Estimates after Close return
// zero rather than panicking.
func (e *Estimator) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.tok != nil && e.tok.closed {
		return fmt.Errorf("tokens: estimator already closed")
	}
	if e.tok == nil {
		e.tok = &tokenizer{}
	}
	e.tok.closed = true
	return nil
}

func (e *Estimator) tokenizerHandle() *tokenizer {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.tok == nil {
		e.tok = newTokenizer()
	}
	return e.tok
}

// EstimateText returns the estimated token count of a plain string.
// EstimateText("") is 0, and the estimate never decreases as
// characters are appended.
func (e *Estimator) EstimateText(s string) int {
	return e.tokenizerHandle().count(s)
}

// EstimateMessages returns the estimated token count of a message
// sequence, including per-message framing overhead. Tool-result
// messages count both the call identifier and the result content;
// assistant tool calls count the tool name and serialized arguments.
func (e *Estimator) EstimateMessages(msgs []llm.Message) int {
	tok := e.tokenizerHandle()

	total := 0
	for _, m := range msgs {
		total += messageOverhead
		total += tok.count(m.Role)
		total += tok.count(m.Content)
		total += tok.count(m.ToolCallID)
		for _, tc := range m.ToolCalls {
			total += tok.count(tc.Name)
			if len(tc.Arguments) > 0 {
				args, err := json.Marshal(tc.Arguments)
				if err == nil {
					total += tok.count(string(args))
				}
			}
		}
	}
	return total
}

// EstimateTools returns the estimated token count of a tool schema
// set: name, description, and serialized parameter schema per tool,
// plus fixed formatting overhead.
func (e *Estimator) EstimateTools(tools []map[string]any) int {
	tok := e.tokenizerHandle()

	total := 0
	for _, t := range tools {
		total += toolOverhead
		if name, ok := t["name"].(string); ok {
			total += tok.count(name)
		}
		if desc, ok := t["description"].(string); ok {
			total += tok.count(desc)
		}
		if params, ok := t["parameters"]; ok && params != nil {
			schema, err := json.Marshal(params)
			if err == nil {
				total += tok.count(string(schema))
			}
		}
	}
	return total
}

// EstimateRequest is the authoritative pre-flight estimate for one
// provider call: system prompt plus messages plus tool schemas.
func (e *Estimator) EstimateRequest(systemPrompt string, msgs []llm.Message, tools []map[string]any) int {
	return e.EstimateText(systemPrompt) +
		e.EstimateMessages(msgs) +
		e.EstimateTools(tools) +
		replyPrimer
}

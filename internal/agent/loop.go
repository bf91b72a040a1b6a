// Package agent implements the turn-processing loop at the heart of
// the assistant. A turn takes a user message, runs the model with the
// registered tools until it produces a final answer, and persists both
// the updated conversation and an execution trace.
package agent

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/valet-agent/valet/internal/config"
	"github.com/valet-agent/valet/internal/contextmgr"
	"github.com/valet-agent/valet/internal/convo"
	"github.com/valet-agent/valet/internal/events"
	"github.com/valet-agent/valet/internal/llm"
	"github.com/valet-agent/valet/internal/prompts"
	"github.com/valet-agent/valet/internal/tokens"
	"github.com/valet-agent/valet/internal/tools"
	"github.com/valet-agent/valet/internal/trace"
)

// Config wires the loop's collaborators. Store, Client, Registry and
// Estimator are required; the rest are optional.
type Config struct {
	Store     convo.Store
	Sink      trace.Sink
	Client    llm.Client
	Registry  *tools.Registry
	Estimator *tokens.Estimator
	// Context applies summarization before each turn. Nil disables
	// context management entirely.
	Context *contextmgr.Manager
	Bus     *events.Bus
	Limits  SafetyLimits
	Model   string
	Pricing map[string]config.PricingEntry
	// SystemPrompt overrides the default system prompt when non-empty.
	// Mainly useful in tests.
	SystemPrompt string
	Logger       *slog.Logger
}

// Loop orchestrates a single conversational turn end to end.
type Loop struct {
	store     convo.Store
	sink      trace.Sink
	client    llm.Client
	registry  *tools.Registry
	estimator *tokens.Estimator
	ctxmgr    *contextmgr.Manager
	bus       *events.Bus
	limits    SafetyLimits
	model     string
	pricing   map[string]config.PricingEntry
	system    string
	logger    *slog.Logger
}

// Response is the outcome of a successfully completed turn.
type Response struct {
	// Content is the assistant's final text, accumulated across
	// iterations.
	Content string
	// Conversation is the persisted post-turn conversation.
	Conversation *convo.Conversation
	// InputTokens and OutputTokens are summed across all provider
	// calls made during the turn.
	InputTokens  int
	OutputTokens int
	// Trace is the execution trace for this turn. Present even when
	// trace persistence failed.
	Trace *trace.Execution
}

// New creates a Loop from the given configuration.
func New(cfg Config) *Loop {
	cfg.Limits.applyDefaults()
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Loop{
		store:     cfg.Store,
		sink:      cfg.Sink,
		client:    cfg.Client,
		registry:  cfg.Registry,
		estimator: cfg.Estimator,
		ctxmgr:    cfg.Context,
		bus:       cfg.Bus,
		limits:    cfg.Limits,
		model:     cfg.Model,
		pricing:   cfg.Pricing,
		system:    cfg.SystemPrompt,
		logger:    logger,
	}
}

// ProcessMessage runs one full turn: load or create the conversation,
// summarize if needed, call the model with tools until it stops
// requesting them, then persist the conversation and the trace.
//
// The stored conversation is only written on success; every failure
// path returns before the store is touched, so a failed turn leaves no
// partial state behind.
func (l *Loop) ProcessMessage(ctx context.Context, userText, conversationID string) (*Response, error) {
	startedAt := time.Now()

	var conv *convo.Conversation
	var err error
	if conversationID == "" {
		conv, err = l.store.CreateNew(ctx)
		if err != nil {
			return nil, &PersistenceError{Op: "create", Err: err}
		}
	} else {
		conv, err = l.store.Load(ctx, conversationID)
		if err != nil {
			return nil, &PersistenceError{Op: "load", Err: err}
		}
	}

	l.bus.Publish(events.Event{
		Source: events.SourceAgent,
		Kind:   events.KindTurnStart,
		Data:   map[string]any{"conversation_id": conv.ID, "input_len": len(userText)},
	})

	if l.ctxmgr != nil {
		before := conv.TokenCount
		conv, err = l.ctxmgr.Apply(ctx, conv)
		if err != nil {
			return nil, &ContextManagementError{Err: err}
		}
		if conv.TokenCount < before {
			l.bus.Publish(events.Event{
				Source: events.SourceAgent,
				Kind:   events.KindSummarized,
				Data: map[string]any{
					"conversation_id": conv.ID,
					"tokens_before":   before,
					"tokens_after":    conv.TokenCount,
				},
			})
		}
	}

	// Work on a copy so an aborted turn never leaves half-appended
	// messages on the caller's conversation.
	work := conv.Clone()
	work.Messages = append(work.Messages, convo.Message{
		Role:      "user",
		Content:   userText,
		Timestamp: startedAt,
	})

	system := l.system
	if system == "" {
		system = prompts.System(startedAt)
	}
	schemas := l.registry.Schemas()

	var (
		finalText  string
		iterations []trace.Iteration
		totalIn    int
		totalOut   int
		answered   bool
	)

	for i := 1; i <= l.limits.MaxIterations; i++ {
		msgs := convo.LLMMessages(work.Messages)

		est := l.estimator.EstimateRequest(system, msgs, schemas)
		if est > l.limits.HardTokenLimit {
			return nil, fmt.Errorf("estimated request of %d tokens exceeds limit of %d: %w",
				est, l.limits.HardTokenLimit, ErrContextOverflow)
		}

		l.bus.Publish(events.Event{
			Source: events.SourceAgent,
			Kind:   events.KindLLMCall,
			Data: map[string]any{
				"conversation_id": work.ID,
				"iteration":       i,
				"model":           l.model,
				"est_tokens":      est,
			},
		})

		req := make([]llm.Message, 0, len(msgs)+1)
		req = append(req, llm.Message{Role: "system", Content: system})
		req = append(req, msgs...)

		resp, err := l.client.Chat(ctx, l.model, req, schemas, l.limits.MaxOutputTokens)
		if err != nil {
			return nil, &ProviderError{Iteration: i, Err: err}
		}
		totalIn += resp.InputTokens
		totalOut += resp.OutputTokens

		l.bus.Publish(events.Event{
			Source: events.SourceAgent,
			Kind:   events.KindLLMResponse,
			Data: map[string]any{
				"conversation_id": work.ID,
				"iteration":       i,
				"stop_reason":     resp.StopReason,
				"tokens_in":       resp.InputTokens,
				"tokens_out":      resp.OutputTokens,
				"tool_calls":      len(resp.Message.ToolCalls),
			},
		})

		if resp.Message.Content != "" {
			if finalText != "" {
				finalText += "\n\n"
			}
			finalText += resp.Message.Content
		}

		iter := trace.Iteration{
			Number:       i,
			InputTokens:  resp.InputTokens,
			OutputTokens: resp.OutputTokens,
			StopReason:   resp.StopReason,
			Timestamp:    time.Now(),
		}

		work.Messages = append(work.Messages, convo.Message{
			Role:      "assistant",
			Content:   resp.Message.Content,
			ToolCalls: resp.Message.ToolCalls,
			Timestamp: time.Now(),
		})

		if len(resp.Message.ToolCalls) == 0 {
			iterations = append(iterations, iter)
			answered = true
			break
		}

		for _, tc := range resp.Message.ToolCalls {
			iter.ToolCalls = append(iter.ToolCalls, l.dispatchTool(ctx, work, tc))
		}
		iterations = append(iterations, iter)
	}

	completedAt := time.Now()
	traceID, err := uuid.NewV7()
	if err != nil {
		traceID = uuid.New()
	}
	ex := &trace.Execution{
		ID:             traceID.String(),
		ConversationID: work.ID,
		UserInput:      userText,
		FinalText:      finalText,
		Model:          l.model,
		StartedAt:      startedAt,
		CompletedAt:    completedAt,
		Duration:       completedAt.Sub(startedAt),
		InputTokens:    totalIn,
		OutputTokens:   totalOut,
		CostUSD:        trace.Cost(l.model, totalIn, totalOut, l.pricing),
		Iterations:     iterations,
	}

	if !answered {
		// The provider calls happened and cost money even though the
		// turn failed, so the trace is still recorded. The conversation
		// is not saved.
		l.saveTrace(ctx, ex)
		return nil, fmt.Errorf("no final answer after %d iterations: %w",
			l.limits.MaxIterations, ErrIterationLimit)
	}

	work.LastMessageAt = completedAt
	work.TokenCount = l.estimator.EstimateMessages(convo.LLMMessages(work.Messages))

	if err := l.store.Save(ctx, work); err != nil {
		return nil, &PersistenceError{Op: "save", Err: err}
	}

	l.saveTrace(ctx, ex)

	l.bus.Publish(events.Event{
		Source: events.SourceAgent,
		Kind:   events.KindTurnComplete,
		Data: map[string]any{
			"conversation_id": work.ID,
			"iterations":      len(iterations),
			"tokens_in":       totalIn,
			"tokens_out":      totalOut,
			"cost_usd":        ex.CostUSD,
			"elapsed_ms":      ex.Duration.Milliseconds(),
		},
	})

	l.logger.Info("turn complete",
		"conversation", work.ID,
		"iterations", len(iterations),
		"tokens_in", totalIn,
		"tokens_out", totalOut,
		"cost_usd", ex.CostUSD,
		"elapsed", ex.Duration.Round(time.Millisecond),
	)

	return &Response{
		Content:      finalText,
		Conversation: work,
		InputTokens:  totalIn,
		OutputTokens: totalOut,
		Trace:        ex,
	}, nil
}

// saveTrace persists the execution best effort. Losing a trace costs
// observability, not correctness, so failures are logged and dropped.
func (l *Loop) saveTrace(ctx context.Context, ex *trace.Execution) {
	if l.sink == nil {
		return
	}
	if err := l.sink.Save(ctx, ex); err != nil {
		l.logger.Warn("trace save failed", "trace", ex.ID, "error", err)
	}
}

// dispatchTool executes one tool call, appends the result message to
// the working conversation, and returns the invocation record. Tool
// failures are not fatal: the error text is fed back to the model as
// the tool result so it can recover.
func (l *Loop) dispatchTool(ctx context.Context, work *convo.Conversation, tc llm.ToolCall) trace.ToolInvocation {
	l.bus.Publish(events.Event{
		Source: events.SourceAgent,
		Kind:   events.KindToolCall,
		Data:   map[string]any{"conversation_id": work.ID, "tool": tc.Name, "call_id": tc.ID},
	})

	start := time.Now()
	result := l.registry.Dispatch(ctx, tc.Name, tc.Arguments)
	end := time.Now()

	content := result.Data
	if !result.OK {
		content = "Error: " + result.Err
		l.logger.Warn("tool failed", "tool", tc.Name, "error", result.Err)
	}

	work.Messages = append(work.Messages, convo.Message{
		Role:       "tool",
		Content:    content,
		ToolCallID: tc.ID,
		Timestamp:  end,
	})

	l.bus.Publish(events.Event{
		Source: events.SourceAgent,
		Kind:   events.KindToolDone,
		Data: map[string]any{
			"conversation_id": work.ID,
			"tool":            tc.Name,
			"ok":              result.OK,
			"duration_ms":     end.Sub(start).Milliseconds(),
		},
	})

	return trace.ToolInvocation{
		ToolName:  tc.Name,
		CallID:    tc.ID,
		Input:     tc.Arguments,
		Result:    content,
		Success:   result.OK,
		StartedAt: start,
		EndedAt:   end,
		Duration:  end.Sub(start),
	}
}

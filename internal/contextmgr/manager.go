// Package contextmgr compresses older conversation history into a
// synthetic summary message before the transcript can overflow the
// provider's context window. Summarization is all-or-nothing: on any
// failure the caller's conversation is left untouched.
package contextmgr

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/valet-agent/valet/internal/convo"
	"github.com/valet-agent/valet/internal/llm"
	"github.com/valet-agent/valet/internal/prompts"
	"github.com/valet-agent/valet/internal/tokens"
)

// ErrInsufficientHistory is returned when there are no messages beyond
// the keep-recent window, so there is nothing to compress.
var ErrInsufficientHistory = errors.New("not enough history to summarize")

// ProviderError wraps a failed summarization provider call so callers
// can distinguish it from logic errors.
type ProviderError struct {
	Err error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("summarization provider call failed: %v", e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// Config controls when and how summarization runs.
type Config struct {
	// Threshold is the conversation token count at which summarization
	// triggers. Zero disables summarization entirely.
	Threshold int
	// KeepRecent messages are preserved verbatim (default 10).
	KeepRecent int
	// Model used for the summary call.
	Model string
	// MaxOutputTokens caps the summary response (default 1024).
	MaxOutputTokens int
}

// Manager performs threshold-gated conversation summarization.
type Manager struct {
	client    llm.Client
	estimator *tokens.Estimator
	config    Config
	logger    *slog.Logger
}

// NewManager creates a context manager. The estimator must be the same
// instance the agent loop uses, so token accounting stays consistent.
func NewManager(client llm.Client, estimator *tokens.Estimator, config Config, logger *slog.Logger) *Manager {
	if config.KeepRecent <= 0 {
		config.KeepRecent = 10
	}
	if config.MaxOutputTokens <= 0 {
		config.MaxOutputTokens = 1024
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		client:    client,
		estimator: estimator,
		config:    config,
		logger:    logger,
	}
}

// NeedsSummarization reports whether the conversation's tracked token
// count has reached the threshold. Pure predicate, no side effects.
func NeedsSummarization(c *convo.Conversation, threshold int) bool {
	return c.TokenCount >= threshold
}

// SummaryResult is the outcome of one summarization pass.
type SummaryResult struct {
	// Messages is the new transcript: one synthetic summary message
	// followed by the retained recent messages.
	Messages []convo.Message
	Metadata convo.SummaryMetadata
}

// SummarizeOldMessages compresses all but the most recent keepRecent
// messages into a single synthetic user-role summary message. The
// input slice is never mutated.
func (m *Manager) SummarizeOldMessages(ctx context.Context, messages []convo.Message, keepRecent int) (*SummaryResult, error) {
	if len(messages) <= keepRecent {
		return nil, fmt.Errorf("%w: %d messages, keeping %d", ErrInsufficientHistory, len(messages), keepRecent)
	}

	old := messages[:len(messages)-keepRecent]
	recent := messages[len(messages)-keepRecent:]

	transcript := flattenTranscript(old)
	tokensBefore := m.estimator.EstimateMessages(convo.LLMMessages(messages))

	m.logger.Debug("summarizing conversation history",
		"old_messages", len(old),
		"kept_messages", len(recent),
		"tokens_before", tokensBefore,
		"model", m.config.Model,
	)

	resp, err := m.client.Chat(ctx,
		m.config.Model,
		[]llm.Message{{Role: "user", Content: prompts.Summary(transcript)}},
		nil,
		m.config.MaxOutputTokens,
	)
	if err != nil {
		return nil, &ProviderError{Err: err}
	}

	summaryMsg := convo.Message{
		Role:      "user",
		Content:   prompts.WrapSummary(resp.Message.Content, len(old)),
		Timestamp: time.Now().UTC(),
	}

	newMessages := make([]convo.Message, 0, 1+len(recent))
	newMessages = append(newMessages, summaryMsg)
	newMessages = append(newMessages, recent...)

	tokensAfter := m.estimator.EstimateMessages(convo.LLMMessages(newMessages))

	return &SummaryResult{
		Messages: newMessages,
		Metadata: convo.SummaryMetadata{
			Timestamp:     summaryMsg.Timestamp,
			OriginalCount: len(messages),
			KeptCount:     len(recent),
			TokensBefore:  tokensBefore,
			TokensAfter:   tokensAfter,
		},
	}, nil
}

// Apply runs summarization against the conversation if its token count
// has reached the threshold. Below threshold (or when disabled) the
// input is returned unchanged. On success a new Conversation is
// returned with messages replaced, the token count refreshed, and the
// metadata appended; on failure the error propagates and the input is
// untouched.
func (m *Manager) Apply(ctx context.Context, c *convo.Conversation) (*convo.Conversation, error) {
	if m.config.Threshold <= 0 || !NeedsSummarization(c, m.config.Threshold) {
		return c, nil
	}

	result, err := m.SummarizeOldMessages(ctx, c.Messages, m.config.KeepRecent)
	if err != nil {
		return nil, err
	}

	out := c.Clone()
	out.Messages = result.Messages
	out.TokenCount = result.Metadata.TokensAfter
	out.Summaries = append(out.Summaries, result.Metadata)

	m.logger.Info("conversation summarized",
		"conversation", c.ID,
		"original_messages", result.Metadata.OriginalCount,
		"kept_messages", result.Metadata.KeptCount,
		"tokens_before", result.Metadata.TokensBefore,
		"tokens_after", result.Metadata.TokensAfter,
	)

	return out, nil
}

// flattenTranscript renders messages as role-labeled text for the
// summary prompt. Tool calls and tool results are skipped; only plain
// text content is included.
func flattenTranscript(messages []convo.Message) string {
	var sb strings.Builder
	for _, msg := range messages {
		if msg.Role == "tool" || msg.Content == "" {
			continue
		}
		role := msg.Role
		if len(role) > 0 {
			role = strings.ToUpper(role[:1]) + role[1:]
		}
		sb.WriteString(fmt.Sprintf("%s: %s\n\n", role, msg.Content))
	}
	return sb.String()
}

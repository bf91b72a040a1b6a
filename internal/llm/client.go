package llm

import "context"

// Client is the interface that all LLM providers must implement.
type Client interface {
	// Chat sends a chat completion request and returns the response.
	// maxOutputTokens caps the length of a single response.
	Chat(ctx context.Context, model string, messages []Message, tools []map[string]any, maxOutputTokens int) (*ChatResponse, error)

	// Ping checks if the provider is reachable with the configured credentials.
	Ping(ctx context.Context) error
}

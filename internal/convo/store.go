package convo

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Store.Load when no conversation exists
// with the requested id.
var ErrNotFound = errors.New("conversation not found")

// Store persists conversations between turns.
type Store interface {
	// Load returns the conversation with the given id, or ErrNotFound.
	Load(ctx context.Context, id string) (*Conversation, error)

	// Save persists the full conversation state atomically.
	Save(ctx context.Context, c *Conversation) error

	// CreateNew creates and persists an empty conversation with a
	// fresh id and zero token count.
	CreateNew(ctx context.Context) (*Conversation, error)
}

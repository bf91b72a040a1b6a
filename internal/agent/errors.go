package agent

import (
	"errors"
	"fmt"
)

var (
	// ErrContextOverflow means the estimated request would exceed the
	// hard token limit. Raised before any provider call is made.
	ErrContextOverflow = errors.New("context window overflow")

	// ErrIterationLimit means the turn used its full iteration budget
	// without the model producing a final answer.
	ErrIterationLimit = errors.New("iteration limit exceeded")
)

// PersistenceError wraps a conversation store failure. Op names the
// store operation that failed.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("conversation %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// ContextManagementError wraps a summarization failure that aborted
// the turn. The stored conversation is untouched when this is returned.
type ContextManagementError struct {
	Err error
}

func (e *ContextManagementError) Error() string {
	return fmt.Sprintf("context management: %v", e.Err)
}

func (e *ContextManagementError) Unwrap() error { return e.Err }

// ProviderError wraps a model API failure, tagged with the iteration
// at which it occurred.
type ProviderError struct {
	Iteration int
	Err       error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider call (iteration %d): %v", e.Iteration, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

package trace

import "context"

// Sink persists execution traces. Save failures are non-fatal to the
// caller: the agent loop logs and swallows them so a trace write can
// never fail an otherwise-successful turn.
type Sink interface {
	Save(ctx context.Context, ex *Execution) error
}

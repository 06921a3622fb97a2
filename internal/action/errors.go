package action

import "errors"

// Sentinel errors for action execution.
var (
	// ErrNilCapability is returned when the executor has no capability to run against.
	ErrNilCapability = errors.New("state capability cannot be nil")

	// ErrCompletionClosed is returned when a pending result's completion
	// channel closes without delivering an outcome.
	ErrCompletionClosed = errors.New("completion channel closed without a result")

	// ErrExecutionPanic is returned when the capability panics while
	// processing an action.
	ErrExecutionPanic = errors.New("state capability panicked")
)

package thunk

import (
	"errors"
	"fmt"
)

// Sentinel errors for the registry and scheduler.
var (
	// ErrQueueOverflow is returned when an enqueue would exceed the
	// scheduler's queue bound. Typed details travel in OverflowError.
	ErrQueueOverflow = errors.New("task queue overflow")

	// ErrSchedulerDestroyed is returned when work is submitted to a
	// destroyed scheduler.
	ErrSchedulerDestroyed = errors.New("scheduler has been destroyed")

	// ErrThunkTerminal is returned when a task is enqueued for a thunk
	// that already reached COMPLETED or FAILED.
	ErrThunkTerminal = errors.New("thunk is in a terminal state")

	// ErrNilTask is returned when a nil task is enqueued.
	ErrNilTask = errors.New("task cannot be nil")

	// ErrNilHandler is returned when a task has no handler.
	ErrNilHandler = errors.New("task handler cannot be nil")
)

// OverflowError reports a rejected enqueue with the attempted queue size
// and the configured limit.
type OverflowError struct {
	// Size is the queue size the enqueue would have produced.
	Size int

	// Limit is the configured maximum queue size.
	Limit int
}

// Error implements the error interface.
func (e *OverflowError) Error() string {
	return fmt.Sprintf("task queue overflow: size %d exceeds limit %d", e.Size, e.Limit)
}

// Unwrap lets errors.Is match ErrQueueOverflow.
func (e *OverflowError) Unwrap() error {
	return ErrQueueOverflow
}

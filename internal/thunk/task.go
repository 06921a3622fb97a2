package thunk

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Handler is the executable body of a task. The context is cancelled when
// the scheduler is destroyed.
type Handler func(ctx context.Context) error

// Task is the scheduler's executable envelope wrapping one unit of a
// thunk's work.
type Task struct {
	// ID uniquely identifies the task.
	ID string

	// ThunkID links the task to its owning thunk.
	ThunkID string

	// Priority orders the task in the queue. Higher values are more urgent.
	Priority int

	// CanRunConcurrently exempts the task from the exclusion gate.
	CanRunConcurrently bool

	// CreatedAt orders tasks within a priority band (FIFO).
	CreatedAt time.Time

	// StartedAt is set by the scheduler when the task is admitted.
	StartedAt time.Time

	// Handler is the task body.
	Handler Handler

	// seq breaks CreatedAt ties deterministically; assigned at enqueue.
	seq uint64
}

// NewTask creates a task for a thunk, inheriting its priority and
// concurrency eligibility.
func NewTask(t *Thunk, handler Handler) *Task {
	return &Task{
		ID:                 uuid.NewString(),
		ThunkID:            t.ID(),
		Priority:           t.Priority(),
		CanRunConcurrently: t.CanRunConcurrently(),
		CreatedAt:          time.Now(),
		Handler:            handler,
	}
}

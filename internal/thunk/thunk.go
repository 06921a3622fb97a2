package thunk

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// State represents the lifecycle state of a thunk.
type State int32

const (
	// StatePending means the thunk is created but no task has started.
	StatePending State = iota

	// StateExecuting means at least one of the thunk's tasks has started.
	StateExecuting

	// StateCompleted means every dispatched action retired successfully.
	StateCompleted

	// StateFailed means a contained action failed and was not recovered.
	StateFailed
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateExecuting:
		return "executing"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal returns true for COMPLETED and FAILED.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

// Thunk is a logical unit of work that may dispatch zero or more actions
// over time. State transitions are the only legal mutations and only
// advance forward; terminal states are final.
type Thunk struct {
	id         string
	priority   int
	concurrent bool
	createdAt  time.Time

	state atomic.Int32

	mu        sync.Mutex
	startedAt time.Time
}

// Option configures a new thunk.
type Option func(*Thunk)

// WithPriority sets the thunk's priority. Higher values are more urgent.
func WithPriority(p int) Option {
	return func(t *Thunk) {
		t.priority = p
	}
}

// WithConcurrent marks the thunk as eligible to run alongside any other
// work, exempting its tasks from the mutual-exclusion gate.
func WithConcurrent() Option {
	return func(t *Thunk) {
		t.concurrent = true
	}
}

// WithID sets an explicit thunk ID instead of a generated one.
func WithID(id string) Option {
	return func(t *Thunk) {
		if id != "" {
			t.id = id
		}
	}
}

// New creates a thunk in StatePending.
func New(opts ...Option) *Thunk {
	t := &Thunk{
		id:        uuid.NewString(),
		createdAt: time.Now(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// ID returns the thunk's unique identifier.
func (t *Thunk) ID() string {
	return t.id
}

// Priority returns the thunk's priority.
func (t *Thunk) Priority() int {
	return t.priority
}

// CanRunConcurrently returns true if the thunk bypasses the exclusion gate.
func (t *Thunk) CanRunConcurrently() bool {
	return t.concurrent
}

// CreatedAt returns when the thunk was created.
func (t *Thunk) CreatedAt() time.Time {
	return t.createdAt
}

// StartedAt returns when the thunk's first task started, or the zero time.
func (t *Thunk) StartedAt() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.startedAt
}

// State returns the current lifecycle state.
func (t *Thunk) State() State {
	return State(t.state.Load())
}

// MarkExecuting transitions PENDING -> EXECUTING.
// Returns false if the thunk already left PENDING.
func (t *Thunk) MarkExecuting() bool {
	if !t.state.CompareAndSwap(int32(StatePending), int32(StateExecuting)) {
		return false
	}
	t.mu.Lock()
	t.startedAt = time.Now()
	t.mu.Unlock()
	return true
}

// MarkCompleted transitions EXECUTING -> COMPLETED.
// Returns false if the thunk is not executing.
func (t *Thunk) MarkCompleted() bool {
	return t.state.CompareAndSwap(int32(StateExecuting), int32(StateCompleted))
}

// MarkFailed transitions PENDING or EXECUTING -> FAILED.
// Returns false if the thunk is already terminal.
func (t *Thunk) MarkFailed() bool {
	if t.state.CompareAndSwap(int32(StateExecuting), int32(StateFailed)) {
		return true
	}
	return t.state.CompareAndSwap(int32(StatePending), int32(StateFailed))
}

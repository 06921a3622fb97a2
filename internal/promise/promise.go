package promise

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// Outcome is the terminal value of a settled promise.
type Outcome struct {
	// Value is the result on success.
	Value any

	// Err is the failure, if any.
	Err error
}

// Promise is a single-assignment future. It is safe for concurrent use.
type Promise struct {
	mu      sync.Mutex
	done    chan struct{}
	settled bool
	outcome Outcome
}

// New creates an unsettled promise.
func New() *Promise {
	return &Promise{done: make(chan struct{})}
}

// Resolved creates a promise already settled with the given value.
func Resolved(value any) *Promise {
	p := New()
	p.Resolve(value)
	return p
}

// Rejected creates a promise already settled with the given error.
func Rejected(err error) *Promise {
	p := New()
	p.Reject(err)
	return p
}

// Resolve settles the promise with a value.
// Returns false if the promise was already settled.
func (p *Promise) Resolve(value any) bool {
	return p.settle(Outcome{Value: value})
}

// Reject settles the promise with an error.
// Returns false if the promise was already settled.
func (p *Promise) Reject(err error) bool {
	return p.settle(Outcome{Err: err})
}

// settle records the outcome exactly once.
func (p *Promise) settle(o Outcome) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.settled {
		return false
	}
	p.settled = true
	p.outcome = o
	close(p.done)
	return true
}

// Settled returns true if the promise has been resolved or rejected.
func (p *Promise) Settled() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.settled
}

// Done returns a channel closed when the promise settles.
func (p *Promise) Done() <-chan struct{} {
	return p.done
}

// Await blocks until the promise settles or the context is cancelled.
func (p *Promise) Await(ctx context.Context) (any, error) {
	select {
	case <-p.done:
		return p.outcome.Value, p.outcome.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Outcome returns the settled outcome.
// It is only meaningful after Done is closed.
func (p *Promise) Outcome() Outcome {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.outcome
}

// TimeoutError marks an action that was force-completed because its safety
// timer fired before the state capability answered.
type TimeoutError struct {
	// ActionID identifies the action that never completed.
	ActionID string

	// After is the timeout that elapsed.
	After time.Duration
}

// Error implements the error interface.
func (e *TimeoutError) Error() string {
	return fmt.Sprintf("action %s timed out after %s", e.ActionID, e.After)
}

// IsTimeout reports whether err marks a timed-out action.
func IsTimeout(err error) bool {
	var te *TimeoutError
	return errors.As(err, &te)
}

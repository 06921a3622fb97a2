package action

import (
	"context"
	"fmt"
	"runtime/debug"

	"github.com/goosewobbler/zubridge/internal/log"
)

// StateProcessor is the slice of the state capability the executor needs.
type StateProcessor interface {
	ProcessAction(a Action) Result
}

// Executor pushes one action through the state capability and normalizes
// the three supported result shapes into a (value, error) pair.
type Executor struct {
	capability StateProcessor
	logger     *log.Logger
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithExecutorLogger sets the executor's logger.
func WithExecutorLogger(l *log.Logger) ExecutorOption {
	return func(e *Executor) {
		if l != nil {
			e.logger = l
		}
	}
}

// NewExecutor creates an executor bound to a state capability.
func NewExecutor(capability StateProcessor, opts ...ExecutorOption) *Executor {
	e := &Executor{
		capability: capability,
		logger:     log.NullLogger,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute runs a single action against the capability.
//
// Result normalization:
//   - Ok(value) is returned as-is.
//   - Fail(err) is returned as a failure even though the call itself did
//     not panic; the capability signaled the error out-of-band.
//   - Pending(completion) is awaited and its outcome becomes the action's
//     outcome; context cancellation aborts the wait.
//
// Panics in the capability are recovered into errors so a broken reducer
// cannot take the scheduler down with it.
func (e *Executor) Execute(ctx context.Context, a Action) (value any, err error) {
	if e.capability == nil {
		return nil, ErrNilCapability
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	defer func() {
		if r := recover(); r != nil {
			stack := debug.Stack()
			e.logger.Error("capability panic on action %s (%s): %v", a.ID, a.Type, r)
			e.logger.Debug("panic stack: %s", stack)
			value = nil
			err = fmt.Errorf("%w: %v", ErrExecutionPanic, r)
		}
	}()

	result := e.capability.ProcessAction(a)

	switch result.Kind() {
	case KindValue:
		return result.Value(), nil

	case KindError:
		return nil, result.Err()

	case KindPending:
		select {
		case outcome, ok := <-result.Completion():
			if !ok {
				return nil, ErrCompletionClosed
			}
			return outcome.Value, outcome.Err
		case <-ctx.Done():
			return nil, ctx.Err()
		}

	default:
		return nil, fmt.Errorf("unknown result kind %d for action %s", result.Kind(), a.ID)
	}
}

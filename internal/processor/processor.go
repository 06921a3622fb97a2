package processor

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/goosewobbler/zubridge/internal/action"
	"github.com/goosewobbler/zubridge/internal/log"
	"github.com/goosewobbler/zubridge/internal/promise"
	"github.com/goosewobbler/zubridge/internal/thunk"
)

// DefaultActionTimeout bounds how long an action may stay in flight before
// it is force-completed as timed out. Larger on slower platforms.
const DefaultActionTimeout = 30 * time.Second

// CompleteFunc is invoked exactly once when an action retires, whether it
// succeeded, failed, or timed out.
type CompleteFunc func(actionID string)

// ExecutionObserver receives hooks around every action execution.
// Used by the bridge to drive its middleware pipeline.
type ExecutionObserver interface {
	BeforeExecute(ctx context.Context, a action.Action)
	AfterExecute(ctx context.Context, a action.Action, value any, err error)
}

// pendingAction is one in-flight action's tracker entry.
type pendingAction struct {
	promise *promise.Promise
	timer   *time.Timer
	cancel  context.CancelFunc
	retired bool
}

// Stats contains cumulative processor counters.
type Stats struct {
	// Processed is the total number of actions accepted.
	Processed uint64

	// Succeeded is the number of actions that completed normally.
	Succeeded uint64

	// Failed is the number of actions whose execution errored.
	Failed uint64

	// TimedOut is the number of actions force-completed by the safety timer.
	TimedOut uint64

	// Skipped is the number of actions dropped because their thunk was
	// already terminal.
	Skipped uint64

	// Pending is the current number of in-flight actions.
	Pending int
}

// Processor owns per-thunk outstanding-action sets and the per-action
// completion tracker. All bookkeeping is guarded by a single mutex.
type Processor struct {
	registry *thunk.Registry
	executor *action.Executor
	timeout  time.Duration
	logger   *log.Logger
	observer ExecutionObserver

	mu          sync.Mutex
	outstanding map[string]map[string]struct{}
	owners      map[string]string
	pending     map[string]*pendingAction
	destroyed   bool

	processed atomic.Uint64
	succeeded atomic.Uint64
	failed    atomic.Uint64
	timedOut  atomic.Uint64
	skipped   atomic.Uint64
}

// Option configures a Processor.
type Option func(*Processor)

// WithTimeout sets the per-action completion timeout.
func WithTimeout(d time.Duration) Option {
	return func(p *Processor) {
		if d > 0 {
			p.timeout = d
		}
	}
}

// WithLogger sets the processor's logger.
func WithLogger(l *log.Logger) Option {
	return func(p *Processor) {
		if l != nil {
			p.logger = l.WithComponent("processor")
		}
	}
}

// WithObserver sets the execution observer.
func WithObserver(o ExecutionObserver) Option {
	return func(p *Processor) {
		p.observer = o
	}
}

// New creates a processor over the given registry and executor.
func New(registry *thunk.Registry, executor *action.Executor, opts ...Option) *Processor {
	p := &Processor{
		registry:    registry,
		executor:    executor,
		timeout:     DefaultActionTimeout,
		logger:      log.NullLogger,
		outstanding: make(map[string]map[string]struct{}),
		owners:      make(map[string]string),
		pending:     make(map[string]*pendingAction),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ProcessAction registers the action as outstanding for its thunk,
// executes it, and retires it when the outcome is known. onComplete fires
// exactly once per accepted action, even when execution fails or times
// out, so the thunk can still reach a terminal state.
//
// An empty thunkID is a programmer error and fails immediately. A thunk
// already in a terminal state is a silent no-op: the returned promise is
// settled with nil and nothing executes.
func (p *Processor) ProcessAction(ctx context.Context, thunkID string, a action.Action, th *thunk.Thunk, onComplete CompleteFunc) (*promise.Promise, error) {
	if thunkID == "" {
		return nil, ErrMissingThunkID
	}
	if onComplete == nil {
		onComplete = func(string) {}
	}

	if th != nil && th.State().Terminal() {
		p.skipped.Add(1)
		p.logger.Debug("dropping action %s for terminal thunk %s", a.ID, thunkID)
		return promise.Resolved(nil), nil
	}

	a = a.EnsureID().WithParent(thunkID)

	p.mu.Lock()
	if p.destroyed {
		p.mu.Unlock()
		return nil, ErrProcessorDestroyed
	}

	set, ok := p.outstanding[thunkID]
	if !ok {
		set = make(map[string]struct{})
		p.outstanding[thunkID] = set
	}
	set[a.ID] = struct{}{}
	p.owners[a.ID] = thunkID

	execCtx, cancel := context.WithCancel(ctx)
	pa := &pendingAction{
		promise: promise.New(),
		cancel:  cancel,
	}
	p.pending[a.ID] = pa
	pa.timer = time.AfterFunc(p.timeout, func() {
		p.timeoutAction(a.ID, onComplete)
	})
	p.mu.Unlock()

	p.processed.Add(1)

	go p.execute(execCtx, a, th, pa, onComplete)

	return pa.promise, nil
}

// execute runs the action and retires it.
func (p *Processor) execute(ctx context.Context, a action.Action, th *thunk.Thunk, pa *pendingAction, onComplete CompleteFunc) {
	if p.observer != nil {
		p.observer.BeforeExecute(ctx, a)
	}

	value, err := p.executor.Execute(ctx, a)

	p.mu.Lock()
	if pa.retired {
		// The safety timer won; drop the late result.
		p.mu.Unlock()
		return
	}
	pa.retired = true
	pa.timer.Stop()
	pa.cancel()
	delete(p.pending, a.ID)

	if err != nil {
		p.failed.Add(1)
		// An unrecovered action failure is the thunk's failure. Cleanup
		// happens before the promise settles so completion bookkeeping
		// cannot race the terminal transition.
		if th != nil && th.MarkFailed() {
			p.cleanupLocked(th.ID())
		}
	} else {
		p.succeeded.Add(1)
	}
	p.mu.Unlock()

	if err != nil {
		p.logger.Warn("action %s (%s) failed: %v", a.ID, a.Type, err)
		pa.promise.Reject(err)
	} else {
		pa.promise.Resolve(value)
	}

	if p.observer != nil {
		p.observer.AfterExecute(ctx, a, value, err)
	}

	onComplete(a.ID)
}

// timeoutAction force-completes an action whose safety timer fired.
// The underlying execution is abandoned: its context is cancelled but the
// tracker does not wait for the capability to acknowledge.
func (p *Processor) timeoutAction(actionID string, onComplete CompleteFunc) {
	p.mu.Lock()
	pa, ok := p.pending[actionID]
	if !ok || pa.retired {
		p.mu.Unlock()
		return
	}
	pa.retired = true
	pa.cancel()
	delete(p.pending, actionID)
	p.mu.Unlock()

	p.timedOut.Add(1)
	p.logger.Warn("action %s timed out after %s", actionID, p.timeout)
	pa.promise.Reject(&promise.TimeoutError{ActionID: actionID, After: p.timeout})

	onComplete(actionID)
}

// HandleActionComplete removes a retiring action from its owning thunk's
// outstanding set. It reports the owning thunk completable iff the set
// emptied while the thunk is still EXECUTING.
func (p *Processor) HandleActionComplete(actionID string) (thunkID string, completable bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	thunkID, ok := p.owners[actionID]
	if !ok {
		return "", false
	}
	delete(p.owners, actionID)

	set := p.outstanding[thunkID]
	delete(set, actionID)
	if len(set) > 0 {
		return thunkID, false
	}
	delete(p.outstanding, thunkID)

	th, ok := p.registry.Get(thunkID)
	if !ok || th.State() != thunk.StateExecuting {
		return thunkID, false
	}
	return thunkID, true
}

// RequiresQueue reports whether an action must go through the scheduler.
// Actions marked BypassLock are exempt from the mutual-exclusion gate and
// may run immediately.
func (p *Processor) RequiresQueue(a action.Action) bool {
	return !a.BypassLock
}

// OutstandingCount returns the number of in-flight actions for a thunk.
func (p *Processor) OutstandingCount(thunkID string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.outstanding[thunkID])
}

// CleanupThunkActions drops all bookkeeping for a thunk. Must be called on
// every terminal transition to avoid unbounded growth. Pending completions
// are rejected rather than leaked.
func (p *Processor) CleanupThunkActions(thunkID string) {
	p.mu.Lock()
	abandoned := p.cleanupLocked(thunkID)
	p.mu.Unlock()

	for _, pa := range abandoned {
		pa.promise.Reject(ErrActionAbandoned)
	}
}

// cleanupLocked removes a thunk's bookkeeping and returns the pending
// entries it retired, so promises can be rejected outside the lock.
func (p *Processor) cleanupLocked(thunkID string) []*pendingAction {
	var abandoned []*pendingAction
	for actionID := range p.outstanding[thunkID] {
		delete(p.owners, actionID)
		if pa, ok := p.pending[actionID]; ok && !pa.retired {
			pa.retired = true
			pa.timer.Stop()
			pa.cancel()
			delete(p.pending, actionID)
			abandoned = append(abandoned, pa)
		}
	}
	delete(p.outstanding, thunkID)
	return abandoned
}

// Stats returns cumulative processor counters.
func (p *Processor) Stats() Stats {
	p.mu.Lock()
	pending := len(p.pending)
	p.mu.Unlock()

	return Stats{
		Processed: p.processed.Load(),
		Succeeded: p.succeeded.Load(),
		Failed:    p.failed.Load(),
		TimedOut:  p.timedOut.Load(),
		Skipped:   p.skipped.Load(),
		Pending:   pending,
	}
}

// Destroy stops every safety timer and rejects every pending completion.
// Safe to call more than once.
func (p *Processor) Destroy() {
	p.mu.Lock()
	if p.destroyed {
		p.mu.Unlock()
		return
	}
	p.destroyed = true

	var orphaned []*pendingAction
	for id, pa := range p.pending {
		if !pa.retired {
			pa.retired = true
			pa.timer.Stop()
			pa.cancel()
			orphaned = append(orphaned, pa)
		}
		delete(p.pending, id)
	}
	p.outstanding = make(map[string]map[string]struct{})
	p.owners = make(map[string]string)
	p.mu.Unlock()

	for _, pa := range orphaned {
		pa.promise.Reject(ErrProcessorDestroyed)
	}
}

package bridge

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/goosewobbler/zubridge/internal/action"
	"github.com/goosewobbler/zubridge/internal/batch"
	"github.com/goosewobbler/zubridge/internal/config"
	"github.com/goosewobbler/zubridge/internal/log"
	"github.com/goosewobbler/zubridge/internal/processor"
	"github.com/goosewobbler/zubridge/internal/promise"
	"github.com/goosewobbler/zubridge/internal/state"
	"github.com/goosewobbler/zubridge/internal/subscription"
	"github.com/goosewobbler/zubridge/internal/thunk"
)

// DispatchFunc dispatches follow-up work from inside a thunk body.
type DispatchFunc func(ctx context.Context, input any, payload ...any) *promise.Promise

// Thunk is a unit of work that may read state and dispatch further
// actions over time. Actions dispatched through the provided DispatchFunc
// share the thunk's identity and hold it open until they retire.
type Thunk func(ctx context.Context, getState func() state.State, dispatch DispatchFunc) (any, error)

// Stats aggregates counters from every component the bridge owns.
type Stats struct {
	Scheduler     thunk.SchedulerStats
	Queue         thunk.QueueStatus
	Processor     processor.Stats
	Subscriptions subscription.Stats

	// Batcher is nil when no transport is configured.
	Batcher *batch.Stats
}

// thunkRun tracks one dispatched thunk's result promise. The thunk
// resolves only after its body returned and its outstanding-action set
// emptied.
type thunkRun struct {
	promise  *promise.Promise
	value    any
	bodyDone bool
}

// Bridge is the dispatch facade.
type Bridge struct {
	cfg        config.Config
	logger     *log.Logger
	capability state.Capability

	registry  *thunk.Registry
	scheduler *thunk.Scheduler
	executor  *action.Executor
	processor *processor.Processor
	subs      *subscription.Manager
	batcher   *batch.Batcher

	middleware []Middleware
	transport  batch.SendFunc

	mu   sync.Mutex
	runs map[string]*thunkRun

	stateMu   sync.Mutex
	prevState state.State

	unsubscribe state.Unsubscribe
	destroyed   atomic.Bool
}

// Option configures a Bridge.
type Option func(*Bridge)

// WithConfig sets the full configuration. Defaults apply otherwise.
func WithConfig(cfg config.Config) Option {
	return func(b *Bridge) {
		b.cfg = cfg
	}
}

// WithLogger sets the bridge logger, shared with all owned components.
func WithLogger(l *log.Logger) Option {
	return func(b *Bridge) {
		if l != nil {
			b.logger = l.WithComponent("bridge")
		}
	}
}

// WithMiddleware appends middleware to the execution pipeline.
func WithMiddleware(mw ...Middleware) Option {
	return func(b *Bridge) {
		b.middleware = append(b.middleware, mw...)
	}
}

// WithTransport enables renderer-bound batching over the given send
// function. The batcher itself is built in New once the final config is
// known.
func WithTransport(send batch.SendFunc) Option {
	return func(b *Bridge) {
		b.transport = send
	}
}

// New creates a bridge over the given state capability.
func New(capability state.Capability, opts ...Option) (*Bridge, error) {
	if capability == nil {
		return nil, ErrNilCapability
	}

	b := &Bridge{
		cfg:        config.Default(),
		logger:     log.NullLogger,
		capability: capability,
		runs:       make(map[string]*thunkRun),
	}
	for _, opt := range opts {
		opt(b)
	}
	if err := b.cfg.Validate(); err != nil {
		return nil, err
	}

	b.registry = thunk.NewRegistry()
	b.scheduler = thunk.NewScheduler(b.registry,
		thunk.WithMaxQueueSize(b.cfg.Scheduler.MaxQueueSize),
		thunk.WithSchedulerLogger(b.logger),
	)
	b.executor = action.NewExecutor(capability, action.WithExecutorLogger(b.logger))

	procOpts := []processor.Option{
		processor.WithTimeout(b.cfg.ActionTimeout()),
		processor.WithLogger(b.logger),
	}
	if len(b.middleware) > 0 {
		procOpts = append(procOpts, processor.WithObserver(chain(b.middleware)))
	}
	b.processor = processor.New(b.registry, b.executor, procOpts...)

	b.subs = subscription.NewManager(subscription.WithLogger(b.logger))

	if b.transport != nil {
		batcher, err := batch.New(b.transport,
			batch.WithConfig(batch.Config{
				Window:                 b.cfg.BatchWindow(),
				MaxBatchSize:           b.cfg.Batcher.MaxBatchSize,
				PriorityFlushThreshold: b.cfg.Batcher.PriorityFlushThreshold,
				MaxQueueSize:           b.cfg.Batcher.MaxQueueSize,
			}),
			batch.WithLogger(b.logger),
		)
		if err != nil {
			return nil, err
		}
		b.batcher = batcher
	}

	b.prevState = capability.GetState()
	b.unsubscribe = capability.Subscribe(b.fanOut)

	return b, nil
}

// Dispatch turns its input into scheduled work and returns one promise
// for the result.
//
// Accepted inputs: a string action type with an optional payload, an
// action.Action (or pointer), or a Thunk function. Anything else is
// logged and rejected with ErrInvalidDispatch; nothing is scheduled.
func (b *Bridge) Dispatch(ctx context.Context, input any, payload ...any) *promise.Promise {
	if b.destroyed.Load() {
		return promise.Rejected(ErrBridgeDestroyed)
	}

	switch v := input.(type) {
	case string:
		return b.dispatchAction(ctx, action.New(v, firstPayload(payload)))
	case action.Action:
		return b.dispatchAction(ctx, v)
	case *action.Action:
		if v == nil {
			break
		}
		return b.dispatchAction(ctx, *v)
	case Thunk:
		return b.DispatchThunk(ctx, v)
	case func(context.Context, func() state.State, DispatchFunc) (any, error):
		return b.DispatchThunk(ctx, v)
	}

	b.logger.Error("invalid dispatch input of type %T", input)
	return promise.Rejected(fmt.Errorf("%w: got %T", ErrInvalidDispatch, input))
}

// DispatchThunk schedules a thunk through the registry and scheduler.
// The thunk options control priority and the concurrency gate.
func (b *Bridge) DispatchThunk(ctx context.Context, fn Thunk, opts ...thunk.Option) *promise.Promise {
	if b.destroyed.Load() {
		return promise.Rejected(ErrBridgeDestroyed)
	}
	if fn == nil {
		return promise.Rejected(fmt.Errorf("%w: nil thunk", ErrInvalidDispatch))
	}

	th := thunk.New(opts...)
	b.registry.Add(th)

	pr := promise.New()
	run := &thunkRun{promise: pr}
	b.mu.Lock()
	b.runs[th.ID()] = run
	b.mu.Unlock()

	task := thunk.NewTask(th, func(taskCtx context.Context) error {
		value, err := fn(taskCtx, b.capability.GetState, b.innerDispatch(th))
		if err != nil {
			b.failThunk(th.ID(), err)
			return err
		}

		b.mu.Lock()
		run.value = value
		run.bodyDone = true
		b.mu.Unlock()

		b.maybeCompleteThunk(th.ID())
		return nil
	})

	if err := b.scheduler.Enqueue(task); err != nil {
		b.dropRun(th.ID())
		pr.Reject(err)
		return pr
	}
	b.scheduler.ProcessQueue()
	return pr
}

// dispatchAction wraps a single action in an auto-thunk so queue
// discipline applies, unless the action bypasses the lock.
func (b *Bridge) dispatchAction(ctx context.Context, a action.Action) *promise.Promise {
	if a.Type == "" {
		b.logger.Error("dispatch of action with empty type")
		return promise.Rejected(fmt.Errorf("%w: empty action type", ErrInvalidDispatch))
	}
	if !b.processor.RequiresQueue(a) {
		return b.executeImmediate(ctx, a)
	}

	// The auto-thunk is non-concurrent: a plain action queues behind any
	// running exclusive thunk instead of interleaving with its writes.
	body := func(taskCtx context.Context, _ func() state.State, dispatch DispatchFunc) (any, error) {
		return dispatch(taskCtx, a).Await(taskCtx)
	}
	return b.DispatchThunk(ctx, body, thunk.WithPriority(a.Priority))
}

// executeImmediate runs a bypass-lock action outside the scheduler.
func (b *Bridge) executeImmediate(ctx context.Context, a action.Action) *promise.Promise {
	th := thunk.New(thunk.WithConcurrent(), thunk.WithPriority(a.Priority))
	b.registry.Add(th)
	th.MarkExecuting()

	out := promise.New()
	run := &thunkRun{promise: out}
	b.mu.Lock()
	b.runs[th.ID()] = run
	b.mu.Unlock()

	pa, err := b.processor.ProcessAction(ctx, th.ID(), a, th, b.onActionComplete)
	if err != nil {
		b.dropRun(th.ID())
		out.Reject(err)
		return out
	}

	go func() {
		value, err := pa.Await(context.Background())
		if err != nil {
			// The processor already marked the thunk failed and cleaned
			// its bookkeeping before settling.
			b.dropRun(th.ID())
			out.Reject(err)
			return
		}
		b.mu.Lock()
		run.value = value
		run.bodyDone = true
		b.mu.Unlock()
		b.maybeCompleteThunk(th.ID())
	}()
	return out
}

// innerDispatch returns the DispatchFunc handed to a thunk body. Actions
// go through the processor under the thunk's identity; nested thunk
// functions are scheduled independently.
func (b *Bridge) innerDispatch(th *thunk.Thunk) DispatchFunc {
	return func(ctx context.Context, input any, payload ...any) *promise.Promise {
		switch v := input.(type) {
		case string:
			return b.processForThunk(ctx, th, action.New(v, firstPayload(payload)))
		case action.Action:
			return b.processForThunk(ctx, th, v)
		case *action.Action:
			if v == nil {
				break
			}
			return b.processForThunk(ctx, th, *v)
		case Thunk:
			return b.DispatchThunk(ctx, v)
		case func(context.Context, func() state.State, DispatchFunc) (any, error):
			return b.DispatchThunk(ctx, v)
		}

		b.logger.Error("invalid inner dispatch input of type %T for thunk %s", input, th.ID())
		return promise.Rejected(fmt.Errorf("%w: got %T", ErrInvalidDispatch, input))
	}
}

func (b *Bridge) processForThunk(ctx context.Context, th *thunk.Thunk, a action.Action) *promise.Promise {
	pa, err := b.processor.ProcessAction(ctx, th.ID(), a, th, b.onActionComplete)
	if err != nil {
		return promise.Rejected(err)
	}
	return pa
}

// onActionComplete fires exactly once per accepted action.
func (b *Bridge) onActionComplete(actionID string) {
	thunkID, completable := b.processor.HandleActionComplete(actionID)
	if completable {
		b.maybeCompleteThunk(thunkID)
	}
}

// maybeCompleteThunk resolves the thunk's promise once its body returned
// and no actions remain outstanding. Safe to call from both the task
// handler and the completion callback; only one caller wins.
func (b *Bridge) maybeCompleteThunk(thunkID string) {
	b.mu.Lock()
	run, ok := b.runs[thunkID]
	if !ok || !run.bodyDone || b.processor.OutstandingCount(thunkID) != 0 {
		b.mu.Unlock()
		return
	}
	delete(b.runs, thunkID)
	b.mu.Unlock()

	if th, found := b.registry.Get(thunkID); found {
		th.MarkCompleted()
		b.registry.Remove(thunkID)
	}
	run.promise.Resolve(run.value)
	b.scheduler.ProcessQueue()
}

// failThunk rejects the thunk's promise and abandons its in-flight
// actions. The scheduler marks the thunk failed and purges its queued
// tasks when the handler error propagates.
func (b *Bridge) failThunk(thunkID string, err error) {
	b.mu.Lock()
	run, ok := b.runs[thunkID]
	delete(b.runs, thunkID)
	b.mu.Unlock()

	b.processor.CleanupThunkActions(thunkID)
	b.registry.Remove(thunkID)
	if ok {
		run.promise.Reject(err)
	}
}

// dropRun discards a thunk's bookkeeping without settling its promise.
func (b *Bridge) dropRun(thunkID string) {
	b.mu.Lock()
	delete(b.runs, thunkID)
	b.mu.Unlock()
	b.registry.Remove(thunkID)
}

// fanOut feeds capability state changes to the subscription manager.
// Notify runs under stateMu so concurrent changes reach listeners as a
// consistent prev-to-next chain; an older delta can never land after a
// newer one. Listener callbacks must not block on dispatch completion.
func (b *Bridge) fanOut(next state.State) {
	b.stateMu.Lock()
	defer b.stateMu.Unlock()

	prev := b.prevState
	b.prevState = next

	if err := b.subs.Notify(prev, next); err != nil {
		b.logger.Warn("subscription fan-out failed: %v", err)
	}
}

// Subscribe registers a key-scoped state listener. Nil or empty keys mean
// whole-state interest.
func (b *Bridge) Subscribe(keys []string, cb subscription.Callback) (state.Unsubscribe, error) {
	if b.destroyed.Load() {
		return nil, ErrBridgeDestroyed
	}
	return b.subs.Subscribe(keys, cb)
}

// Forward hands a renderer-bound action to the batching transport. The
// action's priority decides whether the buffer flushes early.
func (b *Bridge) Forward(a action.Action) *promise.Promise {
	if b.destroyed.Load() {
		return promise.Rejected(ErrBridgeDestroyed)
	}
	if b.batcher == nil {
		return promise.Rejected(ErrNoTransport)
	}
	return b.batcher.Enqueue(a, a.Priority)
}

// FlushOutbound forces any buffered renderer-bound actions out now.
func (b *Bridge) FlushOutbound() {
	if b.batcher != nil {
		b.batcher.Flush()
	}
}

// GetState returns the capability's current state.
func (b *Bridge) GetState() state.State {
	return b.capability.GetState()
}

// Stats aggregates counters from all owned components.
func (b *Bridge) Stats() Stats {
	s := Stats{
		Scheduler:     b.scheduler.Stats(),
		Queue:         b.scheduler.QueueStatus(),
		Processor:     b.processor.Stats(),
		Subscriptions: b.subs.Stats(),
	}
	if b.batcher != nil {
		bs := b.batcher.Stats()
		s.Batcher = &bs
	}
	return s
}

// Destroy tears the bridge down: unhooks the capability listener, stops
// the batcher, processor, and scheduler, clears subscriptions, and
// rejects every still-pending thunk promise. Idempotent.
func (b *Bridge) Destroy() {
	if !b.destroyed.CompareAndSwap(false, true) {
		return
	}

	// Detach the run table first so handlers unblocked by the teardown
	// below cannot resolve promises the bridge is about to reject.
	b.mu.Lock()
	runs := b.runs
	b.runs = make(map[string]*thunkRun)
	b.mu.Unlock()

	if b.unsubscribe != nil {
		b.unsubscribe()
	}
	if b.batcher != nil {
		b.batcher.Destroy()
	}
	b.processor.Destroy()
	b.scheduler.Destroy()
	b.subs.Clear()

	for _, run := range runs {
		run.promise.Reject(ErrBridgeDestroyed)
	}
	b.registry.Clear()

	b.logger.Info("bridge destroyed")
}

func firstPayload(payload []any) any {
	if len(payload) > 0 {
		return payload[0]
	}
	return nil
}

package thunk

import (
	"context"
	"fmt"
	"runtime/debug"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/goosewobbler/zubridge/internal/log"
)

// DefaultMaxQueueSize bounds the task queue when no option overrides it.
const DefaultMaxQueueSize = 100

// QueueStatus is a point-in-time view of the scheduler.
type QueueStatus struct {
	// Queued is the number of tasks waiting for admission.
	Queued int

	// Running is the number of tasks currently executing.
	Running int

	// HighestPriority is the highest priority among queued tasks.
	// Zero when the queue is empty.
	HighestPriority int

	// Idle is true iff both the queued and running sets are empty.
	Idle bool
}

// SchedulerStats contains cumulative scheduler counters.
type SchedulerStats struct {
	// Enqueued is the total number of tasks accepted.
	Enqueued uint64

	// Started is the number of tasks admitted to run.
	Started uint64

	// Completed is the number of tasks whose handler returned nil.
	Completed uint64

	// Failed is the number of tasks whose handler returned an error
	// or panicked.
	Failed uint64

	// Rejected is the number of enqueues refused for overflow.
	Rejected uint64

	// Purged is the number of queued tasks removed before starting.
	Purged uint64
}

// Scheduler admits tasks in priority-then-FIFO order while enforcing the
// cross-thunk mutual-exclusion gate. All queue and gate state is guarded
// by a single mutex; handlers run on their own goroutines.
type Scheduler struct {
	registry     *Registry
	logger       *log.Logger
	maxQueueSize int

	ctx    context.Context
	cancel context.CancelFunc

	mu                 sync.Mutex
	queue              []*Task
	running            map[string]*Task
	nonConcurrent      map[string]int
	nonConcurrentTotal int
	seq                uint64
	destroyed          bool

	wg sync.WaitGroup

	enqueued  atomic.Uint64
	started   atomic.Uint64
	completed atomic.Uint64
	failed    atomic.Uint64
	rejected  atomic.Uint64
	purged    atomic.Uint64
}

// SchedulerOption configures a Scheduler.
type SchedulerOption func(*Scheduler)

// WithMaxQueueSize bounds the task queue.
func WithMaxQueueSize(n int) SchedulerOption {
	return func(s *Scheduler) {
		if n > 0 {
			s.maxQueueSize = n
		}
	}
}

// WithSchedulerLogger sets the scheduler's logger.
func WithSchedulerLogger(l *log.Logger) SchedulerOption {
	return func(s *Scheduler) {
		if l != nil {
			s.logger = l.WithComponent("scheduler")
		}
	}
}

// NewScheduler creates a scheduler over the given thunk registry.
func NewScheduler(registry *Registry, opts ...SchedulerOption) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		registry:      registry,
		logger:        log.NullLogger,
		maxQueueSize:  DefaultMaxQueueSize,
		ctx:           ctx,
		cancel:        cancel,
		running:       make(map[string]*Task),
		nonConcurrent: make(map[string]int),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Enqueue adds a task to the queue. It fails fast with an OverflowError
// when the queue is at capacity, and refuses tasks for terminal or
// unregistered thunks — an unknown thunk ID would otherwise queue work
// that could only ever be purged. Admission happens on the next
// ProcessQueue call.
func (s *Scheduler) Enqueue(t *Task) error {
	if t == nil {
		return ErrNilTask
	}
	if t.Handler == nil {
		return ErrNilHandler
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.destroyed {
		return ErrSchedulerDestroyed
	}
	th, ok := s.registry.Get(t.ThunkID)
	if !ok {
		return fmt.Errorf("%w: thunk %s is not registered", ErrThunkTerminal, t.ThunkID)
	}
	if th.State().Terminal() {
		return fmt.Errorf("%w: thunk %s is %s", ErrThunkTerminal, t.ThunkID, th.State())
	}
	if len(s.queue) >= s.maxQueueSize {
		s.rejected.Add(1)
		return &OverflowError{Size: len(s.queue) + 1, Limit: s.maxQueueSize}
	}

	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now()
	}
	s.seq++
	t.seq = s.seq
	s.queue = append(s.queue, t)
	s.enqueued.Add(1)

	s.logger.Debug("enqueued task %s for thunk %s (priority %d, queue %d)",
		t.ID, t.ThunkID, t.Priority, len(s.queue))
	return nil
}

// ProcessQueue admits every currently eligible task.
// Ordering is strict descending priority with ascending CreatedAt inside a
// band; the exclusion gate may hold back a high-priority non-concurrent
// task while admitting concurrent work behind it.
func (s *Scheduler) ProcessQueue() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.processLocked()
}

func (s *Scheduler) processLocked() {
	if s.destroyed {
		return
	}

	sort.SliceStable(s.queue, func(i, j int) bool {
		a, b := s.queue[i], s.queue[j]
		if a.Priority != b.Priority {
			return a.Priority > b.Priority
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.seq < b.seq
	})

	remaining := s.queue[:0]
	for _, t := range s.queue {
		th, ok := s.registry.Get(t.ThunkID)
		if !ok || th.State().Terminal() {
			s.purged.Add(1)
			continue
		}
		if !s.eligibleLocked(t) {
			remaining = append(remaining, t)
			continue
		}
		s.startLocked(t, th)
	}
	s.queue = remaining
}

// eligibleLocked applies the mutual-exclusion gate.
func (s *Scheduler) eligibleLocked(t *Task) bool {
	if t.CanRunConcurrently {
		return true
	}
	othersRunning := s.nonConcurrentTotal - s.nonConcurrent[t.ThunkID]
	return othersRunning == 0
}

func (s *Scheduler) startLocked(t *Task, th *Thunk) {
	t.StartedAt = time.Now()
	s.running[t.ID] = t
	if !t.CanRunConcurrently {
		s.nonConcurrent[t.ThunkID]++
		s.nonConcurrentTotal++
	}
	th.MarkExecuting()
	s.started.Add(1)

	s.logger.Debug("started task %s for thunk %s", t.ID, t.ThunkID)

	s.wg.Add(1)
	go s.run(t, th)
}

func (s *Scheduler) run(t *Task, th *Thunk) {
	defer s.wg.Done()

	err := s.invoke(t)

	s.mu.Lock()
	delete(s.running, t.ID)
	if !t.CanRunConcurrently {
		s.nonConcurrent[t.ThunkID]--
		if s.nonConcurrent[t.ThunkID] <= 0 {
			delete(s.nonConcurrent, t.ThunkID)
		}
		s.nonConcurrentTotal--
	}

	if err != nil {
		s.failed.Add(1)
		if th.MarkFailed() {
			s.purgeLocked(t.ThunkID)
		}
		s.logger.Warn("task %s for thunk %s failed: %v", t.ID, t.ThunkID, err)
	} else {
		s.completed.Add(1)
	}

	s.processLocked()
	s.mu.Unlock()
}

// invoke runs the handler with panic recovery.
func (s *Scheduler) invoke(t *Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("task %s panicked: %v", t.ID, r)
			s.logger.Debug("panic stack: %s", debug.Stack())
			err = fmt.Errorf("task %s panicked: %v", t.ID, r)
		}
	}()
	return t.Handler(s.ctx)
}

// RemoveTasks purges all queued, not-yet-started tasks for a thunk.
// Returns the number of tasks removed.
func (s *Scheduler) RemoveTasks(thunkID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.purgeLocked(thunkID)
}

func (s *Scheduler) purgeLocked(thunkID string) int {
	remaining := s.queue[:0]
	removed := 0
	for _, t := range s.queue {
		if t.ThunkID == thunkID {
			removed++
			continue
		}
		remaining = append(remaining, t)
	}
	s.queue = remaining
	if removed > 0 {
		s.purged.Add(uint64(removed))
		s.logger.Debug("purged %d queued tasks for thunk %s", removed, thunkID)
	}
	return removed
}

// QueueStatus returns counts of queued and running tasks, the highest
// queued priority, and whether the scheduler is idle.
func (s *Scheduler) QueueStatus() QueueStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	status := QueueStatus{
		Queued:  len(s.queue),
		Running: len(s.running),
	}
	for i, t := range s.queue {
		if i == 0 || t.Priority > status.HighestPriority {
			status.HighestPriority = t.Priority
		}
	}
	status.Idle = status.Queued == 0 && status.Running == 0
	return status
}

// Stats returns cumulative scheduler counters.
func (s *Scheduler) Stats() SchedulerStats {
	return SchedulerStats{
		Enqueued:  s.enqueued.Load(),
		Started:   s.started.Load(),
		Completed: s.completed.Load(),
		Failed:    s.failed.Load(),
		Rejected:  s.rejected.Load(),
		Purged:    s.purged.Load(),
	}
}

// Destroy purges the queue, cancels running handlers' context, and waits
// for them to return. Safe to call more than once.
func (s *Scheduler) Destroy() {
	s.mu.Lock()
	if s.destroyed {
		s.mu.Unlock()
		return
	}
	s.destroyed = true
	purged := len(s.queue)
	s.queue = nil
	if purged > 0 {
		s.purged.Add(uint64(purged))
	}
	s.mu.Unlock()

	s.cancel()
	s.wg.Wait()
}

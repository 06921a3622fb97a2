package batch

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/goosewobbler/zubridge/internal/action"
	"github.com/goosewobbler/zubridge/internal/log"
	"github.com/goosewobbler/zubridge/internal/promise"
)

// Defaults for the batching configuration.
const (
	DefaultWindow                 = 16 * time.Millisecond
	DefaultMaxBatchSize           = 25
	DefaultPriorityFlushThreshold = 7
	DefaultMaxQueueSize           = 100
)

// Config holds the batching tunables.
type Config struct {
	// Window is the coalescing window armed when the first low-priority
	// action is buffered.
	Window time.Duration

	// MaxBatchSize is the hard cap of actions per payload.
	MaxBatchSize int

	// PriorityFlushThreshold forces an immediate flush of the whole
	// buffer for any action at or above this priority.
	PriorityFlushThreshold int

	// MaxQueueSize bounds the pending buffer; enqueues past it fail fast.
	MaxQueueSize int
}

// DefaultConfig returns the default batching configuration.
func DefaultConfig() Config {
	return Config{
		Window:                 DefaultWindow,
		MaxBatchSize:           DefaultMaxBatchSize,
		PriorityFlushThreshold: DefaultPriorityFlushThreshold,
		MaxQueueSize:           DefaultMaxQueueSize,
	}
}

// Stats is a point-in-time view of batcher activity.
type Stats struct {
	// Batches is the total number of payloads sent.
	Batches uint64

	// Actions is the total number of actions sent.
	Actions uint64

	// AvgBatchSize is Actions divided by Batches.
	AvgBatchSize float64

	// QueueSize is the current pending buffer length.
	QueueSize int

	// Flushing is true while at least one flush is in progress.
	// Upstream backpressure decisions key off this.
	Flushing bool
}

// queued is one buffered action with its continuation.
type queued struct {
	action   action.Action
	promise  *promise.Promise
	priority int
}

// Batcher coalesces outbound actions into payloads over a caller-supplied
// transport. It is safe for concurrent use.
type Batcher struct {
	send   SendFunc
	cfg    Config
	logger *log.Logger

	mu        sync.Mutex
	pending   []queued
	timer     *time.Timer
	destroyed bool

	flushing atomic.Int32
	batches  atomic.Uint64
	actions  atomic.Uint64
}

// Option configures a Batcher.
type Option func(*Batcher)

// WithConfig replaces the whole batching configuration.
// Zero-valued fields fall back to defaults.
func WithConfig(cfg Config) Option {
	return func(b *Batcher) {
		if cfg.Window > 0 {
			b.cfg.Window = cfg.Window
		}
		if cfg.MaxBatchSize > 0 {
			b.cfg.MaxBatchSize = cfg.MaxBatchSize
		}
		if cfg.PriorityFlushThreshold > 0 {
			b.cfg.PriorityFlushThreshold = cfg.PriorityFlushThreshold
		}
		if cfg.MaxQueueSize > 0 {
			b.cfg.MaxQueueSize = cfg.MaxQueueSize
		}
	}
}

// WithLogger sets the batcher's logger.
func WithLogger(l *log.Logger) Option {
	return func(b *Batcher) {
		if l != nil {
			b.logger = l.WithComponent("batcher")
		}
	}
}

// New creates a batcher over the given transport.
func New(send SendFunc, opts ...Option) (*Batcher, error) {
	if send == nil {
		return nil, ErrNilTransport
	}
	b := &Batcher{
		send:   send,
		cfg:    DefaultConfig(),
		logger: log.NullLogger,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b, nil
}

// Enqueue buffers an action for the next batch and returns the promise
// settled by its acknowledgement.
//
// An action at or above the priority flush threshold flushes the entire
// buffer immediately; everything else waits for the coalescing window.
// A full buffer rejects the action fast with an OverflowError.
func (b *Batcher) Enqueue(a action.Action, priority int) *promise.Promise {
	a = a.EnsureID()
	pr := promise.New()

	b.mu.Lock()
	if b.destroyed {
		b.mu.Unlock()
		pr.Reject(ErrBatcherDestroyed)
		return pr
	}
	if len(b.pending) >= b.cfg.MaxQueueSize {
		b.mu.Unlock()
		pr.Reject(&OverflowError{Size: len(b.pending) + 1, Limit: b.cfg.MaxQueueSize})
		return pr
	}

	b.pending = append(b.pending, queued{action: a, promise: pr, priority: priority})

	if priority >= b.cfg.PriorityFlushThreshold {
		buf := b.takeLocked()
		b.mu.Unlock()
		b.logger.Debug("priority %d triggered early flush of %d actions", priority, len(buf))
		go b.sendBuffer(buf)
		return pr
	}

	if b.timer == nil {
		b.timer = time.AfterFunc(b.cfg.Window, b.Flush)
	}
	b.mu.Unlock()
	return pr
}

// Flush sends everything currently buffered. No-op when the buffer is
// empty.
func (b *Batcher) Flush() {
	b.mu.Lock()
	buf := b.takeLocked()
	b.mu.Unlock()

	b.sendBuffer(buf)
}

// takeLocked detaches the pending buffer and disarms the window timer.
func (b *Batcher) takeLocked() []queued {
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
	buf := b.pending
	b.pending = nil
	return buf
}

// sendBuffer partitions a detached buffer into payloads and settles each
// action from its acknowledgement.
func (b *Batcher) sendBuffer(buf []queued) {
	if len(buf) == 0 {
		return
	}

	b.flushing.Add(1)
	defer b.flushing.Add(-1)

	for start := 0; start < len(buf); start += b.cfg.MaxBatchSize {
		end := start + b.cfg.MaxBatchSize
		if end > len(buf) {
			end = len(buf)
		}
		b.sendChunk(buf[start:end])
	}
}

// sendChunk sends one payload and resolves or rejects each contained
// action independently. A transport failure rejects every action in this
// payload only.
func (b *Batcher) sendChunk(chunk []queued) {
	payload := Payload{
		BatchID: uuid.NewString(),
		Entries: make([]Entry, len(chunk)),
	}
	for i, q := range chunk {
		payload.Entries[i] = Entry{
			Action:   q.action,
			ID:       q.action.ID,
			ParentID: q.action.ParentThunkID,
		}
	}

	ack, err := b.send(context.Background(), payload)

	b.batches.Add(1)
	b.actions.Add(uint64(len(chunk)))

	if err != nil {
		b.logger.Warn("batch %s transport failed: %v", payload.BatchID, err)
		for _, q := range chunk {
			q.promise.Reject(err)
		}
		return
	}

	for _, q := range chunk {
		res, ok := ack.Results[q.action.ID]
		switch {
		case !ok:
			q.promise.Reject(ErrNoAck)
		case res.Success:
			q.promise.Resolve(nil)
		default:
			q.promise.Reject(&RemoteError{ActionID: q.action.ID, Message: res.Error})
		}
	}
}

// Stats returns batcher activity counters.
func (b *Batcher) Stats() Stats {
	b.mu.Lock()
	queueSize := len(b.pending)
	b.mu.Unlock()

	batches := b.batches.Load()
	actions := b.actions.Load()
	var avg float64
	if batches > 0 {
		avg = float64(actions) / float64(batches)
	}

	return Stats{
		Batches:      batches,
		Actions:      actions,
		AvgBatchSize: avg,
		QueueSize:    queueSize,
		Flushing:     b.flushing.Load() > 0,
	}
}

// Destroy cancels the window timer and rejects every buffered action.
// Safe to call more than once.
func (b *Batcher) Destroy() {
	b.mu.Lock()
	if b.destroyed {
		b.mu.Unlock()
		return
	}
	b.destroyed = true
	buf := b.takeLocked()
	b.mu.Unlock()

	for _, q := range buf {
		q.promise.Reject(ErrBatcherDestroyed)
	}
}

package bridge

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/goosewobbler/zubridge/internal/action"
	"github.com/goosewobbler/zubridge/internal/log"
	"github.com/goosewobbler/zubridge/internal/promise"
)

// Middleware observes every action the bridge executes. BeforeAction runs
// in registration order ahead of execution; AfterAction runs in reverse
// order once the outcome is known.
type Middleware interface {
	BeforeAction(ctx context.Context, a action.Action)
	AfterAction(ctx context.Context, a action.Action, value any, err error)
}

// chain adapts the middleware list to the processor's execution hooks.
type chain []Middleware

func (c chain) BeforeExecute(ctx context.Context, a action.Action) {
	for _, m := range c {
		m.BeforeAction(ctx, a)
	}
}

func (c chain) AfterExecute(ctx context.Context, a action.Action, value any, err error) {
	for i := len(c) - 1; i >= 0; i-- {
		c[i].AfterAction(ctx, a, value, err)
	}
}

// LoggingMiddleware logs every action execution.
type LoggingMiddleware struct {
	logger *log.Logger
}

// NewLoggingMiddleware creates a logging middleware.
func NewLoggingMiddleware(l *log.Logger) *LoggingMiddleware {
	if l == nil {
		l = log.NullLogger
	}
	return &LoggingMiddleware{logger: l.WithComponent("actions")}
}

func (m *LoggingMiddleware) BeforeAction(_ context.Context, a action.Action) {
	m.logger.Debug("executing action %s (%s)", a.Type, a.ID)
}

func (m *LoggingMiddleware) AfterAction(_ context.Context, a action.Action, _ any, err error) {
	if err != nil {
		m.logger.Warn("action %s (%s) failed: %v", a.Type, a.ID, err)
		return
	}
	m.logger.Debug("action %s (%s) completed", a.Type, a.ID)
}

// MetricsSnapshot is a point-in-time copy of the metrics counters.
type MetricsSnapshot struct {
	Dispatched uint64
	Succeeded  uint64
	Failed     uint64
	TimedOut   uint64
	PerType    map[string]uint64
}

// MetricsMiddleware counts executed actions by outcome and type.
type MetricsMiddleware struct {
	dispatched atomic.Uint64
	succeeded  atomic.Uint64
	failed     atomic.Uint64
	timedOut   atomic.Uint64

	mu      sync.Mutex
	perType map[string]uint64
}

// NewMetricsMiddleware creates a metrics middleware.
func NewMetricsMiddleware() *MetricsMiddleware {
	return &MetricsMiddleware{perType: make(map[string]uint64)}
}

func (m *MetricsMiddleware) BeforeAction(_ context.Context, a action.Action) {
	m.dispatched.Add(1)
	m.mu.Lock()
	m.perType[a.Type]++
	m.mu.Unlock()
}

func (m *MetricsMiddleware) AfterAction(_ context.Context, _ action.Action, _ any, err error) {
	switch {
	case err == nil:
		m.succeeded.Add(1)
	case promise.IsTimeout(err):
		m.timedOut.Add(1)
	default:
		m.failed.Add(1)
	}
}

// Snapshot returns a copy of the current counters.
func (m *MetricsMiddleware) Snapshot() MetricsSnapshot {
	m.mu.Lock()
	perType := make(map[string]uint64, len(m.perType))
	for k, v := range m.perType {
		perType[k] = v
	}
	m.mu.Unlock()

	return MetricsSnapshot{
		Dispatched: m.dispatched.Load(),
		Succeeded:  m.succeeded.Load(),
		Failed:     m.failed.Load(),
		TimedOut:   m.timedOut.Load(),
		PerType:    perType,
	}
}

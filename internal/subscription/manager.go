package subscription

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/goosewobbler/zubridge/internal/log"
	"github.com/goosewobbler/zubridge/internal/state"
)

// Callback receives the changed slice of state: the full next state for
// wildcard subscriptions, or a partial tree holding only the subscribed
// paths otherwise.
type Callback func(partial state.State)

// entry is one registered subscription.
type entry struct {
	keys     []string
	wildcard bool
	callback Callback
}

// Stats contains subscription manager counters.
type Stats struct {
	// Subscriptions is the current number of distinct subscriptions.
	Subscriptions int

	// Notified is the cumulative number of callback invocations.
	Notified uint64

	// Suppressed is the cumulative number of subscriptions skipped
	// because their slice did not change.
	Suppressed uint64
}

// Manager maintains per-listener key-scoped subscriptions and emits only
// the changed slices of state. It is safe for concurrent use.
type Manager struct {
	logger *log.Logger

	mu        sync.RWMutex
	entries   map[string]*entry
	nextReg   uint64
	destroyed bool

	notified   atomic.Uint64
	suppressed atomic.Uint64
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the manager's logger.
func WithLogger(l *log.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l.WithComponent("subscriptions")
		}
	}
}

// NewManager creates an empty subscription manager.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		logger:  log.NullLogger,
		entries: make(map[string]*entry),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Subscribe registers interest in the given key paths. Nil or empty keys
// mean whole-state interest. Every call registers a distinct
// subscription: two closures created from the same function literal are
// separate listeners, each with its own unsubscribe. Callers that need
// idempotent registration use SubscribeAs. The returned unsubscribe is
// idempotent.
func (m *Manager) Subscribe(keys []string, cb Callback) (state.Unsubscribe, error) {
	if cb == nil {
		return nil, ErrNilCallback
	}

	normalized := normalizeKeys(keys)

	m.mu.Lock()
	if m.destroyed {
		m.mu.Unlock()
		return nil, ErrManagerDestroyed
	}
	m.nextReg++
	id := fmt.Sprintf("%s#%d", keySetID(normalized), m.nextReg)
	m.entries[id] = &entry{
		keys:     normalized,
		wildcard: normalized[0] == Wildcard,
		callback: cb,
	}
	m.mu.Unlock()

	m.logger.Debug("subscribed %s", keySetID(normalized))
	return m.unsubscribeFunc(id), nil
}

// SubscribeAs registers under a caller-supplied subscriber identity.
// Re-subscribing with the same identity and an equivalent key set is a
// no-op that still returns a working unsubscribe, so repeated setup calls
// never stack duplicate listeners. An empty identity falls back to
// Subscribe.
func (m *Manager) SubscribeAs(subscriber string, keys []string, cb Callback) (state.Unsubscribe, error) {
	if cb == nil {
		return nil, ErrNilCallback
	}
	if subscriber == "" {
		return m.Subscribe(keys, cb)
	}

	normalized := normalizeKeys(keys)
	id := subscriber + "|" + keySetID(normalized)

	m.mu.Lock()
	if m.destroyed {
		m.mu.Unlock()
		return nil, ErrManagerDestroyed
	}
	if _, exists := m.entries[id]; !exists {
		m.entries[id] = &entry{
			keys:     normalized,
			wildcard: normalized[0] == Wildcard,
			callback: cb,
		}
		m.logger.Debug("subscribed %s as %s", keySetID(normalized), subscriber)
	}
	m.mu.Unlock()

	return m.unsubscribeFunc(id), nil
}

// unsubscribeFunc builds the idempotent removal handle for an entry.
func (m *Manager) unsubscribeFunc(id string) state.Unsubscribe {
	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.entries, id)
			m.mu.Unlock()
		})
	}
}

// Notify diffs the previous and next state per subscription and invokes
// only the listeners whose slice changed.
func (m *Manager) Notify(prev, next state.State) error {
	m.mu.RLock()
	if len(m.entries) == 0 {
		m.mu.RUnlock()
		return nil
	}
	entries := make([]*entry, 0, len(m.entries))
	for _, e := range m.entries {
		entries = append(entries, e)
	}
	m.mu.RUnlock()

	prevRaw, err := state.Snapshot(prev)
	if err != nil {
		return fmt.Errorf("snapshot previous state: %w", err)
	}
	nextRaw, err := state.Snapshot(next)
	if err != nil {
		return fmt.Errorf("snapshot next state: %w", err)
	}

	for _, e := range entries {
		if e.wildcard {
			if bytes.Equal(prevRaw, nextRaw) {
				m.suppressed.Add(1)
				continue
			}
			m.notified.Add(1)
			e.callback(next)
			continue
		}

		partial, changed, err := diffKeys(prevRaw, nextRaw, e.keys)
		if err != nil {
			// One subscription's bad path must not starve the rest of
			// the fan-out.
			m.logger.Warn("skipping subscription %s: %v", keySetID(e.keys), err)
			continue
		}
		if !changed {
			m.suppressed.Add(1)
			continue
		}
		m.notified.Add(1)
		e.callback(partial)
	}
	return nil
}

// diffKeys compares the two snapshots restricted to the given key paths
// and rebuilds the partial payload of subscribed paths present in next.
// Snapshots come from canonical JSON, so raw-slice equality is structural
// equality.
func diffKeys(prevRaw, nextRaw []byte, keys []string) (state.State, bool, error) {
	changed := false
	partial := []byte(`{}`)

	for _, key := range keys {
		pv := gjson.GetBytes(prevRaw, key)
		nv := gjson.GetBytes(nextRaw, key)

		if pv.Exists() != nv.Exists() || pv.Raw != nv.Raw {
			changed = true
		}
		if nv.Exists() {
			out, err := sjson.SetRawBytes(partial, key, []byte(nv.Raw))
			if err != nil {
				return nil, false, fmt.Errorf("rebuilding path %q: %w", key, err)
			}
			partial = out
		}
	}

	if !changed {
		return nil, false, nil
	}

	var payload state.State
	if err := json.Unmarshal(partial, &payload); err != nil {
		return nil, false, fmt.Errorf("decoding partial payload: %w", err)
	}
	return payload, true, nil
}

// Count returns the number of distinct subscriptions.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// Stats returns subscription counters.
func (m *Manager) Stats() Stats {
	return Stats{
		Subscriptions: m.Count(),
		Notified:      m.notified.Load(),
		Suppressed:    m.suppressed.Load(),
	}
}

// Clear removes every subscription and refuses new ones.
func (m *Manager) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = make(map[string]*entry)
	m.destroyed = true
}

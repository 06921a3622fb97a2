package thunk

import "sync"

// Registry is the sole owner of thunk records.
// It is safe for concurrent access.
type Registry struct {
	mu   sync.RWMutex
	byID map[string]*Thunk
}

// NewRegistry creates an empty thunk registry.
func NewRegistry() *Registry {
	return &Registry{
		byID: make(map[string]*Thunk),
	}
}

// Add registers a thunk.
func (r *Registry) Add(t *Thunk) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[t.ID()] = t
}

// Get returns a thunk by ID.
func (r *Registry) Get(id string) (*Thunk, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.byID[id]
	return t, ok
}

// Remove drops a thunk record.
func (r *Registry) Remove(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[id]; !ok {
		return false
	}
	delete(r.byID, id)
	return true
}

// Count returns the number of registered thunks.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}

// CountActive returns the number of non-terminal thunks.
func (r *Registry) CountActive() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	count := 0
	for _, t := range r.byID {
		if !t.State().Terminal() {
			count++
		}
	}
	return count
}

// All returns a copy of the registered thunks.
func (r *Registry) All() []*Thunk {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(r.byID) == 0 {
		return nil
	}
	out := make([]*Thunk, 0, len(r.byID))
	for _, t := range r.byID {
		out = append(out, t)
	}
	return out
}

// Clear removes every thunk record.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID = make(map[string]*Thunk)
}

package state

import (
	"sync"

	"github.com/goosewobbler/zubridge/internal/action"
)

// Reducer produces the next state for an action.
// It must treat the current state as read-only and return a new tree.
type Reducer func(current State, a action.Action) (State, error)

// Store is an in-memory Capability backed by a reducer.
// It is safe for concurrent use.
type Store struct {
	mu        sync.RWMutex
	state     State
	reducer   Reducer
	listeners map[int]func(State)
	nextID    int
}

// NewStore creates a store with the given initial state and reducer.
func NewStore(initial State, reducer Reducer) *Store {
	if initial == nil {
		initial = State{}
	}
	return &Store{
		state:     initial,
		reducer:   reducer,
		listeners: make(map[int]func(State)),
	}
}

// GetState returns the current state.
func (s *Store) GetState() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Subscribe registers a listener invoked after every applied action.
func (s *Store) Subscribe(listener func(State)) Unsubscribe {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = listener
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.listeners, id)
			s.mu.Unlock()
		})
	}
}

// ProcessAction applies the action through the reducer.
// Reducer errors are signaled out-of-band as Fail results, matching the
// capability contract: the call itself does not panic or throw.
func (s *Store) ProcessAction(a action.Action) action.Result {
	s.mu.Lock()
	next, err := s.reducer(s.state, a)
	if err != nil {
		s.mu.Unlock()
		return action.Fail(err)
	}
	s.state = next
	listeners := make([]func(State), 0, len(s.listeners))
	for _, l := range s.listeners {
		listeners = append(listeners, l)
	}
	s.mu.Unlock()

	for _, l := range listeners {
		l(next)
	}
	return action.Ok(next)
}

package state

import (
	"encoding/json"

	"github.com/goosewobbler/zubridge/internal/action"
)

// State is the authoritative application state: a JSON-shaped document.
type State = map[string]any

// Unsubscribe removes a previously registered listener.
// It is safe to call more than once.
type Unsubscribe func()

// Capability is the uniform surface over any concrete state container.
type Capability interface {
	// GetState returns the current state.
	GetState() State

	// Subscribe registers a listener invoked after every state change.
	Subscribe(listener func(State)) Unsubscribe

	// ProcessAction applies one action and reports the outcome as a
	// tagged result: Ok(value), Fail(err), or Pending(completion).
	ProcessAction(a action.Action) action.Result
}

// Snapshot serializes a state tree to canonical JSON.
// Go's json encoding sorts map keys, so equal trees produce equal bytes.
func Snapshot(s State) ([]byte, error) {
	if s == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(s)
}

// Clone deep-copies a state tree via a JSON round trip.
func Clone(s State) (State, error) {
	raw, err := Snapshot(s)
	if err != nil {
		return nil, err
	}
	var out State
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

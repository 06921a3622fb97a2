package action

import (
	"time"

	"github.com/google/uuid"
)

// Action is an atomic state-mutation request.
// Actions are immutable once handed to the processor; the only permitted
// annotation is parent-thunk linkage before execution.
type Action struct {
	// ID uniquely identifies this action instance.
	ID string `json:"id"`

	// Type is the action type understood by the state capability.
	Type string `json:"type"`

	// Payload contains the action-specific data.
	Payload any `json:"payload,omitempty"`

	// ParentThunkID links the action to the thunk that dispatched it.
	ParentThunkID string `json:"parentThunkId,omitempty"`

	// Priority orders the action against other scheduled work.
	// Higher values are more urgent.
	Priority int `json:"priority,omitempty"`

	// BypassLock exempts the action from the mutual-exclusion gate.
	// Reserved for side-channel and administrative actions.
	BypassLock bool `json:"bypassLock,omitempty"`

	// CreatedAt is when the action was created.
	CreatedAt time.Time `json:"createdAt"`
}

// New creates an action with a generated ID.
func New(actionType string, payload any) Action {
	return Action{
		ID:        uuid.NewString(),
		Type:      actionType,
		Payload:   payload,
		CreatedAt: time.Now(),
	}
}

// EnsureID returns a copy with an ID assigned if it was absent.
func (a Action) EnsureID() Action {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}
	return a
}

// WithParent returns a copy annotated with the dispatching thunk's ID.
func (a Action) WithParent(thunkID string) Action {
	a.ParentThunkID = thunkID
	return a
}

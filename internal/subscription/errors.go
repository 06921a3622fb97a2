package subscription

import "errors"

// Sentinel errors for the subscription manager.
var (
	// ErrNilCallback is returned when subscribing without a callback.
	ErrNilCallback = errors.New("subscription callback cannot be nil")

	// ErrManagerDestroyed is returned when subscribing to a destroyed
	// manager.
	ErrManagerDestroyed = errors.New("subscription manager has been destroyed")
)

package bridge

import "errors"

// Sentinel errors for the dispatch facade.
var (
	// ErrInvalidDispatch is returned when dispatch input is not a string,
	// an action, or a thunk function.
	ErrInvalidDispatch = errors.New("dispatch input must be a string, action, or thunk function")

	// ErrNilCapability is returned when constructing a bridge without a
	// state capability.
	ErrNilCapability = errors.New("state capability cannot be nil")

	// ErrNoTransport is returned when forwarding actions without a
	// configured transport.
	ErrNoTransport = errors.New("no transport configured")

	// ErrBridgeDestroyed is returned for operations on a destroyed bridge.
	ErrBridgeDestroyed = errors.New("bridge has been destroyed")
)

package processor

import "errors"

// Sentinel errors for action processing.
var (
	// ErrMissingThunkID is returned when ProcessAction is called without a
	// thunk ID. This is a broken caller contract, not a runtime condition.
	ErrMissingThunkID = errors.New("thunk id is required for action processing")

	// ErrProcessorDestroyed is returned when work is submitted to a
	// destroyed processor, and rejects completions pending at teardown.
	ErrProcessorDestroyed = errors.New("action processor has been destroyed")

	// ErrActionAbandoned rejects in-flight completions dropped by thunk
	// cleanup after a terminal transition.
	ErrActionAbandoned = errors.New("action abandoned by thunk cleanup")
)

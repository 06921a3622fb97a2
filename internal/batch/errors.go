package batch

import (
	"errors"
	"fmt"
)

// Sentinel errors for the batcher.
var (
	// ErrBatcherDestroyed rejects actions buffered or enqueued after Destroy.
	ErrBatcherDestroyed = errors.New("batcher has been destroyed")

	// ErrQueueOverflow rejects an enqueue when the pending buffer is at
	// capacity. Typed details travel in OverflowError.
	ErrQueueOverflow = errors.New("batch queue overflow")

	// ErrNoAck rejects an action whose ID was missing from the batch
	// acknowledgement.
	ErrNoAck = errors.New("no acknowledgement for action")

	// ErrNilTransport is returned when a batcher is built without a send
	// function.
	ErrNilTransport = errors.New("batch transport cannot be nil")
)

// OverflowError reports a rejected enqueue with the attempted buffer size
// and the configured limit.
type OverflowError struct {
	Size  int
	Limit int
}

// Error implements the error interface.
func (e *OverflowError) Error() string {
	return fmt.Sprintf("batch queue overflow: size %d exceeds limit %d", e.Size, e.Limit)
}

// Unwrap lets errors.Is match ErrQueueOverflow.
func (e *OverflowError) Unwrap() error {
	return ErrQueueOverflow
}

// RemoteError carries a failure reported in a batch acknowledgement.
type RemoteError struct {
	ActionID string
	Message  string
}

// Error implements the error interface.
func (e *RemoteError) Error() string {
	return fmt.Sprintf("remote rejected action %s: %s", e.ActionID, e.Message)
}

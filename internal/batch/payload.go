package batch

import (
	"context"

	"github.com/goosewobbler/zubridge/internal/action"
)

// Entry is one action inside a batch payload. ParentID carries causal
// ordering inside the batch for receivers that care.
type Entry struct {
	Action   action.Action `json:"action"`
	ID       string        `json:"id"`
	ParentID string        `json:"parentId,omitempty"`
}

// Payload is one cross-process batch request.
type Payload struct {
	BatchID string  `json:"batchId"`
	Entries []Entry `json:"entries"`
}

// ActionAck is the per-action outcome inside a batch acknowledgement.
type ActionAck struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// Ack is the acknowledgement paired with one Payload, keyed by action ID.
type Ack struct {
	BatchID string               `json:"batchId"`
	Results map[string]ActionAck `json:"results"`
}

// SendFunc delivers one payload over any request/response transport and
// returns its acknowledgement. The batcher is transport-agnostic.
type SendFunc func(ctx context.Context, p Payload) (Ack, error)

// Package thunk owns the lifecycle of multi-action workflows and the
// scheduler that admits their tasks.
//
// A thunk advances PENDING -> EXECUTING -> COMPLETED or FAILED, forward
// only; the Registry is the sole owner of thunk records and the Scheduler
// is the sole owner of the task queue. The scheduler enforces ordering
// (descending priority, FIFO within a band) and the cross-thunk
// mutual-exclusion gate: a non-concurrent task never starts while a
// non-concurrent task from a different thunk is running.
package thunk

// Package action defines the atomic state-mutation request, the tagged
// result variant returned by state capabilities, and the Executor that
// pushes a single action through a capability and normalizes its outcome.
//
// The Executor is the leaf operation of the engine: it never retries and
// never swallows errors. Recovery policy belongs to its callers.
package action

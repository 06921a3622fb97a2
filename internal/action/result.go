package action

import "github.com/goosewobbler/zubridge/internal/promise"

// ResultKind tags the shape of a capability result.
type ResultKind int

const (
	// KindValue is a plain synchronous result.
	KindValue ResultKind = iota

	// KindError is a failure signaled out-of-band by the capability.
	KindError

	// KindPending is an asynchronous result delivered later.
	KindPending
)

// String returns the kind name.
func (k ResultKind) String() string {
	switch k {
	case KindValue:
		return "value"
	case KindError:
		return "error"
	case KindPending:
		return "pending"
	default:
		return "unknown"
	}
}

// Result is the tagged variant a state capability returns from
// ProcessAction: Ok(value), Fail(err), or Pending(completion).
type Result struct {
	kind       ResultKind
	value      any
	err        error
	completion <-chan promise.Outcome
}

// Ok builds a plain-value result.
func Ok(value any) Result {
	return Result{kind: KindValue, value: value}
}

// Fail builds a result carrying a capability-signaled failure.
func Fail(err error) Result {
	return Result{kind: KindError, err: err}
}

// PendingResult builds a result whose outcome arrives on completion.
// The capability must send exactly one Outcome on the channel.
func PendingResult(completion <-chan promise.Outcome) Result {
	return Result{kind: KindPending, completion: completion}
}

// Kind returns the result's tag.
func (r Result) Kind() ResultKind {
	return r.kind
}

// Value returns the plain value. Only meaningful for KindValue.
func (r Result) Value() any {
	return r.value
}

// Err returns the signaled failure. Only meaningful for KindError.
func (r Result) Err() error {
	return r.err
}

// Completion returns the pending outcome channel. Only meaningful for
// KindPending.
func (r Result) Completion() <-chan promise.Outcome {
	return r.completion
}

// Package promise provides the single-assignment future used for every
// dispatch and batch continuation.
//
// A Promise settles exactly once: the first Resolve or Reject wins and all
// later settles are no-ops. Await blocks until settlement or context
// cancellation. Timeouts are surfaced as *TimeoutError so callers can
// distinguish "never answered" from "failed".
package promise

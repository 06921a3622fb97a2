// Package processor tracks which of a thunk's dispatched actions are
// still in flight, so the scheduler knows when a thunk is retirable.
//
// Every action gets a safety timer when it starts. If the timer fires
// before the state capability answers, the action is force-completed with
// a timeout marker and its underlying execution is abandoned (the context
// is cancelled best-effort, but the tracker does not wait). An action's
// completion fires exactly once: normal result, error, or timeout.
package processor

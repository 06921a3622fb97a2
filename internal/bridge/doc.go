// Package bridge is the entry point of the engine. It accepts a string
// action type, a structured action, or a thunk function, normalizes all
// three into scheduled work through the registry, scheduler, processor,
// and executor, and returns one promise for the result.
//
// The bridge also owns the outward surfaces: key-scoped state
// subscriptions fed from the capability's change stream, an optional
// batching transport for renderer-bound actions, and a middleware
// pipeline observing every executed action.
package bridge

// Package subscription decides, per state change, which listeners must be
// notified and with what slice of state.
//
// Subscriptions are scoped to dot-path keys ("settings.theme"); the
// manager compares JSON snapshots of the previous and next state per key
// and invokes only listeners whose slice actually changed, handing them a
// partial state holding just their subscribed paths. "*" (or an empty key
// set) means whole-state interest.
package subscription

// Package state defines the capability surface any concrete state
// container must expose to the engine, plus an in-memory JSON-document
// store adapter used by tests and examples.
//
// The engine never reaches past this interface: real backends (remote
// stores, reducer frameworks) adapt themselves to Capability.
package state

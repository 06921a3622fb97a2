// Package log provides leveled, field-based logging for the bridge.
//
// Components receive a *Logger at construction and default to NullLogger,
// so logging stays an injected collaborator rather than a global. Derived
// loggers (WithField, WithComponent) share the parent's output and level.
package log

package config

import (
	"errors"
	"fmt"
)

// Sentinel errors for configuration handling.
var (
	// ErrWatcherClosed is returned by operations on a closed watcher.
	ErrWatcherClosed = errors.New("config watcher is closed")
)

// ParseError describes a malformed configuration file.
type ParseError struct {
	Path string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parsing config file %s: %v", e.Path, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// ValidationError describes an out-of-range configuration value.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid config field %s: %s", e.Field, e.Message)
}

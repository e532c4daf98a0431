// Package apperrors declares the orchestrator's package-level sentinel
// errors, matched with errors.Is at call sites.
package apperrors

import "errors"

var (
	// ErrNotFound is returned when a referenced resource does not exist.
	ErrNotFound = errors.New("not found")
	// ErrUnknownDatabase is returned when a query names a logical database
	// that is not configured.
	ErrUnknownDatabase = errors.New("unknown database")
	// ErrDriverNotWired is returned for configured database types with no
	// compiled-in adapter.
	ErrDriverNotWired = errors.New("database driver not wired")
	// ErrPromptTooLong is returned when the request envelope's custom
	// system prompt exceeds its limit.
	ErrPromptTooLong = errors.New("custom system prompt too long")
	// ErrDisabledDatabases is returned when a SQL-touching operation is
	// requested while databases are disabled.
	ErrDisabledDatabases = errors.New("databases are disabled")
)

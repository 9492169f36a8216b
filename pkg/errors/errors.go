// Package errors defines sentinel errors shared across the bot.
package errors

import "errors"

// Startup errors
var (
	// ErrAlreadyRunning is returned when another live instance holds the account
	ErrAlreadyRunning = errors.New("another instance is already running")

	// ErrInvalidConfig is returned when configuration is invalid
	ErrInvalidConfig = errors.New("invalid configuration")
)

// Provisioning errors
var (
	// ErrSessionNotFound is returned when the session folder is missing from the bundle repo
	ErrSessionNotFound = errors.New("session folder not found in repository")

	// ErrCommandsNotFound is returned when the commands folder is missing from the bundle repo
	ErrCommandsNotFound = errors.New("commands folder not found in repository")
)

// Connection errors
var (
	// ErrNotConnected is returned when an operation requires a live session
	ErrNotConnected = errors.New("not connected")

	// ErrSessionClosed is returned when sending on a closed session
	ErrSessionClosed = errors.New("session closed")
)

// Command errors
var (
	// ErrUnknownHandler is returned when a command descriptor names an unregistered handler
	ErrUnknownHandler = errors.New("unknown handler")

	// ErrInvalidModule is returned when a command module fails validation
	ErrInvalidModule = errors.New("invalid command module")
)

// Storage errors
var (
	// ErrStorageNotInitialized is returned when storage is not initialized
	ErrStorageNotInitialized = errors.New("storage not initialized")
)

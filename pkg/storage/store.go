// Package storage persists user analytics across restarts. The in-memory
// registry in pkg/state stays authoritative at runtime; the store is a
// write-behind copy flushed periodically and on shutdown.
package storage

import (
	"wabot/pkg/state"
)

// Store defines the interface for persistent analytics operations
type Store interface {
	// User operations
	SaveUser(rec state.UserRecord) error
	SaveUsers(recs []state.UserRecord) error
	GetAllUsers() ([]state.UserRecord, error)

	// Counter operations
	SaveTotalCommands(total int64) error
	LoadTotalCommands() (int64, error)

	// Lifecycle
	Close() error
}

package storage

import (
	"errors"
	"time"

	"remindbot/internal/reminders"
)

var ErrClosed = errors.New("storage closed")

// Config configures storage.
//
// Driver values:
//   - "sqlite": SQLite database file at Path (default)
//   - "memory": volatile maps; when Path is set they are snapshotted to it
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Store is the persistence API used by the reminder engine.
type Store interface {
	reminders.Store
	Close() error
}

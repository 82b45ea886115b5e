// Package storage persists reminders and user preferences.
//
// Two backends are available:
//   - "sqlite": a SQLite database file (pure Go driver, WAL journal)
//   - "memory": in-process maps, optionally mirrored to a JSON snapshot file
package storage

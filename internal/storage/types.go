package storage

import (
	"errors"
	"time"
)

var ErrDisabled = errors.New("storage disabled")

// Config configures the audit store.
//
// Driver values:
//   - "file": append-only JSON Lines file
//   - "sqlite": SQLite database file
//
// If Driver is empty or "none", audit storage is disabled.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// AuditEntry records one reminder lifecycle event.
// Keep it compact and schema-stable.
type AuditEntry struct {
	At         time.Time
	OwnerID    int64
	ReminderID string
	Event      string
	Detail     string
}

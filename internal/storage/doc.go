// Package storage provides the optional audit trail for reminder lifecycle
// events (created, fired, rescheduled, retired, cancelled, delivery failures).
//
// It currently supports a dependency-free JSON Lines backend and a SQLite
// backend. Both honor a retention sweep driven by the janitor.
package storage

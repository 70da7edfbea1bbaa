package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	logx "remindbot/pkg/logx"
)

// Store is the audit trail behind the reminder engine: lifecycle events land
// here so that "why did my reminder fire/vanish" is answerable after the fact.
type Store interface {
	AppendAudit(ctx context.Context, e AuditEntry) error
	// PruneAudit drops entries older than before; returns how many were removed
	// (best-effort for drivers that can't count cheaply).
	PruneAudit(ctx context.Context, before time.Time) (int, error)
	Close() error
}

// Open initializes the configured store.
// It returns (nil, nil) if storage is disabled.
func Open(cfg Config, log logx.Logger) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" || driver == "none" {
		return nil, nil
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	switch driver {
	case "file":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}

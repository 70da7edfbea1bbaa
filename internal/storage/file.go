package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	logx "remindbot/pkg/logx"
)

// fileStore is a dependency-free audit backend: one JSON Lines file,
// append-only. Prune rewrites the file through a temp + rename.
type fileStore struct {
	log logx.Logger

	mu   sync.Mutex
	path string
	f    *os.File
}

type auditRecord struct {
	At         int64  `json:"at"` // unix milli
	OwnerID    int64  `json:"owner_id,omitempty"`
	ReminderID string `json:"reminder_id,omitempty"`
	Event      string `json:"event"`
	Detail     string `json:"detail,omitempty"`
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, err
	}
	return &fileStore{log: log, path: path, f: f}, nil
}

func (s *fileStore) AppendAudit(_ context.Context, e AuditEntry) error {
	rec := auditRecord{
		At:         e.At.UnixMilli(),
		OwnerID:    e.OwnerID,
		ReminderID: e.ReminderID,
		Event:      e.Event,
		Detail:     e.Detail,
	}
	b, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	b = append(b, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return ErrDisabled
	}
	_, err = s.f.Write(b)
	return err
}

func (s *fileStore) PruneAudit(_ context.Context, before time.Time) (int, error) {
	cutoff := before.UnixMilli()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return 0, ErrDisabled
	}

	in, err := os.Open(s.path)
	if err != nil {
		return 0, err
	}

	tmp := s.path + ".tmp"
	out, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		_ = in.Close()
		return 0, err
	}

	dropped := 0
	w := bufio.NewWriter(out)
	sc := bufio.NewScanner(in)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := sc.Bytes()
		var rec auditRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			// Keep lines we can't parse; pruning must not destroy evidence.
			_, _ = w.Write(append(line, '\n'))
			continue
		}
		if rec.At < cutoff {
			dropped++
			continue
		}
		_, _ = w.Write(append(line, '\n'))
	}
	scanErr := sc.Err()
	_ = in.Close()
	if err := w.Flush(); err != nil {
		_ = out.Close()
		return 0, err
	}
	if err := out.Close(); err != nil {
		return 0, err
	}
	if scanErr != nil {
		return 0, scanErr
	}

	// Swap the append handle to the rewritten file.
	_ = s.f.Close()
	if err := os.Rename(tmp, s.path); err != nil {
		// Reopen the old file so appends keep working.
		s.f, _ = os.OpenFile(s.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
		return 0, err
	}
	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		s.f = nil
		return dropped, err
	}
	s.f = f

	if dropped > 0 {
		s.log.Debug("audit pruned", logx.Int("dropped", dropped))
	}
	return dropped, nil
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return nil
	}
	err := s.f.Close()
	s.f = nil
	return err
}

package reminder

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	logx "remindbot/pkg/logx"
)

// Store is the durable + in-memory registry of reminders, partitioned by owner.
//
// Every mutation rewrites the whole store file; per-user reminder volume is
// expected to be tiny.
//
// Persistence failures are logged, never surfaced: the in-memory state stays
// authoritative for the running process, so a later successful write restores
// consistency.
type Store struct {
	log  logx.Logger
	path string

	mu      sync.Mutex
	byOwner map[int64][]Reminder
}

func NewStore(path string, log logx.Logger) *Store {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Store{
		log:     log,
		path:    path,
		byOwner: map[int64][]Reminder{},
	}
}

// Load reconstructs the store from the backing file. A missing or corrupt
// file degrades to an empty store; startup never fails on it.
func (s *Store) Load() int {
	b, err := os.ReadFile(s.path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			s.log.Warn("store file unreadable, starting empty", logx.String("path", s.path), logx.Err(err))
		}
		return 0
	}

	// Owner keys serialize as strings; coerce them back to numeric ids.
	var raw map[string][]Reminder
	if err := json.Unmarshal(b, &raw); err != nil {
		s.log.Warn("store file corrupt, starting empty", logx.String("path", s.path), logx.Err(err))
		return 0
	}

	loaded := map[int64][]Reminder{}
	n := 0
	for key, recs := range raw {
		owner, err := strconv.ParseInt(key, 10, 64)
		if err != nil {
			s.log.Warn("skipping non-numeric owner key in store file", logx.String("key", key))
			continue
		}
		for i := range recs {
			recs[i].OwnerID = owner
		}
		loaded[owner] = recs
		n += len(recs)
	}

	s.mu.Lock()
	s.byOwner = loaded
	s.mu.Unlock()
	return n
}

// Append adds a reminder to its owner's collection and persists.
func (s *Store) Append(r Reminder) {
	s.mu.Lock()
	s.byOwner[r.OwnerID] = append(s.byOwner[r.OwnerID], r)
	s.persistLocked()
	s.mu.Unlock()
}

// RemoveByID removes exactly one reminder. Removing an absent id is a no-op,
// not an error: retire paths race benignly with prune and cancel.
func (s *Store) RemoveByID(owner int64, id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	recs := s.byOwner[owner]
	for i := range recs {
		if recs[i].ID == id {
			s.byOwner[owner] = append(recs[:i:i], recs[i+1:]...)
			if len(s.byOwner[owner]) == 0 {
				delete(s.byOwner, owner)
			}
			s.persistLocked()
			return true
		}
	}
	return false
}

// UpdateDueAt advances the due time of the matching reminder and persists.
func (s *Store) UpdateDueAt(id string, due int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for owner, recs := range s.byOwner {
		for i := range recs {
			if recs[i].ID == id {
				s.byOwner[owner][i].DueAt = due
				s.persistLocked()
				return true
			}
		}
	}
	return false
}

// ListByOwner returns copies of the owner's reminders matching keep,
// preserving insertion order. A nil keep matches everything.
func (s *Store) ListByOwner(owner int64, keep func(Reminder) bool) []Reminder {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Reminder
	for _, r := range s.byOwner[owner] {
		if keep == nil || keep(r) {
			out = append(out, r)
		}
	}
	return out
}

// All returns a copy of the full store, for startup recovery.
func (s *Store) All() map[int64][]Reminder {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[int64][]Reminder, len(s.byOwner))
	for owner, recs := range s.byOwner {
		out[owner] = append([]Reminder(nil), recs...)
	}
	return out
}

// Len reports the total number of stored reminders.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, recs := range s.byOwner {
		n += len(recs)
	}
	return n
}

// PruneExpired drops one-shot reminders for the owner whose due time has
// passed. Used as the list-pending side effect.
func (s *Store) PruneExpired(owner int64, now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pruneOwnerLocked(owner, now)
}

// PruneAllExpired drops expired one-shot reminders for every owner.
// Leftovers can exist after a delivery whose removal failed to persist.
func (s *Store) PruneAllExpired(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for owner := range s.byOwner {
		n += s.pruneOwnerLocked(owner, now)
	}
	return n
}

func (s *Store) pruneOwnerLocked(owner int64, now time.Time) int {
	recs := s.byOwner[owner]
	kept := recs[:0:0]
	for _, r := range recs {
		if r.Recurrence == RecurNone && !r.Due().After(now) {
			continue
		}
		kept = append(kept, r)
	}
	dropped := len(recs) - len(kept)
	if dropped == 0 {
		return 0
	}
	if len(kept) == 0 {
		delete(s.byOwner, owner)
	} else {
		s.byOwner[owner] = kept
	}
	s.persistLocked()
	return dropped
}

// Persist forces a synchronous rewrite of the store file.
func (s *Store) Persist() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.persistLocked()
}

func (s *Store) persistLocked() error {
	out := make(map[string][]Reminder, len(s.byOwner))
	for owner, recs := range s.byOwner {
		out[strconv.FormatInt(owner, 10)] = recs
	}

	b, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		s.log.Error("store encode failed", logx.Err(err))
		return err
	}

	// Whole-file snapshot via temp + rename so a crash mid-write never
	// leaves a truncated store behind.
	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			s.log.Error("store dir create failed", logx.String("dir", dir), logx.Err(err))
			return err
		}
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		s.log.Error("store write failed", logx.String("path", tmp), logx.Err(err))
		return err
	}
	if err := os.Rename(tmp, s.path); err != nil {
		s.log.Error("store rename failed", logx.String("path", s.path), logx.Err(err))
		return err
	}
	return nil
}

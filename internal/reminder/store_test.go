package reminder

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	logx "remindbot/pkg/logx"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return NewStore(filepath.Join(t.TempDir(), "reminders.json"), logx.Nop())
}

func TestStoreRoundTrip(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "reminders.json")
	s := NewStore(path, logx.Nop())

	due := time.Now().Add(time.Hour).Unix()
	s.Append(Reminder{OwnerID: 42, ID: "a1", Text: "water the plants", DueAt: due, BaseInterval: 3600})
	s.Append(Reminder{OwnerID: 42, ID: "a2", Text: "standup", DueAt: due, Recurrence: RecurDaily, BaseInterval: 60})
	s.Append(Reminder{OwnerID: 7, ID: "b1", Text: "rent", DueAt: due, Recurrence: RecurMonthly, BaseInterval: 86400})

	s2 := NewStore(path, logx.Nop())
	if n := s2.Load(); n != 3 {
		t.Fatalf("Load = %d, want 3", n)
	}

	got := s2.ListByOwner(42, nil)
	if len(got) != 2 {
		t.Fatalf("owner 42: got %d reminders, want 2", len(got))
	}
	if got[0].ID != "a1" || got[1].ID != "a2" {
		t.Fatalf("insertion order lost: %q, %q", got[0].ID, got[1].ID)
	}
	if got[0].OwnerID != 42 {
		t.Fatalf("OwnerID not restored from map key: %d", got[0].OwnerID)
	}
	if got[1].Recurrence != RecurDaily {
		t.Fatalf("recurrence not restored: %s", got[1].Recurrence)
	}
	if got[0].DueAt != due || got[0].BaseInterval != 3600 {
		t.Fatalf("fields not restored: %+v", got[0])
	}
}

func TestStoreFileLayout(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "reminders.json")
	s := NewStore(path, logx.Nop())
	s.Append(Reminder{OwnerID: 42, ID: "a1", Text: "hi", DueAt: 1000, BaseInterval: 30})

	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read store file: %v", err)
	}
	var raw map[string][]map[string]any
	if err := json.Unmarshal(b, &raw); err != nil {
		t.Fatalf("store file not a string-keyed object: %v", err)
	}
	recs, ok := raw["42"]
	if !ok || len(recs) != 1 {
		t.Fatalf("expected one record under key %q, got %v", "42", raw)
	}
	for _, field := range []string{"text", "time", "id", "repeat", "original_seconds"} {
		if _, ok := recs[0][field]; !ok {
			t.Fatalf("record missing field %q: %v", field, recs[0])
		}
	}
	if recs[0]["repeat"] != nil {
		t.Fatalf("one-shot repeat should serialize as null, got %v", recs[0]["repeat"])
	}
}

func TestStoreLoadMissingAndCorrupt(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	s := NewStore(filepath.Join(dir, "absent.json"), logx.Nop())
	if n := s.Load(); n != 0 {
		t.Fatalf("Load missing = %d, want 0", n)
	}

	corrupt := filepath.Join(dir, "corrupt.json")
	if err := os.WriteFile(corrupt, []byte("{not json"), 0o600); err != nil {
		t.Fatal(err)
	}
	s = NewStore(corrupt, logx.Nop())
	if n := s.Load(); n != 0 {
		t.Fatalf("Load corrupt = %d, want 0", n)
	}
	if s.Len() != 0 {
		t.Fatalf("corrupt load left %d records", s.Len())
	}
}

func TestStoreLoadSkipsNonNumericOwnerKeys(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "reminders.json")
	blob := `{"42": [{"text": "ok", "time": 1000, "id": "a", "repeat": null, "original_seconds": 5}],
		"bogus": [{"text": "bad", "time": 1000, "id": "b", "repeat": null, "original_seconds": 5}]}`
	if err := os.WriteFile(path, []byte(blob), 0o600); err != nil {
		t.Fatal(err)
	}

	s := NewStore(path, logx.Nop())
	if n := s.Load(); n != 1 {
		t.Fatalf("Load = %d, want 1", n)
	}
	if got := s.ListByOwner(42, nil); len(got) != 1 || got[0].ID != "a" {
		t.Fatalf("numeric owner not loaded: %v", got)
	}
}

func TestStoreRemoveByID(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	s.Append(Reminder{OwnerID: 1, ID: "x", DueAt: 1000})
	s.Append(Reminder{OwnerID: 1, ID: "y", DueAt: 2000})

	if !s.RemoveByID(1, "x") {
		t.Fatal("RemoveByID(x) = false")
	}
	if s.RemoveByID(1, "x") {
		t.Fatal("removing twice should report false")
	}
	if s.RemoveByID(2, "y") {
		t.Fatal("remove under wrong owner should report false")
	}
	if got := s.ListByOwner(1, nil); len(got) != 1 || got[0].ID != "y" {
		t.Fatalf("unexpected survivors: %v", got)
	}
}

func TestStoreUpdateDueAt(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	s.Append(Reminder{OwnerID: 1, ID: "x", DueAt: 1000})

	if !s.UpdateDueAt("x", 5000) {
		t.Fatal("UpdateDueAt = false")
	}
	if got := s.ListByOwner(1, nil); got[0].DueAt != 5000 {
		t.Fatalf("DueAt = %d, want 5000", got[0].DueAt)
	}
	if s.UpdateDueAt("nope", 1) {
		t.Fatal("updating unknown id should report false")
	}
}

func TestStorePruneExpired(t *testing.T) {
	t.Parallel()

	now := time.Now()
	s := newTestStore(t)
	s.Append(Reminder{OwnerID: 1, ID: "past", DueAt: now.Add(-time.Minute).Unix()})
	s.Append(Reminder{OwnerID: 1, ID: "future", DueAt: now.Add(time.Hour).Unix()})
	// Recurring reminders are never pruned, even when overdue.
	s.Append(Reminder{OwnerID: 1, ID: "rec", DueAt: now.Add(-time.Minute).Unix(), Recurrence: RecurDaily})
	s.Append(Reminder{OwnerID: 2, ID: "other", DueAt: now.Add(-time.Minute).Unix()})

	if n := s.PruneExpired(1, now); n != 1 {
		t.Fatalf("PruneExpired(1) = %d, want 1", n)
	}
	if got := s.ListByOwner(1, nil); len(got) != 2 {
		t.Fatalf("owner 1: got %d, want 2", len(got))
	}
	// Other owners are untouched by the scoped prune.
	if got := s.ListByOwner(2, nil); len(got) != 1 {
		t.Fatalf("owner 2: got %d, want 1", len(got))
	}

	if n := s.PruneAllExpired(now); n != 1 {
		t.Fatalf("PruneAllExpired = %d, want 1", n)
	}
	if s.Len() != 2 {
		t.Fatalf("Len = %d, want 2", s.Len())
	}
}

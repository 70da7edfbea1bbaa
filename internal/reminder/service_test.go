package reminder

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	logx "remindbot/pkg/logx"
)

func newTestService(t *testing.T) (*Service, *Store, *fakeNotifier) {
	t.Helper()
	store := newTestStore(t)
	fn := newFakeNotifier()
	sched := NewScheduler(store, fn, nil, logx.Nop())
	sched.Start(context.Background())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = sched.Stop(ctx)
	})
	return NewService(store, sched, nil, logx.Nop()), store, fn
}

func TestServiceCreate(t *testing.T) {
	t.Parallel()

	svc, store, _ := newTestService(t)

	before := time.Now()
	rem, err := svc.Create(42, "5m", "drink water", RecurNone)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if rem.ID == "" {
		t.Fatal("empty id")
	}
	if rem.BaseInterval != 300 {
		t.Fatalf("BaseInterval = %d, want 300", rem.BaseInterval)
	}
	remaining := rem.Due().Sub(before)
	if remaining <= 0 || remaining > 5*time.Minute+time.Second {
		t.Fatalf("due in %v, want ~5m", remaining)
	}

	// Distinct reminders with identical text must not collide.
	rem2, err := svc.Create(42, "5m", "drink water", RecurNone)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if rem2.ID == rem.ID {
		t.Fatalf("id collision: %s", rem.ID)
	}
	if store.Len() != 2 {
		t.Fatalf("store has %d records, want 2", store.Len())
	}
}

func TestServiceCreateRejectsBadInput(t *testing.T) {
	t.Parallel()

	svc, store, _ := newTestService(t)

	if _, err := svc.Create(1, "soon", "x", RecurNone); err == nil {
		t.Fatal("expected parse error")
	} else {
		var perr *ParseError
		if !errors.As(err, &perr) {
			t.Fatalf("expected ParseError, got %T", err)
		}
	}

	if _, err := svc.Create(1, "0s", "x", RecurNone); err == nil {
		t.Fatal("expected range error for 0s")
	} else {
		var rerr *RangeError
		if !errors.As(err, &rerr) {
			t.Fatalf("expected RangeError, got %T", err)
		}
	}

	if _, err := svc.Create(1, "366d", "x", RecurDaily); err == nil {
		t.Fatal("expected range error for 366d")
	}
	if _, err := svc.Create(1, "365d", "x", RecurNone); err != nil {
		t.Fatalf("365d should be accepted: %v", err)
	}

	// Rejections never leak partial state.
	if store.Len() != 1 {
		t.Fatalf("store has %d records, want 1", store.Len())
	}
}

func TestServiceListPendingPrunesExpired(t *testing.T) {
	t.Parallel()

	svc, store, _ := newTestService(t)

	now := time.Now()
	store.Append(Reminder{OwnerID: 1, ID: "past", DueAt: now.Add(-time.Minute).Unix()})
	store.Append(Reminder{OwnerID: 1, ID: "future", DueAt: now.Add(time.Hour).Unix()})
	store.Append(Reminder{OwnerID: 1, ID: "rec", DueAt: now.Add(time.Hour).Unix(), Recurrence: RecurWeekly})

	pending := svc.ListPending(1)
	if len(pending) != 1 || pending[0].ID != "future" {
		t.Fatalf("pending = %v, want only %q", pending, "future")
	}
	// The expired one-shot is gone for good, the recurring one stays.
	if store.Len() != 2 {
		t.Fatalf("store has %d records, want 2", store.Len())
	}

	recurring := svc.ListRecurring(1)
	if len(recurring) != 1 || recurring[0].ID != "rec" {
		t.Fatalf("recurring = %v, want only %q", recurring, "rec")
	}
}

func TestServiceCancel(t *testing.T) {
	t.Parallel()

	svc, store, fn := newTestService(t)

	rem, err := svc.Create(1, "1h", "call mom", RecurNone)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if !svc.Cancel(1, rem.ID) {
		t.Fatal("Cancel = false")
	}
	if store.Len() != 0 {
		t.Fatalf("store has %d records after cancel", store.Len())
	}
	if svc.Cancel(1, rem.ID) {
		t.Fatal("second cancel should report false")
	}
	fn.expectQuiet(t, 100*time.Millisecond)
}

func TestServiceCancelByPrefix(t *testing.T) {
	t.Parallel()

	svc, store, _ := newTestService(t)

	store.Append(Reminder{OwnerID: 1, ID: "abc12345", Text: "one", DueAt: time.Now().Add(time.Hour).Unix()})
	store.Append(Reminder{OwnerID: 1, ID: "abd67890", Text: "two", DueAt: time.Now().Add(time.Hour).Unix()})

	if _, ok := svc.CancelByPrefix(1, "ab"); ok {
		t.Fatal("ambiguous prefix must cancel nothing")
	}
	if _, ok := svc.CancelByPrefix(1, ""); ok {
		t.Fatal("empty prefix must cancel nothing")
	}
	if _, ok := svc.CancelByPrefix(2, "abc"); ok {
		t.Fatal("wrong owner must cancel nothing")
	}

	rem, ok := svc.CancelByPrefix(1, "abc")
	if !ok || rem.Text != "one" {
		t.Fatalf("CancelByPrefix = %+v, %v", rem, ok)
	}
	if store.Len() != 1 {
		t.Fatalf("store has %d records, want 1", store.Len())
	}
}

func TestServiceRecover(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "reminders.json")

	seed := NewStore(path, logx.Nop())
	seed.Append(Reminder{OwnerID: 1, ID: "over", Text: "missed", DueAt: time.Now().Add(-time.Hour).Unix()})
	seed.Append(Reminder{OwnerID: 2, ID: "ahead", Text: "later", DueAt: time.Now().Add(time.Hour).Unix()})

	// Fresh process: same file, empty memory.
	store := NewStore(path, logx.Nop())
	fn := newFakeNotifier()
	sched := NewScheduler(store, fn, nil, logx.Nop())
	sched.Start(context.Background())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = sched.Stop(ctx)
	})
	svc := NewService(store, sched, nil, logx.Nop())

	if n := svc.Recover(); n != 2 {
		t.Fatalf("Recover = %d, want 2", n)
	}

	d := fn.expectFire(t, 2*time.Second)
	if d.owner != 1 || d.text != "missed" {
		t.Fatalf("unexpected delivery: %+v", d)
	}
	fn.expectQuiet(t, 100*time.Millisecond)
}

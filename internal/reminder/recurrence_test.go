package reminder

import (
	"encoding/json"
	"testing"
	"time"
)

func TestRecurrenceNext(t *testing.T) {
	t.Parallel()

	base := time.Unix(1_700_000_000, 0)
	cases := []struct {
		rec   Recurrence
		delta int64
	}{
		{RecurDaily, 86_400},
		{RecurWeekly, 604_800},
		{RecurMonthly, 2_592_000},
	}
	for _, tc := range cases {
		next, ok := tc.rec.Next(base)
		if !ok {
			t.Fatalf("%s: expected ok", tc.rec)
		}
		if got := next.Unix() - base.Unix(); got != tc.delta {
			t.Fatalf("%s: delta = %d, want %d", tc.rec, got, tc.delta)
		}
	}

	if _, ok := RecurNone.Next(base); ok {
		t.Fatal("one-shot reminders must not re-arm")
	}
}

func TestRecurrenceJSON(t *testing.T) {
	t.Parallel()

	cases := []struct {
		rec  Recurrence
		wire string
	}{
		{RecurNone, "null"},
		{RecurDaily, `"daily"`},
		{RecurWeekly, `"weekly"`},
		{RecurMonthly, `"monthly"`},
	}
	for _, tc := range cases {
		b, err := json.Marshal(tc.rec)
		if err != nil {
			t.Fatalf("marshal %s: %v", tc.rec, err)
		}
		if string(b) != tc.wire {
			t.Fatalf("marshal %s = %s, want %s", tc.rec, b, tc.wire)
		}
		var back Recurrence
		if err := json.Unmarshal(b, &back); err != nil {
			t.Fatalf("unmarshal %s: %v", b, err)
		}
		if back != tc.rec {
			t.Fatalf("round trip %s: got %s", tc.rec, back)
		}
	}

	var rec Recurrence
	if err := json.Unmarshal([]byte(`"yearly"`), &rec); err == nil {
		t.Fatal("expected error for unknown recurrence value")
	}
}

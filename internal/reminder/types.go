package reminder

import (
	"encoding/json"
	"fmt"
	"time"
)

// Recurrence is the re-arm cadence of a reminder. The zero value means
// one-shot. Monthly is a fixed 30-day step, not a calendar month.
type Recurrence int

const (
	RecurNone Recurrence = iota
	RecurDaily
	RecurWeekly
	RecurMonthly
)

func (r Recurrence) String() string {
	switch r {
	case RecurDaily:
		return "daily"
	case RecurWeekly:
		return "weekly"
	case RecurMonthly:
		return "monthly"
	default:
		return "none"
	}
}

// MarshalJSON encodes the recurrence as null | "daily" | "weekly" | "monthly".
// One-shot reminders persist as an explicit null so older store files stay readable.
func (r Recurrence) MarshalJSON() ([]byte, error) {
	if r == RecurNone {
		return []byte("null"), nil
	}
	return json.Marshal(r.String())
}

func (r *Recurrence) UnmarshalJSON(b []byte) error {
	var s *string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	if s == nil {
		*r = RecurNone
		return nil
	}
	switch *s {
	case "daily":
		*r = RecurDaily
	case "weekly":
		*r = RecurWeekly
	case "monthly":
		*r = RecurMonthly
	case "", "none":
		*r = RecurNone
	default:
		return fmt.Errorf("unknown recurrence %q", *s)
	}
	return nil
}

// Reminder is the unit of scheduling: one message, one owner, one due time.
//
// The JSON tags define the durable record layout. OwnerID is not part of the
// record; the store file maps owner id -> records.
type Reminder struct {
	OwnerID      int64      `json:"-"`
	Text         string     `json:"text"`
	DueAt        int64      `json:"time"` // unix seconds
	ID           string     `json:"id"`
	Recurrence   Recurrence `json:"repeat"`
	BaseInterval int64      `json:"original_seconds"`
}

// Due returns the due instant as a time.Time.
func (r Reminder) Due() time.Time { return time.Unix(r.DueAt, 0) }

// Interval bounds enforced on every creation path.
const (
	MinInterval = time.Second
	MaxInterval = 365 * 24 * time.Hour
)

// ParseError reports a duration token that doesn't match <digits><s|m|h|d>.
type ParseError struct {
	Token string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("invalid duration token %q", e.Token)
}

// RangeError reports a duration outside [MinInterval, MaxInterval].
type RangeError struct {
	Requested time.Duration
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("duration %s out of range [%s, %s]", e.Requested, MinInterval, MaxInterval)
}

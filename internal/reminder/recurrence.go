package reminder

import "time"

// Step returns the fixed advance applied between firings, or 0 for one-shot.
func (r Recurrence) Step() time.Duration {
	switch r {
	case RecurDaily:
		return 24 * time.Hour
	case RecurWeekly:
		return 7 * 24 * time.Hour
	case RecurMonthly:
		// Fixed 30-day approximation; recurrence is not calendar-aware.
		return 30 * 24 * time.Hour
	default:
		return 0
	}
}

// Next computes the next fire instant after a firing at t.
// ok is false for one-shot reminders, which retire instead of re-arming.
//
// Pure function: the next due time is derived from the previous due time,
// never from the wall clock, so a late delivery does not drift the schedule.
func (r Recurrence) Next(t time.Time) (next time.Time, ok bool) {
	step := r.Step()
	if step == 0 {
		return time.Time{}, false
	}
	return t.Add(step), true
}

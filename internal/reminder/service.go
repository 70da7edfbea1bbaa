package reminder

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"remindbot/internal/eventbus"
	logx "remindbot/pkg/logx"
)

// Service is the façade external callers use: create, list, cancel, and the
// startup recovery that rehydrates the scheduler from the store.
type Service struct {
	log   logx.Logger
	store *Store
	sched *Scheduler
	bus   eventbus.Bus
}

func NewService(store *Store, sched *Scheduler, bus eventbus.Bus, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{log: log, store: store, sched: sched, bus: bus}
}

// Create parses and validates the duration token, persists the reminder and
// arms its timer. The range check applies uniformly to every recurrence kind.
func (s *Service) Create(owner int64, token, text string, rec Recurrence) (Reminder, error) {
	d, err := ParseInterval(token)
	if err != nil {
		return Reminder{}, err
	}
	if d < MinInterval || d > MaxInterval {
		return Reminder{}, &RangeError{Requested: d}
	}

	now := time.Now()
	rem := Reminder{
		// Random ids decouple identity from content; equal texts created in
		// the same second must not collide.
		ID:           uuid.NewString(),
		OwnerID:      owner,
		Text:         text,
		DueAt:        now.Add(d).Unix(),
		Recurrence:   rec,
		BaseInterval: int64(d / time.Second),
	}

	s.store.Append(rem)
	s.sched.Arm(rem)

	s.log.Info("reminder created",
		logx.Int64("owner", owner),
		logx.String("id", rem.ID),
		logx.Duration("in", d),
		logx.String("recurrence", rec.String()))
	if s.bus != nil {
		s.bus.Publish(eventbus.Event{Type: EventCreated, Time: now, Data: LifecycleEvent{
			OwnerID:    owner,
			ID:         rem.ID,
			Text:       rem.Text,
			DueAt:      rem.DueAt,
			Recurrence: rec.String(),
		}})
	}
	return rem, nil
}

// ListPending returns the owner's active one-shot reminders, pruning already
// expired entries as a side effect.
func (s *Service) ListPending(owner int64) []Reminder {
	if n := s.store.PruneExpired(owner, time.Now()); n > 0 {
		s.log.Debug("pruned expired reminders", logx.Int64("owner", owner), logx.Int("count", n))
	}
	return s.store.ListByOwner(owner, func(r Reminder) bool {
		return r.Recurrence == RecurNone
	})
}

// ListRecurring returns the owner's recurring reminders.
func (s *Service) ListRecurring(owner int64) []Reminder {
	return s.store.ListByOwner(owner, func(r Reminder) bool {
		return r.Recurrence != RecurNone
	})
}

// Cancel removes the reminder and stops its pending task without firing.
func (s *Service) Cancel(owner int64, id string) bool {
	removed := s.store.RemoveByID(owner, id)
	disarmed := s.sched.Disarm(id)
	if !removed && !disarmed {
		return false
	}
	s.log.Info("reminder cancelled", logx.Int64("owner", owner), logx.String("id", id))
	if s.bus != nil {
		s.bus.Publish(eventbus.Event{Type: EventCancelled, Time: time.Now(), Data: LifecycleEvent{
			OwnerID: owner,
			ID:      id,
		}})
	}
	return true
}

// CancelByPrefix cancels the owner's single reminder whose id starts with the
// given prefix. Ambiguous or unknown prefixes cancel nothing.
func (s *Service) CancelByPrefix(owner int64, prefix string) (Reminder, bool) {
	if prefix == "" {
		return Reminder{}, false
	}
	matches := s.store.ListByOwner(owner, func(r Reminder) bool {
		return strings.HasPrefix(r.ID, prefix)
	})
	if len(matches) != 1 {
		return Reminder{}, false
	}
	rem := matches[0]
	if !s.Cancel(owner, rem.ID) {
		return Reminder{}, false
	}
	return rem, true
}

// Recover loads the durable store and arms every reminder in it. Overdue
// reminders fire immediately.
func (s *Service) Recover() int {
	loaded := s.store.Load()
	armed := s.sched.RecoverAll(s.store.All())
	s.log.Info("reminders recovered", logx.Int("loaded", loaded), logx.Int("armed", armed))
	return armed
}

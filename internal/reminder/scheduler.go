package reminder

import (
	"context"
	"sync"
	"time"

	"remindbot/internal/eventbus"
	rtsup "remindbot/internal/runtime/supervisor"
	logx "remindbot/pkg/logx"
)

// Bus event types published by the scheduler and service.
const (
	EventCreated        = "reminder.created"
	EventFired          = "reminder.fired"
	EventRescheduled    = "reminder.rescheduled"
	EventRetired        = "reminder.retired"
	EventDeliveryFailed = "reminder.delivery_failed"
	EventCancelled      = "reminder.cancelled"
)

// LifecycleEvent is the bus payload for reminder events. Keep it small;
// subscribers may serialize it.
type LifecycleEvent struct {
	OwnerID    int64  `json:"owner_id"`
	ID         string `json:"id"`
	Text       string `json:"text,omitempty"`
	DueAt      int64  `json:"due_at,omitempty"`
	Recurrence string `json:"recurrence,omitempty"`
	Error      string `json:"error,omitempty"`
}

// Notifier delivers a rendered reminder to its owner. Implementations must be
// safe for concurrent use across owners.
type Notifier interface {
	Deliver(ctx context.Context, owner int64, text string) error
}

// Scheduler owns one wait-and-fire task per armed reminder and guarantees at
// most one delivery attempt per due occurrence.
//
// Task lifecycle per reminder: armed -> firing -> (retired | armed). Recurring
// reminders loop inside a single task; one-shots exit after the attempt.
// Disarm cancels the wait without firing. A disarm racing a task already past
// its wait is benign: at most one extra delivery, never a crash.
type Scheduler struct {
	log    logx.Logger
	store  *Store
	notify Notifier
	bus    eventbus.Bus

	mu    sync.Mutex
	sup   *rtsup.Supervisor
	tasks map[string]*task
}

type task struct {
	cancel context.CancelFunc
	done   chan struct{}
}

func NewScheduler(store *Store, notify Notifier, bus eventbus.Bus, log logx.Logger) *Scheduler {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Scheduler{
		log:    log,
		store:  store,
		notify: notify,
		bus:    bus,
		tasks:  map[string]*task{},
	}
}

// Start binds the scheduler to a run context. Arm panics are contained by the
// supervisor; a scheduler that was never started ignores Arm calls.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sup != nil {
		return
	}
	s.sup = rtsup.New(ctx,
		rtsup.WithLogger(s.log),
		// A panicking reminder task must not take down its siblings.
		rtsup.WithCancelOnError(false),
	)
}

// Stop cancels every pending task and waits for them to exit.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	sup := s.sup
	s.sup = nil
	s.tasks = map[string]*task{}
	s.mu.Unlock()

	if sup == nil {
		return nil
	}
	return sup.Stop(ctx)
}

// Armed reports the number of live tasks.
func (s *Scheduler) Armed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}

// Arm schedules a wait-and-fire task for the reminder. Arming an id that is
// already armed is a no-op; the existing task keeps its timer.
func (s *Scheduler) Arm(rem Reminder) {
	s.mu.Lock()
	sup := s.sup
	if sup == nil {
		s.mu.Unlock()
		s.log.Warn("arm ignored, scheduler not started", logx.String("id", rem.ID))
		return
	}
	if _, exists := s.tasks[rem.ID]; exists {
		s.mu.Unlock()
		return
	}
	tctx, cancel := context.WithCancel(sup.Context())
	t := &task{cancel: cancel, done: make(chan struct{})}
	s.tasks[rem.ID] = t
	s.mu.Unlock()

	sup.Go0("reminder."+rem.ID, func(context.Context) {
		defer close(t.done)
		defer s.forget(rem.ID, t)
		s.run(tctx, rem)
	})
}

// Disarm cancels the reminder's task without firing it. It does not touch the
// store; callers decide whether the reminder itself survives.
func (s *Scheduler) Disarm(id string) bool {
	s.mu.Lock()
	t, ok := s.tasks[id]
	s.mu.Unlock()
	if !ok {
		return false
	}
	t.cancel()
	return true
}

// RecoverAll arms every loaded reminder. Overdue reminders fire immediately
// rather than being dropped, preserving at-least-once across restarts.
func (s *Scheduler) RecoverAll(all map[int64][]Reminder) int {
	n := 0
	for _, recs := range all {
		for _, rem := range recs {
			s.Arm(rem)
			n++
		}
	}
	return n
}

func (s *Scheduler) forget(id string, t *task) {
	s.mu.Lock()
	if cur, ok := s.tasks[id]; ok && cur == t {
		delete(s.tasks, id)
	}
	s.mu.Unlock()
}

func (s *Scheduler) run(ctx context.Context, rem Reminder) {
	for {
		// Clamp to zero: overdue reminders (e.g. recovered after downtime)
		// fire immediately, never sleep negative.
		wait := time.Until(rem.Due())
		if wait < 0 {
			wait = 0
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		err := s.notify.Deliver(ctx, rem.OwnerID, rem.Text)
		if err != nil {
			if ctx.Err() != nil {
				// Shutdown or disarm raced the delivery; keep the reminder
				// persisted so the next run retries it.
				return
			}
			// Fire-and-forget semantics: the attempt counts as consumed.
			// The failure is logged and audited, never silently dropped.
			s.log.Error("reminder delivery failed",
				logx.Int64("owner", rem.OwnerID),
				logx.String("id", rem.ID),
				logx.Err(err))
			s.store.RemoveByID(rem.OwnerID, rem.ID)
			s.publish(EventDeliveryFailed, rem, err)
			return
		}

		s.log.Debug("reminder delivered",
			logx.Int64("owner", rem.OwnerID),
			logx.String("id", rem.ID),
			logx.String("recurrence", rem.Recurrence.String()))
		s.publish(EventFired, rem, nil)

		next, ok := rem.Recurrence.Next(rem.Due())
		if !ok {
			s.store.RemoveByID(rem.OwnerID, rem.ID)
			s.publish(EventRetired, rem, nil)
			return
		}

		// Advance from the previous due instant so late deliveries don't
		// drift the schedule. Boundaries missed while the process was down
		// are covered by the fire above; skip past them rather than replay
		// one delivery per missed window.
		now := time.Now()
		for !next.After(now) {
			next, _ = rem.Recurrence.Next(next)
		}
		rem.DueAt = next.Unix()
		s.store.UpdateDueAt(rem.ID, rem.DueAt)
		s.publish(EventRescheduled, rem, nil)
	}
}

func (s *Scheduler) publish(typ string, rem Reminder, err error) {
	if s.bus == nil {
		return
	}
	le := LifecycleEvent{
		OwnerID:    rem.OwnerID,
		ID:         rem.ID,
		Text:       rem.Text,
		DueAt:      rem.DueAt,
		Recurrence: rem.Recurrence.String(),
	}
	if err != nil {
		le.Error = err.Error()
	}
	s.bus.Publish(eventbus.Event{Type: typ, Time: time.Now(), Data: le})
}

// waitFor returns the done channel of the task for id, or a closed channel if
// no such task exists. Intended for tests and shutdown bookkeeping.
func (s *Scheduler) waitFor(id string) <-chan struct{} {
	s.mu.Lock()
	t, ok := s.tasks[id]
	s.mu.Unlock()
	if ok {
		return t.done
	}
	ch := make(chan struct{})
	close(ch)
	return ch
}

// Package janitor runs periodic maintenance around the reminder engine:
// sweeping expired one-shot leftovers out of the store and enforcing audit
// retention. Schedules use robfig/cron syntax, including "@every" intervals.
package janitor

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"remindbot/internal/reminder"
	"remindbot/internal/storage"
	logx "remindbot/pkg/logx"
)

type Config struct {
	Enabled        bool
	Schedule       string        // cron spec or @every interval; default "@every 1h"
	AuditRetention time.Duration // 0 disables the audit sweep
}

type Service struct {
	log   logx.Logger
	cfg   Config
	store *reminder.Store
	audit storage.Store

	mu sync.Mutex
	c  *cron.Cron
}

func New(cfg Config, store *reminder.Store, audit storage.Store, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	if cfg.Schedule == "" {
		cfg.Schedule = "@every 1h"
	}
	return &Service{log: log, cfg: cfg, store: store, audit: audit}
}

func (s *Service) Start(ctx context.Context) error {
	if !s.cfg.Enabled {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil {
		return nil
	}

	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	c := cron.New(cron.WithParser(parser))
	if _, err := c.AddFunc(s.cfg.Schedule, func() { s.runOnce(ctx) }); err != nil {
		return err
	}
	c.Start()
	s.c = c
	s.log.Info("janitor started", logx.String("schedule", s.cfg.Schedule))
	return nil
}

func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	c := s.c
	s.c = nil
	s.mu.Unlock()
	if c == nil {
		return
	}

	stopCtx := c.Stop()
	select {
	case <-stopCtx.Done():
	case <-ctx.Done():
	}
}

func (s *Service) runOnce(ctx context.Context) {
	start := time.Now()

	pruned := s.store.PruneAllExpired(start)
	if pruned > 0 {
		s.log.Info("expired reminders swept", logx.Int("count", pruned))
	}

	if s.audit != nil && s.cfg.AuditRetention > 0 {
		pctx, cancel := context.WithTimeout(ctx, 30*time.Second)
		n, err := s.audit.PruneAudit(pctx, start.Add(-s.cfg.AuditRetention))
		cancel()
		if err != nil {
			s.log.Warn("audit retention sweep failed", logx.Err(err))
		} else if n > 0 {
			s.log.Info("audit entries pruned", logx.Int("count", n))
		}
	}

	s.log.Debug("janitor pass done", logx.Duration("took", time.Since(start)))
}

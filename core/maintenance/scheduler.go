// Package maintenance runs the periodic housekeeping sweeps: expired
// session purge and audit log retention.
package maintenance

import (
	"context"
	"time"

	"crisishub/config"
	"crisishub/core/store"
	"crisishub/core/utils"

	"github.com/robfig/cron/v3"
)

type Scheduler struct {
	cfg      config.MaintenanceConfig
	sessions store.SessionStore
	audits   store.AuditStore
	logger   *utils.Logger
	cron     *cron.Cron
}

func NewScheduler(cfg config.MaintenanceConfig, sessions store.SessionStore, audits store.AuditStore, logger *utils.Logger) *Scheduler {
	return &Scheduler{cfg: cfg, sessions: sessions, audits: audits, logger: logger}
}

func (s *Scheduler) Start() error {
	if s == nil || !s.cfg.Enabled {
		return nil
	}
	c := cron.New()
	schedule := s.cfg.Schedule
	if schedule == "" {
		schedule = "@every 5m"
	}
	if _, err := c.AddFunc(schedule, s.sweep); err != nil {
		return err
	}
	c.Start()
	s.cron = c
	if s.logger != nil {
		s.logger.Printf("MAINT scheduler started schedule=%q", schedule)
	}
	return nil
}

func (s *Scheduler) Stop() {
	if s == nil || s.cron == nil {
		return
	}
	ctx := s.cron.Stop()
	<-ctx.Done()
}

func (s *Scheduler) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	s.RunOnce(ctx, time.Now().UTC())
}

func (s *Scheduler) RunOnce(ctx context.Context, now time.Time) {
	if deleted, err := s.sessions.DeleteExpired(ctx, now); err != nil {
		if s.logger != nil {
			s.logger.Errorf("MAINT session purge: %v", err)
		}
	} else if deleted > 0 && s.logger != nil {
		s.logger.Printf("MAINT purged %d expired sessions", deleted)
	}
	if s.cfg.AuditRetentionDays > 0 {
		cutoff := now.AddDate(0, 0, -s.cfg.AuditRetentionDays)
		if trimmed, err := s.audits.TrimBefore(ctx, cutoff); err != nil {
			if s.logger != nil {
				s.logger.Errorf("MAINT audit trim: %v", err)
			}
		} else if trimmed > 0 && s.logger != nil {
			s.logger.Printf("MAINT trimmed %d audit rows", trimmed)
		}
	}
}

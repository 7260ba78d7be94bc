package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/avatarctic/order-quota/internal/core/domain/interval"
	"github.com/avatarctic/order-quota/internal/core/domain/quota"
	"github.com/avatarctic/order-quota/internal/core/ports"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// RolloverScheduler fires at every window boundary and drops the cached counts of the
// window that just ended. Correctness does not depend on it: cache keys carry the window
// start, so this only keeps the cache from accumulating dead entries.
type RolloverScheduler struct {
	quota   ports.QuotaService
	loc     *time.Location
	metrics *QuotaMetrics
	logger  *logrus.Logger

	mu      sync.Mutex
	cron    *cron.Cron
	jobCtx  context.Context
	entry   cron.EntryID
	spec    string
	running bool
}

func NewRolloverScheduler(quotaSvc ports.QuotaService, loc *time.Location, metrics *QuotaMetrics, logger *logrus.Logger) *RolloverScheduler {
	if loc == nil {
		loc = time.UTC
	}
	return &RolloverScheduler{
		quota:   quotaSvc,
		loc:     loc,
		metrics: metrics,
		logger:  logger,
		cron:    cron.New(cron.WithLocation(loc)),
		jobCtx:  context.Background(),
	}
}

// Start schedules the rollover job for the current settings and stops it when ctx is done.
func (s *RolloverScheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	s.jobCtx = ctx
	s.mu.Unlock()

	if err := s.Reschedule(ctx, s.quota.Settings()); err != nil {
		return err
	}

	s.mu.Lock()
	s.cron.Start()
	s.running = true
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.Stop()
	}()
	return nil
}

// Reschedule replaces the job with one matching next's interval. It has the settings
// listener signature so it can be registered with SettingsService.OnChange; jobs always
// run under the context given to Start, never the caller's.
func (s *RolloverScheduler) Reschedule(_ context.Context, next quota.Settings) error {
	spec, err := interval.CronSpec(next.Interval, next.WeekStartDay)
	if err != nil {
		return fmt.Errorf("invalid rollover schedule: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if spec == s.spec {
		return nil
	}
	if s.entry != 0 {
		s.cron.Remove(s.entry)
	}
	jobCtx := s.jobCtx
	id, err := s.cron.AddFunc(spec, func() { s.rollover(jobCtx) })
	if err != nil {
		return fmt.Errorf("failed to schedule rollover %q: %w", spec, err)
	}
	s.entry = id
	s.spec = spec
	if s.logger != nil {
		s.logger.WithFields(logrus.Fields{"schedule": spec, "interval": next.Interval, "timezone": s.loc.String()}).Info("window rollover scheduled")
	}
	return nil
}

// Spec returns the cron expression currently scheduled.
func (s *RolloverScheduler) Spec() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.spec
}

func (s *RolloverScheduler) rollover(ctx context.Context) {
	s.metrics.rollover()
	if err := s.quota.InvalidateCache(ctx, ports.InvalidateWindowRollover); err != nil {
		if s.logger != nil {
			s.logger.WithError(err).Warn("window rollover invalidation failed")
		}
		return
	}
	if s.logger != nil {
		s.logger.Debug("window rollover completed")
	}
}

// Stop stops the scheduler and waits for a running job to complete.
func (s *RolloverScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		<-s.cron.Stop().Done()
		s.running = false
		if s.logger != nil {
			s.logger.Info("window rollover scheduler stopped")
		}
	}
}

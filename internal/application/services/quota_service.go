package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/avatarctic/order-quota/internal/core/domain/interval"
	"github.com/avatarctic/order-quota/internal/core/domain/order"
	"github.com/avatarctic/order-quota/internal/core/domain/quota"
	"github.com/avatarctic/order-quota/internal/core/ports"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

// QuotaServiceConfig groups configuration parameters for the quota limiter.
type QuotaServiceConfig struct {
	// Defaults are used until settings have been saved to the settings store.
	Defaults     quota.Settings
	Location     *time.Location
	QueryTimeout time.Duration
	Transform    interval.StartTransform
}

// QuotaService is the interval-based order quota limiter.
type QuotaService struct {
	settingsRepo ports.SettingsRepository
	orders       ports.OrderRepository
	overrides    ports.OverrideRepository
	counts       ports.OrderCountCache
	calc         *interval.Calculator
	defaults     quota.Settings
	loc          *time.Location
	queryTimeout time.Duration
	metrics      *QuotaMetrics
	logger       *logrus.Logger

	mu        sync.RWMutex
	settings  quota.Settings
	configErr error

	sf singleflight.Group
}

// NewQuotaService builds the limiter and loads its settings once. counts may be nil, in
// which case every count goes to the order store.
func NewQuotaService(
	ctx context.Context,
	settingsRepo ports.SettingsRepository,
	orders ports.OrderRepository,
	overrides ports.OverrideRepository,
	counts ports.OrderCountCache,
	cfg *QuotaServiceConfig,
	metrics *QuotaMetrics,
	logger *logrus.Logger,
) (*QuotaService, error) {
	s := &QuotaService{
		settingsRepo: settingsRepo,
		orders:       orders,
		overrides:    overrides,
		counts:       counts,
		loc:          time.UTC,
		queryTimeout: 3 * time.Second,
		metrics:      metrics,
		logger:       logger,
	}
	var transform interval.StartTransform
	if cfg != nil {
		s.defaults = cfg.Defaults
		if cfg.Location != nil {
			s.loc = cfg.Location
		}
		if cfg.QueryTimeout > 0 {
			s.queryTimeout = cfg.QueryTimeout
		}
		transform = cfg.Transform
	}
	s.calc = interval.NewCalculator(transform)

	if err := s.Reload(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

type settingsSnapshot struct {
	quota.Settings
	err error
}

func (s *QuotaService) snapshot() settingsSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return settingsSnapshot{Settings: s.settings, err: s.configErr}
}

func (s *QuotaService) install(next quota.Settings) {
	err := next.Validate()
	s.mu.Lock()
	s.settings = next
	s.configErr = err
	s.mu.Unlock()

	if s.logger == nil {
		return
	}
	fields := logrus.Fields{"enabled": next.Enabled, "interval": next.Interval, "limit": next.Limit, "week_start_day": int(next.WeekStartDay)}
	if err != nil {
		s.logger.WithFields(fields).WithError(err).Error("quota settings are invalid; enforcement will fail until corrected")
		return
	}
	s.logger.WithFields(fields).Info("quota settings loaded")
}

// Reload re-reads the settings store. A missing row falls back to the configured defaults.
func (s *QuotaService) Reload(ctx context.Context) error {
	stored, err := s.settingsRepo.Get(ctx)
	if err != nil {
		return fmt.Errorf("failed to load quota settings: %w", err)
	}
	next := s.defaults
	if stored != nil {
		next = *stored
	}
	s.install(next)
	return nil
}

// HandleSettingsChange installs s and drops every cached count.
func (s *QuotaService) HandleSettingsChange(ctx context.Context, next quota.Settings) error {
	s.install(next)
	return s.InvalidateCache(ctx, ports.InvalidateSettingsChanged)
}

func (s *QuotaService) Settings() quota.Settings {
	return s.snapshot().Settings
}

func (s *QuotaService) IsEnabled() bool {
	return s.snapshot().Enabled
}

func (s *QuotaService) windowFor(snap settingsSnapshot, ref time.Time) (interval.Window, error) {
	if snap.err != nil {
		return interval.Window{}, snap.err
	}
	return s.calc.Window(ref.In(s.loc), snap.Interval, snap.WeekStartDay), nil
}

func (s *QuotaService) CurrentWindow(ref time.Time) (interval.Window, error) {
	return s.windowFor(s.snapshot(), ref)
}

func (s *QuotaService) SecondsUntilNextWindow(ref time.Time) (int64, error) {
	w, err := s.CurrentWindow(ref)
	if err != nil {
		return 0, err
	}
	return int64(w.End.Sub(ref) / time.Second), nil
}

// ResolveLimit returns the user's override when one exists, else the global limit.
// A limit of 0 blocks every order. A present override of 0 still wins over the global limit.
func (s *QuotaService) ResolveLimit(ctx context.Context, userID int64) (int, error) {
	limit, _, err := s.resolveLimit(ctx, s.snapshot(), userID)
	return limit, err
}

func (s *QuotaService) resolveLimit(ctx context.Context, snap settingsSnapshot, userID int64) (int, bool, error) {
	override, err := s.overrides.Get(ctx, userID)
	if err != nil {
		return 0, false, &quota.QueryError{Op: fmt.Sprintf("resolve order limit for user %d", userID), Err: err}
	}
	if override != nil {
		return *override, true, nil
	}
	return snap.Limit, false, nil
}

// CountInWindow returns the user's qualifying orders created in window, serving a cached
// count when one exists for the current cache generation.
func (s *QuotaService) CountInWindow(ctx context.Context, userID int64, window interval.Window) (int, error) {
	if userID < 0 {
		return 0, &quota.QueryError{Op: "count qualifying orders", Err: fmt.Errorf("invalid user id %d", userID)}
	}
	if !window.Start.Before(window.End) {
		return 0, &quota.QueryError{Op: "count qualifying orders", Err: fmt.Errorf("empty window %s", window)}
	}

	generation, cacheable := s.generation(ctx)
	if cacheable {
		if n, ok := s.counts.Get(ctx, generation, userID, window); ok {
			s.metrics.cacheLookup(true)
			return n, nil
		}
		s.metrics.cacheLookup(false)
	}

	sfKey := fmt.Sprintf("%s:%d:%d:%d", generation, userID, window.Start.Unix(), window.End.Unix())
	res, err, _ := s.sf.Do(sfKey, func() (any, error) {
		// Shared by every coalesced caller, so it must outlive the one that started it.
		loadCtx := context.WithoutCancel(ctx)
		n, err := s.countFromStore(loadCtx, userID, window)
		if err != nil {
			return nil, err
		}
		if cacheable {
			s.counts.Set(loadCtx, generation, userID, window, n)
		}
		return n, nil
	})
	if err != nil {
		return 0, err
	}
	n, ok := res.(int)
	if !ok {
		return 0, fmt.Errorf("unexpected type from singleflight result")
	}
	return n, nil
}

func (s *QuotaService) generation(ctx context.Context) (string, bool) {
	if s.counts == nil {
		return "", false
	}
	gen, err := s.counts.Generation(ctx)
	if err != nil {
		if s.logger != nil {
			s.logger.WithError(err).Warn("order count cache unavailable; counting from order store")
		}
		return "", false
	}
	return gen, true
}

func (s *QuotaService) countFromStore(ctx context.Context, userID int64, window interval.Window) (int, error) {
	qctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	n, err := s.orders.CountByCustomer(qctx, userID, order.QualifyingStatuses(), window)
	if err != nil {
		s.metrics.storeError()
		if s.logger != nil {
			s.logger.WithFields(logrus.Fields{"user_id": userID, "window": window.String()}).WithError(err).Error("order store count failed")
		}
		return 0, &quota.QueryError{Op: "count qualifying orders", Err: err}
	}
	return n, nil
}

type evaluation struct {
	window  interval.Window
	limit   int
	count   int
	reached bool
}

func (s *QuotaService) evaluate(ctx context.Context, snap settingsSnapshot, userID int64, ref time.Time) (*evaluation, error) {
	window, err := s.windowFor(snap, ref)
	if err != nil {
		return nil, err
	}
	limit, _, err := s.resolveLimit(ctx, snap, userID)
	if err != nil {
		return nil, err
	}
	ev := &evaluation{window: window, limit: limit}
	if limit == 0 {
		ev.reached = true
		return ev, nil
	}
	ev.count, err = s.CountInWindow(ctx, userID, window)
	if err != nil {
		return nil, err
	}
	ev.reached = ev.count >= ev.limit
	return ev, nil
}

// HasReachedLimit reports whether the user's count in the window containing ref has met
// the resolved limit. It is always false while the quota is disabled.
func (s *QuotaService) HasReachedLimit(ctx context.Context, userID int64, ref time.Time) (bool, error) {
	snap := s.snapshot()
	if !snap.Enabled {
		return false, nil
	}
	ev, err := s.evaluate(ctx, snap, userID, ref)
	if err != nil {
		return false, err
	}
	return ev.reached, nil
}

// EvaluateCheckout decides whether the user may check out at ref. Limit reached is a
// Blocked decision; errors are reserved for configuration and store failures.
func (s *QuotaService) EvaluateCheckout(ctx context.Context, userID int64, ref time.Time) (quota.Decision, error) {
	snap := s.snapshot()
	if !snap.Enabled {
		s.metrics.decision(true)
		return quota.Allowed(), nil
	}
	ev, err := s.evaluate(ctx, snap, userID, ref)
	if err != nil {
		return quota.Decision{}, err
	}
	if !ev.reached {
		s.metrics.decision(true)
		return quota.Allowed(), nil
	}

	s.metrics.decision(false)
	if s.logger != nil {
		s.logger.WithFields(logrus.Fields{"user_id": userID, "count": ev.count, "limit": ev.limit, "retry_after": ev.window.End}).Info("checkout blocked by order quota")
	}
	return quota.Blocked(ev.window.End, snap.CustomerNotice), nil
}

// InvalidateCache drops every cached count.
func (s *QuotaService) InvalidateCache(ctx context.Context, reason ports.InvalidationReason) error {
	if s.counts == nil {
		return nil
	}
	if err := s.counts.Invalidate(ctx); err != nil {
		if s.logger != nil {
			s.logger.WithField("reason", reason).WithError(err).Error("failed to invalidate order count cache")
		}
		return fmt.Errorf("failed to invalidate order count cache: %w", err)
	}
	s.metrics.invalidated(string(reason))
	if s.logger != nil {
		s.logger.WithField("reason", reason).Debug("order count cache invalidated")
	}
	return nil
}

func (s *QuotaService) GetOverride(ctx context.Context, userID int64) (*int, error) {
	return s.overrides.Get(ctx, userID)
}

func (s *QuotaService) SetOverride(ctx context.Context, userID int64, limit int) error {
	if limit < 0 {
		return &quota.ConfigurationError{Field: "order_limit", Value: limit, Reason: "limit must not be negative"}
	}
	if err := s.overrides.Set(ctx, userID, limit); err != nil {
		return err
	}
	return s.InvalidateCache(ctx, ports.InvalidateOverrideChanged)
}

func (s *QuotaService) ClearOverride(ctx context.Context, userID int64) error {
	if err := s.overrides.Clear(ctx, userID); err != nil {
		return err
	}
	return s.InvalidateCache(ctx, ports.InvalidateOverrideChanged)
}

// PinOverride resets the user's override and then stores the current global limit as the
// user's own limit, so later global changes no longer apply to them.
func (s *QuotaService) PinOverride(ctx context.Context, userID int64) (int, error) {
	if err := s.overrides.Clear(ctx, userID); err != nil {
		return 0, err
	}
	limit, err := s.ResolveLimit(ctx, userID)
	if err != nil {
		return 0, err
	}
	if err := s.overrides.Set(ctx, userID, limit); err != nil {
		return 0, err
	}
	if err := s.InvalidateCache(ctx, ports.InvalidateOverrideChanged); err != nil {
		return 0, err
	}
	return limit, nil
}

// Status reports the user's quota state for operator dashboards. It is not part of the
// enforcement path and reports counts even while the quota is disabled.
func (s *QuotaService) Status(ctx context.Context, userID int64, ref time.Time) (*quota.Status, error) {
	snap := s.snapshot()
	window, err := s.windowFor(snap, ref)
	if err != nil {
		return nil, err
	}
	limit, hasOverride, err := s.resolveLimit(ctx, snap, userID)
	if err != nil {
		return nil, err
	}
	count, err := s.CountInWindow(ctx, userID, window)
	if err != nil {
		return nil, err
	}
	return &quota.Status{
		Enabled:                snap.Enabled,
		Interval:               snap.Interval,
		SubjectID:              userID,
		Limit:                  limit,
		HasOverride:            hasOverride,
		Count:                  count,
		Remaining:              quota.Remaining(limit, count),
		Window:                 window,
		SecondsUntilNextWindow: int64(window.End.Sub(ref) / time.Second),
	}, nil
}

// VerifyCache compares the cached count for the user's current window with the order
// store. A disagreement means an invalidation was missed and is returned as a
// *quota.StaleCacheWarning. Having nothing cached is not a warning.
func (s *QuotaService) VerifyCache(ctx context.Context, userID int64, ref time.Time) error {
	window, err := s.CurrentWindow(ref)
	if err != nil {
		return err
	}
	generation, cacheable := s.generation(ctx)
	if !cacheable {
		return nil
	}
	cached, ok := s.counts.Get(ctx, generation, userID, window)
	if !ok {
		return nil
	}
	actual, err := s.countFromStore(ctx, userID, window)
	if err != nil {
		return err
	}
	if cached == actual {
		return nil
	}

	s.metrics.stale()
	if s.logger != nil {
		s.logger.WithFields(logrus.Fields{"user_id": userID, "cached": cached, "actual": actual, "window": window.String()}).Warn("stale order count cache detected")
	}
	return &quota.StaleCacheWarning{SubjectID: userID, Cached: cached, Actual: actual}
}

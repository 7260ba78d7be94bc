package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/avatarctic/order-quota/internal/core/domain/audit"
	"github.com/avatarctic/order-quota/internal/core/domain/quota"
	"github.com/avatarctic/order-quota/internal/core/ports"
	"github.com/sirupsen/logrus"
)

// SettingsService is the configuration store used by the admin surface. Every successful
// update is pushed to in-process listeners and, when a notifier is configured, to the
// other running instances.
type SettingsService struct {
	repo                        ports.SettingsRepository
	overrides                   ports.OverrideRepository
	notifier                    ports.SettingsNotifier
	audit                       ports.AuditService
	defaults                    quota.Settings
	resetOverridesOnLimitChange bool
	logger                      *logrus.Logger

	mu        sync.Mutex
	listeners []func(ctx context.Context, s quota.Settings) error
}

// SettingsServiceConfig groups configuration parameters for the settings service.
type SettingsServiceConfig struct {
	Defaults                    quota.Settings
	ResetOverridesOnLimitChange bool
}

func NewSettingsService(repo ports.SettingsRepository, overrides ports.OverrideRepository, notifier ports.SettingsNotifier, auditSvc ports.AuditService, cfg *SettingsServiceConfig, logger *logrus.Logger) *SettingsService {
	s := &SettingsService{
		repo:      repo,
		overrides: overrides,
		notifier:  notifier,
		audit:     auditSvc,
		logger:    logger,
	}
	if cfg != nil {
		s.defaults = cfg.Defaults
		s.resetOverridesOnLimitChange = cfg.ResetOverridesOnLimitChange
	}
	return s
}

// OnChange registers fn to be called after each successful update.
func (s *SettingsService) OnChange(fn func(ctx context.Context, s quota.Settings) error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// ApplyRemoteChange runs the registered listeners for a change saved by another instance.
// Nothing is persisted or published.
func (s *SettingsService) ApplyRemoteChange(ctx context.Context, next quota.Settings) error {
	return errors.Join(s.runListeners(ctx, next)...)
}

func (s *SettingsService) GetSettings(ctx context.Context) (*quota.Settings, error) {
	stored, err := s.repo.Get(ctx)
	if err != nil {
		return nil, err
	}
	if stored == nil {
		d := s.defaults
		return &d, nil
	}
	return stored, nil
}

// UpdateSettings validates and saves the merged settings. Once they are saved the change is
// always propagated; steps that fail after that point are returned as a *quota.SettingsWarning
// alongside the saved settings.
func (s *SettingsService) UpdateSettings(ctx context.Context, req *quota.UpdateSettingsRequest, actor string) (*quota.Settings, error) {
	current, err := s.GetSettings(ctx)
	if err != nil {
		return nil, err
	}
	next := req.Apply(*current)
	if err := next.Validate(); err != nil {
		return nil, err
	}
	next.UpdatedAt = time.Now().UTC()

	if err := s.repo.Set(ctx, &next); err != nil {
		if s.logger != nil {
			s.logger.WithField("actor", actor).WithError(err).Error("failed to persist quota settings")
		}
		return nil, fmt.Errorf("failed to update quota settings: %w", err)
	}

	var warnings []error
	cleared := 0
	if s.resetOverridesOnLimitChange && current.LimitChanged(&next) && s.overrides != nil {
		n, err := s.overrides.ClearAll(ctx)
		if err != nil {
			if s.logger != nil {
				s.logger.WithField("actor", actor).WithError(err).Error("quota settings saved but overrides were not reset")
			}
			warnings = append(warnings, fmt.Errorf("overrides were not reset: %w", err))
		} else {
			cleared = n
		}
	}

	if s.logger != nil {
		s.logger.WithFields(logrus.Fields{
			"actor":             actor,
			"enabled":           next.Enabled,
			"interval":          next.Interval,
			"limit":             next.Limit,
			"overrides_cleared": cleared,
		}).Info("quota settings updated")
	}
	s.logAudit(ctx, actor, current, &next, cleared)

	// Saved settings are always propagated, even when a step above failed.
	warnings = append(warnings, s.notify(ctx, next)...)
	if len(warnings) > 0 {
		return &next, &quota.SettingsWarning{Errs: warnings}
	}
	return &next, nil
}

// notify runs every listener and publishes the change, returning the listener failures.
func (s *SettingsService) notify(ctx context.Context, next quota.Settings) []error {
	errs := s.runListeners(ctx, next)
	if s.notifier != nil {
		if err := s.notifier.Publish(ctx, next); err != nil {
			// Local listeners already ran; other instances pick the change up on their next reload.
			if s.logger != nil {
				s.logger.WithError(err).Warn("failed to publish quota settings change")
			}
		}
	}
	return errs
}

func (s *SettingsService) runListeners(ctx context.Context, next quota.Settings) []error {
	s.mu.Lock()
	listeners := append([]func(context.Context, quota.Settings) error(nil), s.listeners...)
	s.mu.Unlock()

	var errs []error
	for _, fn := range listeners {
		if err := fn(ctx, next); err != nil {
			if s.logger != nil {
				s.logger.WithError(err).Error("quota settings change listener failed")
			}
			errs = append(errs, fmt.Errorf("settings change listener failed: %w", err))
		}
	}
	return errs
}

func (s *SettingsService) logAudit(ctx context.Context, actor string, before, after *quota.Settings, cleared int) {
	if s.audit == nil {
		return
	}
	err := s.audit.LogAction(ctx, &audit.CreateAuditLogRequest{
		Actor:    actor,
		Action:   audit.ActionUpdate,
		Resource: audit.ResourceSettings,
		Details:  map[string]any{"before": before, "after": after, "overrides_cleared": cleared},
	})
	if err != nil && s.logger != nil {
		s.logger.WithError(err).Warn("failed to audit quota settings update")
	}
}

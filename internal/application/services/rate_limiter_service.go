package services

import (
	"context"
	"fmt"
	"time"

	"github.com/avatarctic/order-quota/internal/core/ports"
	"github.com/sirupsen/logrus"
)

// CheckoutThrottleService caps checkout attempts per user with a fixed one-minute window.
type CheckoutThrottleService struct {
	repo              ports.RateLimitRepository
	attemptsPerWindow int
	window            time.Duration
	keyPrefix         string
	logger            *logrus.Logger
}

// CheckoutThrottleConfig groups configuration parameters for the checkout throttle.
type CheckoutThrottleConfig struct {
	AttemptsPerMinute int
	KeyPrefix         string
}

func NewCheckoutThrottleService(repo ports.RateLimitRepository, cfg *CheckoutThrottleConfig, logger *logrus.Logger) *CheckoutThrottleService {
	// Apply defaults
	limit := 30
	kp := "throttle:checkout"
	if cfg != nil {
		if cfg.AttemptsPerMinute > 0 {
			limit = cfg.AttemptsPerMinute
		}
		if cfg.KeyPrefix != "" {
			kp = cfg.KeyPrefix
		}
	}
	return &CheckoutThrottleService{repo: repo, attemptsPerWindow: limit, window: time.Minute, keyPrefix: kp, logger: logger}
}

func (s *CheckoutThrottleService) Allow(ctx context.Context, userID int64, now time.Time) (bool, int, time.Time, error) {
	key := fmt.Sprintf("%s:%d", s.keyPrefix, userID)
	ttl := s.window * 2 // retain overlap window
	count, windowStart, err := s.repo.IncrementWindow(ctx, key, now, s.window, ttl)
	reset := windowStart.Add(s.window)
	if err != nil {
		if s.logger != nil {
			s.logger.WithFields(logrus.Fields{"user_id": userID}).WithError(err).Error("checkout throttle: failed to increment window")
		}
		// fail open
		return true, s.attemptsPerWindow, reset, err
	}
	if s.logger != nil {
		s.logger.WithFields(logrus.Fields{"user_id": userID, "count": count, "limit": s.attemptsPerWindow}).Debug("checkout throttle window state")
	}
	if count > s.attemptsPerWindow {
		return false, 0, reset, nil
	}
	return true, s.attemptsPerWindow - count, reset, nil
}

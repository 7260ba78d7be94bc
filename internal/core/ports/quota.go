package ports

import (
	"context"
	"time"

	"github.com/avatarctic/order-quota/internal/core/domain/interval"
	"github.com/avatarctic/order-quota/internal/core/domain/quota"
)

// SettingsRepository is the configuration store.
type SettingsRepository interface {
	// Get returns the stored settings, or nil when none have been saved yet.
	Get(ctx context.Context) (*quota.Settings, error)
	Set(ctx context.Context, s *quota.Settings) error
}

// SettingsNotifier fans settings changes out to every running instance.
type SettingsNotifier interface {
	Publish(ctx context.Context, s quota.Settings) error
	// Subscribe invokes fn for each published change until ctx is done.
	Subscribe(ctx context.Context, fn func(quota.Settings)) error
}

// OverrideRepository stores per-user limits that supersede the global limit.
type OverrideRepository interface {
	// Get returns nil when the user has no override.
	Get(ctx context.Context, userID int64) (*int, error)
	Set(ctx context.Context, userID int64, limit int) error
	Clear(ctx context.Context, userID int64) error
	// ClearAll removes every override and returns how many were removed.
	ClearAll(ctx context.Context) (int, error)
}

// InvalidationReason labels why the cached counts were dropped.
type InvalidationReason string

const (
	InvalidateOrderCreated    InvalidationReason = "order_created"
	InvalidateOrderUpdated    InvalidationReason = "order_updated"
	InvalidateSettingsChanged InvalidationReason = "settings_changed"
	InvalidateOverrideChanged InvalidationReason = "override_changed"
	InvalidateWindowRollover  InvalidationReason = "window_rollover"
	InvalidateManual          InvalidationReason = "manual"
)

// QuotaService is the interval-based order quota limiter.
// Implementations MUST be safe for concurrent use.
type QuotaService interface {
	IsEnabled() bool
	Settings() quota.Settings
	CurrentWindow(ref time.Time) (interval.Window, error)
	ResolveLimit(ctx context.Context, userID int64) (int, error)
	CountInWindow(ctx context.Context, userID int64, window interval.Window) (int, error)
	HasReachedLimit(ctx context.Context, userID int64, ref time.Time) (bool, error)
	SecondsUntilNextWindow(ref time.Time) (int64, error)
	EvaluateCheckout(ctx context.Context, userID int64, ref time.Time) (quota.Decision, error)

	// InvalidateCache drops every cached count. Callers MUST invoke it after recording a
	// qualifying order and after any settings or override change.
	InvalidateCache(ctx context.Context, reason InvalidationReason) error
	Reload(ctx context.Context) error
	HandleSettingsChange(ctx context.Context, s quota.Settings) error

	GetOverride(ctx context.Context, userID int64) (*int, error)
	SetOverride(ctx context.Context, userID int64, limit int) error
	ClearOverride(ctx context.Context, userID int64) error
	PinOverride(ctx context.Context, userID int64) (int, error)

	Status(ctx context.Context, userID int64, ref time.Time) (*quota.Status, error)
	// VerifyCache returns a *quota.StaleCacheWarning when the cached count is stale.
	VerifyCache(ctx context.Context, userID int64, ref time.Time) error
}

// SettingsService is the admin-facing configuration store with change notification.
type SettingsService interface {
	GetSettings(ctx context.Context) (*quota.Settings, error)
	UpdateSettings(ctx context.Context, req *quota.UpdateSettingsRequest, actor string) (*quota.Settings, error)
	OnChange(fn func(ctx context.Context, s quota.Settings) error)
}

package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/avatarctic/order-quota/internal/core/domain/quota"
	"github.com/avatarctic/order-quota/internal/core/ports"
	"github.com/avatarctic/order-quota/internal/infrastructure/db"
)

// SettingsRepository keeps the single quota settings row
type SettingsRepository struct {
	db *db.Database
}

func NewSettingsRepository(database *db.Database) ports.SettingsRepository {
	return &SettingsRepository{db: database}
}

// Get returns nil when settings have never been saved
func (r *SettingsRepository) Get(ctx context.Context) (*quota.Settings, error) {
	var s quota.Settings
	query := `
		SELECT enabled, interval_kind, order_limit, customer_notice, week_start_day, updated_at
		FROM quota_settings
		WHERE id = 1`

	err := r.db.DB.GetContext(ctx, &s, query)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get quota settings: %w", err)
	}
	return &s, nil
}

func (r *SettingsRepository) Set(ctx context.Context, s *quota.Settings) error {
	query := `
		INSERT INTO quota_settings (id, enabled, interval_kind, order_limit, customer_notice, week_start_day, updated_at)
		VALUES (1, $1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			enabled = EXCLUDED.enabled,
			interval_kind = EXCLUDED.interval_kind,
			order_limit = EXCLUDED.order_limit,
			customer_notice = EXCLUDED.customer_notice,
			week_start_day = EXCLUDED.week_start_day,
			updated_at = EXCLUDED.updated_at`

	_, err := r.db.DB.ExecContext(ctx, query,
		s.Enabled, string(s.Interval), s.Limit, s.CustomerNotice, int(s.WeekStartDay), s.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to save quota settings: %w", err)
	}
	return nil
}

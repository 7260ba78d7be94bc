package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/avatarctic/order-quota/internal/core/ports"
	"github.com/avatarctic/order-quota/internal/infrastructure/db"
)

// OverrideRepository stores per-user order limits on Postgres
type OverrideRepository struct {
	db     *db.Database
	logger *logrus.Logger
}

func NewOverrideRepository(database *db.Database, logger *logrus.Logger) ports.OverrideRepository {
	return &OverrideRepository{db: database, logger: logger}
}

func (r *OverrideRepository) Get(ctx context.Context, userID int64) (*int, error) {
	var limit int
	err := r.db.DB.GetContext(ctx, &limit, `SELECT order_limit FROM order_limit_overrides WHERE user_id = $1`, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get order limit override: %w", err)
	}
	return &limit, nil
}

func (r *OverrideRepository) Set(ctx context.Context, userID int64, limit int) error {
	query := `
		INSERT INTO order_limit_overrides (user_id, order_limit, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (user_id) DO UPDATE SET order_limit = EXCLUDED.order_limit, updated_at = NOW()`

	if _, err := r.db.DB.ExecContext(ctx, query, userID, limit); err != nil {
		return fmt.Errorf("failed to set order limit override: %w", err)
	}
	if r.logger != nil {
		r.logger.WithFields(logrus.Fields{"user_id": userID, "limit": limit}).Debug("db: order limit override stored")
	}
	return nil
}

func (r *OverrideRepository) Clear(ctx context.Context, userID int64) error {
	if _, err := r.db.DB.ExecContext(ctx, `DELETE FROM order_limit_overrides WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("failed to clear order limit override: %w", err)
	}
	return nil
}

func (r *OverrideRepository) ClearAll(ctx context.Context) (int, error) {
	result, err := r.db.DB.ExecContext(ctx, `DELETE FROM order_limit_overrides`)
	if err != nil {
		return 0, fmt.Errorf("failed to clear order limit overrides: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if r.logger != nil {
		r.logger.WithField("cleared", n).Info("db: all order limit overrides cleared")
	}
	return int(n), nil
}

package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
	"github.com/sirupsen/logrus"

	"github.com/avatarctic/order-quota/internal/core/domain/interval"
	"github.com/avatarctic/order-quota/internal/core/domain/order"
	"github.com/avatarctic/order-quota/internal/core/ports"
	"github.com/avatarctic/order-quota/internal/infrastructure/db"
)

// OrderRepository implements the order store on Postgres
type OrderRepository struct {
	db     *db.Database
	logger *logrus.Logger
}

// NewOrderRepository creates a new order repository
func NewOrderRepository(database *db.Database, logger *logrus.Logger) ports.OrderRepository {
	return &OrderRepository{db: database, logger: logger}
}

// Create inserts the order and sets its generated ID
func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	query := `
		INSERT INTO orders (customer_id, status, total_cents, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`

	err := r.db.DB.QueryRowContext(ctx, query,
		o.CustomerID, o.Status, o.TotalCents, o.CreatedAt, o.UpdatedAt).Scan(&o.ID)
	if err != nil {
		return fmt.Errorf("failed to insert order: %w", err)
	}
	if r.logger != nil {
		r.logger.WithFields(logrus.Fields{"order_id": o.ID, "user_id": o.CustomerID, "status": o.Status}).Debug("db: order inserted")
	}
	return nil
}

// GetByID retrieves an order by ID
func (r *OrderRepository) GetByID(ctx context.Context, id int64) (*order.Order, error) {
	var o order.Order
	query := `
		SELECT id, customer_id, status, total_cents, created_at, updated_at
		FROM orders
		WHERE id = $1`

	err := r.db.DB.GetContext(ctx, &o, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("order %d: %w", id, order.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get order by ID: %w", err)
	}
	return &o, nil
}

// UpdateStatus moves an order to a new status
func (r *OrderRepository) UpdateStatus(ctx context.Context, id int64, status order.Status) error {
	query := `UPDATE orders SET status = $2, updated_at = NOW() WHERE id = $1`

	result, err := r.db.DB.ExecContext(ctx, query, id, status)
	if err != nil {
		return fmt.Errorf("failed to update order status: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("order %d: %w", id, order.ErrNotFound)
	}
	return nil
}

// CountByCustomer counts the customer's orders in statuses created within window
func (r *OrderRepository) CountByCustomer(ctx context.Context, customerID int64, statuses []order.Status, window interval.Window) (int, error) {
	if len(statuses) == 0 {
		return 0, fmt.Errorf("malformed order count query: no statuses")
	}
	if !window.Start.Before(window.End) {
		return 0, fmt.Errorf("malformed order count query: empty window %s", window)
	}
	names := make([]string, len(statuses))
	for i, s := range statuses {
		names[i] = string(s)
	}

	var count int
	query := `
		SELECT COUNT(*)
		FROM orders
		WHERE customer_id = $1
		  AND status = ANY($2)
		  AND created_at >= $3
		  AND created_at < $4`

	err := r.db.DB.GetContext(ctx, &count, query, customerID, pq.Array(names), window.Start.UTC(), window.End.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to count orders: %w", err)
	}
	return count, nil
}

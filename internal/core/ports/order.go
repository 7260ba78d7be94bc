package ports

import (
	"context"

	"github.com/avatarctic/order-quota/internal/core/domain/interval"
	"github.com/avatarctic/order-quota/internal/core/domain/order"
)

// OrderRepository is the persistent order store. The quota limiter only reads from it.
type OrderRepository interface {
	Create(ctx context.Context, o *order.Order) error
	GetByID(ctx context.Context, id int64) (*order.Order, error)
	UpdateStatus(ctx context.Context, id int64, status order.Status) error
	// CountByCustomer counts orders of customerID whose status is in statuses and whose
	// creation time falls in [window.Start, window.End).
	CountByCustomer(ctx context.Context, customerID int64, statuses []order.Status, window interval.Window) (int, error)
}

// OrderService records orders. Every mutation that can change a qualifying count
// invalidates the quota cache.
type OrderService interface {
	PlaceOrder(ctx context.Context, req *order.CreateOrderRequest) (*order.Order, error)
	GetOrder(ctx context.Context, id int64) (*order.Order, error)
	UpdateOrderStatus(ctx context.Context, id int64, req *order.UpdateOrderStatusRequest) (*order.Order, error)
}

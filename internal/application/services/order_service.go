package services

import (
	"context"
	"fmt"
	"time"

	"github.com/avatarctic/order-quota/internal/core/domain/order"
	"github.com/avatarctic/order-quota/internal/core/ports"
	"github.com/sirupsen/logrus"
)

// OrderService records orders and honours the quota invalidation contract: any change
// that can alter a qualifying count drops the cached counts.
type OrderService struct {
	repo   ports.OrderRepository
	quota  ports.QuotaService
	logger *logrus.Logger
}

func NewOrderService(repo ports.OrderRepository, quotaSvc ports.QuotaService, logger *logrus.Logger) *OrderService {
	return &OrderService{repo: repo, quota: quotaSvc, logger: logger}
}

func (s *OrderService) PlaceOrder(ctx context.Context, req *order.CreateOrderRequest) (*order.Order, error) {
	if !req.Status.Valid() {
		return nil, fmt.Errorf("unknown order status %q", req.Status)
	}
	now := time.Now().UTC()
	o := &order.Order{
		CustomerID: req.CustomerID,
		Status:     req.Status,
		TotalCents: req.TotalCents,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.repo.Create(ctx, o); err != nil {
		return nil, fmt.Errorf("failed to create order: %w", err)
	}
	s.invalidate(ctx, ports.InvalidateOrderCreated, o)
	return o, nil
}

func (s *OrderService) GetOrder(ctx context.Context, id int64) (*order.Order, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *OrderService) UpdateOrderStatus(ctx context.Context, id int64, req *order.UpdateOrderStatusRequest) (*order.Order, error) {
	if !req.Status.Valid() {
		return nil, fmt.Errorf("unknown order status %q", req.Status)
	}
	o, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if o.Status == req.Status {
		return o, nil
	}
	wasQualifying := o.Status.Qualifies()
	if err := s.repo.UpdateStatus(ctx, id, req.Status); err != nil {
		return nil, fmt.Errorf("failed to update order status: %w", err)
	}
	o.Status = req.Status
	o.UpdatedAt = time.Now().UTC()
	if wasQualifying != o.Status.Qualifies() {
		s.invalidate(ctx, ports.InvalidateOrderUpdated, o)
	}
	return o, nil
}

// invalidate never fails the order write: the order is already stored, and a missed
// invalidation is surfaced through the stale cache diagnostics.
func (s *OrderService) invalidate(ctx context.Context, reason ports.InvalidationReason, o *order.Order) {
	if s.quota == nil {
		return
	}
	if err := s.quota.InvalidateCache(ctx, reason); err != nil && s.logger != nil {
		s.logger.WithFields(logrus.Fields{"order_id": o.ID, "user_id": o.CustomerID}).WithError(err).Error("order recorded but quota cache invalidation failed")
	}
}

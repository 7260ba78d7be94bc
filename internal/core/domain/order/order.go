package order

import (
	"errors"
	"slices"
	"time"
)

// ErrNotFound is returned when an order does not exist.
var ErrNotFound = errors.New("order not found")

type Order struct {
	ID         int64     `json:"id" db:"id"`
	CustomerID int64     `json:"user_id" db:"customer_id"`
	Status     Status    `json:"status" db:"status"`
	TotalCents int64     `json:"total_cents" db:"total_cents"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time `json:"updated_at" db:"updated_at"`
}

type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusOnHold     Status = "on-hold"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
	StatusRefunded   Status = "refunded"
	StatusDraft      Status = "draft"
)

// QualifyingStatuses are the statuses counted against a user's quota.
func QualifyingStatuses() []Status {
	return []Status{StatusCompleted, StatusProcessing, StatusOnHold, StatusPending, StatusFailed}
}

// Qualifies reports whether an order in this status counts against the quota.
func (s Status) Qualifies() bool {
	return slices.Contains(QualifyingStatuses(), s)
}

// Valid reports whether s is a known order status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusOnHold, StatusCompleted, StatusFailed,
		StatusCancelled, StatusRefunded, StatusDraft:
		return true
	}
	return false
}

// CreateOrderRequest represents the request to record a new order
type CreateOrderRequest struct {
	CustomerID int64  `json:"user_id" validate:"min=0"`
	Status     Status `json:"status" validate:"required,oneof=pending processing on-hold completed failed cancelled refunded draft"`
	TotalCents int64  `json:"total_cents" validate:"min=0"`
}

// UpdateOrderStatusRequest represents the request to move an order to a new status
type UpdateOrderStatusRequest struct {
	Status Status `json:"status" validate:"required,oneof=pending processing on-hold completed failed cancelled refunded draft"`
}

package quota

// CheckoutRequest asks whether a customer may place another order.
type CheckoutRequest struct {
	UserID *int64 `json:"user_id" validate:"required,min=0"`
}

// SetOverrideRequest assigns a per-user order limit.
type SetOverrideRequest struct {
	Limit *int `json:"limit" validate:"required,min=0"`
}

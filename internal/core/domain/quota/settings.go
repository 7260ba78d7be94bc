package quota

import (
	"time"

	"github.com/avatarctic/order-quota/internal/core/domain/interval"
)

// Settings is the operator-supplied quota configuration.
type Settings struct {
	Enabled        bool          `json:"enabled" db:"enabled"`
	Interval       interval.Kind `json:"interval" db:"interval_kind"`
	Limit          int           `json:"limit" db:"order_limit"`
	CustomerNotice string        `json:"customer_notice" db:"customer_notice"`
	WeekStartDay   time.Weekday  `json:"week_start_day" db:"week_start_day"`
	UpdatedAt      time.Time     `json:"updated_at" db:"updated_at"`
}

// Validate returns a *ConfigurationError describing the first invalid field.
func (s *Settings) Validate() error {
	if !s.Interval.Valid() {
		return &ConfigurationError{Field: "interval", Value: s.Interval, Reason: "unrecognized interval kind"}
	}
	if s.Limit < 0 {
		return &ConfigurationError{Field: "limit", Value: s.Limit, Reason: "limit must not be negative"}
	}
	if s.WeekStartDay < time.Sunday || s.WeekStartDay > time.Saturday {
		return &ConfigurationError{Field: "week_start_day", Value: int(s.WeekStartDay), Reason: "week start day must be between 0 and 6"}
	}
	return nil
}

// LimitChanged reports whether moving from s to next alters the counting rules
// (limit or interval), which invalidates every cached count and per-user override.
func (s *Settings) LimitChanged(next *Settings) bool {
	return s.Limit != next.Limit || s.Interval != next.Interval
}

// UpdateSettingsRequest carries a partial settings update; nil fields are left unchanged.
type UpdateSettingsRequest struct {
	Enabled        *bool          `json:"enabled,omitempty"`
	Interval       *interval.Kind `json:"interval,omitempty" validate:"omitempty,oneof=hourly daily weekly monthly"`
	Limit          *int           `json:"limit,omitempty" validate:"omitempty,min=0"`
	CustomerNotice *string        `json:"customer_notice,omitempty"`
	WeekStartDay   *int           `json:"week_start_day,omitempty" validate:"omitempty,min=0,max=6"`
}

// Apply returns a copy of s with the non-nil request fields applied.
func (r *UpdateSettingsRequest) Apply(s Settings) Settings {
	if r.Enabled != nil {
		s.Enabled = *r.Enabled
	}
	if r.Interval != nil {
		s.Interval = *r.Interval
	}
	if r.Limit != nil {
		s.Limit = *r.Limit
	}
	if r.CustomerNotice != nil {
		s.CustomerNotice = *r.CustomerNotice
	}
	if r.WeekStartDay != nil {
		s.WeekStartDay = time.Weekday(*r.WeekStartDay)
	}
	return s
}

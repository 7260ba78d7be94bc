package quota

import (
	"time"

	"github.com/avatarctic/order-quota/internal/core/domain/interval"
)

// LimitReachedMessage is the message attached to every blocked checkout.
const LimitReachedMessage = "You have reached your order limit."

// Decision is the outcome of a checkout evaluation. A blocked decision is a normal
// result, never an error.
type Decision struct {
	Allowed    bool      `json:"allowed"`
	RetryAfter time.Time `json:"retry_after,omitempty"`
	Message    string    `json:"message,omitempty"`
	Notice     string    `json:"notice,omitempty"`
}

// Allowed is the decision returned whenever checkout may proceed.
func Allowed() Decision {
	return Decision{Allowed: true}
}

// Blocked builds a blocked decision that clears at retryAfter.
func Blocked(retryAfter time.Time, notice string) Decision {
	return Decision{Allowed: false, RetryAfter: retryAfter, Message: LimitReachedMessage, Notice: notice}
}

// Status is the read-only view served to operator dashboards.
type Status struct {
	Enabled                bool            `json:"enabled"`
	Interval               interval.Kind   `json:"interval"`
	SubjectID              int64           `json:"user_id"`
	Limit                  int             `json:"limit"`
	HasOverride            bool            `json:"has_override"`
	Count                  int             `json:"count"`
	Remaining              int             `json:"remaining"`
	Window                 interval.Window `json:"window"`
	SecondsUntilNextWindow int64           `json:"seconds_until_next_window"`
}

// Remaining returns how many more orders fit under limit, never negative.
func Remaining(limit, count int) int {
	if count >= limit {
		return 0
	}
	return limit - count
}

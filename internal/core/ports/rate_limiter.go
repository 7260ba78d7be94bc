package ports

import (
	"context"
	"time"
)

// RateLimitRepository provides low-level atomic operations for rate limiting counters.
// It abstracts storage (e.g., Redis). Implementation should be concurrency-safe.
type RateLimitRepository interface {
	// IncrementWindow atomically increments the counter for key in the fixed window containing now
	// and ensures the key expires after ttl. Returns the updated count and the window start time.
	IncrementWindow(ctx context.Context, key string, now time.Time, window time.Duration, ttl time.Duration) (count int, windowStart time.Time, err error)
}

// CheckoutThrottle caps how often a single user may attempt checkout, independent of the
// order quota. It protects the order store from hammering by retries.
type CheckoutThrottle interface {
	// Allow consumes one attempt for the user and reports whether it is permitted.
	// reset is when the current throttle window ends.
	Allow(ctx context.Context, userID int64, now time.Time) (allowed bool, remaining int, reset time.Time, err error)
}

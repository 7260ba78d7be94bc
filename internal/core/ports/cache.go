package ports

import (
	"context"
	"time"

	"github.com/avatarctic/order-quota/internal/core/domain/interval"
)

// Cache defines a minimal key-value cache contract.
// Implementations should degrade gracefully (returning an error without crashing callers)
// so that application logic can fall back to the primary datastore.
type Cache interface {
	// Get returns the raw bytes for key. ok=false if not found.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	// Set stores value for key with TTL (0 or negative means no expiration if supported).
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// Delete removes the key; absence is not an error.
	Delete(ctx context.Context, key string) error
}

// OrderCountCache memoizes qualifying order counts per (user, window). Entries are grouped
// under a generation token; Invalidate rotates the token so every earlier entry is orphaned
// at once. Readers must fetch the generation before querying the order store.
type OrderCountCache interface {
	Generation(ctx context.Context) (string, error)
	Get(ctx context.Context, generation string, userID int64, window interval.Window) (int, bool)
	Set(ctx context.Context, generation string, userID int64, window interval.Window, count int)
	Invalidate(ctx context.Context) error
}

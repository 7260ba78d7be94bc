package repositories

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/avatarctic/order-quota/internal/core/domain/interval"
	"github.com/avatarctic/order-quota/internal/core/ports"
)

// Utility helpers
func cacheSetSilently(c ports.Cache, ctx context.Context, key string, v any, ttl time.Duration) {
	if c == nil {
		return
	}
	b, err := json.Marshal(v)
	if err != nil {
		return
	}
	_ = c.Set(ctx, key, b, ttl)
}

func cacheGet[T any](c ports.Cache, ctx context.Context, key string) (*T, bool) {
	if c == nil {
		return nil, false
	}
	b, ok, err := c.Get(ctx, key)
	if err != nil || !ok {
		return nil, false
	}
	var v T
	if err := json.Unmarshal(b, &v); err != nil {
		return nil, false
	}
	return &v, true
}

// currentGeneration reads the namespace token stored at key. A missing token is
// reported as "0" so a fresh cache still has a stable namespace.
func currentGeneration(c ports.Cache, ctx context.Context, key string) (string, error) {
	b, ok, err := c.Get(ctx, key)
	if err != nil {
		return "", err
	}
	if !ok || len(b) == 0 {
		return "0", nil
	}
	return string(b), nil
}

// rotateGeneration orphans every entry written under the previous token.
func rotateGeneration(c ports.Cache, ctx context.Context, key string) error {
	return c.Set(ctx, key, []byte(uuid.NewString()), 0)
}

// OrderCountCache keeps qualifying order counts per (user, window) in a ports.Cache.
// Entries expire with their window, so rolled-over windows clean themselves up.
type OrderCountCache struct {
	cache  ports.Cache
	prefix string
}

func NewOrderCountCache(cache ports.Cache, prefix string) *OrderCountCache {
	if prefix == "" {
		prefix = "order_count"
	}
	return &OrderCountCache{cache: cache, prefix: prefix}
}

func (c *OrderCountCache) generationKey() string {
	return c.prefix + ":generation"
}

func (c *OrderCountCache) entryKey(generation string, userID int64, w interval.Window) string {
	return fmt.Sprintf("%s:%s:%d:%d:%d", c.prefix, generation, userID, w.Start.Unix(), w.End.Unix())
}

func (c *OrderCountCache) Generation(ctx context.Context) (string, error) {
	return currentGeneration(c.cache, ctx, c.generationKey())
}

func (c *OrderCountCache) Get(ctx context.Context, generation string, userID int64, w interval.Window) (int, bool) {
	v, ok := cacheGet[int](c.cache, ctx, c.entryKey(generation, userID, w))
	if !ok {
		return 0, false
	}
	return *v, true
}

func (c *OrderCountCache) Set(ctx context.Context, generation string, userID int64, w interval.Window, count int) {
	ttl := w.Duration()
	if ttl <= 0 {
		return
	}
	cacheSetSilently(c.cache, ctx, c.entryKey(generation, userID, w), count, ttl)
}

func (c *OrderCountCache) Invalidate(ctx context.Context) error {
	if err := rotateGeneration(c.cache, ctx, c.generationKey()); err != nil {
		return fmt.Errorf("failed to rotate order count cache generation: %w", err)
	}
	return nil
}

// cachedOverride distinguishes "no override" from a cache miss.
type cachedOverride struct {
	Limit *int `json:"limit"`
}

// CachingOverrideRepository decorates an OverrideRepository with cache-aside.
type CachingOverrideRepository struct {
	inner ports.OverrideRepository
	cache ports.Cache
	ttl   time.Duration
}

func NewCachingOverrideRepository(inner ports.OverrideRepository, cache ports.Cache, ttl time.Duration) ports.OverrideRepository {
	return &CachingOverrideRepository{inner: inner, cache: cache, ttl: ttl}
}

const overrideGenerationKey = "override:generation"

func (c *CachingOverrideRepository) key(ctx context.Context, userID int64) (string, bool) {
	if c.cache == nil {
		return "", false
	}
	gen, err := currentGeneration(c.cache, ctx, overrideGenerationKey)
	if err != nil {
		return "", false
	}
	return "override:" + gen + ":" + strconv.FormatInt(userID, 10), true
}

func (c *CachingOverrideRepository) Get(ctx context.Context, userID int64) (*int, error) {
	key, cacheable := c.key(ctx, userID)
	if !cacheable {
		return c.inner.Get(ctx, userID)
	}
	if v, ok := cacheGet[cachedOverride](c.cache, ctx, key); ok {
		return v.Limit, nil
	}
	res, err, _ := sf.Do(key, func() (any, error) {
		loadCtx := context.WithoutCancel(ctx)
		limit, err := c.inner.Get(loadCtx, userID)
		if err != nil {
			return nil, err
		}
		// Lands under the generation read above. A write that finished meanwhile
		// has rotated it, so a stale read is never served.
		cacheSetSilently(c.cache, loadCtx, key, cachedOverride{Limit: limit}, c.ttl)
		return limit, nil
	})
	if err != nil {
		return nil, err
	}
	limit, ok := res.(*int)
	if !ok {
		return nil, fmt.Errorf("unexpected type from singleflight result")
	}
	return limit, nil
}

func (c *CachingOverrideRepository) Set(ctx context.Context, userID int64, limit int) error {
	if err := c.inner.Set(ctx, userID, limit); err != nil {
		return err
	}
	c.invalidate(ctx, userID)
	return nil
}

func (c *CachingOverrideRepository) Clear(ctx context.Context, userID int64) error {
	if err := c.inner.Clear(ctx, userID); err != nil {
		return err
	}
	c.invalidate(ctx, userID)
	return nil
}

// invalidate runs after the inner write so loads that started before it cannot
// repopulate the entry with the old value.
func (c *CachingOverrideRepository) invalidate(ctx context.Context, userID int64) {
	if c.cache == nil {
		return
	}
	key, ok := c.key(ctx, userID)
	if err := rotateGeneration(c.cache, ctx, overrideGenerationKey); err != nil && ok {
		_ = c.cache.Delete(ctx, key)
	}
}

func (c *CachingOverrideRepository) ClearAll(ctx context.Context) (int, error) {
	n, err := c.inner.ClearAll(ctx)
	if err != nil {
		return n, err
	}
	if c.cache != nil {
		_ = rotateGeneration(c.cache, ctx, overrideGenerationKey)
	}
	return n, nil
}

// singleflight group for coalescing cache-miss loads in-process
var sf singleflight.Group

package repositories_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avatarctic/order-quota/internal/core/domain/interval"
	"github.com/avatarctic/order-quota/internal/infrastructure/redis"
	"github.com/avatarctic/order-quota/internal/infrastructure/repositories"
	tmocks "github.com/avatarctic/order-quota/test/mocks"
)

func newMiniRedis(t *testing.T) (*miniredis.Miniredis, *goredis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

var day = interval.Window{
	Start: time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC),
	End:   time.Date(2024, 3, 16, 0, 0, 0, 0, time.UTC),
}

func TestOrderCountCache_RoundTripAndInvalidate(t *testing.T) {
	ctx := context.Background()
	mr, client := newMiniRedis(t)
	c := repositories.NewOrderCountCache(redis.NewRedisCache(client, "quota"), "quota:count")

	gen, err := c.Generation(ctx)
	require.NoError(t, err)
	_, ok := c.Get(ctx, gen, 42, day)
	assert.False(t, ok)

	c.Set(ctx, gen, 42, day, 3)
	n, ok := c.Get(ctx, gen, 42, day)
	require.True(t, ok)
	assert.Equal(t, 3, n)

	_, ok = c.Get(ctx, gen, 43, day)
	assert.False(t, ok, "entries are per user")

	require.NoError(t, c.Invalidate(ctx))
	next, err := c.Generation(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, gen, next)
	_, ok = c.Get(ctx, next, 42, day)
	assert.False(t, ok)

	// A count computed before the invalidation lands under the orphaned generation.
	c.Set(ctx, gen, 42, day, 2)
	_, ok = c.Get(ctx, next, 42, day)
	assert.False(t, ok)

	assert.True(t, mr.Exists("quota:quota:count:generation"))
	assert.Equal(t, time.Duration(0), mr.TTL("quota:quota:count:generation"))
}

func TestOrderCountCache_EntriesExpireWithWindow(t *testing.T) {
	ctx := context.Background()
	mr, client := newMiniRedis(t)
	c := repositories.NewOrderCountCache(redis.NewRedisCache(client, ""), "qc")

	c.Set(ctx, "g1", 42, day, 1)
	assert.Equal(t, 24*time.Hour, mr.TTL("qc:g1:42:1710460800:1710547200"))

	mr.FastForward(25 * time.Hour)
	_, ok := c.Get(ctx, "g1", 42, day)
	assert.False(t, ok)
}

func TestOrderCountCache_UnavailableCacheReportsError(t *testing.T) {
	ctx := context.Background()
	cache := tmocks.NewMemoryCache()
	c := repositories.NewOrderCountCache(cache, "")

	cache.GetErr = assert.AnError
	_, err := c.Generation(ctx)
	require.Error(t, err)

	cache.SetErr = assert.AnError
	require.Error(t, c.Invalidate(ctx))
}

func TestCachingOverrideRepository_CachesAndInvalidates(t *testing.T) {
	ctx := context.Background()
	inner := &countingOverrides{MemoryOverrideRepository: tmocks.NewMemoryOverrideRepository()}
	repo := repositories.NewCachingOverrideRepository(inner, tmocks.NewMemoryCache(), time.Minute)

	v, err := repo.Get(ctx, 42)
	require.NoError(t, err)
	assert.Nil(t, v)
	v, err = repo.Get(ctx, 42)
	require.NoError(t, err)
	assert.Nil(t, v)
	assert.Equal(t, 1, inner.gets, "absence is cached too")

	require.NoError(t, repo.Set(ctx, 42, 2))
	v, err = repo.Get(ctx, 42)
	require.NoError(t, err)
	require.NotNil(t, v)
	assert.Equal(t, 2, *v)
	assert.Equal(t, 2, inner.gets, "a write forces the next read through")
	_, err = repo.Get(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, 2, inner.gets)

	require.NoError(t, repo.Clear(ctx, 42))
	v, err = repo.Get(ctx, 42)
	require.NoError(t, err)
	assert.Nil(t, v)

	require.NoError(t, repo.Set(ctx, 7, 1))
	n, err := repo.ClearAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	v, err = repo.Get(ctx, 7)
	require.NoError(t, err)
	assert.Nil(t, v)
}

type countingOverrides struct {
	*tmocks.MemoryOverrideRepository
	gets int
}

func (c *countingOverrides) Get(ctx context.Context, userID int64) (*int, error) {
	c.gets++
	return c.MemoryOverrideRepository.Get(ctx, userID)
}

func TestCachingOverrideRepository_LoadRacingSetDoesNotCacheStaleValue(t *testing.T) {
	ctx := context.Background()
	inner := &pausingOverrides{
		MemoryOverrideRepository: tmocks.NewMemoryOverrideRepository(),
		loaded:                   make(chan struct{}),
		release:                  make(chan struct{}),
	}
	repo := repositories.NewCachingOverrideRepository(inner, tmocks.NewMemoryCache(), time.Minute)

	done := make(chan *int)
	go func() {
		v, _ := repo.Get(ctx, 42)
		done <- v
	}()

	<-inner.loaded
	require.NoError(t, repo.Set(ctx, 42, 5))
	close(inner.release)
	assert.Nil(t, <-done, "the racing load read before the write")

	v, err := repo.Get(ctx, 42)
	require.NoError(t, err)
	require.NotNil(t, v)
	assert.Equal(t, 5, *v)
}

func TestCachingOverrideRepository_LoadRacingClearDoesNotCacheStaleValue(t *testing.T) {
	ctx := context.Background()
	inner := &pausingOverrides{
		MemoryOverrideRepository: tmocks.NewMemoryOverrideRepository(),
		loaded:                   make(chan struct{}),
		release:                  make(chan struct{}),
	}
	require.NoError(t, inner.MemoryOverrideRepository.Set(ctx, 42, 3))
	repo := repositories.NewCachingOverrideRepository(inner, tmocks.NewMemoryCache(), time.Minute)

	done := make(chan *int)
	go func() {
		v, _ := repo.Get(ctx, 42)
		done <- v
	}()

	<-inner.loaded
	require.NoError(t, repo.Clear(ctx, 42))
	close(inner.release)
	<-done

	v, err := repo.Get(ctx, 42)
	require.NoError(t, err)
	assert.Nil(t, v)
}

// pausingOverrides holds its first read after it has hit the store until release is closed.
type pausingOverrides struct {
	*tmocks.MemoryOverrideRepository
	loaded  chan struct{}
	release chan struct{}
	once    sync.Once
}

func (p *pausingOverrides) Get(ctx context.Context, userID int64) (*int, error) {
	v, err := p.MemoryOverrideRepository.Get(ctx, userID)
	first := false
	p.once.Do(func() { first = true })
	if first {
		close(p.loaded)
		<-p.release
	}
	return v, err
}

func TestRateLimitRedisRepository_IncrementWindow(t *testing.T) {
	ctx := context.Background()
	mr, client := newMiniRedis(t)
	repo := repositories.NewRateLimitRedisRepository(client)
	now := time.Date(2024, 3, 15, 10, 0, 30, 0, time.UTC)

	n, start, err := repo.IncrementWindow(ctx, "throttle:checkout:42", now, time.Minute, 2*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC), start)

	n, _, err = repo.IncrementWindow(ctx, "throttle:checkout:42", now.Add(10*time.Second), time.Minute, 2*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 2*time.Minute, mr.TTL("throttle:checkout:42:1710496800"))

	n, _, err = repo.IncrementWindow(ctx, "throttle:checkout:42", now.Add(time.Minute), time.Minute, 2*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 1, n, "a new minute starts a new counter")
}

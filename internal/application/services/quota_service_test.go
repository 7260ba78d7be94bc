package services_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	impl "github.com/avatarctic/order-quota/internal/application/services"
	"github.com/avatarctic/order-quota/internal/core/domain/interval"
	"github.com/avatarctic/order-quota/internal/core/domain/order"
	"github.com/avatarctic/order-quota/internal/core/domain/quota"
	"github.com/avatarctic/order-quota/internal/core/ports"
	"github.com/avatarctic/order-quota/internal/infrastructure/repositories"
	tmocks "github.com/avatarctic/order-quota/test/mocks"
)

type quotaFixture struct {
	svc       *impl.QuotaService
	orders    *tmocks.MemoryOrderStore
	overrides *tmocks.MemoryOverrideRepository
	cache     *tmocks.MemoryCache
	settings  *tmocks.SettingsRepositoryMock
	registry  *prometheus.Registry
}

func dailySettings(limit int) quota.Settings {
	return quota.Settings{
		Enabled:        true,
		Interval:       interval.Daily,
		Limit:          limit,
		CustomerNotice: "Orders reopen tomorrow.",
		WeekStartDay:   time.Monday,
	}
}

func newQuotaFixture(t *testing.T, s quota.Settings, loc *time.Location) *quotaFixture {
	t.Helper()
	f := &quotaFixture{
		orders:    &tmocks.MemoryOrderStore{},
		overrides: tmocks.NewMemoryOverrideRepository(),
		cache:     tmocks.NewMemoryCache(),
		settings:  &tmocks.SettingsRepositoryMock{},
		registry:  prometheus.NewRegistry(),
	}
	svc, err := impl.NewQuotaService(
		context.Background(),
		f.settings,
		f.orders,
		f.overrides,
		repositories.NewOrderCountCache(f.cache, "quota:count"),
		&impl.QuotaServiceConfig{Defaults: s, Location: loc, QueryTimeout: time.Second},
		impl.NewQuotaMetrics(f.registry),
		nil,
	)
	require.NoError(t, err)
	f.svc = svc
	return f
}

func counterValue(t *testing.T, reg *prometheus.Registry, name, labelValue string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			if labelValue == "" {
				return m.GetCounter().GetValue()
			}
			for _, lp := range m.GetLabel() {
				if lp.GetValue() == labelValue {
					return m.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}

var ref = time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)

func TestEvaluateCheckout_BlocksAtLimit(t *testing.T) {
	f := newQuotaFixture(t, dailySettings(3), time.UTC)
	for i := 0; i < 3; i++ {
		f.orders.Add(42, order.StatusCompleted, ref.Add(-time.Duration(i+1)*time.Hour))
	}

	d, err := f.svc.EvaluateCheckout(context.Background(), 42, ref)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, time.Date(2024, 3, 16, 0, 0, 0, 0, time.UTC), d.RetryAfter)
	assert.Equal(t, quota.LimitReachedMessage, d.Message)
	assert.Equal(t, "Orders reopen tomorrow.", d.Notice)
	assert.Equal(t, float64(1), counterValue(t, f.registry, "quota_checkout_decisions_total", "blocked"))
}

func TestEvaluateCheckout_AllowsBelowLimit(t *testing.T) {
	f := newQuotaFixture(t, dailySettings(3), time.UTC)
	f.orders.Add(42, order.StatusProcessing, ref.Add(-time.Hour))
	f.orders.Add(42, order.StatusOnHold, ref.Add(-2*time.Hour))

	d, err := f.svc.EvaluateCheckout(context.Background(), 42, ref)
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Empty(t, d.Message)
}

func TestEvaluateCheckout_DisabledAlwaysAllows(t *testing.T) {
	s := dailySettings(1)
	s.Enabled = false
	f := newQuotaFixture(t, s, time.UTC)
	for i := 0; i < 10; i++ {
		f.orders.Add(42, order.StatusCompleted, ref.Add(-time.Minute))
	}

	d, err := f.svc.EvaluateCheckout(context.Background(), 42, ref)
	require.NoError(t, err)
	assert.True(t, d.Allowed)

	reached, err := f.svc.HasReachedLimit(context.Background(), 42, ref)
	require.NoError(t, err)
	assert.False(t, reached)
	assert.Equal(t, 0, f.orders.CountCalls())
}

func TestEvaluateCheckout_ZeroLimitBlocksWithoutCounting(t *testing.T) {
	f := newQuotaFixture(t, dailySettings(0), time.UTC)

	d, err := f.svc.EvaluateCheckout(context.Background(), 7, ref)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, 0, f.orders.CountCalls())
}

func TestCountInWindow_IgnoresNonQualifyingAndOutOfWindowOrders(t *testing.T) {
	f := newQuotaFixture(t, dailySettings(5), time.UTC)
	w, err := f.svc.CurrentWindow(ref)
	require.NoError(t, err)

	f.orders.Add(42, order.StatusCompleted, w.Start)
	f.orders.Add(42, order.StatusFailed, w.Start.Add(time.Hour))
	f.orders.Add(42, order.StatusPending, w.End.Add(-time.Nanosecond))
	f.orders.Add(42, order.StatusCancelled, ref)
	f.orders.Add(42, order.StatusRefunded, ref)
	f.orders.Add(42, order.StatusDraft, ref)
	f.orders.Add(42, order.StatusCompleted, w.Start.Add(-time.Second))
	f.orders.Add(42, order.StatusCompleted, w.End)
	f.orders.Add(43, order.StatusCompleted, ref)

	n, err := f.svc.CountInWindow(context.Background(), 42, w)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestCountInWindow_ServesFromCacheUntilInvalidated(t *testing.T) {
	ctx := context.Background()
	f := newQuotaFixture(t, dailySettings(3), time.UTC)
	f.orders.Add(42, order.StatusCompleted, ref.Add(-time.Hour))
	f.orders.Add(42, order.StatusCompleted, ref.Add(-2*time.Hour))

	d, err := f.svc.EvaluateCheckout(ctx, 42, ref)
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	require.Equal(t, 1, f.orders.CountCalls())

	// Recorded behind the limiter's back: the cached count still applies.
	f.orders.Add(42, order.StatusCompleted, ref.Add(-time.Minute))
	d, err = f.svc.EvaluateCheckout(ctx, 42, ref)
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Equal(t, 1, f.orders.CountCalls())

	require.NoError(t, f.svc.InvalidateCache(ctx, ports.InvalidateOrderCreated))
	d, err = f.svc.EvaluateCheckout(ctx, 42, ref)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, 2, f.orders.CountCalls())
	assert.Equal(t, float64(1), counterValue(t, f.registry, "quota_cache_invalidations_total", "order_created"))
}

func TestCountInWindow_StoreErrorIsQueryErrorAndNotCached(t *testing.T) {
	ctx := context.Background()
	f := newQuotaFixture(t, dailySettings(3), time.UTC)
	f.orders.CountErr = errors.New("connection refused")
	w, _ := f.svc.CurrentWindow(ref)

	_, err := f.svc.CountInWindow(ctx, 42, w)
	require.Error(t, err)
	assert.True(t, errors.Is(err, quota.ErrQuery))
	var qe *quota.QueryError
	require.True(t, errors.As(err, &qe))

	_, err = f.svc.EvaluateCheckout(ctx, 42, ref)
	assert.True(t, errors.Is(err, quota.ErrQuery))

	f.orders.CountErr = nil
	f.orders.Add(42, order.StatusCompleted, ref)
	n, err := f.svc.CountInWindow(ctx, 42, w)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, float64(2), counterValue(t, f.registry, "quota_order_store_errors_total", ""))
}

func TestCountInWindow_RejectsMalformedInput(t *testing.T) {
	f := newQuotaFixture(t, dailySettings(3), time.UTC)

	_, err := f.svc.CountInWindow(context.Background(), -1, interval.Window{Start: ref, End: ref.Add(time.Hour)})
	assert.True(t, errors.Is(err, quota.ErrQuery))

	_, err = f.svc.CountInWindow(context.Background(), 1, interval.Window{Start: ref, End: ref})
	assert.True(t, errors.Is(err, quota.ErrQuery))
	assert.Equal(t, 0, f.orders.CountCalls())
}

func TestCountInWindow_CacheUnavailableFallsBackToStore(t *testing.T) {
	f := newQuotaFixture(t, dailySettings(3), time.UTC)
	f.cache.GetErr = errors.New("redis down")
	f.orders.Add(42, order.StatusCompleted, ref)
	w, _ := f.svc.CurrentWindow(ref)

	for i := 0; i < 2; i++ {
		n, err := f.svc.CountInWindow(context.Background(), 42, w)
		require.NoError(t, err)
		assert.Equal(t, 1, n)
	}
	assert.Equal(t, 2, f.orders.CountCalls())
}

func TestCountInWindow_SharedLoadOutlivesCallerCancellation(t *testing.T) {
	f := newQuotaFixture(t, dailySettings(3), time.UTC)
	f.orders.Add(42, order.StatusCompleted, ref)
	w, _ := f.svc.CurrentWindow(ref)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	n, err := f.svc.CountInWindow(ctx, 42, w)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	// The finished load was cached for callers that still have a live context.
	n, err = f.svc.CountInWindow(context.Background(), 42, w)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 1, f.orders.CountCalls())
}

func TestSecondsUntilNextWindow(t *testing.T) {
	f := newQuotaFixture(t, dailySettings(3), time.UTC)

	secs, err := f.svc.SecondsUntilNextWindow(time.Date(2024, 3, 15, 23, 59, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, int64(60), secs)

	secs, err = f.svc.SecondsUntilNextWindow(time.Date(2024, 3, 15, 23, 59, 59, 500_000_000, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, int64(0), secs)
}

func TestCurrentWindow_UsesConfiguredLocation(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	f := newQuotaFixture(t, dailySettings(3), ny)

	// 03:00 UTC on the 15th is 23:00 on the 14th in New York.
	w, err := f.svc.CurrentWindow(time.Date(2024, 3, 15, 3, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.True(t, w.Start.Equal(time.Date(2024, 3, 14, 0, 0, 0, 0, ny)))
	assert.True(t, w.End.Equal(time.Date(2024, 3, 15, 0, 0, 0, 0, ny)))
}

func TestCurrentWindow_InvalidSettingsAreConfigurationErrors(t *testing.T) {
	s := dailySettings(3)
	s.Interval = interval.Kind("yearly")
	f := newQuotaFixture(t, s, time.UTC)

	_, err := f.svc.CurrentWindow(ref)
	require.Error(t, err)
	assert.True(t, errors.Is(err, quota.ErrConfiguration))

	_, err = f.svc.EvaluateCheckout(context.Background(), 42, ref)
	assert.True(t, errors.Is(err, quota.ErrConfiguration))

	_, err = f.svc.SecondsUntilNextWindow(ref)
	assert.True(t, errors.Is(err, quota.ErrConfiguration))
}

func TestResolveLimit_OverrideSupersedesGlobal(t *testing.T) {
	ctx := context.Background()
	f := newQuotaFixture(t, dailySettings(5), time.UTC)

	limit, err := f.svc.ResolveLimit(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, 5, limit)

	require.NoError(t, f.svc.SetOverride(ctx, 42, 1))
	limit, err = f.svc.ResolveLimit(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, 1, limit)

	f.orders.Add(42, order.StatusCompleted, ref)
	d, err := f.svc.EvaluateCheckout(ctx, 42, ref)
	require.NoError(t, err)
	assert.False(t, d.Allowed)

	require.NoError(t, f.svc.SetOverride(ctx, 43, 0))
	d, err = f.svc.EvaluateCheckout(ctx, 43, ref)
	require.NoError(t, err)
	assert.False(t, d.Allowed, "a zero override blocks even with a positive global limit")

	require.NoError(t, f.svc.ClearOverride(ctx, 42))
	d, err = f.svc.EvaluateCheckout(ctx, 42, ref)
	require.NoError(t, err)
	assert.True(t, d.Allowed)
}

func TestResolveLimit_OverrideStoreFailureIsQueryError(t *testing.T) {
	f := newQuotaFixture(t, dailySettings(5), time.UTC)
	f.overrides.GetErr = errors.New("timeout")

	_, err := f.svc.EvaluateCheckout(context.Background(), 42, ref)
	assert.True(t, errors.Is(err, quota.ErrQuery))
}

func TestSetOverride_RejectsNegativeLimit(t *testing.T) {
	f := newQuotaFixture(t, dailySettings(5), time.UTC)
	err := f.svc.SetOverride(context.Background(), 42, -1)
	assert.True(t, errors.Is(err, quota.ErrConfiguration))
}

func TestPinOverride_StoresCurrentGlobalLimit(t *testing.T) {
	ctx := context.Background()
	f := newQuotaFixture(t, dailySettings(4), time.UTC)
	require.NoError(t, f.svc.SetOverride(ctx, 42, 9))

	pinned, err := f.svc.PinOverride(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, 4, pinned)

	next := dailySettings(10)
	require.NoError(t, f.svc.HandleSettingsChange(ctx, next))
	limit, err := f.svc.ResolveLimit(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, 4, limit)
}

func TestHandleSettingsChange_InstallsAndInvalidates(t *testing.T) {
	ctx := context.Background()
	f := newQuotaFixture(t, dailySettings(3), time.UTC)
	f.orders.Add(42, order.StatusCompleted, ref)
	f.orders.Add(42, order.StatusCompleted, ref)

	d, err := f.svc.EvaluateCheckout(ctx, 42, ref)
	require.NoError(t, err)
	assert.True(t, d.Allowed)

	require.NoError(t, f.svc.HandleSettingsChange(ctx, dailySettings(2)))
	assert.Equal(t, 2, f.svc.Settings().Limit)

	d, err = f.svc.EvaluateCheckout(ctx, 42, ref)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, 2, f.orders.CountCalls())
}

func TestReload_PrefersStoredSettings(t *testing.T) {
	f := newQuotaFixture(t, dailySettings(3), time.UTC)
	assert.Equal(t, 3, f.svc.Settings().Limit)

	stored := dailySettings(8)
	stored.Interval = interval.Weekly
	f.settings.Stored = &stored
	require.NoError(t, f.svc.Reload(context.Background()))
	assert.Equal(t, 8, f.svc.Settings().Limit)
	assert.Equal(t, interval.Weekly, f.svc.Settings().Interval)

	f.settings.GetFn = func(ctx context.Context) (*quota.Settings, error) { return nil, errors.New("db down") }
	require.Error(t, f.svc.Reload(context.Background()))
	assert.Equal(t, 8, f.svc.Settings().Limit, "a failed reload keeps the previous snapshot")
}

func TestStatus_ReportsCountsAndWindow(t *testing.T) {
	ctx := context.Background()
	f := newQuotaFixture(t, dailySettings(3), time.UTC)
	f.orders.Add(42, order.StatusCompleted, ref.Add(-time.Hour))
	require.NoError(t, f.svc.SetOverride(ctx, 42, 5))

	st, err := f.svc.Status(ctx, 42, ref)
	require.NoError(t, err)
	assert.True(t, st.Enabled)
	assert.Equal(t, interval.Daily, st.Interval)
	assert.Equal(t, 5, st.Limit)
	assert.True(t, st.HasOverride)
	assert.Equal(t, 1, st.Count)
	assert.Equal(t, 4, st.Remaining)
	assert.Equal(t, time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC), st.Window.Start)
	assert.Equal(t, int64(14*3600), st.SecondsUntilNextWindow)
}

func TestVerifyCache_ReportsStaleCount(t *testing.T) {
	ctx := context.Background()
	f := newQuotaFixture(t, dailySettings(5), time.UTC)
	f.orders.Add(42, order.StatusCompleted, ref)
	f.orders.Add(42, order.StatusCompleted, ref)

	require.NoError(t, f.svc.VerifyCache(ctx, 42, ref), "nothing cached yet")
	_, err := f.svc.EvaluateCheckout(ctx, 42, ref)
	require.NoError(t, err)
	require.NoError(t, f.svc.VerifyCache(ctx, 42, ref))

	f.orders.Add(42, order.StatusCompleted, ref)
	err = f.svc.VerifyCache(ctx, 42, ref)
	var stale *quota.StaleCacheWarning
	require.True(t, errors.As(err, &stale))
	assert.Equal(t, int64(42), stale.SubjectID)
	assert.Equal(t, 2, stale.Cached)
	assert.Equal(t, 3, stale.Actual)
	assert.Equal(t, float64(1), counterValue(t, f.registry, "quota_stale_cache_detected_total", ""))
}

func TestStartTransform_ShiftsWindowStart(t *testing.T) {
	shift := func(start time.Time, kind interval.Kind) time.Time { return start.Add(6 * time.Hour) }
	svc, err := impl.NewQuotaService(context.Background(), &tmocks.SettingsRepositoryMock{}, &tmocks.MemoryOrderStore{},
		tmocks.NewMemoryOverrideRepository(), nil,
		&impl.QuotaServiceConfig{Defaults: dailySettings(1), Transform: shift}, nil, nil)
	require.NoError(t, err)

	w, err := svc.CurrentWindow(ref)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 3, 15, 6, 0, 0, 0, time.UTC), w.Start)
}

func TestEvaluateCheckout_ConcurrentCallersAgree(t *testing.T) {
	f := newQuotaFixture(t, dailySettings(3), time.UTC)
	for i := 0; i < 3; i++ {
		f.orders.Add(42, order.StatusCompleted, ref)
	}

	var wg sync.WaitGroup
	results := make([]quota.Decision, 32)
	errs := make([]error, 32)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = f.svc.EvaluateCheckout(context.Background(), 42, ref)
		}(i)
	}
	wg.Wait()

	for i := range results {
		require.NoError(t, errs[i])
		assert.False(t, results[i].Allowed)
	}
	assert.LessOrEqual(t, f.orders.CountCalls(), len(results))
}

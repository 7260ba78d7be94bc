package mocks

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/avatarctic/order-quota/internal/core/domain/audit"
	"github.com/avatarctic/order-quota/internal/core/domain/interval"
	"github.com/avatarctic/order-quota/internal/core/domain/order"
	"github.com/avatarctic/order-quota/internal/core/domain/quota"
	"github.com/avatarctic/order-quota/internal/core/ports"
)

// MemoryOrderStore is an in-memory ports.OrderRepository that filters like the SQL store.
// CountErr, when set, fails every count.
type MemoryOrderStore struct {
	mu       sync.Mutex
	orders   []*order.Order
	nextID   int64
	counts   int
	CountErr error
}

func (m *MemoryOrderStore) Create(ctx context.Context, o *order.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	o.ID = m.nextID
	cp := *o
	m.orders = append(m.orders, &cp)
	return nil
}

// Add records an order for customerID created at createdAt.
func (m *MemoryOrderStore) Add(customerID int64, status order.Status, createdAt time.Time) *order.Order {
	o := &order.Order{CustomerID: customerID, Status: status, CreatedAt: createdAt, UpdatedAt: createdAt}
	_ = m.Create(context.Background(), o)
	return o
}

func (m *MemoryOrderStore) GetByID(ctx context.Context, id int64) (*order.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range m.orders {
		if o.ID == id {
			cp := *o
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("order %d: %w", id, order.ErrNotFound)
}

func (m *MemoryOrderStore) UpdateStatus(ctx context.Context, id int64, status order.Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range m.orders {
		if o.ID == id {
			o.Status = status
			return nil
		}
	}
	return fmt.Errorf("order %d: %w", id, order.ErrNotFound)
}

func (m *MemoryOrderStore) CountByCustomer(ctx context.Context, customerID int64, statuses []order.Status, window interval.Window) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counts++
	if m.CountErr != nil {
		return 0, m.CountErr
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	n := 0
	for _, o := range m.orders {
		if o.CustomerID != customerID || !window.Contains(o.CreatedAt) {
			continue
		}
		for _, s := range statuses {
			if o.Status == s {
				n++
				break
			}
		}
	}
	return n, nil
}

// CountCalls reports how many times the store was asked to count.
func (m *MemoryOrderStore) CountCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counts
}

// MemoryOverrideRepository is an in-memory ports.OverrideRepository.
type MemoryOverrideRepository struct {
	mu          sync.Mutex
	limits      map[int64]int
	GetErr      error
	ClearAllErr error
}

func NewMemoryOverrideRepository() *MemoryOverrideRepository {
	return &MemoryOverrideRepository{limits: map[int64]int{}}
}

func (m *MemoryOverrideRepository) Get(ctx context.Context, userID int64) (*int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.GetErr != nil {
		return nil, m.GetErr
	}
	if v, ok := m.limits[userID]; ok {
		return &v, nil
	}
	return nil, nil
}
func (m *MemoryOverrideRepository) Set(ctx context.Context, userID int64, limit int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.limits[userID] = limit
	return nil
}
func (m *MemoryOverrideRepository) Clear(ctx context.Context, userID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.limits, userID)
	return nil
}
func (m *MemoryOverrideRepository) ClearAll(ctx context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ClearAllErr != nil {
		return 0, m.ClearAllErr
	}
	n := len(m.limits)
	m.limits = map[int64]int{}
	return n, nil
}

// SettingsRepositoryMock stores settings in memory unless the Fn fields are set
type SettingsRepositoryMock struct {
	Stored *quota.Settings
	GetFn  func(ctx context.Context) (*quota.Settings, error)
	SetFn  func(ctx context.Context, s *quota.Settings) error
}

func (m *SettingsRepositoryMock) Get(ctx context.Context) (*quota.Settings, error) {
	if m.GetFn != nil {
		return m.GetFn(ctx)
	}
	if m.Stored == nil {
		return nil, nil
	}
	cp := *m.Stored
	return &cp, nil
}
func (m *SettingsRepositoryMock) Set(ctx context.Context, s *quota.Settings) error {
	if m.SetFn != nil {
		return m.SetFn(ctx, s)
	}
	cp := *s
	m.Stored = &cp
	return nil
}

// SettingsNotifierMock records published settings
type SettingsNotifierMock struct {
	Published   []quota.Settings
	PublishFn   func(ctx context.Context, s quota.Settings) error
	SubscribeFn func(ctx context.Context, fn func(quota.Settings)) error
}

func (m *SettingsNotifierMock) Publish(ctx context.Context, s quota.Settings) error {
	m.Published = append(m.Published, s)
	if m.PublishFn != nil {
		return m.PublishFn(ctx, s)
	}
	return nil
}
func (m *SettingsNotifierMock) Subscribe(ctx context.Context, fn func(quota.Settings)) error {
	if m.SubscribeFn != nil {
		return m.SubscribeFn(ctx, fn)
	}
	return nil
}

// MemoryCache is an in-memory ports.Cache honoring TTLs against Now.
// GetErr and SetErr simulate an unavailable cache.
type MemoryCache struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	Now     func() time.Time
	GetErr  error
	SetErr  error
}

type memoryEntry struct {
	value   []byte
	expires time.Time
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: map[string]memoryEntry{}, Now: time.Now}
}

func (m *MemoryCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.GetErr != nil {
		return nil, false, m.GetErr
	}
	e, ok := m.entries[key]
	if !ok {
		return nil, false, nil
	}
	if !e.expires.IsZero() && !m.Now().Before(e.expires) {
		delete(m.entries, key)
		return nil, false, nil
	}
	return e.value, true, nil
}
func (m *MemoryCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SetErr != nil {
		return m.SetErr
	}
	e := memoryEntry{value: append([]byte(nil), value...)}
	if ttl > 0 {
		e.expires = m.Now().Add(ttl)
	}
	m.entries[key] = e
	return nil
}
func (m *MemoryCache) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
	return nil
}

// Len reports the number of stored entries, expired or not.
func (m *MemoryCache) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// QuotaServiceMock is a lightweight mock implementing ports.QuotaService
type QuotaServiceMock struct {
	SettingsValue          quota.Settings
	EvaluateCheckoutFn     func(ctx context.Context, userID int64, ref time.Time) (quota.Decision, error)
	InvalidateCacheFn      func(ctx context.Context, reason ports.InvalidationReason) error
	StatusFn               func(ctx context.Context, userID int64, ref time.Time) (*quota.Status, error)
	VerifyCacheFn          func(ctx context.Context, userID int64, ref time.Time) error
	GetOverrideFn          func(ctx context.Context, userID int64) (*int, error)
	SetOverrideFn          func(ctx context.Context, userID int64, limit int) error
	ClearOverrideFn        func(ctx context.Context, userID int64) error
	PinOverrideFn          func(ctx context.Context, userID int64) (int, error)
	HandleSettingsChangeFn func(ctx context.Context, s quota.Settings) error

	mu            sync.Mutex
	Invalidations []ports.InvalidationReason
}

func (m *QuotaServiceMock) IsEnabled() bool          { return m.SettingsValue.Enabled }
func (m *QuotaServiceMock) Settings() quota.Settings { return m.SettingsValue }
func (m *QuotaServiceMock) CurrentWindow(ref time.Time) (interval.Window, error) {
	return interval.NewCalculator(nil).Window(ref, m.SettingsValue.Interval, m.SettingsValue.WeekStartDay), nil
}
func (m *QuotaServiceMock) ResolveLimit(ctx context.Context, userID int64) (int, error) {
	return m.SettingsValue.Limit, nil
}
func (m *QuotaServiceMock) CountInWindow(ctx context.Context, userID int64, window interval.Window) (int, error) {
	return 0, nil
}
func (m *QuotaServiceMock) HasReachedLimit(ctx context.Context, userID int64, ref time.Time) (bool, error) {
	d, err := m.EvaluateCheckout(ctx, userID, ref)
	return !d.Allowed, err
}
func (m *QuotaServiceMock) SecondsUntilNextWindow(ref time.Time) (int64, error) {
	w, err := m.CurrentWindow(ref)
	if err != nil {
		return 0, err
	}
	return int64(w.End.Sub(ref) / time.Second), nil
}
func (m *QuotaServiceMock) EvaluateCheckout(ctx context.Context, userID int64, ref time.Time) (quota.Decision, error) {
	if m.EvaluateCheckoutFn != nil {
		return m.EvaluateCheckoutFn(ctx, userID, ref)
	}
	return quota.Allowed(), nil
}
func (m *QuotaServiceMock) InvalidateCache(ctx context.Context, reason ports.InvalidationReason) error {
	m.mu.Lock()
	m.Invalidations = append(m.Invalidations, reason)
	m.mu.Unlock()
	if m.InvalidateCacheFn != nil {
		return m.InvalidateCacheFn(ctx, reason)
	}
	return nil
}
func (m *QuotaServiceMock) Reload(ctx context.Context) error { return nil }
func (m *QuotaServiceMock) HandleSettingsChange(ctx context.Context, s quota.Settings) error {
	if m.HandleSettingsChangeFn != nil {
		return m.HandleSettingsChangeFn(ctx, s)
	}
	m.SettingsValue = s
	return nil
}
func (m *QuotaServiceMock) GetOverride(ctx context.Context, userID int64) (*int, error) {
	if m.GetOverrideFn != nil {
		return m.GetOverrideFn(ctx, userID)
	}
	return nil, nil
}
func (m *QuotaServiceMock) SetOverride(ctx context.Context, userID int64, limit int) error {
	if m.SetOverrideFn != nil {
		return m.SetOverrideFn(ctx, userID, limit)
	}
	return nil
}
func (m *QuotaServiceMock) ClearOverride(ctx context.Context, userID int64) error {
	if m.ClearOverrideFn != nil {
		return m.ClearOverrideFn(ctx, userID)
	}
	return nil
}
func (m *QuotaServiceMock) PinOverride(ctx context.Context, userID int64) (int, error) {
	if m.PinOverrideFn != nil {
		return m.PinOverrideFn(ctx, userID)
	}
	return m.SettingsValue.Limit, nil
}
func (m *QuotaServiceMock) Status(ctx context.Context, userID int64, ref time.Time) (*quota.Status, error) {
	if m.StatusFn != nil {
		return m.StatusFn(ctx, userID, ref)
	}
	return &quota.Status{Enabled: m.SettingsValue.Enabled, Interval: m.SettingsValue.Interval, SubjectID: userID, Limit: m.SettingsValue.Limit}, nil
}
func (m *QuotaServiceMock) VerifyCache(ctx context.Context, userID int64, ref time.Time) error {
	if m.VerifyCacheFn != nil {
		return m.VerifyCacheFn(ctx, userID, ref)
	}
	return nil
}

// InvalidationReasons returns a copy of the recorded invalidations.
func (m *QuotaServiceMock) InvalidationReasons() []ports.InvalidationReason {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]ports.InvalidationReason(nil), m.Invalidations...)
}

// SettingsServiceMock implements ports.SettingsService
type SettingsServiceMock struct {
	GetSettingsFn    func(ctx context.Context) (*quota.Settings, error)
	UpdateSettingsFn func(ctx context.Context, req *quota.UpdateSettingsRequest, actor string) (*quota.Settings, error)
}

func (m *SettingsServiceMock) GetSettings(ctx context.Context) (*quota.Settings, error) {
	if m.GetSettingsFn != nil {
		return m.GetSettingsFn(ctx)
	}
	return &quota.Settings{}, nil
}
func (m *SettingsServiceMock) UpdateSettings(ctx context.Context, req *quota.UpdateSettingsRequest, actor string) (*quota.Settings, error) {
	if m.UpdateSettingsFn != nil {
		return m.UpdateSettingsFn(ctx, req, actor)
	}
	s := req.Apply(quota.Settings{})
	return &s, nil
}
func (m *SettingsServiceMock) OnChange(fn func(ctx context.Context, s quota.Settings) error) {}

// OrderServiceMock implements ports.OrderService
type OrderServiceMock struct {
	PlaceOrderFn        func(ctx context.Context, req *order.CreateOrderRequest) (*order.Order, error)
	GetOrderFn          func(ctx context.Context, id int64) (*order.Order, error)
	UpdateOrderStatusFn func(ctx context.Context, id int64, req *order.UpdateOrderStatusRequest) (*order.Order, error)
}

func (m *OrderServiceMock) PlaceOrder(ctx context.Context, req *order.CreateOrderRequest) (*order.Order, error) {
	if m.PlaceOrderFn != nil {
		return m.PlaceOrderFn(ctx, req)
	}
	return &order.Order{ID: 1, CustomerID: req.CustomerID, Status: req.Status, TotalCents: req.TotalCents}, nil
}
func (m *OrderServiceMock) GetOrder(ctx context.Context, id int64) (*order.Order, error) {
	if m.GetOrderFn != nil {
		return m.GetOrderFn(ctx, id)
	}
	return nil, fmt.Errorf("order %d: %w", id, order.ErrNotFound)
}
func (m *OrderServiceMock) UpdateOrderStatus(ctx context.Context, id int64, req *order.UpdateOrderStatusRequest) (*order.Order, error) {
	if m.UpdateOrderStatusFn != nil {
		return m.UpdateOrderStatusFn(ctx, id, req)
	}
	return &order.Order{ID: id, Status: req.Status}, nil
}

// AuditRepositoryMock implements ports.AuditRepository
type AuditRepositoryMock struct {
	CreateFn func(ctx context.Context, log *audit.AuditLog) error
	ListFn   func(ctx context.Context, filter *audit.AuditLogFilter) ([]*audit.AuditLog, error)
	CountFn  func(ctx context.Context, filter *audit.AuditLogFilter) (int, error)
}

func (m *AuditRepositoryMock) Create(ctx context.Context, log *audit.AuditLog) error {
	if m.CreateFn != nil {
		return m.CreateFn(ctx, log)
	}
	return nil
}
func (m *AuditRepositoryMock) List(ctx context.Context, filter *audit.AuditLogFilter) ([]*audit.AuditLog, error) {
	if m.ListFn != nil {
		return m.ListFn(ctx, filter)
	}
	return nil, nil
}
func (m *AuditRepositoryMock) Count(ctx context.Context, filter *audit.AuditLogFilter) (int, error) {
	if m.CountFn != nil {
		return m.CountFn(ctx, filter)
	}
	return 0, nil
}

// AuditServiceMock records logged actions
type AuditServiceMock struct {
	mu             sync.Mutex
	Logged         []*audit.CreateAuditLogRequest
	LogActionFn    func(ctx context.Context, req *audit.CreateAuditLogRequest) error
	GetAuditLogsFn func(ctx context.Context, filter *audit.AuditLogFilter) ([]*audit.AuditLog, int, error)
}

func (m *AuditServiceMock) LogAction(ctx context.Context, req *audit.CreateAuditLogRequest) error {
	m.mu.Lock()
	m.Logged = append(m.Logged, req)
	m.mu.Unlock()
	if m.LogActionFn != nil {
		return m.LogActionFn(ctx, req)
	}
	return nil
}
func (m *AuditServiceMock) GetAuditLogs(ctx context.Context, filter *audit.AuditLogFilter) ([]*audit.AuditLog, int, error) {
	if m.GetAuditLogsFn != nil {
		return m.GetAuditLogsFn(ctx, filter)
	}
	return []*audit.AuditLog{}, 0, nil
}

// CheckoutThrottleMock implements ports.CheckoutThrottle
type CheckoutThrottleMock struct {
	AllowFn func(ctx context.Context, userID int64, now time.Time) (bool, int, time.Time, error)
}

func (m *CheckoutThrottleMock) Allow(ctx context.Context, userID int64, now time.Time) (bool, int, time.Time, error) {
	if m.AllowFn != nil {
		return m.AllowFn(ctx, userID, now)
	}
	return true, 1, now.Add(time.Minute), nil
}

// RateLimitRepositoryMock implements ports.RateLimitRepository
type RateLimitRepositoryMock struct {
	IncrementWindowFn func(ctx context.Context, key string, now time.Time, window, ttl time.Duration) (int, time.Time, error)
}

func (m *RateLimitRepositoryMock) IncrementWindow(ctx context.Context, key string, now time.Time, window, ttl time.Duration) (int, time.Time, error) {
	if m.IncrementWindowFn != nil {
		return m.IncrementWindowFn(ctx, key, now, window, ttl)
	}
	return 1, now.Truncate(window), nil
}

// HealthCheckerMock implements ports.HealthChecker
type HealthCheckerMock struct {
	NameValue string
	Err       error
}

func (m *HealthCheckerMock) Name() string                    { return m.NameValue }
func (m *HealthCheckerMock) Check(ctx context.Context) error { return m.Err }

package services

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"pos_service/internal/database/dbtest"
	"pos_service/internal/logger"
	"pos_service/internal/models"
	"pos_service/internal/repository"
	"pos_service/pkg/razorpay"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type fixture struct {
	db       *gorm.DB
	repos    *repository.Repositories
	uow      repository.UnitOfWork
	operator *models.User
	coffee   *models.MenuItem
	tea      *models.MenuItem
	retired  *models.MenuItem
	customer *models.Customer
	screen   *models.Screen
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := dbtest.Open(t)
	repos := repository.NewRepositories(db)
	ctx := context.Background()

	f := &fixture{
		db:       db,
		repos:    repos,
		uow:      repository.NewUnitOfWork(db),
		operator: &models.User{Username: "cashier", PasswordHash: "x", Role: string(models.Cashier), IsActive: true},
		coffee:   &models.MenuItem{Name: "Coffee", Price: decimal.RequireFromString("25.00"), IsActive: true},
		tea:      &models.MenuItem{Name: "Tea", Price: decimal.RequireFromString("1.85"), IsActive: true},
		retired:  &models.MenuItem{Name: "Seasonal Cake", Price: decimal.RequireFromString("40.00"), IsActive: false},
		customer: &models.Customer{Name: "Asha Rao", Email: "asha@example.com", Phone: "9876543210", IsActive: true},
		screen:   &models.Screen{Name: "Hall 2"},
	}
	require.NoError(t, repos.Users.Create(ctx, f.operator))
	require.NoError(t, repos.MenuItems.Create(ctx, f.coffee))
	require.NoError(t, repos.MenuItems.Create(ctx, f.tea))
	require.NoError(t, repos.MenuItems.Create(ctx, f.retired))
	require.NoError(t, repos.Customers.Create(ctx, f.customer))
	require.NoError(t, repos.Screens.Create(ctx, f.screen))
	return f
}

func fixedClock(year int, month time.Month, day int) func() time.Time {
	return func() time.Time { return time.Date(year, month, day, 12, 0, 0, 0, time.UTC) }
}

func (f *fixture) orderService(hooks OrderHooks, events StatusEventPublisher) OrderService {
	return NewOrderService(OrderServiceDeps{
		UnitOfWork: f.uow,
		Repos:      f.repos,
		TaxRates:   StaticTaxRate(decimal.RequireFromString("0.05")),
		Numbers:    NewOrderNumberGenerator(fixedClock(2024, time.January, 15)),
		Hooks:      hooks,
		Events:     events,
		Logger:     logger.Discard(),
	})
}

func (f *fixture) countRows(t *testing.T, model interface{}) int64 {
	t.Helper()
	var n int64
	require.NoError(t, f.db.Model(model).Count(&n).Error)
	return n
}

// recordingEvents captures published status changes.
type recordingEvents struct {
	mu      sync.Mutex
	changes []string
	err     error
}

func (r *recordingEvents) PublishStatusChange(_ context.Context, order *models.Order, previous models.OrderStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.changes = append(r.changes, string(previous)+"->"+string(order.Status))
	return r.err
}

type hookFunc struct {
	name string
	fn   func(ctx context.Context, order *models.Order) error
}

func (h hookFunc) Name() string { return h.name }

func (h hookFunc) AfterCreate(ctx context.Context, order *models.Order) error {
	return h.fn(ctx, order)
}

// fakeGateway stands in for the remote payment gateway.
type fakeGateway struct {
	mu          sync.Mutex
	orderCalls  int
	refundCalls []int64
	refundIDs   []string
	createErr   error
	refundErr   error
	delay       time.Duration
}

func (g *fakeGateway) CreateOrder(_ context.Context, amount int64, currency, receipt string, _ map[string]string) (*razorpay.Order, error) {
	if g.delay > 0 {
		time.Sleep(g.delay)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.orderCalls++
	if g.createErr != nil {
		return nil, g.createErr
	}
	return &razorpay.Order{ID: "order_abc", Amount: amount, Currency: currency, Receipt: receipt, Status: "created"}, nil
}

func (g *fakeGateway) Refund(_ context.Context, paymentID string, amount int64) (*razorpay.Refund, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.refundCalls = append(g.refundCalls, amount)
	g.refundIDs = append(g.refundIDs, paymentID)
	if g.refundErr != nil {
		return nil, g.refundErr
	}
	return &razorpay.Refund{
		ID:        "rfnd_1",
		Amount:    amount,
		PaymentID: paymentID,
		Status:    "processed",
		Raw:       []byte(`{"id":"rfnd_1","status":"processed"}`),
	}, nil
}

func (g *fakeGateway) calls() (int, int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.orderCalls, len(g.refundCalls)
}

type memoryCache struct {
	mu      sync.Mutex
	entries map[string][]byte
}

func newMemoryCache() *memoryCache {
	return &memoryCache{entries: map[string][]byte{}}
}

func (m *memoryCache) GetJSON(_ context.Context, key string, dest interface{}) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.entries[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(data, dest)
}

func (m *memoryCache) SetJSON(_ context.Context, key string, value interface{}, _ time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = data
	return nil
}

func (m *memoryCache) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
	return nil
}

func (m *memoryCache) has(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.entries[key]
	return ok
}

var errBoom = errors.New("boom")


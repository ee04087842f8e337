package services

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"sync"
	"testing"

	"pos_service/internal/models"
	"pos_service/internal/repository"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var orderNumberPattern = regexp.MustCompile(`^ORD-\d{8}-\d{3}$`)

func cashOrder(lines ...CartLine) CreateOrderInput {
	return CreateOrderInput{Items: lines, PaymentMethod: models.PaymentCash}
}

func TestCreateOrderPricesCart(t *testing.T) {
	f := newFixture(t)
	svc := f.orderService(OrderHooks{}, nil)

	order, err := svc.CreateOrder(context.Background(), cashOrder(CartLine{MenuItemID: f.coffee.ID, Quantity: 2}), f.operator.ID)
	require.NoError(t, err)

	assert.Equal(t, "ORD-20240115-001", order.OrderNumber)
	assert.Equal(t, models.OrderPending, order.Status)
	assert.Equal(t, f.operator.ID, order.CreatedByID)
	assert.Equal(t, "50.00", order.Subtotal.StringFixed(2))
	assert.Equal(t, "2.50", order.TaxAmount.StringFixed(2))
	assert.Equal(t, "52.50", order.Total.StringFixed(2))
	assert.Equal(t, "0.05", order.TaxRate.String())

	require.Len(t, order.Items, 1)
	item := order.Items[0]
	assert.Equal(t, "Coffee", item.MenuItemName)
	assert.Equal(t, 2, item.Quantity)
	assert.Equal(t, "25.00", item.Price.StringFixed(2))
	assert.Equal(t, "50.00", item.Subtotal.StringFixed(2))
	assert.Equal(t, "2.50", item.TaxAmount.StringFixed(2))
	assert.Equal(t, "52.50", item.Total.StringFixed(2))
}

func TestCreateOrderTaxIsComputedOnOrderSubtotal(t *testing.T) {
	f := newFixture(t)
	svc := NewOrderService(OrderServiceDeps{
		UnitOfWork: f.uow,
		Repos:      f.repos,
		TaxRates:   StaticTaxRate(decimal.RequireFromString("0.18")),
		Numbers:    NewOrderNumberGenerator(fixedClock(2024, 1, 15)),
	})

	order, err := svc.CreateOrder(context.Background(), cashOrder(
		CartLine{MenuItemID: f.tea.ID, Quantity: 1},
		CartLine{MenuItemID: f.tea.ID, Quantity: 1},
		CartLine{MenuItemID: f.tea.ID, Quantity: 1},
	), f.operator.ID)
	require.NoError(t, err)

	// Each line rounds 0.333 down to 0.33, the order rounds 0.999 up to 1.00.
	for _, item := range order.Items {
		assert.Equal(t, "0.33", item.TaxAmount.StringFixed(2))
	}
	assert.Equal(t, "5.55", order.Subtotal.StringFixed(2))
	assert.Equal(t, "1.00", order.TaxAmount.StringFixed(2))
	assert.Equal(t, "6.55", order.Total.StringFixed(2))
}

func TestCreateOrderNumbersAreSequentialPerDay(t *testing.T) {
	f := newFixture(t)
	svc := f.orderService(OrderHooks{}, nil)
	ctx := context.Background()

	first, err := svc.CreateOrder(ctx, cashOrder(CartLine{MenuItemID: f.coffee.ID, Quantity: 1}), f.operator.ID)
	require.NoError(t, err)
	second, err := svc.CreateOrder(ctx, cashOrder(CartLine{MenuItemID: f.coffee.ID, Quantity: 1}), f.operator.ID)
	require.NoError(t, err)

	assert.Equal(t, "ORD-20240115-001", first.OrderNumber)
	assert.Equal(t, "ORD-20240115-002", second.OrderNumber)
	assert.Regexp(t, orderNumberPattern, second.OrderNumber)

	// A new day starts over.
	nextDay := NewOrderService(OrderServiceDeps{
		UnitOfWork: f.uow,
		Repos:      f.repos,
		TaxRates:   StaticTaxRate(decimal.RequireFromString("0.05")),
		Numbers:    NewOrderNumberGenerator(fixedClock(2024, 1, 16)),
	})
	third, err := nextDay.CreateOrder(ctx, cashOrder(CartLine{MenuItemID: f.coffee.ID, Quantity: 1}), f.operator.ID)
	require.NoError(t, err)
	assert.Equal(t, "ORD-20240116-001", third.OrderNumber)
}

func TestCreateOrderContinuesExistingNumbering(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	existing := &models.Order{
		OrderNumber:   "ORD-20240115-007",
		Subtotal:      decimal.RequireFromString("1"),
		TaxAmount:     decimal.Zero,
		Total:         decimal.RequireFromString("1"),
		TaxRate:       decimal.Zero,
		PaymentMethod: models.PaymentCash,
		Status:        models.OrderCompleted,
		CreatedByID:   f.operator.ID,
	}
	require.NoError(t, f.repos.Orders.Create(ctx, existing))

	order, err := f.orderService(OrderHooks{}, nil).CreateOrder(ctx, cashOrder(CartLine{MenuItemID: f.coffee.ID, Quantity: 1}), f.operator.ID)
	require.NoError(t, err)
	assert.Equal(t, "ORD-20240115-008", order.OrderNumber)
}

func (f *fixture) insertNumberedOrder(t *testing.T, number string) {
	t.Helper()
	require.NoError(t, f.repos.Orders.Create(context.Background(), &models.Order{
		OrderNumber:   number,
		Subtotal:      decimal.RequireFromString("1"),
		TaxAmount:     decimal.Zero,
		Total:         decimal.RequireFromString("1"),
		TaxRate:       decimal.Zero,
		PaymentMethod: models.PaymentCash,
		Status:        models.OrderCompleted,
		CreatedByID:   f.operator.ID,
	}))
}

func TestCreateOrderRecoversFromNumberCollision(t *testing.T) {
	f := newFixture(t)
	svc := f.orderService(OrderHooks{}, nil)
	ctx := context.Background()

	first, err := svc.CreateOrder(ctx, cashOrder(CartLine{MenuItemID: f.coffee.ID, Quantity: 1}), f.operator.ID)
	require.NoError(t, err)
	assert.Equal(t, "ORD-20240115-001", first.OrderNumber)

	// Written behind the counter's back, so the next allocation collides.
	f.insertNumberedOrder(t, "ORD-20240115-002")

	second, err := svc.CreateOrder(ctx, cashOrder(CartLine{MenuItemID: f.coffee.ID, Quantity: 1}), f.operator.ID)
	require.NoError(t, err)
	assert.Equal(t, "ORD-20240115-003", second.OrderNumber)

	third, err := svc.CreateOrder(ctx, cashOrder(CartLine{MenuItemID: f.coffee.ID, Quantity: 1}), f.operator.ID)
	require.NoError(t, err)
	assert.Equal(t, "ORD-20240115-004", third.OrderNumber)
	assert.EqualValues(t, 4, f.countRows(t, &models.Order{}))
}

func TestCreateOrderSeedsFromHighestNumber(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.insertNumberedOrder(t, "ORD-20240115-010")
	f.insertNumberedOrder(t, "ORD-20240115-004")

	order, err := f.orderService(OrderHooks{}, nil).CreateOrder(ctx, cashOrder(CartLine{MenuItemID: f.coffee.ID, Quantity: 1}), f.operator.ID)
	require.NoError(t, err)
	assert.Equal(t, "ORD-20240115-011", order.OrderNumber)
}

func TestCreateOrderConcurrentNumbersAreDistinctAndGapless(t *testing.T) {
	f := newFixture(t)
	svc := f.orderService(OrderHooks{}, nil)
	ctx := context.Background()

	const workers = 12
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		numbers []string
		errs    []error
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			order, err := svc.CreateOrder(ctx, cashOrder(CartLine{MenuItemID: f.tea.ID, Quantity: 1}), f.operator.ID)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, err)
				return
			}
			numbers = append(numbers, order.OrderNumber)
		}()
	}
	wg.Wait()

	require.Empty(t, errs)
	require.Len(t, numbers, workers)
	sort.Strings(numbers)
	for i, number := range numbers {
		assert.Equal(t, FormatOrderNumber("20240115", i+1), number)
	}
}

func TestCreateOrderRejectsInactiveItemWithoutWriting(t *testing.T) {
	f := newFixture(t)
	svc := f.orderService(OrderHooks{}, nil)
	ctx := context.Background()

	_, err := svc.CreateOrder(ctx, cashOrder(CartLine{MenuItemID: f.retired.ID, Quantity: 1}), f.operator.ID)
	require.ErrorIs(t, err, ErrValidation)
	assert.Contains(t, err.Error(), fmt.Sprintf("menu item %d", f.retired.ID))

	_, err = svc.CreateOrder(ctx, cashOrder(
		CartLine{MenuItemID: f.coffee.ID, Quantity: 1},
		CartLine{MenuItemID: f.retired.ID, Quantity: 2},
	), f.operator.ID)
	require.ErrorIs(t, err, ErrValidation)

	assert.Zero(t, f.countRows(t, &models.Order{}))
	assert.Zero(t, f.countRows(t, &models.OrderItem{}))

	// Rejected orders do not consume numbers.
	order, err := svc.CreateOrder(ctx, cashOrder(CartLine{MenuItemID: f.coffee.ID, Quantity: 1}), f.operator.ID)
	require.NoError(t, err)
	assert.Equal(t, "ORD-20240115-001", order.OrderNumber)
}

func TestCreateOrderValidation(t *testing.T) {
	f := newFixture(t)
	svc := f.orderService(OrderHooks{}, nil)
	missing := uint(999)

	tests := []struct {
		name  string
		input CreateOrderInput
		want  string
	}{
		{"empty cart", cashOrder(), "at least one item"},
		{"zero quantity", cashOrder(CartLine{MenuItemID: f.coffee.ID, Quantity: 0}), "at least 1"},
		{"unknown item", cashOrder(CartLine{MenuItemID: missing, Quantity: 1}), "menu item 999 not found"},
		{"unknown method", CreateOrderInput{Items: []CartLine{{MenuItemID: f.coffee.ID, Quantity: 1}}, PaymentMethod: "BARTER"}, "payment method"},
		{"bad metadata", CreateOrderInput{Items: []CartLine{{MenuItemID: f.coffee.ID, Quantity: 1}}, PaymentMethod: models.PaymentCash, Metadata: json.RawMessage(`{`)}, "metadata"},
		{"unknown customer", CreateOrderInput{Items: []CartLine{{MenuItemID: f.coffee.ID, Quantity: 1}}, PaymentMethod: models.PaymentCash, Customer: RegisteredCustomer{ID: missing}}, "customer 999"},
		{"unknown screen", CreateOrderInput{Items: []CartLine{{MenuItemID: f.coffee.ID, Quantity: 1}}, PaymentMethod: models.PaymentCash, ScreenID: &missing}, "screen 999"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.CreateOrder(context.Background(), tt.input, f.operator.ID)
			require.ErrorIs(t, err, ErrValidation)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
	assert.Zero(t, f.countRows(t, &models.Order{}))
}

func TestCreateOrderRegisteredCustomerSnapshot(t *testing.T) {
	f := newFixture(t)
	svc := f.orderService(OrderHooks{}, nil)
	ctx := context.Background()

	input := cashOrder(CartLine{MenuItemID: f.coffee.ID, Quantity: 1})
	input.Customer = RegisteredCustomer{ID: f.customer.ID}
	input.ScreenID = &f.screen.ID
	input.Metadata = json.RawMessage(`{"table":"4"}`)

	order, err := svc.CreateOrder(ctx, input, f.operator.ID)
	require.NoError(t, err)
	require.NotNil(t, order.CustomerID)
	assert.Equal(t, f.customer.ID, *order.CustomerID)
	assert.Equal(t, "Asha Rao", order.CustomerName)
	assert.Equal(t, "asha@example.com", order.CustomerEmail)
	assert.Equal(t, "9876543210", order.CustomerPhone)
	require.NotNil(t, order.Screen)
	assert.Equal(t, "Hall 2", order.Screen.Name)
	assert.JSONEq(t, `{"table":"4"}`, string(order.Metadata))

	// Later edits to the customer do not rewrite the snapshot.
	require.NoError(t, f.db.Model(&models.Customer{}).Where("id = ?", f.customer.ID).Update("name", "Asha R.").Error)
	reloaded, err := svc.GetOrder(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, "Asha Rao", reloaded.CustomerName)
}

func TestCreateOrderGuestAndWalkIn(t *testing.T) {
	f := newFixture(t)
	svc := f.orderService(OrderHooks{}, nil)
	ctx := context.Background()

	input := cashOrder(CartLine{MenuItemID: f.coffee.ID, Quantity: 1})
	input.Customer = GuestCustomer{Name: "  Ravi ", Phone: "555"}
	guest, err := svc.CreateOrder(ctx, input, f.operator.ID)
	require.NoError(t, err)
	assert.Nil(t, guest.CustomerID)
	assert.Equal(t, "Ravi", guest.CustomerName)
	assert.Equal(t, "555", guest.CustomerPhone)

	walkIn, err := svc.CreateOrder(ctx, cashOrder(CartLine{MenuItemID: f.coffee.ID, Quantity: 1}), f.operator.ID)
	require.NoError(t, err)
	assert.Nil(t, walkIn.CustomerID)
	assert.Empty(t, walkIn.CustomerName)
}

func TestCustomerStatsAccumulateAcrossOrders(t *testing.T) {
	f := newFixture(t)
	hooks := OrderHooks{AfterCommit: []OrderHook{NewCustomerStatsHook(f.repos.Customers)}}
	svc := f.orderService(hooks, nil)
	ctx := context.Background()

	expected := decimal.Zero
	for qty := 1; qty <= 4; qty++ {
		input := cashOrder(CartLine{MenuItemID: f.coffee.ID, Quantity: qty}, CartLine{MenuItemID: f.tea.ID, Quantity: 1})
		input.Customer = RegisteredCustomer{ID: f.customer.ID}
		order, err := svc.CreateOrder(ctx, input, f.operator.ID)
		require.NoError(t, err)
		expected = expected.Add(order.Total)
	}

	customer, err := f.repos.Customers.GetByID(ctx, f.customer.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, customer.OrderCount)
	assert.Equal(t, expected.StringFixed(2), customer.TotalSpent.StringFixed(2))
}

func TestHookFailuresDoNotFailTheOrder(t *testing.T) {
	f := newFixture(t)

	var seen *models.Order
	hooks := OrderHooks{
		AfterCommit: []OrderHook{
			hookFunc{name: "erroring", fn: func(context.Context, *models.Order) error { return errBoom }},
			hookFunc{name: "panicking", fn: func(context.Context, *models.Order) error { panic("kaboom") }},
		},
		AfterLoad: []OrderHook{
			hookFunc{name: "recording", fn: func(_ context.Context, o *models.Order) error {
				seen = o
				return nil
			}},
		},
	}
	svc := f.orderService(hooks, nil)

	ctx, cancel := context.WithCancel(context.Background())
	order, err := svc.CreateOrder(ctx, cashOrder(CartLine{MenuItemID: f.coffee.ID, Quantity: 1}), f.operator.ID)
	cancel()
	require.NoError(t, err)
	require.NotNil(t, seen)
	assert.Equal(t, order.ID, seen.ID)
	assert.Len(t, seen.Items, 1)
	assert.Equal(t, int64(1), f.countRows(t, &models.Order{}))
}

func TestNotificationHooksSkipMissingContacts(t *testing.T) {
	sender := &recordingSender{}
	confirm := NewConfirmationHook(sender)
	receipt := NewWhatsAppReceiptHook(sender, "INR")

	order := &models.Order{OrderNumber: "ORD-20240115-001"}
	require.NoError(t, confirm.AfterCreate(context.Background(), order))
	require.NoError(t, receipt.AfterCreate(context.Background(), order))
	assert.Empty(t, sender.emails)
	assert.Empty(t, sender.phones)

	order.CustomerEmail = "a@b.c"
	order.CustomerPhone = "9876543210"
	require.NoError(t, confirm.AfterCreate(context.Background(), order))
	require.NoError(t, receipt.AfterCreate(context.Background(), order))
	assert.Equal(t, []string{"a@b.c"}, sender.emails)
	assert.Equal(t, []string{"9876543210"}, sender.phones)
}

type recordingSender struct {
	emails []string
	phones []string
}

func (r *recordingSender) SendOrderConfirmation(_ context.Context, _ *models.Order, email string) error {
	r.emails = append(r.emails, email)
	return nil
}

func (r *recordingSender) SendTextMessage(_ context.Context, phone, _ string) error {
	r.phones = append(r.phones, phone)
	return nil
}

func TestUpdateOrderStatusStateMachine(t *testing.T) {
	f := newFixture(t)
	events := &recordingEvents{}
	svc := f.orderService(OrderHooks{}, events)
	ctx := context.Background()

	order, err := svc.CreateOrder(ctx, cashOrder(CartLine{MenuItemID: f.coffee.ID, Quantity: 1}), f.operator.ID)
	require.NoError(t, err)

	updated, err := svc.UpdateOrderStatus(ctx, order.ID, models.OrderCompleted)
	require.NoError(t, err)
	assert.Equal(t, models.OrderCompleted, updated.Status)

	// Same status is a no-op and publishes nothing.
	_, err = svc.UpdateOrderStatus(ctx, order.ID, models.OrderCompleted)
	require.NoError(t, err)

	_, err = svc.UpdateOrderStatus(ctx, order.ID, models.OrderPending)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	_, err = svc.UpdateOrderStatus(ctx, order.ID, models.OrderRefunded)
	require.NoError(t, err)

	_, err = svc.UpdateOrderStatus(ctx, order.ID, models.OrderCancelled)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	_, err = svc.UpdateOrderStatus(ctx, order.ID, "LOST")
	assert.ErrorIs(t, err, ErrValidation)

	_, err = svc.UpdateOrderStatus(ctx, 999, models.OrderCompleted)
	assert.ErrorIs(t, err, ErrNotFound)

	assert.Equal(t, []string{"PENDING->COMPLETED", "COMPLETED->REFUNDED"}, events.changes)
}

func TestStatusEventFailureIsSwallowed(t *testing.T) {
	f := newFixture(t)
	svc := f.orderService(OrderHooks{}, &recordingEvents{err: errBoom})
	ctx := context.Background()

	order, err := svc.CreateOrder(ctx, cashOrder(CartLine{MenuItemID: f.coffee.ID, Quantity: 1}), f.operator.ID)
	require.NoError(t, err)
	updated, err := svc.UpdateOrderStatus(ctx, order.ID, models.OrderCancelled)
	require.NoError(t, err)
	assert.Equal(t, models.OrderCancelled, updated.Status)
}

func TestUpdateOrder(t *testing.T) {
	f := newFixture(t)
	svc := f.orderService(OrderHooks{}, nil)
	ctx := context.Background()

	input := cashOrder(CartLine{MenuItemID: f.coffee.ID, Quantity: 1})
	input.Customer = GuestCustomer{Name: "Ravi"}
	guest, err := svc.CreateOrder(ctx, input, f.operator.ID)
	require.NoError(t, err)

	name := "Ravi Kumar"
	card := models.PaymentCard
	updated, err := svc.UpdateOrder(ctx, guest.ID, UpdateOrderInput{
		ScreenID:      &f.screen.ID,
		CustomerName:  &name,
		PaymentMethod: &card,
		Metadata:      json.RawMessage(`{"note":"window seat"}`),
	})
	require.NoError(t, err)
	assert.Equal(t, "Ravi Kumar", updated.CustomerName)
	assert.Equal(t, models.PaymentCard, updated.PaymentMethod)
	require.NotNil(t, updated.ScreenID)
	assert.Equal(t, f.screen.ID, *updated.ScreenID)
	assert.JSONEq(t, `{"note":"window seat"}`, string(updated.Metadata))
	assert.True(t, guest.Total.Equal(updated.Total))

	registered := cashOrder(CartLine{MenuItemID: f.coffee.ID, Quantity: 1})
	registered.Customer = RegisteredCustomer{ID: f.customer.ID}
	owned, err := svc.CreateOrder(ctx, registered, f.operator.ID)
	require.NoError(t, err)
	_, err = svc.UpdateOrder(ctx, owned.ID, UpdateOrderInput{CustomerName: &name})
	assert.ErrorIs(t, err, ErrValidation)

	completed := models.OrderCompleted
	_, err = svc.UpdateOrder(ctx, owned.ID, UpdateOrderInput{Status: &completed})
	require.NoError(t, err)
	upi := models.PaymentUPI
	_, err = svc.UpdateOrder(ctx, owned.ID, UpdateOrderInput{PaymentMethod: &upi})
	assert.ErrorIs(t, err, ErrValidation)

	pending := models.OrderPending
	_, err = svc.UpdateOrder(ctx, owned.ID, UpdateOrderInput{Status: &pending})
	assert.ErrorIs(t, err, ErrInvalidTransition)

	missing := uint(404)
	_, err = svc.UpdateOrder(ctx, guest.ID, UpdateOrderInput{ScreenID: &missing})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestListOrders(t *testing.T) {
	f := newFixture(t)
	svc := f.orderService(OrderHooks{}, nil)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		input := cashOrder(CartLine{MenuItemID: f.coffee.ID, Quantity: 1})
		if i%2 == 0 {
			input.Customer = GuestCustomer{Name: fmt.Sprintf("Guest %d", i)}
			input.PaymentMethod = models.PaymentUPI
		}
		_, err := svc.CreateOrder(ctx, input, f.operator.ID)
		require.NoError(t, err)
	}
	_, err := svc.UpdateOrderStatus(ctx, 1, models.OrderCompleted)
	require.NoError(t, err)

	all, err := svc.ListOrders(ctx, repository.OrderFilter{}, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(5), all.Total)
	assert.Len(t, all.Orders, 2)
	assert.Equal(t, "ORD-20240115-005", all.Orders[0].OrderNumber)

	upi, err := svc.ListOrders(ctx, repository.OrderFilter{PaymentMethod: models.PaymentUPI}, 1, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(3), upi.Total)
	assert.Equal(t, DefaultPageSize, upi.Limit)

	completed, err := svc.ListOrders(ctx, repository.OrderFilter{Status: models.OrderCompleted}, 0, 500)
	require.NoError(t, err)
	assert.Equal(t, int64(1), completed.Total)
	assert.Equal(t, 1, completed.Page)
	assert.Equal(t, MaxPageSize, completed.Limit)

	search, err := svc.ListOrders(ctx, repository.OrderFilter{Search: "guest 4"}, 1, 10)
	require.NoError(t, err)
	require.Len(t, search.Orders, 1)
	assert.Equal(t, "Guest 4", search.Orders[0].CustomerName)

	_, err = svc.ListOrders(ctx, repository.OrderFilter{Status: "LOST"}, 1, 10)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestGetOrderNotFound(t *testing.T) {
	f := newFixture(t)
	_, err := f.orderService(OrderHooks{}, nil).GetOrder(context.Background(), 42)
	assert.ErrorIs(t, err, ErrNotFound)
}

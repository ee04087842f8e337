package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"pos_service/internal/logger"
	"pos_service/internal/models"
	"pos_service/internal/pricing"
	"pos_service/internal/repository"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100

	// createOrderAttempts bounds retries after an order-number collision.
	createOrderAttempts = 2
)

type CartLine struct {
	MenuItemID uint
	Quantity   int
}

// CustomerRef identifies who an order is for: either a RegisteredCustomer or
// a GuestCustomer. A nil CustomerRef is an anonymous walk-in.
type CustomerRef interface {
	customerRef()
}

type RegisteredCustomer struct {
	ID uint
}

type GuestCustomer struct {
	Name  string
	Email string
	Phone string
}

func (RegisteredCustomer) customerRef() {}
func (GuestCustomer) customerRef()      {}

type CreateOrderInput struct {
	Items         []CartLine
	Customer      CustomerRef
	ScreenID      *uint
	PaymentMethod models.PaymentMethod
	Metadata      json.RawMessage
}

// UpdateOrderInput is a partial update; nil fields are left unchanged.
type UpdateOrderInput struct {
	ScreenID      *uint
	CustomerName  *string
	CustomerEmail *string
	CustomerPhone *string
	PaymentMethod *models.PaymentMethod
	Metadata      json.RawMessage
	Status        *models.OrderStatus
}

type ListOrdersResult struct {
	Orders []models.Order `json:"orders"`
	Total  int64          `json:"total"`
	Page   int            `json:"page"`
	Limit  int            `json:"limit"`
}

// StatusEventPublisher announces order status changes to other services.
type StatusEventPublisher interface {
	PublishStatusChange(ctx context.Context, order *models.Order, previous models.OrderStatus) error
}

type OrderService interface {
	CreateOrder(ctx context.Context, input CreateOrderInput, operatorID uint) (*models.Order, error)
	UpdateOrder(ctx context.Context, id uint, input UpdateOrderInput) (*models.Order, error)
	UpdateOrderStatus(ctx context.Context, id uint, status models.OrderStatus) (*models.Order, error)
	GetOrder(ctx context.Context, id uint) (*models.Order, error)
	ListOrders(ctx context.Context, filter repository.OrderFilter, page, limit int) (*ListOrdersResult, error)
}

type OrderServiceDeps struct {
	UnitOfWork repository.UnitOfWork
	Repos      *repository.Repositories
	TaxRates   TaxRateProvider
	Numbers    *OrderNumberGenerator
	Hooks      OrderHooks
	Events     StatusEventPublisher
	Logger     *logger.Logger
}

type orderService struct {
	uow      repository.UnitOfWork
	repos    *repository.Repositories
	taxRates TaxRateProvider
	numbers  *OrderNumberGenerator
	hooks    OrderHooks
	events   StatusEventPublisher
	log      *logger.Logger
}

func NewOrderService(deps OrderServiceDeps) OrderService {
	numbers := deps.Numbers
	if numbers == nil {
		numbers = NewOrderNumberGenerator(nil)
	}
	log := deps.Logger
	if log == nil {
		log = logger.NewLogger("order-service")
	}
	return &orderService{
		uow:      deps.UnitOfWork,
		repos:    deps.Repos,
		taxRates: deps.TaxRates,
		numbers:  numbers,
		hooks:    deps.Hooks,
		events:   deps.Events,
		log:      log,
	}
}

func (s *orderService) CreateOrder(ctx context.Context, input CreateOrderInput, operatorID uint) (*models.Order, error) {
	if err := validateCreateOrderInput(input); err != nil {
		return nil, err
	}

	rate, err := s.taxRates.Current(ctx)
	if err != nil {
		return nil, err
	}

	var order *models.Order
	for attempt := 1; attempt <= createOrderAttempts; attempt++ {
		order, err = s.persistOrder(ctx, input, operatorID, rate, attempt > 1)
		if err == nil {
			break
		}
		if !repository.IsUniqueViolation(err) {
			return nil, err
		}
		s.log.Warn(ctx, "order_number_conflict", "order number collision, retrying",
			slog.Int("attempt", attempt))
	}
	if err != nil {
		return nil, fmt.Errorf("%w: could not allocate a unique order number", ErrConflict)
	}

	s.log.Info(ctx, "order_created", "order created",
		slog.Uint64("order_id", uint64(order.ID)),
		slog.String("order_number", order.OrderNumber),
		slog.String("total", order.Total.StringFixed(pricing.Places)))

	// Side effects must not depend on the caller still waiting.
	hookCtx := context.WithoutCancel(ctx)
	runHooks(hookCtx, s.log, s.hooks.AfterCommit, order)

	full, err := s.repos.Orders.GetDetailed(ctx, order.ID)
	if err != nil {
		s.log.Error(ctx, "order_reload_failed", "failed to reload created order", err,
			slog.Uint64("order_id", uint64(order.ID)))
		full = order
	}

	runHooks(hookCtx, s.log, s.hooks.AfterLoad, full)
	return full, nil
}

// persistOrder resolves every reference, prices the cart and writes the order
// with its items in one transaction. All lookups happen before the first
// write, so bad input never leaves anything behind.
func (s *orderService) persistOrder(ctx context.Context, input CreateOrderInput, operatorID uint, rate decimal.Decimal, resync bool) (*models.Order, error) {
	var order *models.Order

	err := s.uow.Do(ctx, func(repos *repository.Repositories) error {
		menuItems := make([]*models.MenuItem, len(input.Items))
		lines := make([]pricing.Line, len(input.Items))
		for i, line := range input.Items {
			item, err := loadActiveMenuItem(ctx, repos.MenuItems, line.MenuItemID)
			if err != nil {
				return err
			}
			menuItems[i] = item
			lines[i] = pricing.Line{UnitPrice: item.Price, Quantity: line.Quantity}
		}

		order = &models.Order{
			PaymentMethod: input.PaymentMethod,
			Status:        models.OrderPending,
			CreatedByID:   operatorID,
			TaxRate:       rate,
			AddonsTotal:   decimal.Zero,
		}
		if err := applyCustomer(ctx, repos.Customers, order, input.Customer); err != nil {
			return err
		}
		if input.ScreenID != nil {
			if err := ensureScreen(ctx, repos.Screens, *input.ScreenID); err != nil {
				return err
			}
			order.ScreenID = input.ScreenID
		}
		if len(input.Metadata) > 0 {
			order.Metadata = datatypes.JSON(input.Metadata)
		}

		totals := pricing.Calculate(lines, rate)
		order.Subtotal = totals.Subtotal
		order.TaxAmount = totals.TaxAmount
		order.Total = totals.Total

		if resync {
			if err := s.numbers.Resync(ctx, repos); err != nil {
				return err
			}
		}
		number, err := s.numbers.Next(ctx, repos)
		if err != nil {
			return err
		}
		order.OrderNumber = number

		if err := repos.Orders.Create(ctx, order); err != nil {
			return err
		}

		items := make([]models.OrderItem, len(input.Items))
		for i, line := range input.Items {
			lt := totals.Lines[i]
			items[i] = models.OrderItem{
				OrderID:      order.ID,
				MenuItemID:   menuItems[i].ID,
				MenuItemName: menuItems[i].Name,
				Quantity:     line.Quantity,
				Price:        menuItems[i].Price,
				Subtotal:     lt.Subtotal,
				TaxAmount:    lt.TaxAmount,
				Total:        lt.Total,
			}
		}
		if err := repos.OrderItems.CreateBatch(ctx, items); err != nil {
			return err
		}
		order.Items = items
		return nil
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

func validateCreateOrderInput(input CreateOrderInput) error {
	if len(input.Items) == 0 {
		return fmt.Errorf("%w: order must contain at least one item", ErrValidation)
	}
	for _, line := range input.Items {
		if line.MenuItemID == 0 {
			return fmt.Errorf("%w: menu item id is required", ErrValidation)
		}
		if line.Quantity < 1 {
			return fmt.Errorf("%w: quantity for menu item %d must be at least 1", ErrValidation, line.MenuItemID)
		}
	}
	if !input.PaymentMethod.Valid() {
		return fmt.Errorf("%w: unknown payment method %q", ErrValidation, input.PaymentMethod)
	}
	if len(input.Metadata) > 0 && !json.Valid(input.Metadata) {
		return fmt.Errorf("%w: metadata must be valid JSON", ErrValidation)
	}
	return nil
}

func loadActiveMenuItem(ctx context.Context, menuItems repository.MenuItemRepository, id uint) (*models.MenuItem, error) {
	item, err := menuItems.GetByID(ctx, id)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, fmt.Errorf("%w: menu item %d not found", ErrValidation, id)
		}
		return nil, fmt.Errorf("failed to load menu item %d: %w", id, err)
	}
	if !item.IsActive {
		return nil, fmt.Errorf("%w: menu item %d is not available", ErrValidation, id)
	}
	return item, nil
}

// applyCustomer fills the order's customer fields. A registered customer's
// details are copied at this point and do not follow later edits.
func applyCustomer(ctx context.Context, customers repository.CustomerRepository, order *models.Order, ref CustomerRef) error {
	switch c := ref.(type) {
	case nil:
		return nil
	case RegisteredCustomer:
		customer, err := customers.GetByID(ctx, c.ID)
		if err != nil {
			if repository.IsNotFound(err) {
				return fmt.Errorf("%w: customer %d not found", ErrValidation, c.ID)
			}
			return fmt.Errorf("failed to load customer %d: %w", c.ID, err)
		}
		id := customer.ID
		order.CustomerID = &id
		order.CustomerName = customer.Name
		order.CustomerEmail = customer.Email
		order.CustomerPhone = customer.Phone
	case GuestCustomer:
		order.CustomerName = strings.TrimSpace(c.Name)
		order.CustomerEmail = strings.TrimSpace(c.Email)
		order.CustomerPhone = strings.TrimSpace(c.Phone)
	default:
		return fmt.Errorf("unsupported customer reference %T", ref)
	}
	return nil
}

func ensureScreen(ctx context.Context, screens repository.ScreenRepository, id uint) error {
	if _, err := screens.GetByID(ctx, id); err != nil {
		if repository.IsNotFound(err) {
			return fmt.Errorf("%w: screen %d not found", ErrValidation, id)
		}
		return fmt.Errorf("failed to load screen %d: %w", id, err)
	}
	return nil
}

func (s *orderService) UpdateOrder(ctx context.Context, id uint, input UpdateOrderInput) (*models.Order, error) {
	if input.PaymentMethod != nil && !input.PaymentMethod.Valid() {
		return nil, fmt.Errorf("%w: unknown payment method %q", ErrValidation, *input.PaymentMethod)
	}
	if input.Status != nil && !input.Status.Valid() {
		return nil, fmt.Errorf("%w: unknown order status %q", ErrValidation, *input.Status)
	}
	if len(input.Metadata) > 0 && !json.Valid(input.Metadata) {
		return nil, fmt.Errorf("%w: metadata must be valid JSON", ErrValidation)
	}

	var previous models.OrderStatus
	err := s.uow.Do(ctx, func(repos *repository.Repositories) error {
		order, err := lockOrder(ctx, repos.Orders, id)
		if err != nil {
			return err
		}
		previous = order.Status

		fields := map[string]interface{}{}
		if input.ScreenID != nil {
			if err := ensureScreen(ctx, repos.Screens, *input.ScreenID); err != nil {
				return err
			}
			fields["screen_id"] = *input.ScreenID
		}
		if input.CustomerName != nil || input.CustomerEmail != nil || input.CustomerPhone != nil {
			if order.IsRegisteredCustomer() {
				return fmt.Errorf("%w: customer details of order %s come from the customer record", ErrValidation, order.OrderNumber)
			}
			if input.CustomerName != nil {
				fields["customer_name"] = strings.TrimSpace(*input.CustomerName)
			}
			if input.CustomerEmail != nil {
				fields["customer_email"] = strings.TrimSpace(*input.CustomerEmail)
			}
			if input.CustomerPhone != nil {
				fields["customer_phone"] = strings.TrimSpace(*input.CustomerPhone)
			}
		}
		if input.PaymentMethod != nil && *input.PaymentMethod != order.PaymentMethod {
			if order.Status != models.OrderPending {
				return fmt.Errorf("%w: payment method of order %s can only change while it is pending", ErrValidation, order.OrderNumber)
			}
			fields["payment_method"] = *input.PaymentMethod
		}
		if len(input.Metadata) > 0 {
			fields["metadata"] = datatypes.JSON(input.Metadata)
		}
		if input.Status != nil && *input.Status != order.Status {
			if !order.Status.CanTransitionTo(*input.Status) {
				return invalidTransition(order, *input.Status)
			}
			fields["status"] = *input.Status
		}

		return repos.Orders.UpdateFields(ctx, id, fields)
	})
	if err != nil {
		return nil, err
	}

	order, err := s.GetOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	s.publishStatusChange(ctx, order, previous)
	return order, nil
}

func (s *orderService) UpdateOrderStatus(ctx context.Context, id uint, status models.OrderStatus) (*models.Order, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("%w: unknown order status %q", ErrValidation, status)
	}

	var previous models.OrderStatus
	err := s.uow.Do(ctx, func(repos *repository.Repositories) error {
		order, err := lockOrder(ctx, repos.Orders, id)
		if err != nil {
			return err
		}
		previous = order.Status
		if order.Status == status {
			return nil
		}
		if !order.Status.CanTransitionTo(status) {
			return invalidTransition(order, status)
		}
		return repos.Orders.UpdateStatus(ctx, id, status)
	})
	if err != nil {
		return nil, err
	}

	order, err := s.GetOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	s.publishStatusChange(ctx, order, previous)
	return order, nil
}

func (s *orderService) GetOrder(ctx context.Context, id uint) (*models.Order, error) {
	order, err := s.repos.Orders.GetDetailed(ctx, id)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, fmt.Errorf("%w: order %d", ErrNotFound, id)
		}
		return nil, fmt.Errorf("failed to load order %d: %w", id, err)
	}
	return order, nil
}

func (s *orderService) ListOrders(ctx context.Context, filter repository.OrderFilter, page, limit int) (*ListOrdersResult, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, fmt.Errorf("%w: unknown order status %q", ErrValidation, filter.Status)
	}
	if filter.PaymentMethod != "" && !filter.PaymentMethod.Valid() {
		return nil, fmt.Errorf("%w: unknown payment method %q", ErrValidation, filter.PaymentMethod)
	}
	page, limit = normalizePage(page, limit)

	orders, total, err := s.repos.Orders.List(ctx, filter, (page-1)*limit, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	if orders == nil {
		orders = []models.Order{}
	}
	return &ListOrdersResult{Orders: orders, Total: total, Page: page, Limit: limit}, nil
}

func normalizePage(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}
	return page, limit
}

func (s *orderService) publishStatusChange(ctx context.Context, order *models.Order, previous models.OrderStatus) {
	publishStatusChange(ctx, s.events, s.log, order, previous)
}

func publishStatusChange(ctx context.Context, events StatusEventPublisher, log *logger.Logger, order *models.Order, previous models.OrderStatus) {
	if events == nil || order.Status == previous {
		return
	}
	if err := events.PublishStatusChange(context.WithoutCancel(ctx), order, previous); err != nil {
		log.Error(ctx, "status_event_failed", "failed to publish order status change", err,
			slog.String("order_number", order.OrderNumber),
			slog.String("status", string(order.Status)))
	}
}

func lockOrder(ctx context.Context, orders repository.OrderRepository, id uint) (*models.Order, error) {
	order, err := orders.GetByIDForUpdate(ctx, id)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, fmt.Errorf("%w: order %d", ErrNotFound, id)
		}
		return nil, fmt.Errorf("failed to load order %d: %w", id, err)
	}
	return order, nil
}

func invalidTransition(order *models.Order, next models.OrderStatus) error {
	return fmt.Errorf("%w: order %s cannot move from %s to %s", ErrInvalidTransition, order.OrderNumber, order.Status, next)
}

package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"pos_service/internal/logger"
	"pos_service/internal/models"
	"pos_service/internal/repository"
)

// OrderHook is a side effect that runs after an order has been committed. A
// hook's failure is logged and never reaches the caller of CreateOrder.
type OrderHook interface {
	Name() string
	AfterCreate(ctx context.Context, order *models.Order) error
}

// OrderHooks groups hooks by the point of the pipeline they run at.
type OrderHooks struct {
	// AfterCommit hooks see the order as written, before it is reloaded.
	AfterCommit []OrderHook
	// AfterLoad hooks see the fully loaded order (items, customer, screen,
	// payments).
	AfterLoad []OrderHook
}

func runHooks(ctx context.Context, log *logger.Logger, hooks []OrderHook, order *models.Order) {
	for _, hook := range hooks {
		runHook(ctx, log, hook, order)
	}
}

func runHook(ctx context.Context, log *logger.Logger, hook OrderHook, order *models.Order) {
	action := hook.Name() + "_failed"
	defer func() {
		if r := recover(); r != nil {
			log.Error(ctx, action, "order hook panicked", fmt.Errorf("panic: %v", r),
				slog.String("order_number", order.OrderNumber))
		}
	}()

	if err := hook.AfterCreate(ctx, order); err != nil {
		log.Error(ctx, action, "order hook failed", err,
			slog.String("order_number", order.OrderNumber))
	}
}

type customerStatsHook struct {
	customers repository.CustomerRepository
}

// NewCustomerStatsHook increments a registered customer's order count and
// total spent.
func NewCustomerStatsHook(customers repository.CustomerRepository) OrderHook {
	return &customerStatsHook{customers: customers}
}

func (h *customerStatsHook) Name() string { return "customer_stats" }

func (h *customerStatsHook) AfterCreate(ctx context.Context, order *models.Order) error {
	if order.CustomerID == nil {
		return nil
	}
	return h.customers.IncrementStats(ctx, *order.CustomerID, order.Total)
}

// ConfirmationSender delivers an order confirmation to an e-mail address.
type ConfirmationSender interface {
	SendOrderConfirmation(ctx context.Context, order *models.Order, email string) error
}

type confirmationHook struct {
	sender ConfirmationSender
}

func NewConfirmationHook(sender ConfirmationSender) OrderHook {
	return &confirmationHook{sender: sender}
}

func (h *confirmationHook) Name() string { return "order_confirmation" }

func (h *confirmationHook) AfterCreate(ctx context.Context, order *models.Order) error {
	email := strings.TrimSpace(order.CustomerEmail)
	if email == "" {
		return nil
	}
	return h.sender.SendOrderConfirmation(ctx, order, email)
}

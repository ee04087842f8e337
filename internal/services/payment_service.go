package services

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"pos_service/internal/logger"
	"pos_service/internal/models"
	"pos_service/internal/pricing"
	"pos_service/internal/repository"
	"pos_service/pkg/razorpay"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"
	"gorm.io/datatypes"
)

// GatewayClient is the remote payment gateway. Amounts are in minor units.
type GatewayClient interface {
	CreateOrder(ctx context.Context, amount int64, currency, receipt string, notes map[string]string) (*razorpay.Order, error)
	Refund(ctx context.Context, paymentID string, amount int64) (*razorpay.Refund, error)
}

// GatewayOrderCache remembers remote orders already created for a local order.
type GatewayOrderCache interface {
	GetJSON(ctx context.Context, key string, dest interface{}) (bool, error)
	SetJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// GatewayOrderHandle is what the checkout front-end needs to open the
// gateway's payment form.
type GatewayOrderHandle struct {
	OrderID        uint   `json:"order_id"`
	OrderNumber    string `json:"order_number"`
	GatewayOrderID string `json:"gateway_order_id"`
	Amount         int64  `json:"amount"`
	Currency       string `json:"currency"`
	KeyID          string `json:"key_id"`
}

type RecordPaymentInput struct {
	OrderID        uint
	Method         models.PaymentMethod
	Amount         *decimal.Decimal
	GatewayOrderID string
}

type PaymentService interface {
	CreateRemoteGatewayOrder(ctx context.Context, orderID uint) (*GatewayOrderHandle, error)
	RecordPayment(ctx context.Context, input RecordPaymentInput) (*models.Payment, error)
	VerifyPayment(ctx context.Context, remoteOrderID, remotePaymentID, signature string) (*models.Payment, error)
	RecordPaymentFailure(ctx context.Context, paymentID uint, reason string) (*models.Payment, error)
	RefundPayment(ctx context.Context, paymentID uint, amount *decimal.Decimal) (*models.Payment, error)
	GetPayment(ctx context.Context, id uint) (*models.Payment, error)
	ListOrderPayments(ctx context.Context, orderID uint) ([]models.Payment, error)
}

type PaymentServiceDeps struct {
	UnitOfWork repository.UnitOfWork
	Repos      *repository.Repositories
	Gateway    GatewayClient
	Cache      GatewayOrderCache
	Events     StatusEventPublisher
	Logger     *logger.Logger
	KeyID      string
	KeySecret  string
	Currency   string
	HandleTTL  time.Duration
	// GatewayTimeout bounds a shared gateway-order request once it no longer
	// follows the first caller's context.
	GatewayTimeout time.Duration
}

type paymentService struct {
	uow       repository.UnitOfWork
	repos     *repository.Repositories
	gateway   GatewayClient
	cache     GatewayOrderCache
	events    StatusEventPublisher
	log       *logger.Logger
	keyID     string
	keySecret string
	currency  string
	handleTTL time.Duration
	timeout   time.Duration
	inflight  singleflight.Group
}

func NewPaymentService(deps PaymentServiceDeps) PaymentService {
	log := deps.Logger
	if log == nil {
		log = logger.NewLogger("payment-service")
	}
	currency := deps.Currency
	if currency == "" {
		currency = "INR"
	}
	ttl := deps.HandleTTL
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	timeout := deps.GatewayTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &paymentService{
		uow:       deps.UnitOfWork,
		repos:     deps.Repos,
		gateway:   deps.Gateway,
		cache:     deps.Cache,
		events:    deps.Events,
		log:       log,
		keyID:     deps.KeyID,
		keySecret: deps.KeySecret,
		currency:  currency,
		handleTTL: ttl,
		timeout:   timeout,
	}
}

func gatewayOrderCacheKey(orderID uint) string {
	return "gateway_order:" + strconv.FormatUint(uint64(orderID), 10)
}

// CreateRemoteGatewayOrder creates at most one remote order per local order
// while the cached handle lives; concurrent calls share one gateway request.
// The shared request is detached from the first caller's cancellation, and
// each caller still stops waiting when its own context ends.
func (s *paymentService) CreateRemoteGatewayOrder(ctx context.Context, orderID uint) (*GatewayOrderHandle, error) {
	key := gatewayOrderCacheKey(orderID)
	ch := s.inflight.DoChan(key, func() (interface{}, error) {
		shared, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
		defer cancel()
		return s.createRemoteGatewayOrder(shared, orderID, key)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		handle := *res.Val.(*GatewayOrderHandle)
		return &handle, nil
	}
}

func (s *paymentService) createRemoteGatewayOrder(ctx context.Context, orderID uint, key string) (*GatewayOrderHandle, error) {
	order, err := s.repos.Orders.GetByID(ctx, orderID)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, fmt.Errorf("%w: order %d", ErrNotFound, orderID)
		}
		return nil, fmt.Errorf("failed to load order %d: %w", orderID, err)
	}
	if order.Status != models.OrderPending {
		return nil, fmt.Errorf("%w: order %s is %s and cannot be paid", ErrValidation, order.OrderNumber, order.Status)
	}

	if s.cache != nil {
		var cached GatewayOrderHandle
		found, err := s.cache.GetJSON(ctx, key, &cached)
		if err != nil {
			s.log.Warn(ctx, "gateway_order_cache_failed", "failed to read cached gateway order",
				slog.String("error", err.Error()))
		} else if found && cached.Amount == pricing.ToMinorUnits(order.Total) {
			return &cached, nil
		}
	}

	amount := pricing.ToMinorUnits(order.Total)
	notes := map[string]string{
		"order_id":     strconv.FormatUint(uint64(order.ID), 10),
		"order_number": order.OrderNumber,
	}
	remote, err := s.gateway.CreateOrder(ctx, amount, s.currency, order.OrderNumber, notes)
	if err != nil {
		s.log.Error(ctx, "gateway_order_failed", "failed to create gateway order", err,
			slog.String("order_number", order.OrderNumber))
		return nil, &GatewayError{Op: "Failed to create gateway order", Err: err}
	}

	handle := &GatewayOrderHandle{
		OrderID:        order.ID,
		OrderNumber:    order.OrderNumber,
		GatewayOrderID: remote.ID,
		Amount:         amount,
		Currency:       s.currency,
		KeyID:          s.keyID,
	}
	if remote.Amount != 0 {
		handle.Amount = remote.Amount
	}
	if remote.Currency != "" {
		handle.Currency = remote.Currency
	}

	if err := s.repos.Orders.UpdateFields(ctx, order.ID, map[string]interface{}{"gateway_order_id": remote.ID}); err != nil {
		return nil, fmt.Errorf("failed to store gateway order id: %w", err)
	}

	if s.cache != nil {
		if err := s.cache.SetJSON(ctx, key, handle, s.handleTTL); err != nil {
			s.log.Warn(ctx, "gateway_order_cache_failed", "failed to cache gateway order",
				slog.String("error", err.Error()))
		}
	}

	s.log.Info(ctx, "gateway_order_created", "gateway order created",
		slog.String("order_number", order.OrderNumber),
		slog.String("gateway_order_id", remote.ID),
		slog.Int64("amount", handle.Amount))
	return handle, nil
}

// RecordPayment stores a settlement attempt. Cash settles on the spot; online
// methods start PENDING and complete through VerifyPayment.
func (s *paymentService) RecordPayment(ctx context.Context, input RecordPaymentInput) (*models.Payment, error) {
	if !input.Method.Valid() {
		return nil, fmt.Errorf("%w: unknown payment method %q", ErrValidation, input.Method)
	}
	gatewayOrderID := strings.TrimSpace(input.GatewayOrderID)
	if input.Method.IsOnline() && gatewayOrderID == "" {
		return nil, fmt.Errorf("%w: gateway order id is required for %s payments", ErrValidation, input.Method)
	}
	if input.Amount != nil && !input.Amount.IsPositive() {
		return nil, fmt.Errorf("%w: payment amount must be positive", ErrValidation)
	}

	var payment *models.Payment
	var order *models.Order
	err := s.uow.Do(ctx, func(repos *repository.Repositories) error {
		var err error
		order, err = lockOrder(ctx, repos.Orders, input.OrderID)
		if err != nil {
			return err
		}
		if order.Status != models.OrderPending {
			return fmt.Errorf("%w: order %s is %s and cannot be paid", ErrValidation, order.OrderNumber, order.Status)
		}
		if input.Method.IsOnline() {
			if err := ensureGatewayOrderBelongs(ctx, repos, order, gatewayOrderID); err != nil {
				return err
			}
		}

		amount := order.Total
		if input.Amount != nil {
			amount = input.Amount.Round(pricing.Places)
		}

		payment = &models.Payment{
			OrderID:        order.ID,
			Amount:         amount,
			RefundedAmount: decimal.Zero,
			Method:         input.Method,
			Status:         models.PaymentPending,
		}
		if input.Method.IsOnline() {
			payment.GatewayOrderID = &gatewayOrderID
		} else {
			payment.Status = models.PaymentCompleted
		}
		if err := repos.Payments.Create(ctx, payment); err != nil {
			return err
		}

		if payment.Status == models.PaymentCompleted {
			if err := repos.Orders.UpdateStatus(ctx, order.ID, models.OrderCompleted); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info(ctx, "payment_recorded", "payment recorded",
		slog.Uint64("payment_id", uint64(payment.ID)),
		slog.String("order_number", order.OrderNumber),
		slog.String("method", string(payment.Method)),
		slog.String("status", string(payment.Status)))

	if payment.Status == models.PaymentCompleted {
		s.forgetGatewayOrder(ctx, order.ID)
	}
	return s.reloadAndAnnounce(ctx, payment.ID, order.Status)
}

// ensureGatewayOrderBelongs rejects a remote order id that was opened for, or
// already paid against, a different local order.
func ensureGatewayOrderBelongs(ctx context.Context, repos *repository.Repositories, order *models.Order, gatewayOrderID string) error {
	mismatch := fmt.Errorf("%w: gateway order %s does not belong to order %s", ErrValidation, gatewayOrderID, order.OrderNumber)
	if order.GatewayOrderID != nil && *order.GatewayOrderID != gatewayOrderID {
		return mismatch
	}

	owner, err := repos.Orders.GetByGatewayOrderID(ctx, gatewayOrderID)
	switch {
	case err == nil && owner.ID != order.ID:
		return mismatch
	case err != nil && !repository.IsNotFound(err):
		return fmt.Errorf("failed to look up gateway order: %w", err)
	}

	prior, err := repos.Payments.GetByGatewayOrderID(ctx, gatewayOrderID)
	switch {
	case err == nil && prior.OrderID != order.ID:
		return mismatch
	case err != nil && !repository.IsNotFound(err):
		return fmt.Errorf("failed to look up gateway order: %w", err)
	}
	return nil
}

// forgetGatewayOrder drops the cached handle of an order that is no longer
// payable.
func (s *paymentService) forgetGatewayOrder(ctx context.Context, orderID uint) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, gatewayOrderCacheKey(orderID)); err != nil {
		s.log.Warn(ctx, "gateway_order_cache_failed", "failed to drop cached gateway order",
			slog.Uint64("order_id", uint64(orderID)),
			slog.String("error", err.Error()))
	}
}

func (s *paymentService) VerifyPayment(ctx context.Context, remoteOrderID, remotePaymentID, signature string) (*models.Payment, error) {
	remoteOrderID = strings.TrimSpace(remoteOrderID)
	remotePaymentID = strings.TrimSpace(remotePaymentID)
	signature = strings.TrimSpace(signature)
	if remoteOrderID == "" || remotePaymentID == "" || signature == "" {
		return nil, fmt.Errorf("%w: gateway order id, payment id and signature are required", ErrValidation)
	}

	if !razorpay.VerifySignature(remoteOrderID, remotePaymentID, signature, s.keySecret) {
		s.log.Warn(ctx, "payment_signature_mismatch", "payment signature verification failed",
			slog.String("gateway_order_id", remoteOrderID),
			slog.String("gateway_payment_id", remotePaymentID))
		return nil, fmt.Errorf("%w: payment %s for gateway order %s", ErrSignatureMismatch, remotePaymentID, remoteOrderID)
	}

	var paymentID, orderID uint
	var previous models.OrderStatus
	err := s.uow.Do(ctx, func(repos *repository.Repositories) error {
		payment, err := repos.Payments.GetByGatewayOrderIDForUpdate(ctx, remoteOrderID)
		if err != nil {
			if repository.IsNotFound(err) {
				return fmt.Errorf("%w: no payment for gateway order %s", ErrNotFound, remoteOrderID)
			}
			return fmt.Errorf("failed to load payment: %w", err)
		}
		paymentID = payment.ID
		orderID = payment.OrderID

		if payment.Status == models.PaymentCompleted && payment.GatewayPaymentID != nil && *payment.GatewayPaymentID == remotePaymentID {
			order, err := repos.Orders.GetByID(ctx, payment.OrderID)
			if err != nil {
				return err
			}
			previous = order.Status
			return nil
		}
		if !payment.Status.CanTransitionTo(models.PaymentCompleted) {
			return fmt.Errorf("%w: payment %d is %s", ErrInvalidTransition, payment.ID, payment.Status)
		}

		order, err := lockOrder(ctx, repos.Orders, payment.OrderID)
		if err != nil {
			return err
		}
		previous = order.Status
		if !order.Status.CanTransitionTo(models.OrderCompleted) {
			return invalidTransition(order, models.OrderCompleted)
		}

		payment.Status = models.PaymentCompleted
		payment.GatewayPaymentID = &remotePaymentID
		payment.GatewaySignature = &signature
		payment.FailureReason = ""
		if err := repos.Payments.Update(ctx, payment); err != nil {
			return err
		}
		if order.Status != models.OrderCompleted {
			return repos.Orders.UpdateStatus(ctx, order.ID, models.OrderCompleted)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info(ctx, "payment_verified", "payment verified",
		slog.Uint64("payment_id", uint64(paymentID)),
		slog.String("gateway_order_id", remoteOrderID),
		slog.String("gateway_payment_id", remotePaymentID))

	s.forgetGatewayOrder(ctx, orderID)
	return s.reloadAndAnnounce(ctx, paymentID, previous)
}

func (s *paymentService) RecordPaymentFailure(ctx context.Context, paymentID uint, reason string) (*models.Payment, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, fmt.Errorf("%w: failure reason is required", ErrValidation)
	}

	err := s.uow.Do(ctx, func(repos *repository.Repositories) error {
		payment, err := lockPayment(ctx, repos.Payments, paymentID)
		if err != nil {
			return err
		}
		if !payment.Status.CanTransitionTo(models.PaymentFailed) {
			return fmt.Errorf("%w: payment %d is %s", ErrInvalidTransition, payment.ID, payment.Status)
		}
		payment.Status = models.PaymentFailed
		payment.FailureReason = reason
		return repos.Payments.Update(ctx, payment)
	})
	if err != nil {
		return nil, err
	}

	s.log.Info(ctx, "payment_failed", "payment marked failed",
		slog.Uint64("payment_id", uint64(paymentID)),
		slog.String("reason", reason))
	return s.GetPayment(ctx, paymentID)
}

// RefundPayment refunds a completed payment. Every guard is checked before
// the gateway is contacted; if the gateway call fails nothing local changes.
func (s *paymentService) RefundPayment(ctx context.Context, paymentID uint, amount *decimal.Decimal) (*models.Payment, error) {
	payment, err := s.repos.Payments.GetByID(ctx, paymentID)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, fmt.Errorf("%w: payment %d", ErrNotFound, paymentID)
		}
		return nil, fmt.Errorf("failed to load payment %d: %w", paymentID, err)
	}
	if payment.Status != models.PaymentCompleted {
		return nil, fmt.Errorf("%w: only completed payments can be refunded, payment %d is %s", ErrValidation, payment.ID, payment.Status)
	}

	refundAmount := payment.Amount
	if amount != nil {
		refundAmount = amount.Round(pricing.Places)
		if !refundAmount.IsPositive() || refundAmount.GreaterThan(payment.Amount) {
			return nil, fmt.Errorf("%w: refund amount must be between 0.01 and %s", ErrValidation, payment.Amount.StringFixed(pricing.Places))
		}
	}

	order, err := s.repos.Orders.GetByID(ctx, payment.OrderID)
	if err != nil {
		return nil, fmt.Errorf("failed to load order %d: %w", payment.OrderID, err)
	}
	if !order.Status.CanTransitionTo(models.OrderRefunded) {
		return nil, invalidTransition(order, models.OrderRefunded)
	}

	var refund *razorpay.Refund
	if payment.GatewayPaymentID != nil && *payment.GatewayPaymentID != "" {
		refund, err = s.gateway.Refund(ctx, *payment.GatewayPaymentID, pricing.ToMinorUnits(refundAmount))
		if err != nil {
			s.log.Error(ctx, "refund_failed", "gateway refund failed", err,
				slog.Uint64("payment_id", uint64(payment.ID)))
			return nil, &GatewayError{Op: "Refund failed", Err: err}
		}
	}

	err = s.uow.Do(ctx, func(repos *repository.Repositories) error {
		locked, err := lockPayment(ctx, repos.Payments, paymentID)
		if err != nil {
			return err
		}
		if locked.Status != models.PaymentCompleted {
			return fmt.Errorf("%w: payment %d changed to %s during refund", ErrConflict, locked.ID, locked.Status)
		}
		lockedOrder, err := lockOrder(ctx, repos.Orders, locked.OrderID)
		if err != nil {
			return err
		}
		if !lockedOrder.Status.CanTransitionTo(models.OrderRefunded) {
			return invalidTransition(lockedOrder, models.OrderRefunded)
		}

		locked.Status = models.PaymentRefunded
		locked.RefundedAmount = refundAmount
		if refund != nil && len(refund.Raw) > 0 {
			locked.GatewayResponse = datatypes.JSON(refund.Raw)
		}
		if err := repos.Payments.Update(ctx, locked); err != nil {
			return err
		}
		return repos.Orders.UpdateStatus(ctx, lockedOrder.ID, models.OrderRefunded)
	})
	if err != nil {
		if refund != nil {
			// The gateway has already refunded; this needs manual reconciliation.
			s.log.Error(ctx, "refund_reconcile_required", "gateway refund succeeded but local update failed", err,
				slog.Uint64("payment_id", uint64(payment.ID)),
				slog.String("refund_id", refund.ID))
		}
		return nil, err
	}

	attrs := []slog.Attr{
		slog.Uint64("payment_id", uint64(payment.ID)),
		slog.String("amount", refundAmount.StringFixed(pricing.Places)),
	}
	if refund != nil {
		attrs = append(attrs, slog.String("refund_id", refund.ID))
	}
	s.log.Info(ctx, "payment_refunded", "payment refunded", attrs...)

	return s.reloadAndAnnounce(ctx, payment.ID, order.Status)
}

func (s *paymentService) GetPayment(ctx context.Context, id uint) (*models.Payment, error) {
	payment, err := s.repos.Payments.GetWithOrder(ctx, id)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, fmt.Errorf("%w: payment %d", ErrNotFound, id)
		}
		return nil, fmt.Errorf("failed to load payment %d: %w", id, err)
	}
	return payment, nil
}

func (s *paymentService) ListOrderPayments(ctx context.Context, orderID uint) ([]models.Payment, error) {
	if _, err := s.repos.Orders.GetByID(ctx, orderID); err != nil {
		if repository.IsNotFound(err) {
			return nil, fmt.Errorf("%w: order %d", ErrNotFound, orderID)
		}
		return nil, fmt.Errorf("failed to load order %d: %w", orderID, err)
	}
	payments, err := s.repos.Payments.ListByOrderID(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to list payments: %w", err)
	}
	if payments == nil {
		payments = []models.Payment{}
	}
	return payments, nil
}

// reloadAndAnnounce returns the payment with its order and publishes the
// order's status change, if any.
func (s *paymentService) reloadAndAnnounce(ctx context.Context, paymentID uint, previous models.OrderStatus) (*models.Payment, error) {
	payment, err := s.GetPayment(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if payment.Order != nil {
		publishStatusChange(ctx, s.events, s.log, payment.Order, previous)
	}
	return payment, nil
}

func lockPayment(ctx context.Context, payments repository.PaymentRepository, id uint) (*models.Payment, error) {
	payment, err := payments.GetByIDForUpdate(ctx, id)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, fmt.Errorf("%w: payment %d", ErrNotFound, id)
		}
		return nil, fmt.Errorf("failed to load payment %d: %w", id, err)
	}
	return payment, nil
}

package handlers

import (
	"net/http"

	"pos_service/internal/logger"
	"pos_service/internal/models"
	"pos_service/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

type PaymentHandler struct {
	payments services.PaymentService
	log      *logger.Logger
}

func NewPaymentHandler(payments services.PaymentService, log *logger.Logger) *PaymentHandler {
	return &PaymentHandler{payments: payments, log: log}
}

type RecordPaymentRequest struct {
	OrderID        uint             `json:"order_id" binding:"required"`
	Method         string           `json:"method" binding:"required,payment_method"`
	Amount         *decimal.Decimal `json:"amount"`
	GatewayOrderID string           `json:"gateway_order_id"`
}

// VerifyPaymentRequest carries the gateway checkout callback.
type VerifyPaymentRequest struct {
	GatewayOrderID   string `json:"razorpay_order_id" binding:"required"`
	GatewayPaymentID string `json:"razorpay_payment_id" binding:"required"`
	Signature        string `json:"razorpay_signature" binding:"required"`
}

type FailPaymentRequest struct {
	Reason string `json:"reason" binding:"required"`
}

type RefundPaymentRequest struct {
	Amount *decimal.Decimal `json:"amount"`
}

func (h *PaymentHandler) RecordPayment(c *gin.Context) {
	var req RecordPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request: "+err.Error())
		return
	}
	payment, err := h.payments.RecordPayment(c.Request.Context(), services.RecordPaymentInput{
		OrderID:        req.OrderID,
		Method:         models.PaymentMethod(req.Method),
		Amount:         req.Amount,
		GatewayOrderID: req.GatewayOrderID,
	})
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusCreated, payment)
}

func (h *PaymentHandler) GetPayment(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	payment, err := h.payments.GetPayment(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, payment)
}

func (h *PaymentHandler) VerifyPayment(c *gin.Context) {
	var req VerifyPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request: "+err.Error())
		return
	}
	payment, err := h.payments.VerifyPayment(c.Request.Context(), req.GatewayOrderID, req.GatewayPaymentID, req.Signature)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, payment)
}

func (h *PaymentHandler) FailPayment(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	var req FailPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request: "+err.Error())
		return
	}
	payment, err := h.payments.RecordPaymentFailure(c.Request.Context(), id, req.Reason)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, payment)
}

func (h *PaymentHandler) RefundPayment(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	var req RefundPaymentRequest
	// An empty body refunds the full amount.
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "Invalid request: "+err.Error())
			return
		}
	}
	payment, err := h.payments.RefundPayment(c.Request.Context(), id, req.Amount)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, payment)
}

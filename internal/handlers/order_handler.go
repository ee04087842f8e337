package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"pos_service/internal/logger"
	"pos_service/internal/models"
	"pos_service/internal/repository"
	"pos_service/internal/services"

	"github.com/gin-gonic/gin"
)

type OrderHandler struct {
	orders   services.OrderService
	payments services.PaymentService
	log      *logger.Logger
}

func NewOrderHandler(orders services.OrderService, payments services.PaymentService, log *logger.Logger) *OrderHandler {
	return &OrderHandler{orders: orders, payments: payments, log: log}
}

type CartLineRequest struct {
	MenuItemID uint `json:"menu_item_id" binding:"required"`
	Quantity   int  `json:"quantity" binding:"required,min=1"`
}

type CreateOrderRequest struct {
	Items         []CartLineRequest `json:"items" binding:"required,min=1,dive"`
	CustomerID    *uint             `json:"customer_id"`
	CustomerName  string            `json:"customer_name"`
	CustomerEmail string            `json:"customer_email" binding:"omitempty,email"`
	CustomerPhone string            `json:"customer_phone"`
	ScreenID      *uint             `json:"screen_id"`
	PaymentMethod string            `json:"payment_method" binding:"required,payment_method"`
	Metadata      json.RawMessage   `json:"metadata"`
}

func (r *CreateOrderRequest) hasGuestFields() bool {
	return strings.TrimSpace(r.CustomerName) != "" ||
		strings.TrimSpace(r.CustomerEmail) != "" ||
		strings.TrimSpace(r.CustomerPhone) != ""
}

type UpdateOrderRequest struct {
	ScreenID      *uint           `json:"screen_id"`
	CustomerName  *string         `json:"customer_name"`
	CustomerEmail *string         `json:"customer_email" binding:"omitempty,email"`
	CustomerPhone *string         `json:"customer_phone"`
	PaymentMethod *string         `json:"payment_method" binding:"omitempty,payment_method"`
	Metadata      json.RawMessage `json:"metadata"`
	Status        *string         `json:"status" binding:"omitempty,order_status"`
}

type UpdateStatusRequest struct {
	Status string `json:"status" binding:"required,order_status"`
}

type ListOrdersQuery struct {
	Status        string `form:"status" binding:"omitempty,order_status"`
	PaymentMethod string `form:"payment_method" binding:"omitempty,payment_method"`
	CustomerID    *uint  `form:"customer_id"`
	CreatedBy     *uint  `form:"created_by"`
	From          string `form:"from"`
	To            string `form:"to"`
	Search        string `form:"search"`
	Page          int    `form:"page"`
	Limit         int    `form:"limit"`
}

func (h *OrderHandler) CreateOrder(c *gin.Context) {
	var req CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request: "+err.Error())
		return
	}
	if req.CustomerID != nil && req.hasGuestFields() {
		badRequest(c, "Provide either customer_id or guest customer details, not both")
		return
	}

	input := services.CreateOrderInput{
		Items:         make([]services.CartLine, len(req.Items)),
		ScreenID:      req.ScreenID,
		PaymentMethod: models.PaymentMethod(req.PaymentMethod),
		Metadata:      req.Metadata,
	}
	for i, line := range req.Items {
		input.Items[i] = services.CartLine{MenuItemID: line.MenuItemID, Quantity: line.Quantity}
	}
	switch {
	case req.CustomerID != nil:
		input.Customer = services.RegisteredCustomer{ID: *req.CustomerID}
	case req.hasGuestFields():
		input.Customer = services.GuestCustomer{
			Name:  req.CustomerName,
			Email: req.CustomerEmail,
			Phone: req.CustomerPhone,
		}
	}

	order, err := h.orders.CreateOrder(c.Request.Context(), input, currentUserID(c))
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusCreated, order)
}

func (h *OrderHandler) ListOrders(c *gin.Context) {
	var query ListOrdersQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		badRequest(c, "Invalid query: "+err.Error())
		return
	}

	filter := repository.OrderFilter{
		Status:        models.OrderStatus(query.Status),
		PaymentMethod: models.PaymentMethod(query.PaymentMethod),
		CustomerID:    query.CustomerID,
		CreatedByID:   query.CreatedBy,
		Search:        strings.TrimSpace(query.Search),
	}
	if query.From != "" {
		from, _, err := parseDateParam(query.From)
		if err != nil {
			badRequest(c, "Invalid from date")
			return
		}
		filter.From = &from
	}
	if query.To != "" {
		to, dateOnly, err := parseDateParam(query.To)
		if err != nil {
			badRequest(c, "Invalid to date")
			return
		}
		// A bare date includes the whole day.
		if dateOnly {
			to = to.AddDate(0, 0, 1)
		}
		filter.To = &to
	}

	result, err := h.orders.ListOrders(c.Request.Context(), filter, query.Page, query.Limit)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *OrderHandler) GetOrder(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	order, err := h.orders.GetOrder(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

func (h *OrderHandler) UpdateOrder(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	var req UpdateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request: "+err.Error())
		return
	}

	input := services.UpdateOrderInput{
		ScreenID:      req.ScreenID,
		CustomerName:  req.CustomerName,
		CustomerEmail: req.CustomerEmail,
		CustomerPhone: req.CustomerPhone,
		Metadata:      req.Metadata,
	}
	if req.PaymentMethod != nil {
		method := models.PaymentMethod(*req.PaymentMethod)
		input.PaymentMethod = &method
	}
	if req.Status != nil {
		status := models.OrderStatus(*req.Status)
		input.Status = &status
	}

	order, err := h.orders.UpdateOrder(c.Request.Context(), id, input)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

func (h *OrderHandler) UpdateOrderStatus(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	var req UpdateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request: "+err.Error())
		return
	}
	order, err := h.orders.UpdateOrderStatus(c.Request.Context(), id, models.OrderStatus(req.Status))
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

func (h *OrderHandler) CreateGatewayOrder(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	handle, err := h.payments.CreateRemoteGatewayOrder(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, handle)
}

func (h *OrderHandler) ListPayments(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	payments, err := h.payments.ListOrderPayments(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"payments": payments})
}

func idParam(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		badRequest(c, "Invalid id")
		return 0, false
	}
	return uint(id), true
}

// parseDateParam accepts RFC 3339 timestamps or plain YYYY-MM-DD dates.
func parseDateParam(value string) (time.Time, bool, error) {
	if t, err := time.Parse("2006-01-02", value); err == nil {
		return t, true, nil
	}
	t, err := time.Parse(time.RFC3339, value)
	return t, false, err
}

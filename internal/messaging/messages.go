package messaging

import (
	"strings"
	"time"

	"pos_service/internal/models"
)

type OrderLineMessage struct {
	Name     string `json:"name"`
	Quantity int    `json:"quantity"`
	Price    string `json:"price"`
	Total    string `json:"total"`
}

// OrderConfirmationMessage asks the mailer to send a receipt.
type OrderConfirmationMessage struct {
	OrderNumber   string             `json:"order_number"`
	Email         string             `json:"email"`
	CustomerName  string             `json:"customer_name,omitempty"`
	Items         []OrderLineMessage `json:"items"`
	Subtotal      string             `json:"subtotal"`
	TaxAmount     string             `json:"tax_amount"`
	Total         string             `json:"total"`
	PaymentMethod string             `json:"payment_method"`
	Status        string             `json:"status"`
	CreatedAt     time.Time          `json:"created_at"`
}

type StatusChangeMessage struct {
	OrderID     uint      `json:"order_id"`
	OrderNumber string    `json:"order_number"`
	OldStatus   string    `json:"old_status"`
	NewStatus   string    `json:"new_status"`
	Total       string    `json:"total"`
	Timestamp   time.Time `json:"timestamp"`
}

func NewOrderConfirmationMessage(order *models.Order, email string) *OrderConfirmationMessage {
	items := make([]OrderLineMessage, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, OrderLineMessage{
			Name:     item.MenuItemName,
			Quantity: item.Quantity,
			Price:    item.Price.StringFixed(2),
			Total:    item.Total.StringFixed(2),
		})
	}
	return &OrderConfirmationMessage{
		OrderNumber:   order.OrderNumber,
		Email:         email,
		CustomerName:  order.CustomerName,
		Items:         items,
		Subtotal:      order.Subtotal.StringFixed(2),
		TaxAmount:     order.TaxAmount.StringFixed(2),
		Total:         order.Total.StringFixed(2),
		PaymentMethod: string(order.PaymentMethod),
		Status:        string(order.Status),
		CreatedAt:     order.CreatedAt,
	}
}

func NewStatusChangeMessage(order *models.Order, previous models.OrderStatus, now time.Time) *StatusChangeMessage {
	return &StatusChangeMessage{
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		OldStatus:   string(previous),
		NewStatus:   string(order.Status),
		Total:       order.Total.StringFixed(2),
		Timestamp:   now.UTC(),
	}
}

// StatusRoutingKey returns e.g. "order.status.completed".
func StatusRoutingKey(status models.OrderStatus) string {
	return statusRoutingPrefix + strings.ToLower(string(status))
}

package services

import (
	"context"
	"fmt"
	"strings"

	"pos_service/internal/models"
)

// MessageSender is the part of the WhatsApp client the receipt hook needs.
type MessageSender interface {
	SendTextMessage(ctx context.Context, phone, message string) error
}

type whatsappReceiptHook struct {
	sender   MessageSender
	currency string
}

// NewWhatsAppReceiptHook sends a short receipt to the order's customer phone.
func NewWhatsAppReceiptHook(sender MessageSender, currency string) OrderHook {
	return &whatsappReceiptHook{sender: sender, currency: currency}
}

func (h *whatsappReceiptHook) Name() string { return "whatsapp_receipt" }

func (h *whatsappReceiptHook) AfterCreate(ctx context.Context, order *models.Order) error {
	phone := strings.TrimSpace(order.CustomerPhone)
	if phone == "" {
		return nil
	}
	return h.sender.SendTextMessage(ctx, phone, FormatReceipt(order, h.currency))
}

// FormatReceipt renders an order as a plain-text receipt.
func FormatReceipt(order *models.Order, currency string) string {
	var b strings.Builder

	fmt.Fprintf(&b, "*Order %s*\n", order.OrderNumber)
	if order.CustomerName != "" {
		fmt.Fprintf(&b, "Customer: %s\n", order.CustomerName)
	}
	if order.Screen != nil {
		fmt.Fprintf(&b, "Location: %s\n", order.Screen.Name)
	}
	b.WriteString("\n")

	for _, item := range order.Items {
		name := item.MenuItemName
		if name == "" {
			name = fmt.Sprintf("Item #%d", item.MenuItemID)
		}
		fmt.Fprintf(&b, "%d x %s @ %s = %s\n", item.Quantity, name, item.Price.StringFixed(2), item.Subtotal.StringFixed(2))
	}

	b.WriteString("\n")
	fmt.Fprintf(&b, "Subtotal: %s %s\n", currency, order.Subtotal.StringFixed(2))
	fmt.Fprintf(&b, "Tax: %s %s\n", currency, order.TaxAmount.StringFixed(2))
	fmt.Fprintf(&b, "Total: %s %s\n", currency, order.Total.StringFixed(2))
	fmt.Fprintf(&b, "Payment: %s (%s)", order.PaymentMethod, order.Status)

	return b.String()
}

package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

type Order struct {
	ID            uint            `json:"id" gorm:"primaryKey"`
	OrderNumber   string          `json:"order_number" gorm:"size:32;uniqueIndex;not null"`
	Subtotal      decimal.Decimal `json:"subtotal" gorm:"type:decimal(12,2);not null;default:0"`
	TaxRate       decimal.Decimal `json:"tax_rate" gorm:"type:decimal(5,4);not null;default:0"`
	TaxAmount     decimal.Decimal `json:"tax_amount" gorm:"type:decimal(12,2);not null;default:0"`
	AddonsTotal   decimal.Decimal `json:"addons_total" gorm:"type:decimal(12,2);not null;default:0"`
	Total         decimal.Decimal `json:"total" gorm:"type:decimal(12,2);not null;default:0"`
	CustomerID    *uint           `json:"customer_id" gorm:"index"`
	Customer      *Customer       `json:"customer,omitempty" gorm:"foreignKey:CustomerID"`
	CustomerName  string          `json:"customer_name"`
	CustomerEmail string          `json:"customer_email"`
	CustomerPhone string          `json:"customer_phone"`
	ScreenID      *uint           `json:"screen_id"`
	Screen        *Screen         `json:"screen,omitempty" gorm:"foreignKey:ScreenID"`
	PaymentMethod PaymentMethod   `json:"payment_method" gorm:"size:16;not null"`
	// GatewayOrderID is the latest remote order opened for this order.
	GatewayOrderID *string `json:"gateway_order_id,omitempty" gorm:"size:64;index"`
	Status        OrderStatus     `json:"status" gorm:"size:16;not null;default:'PENDING';index"`
	CreatedByID   uint            `json:"created_by_id" gorm:"not null;index"`
	CreatedBy     *User           `json:"created_by,omitempty" gorm:"foreignKey:CreatedByID"`
	Metadata      datatypes.JSON  `json:"metadata,omitempty"`
	Items         []OrderItem     `json:"items" gorm:"foreignKey:OrderID"`
	Payments      []Payment       `json:"payments,omitempty" gorm:"foreignKey:OrderID"`
	CreatedAt     time.Time       `json:"created_at" gorm:"index"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// IsRegisteredCustomer reports whether the order is tied to a customer record
// rather than carrying guest details.
func (o *Order) IsRegisteredCustomer() bool {
	return o.CustomerID != nil
}

type OrderStatus string

const (
	OrderPending   OrderStatus = "PENDING"
	OrderCompleted OrderStatus = "COMPLETED"
	OrderCancelled OrderStatus = "CANCELLED"
	OrderRefunded  OrderStatus = "REFUNDED"
)

var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderPending:   {OrderCompleted, OrderCancelled},
	OrderCompleted: {OrderCancelled, OrderRefunded},
}

func (s OrderStatus) Valid() bool {
	switch s {
	case OrderPending, OrderCompleted, OrderCancelled, OrderRefunded:
		return true
	}
	return false
}

// CanTransitionTo reports whether an order in status s may move to next.
// Moving to the current status is always allowed and is a no-op for callers.
// CANCELLED and REFUNDED are terminal.
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	if !next.Valid() {
		return false
	}
	if s == next {
		return true
	}
	for _, allowed := range orderTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

type PaymentMethod string

const (
	PaymentCash       PaymentMethod = "CASH"
	PaymentCard       PaymentMethod = "CARD"
	PaymentUPI        PaymentMethod = "UPI"
	PaymentNetBanking PaymentMethod = "NETBANKING"
)

func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentCash, PaymentCard, PaymentUPI, PaymentNetBanking:
		return true
	}
	return false
}

// IsOnline reports whether settlement goes through the payment gateway.
func (m PaymentMethod) IsOnline() bool {
	return m.Valid() && m != PaymentCash
}

package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

type Payment struct {
	ID               uint            `json:"id" gorm:"primaryKey"`
	OrderID          uint            `json:"order_id" gorm:"not null;index"`
	Order            *Order          `json:"order,omitempty" gorm:"foreignKey:OrderID"`
	Amount           decimal.Decimal `json:"amount" gorm:"type:decimal(12,2);not null"`
	RefundedAmount   decimal.Decimal `json:"refunded_amount" gorm:"type:decimal(12,2);not null;default:0"`
	Method           PaymentMethod   `json:"method" gorm:"size:16;not null"`
	Status           PaymentStatus   `json:"status" gorm:"size:16;not null;default:'PENDING'"`
	GatewayOrderID   *string         `json:"gateway_order_id" gorm:"size:64;index"`
	GatewayPaymentID *string         `json:"gateway_payment_id" gorm:"size:64"`
	GatewaySignature *string         `json:"gateway_signature,omitempty" gorm:"size:128"`
	GatewayResponse  datatypes.JSON  `json:"gateway_response,omitempty"`
	FailureReason    string          `json:"failure_reason,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "PENDING"
	PaymentCompleted PaymentStatus = "COMPLETED"
	PaymentFailed    PaymentStatus = "FAILED"
	PaymentRefunded  PaymentStatus = "REFUNDED"
)

var paymentTransitions = map[PaymentStatus][]PaymentStatus{
	PaymentPending:   {PaymentCompleted, PaymentFailed},
	PaymentCompleted: {PaymentRefunded},
}

func (s PaymentStatus) CanTransitionTo(next PaymentStatus) bool {
	for _, allowed := range paymentTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

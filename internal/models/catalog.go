package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Customer is a registered customer. TotalSpent and OrderCount are only ever
// changed through atomic increments.
type Customer struct {
	ID         uint            `json:"id" gorm:"primaryKey"`
	Name       string          `json:"name" gorm:"not null"`
	Email      string          `json:"email" gorm:"index"`
	Phone      string          `json:"phone" gorm:"index"`
	TotalSpent decimal.Decimal `json:"total_spent" gorm:"type:decimal(14,2);not null;default:0"`
	OrderCount int             `json:"order_count" gorm:"not null;default:0"`
	IsActive   bool            `json:"is_active" gorm:"not null"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

type MenuItem struct {
	ID         uint            `json:"id" gorm:"primaryKey"`
	Name       string          `json:"name" gorm:"not null"`
	Price      decimal.Decimal `json:"price" gorm:"type:decimal(12,2);not null"`
	CategoryID *uint           `json:"category_id"`
	IsActive   bool            `json:"is_active" gorm:"not null"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// Screen is a sub-location of the venue (hall, counter, table group).
type Screen struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	Name      string    `json:"name" gorm:"not null"`
	CreatedAt time.Time `json:"created_at"`
}

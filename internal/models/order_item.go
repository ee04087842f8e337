package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderItem is a priced snapshot of one menu item within an order. Price is
// copied from the menu item when the order is created and never changes.
type OrderItem struct {
	ID           uint            `json:"id" gorm:"primaryKey"`
	OrderID      uint            `json:"order_id" gorm:"not null;index"`
	MenuItemID   uint            `json:"menu_item_id" gorm:"not null;index"`
	MenuItem     *MenuItem       `json:"menu_item,omitempty" gorm:"foreignKey:MenuItemID"`
	MenuItemName string          `json:"menu_item_name"`
	Quantity     int             `json:"quantity" gorm:"not null"`
	Price        decimal.Decimal `json:"price" gorm:"type:decimal(12,2);not null"`
	Subtotal     decimal.Decimal `json:"subtotal" gorm:"type:decimal(12,2);not null"`
	TaxAmount    decimal.Decimal `json:"tax_amount" gorm:"type:decimal(12,2);not null"`
	Total        decimal.Decimal `json:"total" gorm:"type:decimal(12,2);not null"`
	CreatedAt    time.Time       `json:"created_at"`
}

package models

import "time"

type Setting struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	Key       string    `json:"key" gorm:"column:setting_key;size:100;uniqueIndex;not null"` // tax_rate, currency, ...
	Value     string    `json:"value" gorm:"not null"`
	UpdatedBy *uint     `json:"updated_by"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

const SettingTaxRate = "tax_rate"

// OrderSequence is the per-day counter behind order numbers.
type OrderSequence struct {
	Day       string    `gorm:"primaryKey;size:8"` // YYYYMMDD
	LastValue int       `gorm:"not null;default:0"`
	UpdatedAt time.Time
}

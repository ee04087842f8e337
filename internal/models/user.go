package models

import (
	"time"
)

// User is a venue operator who rings up sales.
type User struct {
	ID           uint      `json:"id" gorm:"primaryKey"`
	Username     string    `json:"username" gorm:"unique;not null"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-" gorm:"not null"`
	Role         string    `json:"role" gorm:"default:'cashier'"` // admin, manager, cashier
	IsActive     bool      `json:"is_active" gorm:"not null"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type UserRole string

const (
	Admin   UserRole = "admin"
	Manager UserRole = "manager"
	Cashier UserRole = "cashier"
)

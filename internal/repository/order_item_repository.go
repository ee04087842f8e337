package repository

import (
	"context"

	"pos_service/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// OrderItemRepository has no update or delete: line items are immutable once
// written.
type OrderItemRepository interface {
	CreateBatch(ctx context.Context, items []models.OrderItem) error
	GetByOrderID(ctx context.Context, orderID uint) ([]models.OrderItem, error)
}

type orderItemRepository struct {
	db *gorm.DB
}

func NewOrderItemRepository(db *gorm.DB) OrderItemRepository {
	return &orderItemRepository{db: db}
}

func (r *orderItemRepository) CreateBatch(ctx context.Context, items []models.OrderItem) error {
	if len(items) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Omit(clause.Associations).Create(&items).Error
}

func (r *orderItemRepository) GetByOrderID(ctx context.Context, orderID uint) ([]models.OrderItem, error) {
	var items []models.OrderItem
	err := r.db.WithContext(ctx).Where("order_id = ?", orderID).Order("id ASC").Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

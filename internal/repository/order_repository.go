package repository

import (
	"context"
	"strings"
	"time"

	"pos_service/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type OrderFilter struct {
	Status        models.OrderStatus
	PaymentMethod models.PaymentMethod
	CustomerID    *uint
	CreatedByID   *uint
	From          *time.Time
	To            *time.Time
	Search        string
}

type OrderRepository interface {
	Create(ctx context.Context, order *models.Order) error
	GetByID(ctx context.Context, id uint) (*models.Order, error)
	GetByIDForUpdate(ctx context.Context, id uint) (*models.Order, error)
	GetDetailed(ctx context.Context, id uint) (*models.Order, error)
	GetByGatewayOrderID(ctx context.Context, gatewayOrderID string) (*models.Order, error)
	// HighestNumberByPrefix returns the order whose number sorts last among
	// numbers sharing prefix, comparing suffixes numerically.
	HighestNumberByPrefix(ctx context.Context, prefix string) (*models.Order, error)
	List(ctx context.Context, filter OrderFilter, offset, limit int) ([]models.Order, int64, error)
	UpdateStatus(ctx context.Context, id uint, status models.OrderStatus) error
	UpdateFields(ctx context.Context, id uint, fields map[string]interface{}) error
}

type orderRepository struct {
	db *gorm.DB
}

func NewOrderRepository(db *gorm.DB) OrderRepository {
	return &orderRepository{db: db}
}

// Create inserts the order row only; line items are written by the
// OrderItemRepository in the same transaction.
func (r *orderRepository) Create(ctx context.Context, order *models.Order) error {
	return r.db.WithContext(ctx).Omit(clause.Associations).Create(order).Error
}

func (r *orderRepository) GetByID(ctx context.Context, id uint) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).First(&order, id).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *orderRepository) GetByIDForUpdate(ctx context.Context, id uint) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}).First(&order, id).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *orderRepository) GetDetailed(ctx context.Context, id uint) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("id ASC") }).
		Preload("Customer").
		Preload("Screen").
		Preload("Payments", func(db *gorm.DB) *gorm.DB { return db.Order("id ASC") }).
		Preload("CreatedBy").
		First(&order, id).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *orderRepository) GetByGatewayOrderID(ctx context.Context, gatewayOrderID string) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).Where("gateway_order_id = ?", gatewayOrderID).First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *orderRepository) HighestNumberByPrefix(ctx context.Context, prefix string) (*models.Order, error) {
	var order models.Order
	// Suffixes are zero padded to three digits but grow past 999, so the
	// longer number wins before the lexical comparison.
	err := r.db.WithContext(ctx).
		Where("order_number LIKE ?", prefix+"%").
		Order("LENGTH(order_number) DESC").
		Order("order_number DESC").
		First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *orderRepository) List(ctx context.Context, filter OrderFilter, offset, limit int) ([]models.Order, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.Order{})
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.PaymentMethod != "" {
		query = query.Where("payment_method = ?", filter.PaymentMethod)
	}
	if filter.CustomerID != nil {
		query = query.Where("customer_id = ?", *filter.CustomerID)
	}
	if filter.CreatedByID != nil {
		query = query.Where("created_by_id = ?", *filter.CreatedByID)
	}
	if filter.From != nil {
		query = query.Where("created_at >= ?", *filter.From)
	}
	if filter.To != nil {
		query = query.Where("created_at < ?", *filter.To)
	}
	if filter.Search != "" {
		like := "%" + strings.ToLower(filter.Search) + "%"
		query = query.Where("LOWER(order_number) LIKE ? OR LOWER(customer_name) LIKE ?", like, like)
	}

	query = query.Session(&gorm.Session{})

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var orders []models.Order
	err := query.
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("id ASC") }).
		Preload("Customer").
		Preload("Screen").
		Order("created_at DESC").
		Order("id DESC").
		Offset(offset).
		Limit(limit).
		Find(&orders).Error
	if err != nil {
		return nil, 0, err
	}
	return orders, total, nil
}

func (r *orderRepository) UpdateStatus(ctx context.Context, id uint, status models.OrderStatus) error {
	return r.db.WithContext(ctx).Model(&models.Order{}).Where("id = ?", id).Update("status", status).Error
}

func (r *orderRepository) UpdateFields(ctx context.Context, id uint, fields map[string]interface{}) error {
	if len(fields) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Model(&models.Order{}).Where("id = ?", id).Updates(fields).Error
}

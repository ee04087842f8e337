package repository

import (
	"context"

	"pos_service/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type PaymentRepository interface {
	Create(ctx context.Context, payment *models.Payment) error
	GetByID(ctx context.Context, id uint) (*models.Payment, error)
	GetByIDForUpdate(ctx context.Context, id uint) (*models.Payment, error)
	GetByGatewayOrderID(ctx context.Context, gatewayOrderID string) (*models.Payment, error)
	GetByGatewayOrderIDForUpdate(ctx context.Context, gatewayOrderID string) (*models.Payment, error)
	GetWithOrder(ctx context.Context, id uint) (*models.Payment, error)
	ListByOrderID(ctx context.Context, orderID uint) ([]models.Payment, error)
	Update(ctx context.Context, payment *models.Payment) error
}

type paymentRepository struct {
	db *gorm.DB
}

func NewPaymentRepository(db *gorm.DB) PaymentRepository {
	return &paymentRepository{db: db}
}

func (r *paymentRepository) Create(ctx context.Context, payment *models.Payment) error {
	return r.db.WithContext(ctx).Omit(clause.Associations).Create(payment).Error
}

func (r *paymentRepository) GetByID(ctx context.Context, id uint) (*models.Payment, error) {
	var payment models.Payment
	err := r.db.WithContext(ctx).First(&payment, id).Error
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

func (r *paymentRepository) GetByIDForUpdate(ctx context.Context, id uint) (*models.Payment, error) {
	var payment models.Payment
	err := r.db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}).First(&payment, id).Error
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

func (r *paymentRepository) GetByGatewayOrderID(ctx context.Context, gatewayOrderID string) (*models.Payment, error) {
	var payment models.Payment
	err := r.db.WithContext(ctx).
		Where("gateway_order_id = ?", gatewayOrderID).
		Order("id DESC").
		First(&payment).Error
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

// GetByGatewayOrderIDForUpdate returns the most recent payment attempt for a
// remote gateway order.
func (r *paymentRepository) GetByGatewayOrderIDForUpdate(ctx context.Context, gatewayOrderID string) (*models.Payment, error) {
	var payment models.Payment
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("gateway_order_id = ?", gatewayOrderID).
		Order("id DESC").
		First(&payment).Error
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

func (r *paymentRepository) GetWithOrder(ctx context.Context, id uint) (*models.Payment, error) {
	var payment models.Payment
	err := r.db.WithContext(ctx).Preload("Order").First(&payment, id).Error
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

func (r *paymentRepository) ListByOrderID(ctx context.Context, orderID uint) ([]models.Payment, error) {
	var payments []models.Payment
	err := r.db.WithContext(ctx).Where("order_id = ?", orderID).Order("id ASC").Find(&payments).Error
	return payments, err
}

func (r *paymentRepository) Update(ctx context.Context, payment *models.Payment) error {
	return r.db.WithContext(ctx).Omit(clause.Associations).Save(payment).Error
}

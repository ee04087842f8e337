package repository

import (
	"context"

	"pos_service/internal/models"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// MenuItemRepository returns inactive items too; callers decide whether an
// inactive item is usable.
type MenuItemRepository interface {
	Create(ctx context.Context, item *models.MenuItem) error
	GetByID(ctx context.Context, id uint) (*models.MenuItem, error)
}

type menuItemRepository struct {
	db *gorm.DB
}

func NewMenuItemRepository(db *gorm.DB) MenuItemRepository {
	return &menuItemRepository{db: db}
}

func (r *menuItemRepository) Create(ctx context.Context, item *models.MenuItem) error {
	return r.db.WithContext(ctx).Create(item).Error
}

func (r *menuItemRepository) GetByID(ctx context.Context, id uint) (*models.MenuItem, error) {
	var item models.MenuItem
	err := r.db.WithContext(ctx).First(&item, id).Error
	if err != nil {
		return nil, err
	}
	return &item, nil
}

type CustomerRepository interface {
	Create(ctx context.Context, customer *models.Customer) error
	GetByID(ctx context.Context, id uint) (*models.Customer, error)
	IncrementStats(ctx context.Context, id uint, amountSpent decimal.Decimal) error
}

type customerRepository struct {
	db *gorm.DB
}

func NewCustomerRepository(db *gorm.DB) CustomerRepository {
	return &customerRepository{db: db}
}

func (r *customerRepository) Create(ctx context.Context, customer *models.Customer) error {
	return r.db.WithContext(ctx).Create(customer).Error
}

func (r *customerRepository) GetByID(ctx context.Context, id uint) (*models.Customer, error) {
	var customer models.Customer
	err := r.db.WithContext(ctx).First(&customer, id).Error
	if err != nil {
		return nil, err
	}
	return &customer, nil
}

// IncrementStats bumps order_count by one and total_spent by amountSpent in a
// single UPDATE so concurrent orders for the same customer never lose updates.
func (r *customerRepository) IncrementStats(ctx context.Context, id uint, amountSpent decimal.Decimal) error {
	result := r.db.WithContext(ctx).Model(&models.Customer{}).Where("id = ?", id).Updates(map[string]interface{}{
		"order_count": gorm.Expr("order_count + ?", 1),
		"total_spent": gorm.Expr("total_spent + ?", amountSpent),
	})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

type ScreenRepository interface {
	Create(ctx context.Context, screen *models.Screen) error
	GetByID(ctx context.Context, id uint) (*models.Screen, error)
}

type screenRepository struct {
	db *gorm.DB
}

func NewScreenRepository(db *gorm.DB) ScreenRepository {
	return &screenRepository{db: db}
}

func (r *screenRepository) Create(ctx context.Context, screen *models.Screen) error {
	return r.db.WithContext(ctx).Create(screen).Error
}

func (r *screenRepository) GetByID(ctx context.Context, id uint) (*models.Screen, error) {
	var screen models.Screen
	err := r.db.WithContext(ctx).First(&screen, id).Error
	if err != nil {
		return nil, err
	}
	return &screen, nil
}

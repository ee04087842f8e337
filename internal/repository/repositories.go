package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

// Repositories groups every repository bound to the same connection or
// transaction.
type Repositories struct {
	Orders     OrderRepository
	OrderItems OrderItemRepository
	Payments   PaymentRepository
	Customers  CustomerRepository
	MenuItems  MenuItemRepository
	Screens    ScreenRepository
	Settings   SettingsRepository
	Sequences  OrderSequenceRepository
	Users      UserRepository
}

func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		Orders:     NewOrderRepository(db),
		OrderItems: NewOrderItemRepository(db),
		Payments:   NewPaymentRepository(db),
		Customers:  NewCustomerRepository(db),
		MenuItems:  NewMenuItemRepository(db),
		Screens:    NewScreenRepository(db),
		Settings:   NewSettingsRepository(db),
		Sequences:  NewOrderSequenceRepository(db),
		Users:      NewUserRepository(db),
	}
}

// UnitOfWork runs fn inside one database transaction. The transaction commits
// when fn returns nil and rolls back on error, panic or context cancellation.
type UnitOfWork interface {
	Do(ctx context.Context, fn func(repos *Repositories) error) error
}

type gormUnitOfWork struct {
	db *gorm.DB
}

func NewUnitOfWork(db *gorm.DB) UnitOfWork {
	return &gormUnitOfWork{db: db}
}

func (u *gormUnitOfWork) Do(ctx context.Context, fn func(repos *Repositories) error) error {
	return u.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		return fn(NewRepositories(tx))
	})
}

func IsNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}

// IsUniqueViolation recognises unique-constraint failures whether gorm
// translated them or the raw postgres error came through.
func IsUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

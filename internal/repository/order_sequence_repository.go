package repository

import (
	"context"

	"pos_service/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// OrderSequenceRepository is the per-day counter behind order numbers. It is
// meant to be used inside the order-creation transaction: Increment holds the
// day's row lock until commit.
type OrderSequenceRepository interface {
	// Increment adds one to the day's counter and returns the new value.
	// ok is false when the day has no counter row yet.
	Increment(ctx context.Context, day string) (value int, ok bool, err error)
	// Seed creates the day's counter at value unless it already exists.
	Seed(ctx context.Context, day string, value int) error
	// Raise moves the day's counter up to value if it is below it.
	Raise(ctx context.Context, day string, value int) error
}

type orderSequenceRepository struct {
	db *gorm.DB
}

func NewOrderSequenceRepository(db *gorm.DB) OrderSequenceRepository {
	return &orderSequenceRepository{db: db}
}

func (r *orderSequenceRepository) Increment(ctx context.Context, day string) (int, bool, error) {
	db := r.db.WithContext(ctx)
	result := db.Model(&models.OrderSequence{}).
		Where("day = ?", day).
		Updates(map[string]interface{}{"last_value": gorm.Expr("last_value + 1")})
	if result.Error != nil {
		return 0, false, result.Error
	}
	if result.RowsAffected == 0 {
		return 0, false, nil
	}

	var seq models.OrderSequence
	if err := db.Where("day = ?", day).First(&seq).Error; err != nil {
		return 0, false, err
	}
	return seq.LastValue, true, nil
}

func (r *orderSequenceRepository) Seed(ctx context.Context, day string, value int) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&models.OrderSequence{Day: day, LastValue: value}).Error
}

func (r *orderSequenceRepository) Raise(ctx context.Context, day string, value int) error {
	return r.db.WithContext(ctx).
		Model(&models.OrderSequence{}).
		Where("day = ? AND last_value < ?", day, value).
		Update("last_value", value).Error
}

package repository

import (
	"context"

	"pos_service/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type SettingsRepository interface {
	GetValue(ctx context.Context, key, defaultValue string) (string, error)
	SetValue(ctx context.Context, key, value string) error
}

type settingsRepository struct {
	db *gorm.DB
}

func NewSettingsRepository(db *gorm.DB) SettingsRepository {
	return &settingsRepository{db: db}
}

// GetValue returns defaultValue when the key has never been set.
func (r *settingsRepository) GetValue(ctx context.Context, key, defaultValue string) (string, error) {
	var setting models.Setting
	err := r.db.WithContext(ctx).Where("setting_key = ?", key).First(&setting).Error
	if err != nil {
		if IsNotFound(err) {
			return defaultValue, nil
		}
		return "", err
	}
	return setting.Value, nil
}

func (r *settingsRepository) SetValue(ctx context.Context, key, value string) error {
	setting := models.Setting{Key: key, Value: value}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "setting_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&setting).Error
}

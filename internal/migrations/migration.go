package migrations

import (
	"context"
	"fmt"
	"log/slog"

	"pos_service/internal/database"
	"pos_service/internal/logger"
	"pos_service/internal/models"
	"pos_service/internal/repository"
	"pos_service/internal/services"

	"gorm.io/gorm"
)

// Seed is the default data written on first start.
type Seed struct {
	AdminUsername string
	AdminPassword string
	TaxRate       string
}

// RunMigrations brings the schema up to date and creates default data.
// Existing tables and rows are left alone.
func RunMigrations(ctx context.Context, db *gorm.DB, seed Seed, log *logger.Logger) error {
	log.Info(ctx, "migrations_started", "running database migrations")

	if err := database.AutoMigrate(db); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}

	if err := createDefaultData(ctx, db, seed, log); err != nil {
		return err
	}

	log.Info(ctx, "migrations_completed", "database migrations completed")
	return nil
}

func createDefaultData(ctx context.Context, db *gorm.DB, seed Seed, log *logger.Logger) error {
	repos := repository.NewRepositories(db)

	if seed.AdminUsername != "" {
		auth := services.NewAuthService(repos.Users, "", 0)
		_, created, err := auth.EnsureAdmin(ctx, seed.AdminUsername, seed.AdminPassword)
		if err != nil {
			return fmt.Errorf("failed to create admin user: %w", err)
		}
		if created {
			log.Info(ctx, "admin_created", "admin user created", slog.String("username", seed.AdminUsername))
		}
	}

	if seed.TaxRate != "" {
		if _, err := services.ParseTaxRate(seed.TaxRate); err != nil {
			return err
		}
		current, err := repos.Settings.GetValue(ctx, models.SettingTaxRate, "")
		if err != nil {
			return fmt.Errorf("failed to read tax rate: %w", err)
		}
		if current == "" {
			if err := repos.Settings.SetValue(ctx, models.SettingTaxRate, seed.TaxRate); err != nil {
				return fmt.Errorf("failed to store tax rate: %w", err)
			}
			log.Info(ctx, "tax_rate_seeded", "default tax rate stored", slog.String("tax_rate", seed.TaxRate))
		}
	}
	return nil
}

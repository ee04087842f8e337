package database

import (
	"fmt"
	"log"
	"strings"

	"pos_service/internal/models"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func Initialize(databaseURL, logLevel string) (*gorm.DB, error) {
	// Configure GORM
	config := &gorm.Config{
		Logger:         logger.Default.LogMode(parseLogLevel(logLevel)),
		TranslateError: true,
	}

	// Connect to database
	db, err := gorm.Open(postgres.Open(databaseURL), config)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	log.Println("Database connected successfully")
	return db, nil
}

// AutoMigrate creates or updates every table the service owns.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(Models()...)
}

func Models() []interface{} {
	return []interface{}{
		&models.User{},
		&models.Customer{},
		&models.MenuItem{},
		&models.Screen{},
		&models.Setting{},
		&models.OrderSequence{},
		&models.Order{},
		&models.OrderItem{},
		&models.Payment{},
	}
}

func parseLogLevel(level string) logger.LogLevel {
	switch strings.ToLower(level) {
	case "silent":
		return logger.Silent
	case "error":
		return logger.Error
	case "info":
		return logger.Info
	default:
		return logger.Warn
	}
}

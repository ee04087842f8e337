package main

import (
	"context"
	"log"

	"pos_service/internal/config"
	"pos_service/internal/database"
	"pos_service/internal/logger"
	"pos_service/internal/migrations"
)

func main() {
	cfg := config.Load()
	appLogger := logger.NewLogger("pos-init-db")

	db, err := database.Initialize(cfg.DatabaseURL, cfg.DBLogLevel)
	if err != nil {
		log.Fatal("Failed to connect to database:", err)
	}

	seed := migrations.Seed{
		AdminUsername: cfg.AdminUsername,
		AdminPassword: cfg.AdminPassword,
		TaxRate:       cfg.DefaultTaxRate,
	}
	if err := migrations.RunMigrations(context.Background(), db, seed, appLogger); err != nil {
		log.Fatal("Failed to initialize database:", err)
	}
}

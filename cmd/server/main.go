package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"pos_service/internal/config"
	"pos_service/internal/database"
	"pos_service/internal/handlers"
	"pos_service/internal/logger"
	"pos_service/internal/messaging"
	"pos_service/internal/migrations"
	"pos_service/internal/redis"
	"pos_service/internal/repository"
	"pos_service/internal/services"
	"pos_service/pkg/razorpay"
	"pos_service/pkg/whatsapp"

	"github.com/gin-gonic/gin"
)

func main() {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatal("Invalid configuration:", err)
	}
	appLogger := logger.NewLogger("pos-service")
	ctx := context.Background()

	db, err := database.Initialize(cfg.DatabaseURL, cfg.DBLogLevel)
	if err != nil {
		log.Fatal("Failed to connect to database:", err)
	}

	seed := migrations.Seed{
		AdminUsername: cfg.AdminUsername,
		AdminPassword: cfg.AdminPassword,
		TaxRate:       cfg.DefaultTaxRate,
	}
	if err := migrations.RunMigrations(ctx, db, seed, appLogger); err != nil {
		log.Fatal("Failed to migrate database:", err)
	}

	healthChecks := map[string]handlers.HealthCheck{
		"database": func(ctx context.Context) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		},
	}

	// Redis and RabbitMQ are optional; without them the service runs with no
	// gateway-order cache and no outbound events.
	var gatewayCache services.GatewayOrderCache
	if cfg.RedisURL != "" {
		redisClient, err := redis.Initialize(cfg.RedisURL)
		if err != nil {
			appLogger.Error(ctx, "redis_unavailable", "continuing without Redis cache", err)
		} else {
			defer redisClient.Close()
			gatewayCache = redisClient
			healthChecks["redis"] = redisClient.Ping
		}
	}

	var events services.StatusEventPublisher
	var confirmations services.ConfirmationSender
	if cfg.RabbitMQURL != "" {
		conn, err := messaging.New(cfg.RabbitMQURL, appLogger)
		if err != nil {
			appLogger.Error(ctx, "rabbitmq_unavailable", "continuing without event publishing", err)
		} else {
			defer conn.Close()
			publisher := messaging.NewPublisher(conn, appLogger)
			events = publisher
			confirmations = publisher
		}
	}

	repos := repository.NewRepositories(db)
	uow := repository.NewUnitOfWork(db)

	hooks := services.OrderHooks{
		AfterCommit: []services.OrderHook{services.NewCustomerStatsHook(repos.Customers)},
	}
	if confirmations != nil {
		hooks.AfterLoad = append(hooks.AfterLoad, services.NewConfirmationHook(confirmations))
	}
	if cfg.WhatsAppAPIURL != "" {
		whatsappClient := whatsapp.NewClient(cfg.WhatsAppAPIURL, cfg.WhatsAppUsername, cfg.WhatsAppPassword, cfg.WhatsAppPath)
		hooks.AfterLoad = append(hooks.AfterLoad, services.NewWhatsAppReceiptHook(whatsappClient, cfg.GatewayCurrency))
	}

	authService := services.NewAuthService(repos.Users, cfg.JWTSecret, cfg.TokenTTL)
	orderService := services.NewOrderService(services.OrderServiceDeps{
		UnitOfWork: uow,
		Repos:      repos,
		TaxRates:   services.NewSettingsTaxRateProvider(repos.Settings, cfg.DefaultTaxRate),
		Numbers:    services.NewOrderNumberGenerator(nil),
		Hooks:      hooks,
		Events:     events,
		Logger:     appLogger,
	})
	paymentService := services.NewPaymentService(services.PaymentServiceDeps{
		UnitOfWork: uow,
		Repos:      repos,
		Gateway:    razorpay.NewClient(cfg.RazorpayBaseURL, cfg.RazorpayKeyID, cfg.RazorpayKeySecret),
		Cache:      gatewayCache,
		Events:     events,
		Logger:     appLogger,
		KeyID:      cfg.RazorpayKeyID,
		KeySecret:  cfg.RazorpayKeySecret,
		Currency:   cfg.GatewayCurrency,
		HandleTTL:  cfg.GatewayOrderTTL,
	})

	gin.SetMode(cfg.GinMode)
	router, err := handlers.NewRouter(handlers.RouterDeps{
		Auth:           handlers.NewAuthHandler(authService, appLogger),
		Orders:         handlers.NewOrderHandler(orderService, paymentService, appLogger),
		Payments:       handlers.NewPaymentHandler(paymentService, appLogger),
		Tokens:         authService,
		Logger:         appLogger,
		AllowedOrigins: cfg.CORSAllowedOrigins,
		HealthChecks:   healthChecks,
	})
	if err != nil {
		log.Fatal("Failed to build router:", err)
	}

	server := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		appLogger.Info(ctx, "server_started", "server starting", slog.String("port", cfg.ServerPort))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Failed to start server:", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		appLogger.Error(ctx, "server_shutdown_failed", "graceful shutdown failed", err)
	}
	appLogger.Info(ctx, "server_stopped", "server stopped")
}

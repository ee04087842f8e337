package handlers

import (
	"context"
	"net/http"
	"time"

	"pos_service/internal/logger"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// HealthCheck reports whether a dependency is reachable.
type HealthCheck func(ctx context.Context) error

type RouterDeps struct {
	Auth           *AuthHandler
	Orders         *OrderHandler
	Payments       *PaymentHandler
	Tokens         TokenParser
	Logger         *logger.Logger
	AllowedOrigins []string
	HealthChecks   map[string]HealthCheck
}

func NewRouter(deps RouterDeps) (*gin.Engine, error) {
	if err := RegisterValidators(); err != nil {
		return nil, err
	}

	router := gin.New()
	router.Use(gin.Recovery(), RequestID(), RequestLogger(deps.Logger))

	if len(deps.AllowedOrigins) > 0 {
		router.Use(cors.New(cors.Config{
			AllowOrigins:     deps.AllowedOrigins,
			AllowMethods:     []string{"GET", "POST", "PATCH", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", requestIDHeader},
			ExposeHeaders:    []string{"Content-Length", requestIDHeader},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}))
	}

	router.GET("/healthz", healthHandler(deps.HealthChecks))

	api := router.Group("/api")
	api.POST("/auth/login", deps.Auth.Login)

	secured := api.Group("")
	secured.Use(Authentication(deps.Tokens))
	{
		secured.POST("/orders", deps.Orders.CreateOrder)
		secured.GET("/orders", deps.Orders.ListOrders)
		secured.GET("/orders/:id", deps.Orders.GetOrder)
		secured.PATCH("/orders/:id", deps.Orders.UpdateOrder)
		secured.PATCH("/orders/:id/status", deps.Orders.UpdateOrderStatus)
		secured.POST("/orders/:id/gateway-order", deps.Orders.CreateGatewayOrder)
		secured.GET("/orders/:id/payments", deps.Orders.ListPayments)

		secured.POST("/payments", deps.Payments.RecordPayment)
		secured.POST("/payments/verify", deps.Payments.VerifyPayment)
		secured.GET("/payments/:id", deps.Payments.GetPayment)
		secured.POST("/payments/:id/fail", deps.Payments.FailPayment)
		secured.POST("/payments/:id/refund", deps.Payments.RefundPayment)
	}

	return router, nil
}

func healthHandler(checks map[string]HealthCheck) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		results := gin.H{}
		for name, check := range checks {
			if err := check(ctx); err != nil {
				status = http.StatusServiceUnavailable
				results[name] = err.Error()
				continue
			}
			results[name] = "ok"
		}
		c.JSON(status, gin.H{"status": http.StatusText(status), "checks": results})
	}
}

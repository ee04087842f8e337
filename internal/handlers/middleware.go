package handlers

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"pos_service/internal/logger"
	"pos_service/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	requestIDHeader = "X-Request-ID"
	userIDKey       = "user_id"
	userRoleKey     = "user_role"
)

// TokenParser validates bearer tokens.
type TokenParser interface {
	ParseToken(token string) (*services.Claims, error)
}

// RequestID tags every request with an id, reusing the caller's if present.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Header(requestIDHeader, id)
		c.Request = c.Request.WithContext(logger.WithRequestID(c.Request.Context(), id))
		c.Next()
	}
}

func RequestLogger(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Info(c.Request.Context(), "http_request", "request handled",
			slog.String("method", c.Request.Method),
			slog.String("path", c.FullPath()),
			slog.Int("status", c.Writer.Status()),
			slog.Duration("latency", time.Since(start)))
	}
}

func Authentication(tokens TokenParser) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(token) == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Missing bearer token"})
			return
		}
		claims, err := tokens.ParseToken(strings.TrimSpace(token))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token"})
			return
		}
		c.Set(userIDKey, claims.UserID)
		c.Set(userRoleKey, claims.Role)
		c.Next()
	}
}

func currentUserID(c *gin.Context) uint {
	return c.GetUint(userIDKey)
}

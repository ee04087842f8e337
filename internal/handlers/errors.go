package handlers

import (
	"errors"
	"net/http"

	"pos_service/internal/logger"
	"pos_service/internal/services"

	"github.com/gin-gonic/gin"
)

// statusFor maps a service error onto an HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, services.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, services.ErrValidation), errors.Is(err, services.ErrSignatureMismatch):
		return http.StatusBadRequest
	case errors.Is(err, services.ErrGateway):
		// The gateway's own message tells the cashier what to fix.
		return http.StatusBadRequest
	case errors.Is(err, services.ErrConflict), errors.Is(err, services.ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, services.ErrUnauthorized):
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

func respondError(c *gin.Context, log *logger.Logger, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		log.Error(c.Request.Context(), "request_failed", "internal error", err)
		c.JSON(status, gin.H{"error": "Internal server error"})
		return
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func badRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": message})
}

package handlers

import (
	"net/http"

	"pos_service/internal/logger"
	"pos_service/internal/services"

	"github.com/gin-gonic/gin"
)

type AuthHandler struct {
	auth services.AuthService
	log  *logger.Logger
}

func NewAuthHandler(auth services.AuthService, log *logger.Logger) *AuthHandler {
	return &AuthHandler{auth: auth, log: log}
}

type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request: "+err.Error())
		return
	}
	token, user, err := h.auth.Login(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"token": token,
		"user":  user,
	})
}

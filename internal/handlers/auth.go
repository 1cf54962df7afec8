package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/quorumsocial/quorum/internal/auth"
	"github.com/quorumsocial/quorum/internal/database"
	"github.com/quorumsocial/quorum/internal/logger"
	"github.com/quorumsocial/quorum/internal/models"
)

// Register creates an email/password account
// POST /api/v1/auth/register
func (h *Handlers) Register(c *gin.Context) {
	var req auth.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	resp, err := h.authService.Register(req)
	switch err {
	case nil:
		c.JSON(http.StatusCreated, resp)
	case auth.ErrUserExists:
		c.JSON(http.StatusConflict, gin.H{"error": "email_taken"})
	case auth.ErrUsernameExists:
		c.JSON(http.StatusConflict, gin.H{"error": "username_taken"})
	default:
		logger.ErrorWithFields("Registration failed", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "registration_failed"})
	}
}

// Login authenticates an email/password account
// POST /api/v1/auth/login
func (h *Handlers) Login(c *gin.Context) {
	var req auth.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	resp, err := h.authService.Login(req)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid_credentials"})
		return
	}

	c.JSON(http.StatusOK, resp)
}

// CreateGuestSession mints a guest account with an opaque token. This is
// the only place guests are created; read paths resolve existing tokens
// and never create.
// POST /api/v1/auth/guest
func (h *Handlers) CreateGuestSession(c *gin.Context) {
	token := uuid.New().String()
	guest := models.User{
		Username:   fmt.Sprintf("guest_%.8s", uuid.New().String()),
		IsGuest:    true,
		GuestToken: &token,
	}

	if err := database.DB.Create(&guest).Error; err != nil {
		logger.ErrorWithFields("Failed to create guest", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "guest_creation_failed"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"guest_token": token,
		"user":        guest,
	})
}

// GetMe returns the resolved identity
// GET /api/v1/users/me
func (h *Handlers) GetMe(c *gin.Context) {
	user := currentUser(c)
	if user == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication_required"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": user})
}

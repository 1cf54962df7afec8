package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/quorumsocial/quorum/internal/database"
	"github.com/quorumsocial/quorum/internal/logger"
	"github.com/quorumsocial/quorum/internal/models"
	"github.com/quorumsocial/quorum/internal/util"
)

// MuteUser mutes a user for the current user.
// Muted authors disappear from the muter's listings and trending feed.
// POST /api/v1/users/:id/mute
func (h *Handlers) MuteUser(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}

	targetID := c.Param("id")
	if targetID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "User ID is required"})
		return
	}

	// Can't mute yourself
	if userID == targetID {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Cannot mute yourself"})
		return
	}

	// Check if target user exists
	var target models.User
	if err := database.DB.First(&target, "id = ?", targetID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to find user"})
		return
	}

	// Check if already muted
	var existing models.UserMute
	err := database.DB.Where("user_id = ? AND target_id = ?", userID, targetID).First(&existing).Error
	if err == nil {
		c.JSON(http.StatusOK, gin.H{
			"message": "User already muted",
			"muted":   true,
		})
		return
	}

	mute := models.UserMute{
		UserID:   userID,
		TargetID: targetID,
	}

	if err := database.DB.Create(&mute).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to mute user"})
		return
	}

	invalidateTrendingCache(c)

	c.JSON(http.StatusOK, gin.H{
		"message":  "User muted successfully",
		"muted":    true,
		"muted_at": mute.CreatedAt,
	})
}

// UnmuteUser unmutes a user for the current user
// DELETE /api/v1/users/:id/mute
func (h *Handlers) UnmuteUser(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}

	targetID := c.Param("id")
	if targetID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "User ID is required"})
		return
	}

	result := database.DB.Where("user_id = ? AND target_id = ?", userID, targetID).Delete(&models.UserMute{})
	if result.Error != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to unmute user"})
		return
	}

	if result.RowsAffected == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "User was not muted"})
		return
	}

	invalidateTrendingCache(c)

	c.JSON(http.StatusOK, gin.H{
		"message": "User unmuted successfully",
		"muted":   false,
	})
}

// GetMutedUsers returns the current user's muted users list
// GET /api/v1/users/me/muted
func (h *Handlers) GetMutedUsers(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}

	limit := util.ParseInt(c.DefaultQuery("limit", "50"), 50)
	offset := util.ParseInt(c.DefaultQuery("offset", "0"), 0)

	if limit > 100 {
		limit = 100
	}

	var mutes []models.UserMute
	err := database.DB.
		Preload("Target").
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&mutes).Error
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get muted users"})
		return
	}

	var totalCount int64
	if err := database.DB.Model(&models.UserMute{}).Where("user_id = ?", userID).Count(&totalCount).Error; err != nil {
		logger.WarnWithFields("Failed to count muted users for "+userID, err)
		totalCount = 0
	}

	users := make([]gin.H, len(mutes))
	for i, m := range mutes {
		users[i] = gin.H{
			"id":           m.Target.ID,
			"username":     m.Target.Username,
			"display_name": m.Target.DisplayName,
			"muted_at":     m.CreatedAt,
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"users":       users,
		"total_count": totalCount,
		"limit":       limit,
		"offset":      offset,
		"has_more":    offset+len(users) < int(totalCount),
	})
}

// IsUserMuted checks if the current user has muted a specific user
// GET /api/v1/users/:id/muted
func (h *Handlers) IsUserMuted(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}

	targetID := c.Param("id")
	if targetID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "User ID is required"})
		return
	}

	var mute models.UserMute
	err := database.DB.Where("user_id = ? AND target_id = ?", userID, targetID).First(&mute).Error

	var mutedAt *time.Time
	if err == nil {
		mutedAt = &mute.CreatedAt
	}

	c.JSON(http.StatusOK, gin.H{
		"muted":    err == nil,
		"muted_at": mutedAt,
	})
}

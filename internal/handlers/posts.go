package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/quorumsocial/quorum/internal/database"
	"github.com/quorumsocial/quorum/internal/logger"
	"github.com/quorumsocial/quorum/internal/models"
)

// CreatePost creates a post in a community
func (h *Handlers) CreatePost(c *gin.Context) {
	user := currentUser(c)
	if user == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication_required"})
		return
	}

	community, err := loadCommunity(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "community_not_found"})
		return
	}

	if ok, reason := canEngage(user, community); !ok {
		c.JSON(http.StatusForbidden, gin.H{"error": reason})
		return
	}

	var req struct {
		Title    string `json:"title" binding:"required,min=1,max=200"`
		Body     string `json:"body" binding:"max=40000"`
		PostType string `json:"post_type"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	postType := models.PostType(req.PostType)
	switch postType {
	case models.PostTypeText, models.PostTypeLink, models.PostTypePoll:
	case "":
		postType = models.PostTypeText
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_post_type"})
		return
	}

	post := models.Post{
		CommunityID: community.ID,
		AuthorID:    user.ID,
		Title:       req.Title,
		Body:        req.Body,
		PostType:    postType,
	}
	if err := database.DB.Create(&post).Error; err != nil {
		logger.ErrorWithFields("Failed to create post", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed_to_create_post"})
		return
	}

	invalidateTrendingCache(c)

	c.JSON(http.StatusCreated, postResponse(post, 0))
}

// GetPost returns one post with its live comment count and derived votes
func (h *Handlers) GetPost(c *gin.Context) {
	var post models.Post
	err := database.DB.
		Preload("Author").
		Preload("Community").
		Where("id = ? AND is_deleted = ?", c.Param("id"), false).
		First(&post).Error
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "post_not_found"})
		return
	}

	if post.Community.Visibility == models.VisibilityPrivate {
		if approvedMembership(post.CommunityID, c.GetString("user_id")) == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "post_not_found"})
			return
		}
	}

	var commentCount int64
	database.DB.Model(&models.Comment{}).
		Where("post_id = ? AND is_deleted = ?", post.ID, false).
		Count(&commentCount)

	c.JSON(http.StatusOK, postResponse(post, int(commentCount)))
}

// DeletePost soft-deletes a post. Allowed for the author and for community
// moderators; the row stays for thread history and audit.
func (h *Handlers) DeletePost(c *gin.Context) {
	user := currentUser(c)
	if user == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication_required"})
		return
	}

	var post models.Post
	err := database.DB.
		Where("id = ? AND is_deleted = ?", c.Param("id"), false).
		First(&post).Error
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "post_not_found"})
		return
	}

	allowed := post.AuthorID == user.ID
	if !allowed {
		if m := approvedMembership(post.CommunityID, user.ID); m != nil && isModerator(m.Role) {
			allowed = true
		}
	}
	if !allowed {
		c.JSON(http.StatusForbidden, gin.H{"error": "not_post_owner"})
		return
	}

	now := time.Now().UTC()
	err = database.DB.Model(&post).Updates(map[string]interface{}{
		"is_deleted": true,
		"deleted_at": now,
		"deleted_by": user.ID,
	}).Error
	if err != nil {
		logger.ErrorWithFields("Failed to delete post", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed_to_delete_post"})
		return
	}

	invalidateTrendingCache(c)

	c.JSON(http.StatusOK, gin.H{"status": "deleted", "post_id": post.ID})
}

package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/quorumsocial/quorum/internal/database"
	"github.com/quorumsocial/quorum/internal/logger"
	"github.com/quorumsocial/quorum/internal/models"
	"github.com/quorumsocial/quorum/internal/util"
)

// CreateComment creates a comment on a post, optionally as a reply.
// Live comment counts feed trending scores, so new comments invalidate
// cached trending pages.
// POST /api/v1/posts/:id/comments
func (h *Handlers) CreateComment(c *gin.Context) {
	user := currentUser(c)
	if user == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication_required"})
		return
	}

	var req struct {
		Body     string  `json:"body" binding:"required,min=1,max=10000"`
		ParentID *string `json:"parent_id,omitempty"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var post models.Post
	err := database.DB.
		Preload("Community").
		Where("id = ? AND is_deleted = ?", c.Param("id"), false).
		First(&post).Error
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "post_not_found"})
		return
	}

	if ok, reason := canEngage(user, &post.Community); !ok {
		c.JSON(http.StatusForbidden, gin.H{"error": reason})
		return
	}

	// A reply must target a live comment on the same post
	if req.ParentID != nil {
		var parent models.Comment
		err := database.DB.
			Where("id = ? AND post_id = ? AND is_deleted = ?", *req.ParentID, post.ID, false).
			First(&parent).Error
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_parent_comment"})
			return
		}
	}

	comment := models.Comment{
		PostID:      post.ID,
		CommunityID: post.CommunityID,
		AuthorID:    user.ID,
		ParentID:    req.ParentID,
		Body:        req.Body,
	}
	if err := database.DB.Create(&comment).Error; err != nil {
		logger.ErrorWithFields("Failed to create comment", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed_to_create_comment"})
		return
	}

	invalidateTrendingCache(c)

	c.JSON(http.StatusCreated, gin.H{"comment": comment})
}

// ListComments returns a post's live comments, top-level first with
// replies nested one level. Soft-deleted comments are excluded entirely;
// they also never count toward trending engagement.
// GET /api/v1/posts/:id/comments
func (h *Handlers) ListComments(c *gin.Context) {
	var post models.Post
	err := database.DB.
		Where("id = ? AND is_deleted = ?", c.Param("id"), false).
		First(&post).Error
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "post_not_found"})
		return
	}

	limit := util.ParseInt(c.DefaultQuery("limit", "50"), 50)
	if limit > 200 {
		limit = 200
	}
	offset := util.ParseInt(c.DefaultQuery("offset", "0"), 0)

	var comments []models.Comment
	err = database.DB.
		Preload("Author").
		Preload("Replies", "is_deleted = ?", false).
		Preload("Replies.Author").
		Where("post_id = ? AND parent_id IS NULL AND is_deleted = ?", post.ID, false).
		Order("created_at ASC").
		Limit(limit).
		Offset(offset).
		Find(&comments).Error
	if err != nil {
		logger.ErrorWithFields("Failed to list comments", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed_to_list_comments"})
		return
	}

	var totalCount int64
	database.DB.Model(&models.Comment{}).
		Where("post_id = ? AND is_deleted = ?", post.ID, false).
		Count(&totalCount)

	c.JSON(http.StatusOK, gin.H{
		"comments": comments,
		"meta": gin.H{
			"limit":       limit,
			"offset":      offset,
			"total_count": totalCount,
		},
	})
}

// DeleteComment soft-deletes a comment. Allowed for the author and for
// community moderators. The row stays so reply threads keep their shape.
// DELETE /api/v1/comments/:id
func (h *Handlers) DeleteComment(c *gin.Context) {
	user := currentUser(c)
	if user == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication_required"})
		return
	}

	var comment models.Comment
	err := database.DB.
		Where("id = ? AND is_deleted = ?", c.Param("id"), false).
		First(&comment).Error
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "comment_not_found"})
		return
	}

	allowed := comment.AuthorID == user.ID
	if !allowed {
		if m := approvedMembership(comment.CommunityID, user.ID); m != nil && isModerator(m.Role) {
			allowed = true
		}
	}
	if !allowed {
		c.JSON(http.StatusForbidden, gin.H{"error": "not_comment_owner"})
		return
	}

	now := time.Now().UTC()
	err = database.DB.Model(&comment).Updates(map[string]interface{}{
		"is_deleted": true,
		"deleted_at": now,
		"deleted_by": user.ID,
	}).Error
	if err != nil {
		logger.ErrorWithFields("Failed to delete comment", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed_to_delete_comment"})
		return
	}

	invalidateTrendingCache(c)

	c.JSON(http.StatusOK, gin.H{"status": "deleted", "comment_id": comment.ID})
}

package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/quorumsocial/quorum/internal/database"
	"github.com/quorumsocial/quorum/internal/logger"
	"github.com/quorumsocial/quorum/internal/metrics"
	"github.com/quorumsocial/quorum/internal/models"
	"github.com/quorumsocial/quorum/internal/trending"
)

// voteRequest carries a vote direction, +1 or -1
type voteRequest struct {
	Value int `json:"value" binding:"required"`
}

// voteOutcome is the counter movement a vote action produces. The score
// and votes_total deltas move in lockstep so the stored pair stays
// derivable into up/down counts: cast moves both, toggle-off reverses
// both, a direction switch moves score by two and leaves the total alone.
type voteOutcome struct {
	action     string
	scoreDelta int
	votesDelta int
}

// VotePost casts, toggles, or switches the caller's vote on a post
func (h *Handlers) VotePost(c *gin.Context) {
	user := currentUser(c)
	if user == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication_required"})
		return
	}

	var req voteRequest
	if err := c.ShouldBindJSON(&req); err != nil || (req.Value != 1 && req.Value != -1) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_vote_value"})
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
		status := http.StatusForbidden
		if reason == "authentication_required" {
			status = http.StatusUnauthorized
		}
		c.JSON(status, gin.H{"error": reason})
		return
	}

	var outcome voteOutcome
	err = database.DB.Transaction(func(tx *gorm.DB) error {
		var existing models.PostVote
		findErr := tx.Where("post_id = ? AND user_id = ?", post.ID, user.ID).
			First(&existing).Error

		switch {
		case errors.Is(findErr, gorm.ErrRecordNotFound):
			vote := models.PostVote{PostID: post.ID, UserID: user.ID, Value: req.Value}
			if err := tx.Create(&vote).Error; err != nil {
				return err
			}
			outcome = voteOutcome{action: "cast", scoreDelta: req.Value, votesDelta: 1}

		case findErr != nil:
			return findErr

		case existing.Value == req.Value:
			if err := tx.Delete(&existing).Error; err != nil {
				return err
			}
			outcome = voteOutcome{action: "toggle_off", scoreDelta: -req.Value, votesDelta: -1}

		default:
			if err := tx.Model(&existing).Update("value", req.Value).Error; err != nil {
				return err
			}
			outcome = voteOutcome{action: "switch", scoreDelta: 2 * req.Value, votesDelta: 0}
		}

		if err := tx.Model(&models.Post{}).
			Where("id = ?", post.ID).
			Updates(map[string]interface{}{
				"score":       gorm.Expr("score + ?", outcome.scoreDelta),
				"votes_total": gorm.Expr("votes_total + ?", outcome.votesDelta),
			}).Error; err != nil {
			return err
		}

		// Guest votes count toward the post, not the author's karma
		if !user.IsGuest && post.AuthorID != user.ID {
			if err := tx.Model(&models.User{}).
				Where("id = ?", post.AuthorID).
				UpdateColumn("karma", gorm.Expr("karma + ?", outcome.scoreDelta)).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		logger.ErrorWithFields("Failed to record post vote", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed_to_vote"})
		return
	}

	metrics.VotesCastTotal.WithLabelValues("post", outcome.action).Inc()
	invalidateTrendingCache(c)

	respondVoteResult(c, outcome, post.Score+outcome.scoreDelta, post.VotesTotal+outcome.votesDelta)
}

// VoteComment casts, toggles, or switches the caller's vote on a comment.
// Comment counters follow the same lockstep invariant as post counters.
func (h *Handlers) VoteComment(c *gin.Context) {
	user := currentUser(c)
	if user == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication_required"})
		return
	}

	var req voteRequest
	if err := c.ShouldBindJSON(&req); err != nil || (req.Value != 1 && req.Value != -1) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_vote_value"})
		return
	}

	var comment models.Comment
	err := database.DB.
		Preload("Community").
		Where("id = ? AND is_deleted = ?", c.Param("id"), false).
		First(&comment).Error
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "comment_not_found"})
		return
	}

	if ok, reason := canEngage(user, &comment.Community); !ok {
		status := http.StatusForbidden
		if reason == "authentication_required" {
			status = http.StatusUnauthorized
		}
		c.JSON(status, gin.H{"error": reason})
		return
	}

	var outcome voteOutcome
	err = database.DB.Transaction(func(tx *gorm.DB) error {
		var existing models.CommentVote
		findErr := tx.Where("comment_id = ? AND user_id = ?", comment.ID, user.ID).
			First(&existing).Error

		switch {
		case errors.Is(findErr, gorm.ErrRecordNotFound):
			vote := models.CommentVote{CommentID: comment.ID, UserID: user.ID, Value: req.Value}
			if err := tx.Create(&vote).Error; err != nil {
				return err
			}
			outcome = voteOutcome{action: "cast", scoreDelta: req.Value, votesDelta: 1}

		case findErr != nil:
			return findErr

		case existing.Value == req.Value:
			if err := tx.Delete(&existing).Error; err != nil {
				return err
			}
			outcome = voteOutcome{action: "toggle_off", scoreDelta: -req.Value, votesDelta: -1}

		default:
			if err := tx.Model(&existing).Update("value", req.Value).Error; err != nil {
				return err
			}
			outcome = voteOutcome{action: "switch", scoreDelta: 2 * req.Value, votesDelta: 0}
		}

		if err := tx.Model(&models.Comment{}).
			Where("id = ?", comment.ID).
			Updates(map[string]interface{}{
				"score":       gorm.Expr("score + ?", outcome.scoreDelta),
				"votes_total": gorm.Expr("votes_total + ?", outcome.votesDelta),
			}).Error; err != nil {
			return err
		}

		if !user.IsGuest && comment.AuthorID != user.ID {
			if err := tx.Model(&models.User{}).
				Where("id = ?", comment.AuthorID).
				UpdateColumn("karma", gorm.Expr("karma + ?", outcome.scoreDelta)).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		logger.ErrorWithFields("Failed to record comment vote", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed_to_vote"})
		return
	}

	metrics.VotesCastTotal.WithLabelValues("comment", outcome.action).Inc()

	respondVoteResult(c, outcome, comment.Score+outcome.scoreDelta, comment.VotesTotal+outcome.votesDelta)
}

// respondVoteResult reports the action taken and the updated counters
func respondVoteResult(c *gin.Context, outcome voteOutcome, score, votesTotal int) {
	up, down := trending.DeriveVotes(score, votesTotal)
	c.JSON(http.StatusOK, gin.H{
		"action":      outcome.action,
		"score":       score,
		"votes_total": votesTotal,
		"upvotes":     up,
		"downvotes":   down,
	})
}

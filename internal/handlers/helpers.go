package handlers

import (
	"errors"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/quorumsocial/quorum/internal/auth"
	"github.com/quorumsocial/quorum/internal/database"
	"github.com/quorumsocial/quorum/internal/models"
	"github.com/quorumsocial/quorum/internal/trending"
)

// loadCommunity fetches a non-deleted community by ID or slug
func loadCommunity(idOrSlug string) (*models.Community, error) {
	var community models.Community
	err := database.DB.
		Where("(id::text = ? OR slug = ?) AND is_deleted = ?", idOrSlug, idOrSlug, false).
		First(&community).Error
	if err != nil {
		return nil, err
	}
	return &community, nil
}

// approvedMembership returns the viewer's approved membership in the
// community, or nil when none exists
func approvedMembership(communityID, userID string) *models.CommunityMembership {
	if userID == "" {
		return nil
	}
	var membership models.CommunityMembership
	err := database.DB.
		Where("community_id = ? AND user_id = ? AND status = ?",
			communityID, userID, models.MembershipApproved).
		First(&membership).Error
	if err != nil {
		return nil
	}
	return &membership
}

// isModerator reports whether the role can moderate community content
func isModerator(role models.MembershipRole) bool {
	return role == models.RoleOwner || role == models.RoleModerator
}

// canEngage decides whether the viewer may vote or comment in the
// community. Registered users need an approved membership. Guests never
// hold memberships; they are gated by the community's karma threshold
// instead.
func canEngage(user *models.User, community *models.Community) (bool, string) {
	if user == nil {
		return false, "authentication_required"
	}
	if user.IsGuest {
		if user.Karma < community.KarmaThreshold {
			return false, "insufficient_karma"
		}
		return true, ""
	}
	if approvedMembership(community.ID, user.ID) == nil {
		return false, "membership_required"
	}
	return true, ""
}

// currentUser returns the resolved request identity, or nil
func currentUser(c *gin.Context) *models.User {
	return auth.CurrentUser(c)
}

// postResponse shapes a post for JSON output with derived vote counts
func postResponse(post models.Post, commentCount int) gin.H {
	up, down := trending.DeriveVotes(post.Score, post.VotesTotal)
	return gin.H{
		"post":          post,
		"comment_count": commentCount,
		"upvotes":       up,
		"downvotes":     down,
	}
}

// isNotFound reports whether err is a gorm record-not-found
func isNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}

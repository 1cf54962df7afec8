package handlers

import (
	"net/http"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/quorumsocial/quorum/internal/database"
	"github.com/quorumsocial/quorum/internal/logger"
	"github.com/quorumsocial/quorum/internal/models"
	"github.com/quorumsocial/quorum/internal/trending"
	"github.com/quorumsocial/quorum/internal/util"
)

var slugPattern = regexp.MustCompile(`[^a-z0-9]+`)

// CreateCommunity creates a community with the caller as approved owner
func (h *Handlers) CreateCommunity(c *gin.Context) {
	userID := c.GetString("user_id")

	var req struct {
		Name           string `json:"name" binding:"required,min=3,max=80"`
		Description    string `json:"description" binding:"max=2000"`
		Visibility     string `json:"visibility"`
		JoinPolicy     string `json:"join_policy"`
		IsNSFW         bool   `json:"is_nsfw"`
		KarmaThreshold int    `json:"karma_threshold"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	visibility := models.CommunityVisibility(req.Visibility)
	switch visibility {
	case models.VisibilityPublic, models.VisibilityRestricted, models.VisibilityPrivate:
	case "":
		visibility = models.VisibilityPublic
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_visibility"})
		return
	}

	joinPolicy := models.JoinPolicy(req.JoinPolicy)
	switch joinPolicy {
	case models.JoinPolicyOpen, models.JoinPolicyApproval, models.JoinPolicyInvite, models.JoinPolicyLogin:
	case "":
		joinPolicy = models.JoinPolicyOpen
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_join_policy"})
		return
	}

	community := models.Community{
		Name:           req.Name,
		Slug:           slugify(req.Name),
		Description:    req.Description,
		Visibility:     visibility,
		JoinPolicy:     joinPolicy,
		IsNSFW:         req.IsNSFW,
		KarmaThreshold: req.KarmaThreshold,
		CreatorID:      userID,
		MembersCount:   1,
	}

	err := database.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&community).Error; err != nil {
			return err
		}
		membership := models.CommunityMembership{
			CommunityID: community.ID,
			UserID:      userID,
			Role:        models.RoleOwner,
			Status:      models.MembershipApproved,
		}
		return tx.Create(&membership).Error
	})
	if err != nil {
		logger.ErrorWithFields("Failed to create community", err)
		c.JSON(http.StatusConflict, gin.H{"error": "community_exists"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"community": community})
}

// ListCommunities lists public, non-deleted communities
func (h *Handlers) ListCommunities(c *gin.Context) {
	limit := util.ParseInt(c.Query("limit"), 20)
	if limit < 1 {
		limit = 1
	} else if limit > 100 {
		limit = 100
	}
	offset := util.ParseInt(c.Query("offset"), 0)
	if offset < 0 {
		offset = 0
	}

	var communities []models.Community
	err := database.DB.
		Where("visibility = ? AND is_deleted = ?", models.VisibilityPublic, false).
		Order("members_count DESC, created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&communities).Error
	if err != nil {
		logger.ErrorWithFields("Failed to list communities", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed_to_list_communities"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"communities": communities,
		"meta": gin.H{
			"limit":  limit,
			"offset": offset,
			"total":  len(communities),
		},
	})
}

// GetCommunity returns one community by ID or slug
func (h *Handlers) GetCommunity(c *gin.Context) {
	community, err := loadCommunity(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "community_not_found"})
		return
	}

	if community.Visibility == models.VisibilityPrivate {
		if approvedMembership(community.ID, c.GetString("user_id")) == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "community_not_found"})
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{"community": community})
}

// JoinCommunity applies the community's join policy to the caller
func (h *Handlers) JoinCommunity(c *gin.Context) {
	user := currentUser(c)
	if user == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication_required"})
		return
	}
	if user.IsGuest {
		c.JSON(http.StatusForbidden, gin.H{"error": "registered_account_required"})
		return
	}

	community, err := loadCommunity(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "community_not_found"})
		return
	}

	var existing models.CommunityMembership
	err = database.DB.
		Where("community_id = ? AND user_id = ?", community.ID, user.ID).
		First(&existing).Error
	if err == nil {
		c.JSON(http.StatusConflict, gin.H{"error": "already_member", "status": existing.Status})
		return
	}

	var status models.MembershipStatus
	switch community.JoinPolicy {
	case models.JoinPolicyOpen, models.JoinPolicyLogin:
		status = models.MembershipApproved
	case models.JoinPolicyApproval:
		status = models.MembershipPending
	case models.JoinPolicyInvite:
		c.JSON(http.StatusForbidden, gin.H{"error": "invite_only"})
		return
	default:
		status = models.MembershipApproved
	}

	membership := models.CommunityMembership{
		CommunityID: community.ID,
		UserID:      user.ID,
		Role:        models.RoleMember,
		Status:      status,
	}

	err = database.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&membership).Error; err != nil {
			return err
		}
		if status == models.MembershipApproved {
			return tx.Model(&models.Community{}).
				Where("id = ?", community.ID).
				UpdateColumn("members_count", gorm.Expr("members_count + 1")).Error
		}
		return nil
	})
	if err != nil {
		logger.ErrorWithFields("Failed to join community", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed_to_join"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"membership": membership})
}

// ListCommunityPosts lists one community's posts under the requested sort.
//
// sort=trending scores every post in process with the pinned post first;
// score/new/old are plain SQL sorts. Unknown sorts fall back to trending.
func (h *Handlers) ListCommunityPosts(c *gin.Context) {
	viewerID := c.GetString("user_id")

	community, err := loadCommunity(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "community_not_found"})
		return
	}

	if community.Visibility == models.VisibilityPrivate {
		if approvedMembership(community.ID, viewerID) == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "community_not_found"})
			return
		}
	}

	sortOrder := c.DefaultQuery("sort", "trending")

	candidates, err := h.posts.CommunityCandidates(c.Request.Context(), community.ID, viewerID)
	if err != nil {
		logger.ErrorWithFields("Failed to load community posts", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed_to_list_posts"})
		return
	}

	var ranked []trending.RankedPost
	switch sortOrder {
	case "score":
		ranked = rankByStoredScore(candidates)
	case "new":
		ranked = rankByCreated(candidates, true)
	case "old":
		ranked = rankByCreated(candidates, false)
	default:
		sortOrder = "trending"
		ranked = trending.RankCommunity(candidates, community.ClipPostID, time.Now().UTC(), trending.Params{
			HalfLifeHours: util.ParseFloat(c.Query("half_life_hours"), trending.DefaultHalfLifeHours),
		})
	}
	if sortOrder != "trending" {
		// The clip post leads under every sort; RankCommunity pins it itself.
		ranked = trending.PinFirst(ranked, community.ClipPostID)
	}

	c.JSON(http.StatusOK, gin.H{
		"posts": ranked,
		"meta": gin.H{
			"sort":  sortOrder,
			"total": len(ranked),
		},
	})
}

// rankByStoredScore sorts by net vote score, newest first on ties
func rankByStoredScore(candidates []trending.Candidate) []trending.RankedPost {
	out := toRanked(candidates)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Post.Score != out[j].Post.Score {
			return out[i].Post.Score > out[j].Post.Score
		}
		return out[i].Post.CreatedAt.After(out[j].Post.CreatedAt)
	})
	return out
}

// rankByCreated sorts by creation time
func rankByCreated(candidates []trending.Candidate, newestFirst bool) []trending.RankedPost {
	out := toRanked(candidates)
	sort.SliceStable(out, func(i, j int) bool {
		if newestFirst {
			return out[i].Post.CreatedAt.After(out[j].Post.CreatedAt)
		}
		return out[i].Post.CreatedAt.Before(out[j].Post.CreatedAt)
	})
	return out
}

func toRanked(candidates []trending.Candidate) []trending.RankedPost {
	out := make([]trending.RankedPost, 0, len(candidates))
	for _, cand := range candidates {
		up, down := trending.DeriveVotes(cand.Post.Score, cand.Post.VotesTotal)
		out = append(out, trending.RankedPost{
			Post:         cand.Post,
			CommentCount: cand.CommentCount,
			Upvotes:      up,
			Downvotes:    down,
			Score:        cand.Post.TrendingScore,
		})
	}
	return out
}

// slugify lowercases a name and collapses non-alphanumerics to hyphens
func slugify(name string) string {
	slug := strings.ToLower(name)
	slug = slugPattern.ReplaceAllString(slug, "-")
	return strings.Trim(slug, "-")
}

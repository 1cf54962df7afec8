package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/quorumsocial/quorum/internal/logger"
	"github.com/quorumsocial/quorum/internal/trending"
	"github.com/quorumsocial/quorum/internal/util"
)

// GetTrendingPosts returns the sampled trending feed.
//
// Query knobs parse fail-soft: an absent or malformed limit, half_life_hours
// or lookback_hours falls back to its default instead of erroring, so a bad
// link never breaks the feed. Explicit numeric values keep their meaning:
// limit is clamped into [1,50] and lookback_hours=0 disables the recency
// window. Scores are computed per request and never persisted here.
func (h *Handlers) GetTrendingPosts(c *gin.Context) {
	viewerID := c.GetString("user_id")

	params := trending.Params{
		Limit:         util.ParseInt(c.Query("limit"), trending.DefaultLimit),
		HalfLifeHours: util.ParseFloat(c.Query("half_life_hours"), trending.DefaultHalfLifeHours),
		LookbackHours: util.ParseFloat(c.Query("lookback_hours"), trending.DefaultLookbackHours),
	}

	ranked, err := h.sampler.Trending(c.Request.Context(), viewerID, params)
	if err != nil {
		logger.ErrorWithFields("Failed to rank trending posts", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed_to_load_trending"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"posts": ranked,
		"meta": gin.H{
			"limit":          len(ranked),
			"half_life":      params.HalfLifeHours,
			"lookback_hours": params.LookbackHours,
			"sample_size":    trending.SampleSize,
		},
	})
}

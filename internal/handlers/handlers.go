package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/quorumsocial/quorum/internal/auth"
	"github.com/quorumsocial/quorum/internal/cache"
	"github.com/quorumsocial/quorum/internal/database"
	"github.com/quorumsocial/quorum/internal/repository"
	"github.com/quorumsocial/quorum/internal/trending"
)

// Cache invalidation pattern for trending feed pages. Mutations that move
// trending inputs (posts, votes, comments) clear matching response keys.
const TrendingCachePattern = "response:/api/v1/posts/trending*"

// Handlers contains all HTTP handlers for the API
type Handlers struct {
	posts       repository.PostRepository
	sampler     *trending.Sampler
	authService *auth.Service
}

// NewHandlers creates a new handlers instance
func NewHandlers(posts repository.PostRepository, authService *auth.Service) *Handlers {
	return &Handlers{
		posts:       posts,
		sampler:     trending.NewSampler(posts),
		authService: authService,
	}
}

// HealthCheck reports liveness plus database and cache reachability
func (h *Handlers) HealthCheck(c *gin.Context) {
	status := http.StatusOK
	dbStatus := "ok"
	if err := database.Health(); err != nil {
		dbStatus = "unavailable"
		status = http.StatusServiceUnavailable
	}

	redisStatus := "ok"
	if rc := cache.GetRedisClient(); rc != nil {
		if err := rc.Ping(c.Request.Context()); err != nil {
			redisStatus = "unavailable"
		}
	} else {
		redisStatus = "disabled"
	}

	c.JSON(status, gin.H{
		"status":   "ok",
		"database": dbStatus,
		"redis":    redisStatus,
	})
}

// invalidateTrendingCache drops cached trending pages after a mutation
func invalidateTrendingCache(c *gin.Context) {
	if rc := cache.GetRedisClient(); rc != nil {
		_, _ = rc.DeleteByPattern(c.Request.Context(), TrendingCachePattern)
	}
}

package middleware

import (
	"bytes"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/quorumsocial/quorum/internal/cache"
	"github.com/quorumsocial/quorum/internal/logger"
)

// ResponseCacheMiddleware caches successful GET responses with configurable TTL.
// Only caches 2xx responses. Adds X-Cache: HIT/MISS header for debugging.
// Cache key is: response:{path}:{query_string}:{user_id} — the user ID keeps
// mute-filtered listings from leaking between viewers.
func ResponseCacheMiddleware(ttl time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		// Only cache GET requests
		if c.Request.Method != "GET" {
			c.Next()
			return
		}

		redisClient := cache.GetRedisClient()
		if redisClient == nil {
			// Redis not available, skip caching
			c.Next()
			return
		}

		userID := c.GetString("user_id")

		cacheKey := generateCacheKey(c.Request.URL.Path, c.Request.URL.RawQuery, userID)
		ctx := c.Request.Context()

		cachedData, err := redisClient.Get(ctx, cacheKey)
		if err == nil {
			RecordCacheHit("response_cache")
			c.Header("X-Cache", "HIT")
			c.Header("Cache-Control", fmt.Sprintf("public, max-age=%d", int(ttl.Seconds())))
			c.Data(http.StatusOK, "application/json", []byte(cachedData))
			c.Abort()
			return
		}

		RecordCacheMiss("response_cache")

		// Cache miss - capture response and cache it
		writer := &cachedResponseWriter{
			ResponseWriter: c.Writer,
			statusCode:     http.StatusOK,
			body:           &bytes.Buffer{},
		}
		c.Writer = writer

		c.Next()

		if writer.statusCode >= 200 && writer.statusCode < 300 {
			bodyStr := writer.body.String()
			if bodyStr != "" {
				if err := redisClient.SetEx(ctx, cacheKey, bodyStr, ttl); err != nil {
					logger.Log.Debug("Failed to write response to cache",
						zap.String("key", cacheKey),
						zap.Error(err),
					)
				}
			}
		}

		c.Header("X-Cache", "MISS")
		c.Header("Cache-Control", fmt.Sprintf("public, max-age=%d", int(ttl.Seconds())))
	}
}

// generateCacheKey creates a cache key from request path, query params, and user ID
func generateCacheKey(path, query, userID string) string {
	key := fmt.Sprintf("response:%s", path)

	if query != "" {
		key = fmt.Sprintf("%s:%s", key, query)
	}

	if userID != "" {
		key = fmt.Sprintf("%s:%s", key, userID)
	}

	return key
}

// cachedResponseWriter intercepts response writes to capture the response body
type cachedResponseWriter struct {
	gin.ResponseWriter
	statusCode int
	body       *bytes.Buffer
}

// Write writes data to the response while capturing it for caching
func (w *cachedResponseWriter) Write(data []byte) (int, error) {
	w.body.Write(data)
	return w.ResponseWriter.Write(data)
}

// WriteHeader records the HTTP status code
func (w *cachedResponseWriter) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

// CacheInvalidationMiddleware drops cached responses matching the given
// patterns after a successful POST/PUT/DELETE. Mutation endpoints that move
// trending inputs (posts, votes, comments) use it to clear trending pages.
func CacheInvalidationMiddleware(invalidationPatterns ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Request.Method != "POST" && c.Request.Method != "PUT" && c.Request.Method != "DELETE" {
			return
		}

		if c.Writer.Status() < 200 || c.Writer.Status() >= 400 {
			return // Only clear cache on successful mutations
		}

		redisClient := cache.GetRedisClient()
		if redisClient == nil {
			return
		}

		ctx := c.Request.Context()

		for _, pattern := range invalidationPatterns {
			deleted, err := redisClient.DeleteByPattern(ctx, pattern)
			if err != nil {
				logger.Log.Warn("Failed to invalidate cache",
					zap.String("pattern", pattern),
					zap.Error(err),
				)
				continue
			}
			if deleted > 0 {
				logger.Log.Debug("Cache invalidated",
					zap.String("pattern", pattern),
					zap.Int64("keys", deleted),
				)
			}
		}
	}
}

package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/quorumsocial/quorum/internal/auth"
	"github.com/quorumsocial/quorum/internal/cache"
	"github.com/quorumsocial/quorum/internal/database"
	"github.com/quorumsocial/quorum/internal/handlers"
	"github.com/quorumsocial/quorum/internal/logger"
	"github.com/quorumsocial/quorum/internal/metrics"
	"github.com/quorumsocial/quorum/internal/middleware"
	"github.com/quorumsocial/quorum/internal/repository"
	"github.com/quorumsocial/quorum/internal/telemetry"
	"github.com/quorumsocial/quorum/internal/trending"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: .env file not found, using system environment variables")
	}

	// Initialize structured logging
	if err := logger.Initialize(os.Getenv("LOG_LEVEL"), os.Getenv("LOG_FILE")); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Close()

	// Initialize database
	if err := database.Initialize(); err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer database.Close()

	// Run migrations
	if err := database.Migrate(); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	// Redis is optional: without it response caching and the recompute
	// lock are disabled and the server runs single-instance
	redisClient, err := cache.NewRedisClient(
		getEnvOrDefault("REDIS_HOST", "localhost"),
		getEnvOrDefault("REDIS_PORT", "6379"),
		os.Getenv("REDIS_PASSWORD"),
	)
	if err != nil {
		log.Printf("Warning: Redis unavailable, response caching disabled: %v", err)
	} else {
		defer redisClient.Close()
	}

	// Prometheus metrics
	metrics.Initialize()

	// OpenTelemetry tracing (opt-in)
	tracingEnabled := os.Getenv("OTEL_ENABLED") == "true"
	samplingRate := 1.0
	if v := os.Getenv("OTEL_SAMPLING_RATE"); v != "" {
		if parsed, err := strconv.ParseFloat(v, 64); err == nil {
			samplingRate = parsed
		}
	}
	tp, err := telemetry.InitTracer(telemetry.Config{
		ServiceName:  "quorum-backend",
		Environment:  getEnvOrDefault("ENVIRONMENT", "development"),
		OTLPEndpoint: getEnvOrDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4318"),
		Enabled:      tracingEnabled,
		SamplingRate: samplingRate,
	})
	if err != nil {
		log.Printf("Warning: tracing disabled: %v", err)
	}
	if tp != nil {
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = tp.Shutdown(ctx)
		}()
	}

	// Auth service
	jwtSecret := []byte(os.Getenv("JWT_SECRET"))
	if len(jwtSecret) == 0 {
		log.Fatalf("JWT_SECRET environment variable is required")
	}
	authService := auth.NewService(jwtSecret)

	// Repository and handlers
	posts := repository.NewPostRepository(database.DB)
	h := handlers.NewHandlers(posts, authService)

	// Background trending recomputation, hourly by default
	recomputeInterval := time.Hour
	if v := os.Getenv("TRENDING_RECOMPUTE_INTERVAL"); v != "" {
		if parsed, err := time.ParseDuration(v); err == nil {
			recomputeInterval = parsed
		}
	}
	trendingService := trending.NewService(
		trending.NewRecomputer(posts),
		trending.Options{},
		recomputeInterval,
	)
	trendingService.Start()
	defer trendingService.Stop()

	// Setup Gin router
	gin.SetMode(getEnvOrDefault("GIN_MODE", gin.DebugMode))
	r := gin.New()

	r.Use(gin.Recovery())
	r.Use(middleware.RequestIDMiddleware())
	r.Use(middleware.GinLoggerMiddleware())
	r.Use(middleware.MetricsMiddleware())
	if tracingEnabled {
		r.Use(otelgin.Middleware("quorum-backend"))
	}
	r.Use(gzip.Gzip(gzip.DefaultCompression))

	// CORS middleware
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = []string{getEnvOrDefault("CORS_ORIGIN", "*")}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization", "X-Guest-Token"}
	r.Use(cors.New(corsConfig))

	// Health and metrics endpoints
	r.GET("/health", h.HealthCheck)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API routes
	api := r.Group("/api/v1")
	api.Use(authService.Identity())
	{
		// Authentication routes (public)
		authGroup := api.Group("/auth")
		{
			authGroup.POST("/register", h.Register)
			authGroup.POST("/login", h.Login)
			authGroup.POST("/guest", h.CreateGuestSession)
		}

		// Trending feed, cached briefly per viewer
		trendingTTL := 30 * time.Second
		if v := os.Getenv("TRENDING_CACHE_TTL"); v != "" {
			if parsed, err := time.ParseDuration(v); err == nil {
				trendingTTL = parsed
			}
		}
		api.GET("/posts/trending", middleware.ResponseCacheMiddleware(trendingTTL), h.GetTrendingPosts)

		// Community routes
		communities := api.Group("/communities")
		{
			communities.GET("", h.ListCommunities)
			communities.POST("", auth.RequireRegistered(), h.CreateCommunity)
			communities.GET("/:id", h.GetCommunity)
			communities.POST("/:id/join", auth.RequireRegistered(), h.JoinCommunity)
			communities.GET("/:id/posts", h.ListCommunityPosts)
			communities.POST("/:id/posts", auth.RequireAuth(), h.CreatePost)
		}

		// Post routes
		posts := api.Group("/posts")
		{
			posts.GET("/:id", h.GetPost)
			posts.DELETE("/:id", auth.RequireAuth(), h.DeletePost)
			posts.POST("/:id/vote", auth.RequireAuth(), h.VotePost)
			posts.GET("/:id/comments", h.ListComments)
			posts.POST("/:id/comments", auth.RequireAuth(), h.CreateComment)
		}

		// Comment routes
		comments := api.Group("/comments")
		{
			comments.DELETE("/:id", auth.RequireAuth(), h.DeleteComment)
			comments.POST("/:id/vote", auth.RequireAuth(), h.VoteComment)
		}

		// User routes
		users := api.Group("/users")
		{
			users.GET("/me", auth.RequireAuth(), h.GetMe)
			users.GET("/me/muted", auth.RequireAuth(), h.GetMutedUsers)
			users.POST("/:id/mute", auth.RequireAuth(), h.MuteUser)
			users.DELETE("/:id/mute", auth.RequireAuth(), h.UnmuteUser)
			users.GET("/:id/muted", auth.RequireAuth(), h.IsUserMuted)
		}
	}

	// Server configuration
	port := os.Getenv("PORT")
	if port == "" {
		port = "8787"
	}

	srv := &http.Server{
		Addr:    ":" + port,
		Handler: r,
	}

	// Start server in a goroutine
	go func() {
		log.Printf("Quorum backend starting on port %s", port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	// Give outstanding requests 30 seconds to complete
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	log.Println("Server exited")
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

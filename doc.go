// Package quorum provides the Quorum community forum API server.

// This package contains the main application entry point. The actual API
// documentation is organized into subpackages:

// - internal/handlers: HTTP request handlers for all API endpoints
// - internal/models: Data models and database schemas
// - internal/auth: Authentication, guest identity, and authorization
// - internal/trending: Trending score computation and ranking
// - internal/repository: Database query layer for posts and scoring
// - internal/database: Database connection and migrations
// - internal/cache: Redis response caching and locking
// - internal/middleware: HTTP middleware (request IDs, metrics, caching)
// - internal/metrics: Prometheus metric definitions
// - internal/logger: Structured logging
// - internal/seed: Development and test data seeding

// See the individual package documentation for detailed API reference.
package quorum

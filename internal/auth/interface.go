package auth

import "github.com/quorumsocial/quorum/internal/models"

// AuthServiceInterface defines the contract for authentication operations.
// This enables mocking for unit tests without requiring a real database.
type AuthServiceInterface interface {
	// Registration and Login
	Register(req RegisterRequest) (*AuthResponse, error)
	Login(req LoginRequest) (*AuthResponse, error)

	// Token operations
	ValidateToken(tokenString string) (*models.User, error)

	// Guest identity
	ResolveGuest(guestToken string) (*models.User, error)
}

// Ensure Service implements AuthServiceInterface
var _ AuthServiceInterface = (*Service)(nil)

package services

import (
	"context"
	"log"
	"strings"
	"time"

	"github.com/procureflow/backend/internal/domain/models"
	"github.com/procureflow/backend/internal/domain/ports"
	"github.com/procureflow/backend/pkg/auth"
	"github.com/procureflow/backend/pkg/constants"
	"github.com/procureflow/backend/pkg/errors"
	"github.com/procureflow/backend/pkg/utils"
)

// AuthService handles authentication and user management
type AuthService struct {
	users ports.UserRepository
	clock ports.Clock
}

// NewAuthService creates a new AuthService
func NewAuthService(users ports.UserRepository, clock ports.Clock) *AuthService {
	return &AuthService{users: users, clock: clock}
}

// LoginResult contains the result of a successful login
type LoginResult struct {
	Token     string           `json:"token"`
	User      auth.UserSession `json:"user"`
	ExpiresAt time.Time        `json:"expires_at"`
}

// Login authenticates a user by email and password
func (s *AuthService) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	user, err := s.users.GetUserByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		return nil, err
	}
	if user == nil {
		log.Printf("⚠️ Login failed for %s: user not found", email)
		return nil, errors.NewUnauthorizedError("Invalid email or password")
	}
	if !user.Active {
		return nil, errors.NewUnauthorizedError("Account is deactivated")
	}
	if !auth.VerifyPassword(password, user.PasswordHash) {
		log.Printf("⚠️ Login failed for %s: invalid password", email)
		return nil, errors.NewUnauthorizedError("Invalid email or password")
	}

	session := auth.UserSession{
		ID:    user.ID,
		Name:  user.Name,
		Email: user.Email,
		Role:  user.Role,
	}

	token, err := auth.GenerateToken(session)
	if err != nil {
		return nil, errors.NewInternalError("failed to generate token", err)
	}

	claims, err := auth.ValidateToken(token)
	if err != nil {
		return nil, errors.NewInternalError("failed to decode token", err)
	}

	log.Printf("🔓 User logged in: %s (%s)", user.Name, user.Role)
	return &LoginResult{
		Token:     token,
		User:      session,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

// CreateUserRequest is the payload for creating a user account
type CreateUserRequest struct {
	Name     string `json:"name" binding:"required"`
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
	Role     string `json:"role" binding:"required"`
}

// CreateUser registers a new user account. Admin only.
func (s *AuthService) CreateUser(ctx context.Context, req *CreateUserRequest) (*models.User, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if !auth.IsValidEmail(email) {
		return nil, errors.NewValidationError("email", "invalid email address")
	}
	if !constants.IsValidRole(req.Role) {
		return nil, errors.NewValidationError("role", "unknown role: "+req.Role)
	}
	if err := auth.ValidatePasswordStrength(req.Password); err != nil {
		return nil, err
	}

	existing, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, errors.NewConflictError("user", "email", email)
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		return nil, errors.NewInternalError("failed to hash password", err)
	}

	now := s.clock.Now()
	user := &models.User{
		ID:           utils.GenerateID(),
		Name:         strings.TrimSpace(req.Name),
		Email:        email,
		PasswordHash: hash,
		Role:         req.Role,
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.users.CreateUser(ctx, user); err != nil {
		return nil, err
	}

	log.Printf("👤 User created: %s (%s, %s)", user.Name, user.Email, user.Role)
	return user, nil
}

// ListUsers returns all user accounts
func (s *AuthService) ListUsers(ctx context.Context) ([]models.User, error) {
	return s.users.ListUsers(ctx)
}

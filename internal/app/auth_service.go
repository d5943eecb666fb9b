package app

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"github.com/gatherhq/api/pkg/domain/shared"
	"github.com/gatherhq/api/pkg/domain/user"
	"github.com/gatherhq/api/pkg/jwt"
	"github.com/gatherhq/api/pkg/logger"
)

// AuthService handles registration, login, and token refresh.
type AuthService struct {
	userRepo     user.Repository
	spaceService *SpaceService
	tokens       *jwt.Generator
	minPassword  int
	logger       *logger.Logger
}

// NewAuthService creates a new AuthService.
func NewAuthService(userRepo user.Repository, spaceService *SpaceService, tokens *jwt.Generator, minPassword int, log *logger.Logger) *AuthService {
	if minPassword < 8 {
		minPassword = 8
	}
	return &AuthService{
		userRepo:     userRepo,
		spaceService: spaceService,
		tokens:       tokens,
		minPassword:  minPassword,
		logger:       log.With("service", "auth"),
	}
}

// RegisterInput represents the input for registration.
type RegisterInput struct {
	Email    string `json:"email" validate:"required,email"`
	Name     string `json:"name" validate:"required,min=2,max=100"`
	Password string `json:"password" validate:"required"`
}

// Register creates a user and joins them to every auto-join space.
func (s *AuthService) Register(ctx context.Context, input RegisterInput) (*user.User, error) {
	if len(input.Password) < s.minPassword {
		return nil, fmt.Errorf("%w: password must be at least %d characters", shared.ErrValidation, s.minPassword)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	u, err := user.New(input.Email, input.Name, string(hash))
	if err != nil {
		return nil, err
	}
	if err := s.userRepo.Create(ctx, u); err != nil {
		return nil, err
	}

	// Auto-join failures never fail the registration; the user can still
	// join those spaces directly.
	if err := s.spaceService.AutoJoinForNewUser(ctx, u.ID()); err != nil {
		s.logger.Error("auto-join at registration failed",
			"user_id", u.ID().String(),
			"error", err,
		)
	}

	s.logger.Info("user registered", "user_id", u.ID().String())
	return u, nil
}

// LoginInput represents the input for login.
type LoginInput struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// Login verifies the credentials and issues a token pair.
func (s *AuthService) Login(ctx context.Context, input LoginInput) (*user.User, *jwt.TokenPair, error) {
	u, err := s.userRepo.GetByEmail(ctx, input.Email)
	if err != nil {
		if shared.IsNotFound(err) {
			return nil, nil, fmt.Errorf("%w: invalid credentials", shared.ErrUnauthorized)
		}
		return nil, nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash()), []byte(input.Password)); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return nil, nil, fmt.Errorf("%w: invalid credentials", shared.ErrUnauthorized)
		}
		return nil, nil, fmt.Errorf("failed to verify password: %w", err)
	}

	pair, err := s.tokens.GenerateTokenPair(u.ID().String(), u.Email(), u.Name(), u.IsPlatformAdmin())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to generate tokens: %w", err)
	}

	s.logger.Info("user logged in", "user_id", u.ID().String())
	return u, pair, nil
}

// Refresh validates a refresh token and issues a fresh pair. The platform
// admin flag is re-read from the store, not trusted from the old token.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*jwt.TokenPair, error) {
	claims, err := s.tokens.ValidateRefreshToken(refreshToken)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrUnauthorized, err)
	}

	id, err := shared.IDFromString(claims.UserID)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid token subject", shared.ErrUnauthorized)
	}
	u, err := s.userRepo.GetByID(ctx, id)
	if err != nil {
		if shared.IsNotFound(err) {
			return nil, fmt.Errorf("%w: user no longer exists", shared.ErrUnauthorized)
		}
		return nil, err
	}

	return s.tokens.GenerateTokenPair(u.ID().String(), u.Email(), u.Name(), u.IsPlatformAdmin())
}

// GetUser returns a user by ID.
func (s *AuthService) GetUser(ctx context.Context, id shared.ID) (*user.User, error) {
	return s.userRepo.GetByID(ctx, id)
}

package handler

import (
	"net/http"
	"time"

	"github.com/gatherhq/api/internal/app"
	"github.com/gatherhq/api/pkg/apierror"
	"github.com/gatherhq/api/pkg/domain/user"
	"github.com/gatherhq/api/pkg/jwt"
	"github.com/gatherhq/api/pkg/logger"
	"github.com/gatherhq/api/pkg/validator"
)

// AuthHandler handles registration, login, and token refresh.
type AuthHandler struct {
	service   *app.AuthService
	validator *validator.Validator
	logger    *logger.Logger
}

// NewAuthHandler creates a new auth handler.
func NewAuthHandler(svc *app.AuthService, v *validator.Validator, log *logger.Logger) *AuthHandler {
	return &AuthHandler{
		service:   svc,
		validator: v,
		logger:    log,
	}
}

// =============================================================================
// Response Types
// =============================================================================

// UserResponse represents a user in API responses.
type UserResponse struct {
	ID            string    `json:"id"`
	Email         string    `json:"email"`
	Name          string    `json:"name"`
	PlatformAdmin bool      `json:"platform_admin"`
	CreatedAt     time.Time `json:"created_at"`
}

// TokenResponse represents an issued token pair.
type TokenResponse struct {
	AccessToken           string    `json:"access_token"`
	AccessTokenExpiresAt  time.Time `json:"access_token_expires_at"`
	RefreshToken          string    `json:"refresh_token"`
	RefreshTokenExpiresAt time.Time `json:"refresh_token_expires_at"`
	TokenType             string    `json:"token_type"`
}

// LoginResponse bundles the user with their token pair.
type LoginResponse struct {
	User   UserResponse  `json:"user"`
	Tokens TokenResponse `json:"tokens"`
}

func toUserResponse(u *user.User) UserResponse {
	return UserResponse{
		ID:            u.ID().String(),
		Email:         u.Email(),
		Name:          u.Name(),
		PlatformAdmin: u.IsPlatformAdmin(),
		CreatedAt:     u.CreatedAt(),
	}
}

func toTokenResponse(pair *jwt.TokenPair) TokenResponse {
	return TokenResponse{
		AccessToken:           pair.AccessToken,
		AccessTokenExpiresAt:  pair.AccessTokenExpiresAt,
		RefreshToken:          pair.RefreshToken,
		RefreshTokenExpiresAt: pair.RefreshTokenExpiresAt,
		TokenType:             "Bearer",
	}
}

// =============================================================================
// Handlers
// =============================================================================

// Register handles POST /api/v1/auth/register.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var input app.RegisterInput
	if !decodeJSON(w, r, &input) {
		return
	}

	if err := h.validator.Validate(input); err != nil {
		handleValidationError(w, err)
		return
	}

	u, err := h.service.Register(r.Context(), input)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, toUserResponse(u))
}

// Login handles POST /api/v1/auth/login.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var input app.LoginInput
	if !decodeJSON(w, r, &input) {
		return
	}

	if err := h.validator.Validate(input); err != nil {
		handleValidationError(w, err)
		return
	}

	u, pair, err := h.service.Login(r.Context(), input)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, LoginResponse{
		User:   toUserResponse(u),
		Tokens: toTokenResponse(pair),
	})
}

// RefreshRequest represents the token refresh request.
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

// Refresh handles POST /api/v1/auth/refresh.
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req RefreshRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := h.validator.Validate(req); err != nil {
		handleValidationError(w, err)
		return
	}

	pair, err := h.service.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		apierror.Unauthorized("Invalid refresh token").WriteJSON(w)
		return
	}

	writeJSON(w, http.StatusOK, toTokenResponse(pair))
}

// Me handles GET /api/v1/auth/me.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUserID(w, r)
	if !ok {
		return
	}

	u, err := h.service.GetUser(r.Context(), userID)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, toUserResponse(u))
}

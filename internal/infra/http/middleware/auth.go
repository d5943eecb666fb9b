package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/gatherhq/api/pkg/apierror"
	"github.com/gatherhq/api/pkg/domain/shared"
	"github.com/gatherhq/api/pkg/jwt"
	"github.com/gatherhq/api/pkg/logger"
)

// Auth-related context keys. Uses logger.ContextKey so request-scoped
// values flow into log records.
const (
	UserIDKey        logger.ContextKey = "user_id"
	EmailKey         logger.ContextKey = "email"
	PlatformAdminKey logger.ContextKey = "platform_admin"
)

// =============================================================================
// Context Getters
// =============================================================================

// GetUserID extracts the authenticated user ID from context.
func GetUserID(ctx context.Context) string {
	if id, ok := ctx.Value(UserIDKey).(string); ok {
		return id
	}
	return ""
}

// UserIDFromContext extracts the authenticated user ID as a typed ID.
// Returns a zero ID when the request is unauthenticated.
func UserIDFromContext(ctx context.Context) shared.ID {
	raw := GetUserID(ctx)
	if raw == "" {
		return shared.ID{}
	}
	id, err := shared.IDFromString(raw)
	if err != nil {
		return shared.ID{}
	}
	return id
}

// GetEmail extracts the user email from context.
func GetEmail(ctx context.Context) string {
	if email, ok := ctx.Value(EmailKey).(string); ok {
		return email
	}
	return ""
}

// IsPlatformAdmin reports whether the token carried the platform admin claim.
// The application layer re-checks the flag against the user store for
// privileged operations; this is only a routing hint.
func IsPlatformAdmin(ctx context.Context) bool {
	if admin, ok := ctx.Value(PlatformAdminKey).(bool); ok {
		return admin
	}
	return false
}

// =============================================================================
// Auth Middleware
// =============================================================================

// RequireAuth validates the bearer token and stores the claims in context.
// Requests without a valid access token are rejected with 401.
func RequireAuth(tokens *jwt.Generator, log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := extractBearerToken(r)
			if token == "" {
				apierror.Unauthorized("Missing bearer token").WriteJSON(w)
				return
			}

			claims, err := tokens.ValidateAccessToken(token)
			if err != nil {
				log.Debug("token validation failed",
					"error", err,
					"request_id", GetRequestID(r.Context()),
				)
				apierror.Unauthorized("Invalid or expired token").WriteJSON(w)
				return
			}

			ctx := r.Context()
			ctx = context.WithValue(ctx, UserIDKey, claims.UserID)
			ctx = context.WithValue(ctx, EmailKey, claims.Email)
			ctx = context.WithValue(ctx, PlatformAdminKey, claims.PlatformAdmin)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// extractBearerToken pulls the token from the Authorization header.
func extractBearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}

	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

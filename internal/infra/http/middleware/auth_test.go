package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gatherhq/api/pkg/domain/shared"
	"github.com/gatherhq/api/pkg/jwt"
	"github.com/gatherhq/api/pkg/logger"
)

func testTokens() *jwt.Generator {
	return jwt.NewGenerator(jwt.TokenConfig{
		Secret:               "test-secret-test-secret-test-secret",
		Issuer:               "gather-test",
		AccessTokenDuration:  15 * time.Minute,
		RefreshTokenDuration: 24 * time.Hour,
	})
}

func TestRequireAuth(t *testing.T) {
	tokens := testTokens()
	userID := shared.NewID()

	var sawUserID string
	var sawAdmin bool
	handler := RequireAuth(tokens, logger.Nop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sawUserID = GetUserID(r.Context())
		sawAdmin = IsPlatformAdmin(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	token, _, err := tokens.GenerateAccessToken(userID.String(), "alice@example.com", "Alice", true)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/spaces", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, userID.String(), sawUserID)
	assert.True(t, sawAdmin)
}

func TestRequireAuth_Rejects(t *testing.T) {
	tokens := testTokens()

	handler := RequireAuth(tokens, logger.Nop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not be reached")
	}))

	tests := []struct {
		name   string
		header string
	}{
		{"missing header", ""},
		{"not a bearer token", "Basic dXNlcjpwYXNz"},
		{"garbage token", "Bearer not-a-token"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/spaces", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.Contains(t, rec.Header().Get("Content-Type"), "application/json")
		})
	}
}

func TestRequireAuth_RefreshTokenRejected(t *testing.T) {
	tokens := testTokens()

	handler := RequireAuth(tokens, logger.Nop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not be reached")
	}))

	refresh, _, err := tokens.GenerateRefreshToken(shared.NewID().String())
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/spaces", nil)
	req.Header.Set("Authorization", "Bearer "+refresh)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestUserIDFromContext(t *testing.T) {
	id := shared.NewID()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	ctx := req.Context()
	assert.True(t, UserIDFromContext(ctx).IsZero())

	withID := context.WithValue(ctx, UserIDKey, id.String())
	assert.True(t, UserIDFromContext(withID).Equals(id))

	withGarbage := context.WithValue(ctx, UserIDKey, "not-a-uuid")
	assert.True(t, UserIDFromContext(withGarbage).IsZero())
}

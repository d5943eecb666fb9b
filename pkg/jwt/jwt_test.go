package jwt

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testGenerator() *Generator {
	return NewGenerator(TokenConfig{
		Secret:               "test-secret-test-secret-test-secret",
		Issuer:               "gather-test",
		AccessTokenDuration:  15 * time.Minute,
		RefreshTokenDuration: 24 * time.Hour,
	})
}

func TestGenerator_GenerateAccessToken(t *testing.T) {
	g := testGenerator()

	token, expiresAt, err := g.GenerateAccessToken("user-1", "alice@example.com", "Alice", false)
	require.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.WithinDuration(t, time.Now().Add(15*time.Minute), expiresAt, 5*time.Second)

	claims, err := g.ValidateAccessToken(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
	assert.Equal(t, "alice@example.com", claims.Email)
	assert.Equal(t, "Alice", claims.Name)
	assert.Equal(t, "gather-test", claims.Issuer)
	assert.False(t, claims.PlatformAdmin)
}

func TestGenerator_GenerateAccessToken_EmptyUserID(t *testing.T) {
	g := testGenerator()

	_, _, err := g.GenerateAccessToken("", "alice@example.com", "Alice", false)
	assert.ErrorIs(t, err, ErrEmptyUserID)
}

func TestGenerator_TokenPair(t *testing.T) {
	g := testGenerator()

	pair, err := g.GenerateTokenPair("user-1", "alice@example.com", "Alice", true)
	require.NoError(t, err)

	access, err := g.ValidateAccessToken(pair.AccessToken)
	require.NoError(t, err)
	assert.True(t, access.PlatformAdmin)

	refresh, err := g.ValidateRefreshToken(pair.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, "user-1", refresh.UserID)
	// Refresh tokens carry identity only.
	assert.Empty(t, refresh.Email)
	assert.False(t, refresh.PlatformAdmin)

	assert.True(t, pair.RefreshTokenExpiresAt.After(pair.AccessTokenExpiresAt))
}

func TestGenerator_TokenTypeMismatch(t *testing.T) {
	g := testGenerator()

	pair, err := g.GenerateTokenPair("user-1", "alice@example.com", "Alice", false)
	require.NoError(t, err)

	_, err = g.ValidateAccessToken(pair.RefreshToken)
	assert.ErrorIs(t, err, ErrInvalidTokenType)

	_, err = g.ValidateRefreshToken(pair.AccessToken)
	assert.ErrorIs(t, err, ErrInvalidTokenType)
}

func TestGenerator_ValidateToken_Errors(t *testing.T) {
	g := testGenerator()

	t.Run("garbage", func(t *testing.T) {
		_, err := g.ValidateToken("not-a-token")
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("wrong secret", func(t *testing.T) {
		other := NewGenerator(TokenConfig{
			Secret:              "a-completely-different-secret-value",
			Issuer:              "gather-test",
			AccessTokenDuration: time.Minute,
		})
		token, _, err := other.GenerateAccessToken("user-1", "", "", false)
		require.NoError(t, err)

		_, err = g.ValidateToken(token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("expired", func(t *testing.T) {
		expired := NewGenerator(TokenConfig{
			Secret:              "test-secret-test-secret-test-secret",
			Issuer:              "gather-test",
			AccessTokenDuration: -time.Minute,
		})
		token, _, err := expired.GenerateAccessToken("user-1", "", "", false)
		require.NoError(t, err)

		_, err = g.ValidateToken(token)
		assert.ErrorIs(t, err, ErrExpiredToken)
	})
}

package app

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gatherhq/api/pkg/domain/shared"
	"github.com/gatherhq/api/pkg/domain/space"
	"github.com/gatherhq/api/pkg/jwt"
	"github.com/gatherhq/api/pkg/logger"
)

func newAuthService(env *testEnv) *AuthService {
	tokens := jwt.NewGenerator(jwt.TokenConfig{
		Secret:               "test-secret-test-secret-test-secret",
		Issuer:               "gather-test",
		AccessTokenDuration:  15 * time.Minute,
		RefreshTokenDuration: 24 * time.Hour,
	})
	return NewAuthService(env.userRepo, env.spaces, tokens, 8, logger.Nop())
}

func TestAuthService_Register(t *testing.T) {
	env := newTestEnv(t)
	svc := newAuthService(env)
	ctx := context.Background()

	u, err := svc.Register(ctx, RegisterInput{
		Email:    "alice@example.com",
		Name:     "Alice",
		Password: "correct horse battery",
	})
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", u.Email())
	assert.NotEqual(t, "correct horse battery", u.PasswordHash())
	assert.False(t, u.IsPlatformAdmin())
}

func TestAuthService_Register_AutoJoin(t *testing.T) {
	env := newTestEnv(t)
	svc := newAuthService(env)
	ctx := context.Background()
	creator := env.seedUser(t, false)

	open, err := env.spaces.Create(ctx, CreateSpaceInput{
		Name:       "Town Square",
		Slug:       "town-square",
		Visibility: "public",
		AutoJoin:   true,
	}, creator.ID())
	require.NoError(t, err)
	closed := env.seedSpace(t, space.VisibilityPublic, "opt-in", creator.ID())

	u, err := svc.Register(ctx, RegisterInput{
		Email:    "bob@example.com",
		Name:     "Bob",
		Password: "longenoughpassword",
	})
	require.NoError(t, err)

	_, err = env.repo.GetMembership(ctx, u.ID(), open.ID())
	assert.NoError(t, err)
	_, err = env.repo.GetMembership(ctx, u.ID(), closed.ID())
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestAuthService_Register_Errors(t *testing.T) {
	env := newTestEnv(t)
	svc := newAuthService(env)
	ctx := context.Background()

	t.Run("short password", func(t *testing.T) {
		_, err := svc.Register(ctx, RegisterInput{
			Email:    "short@example.com",
			Name:     "Short",
			Password: "seven77",
		})
		assert.ErrorIs(t, err, shared.ErrValidation)
	})

	t.Run("duplicate email", func(t *testing.T) {
		_, err := svc.Register(ctx, RegisterInput{
			Email:    "dup@example.com",
			Name:     "First",
			Password: "longenoughpassword",
		})
		require.NoError(t, err)

		_, err = svc.Register(ctx, RegisterInput{
			Email:    "dup@example.com",
			Name:     "Second",
			Password: "longenoughpassword",
		})
		assert.ErrorIs(t, err, shared.ErrAlreadyExists)
	})
}

func TestAuthService_Login(t *testing.T) {
	env := newTestEnv(t)
	svc := newAuthService(env)
	ctx := context.Background()

	_, err := svc.Register(ctx, RegisterInput{
		Email:    "carol@example.com",
		Name:     "Carol",
		Password: "longenoughpassword",
	})
	require.NoError(t, err)

	u, pair, err := svc.Login(ctx, LoginInput{
		Email:    "carol@example.com",
		Password: "longenoughpassword",
	})
	require.NoError(t, err)
	assert.Equal(t, "carol@example.com", u.Email())
	assert.NotEmpty(t, pair.AccessToken)
	assert.NotEmpty(t, pair.RefreshToken)
	assert.True(t, pair.AccessTokenExpiresAt.After(time.Now()))
}

func TestAuthService_Login_BadCredentials(t *testing.T) {
	env := newTestEnv(t)
	svc := newAuthService(env)
	ctx := context.Background()

	_, err := svc.Register(ctx, RegisterInput{
		Email:    "dave@example.com",
		Name:     "Dave",
		Password: "longenoughpassword",
	})
	require.NoError(t, err)

	t.Run("wrong password", func(t *testing.T) {
		_, _, err := svc.Login(ctx, LoginInput{
			Email:    "dave@example.com",
			Password: "wrong password",
		})
		assert.ErrorIs(t, err, shared.ErrUnauthorized)
	})

	t.Run("unknown email", func(t *testing.T) {
		_, _, err := svc.Login(ctx, LoginInput{
			Email:    "nobody@example.com",
			Password: "longenoughpassword",
		})
		assert.ErrorIs(t, err, shared.ErrUnauthorized)
	})
}

func TestAuthService_Refresh(t *testing.T) {
	env := newTestEnv(t)
	svc := newAuthService(env)
	ctx := context.Background()

	u, err := svc.Register(ctx, RegisterInput{
		Email:    "erin@example.com",
		Name:     "Erin",
		Password: "longenoughpassword",
	})
	require.NoError(t, err)

	_, pair, err := svc.Login(ctx, LoginInput{
		Email:    "erin@example.com",
		Password: "longenoughpassword",
	})
	require.NoError(t, err)

	fresh, err := svc.Refresh(ctx, pair.RefreshToken)
	require.NoError(t, err)
	assert.NotEmpty(t, fresh.AccessToken)

	t.Run("access token is not a refresh token", func(t *testing.T) {
		_, err := svc.Refresh(ctx, pair.AccessToken)
		assert.ErrorIs(t, err, shared.ErrUnauthorized)
	})

	t.Run("garbage token", func(t *testing.T) {
		_, err := svc.Refresh(ctx, "not-a-token")
		assert.ErrorIs(t, err, shared.ErrUnauthorized)
	})

	t.Run("admin flag is re-read from the store", func(t *testing.T) {
		u.GrantPlatformAdmin()
		require.NoError(t, env.userRepo.Update(ctx, u))

		refreshed, err := svc.Refresh(ctx, pair.RefreshToken)
		require.NoError(t, err)

		tokens := jwt.NewGenerator(jwt.TokenConfig{
			Secret: "test-secret-test-secret-test-secret",
			Issuer: "gather-test",
		})
		claims, err := tokens.ValidateAccessToken(refreshed.AccessToken)
		require.NoError(t, err)
		assert.True(t, claims.PlatformAdmin)
	})
}

func TestAuthService_GetUser(t *testing.T) {
	env := newTestEnv(t)
	svc := newAuthService(env)
	ctx := context.Background()
	u := env.seedUser(t, false)

	got, err := svc.GetUser(ctx, u.ID())
	require.NoError(t, err)
	assert.True(t, got.ID().Equals(u.ID()))

	_, err = svc.GetUser(ctx, shared.NewID())
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

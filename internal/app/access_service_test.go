package app

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gatherhq/api/pkg/domain/shared"
	"github.com/gatherhq/api/pkg/domain/space"
	"github.com/gatherhq/api/pkg/logger"
)

func newAccessService(env *testEnv) *AccessService {
	return NewAccessService(env.repo, env.userRepo, logger.Nop())
}

func TestAccessService_Check_InvalidAction(t *testing.T) {
	env := newTestEnv(t)
	svc := newAccessService(env)
	creator := env.seedUser(t, false)
	env.seedSpace(t, space.VisibilityPublic, "general", creator.ID())

	_, err := svc.Check(context.Background(), "general", creator.ID(), space.Action("delete"))
	assert.ErrorIs(t, err, shared.ErrValidation)
}

func TestAccessService_Check_UnknownSpace(t *testing.T) {
	env := newTestEnv(t)
	svc := newAccessService(env)
	actor := env.seedUser(t, false)

	_, err := svc.Check(context.Background(), "no-such-space", actor.ID(), space.ActionView)
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestAccessService_Check_NonMember(t *testing.T) {
	env := newTestEnv(t)
	svc := newAccessService(env)
	ctx := context.Background()
	creator := env.seedUser(t, false)
	outsider := env.seedUser(t, false)
	env.seedSpace(t, space.VisibilityPublic, "general", creator.ID())
	env.seedSpace(t, space.VisibilityPrivate, "club", creator.ID())
	env.seedSpace(t, space.VisibilitySecret, "hidden", creator.ID())

	tests := []struct {
		name    string
		ref     string
		action  space.Action
		allowed bool
		reason  space.DenyReason
	}{
		{"public view", "general", space.ActionView, true, space.DenyNone},
		{"public comment", "general", space.ActionComment, true, space.DenyNone},
		{"public post", "general", space.ActionPost, false, space.DenyMembershipRequired},
		{"private view", "club", space.ActionView, false, space.DenyMembershipRequired},
		{"secret view", "hidden", space.ActionView, false, space.DenyInviteRequired},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := svc.Check(ctx, tt.ref, outsider.ID(), tt.action)
			require.NoError(t, err)
			assert.Equal(t, tt.allowed, d.Allowed)
			assert.Equal(t, tt.reason, d.Reason)
		})
	}
}

func TestAccessService_Check_Member(t *testing.T) {
	env := newTestEnv(t)
	svc := newAccessService(env)
	ctx := context.Background()
	creator := env.seedUser(t, false)
	member := env.seedUser(t, false)
	sp := env.seedSpace(t, space.VisibilityPrivate, "club", creator.ID())
	joinAsMember(t, env, member, sp)

	for _, action := range []space.Action{space.ActionView, space.ActionPost, space.ActionComment, space.ActionReact} {
		d, err := svc.Check(ctx, "club", member.ID(), action)
		require.NoError(t, err)
		assert.True(t, d.Allowed, "action %s", action)
	}
}

func TestAccessService_Check_BlockedMember(t *testing.T) {
	env := newTestEnv(t)
	svc := newAccessService(env)
	mod := newModerationService(env)
	ctx := context.Background()
	creator := env.seedUser(t, false)
	member := env.seedUser(t, false)
	sp := env.seedSpace(t, space.VisibilityPrivate, "club", creator.ID())
	joinAsMember(t, env, member, sp)

	_, err := mod.Block(ctx, "club", member.ID().String(), BlockMemberInput{BlockType: "soft"}, creator.ID())
	require.NoError(t, err)

	view, err := svc.Check(ctx, "club", member.ID(), space.ActionView)
	require.NoError(t, err)
	assert.True(t, view.Allowed)

	post, err := svc.Check(ctx, "club", member.ID(), space.ActionPost)
	require.NoError(t, err)
	assert.False(t, post.Allowed)
	assert.Equal(t, space.DenyBlocked, post.Reason)
}

func TestAccessService_Check_PlatformAdmin(t *testing.T) {
	env := newTestEnv(t)
	svc := newAccessService(env)
	ctx := context.Background()
	creator := env.seedUser(t, false)
	admin := env.seedUser(t, true)
	env.seedSpace(t, space.VisibilitySecret, "hidden", creator.ID())

	d, err := svc.Check(ctx, "hidden", admin.ID(), space.ActionPost)
	require.NoError(t, err)
	assert.True(t, d.Allowed)
}

func TestAccessService_GetSpaceForActor(t *testing.T) {
	env := newTestEnv(t)
	svc := newAccessService(env)
	ctx := context.Background()
	creator := env.seedUser(t, false)
	outsider := env.seedUser(t, false)
	admin := env.seedUser(t, true)
	env.seedSpace(t, space.VisibilityPrivate, "club", creator.ID())
	secret := env.seedSpace(t, space.VisibilitySecret, "hidden", creator.ID())

	t.Run("private is visible to outsiders", func(t *testing.T) {
		sp, err := svc.GetSpaceForActor(ctx, "club", outsider.ID())
		require.NoError(t, err)
		assert.Equal(t, "club", sp.Slug())
	})

	t.Run("secret answers not found to outsiders", func(t *testing.T) {
		_, err := svc.GetSpaceForActor(ctx, "hidden", outsider.ID())
		assert.ErrorIs(t, err, shared.ErrNotFound)
	})

	t.Run("secret is visible to its members", func(t *testing.T) {
		sp, err := svc.GetSpaceForActor(ctx, "hidden", creator.ID())
		require.NoError(t, err)
		assert.True(t, sp.ID().Equals(secret.ID()))
	})

	t.Run("secret is visible to platform admins", func(t *testing.T) {
		sp, err := svc.GetSpaceForActor(ctx, "hidden", admin.ID())
		require.NoError(t, err)
		assert.True(t, sp.ID().Equals(secret.ID()))
	})
}

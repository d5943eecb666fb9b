package app

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gatherhq/api/pkg/domain/notification"
	"github.com/gatherhq/api/pkg/domain/shared"
	"github.com/gatherhq/api/pkg/domain/space"
	"github.com/gatherhq/api/pkg/domain/user"
	"github.com/gatherhq/api/pkg/logger"
)

func newModerationService(env *testEnv) *ModerationService {
	return NewModerationService(env.repo, env.userRepo, logger.Nop())
}

// joinAsMember enrolls the user directly, bypassing the join workflow.
func joinAsMember(t *testing.T, env *testEnv, u *user.User, sp *space.Space) *space.Membership {
	t.Helper()
	m, err := space.NewMembership(u.ID(), sp.ID())
	require.NoError(t, err)
	require.NoError(t, env.repo.CreateMembership(context.Background(), m))
	return m
}

func TestModerationService_Promote(t *testing.T) {
	env := newTestEnv(t)
	svc := newModerationService(env)
	ctx := context.Background()
	creator := env.seedUser(t, false)
	member := env.seedUser(t, false)
	admin := env.seedUser(t, true)
	sp := env.seedSpace(t, space.VisibilityPrivate, "club", creator.ID())
	joinAsMember(t, env, member, sp)

	m, err := svc.Promote(ctx, "club", member.ID().String(), admin.ID())
	require.NoError(t, err)
	assert.Equal(t, space.RoleManager, m.Role())
	assert.Contains(t, env.repo.outboxEventTypes(), notification.EventMemberPromoted)

	// Promoting a manager again is a no-op.
	m, err = svc.Promote(ctx, "club", member.ID().String(), admin.ID())
	require.NoError(t, err)
	assert.Equal(t, space.RoleManager, m.Role())
}

func TestModerationService_Promote_RequiresPlatformAdmin(t *testing.T) {
	env := newTestEnv(t)
	svc := newModerationService(env)
	ctx := context.Background()
	creator := env.seedUser(t, false)
	member := env.seedUser(t, false)
	sp := env.seedSpace(t, space.VisibilityPrivate, "club", creator.ID())
	joinAsMember(t, env, member, sp)

	// Even the space's own manager cannot change roles.
	_, err := svc.Promote(ctx, "club", member.ID().String(), creator.ID())
	assert.ErrorIs(t, err, shared.ErrForbidden)
}

func TestModerationService_Promote_PlatformAdminTarget(t *testing.T) {
	env := newTestEnv(t)
	svc := newModerationService(env)
	ctx := context.Background()
	creator := env.seedUser(t, false)
	adminMember := env.seedUser(t, true)
	actor := env.seedUser(t, true)
	sp := env.seedSpace(t, space.VisibilityPrivate, "club", creator.ID())
	joinAsMember(t, env, adminMember, sp)

	// Platform admins keep their member role; their access never depends
	// on it.
	m, err := svc.Promote(ctx, "club", adminMember.ID().String(), actor.ID())
	require.NoError(t, err)
	assert.Equal(t, space.RoleMember, m.Role())
}

func TestModerationService_Demote(t *testing.T) {
	env := newTestEnv(t)
	svc := newModerationService(env)
	ctx := context.Background()
	creator := env.seedUser(t, false)
	admin := env.seedUser(t, true)
	env.seedSpace(t, space.VisibilityPrivate, "club", creator.ID())

	m, err := svc.Demote(ctx, "club", creator.ID().String(), admin.ID())
	require.NoError(t, err)
	assert.Equal(t, space.RoleMember, m.Role())
	assert.Contains(t, env.repo.outboxEventTypes(), notification.EventMemberDemoted)

	// Demoting a plain member is a no-op.
	m, err = svc.Demote(ctx, "club", creator.ID().String(), admin.ID())
	require.NoError(t, err)
	assert.Equal(t, space.RoleMember, m.Role())
}

func TestModerationService_Block(t *testing.T) {
	env := newTestEnv(t)
	svc := newModerationService(env)
	ctx := context.Background()
	creator := env.seedUser(t, false)
	member := env.seedUser(t, false)
	sp := env.seedSpace(t, space.VisibilityPrivate, "club", creator.ID())
	joinAsMember(t, env, member, sp)

	m, err := svc.Block(ctx, "club", member.ID().String(), BlockMemberInput{
		BlockType: "soft",
		Reason:    "spam",
	}, creator.ID())
	require.NoError(t, err)
	require.NotNil(t, m.Block())
	assert.Equal(t, space.BlockSoft, m.Block().Type())
	assert.Contains(t, env.repo.outboxEventTypes(), notification.EventMemberBlocked)
}

func TestModerationService_Block_WithExpiry(t *testing.T) {
	env := newTestEnv(t)
	svc := newModerationService(env)
	ctx := context.Background()
	creator := env.seedUser(t, false)
	member := env.seedUser(t, false)
	sp := env.seedSpace(t, space.VisibilityPrivate, "club", creator.ID())
	joinAsMember(t, env, member, sp)

	expires := time.Now().UTC().Add(24 * time.Hour)
	m, err := svc.Block(ctx, "club", member.ID().String(), BlockMemberInput{
		BlockType: "hard",
		ExpiresAt: &expires,
	}, creator.ID())
	require.NoError(t, err)
	require.NotNil(t, m.Block())
	require.NotNil(t, m.Block().ExpiresAt())
	assert.True(t, m.Block().ExpiresAt().Equal(expires))
}

func TestModerationService_Block_Errors(t *testing.T) {
	env := newTestEnv(t)
	svc := newModerationService(env)
	ctx := context.Background()
	creator := env.seedUser(t, false)
	member := env.seedUser(t, false)
	adminMember := env.seedUser(t, true)
	sp := env.seedSpace(t, space.VisibilityPrivate, "club", creator.ID())
	joinAsMember(t, env, member, sp)
	joinAsMember(t, env, adminMember, sp)

	t.Run("platform admin target", func(t *testing.T) {
		_, err := svc.Block(ctx, "club", adminMember.ID().String(), BlockMemberInput{
			BlockType: "soft",
		}, creator.ID())
		assert.ErrorIs(t, err, space.ErrCannotBlockAdmin)
	})

	t.Run("non-manager actor", func(t *testing.T) {
		_, err := svc.Block(ctx, "club", member.ID().String(), BlockMemberInput{
			BlockType: "soft",
		}, member.ID())
		assert.ErrorIs(t, err, shared.ErrForbidden)
	})

	t.Run("invalid block type", func(t *testing.T) {
		_, err := svc.Block(ctx, "club", member.ID().String(), BlockMemberInput{
			BlockType: "permanent",
		}, creator.ID())
		assert.ErrorIs(t, err, shared.ErrValidation)
	})

	t.Run("non-member target", func(t *testing.T) {
		outsider := env.seedUser(t, false)
		_, err := svc.Block(ctx, "club", outsider.ID().String(), BlockMemberInput{
			BlockType: "soft",
		}, creator.ID())
		assert.ErrorIs(t, err, shared.ErrNotFound)
	})
}

func TestModerationService_Unblock(t *testing.T) {
	env := newTestEnv(t)
	svc := newModerationService(env)
	ctx := context.Background()
	creator := env.seedUser(t, false)
	member := env.seedUser(t, false)
	sp := env.seedSpace(t, space.VisibilityPrivate, "club", creator.ID())
	joinAsMember(t, env, member, sp)

	_, err := svc.Block(ctx, "club", member.ID().String(), BlockMemberInput{BlockType: "hard"}, creator.ID())
	require.NoError(t, err)

	m, err := svc.Unblock(ctx, "club", member.ID().String(), creator.ID())
	require.NoError(t, err)
	assert.Nil(t, m.Block())
	assert.True(t, m.IsActive(time.Now().UTC()))
	assert.Contains(t, env.repo.outboxEventTypes(), notification.EventMemberUnblocked)

	// Unblocking an active membership is a no-op.
	m, err = svc.Unblock(ctx, "club", member.ID().String(), creator.ID())
	require.NoError(t, err)
	assert.Nil(t, m.Block())
}

func TestModerationService_Remove(t *testing.T) {
	env := newTestEnv(t)
	svc := newModerationService(env)
	ctx := context.Background()
	creator := env.seedUser(t, false)
	member := env.seedUser(t, false)
	sp := env.seedSpace(t, space.VisibilityPrivate, "club", creator.ID())
	joinAsMember(t, env, member, sp)

	require.NoError(t, svc.Remove(ctx, "club", member.ID().String(), creator.ID()))

	_, err := env.repo.GetMembership(ctx, member.ID(), sp.ID())
	assert.ErrorIs(t, err, shared.ErrNotFound)
	assert.Contains(t, env.repo.outboxEventTypes(), notification.EventMemberRemoved)

	// A removed member may rejoin from scratch later.
	rejoined := joinAsMember(t, env, member, sp)
	assert.Equal(t, space.RoleMember, rejoined.Role())
}

func TestModerationService_Remove_RequiresManager(t *testing.T) {
	env := newTestEnv(t)
	svc := newModerationService(env)
	ctx := context.Background()
	creator := env.seedUser(t, false)
	member := env.seedUser(t, false)
	sp := env.seedSpace(t, space.VisibilityPrivate, "club", creator.ID())
	joinAsMember(t, env, member, sp)

	err := svc.Remove(ctx, "club", creator.ID().String(), member.ID())
	assert.ErrorIs(t, err, shared.ErrForbidden)
}

package app

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gatherhq/api/pkg/domain/notification"
	"github.com/gatherhq/api/pkg/domain/shared"
	"github.com/gatherhq/api/pkg/domain/space"
	"github.com/gatherhq/api/pkg/domain/user"
	"github.com/gatherhq/api/pkg/logger"
	"github.com/gatherhq/api/pkg/pagination"
)

// =============================================================================
// Test Helpers
// =============================================================================

type testEnv struct {
	repo     *fakeSpaceRepo
	userRepo *fakeUserRepo
	spaces   *SpaceService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	repo := newFakeSpaceRepo()
	userRepo := newFakeUserRepo()
	return &testEnv{
		repo:     repo,
		userRepo: userRepo,
		spaces:   NewSpaceService(repo, userRepo, logger.Nop()),
	}
}

func (e *testEnv) seedUser(t *testing.T, admin bool) *user.User {
	t.Helper()
	u, err := user.New(shared.NewID().String()+"@example.com", "Test User", "hash")
	require.NoError(t, err)
	if admin {
		u.GrantPlatformAdmin()
	}
	e.userRepo.addUser(u)
	return u
}

func (e *testEnv) seedSpace(t *testing.T, visibility space.Visibility, slug string, creatorID shared.ID) *space.Space {
	t.Helper()
	sp, err := e.spaces.Create(context.Background(), CreateSpaceInput{
		Name:       "Space " + slug,
		Slug:       slug,
		Visibility: visibility.String(),
	}, creatorID)
	require.NoError(t, err)
	return sp
}

// =============================================================================
// Space Service Tests
// =============================================================================

func TestSpaceService_Create(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	creator := env.seedUser(t, false)

	sp, err := env.spaces.Create(ctx, CreateSpaceInput{
		Name:       "Book Club",
		Slug:       "book-club",
		Visibility: "private",
		AutoJoin:   false,
	}, creator.ID())
	require.NoError(t, err)

	// The creator enters as the first manager.
	m, err := env.repo.GetMembership(ctx, creator.ID(), sp.ID())
	require.NoError(t, err)
	assert.Equal(t, space.RoleManager, m.Role())

	assert.Contains(t, env.repo.outboxEventTypes(), notification.EventMemberJoined)
}

func TestSpaceService_Create_DuplicateSlug(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	creator := env.seedUser(t, false)
	env.seedSpace(t, space.VisibilityPublic, "taken", creator.ID())

	_, err := env.spaces.Create(ctx, CreateSpaceInput{
		Name:       "Another",
		Slug:       "taken",
		Visibility: "public",
	}, creator.ID())
	assert.ErrorIs(t, err, shared.ErrAlreadyExists)
}

func TestSpaceService_Create_InvalidVisibility(t *testing.T) {
	env := newTestEnv(t)
	creator := env.seedUser(t, false)

	_, err := env.spaces.Create(context.Background(), CreateSpaceInput{
		Name:       "X",
		Slug:       "x",
		Visibility: "hidden",
	}, creator.ID())
	assert.ErrorIs(t, err, shared.ErrValidation)
}

func TestSpaceService_Get_BySlugAndID(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	creator := env.seedUser(t, false)
	sp := env.seedSpace(t, space.VisibilityPublic, "general", creator.ID())

	bySlug, err := env.spaces.Get(ctx, "general")
	require.NoError(t, err)
	assert.Equal(t, sp.ID(), bySlug.ID())

	byID, err := env.spaces.Get(ctx, sp.ID().String())
	require.NoError(t, err)
	assert.Equal(t, sp.ID(), byID.ID())

	_, err = env.spaces.Get(ctx, "missing")
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestSpaceService_Update_RequiresManager(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	creator := env.seedUser(t, false)
	outsider := env.seedUser(t, false)
	env.seedSpace(t, space.VisibilityPublic, "general", creator.ID())

	name := "Renamed"
	_, err := env.spaces.Update(ctx, "general", UpdateSpaceInput{Name: &name}, outsider.ID())
	assert.ErrorIs(t, err, shared.ErrForbidden)

	sp, err := env.spaces.Update(ctx, "general", UpdateSpaceInput{Name: &name}, creator.ID())
	require.NoError(t, err)
	assert.Equal(t, "Renamed", sp.Name())
}

func TestSpaceService_Update_PlatformAdminBypass(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	creator := env.seedUser(t, false)
	admin := env.seedUser(t, true)
	env.seedSpace(t, space.VisibilityPrivate, "general", creator.ID())

	visibility := "secret"
	sp, err := env.spaces.Update(ctx, "general", UpdateSpaceInput{Visibility: &visibility}, admin.ID())
	require.NoError(t, err)
	assert.Equal(t, space.VisibilitySecret, sp.Visibility())
}

func TestSpaceService_VisibilityChangeKeepsMembers(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	creator := env.seedUser(t, false)
	member := env.seedUser(t, false)
	sp := env.seedSpace(t, space.VisibilityPublic, "general", creator.ID())

	_, err := env.spaces.Join(ctx, "general", member.ID())
	require.NoError(t, err)

	visibility := "secret"
	_, err = env.spaces.Update(ctx, "general", UpdateSpaceInput{Visibility: &visibility}, creator.ID())
	require.NoError(t, err)

	m, err := env.repo.GetMembership(ctx, member.ID(), sp.ID())
	require.NoError(t, err)
	assert.Equal(t, space.RoleMember, m.Role())
}

func TestSpaceService_Join(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	creator := env.seedUser(t, false)
	joiner := env.seedUser(t, false)
	env.seedSpace(t, space.VisibilityPublic, "general", creator.ID())

	m, err := env.spaces.Join(ctx, "general", joiner.ID())
	require.NoError(t, err)
	assert.Equal(t, space.RoleMember, m.Role())

	// Joining twice conflicts.
	_, err = env.spaces.Join(ctx, "general", joiner.ID())
	assert.ErrorIs(t, err, space.ErrAlreadyMember)
}

func TestSpaceService_Join_PrivateNeedsRequest(t *testing.T) {
	env := newTestEnv(t)
	creator := env.seedUser(t, false)
	joiner := env.seedUser(t, false)
	env.seedSpace(t, space.VisibilityPrivate, "club", creator.ID())

	_, err := env.spaces.Join(context.Background(), "club", joiner.ID())
	assert.ErrorIs(t, err, space.ErrMembershipRequired)
}

func TestSpaceService_Join_SecretAnswersNotFound(t *testing.T) {
	env := newTestEnv(t)
	creator := env.seedUser(t, false)
	joiner := env.seedUser(t, false)
	env.seedSpace(t, space.VisibilitySecret, "hidden", creator.ID())

	_, err := env.spaces.Join(context.Background(), "hidden", joiner.ID())
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestSpaceService_Leave_Idempotent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	creator := env.seedUser(t, false)
	member := env.seedUser(t, false)
	env.seedSpace(t, space.VisibilityPublic, "general", creator.ID())

	_, err := env.spaces.Join(ctx, "general", member.ID())
	require.NoError(t, err)

	require.NoError(t, env.spaces.Leave(ctx, "general", member.ID()))

	// Leaving again is a no-op, not an error.
	require.NoError(t, env.spaces.Leave(ctx, "general", member.ID()))
}

func TestSpaceService_AutoJoinForNewUser(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	creator := env.seedUser(t, false)
	newcomer := env.seedUser(t, false)

	auto, err := env.spaces.Create(ctx, CreateSpaceInput{
		Name: "Town Square", Slug: "town-square", Visibility: "public", AutoJoin: true,
	}, creator.ID())
	require.NoError(t, err)
	manual := env.seedSpace(t, space.VisibilityPublic, "general", creator.ID())

	require.NoError(t, env.spaces.AutoJoinForNewUser(ctx, newcomer.ID()))

	_, err = env.repo.GetMembership(ctx, newcomer.ID(), auto.ID())
	assert.NoError(t, err)
	_, err = env.repo.GetMembership(ctx, newcomer.ID(), manual.ID())
	assert.ErrorIs(t, err, shared.ErrNotFound)

	// A second pass tolerates the existing membership.
	require.NoError(t, env.spaces.AutoJoinForNewUser(ctx, newcomer.ID()))
}

func TestSpaceService_ListMembers_Gated(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	creator := env.seedUser(t, false)
	outsider := env.seedUser(t, false)
	admin := env.seedUser(t, true)
	env.seedSpace(t, space.VisibilityPrivate, "club", creator.ID())
	env.seedSpace(t, space.VisibilitySecret, "hidden", creator.ID())

	page := pagination.New(1, 20)

	_, err := env.spaces.ListMembers(ctx, "club", outsider.ID(), page)
	assert.ErrorIs(t, err, space.ErrMembershipRequired)

	// Secret spaces conceal their existence from outsiders.
	_, err = env.spaces.ListMembers(ctx, "hidden", outsider.ID(), page)
	assert.ErrorIs(t, err, shared.ErrNotFound)

	members, err := env.spaces.ListMembers(ctx, "club", creator.ID(), page)
	require.NoError(t, err)
	assert.Len(t, members, 1)

	_, err = env.spaces.ListMembers(ctx, "hidden", admin.ID(), page)
	assert.NoError(t, err)
}

func TestSpaceService_MemberCount(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	creator := env.seedUser(t, false)
	member := env.seedUser(t, false)
	env.seedSpace(t, space.VisibilityPublic, "general", creator.ID())

	count, err := env.spaces.MemberCount(ctx, "general")
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	_, err = env.spaces.Join(ctx, "general", member.ID())
	require.NoError(t, err)

	count, err = env.spaces.MemberCount(ctx, "general")
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
}

func TestSpaceService_ListForUser(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	creator := env.seedUser(t, false)
	env.seedSpace(t, space.VisibilityPublic, "one", creator.ID())
	env.seedSpace(t, space.VisibilityPrivate, "two", creator.ID())

	out, err := env.spaces.ListForUser(ctx, creator.ID())
	require.NoError(t, err)
	assert.Len(t, out, 2)
	for _, sw := range out {
		assert.Equal(t, space.RoleManager, sw.Role)
		assert.Equal(t, space.StatusActive, sw.Status)
	}
}

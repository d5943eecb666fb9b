package space

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gatherhq/api/pkg/domain/shared"
)

// =============================================================================
// Membership Tests
// =============================================================================

func TestNewMembership(t *testing.T) {
	userID := shared.NewID()
	spaceID := shared.NewID()

	m, err := NewMembership(userID, spaceID)
	require.NoError(t, err)
	assert.Equal(t, userID, m.UserID())
	assert.Equal(t, spaceID, m.SpaceID())
	assert.Equal(t, RoleMember, m.Role())
	assert.Nil(t, m.Block())
	assert.Equal(t, StatusActive, m.Status(time.Now().UTC()))
}

func TestNewManagerMembership(t *testing.T) {
	m, err := NewManagerMembership(shared.NewID(), shared.NewID())
	require.NoError(t, err)
	assert.Equal(t, RoleManager, m.Role())
	assert.True(t, m.IsManager())
}

func TestNewMembership_ZeroIDs(t *testing.T) {
	_, err := NewMembership(shared.ID{}, shared.NewID())
	assert.ErrorIs(t, err, shared.ErrValidation)

	_, err = NewMembership(shared.NewID(), shared.ID{})
	assert.ErrorIs(t, err, shared.ErrValidation)
}

func TestMembership_SoftBlock(t *testing.T) {
	m, err := NewMembership(shared.NewID(), shared.NewID())
	require.NoError(t, err)

	block, err := NewBlock(BlockSoft, nil, shared.NewID())
	require.NoError(t, err)
	require.NoError(t, m.ApplyBlock(block))

	now := time.Now().UTC()
	assert.Equal(t, StatusBlocked, m.Status(now))
	assert.True(t, m.CanView(now), "soft block keeps read access")
	assert.False(t, m.CanWrite(now), "soft block removes write access")
}

func TestMembership_HardBlock(t *testing.T) {
	m, err := NewMembership(shared.NewID(), shared.NewID())
	require.NoError(t, err)

	block, err := NewBlock(BlockHard, nil, shared.NewID())
	require.NoError(t, err)
	require.NoError(t, m.ApplyBlock(block))

	now := time.Now().UTC()
	assert.Equal(t, StatusBlocked, m.Status(now))
	assert.False(t, m.CanView(now), "hard block removes read access")
	assert.False(t, m.CanWrite(now))
}

func TestMembership_ExpiredBlockCountsAsLifted(t *testing.T) {
	m, err := NewMembership(shared.NewID(), shared.NewID())
	require.NoError(t, err)

	expiry := time.Now().UTC().Add(time.Hour)
	block, err := NewBlock(BlockHard, &expiry, shared.NewID())
	require.NoError(t, err)
	require.NoError(t, m.ApplyBlock(block))

	before := expiry.Add(-time.Minute)
	assert.Equal(t, StatusBlocked, m.Status(before))
	assert.False(t, m.CanView(before))

	// At and past the expiry instant the block no longer applies, even
	// though the sweep has not cleared it yet.
	assert.Equal(t, StatusActive, m.Status(expiry))
	after := expiry.Add(time.Minute)
	assert.Equal(t, StatusActive, m.Status(after))
	assert.True(t, m.CanView(after))
	assert.True(t, m.CanWrite(after))
}

func TestMembership_LiftBlock(t *testing.T) {
	m, err := NewMembership(shared.NewID(), shared.NewID())
	require.NoError(t, err)

	block, err := NewBlock(BlockSoft, nil, shared.NewID())
	require.NoError(t, err)
	require.NoError(t, m.ApplyBlock(block))

	m.LiftBlock()
	assert.Nil(t, m.Block())
	assert.Equal(t, StatusActive, m.Status(time.Now().UTC()))

	// Lifting an already active membership is a no-op.
	m.LiftBlock()
	assert.Nil(t, m.Block())
}

func TestMembership_PromoteDemote(t *testing.T) {
	m, err := NewMembership(shared.NewID(), shared.NewID())
	require.NoError(t, err)

	require.NoError(t, m.PromoteToManager())
	assert.Equal(t, RoleManager, m.Role())

	m.DemoteToMember()
	assert.Equal(t, RoleMember, m.Role())
}

func TestMembership_PromoteBlockedMemberFails(t *testing.T) {
	m, err := NewMembership(shared.NewID(), shared.NewID())
	require.NoError(t, err)

	block, err := NewBlock(BlockSoft, nil, shared.NewID())
	require.NoError(t, err)
	require.NoError(t, m.ApplyBlock(block))

	err = m.PromoteToManager()
	assert.ErrorIs(t, err, ErrInvalidState)
	assert.Equal(t, RoleMember, m.Role())
}

// =============================================================================
// Block Tests
// =============================================================================

func TestNewBlock_ValidationErrors(t *testing.T) {
	past := time.Now().UTC().Add(-time.Hour)

	_, err := NewBlock(BlockType("medium"), nil, shared.NewID())
	assert.ErrorIs(t, err, shared.ErrValidation)

	_, err = NewBlock(BlockSoft, nil, shared.ID{})
	assert.ErrorIs(t, err, shared.ErrValidation)

	_, err = NewBlock(BlockSoft, &past, shared.NewID())
	assert.ErrorIs(t, err, shared.ErrValidation)
}

func TestParseBlockType(t *testing.T) {
	bt, ok := ParseBlockType("soft")
	assert.True(t, ok)
	assert.Equal(t, BlockSoft, bt)

	bt, ok = ParseBlockType("hard")
	assert.True(t, ok)
	assert.Equal(t, BlockHard, bt)

	_, ok = ParseBlockType("permanent")
	assert.False(t, ok)
}

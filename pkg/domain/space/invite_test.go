package space

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gatherhq/api/pkg/domain/shared"
)

// =============================================================================
// Invite Tests
// =============================================================================

func TestNewInvite_Valid(t *testing.T) {
	spaceID := shared.NewID()
	creator := shared.NewID()
	maxUses := 5
	expiry := time.Now().UTC().Add(24 * time.Hour)

	inv, err := NewInvite(spaceID, &maxUses, &expiry, creator)
	require.NoError(t, err)
	assert.Len(t, inv.Code(), 26)
	assert.Equal(t, spaceID, inv.SpaceID())
	assert.Equal(t, 0, inv.UsesCount())
	assert.True(t, inv.Active())
	assert.NoError(t, inv.RedeemableAt(time.Now().UTC()))
}

func TestNewInvite_UniqueCodes(t *testing.T) {
	spaceID := shared.NewID()
	creator := shared.NewID()

	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		inv, err := NewInvite(spaceID, nil, nil, creator)
		require.NoError(t, err)
		assert.False(t, seen[inv.Code()])
		seen[inv.Code()] = true
	}
}

func TestNewInvite_ValidationErrors(t *testing.T) {
	spaceID := shared.NewID()
	creator := shared.NewID()
	zero := 0
	past := time.Now().UTC().Add(-time.Hour)

	_, err := NewInvite(shared.ID{}, nil, nil, creator)
	assert.ErrorIs(t, err, shared.ErrValidation)

	_, err = NewInvite(spaceID, nil, nil, shared.ID{})
	assert.ErrorIs(t, err, shared.ErrValidation)

	_, err = NewInvite(spaceID, &zero, nil, creator)
	assert.ErrorIs(t, err, shared.ErrValidation)

	_, err = NewInvite(spaceID, nil, &past, creator)
	assert.ErrorIs(t, err, shared.ErrValidation)
}

func TestInvite_RedeemableAt(t *testing.T) {
	now := time.Now().UTC()
	spaceID := shared.NewID()
	creator := shared.NewID()

	t.Run("inactive", func(t *testing.T) {
		inv, err := NewInvite(spaceID, nil, nil, creator)
		require.NoError(t, err)
		inv.Deactivate()
		assert.ErrorIs(t, inv.RedeemableAt(now), ErrInviteInactive)

		// Deactivation is idempotent.
		inv.Deactivate()
		assert.False(t, inv.Active())
	})

	t.Run("expired", func(t *testing.T) {
		expiry := now.Add(time.Hour)
		inv, err := NewInvite(spaceID, nil, &expiry, creator)
		require.NoError(t, err)

		assert.NoError(t, inv.RedeemableAt(expiry.Add(-time.Minute)))
		assert.ErrorIs(t, inv.RedeemableAt(expiry), ErrInviteExpired)
		assert.ErrorIs(t, inv.RedeemableAt(expiry.Add(time.Minute)), ErrInviteExpired)
	})

	t.Run("exhausted", func(t *testing.T) {
		maxUses := 2
		inv := ReconstituteInvite("CODE", spaceID, &maxUses, 2, nil, true, creator, now)
		assert.True(t, inv.IsExhausted())
		assert.ErrorIs(t, inv.RedeemableAt(now), ErrInviteExhausted)
	})

	t.Run("inactive wins over expired", func(t *testing.T) {
		expiry := now.Add(-time.Hour)
		inv := ReconstituteInvite("CODE", spaceID, nil, 0, &expiry, false, creator, now)
		assert.ErrorIs(t, inv.RedeemableAt(now), ErrInviteInactive)
	})
}

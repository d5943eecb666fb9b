package space

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gatherhq/api/pkg/domain/shared"
)

// =============================================================================
// Join Request Tests
// =============================================================================

func TestNewJoinRequest(t *testing.T) {
	userID := shared.NewID()
	spaceID := shared.NewID()

	r, err := NewJoinRequest(userID, spaceID, "let me in")
	require.NoError(t, err)
	assert.Equal(t, RequestPending, r.Status())
	assert.True(t, r.IsPending())
	assert.Nil(t, r.DecidedAt())
	assert.Nil(t, r.DecidedBy())
}

func TestNewJoinRequest_MessageTooLong(t *testing.T) {
	_, err := NewJoinRequest(shared.NewID(), shared.NewID(), strings.Repeat("x", 1001))
	assert.ErrorIs(t, err, shared.ErrValidation)

	_, err = NewJoinRequest(shared.NewID(), shared.NewID(), strings.Repeat("x", 1000))
	assert.NoError(t, err)
}

func TestJoinRequest_Approve(t *testing.T) {
	r, err := NewJoinRequest(shared.NewID(), shared.NewID(), "")
	require.NoError(t, err)

	manager := shared.NewID()
	require.NoError(t, r.Approve(manager))
	assert.Equal(t, RequestApproved, r.Status())
	require.NotNil(t, r.DecidedBy())
	assert.Equal(t, manager, *r.DecidedBy())
	assert.NotNil(t, r.DecidedAt())

	// Re-approving is a no-op so retried calls stay idempotent.
	firstDecidedAt := *r.DecidedAt()
	require.NoError(t, r.Approve(shared.NewID()))
	assert.Equal(t, manager, *r.DecidedBy())
	assert.Equal(t, firstDecidedAt, *r.DecidedAt())
}

func TestJoinRequest_RejectThenApproveFails(t *testing.T) {
	r, err := NewJoinRequest(shared.NewID(), shared.NewID(), "")
	require.NoError(t, err)

	require.NoError(t, r.Reject(shared.NewID()))
	assert.Equal(t, RequestRejected, r.Status())

	err = r.Approve(shared.NewID())
	assert.ErrorIs(t, err, ErrInvalidState)

	err = r.Reject(shared.NewID())
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestJoinRequest_Cancel(t *testing.T) {
	requester := shared.NewID()
	r, err := NewJoinRequest(requester, shared.NewID(), "")
	require.NoError(t, err)

	err = r.Cancel(shared.NewID())
	assert.ErrorIs(t, err, shared.ErrForbidden)
	assert.True(t, r.IsPending())

	require.NoError(t, r.Cancel(requester))
	assert.Equal(t, RequestCancelled, r.Status())
	require.NotNil(t, r.DecidedBy())
	assert.Equal(t, requester, *r.DecidedBy())

	err = r.Cancel(requester)
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestRequestStatus_IsTerminal(t *testing.T) {
	assert.False(t, RequestPending.IsTerminal())
	assert.True(t, RequestApproved.IsTerminal())
	assert.True(t, RequestRejected.IsTerminal())
	assert.True(t, RequestCancelled.IsTerminal())
}

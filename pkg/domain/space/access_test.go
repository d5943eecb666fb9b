package space

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gatherhq/api/pkg/domain/shared"
)

// =============================================================================
// Access Decision Tests
// =============================================================================

func buildSpace(t *testing.T, visibility Visibility) *Space {
	t.Helper()
	sp, err := NewSpace("Test", "test", visibility, shared.NewID())
	require.NoError(t, err)
	return sp
}

func buildMembership(t *testing.T, sp *Space) *Membership {
	t.Helper()
	m, err := NewMembership(shared.NewID(), sp.ID())
	require.NoError(t, err)
	return m
}

func blockedMembership(t *testing.T, sp *Space, bt BlockType, expiresAt *time.Time) *Membership {
	t.Helper()
	m := buildMembership(t, sp)
	block, err := NewBlock(bt, expiresAt, shared.NewID())
	require.NoError(t, err)
	require.NoError(t, m.ApplyBlock(block))
	return m
}

func TestDecide_NonMember(t *testing.T) {
	now := time.Now().UTC()
	actor := Actor{ID: shared.NewID().String()}

	tests := []struct {
		name       string
		visibility Visibility
		action     Action
		allowed    bool
		reason     DenyReason
	}{
		{"public view", VisibilityPublic, ActionView, true, DenyNone},
		{"public comment", VisibilityPublic, ActionComment, true, DenyNone},
		{"public react", VisibilityPublic, ActionReact, true, DenyNone},
		{"public post needs membership", VisibilityPublic, ActionPost, false, DenyMembershipRequired},
		{"private view", VisibilityPrivate, ActionView, false, DenyMembershipRequired},
		{"private post", VisibilityPrivate, ActionPost, false, DenyMembershipRequired},
		{"secret view", VisibilitySecret, ActionView, false, DenyInviteRequired},
		{"secret comment", VisibilitySecret, ActionComment, false, DenyInviteRequired},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sp := buildSpace(t, tt.visibility)
			d := Decide(actor, sp, nil, tt.action, now)

			assert.Equal(t, tt.allowed, d.Allowed)
			assert.Equal(t, tt.reason, d.Reason)
		})
	}
}

func TestDecide_ActiveMember(t *testing.T) {
	now := time.Now().UTC()
	actor := Actor{ID: shared.NewID().String()}

	for _, visibility := range []Visibility{VisibilityPublic, VisibilityPrivate, VisibilitySecret} {
		sp := buildSpace(t, visibility)
		m := buildMembership(t, sp)

		for _, action := range []Action{ActionView, ActionPost, ActionComment, ActionReact} {
			d := Decide(actor, sp, m, action, now)
			assert.True(t, d.Allowed, "%s %s", visibility, action)
		}
	}
}

func TestDecide_SoftBlockedMember(t *testing.T) {
	now := time.Now().UTC()
	actor := Actor{ID: shared.NewID().String()}
	sp := buildSpace(t, VisibilityPrivate)
	m := blockedMembership(t, sp, BlockSoft, nil)

	d := Decide(actor, sp, m, ActionView, now)
	assert.True(t, d.Allowed, "soft block keeps view")

	for _, action := range []Action{ActionPost, ActionComment, ActionReact} {
		d := Decide(actor, sp, m, action, now)
		assert.False(t, d.Allowed, "%s", action)
		assert.Equal(t, DenyBlocked, d.Reason)
	}
}

func TestDecide_HardBlockedMember(t *testing.T) {
	now := time.Now().UTC()
	actor := Actor{ID: shared.NewID().String()}
	sp := buildSpace(t, VisibilityPublic)
	m := blockedMembership(t, sp, BlockHard, nil)

	for _, action := range []Action{ActionView, ActionPost, ActionComment, ActionReact} {
		d := Decide(actor, sp, m, action, now)
		assert.False(t, d.Allowed, "%s", action)
		assert.Equal(t, DenyBlocked, d.Reason)
	}
}

func TestDecide_ExpiredBlock(t *testing.T) {
	actor := Actor{ID: shared.NewID().String()}
	sp := buildSpace(t, VisibilityPrivate)

	expiry := time.Now().UTC().Add(time.Hour)
	m := blockedMembership(t, sp, BlockHard, &expiry)

	d := Decide(actor, sp, m, ActionPost, expiry.Add(-time.Minute))
	assert.False(t, d.Allowed)

	d = Decide(actor, sp, m, ActionPost, expiry.Add(time.Minute))
	assert.True(t, d.Allowed, "expired block is treated as lifted")
}

func TestDecide_PostsDisabled(t *testing.T) {
	now := time.Now().UTC()
	actor := Actor{ID: shared.NewID().String()}
	sp := buildSpace(t, VisibilityPublic)
	sp.SetAllowMemberPosts(false)
	m := buildMembership(t, sp)

	d := Decide(actor, sp, m, ActionPost, now)
	assert.False(t, d.Allowed)
	assert.Equal(t, DenyPostsDisabled, d.Reason)

	// Other writes are unaffected by the posting switch.
	d = Decide(actor, sp, m, ActionComment, now)
	assert.True(t, d.Allowed)
}

func TestDecide_PlatformAdminBypassesEverything(t *testing.T) {
	now := time.Now().UTC()
	admin := Actor{ID: shared.NewID().String(), PlatformAdmin: true}

	secret := buildSpace(t, VisibilitySecret)
	d := Decide(admin, secret, nil, ActionPost, now)
	assert.True(t, d.Allowed)

	blocked := blockedMembership(t, secret, BlockHard, nil)
	d = Decide(admin, secret, blocked, ActionView, now)
	assert.True(t, d.Allowed)
}

func TestParseAction(t *testing.T) {
	for _, s := range []string{"view", "post", "comment", "react"} {
		a, ok := ParseAction(s)
		assert.True(t, ok)
		assert.Equal(t, s, a.String())
	}

	_, ok := ParseAction("delete")
	assert.False(t, ok)
}

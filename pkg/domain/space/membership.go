package space

import (
	"fmt"
	"time"

	"github.com/gatherhq/api/pkg/domain/shared"
)

// Status is the effective standing of a membership.
type Status string

const (
	StatusActive  Status = "active"
	StatusBlocked Status = "blocked"
)

// String returns the string representation of the status.
func (s Status) String() string {
	return string(s)
}

// Membership represents a user's standing in a space. At most one membership
// exists per (user, space) pair; the store enforces this with a unique index.
type Membership struct {
	id        shared.ID
	userID    shared.ID
	spaceID   shared.ID
	role      Role
	block     *Block // nil when active
	joinedAt  time.Time
	updatedAt time.Time
}

// NewMembership creates a new active member-level Membership.
func NewMembership(userID, spaceID shared.ID) (*Membership, error) {
	return newMembershipWithRole(userID, spaceID, RoleMember)
}

// NewManagerMembership creates a membership with the manager role, used for
// space creators.
func NewManagerMembership(userID, spaceID shared.ID) (*Membership, error) {
	return newMembershipWithRole(userID, spaceID, RoleManager)
}

func newMembershipWithRole(userID, spaceID shared.ID, role Role) (*Membership, error) {
	if userID.IsZero() {
		return nil, fmt.Errorf("%w: userID is required", shared.ErrValidation)
	}
	if spaceID.IsZero() {
		return nil, fmt.Errorf("%w: spaceID is required", shared.ErrValidation)
	}

	now := time.Now().UTC()
	return &Membership{
		id:        shared.NewID(),
		userID:    userID,
		spaceID:   spaceID,
		role:      role,
		joinedAt:  now,
		updatedAt: now,
	}, nil
}

// ReconstituteMembership recreates a Membership from persistence.
func ReconstituteMembership(
	id, userID, spaceID shared.ID,
	role Role,
	block *Block,
	joinedAt, updatedAt time.Time,
) *Membership {
	return &Membership{
		id:        id,
		userID:    userID,
		spaceID:   spaceID,
		role:      role,
		block:     block,
		joinedAt:  joinedAt,
		updatedAt: updatedAt,
	}
}

// ID returns the membership ID.
func (m *Membership) ID() shared.ID { return m.id }

// UserID returns the member's user ID.
func (m *Membership) UserID() shared.ID { return m.userID }

// SpaceID returns the space ID.
func (m *Membership) SpaceID() shared.ID { return m.spaceID }

// Role returns the member's role.
func (m *Membership) Role() Role { return m.role }

// Block returns the active block, or nil when the membership is active.
func (m *Membership) Block() *Block { return m.block }

// JoinedAt returns when the member joined.
func (m *Membership) JoinedAt() time.Time { return m.joinedAt }

// UpdatedAt returns when the membership was last mutated.
func (m *Membership) UpdatedAt() time.Time { return m.updatedAt }

// IsManager checks if this membership carries the manager role.
func (m *Membership) IsManager() bool {
	return m.role == RoleManager
}

// Status returns the effective standing at the given instant. A block whose
// expiry has passed counts as lifted even if the sweep has not run yet.
func (m *Membership) Status(now time.Time) Status {
	if m.block == nil || m.block.ExpiredAt(now) {
		return StatusActive
	}
	return StatusBlocked
}

// IsActive reports whether the membership is in good standing at the given instant.
func (m *Membership) IsActive(now time.Time) bool {
	return m.Status(now) == StatusActive
}

// CanView reports whether the member may read space content. Only a hard
// block removes read access.
func (m *Membership) CanView(now time.Time) bool {
	if m.block == nil || m.block.ExpiredAt(now) {
		return true
	}
	return m.block.Type() != BlockHard
}

// CanWrite reports whether the member may create posts, comments, or
// reactions. Any unexpired block removes write access.
func (m *Membership) CanWrite(now time.Time) bool {
	return m.IsActive(now)
}

// PromoteToManager flips the role to manager.
func (m *Membership) PromoteToManager() error {
	if !m.IsActive(time.Now().UTC()) {
		return fmt.Errorf("%w: cannot promote a blocked member", ErrInvalidState)
	}
	m.role = RoleManager
	m.touch()
	return nil
}

// DemoteToMember flips the role back to member.
func (m *Membership) DemoteToMember() {
	m.role = RoleMember
	m.touch()
}

// ApplyBlock places the membership under the given block.
func (m *Membership) ApplyBlock(b *Block) error {
	if b == nil {
		return fmt.Errorf("%w: block is required", shared.ErrValidation)
	}
	m.block = b
	m.touch()
	return nil
}

// LiftBlock clears any block. Idempotent on an active membership.
func (m *Membership) LiftBlock() {
	m.block = nil
	m.touch()
}

func (m *Membership) touch() {
	m.updatedAt = time.Now().UTC()
}

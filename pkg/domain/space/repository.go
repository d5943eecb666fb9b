package space

import (
	"context"
	"time"

	"github.com/gatherhq/api/pkg/domain/notification"
	"github.com/gatherhq/api/pkg/domain/shared"
	"github.com/gatherhq/api/pkg/pagination"
)

// Repository defines persistence for spaces, memberships, join requests, and
// invites. Multi-write operations that must be atomic are exposed as single
// *Tx methods so no read-then-write sequence ever spans two store calls from
// the application.
type Repository interface {
	// Space CRUD
	Create(ctx context.Context, sp *Space) error
	GetByID(ctx context.Context, id shared.ID) (*Space, error)
	GetBySlug(ctx context.Context, slug string) (*Space, error)
	Update(ctx context.Context, sp *Space) error
	Delete(ctx context.Context, id shared.ID) error
	ExistsBySlug(ctx context.Context, slug string) (bool, error)
	List(ctx context.Context, p pagination.Pagination) ([]*Space, error)
	ListAutoJoin(ctx context.Context) ([]*Space, error)
	CountMembers(ctx context.Context, spaceID shared.ID) (int64, error)

	// Membership operations. CreateMembership maps a unique violation on
	// (user_id, space_id) to ErrAlreadyMember.
	CreateMembership(ctx context.Context, m *Membership) error
	GetMembership(ctx context.Context, userID, spaceID shared.ID) (*Membership, error)
	GetMembershipByID(ctx context.Context, id shared.ID) (*Membership, error)
	UpdateMembership(ctx context.Context, m *Membership) error
	DeleteMembership(ctx context.Context, id shared.ID) error
	ListMembersBySpace(ctx context.Context, spaceID shared.ID, p pagination.Pagination) ([]*Membership, error)
	ListSpacesByUser(ctx context.Context, userID shared.ID) ([]*SpaceWithRole, error)

	// UpdateMembershipTx persists a membership mutation and the outbox
	// entries describing it in one transaction.
	UpdateMembershipTx(ctx context.Context, m *Membership, entries ...*notification.Outbox) error

	// DeleteMembershipTx removes a membership and records the outbox
	// entries in one transaction.
	DeleteMembershipTx(ctx context.Context, id shared.ID, entries ...*notification.Outbox) error

	// CreateMembershipTx creates a membership and records the outbox
	// entries in one transaction.
	CreateMembershipTx(ctx context.Context, m *Membership, entries ...*notification.Outbox) error

	// SweepExpiredBlocks lifts blocks whose expiry has passed and returns
	// how many memberships were flipped back to active.
	SweepExpiredBlocks(ctx context.Context, now time.Time) (int64, error)

	// Join request operations. CreateJoinRequest maps a violation of the
	// pending-uniqueness constraint to ErrDuplicateRequest.
	CreateJoinRequest(ctx context.Context, r *JoinRequest, entries ...*notification.Outbox) error
	GetJoinRequest(ctx context.Context, id shared.ID) (*JoinRequest, error)
	GetPendingJoinRequest(ctx context.Context, userID, spaceID shared.ID) (*JoinRequest, error)
	UpdateJoinRequest(ctx context.Context, r *JoinRequest, entries ...*notification.Outbox) error
	ListPendingJoinRequests(ctx context.Context, spaceID shared.ID) ([]*JoinRequest, error)

	// ApproveJoinRequestTx atomically marks the request approved and
	// materializes the membership. The request row is guarded with a
	// status=pending predicate so a concurrent approval, rejection, or
	// cancellation resolves to whichever transaction commits first; the
	// loser observes the terminal state. Re-approving an already-approved
	// request succeeds with applied=false: no second membership and no
	// duplicate outbox entries.
	ApproveJoinRequestTx(ctx context.Context, r *JoinRequest, m *Membership, entries ...*notification.Outbox) (applied bool, err error)

	// Invite operations.
	CreateInvite(ctx context.Context, inv *Invite) error
	GetInviteByCode(ctx context.Context, code string) (*Invite, error)
	ListInvitesBySpace(ctx context.Context, spaceID shared.ID) ([]*Invite, error)
	DeactivateInvite(ctx context.Context, code string) error
	DeactivateExpiredInvites(ctx context.Context, now time.Time) (int64, error)

	// RedeemInviteTx atomically consumes one unit of invite capacity and
	// creates the membership. The capacity check and the increment are a
	// single guarded UPDATE so two concurrent redemptions can never both
	// take the last use. Returns ErrInviteInactive, ErrInviteExpired,
	// ErrInviteExhausted, or shared.ErrNotFound when the invite cannot be
	// redeemed.
	RedeemInviteTx(ctx context.Context, code string, m *Membership, entries ...*notification.Outbox) error
}

// SpaceWithRole pairs a space with the user's membership standing in it.
type SpaceWithRole struct {
	Space    *Space
	Role     Role
	Status   Status
	JoinedAt time.Time
}

// ApprovalResult reports the per-item outcome of a bulk approval.
type ApprovalResult struct {
	RequestID shared.ID
	UserID    shared.ID
	Err       error
}

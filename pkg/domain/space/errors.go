package space

import (
	"fmt"

	"github.com/gatherhq/api/pkg/domain/shared"
)

// Domain-specific errors. Each wraps a shared sentinel so callers can classify
// the failure without importing this package's error values.
var (
	// ErrAlreadyMember is returned when a join path conflicts with an
	// existing active membership.
	ErrAlreadyMember = fmt.Errorf("%w: user is already a member", shared.ErrConflict)

	// ErrDuplicateRequest is returned when a pending join request already
	// exists for the same user and space.
	ErrDuplicateRequest = fmt.Errorf("%w: a pending join request already exists", shared.ErrConflict)

	// ErrNotApplicable is returned when an operation targets the wrong
	// visibility tier, e.g. a join request against a public space.
	ErrNotApplicable = fmt.Errorf("%w: operation not applicable to this space visibility", shared.ErrValidation)

	// ErrInvalidState is returned when an operation is attempted on a
	// terminal or inapplicable state, e.g. approving a rejected request.
	ErrInvalidState = fmt.Errorf("%w: invalid state for this operation", shared.ErrConflict)

	// ErrMembershipRequired is returned when an operation requires an
	// existing membership that does not exist.
	ErrMembershipRequired = fmt.Errorf("%w: membership required", shared.ErrForbidden)

	// Invite redemption failures.
	ErrInviteInactive  = fmt.Errorf("%w: invite has been deactivated", shared.ErrConflict)
	ErrInviteExpired   = fmt.Errorf("%w: invite has expired", shared.ErrConflict)
	ErrInviteExhausted = fmt.Errorf("%w: invite has no remaining uses", shared.ErrConflict)

	// ErrCannotBlockAdmin is returned when a moderation action targets a
	// platform administrator.
	ErrCannotBlockAdmin = fmt.Errorf("%w: platform administrators cannot be blocked", shared.ErrForbidden)
)

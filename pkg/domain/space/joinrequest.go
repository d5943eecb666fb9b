package space

import (
	"fmt"
	"time"

	"github.com/gatherhq/api/pkg/domain/shared"
)

// RequestStatus represents the state of a join request.
type RequestStatus string

const (
	RequestPending   RequestStatus = "pending"
	RequestApproved  RequestStatus = "approved"
	RequestRejected  RequestStatus = "rejected"
	RequestCancelled RequestStatus = "cancelled"
)

// IsValid checks if the request status is valid.
func (s RequestStatus) IsValid() bool {
	switch s {
	case RequestPending, RequestApproved, RequestRejected, RequestCancelled:
		return true
	}
	return false
}

// String returns the string representation of the status.
func (s RequestStatus) String() string {
	return string(s)
}

// IsTerminal reports whether the status admits no further transitions.
func (s RequestStatus) IsTerminal() bool {
	return s != RequestPending
}

// JoinRequest is a pending ask to join a private or secret space. At most one
// pending request exists per (user, space); terminal requests never block a
// fresh one.
type JoinRequest struct {
	id        shared.ID
	userID    shared.ID
	spaceID   shared.ID
	message   string
	status    RequestStatus
	createdAt time.Time
	decidedAt *time.Time
	decidedBy *shared.ID
}

const maxRequestMessageLen = 1000

// NewJoinRequest creates a pending JoinRequest.
func NewJoinRequest(userID, spaceID shared.ID, message string) (*JoinRequest, error) {
	if userID.IsZero() {
		return nil, fmt.Errorf("%w: userID is required", shared.ErrValidation)
	}
	if spaceID.IsZero() {
		return nil, fmt.Errorf("%w: spaceID is required", shared.ErrValidation)
	}
	if len(message) > maxRequestMessageLen {
		return nil, fmt.Errorf("%w: message exceeds %d characters", shared.ErrValidation, maxRequestMessageLen)
	}

	return &JoinRequest{
		id:        shared.NewID(),
		userID:    userID,
		spaceID:   spaceID,
		message:   message,
		status:    RequestPending,
		createdAt: time.Now().UTC(),
	}, nil
}

// ReconstituteJoinRequest recreates a JoinRequest from persistence.
func ReconstituteJoinRequest(
	id, userID, spaceID shared.ID,
	message string,
	status RequestStatus,
	createdAt time.Time,
	decidedAt *time.Time,
	decidedBy *shared.ID,
) *JoinRequest {
	return &JoinRequest{
		id:        id,
		userID:    userID,
		spaceID:   spaceID,
		message:   message,
		status:    status,
		createdAt: createdAt,
		decidedAt: decidedAt,
		decidedBy: decidedBy,
	}
}

// ID returns the request ID.
func (r *JoinRequest) ID() shared.ID { return r.id }

// UserID returns the requesting user's ID.
func (r *JoinRequest) UserID() shared.ID { return r.userID }

// SpaceID returns the target space ID.
func (r *JoinRequest) SpaceID() shared.ID { return r.spaceID }

// Message returns the optional message to the adjudicators.
func (r *JoinRequest) Message() string { return r.message }

// Status returns the request status.
func (r *JoinRequest) Status() RequestStatus { return r.status }

// CreatedAt returns when the request was filed.
func (r *JoinRequest) CreatedAt() time.Time { return r.createdAt }

// DecidedAt returns when the request reached a terminal state, if it has.
func (r *JoinRequest) DecidedAt() *time.Time { return r.decidedAt }

// DecidedBy returns who decided the request, if anyone. Cancellations record
// the requester.
func (r *JoinRequest) DecidedBy() *shared.ID { return r.decidedBy }

// IsPending reports whether the request still awaits adjudication.
func (r *JoinRequest) IsPending() bool {
	return r.status == RequestPending
}

// Approve transitions pending → approved. Re-approving an already-approved
// request is a no-op so retried client calls stay idempotent; any other
// terminal state fails with ErrInvalidState.
func (r *JoinRequest) Approve(actor shared.ID) error {
	if r.status == RequestApproved {
		return nil
	}
	if r.status != RequestPending {
		return fmt.Errorf("cannot approve a %s request: %w", r.status, ErrInvalidState)
	}
	r.decide(RequestApproved, actor)
	return nil
}

// Reject transitions pending → rejected.
func (r *JoinRequest) Reject(actor shared.ID) error {
	if r.status != RequestPending {
		return fmt.Errorf("cannot reject a %s request: %w", r.status, ErrInvalidState)
	}
	r.decide(RequestRejected, actor)
	return nil
}

// Cancel transitions pending → cancelled. Only the requester may cancel.
func (r *JoinRequest) Cancel(actor shared.ID) error {
	if !actor.Equals(r.userID) {
		return fmt.Errorf("%w: only the requester may cancel", shared.ErrForbidden)
	}
	if r.status != RequestPending {
		return fmt.Errorf("cannot cancel a %s request: %w", r.status, ErrInvalidState)
	}
	r.decide(RequestCancelled, actor)
	return nil
}

func (r *JoinRequest) decide(status RequestStatus, actor shared.ID) {
	now := time.Now().UTC()
	r.status = status
	r.decidedAt = &now
	r.decidedBy = &actor
}

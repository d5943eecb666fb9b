// Package notification provides the transactional outbox for membership
// lifecycle events. Entries are written in the same transaction as the
// mutation they describe and drained by a dispatcher after commit, so no lock
// is ever held across a call to an external collaborator.
package notification

import (
	"fmt"
	"time"

	"github.com/gatherhq/api/pkg/domain/shared"
)

// Membership lifecycle event types.
const (
	EventJoinRequestCreated   = "join_request_created"
	EventJoinRequestCancelled = "join_request_cancelled"
	EventJoinApproved         = "join_approved"
	EventJoinRejected         = "join_rejected"
	EventMemberJoined         = "member_joined"
	EventMemberRemoved        = "member_removed"
	EventMemberBlocked        = "member_blocked"
	EventMemberUnblocked      = "member_unblocked"
	EventMemberPromoted       = "member_promoted"
	EventMemberDemoted        = "member_demoted"
	EventInviteRedeemed       = "invite_redeemed"
)

// OutboxStatus represents the processing status of an outbox entry.
type OutboxStatus string

const (
	// OutboxStatusPending - entry is waiting to be dispatched.
	OutboxStatusPending OutboxStatus = "pending"
	// OutboxStatusProcessing - entry is locked by a dispatcher.
	OutboxStatusProcessing OutboxStatus = "processing"
	// OutboxStatusProcessed - entry was dispatched successfully.
	OutboxStatusProcessed OutboxStatus = "processed"
	// OutboxStatusFailed - entry exhausted its retries.
	OutboxStatusFailed OutboxStatus = "failed"
)

// String returns the string representation of the status.
func (s OutboxStatus) String() string {
	return string(s)
}

// IsTerminal returns true if the status admits no further processing.
func (s OutboxStatus) IsTerminal() bool {
	return s == OutboxStatusProcessed || s == OutboxStatusFailed
}

// DefaultMaxRetries is how many dispatch attempts an entry gets before it is
// marked failed.
const DefaultMaxRetries = 5

// Outbox is one undelivered membership event.
type Outbox struct {
	id        shared.ID
	spaceID   shared.ID
	eventType string
	actorID   *shared.ID
	subjectID *shared.ID // the user the event is about, when distinct from the actor
	payload   map[string]any

	status     OutboxStatus
	retryCount int
	maxRetries int
	lastError  string

	scheduledAt time.Time
	lockedAt    *time.Time
	lockedBy    string

	createdAt   time.Time
	updatedAt   time.Time
	processedAt *time.Time
}

// NewOutbox creates a pending outbox entry.
func NewOutbox(spaceID shared.ID, eventType string, actorID, subjectID *shared.ID, payload map[string]any) (*Outbox, error) {
	if spaceID.IsZero() {
		return nil, fmt.Errorf("%w: spaceID is required", shared.ErrValidation)
	}
	if eventType == "" {
		return nil, fmt.Errorf("%w: eventType is required", shared.ErrValidation)
	}
	if payload == nil {
		payload = map[string]any{}
	}

	now := time.Now().UTC()
	return &Outbox{
		id:          shared.NewID(),
		spaceID:     spaceID,
		eventType:   eventType,
		actorID:     actorID,
		subjectID:   subjectID,
		payload:     payload,
		status:      OutboxStatusPending,
		maxRetries:  DefaultMaxRetries,
		scheduledAt: now,
		createdAt:   now,
		updatedAt:   now,
	}, nil
}

// ReconstituteOutbox recreates an Outbox from persistence.
func ReconstituteOutbox(
	id, spaceID shared.ID,
	eventType string,
	actorID, subjectID *shared.ID,
	payload map[string]any,
	status OutboxStatus,
	retryCount, maxRetries int,
	lastError string,
	scheduledAt time.Time,
	lockedAt *time.Time,
	lockedBy string,
	createdAt, updatedAt time.Time,
	processedAt *time.Time,
) *Outbox {
	return &Outbox{
		id:          id,
		spaceID:     spaceID,
		eventType:   eventType,
		actorID:     actorID,
		subjectID:   subjectID,
		payload:     payload,
		status:      status,
		retryCount:  retryCount,
		maxRetries:  maxRetries,
		lastError:   lastError,
		scheduledAt: scheduledAt,
		lockedAt:    lockedAt,
		lockedBy:    lockedBy,
		createdAt:   createdAt,
		updatedAt:   updatedAt,
		processedAt: processedAt,
	}
}

// ID returns the entry ID.
func (o *Outbox) ID() shared.ID { return o.id }

// SpaceID returns the space the event belongs to.
func (o *Outbox) SpaceID() shared.ID { return o.spaceID }

// EventType returns the logical event type.
func (o *Outbox) EventType() string { return o.eventType }

// ActorID returns who caused the event, if known.
func (o *Outbox) ActorID() *shared.ID { return o.actorID }

// SubjectID returns who the event is about, if distinct from the actor.
func (o *Outbox) SubjectID() *shared.ID { return o.subjectID }

// Payload returns the event payload.
func (o *Outbox) Payload() map[string]any { return o.payload }

// Status returns the processing status.
func (o *Outbox) Status() OutboxStatus { return o.status }

// RetryCount returns how many dispatch attempts have been made.
func (o *Outbox) RetryCount() int { return o.retryCount }

// MaxRetries returns the dispatch attempt budget.
func (o *Outbox) MaxRetries() int { return o.maxRetries }

// LastError returns the most recent dispatch error.
func (o *Outbox) LastError() string { return o.lastError }

// ScheduledAt returns when the entry becomes eligible for dispatch.
func (o *Outbox) ScheduledAt() time.Time { return o.scheduledAt }

// LockedAt returns when a dispatcher locked the entry, if one has.
func (o *Outbox) LockedAt() *time.Time { return o.lockedAt }

// LockedBy returns the dispatcher holding the lock.
func (o *Outbox) LockedBy() string { return o.lockedBy }

// CreatedAt returns when the entry was written.
func (o *Outbox) CreatedAt() time.Time { return o.createdAt }

// UpdatedAt returns when the entry was last updated.
func (o *Outbox) UpdatedAt() time.Time { return o.updatedAt }

// ProcessedAt returns when the entry reached a terminal state.
func (o *Outbox) ProcessedAt() *time.Time { return o.processedAt }

// Lock marks the entry as claimed by the named dispatcher.
func (o *Outbox) Lock(workerID string) {
	now := time.Now().UTC()
	o.status = OutboxStatusProcessing
	o.lockedAt = &now
	o.lockedBy = workerID
	o.updatedAt = now
}

// MarkProcessed records a successful dispatch.
func (o *Outbox) MarkProcessed() {
	now := time.Now().UTC()
	o.status = OutboxStatusProcessed
	o.processedAt = &now
	o.lockedAt = nil
	o.lockedBy = ""
	o.updatedAt = now
}

// MarkAttemptFailed records a failed dispatch attempt. The entry is retried
// with exponential backoff until the retry budget is exhausted, then marked
// failed.
func (o *Outbox) MarkAttemptFailed(dispatchErr error) {
	now := time.Now().UTC()
	o.retryCount++
	o.lastError = dispatchErr.Error()
	o.lockedAt = nil
	o.lockedBy = ""
	o.updatedAt = now

	if o.retryCount >= o.maxRetries {
		o.status = OutboxStatusFailed
		o.processedAt = &now
		return
	}
	o.status = OutboxStatusPending
	o.scheduledAt = now.Add(backoff(o.retryCount))
}

func backoff(attempt int) time.Duration {
	d := time.Minute
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= time.Hour {
			return time.Hour
		}
	}
	return d
}

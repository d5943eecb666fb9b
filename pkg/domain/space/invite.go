package space

import (
	"crypto/rand"
	"encoding/base32"
	"fmt"
	"time"

	"github.com/gatherhq/api/pkg/domain/shared"
)

// inviteCodeBytes yields 26-character base32 codes, long enough that codes
// are globally unique without a retry loop.
const inviteCodeBytes = 16

var inviteEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// Invite is a redeemable code granting membership to a space, with optional
// usage and expiry limits.
type Invite struct {
	code      string
	spaceID   shared.ID
	maxUses   *int // nil = unlimited
	usesCount int
	expiresAt *time.Time
	active    bool
	createdBy shared.ID
	createdAt time.Time
}

// NewInvite creates a new active Invite with a freshly generated code.
func NewInvite(spaceID shared.ID, maxUses *int, expiresAt *time.Time, createdBy shared.ID) (*Invite, error) {
	if spaceID.IsZero() {
		return nil, fmt.Errorf("%w: spaceID is required", shared.ErrValidation)
	}
	if createdBy.IsZero() {
		return nil, fmt.Errorf("%w: createdBy is required", shared.ErrValidation)
	}
	if maxUses != nil && *maxUses < 1 {
		return nil, fmt.Errorf("%w: max uses must be at least 1", shared.ErrValidation)
	}
	if expiresAt != nil && !expiresAt.After(time.Now().UTC()) {
		return nil, fmt.Errorf("%w: expiry must be in the future", shared.ErrValidation)
	}

	code, err := generateInviteCode()
	if err != nil {
		return nil, fmt.Errorf("failed to generate invite code: %w", err)
	}

	return &Invite{
		code:      code,
		spaceID:   spaceID,
		maxUses:   maxUses,
		expiresAt: expiresAt,
		active:    true,
		createdBy: createdBy,
		createdAt: time.Now().UTC(),
	}, nil
}

// ReconstituteInvite recreates an Invite from persistence.
func ReconstituteInvite(
	code string,
	spaceID shared.ID,
	maxUses *int,
	usesCount int,
	expiresAt *time.Time,
	active bool,
	createdBy shared.ID,
	createdAt time.Time,
) *Invite {
	return &Invite{
		code:      code,
		spaceID:   spaceID,
		maxUses:   maxUses,
		usesCount: usesCount,
		expiresAt: expiresAt,
		active:    active,
		createdBy: createdBy,
		createdAt: createdAt,
	}
}

// Code returns the invite code.
func (i *Invite) Code() string { return i.code }

// SpaceID returns the target space ID.
func (i *Invite) SpaceID() shared.ID { return i.spaceID }

// MaxUses returns the usage cap, or nil for unlimited.
func (i *Invite) MaxUses() *int { return i.maxUses }

// UsesCount returns how many times the invite has been redeemed. Redemption
// only ever increments this counter; it is never reset.
func (i *Invite) UsesCount() int { return i.usesCount }

// ExpiresAt returns the expiry, or nil for no expiry.
func (i *Invite) ExpiresAt() *time.Time { return i.expiresAt }

// Active reports whether the invite is still switched on.
func (i *Invite) Active() bool { return i.active }

// CreatedBy returns who created the invite.
func (i *Invite) CreatedBy() shared.ID { return i.createdBy }

// CreatedAt returns when the invite was created.
func (i *Invite) CreatedAt() time.Time { return i.createdAt }

// IsExpired checks whether the expiry has passed at the given instant.
func (i *Invite) IsExpired(now time.Time) bool {
	return i.expiresAt != nil && !now.Before(*i.expiresAt)
}

// IsExhausted checks whether the usage cap has been reached.
func (i *Invite) IsExhausted() bool {
	return i.maxUses != nil && i.usesCount >= *i.maxUses
}

// RedeemableAt reports why the invite cannot be redeemed at the given instant,
// or nil if it can. The store performs the authoritative check atomically; this
// mirrors it for callers holding a loaded invite.
func (i *Invite) RedeemableAt(now time.Time) error {
	switch {
	case !i.active:
		return ErrInviteInactive
	case i.IsExpired(now):
		return ErrInviteExpired
	case i.IsExhausted():
		return ErrInviteExhausted
	}
	return nil
}

// Deactivate switches the invite off. Idempotent; prior redemptions are
// unaffected.
func (i *Invite) Deactivate() {
	i.active = false
}

func generateInviteCode() (string, error) {
	buf := make([]byte, inviteCodeBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return inviteEncoding.EncodeToString(buf), nil
}

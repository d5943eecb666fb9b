// Package user provides the user domain model.
package user

import (
	"fmt"
	"time"

	"github.com/gatherhq/api/pkg/domain/shared"
)

// User represents a platform user. PlatformAdmin is the platform-wide
// privilege checked by the access decision function; it is orthogonal to any
// per-space role.
type User struct {
	id            shared.ID
	email         string
	name          string
	passwordHash  string
	platformAdmin bool
	createdAt     time.Time
	updatedAt     time.Time
}

// New creates a new User.
func New(email, name, passwordHash string) (*User, error) {
	if email == "" {
		return nil, fmt.Errorf("%w: email is required", shared.ErrValidation)
	}
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", shared.ErrValidation)
	}

	now := time.Now().UTC()
	return &User{
		id:           shared.NewID(),
		email:        email,
		name:         name,
		passwordHash: passwordHash,
		createdAt:    now,
		updatedAt:    now,
	}, nil
}

// Reconstitute recreates a User from persistence.
func Reconstitute(
	id shared.ID,
	email, name, passwordHash string,
	platformAdmin bool,
	createdAt, updatedAt time.Time,
) *User {
	return &User{
		id:            id,
		email:         email,
		name:          name,
		passwordHash:  passwordHash,
		platformAdmin: platformAdmin,
		createdAt:     createdAt,
		updatedAt:     updatedAt,
	}
}

// ID returns the user ID.
func (u *User) ID() shared.ID { return u.id }

// Email returns the user's email.
func (u *User) Email() string { return u.email }

// Name returns the user's display name.
func (u *User) Name() string { return u.name }

// PasswordHash returns the bcrypt password hash.
func (u *User) PasswordHash() string { return u.passwordHash }

// IsPlatformAdmin reports whether the user holds platform-wide administration.
func (u *User) IsPlatformAdmin() bool { return u.platformAdmin }

// CreatedAt returns when the user registered.
func (u *User) CreatedAt() time.Time { return u.createdAt }

// UpdatedAt returns when the user was last updated.
func (u *User) UpdatedAt() time.Time { return u.updatedAt }

// GrantPlatformAdmin grants platform-wide administration.
func (u *User) GrantPlatformAdmin() {
	u.platformAdmin = true
	u.updatedAt = time.Now().UTC()
}

// RevokePlatformAdmin revokes platform-wide administration.
func (u *User) RevokePlatformAdmin() {
	u.platformAdmin = false
	u.updatedAt = time.Now().UTC()
}

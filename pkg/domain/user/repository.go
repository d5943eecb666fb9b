package user

import (
	"context"

	"github.com/gatherhq/api/pkg/domain/shared"
)

// Repository defines the interface for user persistence.
type Repository interface {
	Create(ctx context.Context, u *User) error
	GetByID(ctx context.Context, id shared.ID) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	Update(ctx context.Context, u *User) error

	// IsPlatformAdmin reads the admin flag directly. The access layer calls
	// this per request and treats the answer as ground truth; it is never
	// cached across requests.
	IsPlatformAdmin(ctx context.Context, id shared.ID) (bool, error)
}

package app

import (
	"context"
	"fmt"
	"time"

	"github.com/gatherhq/api/pkg/domain/shared"
	"github.com/gatherhq/api/pkg/domain/space"
	"github.com/gatherhq/api/pkg/domain/user"
)

// resolveSpace loads a space by ID or slug. Handlers accept either form in
// the {space} path segment.
func resolveSpace(ctx context.Context, repo space.Repository, ref string) (*space.Space, error) {
	if id, err := shared.IDFromString(ref); err == nil {
		return repo.GetByID(ctx, id)
	}
	return repo.GetBySlug(ctx, ref)
}

// isPlatformAdmin reads the platform admin flag for the actor. The flag is
// ground truth per call and never cached across requests.
func isPlatformAdmin(ctx context.Context, userRepo user.Repository, actorID shared.ID) (bool, error) {
	admin, err := userRepo.IsPlatformAdmin(ctx, actorID)
	if err != nil {
		if shared.IsNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read platform admin flag: %w", err)
	}
	return admin, nil
}

// requireManager ensures the actor is a platform admin or an active manager
// of the space. Returns the actor's membership, or nil for platform admins.
func requireManager(ctx context.Context, repo space.Repository, userRepo user.Repository, actorID, spaceID shared.ID) (*space.Membership, error) {
	admin, err := isPlatformAdmin(ctx, userRepo, actorID)
	if err != nil {
		return nil, err
	}
	if admin {
		return nil, nil
	}

	m, err := repo.GetMembership(ctx, actorID, spaceID)
	if err != nil {
		if shared.IsNotFound(err) {
			return nil, fmt.Errorf("%w: manager role required", shared.ErrForbidden)
		}
		return nil, fmt.Errorf("failed to load membership: %w", err)
	}
	if !m.Role().CanModerate() || !m.IsActive(time.Now().UTC()) {
		return nil, fmt.Errorf("%w: manager role required", shared.ErrForbidden)
	}
	return m, nil
}

// requirePlatformAdmin ensures the actor holds platform-wide administration.
func requirePlatformAdmin(ctx context.Context, userRepo user.Repository, actorID shared.ID) error {
	admin, err := isPlatformAdmin(ctx, userRepo, actorID)
	if err != nil {
		return err
	}
	if !admin {
		return fmt.Errorf("%w: platform administration required", shared.ErrForbidden)
	}
	return nil
}

package app

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/gatherhq/api/internal/metrics"
	"github.com/gatherhq/api/pkg/domain/shared"
	"github.com/gatherhq/api/pkg/domain/space"
	"github.com/gatherhq/api/pkg/domain/user"
	"github.com/gatherhq/api/pkg/logger"
)

// AccessService exposes the access decision function to handlers and to
// content-serving collaborators. It gathers the inputs and hands them to the
// pure space.Decide; no policy lives here.
type AccessService struct {
	repo     space.Repository
	userRepo user.Repository
	logger   *logger.Logger
}

// NewAccessService creates a new AccessService.
func NewAccessService(repo space.Repository, userRepo user.Repository, log *logger.Logger) *AccessService {
	return &AccessService{
		repo:     repo,
		userRepo: userRepo,
		logger:   log.With("service", "access"),
	}
}

// Check computes whether the user may perform the action on the space.
func (s *AccessService) Check(ctx context.Context, ref string, userID shared.ID, action space.Action) (space.Decision, error) {
	if !action.IsValid() {
		return space.Decision{}, fmt.Errorf("%w: invalid action", shared.ErrValidation)
	}

	sp, err := resolveSpace(ctx, s.repo, ref)
	if err != nil {
		return space.Decision{}, err
	}

	decision, err := s.decide(ctx, sp, userID, action)
	if err != nil {
		return space.Decision{}, err
	}

	metrics.AccessDecisionsTotal.WithLabelValues(
		action.String(),
		strconv.FormatBool(decision.Allowed),
		string(decision.Reason),
	).Inc()
	return decision, nil
}

// GetSpaceForActor returns the space if the actor may know it exists. Secret
// spaces answer NotFound to users without a membership, never Forbidden, so
// their existence stays concealed.
func (s *AccessService) GetSpaceForActor(ctx context.Context, ref string, userID shared.ID) (*space.Space, error) {
	sp, err := resolveSpace(ctx, s.repo, ref)
	if err != nil {
		return nil, err
	}

	if sp.Visibility() != space.VisibilitySecret {
		return sp, nil
	}

	admin, err := isPlatformAdmin(ctx, s.userRepo, userID)
	if err != nil {
		return nil, err
	}
	if admin {
		return sp, nil
	}

	if _, err := s.repo.GetMembership(ctx, userID, sp.ID()); err != nil {
		if shared.IsNotFound(err) {
			return nil, fmt.Errorf("%w: space", shared.ErrNotFound)
		}
		return nil, err
	}
	return sp, nil
}

func (s *AccessService) decide(ctx context.Context, sp *space.Space, userID shared.ID, action space.Action) (space.Decision, error) {
	admin, err := isPlatformAdmin(ctx, s.userRepo, userID)
	if err != nil {
		return space.Decision{}, err
	}
	actor := space.Actor{ID: userID.String(), PlatformAdmin: admin}

	var membership *space.Membership
	if m, err := s.repo.GetMembership(ctx, userID, sp.ID()); err == nil {
		membership = m
	} else if !shared.IsNotFound(err) {
		return space.Decision{}, fmt.Errorf("failed to load membership: %w", err)
	}

	return space.Decide(actor, sp, membership, action, time.Now().UTC()), nil
}

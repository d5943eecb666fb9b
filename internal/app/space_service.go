package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gatherhq/api/internal/infra/redis"
	"github.com/gatherhq/api/internal/metrics"
	"github.com/gatherhq/api/pkg/domain/notification"
	"github.com/gatherhq/api/pkg/domain/shared"
	"github.com/gatherhq/api/pkg/domain/space"
	"github.com/gatherhq/api/pkg/domain/user"
	"github.com/gatherhq/api/pkg/logger"
	"github.com/gatherhq/api/pkg/pagination"
)

// SpaceService handles space CRUD and direct membership operations.
type SpaceService struct {
	repo         space.Repository
	userRepo     user.Repository
	memberCounts *redis.Cache[int64]
	logger       *logger.Logger
}

// SpaceServiceOption is a functional option for SpaceService.
type SpaceServiceOption func(*SpaceService)

// WithMemberCountCache sets the redis-backed member count cache.
func WithMemberCountCache(cache *redis.Cache[int64]) SpaceServiceOption {
	return func(s *SpaceService) {
		s.memberCounts = cache
	}
}

// NewSpaceService creates a new SpaceService.
func NewSpaceService(repo space.Repository, userRepo user.Repository, log *logger.Logger, opts ...SpaceServiceOption) *SpaceService {
	s := &SpaceService{
		repo:     repo,
		userRepo: userRepo,
		logger:   log.With("service", "space"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateSpaceInput represents the input for creating a space.
type CreateSpaceInput struct {
	Name             string `json:"name" validate:"required,min=2,max=100"`
	Slug             string `json:"slug" validate:"required,slug"`
	Description      string `json:"description" validate:"max=2000"`
	Visibility       string `json:"visibility" validate:"required,visibility"`
	AutoJoin         bool   `json:"auto_join"`
	AllowMemberPosts *bool  `json:"allow_member_posts,omitempty"`
}

// Create creates a space and makes the creator its first manager.
func (s *SpaceService) Create(ctx context.Context, input CreateSpaceInput, creatorID shared.ID) (*space.Space, error) {
	s.logger.Info("creating space", "name", input.Name, "slug", input.Slug, "visibility", input.Visibility)

	visibility, ok := space.ParseVisibility(input.Visibility)
	if !ok {
		return nil, fmt.Errorf("%w: invalid visibility", shared.ErrValidation)
	}

	exists, err := s.repo.ExistsBySlug(ctx, input.Slug)
	if err != nil {
		return nil, fmt.Errorf("failed to check slug existence: %w", err)
	}
	if exists {
		return nil, fmt.Errorf("%w: slug '%s' is already taken", shared.ErrAlreadyExists, input.Slug)
	}

	sp, err := space.NewSpace(input.Name, input.Slug, visibility, creatorID)
	if err != nil {
		return nil, err
	}
	if input.Description != "" {
		sp.UpdateDescription(input.Description)
	}
	if input.AutoJoin {
		sp.SetAutoJoin(true)
	}
	if input.AllowMemberPosts != nil {
		sp.SetAllowMemberPosts(*input.AllowMemberPosts)
	}

	if err := s.repo.Create(ctx, sp); err != nil {
		return nil, fmt.Errorf("failed to create space: %w", err)
	}

	m, err := space.NewManagerMembership(creatorID, sp.ID())
	if err != nil {
		_ = s.repo.Delete(ctx, sp.ID())
		return nil, err
	}
	event, err := s.memberJoinedEvent(sp.ID(), creatorID, "created")
	if err != nil {
		_ = s.repo.Delete(ctx, sp.ID())
		return nil, err
	}
	if err := s.repo.CreateMembershipTx(ctx, m, event); err != nil {
		_ = s.repo.Delete(ctx, sp.ID())
		return nil, fmt.Errorf("failed to add creator as manager: %w", err)
	}

	s.logger.Info("space created", "id", sp.ID().String(), "slug", sp.Slug())
	return sp, nil
}

// Get retrieves a space by ID or slug.
func (s *SpaceService) Get(ctx context.Context, ref string) (*space.Space, error) {
	return resolveSpace(ctx, s.repo, ref)
}

// UpdateSpaceInput represents the input for updating a space.
type UpdateSpaceInput struct {
	Name               *string `json:"name" validate:"omitempty,min=2,max=100"`
	Slug               *string `json:"slug" validate:"omitempty,slug"`
	Description        *string `json:"description" validate:"omitempty,max=2000"`
	Visibility         *string `json:"visibility" validate:"omitempty,visibility"`
	AutoJoin           *bool   `json:"auto_join,omitempty"`
	AllowMemberPosts   *bool   `json:"allow_member_posts,omitempty"`
	RequiresPayment    *bool   `json:"requires_payment,omitempty"`
	SubscriptionTierID *string `json:"subscription_tier_id,omitempty" validate:"omitempty,uuid"`
}

// Update updates a space. The actor must be a manager or platform admin.
// Visibility changes never touch existing memberships.
func (s *SpaceService) Update(ctx context.Context, ref string, input UpdateSpaceInput, actorID shared.ID) (*space.Space, error) {
	sp, err := resolveSpace(ctx, s.repo, ref)
	if err != nil {
		return nil, err
	}
	if _, err := requireManager(ctx, s.repo, s.userRepo, actorID, sp.ID()); err != nil {
		return nil, err
	}

	if input.Name != nil {
		if err := sp.UpdateName(*input.Name); err != nil {
			return nil, err
		}
	}
	if input.Slug != nil && *input.Slug != sp.Slug() {
		exists, err := s.repo.ExistsBySlug(ctx, *input.Slug)
		if err != nil {
			return nil, fmt.Errorf("failed to check slug existence: %w", err)
		}
		if exists {
			return nil, fmt.Errorf("%w: slug '%s' is already taken", shared.ErrAlreadyExists, *input.Slug)
		}
		if err := sp.UpdateSlug(*input.Slug); err != nil {
			return nil, err
		}
	}
	if input.Description != nil {
		sp.UpdateDescription(*input.Description)
	}
	if input.Visibility != nil {
		v, ok := space.ParseVisibility(*input.Visibility)
		if !ok {
			return nil, fmt.Errorf("%w: invalid visibility", shared.ErrValidation)
		}
		if err := sp.UpdateVisibility(v); err != nil {
			return nil, err
		}
	}
	if input.AutoJoin != nil {
		sp.SetAutoJoin(*input.AutoJoin)
	}
	if input.AllowMemberPosts != nil {
		sp.SetAllowMemberPosts(*input.AllowMemberPosts)
	}
	if input.RequiresPayment != nil {
		var tierID *shared.ID
		if input.SubscriptionTierID != nil {
			id, err := shared.IDFromString(*input.SubscriptionTierID)
			if err != nil {
				return nil, fmt.Errorf("%w: invalid subscription tier id", shared.ErrValidation)
			}
			tierID = &id
		}
		sp.SetPaymentGate(*input.RequiresPayment, tierID)
	}

	if err := s.repo.Update(ctx, sp); err != nil {
		return nil, fmt.Errorf("failed to update space: %w", err)
	}

	s.logger.Info("space updated", "id", sp.ID().String())
	return sp, nil
}

// Delete removes a space. The actor must be a manager or platform admin.
func (s *SpaceService) Delete(ctx context.Context, ref string, actorID shared.ID) error {
	sp, err := resolveSpace(ctx, s.repo, ref)
	if err != nil {
		return err
	}
	if _, err := requireManager(ctx, s.repo, s.userRepo, actorID, sp.ID()); err != nil {
		return err
	}

	if err := s.repo.Delete(ctx, sp.ID()); err != nil {
		return fmt.Errorf("failed to delete space: %w", err)
	}
	s.invalidateMemberCount(ctx, sp.ID())

	s.logger.Info("space deleted", "id", sp.ID().String(), "slug", sp.Slug())
	return nil
}

// List returns a page of spaces.
func (s *SpaceService) List(ctx context.Context, p pagination.Pagination) ([]*space.Space, error) {
	return s.repo.List(ctx, p)
}

// ListForUser returns the spaces the user belongs to, with role and standing.
func (s *SpaceService) ListForUser(ctx context.Context, userID shared.ID) ([]*space.SpaceWithRole, error) {
	return s.repo.ListSpacesByUser(ctx, userID)
}

// ListMembers returns a page of memberships for a space. For private and
// secret spaces the actor must hold an active membership or be a platform
// admin.
func (s *SpaceService) ListMembers(ctx context.Context, ref string, actorID shared.ID, p pagination.Pagination) ([]*space.Membership, error) {
	sp, err := resolveSpace(ctx, s.repo, ref)
	if err != nil {
		return nil, err
	}

	if sp.Visibility().RequiresMembership() {
		if err := s.requireActiveMember(ctx, actorID, sp); err != nil {
			return nil, err
		}
	}

	return s.repo.ListMembersBySpace(ctx, sp.ID(), p)
}

// MemberCount returns the number of members in a space, cached when a cache
// is configured.
func (s *SpaceService) MemberCount(ctx context.Context, ref string) (int64, error) {
	sp, err := resolveSpace(ctx, s.repo, ref)
	if err != nil {
		return 0, err
	}

	if s.memberCounts == nil {
		return s.repo.CountMembers(ctx, sp.ID())
	}

	count, err := s.memberCounts.GetOrSetFallback(ctx, sp.ID().String(), func(ctx context.Context) (*int64, error) {
		n, err := s.repo.CountMembers(ctx, sp.ID())
		if err != nil {
			return nil, err
		}
		return &n, nil
	})
	if err != nil {
		return 0, err
	}
	return *count, nil
}

// Join performs a direct join. Only public spaces accept direct joins;
// private spaces signal that a join request is needed, and secret spaces are
// hidden from non-members entirely.
func (s *SpaceService) Join(ctx context.Context, ref string, userID shared.ID) (*space.Membership, error) {
	sp, err := resolveSpace(ctx, s.repo, ref)
	if err != nil {
		return nil, err
	}

	if !sp.Visibility().AcceptsDirectJoin() {
		if sp.Visibility() == space.VisibilitySecret {
			return nil, fmt.Errorf("%w: space", shared.ErrNotFound)
		}
		return nil, space.ErrMembershipRequired
	}

	m, err := space.NewMembership(userID, sp.ID())
	if err != nil {
		return nil, err
	}
	event, err := s.memberJoinedEvent(sp.ID(), userID, "direct")
	if err != nil {
		return nil, err
	}

	if err := s.repo.CreateMembershipTx(ctx, m, event); err != nil {
		return nil, err
	}
	s.invalidateMemberCount(ctx, sp.ID())
	metrics.MembershipsTotal.WithLabelValues("joined").Inc()

	s.logger.Info("user joined space", "space_id", sp.ID().String(), "user_id", userID.String())
	return m, nil
}

// Leave removes the user's own membership. Idempotent once the membership is
// gone.
func (s *SpaceService) Leave(ctx context.Context, ref string, userID shared.ID) error {
	sp, err := resolveSpace(ctx, s.repo, ref)
	if err != nil {
		return err
	}

	m, err := s.repo.GetMembership(ctx, userID, sp.ID())
	if err != nil {
		if shared.IsNotFound(err) {
			return nil
		}
		return err
	}

	event, err := notification.NewOutbox(sp.ID(), notification.EventMemberRemoved, &userID, nil, map[string]any{
		"via": "left",
	})
	if err != nil {
		return err
	}

	if err := s.repo.DeleteMembershipTx(ctx, m.ID(), event); err != nil {
		if shared.IsNotFound(err) {
			return nil
		}
		return err
	}
	s.invalidateMemberCount(ctx, sp.ID())
	metrics.MembershipsTotal.WithLabelValues("left").Inc()

	s.logger.Info("user left space", "space_id", sp.ID().String(), "user_id", userID.String())
	return nil
}

// AutoJoinForNewUser joins the user to every auto-join space. Called once at
// registration; races with concurrent joins resolve via ErrAlreadyMember.
func (s *SpaceService) AutoJoinForNewUser(ctx context.Context, userID shared.ID) error {
	spaces, err := s.repo.ListAutoJoin(ctx)
	if err != nil {
		return fmt.Errorf("failed to list auto-join spaces: %w", err)
	}

	for _, sp := range spaces {
		m, err := space.NewMembership(userID, sp.ID())
		if err != nil {
			return err
		}
		event, err := s.memberJoinedEvent(sp.ID(), userID, "auto_join")
		if err != nil {
			return err
		}
		if err := s.repo.CreateMembershipTx(ctx, m, event); err != nil {
			if errors.Is(err, space.ErrAlreadyMember) {
				continue
			}
			return fmt.Errorf("failed to auto-join space %s: %w", sp.Slug(), err)
		}
		s.invalidateMemberCount(ctx, sp.ID())
		metrics.MembershipsTotal.WithLabelValues("joined").Inc()
	}
	return nil
}

// GetMembership returns the user's membership in a space.
func (s *SpaceService) GetMembership(ctx context.Context, ref string, userID shared.ID) (*space.Membership, error) {
	sp, err := resolveSpace(ctx, s.repo, ref)
	if err != nil {
		return nil, err
	}
	return s.repo.GetMembership(ctx, userID, sp.ID())
}

func (s *SpaceService) requireActiveMember(ctx context.Context, actorID shared.ID, sp *space.Space) error {
	admin, err := isPlatformAdmin(ctx, s.userRepo, actorID)
	if err != nil {
		return err
	}
	if admin {
		return nil
	}

	m, err := s.repo.GetMembership(ctx, actorID, sp.ID())
	if err != nil {
		if shared.IsNotFound(err) {
			if sp.Visibility() == space.VisibilitySecret {
				return fmt.Errorf("%w: space", shared.ErrNotFound)
			}
			return space.ErrMembershipRequired
		}
		return err
	}
	if !m.CanView(time.Now().UTC()) {
		return fmt.Errorf("%w: membership is blocked", shared.ErrForbidden)
	}
	return nil
}

func (s *SpaceService) memberJoinedEvent(spaceID, userID shared.ID, via string) (*notification.Outbox, error) {
	return notification.NewOutbox(spaceID, notification.EventMemberJoined, &userID, nil, map[string]any{
		"via": via,
	})
}

func (s *SpaceService) invalidateMemberCount(ctx context.Context, spaceID shared.ID) {
	if s.memberCounts == nil {
		return
	}
	if err := s.memberCounts.Delete(ctx, spaceID.String()); err != nil {
		s.logger.Warn("failed to invalidate member count cache", "space_id", spaceID.String(), "error", err)
	}
}

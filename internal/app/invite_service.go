package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gatherhq/api/internal/metrics"
	"github.com/gatherhq/api/pkg/domain/notification"
	"github.com/gatherhq/api/pkg/domain/shared"
	"github.com/gatherhq/api/pkg/domain/space"
	"github.com/gatherhq/api/pkg/domain/user"
	"github.com/gatherhq/api/pkg/logger"
)

// InviteService handles invite creation, deactivation, and redemption.
type InviteService struct {
	repo     space.Repository
	userRepo user.Repository
	logger   *logger.Logger
}

// NewInviteService creates a new InviteService.
func NewInviteService(repo space.Repository, userRepo user.Repository, log *logger.Logger) *InviteService {
	return &InviteService{
		repo:     repo,
		userRepo: userRepo,
		logger:   log.With("service", "invite"),
	}
}

// CreateInviteInput represents the input for creating an invite.
type CreateInviteInput struct {
	MaxUses   *int       `json:"max_uses,omitempty" validate:"omitempty,gte=1"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// Create mints an invite code for a space. The actor must be a manager or
// platform admin. Public spaces are joined directly and take no invites.
func (s *InviteService) Create(ctx context.Context, ref string, input CreateInviteInput, actorID shared.ID) (*space.Invite, error) {
	sp, err := resolveSpace(ctx, s.repo, ref)
	if err != nil {
		return nil, err
	}
	if !sp.Visibility().RequiresMembership() {
		return nil, fmt.Errorf("public spaces are joined directly: %w", space.ErrNotApplicable)
	}
	if _, err := requireManager(ctx, s.repo, s.userRepo, actorID, sp.ID()); err != nil {
		return nil, err
	}

	inv, err := space.NewInvite(sp.ID(), input.MaxUses, input.ExpiresAt, actorID)
	if err != nil {
		return nil, err
	}
	if err := s.repo.CreateInvite(ctx, inv); err != nil {
		return nil, fmt.Errorf("failed to create invite: %w", err)
	}

	s.logger.Info("invite created",
		"space_id", sp.ID().String(),
		"created_by", actorID.String(),
	)
	return inv, nil
}

// List returns the invites for a space. Manager or platform admin only.
func (s *InviteService) List(ctx context.Context, ref string, actorID shared.ID) ([]*space.Invite, error) {
	sp, err := resolveSpace(ctx, s.repo, ref)
	if err != nil {
		return nil, err
	}
	if _, err := requireManager(ctx, s.repo, s.userRepo, actorID, sp.ID()); err != nil {
		return nil, err
	}
	return s.repo.ListInvitesBySpace(ctx, sp.ID())
}

// Deactivate switches an invite off. Idempotent; prior redemptions keep
// their memberships.
func (s *InviteService) Deactivate(ctx context.Context, code string, actorID shared.ID) error {
	inv, err := s.repo.GetInviteByCode(ctx, code)
	if err != nil {
		return err
	}
	if _, err := requireManager(ctx, s.repo, s.userRepo, actorID, inv.SpaceID()); err != nil {
		return err
	}

	if err := s.repo.DeactivateInvite(ctx, code); err != nil {
		return err
	}

	s.logger.Info("invite deactivated", "space_id", inv.SpaceID().String())
	return nil
}

// Redeem consumes one unit of invite capacity and joins the user. Redeeming
// while already a member succeeds without consuming capacity, so a retried
// redemption never burns a use.
func (s *InviteService) Redeem(ctx context.Context, code string, userID shared.ID) (*space.Membership, error) {
	inv, err := s.repo.GetInviteByCode(ctx, code)
	if err != nil {
		return nil, err
	}

	if existing, err := s.repo.GetMembership(ctx, userID, inv.SpaceID()); err == nil {
		metrics.InviteRedemptionsTotal.WithLabelValues("already_member").Inc()
		return existing, nil
	} else if !shared.IsNotFound(err) {
		return nil, fmt.Errorf("failed to check membership: %w", err)
	}

	m, err := space.NewMembership(userID, inv.SpaceID())
	if err != nil {
		return nil, err
	}
	event, err := notification.NewOutbox(inv.SpaceID(), notification.EventInviteRedeemed, &userID, nil, map[string]any{
		"membership_id": m.ID().String(),
	})
	if err != nil {
		return nil, err
	}

	if err := s.repo.RedeemInviteTx(ctx, code, m, event); err != nil {
		// A concurrent redemption by the same user landed first.
		if errors.Is(err, space.ErrAlreadyMember) {
			if existing, getErr := s.repo.GetMembership(ctx, userID, inv.SpaceID()); getErr == nil {
				metrics.InviteRedemptionsTotal.WithLabelValues("already_member").Inc()
				return existing, nil
			}
		}
		metrics.InviteRedemptionsTotal.WithLabelValues(redemptionOutcome(err)).Inc()
		return nil, err
	}
	metrics.InviteRedemptionsTotal.WithLabelValues("joined").Inc()
	metrics.MembershipsTotal.WithLabelValues("joined").Inc()

	s.logger.Info("invite redeemed",
		"space_id", inv.SpaceID().String(),
		"user_id", userID.String(),
	)
	return m, nil
}

func redemptionOutcome(err error) string {
	switch {
	case errors.Is(err, space.ErrInviteInactive):
		return "inactive"
	case errors.Is(err, space.ErrInviteExpired):
		return "expired"
	case errors.Is(err, space.ErrInviteExhausted):
		return "exhausted"
	case shared.IsNotFound(err):
		return "not_found"
	default:
		return "error"
	}
}

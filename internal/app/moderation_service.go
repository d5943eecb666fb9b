package app

import (
	"context"
	"fmt"
	"time"

	"github.com/gatherhq/api/internal/metrics"
	"github.com/gatherhq/api/pkg/domain/notification"
	"github.com/gatherhq/api/pkg/domain/shared"
	"github.com/gatherhq/api/pkg/domain/space"
	"github.com/gatherhq/api/pkg/domain/user"
	"github.com/gatherhq/api/pkg/logger"
)

// ModerationService handles role changes, blocking, and member removal.
type ModerationService struct {
	repo     space.Repository
	userRepo user.Repository
	logger   *logger.Logger
}

// NewModerationService creates a new ModerationService.
func NewModerationService(repo space.Repository, userRepo user.Repository, log *logger.Logger) *ModerationService {
	return &ModerationService{
		repo:     repo,
		userRepo: userRepo,
		logger:   log.With("service", "moderation"),
	}
}

// Promote flips the target's role to manager. The actor must be a platform
// admin. Promoting a platform admin is a recorded no-op: their access never
// depends on the space role.
func (s *ModerationService) Promote(ctx context.Context, ref, targetUserID string, actorID shared.ID) (*space.Membership, error) {
	sp, m, err := s.loadTarget(ctx, ref, targetUserID)
	if err != nil {
		return nil, err
	}
	if err := requirePlatformAdmin(ctx, s.userRepo, actorID); err != nil {
		return nil, err
	}

	admin, err := isPlatformAdmin(ctx, s.userRepo, m.UserID())
	if err != nil {
		return nil, err
	}
	if admin {
		s.logger.Info("promote skipped for platform admin", "user_id", m.UserID().String())
		return m, nil
	}

	if m.IsManager() {
		return m, nil
	}
	if err := m.PromoteToManager(); err != nil {
		return nil, err
	}

	targetID := m.UserID()
	event, err := notification.NewOutbox(sp.ID(), notification.EventMemberPromoted, &actorID, &targetID, nil)
	if err != nil {
		return nil, err
	}
	if err := s.repo.UpdateMembershipTx(ctx, m, event); err != nil {
		return nil, err
	}
	metrics.ModerationActionsTotal.WithLabelValues("promote").Inc()

	s.logger.Info("member promoted to manager",
		"space_id", sp.ID().String(),
		"user_id", m.UserID().String(),
	)
	return m, nil
}

// Demote flips the target's role back to member. The actor must be a
// platform admin. Demoting a platform admin is a recorded no-op.
func (s *ModerationService) Demote(ctx context.Context, ref, targetUserID string, actorID shared.ID) (*space.Membership, error) {
	sp, m, err := s.loadTarget(ctx, ref, targetUserID)
	if err != nil {
		return nil, err
	}
	if err := requirePlatformAdmin(ctx, s.userRepo, actorID); err != nil {
		return nil, err
	}

	admin, err := isPlatformAdmin(ctx, s.userRepo, m.UserID())
	if err != nil {
		return nil, err
	}
	if admin {
		s.logger.Info("demote skipped for platform admin", "user_id", m.UserID().String())
		return m, nil
	}

	if !m.IsManager() {
		return m, nil
	}
	m.DemoteToMember()

	targetID := m.UserID()
	event, err := notification.NewOutbox(sp.ID(), notification.EventMemberDemoted, &actorID, &targetID, nil)
	if err != nil {
		return nil, err
	}
	if err := s.repo.UpdateMembershipTx(ctx, m, event); err != nil {
		return nil, err
	}
	metrics.ModerationActionsTotal.WithLabelValues("demote").Inc()

	s.logger.Info("manager demoted to member",
		"space_id", sp.ID().String(),
		"user_id", m.UserID().String(),
	)
	return m, nil
}

// BlockMemberInput represents the input for blocking a member.
type BlockMemberInput struct {
	BlockType string     `json:"block_type" validate:"required,block_type"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	Reason    string     `json:"reason" validate:"max=500"`
}

// Block places the target under a soft or hard block, optionally expiring.
// The actor must be a manager or platform admin; platform admins can never
// be blocked.
func (s *ModerationService) Block(ctx context.Context, ref, targetUserID string, input BlockMemberInput, actorID shared.ID) (*space.Membership, error) {
	sp, m, err := s.loadTarget(ctx, ref, targetUserID)
	if err != nil {
		return nil, err
	}
	if _, err := requireManager(ctx, s.repo, s.userRepo, actorID, sp.ID()); err != nil {
		return nil, err
	}

	admin, err := isPlatformAdmin(ctx, s.userRepo, m.UserID())
	if err != nil {
		return nil, err
	}
	if admin {
		return nil, space.ErrCannotBlockAdmin
	}

	blockType, ok := space.ParseBlockType(input.BlockType)
	if !ok {
		return nil, fmt.Errorf("%w: invalid block type", shared.ErrValidation)
	}
	block, err := space.NewBlock(blockType, input.ExpiresAt, actorID)
	if err != nil {
		return nil, err
	}
	if err := m.ApplyBlock(block); err != nil {
		return nil, err
	}

	targetID := m.UserID()
	payload := map[string]any{"block_type": blockType.String()}
	if input.Reason != "" {
		payload["reason"] = input.Reason
	}
	event, err := notification.NewOutbox(sp.ID(), notification.EventMemberBlocked, &actorID, &targetID, payload)
	if err != nil {
		return nil, err
	}
	if err := s.repo.UpdateMembershipTx(ctx, m, event); err != nil {
		return nil, err
	}
	metrics.ModerationActionsTotal.WithLabelValues("block").Inc()

	s.logger.Info("member blocked",
		"space_id", sp.ID().String(),
		"user_id", m.UserID().String(),
		"block_type", blockType.String(),
	)
	return m, nil
}

// Unblock lifts any block on the target. Idempotent on an active membership.
func (s *ModerationService) Unblock(ctx context.Context, ref, targetUserID string, actorID shared.ID) (*space.Membership, error) {
	sp, m, err := s.loadTarget(ctx, ref, targetUserID)
	if err != nil {
		return nil, err
	}
	if _, err := requireManager(ctx, s.repo, s.userRepo, actorID, sp.ID()); err != nil {
		return nil, err
	}

	if m.Block() == nil {
		return m, nil
	}
	m.LiftBlock()

	targetID := m.UserID()
	event, err := notification.NewOutbox(sp.ID(), notification.EventMemberUnblocked, &actorID, &targetID, nil)
	if err != nil {
		return nil, err
	}
	if err := s.repo.UpdateMembershipTx(ctx, m, event); err != nil {
		return nil, err
	}
	metrics.ModerationActionsTotal.WithLabelValues("unblock").Inc()

	s.logger.Info("member unblocked",
		"space_id", sp.ID().String(),
		"user_id", m.UserID().String(),
	)
	return m, nil
}

// Remove deletes the membership entirely. Terminal: a later rejoin starts
// from a fresh member-role membership with no memory of block history.
func (s *ModerationService) Remove(ctx context.Context, ref, targetUserID string, actorID shared.ID) error {
	sp, m, err := s.loadTarget(ctx, ref, targetUserID)
	if err != nil {
		return err
	}
	if _, err := requireManager(ctx, s.repo, s.userRepo, actorID, sp.ID()); err != nil {
		return err
	}

	targetID := m.UserID()
	event, err := notification.NewOutbox(sp.ID(), notification.EventMemberRemoved, &actorID, &targetID, map[string]any{
		"via": "removed",
	})
	if err != nil {
		return err
	}
	if err := s.repo.DeleteMembershipTx(ctx, m.ID(), event); err != nil {
		return err
	}
	metrics.ModerationActionsTotal.WithLabelValues("remove").Inc()
	metrics.MembershipsTotal.WithLabelValues("removed").Inc()

	s.logger.Info("member removed",
		"space_id", sp.ID().String(),
		"user_id", m.UserID().String(),
	)
	return nil
}

func (s *ModerationService) loadTarget(ctx context.Context, ref, targetUserID string) (*space.Space, *space.Membership, error) {
	sp, err := resolveSpace(ctx, s.repo, ref)
	if err != nil {
		return nil, nil, err
	}
	targetID, err := shared.IDFromString(targetUserID)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: invalid user id format", shared.ErrValidation)
	}
	m, err := s.repo.GetMembership(ctx, targetID, sp.ID())
	if err != nil {
		return nil, nil, err
	}
	return sp, m, nil
}

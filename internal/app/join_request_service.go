package app

import (
	"context"
	"fmt"

	"github.com/gatherhq/api/internal/metrics"
	"github.com/gatherhq/api/pkg/domain/notification"
	"github.com/gatherhq/api/pkg/domain/shared"
	"github.com/gatherhq/api/pkg/domain/space"
	"github.com/gatherhq/api/pkg/domain/user"
	"github.com/gatherhq/api/pkg/logger"
)

// JoinRequestService handles the join-request workflow for private and
// secret spaces.
type JoinRequestService struct {
	repo     space.Repository
	userRepo user.Repository
	logger   *logger.Logger
}

// NewJoinRequestService creates a new JoinRequestService.
func NewJoinRequestService(repo space.Repository, userRepo user.Repository, log *logger.Logger) *JoinRequestService {
	return &JoinRequestService{
		repo:     repo,
		userRepo: userRepo,
		logger:   log.With("service", "join_request"),
	}
}

// CreateJoinRequestInput represents the input for filing a join request.
type CreateJoinRequestInput struct {
	Message string `json:"message" validate:"max=1000"`
}

// Create files a join request against a private or secret space. Public
// spaces are joined directly instead.
func (s *JoinRequestService) Create(ctx context.Context, ref string, input CreateJoinRequestInput, userID shared.ID) (*space.JoinRequest, error) {
	sp, err := resolveSpace(ctx, s.repo, ref)
	if err != nil {
		return nil, err
	}

	if !sp.Visibility().AllowsJoinRequests() {
		return nil, fmt.Errorf("public spaces are joined directly: %w", space.ErrNotApplicable)
	}

	if _, err := s.repo.GetMembership(ctx, userID, sp.ID()); err == nil {
		return nil, space.ErrAlreadyMember
	} else if !shared.IsNotFound(err) {
		return nil, fmt.Errorf("failed to check membership: %w", err)
	}

	r, err := space.NewJoinRequest(userID, sp.ID(), input.Message)
	if err != nil {
		return nil, err
	}
	event, err := notification.NewOutbox(sp.ID(), notification.EventJoinRequestCreated, &userID, nil, map[string]any{
		"request_id": r.ID().String(),
	})
	if err != nil {
		return nil, err
	}

	if err := s.repo.CreateJoinRequest(ctx, r, event); err != nil {
		return nil, err
	}
	metrics.JoinRequestsTotal.WithLabelValues("created").Inc()

	s.logger.Info("join request created",
		"request_id", r.ID().String(),
		"space_id", sp.ID().String(),
		"user_id", userID.String(),
	)
	return r, nil
}

// Cancel withdraws a pending request. Only the requester may cancel.
func (s *JoinRequestService) Cancel(ctx context.Context, requestID string, actorID shared.ID) error {
	id, err := shared.IDFromString(requestID)
	if err != nil {
		return fmt.Errorf("%w: invalid request id format", shared.ErrValidation)
	}

	r, err := s.repo.GetJoinRequest(ctx, id)
	if err != nil {
		return err
	}
	if err := r.Cancel(actorID); err != nil {
		return err
	}

	event, err := notification.NewOutbox(r.SpaceID(), notification.EventJoinRequestCancelled, &actorID, nil, map[string]any{
		"request_id": r.ID().String(),
	})
	if err != nil {
		return err
	}
	if err := s.repo.UpdateJoinRequest(ctx, r, event); err != nil {
		return err
	}
	metrics.JoinRequestsTotal.WithLabelValues("cancelled").Inc()

	s.logger.Info("join request cancelled", "request_id", r.ID().String())
	return nil
}

// Approve grants a pending request and materializes the membership in one
// transaction. Approving an already-approved request succeeds idempotently.
func (s *JoinRequestService) Approve(ctx context.Context, requestID string, actorID shared.ID) error {
	id, err := shared.IDFromString(requestID)
	if err != nil {
		return fmt.Errorf("%w: invalid request id format", shared.ErrValidation)
	}

	r, err := s.repo.GetJoinRequest(ctx, id)
	if err != nil {
		return err
	}
	if _, err := requireManager(ctx, s.repo, s.userRepo, actorID, r.SpaceID()); err != nil {
		return err
	}

	if err := s.approve(ctx, r, actorID); err != nil {
		return err
	}

	s.logger.Info("join request approved",
		"request_id", r.ID().String(),
		"space_id", r.SpaceID().String(),
		"user_id", r.UserID().String(),
	)
	return nil
}

// Reject declines a pending request. The requester may file a fresh request
// later; rejection is terminal for this request only.
func (s *JoinRequestService) Reject(ctx context.Context, requestID string, actorID shared.ID) error {
	id, err := shared.IDFromString(requestID)
	if err != nil {
		return fmt.Errorf("%w: invalid request id format", shared.ErrValidation)
	}

	r, err := s.repo.GetJoinRequest(ctx, id)
	if err != nil {
		return err
	}
	if _, err := requireManager(ctx, s.repo, s.userRepo, actorID, r.SpaceID()); err != nil {
		return err
	}

	if err := r.Reject(actorID); err != nil {
		return err
	}
	requesterID := r.UserID()
	event, err := notification.NewOutbox(r.SpaceID(), notification.EventJoinRejected, &actorID, &requesterID, map[string]any{
		"request_id": r.ID().String(),
	})
	if err != nil {
		return err
	}
	if err := s.repo.UpdateJoinRequest(ctx, r, event); err != nil {
		return err
	}
	metrics.JoinRequestsTotal.WithLabelValues("rejected").Inc()

	s.logger.Info("join request rejected", "request_id", r.ID().String())
	return nil
}

// ApproveAll approves every pending request for a space, best effort. A
// failure on one request never aborts the rest; callers receive the per-item
// outcomes.
func (s *JoinRequestService) ApproveAll(ctx context.Context, ref string, actorID shared.ID) ([]space.ApprovalResult, error) {
	sp, err := resolveSpace(ctx, s.repo, ref)
	if err != nil {
		return nil, err
	}
	if _, err := requireManager(ctx, s.repo, s.userRepo, actorID, sp.ID()); err != nil {
		return nil, err
	}

	pending, err := s.repo.ListPendingJoinRequests(ctx, sp.ID())
	if err != nil {
		return nil, fmt.Errorf("failed to list pending requests: %w", err)
	}

	results := make([]space.ApprovalResult, 0, len(pending))
	for _, r := range pending {
		results = append(results, space.ApprovalResult{
			RequestID: r.ID(),
			UserID:    r.UserID(),
			Err:       s.approve(ctx, r, actorID),
		})
	}

	s.logger.Info("bulk approval finished",
		"space_id", sp.ID().String(),
		"total", len(results),
	)
	return results, nil
}

// ListPending returns the pending requests for a space, oldest first.
func (s *JoinRequestService) ListPending(ctx context.Context, ref string, actorID shared.ID) ([]*space.JoinRequest, error) {
	sp, err := resolveSpace(ctx, s.repo, ref)
	if err != nil {
		return nil, err
	}
	if _, err := requireManager(ctx, s.repo, s.userRepo, actorID, sp.ID()); err != nil {
		return nil, err
	}
	return s.repo.ListPendingJoinRequests(ctx, sp.ID())
}

func (s *JoinRequestService) approve(ctx context.Context, r *space.JoinRequest, actorID shared.ID) error {
	if err := r.Approve(actorID); err != nil {
		return err
	}

	m, err := space.NewMembership(r.UserID(), r.SpaceID())
	if err != nil {
		return err
	}
	requesterID := r.UserID()
	event, err := notification.NewOutbox(r.SpaceID(), notification.EventJoinApproved, &actorID, &requesterID, map[string]any{
		"request_id": r.ID().String(),
	})
	if err != nil {
		return err
	}

	applied, err := s.repo.ApproveJoinRequestTx(ctx, r, m, event)
	if err != nil {
		return err
	}
	if applied {
		metrics.JoinRequestsTotal.WithLabelValues("approved").Inc()
		metrics.MembershipsTotal.WithLabelValues("joined").Inc()
	}
	return nil
}

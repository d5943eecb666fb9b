package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/gatherhq/api/internal/metrics"
)

// =============================================================================
// Task Types
// =============================================================================

const (
	// TypeBlockSweep is the task type for lifting expired membership blocks.
	TypeBlockSweep = "maintenance:block_sweep"

	// TypeInviteSweep is the task type for deactivating expired invites.
	TypeInviteSweep = "maintenance:invite_sweep"
)

// =============================================================================
// Task Payloads
// =============================================================================

// BlockSweepPayload contains data for the block sweep task.
type BlockSweepPayload struct {
	AsOf time.Time `json:"as_of"`
}

// InviteSweepPayload contains data for the invite sweep task.
type InviteSweepPayload struct {
	AsOf time.Time `json:"as_of"`
}

// =============================================================================
// Task Creators
// =============================================================================

// NewBlockSweepTask creates a task that lifts membership blocks whose expiry
// has passed.
func NewBlockSweepTask(asOf time.Time) (*asynq.Task, error) {
	payload, err := json.Marshal(BlockSweepPayload{AsOf: asOf})
	if err != nil {
		return nil, fmt.Errorf("marshal block sweep payload: %w", err)
	}

	return asynq.NewTask(
		TypeBlockSweep,
		payload,
		asynq.MaxRetry(3),
		asynq.Timeout(1*time.Minute),
		asynq.Queue("maintenance"),
	), nil
}

// NewInviteSweepTask creates a task that deactivates invites past their
// expiry.
func NewInviteSweepTask(asOf time.Time) (*asynq.Task, error) {
	payload, err := json.Marshal(InviteSweepPayload{AsOf: asOf})
	if err != nil {
		return nil, fmt.Errorf("marshal invite sweep payload: %w", err)
	}

	return asynq.NewTask(
		TypeInviteSweep,
		payload,
		asynq.MaxRetry(3),
		asynq.Timeout(1*time.Minute),
		asynq.Queue("maintenance"),
	), nil
}

// =============================================================================
// Task Handlers
// =============================================================================

// MaintenanceStore defines the store operations the maintenance tasks need.
// It is satisfied by the space repository.
type MaintenanceStore interface {
	// SweepExpiredBlocks lifts blocks whose expiry has passed and returns
	// how many memberships were flipped back to active.
	SweepExpiredBlocks(ctx context.Context, now time.Time) (int64, error)

	// DeactivateExpiredInvites deactivates invites past their expiry.
	DeactivateExpiredInvites(ctx context.Context, now time.Time) (int64, error)
}

// MaintenanceTaskHandler handles periodic maintenance tasks.
type MaintenanceTaskHandler struct {
	store MaintenanceStore
	log   *slog.Logger
}

// NewMaintenanceTaskHandler creates a new maintenance task handler.
func NewMaintenanceTaskHandler(store MaintenanceStore, log *slog.Logger) *MaintenanceTaskHandler {
	return &MaintenanceTaskHandler{
		store: store,
		log:   log,
	}
}

// HandleBlockSweep handles the block sweep task.
func (h *MaintenanceTaskHandler) HandleBlockSweep(ctx context.Context, t *asynq.Task) error {
	var payload BlockSweepPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}

	asOf := payload.AsOf
	if asOf.IsZero() {
		asOf = time.Now()
	}

	lifted, err := h.store.SweepExpiredBlocks(ctx, asOf)
	if err != nil {
		h.log.Error("failed to sweep expired blocks",
			"error", err,
		)
		return err
	}

	if lifted > 0 {
		metrics.ExpiredBlocksLifted.Add(float64(lifted))
		h.log.Info("lifted expired membership blocks",
			"count", lifted,
		)
	}

	return nil
}

// HandleInviteSweep handles the invite sweep task.
func (h *MaintenanceTaskHandler) HandleInviteSweep(ctx context.Context, t *asynq.Task) error {
	var payload InviteSweepPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}

	asOf := payload.AsOf
	if asOf.IsZero() {
		asOf = time.Now()
	}

	deactivated, err := h.store.DeactivateExpiredInvites(ctx, asOf)
	if err != nil {
		h.log.Error("failed to deactivate expired invites",
			"error", err,
		)
		return err
	}

	if deactivated > 0 {
		h.log.Info("deactivated expired invites",
			"count", deactivated,
		)
	}

	return nil
}

// RegisterHandlers registers maintenance task handlers with the asynq server mux.
func (h *MaintenanceTaskHandler) RegisterHandlers(mux *asynq.ServeMux) {
	mux.HandleFunc(TypeBlockSweep, h.HandleBlockSweep)
	mux.HandleFunc(TypeInviteSweep, h.HandleInviteSweep)
}

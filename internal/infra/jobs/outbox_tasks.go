package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
)

// =============================================================================
// Task Types
// =============================================================================

const (
	// TypeOutboxDispatch is the task type for dispatching pending outbox entries.
	TypeOutboxDispatch = "outbox:dispatch"

	// TypeOutboxReleaseStale is the task type for releasing stale locks.
	TypeOutboxReleaseStale = "outbox:release_stale"

	// TypeOutboxCleanup is the task type for deleting old processed entries.
	TypeOutboxCleanup = "outbox:cleanup"
)

// =============================================================================
// Task Payloads
// =============================================================================

// OutboxDispatchPayload contains data for dispatching a batch of entries.
type OutboxDispatchPayload struct {
	WorkerID  string `json:"worker_id"`
	BatchSize int    `json:"batch_size"`
}

// OutboxReleaseStalePayload contains data for releasing stale locks.
type OutboxReleaseStalePayload struct {
	StaleAfterSeconds int `json:"stale_after_seconds"`
}

// OutboxCleanupPayload contains data for cleanup tasks.
type OutboxCleanupPayload struct {
	OlderThanDays int `json:"older_than_days"`
}

// =============================================================================
// Task Creators
// =============================================================================

// NewOutboxDispatchTask creates a task for dispatching pending outbox entries.
func NewOutboxDispatchTask(workerID string, batchSize int) (*asynq.Task, error) {
	payload, err := json.Marshal(OutboxDispatchPayload{
		WorkerID:  workerID,
		BatchSize: batchSize,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal outbox dispatch payload: %w", err)
	}

	return asynq.NewTask(
		TypeOutboxDispatch,
		payload,
		asynq.MaxRetry(0), // Delivery retries are tracked per entry, not per task
		asynq.Timeout(2*time.Minute),
		asynq.Queue("outbox"),
	), nil
}

// NewOutboxReleaseStaleTask creates a task that releases locks held past the
// stale threshold.
func NewOutboxReleaseStaleTask(staleAfter time.Duration) (*asynq.Task, error) {
	payload, err := json.Marshal(OutboxReleaseStalePayload{
		StaleAfterSeconds: int(staleAfter.Seconds()),
	})
	if err != nil {
		return nil, fmt.Errorf("marshal outbox release stale payload: %w", err)
	}

	return asynq.NewTask(
		TypeOutboxReleaseStale,
		payload,
		asynq.MaxRetry(3),
		asynq.Timeout(1*time.Minute),
		asynq.Queue("maintenance"),
	), nil
}

// NewOutboxCleanupTask creates a task for deleting old processed entries.
func NewOutboxCleanupTask(olderThanDays int) (*asynq.Task, error) {
	payload, err := json.Marshal(OutboxCleanupPayload{
		OlderThanDays: olderThanDays,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal outbox cleanup payload: %w", err)
	}

	return asynq.NewTask(
		TypeOutboxCleanup,
		payload,
		asynq.MaxRetry(3),
		asynq.Timeout(5*time.Minute),
		asynq.Queue("maintenance"),
	), nil
}

// =============================================================================
// Task Handlers
// =============================================================================

// OutboxProcessor defines the interface for draining the outbox.
// This is implemented by the outbox dispatcher service.
type OutboxProcessor interface {
	// DispatchBatch claims and dispatches a batch of pending entries.
	DispatchBatch(ctx context.Context, workerID string, batchSize int) (dispatched, failed int, err error)

	// ReleaseStale returns entries locked longer than staleAfter to pending.
	ReleaseStale(ctx context.Context, staleAfter time.Duration) (int64, error)

	// DeleteProcessed removes processed and dead entries older than the cutoff.
	DeleteProcessed(ctx context.Context, olderThan time.Time) (int64, error)
}

// OutboxTaskHandler handles outbox-related tasks.
type OutboxTaskHandler struct {
	processor OutboxProcessor
	log       *slog.Logger
}

// NewOutboxTaskHandler creates a new outbox task handler.
func NewOutboxTaskHandler(processor OutboxProcessor, log *slog.Logger) *OutboxTaskHandler {
	return &OutboxTaskHandler{
		processor: processor,
		log:       log,
	}
}

// HandleDispatch handles the outbox dispatch task.
func (h *OutboxTaskHandler) HandleDispatch(ctx context.Context, t *asynq.Task) error {
	var payload OutboxDispatchPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}

	dispatched, failed, err := h.processor.DispatchBatch(ctx, payload.WorkerID, payload.BatchSize)
	if err != nil {
		h.log.Error("failed to dispatch outbox batch",
			"error", err,
			"worker_id", payload.WorkerID,
		)
		return err
	}

	if dispatched > 0 || failed > 0 {
		h.log.Info("dispatched outbox batch",
			"worker_id", payload.WorkerID,
			"dispatched", dispatched,
			"failed", failed,
		)
	}

	return nil
}

// HandleReleaseStale handles the release stale locks task.
func (h *OutboxTaskHandler) HandleReleaseStale(ctx context.Context, t *asynq.Task) error {
	var payload OutboxReleaseStalePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}

	staleAfter := time.Duration(payload.StaleAfterSeconds) * time.Second
	released, err := h.processor.ReleaseStale(ctx, staleAfter)
	if err != nil {
		h.log.Error("failed to release stale outbox entries",
			"error", err,
		)
		return err
	}

	if released > 0 {
		h.log.Warn("released stale outbox entries",
			"released", released,
			"stale_after", staleAfter,
		)
	}

	return nil
}

// HandleCleanup handles the outbox cleanup task.
func (h *OutboxTaskHandler) HandleCleanup(ctx context.Context, t *asynq.Task) error {
	var payload OutboxCleanupPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}

	cutoff := time.Now().AddDate(0, 0, -payload.OlderThanDays)
	deleted, err := h.processor.DeleteProcessed(ctx, cutoff)
	if err != nil {
		h.log.Error("failed to cleanup outbox",
			"error", err,
		)
		return err
	}

	if deleted > 0 {
		h.log.Info("cleaned up outbox",
			"deleted", deleted,
			"older_than_days", payload.OlderThanDays,
		)
	}

	return nil
}

// RegisterHandlers registers outbox task handlers with the asynq server mux.
func (h *OutboxTaskHandler) RegisterHandlers(mux *asynq.ServeMux) {
	mux.HandleFunc(TypeOutboxDispatch, h.HandleDispatch)
	mux.HandleFunc(TypeOutboxReleaseStale, h.HandleReleaseStale)
	mux.HandleFunc(TypeOutboxCleanup, h.HandleCleanup)
}

package app

import (
	"context"
	"fmt"
	"time"

	"github.com/gatherhq/api/internal/metrics"
	"github.com/gatherhq/api/pkg/domain/notification"
	"github.com/gatherhq/api/pkg/logger"
)

// Notifier receives committed membership events. Delivery and formatting
// belong to the notification service; in this repo a logging notifier stands
// in for it.
type Notifier interface {
	Notify(ctx context.Context, event *notification.Outbox) error
}

// LogNotifier writes events to the log. Used until a real notification
// service is wired in.
type LogNotifier struct {
	logger *logger.Logger
}

// NewLogNotifier creates a notifier that logs events.
func NewLogNotifier(log *logger.Logger) *LogNotifier {
	return &LogNotifier{logger: log.With("component", "log_notifier")}
}

// Notify logs the event.
func (n *LogNotifier) Notify(_ context.Context, event *notification.Outbox) error {
	n.logger.Info("membership event",
		"event_type", event.EventType(),
		"space_id", event.SpaceID().String(),
		"event_id", event.ID().String(),
	)
	return nil
}

// OutboxDispatcher drains committed outbox entries and hands them to the
// notifier. Entries are claimed in batches with per-entry locks, so multiple
// dispatchers can run side by side.
type OutboxDispatcher struct {
	repo     notification.OutboxRepository
	notifier Notifier
	logger   *logger.Logger
}

// NewOutboxDispatcher creates a new OutboxDispatcher.
func NewOutboxDispatcher(repo notification.OutboxRepository, notifier Notifier, log *logger.Logger) *OutboxDispatcher {
	return &OutboxDispatcher{
		repo:     repo,
		notifier: notifier,
		logger:   log.With("service", "outbox_dispatcher"),
	}
}

// DispatchBatch claims up to batchSize pending entries for the worker and
// dispatches them one by one. A delivery failure marks only that entry for
// retry; the rest of the batch proceeds.
func (d *OutboxDispatcher) DispatchBatch(ctx context.Context, workerID string, batchSize int) (dispatched, failed int, err error) {
	start := time.Now()
	defer func() {
		metrics.OutboxDispatchDuration.Observe(time.Since(start).Seconds())
	}()

	entries, err := d.repo.FetchPending(ctx, workerID, batchSize)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to fetch pending entries: %w", err)
	}

	for _, entry := range entries {
		if dispatchErr := d.notifier.Notify(ctx, entry); dispatchErr != nil {
			entry.MarkAttemptFailed(dispatchErr)
			failed++
			metrics.OutboxDispatchedTotal.WithLabelValues("failed").Inc()
			d.logger.Warn("event dispatch failed",
				"event_id", entry.ID().String(),
				"event_type", entry.EventType(),
				"retry_count", entry.RetryCount(),
				"error", dispatchErr,
			)
		} else {
			entry.MarkProcessed()
			dispatched++
			metrics.OutboxDispatchedTotal.WithLabelValues("processed").Inc()
		}

		if updateErr := d.repo.Update(ctx, entry); updateErr != nil {
			d.logger.Error("failed to persist entry state",
				"event_id", entry.ID().String(),
				"error", updateErr,
			)
		}
	}

	d.updatePendingGauge(ctx)
	return dispatched, failed, nil
}

// ReleaseStale returns entries locked longer than staleAfter to pending, so
// work lost to a crashed dispatcher is picked up again.
func (d *OutboxDispatcher) ReleaseStale(ctx context.Context, staleAfter time.Duration) (int64, error) {
	released, err := d.repo.ReleaseStale(ctx, time.Now().UTC().Add(-staleAfter))
	if err != nil {
		return 0, fmt.Errorf("failed to release stale entries: %w", err)
	}
	if released > 0 {
		d.updatePendingGauge(ctx)
	}
	return released, nil
}

// DeleteProcessed prunes terminal entries older than the cutoff.
func (d *OutboxDispatcher) DeleteProcessed(ctx context.Context, olderThan time.Time) (int64, error) {
	deleted, err := d.repo.DeleteProcessed(ctx, olderThan)
	if err != nil {
		return 0, fmt.Errorf("failed to delete processed entries: %w", err)
	}
	return deleted, nil
}

func (d *OutboxDispatcher) updatePendingGauge(ctx context.Context) {
	pending, err := d.repo.CountPending(ctx)
	if err != nil {
		d.logger.Warn("failed to count pending entries", "error", err)
		return
	}
	metrics.OutboxPending.Set(float64(pending))
}

package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/gatherhq/api/pkg/logger"
)

// Client manages enqueueing background jobs using Asynq.
type Client struct {
	client *asynq.Client
	logger *logger.Logger
}

// ClientConfig contains configuration for the job client.
type ClientConfig struct {
	RedisAddr     string
	RedisPassword string
	RedisDB       int
}

// NewClient creates a new job client for enqueueing tasks.
func NewClient(cfg ClientConfig, log *logger.Logger) (*Client, error) {
	redisOpt := asynq.RedisClientOpt{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}

	client := asynq.NewClient(redisOpt)

	return &Client{
		client: client,
		logger: log.With("component", "job_client"),
	}, nil
}

// Close closes the client connection.
func (c *Client) Close() error {
	return c.client.Close()
}

// EnqueueBlockSweep enqueues a sweep of expired membership blocks.
func (c *Client) EnqueueBlockSweep(ctx context.Context, asOf time.Time) error {
	task, err := NewBlockSweepTask(asOf)
	if err != nil {
		return fmt.Errorf("failed to create task: %w", err)
	}

	info, err := c.client.EnqueueContext(ctx, task)
	if err != nil {
		c.logger.Error("failed to enqueue block sweep",
			"error", err,
		)
		return fmt.Errorf("failed to enqueue task: %w", err)
	}

	c.logger.Debug("block sweep queued",
		"task_id", info.ID,
		"queue", info.Queue,
	)
	return nil
}

// EnqueueInviteSweep enqueues a sweep of expired invites.
func (c *Client) EnqueueInviteSweep(ctx context.Context, asOf time.Time) error {
	task, err := NewInviteSweepTask(asOf)
	if err != nil {
		return fmt.Errorf("failed to create task: %w", err)
	}

	info, err := c.client.EnqueueContext(ctx, task)
	if err != nil {
		c.logger.Error("failed to enqueue invite sweep",
			"error", err,
		)
		return fmt.Errorf("failed to enqueue task: %w", err)
	}

	c.logger.Debug("invite sweep queued",
		"task_id", info.ID,
		"queue", info.Queue,
	)
	return nil
}

// EnqueueOutboxDispatch enqueues a dispatch pass over pending outbox entries.
func (c *Client) EnqueueOutboxDispatch(ctx context.Context, workerID string, batchSize int) error {
	task, err := NewOutboxDispatchTask(workerID, batchSize)
	if err != nil {
		return fmt.Errorf("failed to create task: %w", err)
	}

	info, err := c.client.EnqueueContext(ctx, task)
	if err != nil {
		c.logger.Error("failed to enqueue outbox dispatch",
			"worker_id", workerID,
			"error", err,
		)
		return fmt.Errorf("failed to enqueue task: %w", err)
	}

	c.logger.Debug("outbox dispatch queued",
		"task_id", info.ID,
		"worker_id", workerID,
		"queue", info.Queue,
	)
	return nil
}

// EnqueueOutboxReleaseStale enqueues a release of stale outbox locks.
func (c *Client) EnqueueOutboxReleaseStale(ctx context.Context, staleAfter time.Duration) error {
	task, err := NewOutboxReleaseStaleTask(staleAfter)
	if err != nil {
		return fmt.Errorf("failed to create task: %w", err)
	}

	info, err := c.client.EnqueueContext(ctx, task)
	if err != nil {
		c.logger.Error("failed to enqueue outbox release stale",
			"error", err,
		)
		return fmt.Errorf("failed to enqueue task: %w", err)
	}

	c.logger.Debug("outbox release stale queued",
		"task_id", info.ID,
		"queue", info.Queue,
	)
	return nil
}

// EnqueueOutboxCleanup enqueues a cleanup of old processed outbox entries.
func (c *Client) EnqueueOutboxCleanup(ctx context.Context, olderThanDays int) error {
	task, err := NewOutboxCleanupTask(olderThanDays)
	if err != nil {
		return fmt.Errorf("failed to create task: %w", err)
	}

	info, err := c.client.EnqueueContext(ctx, task)
	if err != nil {
		c.logger.Error("failed to enqueue outbox cleanup",
			"error", err,
		)
		return fmt.Errorf("failed to enqueue task: %w", err)
	}

	c.logger.Info("outbox cleanup queued",
		"task_id", info.ID,
		"queue", info.Queue,
	)
	return nil
}

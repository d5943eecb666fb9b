package jobs

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/gatherhq/api/internal/config"
	"github.com/gatherhq/api/pkg/logger"
)

// Scheduler periodically enqueues the recurring maintenance and outbox tasks.
// Every instance enqueues independently; the guarded store updates make the
// sweeps safe to run from more than one process at a time.
type Scheduler struct {
	client   *Client
	config   *config.WorkerConfig
	logger   *logger.Logger
	workerID string
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// NewScheduler creates a new Scheduler.
func NewScheduler(client *Client, cfg *config.WorkerConfig, log *logger.Logger) *Scheduler {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}

	return &Scheduler{
		client:   client,
		config:   cfg,
		logger:   log.With("component", "job-scheduler"),
		workerID: fmt.Sprintf("%s-%d", hostname, os.Getpid()),
		stopCh:   make(chan struct{}),
	}
}

// Start starts the scheduler in a background goroutine.
func (s *Scheduler) Start() {
	if !s.config.Enabled {
		s.logger.Info("job scheduler is disabled")
		return
	}

	s.logger.Info("starting job scheduler",
		"worker_id", s.workerID,
		"block_sweep_interval", s.config.BlockSweepInterval,
		"invite_sweep_interval", s.config.InviteSweepInterval,
		"outbox_drain_interval", s.config.OutboxDrainInterval,
	)

	s.wg.Add(1)
	go s.run()
}

// Stop stops the scheduler gracefully.
func (s *Scheduler) Stop() {
	s.logger.Info("stopping job scheduler")
	close(s.stopCh)
	s.wg.Wait()
	s.logger.Info("job scheduler stopped")
}

func (s *Scheduler) run() {
	defer s.wg.Done()

	blockTicker := time.NewTicker(s.config.BlockSweepInterval)
	defer blockTicker.Stop()

	inviteTicker := time.NewTicker(s.config.InviteSweepInterval)
	defer inviteTicker.Stop()

	drainTicker := time.NewTicker(s.config.OutboxDrainInterval)
	defer drainTicker.Stop()

	staleTicker := time.NewTicker(s.config.OutboxStaleAfter)
	defer staleTicker.Stop()

	// Run the sweeps immediately on start
	s.enqueueBlockSweep()
	s.enqueueInviteSweep()

	for {
		select {
		case <-blockTicker.C:
			s.enqueueBlockSweep()
		case <-inviteTicker.C:
			s.enqueueInviteSweep()
		case <-drainTicker.C:
			s.enqueueOutboxDispatch()
		case <-staleTicker.C:
			s.enqueueOutboxReleaseStale()
		case <-s.stopCh:
			return
		}
	}
}

func (s *Scheduler) enqueueBlockSweep() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.client.EnqueueBlockSweep(ctx, time.Now()); err != nil {
		s.logger.Error("failed to enqueue block sweep", "error", err)
	}
}

func (s *Scheduler) enqueueInviteSweep() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.client.EnqueueInviteSweep(ctx, time.Now()); err != nil {
		s.logger.Error("failed to enqueue invite sweep", "error", err)
	}
}

func (s *Scheduler) enqueueOutboxDispatch() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.client.EnqueueOutboxDispatch(ctx, s.workerID, s.config.OutboxBatchSize); err != nil {
		s.logger.Error("failed to enqueue outbox dispatch", "error", err)
	}
}

func (s *Scheduler) enqueueOutboxReleaseStale() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.client.EnqueueOutboxReleaseStale(ctx, s.config.OutboxStaleAfter); err != nil {
		s.logger.Error("failed to enqueue outbox release stale", "error", err)
	}
}

package jobs

import (
	"context"
	"fmt"

	"github.com/hibiken/asynq"

	"github.com/gatherhq/api/pkg/logger"
)

// WorkerConfig holds the configuration for the job worker.
type WorkerConfig struct {
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	Concurrency   int
}

// WorkerOption is a functional option for configuring the Worker.
type WorkerOption func(*Worker)

// Worker processes background jobs.
type Worker struct {
	server           *asynq.Server
	mux              *asynq.ServeMux
	logger           *logger.Logger
	maintenanceStore MaintenanceStore
	outboxProcessor  OutboxProcessor
}

// WithMaintenanceStore adds a maintenance store to the worker.
func WithMaintenanceStore(store MaintenanceStore) WorkerOption {
	return func(w *Worker) {
		w.maintenanceStore = store
	}
}

// WithOutboxProcessor adds an outbox processor to the worker.
func WithOutboxProcessor(processor OutboxProcessor) WorkerOption {
	return func(w *Worker) {
		w.outboxProcessor = processor
	}
}

// NewWorker creates a new background job worker.
func NewWorker(cfg WorkerConfig, log *logger.Logger, opts ...WorkerOption) (*Worker, error) {
	server := asynq.NewServer(
		asynq.RedisClientOpt{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		},
		asynq.Config{
			Concurrency: cfg.Concurrency,
			Queues: map[string]int{
				"default":     10,
				"outbox":      5,
				"maintenance": 2,
			},
		},
	)

	mux := asynq.NewServeMux()

	w := &Worker{
		server: server,
		mux:    mux,
		logger: log,
	}

	// Apply options
	for _, opt := range opts {
		opt(w)
	}

	// Register maintenance handlers if store is provided
	if w.maintenanceStore != nil {
		maintenanceHandler := NewMaintenanceTaskHandler(w.maintenanceStore, log.Logger)
		maintenanceHandler.RegisterHandlers(mux)
		log.Info("maintenance task handlers registered")
	}

	// Register outbox handlers if processor is provided
	if w.outboxProcessor != nil {
		outboxHandler := NewOutboxTaskHandler(w.outboxProcessor, log.Logger)
		outboxHandler.RegisterHandlers(mux)
		log.Info("outbox task handlers registered")
	}

	return w, nil
}

// Start starts the worker.
func (w *Worker) Start() error {
	w.logger.Info("starting job worker")
	return w.server.Start(w.mux)
}

// Stop stops the worker gracefully.
func (w *Worker) Stop() {
	w.logger.Info("stopping job worker")
	w.server.Shutdown()
}

// Run runs the worker until shutdown.
func (w *Worker) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- w.server.Start(w.mux)
	}()

	select {
	case <-ctx.Done():
		w.Stop()
		return ctx.Err()
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("worker error: %w", err)
		}
		return nil
	}
}

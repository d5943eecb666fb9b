// Command server runs the Gather API.
package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gatherhq/api/internal/app"
	"github.com/gatherhq/api/internal/config"
	infrahttp "github.com/gatherhq/api/internal/infra/http"
	"github.com/gatherhq/api/internal/infra/http/handler"
	"github.com/gatherhq/api/internal/infra/http/routes"
	"github.com/gatherhq/api/internal/infra/jobs"
	"github.com/gatherhq/api/internal/infra/notification"
	"github.com/gatherhq/api/internal/infra/postgres"
	"github.com/gatherhq/api/internal/infra/redis"
	"github.com/gatherhq/api/pkg/jwt"
	"github.com/gatherhq/api/pkg/logger"
	"github.com/gatherhq/api/pkg/validator"
)

const memberCountCacheTTL = 30 * time.Second

func main() {
	os.Exit(run())
}

func run() int {
	// ===== Config & Logger =====

	cfg, err := config.Load()
	if err != nil {
		logger.New(logger.DefaultConfig()).Error("failed to load configuration", "error", err)
		return 1
	}

	log := logger.New(logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
	})

	log.Info("starting gather api",
		"name", cfg.App.Name,
		"env", cfg.App.Env,
	)

	// ===== Infrastructure =====

	db, err := postgres.New(&cfg.Database)
	if err != nil {
		log.Error("failed to connect to database", "error", err)
		return 1
	}
	defer closeWithLog(db, "database", log)

	redisClient, err := redis.New(&cfg.Redis, log)
	if err != nil {
		log.Error("failed to connect to redis", "error", err)
		return 1
	}
	defer closeWithLog(redisClient, "redis", log)

	// ===== Repositories =====

	spaceRepo := postgres.NewSpaceRepository(db)
	userRepo := postgres.NewUserRepository(db)
	outboxRepo := postgres.NewOutboxRepository(db)

	// ===== Services =====

	tokens := jwt.NewGenerator(jwt.TokenConfig{
		Secret:               cfg.Auth.JWTSecret,
		Issuer:               cfg.Auth.JWTIssuer,
		AccessTokenDuration:  cfg.Auth.AccessTokenDuration,
		RefreshTokenDuration: cfg.Auth.RefreshTokenDuration,
	})

	memberCounts := redis.MustNewCache[int64](redisClient, "space:members", memberCountCacheTTL)

	spaceService := app.NewSpaceService(spaceRepo, userRepo, log,
		app.WithMemberCountCache(memberCounts),
	)
	authService := app.NewAuthService(userRepo, spaceService, tokens, cfg.Auth.PasswordMinLength, log)
	joinRequestService := app.NewJoinRequestService(spaceRepo, userRepo, log)
	inviteService := app.NewInviteService(spaceRepo, userRepo, log)
	moderationService := app.NewModerationService(spaceRepo, userRepo, log)
	accessService := app.NewAccessService(spaceRepo, userRepo, log)
	var notifier app.Notifier = app.NewLogNotifier(log)
	if cfg.Notify.WebhookURL != "" {
		webhookNotifier, err := notification.NewWebhookNotifier(cfg.Notify.WebhookURL, cfg.Notify.WebhookTimeout)
		if err != nil {
			log.Error("failed to create webhook notifier", "error", err)
			return 1
		}
		notifier = webhookNotifier
		log.Info("webhook notifier enabled")
	}
	dispatcher := app.NewOutboxDispatcher(outboxRepo, notifier, log)

	// ===== Background Workers =====

	var (
		jobClient *jobs.Client
		worker    *jobs.Worker
		scheduler *jobs.Scheduler
	)
	if cfg.Worker.Enabled {
		jobClient, err = jobs.NewClient(jobs.ClientConfig{
			RedisAddr:     cfg.Redis.Addr(),
			RedisPassword: cfg.Redis.Password,
			RedisDB:       cfg.Redis.DB,
		}, log)
		if err != nil {
			log.Error("failed to create job client", "error", err)
			return 1
		}
		defer closeWithLog(jobClient, "job client", log)

		worker, err = jobs.NewWorker(jobs.WorkerConfig{
			RedisAddr:     cfg.Redis.Addr(),
			RedisPassword: cfg.Redis.Password,
			RedisDB:       cfg.Redis.DB,
			Concurrency:   cfg.Worker.Concurrency,
		}, log,
			jobs.WithMaintenanceStore(spaceRepo),
			jobs.WithOutboxProcessor(dispatcher),
		)
		if err != nil {
			log.Error("failed to create job worker", "error", err)
			return 1
		}
		if err := worker.Start(); err != nil {
			log.Error("failed to start job worker", "error", err)
			return 1
		}

		scheduler = jobs.NewScheduler(jobClient, &cfg.Worker, log)
		scheduler.Start()

		log.Info("background workers started", "concurrency", cfg.Worker.Concurrency)
	} else {
		log.Info("background workers disabled")
	}

	// ===== HTTP Server =====

	v := validator.New()

	handlers := routes.Handlers{
		Health: handler.NewHealthHandler(
			handler.WithDatabase(db),
			handler.WithRedis(redisClient),
		),
		Auth:        handler.NewAuthHandler(authService, v, log),
		Space:       handler.NewSpaceHandler(spaceService, accessService, v, log),
		JoinRequest: handler.NewJoinRequestHandler(joinRequestService, v, log),
		Invite:      handler.NewInviteHandler(inviteService, v, log),
		Moderation:  handler.NewModerationHandler(moderationService, v, log),
		Access:      handler.NewAccessHandler(accessService, log),
	}

	server := infrahttp.NewServer(cfg, log)
	routeCleanup := routes.Register(server.Router(), handlers, tokens, log)
	defer routeCleanup()

	serverErr := make(chan error, 1)
	go func() {
		log.Info("http server listening", "addr", cfg.Server.Addr())
		serverErr <- server.Start()
	}()

	// ===== Graceful Shutdown =====

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		if err != nil {
			log.Error("http server failed", "error", err)
			return 1
		}
	case sig := <-quit:
		log.Info("shutdown signal received", "signal", sig.String())
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if scheduler != nil {
		scheduler.Stop()
	}
	if worker != nil {
		worker.Stop()
	}

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("http server shutdown failed", "error", err)
		return 1
	}

	log.Info("shutdown complete")
	return 0
}

func closeWithLog(c io.Closer, name string, log *logger.Logger) {
	if err := c.Close(); err != nil {
		log.Warn("failed to close "+name, "error", err)
	}
}

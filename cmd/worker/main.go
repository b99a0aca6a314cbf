package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/choreboard/choreboard/internal/app"
	"github.com/choreboard/choreboard/internal/auth"
	"github.com/choreboard/choreboard/internal/chores"
	"github.com/choreboard/choreboard/internal/platform/db"
	"github.com/choreboard/choreboard/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	authRepo := auth.NewRepository(pool)
	choresRepo := chores.NewRepository(pool)

	purgeTask, err := jobs.NewSessionPurgeTask(jobs.SessionPurgePayload{Grace: 24 * time.Hour})
	if err != nil {
		logger.Error("build purge task", slog.Any("error", err))
		os.Exit(1)
	}
	rolloverTask, err := jobs.NewRolloverTask(jobs.RolloverPayload{})
	if err != nil {
		logger.Error("build rollover task", slog.Any("error", err))
		os.Exit(1)
	}

	metrics := jobs.NewMetrics(nil)
	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskSessionPurge, Handler: metrics.Instrument(jobs.TaskSessionPurge, jobs.NewSessionPurgeHandler(authRepo, logger))},
			{Type: jobs.TaskAssignmentRollover, Handler: metrics.Instrument(jobs.TaskAssignmentRollover, jobs.NewRolloverHandler(choresRepo, logger))},
		},
		Cron: []jobs.CronRegistration{
			{Spec: "30 3 * * *", Task: purgeTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: "0 4 * * *", Task: rolloverTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}

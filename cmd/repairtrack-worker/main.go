// README: Worker entry point; runs asynq quote expiry tasks and the periodic sweep.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"repairtrack/internal/config"
	"repairtrack/internal/events"
	"repairtrack/internal/infra"
	"repairtrack/internal/modules/job"
	"repairtrack/internal/modules/request"
	"repairtrack/internal/scheduler"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	logger, err := infra.NewLogger(cfg.Env)
	if err != nil {
		log.Fatalf("logger init: %v", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbPool, err := infra.NewDB(ctx, cfg.DB)
	if err != nil {
		logger.Fatal("db connect", zap.Error(err))
	}
	defer dbPool.Close()

	redisClient := infra.NewRedis(cfg.Redis)
	defer redisClient.Close()

	jobSvc := job.NewService(job.NewStore(dbPool), logger.Named("job"))

	// Expiry does not price pickups or schedule further tasks.
	requestSvc := request.NewService(request.Deps{
		Store:  request.NewStore(dbPool),
		Jobs:   jobSvc,
		Events: events.NewStream(redisClient, cfg.Redis.Stream),
		Logger: logger.Named("request"),
	}, request.Options{
		Policy:        request.StagePolicy{AllowSkip: cfg.Lifecycle.AllowStageSkip},
		QuoteValidity: cfg.Lifecycle.QuoteValidity,
		Currency:      cfg.Lifecycle.Currency,
		PhoneRegion:   cfg.Lifecycle.PhoneRegion,
	})

	worker := scheduler.NewWorker(infra.AsynqRedisOpt(cfg.Redis), scheduler.WorkerConfig{
		Queue:         cfg.Scheduler.Queue,
		Concurrency:   cfg.Scheduler.Concurrency,
		SweepInterval: cfg.Scheduler.SweepInterval,
	}, requestSvc, logger.Named("worker"))

	logger.Info("worker starting", zap.String("queue", cfg.Scheduler.Queue), zap.Duration("sweep", cfg.Scheduler.SweepInterval))
	if err := worker.Run(ctx); err != nil {
		logger.Fatal("worker", zap.Error(err))
	}
}

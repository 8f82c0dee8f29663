// README: Entry point; loads config, wires services and serves the lifecycle API.
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
	httptransport "repairtrack/internal/http"
	"repairtrack/internal/infra"
	"repairtrack/internal/modules/job"
	"repairtrack/internal/modules/pricing"
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

	if cfg.DB.AutoMigrate {
		if err := infra.Migrate(ctx, dbPool); err != nil {
			logger.Fatal("migrate", zap.Error(err))
		}
	}

	redisClient := infra.NewRedis(cfg.Redis)
	defer redisClient.Close()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Warn("redis unreachable; lifecycle events will be dropped until it recovers", zap.Error(err))
	}

	expiry := scheduler.NewClient(infra.AsynqRedisOpt(cfg.Redis), cfg.Scheduler.Queue)
	defer expiry.Close()

	pricingSvc := pricing.NewService(pricing.NewStore(dbPool))

	jobSvc := job.NewService(job.NewStore(dbPool), logger.Named("job"))

	requestSvc := request.NewService(request.Deps{
		Store:   request.NewStore(dbPool),
		Jobs:    jobSvc,
		Pricing: pricingSvc,
		Events:  events.NewStream(redisClient, cfg.Redis.Stream),
		Expiry:  expiry,
		Logger:  logger.Named("request"),
	}, request.Options{
		Policy:        request.StagePolicy{AllowSkip: cfg.Lifecycle.AllowStageSkip},
		AllowOverride: cfg.Lifecycle.AllowOverride,
		QuoteValidity: cfg.Lifecycle.QuoteValidity,
		Currency:      cfg.Lifecycle.Currency,
		PhoneRegion:   cfg.Lifecycle.PhoneRegion,
	})

	server := httptransport.NewServer(cfg.HTTP.Addr, httptransport.RouterDeps{
		Requests: requestSvc,
		Quotes:   requestSvc,
		Jobs:     jobSvc,
		Config:   cfg.HTTP,
		Logger:   logger.Named("http"),
	})

	logger.Info("api starting", zap.String("addr", cfg.HTTP.Addr), zap.String("env", cfg.Env))
	if err := server.Run(ctx); err != nil {
		logger.Fatal("server", zap.Error(err))
	}
}

// README: Backend wiring for lifecyclectl; opens the database and Redis from config.
package cli

import (
	"context"
	"fmt"
	"time"

	"repairtrack/internal/config"
	"repairtrack/internal/events"
	"repairtrack/internal/infra"
	"repairtrack/internal/modules/job"
	"repairtrack/internal/modules/pricing"
	"repairtrack/internal/modules/request"
	"repairtrack/internal/scheduler"
	"repairtrack/internal/types"
)

type RequestAPI interface {
	Get(ctx context.Context, id types.ID) (*request.ServiceRequest, error)
	Timeline(ctx context.Context, id types.ID) ([]request.TimelineEvent, error)
	Update(ctx context.Context, cmd request.UpdateCommand) (*request.ServiceRequest, error)
	Transitions(ctx context.Context, id types.ID, override bool) (*request.TransitionView, error)
	ExpireDueQuotes(ctx context.Context, limit int) (int, error)
}

type JobAPI interface {
	Get(ctx context.Context, id string) (*job.Job, error)
	AssignTechnician(ctx context.Context, id, technician string) error
}

type EventReader interface {
	Read(ctx context.Context, lastID string, count int64, block time.Duration) ([]events.Change, string, error)
}

// Backend is what the commands talk to.
type Backend struct {
	Requests RequestAPI
	Jobs     JobAPI
	Events   EventReader
	Close    func()
}

// Connector opens a Backend. Commands take one so tests can swap in fakes.
type Connector func(ctx context.Context) (*Backend, error)

// Connect builds a Backend from config.yaml and REPAIRTRACK_* variables.
func Connect(ctx context.Context) (*Backend, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	log, err := infra.NewLogger(cfg.Env)
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}

	db, err := infra.NewDB(ctx, cfg.DB)
	if err != nil {
		return nil, fmt.Errorf("connect db: %w", err)
	}
	rdb := infra.NewRedis(cfg.Redis)
	stream := events.NewStream(rdb, cfg.Redis.Stream)
	expiry := scheduler.NewClient(infra.AsynqRedisOpt(cfg.Redis), cfg.Scheduler.Queue)

	jobs := job.NewService(job.NewStore(db), log)
	requests := request.NewService(request.Deps{
		Store:   request.NewStore(db),
		Jobs:    jobs,
		Pricing: pricing.NewService(pricing.NewStore(db)),
		Events:  stream,
		Expiry:  expiry,
		Logger:  log,
	}, request.Options{
		Policy:        request.StagePolicy{AllowSkip: cfg.Lifecycle.AllowStageSkip},
		AllowOverride: cfg.Lifecycle.AllowOverride,
		QuoteValidity: cfg.Lifecycle.QuoteValidity,
		Currency:      cfg.Lifecycle.Currency,
		PhoneRegion:   cfg.Lifecycle.PhoneRegion,
	})

	return &Backend{
		Requests: requests,
		Jobs:     jobs,
		Events:   stream,
		Close: func() {
			_ = expiry.Close()
			_ = rdb.Close()
			db.Close()
			_ = log.Sync()
		},
	}, nil
}

func withBackend(ctx context.Context, connect Connector, fn func(*Backend) error) error {
	b, err := connect(ctx)
	if err != nil {
		return err
	}
	if b.Close != nil {
		defer b.Close()
	}
	return fn(b)
}

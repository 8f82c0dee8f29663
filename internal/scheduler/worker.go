// README: asynq worker expiring quotes on schedule plus a periodic sweep.
package scheduler

import (
	"context"
	"time"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"repairtrack/internal/types"
)

const defaultSweepLimit = 100

// QuoteExpirer is implemented by the request service.
type QuoteExpirer interface {
	ExpireQuote(ctx context.Context, id types.ID) (bool, error)
	ExpireDueQuotes(ctx context.Context, limit int) (int, error)
}

type WorkerConfig struct {
	Queue         string
	Concurrency   int
	SweepInterval time.Duration
}

type Worker struct {
	server    *asynq.Server
	scheduler *asynq.Scheduler
	mux       *asynq.ServeMux
	quotes    QuoteExpirer
	cfg       WorkerConfig
	log       *zap.Logger
}

func NewWorker(opt asynq.RedisClientOpt, cfg WorkerConfig, quotes QuoteExpirer, log *zap.Logger) *Worker {
	if cfg.Queue == "" {
		cfg.Queue = "default"
	}
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 10
	}
	if log == nil {
		log = zap.NewNop()
	}

	server := asynq.NewServer(opt, asynq.Config{
		Concurrency: cfg.Concurrency,
		Queues: map[string]int{
			cfg.Queue: 1,
		},
	})

	w := &Worker{
		server: server,
		mux:    asynq.NewServeMux(),
		quotes: quotes,
		cfg:    cfg,
		log:    log,
	}
	if cfg.SweepInterval > 0 {
		w.scheduler = asynq.NewScheduler(opt, &asynq.SchedulerOpts{})
	}

	w.mux.HandleFunc(TaskQuoteExpiry, w.handleQuoteExpiry)
	w.mux.HandleFunc(TaskQuoteSweep, w.handleQuoteSweep)
	return w
}

func (w *Worker) Run(ctx context.Context) error {
	if w.scheduler != nil {
		task, err := NewQuoteSweepTask(QuoteSweepPayload{Limit: defaultSweepLimit})
		if err != nil {
			return err
		}
		spec := "@every " + w.cfg.SweepInterval.String()
		if _, err := w.scheduler.Register(spec, task, asynq.Queue(w.cfg.Queue)); err != nil {
			return err
		}
		if err := w.scheduler.Start(); err != nil {
			return err
		}
		defer w.scheduler.Shutdown()
	}

	go func() {
		<-ctx.Done()
		w.server.Shutdown()
	}()

	if err := w.server.Run(w.mux); err != nil {
		w.log.Error("scheduler worker stopped", zap.Error(err))
		return err
	}
	return nil
}

func (w *Worker) handleQuoteExpiry(ctx context.Context, task *asynq.Task) error {
	payload, err := ParseQuoteExpiryPayload(task)
	if err != nil {
		return err
	}
	expired, err := w.quotes.ExpireQuote(ctx, types.ID(payload.RequestID))
	if err != nil {
		return err
	}
	w.log.Debug("quote expiry task handled",
		zap.String("request_id", payload.RequestID),
		zap.Bool("expired", expired),
	)
	return nil
}

func (w *Worker) handleQuoteSweep(ctx context.Context, task *asynq.Task) error {
	payload, err := ParseQuoteSweepPayload(task)
	if err != nil {
		return err
	}
	n, err := w.quotes.ExpireDueQuotes(ctx, payload.Limit)
	if err != nil {
		return err
	}
	if n > 0 {
		w.log.Info("expired overdue quotes", zap.Int("count", n))
	}
	return nil
}

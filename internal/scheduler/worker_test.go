package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hibiken/asynq"

	"repairtrack/internal/types"
)

type fakeExpirer struct {
	expired  []types.ID
	swept    []int
	sweepErr error
}

func (f *fakeExpirer) ExpireQuote(_ context.Context, id types.ID) (bool, error) {
	f.expired = append(f.expired, id)
	return true, nil
}

func (f *fakeExpirer) ExpireDueQuotes(_ context.Context, limit int) (int, error) {
	f.swept = append(f.swept, limit)
	return 2, f.sweepErr
}

func newTestWorker(q QuoteExpirer) *Worker {
	return NewWorker(asynq.RedisClientOpt{Addr: "127.0.0.1:0"}, WorkerConfig{}, q, nil)
}

func TestHandleQuoteExpiry(t *testing.T) {
	fake := &fakeExpirer{}
	w := newTestWorker(fake)

	task, err := NewQuoteExpiryTask(QuoteExpiryPayload{RequestID: "req-1"})
	if err != nil {
		t.Fatalf("new task: %v", err)
	}
	if task.Type() != TaskQuoteExpiry {
		t.Fatalf("task type = %s", task.Type())
	}
	if err := w.handleQuoteExpiry(context.Background(), task); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(fake.expired) != 1 || fake.expired[0] != "req-1" {
		t.Fatalf("expired = %v", fake.expired)
	}
}

func TestHandleQuoteExpiryRejectsEmptyPayload(t *testing.T) {
	w := newTestWorker(&fakeExpirer{})
	if err := w.handleQuoteExpiry(context.Background(), asynq.NewTask(TaskQuoteExpiry, []byte(`{}`))); err == nil {
		t.Fatalf("expected error for missing request id")
	}
	if err := w.handleQuoteExpiry(context.Background(), asynq.NewTask(TaskQuoteExpiry, []byte(`not json`))); err == nil {
		t.Fatalf("expected error for bad payload")
	}
}

func TestHandleQuoteSweep(t *testing.T) {
	fake := &fakeExpirer{}
	w := newTestWorker(fake)

	if err := w.handleQuoteSweep(context.Background(), asynq.NewTask(TaskQuoteSweep, []byte(`{}`))); err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if len(fake.swept) != 1 || fake.swept[0] != defaultSweepLimit {
		t.Fatalf("swept = %v", fake.swept)
	}

	fake.sweepErr = errors.New("db down")
	if err := w.handleQuoteSweep(context.Background(), asynq.NewTask(TaskQuoteSweep, []byte(`{"limit":5}`))); err == nil {
		t.Fatalf("expected sweep error to surface for retry")
	}
	if fake.swept[1] != 5 {
		t.Fatalf("limit not passed through: %v", fake.swept)
	}
}

func TestExpiryTaskIDChangesWithWindow(t *testing.T) {
	at := time.Date(2026, 6, 8, 9, 0, 0, 0, time.UTC)
	a := expiryTaskID("req-1", at)
	b := expiryTaskID("req-1", at.Add(time.Hour))
	if a == b {
		t.Fatalf("re-sent quote must get a new task id, got %s twice", a)
	}
	if a != expiryTaskID("req-1", at) {
		t.Fatalf("task id must be stable for the same window")
	}
}

func TestNilClientIsNoop(t *testing.T) {
	var c *Client
	if err := c.ScheduleQuoteExpiry(context.Background(), "req-1", time.Now()); err != nil {
		t.Fatalf("nil client: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("nil close: %v", err)
	}
}

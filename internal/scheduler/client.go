// README: Enqueues delayed quote expiry tasks on asynq.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
)

type Client struct {
	client *asynq.Client
	queue  string
}

func NewClient(opt asynq.RedisClientOpt, queue string) *Client {
	if queue == "" {
		queue = "default"
	}
	return &Client{
		client: asynq.NewClient(opt),
		queue:  queue,
	}
}

func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

// ScheduleQuoteExpiry enqueues one expiry task per quote window. Re-sending
// a quote opens a new window and so a new task; the old one finds nothing to
// expire.
func (c *Client) ScheduleQuoteExpiry(ctx context.Context, requestID string, at time.Time) error {
	if c == nil || c.client == nil {
		return nil
	}

	task, err := NewQuoteExpiryTask(QuoteExpiryPayload{RequestID: requestID})
	if err != nil {
		return err
	}

	_, err = c.client.EnqueueContext(ctx, task,
		asynq.ProcessAt(at),
		asynq.Queue(c.queue),
		asynq.TaskID(expiryTaskID(requestID, at)),
		asynq.MaxRetry(5),
	)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		return nil
	}
	return err
}

func expiryTaskID(requestID string, at time.Time) string {
	return fmt.Sprintf("quote-expiry:%s:%d", requestID, at.Unix())
}

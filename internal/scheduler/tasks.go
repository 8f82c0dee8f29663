// README: Task names and payloads for quote expiry jobs.
package scheduler

import (
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
)

const TaskQuoteExpiry = "quotes.expire"

// TaskQuoteSweep catches quotes whose expiry task was lost.
const TaskQuoteSweep = "quotes.sweep"

type QuoteExpiryPayload struct {
	RequestID string `json:"requestId"`
}

type QuoteSweepPayload struct {
	Limit int `json:"limit"`
}

func NewQuoteExpiryTask(payload QuoteExpiryPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskQuoteExpiry, data), nil
}

func ParseQuoteExpiryPayload(task *asynq.Task) (QuoteExpiryPayload, error) {
	var payload QuoteExpiryPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return QuoteExpiryPayload{}, err
	}
	if payload.RequestID == "" {
		return QuoteExpiryPayload{}, fmt.Errorf("%s: missing requestId", TaskQuoteExpiry)
	}
	return payload, nil
}

func NewQuoteSweepTask(payload QuoteSweepPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskQuoteSweep, data), nil
}

func ParseQuoteSweepPayload(task *asynq.Task) (QuoteSweepPayload, error) {
	var payload QuoteSweepPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return QuoteSweepPayload{}, err
	}
	if payload.Limit <= 0 {
		payload.Limit = defaultSweepLimit
	}
	return payload, nil
}

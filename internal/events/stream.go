// README: Redis stream publisher and reader for lifecycle changes.
package events

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultMaxLen = 10000

type Stream struct {
	client *redis.Client
	name   string
	maxLen int64
}

func NewStream(client *redis.Client, name string) *Stream {
	return &Stream{client: client, name: name, maxLen: defaultMaxLen}
}

func (s *Stream) Name() string {
	return s.name
}

// Publish appends all changes in one pipeline. Stream length is capped
// approximately.
func (s *Stream) Publish(ctx context.Context, changes ...Change) error {
	if len(changes) == 0 {
		return nil
	}
	pipe := s.client.Pipeline()
	for _, c := range changes {
		pipe.XAdd(ctx, &redis.XAddArgs{
			Stream: s.name,
			MaxLen: s.maxLen,
			Approx: true,
			Values: map[string]any{
				"event":         c.EventName(),
				"request_id":    c.RequestID,
				"ticket_number": c.TicketNumber,
				"field":         c.Field,
				"old_value":     c.OldValue,
				"new_value":     c.NewValue,
				"message":       c.Message,
				"actor":         c.Actor,
				"occurred_at":   c.Timestamp.UTC().Format(time.RFC3339Nano),
			},
		})
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("publish to %s: %w", s.name, err)
	}
	return nil
}

// Read returns changes after lastID ("0" for the start). A zero block
// returns immediately.
func (s *Stream) Read(ctx context.Context, lastID string, count int64, block time.Duration) ([]Change, string, error) {
	if block <= 0 {
		block = -1
	}
	res, err := s.client.XRead(ctx, &redis.XReadArgs{
		Streams: []string{s.name, lastID},
		Count:   count,
		Block:   block,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return nil, lastID, nil
	}
	if err != nil {
		return nil, lastID, err
	}

	var out []Change
	for _, st := range res {
		for _, msg := range st.Messages {
			out = append(out, decode(msg.Values))
			lastID = msg.ID
		}
	}
	return out, lastID, nil
}

func decode(v map[string]any) Change {
	str := func(k string) string {
		s, _ := v[k].(string)
		return s
	}
	ts, _ := time.Parse(time.RFC3339Nano, str("occurred_at"))
	return Change{
		RequestID:    str("request_id"),
		TicketNumber: str("ticket_number"),
		Field:        str("field"),
		OldValue:     str("old_value"),
		NewValue:     str("new_value"),
		Message:      str("message"),
		Actor:        str("actor"),
		Timestamp:    ts,
	}
}

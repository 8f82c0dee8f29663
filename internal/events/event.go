// README: Lifecycle change events emitted after every committed transition.
package events

import (
	"context"
	"time"
)

// Change is one committed field change on a service request.
type Change struct {
	RequestID    string    `json:"requestId"`
	TicketNumber string    `json:"ticketNumber"`
	Field        string    `json:"field"`
	OldValue     string    `json:"oldValue"`
	NewValue     string    `json:"newValue"`
	Message      string    `json:"message"`
	Actor        string    `json:"actor"`
	Timestamp    time.Time `json:"timestamp"`
}

func (c Change) EventName() string {
	return "service_request." + c.Field + ".changed"
}

func (c Change) OccurredAt() time.Time {
	return c.Timestamp
}

// Publisher fans changes out to whoever delivers them to customers.
type Publisher interface {
	Publish(ctx context.Context, changes ...Change) error
}

// Nop drops every change.
type Nop struct{}

func (Nop) Publish(context.Context, ...Change) error { return nil }

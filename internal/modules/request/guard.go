// README: Guard chain evaluated for every lifecycle field change, first failure wins.
package request

import (
	"context"
	"errors"
	"fmt"
	"time"

	"repairtrack/internal/modules/job"
)

// JobLookup reads job tickets live for the technician gate.
type JobLookup interface {
	Get(ctx context.Context, id string) (*job.Job, error)
}

// Transition is one requested field change inside an update call.
type Transition struct {
	Field Field
	From  string
	To    string

	// Persisted is the record as read at the start of the call. Working has
	// earlier changes from the same call applied.
	Persisted *ServiceRequest
	Working   *ServiceRequest

	// Schedule is the scheduledPickupDate supplied with the same call.
	Schedule *time.Time

	Strict bool
	Policy StagePolicy
}

func (t Transition) noop() bool {
	return t.From == t.To
}

type Guard func(ctx context.Context, t Transition) error

// Gate holds the ordered guard chain.
type Gate struct {
	guards []Guard
}

func NewGate(jobs JobLookup) *Gate {
	jg := jobGuard{jobs: jobs}
	return &Gate{guards: []Guard{
		terminalGuard,
		quoteBlockGuard,
		orderGuard,
		presenceGuard,
		conversionGuard,
		jg.check,
		scheduleGuard,
	}}
}

func (g *Gate) Check(ctx context.Context, t Transition) error {
	for _, guard := range g.guards {
		if err := guard(ctx, t); err != nil {
			return err
		}
	}
	return nil
}

func terminalGuard(_ context.Context, t Transition) error {
	if t.noop() {
		return nil
	}
	r := t.Working
	if r.Status == StatusClosed {
		return newTransitionError(CodeRequestClosedOrDeclined, t.Field, t.From, t.To,
			"request %s is closed", r.TicketNumber)
	}
	if r.IsQuote() && r.QuoteState() == QuoteDeclined {
		return newTransitionError(CodeRequestClosedOrDeclined, t.Field, t.From, t.To,
			"quote for %s was declined; request is closed for editing", r.TicketNumber)
	}
	return nil
}

// quoteBlockGuard applies to re-applies as well; an unsent quote blocks every
// lifecycle field.
func quoteBlockGuard(_ context.Context, t Transition) error {
	if !BlocksLifecycle(t.Working) {
		return nil
	}
	return newTransitionError(CodeQuoteNotSent, t.Field, t.From, t.To,
		"quote is %s; send the quote before changing %s", t.Working.QuoteState(), t.Field)
}

func orderGuard(_ context.Context, t Transition) error {
	r := t.Working
	switch t.Field {
	case FieldStatus:
		to := statusIndex(Status(t.To))
		if to < 0 {
			return newTransitionError(CodeValidation, t.Field, t.From, t.To, "unknown status %q", t.To)
		}
		if t.Strict && to < statusIndex(Status(t.From)) {
			return newTransitionError(CodeOutOfOrder, t.Field, t.From, t.To,
				"status cannot move back from %s to %s", t.From, t.To)
		}
	case FieldStage:
		flow := StageFlow(r.ServiceMode, r.Intent)
		if indexOf(flow, Stage(t.To)) < 0 {
			return newTransitionError(CodeInvalidStage, t.Field, t.From, t.To,
				"stage %s is not part of the %s %s workflow", t.To, r.Intent, r.ServiceMode)
		}
		if !t.Strict || t.noop() {
			return nil
		}
		if indexOf(NextStages(r, t.Policy), Stage(t.To)) < 0 {
			return newTransitionError(CodeInvalidStage, t.Field, t.From, t.To,
				"stage %s is not a valid next stage after %s", t.To, t.From)
		}
	case FieldTrackingStatus:
		flow := TrackingFlow(r.ServiceMode)
		if !isKnownTracking(TrackingStatus(t.To), flow) {
			return newTransitionError(CodeValidation, t.Field, t.From, t.To,
				"tracking status %q does not apply to %s requests", t.To, r.ServiceMode)
		}
		if !IsAllowed(TrackingStatus(t.From), TrackingStatus(t.To), flow, t.Strict) {
			return newTransitionError(CodeOutOfOrder, t.Field, t.From, t.To,
				"tracking cannot move from %s to %s", t.From, t.To)
		}
	}
	return nil
}

// presenceGuard keeps conversion behind the device-on-site threshold. The
// persisted tracking value is authoritative, not one pending in the same call.
func presenceGuard(_ context.Context, t Transition) error {
	if t.Field != FieldStatus || t.noop() || Status(t.To) != StatusConverted {
		return nil
	}
	p := t.Persisted
	flow := TrackingFlow(p.ServiceMode)
	threshold := DeviceThreshold(p.ServiceMode)
	if indexOf(flow, p.TrackingStatus) >= indexOf(flow, threshold) {
		return nil
	}
	return newTransitionError(CodeDeviceNotPresent, t.Field, t.From, t.To,
		"device must be %s before conversion; tracking is %s", threshold, p.TrackingStatus)
}

// conversionGuard covers both routes into conversion: status Converted and a
// job-creation stage. A quote converts only once accepted, and a cancelled
// device gets no job.
func conversionGuard(_ context.Context, t Transition) error {
	if t.noop() || !convertsRequest(t) {
		return nil
	}
	r := t.Working
	if r.TrackingStatus == TrackingCancelled {
		return newTransitionError(CodeRequestClosedOrDeclined, t.Field, t.From, t.To,
			"request %s is cancelled and cannot be converted", r.TicketNumber)
	}
	if !r.IsQuote() {
		return nil
	}
	switch r.QuoteState() {
	case QuoteAccepted, QuoteConverted:
		return nil
	}
	return newTransitionError(CodeInvalidQuoteState, t.Field, t.From, t.To,
		"quote is %s; it must be accepted before conversion", r.QuoteState())
}

func convertsRequest(t Transition) bool {
	switch t.Field {
	case FieldStatus:
		return Status(t.To) == StatusConverted
	case FieldStage:
		return IsJobCreationStage(Stage(t.To))
	}
	return false
}

type jobGuard struct {
	jobs JobLookup
}

func (g jobGuard) check(ctx context.Context, t Transition) error {
	if t.Field != FieldTrackingStatus || t.noop() {
		return nil
	}
	r := t.Working
	if !IsJobGated(TrackingStatus(t.To), TrackingFlow(r.ServiceMode)) {
		return nil
	}
	if r.Status != StatusConverted {
		return newTransitionError(CodeJobNotReady, t.Field, t.From, t.To,
			"request must be converted before %s; status is %s", t.To, r.Status)
	}
	if r.ConvertedJobID == nil || *r.ConvertedJobID == "" {
		return newTransitionError(CodeJobNotReady, t.Field, t.From, t.To,
			"request has no job ticket")
	}
	if g.jobs == nil {
		return newTransitionError(CodeJobNotReady, t.Field, t.From, t.To,
			"job ticket %s cannot be checked", *r.ConvertedJobID)
	}
	j, err := g.jobs.Get(ctx, *r.ConvertedJobID)
	if errors.Is(err, job.ErrNotFound) {
		return newTransitionError(CodeJobNotReady, t.Field, t.From, t.To,
			"job ticket %s not found", *r.ConvertedJobID)
	}
	if err != nil {
		return fmt.Errorf("lookup job %s: %w", *r.ConvertedJobID, err)
	}
	if !j.HasTechnician() {
		return newTransitionError(CodeJobNotReady, t.Field, t.From, t.To,
			"job ticket %s has no technician assigned", j.ID)
	}
	return nil
}

// scheduleGuard requires a date with the statuses that promise one. A
// re-apply passes only when a date is already stored.
func scheduleGuard(_ context.Context, t Transition) error {
	if t.Field != FieldTrackingStatus || !requiresSchedule(TrackingStatus(t.To)) {
		return nil
	}
	if t.Schedule != nil {
		return nil
	}
	if t.noop() && t.Persisted.ScheduledPickupDate != nil {
		return nil
	}
	return newTransitionError(CodeScheduleRequired, t.Field, t.From, t.To,
		"%s requires scheduledPickupDate in the same update", t.To)
}

// README: Request service; validated lifecycle updates, conversion side effects and quote operations.
package request

import (
	"context"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"repairtrack/internal/events"
	"repairtrack/internal/modules/job"
	"repairtrack/internal/types"
)

type Repository interface {
	Create(ctx context.Context, r *ServiceRequest, first TimelineEvent) error
	Get(ctx context.Context, id types.ID) (*ServiceRequest, error)
	GetByTicket(ctx context.Context, ticket string) (*ServiceRequest, error)
	LastTicketSequence(ctx context.Context, datePrefix string) (int, error)
	Save(ctx context.Context, next, prev *ServiceRequest, events []TimelineEvent) (bool, error)
	Timeline(ctx context.Context, id types.ID) ([]TimelineEvent, error)
	ListExpiredQuotes(ctx context.Context, now time.Time, limit int) ([]types.ID, error)
}

// JobTickets is the job ticket collaborator. CreateForRequest must be
// idempotent per request.
type JobTickets interface {
	JobLookup
	CreateForRequest(ctx context.Context, seed job.Seed) (string, error)
}

type Pricing interface {
	PickupCost(ctx context.Context, tier, currency string) (types.Money, error)
}

// ExpiryScheduler arranges for ExpireQuote to run once a quote lapses.
type ExpiryScheduler interface {
	ScheduleQuoteExpiry(ctx context.Context, requestID string, at time.Time) error
}

type Deps struct {
	Store   Repository
	Jobs    JobTickets
	Pricing Pricing
	Events  events.Publisher
	Expiry  ExpiryScheduler
	Logger  *zap.Logger
}

type Options struct {
	Policy        StagePolicy
	AllowOverride bool
	QuoteValidity time.Duration
	Currency      string
	PhoneRegion   string
}

type Service struct {
	store    Repository
	jobs     JobTickets
	pricing  Pricing
	events   events.Publisher
	expiry   ExpiryScheduler
	gate     *Gate
	opts     Options
	validate *validator.Validate
	log      *zap.Logger
	now      func() time.Time
}

func NewService(deps Deps, opts Options) *Service {
	if opts.QuoteValidity <= 0 {
		opts.QuoteValidity = 7 * 24 * time.Hour
	}
	if opts.Currency == "" {
		opts.Currency = "BDT"
	}
	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}
	pub := deps.Events
	if pub == nil {
		pub = events.Nop{}
	}
	return &Service{
		store:    deps.Store,
		jobs:     deps.Jobs,
		pricing:  deps.Pricing,
		events:   pub,
		expiry:   deps.Expiry,
		gate:     NewGate(deps.Jobs),
		opts:     opts,
		validate: validator.New(),
		log:      log,
		now:      time.Now,
	}
}

// UpdateCommand is a partial update; nil fields are left alone. Fields are
// applied in order quote, schedule, status, stage, tracking, and the whole
// call commits or fails as one.
type UpdateCommand struct {
	ID                  types.ID
	Status              *Status
	Stage               *Stage
	TrackingStatus      *TrackingStatus
	QuoteAmount         *types.Money
	QuoteNotes          *string
	ScheduledPickupDate *time.Time
	ExpectedVersion     *int
	Actor               string
	// Override disables ordering checks. It is refused unless enabled in
	// Options.
	Override bool
}

type StageCommand struct {
	ID              types.ID
	Stage           Stage
	ExpectedVersion *int
	Actor           string
	Override        bool
}

type TrackingCommand struct {
	ID                  types.ID
	TrackingStatus      TrackingStatus
	ScheduledPickupDate *time.Time
	ExpectedVersion     *int
	Actor               string
	Override            bool
}

type SendQuoteCommand struct {
	ID     types.ID
	Amount int64 `validate:"gt=0"`
	Notes  string `validate:"max=2000"`
	Actor  string
}

type AcceptQuoteCommand struct {
	ID                  types.ID
	Tier                *PickupTier
	ScheduledPickupDate *time.Time
}

type ExpectedDatesCommand struct {
	ID              types.ID
	PickupDate      *time.Time
	ReturnDate      *time.Time
	ReadyDate       *time.Time
	ExpectedVersion *int
	Actor           string
}

// TrackingView is the customer-facing projection of a request.
type TrackingView struct {
	Request  *ServiceRequest
	Flow     []TrackingStatus
	Timeline []TimelineEvent
}

// mutation accumulates the changes of one call against a snapshot.
type mutation struct {
	persisted *ServiceRequest
	working   *ServiceRequest
	events    []TimelineEvent
	actor     string
	strict    bool
	schedule  *time.Time
	dirty     bool
	quoteSent bool
}

func (s *Service) begin(ctx context.Context, id types.ID, expectedVersion *int, actor string, override bool) (*mutation, error) {
	if override && !s.opts.AllowOverride {
		return nil, newTransitionError(CodeValidation, "", "", "", "override mode is disabled")
	}
	r, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if expectedVersion != nil && *expectedVersion != r.Version {
		return nil, concurrentModification(fmt.Sprintf("expected version %d, request is at %d", *expectedVersion, r.Version))
	}
	return &mutation{
		persisted: r,
		working:   r.Clone(),
		actor:     actorOrSystem(actor),
		strict:    !override,
	}, nil
}

func (m *mutation) record(field Field, from, to, message string) {
	m.events = append(m.events, TimelineEvent{
		RequestID: m.working.ID,
		Field:     field,
		OldValue:  from,
		NewValue:  to,
		Message:   message,
		Actor:     m.actor,
	})
	m.dirty = true
}

func (s *Service) transition(m *mutation, field Field, from, to string) Transition {
	return Transition{
		Field:     field,
		From:      from,
		To:        to,
		Persisted: m.persisted,
		Working:   m.working,
		Schedule:  m.schedule,
		Strict:    m.strict,
		Policy:    s.opts.Policy,
	}
}

// Update is the validated partial update entry point.
func (s *Service) Update(ctx context.Context, cmd UpdateCommand) (*ServiceRequest, error) {
	m, err := s.begin(ctx, cmd.ID, cmd.ExpectedVersion, cmd.Actor, cmd.Override)
	if err != nil {
		return nil, err
	}

	if cmd.QuoteAmount != nil || cmd.QuoteNotes != nil {
		if err := s.applyQuoteFields(m, cmd.QuoteAmount, cmd.QuoteNotes); err != nil {
			return nil, err
		}
	}
	if cmd.ScheduledPickupDate != nil {
		if err := s.applySchedule(m, *cmd.ScheduledPickupDate); err != nil {
			return nil, err
		}
	}
	if cmd.Status != nil {
		if err := s.applyStatus(ctx, m, *cmd.Status); err != nil {
			return nil, err
		}
	}
	if cmd.Stage != nil {
		if err := s.applyStage(ctx, m, *cmd.Stage); err != nil {
			return nil, err
		}
	}
	if cmd.TrackingStatus != nil {
		if err := s.applyTracking(ctx, m, *cmd.TrackingStatus); err != nil {
			return nil, err
		}
	}
	return s.commit(ctx, m)
}

// TransitionStage moves the workflow stage.
func (s *Service) TransitionStage(ctx context.Context, cmd StageCommand) (*ServiceRequest, error) {
	stage := cmd.Stage
	return s.Update(ctx, UpdateCommand{
		ID:              cmd.ID,
		Stage:           &stage,
		ExpectedVersion: cmd.ExpectedVersion,
		Actor:           cmd.Actor,
		Override:        cmd.Override,
	})
}

// ApplyTracking moves the customer-facing tracking status.
func (s *Service) ApplyTracking(ctx context.Context, cmd TrackingCommand) (*ServiceRequest, error) {
	ts := cmd.TrackingStatus
	return s.Update(ctx, UpdateCommand{
		ID:                  cmd.ID,
		TrackingStatus:      &ts,
		ScheduledPickupDate: cmd.ScheduledPickupDate,
		ExpectedVersion:     cmd.ExpectedVersion,
		Actor:               cmd.Actor,
		Override:            cmd.Override,
	})
}

func (s *Service) applyQuoteFields(m *mutation, amount *types.Money, notes *string) error {
	w := m.working
	if amount != nil {
		a := *amount
		if a.Currency == "" {
			a.Currency = w.Currency
		}
		n := ""
		if notes != nil {
			n = *notes
		} else if w.QuoteNotes != nil {
			n = *w.QuoteNotes
		}
		ev, err := applySendQuote(w, a, n, s.now(), s.opts.QuoteValidity)
		if err != nil {
			return err
		}
		ev.Actor = m.actor
		m.events = append(m.events, ev)
		m.dirty = true
		m.quoteSent = true
		return nil
	}
	if err := checkQuoteEditable(w); err != nil {
		return err
	}
	n := *notes
	w.QuoteNotes = &n
	m.dirty = true
	return nil
}

func (s *Service) applySchedule(m *mutation, at time.Time) error {
	w := m.working
	if w.Status == StatusClosed || (w.IsQuote() && w.QuoteState() == QuoteDeclined) {
		return newTransitionError(CodeRequestClosedOrDeclined, FieldSchedule, "", at.Format(time.RFC3339),
			"request %s is closed for editing", w.TicketNumber)
	}
	d := at
	w.ScheduledPickupDate = &d
	m.schedule = &d
	m.dirty = true
	return nil
}

func (s *Service) applyStatus(ctx context.Context, m *mutation, to Status) error {
	w := m.working
	from := w.Status
	if err := s.gate.Check(ctx, s.transition(m, FieldStatus, string(from), string(to))); err != nil {
		return err
	}
	if from == to {
		return nil
	}

	switch to {
	case StatusConverted:
		return s.convert(ctx, m)
	case StatusClosed:
		w.Status = StatusClosed
		m.record(FieldStatus, string(from), string(to), "This request has been closed.")
		if w.TrackingStatus != TrackingDelivered {
			prev := w.TrackingStatus
			w.TrackingStatus = TrackingDelivered
			m.record(FieldTrackingStatus, string(prev), string(TrackingDelivered), TrackingMessage(TrackingDelivered))
		}
		if w.Stage != StageClosed {
			prev := w.Stage
			w.Stage = StageClosed
			m.record(FieldStage, string(prev), string(StageClosed), StageMessage(StageClosed))
		}
	default:
		w.Status = to
		m.record(FieldStatus, string(from), string(to), "Your request has been "+string(to)+".")
	}
	return nil
}

// convert links the request to a job, creating it on first use, and moves
// status and an accepted quote to Converted. The job call completes before
// anything is written so a failed call leaves the record untouched; a job
// created for a call that later loses the compare-and-set is reused on retry.
func (s *Service) convert(ctx context.Context, m *mutation) error {
	w := m.working
	if w.ConvertedJobID == nil {
		if s.jobs == nil {
			return fmt.Errorf("convert %s: no job ticket service", w.TicketNumber)
		}
		id, err := s.jobs.CreateForRequest(ctx, seedFor(w))
		if err != nil {
			return fmt.Errorf("create job for %s: %w", w.TicketNumber, err)
		}
		w.ConvertedJobID = &id
		m.record(FieldConvertedJob, "", id, fmt.Sprintf("Job ticket %s has been created.", id))
	}
	if statusIndex(w.Status) < statusIndex(StatusConverted) {
		from := w.Status
		w.Status = StatusConverted
		m.record(FieldStatus, string(from), string(StatusConverted), "Your request has been converted to a repair job.")
	}
	if ev, ok := convertQuote(w); ok {
		ev.Actor = m.actor
		m.events = append(m.events, ev)
	}
	return nil
}

func seedFor(r *ServiceRequest) job.Seed {
	seed := job.Seed{
		RequestID:     r.ID,
		Customer:      r.CustomerName,
		CustomerPhone: r.Phone,
		Device:        r.Brand + " TV",
		Issue:         r.PrimaryIssue,
		Currency:      r.Currency,
	}
	if r.ScreenSize != "" {
		seed.Device = r.Brand + " " + r.ScreenSize + " TV"
	}
	if r.TotalAmount != nil {
		v := *r.TotalAmount
		seed.EstimatedCost = &v
	} else if r.QuoteAmount != nil {
		v := *r.QuoteAmount
		seed.EstimatedCost = &v
	}
	if r.PickupTier != nil && *r.PickupTier == TierEmergency {
		seed.Priority = "High"
	}
	return seed
}

func (s *Service) applyStage(ctx context.Context, m *mutation, to Stage) error {
	w := m.working
	from := w.Stage
	if err := s.gate.Check(ctx, s.transition(m, FieldStage, string(from), string(to))); err != nil {
		return err
	}
	if from == to {
		return nil
	}
	w.Stage = to
	m.record(FieldStage, string(from), string(to), StageMessage(to))

	if !IsJobCreationStage(to) {
		return nil
	}
	if err := s.convert(ctx, m); err != nil {
		return err
	}
	// The device is in hand, so tracking catches up to the on-site threshold.
	flow := TrackingFlow(w.ServiceMode)
	threshold := DeviceThreshold(w.ServiceMode)
	if w.TrackingStatus != TrackingCancelled && indexOf(flow, w.TrackingStatus) < indexOf(flow, threshold) {
		prev := w.TrackingStatus
		w.TrackingStatus = threshold
		m.record(FieldTrackingStatus, string(prev), string(threshold), TrackingMessage(threshold))
	}
	return nil
}

func (s *Service) applyTracking(ctx context.Context, m *mutation, to TrackingStatus) error {
	w := m.working
	from := w.TrackingStatus
	if err := s.gate.Check(ctx, s.transition(m, FieldTrackingStatus, string(from), string(to))); err != nil {
		return err
	}
	if from == to {
		return nil
	}
	w.TrackingStatus = to
	m.record(FieldTrackingStatus, string(from), string(to), TrackingMessage(to))
	return nil
}

func (s *Service) commit(ctx context.Context, m *mutation) (*ServiceRequest, error) {
	if !m.dirty {
		return m.persisted, nil
	}
	now := s.now()
	m.working.UpdatedAt = now
	for i := range m.events {
		m.events[i].CreatedAt = now
		if m.events[i].Actor == "" {
			m.events[i].Actor = m.actor
		}
	}

	ok, err := s.store.Save(ctx, m.working, m.persisted, m.events)
	if err != nil {
		return nil, fmt.Errorf("save request %s: %w", m.persisted.ID, err)
	}
	if !ok {
		return nil, concurrentModification("request changed since it was read")
	}
	m.working.Version = m.persisted.Version + 1

	s.publish(ctx, m.working, m.events)
	if m.quoteSent {
		s.scheduleExpiry(ctx, m.working)
	}
	return m.working, nil
}

// publish is best effort; the change is already committed.
func (s *Service) publish(ctx context.Context, r *ServiceRequest, evs []TimelineEvent) {
	if len(evs) == 0 {
		return
	}
	changes := make([]events.Change, 0, len(evs))
	for _, e := range evs {
		changes = append(changes, events.Change{
			RequestID:    string(r.ID),
			TicketNumber: r.TicketNumber,
			Field:        string(e.Field),
			OldValue:     e.OldValue,
			NewValue:     e.NewValue,
			Message:      e.Message,
			Actor:        e.Actor,
			Timestamp:    e.CreatedAt,
		})
	}
	if err := s.events.Publish(ctx, changes...); err != nil {
		s.log.Warn("publish lifecycle events failed",
			zap.String("request_id", string(r.ID)),
			zap.Int("events", len(changes)),
			zap.Error(err),
		)
	}
}

func (s *Service) scheduleExpiry(ctx context.Context, r *ServiceRequest) {
	if s.expiry == nil || r.QuoteExpiresAt == nil {
		return
	}
	if err := s.expiry.ScheduleQuoteExpiry(ctx, string(r.ID), *r.QuoteExpiresAt); err != nil {
		s.log.Warn("schedule quote expiry failed", zap.String("request_id", string(r.ID)), zap.Error(err))
	}
}

// SendQuote prices a quote request; it is what lifts the quote block.
func (s *Service) SendQuote(ctx context.Context, cmd SendQuoteCommand) (*ServiceRequest, error) {
	if err := s.validate.Struct(cmd); err != nil {
		return nil, validationError(err)
	}
	m, err := s.begin(ctx, cmd.ID, nil, cmd.Actor, false)
	if err != nil {
		return nil, err
	}
	amount := types.NewMoney(cmd.Amount, m.working.Currency)
	notes := cmd.Notes
	if err := s.applyQuoteFields(m, &amount, &notes); err != nil {
		return nil, err
	}
	return s.commit(ctx, m)
}

// AcceptQuote records the customer's acceptance. Pickup requests pick a tier
// whose charge is added to the quote.
func (s *Service) AcceptQuote(ctx context.Context, cmd AcceptQuoteCommand) (*ServiceRequest, error) {
	m, err := s.begin(ctx, cmd.ID, nil, "Customer", false)
	if err != nil {
		return nil, err
	}
	w := m.working

	var tier *PickupTier
	cost := types.NewMoney(0, w.Currency)
	switch w.ServiceMode {
	case ModePickup:
		if cmd.Tier == nil {
			return nil, newTransitionError(CodeValidation, "pickupTier", "", "", "pickup requests need a pickup tier")
		}
		t := *cmd.Tier
		tier = &t
		if s.pricing != nil {
			cost, err = s.pricing.PickupCost(ctx, string(t), w.Currency)
			if err != nil {
				return nil, newTransitionError(CodeValidation, "pickupTier", "", string(t), "%v", err)
			}
		}
	default:
		if cmd.Tier != nil {
			return nil, newTransitionError(CodeValidation, "pickupTier", "", string(*cmd.Tier), "service center requests have no pickup tier")
		}
	}

	ev, err := applyAcceptQuote(w, tier, cost, cmd.ScheduledPickupDate, s.now())
	if err != nil {
		return nil, err
	}
	ev.Actor = m.actor
	m.events = append(m.events, ev)
	m.dirty = true
	return s.commit(ctx, m)
}

func (s *Service) DeclineQuote(ctx context.Context, id types.ID) (*ServiceRequest, error) {
	m, err := s.begin(ctx, id, nil, "Customer", false)
	if err != nil {
		return nil, err
	}
	ev, err := applyDeclineQuote(m.working)
	if err != nil {
		return nil, err
	}
	ev.Actor = m.actor
	m.events = append(m.events, ev)
	m.dirty = true
	return s.commit(ctx, m)
}

// ExpireQuote lapses a Quoted quote whose window has passed. It reports
// whether anything changed; a re-sent or resolved quote is left alone.
func (s *Service) ExpireQuote(ctx context.Context, id types.ID) (bool, error) {
	m, err := s.begin(ctx, id, nil, "System", false)
	if err != nil {
		return false, err
	}
	ev, ok := applyExpireQuote(m.working, s.now())
	if !ok {
		return false, nil
	}
	ev.Actor = m.actor
	m.events = append(m.events, ev)
	m.dirty = true
	if _, err := s.commit(ctx, m); err != nil {
		return false, err
	}
	s.log.Info("quote expired", zap.String("request_id", string(id)))
	return true, nil
}

// ExpireDueQuotes sweeps quotes whose expiry task may have been lost.
func (s *Service) ExpireDueQuotes(ctx context.Context, limit int) (int, error) {
	ids, err := s.store.ListExpiredQuotes(ctx, s.now(), limit)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, id := range ids {
		ok, err := s.ExpireQuote(ctx, id)
		if err != nil {
			s.log.Warn("expire quote failed", zap.String("request_id", string(id)), zap.Error(err))
			continue
		}
		if ok {
			n++
		}
	}
	return n, nil
}

// SetExpectedDates stores advisory target dates. They are not gated.
func (s *Service) SetExpectedDates(ctx context.Context, cmd ExpectedDatesCommand) (*ServiceRequest, error) {
	m, err := s.begin(ctx, cmd.ID, cmd.ExpectedVersion, cmd.Actor, false)
	if err != nil {
		return nil, err
	}
	w := m.working
	if cmd.PickupDate != nil {
		d := *cmd.PickupDate
		w.ExpectedPickupDate = &d
		m.dirty = true
	}
	if cmd.ReturnDate != nil {
		d := *cmd.ReturnDate
		w.ExpectedReturnDate = &d
		m.dirty = true
	}
	if cmd.ReadyDate != nil {
		d := *cmd.ReadyDate
		w.ExpectedReadyDate = &d
		m.dirty = true
	}
	return s.commit(ctx, m)
}

func (s *Service) Get(ctx context.Context, id types.ID) (*ServiceRequest, error) {
	return s.store.Get(ctx, id)
}

func (s *Service) Timeline(ctx context.Context, id types.ID) ([]TimelineEvent, error) {
	return s.store.Timeline(ctx, id)
}

// NextStages loads the request and lists the stages staff may move to.
func (s *Service) NextStages(ctx context.Context, id types.ID) ([]Stage, error) {
	r, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return NextStages(r, s.opts.Policy), nil
}

// Transitions evaluates every candidate value for the admin UI.
func (s *Service) Transitions(ctx context.Context, id types.ID, override bool) (*TransitionView, error) {
	if override && !s.opts.AllowOverride {
		return nil, newTransitionError(CodeValidation, "", "", "", "override mode is disabled")
	}
	r, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return buildView(ctx, s.gate, r, s.opts.Policy, !override)
}

// Track is the customer lookup by ticket. The phone must match the one on
// the request.
func (s *Service) Track(ctx context.Context, ticket, phoneNumber string) (*TrackingView, error) {
	r, err := s.store.GetByTicket(ctx, ticket)
	if err != nil {
		return nil, err
	}
	if !samePhone(r.Phone, phoneNumber) {
		return nil, ErrNotFound
	}
	timeline, err := s.store.Timeline(ctx, r.ID)
	if err != nil {
		return nil, err
	}
	return &TrackingView{Request: r, Flow: TrackingFlow(r.ServiceMode), Timeline: timeline}, nil
}

// README: In-memory collaborators for request service tests.
package request

import (
	"context"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"repairtrack/internal/events"
	"repairtrack/internal/modules/job"
	"repairtrack/internal/types"
)

type memStore struct {
	mu       sync.Mutex
	requests map[types.ID]*ServiceRequest
	timeline map[types.ID][]TimelineEvent
	tickets  map[string]bool
	nextID   int64

	// taken holds tickets issued elsewhere that LastTicketSequence misses.
	taken map[string]bool

	// beforeSave runs inside Save before the compare, to simulate a
	// concurrent writer.
	beforeSave func()
	saves      int
}

func newMemStore() *memStore {
	return &memStore{
		requests: map[types.ID]*ServiceRequest{},
		timeline: map[types.ID][]TimelineEvent{},
		tickets:  map[string]bool{},
		taken:    map[string]bool{},
	}
}

func (s *memStore) Create(_ context.Context, r *ServiceRequest, first TimelineEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tickets[r.TicketNumber] || s.taken[r.TicketNumber] {
		return ErrDuplicateTicket
	}
	s.tickets[r.TicketNumber] = true
	s.requests[r.ID] = r.Clone()
	s.appendLocked(r.ID, []TimelineEvent{first})
	return nil
}

func (s *memStore) Get(_ context.Context, id types.ID) (*ServiceRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.requests[id]
	if !ok {
		return nil, ErrNotFound
	}
	return r.Clone(), nil
}

func (s *memStore) GetByTicket(_ context.Context, ticket string) (*ServiceRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.requests {
		if r.TicketNumber == ticket {
			return r.Clone(), nil
		}
	}
	return nil, ErrNotFound
}

func (s *memStore) LastTicketSequence(_ context.Context, datePrefix string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	highest := 0
	for t := range s.tickets {
		if strings.HasPrefix(t, "SRV-"+datePrefix+"-") {
			if n := parseTicketSequence(t); n > highest {
				highest = n
			}
		}
	}
	return highest, nil
}

func (s *memStore) Save(_ context.Context, next, prev *ServiceRequest, evs []TimelineEvent) (bool, error) {
	if s.beforeSave != nil {
		hook := s.beforeSave
		s.beforeSave = nil
		hook()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.requests[prev.ID]
	if !ok {
		return false, nil
	}
	if cur.Version != prev.Version || cur.Status != prev.Status || cur.Stage != prev.Stage || cur.TrackingStatus != prev.TrackingStatus {
		return false, nil
	}
	stored := next.Clone()
	stored.Version = cur.Version + 1
	s.requests[prev.ID] = stored
	s.appendLocked(prev.ID, evs)
	s.saves++
	return true, nil
}

func (s *memStore) appendLocked(id types.ID, evs []TimelineEvent) {
	for _, e := range evs {
		s.nextID++
		e.ID = s.nextID
		s.timeline[id] = append(s.timeline[id], e)
	}
}

func (s *memStore) Timeline(_ context.Context, id types.ID) ([]TimelineEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]TimelineEvent(nil), s.timeline[id]...), nil
}

func (s *memStore) ListExpiredQuotes(_ context.Context, now time.Time, limit int) ([]types.ID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []types.ID
	for id, r := range s.requests {
		if r.ConvertedJobID != nil || statusIndex(r.Status) >= statusIndex(StatusConverted) {
			continue
		}
		if r.QuoteState() == QuoteQuoted && r.QuoteExpiresAt != nil && !r.QuoteExpiresAt.After(now) {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	if len(ids) > limit {
		ids = ids[:limit]
	}
	return ids, nil
}

// set overwrites a stored request directly, bypassing the service.
func (s *memStore) set(r *ServiceRequest) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests[r.ID] = r.Clone()
}

type fakeJobs struct {
	mu      sync.Mutex
	jobs    map[string]*job.Job
	creates int
	lookups int
}

func newFakeJobs() *fakeJobs {
	return &fakeJobs{jobs: map[string]*job.Job{}}
}

func (f *fakeJobs) CreateForRequest(_ context.Context, seed job.Seed) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, j := range f.jobs {
		if j.RequestID == seed.RequestID {
			return j.ID, nil
		}
	}
	f.creates++
	id := job.FormatID(2026, len(f.jobs)+1)
	f.jobs[id] = &job.Job{
		ID:         id,
		RequestID:  seed.RequestID,
		Customer:   seed.Customer,
		Device:     seed.Device,
		Issue:      seed.Issue,
		Status:     job.StatusPending,
		Technician: job.UnassignedTechnician,
	}
	return id, nil
}

func (f *fakeJobs) Get(_ context.Context, id string) (*job.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lookups++
	j, ok := f.jobs[id]
	if !ok {
		return nil, job.ErrNotFound
	}
	cp := *j
	return &cp, nil
}

func (f *fakeJobs) assign(t *testing.T, id, technician string) {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	j, ok := f.jobs[id]
	if !ok {
		t.Fatalf("assign: job %s not found", id)
	}
	j.Technician = technician
}

type recordingPublisher struct {
	mu      sync.Mutex
	changes []events.Change
}

func (p *recordingPublisher) Publish(_ context.Context, changes ...events.Change) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.changes = append(p.changes, changes...)
	return nil
}

func (p *recordingPublisher) fields() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.changes))
	for _, c := range p.changes {
		out = append(out, c.Field+"="+c.NewValue)
	}
	return out
}

type expiryCall struct {
	requestID string
	at        time.Time
}

type fakeExpiry struct {
	calls []expiryCall
}

func (f *fakeExpiry) ScheduleQuoteExpiry(_ context.Context, requestID string, at time.Time) error {
	f.calls = append(f.calls, expiryCall{requestID, at})
	return nil
}

type stubPricing map[string]int64

func (p stubPricing) PickupCost(_ context.Context, tier, currency string) (types.Money, error) {
	return types.NewMoney(p[tier], currency), nil
}

type harness struct {
	svc    *Service
	store  *memStore
	jobs   *fakeJobs
	pub    *recordingPublisher
	expiry *fakeExpiry
	clock  time.Time
}

func newHarness(t *testing.T, opts Options) *harness {
	t.Helper()
	h := &harness{
		store:  newMemStore(),
		jobs:   newFakeJobs(),
		pub:    &recordingPublisher{},
		expiry: &fakeExpiry{},
		clock:  time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC),
	}
	h.svc = NewService(Deps{
		Store:   h.store,
		Jobs:    h.jobs,
		Pricing: stubPricing{"Regular": 0, "Priority": 500, "Emergency": 1000},
		Events:  h.pub,
		Expiry:  h.expiry,
	}, opts)
	h.svc.now = func() time.Time { return h.clock }
	return h
}

func (h *harness) advance(d time.Duration) {
	h.clock = h.clock.Add(d)
}

func (h *harness) create(t *testing.T, mode ServiceMode, intent Intent) *ServiceRequest {
	t.Helper()
	r, err := h.svc.Create(context.Background(), CreateCommand{
		CustomerName: "Nusrat Jahan",
		Phone:        "01712345678",
		Address:      "House 12, Road 5, Dhanmondi",
		Brand:        "Samsung",
		ScreenSize:   "55\"",
		PrimaryIssue: "No display",
		ServiceMode:  mode,
		Intent:       intent,
	})
	if err != nil {
		t.Fatalf("create %s/%s: %v", mode, intent, err)
	}
	return r
}

func (h *harness) get(t *testing.T, id types.ID) *ServiceRequest {
	t.Helper()
	r, err := h.svc.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	return r
}

func statusPtr(s Status) *Status                   { return &s }
func stagePtr(s Stage) *Stage                      { return &s }
func trackingPtr(s TrackingStatus) *TrackingStatus { return &s }
func timePtr(t time.Time) *time.Time               { return &t }

func wantCode(t *testing.T, err error, code Code) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s, got nil", code)
	}
	if got := CodeOf(err); got != code {
		t.Fatalf("expected %s, got %v", code, err)
	}
}

package request

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"repairtrack/internal/types"
)

func TestCreateAssignsTicketAndInitialState(t *testing.T) {
	h := newHarness(t, Options{})
	pickup := h.create(t, ModePickup, IntentRepair)
	center := h.create(t, ModeServiceCenter, IntentQuote)

	if pickup.TicketNumber != "SRV-20260601-0001" || center.TicketNumber != "SRV-20260601-0002" {
		t.Fatalf("tickets = %s, %s", pickup.TicketNumber, center.TicketNumber)
	}
	if pickup.Phone != "+8801712345678" {
		t.Fatalf("phone not normalised: %s", pickup.Phone)
	}
	if pickup.TrackingStatus != TrackingRequestReceived || center.TrackingStatus != TrackingAwaitingDropoff {
		t.Fatalf("initial tracking = %s, %s", pickup.TrackingStatus, center.TrackingStatus)
	}
	if pickup.QuoteStatus != nil {
		t.Fatalf("repair request should carry no quote status")
	}
	if center.QuoteState() != QuotePending || center.Currency != "BDT" {
		t.Fatalf("quote request state = %s %s", center.QuoteState(), center.Currency)
	}

	timeline, _ := h.svc.Timeline(context.Background(), pickup.ID)
	if len(timeline) != 1 || timeline[0].Message != "Your repair request has been received and is being reviewed." {
		t.Fatalf("unexpected first timeline entry %+v", timeline)
	}
}

func TestCreateRetriesTicketCollision(t *testing.T) {
	h := newHarness(t, Options{})
	// a ticket issued by another writer that LastTicketSequence has not seen
	h.store.taken["SRV-20260601-0001"] = true

	r := h.create(t, ModePickup, IntentRepair)
	if r.TicketNumber != "SRV-20260601-0002" {
		t.Fatalf("ticket = %s", r.TicketNumber)
	}
}

func TestCreateValidation(t *testing.T) {
	h := newHarness(t, Options{})
	_, err := h.svc.Create(context.Background(), CreateCommand{
		CustomerName: "Karim", Phone: "01712345678", Brand: "LG", PrimaryIssue: "No sound",
		ServiceMode: ModePickup,
	})
	wantCode(t, err, CodeValidation)
	if !strings.Contains(err.Error(), "Address") {
		t.Fatalf("expected address validation, got %v", err)
	}

	_, err = h.svc.Create(context.Background(), CreateCommand{
		CustomerName: "Karim", Phone: "12", Brand: "LG", PrimaryIssue: "No sound",
		ServiceMode: ModeServiceCenter,
	})
	wantCode(t, err, CodeValidation)

	_, err = h.svc.Create(context.Background(), CreateCommand{
		CustomerName: "Karim", Phone: "01712345678", Brand: "LG", PrimaryIssue: "No sound",
		ServiceMode: "courier",
	})
	wantCode(t, err, CodeValidation)
}

func TestPickupRepairLifecycle(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, Options{})
	r := h.create(t, ModePickup, IntentRepair)

	// technician stages need a converted request with a job
	_, err := h.svc.ApplyTracking(ctx, TrackingCommand{ID: r.ID, TrackingStatus: TrackingTechnicianAssigned})
	wantCode(t, err, CodeJobNotReady)

	if _, err := h.svc.Update(ctx, UpdateCommand{ID: r.ID, Status: statusPtr(StatusReviewed)}); err != nil {
		t.Fatalf("review: %v", err)
	}

	// no conversion before the device arrives
	_, err = h.svc.Update(ctx, UpdateCommand{ID: r.ID, Status: statusPtr(StatusConverted)})
	wantCode(t, err, CodeDeviceNotPresent)

	_, err = h.svc.ApplyTracking(ctx, TrackingCommand{ID: r.ID, TrackingStatus: TrackingArrivingToReceive})
	wantCode(t, err, CodeScheduleRequired)

	pickupAt := time.Date(2026, 6, 3, 10, 0, 0, 0, time.UTC)
	got, err := h.svc.ApplyTracking(ctx, TrackingCommand{
		ID: r.ID, TrackingStatus: TrackingArrivingToReceive, ScheduledPickupDate: &pickupAt,
	})
	if err != nil {
		t.Fatalf("arriving: %v", err)
	}
	if got.ScheduledPickupDate == nil || !got.ScheduledPickupDate.Equal(pickupAt) {
		t.Fatalf("schedule not stored: %v", got.ScheduledPickupDate)
	}

	if _, err := h.svc.ApplyTracking(ctx, TrackingCommand{ID: r.ID, TrackingStatus: TrackingReceived}); err != nil {
		t.Fatalf("received: %v", err)
	}

	got, err = h.svc.Update(ctx, UpdateCommand{ID: r.ID, Status: statusPtr(StatusConverted)})
	if err != nil {
		t.Fatalf("convert: %v", err)
	}
	if got.ConvertedJobID == nil || *got.ConvertedJobID != "JOB-2026-0001" {
		t.Fatalf("job not linked: %v", got.ConvertedJobID)
	}

	_, err = h.svc.ApplyTracking(ctx, TrackingCommand{ID: r.ID, TrackingStatus: TrackingTechnicianAssigned})
	wantCode(t, err, CodeJobNotReady)

	h.jobs.assign(t, *got.ConvertedJobID, "Rafiq Hasan")
	got, err = h.svc.ApplyTracking(ctx, TrackingCommand{ID: r.ID, TrackingStatus: TrackingTechnicianAssigned})
	if err != nil {
		t.Fatalf("technician assigned: %v", err)
	}
	if got.TrackingStatus != TrackingTechnicianAssigned {
		t.Fatalf("tracking = %s", got.TrackingStatus)
	}

	timeline, _ := h.svc.Timeline(ctx, r.ID)
	var created bool
	for _, e := range timeline {
		if e.Field == FieldConvertedJob && e.Message == "Job ticket JOB-2026-0001 has been created." {
			created = true
		}
	}
	if !created {
		t.Fatalf("job creation not on timeline: %+v", timeline)
	}
}

func TestQuoteBlocksUntilSent(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, Options{})
	r := h.create(t, ModeServiceCenter, IntentQuote)

	_, err := h.svc.Update(ctx, UpdateCommand{ID: r.ID, Status: statusPtr(StatusReviewed)})
	wantCode(t, err, CodeQuoteNotSent)
	_, err = h.svc.TransitionStage(ctx, StageCommand{ID: r.ID, Stage: StageAssessment})
	wantCode(t, err, CodeQuoteNotSent)

	got, err := h.svc.SendQuote(ctx, SendQuoteCommand{ID: r.ID, Amount: 4500, Notes: "Backlight strip"})
	if err != nil {
		t.Fatalf("send quote: %v", err)
	}
	if got.QuoteState() != QuoteQuoted || got.QuoteAmount.Amount != 4500 {
		t.Fatalf("quote = %s %v", got.QuoteState(), got.QuoteAmount)
	}
	wantExpiry := h.clock.Add(7 * 24 * time.Hour)
	if got.QuoteExpiresAt == nil || !got.QuoteExpiresAt.Equal(wantExpiry) {
		t.Fatalf("expiry = %v, want %v", got.QuoteExpiresAt, wantExpiry)
	}
	if len(h.expiry.calls) != 1 || h.expiry.calls[0].requestID != string(r.ID) || !h.expiry.calls[0].at.Equal(wantExpiry) {
		t.Fatalf("expiry not scheduled: %+v", h.expiry.calls)
	}

	if _, err := h.svc.Update(ctx, UpdateCommand{ID: r.ID, Status: statusPtr(StatusReviewed)}); err != nil {
		t.Fatalf("review after quote: %v", err)
	}
}

func TestQuoteAmountInUpdateSendsQuote(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, Options{})
	r := h.create(t, ModePickup, IntentQuote)

	amount := types.NewMoney(3000, "")
	got, err := h.svc.Update(ctx, UpdateCommand{ID: r.ID, QuoteAmount: &amount, Status: statusPtr(StatusReviewed)})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if got.QuoteState() != QuoteQuoted || got.Status != StatusReviewed || got.QuoteAmount.Currency != "BDT" {
		t.Fatalf("got %s %s %v", got.QuoteState(), got.Status, got.QuoteAmount)
	}

	zero := types.NewMoney(0, "BDT")
	_, err = h.svc.Update(ctx, UpdateCommand{ID: r.ID, QuoteAmount: &zero})
	wantCode(t, err, CodeValidation)

	repair := h.create(t, ModePickup, IntentRepair)
	_, err = h.svc.Update(ctx, UpdateCommand{ID: repair.ID, QuoteAmount: &amount})
	wantCode(t, err, CodeInvalidQuoteState)
}

func TestServiceCenterDropoffNeedsDate(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, Options{})
	r := h.create(t, ModeServiceCenter, IntentRepair)

	// re-applying the initial status still needs a date
	_, err := h.svc.ApplyTracking(ctx, TrackingCommand{ID: r.ID, TrackingStatus: TrackingAwaitingDropoff})
	wantCode(t, err, CodeScheduleRequired)

	date := time.Date(2026, 6, 5, 0, 0, 0, 0, time.UTC)
	got, err := h.svc.ApplyTracking(ctx, TrackingCommand{ID: r.ID, TrackingStatus: TrackingAwaitingDropoff, ScheduledPickupDate: &date})
	if err != nil {
		t.Fatalf("with date: %v", err)
	}
	if got.Version != 1 {
		t.Fatalf("storing the date should bump version, got %d", got.Version)
	}

	// now that a date is stored a bare re-apply is a no-op
	again, err := h.svc.ApplyTracking(ctx, TrackingCommand{ID: r.ID, TrackingStatus: TrackingAwaitingDropoff})
	if err != nil {
		t.Fatalf("re-apply: %v", err)
	}
	if again.Version != 1 {
		t.Fatalf("no-op bumped version to %d", again.Version)
	}
}

func TestIdempotentReapplyWritesNothing(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, Options{})
	r := h.create(t, ModePickup, IntentRepair)

	got, err := h.svc.Update(ctx, UpdateCommand{
		ID:             r.ID,
		Status:         statusPtr(StatusPending),
		Stage:          stagePtr(StageIntake),
		TrackingStatus: trackingPtr(TrackingRequestReceived),
	})
	if err != nil {
		t.Fatalf("re-apply: %v", err)
	}
	if got.Version != 0 || h.store.saves != 0 {
		t.Fatalf("re-apply wrote: version %d saves %d", got.Version, h.store.saves)
	}
	if n := len(h.pub.fields()); n != 1 {
		t.Fatalf("only the intake event should be published, got %d", n)
	}
}

func TestBackwardMovesAndOverride(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, Options{AllowOverride: true})
	r := h.create(t, ModePickup, IntentRepair)

	if _, err := h.svc.Update(ctx, UpdateCommand{
		ID: r.ID, Status: statusPtr(StatusReviewed), Stage: stagePtr(StageAssessment),
		TrackingStatus: trackingPtr(TrackingReceived),
	}); err != nil {
		t.Fatalf("forward: %v", err)
	}

	_, err := h.svc.Update(ctx, UpdateCommand{ID: r.ID, Status: statusPtr(StatusPending)})
	wantCode(t, err, CodeOutOfOrder)
	_, err = h.svc.Update(ctx, UpdateCommand{ID: r.ID, Stage: stagePtr(StageIntake)})
	wantCode(t, err, CodeInvalidStage)
	_, err = h.svc.Update(ctx, UpdateCommand{ID: r.ID, TrackingStatus: trackingPtr(TrackingRequestReceived)})
	wantCode(t, err, CodeOutOfOrder)

	got, err := h.svc.Update(ctx, UpdateCommand{
		ID: r.ID, Status: statusPtr(StatusPending), Stage: stagePtr(StageIntake),
		TrackingStatus: trackingPtr(TrackingRequestReceived), Override: true,
	})
	if err != nil {
		t.Fatalf("override: %v", err)
	}
	if got.Status != StatusPending || got.Stage != StageIntake || got.TrackingStatus != TrackingRequestReceived {
		t.Fatalf("override result %s %s %s", got.Status, got.Stage, got.TrackingStatus)
	}
}

func TestOverrideRefusedWhenDisabled(t *testing.T) {
	h := newHarness(t, Options{})
	r := h.create(t, ModePickup, IntentRepair)
	_, err := h.svc.Update(context.Background(), UpdateCommand{ID: r.ID, Status: statusPtr(StatusReviewed), Override: true})
	wantCode(t, err, CodeValidation)
	_, err = h.svc.Transitions(context.Background(), r.ID, true)
	wantCode(t, err, CodeValidation)
}

func TestUpdateIsAllOrNothing(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, Options{})
	r := h.create(t, ModePickup, IntentRepair)

	// status is valid, tracking is not; neither may land
	_, err := h.svc.Update(ctx, UpdateCommand{
		ID: r.ID, Status: statusPtr(StatusReviewed), TrackingStatus: trackingPtr(TrackingQueued),
	})
	wantCode(t, err, CodeValidation)

	got := h.get(t, r.ID)
	if got.Status != StatusPending || got.Version != 0 {
		t.Fatalf("partial write: %s v%d", got.Status, got.Version)
	}
}

func TestClosedForcesDeliveredAndFreezes(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, Options{})
	r := h.create(t, ModePickup, IntentRepair)

	got, err := h.svc.Update(ctx, UpdateCommand{ID: r.ID, Status: statusPtr(StatusClosed)})
	if err != nil {
		t.Fatalf("close: %v", err)
	}
	if got.TrackingStatus != TrackingDelivered || got.Stage != StageClosed {
		t.Fatalf("closed request at %s / %s", got.TrackingStatus, got.Stage)
	}
	if got.ConvertedJobID != nil {
		t.Fatalf("closing must not create a job")
	}

	_, err = h.svc.Update(ctx, UpdateCommand{ID: r.ID, TrackingStatus: trackingPtr(TrackingCancelled)})
	wantCode(t, err, CodeRequestClosedOrDeclined)

	// re-applying closed is still fine
	if _, err := h.svc.Update(ctx, UpdateCommand{ID: r.ID, Status: statusPtr(StatusClosed)}); err != nil {
		t.Fatalf("re-apply closed: %v", err)
	}
}

func TestJobCreationStageConverts(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, Options{Policy: StagePolicy{AllowSkip: true}})
	r := h.create(t, ModePickup, IntentRepair)

	got, err := h.svc.TransitionStage(ctx, StageCommand{ID: r.ID, Stage: StagePickedUp})
	if err != nil {
		t.Fatalf("picked up: %v", err)
	}
	if got.Status != StatusConverted || got.ConvertedJobID == nil {
		t.Fatalf("stage did not convert: %s %v", got.Status, got.ConvertedJobID)
	}
	if got.TrackingStatus != TrackingReceived {
		t.Fatalf("tracking should catch up to Received, got %s", got.TrackingStatus)
	}

	// another job creation call reuses the same job
	if _, err := h.svc.Update(ctx, UpdateCommand{ID: r.ID, Status: statusPtr(StatusConverted)}); err != nil {
		t.Fatalf("re-apply converted: %v", err)
	}
	if h.jobs.creates != 1 {
		t.Fatalf("created %d jobs", h.jobs.creates)
	}

	want := []string{
		"trackingStatus=Request Received",
		"stage=picked_up",
		"convertedJobId=JOB-2026-0001",
		"status=Converted",
		"trackingStatus=Received",
	}
	if got := h.pub.fields(); !reflect.DeepEqual(got, want) {
		t.Fatalf("published %v, want %v", got, want)
	}
}

func TestAcceptedQuoteConvertsWithJob(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, Options{Policy: StagePolicy{AllowSkip: true}})
	r := h.create(t, ModeServiceCenter, IntentQuote)

	if _, err := h.svc.SendQuote(ctx, SendQuoteCommand{ID: r.ID, Amount: 2000}); err != nil {
		t.Fatalf("send: %v", err)
	}
	got, err := h.svc.AcceptQuote(ctx, AcceptQuoteCommand{ID: r.ID})
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	if got.TotalAmount == nil || got.TotalAmount.Amount != 2000 {
		t.Fatalf("total = %v", got.TotalAmount)
	}

	got, err = h.svc.TransitionStage(ctx, StageCommand{ID: r.ID, Stage: StageDeviceReceived})
	if err != nil {
		t.Fatalf("device received: %v", err)
	}
	if got.QuoteState() != QuoteConverted || got.Status != StatusConverted || got.TrackingStatus != TrackingQueued {
		t.Fatalf("got quote %s status %s tracking %s", got.QuoteState(), got.Status, got.TrackingStatus)
	}
}

func TestAcceptQuotePickupTier(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, Options{})
	r := h.create(t, ModePickup, IntentQuote)
	if _, err := h.svc.SendQuote(ctx, SendQuoteCommand{ID: r.ID, Amount: 5000}); err != nil {
		t.Fatalf("send: %v", err)
	}

	_, err := h.svc.AcceptQuote(ctx, AcceptQuoteCommand{ID: r.ID})
	wantCode(t, err, CodeValidation)

	tier := TierEmergency
	when := time.Date(2026, 6, 2, 9, 0, 0, 0, time.UTC)
	got, err := h.svc.AcceptQuote(ctx, AcceptQuoteCommand{ID: r.ID, Tier: &tier, ScheduledPickupDate: &when})
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	if got.PickupCost.Amount != 1000 || got.TotalAmount.Amount != 6000 {
		t.Fatalf("cost %v total %v", got.PickupCost, got.TotalAmount)
	}
	if got.ScheduledPickupDate == nil || !got.ScheduledPickupDate.Equal(when) {
		t.Fatalf("schedule = %v", got.ScheduledPickupDate)
	}

	_, err = h.svc.AcceptQuote(ctx, AcceptQuoteCommand{ID: r.ID, Tier: &tier})
	wantCode(t, err, CodeInvalidQuoteState)
}

func TestDeclinedQuoteIsTerminal(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, Options{})
	r := h.create(t, ModeServiceCenter, IntentQuote)

	_, err := h.svc.DeclineQuote(ctx, r.ID)
	wantCode(t, err, CodeInvalidQuoteState)

	if _, err := h.svc.SendQuote(ctx, SendQuoteCommand{ID: r.ID, Amount: 1200}); err != nil {
		t.Fatalf("send: %v", err)
	}
	got, err := h.svc.DeclineQuote(ctx, r.ID)
	if err != nil {
		t.Fatalf("decline: %v", err)
	}
	if got.QuoteState() != QuoteDeclined || got.Status != StatusPending {
		t.Fatalf("declined request at %s / %s", got.QuoteState(), got.Status)
	}

	_, err = h.svc.Update(ctx, UpdateCommand{ID: r.ID, Status: statusPtr(StatusReviewed)})
	wantCode(t, err, CodeRequestClosedOrDeclined)
	_, err = h.svc.SendQuote(ctx, SendQuoteCommand{ID: r.ID, Amount: 900})
	wantCode(t, err, CodeRequestClosedOrDeclined)
}

func TestQuoteExpiry(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, Options{QuoteValidity: 48 * time.Hour})
	r := h.create(t, ModeServiceCenter, IntentQuote)
	if _, err := h.svc.SendQuote(ctx, SendQuoteCommand{ID: r.ID, Amount: 1500}); err != nil {
		t.Fatalf("send: %v", err)
	}

	ok, err := h.svc.ExpireQuote(ctx, r.ID)
	if err != nil || ok {
		t.Fatalf("early expire = %v, %v", ok, err)
	}

	h.advance(49 * time.Hour)
	_, err = h.svc.AcceptQuote(ctx, AcceptQuoteCommand{ID: r.ID})
	wantCode(t, err, CodeInvalidQuoteState)

	n, err := h.svc.ExpireDueQuotes(ctx, 10)
	if err != nil || n != 1 {
		t.Fatalf("sweep = %d, %v", n, err)
	}
	got := h.get(t, r.ID)
	if got.QuoteState() != QuoteExpired {
		t.Fatalf("quote = %s", got.QuoteState())
	}
	_, err = h.svc.Update(ctx, UpdateCommand{ID: r.ID, Status: statusPtr(StatusReviewed)})
	wantCode(t, err, CodeQuoteNotSent)

	// re-sending reopens the quote
	got, err = h.svc.SendQuote(ctx, SendQuoteCommand{ID: r.ID, Amount: 1700})
	if err != nil {
		t.Fatalf("re-send: %v", err)
	}
	if got.QuoteState() != QuoteQuoted {
		t.Fatalf("quote = %s", got.QuoteState())
	}
}

func TestUnacceptedQuoteCannotConvert(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, Options{QuoteValidity: 48 * time.Hour, Policy: StagePolicy{AllowSkip: true}})
	r := h.create(t, ModeServiceCenter, IntentQuote)
	if _, err := h.svc.SendQuote(ctx, SendQuoteCommand{ID: r.ID, Amount: 1500}); err != nil {
		t.Fatalf("send: %v", err)
	}

	_, err := h.svc.TransitionStage(ctx, StageCommand{ID: r.ID, Stage: StageDeviceReceived})
	wantCode(t, err, CodeInvalidQuoteState)

	date := time.Date(2026, 6, 2, 0, 0, 0, 0, time.UTC)
	if _, err := h.svc.ApplyTracking(ctx, TrackingCommand{ID: r.ID, TrackingStatus: TrackingQueued, ScheduledPickupDate: &date}); err != nil {
		t.Fatalf("queue: %v", err)
	}
	_, err = h.svc.Update(ctx, UpdateCommand{ID: r.ID, Status: statusPtr(StatusConverted)})
	wantCode(t, err, CodeInvalidQuoteState)

	if h.jobs.creates != 0 {
		t.Fatalf("created %d jobs for an unaccepted quote", h.jobs.creates)
	}
	if got := h.get(t, r.ID); got.Status == StatusConverted || got.ConvertedJobID != nil {
		t.Fatalf("request converted: %s %v", got.Status, got.ConvertedJobID)
	}
}

func TestExpiryLeavesConvertedRequestAlone(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, Options{QuoteValidity: 48 * time.Hour})
	r := h.create(t, ModeServiceCenter, IntentQuote)
	if _, err := h.svc.SendQuote(ctx, SendQuoteCommand{ID: r.ID, Amount: 1500}); err != nil {
		t.Fatalf("send: %v", err)
	}

	// a record converted while its quote still reads Quoted
	stored := h.get(t, r.ID)
	jobID, err := h.jobs.CreateForRequest(ctx, seedFor(stored))
	if err != nil {
		t.Fatalf("create job: %v", err)
	}
	stored.Status = StatusConverted
	stored.Stage = StageDeviceReceived
	stored.TrackingStatus = TrackingQueued
	stored.ConvertedJobID = &jobID
	h.store.set(stored)

	h.advance(49 * time.Hour)
	n, err := h.svc.ExpireDueQuotes(ctx, 10)
	if err != nil || n != 0 {
		t.Fatalf("sweep = %d, %v", n, err)
	}
	ok, err := h.svc.ExpireQuote(ctx, r.ID)
	if err != nil || ok {
		t.Fatalf("expire = %v, %v", ok, err)
	}
	if got := h.get(t, r.ID); got.QuoteState() != QuoteQuoted {
		t.Fatalf("quote = %s", got.QuoteState())
	}

	got, err := h.svc.Update(ctx, UpdateCommand{ID: r.ID, Status: statusPtr(StatusClosed)})
	if err != nil {
		t.Fatalf("close: %v", err)
	}
	if got.Status != StatusClosed {
		t.Fatalf("status = %s", got.Status)
	}
}

func TestOverrideCannotLeaveCancelled(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, Options{AllowOverride: true})
	r := h.create(t, ModePickup, IntentRepair)

	if _, err := h.svc.ApplyTracking(ctx, TrackingCommand{ID: r.ID, TrackingStatus: TrackingCancelled}); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	_, err := h.svc.ApplyTracking(ctx, TrackingCommand{ID: r.ID, TrackingStatus: TrackingReceived, Override: true})
	wantCode(t, err, CodeOutOfOrder)
	if got := h.get(t, r.ID); got.TrackingStatus != TrackingCancelled {
		t.Fatalf("tracking = %s", got.TrackingStatus)
	}
}

func TestCancelledRequestGetsNoJob(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, Options{Policy: StagePolicy{AllowSkip: true}})
	r := h.create(t, ModePickup, IntentRepair)

	if _, err := h.svc.ApplyTracking(ctx, TrackingCommand{ID: r.ID, TrackingStatus: TrackingCancelled}); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	_, err := h.svc.TransitionStage(ctx, StageCommand{ID: r.ID, Stage: StagePickedUp})
	wantCode(t, err, CodeRequestClosedOrDeclined)
	if h.jobs.creates != 0 {
		t.Fatalf("created %d jobs for a cancelled request", h.jobs.creates)
	}

	// stages that do not convert still move
	if _, err := h.svc.TransitionStage(ctx, StageCommand{ID: r.ID, Stage: StageAssessment}); err != nil {
		t.Fatalf("assessment: %v", err)
	}
}

func TestExpectedVersionMismatch(t *testing.T) {
	h := newHarness(t, Options{})
	r := h.create(t, ModePickup, IntentRepair)
	stale := 3
	_, err := h.svc.Update(context.Background(), UpdateCommand{ID: r.ID, Status: statusPtr(StatusReviewed), ExpectedVersion: &stale})
	wantCode(t, err, CodeConcurrentModification)
	if !errors.Is(err, ErrConcurrentModification) {
		t.Fatalf("errors.Is mismatch for %v", err)
	}
}

func TestLostCompareAndSet(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, Options{})
	r := h.create(t, ModePickup, IntentRepair)

	h.store.beforeSave = func() {
		winner := h.get(t, r.ID)
		winner.Status = StatusReviewed
		winner.Version++
		h.store.set(winner)
	}
	_, err := h.svc.Update(ctx, UpdateCommand{ID: r.ID, TrackingStatus: trackingPtr(TrackingReceived)})
	wantCode(t, err, CodeConcurrentModification)

	got := h.get(t, r.ID)
	if got.TrackingStatus != TrackingRequestReceived || got.Status != StatusReviewed {
		t.Fatalf("loser wrote over winner: %s / %s", got.Status, got.TrackingStatus)
	}
}

func TestSetExpectedDatesIsNotGated(t *testing.T) {
	h := newHarness(t, Options{})
	r := h.create(t, ModeServiceCenter, IntentQuote)
	ready := time.Date(2026, 6, 10, 0, 0, 0, 0, time.UTC)
	got, err := h.svc.SetExpectedDates(context.Background(), ExpectedDatesCommand{ID: r.ID, ReadyDate: &ready})
	if err != nil {
		t.Fatalf("set dates: %v", err)
	}
	if got.ExpectedReadyDate == nil || !got.ExpectedReadyDate.Equal(ready) || got.Version != 1 {
		t.Fatalf("dates not stored: %+v", got)
	}
}

func TestTrackRequiresMatchingPhone(t *testing.T) {
	h := newHarness(t, Options{})
	r := h.create(t, ModePickup, IntentRepair)

	view, err := h.svc.Track(context.Background(), r.TicketNumber, "+880 1712-345678")
	if err != nil {
		t.Fatalf("track: %v", err)
	}
	if len(view.Flow) != len(TrackingFlow(ModePickup)) || len(view.Timeline) != 1 {
		t.Fatalf("view = %+v", view)
	}

	_, err = h.svc.Track(context.Background(), r.TicketNumber, "01812345678")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestTransitionsView(t *testing.T) {
	h := newHarness(t, Options{})
	r := h.create(t, ModePickup, IntentRepair)

	view, err := h.svc.Transitions(context.Background(), r.ID, false)
	if err != nil {
		t.Fatalf("transitions: %v", err)
	}
	find := func(field Field, value string) Option {
		for _, o := range view.Options {
			if o.Field == field && o.Value == value {
				return o
			}
		}
		t.Fatalf("no option %s=%s", field, value)
		return Option{}
	}

	if o := find(FieldStatus, "Converted"); o.Allowed || o.Code != CodeDeviceNotPresent || !o.Irreversible {
		t.Fatalf("converted option %+v", o)
	}
	if o := find(FieldStatus, "Reviewed"); !o.Allowed {
		t.Fatalf("reviewed option %+v", o)
	}
	if o := find(FieldTrackingStatus, "Arriving to Receive"); !o.Allowed || !o.RequiresSchedule {
		t.Fatalf("arriving option %+v", o)
	}
	if o := find(FieldTrackingStatus, "Repairing"); o.Code != CodeJobNotReady {
		t.Fatalf("repairing option %+v", o)
	}
	if o := find(FieldTrackingStatus, "Cancelled"); !o.Allowed {
		t.Fatalf("cancelled option %+v", o)
	}
	if o := find(FieldStage, "picked_up"); o.Code != CodeInvalidStage || !o.Irreversible {
		t.Fatalf("picked_up option %+v", o)
	}
	if !reflect.DeepEqual(view.NextStages, []Stage{StageAssessment}) {
		t.Fatalf("next stages %v", view.NextStages)
	}
}

// README: Service request aggregate and lifecycle enums.
package request

import (
	"time"

	"repairtrack/internal/types"
)

type Status string

const (
	StatusPending   Status = "Pending"
	StatusReviewed  Status = "Reviewed"
	StatusConverted Status = "Converted"
	StatusClosed    Status = "Closed"
)

type TrackingStatus string

const (
	TrackingRequestReceived    TrackingStatus = "Request Received"
	TrackingArrivingToReceive  TrackingStatus = "Arriving to Receive"
	TrackingAwaitingDropoff    TrackingStatus = "Awaiting Drop-off"
	TrackingReceived           TrackingStatus = "Received"
	TrackingQueued             TrackingStatus = "Queued"
	TrackingTechnicianAssigned TrackingStatus = "Technician Assigned"
	TrackingDiagnosisCompleted TrackingStatus = "Diagnosis Completed"
	TrackingPartsPending       TrackingStatus = "Parts Pending"
	TrackingRepairing          TrackingStatus = "Repairing"
	TrackingReadyForDelivery   TrackingStatus = "Ready for Delivery"
	TrackingDelivered          TrackingStatus = "Delivered"
	TrackingCancelled          TrackingStatus = "Cancelled"
)

type Stage string

const (
	StageIntake           Stage = "intake"
	StageAssessment       Stage = "assessment"
	StageAwaitingCustomer Stage = "awaiting_customer"
	StageAuthorized       Stage = "authorized"
	StagePickupScheduled  Stage = "pickup_scheduled"
	StageAwaitingDropoff  Stage = "awaiting_dropoff"
	StagePickedUp         Stage = "picked_up"
	StageDeviceReceived   Stage = "device_received"
	StageInRepair         Stage = "in_repair"
	StageReady            Stage = "ready"
	StageOutForDelivery   Stage = "out_for_delivery"
	StageCompleted        Stage = "completed"
	StageClosed           Stage = "closed"
)

type QuoteStatus string

const (
	QuotePending   QuoteStatus = "Pending"
	QuoteQuoted    QuoteStatus = "Quoted"
	QuoteAccepted  QuoteStatus = "Accepted"
	QuoteDeclined  QuoteStatus = "Declined"
	QuoteConverted QuoteStatus = "Converted"
	QuoteExpired   QuoteStatus = "Expired"
)

type ServiceMode string

const (
	ModePickup        ServiceMode = "pickup"
	ModeServiceCenter ServiceMode = "service_center"
)

type Intent string

const (
	IntentRepair Intent = "repair"
	IntentQuote  Intent = "quote"
)

type PickupTier string

const (
	TierRegular   PickupTier = "Regular"
	TierPriority  PickupTier = "Priority"
	TierEmergency PickupTier = "Emergency"
)

type PaymentStatus string

const (
	PaymentDue  PaymentStatus = "Due"
	PaymentPaid PaymentStatus = "Paid"
)

// Field names a lifecycle attribute in errors and timeline events.
type Field string

const (
	FieldStatus         Field = "status"
	FieldStage          Field = "stage"
	FieldTrackingStatus Field = "trackingStatus"
	FieldQuoteStatus    Field = "quoteStatus"
	FieldQuote          Field = "quote"
	FieldConvertedJob   Field = "convertedJobId"
	FieldSchedule       Field = "scheduledPickupDate"
	FieldExpectedDates  Field = "expectedDates"
)

type ServiceRequest struct {
	ID           types.ID
	TicketNumber string

	CustomerName string
	Phone        string
	Address      string
	Brand        string
	ModelNumber  string
	ScreenSize   string
	PrimaryIssue string
	Description  string

	ServiceMode    ServiceMode
	Intent         Intent
	Status         Status
	Stage          Stage
	TrackingStatus TrackingStatus

	QuoteStatus    *QuoteStatus
	QuoteAmount    *types.Money
	QuoteNotes     *string
	QuotedAt       *time.Time
	QuoteExpiresAt *time.Time
	AcceptedAt     *time.Time

	PickupTier  *PickupTier
	PickupCost  *types.Money
	TotalAmount *types.Money
	Currency    string

	ConvertedJobID *string

	ScheduledPickupDate *time.Time
	ExpectedPickupDate  *time.Time
	ExpectedReturnDate  *time.Time
	ExpectedReadyDate   *time.Time

	PaymentStatus PaymentStatus
	Version       int
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (r *ServiceRequest) IsQuote() bool {
	return r.Intent == IntentQuote
}

// QuoteState returns the quote status, treating a missing value as Pending.
func (r *ServiceRequest) QuoteState() QuoteStatus {
	if r.QuoteStatus == nil {
		return QuotePending
	}
	return *r.QuoteStatus
}

func (r *ServiceRequest) Device() string {
	d := r.Brand
	if r.ScreenSize != "" {
		d += " " + r.ScreenSize
	}
	if r.ModelNumber != "" {
		d += " (" + r.ModelNumber + ")"
	}
	return d
}

// Clone returns a copy whose pointer fields can be reassigned without
// touching r.
func (r *ServiceRequest) Clone() *ServiceRequest {
	cp := *r
	return &cp
}

// TimelineEvent is one committed lifecycle change, shown on the customer
// tracking page and published to the event stream.
type TimelineEvent struct {
	ID        int64
	RequestID types.ID
	Field     Field
	OldValue  string
	NewValue  string
	Message   string
	Actor     string
	CreatedAt time.Time
}

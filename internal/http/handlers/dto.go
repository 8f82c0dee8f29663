// README: Response shapes for requests, customer tracking and jobs.
package handlers

import (
	"time"

	"repairtrack/internal/modules/job"
	"repairtrack/internal/modules/request"
	"repairtrack/internal/types"
)

type requestResponse struct {
	ID                  types.ID               `json:"id"`
	TicketNumber        string                 `json:"ticketNumber"`
	CustomerName        string                 `json:"customerName"`
	Phone               string                 `json:"phone"`
	Address             string                 `json:"address,omitempty"`
	Device              string                 `json:"device"`
	Brand               string                 `json:"brand"`
	ModelNumber         string                 `json:"modelNumber,omitempty"`
	ScreenSize          string                 `json:"screenSize,omitempty"`
	PrimaryIssue        string                 `json:"primaryIssue"`
	Description         string                 `json:"description,omitempty"`
	ServiceMode         request.ServiceMode    `json:"serviceMode"`
	Intent              request.Intent         `json:"intent"`
	Status              request.Status         `json:"status"`
	Stage               request.Stage          `json:"stage"`
	TrackingStatus      request.TrackingStatus `json:"trackingStatus"`
	QuoteStatus         *request.QuoteStatus   `json:"quoteStatus,omitempty"`
	QuoteAmount         *types.Money           `json:"quoteAmount,omitempty"`
	QuoteNotes          *string                `json:"quoteNotes,omitempty"`
	QuotedAt            *time.Time             `json:"quotedAt,omitempty"`
	QuoteExpiresAt      *time.Time             `json:"quoteExpiresAt,omitempty"`
	AcceptedAt          *time.Time             `json:"acceptedAt,omitempty"`
	PickupTier          *request.PickupTier    `json:"pickupTier,omitempty"`
	PickupCost          *types.Money           `json:"pickupCost,omitempty"`
	TotalAmount         *types.Money           `json:"totalAmount,omitempty"`
	ConvertedJobID      *string                `json:"convertedJobId,omitempty"`
	ScheduledPickupDate *time.Time             `json:"scheduledPickupDate,omitempty"`
	ExpectedPickupDate  *time.Time             `json:"expectedPickupDate,omitempty"`
	ExpectedReturnDate  *time.Time             `json:"expectedReturnDate,omitempty"`
	ExpectedReadyDate   *time.Time             `json:"expectedReadyDate,omitempty"`
	PaymentStatus       request.PaymentStatus  `json:"paymentStatus"`
	Version             int                    `json:"version"`
	CreatedAt           time.Time              `json:"createdAt"`
	UpdatedAt           time.Time              `json:"updatedAt"`
}

func toRequestResponse(r *request.ServiceRequest) requestResponse {
	return requestResponse{
		ID:                  r.ID,
		TicketNumber:        r.TicketNumber,
		CustomerName:        r.CustomerName,
		Phone:               r.Phone,
		Address:             r.Address,
		Device:              r.Device(),
		Brand:               r.Brand,
		ModelNumber:         r.ModelNumber,
		ScreenSize:          r.ScreenSize,
		PrimaryIssue:        r.PrimaryIssue,
		Description:         r.Description,
		ServiceMode:         r.ServiceMode,
		Intent:              r.Intent,
		Status:              r.Status,
		Stage:               r.Stage,
		TrackingStatus:      r.TrackingStatus,
		QuoteStatus:         r.QuoteStatus,
		QuoteAmount:         r.QuoteAmount,
		QuoteNotes:          r.QuoteNotes,
		QuotedAt:            r.QuotedAt,
		QuoteExpiresAt:      r.QuoteExpiresAt,
		AcceptedAt:          r.AcceptedAt,
		PickupTier:          r.PickupTier,
		PickupCost:          r.PickupCost,
		TotalAmount:         r.TotalAmount,
		ConvertedJobID:      r.ConvertedJobID,
		ScheduledPickupDate: r.ScheduledPickupDate,
		ExpectedPickupDate:  r.ExpectedPickupDate,
		ExpectedReturnDate:  r.ExpectedReturnDate,
		ExpectedReadyDate:   r.ExpectedReadyDate,
		PaymentStatus:       r.PaymentStatus,
		Version:             r.Version,
		CreatedAt:           r.CreatedAt,
		UpdatedAt:           r.UpdatedAt,
	}
}

type timelineEntry struct {
	Field     request.Field `json:"field"`
	OldValue  string        `json:"oldValue,omitempty"`
	NewValue  string        `json:"newValue"`
	Message   string        `json:"message"`
	Actor     string        `json:"actor,omitempty"`
	CreatedAt time.Time     `json:"createdAt"`
}

func toTimeline(events []request.TimelineEvent, withActor bool) []timelineEntry {
	out := make([]timelineEntry, 0, len(events))
	for _, e := range events {
		entry := timelineEntry{
			Field:     e.Field,
			OldValue:  e.OldValue,
			NewValue:  e.NewValue,
			Message:   e.Message,
			CreatedAt: e.CreatedAt,
		}
		if withActor {
			entry.Actor = e.Actor
		}
		out = append(out, entry)
	}
	return out
}

// trackResponse is what customers see; contact details are left out.
type trackResponse struct {
	TicketNumber   string                   `json:"ticketNumber"`
	Device         string                   `json:"device"`
	ServiceMode    request.ServiceMode      `json:"serviceMode"`
	TrackingStatus request.TrackingStatus   `json:"trackingStatus"`
	TrackingFlow   []request.TrackingStatus `json:"trackingFlow"`
	StageMessage   string                   `json:"stageMessage"`
	QuoteStatus    *request.QuoteStatus     `json:"quoteStatus,omitempty"`
	QuoteAmount    *types.Money             `json:"quoteAmount,omitempty"`
	QuoteExpiresAt *time.Time               `json:"quoteExpiresAt,omitempty"`
	TotalAmount    *types.Money             `json:"totalAmount,omitempty"`
	ScheduledDate  *time.Time               `json:"scheduledPickupDate,omitempty"`
	ExpectedReady  *time.Time               `json:"expectedReadyDate,omitempty"`
	Timeline       []timelineEntry          `json:"timeline"`
}

func toTrackResponse(v *request.TrackingView) trackResponse {
	r := v.Request
	return trackResponse{
		TicketNumber:   r.TicketNumber,
		Device:         r.Device(),
		ServiceMode:    r.ServiceMode,
		TrackingStatus: r.TrackingStatus,
		TrackingFlow:   v.Flow,
		StageMessage:   request.StageMessage(r.Stage),
		QuoteStatus:    r.QuoteStatus,
		QuoteAmount:    r.QuoteAmount,
		QuoteExpiresAt: r.QuoteExpiresAt,
		TotalAmount:    r.TotalAmount,
		ScheduledDate:  r.ScheduledPickupDate,
		ExpectedReady:  r.ExpectedReadyDate,
		Timeline:       toTimeline(v.Timeline, false),
	}
}

type jobResponse struct {
	ID            string       `json:"id"`
	RequestID     types.ID     `json:"requestId"`
	Customer      string       `json:"customer"`
	Device        string       `json:"device"`
	Issue         string       `json:"issue"`
	Status        job.Status   `json:"status"`
	Priority      string       `json:"priority"`
	Technician    string       `json:"technician"`
	EstimatedCost *types.Money `json:"estimatedCost,omitempty"`
	CreatedAt     time.Time    `json:"createdAt"`
	UpdatedAt     time.Time    `json:"updatedAt"`
}

func toJobResponse(j *job.Job) jobResponse {
	return jobResponse{
		ID:            j.ID,
		RequestID:     j.RequestID,
		Customer:      j.Customer,
		Device:        j.Device,
		Issue:         j.Issue,
		Status:        j.Status,
		Priority:      j.Priority,
		Technician:    j.Technician,
		EstimatedCost: j.EstimatedCost,
		CreatedAt:     j.CreatedAt,
		UpdatedAt:     j.UpdatedAt,
	}
}

// README: Confirmation prompts and the available-transitions view for the admin UI.
package request

import (
	"context"
	"errors"
	"fmt"
	"time"
)

func StatusConfirmation(from, to Status) string {
	switch to {
	case StatusReviewed:
		return "Changing to 'Reviewed' indicates the request has been assessed."
	case StatusConverted:
		return "Changing to 'Converted' will create a job ticket for this request. This action cannot be undone."
	case StatusClosed:
		return "Changing to 'Closed' will mark this request as complete. The customer will be notified."
	}
	return fmt.Sprintf("Changing status from '%s' to '%s'.", from, to)
}

func TrackingConfirmation(from, to TrackingStatus) string {
	return fmt.Sprintf("The customer tracking status will change from '%s' to '%s'. The customer will see this update in their order tracking.", from, to)
}

func StageConfirmation(from, to Stage) string {
	if IsJobCreationStage(to) {
		return fmt.Sprintf("Moving from '%s' to '%s' will create a job ticket for this request. This action cannot be undone.", from, to)
	}
	return fmt.Sprintf("Moving from '%s' to '%s'. The customer will see: %s", from, to, StageMessage(to))
}

// Option is one candidate value for a lifecycle field.
type Option struct {
	Field            Field  `json:"field"`
	Value            string `json:"value"`
	Current          bool   `json:"current"`
	Allowed          bool   `json:"allowed"`
	Code             Code   `json:"code,omitempty"`
	Reason           string `json:"reason,omitempty"`
	Confirmation     string `json:"confirmation,omitempty"`
	RequiresSchedule bool   `json:"requiresSchedule,omitempty"`
	Irreversible     bool   `json:"irreversible,omitempty"`
}

// TransitionView is what the admin UI renders next to a request.
type TransitionView struct {
	Version        int            `json:"version"`
	Status         Status         `json:"status"`
	Stage          Stage          `json:"stage"`
	TrackingStatus TrackingStatus `json:"trackingStatus"`
	QuoteBlocked   bool           `json:"quoteBlocked"`
	NextStages     []Stage        `json:"nextStages"`
	Options        []Option       `json:"options"`
}

// buildView runs the guard chain against every candidate value. Dates are
// assumed for schedule-requiring statuses and flagged instead.
func buildView(ctx context.Context, gate *Gate, r *ServiceRequest, policy StagePolicy, strict bool) (*TransitionView, error) {
	view := &TransitionView{
		Version:        r.Version,
		Status:         r.Status,
		Stage:          r.Stage,
		TrackingStatus: r.TrackingStatus,
		QuoteBlocked:   BlocksLifecycle(r),
		NextStages:     NextStages(r, policy),
	}

	assumed := time.Now()
	probe := func(field Field, from, to string, confirmation string) error {
		t := Transition{
			Field:     field,
			From:      from,
			To:        to,
			Persisted: r,
			Working:   r,
			Strict:    strict,
			Policy:    policy,
		}
		opt := Option{Field: field, Value: to, Current: from == to, Confirmation: confirmation}
		if field == FieldTrackingStatus && requiresSchedule(TrackingStatus(to)) {
			opt.RequiresSchedule = true
			t.Schedule = &assumed
		}
		var te *TransitionError
		switch err := gate.Check(ctx, t); {
		case errors.As(err, &te):
			opt.Code = te.Code
			opt.Reason = te.Message
		case err != nil:
			return err
		default:
			opt.Allowed = true
		}
		if field == FieldStatus {
			opt.Irreversible = Status(to) == StatusConverted || Status(to) == StatusClosed
		}
		if field == FieldStage {
			opt.Irreversible = IsJobCreationStage(Stage(to))
		}
		view.Options = append(view.Options, opt)
		return nil
	}

	for _, s := range StatusFlow {
		if err := probe(FieldStatus, string(r.Status), string(s), StatusConfirmation(r.Status, s)); err != nil {
			return nil, err
		}
	}
	for _, s := range StageFlow(r.ServiceMode, r.Intent) {
		if err := probe(FieldStage, string(r.Stage), string(s), StageConfirmation(r.Stage, s)); err != nil {
			return nil, err
		}
	}
	tracking := append(append([]TrackingStatus{}, TrackingFlow(r.ServiceMode)...), TrackingCancelled)
	for _, s := range tracking {
		if err := probe(FieldTrackingStatus, string(r.TrackingStatus), string(s), TrackingConfirmation(r.TrackingStatus, s)); err != nil {
			return nil, err
		}
	}
	return view, nil
}

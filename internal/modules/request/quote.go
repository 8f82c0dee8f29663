// README: Quote overlay; lifecycle block predicate and quote state changes.
package request

import (
	"time"

	"repairtrack/internal/types"
)

// BlocksLifecycle reports whether an unresolved quote freezes status, stage
// and tracking.
func BlocksLifecycle(r *ServiceRequest) bool {
	if !r.IsQuote() {
		return false
	}
	switch r.QuoteState() {
	case QuoteQuoted, QuoteAccepted, QuoteConverted:
		return false
	}
	return true
}

func quoteStatusPtr(s QuoteStatus) *QuoteStatus {
	return &s
}

func quoteEvent(w *ServiceRequest, from QuoteStatus, message string) TimelineEvent {
	return TimelineEvent{
		RequestID: w.ID,
		Field:     FieldQuoteStatus,
		OldValue:  string(from),
		NewValue:  string(w.QuoteState()),
		Message:   message,
	}
}

func checkQuoteEditable(w *ServiceRequest) error {
	if !w.IsQuote() {
		return newTransitionError(CodeInvalidQuoteState, FieldQuoteStatus, "", "",
			"%s is not a quote request", w.TicketNumber)
	}
	if w.Status == StatusClosed || w.QuoteState() == QuoteDeclined {
		return newTransitionError(CodeRequestClosedOrDeclined, FieldQuoteStatus, string(w.QuoteState()), "",
			"request %s is closed for editing", w.TicketNumber)
	}
	return nil
}

// applySendQuote prices the quote and starts its validity window. Sending
// again from Quoted or Expired replaces the price.
func applySendQuote(w *ServiceRequest, amount types.Money, notes string, now time.Time, validity time.Duration) (TimelineEvent, error) {
	if err := checkQuoteEditable(w); err != nil {
		return TimelineEvent{}, err
	}
	from := w.QuoteState()
	switch from {
	case QuotePending, QuoteQuoted, QuoteExpired:
	default:
		return TimelineEvent{}, newTransitionError(CodeInvalidQuoteState, FieldQuoteStatus, string(from), string(QuoteQuoted),
			"quote is already %s", from)
	}
	if amount.Amount <= 0 {
		return TimelineEvent{}, newTransitionError(CodeValidation, FieldQuote, "", "",
			"quote amount must be positive")
	}

	quotedAt := now
	expiresAt := now.Add(validity)
	w.QuoteStatus = quoteStatusPtr(QuoteQuoted)
	w.QuoteAmount = &amount
	if notes != "" {
		w.QuoteNotes = &notes
	} else {
		w.QuoteNotes = nil
	}
	w.QuotedAt = &quotedAt
	w.QuoteExpiresAt = &expiresAt
	return quoteEvent(w, from, "Your quote is ready: "+amount.String()+"."), nil
}

// applyAcceptQuote records the customer's acceptance and totals the price
// with the pickup charge.
func applyAcceptQuote(w *ServiceRequest, tier *PickupTier, pickupCost types.Money, schedule *time.Time, now time.Time) (TimelineEvent, error) {
	if err := checkQuoteEditable(w); err != nil {
		return TimelineEvent{}, err
	}
	from := w.QuoteState()
	if from != QuoteQuoted {
		return TimelineEvent{}, newTransitionError(CodeInvalidQuoteState, FieldQuoteStatus, string(from), string(QuoteAccepted),
			"only a Quoted quote can be accepted")
	}
	if w.QuoteExpiresAt != nil && !now.Before(*w.QuoteExpiresAt) {
		return TimelineEvent{}, newTransitionError(CodeInvalidQuoteState, FieldQuoteStatus, string(from), string(QuoteAccepted),
			"quote expired at %s", w.QuoteExpiresAt.Format(time.RFC3339))
	}

	acceptedAt := now
	w.QuoteStatus = quoteStatusPtr(QuoteAccepted)
	w.AcceptedAt = &acceptedAt
	w.PickupTier = tier
	w.PickupCost = &pickupCost
	total := pickupCost
	if w.QuoteAmount != nil {
		total = w.QuoteAmount.Add(pickupCost)
	}
	w.TotalAmount = &total
	if schedule != nil {
		d := *schedule
		w.ScheduledPickupDate = &d
	}
	return quoteEvent(w, from, "Quote accepted."), nil
}

// applyDeclineQuote closes the request for editing. Status is left as is.
func applyDeclineQuote(w *ServiceRequest) (TimelineEvent, error) {
	if err := checkQuoteEditable(w); err != nil {
		return TimelineEvent{}, err
	}
	from := w.QuoteState()
	if from != QuoteQuoted && from != QuoteExpired {
		return TimelineEvent{}, newTransitionError(CodeInvalidQuoteState, FieldQuoteStatus, string(from), string(QuoteDeclined),
			"only a sent quote can be declined")
	}
	w.QuoteStatus = quoteStatusPtr(QuoteDeclined)
	return quoteEvent(w, from, "Quote declined. This request is now closed."), nil
}

// applyExpireQuote moves a Quoted quote past its window back into a blocking
// state. It reports false when there is nothing to expire. A request already
// converted or closed keeps its quote as is.
func applyExpireQuote(w *ServiceRequest, now time.Time) (TimelineEvent, bool) {
	if !w.IsQuote() || w.QuoteState() != QuoteQuoted || w.QuoteExpiresAt == nil {
		return TimelineEvent{}, false
	}
	if w.ConvertedJobID != nil || statusIndex(w.Status) >= statusIndex(StatusConverted) {
		return TimelineEvent{}, false
	}
	if now.Before(*w.QuoteExpiresAt) {
		return TimelineEvent{}, false
	}
	w.QuoteStatus = quoteStatusPtr(QuoteExpired)
	return quoteEvent(w, QuoteQuoted, "Your quote has expired. Contact us for an updated price."), true
}

// convertQuote marks an accepted quote as converted alongside the request.
func convertQuote(w *ServiceRequest) (TimelineEvent, bool) {
	if !w.IsQuote() || w.QuoteState() != QuoteAccepted {
		return TimelineEvent{}, false
	}
	w.QuoteStatus = quoteStatusPtr(QuoteConverted)
	return quoteEvent(w, QuoteAccepted, "Quote converted to a repair job."), true
}

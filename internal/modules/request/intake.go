// README: Intake; validation, phone normalisation and ticket numbering for new requests.
package request

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"repairtrack/internal/platform/phone"
	"repairtrack/internal/types"
)

const maxTicketAttempts = 5

type CreateCommand struct {
	CustomerName string      `validate:"required,max=120"`
	Phone        string      `validate:"required"`
	Address      string      `validate:"required_if=ServiceMode pickup,max=500"`
	Brand        string      `validate:"required,max=60"`
	ModelNumber  string      `validate:"max=60"`
	ScreenSize   string      `validate:"max=20"`
	PrimaryIssue string      `validate:"required,max=200"`
	Description  string      `validate:"max=2000"`
	ServiceMode  ServiceMode `validate:"required,oneof=pickup service_center"`
	Intent       Intent      `validate:"omitempty,oneof=repair quote"`
	Actor        string
}

// FormatTicket renders SRV-YYYYMMDD-NNNN.
func FormatTicket(datePrefix string, seq int) string {
	return fmt.Sprintf("SRV-%s-%04d", datePrefix, seq)
}

func ticketDatePrefix(t time.Time) string {
	return t.UTC().Format("20060102")
}

func parseTicketSequence(ticket string) int {
	idx := strings.LastIndexByte(ticket, '-')
	if idx < 0 {
		return 0
	}
	n, err := strconv.Atoi(ticket[idx+1:])
	if err != nil {
		return 0
	}
	return n
}

func validationError(err error) *TransitionError {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return newTransitionError(CodeValidation, Field(fe.Field()), "", "",
			"%s failed %s validation", fe.Field(), fe.Tag())
	}
	return newTransitionError(CodeValidation, "", "", "", "%v", err)
}

// Create validates intake data and stores a new request at the start of its
// workflow. Ticket numbers are retried on collision.
func (s *Service) Create(ctx context.Context, cmd CreateCommand) (*ServiceRequest, error) {
	if err := s.validate.Struct(cmd); err != nil {
		return nil, validationError(err)
	}
	normalized, ok := phone.NormalizeE164(cmd.Phone, s.opts.PhoneRegion)
	if !ok {
		return nil, newTransitionError(CodeValidation, "Phone", "", "", "phone number %q is not valid", cmd.Phone)
	}
	intent := cmd.Intent
	if intent == "" {
		intent = IntentRepair
	}

	now := s.now()
	r := &ServiceRequest{
		ID:             types.NewID(),
		CustomerName:   strings.TrimSpace(cmd.CustomerName),
		Phone:          normalized,
		Address:        strings.TrimSpace(cmd.Address),
		Brand:          strings.TrimSpace(cmd.Brand),
		ModelNumber:    strings.TrimSpace(cmd.ModelNumber),
		ScreenSize:     strings.TrimSpace(cmd.ScreenSize),
		PrimaryIssue:   strings.TrimSpace(cmd.PrimaryIssue),
		Description:    strings.TrimSpace(cmd.Description),
		ServiceMode:    cmd.ServiceMode,
		Intent:         intent,
		Status:         StatusPending,
		Stage:          StageIntake,
		TrackingStatus: InitialTracking(cmd.ServiceMode),
		Currency:       s.opts.Currency,
		PaymentStatus:  PaymentDue,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if r.IsQuote() {
		r.QuoteStatus = quoteStatusPtr(QuotePending)
	}

	first := TimelineEvent{
		RequestID: r.ID,
		Field:     FieldTrackingStatus,
		NewValue:  string(r.TrackingStatus),
		Message:   "Your repair request has been received and is being reviewed.",
		Actor:     actorOrSystem(cmd.Actor),
		CreatedAt: now,
	}

	prefix := ticketDatePrefix(now)
	last, err := s.store.LastTicketSequence(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("last ticket sequence: %w", err)
	}
	for attempt := 0; attempt < maxTicketAttempts; attempt++ {
		r.TicketNumber = FormatTicket(prefix, last+1+attempt)
		err = s.store.Create(ctx, r, first)
		if errors.Is(err, ErrDuplicateTicket) {
			s.log.Debug("ticket number collision, retrying", zap.String("ticket", r.TicketNumber))
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}
		s.log.Info("service request created",
			zap.String("request_id", string(r.ID)),
			zap.String("ticket", r.TicketNumber),
			zap.String("mode", string(r.ServiceMode)),
			zap.String("intent", string(r.Intent)),
		)
		s.publish(ctx, r, []TimelineEvent{first})
		return r, nil
	}
	return nil, fmt.Errorf("create request: %w after %d attempts", ErrDuplicateTicket, maxTicketAttempts)
}

func actorOrSystem(actor string) string {
	if strings.TrimSpace(actor) == "" {
		return "System"
	}
	return actor
}

func samePhone(stored, given string) bool {
	d := phone.Digits(given)
	return d != "" && phone.Digits(stored) == d
}

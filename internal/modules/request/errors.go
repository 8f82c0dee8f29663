// README: Typed lifecycle errors carrying rule, field and current vs requested values.
package request

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrNotFound   = errors.New("service request not found")
	ErrConflict   = errors.New("service request state conflict")
	ErrBadRequest = errors.New("bad request")
)

// Code identifies which lifecycle rule rejected an operation.
type Code string

const (
	CodeInvalidStage            Code = "InvalidStage"
	CodeOutOfOrder              Code = "OutOfOrder"
	CodeJobNotReady             Code = "JobNotReady"
	CodeQuoteNotSent            Code = "QuoteNotSent"
	CodeRequestClosedOrDeclined Code = "RequestClosedOrDeclined"
	CodeConcurrentModification  Code = "ConcurrentModification"
	CodeScheduleRequired        Code = "ScheduleRequired"
	CodeDeviceNotPresent        Code = "DeviceNotPresent"
	CodeInvalidQuoteState       Code = "InvalidQuoteState"
	CodeValidation              Code = "Validation"
)

// TransitionError is returned for every rejected lifecycle mutation. The
// stored record is untouched when one is returned.
type TransitionError struct {
	Code      Code   `json:"code"`
	Field     Field  `json:"field,omitempty"`
	Current   string `json:"current,omitempty"`
	Requested string `json:"requested,omitempty"`
	Message   string `json:"message"`
}

func (e *TransitionError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s (%s %q -> %q)", e.Code, e.Message, e.Field, e.Current, e.Requested)
}

// Is matches on Code so callers can use errors.Is(err, ErrJobNotReady).
func (e *TransitionError) Is(target error) bool {
	t, ok := target.(*TransitionError)
	return ok && t.Code == e.Code
}

// HTTPStatus maps the rule to a response code.
func (e *TransitionError) HTTPStatus() int {
	switch e.Code {
	case CodeValidation:
		return http.StatusBadRequest
	case CodeConcurrentModification:
		return http.StatusConflict
	default:
		return http.StatusUnprocessableEntity
	}
}

var (
	ErrInvalidStage            = &TransitionError{Code: CodeInvalidStage}
	ErrOutOfOrder              = &TransitionError{Code: CodeOutOfOrder}
	ErrJobNotReady             = &TransitionError{Code: CodeJobNotReady}
	ErrQuoteNotSent            = &TransitionError{Code: CodeQuoteNotSent}
	ErrRequestClosedOrDeclined = &TransitionError{Code: CodeRequestClosedOrDeclined}
	ErrConcurrentModification  = &TransitionError{Code: CodeConcurrentModification}
	ErrScheduleRequired        = &TransitionError{Code: CodeScheduleRequired}
	ErrDeviceNotPresent        = &TransitionError{Code: CodeDeviceNotPresent}
	ErrInvalidQuoteState       = &TransitionError{Code: CodeInvalidQuoteState}
	ErrValidation              = &TransitionError{Code: CodeValidation}
)

func newTransitionError(code Code, field Field, current, requested, format string, args ...any) *TransitionError {
	return &TransitionError{
		Code:      code,
		Field:     field,
		Current:   current,
		Requested: requested,
		Message:   fmt.Sprintf(format, args...),
	}
}

// CodeOf returns the rule code carried by err, or "".
func CodeOf(err error) Code {
	var te *TransitionError
	if errors.As(err, &te) {
		return te.Code
	}
	return ""
}

func concurrentModification(reason string) *TransitionError {
	return &TransitionError{Code: CodeConcurrentModification, Message: reason}
}

package contract

import (
	"context"
	"errors"

	statex "github.com/tanpawarit/Chative-Reservation-Concierge/agent/state"
)

var (
	ErrModelInvoke     = errors.New("model invoke failed")
	ErrSchemaViolation = errors.New("model response violates schema")
	ErrPromptMissing   = errors.New("required prompt is missing")
	ErrValidation      = errors.New("validation failed")
)

var (
	ErrInputIncomplete = errors.New("required input is missing")
	ErrOutOfScope      = errors.New("request is out of scope")
	ErrAdapter         = errors.New("adapter failed")
	ErrAdapterTimeout  = errors.New("adapter timed out")
	ErrPolicyViolation = errors.New("action violates orchestration policy")
	ErrBookingFailed   = errors.New("booking rejected")
	ErrDialError       = errors.New("phone number unreachable")
	ErrNotConfigured   = errors.New("capability is not configured")
)

// ClassifyError maps an adapter error to its observation kind.
func ClassifyError(err error) statex.ErrorKind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrAdapterTimeout), errors.Is(err, context.DeadlineExceeded):
		return statex.ErrorAdapterTimeout
	case errors.Is(err, ErrBookingFailed):
		return statex.ErrorBookingFailed
	case errors.Is(err, ErrDialError):
		return statex.ErrorDial
	case errors.Is(err, ErrInputIncomplete), errors.Is(err, ErrValidation):
		return statex.ErrorInputIncomplete
	case errors.Is(err, ErrOutOfScope):
		return statex.ErrorOutOfScope
	case errors.Is(err, ErrPolicyViolation):
		return statex.ErrorPolicyViolation
	default:
		return statex.ErrorAdapter
	}
}

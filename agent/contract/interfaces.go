package contract

import (
	"context"

	statex "github.com/tanpawarit/Chative-Reservation-Concierge/agent/state"
)

// DecisionFunction proposes exactly one action and never mutates state.
type DecisionFunction interface {
	Propose(ctx context.Context, req DecisionRequest) (Action, error)
}

type WebSearcher interface {
	SearchWeb(ctx context.Context, req WebSearchRequest) ([]statex.WebResult, error)
}

type PlaceSearcher interface {
	SearchPlaces(ctx context.Context, q PlaceQuery) ([]statex.RestaurantCandidate, error)
}

// AvailabilityChecker returns one verdict per requested candidate.
type AvailabilityChecker interface {
	CheckAvailability(ctx context.Context, req AvailabilityRequest) ([]statex.AvailabilityRecord, error)
}

// BookingMaker returns ErrBookingFailed when the backing system rejects the slot.
type BookingMaker interface {
	MakeBooking(ctx context.Context, req BookingRequest) (BookingResult, error)
}

// PhoneCaller blocks until the call ends. It returns ErrDialError when the
// number is unreachable.
type PhoneCaller interface {
	PhoneCall(ctx context.Context, req PhoneCallRequest) (PhoneCallResult, error)
}

type Calendar interface {
	CreateEvent(ctx context.Context, in CalendarEventInput) (CalendarEvent, error)
	SearchEvents(ctx context.Context, q EventQuery) ([]CalendarEvent, error)
	UpdateEvent(ctx context.Context, eventID string, patch CalendarEventPatch) (CalendarEvent, error)
	DeleteEvent(ctx context.Context, eventID string) error
}

// ToolGateway executes one invoke action and reports the outcome as an
// observation. Adapter errors never escape as Go errors.
type ToolGateway interface {
	Execute(ctx context.Context, action Action, targets []statex.RestaurantCandidate) statex.Observation
}

type EventSink interface {
	Publish(ctx context.Context, event Event) error
}

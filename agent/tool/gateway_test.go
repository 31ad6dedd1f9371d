package tool

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	contractx "github.com/tanpawarit/Chative-Reservation-Concierge/agent/contract"
	statex "github.com/tanpawarit/Chative-Reservation-Concierge/agent/state"
)

var fixedNow = time.Date(2026, 1, 21, 18, 40, 0, 0, time.UTC)

type fakeWeb struct {
	got contractx.WebSearchRequest
}

func (f *fakeWeb) SearchWeb(_ context.Context, req contractx.WebSearchRequest) ([]statex.WebResult, error) {
	f.got = req
	return []statex.WebResult{{Title: "Guía", Snippet: "asadores", URL: "https://example.com"}}, nil
}

type fakePlaces struct {
	result []statex.RestaurantCandidate
	err    error
}

func (f *fakePlaces) SearchPlaces(context.Context, contractx.PlaceQuery) ([]statex.RestaurantCandidate, error) {
	return f.result, f.err
}

type fakeAvailability struct {
	got contractx.AvailabilityRequest
}

func (f *fakeAvailability) CheckAvailability(_ context.Context, req contractx.AvailabilityRequest) ([]statex.AvailabilityRecord, error) {
	f.got = req
	out := make([]statex.AvailabilityRecord, 0, len(req.Candidates))
	for i, c := range req.Candidates {
		v := statex.VerdictPhoneOnly
		if i == 0 {
			v = statex.VerdictAvailable
		}
		out = append(out, statex.AvailabilityRecord{PlaceID: c.PlaceID, Verdict: v})
	}
	return out, nil
}

type fakeBooking struct {
	got    contractx.BookingRequest
	result contractx.BookingResult
	err    error
	block  bool
	ctxErr error
}

func (f *fakeBooking) MakeBooking(ctx context.Context, req contractx.BookingRequest) (contractx.BookingResult, error) {
	f.got = req
	if f.block {
		<-ctx.Done()
		f.ctxErr = ctx.Err()
		return contractx.BookingResult{}, ctx.Err()
	}
	f.ctxErr = ctx.Err()
	return f.result, f.err
}

type fakePhone struct {
	result contractx.PhoneCallResult
	err    error
	calls  int
}

func (f *fakePhone) PhoneCall(context.Context, contractx.PhoneCallRequest) (contractx.PhoneCallResult, error) {
	f.calls++
	return f.result, f.err
}

type fakeCalendar struct {
	created contractx.CalendarEventInput
	patch   contractx.CalendarEventPatch
	deleted string
}

func (f *fakeCalendar) CreateEvent(_ context.Context, in contractx.CalendarEventInput) (contractx.CalendarEvent, error) {
	f.created = in
	return contractx.CalendarEvent{EventID: "ev-1", Summary: in.Summary, Start: in.Start, End: in.End, Timezone: in.Timezone}, nil
}

func (f *fakeCalendar) SearchEvents(context.Context, contractx.EventQuery) ([]contractx.CalendarEvent, error) {
	return []contractx.CalendarEvent{{EventID: "ev-1"}}, nil
}

func (f *fakeCalendar) UpdateEvent(_ context.Context, id string, patch contractx.CalendarEventPatch) (contractx.CalendarEvent, error) {
	f.patch = patch
	return contractx.CalendarEvent{EventID: id}, nil
}

func (f *fakeCalendar) DeleteEvent(_ context.Context, id string) error {
	f.deleted = id
	return nil
}

func invoke(c contractx.Capability, args map[string]any) contractx.Action {
	return contractx.Action{Kind: contractx.ActionInvoke, Capability: c, Args: args}
}

func newTestGateway(adapters Adapters, cfg Config) *Gateway {
	return NewGateway(adapters, cfg, WithGatewayClock(func() time.Time { return fixedNow }))
}

var laPlaza = statex.RestaurantCandidate{PlaceID: "p1", Name: "La Plaza", VenueID: "v-1", HasBookingAPI: true, Phone: "+34910000001"}

func TestExecuteSearchWeb(t *testing.T) {
	t.Parallel()

	web := &fakeWeb{}
	g := newTestGateway(Adapters{Web: web}, Config{WebResults: 3})

	obs := g.Execute(context.Background(), invoke(contractx.CapSearchWeb, map[string]any{"query": "asador Navalcarnero"}), nil)
	if !obs.OK {
		t.Fatalf("expected ok observation, got %+v", obs)
	}
	if web.got.MaxResults != 3 {
		t.Fatalf("expected max results 3, got %d", web.got.MaxResults)
	}
	if _, ok := obs.Result.([]statex.WebResult); !ok {
		t.Fatalf("unexpected result type %T", obs.Result)
	}
	if !obs.At.Equal(fixedNow) {
		t.Fatalf("expected observation time from clock, got %s", obs.At)
	}
}

func TestExecuteSearchPlacesSetsLocation(t *testing.T) {
	t.Parallel()

	places := &fakePlaces{result: []statex.RestaurantCandidate{{PlaceID: "p1", Name: "La Plaza"}}}
	g := newTestGateway(Adapters{Places: places}, Config{})

	obs := g.Execute(context.Background(), invoke(contractx.CapSearchPlaces, map[string]any{"query": "restaurante", "location": "Navalcarnero"}), nil)
	found, ok := obs.Result.([]statex.RestaurantCandidate)
	if !obs.OK || !ok || len(found) != 1 {
		t.Fatalf("unexpected observation %+v", obs)
	}
	if found[0].Location != "Navalcarnero" {
		t.Fatalf("expected location to be set, got %q", found[0].Location)
	}

	obs = g.Execute(context.Background(), invoke(contractx.CapSearchPlaces, map[string]any{"query": "restaurante"}), nil)
	if obs.OK || obs.ErrorKind != statex.ErrorInputIncomplete {
		t.Fatalf("expected input_incomplete without location, got %+v", obs)
	}
}

func TestExecuteCheckAvailability(t *testing.T) {
	t.Parallel()

	checker := &fakeAvailability{}
	g := newTestGateway(Adapters{Availability: checker}, Config{})
	targets := []statex.RestaurantCandidate{laPlaza, {PlaceID: "p2", Name: "El Mesón"}}

	obs := g.Execute(context.Background(), invoke(contractx.CapCheckAvailability, map[string]any{
		"date": "2026-01-23", "time": "21:00", "num_people": 4,
	}), targets)
	records, ok := obs.Result.([]statex.AvailabilityRecord)
	if !obs.OK || !ok || len(records) != 2 {
		t.Fatalf("unexpected observation %+v", obs)
	}
	if records[0].Date != "2026-01-23" || records[0].Time != "21:00" || records[0].NumPeople != 4 {
		t.Fatalf("expected records filled with the query, got %+v", records[0])
	}
	if obs.Summary != "1 of 2 available on 2026-01-23 at 21:00 for 4" {
		t.Fatalf("unexpected summary %q", obs.Summary)
	}
	if len(checker.got.Candidates) != 2 {
		t.Fatalf("expected targets passed to the adapter, got %d", len(checker.got.Candidates))
	}
}

func TestExecuteCheckAvailabilityMissingArgs(t *testing.T) {
	t.Parallel()

	g := newTestGateway(Adapters{Availability: &fakeAvailability{}}, Config{})

	obs := g.Execute(context.Background(), invoke(contractx.CapCheckAvailability, map[string]any{"date": "2026-01-23"}), []statex.RestaurantCandidate{laPlaza})
	if obs.OK || obs.ErrorKind != statex.ErrorInputIncomplete {
		t.Fatalf("expected input_incomplete, got %+v", obs)
	}

	obs = g.Execute(context.Background(), invoke(contractx.CapCheckAvailability, map[string]any{"date": "2026-01-23", "time": "21:00", "num_people": 2}), nil)
	if obs.OK || obs.ErrorKind != statex.ErrorInputIncomplete {
		t.Fatalf("expected input_incomplete without targets, got %+v", obs)
	}
}

func TestExecuteMakeBookingConfirmed(t *testing.T) {
	t.Parallel()

	booker := &fakeBooking{result: contractx.BookingResult{Status: contractx.BookingResultConfirmed, BookingID: "R-1"}}
	g := newTestGateway(Adapters{Booking: booker}, Config{})

	obs := g.Execute(context.Background(), invoke(contractx.CapMakeBooking, map[string]any{
		"place_id": "p1", "date": "2026-01-23", "time": "21:00", "num_people": 4,
	}), []statex.RestaurantCandidate{laPlaza})
	if !obs.OK {
		t.Fatalf("expected confirmed booking, got %+v", obs)
	}
	if booker.got.VenueID != "v-1" || booker.got.PlaceName != "La Plaza" {
		t.Fatalf("expected venue and name from targets, got %+v", booker.got)
	}
	if booker.got.IdempotencyKey != statex.BookingKey("p1", "2026-01-23", "21:00") {
		t.Fatalf("unexpected idempotency key %q", booker.got.IdempotencyKey)
	}
}

func TestExecuteMakeBookingRejectedKeepsResult(t *testing.T) {
	t.Parallel()

	booker := &fakeBooking{result: contractx.BookingResult{Status: contractx.BookingResultFailed, Details: "slot taken"}}
	g := newTestGateway(Adapters{Booking: booker}, Config{})

	obs := g.Execute(context.Background(), invoke(contractx.CapMakeBooking, map[string]any{
		"place_id": "p1", "date": "2026-01-23", "time": "21:00", "num_people": 4,
	}), []statex.RestaurantCandidate{laPlaza})
	if obs.OK || obs.ErrorKind != statex.ErrorBookingFailed {
		t.Fatalf("expected booking_failed, got %+v", obs)
	}
	res, ok := obs.Result.(contractx.BookingResult)
	if !ok || res.Details != "slot taken" {
		t.Fatalf("expected result kept on failure, got %#v", obs.Result)
	}
}

func TestExecuteMakeBookingIgnoresCallerCancel(t *testing.T) {
	t.Parallel()

	booker := &fakeBooking{result: contractx.BookingResult{Status: contractx.BookingResultConfirmed, BookingID: "R-2"}}
	g := newTestGateway(Adapters{Booking: booker}, Config{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	obs := g.Execute(ctx, invoke(contractx.CapMakeBooking, map[string]any{
		"place_id": "p1", "date": "2026-01-23", "time": "21:00", "num_people": 4,
	}), []statex.RestaurantCandidate{laPlaza})
	if !obs.OK {
		t.Fatalf("expected booking to complete after caller cancel, got %+v", obs)
	}
	if booker.ctxErr != nil {
		t.Fatalf("expected live context in adapter, got %v", booker.ctxErr)
	}
}

func TestExecuteTimeout(t *testing.T) {
	t.Parallel()

	booker := &fakeBooking{block: true}
	g := newTestGateway(Adapters{Booking: booker}, Config{BookingTimeout: 20 * time.Millisecond})

	obs := g.Execute(context.Background(), invoke(contractx.CapMakeBooking, map[string]any{
		"place_id": "p1", "date": "2026-01-23", "time": "21:00", "num_people": 4,
	}), []statex.RestaurantCandidate{laPlaza})
	if obs.OK || obs.ErrorKind != statex.ErrorAdapterTimeout {
		t.Fatalf("expected adapter_timeout, got %+v", obs)
	}
}

func TestExecutePhoneCall(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		args     map[string]any
		phone    *fakePhone
		wantOK   bool
		wantKind statex.ErrorKind
		calls    int
	}{
		{
			name:   "completed",
			args:   map[string]any{"phone_number": "+34910000001", "mission": "Reservar"},
			phone:  &fakePhone{result: contractx.PhoneCallResult{Status: contractx.PhoneCallCompleted, Notes: "mesa a las 21:30"}},
			wantOK: true,
			calls:  1,
		},
		{
			name:     "no number",
			args:     map[string]any{"mission": "Reservar"},
			phone:    &fakePhone{},
			wantKind: statex.ErrorDial,
		},
		{
			name:     "unreachable",
			args:     map[string]any{"phone_number": "+34910000001", "mission": "Reservar"},
			phone:    &fakePhone{err: fmt.Errorf("%w: carrier", contractx.ErrDialError)},
			wantKind: statex.ErrorDial,
			calls:    1,
		},
		{
			name:     "no booking",
			args:     map[string]any{"phone_number": "+34910000001", "mission": "Reservar"},
			phone:    &fakePhone{result: contractx.PhoneCallResult{Status: contractx.PhoneCallFailed, Notes: "completo"}},
			wantKind: statex.ErrorBookingFailed,
			calls:    1,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			g := newTestGateway(Adapters{Phone: tt.phone}, Config{})
			obs := g.Execute(context.Background(), invoke(contractx.CapPhoneCall, tt.args), nil)
			if obs.OK != tt.wantOK || obs.ErrorKind != tt.wantKind {
				t.Fatalf("expected ok=%v kind=%q, got %+v", tt.wantOK, tt.wantKind, obs)
			}
			if tt.phone.calls != tt.calls {
				t.Fatalf("expected %d calls, got %d", tt.calls, tt.phone.calls)
			}
		})
	}
}

func TestExecuteCalendar(t *testing.T) {
	t.Parallel()

	cal := &fakeCalendar{}
	g := newTestGateway(Adapters{Calendar: cal}, Config{})

	obs := g.Execute(context.Background(), invoke(contractx.CapCreateCalendarEvent, map[string]any{
		"summary":  "Reserva en La Plaza",
		"start":    "2026-01-23T21:00:00+01:00",
		"end":      "2026-01-23T23:00:00+01:00",
		"timezone": "Europe/Madrid",
	}), nil)
	ev, ok := obs.Result.(contractx.CalendarEvent)
	if !obs.OK || !ok || ev.EventID != "ev-1" {
		t.Fatalf("unexpected create observation %+v", obs)
	}
	if cal.created.Timezone != "Europe/Madrid" || cal.created.End.Sub(cal.created.Start) != 2*time.Hour {
		t.Fatalf("unexpected event input %+v", cal.created)
	}

	obs = g.Execute(context.Background(), invoke(contractx.CapUpdateCalendarEvent, map[string]any{
		"event_id": "ev-1", "start": "2026-01-23", "summary": "Cena",
	}), nil)
	if !obs.OK || cal.patch.Start == nil || cal.patch.Summary == nil || cal.patch.End != nil {
		t.Fatalf("unexpected update %+v patch=%+v", obs, cal.patch)
	}

	obs = g.Execute(context.Background(), invoke(contractx.CapDeleteCalendarEvent, map[string]any{"event_id": "ev-1"}), nil)
	if !obs.OK || cal.deleted != "ev-1" {
		t.Fatalf("unexpected delete %+v", obs)
	}

	obs = g.Execute(context.Background(), invoke(contractx.CapSearchEvents, map[string]any{"from": "not a date"}), nil)
	if obs.OK || obs.ErrorKind != statex.ErrorInputIncomplete {
		t.Fatalf("expected input_incomplete for bad bound, got %+v", obs)
	}
}

func TestExecuteUnconfiguredAndUnknown(t *testing.T) {
	t.Parallel()

	g := newTestGateway(Adapters{}, Config{})

	obs := g.Execute(context.Background(), invoke(contractx.CapSearchWeb, map[string]any{"query": "x"}), nil)
	if obs.OK || obs.ErrorKind != statex.ErrorAdapter {
		t.Fatalf("expected adapter_error for missing adapter, got %+v", obs)
	}

	obs = g.Execute(context.Background(), invoke("teleport", nil), nil)
	if obs.OK || obs.ErrorKind != statex.ErrorInputIncomplete {
		t.Fatalf("expected validation failure for unknown capability, got %+v", obs)
	}

	obs = g.Execute(context.Background(), contractx.Action{Kind: contractx.ActionRespond, Message: "hola"}, nil)
	if obs.OK {
		t.Fatalf("expected non-invoke action to fail, got %+v", obs)
	}
}

func TestExecuteAdapterErrorClassified(t *testing.T) {
	t.Parallel()

	g := newTestGateway(Adapters{Places: &fakePlaces{err: errors.New("quota exceeded")}}, Config{})

	obs := g.Execute(context.Background(), invoke(contractx.CapSearchPlaces, map[string]any{"location": "Navalcarnero"}), nil)
	if obs.OK || obs.ErrorKind != statex.ErrorAdapter || obs.Error != "quota exceeded" {
		t.Fatalf("unexpected observation %+v", obs)
	}
}

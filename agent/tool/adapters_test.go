package tool

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	contractx "github.com/tanpawarit/Chative-Reservation-Concierge/agent/contract"
	statex "github.com/tanpawarit/Chative-Reservation-Concierge/agent/state"
	calendarx "github.com/tanpawarit/Chative-Reservation-Concierge/pkg/calendar"
	databasex "github.com/tanpawarit/Chative-Reservation-Concierge/pkg/database"
	placesx "github.com/tanpawarit/Chative-Reservation-Concierge/pkg/places"
	reservehubx "github.com/tanpawarit/Chative-Reservation-Concierge/pkg/reservehub"
	voicex "github.com/tanpawarit/Chative-Reservation-Concierge/pkg/voice"
)

type stubPlaces struct {
	places []placesx.Place
}

func (s stubPlaces) Search(context.Context, placesx.SearchRequest) ([]placesx.Place, error) {
	return s.places, nil
}

type stubHub struct {
	venues   map[string]reservehubx.Venue
	findErr  error
	slots    []reservehubx.Slot
	booking  reservehubx.Reservation
	bookErr  error
	booked   reservehubx.ReservationRequest
	queried  reservehubx.AvailabilityQuery
	slotsErr error
}

func (s *stubHub) FindVenue(_ context.Context, name string) (reservehubx.Venue, error) {
	if s.findErr != nil {
		return reservehubx.Venue{}, s.findErr
	}
	v, ok := s.venues[name]
	if !ok {
		return reservehubx.Venue{}, reservehubx.ErrVenueNotFound
	}
	return v, nil
}

func (s *stubHub) Availability(_ context.Context, q reservehubx.AvailabilityQuery) ([]reservehubx.Slot, error) {
	s.queried = q
	return s.slots, s.slotsErr
}

func (s *stubHub) CreateReservation(_ context.Context, req reservehubx.ReservationRequest) (reservehubx.Reservation, error) {
	s.booked = req
	return s.booking, s.bookErr
}

type stubVoice struct {
	result voicex.CallResult
	err    error
}

func (s stubVoice) Call(context.Context, voicex.CallRequest) (voicex.CallResult, error) {
	return s.result, s.err
}

func TestPlaceSearchMarksBookableVenues(t *testing.T) {
	t.Parallel()

	adapter := PlaceSearch{
		Places: stubPlaces{places: []placesx.Place{
			{PlaceID: "p1", Name: "La Plaza", Rating: 4.6, Phone: "+34910000001"},
			{PlaceID: "p2", Name: "El Mesón", Rating: 4.2},
		}},
		Venues: &stubHub{venues: map[string]reservehubx.Venue{"La Plaza": {ID: "v-1", Name: "La Plaza"}}},
	}

	got, err := adapter.SearchPlaces(context.Background(), contractx.PlaceQuery{Query: "restaurante", Location: "Navalcarnero"})
	if err != nil {
		t.Fatalf("SearchPlaces() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 candidates, got %d", len(got))
	}
	if !got[0].HasBookingAPI || got[0].VenueID != "v-1" || got[0].Location != "Navalcarnero" {
		t.Fatalf("unexpected first candidate %+v", got[0])
	}
	if got[1].HasBookingAPI || got[1].Order != 1 {
		t.Fatalf("unexpected second candidate %+v", got[1])
	}
}

func TestPlaceSearchToleratesVenueLookupFailure(t *testing.T) {
	t.Parallel()

	adapter := PlaceSearch{
		Places: stubPlaces{places: []placesx.Place{{PlaceID: "p1", Name: "La Plaza"}}},
		Venues: &stubHub{findErr: reservehubx.ErrUnauthorized},
	}

	got, err := adapter.SearchPlaces(context.Background(), contractx.PlaceQuery{Location: "Navalcarnero"})
	if err != nil {
		t.Fatalf("SearchPlaces() error = %v", err)
	}
	if len(got) != 1 || got[0].HasBookingAPI {
		t.Fatalf("expected phone-only candidate, got %+v", got)
	}
}

func TestReserveHubAvailabilityVerdicts(t *testing.T) {
	t.Parallel()

	checkedAt := time.Date(2026, 1, 21, 18, 40, 0, 0, time.UTC)
	tests := []struct {
		name      string
		candidate statex.RestaurantCandidate
		slots     []reservehubx.Slot
		want      statex.Verdict
		wantAlts  []string
	}{
		{
			name:      "requested slot free",
			candidate: statex.RestaurantCandidate{PlaceID: "p1", Name: "La Plaza", VenueID: "v-1"},
			slots:     []reservehubx.Slot{{SlotTime: "21:00:00", Available: true}},
			want:      statex.VerdictAvailable,
		},
		{
			name:      "nearest alternatives",
			candidate: statex.RestaurantCandidate{PlaceID: "p1", Name: "La Plaza", VenueID: "v-1"},
			slots: []reservehubx.Slot{
				{SlotTime: "19:00:00", Available: true},
				{SlotTime: "20:30:00", Available: true},
				{SlotTime: "21:00:00", Available: false},
				{SlotTime: "21:30:00", Available: true},
				{SlotTime: "22:30:00", Available: true},
			},
			want:     statex.VerdictAlternativeSlotsOnly,
			wantAlts: []string{"20:30", "21:30", "22:30"},
		},
		{
			name:      "fully booked",
			candidate: statex.RestaurantCandidate{PlaceID: "p1", Name: "La Plaza", VenueID: "v-1"},
			slots:     []reservehubx.Slot{{SlotTime: "21:00:00", Available: false}},
			want:      statex.VerdictAlternativeSlotsOnly,
		},
		{
			name:      "not on reservehub",
			candidate: statex.RestaurantCandidate{PlaceID: "p2", Name: "El Mesón"},
			want:      statex.VerdictPhoneOnly,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			hub := &stubHub{slots: tt.slots}
			adapter := ReserveHubAvailability{Hub: hub, Now: func() time.Time { return checkedAt }}
			records, err := adapter.CheckAvailability(context.Background(), contractx.AvailabilityRequest{
				Candidates: []statex.RestaurantCandidate{tt.candidate},
				Date:       "2026-01-23",
				Time:       "21:00",
				NumPeople:  4,
			})
			if err != nil {
				t.Fatalf("CheckAvailability() error = %v", err)
			}
			if len(records) != 1 {
				t.Fatalf("expected one record, got %d", len(records))
			}
			rec := records[0]
			if rec.Verdict != tt.want {
				t.Fatalf("expected verdict %s, got %s", tt.want, rec.Verdict)
			}
			if fmt.Sprint(rec.AlternativeTimes) != fmt.Sprint(tt.wantAlts) {
				t.Fatalf("expected alternatives %v, got %v", tt.wantAlts, rec.AlternativeTimes)
			}
			if !rec.CheckedAt.Equal(checkedAt) || rec.NumPeople != 4 {
				t.Fatalf("unexpected record %+v", rec)
			}
		})
	}
}

func TestReserveHubBooking(t *testing.T) {
	t.Parallel()

	hub := &stubHub{booking: reservehubx.Reservation{ID: "R-9", Time: "21:30:00", PartySize: 4, Status: "confirmed"}}
	res, err := ReserveHubBooking{Hub: hub}.MakeBooking(context.Background(), contractx.BookingRequest{
		PlaceID: "p1", PlaceName: "La Plaza", VenueID: "v-1", Date: "2026-01-23", Time: "21:30", NumPeople: 4,
		IdempotencyKey: "p1|2026-01-23|21:30",
	})
	if err != nil {
		t.Fatalf("MakeBooking() error = %v", err)
	}
	if res.Status != contractx.BookingResultConfirmed || res.BookingID != "R-9" || res.ConfirmedTime != "21:30" {
		t.Fatalf("unexpected result %+v", res)
	}
	if hub.booked.VenueID != "v-1" || hub.booked.PartySize != 4 {
		t.Fatalf("unexpected reservation request %+v", hub.booked)
	}
}

func TestReserveHubBookingRejected(t *testing.T) {
	t.Parallel()

	hub := &stubHub{bookErr: fmt.Errorf("%w: status=409", reservehubx.ErrRejected)}
	res, err := ReserveHubBooking{Hub: hub}.MakeBooking(context.Background(), contractx.BookingRequest{
		PlaceID: "p1", VenueID: "v-1", Date: "2026-01-23", Time: "21:00", NumPeople: 4,
	})
	if !errors.Is(err, contractx.ErrBookingFailed) {
		t.Fatalf("expected ErrBookingFailed, got %v", err)
	}
	if res.Status != contractx.BookingResultFailed {
		t.Fatalf("expected failed status, got %+v", res)
	}

	_, err = ReserveHubBooking{Hub: &stubHub{}}.MakeBooking(context.Background(), contractx.BookingRequest{
		PlaceName: "El Mesón", Date: "2026-01-23", Time: "21:00", NumPeople: 4,
	})
	if !errors.Is(err, contractx.ErrBookingFailed) {
		t.Fatalf("expected ErrBookingFailed for unknown venue, got %v", err)
	}
}

func TestVoiceCaller(t *testing.T) {
	t.Parallel()

	res, err := VoiceCaller{Voice: stubVoice{result: voicex.CallResult{Status: voicex.CallCompleted, Notes: "Mesa confirmada", ConfirmedTime: "21:30"}}}.
		PhoneCall(context.Background(), contractx.PhoneCallRequest{PhoneNumber: "+34910000001", Mission: "Reservar"})
	if err != nil {
		t.Fatalf("PhoneCall() error = %v", err)
	}
	if res.Status != contractx.PhoneCallCompleted || res.ConfirmedTime != "21:30" {
		t.Fatalf("unexpected result %+v", res)
	}

	res, err = VoiceCaller{Voice: stubVoice{result: voicex.CallResult{Status: voicex.CallNoAnswer}}}.
		PhoneCall(context.Background(), contractx.PhoneCallRequest{PhoneNumber: "+34910000001", Mission: "Reservar"})
	if err != nil || res.Status != contractx.PhoneCallFailed || res.Notes == "" {
		t.Fatalf("expected failed call with notes, got %+v err=%v", res, err)
	}

	_, err = VoiceCaller{Voice: stubVoice{err: voicex.ErrUnreachable}}.
		PhoneCall(context.Background(), contractx.PhoneCallRequest{PhoneNumber: "+34000", Mission: "Reservar"})
	if !errors.Is(err, contractx.ErrDialError) {
		t.Fatalf("expected ErrDialError, got %v", err)
	}
}

func TestCalendarAdapter(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	db, err := databasex.Open(ctx, databasex.Config{Driver: databasex.DriverSQLite, DSN: "file::memory:"})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	store, err := calendarx.NewStore(db)
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	if err := store.CreateSchema(ctx); err != nil {
		t.Fatalf("CreateSchema() error = %v", err)
	}
	cal := Calendar{Store: store}

	start := time.Date(2026, 1, 23, 20, 0, 0, 0, time.UTC)
	ev, err := cal.CreateEvent(ctx, contractx.CalendarEventInput{
		Summary: "Reserva en La Plaza", Start: start, End: start.Add(2 * time.Hour), Timezone: "Europe/Madrid",
	})
	if err != nil {
		t.Fatalf("CreateEvent() error = %v", err)
	}
	if ev.EventID == "" || !ev.Start.Equal(start) {
		t.Fatalf("unexpected event %+v", ev)
	}

	found, err := cal.SearchEvents(ctx, contractx.EventQuery{Text: "Plaza"})
	if err != nil || len(found) != 1 {
		t.Fatalf("SearchEvents() = %v, %v", found, err)
	}

	summary := "Cena en La Plaza"
	updated, err := cal.UpdateEvent(ctx, ev.EventID, contractx.CalendarEventPatch{Summary: &summary})
	if err != nil || updated.Summary != summary {
		t.Fatalf("UpdateEvent() = %+v, %v", updated, err)
	}

	if err := cal.DeleteEvent(ctx, ev.EventID); err != nil {
		t.Fatalf("DeleteEvent() error = %v", err)
	}

	_, err = cal.CreateEvent(ctx, contractx.CalendarEventInput{Summary: "x", Start: start, End: start, Timezone: "UTC"})
	if !errors.Is(err, contractx.ErrValidation) {
		t.Fatalf("expected ErrValidation for empty interval, got %v", err)
	}
}

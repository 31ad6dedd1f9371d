package tool

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	contractx "github.com/tanpawarit/Chative-Reservation-Concierge/agent/contract"
	statex "github.com/tanpawarit/Chative-Reservation-Concierge/agent/state"
	calendarx "github.com/tanpawarit/Chative-Reservation-Concierge/pkg/calendar"
	openrouterx "github.com/tanpawarit/Chative-Reservation-Concierge/pkg/openrouter"
	placesx "github.com/tanpawarit/Chative-Reservation-Concierge/pkg/places"
	reservehubx "github.com/tanpawarit/Chative-Reservation-Concierge/pkg/reservehub"
	voicex "github.com/tanpawarit/Chative-Reservation-Concierge/pkg/voice"
)

const maxAlternativeTimes = 3

var (
	_ contractx.WebSearcher         = WebSearch{}
	_ contractx.PlaceSearcher       = PlaceSearch{}
	_ contractx.AvailabilityChecker = ReserveHubAvailability{}
	_ contractx.BookingMaker        = ReserveHubBooking{}
	_ contractx.PhoneCaller         = VoiceCaller{}
	_ contractx.Calendar            = Calendar{}
)

// WebSearch serves search_web through an online OpenRouter model.
type WebSearch struct {
	Searcher *openrouterx.WebSearcher
}

func (w WebSearch) SearchWeb(ctx context.Context, req contractx.WebSearchRequest) ([]statex.WebResult, error) {
	results, err := w.Searcher.Search(ctx, req.Query, req.MaxResults)
	if err != nil {
		return nil, err
	}
	out := make([]statex.WebResult, 0, len(results))
	for _, r := range results {
		out = append(out, statex.WebResult{Title: r.Title, Snippet: r.Snippet, URL: r.URL})
	}
	return out, nil
}

// venueFinder is the ReserveHub lookup used to flag online-bookable places.
type venueFinder interface {
	FindVenue(ctx context.Context, name string) (reservehubx.Venue, error)
}

type placeSearcher interface {
	Search(ctx context.Context, req placesx.SearchRequest) ([]placesx.Place, error)
}

// PlaceSearch serves search_places from Google Places and marks the places
// ReserveHub can book online.
type PlaceSearch struct {
	Places placeSearcher
	Venues venueFinder
}

func (p PlaceSearch) SearchPlaces(ctx context.Context, q contractx.PlaceQuery) ([]statex.RestaurantCandidate, error) {
	found, err := p.Places.Search(ctx, placesx.SearchRequest{
		Query:            q.Query,
		Location:         q.Location,
		RadiusMeters:     q.RadiusMeters,
		PriceLevel:       q.PriceLevel,
		Extras:           q.Extras,
		MaxTravelMinutes: q.MaxTravelMinutes,
		TravelMode:       q.TravelMode,
	})
	if err != nil {
		return nil, err
	}

	out := make([]statex.RestaurantCandidate, 0, len(found))
	for i, place := range found {
		c := statex.RestaurantCandidate{
			PlaceID:       place.PlaceID,
			Name:          place.Name,
			Address:       place.Address,
			Phone:         place.Phone,
			Website:       place.Website,
			Rating:        place.Rating,
			RatingsTotal:  place.RatingsTotal,
			PriceLevel:    place.PriceLevel,
			Lat:           place.Lat,
			Lng:           place.Lng,
			TravelMinutes: place.TravelMinutes,
			Location:      q.Location,
			Order:         i,
		}
		if p.Venues != nil {
			venue, err := p.Venues.FindVenue(ctx, place.Name)
			switch {
			case err == nil:
				c.HasBookingAPI = true
				c.VenueID = venue.ID
			case !errors.Is(err, reservehubx.ErrVenueNotFound):
				log.Warn().Err(err).Str("place", place.Name).Msg("venue lookup failed, treating place as phone-only")
			}
		}
		out = append(out, c)
	}
	return out, nil
}

type availabilityClient interface {
	venueFinder
	Availability(ctx context.Context, q reservehubx.AvailabilityQuery) ([]reservehubx.Slot, error)
}

// ReserveHubAvailability derives one verdict per candidate: no venue means
// PhoneOnly, a free requested slot means Available, anything else is
// AlternativeSlotsOnly with the nearest free times.
type ReserveHubAvailability struct {
	Hub availabilityClient
	Now func() time.Time
}

func (r ReserveHubAvailability) CheckAvailability(ctx context.Context, req contractx.AvailabilityRequest) ([]statex.AvailabilityRecord, error) {
	now := time.Now
	if r.Now != nil {
		now = r.Now
	}

	out := make([]statex.AvailabilityRecord, 0, len(req.Candidates))
	for _, c := range req.Candidates {
		rec := statex.AvailabilityRecord{
			PlaceID:   c.PlaceID,
			Date:      req.Date,
			Time:      req.Time,
			NumPeople: req.NumPeople,
			CheckedAt: now().UTC(),
		}

		venueID := c.VenueID
		if venueID == "" {
			venue, err := r.Hub.FindVenue(ctx, c.Name)
			if err != nil && !errors.Is(err, reservehubx.ErrVenueNotFound) {
				return nil, err
			}
			venueID = venue.ID
		}
		if venueID == "" {
			rec.Verdict = statex.VerdictPhoneOnly
			out = append(out, rec)
			continue
		}

		slots, err := r.Hub.Availability(ctx, reservehubx.AvailabilityQuery{VenueID: venueID, Date: req.Date, PartySize: req.NumPeople})
		switch {
		case errors.Is(err, reservehubx.ErrVenueNotFound):
			rec.Verdict = statex.VerdictPhoneOnly
		case err != nil:
			return nil, err
		default:
			rec.Verdict, rec.AlternativeTimes = verdictFor(slots, req.Time)
		}
		out = append(out, rec)
	}
	return out, nil
}

func verdictFor(slots []reservehubx.Slot, requested string) (statex.Verdict, []string) {
	target, ok := clockMinutes(requested)
	var free []string
	for _, s := range slots {
		if !s.Available {
			continue
		}
		if s.Clock() == requested {
			return statex.VerdictAvailable, nil
		}
		free = append(free, s.Clock())
	}
	if ok {
		sort.SliceStable(free, func(i, j int) bool {
			return distance(free[i], target) < distance(free[j], target)
		})
	}
	if len(free) > maxAlternativeTimes {
		free = free[:maxAlternativeTimes]
	}
	return statex.VerdictAlternativeSlotsOnly, free
}

func distance(clock string, target int) int {
	m, ok := clockMinutes(clock)
	if !ok {
		return 1 << 20
	}
	if m > target {
		return m - target
	}
	return target - m
}

func clockMinutes(clock string) (int, bool) {
	h, m, found := strings.Cut(clock, ":")
	if !found {
		return 0, false
	}
	hh, err1 := strconv.Atoi(h)
	mm, err2 := strconv.Atoi(m)
	if err1 != nil || err2 != nil {
		return 0, false
	}
	return hh*60 + mm, true
}

type reservationClient interface {
	venueFinder
	CreateReservation(ctx context.Context, req reservehubx.ReservationRequest) (reservehubx.Reservation, error)
}

// ReserveHubBooking serves make_booking. Rejections surface as
// ErrBookingFailed so they count against the retry budget.
type ReserveHubBooking struct {
	Hub reservationClient
}

func (r ReserveHubBooking) MakeBooking(ctx context.Context, req contractx.BookingRequest) (contractx.BookingResult, error) {
	venueID := req.VenueID
	if venueID == "" {
		venue, err := r.Hub.FindVenue(ctx, req.PlaceName)
		if err != nil {
			if errors.Is(err, reservehubx.ErrVenueNotFound) {
				return contractx.BookingResult{Status: contractx.BookingResultFailed}, fmt.Errorf("%w: %s has no online booking", contractx.ErrBookingFailed, req.PlaceName)
			}
			return contractx.BookingResult{}, err
		}
		venueID = venue.ID
	}

	res, err := r.Hub.CreateReservation(ctx, reservehubx.ReservationRequest{
		VenueID:   venueID,
		Date:      req.Date,
		Time:      req.Time,
		PartySize: req.NumPeople,
		Notes:     "ref " + req.IdempotencyKey,
	})
	if err != nil {
		if errors.Is(err, reservehubx.ErrRejected) || errors.Is(err, reservehubx.ErrVenueNotFound) {
			return contractx.BookingResult{Status: contractx.BookingResultFailed, Details: err.Error()}, fmt.Errorf("%w: %v", contractx.ErrBookingFailed, err)
		}
		return contractx.BookingResult{}, err
	}

	confirmed := res.Time
	if len(confirmed) >= 5 {
		confirmed = confirmed[:5]
	}
	return contractx.BookingResult{
		Status:        contractx.BookingResultConfirmed,
		BookingID:     res.ID,
		Details:       fmt.Sprintf("Reserva %s para %d personas", res.ID, res.PartySize),
		ConfirmedTime: confirmed,
	}, nil
}

type caller interface {
	Call(ctx context.Context, req voicex.CallRequest) (voicex.CallResult, error)
}

// VoiceCaller serves phone_call through the voice agent service.
type VoiceCaller struct {
	Voice caller
}

func (v VoiceCaller) PhoneCall(ctx context.Context, req contractx.PhoneCallRequest) (contractx.PhoneCallResult, error) {
	res, err := v.Voice.Call(ctx, voicex.CallRequest{
		To:          req.PhoneNumber,
		Mission:     req.Mission,
		Context:     req.Context,
		CallerName:  req.CallerName,
		CallerPhone: req.CallerPhone,
	})
	if err != nil {
		if errors.Is(err, voicex.ErrUnreachable) {
			return contractx.PhoneCallResult{Status: contractx.PhoneCallFailed}, fmt.Errorf("%w: %v", contractx.ErrDialError, err)
		}
		return contractx.PhoneCallResult{}, err
	}

	out := contractx.PhoneCallResult{
		Status:            contractx.PhoneCallFailed,
		Notes:             strings.TrimSpace(res.Notes),
		ScheduleDeviation: strings.TrimSpace(res.ScheduleDeviation),
		ConfirmedTime:     strings.TrimSpace(res.ConfirmedTime),
	}
	if res.Status == voicex.CallCompleted {
		out.Status = contractx.PhoneCallCompleted
	} else if out.Notes == "" {
		out.Notes = "llamada terminada: " + string(res.Status)
	}
	return out, nil
}

type eventStore interface {
	Create(ctx context.Context, ev calendarx.Event) (calendarx.Event, error)
	Search(ctx context.Context, q calendarx.Query) ([]calendarx.Event, error)
	Update(ctx context.Context, id string, patch calendarx.Patch) (calendarx.Event, error)
	Delete(ctx context.Context, id string) error
}

// Calendar serves the calendar capabilities from the SQL event store.
type Calendar struct {
	Store eventStore
}

func (c Calendar) CreateEvent(ctx context.Context, in contractx.CalendarEventInput) (contractx.CalendarEvent, error) {
	ev, err := c.Store.Create(ctx, calendarx.Event{
		Summary:     in.Summary,
		StartsAt:    in.Start,
		EndsAt:      in.End,
		Timezone:    in.Timezone,
		Location:    in.Location,
		Description: in.Description,
	})
	if err != nil {
		return contractx.CalendarEvent{}, calendarError(err)
	}
	return toCalendarEvent(ev), nil
}

func (c Calendar) SearchEvents(ctx context.Context, q contractx.EventQuery) ([]contractx.CalendarEvent, error) {
	events, err := c.Store.Search(ctx, calendarx.Query{Text: q.Text, From: q.From, To: q.To})
	if err != nil {
		return nil, calendarError(err)
	}
	out := make([]contractx.CalendarEvent, 0, len(events))
	for _, ev := range events {
		out = append(out, toCalendarEvent(ev))
	}
	return out, nil
}

func (c Calendar) UpdateEvent(ctx context.Context, eventID string, patch contractx.CalendarEventPatch) (contractx.CalendarEvent, error) {
	ev, err := c.Store.Update(ctx, eventID, calendarx.Patch{
		Summary:     patch.Summary,
		StartsAt:    patch.Start,
		EndsAt:      patch.End,
		Location:    patch.Location,
		Description: patch.Description,
	})
	if err != nil {
		return contractx.CalendarEvent{}, calendarError(err)
	}
	return toCalendarEvent(ev), nil
}

func (c Calendar) DeleteEvent(ctx context.Context, eventID string) error {
	return calendarError(c.Store.Delete(ctx, eventID))
}

func toCalendarEvent(ev calendarx.Event) contractx.CalendarEvent {
	return contractx.CalendarEvent{
		EventID:     ev.ID,
		Summary:     ev.Summary,
		Start:       ev.StartsAt,
		End:         ev.EndsAt,
		Timezone:    ev.Timezone,
		Location:    ev.Location,
		Description: ev.Description,
	}
}

func calendarError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, calendarx.ErrInvalidEvent) {
		return fmt.Errorf("%w: %v", contractx.ErrValidation, err)
	}
	return err
}

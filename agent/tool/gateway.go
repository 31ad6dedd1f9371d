package tool

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	contractx "github.com/tanpawarit/Chative-Reservation-Concierge/agent/contract"
	statex "github.com/tanpawarit/Chative-Reservation-Concierge/agent/state"
)

// Adapters are the external capabilities behind the gateway. Nil adapters
// report ErrNotConfigured observations.
type Adapters struct {
	Web          contractx.WebSearcher
	Places       contractx.PlaceSearcher
	Availability contractx.AvailabilityChecker
	Booking      contractx.BookingMaker
	Phone        contractx.PhoneCaller
	Calendar     contractx.Calendar
}

type Config struct {
	DefaultTimeout time.Duration `envconfig:"DEFAULT_TIMEOUT" split_words:"true" default:"20s"`
	BookingTimeout time.Duration `envconfig:"BOOKING_TIMEOUT" split_words:"true" default:"30s"`
	PhoneTimeout   time.Duration `envconfig:"PHONE_TIMEOUT" split_words:"true" default:"6m"`
	WebResults     int           `envconfig:"WEB_RESULTS" split_words:"true" default:"5"`
}

type Executor func(ctx context.Context, a contractx.Action, targets []statex.RestaurantCandidate) (any, string, error)

// Gateway executes invoke actions against the adapters and reports every
// outcome as an observation.
type Gateway struct {
	cfg       Config
	executors map[contractx.Capability]Executor
	now       func() time.Time
}

var _ contractx.ToolGateway = (*Gateway)(nil)

type GatewayOption func(*Gateway)

func WithGatewayClock(now func() time.Time) GatewayOption {
	return func(g *Gateway) {
		if now != nil {
			g.now = now
		}
	}
}

func NewGateway(adapters Adapters, cfg Config, opts ...GatewayOption) *Gateway {
	if cfg.DefaultTimeout <= 0 {
		cfg.DefaultTimeout = 20 * time.Second
	}
	if cfg.BookingTimeout <= 0 {
		cfg.BookingTimeout = 30 * time.Second
	}
	if cfg.PhoneTimeout <= 0 {
		cfg.PhoneTimeout = 6 * time.Minute
	}
	if cfg.WebResults <= 0 {
		cfg.WebResults = 5
	}

	g := &Gateway{cfg: cfg, now: time.Now}
	g.executors = map[contractx.Capability]Executor{
		contractx.CapSearchWeb:           g.searchWeb(adapters.Web),
		contractx.CapSearchPlaces:        searchPlaces(adapters.Places),
		contractx.CapCheckAvailability:   checkAvailability(adapters.Availability),
		contractx.CapMakeBooking:         makeBooking(adapters.Booking),
		contractx.CapPhoneCall:           phoneCall(adapters.Phone),
		contractx.CapCreateCalendarEvent: createEvent(adapters.Calendar),
		contractx.CapSearchEvents:        searchEvents(adapters.Calendar),
		contractx.CapUpdateCalendarEvent: updateEvent(adapters.Calendar),
		contractx.CapDeleteCalendarEvent: deleteEvent(adapters.Calendar),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(g)
		}
	}
	return g
}

func (g *Gateway) Execute(ctx context.Context, a contractx.Action, targets []statex.RestaurantCandidate) statex.Observation {
	obs := statex.Observation{
		Capability: string(a.Capability),
		Args:       a.Clone().Args,
	}

	exec, ok := g.executors[a.Capability]
	if !a.IsInvoke() || !ok {
		return g.fail(obs, fmt.Errorf("%w: unknown capability %q", contractx.ErrValidation, a.Capability))
	}

	callCtx, cancel := g.callContext(ctx, a.Capability)
	defer cancel()

	result, summary, err := exec(callCtx, a, targets)
	if err != nil {
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) || isTimeout(err) {
			err = fmt.Errorf("%w: %s: %v", contractx.ErrAdapterTimeout, a.Capability, err)
		}
		obs.Result = result
		return g.fail(obs, err)
	}

	obs.OK = true
	obs.Result = result
	obs.Summary = summary
	obs.At = g.now()
	return obs
}

// callContext bounds the call. Booking and phone calls are detached from
// the caller's cancellation so a started side effect always reports back.
func (g *Gateway) callContext(ctx context.Context, c contractx.Capability) (context.Context, context.CancelFunc) {
	switch c {
	case contractx.CapPhoneCall:
		return context.WithTimeout(context.WithoutCancel(ctx), g.cfg.PhoneTimeout)
	case contractx.CapMakeBooking:
		return context.WithTimeout(context.WithoutCancel(ctx), g.cfg.BookingTimeout)
	default:
		return context.WithTimeout(ctx, g.cfg.DefaultTimeout)
	}
}

func (g *Gateway) fail(obs statex.Observation, err error) statex.Observation {
	obs.OK = false
	obs.ErrorKind = contractx.ClassifyError(err)
	obs.Error = err.Error()
	obs.At = g.now()
	return obs
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

func (g *Gateway) searchWeb(web contractx.WebSearcher) Executor {
	return func(ctx context.Context, a contractx.Action, _ []statex.RestaurantCandidate) (any, string, error) {
		if web == nil {
			return nil, "", fmt.Errorf("%w: %s", contractx.ErrNotConfigured, contractx.CapSearchWeb)
		}
		query := a.ArgString(contractx.ArgQuery)
		if query == "" {
			return nil, "", fmt.Errorf("%w: query", contractx.ErrInputIncomplete)
		}
		results, err := web.SearchWeb(ctx, contractx.WebSearchRequest{Query: query, MaxResults: g.cfg.WebResults})
		if err != nil {
			return nil, "", err
		}
		return results, fmt.Sprintf("%d web results for %q", len(results), query), nil
	}
}

func searchPlaces(places contractx.PlaceSearcher) Executor {
	return func(ctx context.Context, a contractx.Action, _ []statex.RestaurantCandidate) (any, string, error) {
		if places == nil {
			return nil, "", fmt.Errorf("%w: %s", contractx.ErrNotConfigured, contractx.CapSearchPlaces)
		}
		q := contractx.PlaceQuery{
			Query:            a.ArgString(contractx.ArgQuery),
			Location:         a.ArgString(contractx.ArgLocation),
			RadiusMeters:     a.ArgInt(contractx.ArgRadiusMeters),
			PriceLevel:       a.ArgInt(contractx.ArgPriceLevel),
			Extras:           contractx.ArgStrings(a.Args, contractx.ArgExtras),
			MaxTravelMinutes: a.ArgInt(contractx.ArgMaxTravelMinutes),
			TravelMode:       a.ArgString(contractx.ArgTravelMode),
		}
		if q.Location == "" {
			return nil, "", fmt.Errorf("%w: location", contractx.ErrInputIncomplete)
		}
		found, err := places.SearchPlaces(ctx, q)
		if err != nil {
			return nil, "", err
		}
		for i := range found {
			found[i].Location = q.Location
		}
		return found, fmt.Sprintf("%d places found in %s", len(found), q.Location), nil
	}
}

func checkAvailability(checker contractx.AvailabilityChecker) Executor {
	return func(ctx context.Context, a contractx.Action, targets []statex.RestaurantCandidate) (any, string, error) {
		if checker == nil {
			return nil, "", fmt.Errorf("%w: %s", contractx.ErrNotConfigured, contractx.CapCheckAvailability)
		}
		req := contractx.AvailabilityRequest{
			Candidates: targets,
			Date:       a.ArgString(contractx.ArgDate),
			Time:       a.ArgString(contractx.ArgTime),
			NumPeople:  a.ArgInt(contractx.ArgNumPeople),
		}
		if missing := missingArgs(req.Date, req.Time, req.NumPeople); missing != "" {
			return nil, "", fmt.Errorf("%w: %s", contractx.ErrInputIncomplete, missing)
		}
		if len(req.Candidates) == 0 {
			return nil, "", fmt.Errorf("%w: no known candidates to check", contractx.ErrInputIncomplete)
		}

		records, err := checker.CheckAvailability(ctx, req)
		if err != nil {
			return nil, "", err
		}
		available := 0
		for i := range records {
			if records[i].Date == "" {
				records[i].Date, records[i].Time, records[i].NumPeople = req.Date, req.Time, req.NumPeople
			}
			if records[i].Verdict == statex.VerdictAvailable {
				available++
			}
		}
		return records, fmt.Sprintf("%d of %d available on %s at %s for %d", available, len(records), req.Date, req.Time, req.NumPeople), nil
	}
}

func makeBooking(booker contractx.BookingMaker) Executor {
	return func(ctx context.Context, a contractx.Action, targets []statex.RestaurantCandidate) (any, string, error) {
		if booker == nil {
			return nil, "", fmt.Errorf("%w: %s", contractx.ErrNotConfigured, contractx.CapMakeBooking)
		}
		req := contractx.BookingRequest{
			PlaceID:   a.ArgString(contractx.ArgPlaceID),
			PlaceName: a.ArgString(contractx.ArgPlaceName),
			Date:      a.ArgString(contractx.ArgDate),
			Time:      a.ArgString(contractx.ArgTime),
			NumPeople: a.ArgInt(contractx.ArgNumPeople),
		}
		if missing := missingArgs(req.Date, req.Time, req.NumPeople); missing != "" || req.PlaceID == "" && req.PlaceName == "" {
			return nil, "", fmt.Errorf("%w: booking needs place, date, time and party size", contractx.ErrInputIncomplete)
		}
		if c, ok := findTarget(targets, req.PlaceID); ok {
			req.VenueID = c.VenueID
			if req.PlaceName == "" {
				req.PlaceName = c.Name
			}
		}
		req.IdempotencyKey = statex.BookingKey(req.PlaceID, req.Date, req.Time)

		res, err := booker.MakeBooking(ctx, req)
		if err != nil {
			return res, "", err
		}
		if res.Status != contractx.BookingResultConfirmed {
			return res, "", fmt.Errorf("%w: %s", contractx.ErrBookingFailed, firstNonEmpty(res.Details, "not confirmed"))
		}
		return res, fmt.Sprintf("booking %s confirmed at %s", res.BookingID, req.PlaceName), nil
	}
}

func phoneCall(caller contractx.PhoneCaller) Executor {
	return func(ctx context.Context, a contractx.Action, _ []statex.RestaurantCandidate) (any, string, error) {
		if caller == nil {
			return nil, "", fmt.Errorf("%w: %s", contractx.ErrNotConfigured, contractx.CapPhoneCall)
		}
		req := contractx.PhoneCallRequest{
			PhoneNumber: a.ArgString(contractx.ArgPhoneNumber),
			Mission:     a.ArgString(contractx.ArgMission),
			Context:     a.ArgString(contractx.ArgContext),
			CallerName:  a.ArgString(contractx.ArgCallerName),
			CallerPhone: a.ArgString(contractx.ArgCallerPhone),
		}
		if req.PhoneNumber == "" {
			return nil, "", fmt.Errorf("%w: no phone number", contractx.ErrDialError)
		}
		if req.Mission == "" {
			return nil, "", fmt.Errorf("%w: mission", contractx.ErrInputIncomplete)
		}

		res, err := caller.PhoneCall(ctx, req)
		if err != nil {
			return res, "", err
		}
		if res.Status != contractx.PhoneCallCompleted {
			return res, "", fmt.Errorf("%w: call ended without a booking: %s", contractx.ErrBookingFailed, firstNonEmpty(res.Notes, string(res.Status)))
		}
		return res, "call completed: " + firstNonEmpty(res.Notes, "booked"), nil
	}
}

func createEvent(cal contractx.Calendar) Executor {
	return func(ctx context.Context, a contractx.Action, _ []statex.RestaurantCandidate) (any, string, error) {
		if cal == nil {
			return nil, "", fmt.Errorf("%w: calendar", contractx.ErrNotConfigured)
		}
		start, err := parseInstant(a.ArgString(contractx.ArgStart))
		if err != nil {
			return nil, "", fmt.Errorf("%w: start: %v", contractx.ErrInputIncomplete, err)
		}
		end, err := parseInstant(a.ArgString(contractx.ArgEnd))
		if err != nil {
			return nil, "", fmt.Errorf("%w: end: %v", contractx.ErrInputIncomplete, err)
		}
		in := contractx.CalendarEventInput{
			Summary:     a.ArgString(contractx.ArgSummary),
			Start:       start,
			End:         end,
			Timezone:    firstNonEmpty(a.ArgString(contractx.ArgTimezone), "UTC"),
			Location:    a.ArgString(contractx.ArgLocation),
			Description: a.ArgString(contractx.ArgDescription),
		}
		if in.Summary == "" {
			return nil, "", fmt.Errorf("%w: summary", contractx.ErrInputIncomplete)
		}
		ev, err := cal.CreateEvent(ctx, in)
		if err != nil {
			return nil, "", err
		}
		return ev, "calendar event " + ev.EventID + " created", nil
	}
}

func searchEvents(cal contractx.Calendar) Executor {
	return func(ctx context.Context, a contractx.Action, _ []statex.RestaurantCandidate) (any, string, error) {
		if cal == nil {
			return nil, "", fmt.Errorf("%w: calendar", contractx.ErrNotConfigured)
		}
		q := contractx.EventQuery{Text: a.ArgString(contractx.ArgQuery)}
		if raw := a.ArgString(contractx.ArgFrom); raw != "" {
			from, err := parseInstant(raw)
			if err != nil {
				return nil, "", fmt.Errorf("%w: from: %v", contractx.ErrInputIncomplete, err)
			}
			q.From = from
		}
		if raw := a.ArgString(contractx.ArgTo); raw != "" {
			to, err := parseInstant(raw)
			if err != nil {
				return nil, "", fmt.Errorf("%w: to: %v", contractx.ErrInputIncomplete, err)
			}
			q.To = to
		}
		events, err := cal.SearchEvents(ctx, q)
		if err != nil {
			return nil, "", err
		}
		return events, fmt.Sprintf("%d calendar events found", len(events)), nil
	}
}

func updateEvent(cal contractx.Calendar) Executor {
	return func(ctx context.Context, a contractx.Action, _ []statex.RestaurantCandidate) (any, string, error) {
		if cal == nil {
			return nil, "", fmt.Errorf("%w: calendar", contractx.ErrNotConfigured)
		}
		id := a.ArgString(contractx.ArgEventID)
		if id == "" {
			return nil, "", fmt.Errorf("%w: event_id", contractx.ErrInputIncomplete)
		}
		var patch contractx.CalendarEventPatch
		if v := a.ArgString(contractx.ArgSummary); v != "" {
			patch.Summary = &v
		}
		if v := a.ArgString(contractx.ArgLocation); v != "" {
			patch.Location = &v
		}
		if v := a.ArgString(contractx.ArgDescription); v != "" {
			patch.Description = &v
		}
		for key, dst := range map[string]**time.Time{contractx.ArgStart: &patch.Start, contractx.ArgEnd: &patch.End} {
			raw := a.ArgString(key)
			if raw == "" {
				continue
			}
			t, err := parseInstant(raw)
			if err != nil {
				return nil, "", fmt.Errorf("%w: %s: %v", contractx.ErrInputIncomplete, key, err)
			}
			*dst = &t
		}
		ev, err := cal.UpdateEvent(ctx, id, patch)
		if err != nil {
			return nil, "", err
		}
		return ev, "calendar event " + ev.EventID + " updated", nil
	}
}

func deleteEvent(cal contractx.Calendar) Executor {
	return func(ctx context.Context, a contractx.Action, _ []statex.RestaurantCandidate) (any, string, error) {
		if cal == nil {
			return nil, "", fmt.Errorf("%w: calendar", contractx.ErrNotConfigured)
		}
		id := a.ArgString(contractx.ArgEventID)
		if id == "" {
			return nil, "", fmt.Errorf("%w: event_id", contractx.ErrInputIncomplete)
		}
		if err := cal.DeleteEvent(ctx, id); err != nil {
			return nil, "", err
		}
		return nil, "calendar event " + id + " deleted", nil
	}
}

func missingArgs(date, clock string, people int) string {
	var missing []string
	if date == "" {
		missing = append(missing, contractx.ArgDate)
	}
	if clock == "" {
		missing = append(missing, contractx.ArgTime)
	}
	if people <= 0 {
		missing = append(missing, contractx.ArgNumPeople)
	}
	return strings.Join(missing, ", ")
}

func findTarget(targets []statex.RestaurantCandidate, placeID string) (statex.RestaurantCandidate, bool) {
	for _, c := range targets {
		if c.PlaceID == placeID {
			return c, true
		}
	}
	return statex.RestaurantCandidate{}, false
}

func parseInstant(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", raw)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

package orchestratornode

import (
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	contractx "github.com/tanpawarit/Chative-Reservation-Concierge/agent/contract"
	datesx "github.com/tanpawarit/Chative-Reservation-Concierge/agent/dates"
	guardx "github.com/tanpawarit/Chative-Reservation-Concierge/agent/guard"
	policyx "github.com/tanpawarit/Chative-Reservation-Concierge/agent/policy"
	statex "github.com/tanpawarit/Chative-Reservation-Concierge/agent/state"
)

// MergeObservation folds the outcome of the executed action into the
// session. It is the only place knowledge changes after an action.
func MergeObservation(in *StepState) (*StepState, error) {
	if in == nil || in.Session == nil {
		return nil, fmt.Errorf("%w: graph state is nil", contractx.ErrValidation)
	}

	sess := in.Session
	k := &sess.Knowledge
	a := in.Action

	if !a.IsInvoke() {
		idx := sess.AppendTurn(statex.SpeakerAgent, in.UserMessage, in.Now)
		if len(a.Presents) > 0 {
			k.Presentation = &statex.Presentation{
				PlaceIDs: append([]string(nil), a.Presents...),
				AtTurn:   idx,
				QueryKey: k.Intent.QueryKey(),
			}
		}
		if a.OffersCalendar != "" {
			k.MarkCalendarOffered(a.OffersCalendar)
		}
		return in, nil
	}

	if in.Observation == nil {
		return nil, fmt.Errorf("%w: invoke produced no observation", contractx.ErrValidation)
	}
	obs := in.Observation.Clone()
	k.AppendObservation(obs)
	sess.Guard.Record(string(a.Capability), a.Fingerprint(), obs.Failed())
	sess.LastObservation = &obs

	switch a.Capability {
	case contractx.CapSearchWeb:
		if results, ok := obs.Result.([]statex.WebResult); ok && obs.OK {
			k.AddWebResults(results)
		}
	case contractx.CapSearchPlaces:
		mergePlaces(k, a, obs)
	case contractx.CapCheckAvailability:
		mergeAvailability(k, a, obs, in.Now)
	case contractx.CapMakeBooking:
		if b, ok := mergeBooking(k, a, obs, in.Now); ok {
			in.Events = append(in.Events, confirmedEvent(sess.SessionID, b, in.Now))
		}
	case contractx.CapPhoneCall:
		if b, ok := mergePhoneCall(k, a, obs, in.Now); ok {
			in.Events = append(in.Events, confirmedEvent(sess.SessionID, b, in.Now))
		}
	case contractx.CapCreateCalendarEvent:
		if ev, ok := mergeCalendarCreated(k, a, obs); ok {
			in.Events = append(in.Events, contractx.Event{
				Type:      contractx.EventCalendarCreated,
				SessionID: sess.SessionID,
				Payload:   ev,
				At:        in.Now,
			})
		}
	case contractx.CapSearchEvents:
		if events, ok := obs.Result.([]contractx.CalendarEvent); ok && obs.OK {
			for _, ev := range events {
				k.UpsertCalendarEvent(eventRef(ev))
			}
		}
	case contractx.CapUpdateCalendarEvent:
		if ev, ok := obs.Result.(contractx.CalendarEvent); ok && obs.OK {
			k.UpsertCalendarEvent(eventRef(ev))
		}
	case contractx.CapDeleteCalendarEvent:
		if obs.OK {
			k.RemoveCalendarEvent(a.ArgString(contractx.ArgEventID))
		}
	}
	return in, nil
}

func mergePlaces(k *statex.KnowledgeStore, a contractx.Action, obs statex.Observation) {
	found, _ := obs.Result.([]statex.RestaurantCandidate)
	if !obs.OK || len(found) == 0 {
		return
	}
	location := a.ArgString(contractx.ArgLocation)
	candidates := make([]statex.RestaurantCandidate, len(found))
	for i, c := range found {
		c.Location = location
		candidates[i] = c
	}
	k.AddCandidates(location, candidates)
	if k.Intent.Location == "" {
		k.Intent.Location = location
	}
}

// mergeAvailability records one verdict per candidate. A real (non-probe)
// check also pins the intent to the checked slot, which the consistency
// guard compares bookings against.
func mergeAvailability(k *statex.KnowledgeStore, a contractx.Action, obs statex.Observation, now time.Time) {
	records, _ := obs.Result.([]statex.AvailabilityRecord)
	if !obs.OK {
		return
	}
	placeholder, _ := a.Args[policyx.ArgPlaceholder].(bool)
	for _, rec := range records {
		if !rec.Verdict.Valid() {
			continue
		}
		rec.Placeholder = placeholder
		if rec.CheckedAt.IsZero() {
			rec.CheckedAt = now.UTC()
		}
		k.RecordVerdict(rec)
	}
	if placeholder {
		return
	}
	k.Intent.Date = a.ArgString(contractx.ArgDate)
	k.Intent.Time = a.ArgString(contractx.ArgTime)
	k.Intent.NumPeople = a.ArgInt(contractx.ArgNumPeople)
}

func attemptFor(k *statex.KnowledgeStore, a contractx.Action, now time.Time) statex.BookingAttempt {
	placeID, date, clock := a.ArgString(contractx.ArgPlaceID), a.ArgString(contractx.ArgDate), a.ArgString(contractx.ArgTime)
	b, ok := k.Booking(statex.BookingKey(placeID, date, clock))
	if !ok {
		b = statex.BookingAttempt{
			PlaceID:   placeID,
			PlaceName: a.ArgString(contractx.ArgPlaceName),
			Date:      date,
			Time:      clock,
			NumPeople: a.ArgInt(contractx.ArgNumPeople),
		}
	}
	b.UpdatedAt = now.UTC()
	return b
}

// mergeBooking counts one API attempt. It reports whether the booking was
// confirmed by this attempt.
func mergeBooking(k *statex.KnowledgeStore, a contractx.Action, obs statex.Observation, now time.Time) (statex.BookingAttempt, bool) {
	b := attemptFor(k, a, now)
	b.Method = statex.MethodAPI
	b.AttemptCount++

	res, _ := obs.Result.(contractx.BookingResult)
	if obs.OK && res.Status == contractx.BookingResultConfirmed {
		b.Status = statex.BookingConfirmed
		b.BookingID = res.BookingID
		b.Details = res.Details
		if clock, err := datesx.NormalizeClock(res.ConfirmedTime); err == nil && clock != b.Time {
			b.ConfirmedTime = clock
		}
		b.Invalidated = false
		k.PutBooking(b)
		log.Info().Str("booking_key", b.Key()).Str("booking_id", b.BookingID).Msg("booking confirmed by API")
		return b, true
	}

	b.Status = statex.BookingPending
	b.Details = firstNonEmpty(res.Details, obs.Error)
	if guardx.BookingBudget.Exhausted(b.AttemptCount) {
		if c, ok := k.Candidate(b.PlaceID); !ok || !c.HasPhone() {
			b.Status = statex.BookingFailed
		}
	}
	if sel := k.Intent.SelectedPlaceID; sel != "" && sel != b.PlaceID && b.Status == statex.BookingPending {
		b.Invalidated = true
	}
	k.PutBooking(b)
	return b, false
}

// mergePhoneCall records a finished call. A completed call confirms the
// booking, possibly at the time the venue offered instead.
func mergePhoneCall(k *statex.KnowledgeStore, a contractx.Action, obs statex.Observation, now time.Time) (statex.BookingAttempt, bool) {
	b := attemptFor(k, a, now)
	b.Method = statex.MethodPhone
	b.PhoneAttempts++

	res, _ := obs.Result.(contractx.PhoneCallResult)
	switch {
	case obs.OK && res.Status == contractx.PhoneCallCompleted:
		b.Status = statex.BookingConfirmed
		b.Details = strings.TrimSpace(strings.Join([]string{res.Notes, res.ScheduleDeviation}, " "))
		if clock, err := datesx.NormalizeClock(res.ConfirmedTime); err == nil && clock != b.Time {
			b.ConfirmedTime = clock
		}
		b.Invalidated = false
		k.PutBooking(b)
		log.Info().Str("booking_key", b.Key()).Str("confirmed_time", b.SlotTime()).Msg("booking confirmed by phone")
		return b, true
	case obs.ErrorKind == statex.ErrorDial:
		b.Status = statex.BookingFailed
		b.Details = obs.Error
	default:
		b.Status = statex.BookingPending
		b.Details = firstNonEmpty(res.Notes, obs.Error)
	}
	k.PutBooking(b)
	return b, false
}

func mergeCalendarCreated(k *statex.KnowledgeStore, a contractx.Action, obs statex.Observation) (contractx.CalendarEvent, bool) {
	ev, ok := obs.Result.(contractx.CalendarEvent)
	if !obs.OK || !ok || ev.EventID == "" {
		return contractx.CalendarEvent{}, false
	}
	k.UpsertCalendarEvent(eventRef(ev))

	key := a.ArgString(contractx.ArgBookingKey)
	if key == "" {
		key = k.LastConfirmedKey
	}
	if key == "" {
		return ev, true
	}
	if err := k.MarkCalendarCreated(key, ev.EventID); err != nil {
		log.Error().Err(err).Str("event_id", ev.EventID).Msg("calendar marker already set")
		return ev, false
	}
	return ev, true
}

func confirmedEvent(sessionID string, b statex.BookingAttempt, now time.Time) contractx.Event {
	return contractx.Event{
		Type:      contractx.EventReservationConfirmed,
		SessionID: sessionID,
		Payload:   b,
		At:        now.UTC(),
	}
}

func eventRef(ev contractx.CalendarEvent) statex.CalendarEventRef {
	ref := statex.CalendarEventRef{
		EventID: ev.EventID,
		Summary: ev.Summary,
		Start:   ev.Start.Format(time.RFC3339),
	}
	if !ev.End.IsZero() {
		ref.End = ev.End.Format(time.RFC3339)
	}
	return ref
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

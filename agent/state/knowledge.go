package state

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	datesx "github.com/tanpawarit/Chative-Reservation-Concierge/agent/dates"
)

type Speaker string

const (
	SpeakerUser  Speaker = "user"
	SpeakerAgent Speaker = "agent"
)

// Turn is one conversation entry. Turns are append-only.
type Turn struct {
	Speaker Speaker   `json:"speaker"`
	Text    string    `json:"text"`
	At      time.Time `json:"at"`
}

// RestaurantCandidate is a place returned by place search.
// Recorded candidates are never rewritten.
type RestaurantCandidate struct {
	PlaceID       string  `json:"place_id"`
	Name          string  `json:"name"`
	Address       string  `json:"address,omitempty"`
	Phone         string  `json:"phone,omitempty"`
	Website       string  `json:"website,omitempty"`
	Rating        float64 `json:"rating"`
	RatingsTotal  int     `json:"ratings_total,omitempty"`
	PriceLevel    int     `json:"price_level,omitempty"`
	Lat           float64 `json:"lat,omitempty"`
	Lng           float64 `json:"lng,omitempty"`
	TravelMinutes int     `json:"travel_minutes,omitempty"`
	HasBookingAPI bool    `json:"has_booking_api"`
	VenueID       string  `json:"venue_id,omitempty"`
	Location      string  `json:"location"`
	Order         int     `json:"order"`
}

func (c RestaurantCandidate) HasPhone() bool {
	return strings.TrimSpace(c.Phone) != ""
}

// Bookable reports whether any booking channel exists.
func (c RestaurantCandidate) Bookable() bool {
	return c.HasBookingAPI || c.HasPhone()
}

// Verdict is the outcome of one availability query for one candidate.
type Verdict string

const (
	VerdictAvailable            Verdict = "available"
	VerdictAlternativeSlotsOnly Verdict = "alternative_slots_only"
	VerdictPhoneOnly            Verdict = "phone_only"
)

func (v Verdict) Valid() bool {
	switch v {
	case VerdictAvailable, VerdictAlternativeSlotsOnly, VerdictPhoneOnly:
		return true
	default:
		return false
	}
}

// APIBookable reports whether the verdict routes booking to the API channel.
func (v Verdict) APIBookable() bool {
	return v == VerdictAvailable || v == VerdictAlternativeSlotsOnly
}

type AvailabilityRecord struct {
	PlaceID          string    `json:"place_id"`
	Date             string    `json:"date"`
	Time             string    `json:"time"`
	NumPeople        int       `json:"num_people"`
	Verdict          Verdict   `json:"verdict"`
	AlternativeTimes []string  `json:"alternative_times,omitempty"`
	Placeholder      bool      `json:"placeholder,omitempty"`
	CheckedAt        time.Time `json:"checked_at"`
}

// Matches reports whether the record answers exactly this query.
func (r AvailabilityRecord) Matches(date, clock string, numPeople int) bool {
	return r.Date == date && r.Time == clock && r.NumPeople == numPeople
}

type IntentKind string

const (
	IntentDiscover IntentKind = "discover"
	IntentBook     IntentKind = "book"
)

const (
	FieldLocation  = "location"
	FieldDate      = "date"
	FieldTime      = "time"
	FieldNumPeople = "num_people"
)

// ReservationIntent is filled incrementally as the user supplies details.
// Date is YYYY-MM-DD and Time is HH:MM once resolved.
type ReservationIntent struct {
	Kind            IntentKind `json:"kind,omitempty"`
	Query           string     `json:"query,omitempty"`
	Location        string     `json:"location,omitempty"`
	Date            string     `json:"date,omitempty"`
	Time            string     `json:"time,omitempty"`
	NumPeople       int        `json:"num_people,omitempty"`
	SelectedPlaceID string     `json:"selected_place_id,omitempty"`
	SelectedAtTurn  int        `json:"selected_at_turn,omitempty"`
}

// Missing returns the given fields that are still absent, in order.
func (i ReservationIntent) Missing(fields ...string) []string {
	var out []string
	for _, f := range fields {
		switch f {
		case FieldLocation:
			if strings.TrimSpace(i.Location) == "" {
				out = append(out, f)
			}
		case FieldDate:
			if strings.TrimSpace(i.Date) == "" {
				out = append(out, f)
			}
		case FieldTime:
			if strings.TrimSpace(i.Time) == "" {
				out = append(out, f)
			}
		case FieldNumPeople:
			if i.NumPeople <= 0 {
				out = append(out, f)
			}
		}
	}
	return out
}

// QueryKey identifies the current discovery query.
func (i ReservationIntent) QueryKey() string {
	return strings.Join([]string{datesx.Fold(i.Location), i.Date, i.Time, fmt.Sprint(i.NumPeople)}, "|")
}

type BookingMethod string

const (
	MethodAPI   BookingMethod = "api"
	MethodPhone BookingMethod = "phone"
)

type BookingStatus string

const (
	BookingPending   BookingStatus = "pending"
	BookingConfirmed BookingStatus = "confirmed"
	BookingFailed    BookingStatus = "failed"
)

// BookingAttempt tracks the booking of one candidate at one slot.
// AttemptCount counts API attempts only.
type BookingAttempt struct {
	PlaceID       string        `json:"place_id"`
	PlaceName     string        `json:"place_name"`
	Date          string        `json:"date"`
	Time          string        `json:"time"`
	NumPeople     int           `json:"num_people"`
	Method        BookingMethod `json:"method"`
	AttemptCount  int           `json:"attempt_count"`
	PhoneAttempts int           `json:"phone_attempts,omitempty"`
	Status        BookingStatus `json:"status"`
	BookingID     string        `json:"booking_id,omitempty"`
	Details       string        `json:"details,omitempty"`
	ConfirmedTime string        `json:"confirmed_time,omitempty"`
	Invalidated   bool          `json:"invalidated,omitempty"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

func (b BookingAttempt) Key() string {
	return BookingKey(b.PlaceID, b.Date, b.Time)
}

// SlotTime is the confirmed time when the venue moved the booking.
func (b BookingAttempt) SlotTime() string {
	if b.ConfirmedTime != "" {
		return b.ConfirmedTime
	}
	return b.Time
}

func BookingKey(placeID, date, clock string) string {
	return placeID + "|" + date + "|" + clock
}

var ErrCalendarAlreadyCreated = errors.New("calendar event already created for booking")

// CalendarMarker guards calendar creation for one confirmed booking.
type CalendarMarker struct {
	Offered bool   `json:"offered,omitempty"`
	Created bool   `json:"created,omitempty"`
	EventID string `json:"event_id,omitempty"`
}

type WebResult struct {
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
	URL     string `json:"url"`
}

type CalendarEventRef struct {
	EventID string `json:"event_id"`
	Summary string `json:"summary"`
	Start   string `json:"start"`
	End     string `json:"end,omitempty"`
}

// Presentation records the candidate list last shown to the user.
type Presentation struct {
	PlaceIDs []string `json:"place_ids"`
	AtTurn   int      `json:"at_turn"`
	QueryKey string   `json:"query_key"`
}

const maxObservations = 20

// KnowledgeStore is the session's accumulated facts. Only the orchestrator
// mutates it, after an action completes.
type KnowledgeStore struct {
	Candidates       []RestaurantCandidate         `json:"candidates,omitempty"`
	Verdicts         map[string]AvailabilityRecord `json:"verdicts,omitempty"`
	Intent           ReservationIntent             `json:"intent"`
	Bookings         map[string]BookingAttempt     `json:"bookings,omitempty"`
	LastConfirmedKey string                        `json:"last_confirmed_key,omitempty"`
	Calendar         map[string]CalendarMarker     `json:"calendar,omitempty"`
	WebResults       []WebResult                   `json:"web_results,omitempty"`
	CalendarEvents   []CalendarEventRef            `json:"calendar_events,omitempty"`
	Presentation     *Presentation                 `json:"presentation,omitempty"`
	Observations     []Observation                 `json:"observations,omitempty"`
}

func (k KnowledgeStore) Clone() KnowledgeStore {
	out := k
	out.Candidates = append([]RestaurantCandidate(nil), k.Candidates...)
	out.WebResults = append([]WebResult(nil), k.WebResults...)
	out.CalendarEvents = append([]CalendarEventRef(nil), k.CalendarEvents...)
	out.Observations = make([]Observation, 0, len(k.Observations))
	for _, o := range k.Observations {
		out.Observations = append(out.Observations, o.Clone())
	}
	if k.Verdicts != nil {
		out.Verdicts = make(map[string]AvailabilityRecord, len(k.Verdicts))
		for id, rec := range k.Verdicts {
			rec.AlternativeTimes = append([]string(nil), rec.AlternativeTimes...)
			out.Verdicts[id] = rec
		}
	}
	if k.Bookings != nil {
		out.Bookings = make(map[string]BookingAttempt, len(k.Bookings))
		for key, b := range k.Bookings {
			out.Bookings[key] = b
		}
	}
	if k.Calendar != nil {
		out.Calendar = make(map[string]CalendarMarker, len(k.Calendar))
		for key, m := range k.Calendar {
			out.Calendar[key] = m
		}
	}
	if k.Presentation != nil {
		p := *k.Presentation
		p.PlaceIDs = append([]string(nil), k.Presentation.PlaceIDs...)
		out.Presentation = &p
	}
	return out
}

// AddCandidates records new candidates for location. A candidate already
// known by place id (or by name and address) keeps its first record.
func (k *KnowledgeStore) AddCandidates(location string, candidates []RestaurantCandidate) int {
	added := 0
	for _, c := range candidates {
		if strings.TrimSpace(c.Name) == "" {
			continue
		}
		if c.PlaceID == "" {
			c.PlaceID = datesx.Fold(c.Name + " " + c.Address)
		}
		if _, ok := k.Candidate(c.PlaceID); ok {
			continue
		}
		if c.Location == "" {
			c.Location = location
		}
		c.Order = len(k.Candidates)
		k.Candidates = append(k.Candidates, c)
		added++
	}
	return added
}

// CandidatesFor returns the candidates recorded for location in discovery order.
func (k KnowledgeStore) CandidatesFor(location string) []RestaurantCandidate {
	want := datesx.Fold(location)
	var out []RestaurantCandidate
	for _, c := range k.Candidates {
		if want == "" || datesx.Fold(c.Location) == want {
			out = append(out, c)
		}
	}
	return out
}

func (k KnowledgeStore) Candidate(placeID string) (RestaurantCandidate, bool) {
	for _, c := range k.Candidates {
		if c.PlaceID == placeID {
			return c, true
		}
	}
	return RestaurantCandidate{}, false
}

// CandidateByName matches an exact folded name first, then a substring.
func (k KnowledgeStore) CandidateByName(name string) (RestaurantCandidate, bool) {
	want := datesx.Fold(name)
	if want == "" {
		return RestaurantCandidate{}, false
	}
	for _, c := range k.Candidates {
		if datesx.Fold(c.Name) == want {
			return c, true
		}
	}
	for _, c := range k.Candidates {
		folded := datesx.Fold(c.Name)
		if strings.Contains(folded, want) || strings.Contains(want, folded) {
			return c, true
		}
	}
	return RestaurantCandidate{}, false
}

// RecordVerdict stores rec as the only verdict for its candidate.
func (k *KnowledgeStore) RecordVerdict(rec AvailabilityRecord) {
	if k.Verdicts == nil {
		k.Verdicts = make(map[string]AvailabilityRecord, 8)
	}
	k.Verdicts[rec.PlaceID] = rec
}

func (k KnowledgeStore) Verdict(placeID string) (AvailabilityRecord, bool) {
	rec, ok := k.Verdicts[placeID]
	return rec, ok
}

// VerdictsFor returns the verdicts answering exactly this query.
func (k KnowledgeStore) VerdictsFor(date, clock string, numPeople int) map[string]AvailabilityRecord {
	out := make(map[string]AvailabilityRecord)
	for id, rec := range k.Verdicts {
		if rec.Matches(date, clock, numPeople) {
			out[id] = rec
		}
	}
	return out
}

func (k KnowledgeStore) Booking(key string) (BookingAttempt, bool) {
	b, ok := k.Bookings[key]
	return b, ok
}

func (k *KnowledgeStore) PutBooking(b BookingAttempt) {
	if k.Bookings == nil {
		k.Bookings = make(map[string]BookingAttempt, 4)
	}
	k.Bookings[b.Key()] = b
	if b.Status == BookingConfirmed {
		k.LastConfirmedKey = b.Key()
	}
}

// ConfirmedBooking returns the most recent confirmed booking.
func (k KnowledgeStore) ConfirmedBooking() (BookingAttempt, bool) {
	if k.LastConfirmedKey == "" {
		return BookingAttempt{}, false
	}
	b, ok := k.Bookings[k.LastConfirmedKey]
	if !ok || b.Status != BookingConfirmed {
		return BookingAttempt{}, false
	}
	return b, true
}

// ConfirmedFor returns a confirmed booking of placeID on date, whatever the time.
func (k KnowledgeStore) ConfirmedFor(placeID, date string) (BookingAttempt, bool) {
	for _, b := range k.sortedBookings() {
		if b.PlaceID == placeID && b.Date == date && b.Status == BookingConfirmed {
			return b, true
		}
	}
	return BookingAttempt{}, false
}

// InvalidatePending marks every pending attempt not for keepPlaceID as
// invalidated and returns their keys.
func (k *KnowledgeStore) InvalidatePending(keepPlaceID string, now time.Time) []string {
	var keys []string
	for _, b := range k.sortedBookings() {
		if b.Status != BookingPending || b.Invalidated || b.PlaceID == keepPlaceID {
			continue
		}
		b.Invalidated = true
		b.UpdatedAt = now.UTC()
		k.Bookings[b.Key()] = b
		keys = append(keys, b.Key())
	}
	return keys
}

func (k KnowledgeStore) sortedBookings() []BookingAttempt {
	out := make([]BookingAttempt, 0, len(k.Bookings))
	for _, b := range k.Bookings {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].UpdatedAt.After(out[j].UpdatedAt)
		}
		return out[i].Key() < out[j].Key()
	})
	return out
}

func (k KnowledgeStore) CalendarMarkerFor(key string) CalendarMarker {
	return k.Calendar[key]
}

func (k *KnowledgeStore) MarkCalendarOffered(key string) {
	if k.Calendar == nil {
		k.Calendar = make(map[string]CalendarMarker, 2)
	}
	m := k.Calendar[key]
	m.Offered = true
	k.Calendar[key] = m
}

// MarkCalendarCreated flips Created once per booking key.
func (k *KnowledgeStore) MarkCalendarCreated(key, eventID string) error {
	if k.Calendar == nil {
		k.Calendar = make(map[string]CalendarMarker, 2)
	}
	m := k.Calendar[key]
	if m.Created {
		return fmt.Errorf("%w: %s", ErrCalendarAlreadyCreated, key)
	}
	m.Offered = true
	m.Created = true
	m.EventID = eventID
	k.Calendar[key] = m
	return nil
}

func (k *KnowledgeStore) AddWebResults(results []WebResult) {
	k.WebResults = append(k.WebResults, results...)
}

func (k *KnowledgeStore) UpsertCalendarEvent(ref CalendarEventRef) {
	for i, e := range k.CalendarEvents {
		if e.EventID == ref.EventID {
			k.CalendarEvents[i] = ref
			return
		}
	}
	k.CalendarEvents = append(k.CalendarEvents, ref)
}

func (k *KnowledgeStore) RemoveCalendarEvent(eventID string) {
	out := k.CalendarEvents[:0]
	for _, e := range k.CalendarEvents {
		if e.EventID != eventID {
			out = append(out, e)
		}
	}
	k.CalendarEvents = out
}

// AppendObservation keeps the most recent observations only.
func (k *KnowledgeStore) AppendObservation(obs Observation) {
	k.Observations = append(k.Observations, obs)
	if over := len(k.Observations) - maxObservations; over > 0 {
		k.Observations = append([]Observation(nil), k.Observations[over:]...)
	}
}

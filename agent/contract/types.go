package contract

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	guardx "github.com/tanpawarit/Chative-Reservation-Concierge/agent/guard"
	statex "github.com/tanpawarit/Chative-Reservation-Concierge/agent/state"
)

type ActionKind string

const (
	ActionAskUser ActionKind = "ask_user"
	ActionInvoke  ActionKind = "invoke"
	ActionRespond ActionKind = "respond"
)

type Capability string

const (
	CapSearchWeb           Capability = "search_web"
	CapSearchPlaces        Capability = "search_places"
	CapCheckAvailability   Capability = "check_availability"
	CapMakeBooking         Capability = "make_booking"
	CapPhoneCall           Capability = "phone_call"
	CapCreateCalendarEvent Capability = "create_calendar_event"
	CapSearchEvents        Capability = "search_events"
	CapUpdateCalendarEvent Capability = "update_calendar_event"
	CapDeleteCalendarEvent Capability = "delete_calendar_event"
)

var Capabilities = []Capability{
	CapSearchWeb, CapSearchPlaces, CapCheckAvailability, CapMakeBooking, CapPhoneCall,
	CapCreateCalendarEvent, CapSearchEvents, CapUpdateCalendarEvent, CapDeleteCalendarEvent,
}

func (c Capability) Valid() bool {
	for _, known := range Capabilities {
		if c == known {
			return true
		}
	}
	return false
}

// Books reports whether the capability reserves a table.
func (c Capability) Books() bool {
	return c == CapMakeBooking || c == CapPhoneCall
}

// Argument keys shared by the catalog, the policy and the gateway.
const (
	ArgQuery            = "query"
	ArgLocation         = "location"
	ArgRadiusMeters     = "radius_m"
	ArgPriceLevel       = "price_level"
	ArgExtras           = "extras"
	ArgMaxTravelMinutes = "max_travel_minutes"
	ArgTravelMode       = "travel_mode"
	ArgPlaceIDs         = "place_ids"
	ArgPlaceID          = "place_id"
	ArgPlaceName        = "place_name"
	ArgDate             = "date"
	ArgTime             = "time"
	ArgNumPeople        = "num_people"
	ArgPhoneNumber      = "phone_number"
	ArgMission          = "mission"
	ArgContext          = "context"
	ArgCallerName       = "caller_name"
	ArgCallerPhone      = "caller_phone"
	ArgSummary          = "summary"
	ArgStart            = "start"
	ArgEnd              = "end"
	ArgTimezone         = "timezone"
	ArgDescription      = "description"
	ArgEventID          = "event_id"
	ArgFrom             = "from"
	ArgTo               = "to"
	ArgBookingKey       = "booking_key"
)

// IntentPatch carries reservation details the decision function extracted
// from the latest user turn.
type IntentPatch struct {
	Kind          statex.IntentKind `json:"kind,omitempty"`
	Query         string            `json:"query,omitempty"`
	Location      string            `json:"location,omitempty"`
	Date          string            `json:"date,omitempty"`
	Time          string            `json:"time,omitempty"`
	NumPeople     int               `json:"num_people,omitempty"`
	SelectedPlace string            `json:"selected_place,omitempty"`
}

func (p *IntentPatch) Empty() bool {
	return p == nil || *p == IntentPatch{}
}

// Action is the single action proposed or executed in one step.
type Action struct {
	Kind       ActionKind     `json:"kind"`
	Capability Capability     `json:"capability,omitempty"`
	Args       map[string]any `json:"args,omitempty"`
	Message    string         `json:"message,omitempty"`
	Thought    string         `json:"thought,omitempty"`
	OffTopic   bool           `json:"off_topic,omitempty"`
	Intent     *IntentPatch   `json:"intent,omitempty"`

	// Set by the orchestrator on the messages it composes.
	Presents       []string `json:"presents,omitempty"`
	OffersCalendar string   `json:"offers_calendar,omitempty"`
	Rule           string   `json:"rule,omitempty"`
}

func AskUser(message string) Action {
	return Action{Kind: ActionAskUser, Message: message}
}

func Respond(message string) Action {
	return Action{Kind: ActionRespond, Message: message}
}

func Invoke(c Capability, args map[string]any) Action {
	return Action{Kind: ActionInvoke, Capability: c, Args: args}
}

func (a Action) IsInvoke() bool {
	return a.Kind == ActionInvoke
}

// Is reports whether a invokes capability c.
func (a Action) Is(c Capability) bool {
	return a.Kind == ActionInvoke && a.Capability == c
}

func (a Action) Fingerprint() string {
	return guardx.Fingerprint(string(a.Capability), a.Args)
}

func (a Action) Clone() Action {
	if a.Args != nil {
		args := make(map[string]any, len(a.Args))
		for k, v := range a.Args {
			args[k] = v
		}
		a.Args = args
	}
	if a.Intent != nil {
		patch := *a.Intent
		a.Intent = &patch
	}
	a.Presents = append([]string(nil), a.Presents...)
	return a
}

// WithArg returns a copy of a with key set.
func (a Action) WithArg(key string, value any) Action {
	out := a.Clone()
	if out.Args == nil {
		out.Args = make(map[string]any, 4)
	}
	out.Args[key] = value
	return out
}

func (a Action) String() string {
	switch a.Kind {
	case ActionInvoke:
		raw, _ := json.Marshal(a.Args)
		return fmt.Sprintf("%s(%s)", a.Capability, raw)
	default:
		return fmt.Sprintf("%s(%q)", a.Kind, a.Message)
	}
}

func (a Action) ArgString(key string) string {
	return ArgString(a.Args, key)
}

func (a Action) ArgInt(key string) int {
	return ArgInt(a.Args, key)
}

// ArgString reads a string argument, formatting numbers when needed.
func ArgString(args map[string]any, key string) string {
	switch v := args[key].(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}

// ArgInt reads an integer argument from any JSON-ish representation.
func ArgInt(args map[string]any, key string) int {
	switch v := args[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	case json.Number:
		n, _ := v.Int64()
		return int(n)
	case string:
		n, _ := strconv.Atoi(strings.TrimSpace(v))
		return n
	default:
		return 0
	}
}

// ArgStrings reads a list argument.
func ArgStrings(args map[string]any, key string) []string {
	switch v := args[key].(type) {
	case []string:
		return append([]string(nil), v...)
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s := strings.TrimSpace(fmt.Sprint(item)); s != "" {
				out = append(out, s)
			}
		}
		return out
	case string:
		if strings.TrimSpace(v) == "" {
			return nil
		}
		return []string{strings.TrimSpace(v)}
	default:
		return nil
	}
}

// DecisionRequest is the read-only context rendered for the decision function.
type DecisionRequest struct {
	Conversation    []statex.Turn         `json:"conversation"`
	Knowledge       statex.KnowledgeStore `json:"knowledge"`
	LastObservation *statex.Observation   `json:"last_observation,omitempty"`
	Correction      string                `json:"correction,omitempty"`
	Now             time.Time             `json:"now"`
}

type WebSearchRequest struct {
	Query      string `json:"query"`
	MaxResults int    `json:"max_results,omitempty"`
}

type PlaceQuery struct {
	Query            string   `json:"query"`
	Location         string   `json:"location"`
	RadiusMeters     int      `json:"radius_m,omitempty"`
	PriceLevel       int      `json:"price_level,omitempty"`
	Extras           []string `json:"extras,omitempty"`
	MaxTravelMinutes int      `json:"max_travel_minutes,omitempty"`
	TravelMode       string   `json:"travel_mode,omitempty"`
}

type AvailabilityRequest struct {
	Candidates []statex.RestaurantCandidate `json:"candidates"`
	Date       string                       `json:"date"`
	Time       string                       `json:"time"`
	NumPeople  int                          `json:"num_people"`
}

type BookingRequest struct {
	PlaceID   string `json:"place_id"`
	PlaceName string `json:"place_name"`
	VenueID   string `json:"venue_id,omitempty"`
	Date      string `json:"date"`
	Time      string `json:"time"`
	NumPeople int    `json:"num_people"`
	// IdempotencyKey is stable across retries of the same booking.
	IdempotencyKey string `json:"idempotency_key,omitempty"`
}

type BookingResultStatus string

const (
	BookingResultConfirmed BookingResultStatus = "confirmed"
	BookingResultFailed    BookingResultStatus = "failed"
)

type BookingResult struct {
	Status        BookingResultStatus `json:"status"`
	BookingID     string              `json:"booking_id,omitempty"`
	Details       string              `json:"details,omitempty"`
	ConfirmedTime string              `json:"confirmed_time,omitempty"`
}

type PhoneCallRequest struct {
	PhoneNumber string `json:"phone_number"`
	Mission     string `json:"mission"`
	Context     string `json:"context,omitempty"`
	CallerName  string `json:"caller_name,omitempty"`
	CallerPhone string `json:"caller_phone,omitempty"`
}

type PhoneCallStatus string

const (
	PhoneCallCompleted PhoneCallStatus = "completed"
	PhoneCallFailed    PhoneCallStatus = "failed"
)

// PhoneCallResult is only available once the call has ended.
type PhoneCallResult struct {
	Status            PhoneCallStatus `json:"status"`
	Notes             string          `json:"notes,omitempty"`
	ScheduleDeviation string          `json:"schedule_deviation,omitempty"`
	ConfirmedTime     string          `json:"confirmed_time,omitempty"`
}

type CalendarEventInput struct {
	Summary     string    `json:"summary"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
	Timezone    string    `json:"timezone"`
	Location    string    `json:"location,omitempty"`
	Description string    `json:"description,omitempty"`
}

type CalendarEvent struct {
	EventID     string    `json:"event_id"`
	Summary     string    `json:"summary"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
	Timezone    string    `json:"timezone"`
	Location    string    `json:"location,omitempty"`
	Description string    `json:"description,omitempty"`
}

// CalendarEventPatch updates only the non-nil fields.
type CalendarEventPatch struct {
	Summary     *string    `json:"summary,omitempty"`
	Start       *time.Time `json:"start,omitempty"`
	End         *time.Time `json:"end,omitempty"`
	Location    *string    `json:"location,omitempty"`
	Description *string    `json:"description,omitempty"`
}

type EventQuery struct {
	Text string    `json:"text,omitempty"`
	From time.Time `json:"from,omitempty"`
	To   time.Time `json:"to,omitempty"`
}

const (
	EventReservationConfirmed = "reservation.confirmed"
	EventCalendarCreated      = "calendar.created"
)

// Event is a notification about a committed side effect.
type Event struct {
	Type      string    `json:"type"`
	SessionID string    `json:"session_id"`
	Payload   any       `json:"payload,omitempty"`
	At        time.Time `json:"at"`
}

// Package policy holds the orchestration rules that decide whether a
// proposed action may run, and what runs instead when it may not.
package policy

import (
	"fmt"
	"time"

	contractx "github.com/tanpawarit/Chative-Reservation-Concierge/agent/contract"
	guardx "github.com/tanpawarit/Chative-Reservation-Concierge/agent/guard"
	rankingx "github.com/tanpawarit/Chative-Reservation-Concierge/agent/ranking"
	statex "github.com/tanpawarit/Chative-Reservation-Concierge/agent/state"
)

const (
	RuleMalformed        = "malformed"
	RuleTopic            = "topic_gate"
	RulePostConfirmation = "post_confirmation"
	RuleMissingFields    = "missing_fields"
	RulePresentation     = "presentation_gate"
	RuleOrdering         = "search_before_availability"
	RuleSelection        = "selection_required"
	RuleVerdict          = "verdict_required"
	RuleConsistency      = "consistency_guard"
	RuleChannel          = "booking_channel"
	RuleRetryBudget      = "retry_budget"
	RuleAntiLoop         = "anti_loop"
	RuleDefault          = "default"
)

type Config struct {
	Location      *time.Location
	CallerName    string
	CallerPhone   string
	EventDuration time.Duration
}

// Violation explains a rejected action. Exactly one of Replacement or
// Correction is set; Fallback is what runs when the correction round does
// not produce a legal action.
type Violation struct {
	Rule        string
	Reason      string
	Correction  string
	Replacement *contractx.Action
	Fallback    *contractx.Action
}

func (v *Violation) Error() string {
	return fmt.Sprintf("%s: %s", v.Rule, v.Reason)
}

func (v *Violation) Unwrap() error {
	return contractx.ErrPolicyViolation
}

type Engine struct {
	cfg Config
}

func NewEngine(cfg Config) *Engine {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.EventDuration <= 0 {
		cfg.EventDuration = 2 * time.Hour
	}
	return &Engine{cfg: cfg}
}

func (e *Engine) Config() Config {
	return e.cfg
}

// Check evaluates a normalized action against the session. It returns nil
// when the action may run as proposed.
func (e *Engine) Check(sess *statex.Session, a contractx.Action) *Violation {
	if a.OffTopic {
		return replace(RuleTopic, "request is outside restaurant discovery and booking",
			withRule(contractx.Respond(msgOutOfScope), RuleTopic))
	}
	if v := checkMalformed(a); v != nil {
		return v
	}
	if a.Rule != "" && !a.IsInvoke() {
		return nil
	}
	k := sess.Knowledge

	if v := e.checkPostConfirmation(k, a); v != nil {
		return v
	}
	if !a.IsInvoke() {
		return e.checkPresentation(k, a)
	}
	if v := checkMissing(k, a); v != nil {
		return v
	}
	if v := e.checkPresentation(k, a); v != nil {
		return v
	}
	switch a.Capability {
	case contractx.CapCheckAvailability:
		if v := checkOrdering(a); v != nil {
			return v
		}
	case contractx.CapMakeBooking, contractx.CapPhoneCall:
		if v := e.checkBooking(sess, a); v != nil {
			return v
		}
	}
	return checkAntiLoop(sess, a)
}

func checkMalformed(a contractx.Action) *Violation {
	switch a.Kind {
	case contractx.ActionAskUser, contractx.ActionRespond:
		if a.Message == "" {
			return correct(RuleMalformed, "message is empty",
				"Your last action had an empty message. Write the message for the user.", nil)
		}
	case contractx.ActionInvoke:
		if !a.Capability.Valid() {
			return correct(RuleMalformed, fmt.Sprintf("unknown capability %q", a.Capability),
				fmt.Sprintf("Capability %q does not exist. Use one of the provided tools.", a.Capability), nil)
		}
	default:
		return correct(RuleMalformed, fmt.Sprintf("unknown action kind %q", a.Kind),
			"Return exactly one action: a tool call, or an ask_user or respond message.", nil)
	}
	return nil
}

func (e *Engine) checkPostConfirmation(k statex.KnowledgeStore, a contractx.Action) *Violation {
	confirmed, ok := k.ConfirmedBooking()
	if !ok {
		return nil
	}
	key := confirmed.Key()
	marker := k.CalendarMarkerFor(key)

	if a.Is(contractx.CapCreateCalendarEvent) {
		target := a.ArgString(contractx.ArgBookingKey)
		if target == "" {
			target = key
		}
		if m := k.CalendarMarkerFor(target); m.Created {
			return replace(RulePostConfirmation, "calendar event already created for booking",
				withRule(contractx.Respond(calendarExistsMessage(m)), RulePostConfirmation))
		}
		return nil
	}

	if a.Capability.Books() && a.IsInvoke() {
		if b, ok := k.ConfirmedFor(a.ArgString(contractx.ArgPlaceID), a.ArgString(contractx.ArgDate)); ok {
			return replace(RulePostConfirmation, "booking already confirmed",
				withRule(contractx.Respond(alreadyBookedMessage(b)), RulePostConfirmation))
		}
	}

	if !marker.Offered && !marker.Created {
		offer := withRule(contractx.AskUser(offerCalendarMessage(confirmed)), RulePostConfirmation)
		offer.OffersCalendar = key
		return replace(RulePostConfirmation, "calendar offer must follow a confirmed booking", offer)
	}
	return nil
}

// requiredFields lists the intent fields an invoke needs in its arguments.
func requiredFields(a contractx.Action) []string {
	switch a.Capability {
	case contractx.CapSearchPlaces:
		return []string{contractx.ArgLocation}
	case contractx.CapCheckAvailability:
		fields := []string{contractx.ArgDate, contractx.ArgTime, contractx.ArgNumPeople}
		if len(contractx.ArgStrings(a.Args, contractx.ArgPlaceIDs)) == 0 {
			fields = append([]string{contractx.ArgLocation}, fields...)
		}
		return fields
	case contractx.CapMakeBooking, contractx.CapPhoneCall:
		return []string{contractx.ArgDate, contractx.ArgTime, contractx.ArgNumPeople}
	default:
		return nil
	}
}

func checkMissing(k statex.KnowledgeStore, a contractx.Action) *Violation {
	var missing []string
	for _, f := range requiredFields(a) {
		if f == contractx.ArgNumPeople {
			if a.ArgInt(f) <= 0 {
				missing = append(missing, f)
			}
			continue
		}
		if a.ArgString(f) == "" {
			missing = append(missing, f)
		}
	}
	if len(missing) > 0 {
		ask := withRule(contractx.AskUser(AskMissing(missing)), RuleMissingFields)
		return correct(RuleMissingFields, fmt.Sprintf("missing %v", missing),
			fmt.Sprintf("You cannot call %s yet: the user has not given %v. Ask the user for them.", a.Capability, missing), &ask)
	}

	var toolMissing []string
	switch a.Capability {
	case contractx.CapSearchWeb:
		if a.ArgString(contractx.ArgQuery) == "" {
			toolMissing = append(toolMissing, contractx.ArgQuery)
		}
	case contractx.CapCreateCalendarEvent:
		for _, f := range []string{contractx.ArgSummary, contractx.ArgStart} {
			if a.ArgString(f) == "" {
				toolMissing = append(toolMissing, f)
			}
		}
	case contractx.CapUpdateCalendarEvent, contractx.CapDeleteCalendarEvent:
		if a.ArgString(contractx.ArgEventID) == "" {
			toolMissing = append(toolMissing, contractx.ArgEventID)
		}
	case contractx.CapPhoneCall:
		if a.ArgString(contractx.ArgMission) == "" {
			toolMissing = append(toolMissing, contractx.ArgMission)
		}
	}
	if len(toolMissing) > 0 {
		return correct(RuleMissingFields, fmt.Sprintf("missing %v", toolMissing),
			fmt.Sprintf("%s needs %v.", a.Capability, toolMissing), nil)
	}
	return nil
}

// presentationPending reports whether availability is known for the current
// query but the candidates have not been shown for it yet.
func presentationPending(k statex.KnowledgeStore) bool {
	candidates := k.CandidatesFor(k.Intent.Location)
	if len(candidates) == 0 || k.Intent.Location == "" {
		return false
	}
	if k.Presentation != nil && (k.Presentation.QueryKey == k.Intent.QueryKey() || SelectionValid(k)) {
		return false
	}
	for _, c := range candidates {
		rec, ok := k.Verdict(c.PlaceID)
		if !ok {
			continue
		}
		if rec.Placeholder && k.Intent.Date == "" && k.Intent.Time == "" {
			return true
		}
		if !rec.Placeholder && rec.Matches(k.Intent.Date, k.Intent.Time, k.Intent.NumPeople) {
			return true
		}
	}
	return false
}

// SelectionValid reports whether the user picked a candidate after the
// latest presentation.
func SelectionValid(k statex.KnowledgeStore) bool {
	return k.Presentation != nil && k.Intent.SelectedPlaceID != "" && k.Intent.SelectedAtTurn > k.Presentation.AtTurn
}

// PresentAction builds the ask-user action that shows the ranked candidates.
func PresentAction(k statex.KnowledgeStore) contractx.Action {
	showVerdicts := k.Intent.Date != "" && k.Intent.Time != ""
	entries := rankingx.Rank(k.CandidatesFor(k.Intent.Location), k.Verdicts, showVerdicts)
	a := withRule(contractx.AskUser(rankingx.Present(entries)), RulePresentation)
	a.Presents = rankingx.PlaceIDs(entries)
	return a
}

func (e *Engine) checkPresentation(k statex.KnowledgeStore, a contractx.Action) *Violation {
	if !presentationPending(k) {
		return nil
	}
	if a.IsInvoke() && !a.Capability.Books() {
		return nil
	}
	return replace(RulePresentation, "availability known but candidates not presented", PresentAction(k))
}

func checkOrdering(a contractx.Action) *Violation {
	if len(contractx.ArgStrings(a.Args, contractx.ArgPlaceIDs)) > 0 {
		return nil
	}
	search := withRule(contractx.Invoke(contractx.CapSearchPlaces, map[string]any{
		contractx.ArgLocation: a.ArgString(contractx.ArgLocation),
	}), RuleOrdering)
	return replace(RuleOrdering, "no candidates known for location", search)
}

func (e *Engine) checkBooking(sess *statex.Session, a contractx.Action) *Violation {
	k := sess.Knowledge
	placeID := a.ArgString(contractx.ArgPlaceID)
	date, clock, people := a.ArgString(contractx.ArgDate), a.ArgString(contractx.ArgTime), a.ArgInt(contractx.ArgNumPeople)

	// selection
	if k.Presentation == nil {
		if len(k.VerdictsFor(k.Intent.Date, k.Intent.Time, k.Intent.NumPeople)) == 0 {
			return replace(RuleSelection, "booking before any availability check", e.availabilityCheck(k, "", date, clock, people))
		}
		return replace(RuleSelection, "booking before presenting candidates", PresentAction(k))
	}
	selected := k.Intent.SelectedPlaceID
	if !SelectionValid(k) {
		present := PresentAction(k)
		return replace(RuleSelection, "no explicit user selection after presentation", present)
	}
	candidate, ok := k.Candidate(placeID)
	if !ok || placeID != selected {
		present := PresentAction(k)
		return correct(RuleSelection, fmt.Sprintf("booking %q but user selected %q", placeID, selected),
			fmt.Sprintf("The user selected place_id %q. Book only that restaurant.", selected), &present)
	}

	// verdict and consistency
	wantDate, wantClock, wantPeople := intentSlot(k, date, clock, people)
	rec, ok := k.Verdict(placeID)
	if !ok || rec.Placeholder {
		return replace(RuleVerdict, "no verdict for the selected candidate under the current query",
			e.availabilityCheck(k, placeID, wantDate, wantClock, wantPeople))
	}
	if date != wantDate || clock != wantClock || people != wantPeople {
		return replace(RuleConsistency,
			fmt.Sprintf("booking %s %s x%d differs from intent %s %s x%d", date, clock, people, wantDate, wantClock, wantPeople),
			e.availabilityCheck(k, placeID, wantDate, wantClock, wantPeople))
	}
	if !rec.Matches(date, clock, people) {
		return replace(RuleConsistency,
			fmt.Sprintf("booking %s %s x%d differs from last check %s %s x%d", date, clock, people, rec.Date, rec.Time, rec.NumPeople),
			e.availabilityCheck(k, placeID, date, clock, people))
	}

	// channel and retry budget
	attempt, _ := k.Booking(statex.BookingKey(placeID, date, clock))
	exhausted := guardx.BookingBudget.Exhausted(attempt.AttemptCount)
	switch {
	case a.Capability == contractx.CapMakeBooking && rec.Verdict == statex.VerdictPhoneOnly:
		return e.phoneOr(sess, a, candidate, RuleChannel, "verdict is phone only")
	case a.Capability == contractx.CapMakeBooking && exhausted:
		return e.phoneOr(sess, a, candidate, RuleRetryBudget,
			fmt.Sprintf("%d API attempts failed", attempt.AttemptCount))
	case a.Capability == contractx.CapPhoneCall && rec.Verdict.APIBookable() && !exhausted && candidate.HasBookingAPI:
		booking := withRule(e.bookingAction(a), RuleChannel)
		return replace(RuleChannel, "API booking available, phone not allowed yet", booking)
	case a.Capability == contractx.CapPhoneCall && !candidate.HasPhone() && a.ArgString(contractx.ArgPhoneNumber) == "":
		return replace(RuleChannel, "candidate has no phone",
			withRule(contractx.Respond(unbookableMessage(candidate)), RuleChannel))
	}
	return nil
}

// intentSlot returns the intent's date, time and party size. Fields the
// intent has not captured yet fall back to the proposed arguments.
func intentSlot(k statex.KnowledgeStore, date, clock string, people int) (string, string, int) {
	if k.Intent.Date != "" {
		date = k.Intent.Date
	}
	if k.Intent.Time != "" {
		clock = k.Intent.Time
	}
	if k.Intent.NumPeople > 0 {
		people = k.Intent.NumPeople
	}
	return date, clock, people
}

func (e *Engine) phoneOr(sess *statex.Session, a contractx.Action, c statex.RestaurantCandidate, rule, reason string) *Violation {
	if !c.HasPhone() {
		return replace(rule, reason+", and no phone",
			withRule(contractx.Respond(PartialSummary(sess.Knowledge, unbookableMessage(c))), rule))
	}
	call := withRule(e.phoneAction(a, c), rule)
	return replace(rule, reason, call)
}

func (e *Engine) availabilityCheck(k statex.KnowledgeStore, placeID, date, clock string, people int) contractx.Action {
	args := map[string]any{
		contractx.ArgDate:      date,
		contractx.ArgTime:      clock,
		contractx.ArgNumPeople: people,
	}
	if placeID != "" {
		args[contractx.ArgPlaceIDs] = []string{placeID}
	} else {
		args[contractx.ArgLocation] = k.Intent.Location
	}
	return withRule(contractx.Invoke(contractx.CapCheckAvailability, args), RuleVerdict)
}

func (e *Engine) bookingAction(a contractx.Action) contractx.Action {
	return contractx.Invoke(contractx.CapMakeBooking, map[string]any{
		contractx.ArgPlaceID:   a.ArgString(contractx.ArgPlaceID),
		contractx.ArgPlaceName: a.ArgString(contractx.ArgPlaceName),
		contractx.ArgDate:      a.ArgString(contractx.ArgDate),
		contractx.ArgTime:      a.ArgString(contractx.ArgTime),
		contractx.ArgNumPeople: a.ArgInt(contractx.ArgNumPeople),
	})
}

func (e *Engine) phoneAction(a contractx.Action, c statex.RestaurantCandidate) contractx.Action {
	return contractx.Invoke(contractx.CapPhoneCall, map[string]any{
		contractx.ArgPlaceID:     c.PlaceID,
		contractx.ArgPlaceName:   c.Name,
		contractx.ArgPhoneNumber: c.Phone,
		contractx.ArgDate:        a.ArgString(contractx.ArgDate),
		contractx.ArgTime:        a.ArgString(contractx.ArgTime),
		contractx.ArgNumPeople:   a.ArgInt(contractx.ArgNumPeople),
	})
}

// checkAntiLoop rejects an invoke identical to both remembered actions.
// API booking retries inside the budget are governed by the budget instead.
func checkAntiLoop(sess *statex.Session, a contractx.Action) *Violation {
	if a.Capability == contractx.CapMakeBooking {
		key := statex.BookingKey(a.ArgString(contractx.ArgPlaceID), a.ArgString(contractx.ArgDate), a.ArgString(contractx.ArgTime))
		attempt, _ := sess.Knowledge.Booking(key)
		if !guardx.BookingBudget.Exhausted(attempt.AttemptCount) {
			return nil
		}
	}
	if !sess.Guard.Repeats(string(a.Capability), a.Fingerprint()) {
		return nil
	}
	reason := "He intentado lo mismo varias veces sin éxito, así que paro aquí."
	if sess.Guard.ConsecutiveFailures(string(a.Capability), a.Fingerprint()) == 0 {
		reason = "Ya tengo esa información y repetir la consulta no aporta nada nuevo."
	}
	return replace(RuleAntiLoop, fmt.Sprintf("%s repeated with identical arguments", a.Capability),
		withRule(contractx.Respond(PartialSummary(sess.Knowledge, reason)), RuleAntiLoop))
}

// DefaultAction is what the orchestrator does when no legal action could be
// obtained.
func DefaultAction(k statex.KnowledgeStore) contractx.Action {
	if missing := k.Intent.Missing(statex.FieldLocation, statex.FieldDate, statex.FieldTime, statex.FieldNumPeople); len(missing) > 0 {
		return withRule(contractx.AskUser(AskMissing(missing)), RuleDefault)
	}
	return withRule(contractx.AskUser(msgFallback), RuleDefault)
}

func replace(rule, reason string, a contractx.Action) *Violation {
	return &Violation{Rule: rule, Reason: reason, Replacement: &a}
}

func correct(rule, reason, correction string, fallback *contractx.Action) *Violation {
	return &Violation{Rule: rule, Reason: reason, Correction: correction, Fallback: fallback}
}

func withRule(a contractx.Action, rule string) contractx.Action {
	a.Rule = rule
	return a
}

package policy

import (
	"fmt"
	"strings"
	"time"

	contractx "github.com/tanpawarit/Chative-Reservation-Concierge/agent/contract"
	datesx "github.com/tanpawarit/Chative-Reservation-Concierge/agent/dates"
	rankingx "github.com/tanpawarit/Chative-Reservation-Concierge/agent/ranking"
	statex "github.com/tanpawarit/Chative-Reservation-Concierge/agent/state"
)

const (
	ArgPlaceholder     = "placeholder"
	placeholderPartySz = 2
	defaultPlaceQuery  = "restaurante"
)

// Normalize returns a copy of a with canonical arguments: resolved dates,
// HH:MM clocks, integer party sizes, place ids resolved from names or the
// user's selection, and derived phone and calendar fields. Fingerprints are
// computed on normalized arguments.
func (e *Engine) Normalize(sess *statex.Session, a contractx.Action, now time.Time) contractx.Action {
	out := a.Clone()
	out.Message = strings.TrimSpace(out.Message)
	if !out.IsInvoke() {
		return out
	}
	if out.Args == nil {
		out.Args = make(map[string]any, 8)
	}
	k := sess.Knowledge
	ref := now.In(e.cfg.Location)

	e.normalizeSlot(out.Args, ref)

	switch out.Capability {
	case contractx.CapSearchPlaces:
		fillString(out.Args, contractx.ArgLocation, k.Intent.Location)
		fillString(out.Args, contractx.ArgQuery, firstNonEmpty(k.Intent.Query, defaultPlaceQuery))
	case contractx.CapCheckAvailability:
		e.normalizeAvailability(k, out.Args, ref)
	case contractx.CapMakeBooking:
		fillSlotFromIntent(k, out.Args)
		resolvePlace(k, out.Args)
	case contractx.CapPhoneCall:
		fillSlotFromIntent(k, out.Args)
		resolvePlace(k, out.Args)
		e.normalizePhone(k, out.Args)
	case contractx.CapCreateCalendarEvent:
		e.normalizeCalendar(k, out.Args)
	case contractx.CapSearchWeb:
		if out.ArgString(contractx.ArgQuery) == "" && k.Intent.Query != "" {
			out.Args[contractx.ArgQuery] = strings.TrimSpace(k.Intent.Query + " " + k.Intent.Location)
		}
	}
	return out
}

// normalizeSlot canonicalizes date, time and party size in place, dropping
// values that cannot be understood so they are filled or asked for instead.
func (e *Engine) normalizeSlot(args map[string]any, ref time.Time) {
	if raw := contractx.ArgString(args, contractx.ArgDate); raw != "" {
		if iso, err := datesx.ResolveISO(raw, ref); err == nil {
			args[contractx.ArgDate] = iso
		} else {
			delete(args, contractx.ArgDate)
		}
	}
	if raw := contractx.ArgString(args, contractx.ArgTime); raw != "" {
		if clock, err := datesx.NormalizeClock(raw); err == nil {
			args[contractx.ArgTime] = clock
		} else {
			delete(args, contractx.ArgTime)
		}
	}
	if _, ok := args[contractx.ArgNumPeople]; ok {
		if n := contractx.ArgInt(args, contractx.ArgNumPeople); n > 0 {
			args[contractx.ArgNumPeople] = n
		} else {
			delete(args, contractx.ArgNumPeople)
		}
	}
}

func fillSlotFromIntent(k statex.KnowledgeStore, args map[string]any) {
	fillString(args, contractx.ArgDate, k.Intent.Date)
	fillString(args, contractx.ArgTime, k.Intent.Time)
	if contractx.ArgInt(args, contractx.ArgNumPeople) <= 0 && k.Intent.NumPeople > 0 {
		args[contractx.ArgNumPeople] = k.Intent.NumPeople
	}
}

func (e *Engine) normalizeAvailability(k statex.KnowledgeStore, args map[string]any, ref time.Time) {
	fillString(args, contractx.ArgLocation, k.Intent.Location)
	fillSlotFromIntent(k, args)

	// discovery probe: no real date or time yet
	if k.Intent.Kind == statex.IntentDiscover && k.Intent.Date == "" && k.Intent.Time == "" &&
		contractx.ArgString(args, contractx.ArgDate) == "" && contractx.ArgString(args, contractx.ArgTime) == "" {
		slot := nextHalfHour(ref)
		args[contractx.ArgDate] = slot.Format(datesx.ISOLayout)
		args[contractx.ArgTime] = slot.Format("15:04")
		if contractx.ArgInt(args, contractx.ArgNumPeople) <= 0 {
			args[contractx.ArgNumPeople] = placeholderPartySz
		}
		args[ArgPlaceholder] = true
	}

	var ids []string
	for _, id := range contractx.ArgStrings(args, contractx.ArgPlaceIDs) {
		if c, ok := k.Candidate(id); ok {
			ids = append(ids, c.PlaceID)
		} else if c, ok := k.CandidateByName(id); ok {
			ids = append(ids, c.PlaceID)
		}
	}
	if len(ids) == 0 {
		if name := contractx.ArgString(args, contractx.ArgPlaceName); name != "" {
			if c, ok := k.CandidateByName(name); ok {
				ids = []string{c.PlaceID}
			}
		}
	}
	if len(ids) == 0 && SelectionValid(k) {
		ids = []string{k.Intent.SelectedPlaceID}
	}
	if len(ids) == 0 {
		location := contractx.ArgString(args, contractx.ArgLocation)
		ids = rankingx.PlaceIDs(rankingx.Rank(k.CandidatesFor(location), nil, false))
	}
	delete(args, contractx.ArgPlaceName)
	if len(ids) > 0 {
		args[contractx.ArgPlaceIDs] = ids
	} else {
		delete(args, contractx.ArgPlaceIDs)
	}
}

// resolvePlace sets place_id and the canonical place_name from the id, the
// name, or the user's selection, in that order.
func resolvePlace(k statex.KnowledgeStore, args map[string]any) {
	var (
		c  statex.RestaurantCandidate
		ok bool
	)
	if id := contractx.ArgString(args, contractx.ArgPlaceID); id != "" {
		c, ok = k.Candidate(id)
	}
	if !ok {
		if name := contractx.ArgString(args, contractx.ArgPlaceName); name != "" {
			c, ok = k.CandidateByName(name)
		}
	}
	if !ok && k.Intent.SelectedPlaceID != "" && contractx.ArgString(args, contractx.ArgPlaceID) == "" && contractx.ArgString(args, contractx.ArgPlaceName) == "" {
		c, ok = k.Candidate(k.Intent.SelectedPlaceID)
	}
	if ok {
		args[contractx.ArgPlaceID] = c.PlaceID
		args[contractx.ArgPlaceName] = c.Name
	}
}

func (e *Engine) normalizePhone(k statex.KnowledgeStore, args map[string]any) {
	c, _ := k.Candidate(contractx.ArgString(args, contractx.ArgPlaceID))
	fillString(args, contractx.ArgPhoneNumber, c.Phone)
	fillString(args, contractx.ArgCallerName, e.cfg.CallerName)
	fillString(args, contractx.ArgCallerPhone, e.cfg.CallerPhone)

	date, clock, people := contractx.ArgString(args, contractx.ArgDate), contractx.ArgString(args, contractx.ArgTime), contractx.ArgInt(args, contractx.ArgNumPeople)
	if contractx.ArgString(args, contractx.ArgMission) == "" && date != "" && clock != "" && people > 0 {
		mission := fmt.Sprintf("Reservar una mesa para %d personas el %s a las %s", people, date, clock)
		if name := contractx.ArgString(args, contractx.ArgCallerName); name != "" {
			mission += " a nombre de " + name
		}
		args[contractx.ArgMission] = mission + ". Si no hay hueco a esa hora, preguntar por la hora libre más cercana."
	}
	if contractx.ArgString(args, contractx.ArgContext) == "" && c.Name != "" {
		args[contractx.ArgContext] = fmt.Sprintf("Restaurante %s, %s", c.Name, c.Address)
	}
}

// normalizeCalendar derives the event from the confirmed booking.
func (e *Engine) normalizeCalendar(k statex.KnowledgeStore, args map[string]any) {
	b, ok := k.ConfirmedBooking()
	if !ok {
		return
	}
	start, err := datesx.Combine(b.Date, b.SlotTime(), e.cfg.Location)
	if err != nil {
		return
	}
	c, _ := k.Candidate(b.PlaceID)
	args[contractx.ArgBookingKey] = b.Key()
	args[contractx.ArgStart] = start.Format(time.RFC3339)
	args[contractx.ArgEnd] = start.Add(e.cfg.EventDuration).Format(time.RFC3339)
	args[contractx.ArgTimezone] = e.cfg.Location.String()
	fillString(args, contractx.ArgSummary, "Reserva en "+b.PlaceName)
	fillString(args, contractx.ArgLocation, firstNonEmpty(c.Address, b.PlaceName))
	description := fmt.Sprintf("Mesa para %d personas.", b.NumPeople)
	if b.BookingID != "" {
		description += " Referencia: " + b.BookingID + "."
	}
	fillString(args, contractx.ArgDescription, description)
}

// ApplyIntent merges a patch extracted from the user turn at turnIdx.
// Relative dates and free-form clocks are resolved first. It returns the
// newly selected place id, if the patch changed the selection.
func (e *Engine) ApplyIntent(k *statex.KnowledgeStore, patch *contractx.IntentPatch, turnIdx int, now time.Time) string {
	if patch.Empty() {
		return ""
	}
	ref := now.In(e.cfg.Location)
	intent := &k.Intent

	if patch.Kind == statex.IntentDiscover || patch.Kind == statex.IntentBook {
		intent.Kind = patch.Kind
	}
	if q := strings.TrimSpace(patch.Query); q != "" {
		intent.Query = q
	}
	if loc := strings.TrimSpace(patch.Location); loc != "" && datesx.Fold(loc) != datesx.Fold(intent.Location) {
		intent.Location = loc
		intent.SelectedPlaceID = ""
		intent.SelectedAtTurn = 0
	}
	if patch.Date != "" {
		if iso, err := datesx.ResolveISO(patch.Date, ref); err == nil {
			intent.Date = iso
		}
	}
	if patch.Time != "" {
		if clock, err := datesx.NormalizeClock(patch.Time); err == nil {
			intent.Time = clock
		}
	}
	if patch.NumPeople > 0 {
		intent.NumPeople = patch.NumPeople
	}

	if patch.SelectedPlace == "" || k.Presentation == nil || turnIdx <= k.Presentation.AtTurn {
		return ""
	}
	c, ok := k.Candidate(patch.SelectedPlace)
	if !ok {
		c, ok = k.CandidateByName(patch.SelectedPlace)
	}
	if !ok || (c.PlaceID == intent.SelectedPlaceID && intent.SelectedAtTurn > k.Presentation.AtTurn) {
		return ""
	}
	intent.SelectedPlaceID = c.PlaceID
	intent.SelectedAtTurn = turnIdx
	return c.PlaceID
}

// Select records a selection parsed from the user turn at turnIdx.
func Select(k *statex.KnowledgeStore, placeID string, turnIdx int) bool {
	if k.Presentation == nil || turnIdx <= k.Presentation.AtTurn {
		return false
	}
	if k.Intent.SelectedPlaceID == placeID && k.Intent.SelectedAtTurn > k.Presentation.AtTurn {
		return false
	}
	k.Intent.SelectedPlaceID = placeID
	k.Intent.SelectedAtTurn = turnIdx
	return true
}

func nextHalfHour(t time.Time) time.Time {
	return t.Truncate(30 * time.Minute).Add(30 * time.Minute)
}

func fillString(args map[string]any, key, value string) {
	if contractx.ArgString(args, key) == "" && strings.TrimSpace(value) != "" {
		args[key] = strings.TrimSpace(value)
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

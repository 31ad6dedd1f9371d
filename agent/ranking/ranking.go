// Package ranking orders discovered candidates for presentation and parses
// the user's pick.
package ranking

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	datesx "github.com/tanpawarit/Chative-Reservation-Concierge/agent/dates"
	statex "github.com/tanpawarit/Chative-Reservation-Concierge/agent/state"
)

// MaxPresented caps the candidates shown at once.
const MaxPresented = 5

type Channel string

const (
	ChannelAPI        Channel = "api"
	ChannelPhone      Channel = "phone"
	ChannelUnbookable Channel = "unbookable"
)

// ChannelOf picks the booking channel a candidate supports.
func ChannelOf(c statex.RestaurantCandidate) Channel {
	switch {
	case c.HasBookingAPI:
		return ChannelAPI
	case c.HasPhone():
		return ChannelPhone
	default:
		return ChannelUnbookable
	}
}

type Entry struct {
	Candidate statex.RestaurantCandidate
	Channel   Channel
	Verdict   *statex.AvailabilityRecord
}

// Rank sorts by rating descending, keeping discovery order among ties, and
// returns at most MaxPresented entries. Verdicts are attached only when
// showVerdicts is set and the verdict did not come from a placeholder probe.
func Rank(candidates []statex.RestaurantCandidate, verdicts map[string]statex.AvailabilityRecord, showVerdicts bool) []Entry {
	sorted := append([]statex.RestaurantCandidate(nil), candidates...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Rating > sorted[j].Rating
	})
	if len(sorted) > MaxPresented {
		sorted = sorted[:MaxPresented]
	}

	out := make([]Entry, 0, len(sorted))
	for _, c := range sorted {
		e := Entry{Candidate: c, Channel: ChannelOf(c)}
		if rec, ok := verdicts[c.PlaceID]; ok && showVerdicts && !rec.Placeholder {
			rec := rec
			e.Verdict = &rec
		}
		out = append(out, e)
	}
	return out
}

// PlaceIDs lists the entries' place ids in order.
func PlaceIDs(entries []Entry) []string {
	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		ids = append(ids, e.Candidate.PlaceID)
	}
	return ids
}

// Present renders the entries as a numbered list followed by a prompt to pick one.
func Present(entries []Entry) string {
	if len(entries) == 0 {
		return "No he encontrado restaurantes que encajen con la búsqueda."
	}
	var b strings.Builder
	b.WriteString("Estas son las mejores opciones que he encontrado:\n")
	for i, e := range entries {
		c := e.Candidate
		fmt.Fprintf(&b, "%d. %s (%.1f★)", i+1, c.Name, c.Rating)
		if c.Address != "" {
			fmt.Fprintf(&b, ", %s", c.Address)
		}
		if c.TravelMinutes > 0 {
			fmt.Fprintf(&b, ", a %d min", c.TravelMinutes)
		}
		b.WriteString(" · ")
		b.WriteString(channelLabel(e.Channel))
		if e.Verdict != nil {
			b.WriteString(" · ")
			b.WriteString(verdictLabel(*e.Verdict))
		}
		b.WriteString("\n")
	}
	b.WriteString("¿Cuál prefieres?")
	return b.String()
}

func channelLabel(ch Channel) string {
	switch ch {
	case ChannelAPI:
		return "reserva online"
	case ChannelPhone:
		return "reserva por teléfono"
	default:
		return "sin canal de reserva"
	}
}

func verdictLabel(rec statex.AvailabilityRecord) string {
	switch rec.Verdict {
	case statex.VerdictAvailable:
		return fmt.Sprintf("libre a las %s", rec.Time)
	case statex.VerdictAlternativeSlotsOnly:
		if len(rec.AlternativeTimes) > 0 {
			return "otras horas: " + strings.Join(rec.AlternativeTimes, ", ")
		}
		return "sin hueco a esa hora"
	case statex.VerdictPhoneOnly:
		return "disponibilidad solo por teléfono"
	default:
		return ""
	}
}

var ordinals = map[string]int{
	"primero": 1, "primera": 1, "uno": 1, "first": 1, "one": 1,
	"segundo": 2, "segunda": 2, "dos": 2, "second": 2, "two": 2,
	"tercero": 3, "tercera": 3, "tres": 3, "third": 3, "three": 3,
	"cuarto": 4, "cuarta": 4, "cuatro": 4, "fourth": 4, "four": 4,
	"quinto": 5, "quinta": 5, "cinco": 5, "fifth": 5, "five": 5,
}

// ParseSelection resolves a user reply against the presented candidates,
// by position ("2", "el segundo") or by name. Bare positions ("2", "cuatro")
// count only when the reply answers the presentation itself (afterPrompt),
// since later questions such as the party size are answered the same way.
// It returns false when the reply names no presented candidate.
func ParseSelection(text string, presented []statex.RestaurantCandidate, afterPrompt bool) (statex.RestaurantCandidate, bool) {
	folded := datesx.Fold(text)
	if folded == "" || len(presented) == 0 {
		return statex.RestaurantCandidate{}, false
	}

	for _, c := range presented {
		name := datesx.Fold(c.Name)
		if name != "" && strings.Contains(folded, name) {
			return c, true
		}
	}

	words := strings.FieldsFunc(folded, func(r rune) bool { return r == ' ' || r == '.' || r == '#' })
	if !positional(words, afterPrompt) {
		return statex.RestaurantCandidate{}, false
	}
	for _, w := range words {
		idx, ok := ordinals[w]
		if !ok {
			n, err := strconv.Atoi(strings.TrimSuffix(strings.TrimSuffix(w, "o"), "º"))
			if err != nil {
				continue
			}
			idx = n
		}
		if idx >= 1 && idx <= len(presented) {
			return presented[idx-1], true
		}
	}
	return statex.RestaurantCandidate{}, false
}

var selectors = map[string]bool{
	"el": true, "la": true, "opcion": true, "numero": true, "quiero": true, "prefiero": true,
	"the": true, "option": true, "number": true,
}

// positional reports whether a short reply reads as a pick by position,
// so that "somos 4" is not mistaken for the fourth option.
func positional(words []string, afterPrompt bool) bool {
	if len(words) == 1 {
		return afterPrompt
	}
	if len(words) > 4 {
		return false
	}
	for _, w := range words {
		if selectors[w] {
			return true
		}
	}
	return false
}

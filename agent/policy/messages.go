package policy

import (
	"fmt"
	"strings"

	statex "github.com/tanpawarit/Chative-Reservation-Concierge/agent/state"
)

const (
	msgOutOfScope = "Solo puedo ayudarte a encontrar restaurantes y gestionar reservas. ¿Buscamos un sitio para comer o cenar?"
	msgFallback   = "¿Me cuentas qué restaurante buscas, dónde, qué día, a qué hora y para cuántas personas?"
)

var fieldLabels = map[string]string{
	statex.FieldLocation:  "la zona o ciudad",
	statex.FieldDate:      "el día",
	statex.FieldTime:      "la hora",
	statex.FieldNumPeople: "cuántas personas seréis",
}

// AskMissing builds the question for the missing intent fields.
func AskMissing(fields []string) string {
	labels := make([]string, 0, len(fields))
	for _, f := range fields {
		if l, ok := fieldLabels[f]; ok {
			labels = append(labels, l)
		} else {
			labels = append(labels, f)
		}
	}
	return "Para continuar necesito saber " + joinSpanish(labels) + "."
}

func joinSpanish(items []string) string {
	switch len(items) {
	case 0:
		return ""
	case 1:
		return items[0]
	default:
		return strings.Join(items[:len(items)-1], ", ") + " y " + items[len(items)-1]
	}
}

func offerCalendarMessage(b statex.BookingAttempt) string {
	how := "online"
	if b.Method == statex.MethodPhone {
		how = "por teléfono"
	}
	msg := fmt.Sprintf("¡Reserva confirmada %s en %s el %s a las %s para %d personas!", how, b.PlaceName, b.Date, b.SlotTime(), b.NumPeople)
	if b.ConfirmedTime != "" && b.ConfirmedTime != b.Time {
		msg += fmt.Sprintf(" Ojo: el restaurante la ha movido de las %s a las %s.", b.Time, b.ConfirmedTime)
	}
	return msg + " ¿Quieres que la añada a tu calendario?"
}

func calendarExistsMessage(m statex.CalendarMarker) string {
	return fmt.Sprintf("El evento ya está en tu calendario (id %s), no lo vuelvo a crear.", m.EventID)
}

func alreadyBookedMessage(b statex.BookingAttempt) string {
	return fmt.Sprintf("Ya tienes mesa confirmada en %s el %s a las %s para %d personas.", b.PlaceName, b.Date, b.SlotTime(), b.NumPeople)
}

func unbookableMessage(c statex.RestaurantCandidate) string {
	return fmt.Sprintf("%s no admite reservas online y no tengo su teléfono, así que no puedo reservar allí. ¿Quieres que pruebe con otro?", c.Name)
}

// PartialSummary reports what the session achieved when the automated flow
// has to stop.
func PartialSummary(k statex.KnowledgeStore, reason string) string {
	var b strings.Builder
	if reason == "" {
		reason = "No he podido completar la gestión."
	}
	b.WriteString(reason)

	if n := len(k.CandidatesFor(k.Intent.Location)); n > 0 {
		fmt.Fprintf(&b, " Tengo %d restaurantes localizados", n)
		if k.Intent.Location != "" {
			fmt.Fprintf(&b, " en %s", k.Intent.Location)
		}
		b.WriteString(".")
	}
	if c, ok := k.Candidate(k.Intent.SelectedPlaceID); ok {
		fmt.Fprintf(&b, " Elegiste %s", c.Name)
		if rec, ok := k.Verdict(c.PlaceID); ok && !rec.Placeholder {
			fmt.Fprintf(&b, " (%s el %s a las %s)", verdictText(rec.Verdict), rec.Date, rec.Time)
		}
		if c.HasPhone() {
			fmt.Fprintf(&b, "; puedes llamar al %s", c.Phone)
		}
		b.WriteString(".")
	}
	if last := lastFailure(k); last != nil {
		fmt.Fprintf(&b, " Último error: %s.", last.Error)
	}
	return b.String()
}

func verdictText(v statex.Verdict) string {
	switch v {
	case statex.VerdictAvailable:
		return "había hueco"
	case statex.VerdictAlternativeSlotsOnly:
		return "solo otras horas"
	default:
		return "solo por teléfono"
	}
}

func lastFailure(k statex.KnowledgeStore) *statex.Observation {
	for i := len(k.Observations) - 1; i >= 0; i-- {
		if o := k.Observations[i]; !o.OK && o.Error != "" {
			return &o
		}
	}
	return nil
}

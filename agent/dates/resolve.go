// Package dates turns the date and time phrases users type ("mañana",
// "este sábado", "2026-03-01", "a las 21:00") into concrete calendar values.
package dates

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const ISOLayout = "2006-01-02"

var (
	ErrUnrecognized = errors.New("unrecognized date phrase")
	ErrInvalidDate  = errors.New("invalid calendar date")
	ErrInvalidClock = errors.New("invalid clock time")
)

var weekdays = map[string]time.Weekday{
	"lunes": time.Monday, "martes": time.Tuesday, "miercoles": time.Wednesday,
	"jueves": time.Thursday, "viernes": time.Friday, "sabado": time.Saturday, "domingo": time.Sunday,
	"monday": time.Monday, "tuesday": time.Tuesday, "wednesday": time.Wednesday,
	"thursday": time.Thursday, "friday": time.Friday, "saturday": time.Saturday, "sunday": time.Sunday,
}

var months = map[string]time.Month{
	"enero": time.January, "febrero": time.February, "marzo": time.March, "abril": time.April,
	"mayo": time.May, "junio": time.June, "julio": time.July, "agosto": time.August,
	"septiembre": time.September, "setiembre": time.September, "octubre": time.October,
	"noviembre": time.November, "diciembre": time.December,
	"january": time.January, "february": time.February, "march": time.March, "april": time.April,
	"may": time.May, "june": time.June, "july": time.July, "august": time.August,
	"september": time.September, "october": time.October, "november": time.November, "december": time.December,
}

var (
	isoRe       = regexp.MustCompile(`\b(\d{4})-(\d{1,2})-(\d{1,2})\b`)
	slashRe     = regexp.MustCompile(`\b(\d{1,2})/(\d{1,2})/(\d{4})\b`)
	dayMonthRe  = regexp.MustCompile(`\b(\d{1,2}) de ([a-z]+)(?: de (\d{4}))?\b`)
	monthDayRe  = regexp.MustCompile(`\b([a-z]+) (\d{1,2})(?:st|nd|rd|th)?(?:,? (\d{4}))?\b`)
	morningRe   = regexp.MustCompile(`\b(?:por|de) la manana\b|\bin the morning\b`)
	clockRe     = regexp.MustCompile(`\b(\d{1,2})(?:[:.h](\d{2}))?\s*(am|pm|h|de la noche|de la tarde|de la manana|de la madrugada)?\b`)
	separatorRe = regexp.MustCompile(`[\s,;!?¿¡]+`)
)

// Fold lowercases s, strips accents and collapses whitespace.
func Fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}
	folded = separatorRe.ReplaceAllString(strings.ToLower(folded), " ")
	return strings.TrimSpace(folded)
}

// Resolve maps a relative or explicit date phrase to a date at midnight in
// reference's location. Weekday phrases ("este viernes", "next friday")
// resolve to the nearest occurrence strictly after the reference date.
// An explicit date anywhere in the phrase always wins.
func Resolve(phrase string, reference time.Time) (time.Time, error) {
	text := Fold(phrase)
	if text == "" {
		return time.Time{}, fmt.Errorf("%w: empty phrase", ErrUnrecognized)
	}
	loc := reference.Location()
	base := time.Date(reference.Year(), reference.Month(), reference.Day(), 0, 0, 0, 0, loc)

	if d, ok, err := explicitDate(text, base); ok || err != nil {
		return d, err
	}

	text = strings.TrimSpace(morningRe.ReplaceAllString(text, " "))
	words := strings.FieldsFunc(text, func(r rune) bool { return r == ' ' || r == '.' || r == ':' })
	has := func(w string) bool {
		for _, x := range words {
			if x == w {
				return true
			}
		}
		return false
	}

	switch {
	case strings.Contains(text, "pasado manana") || strings.Contains(text, "day after tomorrow"):
		return base.AddDate(0, 0, 2), nil
	case has("manana") || has("tomorrow"):
		return base.AddDate(0, 0, 1), nil
	}

	for _, w := range words {
		if wd, ok := weekdays[w]; ok {
			return nextWeekday(base, wd), nil
		}
	}

	switch {
	case has("hoy"), has("today"), has("tonight"), has("ahora"), has("now"),
		strings.Contains(text, "esta noche"), strings.Contains(text, "esta tarde"), strings.Contains(text, "este mediodia"):
		return base, nil
	}

	return time.Time{}, fmt.Errorf("%w: %q", ErrUnrecognized, phrase)
}

// ResolveISO is Resolve formatted as YYYY-MM-DD.
func ResolveISO(phrase string, reference time.Time) (string, error) {
	d, err := Resolve(phrase, reference)
	if err != nil {
		return "", err
	}
	return d.Format(ISOLayout), nil
}

// IsExplicit reports whether phrase carries a concrete calendar date.
func IsExplicit(phrase string) bool {
	_, ok, err := explicitDate(Fold(phrase), time.Now())
	return ok && err == nil
}

func nextWeekday(base time.Time, wd time.Weekday) time.Time {
	delta := (int(wd) - int(base.Weekday()) + 7) % 7
	if delta == 0 {
		delta = 7
	}
	return base.AddDate(0, 0, delta)
}

func explicitDate(text string, base time.Time) (time.Time, bool, error) {
	if m := isoRe.FindStringSubmatch(text); m != nil {
		d, err := build(base.Location(), atoi(m[1]), atoi(m[2]), atoi(m[3]))
		return d, true, err
	}
	if m := slashRe.FindStringSubmatch(text); m != nil {
		d, err := build(base.Location(), atoi(m[3]), atoi(m[2]), atoi(m[1]))
		return d, true, err
	}
	if m := dayMonthRe.FindStringSubmatch(text); m != nil {
		if month, ok := months[m[2]]; ok {
			d, err := withYear(base, atoi(m[1]), month, m[3])
			return d, true, err
		}
	}
	for _, m := range monthDayRe.FindAllStringSubmatch(text, -1) {
		if month, ok := months[m[1]]; ok {
			d, err := withYear(base, atoi(m[2]), month, m[3])
			return d, true, err
		}
	}
	return time.Time{}, false, nil
}

// withYear uses the given year or, when absent, the next occurrence of the
// day on or after base.
func withYear(base time.Time, day int, month time.Month, year string) (time.Time, error) {
	if year != "" {
		return build(base.Location(), atoi(year), int(month), day)
	}
	d, err := build(base.Location(), base.Year(), int(month), day)
	if err != nil {
		return d, err
	}
	if d.Before(base) {
		return build(base.Location(), base.Year()+1, int(month), day)
	}
	return d, nil
}

func build(loc *time.Location, year, month, day int) (time.Time, error) {
	d := time.Date(year, time.Month(month), day, 0, 0, 0, 0, loc)
	if d.Year() != year || int(d.Month()) != month || d.Day() != day {
		return time.Time{}, fmt.Errorf("%w: %04d-%02d-%02d", ErrInvalidDate, year, month, day)
	}
	return d, nil
}

// NormalizeClock maps "21:00", "21.30", "21h", "9pm", "a las 9 de la noche"
// to HH:MM.
func NormalizeClock(phrase string) (string, error) {
	matches := clockRe.FindAllStringSubmatch(Fold(phrase), -1)
	if len(matches) == 0 {
		return "", fmt.Errorf("%w: %q", ErrInvalidClock, phrase)
	}
	m := matches[0]
	for _, candidate := range matches {
		if candidate[2] != "" || candidate[3] != "" {
			m = candidate
			break
		}
	}
	hour, minute := atoi(m[1]), 0
	if m[2] != "" {
		minute = atoi(m[2])
	}
	switch m[3] {
	case "pm", "de la noche", "de la tarde":
		if hour < 12 {
			hour += 12
		}
	case "am", "de la manana", "de la madrugada":
		if hour == 12 {
			hour = 0
		}
	}
	if hour > 23 || minute > 59 {
		return "", fmt.Errorf("%w: %q", ErrInvalidClock, phrase)
	}
	return fmt.Sprintf("%02d:%02d", hour, minute), nil
}

// Combine joins an ISO date and an HH:MM clock in loc.
func Combine(date, clock string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	t, err := time.ParseInLocation(ISOLayout+" 15:04", date+" "+clock, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %s %s", ErrInvalidDate, date, clock)
	}
	return t, nil
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}

package dates

import (
	"errors"
	"testing"
	"time"
)

// Wednesday.
var reference = time.Date(2026, time.January, 21, 18, 45, 0, 0, time.UTC)

func TestResolveISO(t *testing.T) {
	t.Parallel()

	tests := []struct {
		phrase string
		want   string
	}{
		{"hoy", "2026-01-21"},
		{"esta noche", "2026-01-21"},
		{"today", "2026-01-21"},
		{"mañana", "2026-01-22"},
		{"Mañana a las 21:00 para 4", "2026-01-22"},
		{"mañana por la mañana", "2026-01-22"},
		{"hoy por la mañana", "2026-01-21"},
		{"pasado mañana", "2026-01-23"},
		{"tomorrow", "2026-01-22"},
		{"este sábado", "2026-01-24"},
		{"este viernes", "2026-01-23"},
		{"el próximo viernes.", "2026-01-23"},
		{"next friday", "2026-01-23"},
		{"este miércoles", "2026-01-28"},
		{"wednesday", "2026-01-28"},
		{"2026-03-01", "2026-03-01"},
		{"el 2026-03-01 mañana", "2026-03-01"},
		{"01/03/2026", "2026-03-01"},
		{"1 de marzo", "2026-03-01"},
		{"15 de enero", "2027-01-15"},
		{"1 de marzo de 2027", "2027-03-01"},
		{"March 1, 2026", "2026-03-01"},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.phrase, func(t *testing.T) {
			t.Parallel()
			got, err := ResolveISO(tc.phrase, reference)
			if err != nil {
				t.Fatalf("ResolveISO(%q) error = %v", tc.phrase, err)
			}
			if got != tc.want {
				t.Fatalf("ResolveISO(%q) = %s, want %s", tc.phrase, got, tc.want)
			}
		})
	}
}

func TestResolveIsIdempotentAndKeepsLocation(t *testing.T) {
	t.Parallel()

	madrid, err := time.LoadLocation("Europe/Madrid")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	ref := reference.In(madrid)

	first, err := Resolve("este sábado", ref)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	second, err := Resolve("este sábado", ref)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if !first.Equal(second) {
		t.Fatalf("Resolve() not idempotent: %v != %v", first, second)
	}
	if first.Location() != madrid {
		t.Fatalf("Resolve() location = %v, want %v", first.Location(), madrid)
	}
	if first.Hour() != 0 || first.Minute() != 0 {
		t.Fatalf("Resolve() = %v, want midnight", first)
	}
}

func TestResolveErrors(t *testing.T) {
	t.Parallel()

	if _, err := Resolve("   ", reference); !errors.Is(err, ErrUnrecognized) {
		t.Fatalf("Resolve(blank) error = %v, want ErrUnrecognized", err)
	}
	if _, err := Resolve("cuando puedas", reference); !errors.Is(err, ErrUnrecognized) {
		t.Fatalf("Resolve(vague) error = %v, want ErrUnrecognized", err)
	}
	if _, err := Resolve("2026-02-30", reference); !errors.Is(err, ErrInvalidDate) {
		t.Fatalf("Resolve(2026-02-30) error = %v, want ErrInvalidDate", err)
	}
}

func TestIsExplicit(t *testing.T) {
	t.Parallel()

	if !IsExplicit("2026-03-01") {
		t.Fatal("expected ISO date to be explicit")
	}
	if IsExplicit("mañana") {
		t.Fatal("expected relative phrase not to be explicit")
	}
}

func TestNormalizeClock(t *testing.T) {
	t.Parallel()

	tests := []struct {
		phrase string
		want   string
	}{
		{"21:00", "21:00"},
		{"21.30", "21:30"},
		{"21h", "21:00"},
		{"21h15", "21:15"},
		{"9pm", "21:00"},
		{"9:30 pm", "21:30"},
		{"a las 9 de la noche", "21:00"},
		{"para 4 a las 21:00", "21:00"},
		{"14", "14:00"},
	}
	for _, tc := range tests {
		got, err := NormalizeClock(tc.phrase)
		if err != nil {
			t.Fatalf("NormalizeClock(%q) error = %v", tc.phrase, err)
		}
		if got != tc.want {
			t.Fatalf("NormalizeClock(%q) = %s, want %s", tc.phrase, got, tc.want)
		}
	}

	if _, err := NormalizeClock("25:00"); !errors.Is(err, ErrInvalidClock) {
		t.Fatalf("NormalizeClock(25:00) error = %v, want ErrInvalidClock", err)
	}
	if _, err := NormalizeClock("tarde"); !errors.Is(err, ErrInvalidClock) {
		t.Fatalf("NormalizeClock(tarde) error = %v, want ErrInvalidClock", err)
	}
}

func TestCombine(t *testing.T) {
	t.Parallel()

	got, err := Combine("2026-01-22", "21:00", time.UTC)
	if err != nil {
		t.Fatalf("Combine() error = %v", err)
	}
	want := time.Date(2026, time.January, 22, 21, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("Combine() = %v, want %v", got, want)
	}
}

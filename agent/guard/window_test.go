package guard

import "testing"

func TestFingerprintIgnoresMapOrderAndNumericForm(t *testing.T) {
	t.Parallel()

	a := Fingerprint("make_booking", map[string]any{"place_name": "X", "date": "2026-01-15", "num_people": 4})
	b := Fingerprint("make_booking", map[string]any{"num_people": 4.0, "date": "2026-01-15", "place_name": "X"})
	if a != b {
		t.Fatalf("Fingerprint() mismatch: %s != %s", a, b)
	}

	c := Fingerprint("make_booking", map[string]any{"place_name": "X", "date": "2026-01-16", "num_people": 4})
	if a == c {
		t.Fatal("expected different fingerprint for different date")
	}
	if Fingerprint("phone_call", nil) == Fingerprint("make_booking", nil) {
		t.Fatal("expected name to be part of the fingerprint")
	}
}

func TestWindowRepeatsOnlyAfterTwoIdenticalEntries(t *testing.T) {
	t.Parallel()

	var w Window
	fp := Fingerprint("search_places", map[string]any{"location": "navalcarnero"})

	if w.Repeats("search_places", fp) {
		t.Fatal("empty window must not repeat")
	}
	w.Record("search_places", fp, true)
	if w.Repeats("search_places", fp) {
		t.Fatal("one entry must not repeat")
	}
	w.Record("search_places", fp, true)
	if !w.Repeats("search_places", fp) {
		t.Fatal("two identical entries must repeat")
	}
	if got := w.ConsecutiveFailures("search_places", fp); got != 2 {
		t.Fatalf("ConsecutiveFailures() = %d, want 2", got)
	}

	w.Record("check_availability", "other", false)
	if len(w.Entries) != WindowSize {
		t.Fatalf("window size = %d, want %d", len(w.Entries), WindowSize)
	}
	if w.Repeats("search_places", fp) {
		t.Fatal("window must roll over")
	}
	if got := w.ConsecutiveFailures("search_places", fp); got != 0 {
		t.Fatalf("ConsecutiveFailures() = %d, want 0", got)
	}
}

func TestWindowCloneIsIndependent(t *testing.T) {
	t.Parallel()

	var w Window
	w.Record("a", "1", false)
	clone := w.Clone()
	clone.Record("b", "2", true)
	if len(w.Entries) != 1 {
		t.Fatalf("original mutated: %#v", w.Entries)
	}
}

func TestBookingBudget(t *testing.T) {
	t.Parallel()

	if BookingBudget.Exhausted(2) {
		t.Fatal("2 attempts must not exhaust the budget")
	}
	if !BookingBudget.Exhausted(3) {
		t.Fatal("3 attempts must exhaust the budget")
	}
	if got := BookingBudget.Remaining(1); got != 2 {
		t.Fatalf("Remaining(1) = %d, want 2", got)
	}
}

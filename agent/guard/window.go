package guard

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
)

const (
	// WindowSize is the number of executed adapter actions remembered per session.
	WindowSize = 2
	// MaxAPIBookingAttempts caps identical make_booking retries before the phone fallback.
	MaxAPIBookingAttempts = 3
)

// Entry is one executed adapter action.
type Entry struct {
	Name        string `json:"name"`
	Fingerprint string `json:"fingerprint"`
	Failed      bool   `json:"failed,omitempty"`
}

// Window is the rolling anti-loop window of a session.
// The zero value is ready to use.
type Window struct {
	Entries []Entry `json:"entries,omitempty"`
}

// Fingerprint hashes an action name and its arguments.
// encoding/json sorts map keys, so equal argument maps hash equally.
func Fingerprint(name string, args map[string]any) string {
	raw, err := json.Marshal(args)
	if err != nil {
		raw = []byte("unencodable")
	}
	sum := sha256.Sum256(append([]byte(strings.TrimSpace(name)+"|"), raw...))
	return hex.EncodeToString(sum[:8])
}

// Repeats reports whether (name, fingerprint) equals both remembered entries.
func (w Window) Repeats(name, fingerprint string) bool {
	if len(w.Entries) < WindowSize {
		return false
	}
	for _, e := range w.Entries {
		if e.Name != name || e.Fingerprint != fingerprint {
			return false
		}
	}
	return true
}

// ConsecutiveFailures counts trailing failed entries identical to (name, fingerprint).
func (w Window) ConsecutiveFailures(name, fingerprint string) int {
	n := 0
	for i := len(w.Entries) - 1; i >= 0; i-- {
		e := w.Entries[i]
		if e.Name != name || e.Fingerprint != fingerprint || !e.Failed {
			break
		}
		n++
	}
	return n
}

// Record appends an executed action and drops entries beyond WindowSize.
func (w *Window) Record(name, fingerprint string, failed bool) {
	w.Entries = append(w.Entries, Entry{Name: name, Fingerprint: fingerprint, Failed: failed})
	if over := len(w.Entries) - WindowSize; over > 0 {
		w.Entries = append([]Entry(nil), w.Entries[over:]...)
	}
}

func (w Window) Clone() Window {
	if len(w.Entries) == 0 {
		return Window{}
	}
	return Window{Entries: append([]Entry(nil), w.Entries...)}
}

// Budget is a retry allowance.
type Budget struct {
	Max int
}

func (b Budget) Exhausted(attempts int) bool {
	return b.Max > 0 && attempts >= b.Max
}

func (b Budget) Remaining(attempts int) int {
	if b.Max <= 0 {
		return 0
	}
	if left := b.Max - attempts; left > 0 {
		return left
	}
	return 0
}

// BookingBudget is the API booking allowance per booking key.
var BookingBudget = Budget{Max: MaxAPIBookingAttempts}

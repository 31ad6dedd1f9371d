package tool

import (
	"testing"

	contractx "github.com/tanpawarit/Chative-Reservation-Concierge/agent/contract"
)

func TestInfosCoverEveryCapability(t *testing.T) {
	t.Parallel()

	infos := Infos()
	if len(infos) != len(contractx.Capabilities) {
		t.Fatalf("expected %d tool infos, got %d", len(contractx.Capabilities), len(infos))
	}
	for i, c := range contractx.Capabilities {
		if infos[i].Name != string(c) {
			t.Fatalf("tool %d: expected %s, got %s", i, c, infos[i].Name)
		}
		if infos[i].ParamsOneOf == nil {
			t.Fatalf("tool %s has no parameters", c)
		}
	}
}

func TestInfosHaveDescriptions(t *testing.T) {
	t.Parallel()

	seen := map[string]bool{}
	for _, info := range Infos() {
		if info.Desc == "" {
			t.Fatalf("tool %s has no description", info.Name)
		}
		if seen[info.Name] {
			t.Fatalf("duplicate tool %s", info.Name)
		}
		seen[info.Name] = true
	}
}

package orchestratornode

import (
	"fmt"

	"github.com/rs/zerolog/log"

	contractx "github.com/tanpawarit/Chative-Reservation-Concierge/agent/contract"
	policyx "github.com/tanpawarit/Chative-Reservation-Concierge/agent/policy"
	rankingx "github.com/tanpawarit/Chative-Reservation-Concierge/agent/ranking"
	statex "github.com/tanpawarit/Chative-Reservation-Concierge/agent/state"
)

// SyncSelection records a pick ("la 2", "Casa Pepe") the user made in
// reply to the latest presentation.
func SyncSelection(in *StepState) (*StepState, error) {
	if in == nil || in.Session == nil {
		return nil, fmt.Errorf("%w: graph state is nil", contractx.ErrValidation)
	}

	k := &in.Session.Knowledge
	if k.Presentation == nil {
		return in, nil
	}
	idx, turn := in.Session.LastUserTurn()
	if idx <= k.Presentation.AtTurn {
		return in, nil
	}

	presented := make([]statex.RestaurantCandidate, 0, len(k.Presentation.PlaceIDs))
	for _, id := range k.Presentation.PlaceIDs {
		if c, ok := k.Candidate(id); ok {
			presented = append(presented, c)
		}
	}
	afterPrompt := prevAgentTurn(in.Session, idx) == k.Presentation.AtTurn
	c, ok := rankingx.ParseSelection(turn.Text, presented, afterPrompt)
	if !ok {
		return in, nil
	}
	if policyx.Select(k, c.PlaceID, idx) {
		invalidated := k.InvalidatePending(c.PlaceID, in.Now)
		log.Debug().
			Str("session_id", in.Session.SessionID).
			Str("place_id", c.PlaceID).
			Strs("invalidated", invalidated).
			Msg("user selected candidate")
	}
	return in, nil
}

// prevAgentTurn returns the index of the last agent turn before idx, or -1.
func prevAgentTurn(sess *statex.Session, idx int) int {
	for i := idx - 1; i >= 0; i-- {
		if sess.Conversation[i].Speaker == statex.SpeakerAgent {
			return i
		}
	}
	return -1
}

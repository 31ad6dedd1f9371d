package orchestratornode

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	contractx "github.com/tanpawarit/Chative-Reservation-Concierge/agent/contract"
	policyx "github.com/tanpawarit/Chative-Reservation-Concierge/agent/policy"
	statex "github.com/tanpawarit/Chative-Reservation-Concierge/agent/state"
)

// ProposeAction asks the decision function for the next action. A failing
// decision function degrades to the default ask-user action.
func ProposeAction(
	ctx context.Context,
	in *StepState,
	decider contractx.DecisionFunction,
) (*StepState, error) {
	if in == nil || in.Session == nil {
		return nil, fmt.Errorf("%w: graph state is nil", contractx.ErrValidation)
	}

	action, err := propose(ctx, in, decider, "")
	if err != nil {
		log.Warn().Err(err).Str("session_id", in.Session.SessionID).Msg("decision function failed")
		action = policyx.DefaultAction(in.Session.Knowledge)
	}
	in.Proposed = action
	return in, nil
}

func propose(
	ctx context.Context,
	st *StepState,
	decider contractx.DecisionFunction,
	correction string,
) (contractx.Action, error) {
	if decider == nil {
		return contractx.Action{}, fmt.Errorf("%w: decision function", contractx.ErrNotConfigured)
	}

	req := contractx.DecisionRequest{
		Conversation: append([]statex.Turn(nil), st.Session.Conversation...),
		Knowledge:    st.Session.Knowledge.Clone(),
		Correction:   correction,
		Now:          st.Now,
	}
	if st.LastObservation != nil {
		obs := st.LastObservation.Clone()
		req.LastObservation = &obs
	}
	return decider.Propose(ctx, req)
}

package orchestratornode

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	contractx "github.com/tanpawarit/Chative-Reservation-Concierge/agent/contract"
	policyx "github.com/tanpawarit/Chative-Reservation-Concierge/agent/policy"
)

// maxPolicyRounds bounds how many replacements are chained in one step.
const maxPolicyRounds = 6

// EnforcePolicy turns the proposed action into the action that runs. Rejected
// actions are replaced deterministically, or corrected by one more round with
// the decision function; violations are logged and never shown to the user.
func EnforcePolicy(
	ctx context.Context,
	in *StepState,
	engine *policyx.Engine,
	decider contractx.DecisionFunction,
) (*StepState, error) {
	if in == nil || in.Session == nil {
		return nil, fmt.Errorf("%w: graph state is nil", contractx.ErrValidation)
	}
	if engine == nil {
		return nil, fmt.Errorf("%w: policy engine is nil", contractx.ErrValidation)
	}

	sess := in.Session
	turnIdx, _ := sess.LastUserTurn()
	applyIntent(in, engine, in.Proposed, turnIdx)

	action := in.Proposed
	corrected := false
	for round := 0; ; round++ {
		action = engine.Normalize(sess, action, in.Now)
		v := engine.Check(sess, action)
		if v == nil {
			break
		}

		in.Violations = append(in.Violations, v.Rule)
		log.Debug().
			Str("session_id", sess.SessionID).
			Str("rule", v.Rule).
			Str("reason", v.Reason).
			Str("action", action.String()).
			Msg("policy rejected action")

		if round >= maxPolicyRounds {
			action = policyx.DefaultAction(sess.Knowledge)
			break
		}

		switch {
		case v.Replacement != nil:
			action = *v.Replacement
		case v.Correction != "" && !corrected:
			corrected = true
			next, err := propose(ctx, in, decider, v.Correction)
			if err != nil {
				log.Warn().Err(err).Str("session_id", sess.SessionID).Msg("correction round failed")
				action = fallback(v, in)
				continue
			}
			applyIntent(in, engine, next, turnIdx)
			action = next
		default:
			action = fallback(v, in)
		}
	}

	in.Action = action
	return in, nil
}

func fallback(v *policyx.Violation, st *StepState) contractx.Action {
	if v.Fallback != nil {
		return *v.Fallback
	}
	return policyx.DefaultAction(st.Session.Knowledge)
}

// applyIntent merges the action's intent patch. Changing the selected
// candidate invalidates pending bookings for the abandoned one.
func applyIntent(st *StepState, engine *policyx.Engine, a contractx.Action, turnIdx int) {
	if a.Intent.Empty() {
		return
	}
	k := &st.Session.Knowledge
	before := k.Intent.SelectedPlaceID
	engine.ApplyIntent(k, a.Intent, turnIdx, st.Now)
	if after := k.Intent.SelectedPlaceID; after != before {
		k.InvalidatePending(after, st.Now)
	}
}

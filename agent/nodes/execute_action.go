package orchestratornode

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	contractx "github.com/tanpawarit/Chative-Reservation-Concierge/agent/contract"
	statex "github.com/tanpawarit/Chative-Reservation-Concierge/agent/state"
)

// ExecuteAction runs the enforced action. Messages go to the user; invokes
// go through the gateway, which reports adapter failures as observations.
func ExecuteAction(
	ctx context.Context,
	in *StepState,
	gateway contractx.ToolGateway,
) (*StepState, error) {
	if in == nil || in.Session == nil {
		return nil, fmt.Errorf("%w: graph state is nil", contractx.ErrValidation)
	}

	a := in.Action
	if !a.IsInvoke() {
		in.UserMessage = a.Message
		return in, nil
	}
	if gateway == nil {
		return nil, fmt.Errorf("%w: tool gateway", contractx.ErrNotConfigured)
	}

	obs := gateway.Execute(ctx, a, targetsOf(in.Session.Knowledge, a))
	if obs.Capability == "" {
		obs.Capability = string(a.Capability)
	}
	if obs.Args == nil {
		obs.Args = a.Clone().Args
	}
	if obs.At.IsZero() {
		obs.At = in.Now
	}
	if obs.Failed() {
		log.Warn().
			Str("session_id", in.Session.SessionID).
			Str("capability", obs.Capability).
			Str("error_kind", string(obs.ErrorKind)).
			Str("error", obs.Error).
			Msg("adapter action failed")
	}

	in.Observation = &obs
	return in, nil
}

// targetsOf returns the known candidates an invoke refers to.
func targetsOf(k statex.KnowledgeStore, a contractx.Action) []statex.RestaurantCandidate {
	var out []statex.RestaurantCandidate
	for _, id := range contractx.ArgStrings(a.Args, contractx.ArgPlaceIDs) {
		if c, ok := k.Candidate(id); ok {
			out = append(out, c)
		}
	}
	if id := a.ArgString(contractx.ArgPlaceID); id != "" {
		if c, ok := k.Candidate(id); ok {
			out = append(out, c)
		}
	}
	return out
}

package orchestratornode

import (
	"context"
	"errors"
	"fmt"

	contractx "github.com/tanpawarit/Chative-Reservation-Concierge/agent/contract"
	statex "github.com/tanpawarit/Chative-Reservation-Concierge/agent/state"
)

// LoadOrCreateState loads the session and appends the user turn.
func LoadOrCreateState(
	ctx context.Context,
	in *MessageState,
	store statex.Store,
) (*MessageState, error) {
	if in == nil {
		return nil, fmt.Errorf("%w: graph state is nil", contractx.ErrValidation)
	}

	st, err := store.Load(ctx, in.SessionID)
	switch {
	case err == nil:
	case errors.Is(err, statex.ErrStateNotFound):
		st = statex.NewSession(in.SessionID, in.Now)
	default:
		return nil, err
	}

	st.AppendTurn(statex.SpeakerUser, in.Text, in.Now)
	in.Session = st
	return in, nil
}

package orchestratornode

import (
	"context"
	"fmt"

	contractx "github.com/tanpawarit/Chative-Reservation-Concierge/agent/contract"
	statex "github.com/tanpawarit/Chative-Reservation-Concierge/agent/state"
)

func ValidateAndSaveState(
	ctx context.Context,
	in *MessageState,
	store statex.Store,
) (*MessageState, error) {
	if in == nil || in.Session == nil {
		return nil, fmt.Errorf("%w: graph session is nil", contractx.ErrValidation)
	}

	in.Session.Touch(in.Now)
	if err := in.Session.Validate(); err != nil {
		return nil, fmt.Errorf("state validation failed: %w", err)
	}
	if err := store.Save(ctx, in.Session); err != nil {
		return nil, err
	}

	return in, nil
}

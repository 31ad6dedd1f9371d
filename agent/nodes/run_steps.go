package orchestratornode

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	contractx "github.com/tanpawarit/Chative-Reservation-Concierge/agent/contract"
	policyx "github.com/tanpawarit/Chative-Reservation-Concierge/agent/policy"
	statex "github.com/tanpawarit/Chative-Reservation-Concierge/agent/state"
)

// StepFunc runs one ReAct step.
type StepFunc func(ctx context.Context, in StepInput) (StepOutput, error)

const msgStepLimit = "He alcanzado el límite de pasos para este mensaje."

// RunSteps steps the session until an action addresses the user. When
// maxSteps is reached first, the user gets a summary of partial progress.
func RunSteps(
	ctx context.Context,
	in *MessageState,
	step StepFunc,
	maxSteps int,
	nowFn func() time.Time,
) (*MessageState, error) {
	if in == nil || in.Session == nil {
		return nil, fmt.Errorf("%w: graph session is nil", contractx.ErrValidation)
	}

	sess := in.Session
	for i := 0; i < maxSteps; i++ {
		out, err := step(ctx, StepInput{Session: sess, LastObservation: sess.LastObservation})
		if err != nil {
			return nil, fmt.Errorf("step %d: %w", i+1, err)
		}
		in.Steps = append(in.Steps, out)
		in.Events = append(in.Events, out.Events...)
		sess = out.Session

		if out.UserMessage != "" {
			in.Session = sess
			in.Reply = out.UserMessage
			return in, nil
		}
	}

	log.Warn().Str("session_id", sess.SessionID).Int("max_steps", maxSteps).Msg("step limit reached")
	in.Reply = policyx.PartialSummary(sess.Knowledge, msgStepLimit)
	sess.AppendTurn(statex.SpeakerAgent, in.Reply, nowFn())
	in.Session = sess
	return in, nil
}

// PublishEvents notifies the sink about committed bookings and calendar
// events. Publish failures are logged and do not fail the turn.
func PublishEvents(
	ctx context.Context,
	in *MessageState,
	sink contractx.EventSink,
) (*MessageState, error) {
	if in == nil {
		return nil, fmt.Errorf("%w: graph state is nil", contractx.ErrValidation)
	}
	if sink == nil {
		return in, nil
	}

	for _, ev := range in.Events {
		if err := sink.Publish(ctx, ev); err != nil {
			log.Warn().Err(err).Str("session_id", ev.SessionID).Str("event", ev.Type).Msg("publish event failed")
		}
	}
	return in, nil
}

package orchestratornode

import (
	"fmt"
	"strings"

	contractx "github.com/tanpawarit/Chative-Reservation-Concierge/agent/contract"
)

func FinalizeReply(in *MessageState) (MessageOutput, error) {
	if in == nil {
		return MessageOutput{}, fmt.Errorf("%w: graph state is nil", contractx.ErrValidation)
	}

	reply := strings.TrimSpace(in.Reply)
	if reply == "" {
		return MessageOutput{}, fmt.Errorf("%w: step loop produced no reply", contractx.ErrValidation)
	}
	return MessageOutput{Reply: reply, Steps: len(in.Steps)}, nil
}

func FinalizeStep(in *StepState) (StepOutput, error) {
	if in == nil || in.Session == nil {
		return StepOutput{}, fmt.Errorf("%w: graph state is incomplete", contractx.ErrValidation)
	}
	if in.UserMessage == "" && in.Observation == nil {
		return StepOutput{}, fmt.Errorf("%w: step produced neither a message nor an observation", contractx.ErrValidation)
	}

	in.Session.Touch(in.Now)
	return StepOutput{
		Action:      in.Action,
		Session:     in.Session,
		UserMessage: in.UserMessage,
		Observation: in.Observation,
		Violations:  in.Violations,
		Events:      in.Events,
	}, nil
}

package orchestratornode

import (
	"errors"
	"fmt"
	"strings"
	"time"

	contractx "github.com/tanpawarit/Chative-Reservation-Concierge/agent/contract"
	statex "github.com/tanpawarit/Chative-Reservation-Concierge/agent/state"
)

var (
	ErrInvalidMessage = errors.New("message is empty")
	ErrInvalidSession = errors.New("session id is empty")
)

// StepInput is the input of one ReAct step.
type StepInput struct {
	Session         *statex.Session
	LastObservation *statex.Observation
}

// StepOutput is the result of one ReAct step: exactly one action, the
// updated session, and either a user message or an observation.
type StepOutput struct {
	Action      contractx.Action
	Session     *statex.Session
	UserMessage string
	Observation *statex.Observation
	Violations  []string
	Events      []contractx.Event
}

type StepState struct {
	Now             time.Time
	Session         *statex.Session
	LastObservation *statex.Observation

	Proposed   contractx.Action
	Action     contractx.Action
	Violations []string

	Observation *statex.Observation
	UserMessage string
	Events      []contractx.Event
}

// ValidateRequest clones the input session so the step never mutates it.
func ValidateRequest(in StepInput, nowFn func() time.Time) (*StepState, error) {
	if in.Session == nil {
		return nil, fmt.Errorf("%w: session is nil", contractx.ErrValidation)
	}
	if strings.TrimSpace(in.Session.SessionID) == "" {
		return nil, ErrInvalidSession
	}

	st := &StepState{
		Now:     nowFn().UTC(),
		Session: in.Session.Clone(),
	}
	if in.LastObservation != nil {
		obs := in.LastObservation.Clone()
		st.LastObservation = &obs
	} else {
		st.LastObservation = st.Session.LastObservation
	}
	return st, nil
}

// MessageInput is one user message for a session.
type MessageInput struct {
	SessionID string
	Text      string
}

type MessageOutput struct {
	Reply string
	Steps int
}

type MessageState struct {
	SessionID string
	Text      string
	Now       time.Time

	Session *statex.Session
	Steps   []StepOutput
	Events  []contractx.Event
	Reply   string
}

func ValidateMessage(in MessageInput, nowFn func() time.Time) (*MessageState, error) {
	sessionID := strings.TrimSpace(in.SessionID)
	if sessionID == "" {
		return nil, ErrInvalidSession
	}

	text := strings.TrimSpace(in.Text)
	if text == "" {
		return nil, ErrInvalidMessage
	}

	return &MessageState{
		SessionID: sessionID,
		Text:      text,
		Now:       nowFn().UTC(),
	}, nil
}

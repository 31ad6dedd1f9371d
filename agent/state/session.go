package state

import (
	"errors"
	"fmt"
	"strings"
	"time"

	guardx "github.com/tanpawarit/Chative-Reservation-Concierge/agent/guard"
)

var (
	ErrTurnOrder       = errors.New("conversation turns out of order")
	ErrUnknownSelected = errors.New("selected candidate is not in knowledge")
)

// Session is the persistent state of one conversation.
type Session struct {
	SessionID       string         `json:"session_id"`
	Conversation    []Turn         `json:"conversation,omitempty"`
	Knowledge       KnowledgeStore `json:"knowledge"`
	Guard           guardx.Window  `json:"guard"`
	LastObservation *Observation   `json:"last_observation,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
}

func NewSession(sessionID string, now time.Time) *Session {
	return &Session{
		SessionID: sessionID,
		CreatedAt: now.UTC(),
		UpdatedAt: now.UTC(),
	}
}

func (s *Session) Touch(now time.Time) {
	s.UpdatedAt = now.UTC()
}

// AppendTurn appends a turn and returns its index.
func (s *Session) AppendTurn(speaker Speaker, text string, now time.Time) int {
	s.Conversation = append(s.Conversation, Turn{Speaker: speaker, Text: text, At: now.UTC()})
	s.Touch(now)
	return len(s.Conversation) - 1
}

// LastUserTurn returns the index of the latest user turn, or -1.
func (s *Session) LastUserTurn() (int, Turn) {
	if s == nil {
		return -1, Turn{}
	}
	for i := len(s.Conversation) - 1; i >= 0; i-- {
		if s.Conversation[i].Speaker == SpeakerUser {
			return i, s.Conversation[i]
		}
	}
	return -1, Turn{}
}

// Clone deep-copies the session so a step never mutates its input.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	out := *s
	out.Conversation = append([]Turn(nil), s.Conversation...)
	out.Knowledge = s.Knowledge.Clone()
	out.Guard = s.Guard.Clone()
	if s.LastObservation != nil {
		obs := s.LastObservation.Clone()
		out.LastObservation = &obs
	}
	return &out
}

func (s *Session) Validate() error {
	if s == nil {
		return ErrNilSessionState
	}
	if strings.TrimSpace(s.SessionID) == "" {
		return ErrInvalidSession
	}
	for i := 1; i < len(s.Conversation); i++ {
		if s.Conversation[i].At.Before(s.Conversation[i-1].At) {
			return fmt.Errorf("%w: turn %d", ErrTurnOrder, i)
		}
	}
	if id := s.Knowledge.Intent.SelectedPlaceID; id != "" {
		if _, ok := s.Knowledge.Candidate(id); !ok {
			return fmt.Errorf("%w: %s", ErrUnknownSelected, id)
		}
	}
	for key, m := range s.Knowledge.Calendar {
		if m.Created && m.EventID == "" {
			return fmt.Errorf("calendar marker %s created without event id", key)
		}
	}
	return nil
}

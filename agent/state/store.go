package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrStateNotFound      = errors.New("session state not found")
	ErrNilSessionState    = errors.New("session state is nil")
	ErrInvalidSession     = errors.New("session id is empty")
	ErrUnsupportedVersion = errors.New("session payload version is not supported")
)

// payloadVersion is bumped whenever a stored field changes meaning.
const payloadVersion = 1

// Store is the persistence contract used by the orchestrator.
type Store interface {
	Load(ctx context.Context, sessionID string) (*Session, error)
	Save(ctx context.Context, st *Session) error
	Delete(ctx context.Context, sessionID string) error
}

type sessionEnvelope struct {
	Version int             `json:"v"`
	Session json.RawMessage `json:"session"`
}

// encodeSession validates st, stamps UpdatedAt and wraps it in a versioned
// envelope. Every backend stores this payload.
func encodeSession(st *Session) ([]byte, error) {
	if st == nil {
		return nil, ErrNilSessionState
	}
	if strings.TrimSpace(st.SessionID) == "" {
		return nil, ErrInvalidSession
	}
	if st.UpdatedAt.IsZero() {
		st.UpdatedAt = time.Now().UTC()
	} else {
		st.UpdatedAt = st.UpdatedAt.UTC()
	}
	if err := st.Validate(); err != nil {
		return nil, fmt.Errorf("refusing to save invalid session: %w", err)
	}

	body, err := json.Marshal(st)
	if err != nil {
		return nil, fmt.Errorf("marshal session: %w", err)
	}
	payload, err := json.Marshal(sessionEnvelope{Version: payloadVersion, Session: body})
	if err != nil {
		return nil, fmt.Errorf("marshal session envelope: %w", err)
	}
	return payload, nil
}

// decodeSession accepts enveloped payloads and bare session objects written
// before the envelope existed.
func decodeSession(payload []byte) (*Session, error) {
	var env sessionEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil, fmt.Errorf("unmarshal session: %w", err)
	}

	body := []byte(env.Session)
	switch {
	case env.Version > payloadVersion:
		return nil, fmt.Errorf("%w: v%d", ErrUnsupportedVersion, env.Version)
	case env.Version == 0 && len(env.Session) == 0:
		body = payload
	}

	var st Session
	if err := json.Unmarshal(body, &st); err != nil {
		return nil, fmt.Errorf("unmarshal session: %w", err)
	}
	if err := st.Validate(); err != nil {
		return nil, fmt.Errorf("invalid session loaded from store: %w", err)
	}
	return &st, nil
}

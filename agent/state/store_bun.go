package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/uptrace/bun"
)

type sessionRow struct {
	bun.BaseModel `bun:"table:concierge_sessions,alias:cs"`

	SessionID string    `bun:"session_id,pk"`
	Payload   string    `bun:"payload,notnull"`
	UpdatedAt time.Time `bun:"updated_at,notnull"`
}

// BunStore persists sessions as JSON rows through bun (postgres or sqlite).
type BunStore struct {
	db *bun.DB
}

func NewBunStore(db *bun.DB) (*BunStore, error) {
	if db == nil {
		return nil, errors.New("bun db is required")
	}
	return &BunStore{db: db}, nil
}

// CreateSchema creates the sessions table when it does not exist.
func (s *BunStore) CreateSchema(ctx context.Context) error {
	_, err := s.db.NewCreateTable().Model((*sessionRow)(nil)).IfNotExists().Exec(ctx)
	if err != nil {
		return fmt.Errorf("create sessions table: %w", err)
	}
	return nil
}

func (s *BunStore) Load(ctx context.Context, sessionID string) (*Session, error) {
	if strings.TrimSpace(sessionID) == "" {
		return nil, ErrInvalidSession
	}
	row := new(sessionRow)
	err := s.db.NewSelect().Model(row).Where("session_id = ?", sessionID).Limit(1).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrStateNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select session: %w", err)
	}
	return decodeSession([]byte(row.Payload))
}

func (s *BunStore) Save(ctx context.Context, st *Session) error {
	payload, err := encodeSession(st)
	if err != nil {
		return err
	}
	row := &sessionRow{SessionID: st.SessionID, Payload: string(payload), UpdatedAt: st.UpdatedAt}
	_, err = s.db.NewInsert().
		Model(row).
		On("CONFLICT (session_id) DO UPDATE").
		Set("payload = EXCLUDED.payload").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("upsert session: %w", err)
	}
	return nil
}

func (s *BunStore) Delete(ctx context.Context, sessionID string) error {
	if strings.TrimSpace(sessionID) == "" {
		return ErrInvalidSession
	}
	_, err := s.db.NewDelete().Model((*sessionRow)(nil)).Where("session_id = ?", sessionID).Exec(ctx)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

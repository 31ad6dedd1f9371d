package calendar

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

var (
	ErrEventNotFound = errors.New("calendar event not found")
	ErrInvalidEvent  = errors.New("invalid calendar event")
)

type Event struct {
	bun.BaseModel `bun:"table:calendar_events,alias:ce"`

	ID          string    `bun:"id,pk"`
	Summary     string    `bun:"summary,notnull"`
	StartsAt    time.Time `bun:"starts_at,notnull"`
	EndsAt      time.Time `bun:"ends_at,notnull"`
	Timezone    string    `bun:"timezone,notnull"`
	Location    string    `bun:"location"`
	Description string    `bun:"description"`
	CreatedAt   time.Time `bun:"created_at,notnull"`
	UpdatedAt   time.Time `bun:"updated_at,notnull"`
}

type Query struct {
	Text string
	From time.Time
	To   time.Time
}

type Patch struct {
	Summary     *string
	StartsAt    *time.Time
	EndsAt      *time.Time
	Location    *string
	Description *string
}

// Store keeps calendar events in a SQL table through bun. Times are stored
// in UTC and returned in the event's own timezone.
type Store struct {
	db  *bun.DB
	now func() time.Time
}

type Option func(*Store)

func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

func NewStore(db *bun.DB, opts ...Option) (*Store, error) {
	if db == nil {
		return nil, errors.New("bun db is required")
	}
	s := &Store{db: db, now: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s, nil
}

func (s *Store) CreateSchema(ctx context.Context) error {
	if _, err := s.db.NewCreateTable().Model((*Event)(nil)).IfNotExists().Exec(ctx); err != nil {
		return fmt.Errorf("create calendar table: %w", err)
	}
	return nil
}

func (s *Store) Create(ctx context.Context, ev Event) (Event, error) {
	if strings.TrimSpace(ev.Summary) == "" {
		return Event{}, fmt.Errorf("%w: summary is required", ErrInvalidEvent)
	}
	if ev.StartsAt.IsZero() || !ev.EndsAt.After(ev.StartsAt) {
		return Event{}, fmt.Errorf("%w: end must be after start", ErrInvalidEvent)
	}
	if _, err := time.LoadLocation(ev.Timezone); err != nil || ev.Timezone == "" {
		return Event{}, fmt.Errorf("%w: unknown timezone %q", ErrInvalidEvent, ev.Timezone)
	}

	now := s.now().UTC()
	ev.ID = uuid.NewString()
	ev.StartsAt = ev.StartsAt.UTC()
	ev.EndsAt = ev.EndsAt.UTC()
	ev.CreatedAt = now
	ev.UpdatedAt = now
	if _, err := s.db.NewInsert().Model(&ev).Exec(ctx); err != nil {
		return Event{}, fmt.Errorf("insert calendar event: %w", err)
	}
	return localize(ev), nil
}

func (s *Store) Get(ctx context.Context, id string) (Event, error) {
	ev := new(Event)
	err := s.db.NewSelect().Model(ev).Where("id = ?", strings.TrimSpace(id)).Limit(1).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return Event{}, fmt.Errorf("%w: %s", ErrEventNotFound, id)
	}
	if err != nil {
		return Event{}, fmt.Errorf("select calendar event: %w", err)
	}
	return localize(*ev), nil
}

// Search matches the text against summary, location and description, and
// keeps events starting inside [From, To) when those bounds are set.
func (s *Store) Search(ctx context.Context, q Query) ([]Event, error) {
	var events []Event
	sel := s.db.NewSelect().Model(&events).Order("starts_at ASC")
	if text := strings.ToLower(strings.TrimSpace(q.Text)); text != "" {
		pattern := "%" + text + "%"
		sel = sel.WhereGroup(" AND ", func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Where("LOWER(summary) LIKE ?", pattern).
				WhereOr("LOWER(location) LIKE ?", pattern).
				WhereOr("LOWER(description) LIKE ?", pattern)
		})
	}
	if !q.From.IsZero() {
		sel = sel.Where("starts_at >= ?", q.From.UTC())
	}
	if !q.To.IsZero() {
		sel = sel.Where("starts_at < ?", q.To.UTC())
	}
	if err := sel.Scan(ctx); err != nil {
		return nil, fmt.Errorf("search calendar events: %w", err)
	}
	for i := range events {
		events[i] = localize(events[i])
	}
	return events, nil
}

func (s *Store) Update(ctx context.Context, id string, patch Patch) (Event, error) {
	ev, err := s.Get(ctx, id)
	if err != nil {
		return Event{}, err
	}
	if patch.Summary != nil {
		ev.Summary = strings.TrimSpace(*patch.Summary)
	}
	if patch.StartsAt != nil {
		ev.StartsAt = *patch.StartsAt
	}
	if patch.EndsAt != nil {
		ev.EndsAt = *patch.EndsAt
	}
	if patch.Location != nil {
		ev.Location = *patch.Location
	}
	if patch.Description != nil {
		ev.Description = *patch.Description
	}
	if ev.Summary == "" || !ev.EndsAt.After(ev.StartsAt) {
		return Event{}, fmt.Errorf("%w: patch leaves event inconsistent", ErrInvalidEvent)
	}

	ev.StartsAt = ev.StartsAt.UTC()
	ev.EndsAt = ev.EndsAt.UTC()
	ev.CreatedAt = ev.CreatedAt.UTC()
	ev.UpdatedAt = s.now().UTC()
	if _, err := s.db.NewUpdate().Model(&ev).WherePK().Exec(ctx); err != nil {
		return Event{}, fmt.Errorf("update calendar event: %w", err)
	}
	return localize(ev), nil
}

func (s *Store) Delete(ctx context.Context, id string) error {
	res, err := s.db.NewDelete().Model((*Event)(nil)).Where("id = ?", strings.TrimSpace(id)).Exec(ctx)
	if err != nil {
		return fmt.Errorf("delete calendar event: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", ErrEventNotFound, id)
	}
	return nil
}

func localize(ev Event) Event {
	loc, err := time.LoadLocation(ev.Timezone)
	if err != nil {
		return ev
	}
	ev.StartsAt = ev.StartsAt.In(loc)
	ev.EndsAt = ev.EndsAt.In(loc)
	return ev
}

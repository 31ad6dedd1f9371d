package orchestrator

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/cloudwego/eino/compose"
	"github.com/rs/zerolog/log"

	contractx "github.com/tanpawarit/Chative-Reservation-Concierge/agent/contract"
	nodex "github.com/tanpawarit/Chative-Reservation-Concierge/agent/nodes"
	policyx "github.com/tanpawarit/Chative-Reservation-Concierge/agent/policy"
	statex "github.com/tanpawarit/Chative-Reservation-Concierge/agent/state"
)

var (
	ErrInvalidMessage = nodex.ErrInvalidMessage
	ErrInvalidSession = nodex.ErrInvalidSession
)

const defaultMaxSteps = 8

type Config struct {
	Policy policyx.Config
	// MaxStepsPerMessage bounds the actions run for one user message.
	MaxStepsPerMessage int
}

// Orchestrator drives the ReAct loop: one validated action per step, and
// steps until the user must be addressed per message.
type Orchestrator struct {
	store   statex.Store
	decider contractx.DecisionFunction
	tools   contractx.ToolGateway
	sink    contractx.EventSink
	policy  *policyx.Engine

	stepRunner  compose.Runnable[nodex.StepInput, nodex.StepOutput]
	graphRunner compose.Runnable[nodex.MessageInput, nodex.MessageOutput]

	maxSteps int
	locks    sessionLocks

	now func() time.Time
}

type Option func(*Orchestrator)

// WithEventSink publishes confirmed bookings and calendar events.
func WithEventSink(sink contractx.EventSink) Option {
	return func(o *Orchestrator) {
		o.sink = sink
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		if now != nil {
			o.now = now
		}
	}
}

func New(
	store statex.Store,
	decider contractx.DecisionFunction,
	tools contractx.ToolGateway,
	cfg Config,
	opts ...Option,
) (*Orchestrator, error) {
	if store == nil {
		return nil, errors.New("state store is required")
	}
	if decider == nil {
		return nil, errors.New("decision function is required")
	}
	if tools == nil {
		return nil, errors.New("tool gateway is required")
	}

	maxSteps := cfg.MaxStepsPerMessage
	if maxSteps <= 0 {
		maxSteps = defaultMaxSteps
	}

	o := &Orchestrator{
		store:    store,
		decider:  decider,
		tools:    tools,
		policy:   policyx.NewEngine(cfg.Policy),
		maxSteps: maxSteps,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}

	stepRunner, err := o.compileStepGraph(context.Background())
	if err != nil {
		return nil, err
	}
	o.stepRunner = stepRunner

	graphRunner, err := o.compileHandleMessageGraph(context.Background())
	if err != nil {
		return nil, err
	}
	o.graphRunner = graphRunner

	return o, nil
}

// Step decides, validates, executes and merges exactly one action. The
// given session is not modified; the result carries the updated copy.
func (o *Orchestrator) Step(ctx context.Context, in nodex.StepInput) (nodex.StepOutput, error) {
	if in.Session != nil {
		log.Debug().Str("session_id", in.Session.SessionID).Int("turns", len(in.Session.Conversation)).Msg("step")
	}
	return o.stepRunner.Invoke(ctx, in)
}

// HandleMessage appends the user's message to the session and steps until
// there is a reply. Turns of one session are serialized.
func (o *Orchestrator) HandleMessage(ctx context.Context, sessionID string, text string) (string, error) {
	unlock := o.lock(strings.TrimSpace(sessionID))
	defer unlock()

	out, err := o.graphRunner.Invoke(ctx, nodex.MessageInput{
		SessionID: sessionID,
		Text:      text,
	})
	if err != nil {
		return "", err
	}
	return out.Reply, nil
}

func (o *Orchestrator) lock(sessionID string) func() {
	return o.locks.acquire(sessionID)
}

// sessionLocks serializes turns per session. An entry lives only while a turn
// holds or waits for it.
type sessionLocks struct {
	mu      sync.Mutex
	entries map[string]*sessionLock
}

type sessionLock struct {
	mu   sync.Mutex
	refs int
}

func (l *sessionLocks) acquire(sessionID string) func() {
	l.mu.Lock()
	if l.entries == nil {
		l.entries = make(map[string]*sessionLock)
	}
	e, ok := l.entries[sessionID]
	if !ok {
		e = &sessionLock{}
		l.entries[sessionID] = e
	}
	e.refs++
	l.mu.Unlock()

	e.mu.Lock()
	return func() {
		e.mu.Unlock()
		l.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(l.entries, sessionID)
		}
		l.mu.Unlock()
	}
}

func (l *sessionLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

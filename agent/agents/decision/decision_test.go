package decision

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	contractx "github.com/tanpawarit/Chative-Reservation-Concierge/agent/contract"
	statex "github.com/tanpawarit/Chative-Reservation-Concierge/agent/state"
)

type fakeToolCallingModel struct {
	responses []*schema.Message
	err       error
	idx       int
	inputs    [][]*schema.Message
	tools     []*schema.ToolInfo
}

func (f *fakeToolCallingModel) Generate(ctx context.Context, input []*schema.Message, opts ...einomodel.Option) (*schema.Message, error) {
	f.inputs = append(f.inputs, input)
	if f.err != nil {
		return nil, f.err
	}
	if f.idx >= len(f.responses) {
		return nil, errors.New("no fake response left")
	}
	msg := f.responses[f.idx]
	f.idx++
	return msg, nil
}

func (f *fakeToolCallingModel) Stream(ctx context.Context, input []*schema.Message, opts ...einomodel.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, errors.New("stream not implemented in fake model")
}

func (f *fakeToolCallingModel) WithTools(tools []*schema.ToolInfo) (einomodel.ToolCallingChatModel, error) {
	f.tools = tools
	return f, nil
}

func newTestAgent(t *testing.T, responses ...*schema.Message) (*Agent, *fakeToolCallingModel) {
	t.Helper()
	fake := &fakeToolCallingModel{responses: responses}
	agent, err := New(context.Background(), fake, "decision prompt")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return agent, fake
}

func testRequest() contractx.DecisionRequest {
	now := time.Date(2026, 1, 21, 18, 40, 0, 0, time.UTC)
	return contractx.DecisionRequest{
		Conversation: []statex.Turn{
			{Speaker: statex.SpeakerUser, Text: "Busco sitio para cenar en Navalcarnero", At: now},
		},
		Knowledge: statex.KnowledgeStore{
			Intent: statex.ReservationIntent{Location: "Navalcarnero"},
		},
		Correction: "check_availability requires a date",
		Now:        now,
	}
}

func TestProposeToolCallBecomesInvoke(t *testing.T) {
	t.Parallel()

	agent, fake := newTestAgent(t, &schema.Message{
		Role:    schema.Assistant,
		Content: "busco primero",
		ToolCalls: []schema.ToolCall{{
			Function: schema.FunctionCall{
				Name:      "search_places",
				Arguments: `{"query":"restaurante","location":"Navalcarnero"}`,
			},
		}},
	})

	action, err := agent.Propose(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("Propose() error = %v", err)
	}
	if !action.Is(contractx.CapSearchPlaces) {
		t.Fatalf("expected search_places invoke, got %s", action)
	}
	if action.ArgString(contractx.ArgLocation) != "Navalcarnero" {
		t.Fatalf("unexpected args: %#v", action.Args)
	}
	if action.Thought != "busco primero" {
		t.Fatalf("unexpected thought: %q", action.Thought)
	}
	if len(fake.tools) != len(contractx.Capabilities) {
		t.Fatalf("expected %d bound tools, got %d", len(contractx.Capabilities), len(fake.tools))
	}

	if len(fake.inputs) != 1 || len(fake.inputs[0]) != 2 {
		t.Fatalf("expected system and user messages, got %#v", fake.inputs)
	}
	user := fake.inputs[0][1].Content
	for _, want := range []string{"Navalcarnero", "check_availability requires a date", "2026-01-21T18:40:00Z"} {
		if !strings.Contains(user, want) {
			t.Fatalf("rendered input missing %q: %s", want, user)
		}
	}
}

func TestProposeStructuredReply(t *testing.T) {
	t.Parallel()

	agent, _ := newTestAgent(t, &schema.Message{
		Role:    schema.Assistant,
		Content: "```json\n{\"kind\":\"ask_user\",\"message\":\"¿Para cuántos?\",\"intent\":{\"kind\":\"book\",\"date\":\"mañana\",\"time\":\"21:00\",\"num_people\":\"4\"}}\n```",
	})

	action, err := agent.Propose(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("Propose() error = %v", err)
	}
	if action.Kind != contractx.ActionAskUser || action.Message != "¿Para cuántos?" {
		t.Fatalf("unexpected action: %s", action)
	}
	if action.Intent == nil {
		t.Fatal("expected intent patch")
	}
	if action.Intent.Kind != statex.IntentBook || action.Intent.Date != "mañana" || action.Intent.NumPeople != 4 {
		t.Fatalf("unexpected intent: %+v", *action.Intent)
	}
}

func TestProposeOffTopic(t *testing.T) {
	t.Parallel()

	agent, _ := newTestAgent(t, &schema.Message{
		Role:    schema.Assistant,
		Content: `{"kind":"respond","message":"","off_topic":true}`,
	})

	action, err := agent.Propose(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("Propose() error = %v", err)
	}
	if !action.OffTopic || action.Kind != contractx.ActionRespond {
		t.Fatalf("expected off-topic respond, got %+v", action)
	}
}

func TestProposePlainTextResponds(t *testing.T) {
	t.Parallel()

	agent, _ := newTestAgent(t, &schema.Message{Role: schema.Assistant, Content: "Hola, ¿dónde quieres cenar?"})

	action, err := agent.Propose(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("Propose() error = %v", err)
	}
	if action.Kind != contractx.ActionRespond || action.Message != "Hola, ¿dónde quieres cenar?" {
		t.Fatalf("unexpected action: %s", action)
	}
}

func TestProposeSchemaViolations(t *testing.T) {
	t.Parallel()

	cases := map[string]*schema.Message{
		"empty":          {Role: schema.Assistant},
		"broken json":    {Role: schema.Assistant, Content: `{"kind":`},
		"unknown kind":   {Role: schema.Assistant, Content: `{"kind":"dance","message":"x"}`},
		"empty message":  {Role: schema.Assistant, Content: `{"kind":"ask_user","message":" "}`},
		"unknown tool":   {Role: schema.Assistant, ToolCalls: []schema.ToolCall{{Function: schema.FunctionCall{Name: "order_pizza"}}}},
		"bad tool args":  {Role: schema.Assistant, ToolCalls: []schema.ToolCall{{Function: schema.FunctionCall{Name: "search_web", Arguments: "not json"}}}},
		"empty toolname": {Role: schema.Assistant, ToolCalls: []schema.ToolCall{{Function: schema.FunctionCall{Name: " "}}}},
	}
	for name, msg := range cases {
		msg := msg
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			agent, _ := newTestAgent(t, msg)
			_, err := agent.Propose(context.Background(), testRequest())
			if !errors.Is(err, contractx.ErrSchemaViolation) {
				t.Fatalf("expected ErrSchemaViolation, got %v", err)
			}
		})
	}
}

func TestProposeModelError(t *testing.T) {
	t.Parallel()

	fake := &fakeToolCallingModel{err: errors.New("upstream 502")}
	agent, err := New(context.Background(), fake, "decision prompt")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	_, err = agent.Propose(context.Background(), testRequest())
	if !errors.Is(err, contractx.ErrModelInvoke) {
		t.Fatalf("expected ErrModelInvoke, got %v", err)
	}
}

func TestNewValidatesInputs(t *testing.T) {
	t.Parallel()

	if _, err := New(context.Background(), nil, "prompt"); !errors.Is(err, contractx.ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
	if _, err := New(context.Background(), &fakeToolCallingModel{}, " "); !errors.Is(err, contractx.ErrPromptMissing) {
		t.Fatalf("expected ErrPromptMissing, got %v", err)
	}
}

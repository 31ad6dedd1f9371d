package decision

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog/log"
	contractx "github.com/tanpawarit/Chative-Reservation-Concierge/agent/contract"
	llmx "github.com/tanpawarit/Chative-Reservation-Concierge/agent/llm"
	promptx "github.com/tanpawarit/Chative-Reservation-Concierge/agent/prompt"
	statex "github.com/tanpawarit/Chative-Reservation-Concierge/agent/state"
	toolx "github.com/tanpawarit/Chative-Reservation-Concierge/agent/tool"
)

const (
	maxRenderedTurns      = 24
	maxRenderedWebResults = 5
)

var _ contractx.DecisionFunction = (*Agent)(nil)

// Agent is the LLM-backed decision function. It binds the capability
// catalog as tools and proposes exactly one action per call.
type Agent struct {
	runner compose.Runnable[map[string]any, *schema.Message]
	parser schema.MessageParser[decisionLLMOutput]
}

type decisionLLMOutput struct {
	Kind     string     `json:"kind"`
	Message  string     `json:"message"`
	Thought  string     `json:"thought,omitempty"`
	OffTopic bool       `json:"off_topic,omitempty"`
	Intent   *llmIntent `json:"intent,omitempty"`
}

type llmIntent struct {
	Kind          string `json:"kind,omitempty"`
	Query         string `json:"query,omitempty"`
	Location      string `json:"location,omitempty"`
	Date          string `json:"date,omitempty"`
	Time          string `json:"time,omitempty"`
	NumPeople     any    `json:"num_people,omitempty"`
	SelectedPlace string `json:"selected_place,omitempty"`
}

func New(ctx context.Context, chatModel einomodel.ToolCallingChatModel, systemPrompt string) (*Agent, error) {
	if chatModel == nil {
		return nil, fmt.Errorf("%w: chat model is required", contractx.ErrNotConfigured)
	}
	if strings.TrimSpace(systemPrompt) == "" {
		return nil, fmt.Errorf("%w: decision prompt is empty", contractx.ErrPromptMissing)
	}

	toolModel, err := chatModel.WithTools(toolx.Infos())
	if err != nil {
		return nil, fmt.Errorf("%w: bind decision tools: %v", contractx.ErrModelInvoke, err)
	}

	a := &Agent{
		parser: schema.NewMessageJSONParser[decisionLLMOutput](&schema.MessageJSONParseConfig{
			ParseFrom: schema.MessageParseFromContent,
		}),
	}
	runner, err := compileDecisionGraph(ctx, toolModel, systemPrompt)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", contractx.ErrModelInvoke, err)
	}
	a.runner = runner
	return a, nil
}

// NewFromConfig builds the decision agent on the configured OpenRouter model.
func NewFromConfig(ctx context.Context, cfg llmx.Config) (*Agent, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	modelCfg := cfg.OpenRouterFor(llmx.PurposeDecision)
	chatModel, err := modelCfg.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: create decision model: %v", contractx.ErrModelInvoke, err)
	}
	return New(ctx, chatModel, promptx.LoadPromptSet().Decision)
}

func (a *Agent) Propose(ctx context.Context, req contractx.DecisionRequest) (contractx.Action, error) {
	input, err := json.Marshal(renderRequest(req))
	if err != nil {
		return contractx.Action{}, fmt.Errorf("%w: marshal decision payload: %v", contractx.ErrValidation, err)
	}

	msg, err := a.runner.Invoke(ctx, map[string]any{
		"input": string(input),
	})
	if err != nil {
		return contractx.Action{}, fmt.Errorf("%w: decision invoke: %v", contractx.ErrModelInvoke, err)
	}
	return a.toAction(ctx, msg)
}

func (a *Agent) toAction(ctx context.Context, msg *schema.Message) (contractx.Action, error) {
	if msg == nil {
		return contractx.Action{}, fmt.Errorf("%w: empty decision response", contractx.ErrSchemaViolation)
	}
	if len(msg.ToolCalls) > 0 {
		if len(msg.ToolCalls) > 1 {
			log.Debug().Int("tool_calls", len(msg.ToolCalls)).Msg("decision returned several tool calls, keeping the first")
		}
		return toInvoke(msg.ToolCalls[0], msg.Content)
	}

	content := stripFences(msg.Content)
	if content == "" {
		return contractx.Action{}, fmt.Errorf("%w: decision response has neither tool call nor content", contractx.ErrSchemaViolation)
	}
	if !strings.HasPrefix(content, "{") {
		return contractx.Respond(content), nil
	}

	out, err := a.parser.Parse(ctx, &schema.Message{Role: schema.Assistant, Content: content})
	if err != nil {
		return contractx.Action{}, fmt.Errorf("%w: invalid decision json: %v", contractx.ErrSchemaViolation, err)
	}
	return out.action()
}

func (o decisionLLMOutput) action() (contractx.Action, error) {
	message := strings.TrimSpace(o.Message)
	if message == "" && !o.OffTopic {
		return contractx.Action{}, fmt.Errorf("%w: decision message is empty", contractx.ErrSchemaViolation)
	}

	var action contractx.Action
	switch contractx.ActionKind(strings.TrimSpace(o.Kind)) {
	case contractx.ActionAskUser:
		action = contractx.AskUser(message)
	case contractx.ActionRespond, "":
		action = contractx.Respond(message)
	default:
		return contractx.Action{}, fmt.Errorf("%w: unknown decision kind=%s", contractx.ErrSchemaViolation, o.Kind)
	}
	action.Thought = strings.TrimSpace(o.Thought)
	action.OffTopic = o.OffTopic
	if o.Intent != nil {
		patch := o.Intent.patch()
		if !patch.Empty() {
			action.Intent = &patch
		}
	}
	return action, nil
}

func (i llmIntent) patch() contractx.IntentPatch {
	return contractx.IntentPatch{
		Kind:          statex.IntentKind(strings.TrimSpace(i.Kind)),
		Query:         strings.TrimSpace(i.Query),
		Location:      strings.TrimSpace(i.Location),
		Date:          strings.TrimSpace(i.Date),
		Time:          strings.TrimSpace(i.Time),
		NumPeople:     contractx.ArgInt(map[string]any{contractx.ArgNumPeople: i.NumPeople}, contractx.ArgNumPeople),
		SelectedPlace: strings.TrimSpace(i.SelectedPlace),
	}
}

func toInvoke(call schema.ToolCall, thought string) (contractx.Action, error) {
	name := contractx.Capability(strings.TrimSpace(call.Function.Name))
	if name == "" {
		return contractx.Action{}, fmt.Errorf("%w: tool call name is empty", contractx.ErrSchemaViolation)
	}
	if !name.Valid() {
		return contractx.Action{}, fmt.Errorf("%w: unknown capability=%s", contractx.ErrSchemaViolation, name)
	}

	args := map[string]any{}
	if raw := strings.TrimSpace(call.Function.Arguments); raw != "" {
		if err := json.Unmarshal([]byte(raw), &args); err != nil {
			return contractx.Action{}, fmt.Errorf("%w: invalid tool args for capability=%s: %v", contractx.ErrSchemaViolation, name, err)
		}
	}

	action := contractx.Invoke(name, args)
	action.Thought = strings.TrimSpace(thought)
	return action, nil
}

func stripFences(content string) string {
	content = strings.TrimSpace(content)
	if !strings.HasPrefix(content, "```") {
		return content
	}
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	return strings.TrimSpace(content)
}

func renderRequest(req contractx.DecisionRequest) map[string]any {
	k := req.Knowledge

	turns := req.Conversation
	if len(turns) > maxRenderedTurns {
		turns = turns[len(turns)-maxRenderedTurns:]
	}
	conversation := make([]map[string]string, 0, len(turns))
	for _, t := range turns {
		conversation = append(conversation, map[string]string{
			"speaker": string(t.Speaker),
			"text":    t.Text,
		})
	}

	payload := map[string]any{
		"now":          req.Now.Format(time.RFC3339),
		"weekday":      req.Now.Weekday().String(),
		"conversation": conversation,
		"intent":       k.Intent,
	}
	if candidates := k.CandidatesFor(k.Intent.Location); len(candidates) > 0 {
		payload["candidates"] = summarizeCandidates(candidates)
	}
	if len(k.Verdicts) > 0 {
		payload["availability"] = k.Verdicts
	}
	if len(k.Bookings) > 0 {
		payload["bookings"] = k.Bookings
	}
	if len(k.Calendar) > 0 {
		payload["calendar"] = k.Calendar
	}
	if len(k.CalendarEvents) > 0 {
		payload["calendar_events"] = k.CalendarEvents
	}
	if k.Presentation != nil {
		payload["presented"] = k.Presentation.PlaceIDs
	}
	if n := len(k.WebResults); n > 0 {
		start := 0
		if n > maxRenderedWebResults {
			start = n - maxRenderedWebResults
		}
		payload["web_results"] = k.WebResults[start:]
	}
	if req.LastObservation != nil {
		payload["last_observation"] = summarizeObservation(*req.LastObservation)
	}
	if c := strings.TrimSpace(req.Correction); c != "" {
		payload["correction"] = c
	}
	return payload
}

func summarizeCandidates(candidates []statex.RestaurantCandidate) []map[string]any {
	out := make([]map[string]any, 0, len(candidates))
	for _, c := range candidates {
		out = append(out, map[string]any{
			"place_id":        c.PlaceID,
			"name":            c.Name,
			"rating":          c.Rating,
			"has_booking_api": c.HasBookingAPI,
			"has_phone":       c.HasPhone(),
			"travel_minutes":  c.TravelMinutes,
		})
	}
	return out
}

func summarizeObservation(o statex.Observation) map[string]any {
	out := map[string]any{
		"capability": o.Capability,
		"ok":         o.OK,
		"args":       o.Args,
	}
	if o.Summary != "" {
		out["summary"] = o.Summary
	}
	if o.Failed() {
		out["error_kind"] = o.ErrorKind
		out["error"] = o.Error
	}
	return out
}

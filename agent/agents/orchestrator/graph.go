package orchestrator

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/compose"

	nodex "github.com/tanpawarit/Chative-Reservation-Concierge/agent/nodes"
)

func (o *Orchestrator) compileStepGraph(
	ctx context.Context,
) (compose.Runnable[nodex.StepInput, nodex.StepOutput], error) {
	graph := compose.NewGraph[nodex.StepInput, nodex.StepOutput]()

	if err := graph.AddLambdaNode("validate_request",
		compose.InvokableLambda(func(ctx context.Context, in nodex.StepInput) (*nodex.StepState, error) {
			return nodex.ValidateRequest(in, o.now)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node validate_request: %w", err)
	}

	if err := graph.AddLambdaNode("sync_selection",
		compose.InvokableLambda(func(ctx context.Context, in *nodex.StepState) (*nodex.StepState, error) {
			return nodex.SyncSelection(in)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node sync_selection: %w", err)
	}

	if err := graph.AddLambdaNode("propose_action",
		compose.InvokableLambda(func(ctx context.Context, in *nodex.StepState) (*nodex.StepState, error) {
			return nodex.ProposeAction(ctx, in, o.decider)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node propose_action: %w", err)
	}

	if err := graph.AddLambdaNode("enforce_policy",
		compose.InvokableLambda(func(ctx context.Context, in *nodex.StepState) (*nodex.StepState, error) {
			return nodex.EnforcePolicy(ctx, in, o.policy, o.decider)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node enforce_policy: %w", err)
	}

	if err := graph.AddLambdaNode("execute_action",
		compose.InvokableLambda(func(ctx context.Context, in *nodex.StepState) (*nodex.StepState, error) {
			return nodex.ExecuteAction(ctx, in, o.tools)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node execute_action: %w", err)
	}

	if err := graph.AddLambdaNode("merge_observation",
		compose.InvokableLambda(func(ctx context.Context, in *nodex.StepState) (*nodex.StepState, error) {
			return nodex.MergeObservation(in)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node merge_observation: %w", err)
	}

	if err := graph.AddLambdaNode("finalize_step",
		compose.InvokableLambda(func(ctx context.Context, in *nodex.StepState) (nodex.StepOutput, error) {
			return nodex.FinalizeStep(in)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node finalize_step: %w", err)
	}

	edges := [][2]string{
		{compose.START, "validate_request"},
		{"validate_request", "sync_selection"},
		{"sync_selection", "propose_action"},
		{"propose_action", "enforce_policy"},
		{"enforce_policy", "execute_action"},
		{"execute_action", "merge_observation"},
		{"merge_observation", "finalize_step"},
		{"finalize_step", compose.END},
	}

	for _, edge := range edges {
		if err := graph.AddEdge(edge[0], edge[1]); err != nil {
			return nil, fmt.Errorf("add edge %s->%s: %w", edge[0], edge[1], err)
		}
	}

	runner, err := graph.Compile(ctx, compose.WithGraphName("orchestrator.step"))
	if err != nil {
		return nil, fmt.Errorf("compile step graph: %w", err)
	}
	return runner, nil
}

func (o *Orchestrator) compileHandleMessageGraph(
	ctx context.Context,
) (compose.Runnable[nodex.MessageInput, nodex.MessageOutput], error) {
	graph := compose.NewGraph[nodex.MessageInput, nodex.MessageOutput]()

	if err := graph.AddLambdaNode("validate_message",
		compose.InvokableLambda(func(ctx context.Context, in nodex.MessageInput) (*nodex.MessageState, error) {
			return nodex.ValidateMessage(in, o.now)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node validate_message: %w", err)
	}

	if err := graph.AddLambdaNode("load_or_create_state",
		compose.InvokableLambda(func(ctx context.Context, in *nodex.MessageState) (*nodex.MessageState, error) {
			return nodex.LoadOrCreateState(ctx, in, o.store)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node load_or_create_state: %w", err)
	}

	if err := graph.AddLambdaNode("run_steps",
		compose.InvokableLambda(func(ctx context.Context, in *nodex.MessageState) (*nodex.MessageState, error) {
			return nodex.RunSteps(ctx, in, o.Step, o.maxSteps, o.now)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node run_steps: %w", err)
	}

	if err := graph.AddLambdaNode("validate_and_save_state",
		compose.InvokableLambda(func(ctx context.Context, in *nodex.MessageState) (*nodex.MessageState, error) {
			return nodex.ValidateAndSaveState(ctx, in, o.store)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node validate_and_save_state: %w", err)
	}

	if err := graph.AddLambdaNode("publish_events",
		compose.InvokableLambda(func(ctx context.Context, in *nodex.MessageState) (*nodex.MessageState, error) {
			return nodex.PublishEvents(ctx, in, o.sink)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node publish_events: %w", err)
	}

	if err := graph.AddLambdaNode("finalize_reply",
		compose.InvokableLambda(func(ctx context.Context, in *nodex.MessageState) (nodex.MessageOutput, error) {
			return nodex.FinalizeReply(in)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node finalize_reply: %w", err)
	}

	edges := [][2]string{
		{compose.START, "validate_message"},
		{"validate_message", "load_or_create_state"},
		{"load_or_create_state", "run_steps"},
		{"run_steps", "validate_and_save_state"},
		{"validate_and_save_state", "publish_events"},
		{"publish_events", "finalize_reply"},
		{"finalize_reply", compose.END},
	}

	for _, edge := range edges {
		if err := graph.AddEdge(edge[0], edge[1]); err != nil {
			return nil, fmt.Errorf("add edge %s->%s: %w", edge[0], edge[1], err)
		}
	}

	runner, err := graph.Compile(ctx, compose.WithGraphName("orchestrator.handle_message"))
	if err != nil {
		return nil, fmt.Errorf("compile orchestrator graph: %w", err)
	}
	return runner, nil
}

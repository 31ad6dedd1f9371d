package decision

import (
	"context"
	"fmt"

	einomodel "github.com/cloudwego/eino/components/model"
	einoprompt "github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
)

func compileDecisionGraph(
	ctx context.Context,
	toolModel einomodel.BaseChatModel,
	systemPrompt string,
) (compose.Runnable[map[string]any, *schema.Message], error) {
	template := einoprompt.FromMessages(
		schema.FString,
		schema.SystemMessage(systemPrompt),
		schema.UserMessage("{input}"),
	)

	graph := compose.NewGraph[map[string]any, *schema.Message]()
	if err := graph.AddChatTemplateNode("prompt", template); err != nil {
		return nil, fmt.Errorf("add decision prompt node: %w", err)
	}
	if err := graph.AddChatModelNode("model", toolModel); err != nil {
		return nil, fmt.Errorf("add decision model node: %w", err)
	}

	edges := [][2]string{
		{compose.START, "prompt"},
		{"prompt", "model"},
		{"model", compose.END},
	}
	for _, e := range edges {
		if err := graph.AddEdge(e[0], e[1]); err != nil {
			return nil, fmt.Errorf("add decision edge %s->%s: %w", e[0], e[1], err)
		}
	}

	runner, err := graph.Compile(ctx, compose.WithGraphName("decision.react_graph"))
	if err != nil {
		return nil, fmt.Errorf("compile decision graph: %w", err)
	}
	return runner, nil
}

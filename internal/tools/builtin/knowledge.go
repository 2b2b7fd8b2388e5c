package builtin

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/agentcore/platform/internal/graph"
	"github.com/agentcore/platform/internal/tools"
)

// RememberTool persists a fact or memory entry via graph.Service.
type RememberTool struct{ Graph graph.Service }

var _ tools.Tool = (*RememberTool)(nil)

func (t *RememberTool) Definition() tools.Definition {
	return tools.Definition{
		Name:        "remember",
		Description: "Store a fact or memory for later recall.",
		ParametersSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"content": {"type": "string"},
				"kind": {"type": "string"},
				"tags": {"type": "array", "items": {"type": "string"}}
			},
			"required": ["content"]
		}`),
		Permission: tools.PermissionStandard,
	}
}

func (t *RememberTool) Execute(ctx context.Context, args json.RawMessage) (any, error) {
	var p struct {
		Content string   `json:"content"`
		Kind    string   `json:"kind"`
		Tags    []string `json:"tags"`
	}
	if err := json.Unmarshal(args, &p); err != nil {
		return nil, fmt.Errorf("remember: decode args: %w", err)
	}
	id, err := t.Graph.Remember(ctx, graph.Node{Kind: p.Kind, Content: p.Content, Tags: p.Tags})
	if err != nil {
		return nil, fmt.Errorf("remember: %w", err)
	}
	return map[string]string{"id": id}, nil
}

// RecallTool searches stored facts/memories via graph.Service.
type RecallTool struct{ Graph graph.Service }

var _ tools.Tool = (*RecallTool)(nil)

func (t *RecallTool) Definition() tools.Definition {
	return tools.Definition{
		Name:        "recall",
		Description: "Search previously remembered facts.",
		ParametersSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"query": {"type": "string"},
				"limit": {"type": "integer"}
			},
			"required": ["query"]
		}`),
		Permission: tools.PermissionStandard,
	}
}

func (t *RecallTool) Execute(ctx context.Context, args json.RawMessage) (any, error) {
	var p struct {
		Query string `json:"query"`
		Limit int    `json:"limit"`
	}
	if err := json.Unmarshal(args, &p); err != nil {
		return nil, fmt.Errorf("recall: decode args: %w", err)
	}
	if p.Limit <= 0 {
		p.Limit = 10
	}
	nodes, err := t.Graph.Recall(ctx, p.Query, p.Limit)
	if err != nil {
		return nil, fmt.Errorf("recall: %w", err)
	}
	return nodes, nil
}

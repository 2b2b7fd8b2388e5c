package builtin

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/agentcore/platform/internal/sandbox"
	"github.com/agentcore/platform/internal/tools"
)

// RunInSandboxTool routes a named sandbox-resident tool call through the
// Sandbox Service for a fixed project, giving the model access to
// project-scoped execution without the Tool Registry needing to know about
// containers directly.
type RunInSandboxTool struct {
	Service   *sandbox.Service
	ProjectID string
}

var _ tools.Tool = (*RunInSandboxTool)(nil)

func (t *RunInSandboxTool) Definition() tools.Definition {
	return tools.Definition{
		Name:        "run_in_sandbox",
		Description: "Execute a sandbox-resident tool inside the project's execution container.",
		ParametersSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"tool_name": {"type": "string"},
				"args": {"type": "object"}
			},
			"required": ["tool_name"]
		}`),
		Permission: tools.PermissionSandbox,
	}
}

func (t *RunInSandboxTool) Execute(ctx context.Context, args json.RawMessage) (any, error) {
	var p struct {
		ToolName string          `json:"tool_name"`
		Args     json.RawMessage `json:"args"`
	}
	if err := json.Unmarshal(args, &p); err != nil {
		return nil, fmt.Errorf("run_in_sandbox: decode args: %w", err)
	}
	result, err := t.Service.ExecuteTool(ctx, t.ProjectID, p.ToolName, p.Args)
	if err != nil {
		return nil, fmt.Errorf("run_in_sandbox: %w", err)
	}
	return result, nil
}

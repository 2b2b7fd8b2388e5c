package session

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/agentcore/platform/internal/processor"
)

// Activities bundles the side-effecting handlers a worker process registers
// alongside the Session Workflow. Unlike the workflow function, these may
// perform real I/O (LLM calls, tool execution, event emission): the engine
// runs them outside the determinism constraint (spec.md §4.9, §9).
type Activities struct {
	Processor *processor.Processor
}

// RunTurn is the activity handler bound to RunTurnActivityName. It adapts
// the engine's untyped ActivityFunc signature to processor.Processor.Run.
func (a *Activities) RunTurn(ctx context.Context, input any) (any, error) {
	in, err := decodeInput[RunTurnInput](input)
	if err != nil {
		return nil, fmt.Errorf("session: run_turn activity: %w", err)
	}

	result, err := a.Processor.Run(ctx, processor.Request{
		ConversationID: in.ConversationID,
		MessageID:      in.MessageID,
		Model:          in.Model,
		SystemPrompt:   in.SystemPrompt,
		Messages:       in.Messages,
	})
	if err != nil {
		return nil, err
	}
	return ChatResult{Content: result.Content, IsError: result.IsError, Reason: result.Reason}, nil
}

// decodeInput normalizes an activity's untyped input into T. The in-memory
// engine preserves the caller's concrete type, so the direct assertion
// succeeds there; a Temporal worker's default data converter decodes
// `any`-typed activity parameters into a generic map, so the fallback
// round-trips through JSON to land on the same struct shape.
func decodeInput[T any](input any) (T, error) {
	var zero T
	if v, ok := input.(T); ok {
		return v, nil
	}
	raw, err := json.Marshal(input)
	if err != nil {
		return zero, fmt.Errorf("re-encode activity input of type %T: %w", input, err)
	}
	var out T
	if err := json.Unmarshal(raw, &out); err != nil {
		return zero, fmt.Errorf("decode activity input into %T: %w", out, err)
	}
	return out, nil
}

// Package builtin provides concrete tools.Tool implementations that
// exercise the platform's own ports (HITL, knowledge graph, web fetch,
// sandbox) rather than an external service, so the Tool Registry &
// Executor contract has real tools to route through.
package builtin

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/agentcore/platform/internal/events"
	"github.com/agentcore/platform/internal/hitl"
	"github.com/agentcore/platform/internal/tools"
)

const defaultHITLTimeout = 10 * time.Minute

type hitlParams struct {
	Prompt        string            `json:"prompt"`
	Options       []hitl.Option     `json:"options,omitempty"`
	EnvVars       []hitl.EnvVarSpec `json:"env_vars,omitempty"`
	AllowCustom   bool              `json:"allow_custom,omitempty"`
	DefaultChoice string            `json:"default_choice,omitempty"`
}

// ClarificationTool asks the human a free-form or multiple-choice question
// and blocks the tool call until it is answered or times out. A single
// instance is shared across every conversation's calls: the conversation,
// turn, and call identifiers come from the per-call tools.CallContext
// attached by the Executor, not from fields on the tool itself.
type ClarificationTool struct {
	Registry *hitl.Registry
	Emitter  tools.EventEmitter
	Timeout  time.Duration
}

var _ tools.Tool = (*ClarificationTool)(nil)

func (t *ClarificationTool) Definition() tools.Definition {
	return tools.Definition{
		Name:        "ask_clarification",
		Description: "Ask the human a clarifying question before proceeding.",
		ParametersSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"prompt": {"type": "string"},
				"allow_custom": {"type": "boolean"}
			},
			"required": ["prompt"]
		}`),
		Permission: tools.PermissionStandard,
	}
}

func (t *ClarificationTool) Execute(ctx context.Context, args json.RawMessage) (any, error) {
	var p hitlParams
	if err := json.Unmarshal(args, &p); err != nil {
		return nil, fmt.Errorf("ask_clarification: decode args: %w", err)
	}
	return askAndWait(ctx, t.Registry, t.Emitter, hitl.KindClarification, p, t.Timeout)
}

// DecisionTool presents the human a set of labeled options, each optionally
// carrying cost/time/risk estimates, and blocks for their choice.
type DecisionTool struct {
	Registry *hitl.Registry
	Emitter  tools.EventEmitter
	Timeout  time.Duration
}

var _ tools.Tool = (*DecisionTool)(nil)

func (t *DecisionTool) Definition() tools.Definition {
	return tools.Definition{
		Name:        "request_decision",
		Description: "Ask the human to choose among several options before proceeding.",
		ParametersSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"prompt": {"type": "string"},
				"options": {"type": "array"},
				"default_choice": {"type": "string"}
			},
			"required": ["prompt", "options"]
		}`),
		Permission: tools.PermissionStandard,
	}
}

func (t *DecisionTool) Execute(ctx context.Context, args json.RawMessage) (any, error) {
	var p hitlParams
	if err := json.Unmarshal(args, &p); err != nil {
		return nil, fmt.Errorf("request_decision: decode args: %w", err)
	}
	return askAndWait(ctx, t.Registry, t.Emitter, hitl.KindDecision, p, t.Timeout)
}

// EnvVarTool requests one or more environment variable values from the
// human, for example missing API credentials a downstream tool needs.
type EnvVarTool struct {
	Registry *hitl.Registry
	Emitter  tools.EventEmitter
	Timeout  time.Duration
}

var _ tools.Tool = (*EnvVarTool)(nil)

func (t *EnvVarTool) Definition() tools.Definition {
	return tools.Definition{
		Name:        "request_env_var",
		Description: "Ask the human to provide one or more environment variable values.",
		ParametersSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"prompt": {"type": "string"},
				"env_vars": {"type": "array"}
			},
			"required": ["prompt", "env_vars"]
		}`),
		Permission: tools.PermissionStandard,
	}
}

func (t *EnvVarTool) Execute(ctx context.Context, args json.RawMessage) (any, error) {
	var p hitlParams
	if err := json.Unmarshal(args, &p); err != nil {
		return nil, fmt.Errorf("request_env_var: decode args: %w", err)
	}
	return askAndWait(ctx, t.Registry, t.Emitter, hitl.KindEnvVar, p, t.Timeout)
}

// askAndWait creates the pending request, emits its {kind}_asked event,
// blocks for the answer, and emits the matching {kind}_answered/
// env_var_provided event before returning the response (spec.md §4.3 steps
// 1 and 4). conversationID/messageID/callID come from the tools.CallContext
// the Executor attaches to ctx; emitter may be nil in tests that drive a
// tool directly, in which case events are silently skipped.
func askAndWait(ctx context.Context, reg *hitl.Registry, emitter tools.EventEmitter, kind hitl.Kind, p hitlParams, timeout time.Duration) (any, error) {
	if timeout <= 0 {
		timeout = defaultHITLTimeout
	}
	cc, _ := tools.CallContextFrom(ctx)

	req := &hitl.Request{
		ID:             uuid.NewString(),
		ConversationID: cc.ConversationID,
		MessageID:      cc.MessageID,
		CallID:         cc.CallID,
		Kind:           kind,
		Prompt:         p.Prompt,
		Options:        p.Options,
		EnvVars:        p.EnvVars,
		AllowCustom:    p.AllowCustom,
		DefaultChoice:  p.DefaultChoice,
	}
	if err := reg.Create(ctx, req); err != nil {
		return nil, fmt.Errorf("hitl tool: create request: %w", err)
	}
	if err := emitAsked(ctx, emitter, cc, req); err != nil {
		return nil, fmt.Errorf("hitl tool: emit asked event: %w", err)
	}

	resp, err := reg.Wait(ctx, cc.ConversationID, req.ID, timeout, p.DefaultChoice)
	if err != nil {
		return nil, fmt.Errorf("hitl tool: wait for answer: %w", err)
	}
	if err := emitAnswered(ctx, emitter, cc, kind, resp); err != nil {
		return nil, fmt.Errorf("hitl tool: emit answered event: %w", err)
	}
	return resp, nil
}

func emitAsked(ctx context.Context, emitter tools.EventEmitter, cc tools.CallContext, req *hitl.Request) error {
	if emitter == nil {
		return nil
	}
	switch req.Kind {
	case hitl.KindClarification:
		return emitter.Emit(ctx, cc.ConversationID, cc.MessageID, events.TypeClarificationAsked, events.ClarificationAskedData{
			RequestID: req.ID, Prompt: req.Prompt, Options: toClarificationOptions(req.Options),
			AllowCustom: req.AllowCustom, MessageID: cc.MessageID,
		})
	case hitl.KindDecision:
		return emitter.Emit(ctx, cc.ConversationID, cc.MessageID, events.TypeDecisionAsked, events.DecisionAskedData{
			RequestID: req.ID, Prompt: req.Prompt, Options: toDecisionOptions(req.Options),
			AllowCustom: req.AllowCustom, DefaultChoice: req.DefaultChoice, MessageID: cc.MessageID,
		})
	case hitl.KindEnvVar:
		return emitter.Emit(ctx, cc.ConversationID, cc.MessageID, events.TypeEnvVarRequested, events.EnvVarRequestedData{
			RequestID: req.ID, Prompt: req.Prompt, Options: toEnvVarSpecs(req.EnvVars), MessageID: cc.MessageID,
		})
	default:
		return fmt.Errorf("hitl tool: unknown kind %q", req.Kind)
	}
}

func emitAnswered(ctx context.Context, emitter tools.EventEmitter, cc tools.CallContext, kind hitl.Kind, resp hitl.Response) error {
	if emitter == nil {
		return nil
	}
	switch kind {
	case hitl.KindClarification:
		return emitter.Emit(ctx, cc.ConversationID, cc.MessageID, events.TypeClarificationAnswered, events.ClarificationAnsweredData{
			RequestID: resp.RequestID, Answer: resp.Answer, Source: resp.Source, MessageID: cc.MessageID,
		})
	case hitl.KindDecision:
		return emitter.Emit(ctx, cc.ConversationID, cc.MessageID, events.TypeDecisionAnswered, events.DecisionAnsweredData{
			RequestID: resp.RequestID, Answer: resp.Answer, Source: resp.Source, MessageID: cc.MessageID,
		})
	case hitl.KindEnvVar:
		return emitter.Emit(ctx, cc.ConversationID, cc.MessageID, events.TypeEnvVarProvided, events.EnvVarProvidedData{
			RequestID: resp.RequestID, Values: resp.Values, Source: resp.Source, MessageID: cc.MessageID,
		})
	default:
		return fmt.Errorf("hitl tool: unknown kind %q", kind)
	}
}

func toClarificationOptions(opts []hitl.Option) []events.ClarificationOption {
	if len(opts) == 0 {
		return nil
	}
	out := make([]events.ClarificationOption, 0, len(opts))
	for _, o := range opts {
		out = append(out, events.ClarificationOption{ID: o.ID, Label: o.Label, Description: o.Description, Recommended: o.Recommended})
	}
	return out
}

func toDecisionOptions(opts []hitl.Option) []events.DecisionOption {
	if len(opts) == 0 {
		return nil
	}
	out := make([]events.DecisionOption, 0, len(opts))
	for _, o := range opts {
		out = append(out, events.DecisionOption{
			ID: o.ID, Label: o.Label, Description: o.Description, Recommended: o.Recommended,
			EstimatedTime: o.EstimatedTime, EstimatedCost: o.EstimatedCost, Risks: o.Risks,
		})
	}
	return out
}

func toEnvVarSpecs(specs []hitl.EnvVarSpec) []events.EnvVarSpec {
	if len(specs) == 0 {
		return nil
	}
	out := make([]events.EnvVarSpec, 0, len(specs))
	for _, s := range specs {
		out = append(out, events.EnvVarSpec{
			Name: s.Name, Description: s.Description, InputType: s.InputType,
			Required: s.Required, ValidationPattern: s.ValidationPattern,
		})
	}
	return out
}

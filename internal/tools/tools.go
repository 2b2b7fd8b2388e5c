// Package tools implements the tool registry and executor (spec.md L7):
// tools are registered by name with a JSON Schema argument shape, resolved
// by name at call time, validated before execution, and every call emits a
// matching act/observe event pair into the shared emit pathway.
package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/agentcore/platform/internal/events"
)

type (
	// Permission is the coarse-grained access tier a tool requires. The
	// executor enforces the permission matrix configured on it; individual
	// tools only declare which tier they need.
	Permission string

	// Definition is a tool's static metadata, analogous to the teacher's
	// ToolSpec but scoped to what spec.md's Tool Registry & Executor needs:
	// a name, description, and JSON Schema argument shape.
	Definition struct {
		Name              string
		Description       string
		ParametersSchema  json.RawMessage
		Permission        Permission
	}

	// Tool is the protocol every registered tool implements.
	Tool interface {
		Definition() Definition
		// Execute runs the tool against already-schema-validated args and
		// returns a JSON-marshalable result.
		Execute(ctx context.Context, args json.RawMessage) (any, error)
	}
)

const (
	PermissionStandard Permission = "standard"
	PermissionElevated Permission = "elevated"
	PermissionSandbox  Permission = "sandbox"
)

// ErrUnknownTool is returned when a call names a tool the registry has no
// entry for.
var ErrUnknownTool = errors.New("tools: unknown tool")

// ErrPermissionDenied is returned when the executor's permission matrix
// does not allow the caller's granted tier to invoke a tool.
var ErrPermissionDenied = errors.New("tools: permission denied")

// Registry resolves tool name to implementation and compiles/caches each
// tool's JSON Schema once at registration time.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
	schemas map[string]*jsonschema.Schema
}

// NewRegistry constructs an empty tool registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool), schemas: make(map[string]*jsonschema.Schema)}
}

// Register adds t to the registry, compiling its parameters schema eagerly
// so a malformed schema fails fast at startup rather than on first call.
func (r *Registry) Register(t Tool) error {
	def := t.Definition()
	if def.Name == "" {
		return errors.New("tools: tool definition requires a name")
	}

	compiled, err := compileSchema(def.Name, def.ParametersSchema)
	if err != nil {
		return fmt.Errorf("tools: compile schema for %s: %w", def.Name, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[def.Name] = t
	r.schemas[def.Name] = compiled
	return nil
}

// Get resolves name to its Tool, or ErrUnknownTool.
func (r *Registry) Get(name string) (Tool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}
	return t, nil
}

// Definitions returns every registered tool's Definition, the shape passed
// to the model as available tools for a turn.
func (r *Registry) Definitions() []Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Definition, 0, len(r.tools))
	for _, t := range r.tools {
		out = append(out, t.Definition())
	}
	return out
}

// ValidateArgs checks args against name's compiled parameters schema.
func (r *Registry) ValidateArgs(name string, args json.RawMessage) error {
	r.mu.RLock()
	schema, ok := r.schemas[name]
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}
	if schema == nil {
		return nil
	}
	var decoded any
	if len(args) > 0 {
		if err := json.Unmarshal(args, &decoded); err != nil {
			return fmt.Errorf("tools: args are not valid JSON: %w", err)
		}
	} else {
		decoded = map[string]any{}
	}
	if err := schema.Validate(decoded); err != nil {
		return fmt.Errorf("tools: args do not satisfy schema: %w", err)
	}
	return nil
}

func compileSchema(name string, raw json.RawMessage) (*jsonschema.Schema, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	c := jsonschema.NewCompiler()
	url := "mem://" + name + ".json"
	if err := c.AddResource(url, doc); err != nil {
		return nil, err
	}
	return c.Compile(url)
}

// EventEmitter is the narrow slice of eventlog.Store + streambroker.Broker
// the executor needs to publish act/observe events; it is satisfied by
// internal/processor's shared emit helper so the executor does not import
// the processor package.
type EventEmitter interface {
	Emit(ctx context.Context, conversationID, messageID string, typ events.Type, data any) error
}

// CallRecord is the durable record of one tool invocation, analogous to
// spec.md's ToolExecutionRecord.
type CallRecord struct {
	CallID     string
	ToolName   string
	Input      json.RawMessage
	Result     any
	Err        string
	DurationMs int64
}

// Executor validates arguments, enforces the permission matrix, invokes the
// tool, and emits the act/observe event pair around the call.
type Executor struct {
	registry *Registry
	emit     EventEmitter
	granted  map[Permission]bool
}

// NewExecutor builds an Executor. granted lists the permission tiers this
// executor instance is allowed to invoke; nil grants PermissionStandard
// only.
func NewExecutor(registry *Registry, emit EventEmitter, granted ...Permission) *Executor {
	g := map[Permission]bool{PermissionStandard: true}
	for _, p := range granted {
		g[p] = true
	}
	return &Executor{registry: registry, emit: emit, granted: g}
}

// Call resolves toolName, validates args, checks the permission matrix,
// executes it, and emits the act/observe pair. The returned CallRecord is
// populated even on failure (Err set, Result nil). Per spec.md §7, unknown
// tools, permission denials, and schema-validation failures are "tool
// validation failure" — tool-local errors that do NOT end the turn, exactly
// like a tool's own runtime error — so Call never returns a non-nil error
// for any of these; it synthesizes an observe{status=error} instead and
// lets the caller (the processor) continue the turn. Call only returns an
// error when emitting the act/observe event itself fails, which is a Event
// Log/Stream Broker failure, not a tool failure.
func (e *Executor) Call(ctx context.Context, conversationID, messageID, callID, toolName string, args json.RawMessage) (CallRecord, error) {
	rec := CallRecord{CallID: callID, ToolName: toolName, Input: args}

	if e.emit != nil {
		if err := e.emit.Emit(ctx, conversationID, messageID, events.TypeAct, events.ActData{
			ToolName: toolName, ToolInput: asMap(args), CallID: callID, Status: events.ToolCallStatusPending, MessageID: messageID,
		}); err != nil {
			return rec, fmt.Errorf("tools: emit act event: %w", err)
		}
	}

	start := time.Now()
	result, execErr := e.invoke(ctx, conversationID, messageID, callID, toolName, args)
	rec.Result, rec.DurationMs = result, time.Since(start).Milliseconds()

	observeData := events.ObserveData{ToolName: toolName, Result: result, DurationMs: rec.DurationMs, CallID: callID, Status: events.ToolCallStatusCompleted, MessageID: messageID}
	if execErr != nil {
		rec.Err = execErr.Error()
		observeData.Status = events.ToolCallStatusError
		observeData.Error = rec.Err
	}
	if e.emit != nil {
		if err := e.emit.Emit(ctx, conversationID, messageID, events.TypeObserve, observeData); err != nil {
			return rec, fmt.Errorf("tools: emit observe event: %w", err)
		}
	}
	return rec, nil
}

// invoke resolves and runs toolName, returning a tool-local error for an
// unknown tool, a permission denial, or an argument-validation failure, on
// the same footing as an error returned by the tool's own Execute.
func (e *Executor) invoke(ctx context.Context, conversationID, messageID, callID, toolName string, args json.RawMessage) (any, error) {
	t, err := e.registry.Get(toolName)
	if err != nil {
		return nil, err
	}
	def := t.Definition()
	perm := def.Permission
	if perm == "" {
		perm = PermissionStandard
	}
	if !e.granted[perm] {
		return nil, fmt.Errorf("%w: tool %s requires %s", ErrPermissionDenied, toolName, perm)
	}
	if err := e.registry.ValidateArgs(toolName, args); err != nil {
		return nil, err
	}

	callCtx := WithCallContext(ctx, CallContext{ConversationID: conversationID, MessageID: messageID, CallID: callID})
	return t.Execute(callCtx, args)
}

func asMap(args json.RawMessage) map[string]any {
	if len(args) == 0 {
		return nil
	}
	var m map[string]any
	_ = json.Unmarshal(args, &m)
	return m
}

// callContextKey is the unexported context key for CallContext, so tool
// implementations can recover the routing identifiers of the call they are
// executing under without the Registry baking per-conversation state into a
// shared Tool instance.
type callContextKey struct{}

// CallContext carries the identifiers of the in-flight tool call: which
// conversation and turn it belongs to, and its call_id. Tools that need to
// correlate side effects back to a specific turn (the HITL builtins emitting
// *_asked/*_answered events, for instance) read this via CallContextFrom
// instead of holding conversation-scoped fields on the Tool itself.
type CallContext struct {
	ConversationID string
	MessageID      string
	CallID         string
}

// WithCallContext attaches cc to ctx for the duration of one Execute call.
func WithCallContext(ctx context.Context, cc CallContext) context.Context {
	return context.WithValue(ctx, callContextKey{}, cc)
}

// CallContextFrom recovers the CallContext attached by Executor.Call. ok is
// false outside of an Executor-driven Execute call (e.g. unit tests invoking
// a Tool directly), in which case callers should fall back to whatever
// default behavior makes sense for that context.
func CallContextFrom(ctx context.Context) (CallContext, bool) {
	cc, ok := ctx.Value(callContextKey{}).(CallContext)
	return cc, ok
}

package tools_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/agentcore/platform/internal/events"
	"github.com/agentcore/platform/internal/tools"
)

type echoTool struct{ fail bool }

func (echoTool) Definition() tools.Definition {
	return tools.Definition{
		Name:        "echo",
		Description: "echoes its input back",
		ParametersSchema: json.RawMessage(`{
			"type": "object",
			"properties": {"message": {"type": "string"}},
			"required": ["message"]
		}`),
	}
}

func (t echoTool) Execute(_ context.Context, args json.RawMessage) (any, error) {
	if t.fail {
		return nil, errors.New("boom")
	}
	var in struct {
		Message string `json:"message"`
	}
	_ = json.Unmarshal(args, &in)
	return in.Message, nil
}

type recordingEmitter struct {
	events []events.Type
}

func (r *recordingEmitter) Emit(_ context.Context, _, _ string, typ events.Type, _ any) error {
	r.events = append(r.events, typ)
	return nil
}

func TestExecutorCallEmitsActThenObserve(t *testing.T) {
	reg := tools.NewRegistry()
	require.NoError(t, reg.Register(echoTool{}))
	emitter := &recordingEmitter{}
	exec := tools.NewExecutor(reg, emitter)

	rec, err := exec.Call(context.Background(), "conv-1", "msg-1", "call-1", "echo", json.RawMessage(`{"message":"hi"}`))
	require.NoError(t, err)
	require.Equal(t, "hi", rec.Result)
	require.Equal(t, []events.Type{events.TypeAct, events.TypeObserve}, emitter.events)
}

// Unknown-tool, permission-denied, and invalid-args are all "tool
// validation failure" per spec.md §7 — tool-local errors that must not end
// the turn, so Call reports them as an error{status=error} observation
// (rec.Err set, Call's own error nil), the same treatment as a tool's own
// runtime error (TestExecutorRecordsFailedToolCallAsObservation below).

func TestExecutorRejectsInvalidArgs(t *testing.T) {
	reg := tools.NewRegistry()
	require.NoError(t, reg.Register(echoTool{}))
	emitter := &recordingEmitter{}
	exec := tools.NewExecutor(reg, emitter)

	rec, err := exec.Call(context.Background(), "conv-1", "msg-1", "call-1", "echo", json.RawMessage(`{}`))
	require.NoError(t, err)
	require.NotEmpty(t, rec.Err)
	require.Nil(t, rec.Result)
	require.Equal(t, []events.Type{events.TypeAct, events.TypeObserve}, emitter.events)
}

func TestExecutorRejectsUnknownTool(t *testing.T) {
	reg := tools.NewRegistry()
	emitter := &recordingEmitter{}
	exec := tools.NewExecutor(reg, emitter)

	rec, err := exec.Call(context.Background(), "conv-1", "msg-1", "call-1", "nope", nil)
	require.NoError(t, err)
	require.NotEmpty(t, rec.Err)
	require.Equal(t, []events.Type{events.TypeAct, events.TypeObserve}, emitter.events)
}

func TestExecutorEnforcesPermissionMatrix(t *testing.T) {
	reg := tools.NewRegistry()
	require.NoError(t, reg.Register(elevatedTool{}))
	exec := tools.NewExecutor(reg, nil) // no elevated permission granted

	rec, err := exec.Call(context.Background(), "conv-1", "msg-1", "call-1", "elevated", json.RawMessage(`{}`))
	require.NoError(t, err)
	require.NotEmpty(t, rec.Err)
}

type elevatedTool struct{}

func (elevatedTool) Definition() tools.Definition {
	return tools.Definition{Name: "elevated", Permission: tools.PermissionElevated}
}
func (elevatedTool) Execute(context.Context, json.RawMessage) (any, error) { return nil, nil }

func TestExecutorRecordsFailedToolCallAsObservation(t *testing.T) {
	reg := tools.NewRegistry()
	require.NoError(t, reg.Register(echoTool{fail: true}))
	exec := tools.NewExecutor(reg, nil)

	rec, err := exec.Call(context.Background(), "conv-1", "msg-1", "call-1", "echo", json.RawMessage(`{"message":"hi"}`))
	require.NoError(t, err)
	require.Equal(t, "boom", rec.Err)
	require.Nil(t, rec.Result)
}

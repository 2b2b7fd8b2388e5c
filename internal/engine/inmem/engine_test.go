package inmem_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/agentcore/platform/internal/engine"
	"github.com/agentcore/platform/internal/engine/inmem"
)

func TestWorkflowExecutesActivityAndReturnsResult(t *testing.T) {
	eng := inmem.New()
	ctx := context.Background()

	require.NoError(t, eng.RegisterActivity(ctx, engine.ActivityDefinition{
		Name: "double",
		Handler: func(_ context.Context, input any) (any, error) {
			return input.(int) * 2, nil
		},
	}))
	require.NoError(t, eng.RegisterWorkflow(ctx, engine.WorkflowDefinition{
		Name: "double_workflow",
		Handler: func(wf engine.WorkflowContext, input any) (any, error) {
			var out int
			err := wf.ExecuteActivity(wf.Context(), engine.ActivityRequest{Name: "double", Input: input}, &out)
			return out, err
		},
	}))

	h, err := eng.StartWorkflow(ctx, engine.WorkflowStartRequest{ID: "run-1", Workflow: "double_workflow", Input: 21})
	require.NoError(t, err)

	var result int
	require.NoError(t, h.Wait(ctx, &result))
	require.Equal(t, 42, result)
}

func TestSignalChannelDeliversToWaitingWorkflow(t *testing.T) {
	eng := inmem.New()
	ctx := context.Background()

	require.NoError(t, eng.RegisterWorkflow(ctx, engine.WorkflowDefinition{
		Name: "waits_for_signal",
		Handler: func(wf engine.WorkflowContext, _ any) (any, error) {
			var msg string
			if err := wf.SignalChannel("greeting").Receive(wf.Context(), &msg); err != nil {
				return nil, err
			}
			return msg, nil
		},
	}))

	h, err := eng.StartWorkflow(ctx, engine.WorkflowStartRequest{ID: "run-2", Workflow: "waits_for_signal"})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return h.Signal(ctx, "greeting", "hello") == nil
	}, time.Second, 10*time.Millisecond)

	var result string
	require.NoError(t, h.Wait(ctx, &result))
	require.Equal(t, "hello", result)
}

func TestStartWorkflowRejectsUnregisteredName(t *testing.T) {
	eng := inmem.New()
	_, err := eng.StartWorkflow(context.Background(), engine.WorkflowStartRequest{ID: "run-3", Workflow: "missing"})
	require.Error(t, err)
}

package hitl_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/agentcore/platform/internal/hitl"
	"github.com/agentcore/platform/internal/streambroker"
)

func newRegistry() (*hitl.Registry, hitl.Store) {
	store := hitl.NewMemStore()
	broker := streambroker.NewMemBroker()
	return hitl.NewRegistry(store, broker, nil), store
}

func TestRegistryWaitReceivesResolution(t *testing.T) {
	reg, _ := newRegistry()
	ctx := context.Background()
	const conv, reqID = "conv-1", "req-1"

	require.NoError(t, reg.Create(ctx, &hitl.Request{ID: reqID, ConversationID: conv, Kind: hitl.KindClarification}))

	done := make(chan hitl.Response, 1)
	go func() {
		resp, err := reg.Wait(ctx, conv, reqID, 2*time.Second, "")
		require.NoError(t, err)
		done <- resp
	}()

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, reg.Resolve(ctx, conv, hitl.Response{RequestID: reqID, Answer: "yes", Source: "human"}))

	select {
	case resp := <-done:
		require.Equal(t, "yes", resp.Answer)
		require.Equal(t, "human", resp.Source)
	case <-time.After(3 * time.Second):
		t.Fatal("wait did not observe resolution")
	}
}

func TestRegistryWaitTimesOutToDefaultChoice(t *testing.T) {
	reg, store := newRegistry()
	ctx := context.Background()
	const conv, reqID = "conv-2", "req-2"

	require.NoError(t, reg.Create(ctx, &hitl.Request{ID: reqID, ConversationID: conv, Kind: hitl.KindDecision, DefaultChoice: "abort"}))

	resp, err := reg.Wait(ctx, conv, reqID, 30*time.Millisecond, "abort")
	require.NoError(t, err)
	require.Equal(t, "abort", resp.Answer)
	require.Equal(t, "timeout", resp.Source)

	stored, err := store.Get(ctx, reqID)
	require.NoError(t, err)
	require.Equal(t, hitl.StatusResolved, stored.Status)
}

// TestRegistryWaitTimesOutWithNoDefaultChoice covers spec.md §4.3 step 5 /
// §7 / §8: a HITL timeout with no default_choice configured must fail the
// tool call rather than silently resolve with an empty answer.
func TestRegistryWaitTimesOutWithNoDefaultChoice(t *testing.T) {
	reg, store := newRegistry()
	ctx := context.Background()
	const conv, reqID = "conv-4", "req-4"

	require.NoError(t, reg.Create(ctx, &hitl.Request{ID: reqID, ConversationID: conv, Kind: hitl.KindClarification}))

	_, err := reg.Wait(ctx, conv, reqID, 30*time.Millisecond, "")
	require.ErrorIs(t, err, hitl.ErrTimeout)

	stored, err := store.Get(ctx, reqID)
	require.NoError(t, err)
	require.Equal(t, hitl.StatusCanceled, stored.Status)
}

func TestRegistryResolveIsIdempotent(t *testing.T) {
	reg, _ := newRegistry()
	ctx := context.Background()
	const conv, reqID = "conv-3", "req-3"

	require.NoError(t, reg.Create(ctx, &hitl.Request{ID: reqID, ConversationID: conv, Kind: hitl.KindEnvVar}))
	require.NoError(t, reg.Resolve(ctx, conv, hitl.Response{RequestID: reqID, Answer: "x", Source: "human"}))

	err := reg.Resolve(ctx, conv, hitl.Response{RequestID: reqID, Answer: "y", Source: "human"})
	require.ErrorIs(t, err, hitl.ErrAlreadyResolved)
}

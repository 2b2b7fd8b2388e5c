package chat_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/agentcore/platform/internal/chat"
	"github.com/agentcore/platform/internal/eventlog"
	"github.com/agentcore/platform/internal/events"
	"github.com/agentcore/platform/internal/streambroker"
)

func publish(t *testing.T, broker streambroker.Broker, conversationID string, seq int64, typ events.Type, data any) {
	t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	env := events.Envelope{Type: typ, Data: raw, Seq: seq, Timestamp: time.Now().UTC()}
	payload, err := json.Marshal(env)
	require.NoError(t, err)
	_, err = broker.Publish(context.Background(), streambroker.EventStreamKey(conversationID), payload)
	require.NoError(t, err)
}

// TestConnectChatStreamFiltersOtherMessageIDsWhileTailing drives two
// interleaved message_ids through one conversation's stream and asserts
// ConnectChatStream's tail path (spec.md §4.10 step 3) yields only the
// requested message_id's events, including its text_delta entries — the
// exemption that previously let every text_delta through regardless of
// message_id would otherwise leak msg-B's delta into msg-A's subscriber.
func TestConnectChatStreamFiltersOtherMessageIDsWhileTailing(t *testing.T) {
	store := eventlog.NewMemStore()
	broker := streambroker.NewMemBroker()
	orch := &chat.Orchestrator{Events: store, Broker: broker}

	const conversationID = "conv-1"
	const msgA = "msg-A"
	const msgB = "msg-B"

	// msg-A's delta, then msg-B's delta interleaved, then msg-A's second
	// delta, then msg-B's completion, then msg-A's completion.
	publish(t, broker, conversationID, 1, events.TypeTextDelta, events.TextDeltaData{Delta: "h", MessageID: msgA})
	publish(t, broker, conversationID, 2, events.TypeTextDelta, events.TextDeltaData{Delta: "X", MessageID: msgB})
	publish(t, broker, conversationID, 3, events.TypeTextDelta, events.TextDeltaData{Delta: "i", MessageID: msgA})
	publish(t, broker, conversationID, 4, events.TypeComplete, events.CompleteData{Content: "B done", MessageID: msgB})
	publish(t, broker, conversationID, 5, events.TypeComplete, events.CompleteData{Content: "A done", MessageID: msgA})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	out, errs := orch.ConnectChatStream(ctx, conversationID, msgA)

	var got []chat.StreamedEvent
	for e := range out {
		got = append(got, e)
	}
	require.NoError(t, drain(errs))

	require.Len(t, got, 3)
	require.Equal(t, events.TypeTextDelta, got[0].Type)
	require.Equal(t, events.TypeTextDelta, got[1].Type)
	require.Equal(t, events.TypeComplete, got[2].Type)

	for _, e := range got {
		var probe struct {
			MessageID string `json:"message_id"`
		}
		require.NoError(t, json.Unmarshal(e.Data, &probe))
		require.Equal(t, msgA, probe.MessageID)
	}
}

func drain(errs <-chan error) error {
	for err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

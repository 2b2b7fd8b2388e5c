package eventlog_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/agentcore/platform/internal/eventlog"
	"github.com/agentcore/platform/internal/events"
)

func TestMemStoreSequenceIsDenseAndGapFree(t *testing.T) {
	s := eventlog.NewMemStore()
	ctx := context.Background()
	const conv = "conv-1"

	for i := 0; i < 5; i++ {
		r := &eventlog.Record{ConversationID: conv, Type: events.TypeThought}
		require.NoError(t, s.Append(ctx, r))
		require.Equal(t, int64(i+1), r.Sequence)
	}

	recs, err := s.ListByConversation(ctx, conv, 0)
	require.NoError(t, err)
	require.Len(t, recs, 5)
	for i, r := range recs {
		require.Equal(t, int64(i+1), r.Sequence)
	}
}

func TestMemStoreConcurrentAppendsDoNotDuplicateSequence(t *testing.T) {
	s := eventlog.NewMemStore()
	ctx := context.Background()
	const conv = "conv-concurrent"

	var wg sync.WaitGroup
	const n = 50
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r := &eventlog.Record{ConversationID: conv, Type: events.TypeThought}
			require.NoError(t, s.Append(ctx, r))
		}()
	}
	wg.Wait()

	recs, err := s.ListByConversation(ctx, conv, 0)
	require.NoError(t, err)
	require.Len(t, recs, n)

	seen := make(map[int64]bool, n)
	for _, r := range recs {
		require.False(t, seen[r.Sequence], "duplicate sequence %d", r.Sequence)
		seen[r.Sequence] = true
		require.GreaterOrEqual(t, r.Sequence, int64(1))
		require.LessOrEqual(t, r.Sequence, int64(n))
	}
}

func TestMemStoreListByMessageIsOrderedAndScoped(t *testing.T) {
	s := eventlog.NewMemStore()
	ctx := context.Background()
	const conv = "conv-2"

	require.NoError(t, s.Append(ctx, &eventlog.Record{ConversationID: conv, MessageID: "m1", Type: events.TypeUserMessage}))
	require.NoError(t, s.Append(ctx, &eventlog.Record{ConversationID: conv, MessageID: "m2", Type: events.TypeUserMessage}))
	require.NoError(t, s.Append(ctx, &eventlog.Record{ConversationID: conv, MessageID: "m1", Type: events.TypeComplete}))

	recs, err := s.ListByMessage(ctx, conv, "m1")
	require.NoError(t, err)
	require.Len(t, recs, 2)
	require.Equal(t, events.TypeUserMessage, recs[0].Type)
	require.Equal(t, events.TypeComplete, recs[1].Type)
}

func TestMemStoreDeleteByConversationClearsSequenceCounter(t *testing.T) {
	s := eventlog.NewMemStore()
	ctx := context.Background()
	const conv = "conv-3"

	require.NoError(t, s.Append(ctx, &eventlog.Record{ConversationID: conv, Type: events.TypeUserMessage}))
	require.NoError(t, s.DeleteByConversation(ctx, conv))

	recs, err := s.ListByConversation(ctx, conv, 0)
	require.NoError(t, err)
	require.Empty(t, recs)

	// Sequence restarts from 1 after delete — matches a fresh conversation.
	r := &eventlog.Record{ConversationID: conv, Type: events.TypeUserMessage}
	require.NoError(t, s.Append(ctx, r))
	require.Equal(t, int64(1), r.Sequence)
}

func TestAppendRejectsMissingConversation(t *testing.T) {
	s := eventlog.NewMemStore()
	err := s.Append(context.Background(), &eventlog.Record{Type: events.TypeUserMessage})
	require.ErrorIs(t, err, eventlog.ErrConversationRequired)
}

package streambroker_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/agentcore/platform/internal/streambroker"
)

func TestMemBrokerReadFromStartReturnsAllInOrder(t *testing.T) {
	b := streambroker.NewMemBroker()
	ctx := context.Background()
	key := streambroker.EventStreamKey("conv-1")

	for i, payload := range [][]byte{[]byte("a"), []byte("b"), []byte("c")} {
		id, err := b.Publish(ctx, key, payload)
		require.NoError(t, err)
		require.Equal(t, itoa(i+1), id)
	}

	entries, err := b.Read(ctx, key, streambroker.FromStart, 0, 0)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	require.Equal(t, []byte("a"), entries[0].Payload)
	require.Equal(t, []byte("c"), entries[2].Payload)
}

func TestMemBrokerReadFromLatestSkipsExisting(t *testing.T) {
	b := streambroker.NewMemBroker()
	ctx := context.Background()
	key := streambroker.HITLResponseStreamKey("conv-2")

	_, err := b.Publish(ctx, key, []byte("old"))
	require.NoError(t, err)

	entries, err := b.Read(ctx, key, streambroker.FromLatest, 0, 0)
	require.NoError(t, err)
	require.Empty(t, entries)

	_, err = b.Publish(ctx, key, []byte("new"))
	require.NoError(t, err)

	entries, err = b.Read(ctx, key, streambroker.FromLatest, 0, 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, []byte("new"), entries[0].Payload)
}

func TestMemBrokerReadResumesAfterLastSeenID(t *testing.T) {
	b := streambroker.NewMemBroker()
	ctx := context.Background()
	key := streambroker.EventStreamKey("conv-3")

	var lastID string
	for _, payload := range [][]byte{[]byte("1"), []byte("2"), []byte("3")} {
		id, err := b.Publish(ctx, key, payload)
		require.NoError(t, err)
		lastID = id
	}

	entries, err := b.Read(ctx, key, lastID, 0, 0)
	require.NoError(t, err)
	require.Empty(t, entries)

	_, err = b.Publish(ctx, key, []byte("4"))
	require.NoError(t, err)
	entries, err = b.Read(ctx, key, lastID, 0, 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, []byte("4"), entries[0].Payload)
}

func TestMemBrokerBlockingReadWakesOnPublish(t *testing.T) {
	b := streambroker.NewMemBroker()
	ctx := context.Background()
	key := streambroker.EventStreamKey("conv-4")

	done := make(chan []streambroker.Entry, 1)
	go func() {
		entries, err := b.Read(ctx, key, streambroker.FromLatest, 0, time.Second)
		require.NoError(t, err)
		done <- entries
	}()

	time.Sleep(20 * time.Millisecond)
	_, err := b.Publish(ctx, key, []byte("woke"))
	require.NoError(t, err)

	select {
	case entries := <-done:
		require.Len(t, entries, 1)
		require.Equal(t, []byte("woke"), entries[0].Payload)
	case <-time.After(2 * time.Second):
		t.Fatal("blocking read did not wake on publish")
	}
}

func TestMemBrokerBlockingReadTimesOutEmpty(t *testing.T) {
	b := streambroker.NewMemBroker()
	ctx := context.Background()
	key := streambroker.EventStreamKey("conv-5")

	start := time.Now()
	entries, err := b.Read(ctx, key, streambroker.FromLatest, 0, 50*time.Millisecond)
	require.NoError(t, err)
	require.Empty(t, entries)
	require.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
}

func itoa(n int) string {
	digits := []byte{}
	if n == 0 {
		return "0"
	}
	for n > 0 {
		digits = append([]byte{byte('0' + n%10)}, digits...)
		n /= 10
	}
	return string(digits)
}

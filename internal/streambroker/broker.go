// Package streambroker implements the thin port over a replayable ordered
// stream (spec.md L2): publish, range-read, and tail. It is the transport
// used for live event tailing (key "agent:events:{conversation_id}") and for
// HITL response delivery (key "hitl:responses:{conversation_id}").
//
// The adapter guarantees ordering within a stream key and at-least-once
// delivery; it does NOT deduplicate — consumers use the payload's embedded
// sequence number for idempotence (spec.md §4.2).
package streambroker

import (
	"context"
	"time"
)

const (
	// FromStart reads every retained entry in the stream from the beginning.
	FromStart = "0"
	// FromLatest tails new entries only, ignoring anything already retained.
	FromLatest = "$"
)

type (
	// Entry is one published message with its broker-assigned ID.
	Entry struct {
		// ID is the broker-assigned, monotonically increasing entry ID
		// within the stream (opaque; use it as the next call's From value
		// to resume after this entry).
		ID string
		// Payload is the raw bytes published via Publish.
		Payload []byte
	}

	// Broker is the port session/chat-layer code depends on; concrete
	// bindings (e.g. Redis Streams) implement it without the caller needing
	// to know the backend.
	Broker interface {
		// Publish appends payload to the named stream and returns the
		// broker-assigned entry ID.
		Publish(ctx context.Context, streamKey string, payload []byte) (string, error)

		// Read returns up to count entries from streamKey starting strictly
		// after from (use FromStart for "all", FromLatest to tail only new
		// entries). If block > 0 and no entries are immediately available,
		// Read waits up to block for new entries before returning an empty
		// result. Read never blocks past ctx's deadline/cancellation.
		Read(ctx context.Context, streamKey string, from string, count int, block time.Duration) ([]Entry, error)
	}
)

// EventStreamKey returns the stream key used for SSE-style live tailing of a
// conversation's events.
func EventStreamKey(conversationID string) string {
	return "agent:events:" + conversationID
}

// HITLResponseStreamKey returns the stream key used to transport HITL
// responses from the process that owns the HTTP layer back to whichever
// process is running the waiting activity.
func HITLResponseStreamKey(conversationID string) string {
	return "hitl:responses:" + conversationID
}

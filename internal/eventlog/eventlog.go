// Package eventlog implements the durable, append-only per-conversation
// event log (spec.md L1). It is the canonical source of truth for turn
// replay: every event a conversation ever produced lives here, ordered by a
// dense, gapless, per-conversation sequence number.
package eventlog

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/agentcore/platform/internal/events"
)

type (
	// Record is the durable representation of one AgentExecutionEvent.
	Record struct {
		// ID is the store-assigned identifier.
		ID string
		// ConversationID is the owning conversation.
		ConversationID string
		// MessageID identifies the turn this event belongs to.
		MessageID string
		// Sequence is the per-conversation monotonic sequence number,
		// dense and unique: {1, 2, ..., N} for some N.
		Sequence int64
		// Type is the event type (one of the closed set in package events).
		Type events.Type
		// Data is the opaque, type-specific JSON payload.
		Data json.RawMessage
		// CreatedAt is the time the event was durably appended. CreatedAt is
		// non-decreasing in Sequence order (testable property #1).
		CreatedAt time.Time
	}

	// Store is the append-only event log contract. Implementations must
	// serialize Append calls per ConversationID (e.g. via a DB-level atomic
	// counter or SELECT ... FOR UPDATE) so sequence numbers are dense and
	// gap-free; Append calls for different conversations may proceed
	// concurrently.
	Store interface {
		// Append assigns the next sequence number for r.ConversationID and
		// persists the record. On return, r.Sequence and r.ID are populated
		// with their store-assigned values. Append failure is fatal for the
		// calling turn (spec §4.1, §7): callers must surface an error event
		// and terminate rather than retry silently.
		Append(ctx context.Context, r *Record) error

		// ListByConversation returns events for conversationID in sequence
		// order. When sinceSeq > 0, only events with Sequence > sinceSeq are
		// returned.
		ListByConversation(ctx context.Context, conversationID string, sinceSeq int64) ([]*Record, error)

		// ListByMessage returns the contiguous event slice for one assistant
		// turn, in sequence order.
		ListByMessage(ctx context.Context, conversationID, messageID string) ([]*Record, error)

		// DeleteByConversation removes every event for conversationID. Used
		// when a Conversation is deleted; callers are responsible for
		// cascading to checkpoints and tool execution records in the
		// documented order.
		DeleteByConversation(ctx context.Context, conversationID string) error
	}
)

// ErrConversationRequired is returned when a Record is missing its owning
// conversation ID.
var ErrConversationRequired = errors.New("eventlog: conversation id is required")

// ErrEventTypeRequired is returned when a Record has no event type.
var ErrEventTypeRequired = errors.New("eventlog: event type is required")

// Validate checks the fields Append requires before allocating a sequence
// number, so stores can share one precondition check.
func Validate(r *Record) error {
	if r == nil || r.ConversationID == "" {
		return ErrConversationRequired
	}
	if r.Type == "" {
		return ErrEventTypeRequired
	}
	return nil
}

// Package processor implements the Session Processor (spec.md L8): one
// user turn driven as a ReAct loop (reason, act, observe, repeat) against
// the thin LLM and Tool Registry/Executor ports, emitting every step
// through the platform's shared emit pathway (internal/eventlog +
// internal/streambroker).
package processor

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/agentcore/platform/internal/events"
	"github.com/agentcore/platform/internal/eventlog"
	"github.com/agentcore/platform/internal/streambroker"
)

// Emitter is the shared emit pathway referenced throughout internal/events
// and internal/eventlog: it appends an event to the durable log, assigns
// the authoritative sequence number, then publishes the same event to the
// stream broker for live subscribers. It satisfies tools.EventEmitter so
// the Tool Executor can emit act/observe pairs without importing this
// package.
type Emitter struct {
	Log    eventlog.Store
	Broker streambroker.Broker
}

// NewEmitter constructs an Emitter over the durable log and stream broker.
// Broker may be nil for tests that only care about the durable record.
func NewEmitter(log eventlog.Store, broker streambroker.Broker) *Emitter {
	return &Emitter{Log: log, Broker: broker}
}

// Emit persists and publishes one event, discarding the assigned sequence
// number. It satisfies tools.EventEmitter.
func (e *Emitter) Emit(ctx context.Context, conversationID, messageID string, typ events.Type, data any) error {
	_, err := e.EmitSeq(ctx, conversationID, messageID, typ, data)
	return err
}

// EmitSeq persists and publishes one event and returns its authoritative
// sequence number, for callers (the processor's own loop) that need to
// track the turn's current position.
func (e *Emitter) EmitSeq(ctx context.Context, conversationID, messageID string, typ events.Type, data any) (int64, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return 0, fmt.Errorf("processor: marshal %s payload: %w", typ, err)
	}

	rec := &eventlog.Record{
		ConversationID: conversationID,
		MessageID:      messageID,
		Type:           typ,
		Data:           raw,
	}
	if err := e.Log.Append(ctx, rec); err != nil {
		return 0, fmt.Errorf("processor: append %s event: %w", typ, err)
	}

	if e.Broker != nil {
		envelope := events.Envelope{Type: typ, Data: raw, Seq: rec.Sequence, Timestamp: rec.CreatedAt}
		payload, err := json.Marshal(envelope)
		if err != nil {
			return rec.Sequence, fmt.Errorf("processor: marshal %s envelope: %w", typ, err)
		}
		if _, err := e.Broker.Publish(ctx, streambroker.EventStreamKey(conversationID), payload); err != nil {
			return rec.Sequence, fmt.Errorf("processor: publish %s event: %w", typ, err)
		}
	}
	return rec.Sequence, nil
}

// Package chat implements the Chat Orchestrator (spec.md L10): the
// per-request entry point that persists a user's turn, routes it to the
// (possibly already-running) Session Workflow, and streams back the
// resulting events by combining durable-log replay with live stream
// tailing.
package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/agentcore/platform/internal/conversation"
	"github.com/agentcore/platform/internal/eventlog"
	"github.com/agentcore/platform/internal/events"
	"github.com/agentcore/platform/internal/model"
	"github.com/agentcore/platform/internal/session"
	"github.com/agentcore/platform/internal/streambroker"
)

const (
	// contextWindow is the number of prior message events loaded to form
	// conversation_context (spec.md §4.10 step 3).
	contextWindow = 50
	// tailPollInterval bounds how long a single broker Read blocks while
	// tailing live events, so the consumer loop can reobserve ctx
	// cancellation between polls.
	tailPollInterval = 2 * time.Second
)

// StreamedEvent is the SSE event shape yielded to the HTTP caller (spec.md
// §6): {"type", "data", "id", "timestamp"}.
type StreamedEvent struct {
	Type      events.Type     `json:"type"`
	Data      json.RawMessage `json:"data"`
	ID        int64           `json:"id"`
	Timestamp time.Time       `json:"timestamp"`
}

// Orchestrator implements stream_chat and connect_chat_stream.
type Orchestrator struct {
	Conversations conversation.Store
	Events        eventlog.Store
	Broker        streambroker.Broker
	Sessions      *session.Manager
	Mode          session.AgentMode
}

// StreamChat is the one operation spec.md §4.10 defines:
// stream_chat(conversation_id, user_message, project_id, user_id, tenant_id)
// -> lazy sequence of events. The returned channel is closed once the turn
// reaches complete/error or ctx is done. A failure to persist the turn or
// send the chat update is returned as the third value; a replay or tail
// failure surfaces through the returned error channel after the event
// channel is drained.
func (o *Orchestrator) StreamChat(ctx context.Context, conversationID, userMessage, projectID, userID, tenantID string) (<-chan StreamedEvent, <-chan error, error) {
	conv, err := o.Conversations.Get(ctx, conversationID)
	if err != nil {
		return nil, nil, fmt.Errorf("chat: load conversation: %w", err)
	}
	if err := conv.Authorize(projectID, userID); err != nil {
		out := make(chan StreamedEvent, 1)
		out <- unauthorizedEvent()
		close(out)
		errs := make(chan error)
		close(errs)
		return out, errs, nil
	}

	messageID := uuid.NewString()
	userData := events.UserMessageData{Role: string(model.RoleUser), Content: userMessage, MessageID: messageID}
	raw, err := json.Marshal(userData)
	if err != nil {
		return nil, nil, fmt.Errorf("chat: marshal user_message: %w", err)
	}
	rec := &eventlog.Record{ConversationID: conversationID, MessageID: messageID, Type: events.TypeUserMessage, Data: raw}
	if err := o.Events.Append(ctx, rec); err != nil {
		return nil, nil, fmt.Errorf("chat: append user_message: %w", err)
	}
	if o.Broker != nil {
		env := events.Envelope{Type: events.TypeUserMessage, Data: raw, Seq: rec.Sequence, Timestamp: rec.CreatedAt}
		payload, _ := json.Marshal(env)
		if _, err := o.Broker.Publish(ctx, streambroker.EventStreamKey(conversationID), payload); err != nil {
			return nil, nil, fmt.Errorf("chat: publish user_message: %w", err)
		}
	}
	_ = o.Conversations.IncrementMessageCount(ctx, conversationID, 1)

	contextMessages, err := o.loadContext(ctx, conversationID)
	if err != nil {
		return nil, nil, fmt.Errorf("chat: load context: %w", err)
	}
	contextMessages = append(contextMessages, &model.Message{
		Role:  model.RoleUser,
		Parts: []model.Part{model.TextPart{Text: userMessage}},
	})

	if err := o.Sessions.SendChat(ctx, tenantID, projectID, o.Mode, session.ChatInput{
		ConversationID: conversationID,
		MessageID:      messageID,
		Messages:       contextMessages,
	}); err != nil {
		return nil, nil, fmt.Errorf("chat: send chat update: %w", err)
	}

	userEvent := StreamedEvent{Type: events.TypeUserMessage, Data: raw, ID: rec.Sequence, Timestamp: rec.CreatedAt}
	replay, replayErrs := o.ConnectChatStream(ctx, conversationID, messageID)

	// Prepend the just-written user_message so the caller's very first
	// event is the turn's own trigger (spec.md §4.10 step 2), ahead of
	// whatever ConnectChatStream replays.
	merged := make(chan StreamedEvent)
	mergedErrs := make(chan error, 1)
	go func() {
		defer close(merged)
		defer close(mergedErrs)
		select {
		case merged <- userEvent:
		case <-ctx.Done():
			return
		}
		for e := range replay {
			// The durable replay includes the user_message record already
			// sent above; skip it so it is yielded once.
			if e.Type == events.TypeUserMessage && e.ID == rec.Sequence {
				continue
			}
			select {
			case merged <- e:
			case <-ctx.Done():
				return
			}
		}
		if err, ok := <-replayErrs; ok && err != nil {
			mergedErrs <- err
		}
	}()
	return merged, mergedErrs, nil
}

func unauthorizedEvent() StreamedEvent {
	raw, _ := json.Marshal(events.ErrorData{Message: "unauthorized", Code: "unauthorized"})
	return StreamedEvent{Type: events.TypeError, Data: raw, Timestamp: time.Now().UTC()}
}

// loadContext returns the last <=contextWindow message-bearing events for
// conversationID as model.Messages, excluding the just-written user
// message (spec.md §4.10 step 3: "the workflow activity will reinject it").
func (o *Orchestrator) loadContext(ctx context.Context, conversationID string) ([]*model.Message, error) {
	records, err := o.Events.ListByConversation(ctx, conversationID, 0)
	if err != nil {
		return nil, err
	}

	var messages []*model.Message
	for _, r := range records {
		switch r.Type {
		case events.TypeUserMessage:
			var d events.UserMessageData
			if err := json.Unmarshal(r.Data, &d); err != nil {
				continue
			}
			messages = append(messages, &model.Message{Role: model.RoleUser, Parts: []model.Part{model.TextPart{Text: d.Content}}})
		case events.TypeAssistantMessage:
			var d events.AssistantMessageData
			if err := json.Unmarshal(r.Data, &d); err != nil {
				continue
			}
			messages = append(messages, &model.Message{Role: model.RoleAssistant, Parts: []model.Part{model.TextPart{Text: d.Content}}})
		}
	}
	if len(messages) > contextWindow {
		messages = messages[len(messages)-contextWindow:]
	}
	return messages, nil
}

// ConnectChatStream implements the combined replay/tail consumer protocol
// of spec.md §4.10: replay the durable log for messageID, then (depending
// on whether the turn already reached a terminal event) either backfill
// stream-only text_delta entries or tail the broker for the remainder,
// deduplicating against what replay already yielded.
func (o *Orchestrator) ConnectChatStream(ctx context.Context, conversationID, messageID string) (<-chan StreamedEvent, <-chan error) {
	out := make(chan StreamedEvent)
	errs := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errs)

		records, err := o.Events.ListByMessage(ctx, conversationID, messageID)
		if err != nil {
			errs <- fmt.Errorf("chat: replay log: %w", err)
			return
		}

		var lastSeq int64
		sawComplete := false
		for _, r := range records {
			select {
			case out <- StreamedEvent{Type: r.Type, Data: r.Data, ID: r.Sequence, Timestamp: r.CreatedAt}:
			case <-ctx.Done():
				errs <- ctx.Err()
				return
			}
			if r.Sequence > lastSeq {
				lastSeq = r.Sequence
			}
			if r.Type.Terminal() {
				sawComplete = true
			}
		}

		if o.Broker == nil {
			return
		}

		if sawComplete {
			deltas, err := o.streamOnlyDeltas(ctx, conversationID, messageID, lastSeq)
			if err != nil {
				errs <- fmt.Errorf("chat: backfill stream-only deltas: %w", err)
				return
			}
			for _, d := range deltas {
				select {
				case out <- d:
				case <-ctx.Done():
					errs <- ctx.Err()
					return
				}
			}
			return
		}

		if err := o.tail(ctx, conversationID, messageID, lastSeq, out); err != nil {
			errs <- err
		}
	}()

	return out, errs
}

// streamOnlyDeltas reads the full retained stream and returns every
// text_delta entry for messageID whose embedded seq falls within the
// log's observed range, sorted by seq (spec.md §4.10 step 2).
func (o *Orchestrator) streamOnlyDeltas(ctx context.Context, conversationID, messageID string, lastSeq int64) ([]StreamedEvent, error) {
	entries, err := o.Broker.Read(ctx, streambroker.EventStreamKey(conversationID), streambroker.FromStart, 0, 0)
	if err != nil {
		return nil, err
	}
	var out []StreamedEvent
	for _, e := range entries {
		env, ok := decodeEnvelope(e.Payload)
		if !ok || env.Type != events.TypeTextDelta || env.Seq > lastSeq {
			continue
		}
		if !payloadBelongsToMessage(env.Data, messageID) {
			continue
		}
		out = append(out, StreamedEvent{Type: env.Type, Data: env.Data, ID: env.Seq, Timestamp: env.Timestamp})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// tail reads the broker from the very start (to catch events published
// before the durable write completed) and yields every remaining event for
// messageID whose seq exceeds lastSeq, stopping at complete/error.
func (o *Orchestrator) tail(ctx context.Context, conversationID, messageID string, lastSeq int64, out chan<- StreamedEvent) error {
	key := streambroker.EventStreamKey(conversationID)
	from := streambroker.FromStart
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		entries, err := o.Broker.Read(ctx, key, from, 0, tailPollInterval)
		if err != nil {
			return fmt.Errorf("chat: tail stream: %w", err)
		}
		for _, e := range entries {
			from = e.ID
			env, ok := decodeEnvelope(e.Payload)
			if !ok {
				continue
			}
			if env.Seq <= lastSeq {
				continue // already delivered by replay; at-least-once dedup
			}
			if !payloadBelongsToMessage(env.Data, messageID) {
				continue
			}
			select {
			case out <- StreamedEvent{Type: env.Type, Data: env.Data, ID: env.Seq, Timestamp: env.Timestamp}:
			case <-ctx.Done():
				return ctx.Err()
			}
			if env.Seq > lastSeq {
				lastSeq = env.Seq
			}
			if env.Type.Terminal() {
				return nil
			}
		}
	}
}

func decodeEnvelope(payload []byte) (events.Envelope, bool) {
	var env events.Envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return events.Envelope{}, false
	}
	return env, true
}

// payloadBelongsToMessage reports whether data carries the given
// message_id field, the common shape shared by every event type's payload.
// A payload with no message_id (or an empty one) is also accepted.
func payloadBelongsToMessage(data json.RawMessage, messageID string) bool {
	var probe struct {
		MessageID string `json:"message_id"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return false
	}
	return probe.MessageID == "" || probe.MessageID == messageID
}

package hitl

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/agentcore/platform/internal/streambroker"
	"github.com/agentcore/platform/internal/telemetry"
)

// Registry bridges a blocked tool call to its eventual human answer. A
// request is always resolved through the same path regardless of whether
// the resolver lives in the process currently waiting: Resolve persists the
// answer then publishes it on the conversation's response stream, and every
// waiting Wait call (in this process or another) is listening on that same
// stream. This mirrors the teacher's interrupt.Controller signal-channel
// bridge, except the transport is the stream broker rather than a Temporal
// signal channel, since a HITL answer may arrive in an HTTP handler running
// in a different process than the workflow worker.
type Registry struct {
	store  Store
	broker streambroker.Broker
	log    telemetry.Logger

	mu        sync.Mutex
	listeners map[string]*convListener // conversation_id -> shared tail goroutine
}

type convListener struct {
	refs    int
	cancel  context.CancelFunc
	mu      sync.Mutex
	waiters map[string]chan Response // request_id -> waiter
}

// NewRegistry builds a Registry over the given persistence and transport.
func NewRegistry(store Store, broker streambroker.Broker, log telemetry.Logger) *Registry {
	if log == nil {
		log = telemetry.NewNoopLogger()
	}
	return &Registry{store: store, broker: broker, log: log, listeners: make(map[string]*convListener)}
}

// Create persists a new pending request.
func (r *Registry) Create(ctx context.Context, req *Request) error {
	if req.Status == "" {
		req.Status = StatusPending
	}
	return r.store.Create(ctx, req)
}

// Resolve records the human's answer and publishes it so any Wait call for
// this request, in this process or another, observes it. Resolving an
// already-resolved or canceled request changes and publishes nothing and
// returns ErrAlreadyResolved, which callers treat as a benign duplicate.
func (r *Registry) Resolve(ctx context.Context, conversationID string, resp Response) error {
	if err := r.store.Resolve(ctx, resp.RequestID, resp); err != nil {
		return err
	}
	payload, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("hitl: marshal response: %w", err)
	}
	if _, err := r.broker.Publish(ctx, streambroker.HITLResponseStreamKey(conversationID), payload); err != nil {
		return fmt.Errorf("hitl: publish response: %w", err)
	}
	return nil
}

// Cancel marks a pending request canceled without an answer, used when the
// owning conversation or workflow is torn down while a request is in flight.
func (r *Registry) Cancel(ctx context.Context, requestID string) error {
	return r.store.Cancel(ctx, requestID)
}

// Wait blocks until req.ID is resolved, timeout elapses, or ctx is
// canceled. On timeout, if defaultChoice is non-empty the request is
// resolved server-side with Source "timeout" and that answer is
// returned; otherwise Wait cancels the request and returns ErrTimeout, with
// no Response to act on — the caller must treat that as a tool-local
// failure, not a successful answer.
func (r *Registry) Wait(ctx context.Context, conversationID, requestID string, timeout time.Duration, defaultChoice string) (Response, error) {
	waiter := r.attach(conversationID, requestID)
	defer r.detach(conversationID, requestID)

	var timeoutCh <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		timeoutCh = timer.C
	}

	select {
	case resp := <-waiter:
		return resp, nil
	case <-ctx.Done():
		return Response{}, ctx.Err()
	case <-timeoutCh:
		return r.resolveTimeout(conversationID, requestID, defaultChoice)
	}
}

func (r *Registry) resolveTimeout(conversationID, requestID, defaultChoice string) (Response, error) {
	ctx := context.Background()
	if defaultChoice == "" {
		if err := r.Cancel(ctx, requestID); err != nil && err != ErrAlreadyResolved {
			return Response{}, fmt.Errorf("hitl: cancel timed-out request: %w", err)
		}
		return Response{}, ErrTimeout
	}
	resp := Response{RequestID: requestID, Answer: defaultChoice, Source: "timeout"}
	if err := r.Resolve(ctx, conversationID, resp); err != nil && err != ErrAlreadyResolved {
		return Response{}, fmt.Errorf("hitl: resolve timeout default: %w", err)
	}
	return resp, nil
}

// attach registers requestID's waiter channel, starting the conversation's
// shared tail goroutine on first use.
func (r *Registry) attach(conversationID, requestID string) chan Response {
	r.mu.Lock()
	defer r.mu.Unlock()

	l, ok := r.listeners[conversationID]
	if !ok {
		lctx, cancel := context.WithCancel(context.Background())
		l = &convListener{cancel: cancel, waiters: make(map[string]chan Response)}
		r.listeners[conversationID] = l
		go r.tail(lctx, conversationID, l)
	}
	l.refs++

	l.mu.Lock()
	defer l.mu.Unlock()
	ch := make(chan Response, 1)
	l.waiters[requestID] = ch
	return ch
}

func (r *Registry) detach(conversationID, requestID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	l, ok := r.listeners[conversationID]
	if !ok {
		return
	}
	l.mu.Lock()
	delete(l.waiters, requestID)
	l.mu.Unlock()

	l.refs--
	if l.refs <= 0 {
		l.cancel()
		delete(r.listeners, conversationID)
	}
}

// tail reads the conversation's response stream from the moment it started
// watching onward, dispatching each Response to a matching local waiter.
// Responses for request IDs nobody here is waiting on are dropped; they
// were either already delivered to a waiter in another process or belong to
// a request this process never awaited.
func (r *Registry) tail(ctx context.Context, conversationID string, l *convListener) {
	key := streambroker.HITLResponseStreamKey(conversationID)
	from := streambroker.FromLatest
	for {
		entries, err := r.broker.Read(ctx, key, from, 0, 5*time.Second)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			r.log.Error(ctx, "hitl: tail response stream", "conversation_id", conversationID, "error", err)
			time.Sleep(time.Second)
			continue
		}
		if ctx.Err() != nil {
			return
		}
		for _, e := range entries {
			from = e.ID
			var resp Response
			if err := json.Unmarshal(e.Payload, &resp); err != nil {
				r.log.Warn(ctx, "hitl: malformed response entry", "conversation_id", conversationID, "error", err)
				continue
			}
			l.mu.Lock()
			ch, ok := l.waiters[resp.RequestID]
			l.mu.Unlock()
			if ok {
				select {
				case ch <- resp:
				default:
				}
			}
		}
	}
}

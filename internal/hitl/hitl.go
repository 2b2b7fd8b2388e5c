// Package hitl implements the human-in-the-loop request/response registry
// (spec.md L3): it persists PendingHITLRequest rows, bridges a blocked tool
// call (running inside a workflow activity, possibly in a different process
// than the one that eventually resolves the request) to the external answer
// delivered over the stream broker, and guarantees each request resolves at
// most once.
package hitl

import (
	"context"
	"errors"
	"time"
)

type (
	// Kind is the closed set of HITL interaction shapes (spec.md §4.3).
	Kind string

	// Status is a PendingHITLRequest's lifecycle state.
	Status string

	// Option is one selectable choice offered to the human, shared across
	// clarification and decision kinds; decision options additionally carry
	// cost/time/risk fields via EstimatedTime/EstimatedCost/Risks.
	Option struct {
		ID            string
		Label         string
		Description   string
		Recommended   bool
		EstimatedTime string
		EstimatedCost string
		Risks         []string
	}

	// EnvVarSpec describes one environment variable value requested from
	// the human for the env_var kind.
	EnvVarSpec struct {
		Name              string
		Description       string
		InputType         string
		Required          bool
		ValidationPattern string
	}

	// Request is the durable representation of a PendingHITLRequest.
	Request struct {
		ID             string
		ConversationID string
		MessageID      string
		CallID         string
		Kind           Kind
		Prompt         string
		Options        []Option
		EnvVars        []EnvVarSpec
		AllowCustom    bool
		DefaultChoice  string
		Status         Status
		CreatedAt      time.Time
		ResolvedAt     time.Time
	}

	// Response is the human (or timeout-default) answer to a Request.
	Response struct {
		RequestID string
		Answer    string
		Values    map[string]string // populated for Kind == KindEnvVar
		Source    string            // "human" or "timeout"
	}

	// Store persists PendingHITLRequest rows. Implementations must make
	// Resolve/Cancel a no-op (returning ErrAlreadyResolved) when called
	// against a request that is no longer pending, so at-most-once
	// resolution holds even under duplicate delivery.
	Store interface {
		Create(ctx context.Context, r *Request) error
		Get(ctx context.Context, requestID string) (*Request, error)
		Resolve(ctx context.Context, requestID string, resp Response) error
		Cancel(ctx context.Context, requestID string) error
		ListPending(ctx context.Context, conversationID string) ([]*Request, error)
	}
)

const (
	KindClarification Kind = "clarification"
	KindDecision      Kind = "decision"
	KindEnvVar        Kind = "env_var"

	StatusPending  Status = "pending"
	StatusResolved Status = "resolved"
	StatusCanceled Status = "canceled"
)

// ErrAlreadyResolved is returned by Store.Resolve/Cancel when the request is
// no longer pending; callers must treat this as a benign duplicate, not a
// failure (spec.md testable property: each PendingHITLRequest resolved at
// most once).
var ErrAlreadyResolved = errors.New("hitl: request already resolved")

// ErrNotFound is returned when a request ID is unknown to the store.
var ErrNotFound = errors.New("hitl: request not found")

// ErrTimeout is returned by Registry.Wait when a request's timeout elapses
// with no default_choice configured — spec.md §4.3 step 5 and §7: "otherwise
// fail the tool call with a timeout error."
var ErrTimeout = errors.New("hitl: request timed out")

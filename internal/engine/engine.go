// Package engine defines the durable workflow engine abstractions used by
// the Session Workflow. It lets the same workflow code run against Temporal
// in production or an in-memory engine in tests, without the workflow
// handler depending on either directly.
package engine

import (
	"context"
	"time"

	"github.com/agentcore/platform/internal/telemetry"
)

type (
	// Engine abstracts workflow and activity registration plus workflow
	// startup so adapters (Temporal, in-memory) can be swapped without
	// touching the Session Workflow.
	Engine interface {
		// RegisterWorkflow registers a workflow definition. Called during
		// service initialization before starting workers.
		RegisterWorkflow(ctx context.Context, def WorkflowDefinition) error

		// RegisterActivity registers an activity definition. Called during
		// service initialization before starting workers.
		RegisterActivity(ctx context.Context, def ActivityDefinition) error

		// StartWorkflow launches a new workflow execution and returns a
		// handle for waiting, signaling, or canceling it. req.ID must be
		// unique within the engine; starting with a duplicate ID is
		// expected to fail or, for engines that support it, attach to the
		// existing run.
		StartWorkflow(ctx context.Context, req WorkflowStartRequest) (WorkflowHandle, error)
	}

	// WorkflowDefinition binds a workflow handler to a logical name and
	// default task queue.
	WorkflowDefinition struct {
		Name      string
		TaskQueue string
		Handler   WorkflowFunc
	}

	// WorkflowFunc is the entry point invoked by the engine when a workflow
	// executes. It must be deterministic under replay: no direct I/O,
	// randomness, or wall-clock reads outside of WorkflowContext.Now.
	WorkflowFunc func(ctx WorkflowContext, input any) (any, error)

	// WorkflowContext exposes engine operations to a running workflow.
	// It is bound to a single execution and must not be shared across
	// goroutines; activity and signal operations are serialized by the
	// engine.
	WorkflowContext interface {
		// Context returns the Go context for the workflow. Use this for
		// cancellation propagation, not for activity scheduling directly.
		Context() context.Context

		// WorkflowID returns the caller-assigned workflow identifier.
		WorkflowID() string

		// RunID returns the engine-assigned run identifier.
		RunID() string

		// ExecuteActivity schedules an activity and blocks for its result.
		ExecuteActivity(ctx context.Context, req ActivityRequest, result any) error

		// ExecuteActivityAsync schedules an activity without blocking.
		ExecuteActivityAsync(ctx context.Context, req ActivityRequest) (Future, error)

		// SignalChannel returns the channel for the named signal.
		SignalChannel(name string) SignalChannel

		Logger() telemetry.Logger
		Metrics() telemetry.Metrics
		Tracer() telemetry.Tracer

		// Now returns the current time in a replay-safe manner.
		Now() time.Time
	}

	// Future represents a pending activity result. Get may be called more
	// than once and returns the same result/error each time.
	Future interface {
		Get(ctx context.Context, result any) error
		IsReady() bool
	}

	// ActivityDefinition registers an activity handler with default
	// retry/timeout behavior.
	ActivityDefinition struct {
		Name    string
		Handler ActivityFunc
		Options ActivityOptions
	}

	// ActivityFunc performs the side-effecting work behind an activity.
	// Unlike WorkflowFunc, it may perform real I/O.
	ActivityFunc func(ctx context.Context, input any) (any, error)

	// ActivityOptions configures retry/timeout for an activity.
	ActivityOptions struct {
		Queue       string
		RetryPolicy RetryPolicy
		Timeout     time.Duration
	}

	// WorkflowStartRequest describes how to launch a workflow execution.
	WorkflowStartRequest struct {
		ID               string
		Workflow         string
		TaskQueue        string
		Input            any
		Memo             map[string]any
		SearchAttributes map[string]any
		RetryPolicy      RetryPolicy
	}

	// ActivityRequest describes a single activity invocation from within a
	// workflow.
	ActivityRequest struct {
		Name        string
		Input       any
		Queue       string
		RetryPolicy RetryPolicy
		Timeout     time.Duration
	}

	// WorkflowHandle lets callers outside the workflow wait on, signal, or
	// cancel a running execution.
	WorkflowHandle interface {
		Wait(ctx context.Context, result any) error
		Signal(ctx context.Context, name string, payload any) error
		Cancel(ctx context.Context) error
	}

	// RetryPolicy is shared by workflow start and activity scheduling.
	// Zero-valued fields mean the engine uses its own defaults.
	RetryPolicy struct {
		MaxAttempts        int
		InitialInterval    time.Duration
		BackoffCoefficient float64
	}

	// SignalChannel exposes signal delivery in an engine-agnostic way.
	SignalChannel interface {
		// Receive blocks until a value is delivered and decodes it into dest.
		Receive(ctx context.Context, dest any) error
		// ReceiveAsync returns a pending value without blocking, or false
		// if none is available.
		ReceiveAsync(dest any) bool
	}
)

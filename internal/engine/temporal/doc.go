// Package temporal implements engine.Engine backed by Temporal
// (https://temporal.io), giving the Session Workflow durable execution:
// workflow state survives process restarts and crashes because Temporal
// replays history from its event log rather than keeping state in memory.
//
// Workflow determinism. Temporal workflows must produce the same execution
// sequence given the same inputs and activity results. The WorkflowContext
// returned by this package exposes only replay-safe operations (Now,
// ExecuteActivity, SignalChannel); side-effecting work (LLM calls, tool
// execution, database access) belongs in activities, which run outside the
// determinism constraint.
//
// OpenTelemetry. Unless disabled, the engine installs the OTEL tracing
// interceptor on its workers, propagating trace context across workflow and
// activity boundaries. The tracing interceptor and metrics handler are
// added to the Temporal client only when the engine creates that client
// from ClientOptions; a client passed in via Options.Client is used as is.
package temporal

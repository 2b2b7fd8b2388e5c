// Package session implements the Session Workflow (spec.md L9): a durable,
// long-running workflow keyed by (tenant_id, project_id, agent_mode) that
// outlives any single chat request. It awaits "chat" updates carrying a new
// user turn, drives the Session Processor to completion for each one
// through an activity (so LLM/tool/HITL side effects never run inside
// workflow code), and terminates itself after an idle period with no
// incoming turns.
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/agentcore/platform/internal/engine"
	"github.com/agentcore/platform/internal/model"
	"github.com/agentcore/platform/internal/processor"
)

const (
	// WorkflowName is the name the Session Workflow registers under.
	WorkflowName = "agent_session"
	// RunTurnActivityName is the activity that drives one turn of the
	// Session Processor. It is registered once per worker process and
	// closes over that process's Processor (LLM client, tool registry,
	// sandbox service) — the workflow itself never imports those.
	RunTurnActivityName = "agent_session.run_turn"

	// DefaultIdleTimeout matches spec.md §4.9/§5: a session workflow with
	// no chat update for this long cleans up and terminates.
	DefaultIdleTimeout = 30 * time.Minute
	// DefaultToolsTTL fills Config.ToolsTTL when it is zero. The workflow
	// keeps no tool-descriptor cache and does not read ToolsTTL.
	DefaultToolsTTL = 5 * time.Minute
)

// AgentMode distinguishes concurrently running session flavors for the same
// (tenant, project) — e.g. a primary assistant vs. a background reviewer.
type AgentMode string

// WorkflowID returns the deterministic workflow identifier spec.md §6
// specifies: "agent_{tenant_id}_{project_id}_{agent_mode}".
func WorkflowID(tenantID, projectID string, mode AgentMode) string {
	return fmt.Sprintf("agent_%s_%s_%s", tenantID, projectID, mode)
}

type (
	// Config is the AgentSessionConfig referenced in spec.md §4.9: the
	// static configuration a workflow is started with.
	Config struct {
		TenantID     string
		ProjectID    string
		Mode         AgentMode
		Model        string
		SystemPrompt string
		MaxSteps     int
		IdleTimeout  time.Duration
		ToolsTTL     time.Duration
	}

	// ChatInput is the payload carried by a "chat" signal/update: one new
	// user turn to drive through the processor.
	ChatInput struct {
		ConversationID string
		MessageID      string
		// Messages is the prior context plus the just-appended user turn,
		// in chronological order (spec.md §4.10 step 3/4).
		Messages []*model.Message
	}

	// ChatResult is the tuple spec.md §4.9 says the chat update resolves
	// with: {content, is_error}.
	ChatResult struct {
		Content string
		IsError bool
		Reason  string
	}

	// state is the workflow's durable, replay-visible state (spec.md §4.9:
	// "config, message_history, idle_timer, in_flight_message_id?").
	state struct {
		cfg             Config
		messageHistory  []*model.Message
		inFlightMessage string
		lastChatResult  *ChatResult
	}

	// RunTurnInput is the activity input for RunTurnActivityName.
	RunTurnInput struct {
		ConversationID string
		MessageID      string
		Model          string
		SystemPrompt   string
		Messages       []*model.Message
	}
)

func (c Config) withDefaults() Config {
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = DefaultIdleTimeout
	}
	if c.ToolsTTL <= 0 {
		c.ToolsTTL = DefaultToolsTTL
	}
	if c.MaxSteps <= 0 {
		c.MaxSteps = processor.DefaultMaxStepsSession
	}
	return c
}

// Workflow is the WorkflowFunc that Register binds under WorkflowName. Its
// start input is the Config the Manager built for the routing key.
func Workflow(ctx engine.WorkflowContext, input any) (any, error) {
	cfg, ok := input.(Config)
	if !ok {
		return nil, fmt.Errorf("session: workflow started with unexpected input type %T", input)
	}
	cfg = cfg.withDefaults()
	st := &state{cfg: cfg}

	sig := ctx.SignalChannel("chat")
	for {
		var in ChatInput
		idleCtx, cancel := context.WithTimeout(ctx.Context(), st.cfg.IdleTimeout)
		err := sig.Receive(idleCtx, &in)
		cancel()

		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				ctx.Logger().Info(ctx.Context(), "session: idle timeout, terminating",
					"workflow_id", ctx.WorkflowID())
				return st.lastResult(), nil
			}
			// Workflow-level cancellation (spec.md §4.9 step 5, §5): if a
			// turn is in flight its activity will observe ctx cancellation
			// on its own; here we just stop driving new turns.
			ctx.Logger().Warn(ctx.Context(), "session: workflow context ended",
				"workflow_id", ctx.WorkflowID(), "error", err)
			return st.lastResult(), nil
		}

		st.inFlightMessage = in.MessageID
		st.messageHistory = in.Messages

		var result ChatResult
		actErr := ctx.ExecuteActivity(ctx.Context(), engine.ActivityRequest{
			Name: RunTurnActivityName,
			Input: RunTurnInput{
				ConversationID: in.ConversationID,
				MessageID:      in.MessageID,
				Model:          st.cfg.Model,
				SystemPrompt:   st.cfg.SystemPrompt,
				Messages:       in.Messages,
			},
			Timeout: 0,
		}, &result)
		st.inFlightMessage = ""
		if actErr != nil {
			// The turn's own error path (processor.Processor.Run) already
			// emits an `error` event for anything that reaches the LLM;
			// reaching here means the activity itself failed to even
			// start/complete (fatal-for-turn per spec.md §7), so the
			// workflow logs it and keeps serving future turns rather than
			// terminating the whole session.
			ctx.Logger().Error(ctx.Context(), "session: run_turn activity failed",
				"conversation_id", in.ConversationID, "message_id", in.MessageID, "error", actErr)
			st.lastChatResult = &ChatResult{IsError: true, Reason: "activity_error"}
			continue
		}
		st.lastChatResult = &result
	}
}

// lastResult reports the most recent turn's outcome, or a zero-value result
// if the workflow never processed a turn before going idle.
func (s *state) lastResult() ChatResult {
	if s.lastChatResult == nil {
		return ChatResult{}
	}
	return *s.lastChatResult
}

// Package events defines the closed set of agent execution event types that
// flow through the platform's shared emit pathway: every event published to
// the stream broker (internal/streambroker) and appended to the event log
// (internal/eventlog) is one of the types declared here. Adding a new type
// is a coordinated, cross-cutting change — consumers switch exhaustively on
// Type.
package events

import (
	"encoding/json"
	"time"
)

// Type enumerates the closed set of agent execution event types.
type Type string

const (
	TypeUserMessage           Type = "user_message"
	TypeAssistantMessage      Type = "assistant_message"
	TypeThought               Type = "thought"
	TypeTextDelta             Type = "text_delta"
	TypeAct                   Type = "act"
	TypeObserve               Type = "observe"
	TypeCostUpdate            Type = "cost_update"
	TypeClarificationAsked    Type = "clarification_asked"
	TypeClarificationAnswered Type = "clarification_answered"
	TypeDecisionAsked         Type = "decision_asked"
	TypeDecisionAnswered      Type = "decision_answered"
	TypeEnvVarRequested       Type = "env_var_requested"
	TypeEnvVarProvided        Type = "env_var_provided"
	TypeComplete              Type = "complete"
	TypeError                 Type = "error"
	TypeCheckpoint            Type = "checkpoint"
)

// Terminal reports whether a type legitimately ends a turn's event sequence.
func (t Type) Terminal() bool { return t == TypeComplete || t == TypeError }

// ThoughtLevel classifies a Thought event's granularity.
type ThoughtLevel string

const (
	ThoughtLevelWork  ThoughtLevel = "work"
	ThoughtLevelTask  ThoughtLevel = "task"
	ThoughtLevelStep  ThoughtLevel = "step"
	ThoughtLevelDebug ThoughtLevel = "debug"
)

// ToolCallStatus describes the lifecycle state carried by act/observe events.
type ToolCallStatus string

const (
	ToolCallStatusPending   ToolCallStatus = "pending"
	ToolCallStatusCompleted ToolCallStatus = "completed"
	ToolCallStatusError     ToolCallStatus = "error"
)

type (
	// Envelope is the wire shape published to the stream broker (spec §6):
	// {"type", "data", "seq", "timestamp"}. The event log stores the same
	// Data payload alongside its own columns (see internal/eventlog.Record).
	Envelope struct {
		Type      Type            `json:"type"`
		Data      json.RawMessage `json:"data"`
		Seq       int64           `json:"seq"`
		Timestamp time.Time       `json:"timestamp"`
	}

	// UserMessageData is the payload for TypeUserMessage.
	UserMessageData struct {
		Role      string `json:"role"`
		Content   string `json:"content"`
		MessageID string `json:"message_id"`
	}

	// AssistantMessageData is the payload for TypeAssistantMessage.
	AssistantMessageData struct {
		Role      string `json:"role"`
		Content   string `json:"content"`
		MessageID string `json:"message_id"`
	}

	// ThoughtData is the payload for TypeThought.
	ThoughtData struct {
		Content      string       `json:"content"`
		ThoughtLevel ThoughtLevel `json:"thought_level"`
		MessageID    string       `json:"message_id"`
	}

	// TextDeltaData is the payload for TypeTextDelta. Per the durability open
	// question (spec §9), deployments may choose to keep these stream-only;
	// internal/eventlog.Store.Append accepts them regardless so either policy
	// is representable, and the consumer protocol in internal/chat handles
	// both.
	TextDeltaData struct {
		Delta     string `json:"delta"`
		MessageID string `json:"message_id"`
	}

	// ActData is the payload for TypeAct (the "before" half of a tool call).
	ActData struct {
		ToolName  string         `json:"tool_name"`
		ToolInput map[string]any `json:"tool_input"`
		CallID    string         `json:"call_id"`
		Status    ToolCallStatus `json:"status"`
		MessageID string         `json:"message_id"`
	}

	// ObserveData is the payload for TypeObserve (the "after" half).
	ObserveData struct {
		ToolName   string         `json:"tool_name"`
		Result     any            `json:"result,omitempty"`
		Error      string         `json:"error,omitempty"`
		DurationMs int64          `json:"duration_ms,omitempty"`
		CallID     string         `json:"call_id"`
		Status     ToolCallStatus `json:"status"`
		MessageID  string         `json:"message_id"`
	}

	// CostUpdateData is the payload for TypeCostUpdate.
	CostUpdateData struct {
		Cost      float64     `json:"cost"`
		Tokens    TokenCounts `json:"tokens"`
		MessageID string      `json:"message_id"`
	}

	// TokenCounts mirrors the LLM's reported usage.
	TokenCounts struct {
		Prompt     int `json:"prompt"`
		Completion int `json:"completion"`
		Total      int `json:"total"`
	}

	// ClarificationOption is one selectable option for a clarification ask.
	ClarificationOption struct {
		ID          string `json:"id"`
		Label       string `json:"label"`
		Description string `json:"description,omitempty"`
		Recommended bool   `json:"recommended,omitempty"`
	}

	// ClarificationAskedData is the payload for TypeClarificationAsked.
	ClarificationAskedData struct {
		RequestID   string                `json:"request_id"`
		Prompt      string                `json:"prompt"`
		Options     []ClarificationOption `json:"options,omitempty"`
		AllowCustom bool                  `json:"allow_custom"`
		MessageID   string                `json:"message_id"`
	}

	// ClarificationAnsweredData is the payload for TypeClarificationAnswered.
	ClarificationAnsweredData struct {
		RequestID string `json:"request_id"`
		Answer    string `json:"answer"`
		Source    string `json:"source,omitempty"` // "human" | "timeout"
		MessageID string `json:"message_id"`
	}

	// DecisionOption is one selectable option for a decision ask.
	DecisionOption struct {
		ID              string   `json:"id"`
		Label           string   `json:"label"`
		Description     string   `json:"description,omitempty"`
		Recommended     bool     `json:"recommended,omitempty"`
		EstimatedTime   string   `json:"estimated_time,omitempty"`
		EstimatedCost   string   `json:"estimated_cost,omitempty"`
		Risks           []string `json:"risks,omitempty"`
	}

	// DecisionAskedData is the payload for TypeDecisionAsked.
	DecisionAskedData struct {
		RequestID     string           `json:"request_id"`
		Prompt        string           `json:"prompt"`
		Options       []DecisionOption `json:"options,omitempty"`
		AllowCustom   bool             `json:"allow_custom"`
		DefaultChoice string           `json:"default_choice,omitempty"`
		MessageID     string           `json:"message_id"`
	}

	// DecisionAnsweredData is the payload for TypeDecisionAnswered.
	DecisionAnsweredData struct {
		RequestID string `json:"request_id"`
		Answer    string `json:"answer"`
		Source    string `json:"source,omitempty"`
		MessageID string `json:"message_id"`
	}

	// EnvVarSpec describes one environment variable the run needs supplied.
	EnvVarSpec struct {
		Name              string `json:"name"`
		Description       string `json:"description,omitempty"`
		InputType         string `json:"input_type"` // text | password | url
		Required          bool   `json:"required"`
		ValidationPattern string `json:"validation_pattern,omitempty"`
	}

	// EnvVarRequestedData is the payload for TypeEnvVarRequested.
	EnvVarRequestedData struct {
		RequestID string       `json:"request_id"`
		Prompt    string       `json:"prompt"`
		Options   []EnvVarSpec `json:"options,omitempty"`
		MessageID string       `json:"message_id"`
	}

	// EnvVarProvidedData is the payload for TypeEnvVarProvided.
	EnvVarProvidedData struct {
		RequestID string            `json:"request_id"`
		Values    map[string]string `json:"values"`
		Source    string            `json:"source,omitempty"`
		MessageID string            `json:"message_id"`
	}

	// CompleteData is the payload for TypeComplete.
	CompleteData struct {
		Content   string `json:"content,omitempty"`
		MessageID string `json:"message_id"`
	}

	// ErrorData is the payload for TypeError.
	ErrorData struct {
		Message   string `json:"message"`
		Code      string `json:"code,omitempty"`
		MessageID string `json:"message_id,omitempty"`
	}

	// CheckpointData is the payload for TypeCheckpoint.
	CheckpointData struct {
		Kind      string `json:"kind"`
		Step      int    `json:"step"`
		MessageID string `json:"message_id"`
	}
)

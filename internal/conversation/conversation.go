// Package conversation implements the Conversation entity (spec.md §3): the
// owning record for a tenant/project/user's chat history, plus the two
// satellite records that ride alongside it but are never read on the hot
// path — ExecutionCheckpoint (turn-resume state) and ToolExecutionRecord
// (the tool-call audit trail). All three share the conversation's lifecycle
// and are deleted together when a Conversation is deleted.
package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// Status is a Conversation's lifecycle state.
type Status string

const (
	StatusActive   Status = "active"
	StatusArchived Status = "archived"
	StatusDeleted  Status = "deleted"
)

// CheckpointKind classifies why an ExecutionCheckpoint was written.
type CheckpointKind string

const (
	CheckpointProgress CheckpointKind = "progress"
	CheckpointComplete CheckpointKind = "complete"
	CheckpointError    CheckpointKind = "error"
)

type (
	// Conversation is the owning entity for all events, checkpoints, and
	// tool execution records under one conversation ID (spec.md §3).
	Conversation struct {
		ID            string
		TenantID      string
		ProjectID     string
		UserID        string
		Title         string
		Status        Status
		AgentConfig   json.RawMessage
		MessageCount  int
		CreatedAt     time.Time
		UpdatedAt     time.Time
	}

	// ExecutionCheckpoint is serialized processor state written at natural
	// turn boundaries (end of step, completion, error) so a workflow that
	// was terminated mid-turn can resume (spec.md §3, §4.8).
	ExecutionCheckpoint struct {
		ID             string
		ConversationID string
		MessageID      string
		Kind           CheckpointKind
		State          json.RawMessage
		CreatedAt      time.Time
	}

	// ToolExecutionRecord is the append-only audit trail entry for one tool
	// invocation (spec.md §3). It is written for observability/audit and is
	// never read on the turn's hot path.
	ToolExecutionRecord struct {
		ID             string
		ConversationID string
		MessageID      string
		ToolName       string
		Arguments      json.RawMessage
		Result         json.RawMessage
		Error          string
		DurationMs     int64
		StartedAt      time.Time
	}

	// Store persists Conversations. Deletion cascades to checkpoints and
	// tool execution records through CheckpointStore/AuditStore in the
	// order documented on Store.Delete.
	Store interface {
		Create(ctx context.Context, c *Conversation) error
		Get(ctx context.Context, id string) (*Conversation, error)
		IncrementMessageCount(ctx context.Context, id string, delta int) error
		UpdateStatus(ctx context.Context, id string, status Status) error
		// Delete removes the Conversation row itself. Callers cascade to
		// the event log, checkpoint store, and audit store first (spec.md
		// §3's "deleted only cascades ... in a defined order").
		Delete(ctx context.Context, id string) error
	}

	// CheckpointStore persists ExecutionCheckpoints.
	CheckpointStore interface {
		Write(ctx context.Context, c *ExecutionCheckpoint) error
		// Latest returns the most recently written checkpoint for
		// messageID, or ErrNoCheckpoint if none exists yet.
		Latest(ctx context.Context, conversationID, messageID string) (*ExecutionCheckpoint, error)
		DeleteByConversation(ctx context.Context, conversationID string) error
	}

	// AuditStore persists ToolExecutionRecords.
	AuditStore interface {
		Record(ctx context.Context, r *ToolExecutionRecord) error
		DeleteByConversation(ctx context.Context, conversationID string) error
	}
)

// ErrNotFound is returned when a Conversation lookup finds no row.
var ErrNotFound = errors.New("conversation: not found")

// ErrNoCheckpoint is returned by CheckpointStore.Latest when a message has
// no recorded checkpoint yet.
var ErrNoCheckpoint = errors.New("conversation: no checkpoint recorded")

// ErrUnauthorized is returned when a caller's (project_id, user_id) does not
// match the Conversation's owning identity (spec.md §7 Authorization).
var ErrUnauthorized = errors.New("conversation: unauthorized")

// Authorize checks that projectID/userID match c's owning identity,
// returning ErrUnauthorized otherwise (spec.md §4.10 step 1).
func (c *Conversation) Authorize(projectID, userID string) error {
	if c.ProjectID != projectID || c.UserID != userID {
		return ErrUnauthorized
	}
	return nil
}

// DeleteCascade deletes conv's events, checkpoints, tool records, and
// finally the Conversation row itself, in that order (spec.md §3).
func DeleteCascade(ctx context.Context, convID string, events interface {
	DeleteByConversation(ctx context.Context, conversationID string) error
}, checkpoints CheckpointStore, audit AuditStore, store Store) error {
	if err := events.DeleteByConversation(ctx, convID); err != nil {
		return err
	}
	if err := checkpoints.DeleteByConversation(ctx, convID); err != nil {
		return err
	}
	if err := audit.DeleteByConversation(ctx, convID); err != nil {
		return err
	}
	return store.Delete(ctx, convID)
}

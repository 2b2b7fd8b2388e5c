package session

import (
	"context"
	"fmt"

	"github.com/agentcore/platform/internal/engine"
)

// Manager gets-or-creates Session Workflow executions and routes new turns
// into them, implementing the "get-or-create the Session Workflow; send a
// chat update asynchronously" step of the Chat Orchestrator (spec.md
// §4.10). It is a thin layer over engine.Engine: the actual dedup-on-ID
// semantics live in the engine implementation (the in-memory engine attaches
// to a still-running execution; Temporal's ExecuteWorkflow does the same
// against a live workflow ID).
type Manager struct {
	eng          engine.Engine
	defaultCfg   Config
	workflowName string
	taskQueue    string
}

// NewManager builds a Manager over eng. defaultCfg supplies the Config a
// freshly created workflow starts with; individual fields (TenantID,
// ProjectID, Mode) are overwritten per call from the caller's routing key.
func NewManager(eng engine.Engine, defaultCfg Config, taskQueue string) *Manager {
	return &Manager{eng: eng, defaultCfg: defaultCfg, workflowName: WorkflowName, taskQueue: taskQueue}
}

// Register binds the Session Workflow and its RunTurn activity to the
// engine. Call once per worker process before GetOrCreate/SendChat.
func Register(ctx context.Context, eng engine.Engine, acts *Activities, taskQueue string) error {
	if err := eng.RegisterWorkflow(ctx, engine.WorkflowDefinition{
		Name: WorkflowName, TaskQueue: taskQueue, Handler: Workflow,
	}); err != nil {
		return fmt.Errorf("session: register workflow: %w", err)
	}
	if err := eng.RegisterActivity(ctx, engine.ActivityDefinition{
		Name: RunTurnActivityName, Handler: acts.RunTurn,
	}); err != nil {
		return fmt.Errorf("session: register run_turn activity: %w", err)
	}
	return nil
}

// GetOrCreate starts (or attaches to) the session workflow for
// (tenantID, projectID, mode), returning its handle.
func (m *Manager) GetOrCreate(ctx context.Context, tenantID, projectID string, mode AgentMode) (engine.WorkflowHandle, error) {
	cfg := m.defaultCfg
	cfg.TenantID, cfg.ProjectID, cfg.Mode = tenantID, projectID, mode
	cfg = cfg.withDefaults()

	handle, err := m.eng.StartWorkflow(ctx, engine.WorkflowStartRequest{
		ID:        WorkflowID(tenantID, projectID, mode),
		Workflow:  m.workflowName,
		TaskQueue: m.taskQueue,
		Input:     cfg,
	})
	if err != nil {
		return nil, fmt.Errorf("session: get-or-create workflow: %w", err)
	}
	return handle, nil
}

// SendChat gets-or-creates the session workflow for the given routing key
// and signals it with in, without waiting for the turn's result — per
// spec.md §4.10 step 4, the caller observes the turn's outcome via the
// event stream (internal/chat), not the update's return value.
func (m *Manager) SendChat(ctx context.Context, tenantID, projectID string, mode AgentMode, in ChatInput) error {
	handle, err := m.GetOrCreate(ctx, tenantID, projectID, mode)
	if err != nil {
		return err
	}
	if err := handle.Signal(ctx, "chat", in); err != nil {
		return fmt.Errorf("session: send chat signal: %w", err)
	}
	return nil
}

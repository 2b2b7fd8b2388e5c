// Command demo wires every in-memory adapter together — event log, stream
// broker, HITL registry, tool registry, processor, session workflow, and
// chat orchestrator — and drives one turn end to end, the same way the
// teacher's cmd/demo exercises its runtime against a stub planner and an
// in-memory engine rather than a live provider.
package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/agentcore/platform/internal/chat"
	"github.com/agentcore/platform/internal/conversation"
	"github.com/agentcore/platform/internal/engine/inmem"
	"github.com/agentcore/platform/internal/eventlog"
	"github.com/agentcore/platform/internal/hitl"
	"github.com/agentcore/platform/internal/llm"
	"github.com/agentcore/platform/internal/model"
	"github.com/agentcore/platform/internal/processor"
	"github.com/agentcore/platform/internal/session"
	"github.com/agentcore/platform/internal/streambroker"
	"github.com/agentcore/platform/internal/telemetry"
	"github.com/agentcore/platform/internal/tools"
	"github.com/agentcore/platform/internal/tools/builtin"
)

// stubLLM stands in for a configured provider credential (internal/llm/anthropic.Client
// in a real deployment); it always answers the turn in one step so this demo
// runs without network access or an API key.
type stubLLM struct{}

func (stubLLM) Complete(_ context.Context, _ *llm.Request) (*llm.Response, error) {
	return &llm.Response{
		Message: model.Message{
			Role:  model.RoleAssistant,
			Parts: []model.Part{model.TextPart{Text: "Hello from the demo agent."}},
		},
		StopReason: "end_turn",
	}, nil
}

func main() {
	ctx := context.Background()

	log := eventlog.NewMemStore()
	broker := streambroker.NewMemBroker()
	emit := processor.NewEmitter(log, broker)

	hitlStore := hitl.NewMemStore()
	hitlRegistry := hitl.NewRegistry(hitlStore, broker, telemetry.NewNoopLogger())

	registry := tools.NewRegistry()
	must(registry.Register(&builtin.ClarificationTool{Registry: hitlRegistry, Emitter: emit}))
	must(registry.Register(&builtin.DecisionTool{Registry: hitlRegistry, Emitter: emit}))
	must(registry.Register(&builtin.EnvVarTool{Registry: hitlRegistry, Emitter: emit}))
	must(registry.Register(&builtin.WebFetchTool{
		HTTPClient: http.DefaultClient,
		Limiter:    rate.NewLimiter(rate.Limit(1), 1),
		CacheTTL:   5 * time.Minute,
	}))
	executor := tools.NewExecutor(registry, emit, tools.PermissionStandard)

	proc := processor.New(stubLLM{}, registry, executor, emit, processor.Options{})

	eng := inmem.New()
	acts := &session.Activities{Processor: proc}
	const taskQueue = "demo.queue"
	must(session.Register(ctx, eng, acts, taskQueue))

	manager := session.NewManager(eng, session.Config{Model: "stub", MaxSteps: 10}, taskQueue)

	convs := conversation.NewMemStore()
	const tenantID, projectID, userID = "demo-tenant", "demo-project", "demo-user"
	conv := &conversation.Conversation{ID: "conv-demo", TenantID: tenantID, ProjectID: projectID, UserID: userID}
	must(convs.Create(ctx, conv))

	orch := &chat.Orchestrator{
		Conversations: convs,
		Events:        log,
		Broker:        broker,
		Sessions:      manager,
		Mode:          session.AgentMode("chat"),
	}

	events, errs, err := orch.StreamChat(ctx, conv.ID, "Say hi", projectID, userID, tenantID)
	if err != nil {
		panic(err)
	}

	for events != nil || errs != nil {
		select {
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			fmt.Printf("%-20s %s\n", ev.Type, ev.Data)
		case e, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			if e != nil {
				fmt.Println("stream error:", e)
			}
		}
	}
}

func must(err error) {
	if err != nil {
		panic(err)
	}
}

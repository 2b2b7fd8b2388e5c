package processor_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/agentcore/platform/internal/eventlog"
	"github.com/agentcore/platform/internal/events"
	"github.com/agentcore/platform/internal/llm"
	"github.com/agentcore/platform/internal/model"
	"github.com/agentcore/platform/internal/processor"
	"github.com/agentcore/platform/internal/tools"
)

type fakeLLM struct {
	responses []*llm.Response
	calls     int
}

func (f *fakeLLM) Complete(_ context.Context, _ *llm.Request) (*llm.Response, error) {
	if f.calls >= len(f.responses) {
		return nil, errors.New("fakeLLM: no more responses queued")
	}
	resp := f.responses[f.calls]
	f.calls++
	return resp, nil
}

type fakeStreamingLLM struct {
	chunks []llm.Chunk
}

func (f *fakeStreamingLLM) Complete(ctx context.Context, req *llm.Request) (*llm.Response, error) {
	s, err := f.CompleteStream(ctx, req)
	if err != nil {
		return nil, err
	}
	defer s.Close()
	for {
		c, err := s.Recv()
		if err != nil {
			return nil, err
		}
		if c.Final != nil {
			return c.Final, nil
		}
	}
}

func (f *fakeStreamingLLM) CompleteStream(_ context.Context, _ *llm.Request) (llm.Stream, error) {
	return &fakeStream{chunks: f.chunks}, nil
}

type fakeStream struct {
	chunks []llm.Chunk
	i      int
}

func (s *fakeStream) Recv() (llm.Chunk, error) {
	if s.i >= len(s.chunks) {
		return llm.Chunk{}, errors.New("fakeStream: exhausted without a final chunk")
	}
	c := s.chunks[s.i]
	s.i++
	return c, nil
}

func (s *fakeStream) Close() error { return nil }

func newHarness(t *testing.T) (*eventlog.MemStore, *processor.Emitter) {
	t.Helper()
	log := eventlog.NewMemStore()
	return log, processor.NewEmitter(log, nil)
}

func TestRunCompletesWithoutToolCalls(t *testing.T) {
	log, emit := newHarness(t)
	fake := &fakeLLM{responses: []*llm.Response{
		{Message: model.Message{Role: model.RoleAssistant, Parts: []model.Part{model.TextPart{Text: "hi there"}}}},
	}}
	p := processor.New(fake, tools.NewRegistry(), tools.NewExecutor(tools.NewRegistry(), nil), emit, processor.Options{})

	result, err := p.Run(context.Background(), processor.Request{
		ConversationID: "conv-1",
		MessageID:      "msg-1",
		Messages:       []*model.Message{{Role: model.RoleUser, Parts: []model.Part{model.TextPart{Text: "hello"}}}},
	})
	require.NoError(t, err)
	require.False(t, result.IsError)
	require.Equal(t, "hi there", result.Content)

	recs, err := log.ListByMessage(context.Background(), "conv-1", "msg-1")
	require.NoError(t, err)
	var types []events.Type
	for _, r := range recs {
		types = append(types, r.Type)
	}
	require.Equal(t, []events.Type{events.TypeAssistantMessage, events.TypeComplete}, types)
}

func TestRunAbortsOnMaxSteps(t *testing.T) {
	log, emit := newHarness(t)
	reg := tools.NewRegistry()
	toolCall := model.Message{
		Role: model.RoleAssistant,
		Parts: []model.Part{
			model.ToolUsePart{ID: "call-1", Name: "noop", Input: json.RawMessage(`{}`)},
		},
	}
	require.NoError(t, reg.Register(noopTool{}))
	fake := &fakeLLM{responses: []*llm.Response{
		{Message: toolCall, ToolCalls: []model.ToolUsePart{{ID: "call-1", Name: "noop", Input: json.RawMessage(`{}`)}}},
		{Message: toolCall, ToolCalls: []model.ToolUsePart{{ID: "call-2", Name: "noop", Input: json.RawMessage(`{}`)}}},
	}}
	executor := tools.NewExecutor(reg, nil)
	p := processor.New(fake, reg, executor, emit, processor.Options{MaxSteps: 1})

	result, err := p.Run(context.Background(), processor.Request{
		ConversationID: "conv-2",
		MessageID:      "msg-2",
		Messages:       []*model.Message{{Role: model.RoleUser, Parts: []model.Part{model.TextPart{Text: "go"}}}},
	})
	require.NoError(t, err)
	require.True(t, result.IsError)
	require.Equal(t, "max_steps", result.Reason)

	recs, err := log.ListByMessage(context.Background(), "conv-2", "msg-2")
	require.NoError(t, err)
	require.NotEmpty(t, recs)
	last := recs[len(recs)-1]
	require.Equal(t, events.TypeError, last.Type)
}

func TestRunEmitsTextDeltasWhenLLMSupportsStreaming(t *testing.T) {
	log, emit := newHarness(t)
	fake := &fakeStreamingLLM{chunks: []llm.Chunk{
		{Delta: "hel"},
		{Delta: "lo"},
		{Final: &llm.Response{Message: model.Message{Role: model.RoleAssistant, Parts: []model.Part{model.TextPart{Text: "hello"}}}}},
	}}
	p := processor.New(fake, tools.NewRegistry(), tools.NewExecutor(tools.NewRegistry(), nil), emit, processor.Options{})

	result, err := p.Run(context.Background(), processor.Request{
		ConversationID: "conv-3",
		MessageID:      "msg-3",
		Messages:       []*model.Message{{Role: model.RoleUser, Parts: []model.Part{model.TextPart{Text: "hi"}}}},
	})
	require.NoError(t, err)
	require.Equal(t, "hello", result.Content)

	recs, err := log.ListByMessage(context.Background(), "conv-3", "msg-3")
	require.NoError(t, err)
	var deltas []string
	for _, r := range recs {
		if r.Type != events.TypeTextDelta {
			continue
		}
		var d events.TextDeltaData
		require.NoError(t, json.Unmarshal(r.Data, &d))
		deltas = append(deltas, d.Delta)
		require.Equal(t, "msg-3", d.MessageID)
	}
	require.Equal(t, []string{"hel", "lo"}, deltas)
}

type noopTool struct{}

func (noopTool) Definition() tools.Definition {
	return tools.Definition{
		Name:             "noop",
		Description:      "does nothing",
		ParametersSchema: json.RawMessage(`{"type": "object"}`),
	}
}

func (noopTool) Execute(context.Context, json.RawMessage) (any, error) {
	return "ok", nil
}

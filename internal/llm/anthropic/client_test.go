package anthropic_test

import (
	"context"
	"testing"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/stretchr/testify/require"

	"github.com/agentcore/platform/internal/llm"
	"github.com/agentcore/platform/internal/llm/anthropic"
	"github.com/agentcore/platform/internal/model"
)

type fakeMessages struct {
	resp *sdk.Message
	err  error
	got  sdk.MessageNewParams
}

func (f *fakeMessages) New(ctx context.Context, body sdk.MessageNewParams, opts ...option.RequestOption) (*sdk.Message, error) {
	f.got = body
	return f.resp, f.err
}

func TestCompleteTranslatesTextResponse(t *testing.T) {
	fake := &fakeMessages{resp: &sdk.Message{
		Content:    []sdk.ContentBlockUnion{{Type: "text", Text: "hello"}},
		StopReason: sdk.StopReasonEndTurn,
		Usage:      sdk.Usage{InputTokens: 10, OutputTokens: 5},
	}}
	c, err := anthropic.New(fake, anthropic.Options{DefaultModel: "claude-test", MaxTokens: 1024})
	require.NoError(t, err)

	resp, err := c.Complete(context.Background(), &llm.Request{
		Messages: []*model.Message{{Role: model.RoleUser, Parts: []model.Part{model.TextPart{Text: "hi"}}}},
	})
	require.NoError(t, err)
	require.Len(t, resp.Message.Parts, 1)
	require.Equal(t, model.TextPart{Text: "hello"}, resp.Message.Parts[0])
	require.Equal(t, 10, resp.Usage.InputTokens)
	require.Equal(t, "end_turn", resp.StopReason)
}

func TestCompleteRequiresMaxTokens(t *testing.T) {
	fake := &fakeMessages{}
	c, err := anthropic.New(fake, anthropic.Options{DefaultModel: "claude-test"})
	require.NoError(t, err)

	_, err = c.Complete(context.Background(), &llm.Request{
		Messages: []*model.Message{{Role: model.RoleUser, Parts: []model.Part{model.TextPart{Text: "hi"}}}},
	})
	require.Error(t, err)
}

func TestNewRejectsEmptyDefaultModel(t *testing.T) {
	_, err := anthropic.New(&fakeMessages{}, anthropic.Options{})
	require.Error(t, err)
}

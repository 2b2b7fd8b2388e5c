// Package anthropic binds internal/llm.Client to the Anthropic Claude
// Messages API via github.com/anthropics/anthropic-sdk-go, translating the
// platform's provider-agnostic request/response shapes into SDK calls and
// back.
package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/agentcore/platform/internal/llm"
	"github.com/agentcore/platform/internal/model"
)

type (
	// MessagesClient captures the subset of the Anthropic SDK used here, so
	// tests can substitute a fake without a live API key.
	MessagesClient interface {
		New(ctx context.Context, body sdk.MessageNewParams, opts ...option.RequestOption) (*sdk.Message, error)
	}

	// Options configures the Anthropic-backed client.
	Options struct {
		// DefaultModel is used when a Request does not specify one.
		DefaultModel string
		// MaxTokens is the default completion cap when a request omits one.
		MaxTokens int
		Temperature float64
	}

	// Client implements llm.Client against Anthropic Messages.
	Client struct {
		msg          MessagesClient
		defaultModel string
		maxTokens    int
		temperature  float64
	}
)

var _ llm.Client = (*Client)(nil)

// New builds a Client from an existing Anthropic Messages client.
func New(msg MessagesClient, opts Options) (*Client, error) {
	if msg == nil {
		return nil, errors.New("anthropic: messages client is required")
	}
	if opts.DefaultModel == "" {
		return nil, errors.New("anthropic: default model identifier is required")
	}
	return &Client{msg: msg, defaultModel: opts.DefaultModel, maxTokens: opts.MaxTokens, temperature: opts.Temperature}, nil
}

// NewFromAPIKey constructs a Client using the SDK's default HTTP transport.
func NewFromAPIKey(apiKey, defaultModel string) (*Client, error) {
	if apiKey == "" {
		return nil, errors.New("anthropic: api key is required")
	}
	ac := sdk.NewClient(option.WithAPIKey(apiKey))
	return New(&ac.Messages, Options{DefaultModel: defaultModel})
}

// Complete implements llm.Client.
func (c *Client) Complete(ctx context.Context, req *llm.Request) (*llm.Response, error) {
	params, err := c.prepareRequest(req)
	if err != nil {
		return nil, err
	}
	msg, err := c.msg.New(ctx, *params)
	if err != nil {
		if isRateLimited(err) {
			return nil, fmt.Errorf("%w: %w", llm.ErrRateLimited, err)
		}
		return nil, fmt.Errorf("anthropic: messages.new: %w", err)
	}
	return translateResponse(msg)
}

func (c *Client) prepareRequest(req *llm.Request) (*sdk.MessageNewParams, error) {
	if len(req.Messages) == 0 {
		return nil, errors.New("anthropic: messages are required")
	}
	modelID := req.Model
	if modelID == "" {
		modelID = c.defaultModel
	}

	maxTokens := int64(req.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = int64(c.maxTokens)
	}
	if maxTokens <= 0 {
		return nil, errors.New("anthropic: max tokens must be set via request or client default")
	}

	var system string
	var msgs []sdk.MessageParam
	for _, m := range req.Messages {
		if m.Role == model.RoleSystem {
			system += textOf(m) + "\n"
			continue
		}
		blocks, err := encodeBlocks(m)
		if err != nil {
			return nil, err
		}
		role := sdk.MessageParamRoleUser
		if m.Role == model.RoleAssistant {
			role = sdk.MessageParamRoleAssistant
		}
		msgs = append(msgs, sdk.MessageParam{Role: role, Content: blocks})
	}

	params := &sdk.MessageNewParams{
		Model:     sdk.Model(modelID),
		MaxTokens: maxTokens,
		Messages:  msgs,
	}
	if system != "" {
		params.System = []sdk.TextBlockParam{{Text: system}}
	}
	if req.Temperature > 0 {
		params.Temperature = sdk.Float(req.Temperature)
	} else if c.temperature > 0 {
		params.Temperature = sdk.Float(c.temperature)
	}
	for _, td := range req.Tools {
		schema, err := toInputSchema(td.InputSchema)
		if err != nil {
			return nil, fmt.Errorf("anthropic: tool %s: %w", td.Name, err)
		}
		params.Tools = append(params.Tools, sdk.ToolUnionParam{
			OfTool: &sdk.ToolParam{
				Name:        td.Name,
				Description: sdk.String(td.Description),
				InputSchema: schema,
			},
		})
	}
	return params, nil
}

func textOf(m *model.Message) string {
	var out string
	for _, p := range m.Parts {
		if t, ok := p.(model.TextPart); ok {
			out += t.Text
		}
	}
	return out
}

func encodeBlocks(m *model.Message) ([]sdk.ContentBlockParamUnion, error) {
	var blocks []sdk.ContentBlockParamUnion
	for _, p := range m.Parts {
		switch part := p.(type) {
		case model.TextPart:
			blocks = append(blocks, sdk.NewTextBlock(part.Text))
		case model.ToolUsePart:
			var input any
			if len(part.Input) > 0 {
				if err := json.Unmarshal(part.Input, &input); err != nil {
					return nil, fmt.Errorf("anthropic: decode tool use input: %w", err)
				}
			}
			blocks = append(blocks, sdk.NewToolUseBlock(part.ID, input, part.Name))
		case model.ToolResultPart:
			blocks = append(blocks, sdk.NewToolResultBlock(part.ToolUseID, part.Content, part.IsError))
		}
	}
	return blocks, nil
}

func toInputSchema(schema any) (sdk.ToolInputSchemaParam, error) {
	raw, err := json.Marshal(schema)
	if err != nil {
		return sdk.ToolInputSchemaParam{}, err
	}
	var decoded map[string]any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return sdk.ToolInputSchemaParam{}, err
	}
	props, _ := decoded["properties"].(map[string]any)
	return sdk.ToolInputSchemaParam{Properties: props}, nil
}

func translateResponse(msg *sdk.Message) (*llm.Response, error) {
	if msg == nil {
		return nil, errors.New("anthropic: response message is nil")
	}
	resp := &llm.Response{
		Usage: model.TokenUsage{
			InputTokens:     int(msg.Usage.InputTokens),
			OutputTokens:    int(msg.Usage.OutputTokens),
			CacheReadTokens: int(msg.Usage.CacheReadInputTokens),
		},
		StopReason: string(msg.StopReason),
	}
	for _, block := range msg.Content {
		switch block.Type {
		case "text":
			resp.Message.Parts = append(resp.Message.Parts, model.TextPart{Text: block.Text})
		case "tool_use":
			input, err := json.Marshal(block.Input)
			if err != nil {
				return nil, fmt.Errorf("anthropic: encode tool use input: %w", err)
			}
			call := model.ToolUsePart{ID: block.ID, Name: block.Name, Input: input}
			resp.Message.Parts = append(resp.Message.Parts, call)
			resp.ToolCalls = append(resp.ToolCalls, call)
		}
	}
	resp.Message.Role = model.RoleAssistant
	return resp, nil
}

func isRateLimited(err error) bool {
	var apiErr *sdk.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 429
	}
	return false
}

package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"

	"github.com/agentcore/platform/internal/llm"
	"github.com/agentcore/platform/internal/model"
)

// StreamingMessagesClient extends MessagesClient with the SDK's streaming
// entry point, so CompleteStream can be substituted with a fake in tests the
// same way Complete's MessagesClient is.
type StreamingMessagesClient interface {
	MessagesClient
	NewStreaming(ctx context.Context, body sdk.MessageNewParams, opts ...option.RequestOption) *ssestream.Stream[sdk.MessageStreamEventUnion]
}

var _ llm.StreamingClient = (*Client)(nil)

// CompleteStream implements llm.StreamingClient, adapting the Anthropic SDK's
// server-sent-events stream into llm.Stream. It requires the client to have
// been constructed with a StreamingMessagesClient; a Client built over a
// plain MessagesClient returns an error.
func (c *Client) CompleteStream(ctx context.Context, req *llm.Request) (llm.Stream, error) {
	streaming, ok := c.msg.(StreamingMessagesClient)
	if !ok {
		return nil, errors.New("anthropic: underlying messages client does not support streaming")
	}
	params, err := c.prepareRequest(req)
	if err != nil {
		return nil, err
	}
	sctx, cancel := context.WithCancel(ctx)
	raw := streaming.NewStreaming(sctx, *params)
	return newStream(sctx, cancel, raw), nil
}

// stream adapts an Anthropic ssestream.Stream into llm.Stream by
// accumulating content blocks exactly as translateResponse does for the
// non-streaming path, yielding a Chunk per text delta and a final Chunk
// carrying the assembled llm.Response once the stream ends.
type stream struct {
	ctx    context.Context
	cancel context.CancelFunc
	raw    *ssestream.Stream[sdk.MessageStreamEventUnion]

	resp       llm.Response
	textBlocks map[int]*stringBuilder
	toolBlocks map[int]*toolAccumulator

	done bool
}

type stringBuilder struct{ s string }

func (b *stringBuilder) write(s string) { b.s += s }

type toolAccumulator struct {
	id, name string
	input    string
}

func newStream(ctx context.Context, cancel context.CancelFunc, raw *ssestream.Stream[sdk.MessageStreamEventUnion]) *stream {
	return &stream{
		ctx: ctx, cancel: cancel, raw: raw,
		textBlocks: make(map[int]*stringBuilder),
		toolBlocks: make(map[int]*toolAccumulator),
	}
}

// Recv implements llm.Stream. It blocks on the underlying SSE read and
// returns one text delta per call until the stream ends, at which point it
// returns a final Chunk with Final populated, followed by io.EOF.
func (s *stream) Recv() (llm.Chunk, error) {
	for {
		if s.done {
			return llm.Chunk{}, io.EOF
		}
		if !s.raw.Next() {
			s.done = true
			if err := s.raw.Err(); err != nil {
				return llm.Chunk{}, fmt.Errorf("anthropic: stream: %w", err)
			}
			if err := s.ctx.Err(); err != nil {
				return llm.Chunk{}, err
			}
			final := s.resp
			final.Message.Role = model.RoleAssistant
			return llm.Chunk{Final: &final}, nil
		}
		event := s.raw.Current()
		delta, ok, err := s.handle(event)
		if err != nil {
			return llm.Chunk{}, err
		}
		if ok {
			return llm.Chunk{Delta: delta}, nil
		}
	}
}

func (s *stream) Close() error {
	s.cancel()
	return s.raw.Close()
}

// handle folds one SSE event into the accumulated response, returning
// (delta, true, nil) when the event carries incremental assistant text
// worth surfacing as a text_delta event.
func (s *stream) handle(event sdk.MessageStreamEventUnion) (string, bool, error) {
	switch ev := event.AsAny().(type) {
	case sdk.ContentBlockStartEvent:
		idx := int(ev.Index)
		switch block := ev.ContentBlock.AsAny().(type) {
		case sdk.TextBlock:
			s.textBlocks[idx] = &stringBuilder{s: block.Text}
		case sdk.ToolUseBlock:
			s.toolBlocks[idx] = &toolAccumulator{id: block.ID, name: block.Name}
		}
		return "", false, nil
	case sdk.ContentBlockDeltaEvent:
		idx := int(ev.Index)
		switch d := ev.Delta.AsAny().(type) {
		case sdk.TextDelta:
			b, ok := s.textBlocks[idx]
			if !ok {
				b = &stringBuilder{}
				s.textBlocks[idx] = b
			}
			b.write(d.Text)
			return d.Text, true, nil
		case sdk.InputJSONDelta:
			if t, ok := s.toolBlocks[idx]; ok {
				t.input += d.PartialJSON
			}
		}
		return "", false, nil
	case sdk.MessageDeltaEvent:
		if string(ev.Delta.StopReason) != "" {
			s.resp.StopReason = string(ev.Delta.StopReason)
		}
		s.resp.Usage.InputTokens += int(ev.Usage.InputTokens)
		s.resp.Usage.OutputTokens += int(ev.Usage.OutputTokens)
		s.resp.Usage.CacheReadTokens += int(ev.Usage.CacheReadInputTokens)
		return "", false, nil
	case sdk.MessageStartEvent:
		return "", false, nil
	case sdk.MessageStopEvent:
		s.finalizeBlocks()
		return "", false, nil
	}
	return "", false, nil
}

// finalizeBlocks materializes the accumulated text/tool blocks into
// s.resp.Message/ToolCalls, in content-block index order.
func (s *stream) finalizeBlocks() {
	maxIdx := -1
	for idx := range s.textBlocks {
		if idx > maxIdx {
			maxIdx = idx
		}
	}
	for idx := range s.toolBlocks {
		if idx > maxIdx {
			maxIdx = idx
		}
	}
	for idx := 0; idx <= maxIdx; idx++ {
		if b, ok := s.textBlocks[idx]; ok {
			s.resp.Message.Parts = append(s.resp.Message.Parts, model.TextPart{Text: b.s})
			continue
		}
		if t, ok := s.toolBlocks[idx]; ok {
			input := json.RawMessage(t.input)
			if len(input) == 0 {
				input = json.RawMessage(`{}`)
			}
			call := model.ToolUsePart{ID: t.id, Name: t.name, Input: input}
			s.resp.Message.Parts = append(s.resp.Message.Parts, call)
			s.resp.ToolCalls = append(s.resp.ToolCalls, call)
		}
	}
}

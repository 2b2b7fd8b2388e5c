package processor

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"

	"github.com/agentcore/platform/internal/events"
	"github.com/agentcore/platform/internal/llm"
	"github.com/agentcore/platform/internal/model"
	"github.com/agentcore/platform/internal/tools"
)

const (
	// DefaultMaxStepsSession is the default step budget for a turn running
	// inside a durable Session Workflow.
	DefaultMaxStepsSession = 20
	// DefaultMaxStepsPerRequest is the default step budget for a turn
	// running as a single synchronous request outside the workflow.
	DefaultMaxStepsPerRequest = 50

	defaultDoomLoopThreshold = 3
	defaultDoomLoopWindow    = 6
	defaultSoftTokenCap      = 12000
	defaultToolTimeout       = 30 * time.Second
	defaultLLMRetryAttempts  = 3
	defaultLLMRetryBaseDelay = time.Second
)

// Summarizer compacts older transcript messages into one replacement
// message when the context window's soft token cap is exceeded. It
// corresponds to the "summary" tool referenced in spec.md §4.8.
type Summarizer interface {
	Summarize(ctx context.Context, messages []*model.Message) (string, error)
}

// Options configures a Processor. Zero-valued fields are filled with the
// defaults documented in spec.md §4.8 / §5.
type Options struct {
	MaxSteps          int
	DoomLoopThreshold int
	DoomLoopWindow    int
	SoftTokenCap      int
	ToolTimeout       time.Duration
	LLMRetryAttempts  int
	LLMRetryBaseDelay time.Duration
	Summarizer        Summarizer
}

func (o Options) withDefaults() Options {
	if o.MaxSteps <= 0 {
		o.MaxSteps = DefaultMaxStepsSession
	}
	if o.DoomLoopThreshold <= 0 {
		o.DoomLoopThreshold = defaultDoomLoopThreshold
	}
	if o.DoomLoopWindow <= 0 {
		o.DoomLoopWindow = defaultDoomLoopWindow
	}
	if o.SoftTokenCap <= 0 {
		o.SoftTokenCap = defaultSoftTokenCap
	}
	if o.ToolTimeout <= 0 {
		o.ToolTimeout = defaultToolTimeout
	}
	if o.LLMRetryAttempts <= 0 {
		o.LLMRetryAttempts = defaultLLMRetryAttempts
	}
	if o.LLMRetryBaseDelay <= 0 {
		o.LLMRetryBaseDelay = defaultLLMRetryBaseDelay
	}
	return o
}

// Request is one user turn submitted to the processor.
type Request struct {
	ConversationID string
	MessageID      string
	Model          string
	SystemPrompt   string
	// Messages is the prior context plus the just-appended user turn, in
	// chronological order.
	Messages []*model.Message
}

// Result is the outcome of a completed turn, returned as the Session
// Workflow update's result (spec.md §4.9).
type Result struct {
	Content string
	IsError bool
	Reason  string
}

// Processor drives one turn's ReAct loop.
type Processor struct {
	LLM      llm.Client
	Tools    *tools.Registry
	Executor *tools.Executor
	Emit     *Emitter
	Opts     Options
}

// New constructs a Processor, filling Opts with defaults.
func New(llmClient llm.Client, registry *tools.Registry, executor *tools.Executor, emit *Emitter, opts Options) *Processor {
	return &Processor{LLM: llmClient, Tools: registry, Executor: executor, Emit: emit, Opts: opts.withDefaults()}
}

// callKey identifies one (tool_name, fingerprint(arguments)) pair for
// doom-loop detection.
type callKey struct {
	tool        string
	fingerprint string
}

// Run executes the ReAct loop to completion: success (assistant_message +
// complete), cancellation, doom-loop abort, step-budget exhaustion, or a
// non-retryable LLM/append failure. The returned error is non-nil only for
// failures that occurred before a terminal event could be emitted (e.g. the
// append itself failed); every other path returns a populated Result with a
// nil error, since the turn's outcome has already been durably recorded.
func (p *Processor) Run(ctx context.Context, req Request) (*Result, error) {
	messages := append([]*model.Message(nil), req.Messages...)
	if req.SystemPrompt != "" {
		messages = append([]*model.Message{{Role: model.RoleSystem, Parts: []model.Part{model.TextPart{Text: req.SystemPrompt}}}}, messages...)
	}

	toolDefs := toModelToolDefs(p.Tools.Definitions())

	var (
		recentCalls []callKey
		compacted   bool
		cumUsage    model.TokenUsage
	)

	for step := 1; ; step++ {
		if err := ctx.Err(); err != nil {
			return p.abort(ctx, req, "cancelled")
		}
		if step > p.Opts.MaxSteps {
			return p.abort(ctx, req, "max_steps")
		}

		if !compacted && estimateTokens(messages) > p.Opts.SoftTokenCap {
			compactedMessages, err := p.compact(ctx, messages)
			if err == nil {
				messages = compactedMessages
			}
			compacted = true
		}

		resp, err := p.completeWithRetry(ctx, req, llm.Request{
			Model:    req.Model,
			Messages: messages,
			Tools:    toolDefs,
		})
		if err != nil {
			return p.failf(ctx, req, "llm_error", err)
		}
		cumUsage.InputTokens += resp.Usage.InputTokens
		cumUsage.OutputTokens += resp.Usage.OutputTokens
		if _, err := p.Emit.EmitSeq(ctx, req.ConversationID, req.MessageID, events.TypeCostUpdate, events.CostUpdateData{
			Tokens:    events.TokenCounts{Prompt: cumUsage.InputTokens, Completion: cumUsage.OutputTokens, Total: cumUsage.Total()},
			MessageID: req.MessageID,
		}); err != nil {
			return nil, err
		}

		if len(resp.ToolCalls) == 0 {
			content := textOf(resp.Message)
			if _, err := p.Emit.EmitSeq(ctx, req.ConversationID, req.MessageID, events.TypeAssistantMessage, events.AssistantMessageData{
				Role: string(model.RoleAssistant), Content: content, MessageID: req.MessageID,
			}); err != nil {
				return nil, err
			}
			if _, err := p.Emit.EmitSeq(ctx, req.ConversationID, req.MessageID, events.TypeComplete, events.CompleteData{Content: content, MessageID: req.MessageID}); err != nil {
				return nil, err
			}
			return &Result{Content: content}, nil
		}

		messages = append(messages, &resp.Message)

		for _, call := range resp.ToolCalls {
			key := callKey{tool: call.Name, fingerprint: fingerprint(call.Input)}
			recentCalls = append(recentCalls, key)
			if len(recentCalls) > p.Opts.DoomLoopWindow {
				recentCalls = recentCalls[len(recentCalls)-p.Opts.DoomLoopWindow:]
			}
			if countOccurrences(recentCalls, key) > p.Opts.DoomLoopThreshold {
				return p.abort(ctx, req, "doom_loop")
			}

			callCtx, cancel := context.WithTimeout(ctx, p.Opts.ToolTimeout)
			callID := call.ID
			if callID == "" {
				callID = uuid.NewString()
			}
			rec, err := p.Executor.Call(callCtx, req.ConversationID, req.MessageID, callID, call.Name, call.Input)
			cancel()
			if err != nil {
				return p.failf(ctx, req, "tool_error", err)
			}

			messages = append(messages, &model.Message{
				Role:  model.RoleUser,
				Parts: []model.Part{toolResultPart(rec)},
			})
		}

		if _, err := p.Emit.EmitSeq(ctx, req.ConversationID, req.MessageID, events.TypeCheckpoint, events.CheckpointData{Kind: "progress", Step: step, MessageID: req.MessageID}); err != nil {
			return nil, err
		}
	}
}

func (p *Processor) abort(ctx context.Context, req Request, reason string) (*Result, error) {
	if _, err := p.Emit.EmitSeq(ctx, req.ConversationID, req.MessageID, events.TypeError, events.ErrorData{Message: reason, Code: reason, MessageID: req.MessageID}); err != nil {
		return nil, err
	}
	return &Result{IsError: true, Reason: reason}, nil
}

func (p *Processor) failf(ctx context.Context, req Request, reason string, cause error) (*Result, error) {
	if _, err := p.Emit.EmitSeq(ctx, req.ConversationID, req.MessageID, events.TypeError, events.ErrorData{Message: cause.Error(), Code: reason, MessageID: req.MessageID}); err != nil {
		return nil, err
	}
	return &Result{IsError: true, Reason: reason}, nil
}

// completeWithRetry retries transient LLM errors (rate limiting) up to
// LLMRetryAttempts times with exponential backoff 1*2^k seconds. When the
// configured Client also implements llm.StreamingClient, it drives the turn
// through CompleteStream instead, emitting a text_delta event per chunk
// (spec.md §4.8) and assembling the same *llm.Response shape from the
// stream's final chunk.
func (p *Processor) completeWithRetry(ctx context.Context, turn Request, req llm.Request) (*llm.Response, error) {
	var lastErr error
	for attempt := 0; attempt < p.Opts.LLMRetryAttempts; attempt++ {
		resp, err := p.complete(ctx, turn, req)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if !errors.Is(err, llm.ErrRateLimited) {
			return nil, err
		}
		if attempt == p.Opts.LLMRetryAttempts-1 {
			break
		}
		backoff := p.Opts.LLMRetryBaseDelay * time.Duration(1<<attempt)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
	}
	return nil, lastErr
}

func (p *Processor) complete(ctx context.Context, turn Request, req llm.Request) (*llm.Response, error) {
	streamer, ok := p.LLM.(llm.StreamingClient)
	if !ok {
		return p.LLM.Complete(ctx, &req)
	}
	return p.completeStream(ctx, turn, streamer, req)
}

func (p *Processor) completeStream(ctx context.Context, turn Request, streamer llm.StreamingClient, req llm.Request) (*llm.Response, error) {
	stream, err := streamer.CompleteStream(ctx, &req)
	if err != nil {
		return nil, err
	}
	defer stream.Close()

	for {
		chunk, err := stream.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil, fmt.Errorf("processor: stream ended without a final chunk")
			}
			return nil, err
		}
		if chunk.Final != nil {
			return chunk.Final, nil
		}
		if chunk.Delta == "" {
			continue
		}
		if _, err := p.Emit.EmitSeq(ctx, turn.ConversationID, turn.MessageID, events.TypeTextDelta, events.TextDeltaData{
			Delta: chunk.Delta, MessageID: turn.MessageID,
		}); err != nil {
			return nil, err
		}
	}
}

// compact summarises every message but the last one via the configured
// Summarizer, replacing them in place with a single synthetic assistant
// message. It is a no-op (returns messages unchanged) if no Summarizer is
// configured.
func (p *Processor) compact(ctx context.Context, messages []*model.Message) ([]*model.Message, error) {
	if p.Opts.Summarizer == nil || len(messages) < 2 {
		return messages, nil
	}
	head, tail := messages[:len(messages)-1], messages[len(messages)-1]
	summary, err := p.Opts.Summarizer.Summarize(ctx, head)
	if err != nil {
		return messages, fmt.Errorf("processor: compact context: %w", err)
	}
	return []*model.Message{
		{Role: model.RoleAssistant, Parts: []model.Part{model.TextPart{Text: summary}}},
		tail,
	}, nil
}

func toModelToolDefs(defs []tools.Definition) []*model.ToolDefinition {
	out := make([]*model.ToolDefinition, 0, len(defs))
	for _, d := range defs {
		out = append(out, &model.ToolDefinition{Name: d.Name, Description: d.Description, InputSchema: d.ParametersSchema})
	}
	return out
}

func textOf(msg model.Message) string {
	var text string
	for _, part := range msg.Parts {
		if t, ok := part.(model.TextPart); ok {
			text += t.Text
		}
	}
	return text
}

func toolResultPart(rec tools.CallRecord) model.ToolResultPart {
	if rec.Err != "" {
		return model.ToolResultPart{ToolUseID: rec.CallID, Content: rec.Err, IsError: true}
	}
	raw, _ := json.Marshal(rec.Result)
	return model.ToolResultPart{ToolUseID: rec.CallID, Content: string(raw)}
}

// fingerprint canonicalizes args (decode then re-encode with sorted keys
// via Go's default map ordering in encoding/json) and hashes the result, so
// two calls with the same arguments in different key order still collide
// for doom-loop detection.
func fingerprint(args json.RawMessage) string {
	var decoded any
	if err := json.Unmarshal(args, &decoded); err != nil {
		sum := sha256.Sum256(args)
		return hex.EncodeToString(sum[:])
	}
	canonical, err := json.Marshal(decoded)
	if err != nil {
		canonical = args
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:])
}

func countOccurrences(keys []callKey, target callKey) int {
	n := 0
	for _, k := range keys {
		if k == target {
			n++
		}
	}
	return n
}

// estimateTokens is a rough token-count heuristic (roughly 4 bytes per
// token) used to decide whether to trigger context compaction. It is
// intentionally crude: the processor does not depend on a tokenizer.
func estimateTokens(messages []*model.Message) int {
	total := 0
	for _, m := range messages {
		for _, part := range m.Parts {
			switch v := part.(type) {
			case model.TextPart:
				total += len(v.Text)
			case model.ToolResultPart:
				total += len(v.Content)
			case model.ToolUsePart:
				total += len(v.Input)
			}
		}
	}
	return total / 4
}

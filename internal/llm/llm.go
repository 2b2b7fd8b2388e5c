// Package llm defines the thin, provider-agnostic model client the session
// processor drives. internal/llm/anthropic binds it to the Anthropic
// Messages API; the processor never imports a provider SDK directly.
package llm

import (
	"context"
	"errors"

	"github.com/agentcore/platform/internal/model"
)

type (
	// Request captures one model invocation.
	Request struct {
		Model       string
		Messages    []*model.Message
		Tools       []*model.ToolDefinition
		MaxTokens   int
		Temperature float64
	}

	// Response is the result of a non-streaming invocation.
	Response struct {
		Message    model.Message
		ToolCalls  []model.ToolUsePart
		Usage      model.TokenUsage
		StopReason string
	}

	// Client is the port internal/processor depends on.
	Client interface {
		// Complete performs one blocking model invocation.
		Complete(ctx context.Context, req *Request) (*Response, error)
	}

	// Chunk is one increment of a streaming completion. Delta carries
	// incremental assistant text (spec.md §4.8: "during streaming: emit
	// text_delta events"); Final is set on the last chunk and carries the
	// same shape Complete would have returned for the whole turn.
	Chunk struct {
		Delta string
		Final *Response
	}

	// Stream is a single in-progress model invocation's incremental output.
	// Recv returns io.EOF once the chunk carrying Final has been delivered.
	Stream interface {
		Recv() (Chunk, error)
		Close() error
	}

	// StreamingClient is implemented by providers that can stream
	// incremental text (spec.md §4.8). The processor falls back to
	// Complete when a Client does not also satisfy this.
	StreamingClient interface {
		Client
		CompleteStream(ctx context.Context, req *Request) (Stream, error)
	}
)

// ErrRateLimited indicates the provider rejected the request due to rate
// limiting after the client's own retries were exhausted; processor
// transient-error retry (spec.md §7) applies on top of this.
var ErrRateLimited = errors.New("llm: rate limited")

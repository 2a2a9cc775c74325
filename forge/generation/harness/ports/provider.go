package harnessports

import (
	"context"
	"errors"
)

var (
	// ErrRateLimited is returned when the inference service throttles the caller.
	ErrRateLimited = errors.New("inference service rate limited")
	// ErrUnavailable covers transport failures, 5xx responses and empty replies.
	ErrUnavailable = errors.New("inference service unavailable")
)

// PromptMessage represents a single chat message used to build prompts.
type PromptMessage struct {
	Role    string // "system", "user", "assistant", "tool"
	Name    string // speaker, when the role alone is ambiguous
	Content string
}

// PromptInput aggregates everything the provider needs to produce a completion.
type PromptInput struct {
	System   string            // agent instructions
	Messages []PromptMessage   // ordered, role-tagged transcript
	Tools    []ToolSpec        // tool declarations available to the model
	Meta     map[string]string // lightweight metadata for tracing/caching keys
}

// Options controls sampling and limits.
type Options struct {
	MaxNewTokens int
	Temperature  float32
	TopP         float32
	Seed         int
	Stop         []string
	// ToolChoice: "auto" | "none" | specific tool name (if the provider supports it)
	ToolChoice string
	// TimeoutMs applies to the provider call only, the turn deadline comes from ctx
	TimeoutMs int
}

// Usage captures token accounting for cost/telemetry.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Completion is the provider's response.
type Completion struct {
	Text      string
	ToolCalls []ToolCall
	Raw       any    // raw provider payload for debugging/telemetry
	Usage     *Usage // optional usage information
}

// Provider is the abstraction for all inference backends.
type Provider interface {
	Complete(ctx context.Context, in PromptInput, opts Options) (Completion, error)
}

package harness

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	ports "github.com/ZanzyTHEbar/agentforge/forge/generation/harness/ports"
	"github.com/rs/zerolog"
)

// Conversation is the role-tagged history an agent sees.
type Conversation struct {
	ID       string
	Messages []ports.PromptMessage
}

// TurnRequest configures one agent turn.
type TurnRequest struct {
	Conversation *Conversation
	Speaker      string
	System       string
	Tools        []ports.Tool
	Options      ports.Options
}

// Policy controls per-turn behavior.
type Policy struct {
	ToolTimeout  time.Duration // per-tool timeout
	RetryCount   int           // extra provider attempts on RateLimited/Unavailable
	RetryBackoff time.Duration // base delay, doubled per attempt
	CacheTTL     time.Duration // zero disables caching
}

// DefaultPolicy returns sensible defaults.
func DefaultPolicy() *Policy {
	return &Policy{
		ToolTimeout:  30 * time.Second,
		RetryCount:   2,
		RetryBackoff: 500 * time.Millisecond,
	}
}

// ToolResult is the outcome of one tool call.
type ToolResult struct {
	Call   ports.ToolCall
	Output string
	Err    error
}

// Summary renders the result as the short text later agents read.
func (r ToolResult) Summary() string {
	if r.Err != nil {
		return fmt.Sprintf("%s failed: %v", r.Call.Name, r.Err)
	}
	return fmt.Sprintf("%s: %s", r.Call.Name, r.Output)
}

// TurnResponse is what one turn produced.
type TurnResponse struct {
	Text        string
	ToolCalls   []ports.ToolCall
	ToolResults []ToolResult
	Usage       *ports.Usage
	Cached      bool
}

// Components are the collaborators an Orchestrator needs besides the provider.
// Nil fields are replaced with no-op implementations.
type Components struct {
	Builder    *PromptBuilder
	Guardrails *Guardrails
	Store      ports.ConversationStore
	Cache      ports.Cache
	Limiter    ports.RateLimiter
	Tracer     ports.Tracer
	Logger     zerolog.Logger
}

// Orchestrator runs single agent turns: one inference call, then the tool calls
// it asked for, executed in order.
type Orchestrator struct {
	provider   ports.Provider
	builder    *PromptBuilder
	guardrails *Guardrails
	store      ports.ConversationStore
	cache      ports.Cache
	limiter    ports.RateLimiter
	tracer     ports.Tracer
	policy     *Policy
	logger     zerolog.Logger
}

// NewOrchestrator creates a new orchestrator with dependencies.
func NewOrchestrator(provider ports.Provider, c Components, policy *Policy) *Orchestrator {
	if policy == nil {
		policy = DefaultPolicy()
	}
	o := &Orchestrator{
		provider:   provider,
		builder:    c.Builder,
		guardrails: c.Guardrails,
		store:      c.Store,
		cache:      c.Cache,
		limiter:    c.Limiter,
		tracer:     c.Tracer,
		policy:     policy,
		logger:     c.Logger,
	}
	if o.builder == nil {
		o.builder = NewPromptBuilder()
	}
	if o.guardrails == nil {
		o.guardrails = NewGuardrails()
	}
	if o.store == nil {
		o.store = &noOpStore{}
	}
	if o.cache == nil {
		o.cache = &noOpCache{}
	}
	if o.limiter == nil {
		o.limiter = &noOpRateLimiter{}
	}
	if o.tracer == nil {
		o.tracer = &noOpTracer{}
	}
	return o
}

// RunTurn executes one agent turn. Provider failures are returned as errors;
// tool failures never are, they land in TurnResponse.ToolResults.
func (o *Orchestrator) RunTurn(ctx context.Context, req *TurnRequest) (resp *TurnResponse, err error) {
	if req == nil || req.Conversation == nil {
		return nil, fmt.Errorf("turn request requires a conversation")
	}

	ctx, finish := o.tracer.StartSpan(ctx, "turn", map[string]any{
		"conversation_id": req.Conversation.ID,
		"speaker":         req.Speaker,
		"messages":        len(req.Conversation.Messages),
	})
	defer func() { finish(err) }()

	specs := buildToolSpecs(req.Tools)
	prompt := o.builder.Build(req.System, req.Conversation.Messages, specs, map[string]string{
		"conversation_id": req.Conversation.ID,
		"speaker":         req.Speaker,
	})

	completion, cached, err := o.completeCached(ctx, prompt, req.Options)
	if err != nil {
		return nil, err
	}

	calls := completion.ToolCalls
	if len(calls) == 0 && len(req.Tools) > 0 {
		names := make([]string, len(req.Tools))
		for i, t := range req.Tools {
			names[i] = t.Name()
		}
		calls = NewOutputParser(names...).ParseToolCalls(completion.Text)
	}

	return &TurnResponse{
		Text:        completion.Text,
		ToolCalls:   calls,
		ToolResults: o.executeTools(ctx, req.Conversation.ID, req.Tools, calls),
		Usage:       completion.Usage,
		Cached:      cached,
	}, nil
}

// Complete performs one rate-limited inference call with retries.
func (o *Orchestrator) Complete(ctx context.Context, in ports.PromptInput, opts ports.Options) (ports.Completion, error) {
	var lastErr error
	for attempt := 0; attempt <= o.policy.RetryCount; attempt++ {
		if attempt > 0 {
			delay := o.policy.RetryBackoff << (attempt - 1)
			select {
			case <-ctx.Done():
				return ports.Completion{}, ctx.Err()
			case <-time.After(delay):
			}
		}

		completion, err := o.completeOnce(ctx, in, opts)
		if err == nil {
			return completion, nil
		}
		lastErr = err
		if ctx.Err() != nil || !retryable(err) {
			break
		}
		o.logger.Debug().Err(err).Int("attempt", attempt+1).Msg("inference call failed, retrying")
	}
	return ports.Completion{}, lastErr
}

func (o *Orchestrator) completeOnce(ctx context.Context, in ports.PromptInput, opts ports.Options) (ports.Completion, error) {
	release, err := o.limiter.Acquire(ctx, "inference")
	if err != nil {
		return ports.Completion{}, err
	}
	defer release()

	ctx, spanFinish := o.tracer.StartSpan(ctx, "provider_call", map[string]any{"messages": len(in.Messages)})
	completion, err := o.provider.Complete(ctx, in, opts)
	spanFinish(err)
	if err != nil {
		return ports.Completion{}, fmt.Errorf("provider call failed: %w", err)
	}
	return completion, nil
}

func retryable(err error) bool {
	return errors.Is(err, ports.ErrRateLimited) || errors.Is(err, ports.ErrUnavailable)
}

type cachedCompletion struct {
	Text      string           `json:"text"`
	ToolCalls []ports.ToolCall `json:"tool_calls,omitempty"`
}

func (o *Orchestrator) completeCached(ctx context.Context, prompt ports.PromptInput, opts ports.Options) (ports.Completion, bool, error) {
	if o.policy.CacheTTL <= 0 {
		c, err := o.Complete(ctx, prompt, opts)
		return c, false, err
	}

	key := cacheKey(prompt, opts)
	if raw, ok := o.cache.Get(ctx, key); ok {
		var hit cachedCompletion
		if err := json.Unmarshal(raw, &hit); err == nil {
			o.tracer.Event(ctx, "cache_hit", map[string]any{"key": key})
			return ports.Completion{Text: hit.Text, ToolCalls: hit.ToolCalls}, true, nil
		}
	}

	c, err := o.Complete(ctx, prompt, opts)
	if err != nil {
		return c, false, err
	}
	if raw, err := json.Marshal(cachedCompletion{Text: c.Text, ToolCalls: c.ToolCalls}); err == nil {
		_ = o.cache.Set(ctx, key, raw, int(o.policy.CacheTTL/time.Second))
	}
	return c, false, nil
}

// executeTools runs calls sequentially; a later call may depend on an earlier write.
func (o *Orchestrator) executeTools(ctx context.Context, conversationID string, tools []ports.Tool, calls []ports.ToolCall) []ToolResult {
	if len(calls) == 0 {
		return nil
	}

	toolMap := make(map[string]ports.Tool, len(tools))
	for _, tool := range tools {
		toolMap[tool.Name()] = tool
	}

	results := make([]ToolResult, 0, len(calls))
	for i, call := range calls {
		res := ToolResult{Call: call}
		tool, exists := toolMap[call.Name]
		switch {
		case o.guardrails.ValidateToolCount(i) != nil:
			res.Err = o.guardrails.ValidateToolCount(i)
		case !exists:
			res.Err = fmt.Errorf("unknown tool: %s", call.Name)
		default:
			if err := o.guardrails.ValidateToolCall(call, tool.Schema()); err != nil {
				res.Err = err
				break
			}
			res.Output, res.Err = o.invoke(ctx, tool, call)
		}

		o.tracer.Event(ctx, "tool_call", map[string]any{"tool": call.Name, "ok": res.Err == nil})
		o.recordToolArtifact(ctx, conversationID, res)
		results = append(results, res)
	}
	return results
}

func (o *Orchestrator) invoke(ctx context.Context, tool ports.Tool, call ports.ToolCall) (string, error) {
	toolCtx, cancel := context.WithTimeout(ctx, o.policy.ToolTimeout)
	defer cancel()

	output, err := tool.Invoke(toolCtx, call.Args)
	if err != nil {
		return "", err
	}
	if s, ok := output.(string); ok {
		return s, nil
	}
	b, err := json.Marshal(output)
	if err != nil {
		return "", fmt.Errorf("tool %s output marshaling failed: %w", call.Name, err)
	}
	return string(b), nil
}

func (o *Orchestrator) recordToolArtifact(ctx context.Context, conversationID string, res ToolResult) {
	payload := map[string]any{"args": res.Call.Args, "output": res.Output}
	if res.Err != nil {
		payload["error"] = res.Err.Error()
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return
	}
	if err := o.store.AppendToolArtifact(ctx, conversationID, res.Call.Name, raw); err != nil {
		o.logger.Warn().Err(err).Str("tool", res.Call.Name).Msg("failed to persist tool artifact")
	}
}

// buildToolSpecs converts tools to provider-expected specs.
func buildToolSpecs(tools []ports.Tool) []ports.ToolSpec {
	specs := make([]ports.ToolSpec, len(tools))
	for i, tool := range tools {
		specs[i] = ports.ToolSpec{Name: tool.Name(), JSONSchema: tool.Schema()}
		if d, ok := tool.(ports.Describer); ok {
			specs[i].Description = d.Description()
		}
	}
	return specs
}

// cacheKey hashes everything that influences the completion.
func cacheKey(prompt ports.PromptInput, opts ports.Options) string {
	h := sha256.New()
	fmt.Fprintf(h, "sys:%s\x00", prompt.System)
	for _, m := range prompt.Messages {
		fmt.Fprintf(h, "%s|%s|%s\x00", m.Role, m.Name, m.Content)
	}
	for _, t := range prompt.Tools {
		fmt.Fprintf(h, "tool:%s:%s\x00", t.Name, t.JSONSchema)
	}
	fmt.Fprintf(h, "opts:%d:%.3f:%.3f:%d", opts.MaxNewTokens, opts.Temperature, opts.TopP, opts.Seed)
	return "turn:" + hex.EncodeToString(h.Sum(nil))
}

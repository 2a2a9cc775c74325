package adapters

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	ports "github.com/ZanzyTHEbar/agentforge/forge/generation/harness/ports"
)

// HTTPProviderConfig configures an OpenAI-compatible chat completions client.
type HTTPProviderConfig struct {
	BaseURLs []string // tried in order until one answers
	APIKey   string
	Model    string
	Timeout  time.Duration
}

// HTTPProvider talks to any /v1/chat/completions endpoint.
type HTTPProvider struct {
	baseURLs []string
	model    string
	apiKey   string
	http     *http.Client
}

// NewHTTPProvider builds a provider; base URLs are normalized to end in /v1.
func NewHTTPProvider(cfg HTTPProviderConfig) (*HTTPProvider, error) {
	baseURLs := make([]string, 0, len(cfg.BaseURLs))
	seen := map[string]struct{}{}
	for _, raw := range cfg.BaseURLs {
		u := normalizeBaseURL(raw)
		if u == "" {
			continue
		}
		if _, ok := seen[u]; ok {
			continue
		}
		seen[u] = struct{}{}
		baseURLs = append(baseURLs, u)
	}
	if len(baseURLs) == 0 {
		return nil, fmt.Errorf("llm base URL is not configured")
	}
	if strings.TrimSpace(cfg.Model) == "" {
		return nil, fmt.Errorf("llm model is not configured")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}

	return &HTTPProvider{
		baseURLs: baseURLs,
		model:    cfg.Model,
		apiKey:   cfg.APIKey,
		http: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				Proxy: http.ProxyFromEnvironment,
				DialContext: (&net.Dialer{
					Timeout:   5 * time.Second,
					KeepAlive: 30 * time.Second,
				}).DialContext,
				ForceAttemptHTTP2:   true,
				MaxIdleConns:        100,
				IdleConnTimeout:     90 * time.Second,
				TLSHandshakeTimeout: 10 * time.Second,
			},
		},
	}, nil
}

type chatMessage struct {
	Role       string         `json:"role"`
	Content    string         `json:"content"`
	Name       string         `json:"name,omitempty"`
	ToolCalls  []chatToolCall `json:"tool_calls,omitempty"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
}

type chatTool struct {
	Type     string       `json:"type"`
	Function chatFunction `json:"function"`
}

type chatFunction struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

type chatToolCall struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float32       `json:"temperature"`
	TopP        float32       `json:"top_p,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Seed        int           `json:"seed,omitempty"`
	Stop        []string      `json:"stop,omitempty"`
	Tools       []chatTool    `json:"tools,omitempty"`
	ToolChoice  string        `json:"tool_choice,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message      chatMessage `json:"message"`
		FinishReason string      `json:"finish_reason"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

// Complete sends one chat completion request, failing over across base URLs.
func (p *HTTPProvider) Complete(ctx context.Context, in ports.PromptInput, opts ports.Options) (ports.Completion, error) {
	if len(in.Messages) == 0 && in.System == "" {
		return ports.Completion{}, fmt.Errorf("chat requires at least one message")
	}
	if opts.TimeoutMs > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(opts.TimeoutMs)*time.Millisecond)
		defer cancel()
	}

	payload, err := json.Marshal(p.buildRequest(in, opts))
	if err != nil {
		return ports.Completion{}, fmt.Errorf("marshal request: %w", err)
	}

	var (
		failures    []string
		rateLimited bool
		lastErr     error
	)
	for _, baseURL := range p.baseURLs {
		completion, err := p.completeAt(ctx, baseURL+"/chat/completions", payload)
		if err == nil {
			return completion, nil
		}
		if ctx.Err() != nil {
			return ports.Completion{}, fmt.Errorf("%w: %v", ports.ErrUnavailable, ctx.Err())
		}
		if errors.Is(err, ports.ErrRateLimited) {
			rateLimited = true
		}
		lastErr = err
		failures = append(failures, fmt.Sprintf("%s (%v)", baseURL, err))
	}

	sentinel := ports.ErrUnavailable
	if rateLimited {
		sentinel = ports.ErrRateLimited
	} else if len(failures) == 1 && !errors.Is(lastErr, ports.ErrUnavailable) {
		return ports.Completion{}, lastErr
	}
	return ports.Completion{}, fmt.Errorf("%w: %s", sentinel, strings.Join(failures, " | "))
}

func (p *HTTPProvider) buildRequest(in ports.PromptInput, opts ports.Options) chatRequest {
	req := chatRequest{
		Model:       p.model,
		Temperature: opts.Temperature,
		TopP:        opts.TopP,
		MaxTokens:   opts.MaxNewTokens,
		Seed:        opts.Seed,
		Stop:        opts.Stop,
	}
	if in.System != "" {
		req.Messages = append(req.Messages, chatMessage{Role: "system", Content: in.System})
	}
	for _, m := range in.Messages {
		req.Messages = append(req.Messages, toChatMessage(m))
	}
	for _, spec := range in.Tools {
		req.Tools = append(req.Tools, chatTool{
			Type: "function",
			Function: chatFunction{
				Name:        spec.Name,
				Description: spec.Description,
				Parameters:  json.RawMessage(spec.JSONSchema),
			},
		})
	}
	if len(req.Tools) > 0 {
		req.ToolChoice = opts.ToolChoice
	}
	return req
}

// toChatMessage flattens transcript roles onto what every compatible server accepts.
// Tool results travel as user text because they carry no tool_call_id.
func toChatMessage(m ports.PromptMessage) chatMessage {
	switch m.Role {
	case "assistant", "system":
		return chatMessage{Role: m.Role, Content: m.Content}
	case "tool":
		return chatMessage{Role: "user", Content: "[tool] " + m.Content}
	default:
		content := m.Content
		if m.Name != "" {
			content = m.Name + ": " + content
		}
		return chatMessage{Role: "user", Content: content}
	}
}

func (p *HTTPProvider) completeAt(ctx context.Context, endpoint string, payload []byte) (ports.Completion, error) {
	request, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return ports.Completion{}, fmt.Errorf("create request: %w", err)
	}
	request.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		request.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.http.Do(request)
	if err != nil {
		return ports.Completion{}, fmt.Errorf("%w: request failed: %v", ports.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return ports.Completion{}, fmt.Errorf("%w: status %s", ports.ErrRateLimited, resp.Status)
	case resp.StatusCode >= 500:
		return ports.Completion{}, fmt.Errorf("%w: status %s", ports.ErrUnavailable, resp.Status)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return ports.Completion{}, fmt.Errorf("status %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}

	var decoded chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return ports.Completion{}, fmt.Errorf("%w: decode response: %v", ports.ErrUnavailable, err)
	}
	if len(decoded.Choices) == 0 {
		return ports.Completion{}, fmt.Errorf("%w: response missing choices", ports.ErrUnavailable)
	}

	msg := decoded.Choices[0].Message
	completion := ports.Completion{Text: msg.Content, Raw: decoded}
	for _, tc := range msg.ToolCalls {
		args := json.RawMessage(tc.Function.Arguments)
		if !json.Valid(args) {
			args = json.RawMessage(`{}`)
		}
		completion.ToolCalls = append(completion.ToolCalls, ports.ToolCall{ID: tc.ID, Name: tc.Function.Name, Args: args})
	}
	if strings.TrimSpace(completion.Text) == "" && len(completion.ToolCalls) == 0 {
		return ports.Completion{}, fmt.Errorf("%w: response empty", ports.ErrUnavailable)
	}
	if decoded.Usage != nil {
		completion.Usage = &ports.Usage{
			PromptTokens:     decoded.Usage.PromptTokens,
			CompletionTokens: decoded.Usage.CompletionTokens,
			TotalTokens:      decoded.Usage.TotalTokens,
		}
	}
	return completion, nil
}

func normalizeBaseURL(baseURL string) string {
	trimmed := strings.TrimSpace(baseURL)
	if trimmed == "" {
		return trimmed
	}
	if !strings.Contains(trimmed, "://") {
		trimmed = "http://" + trimmed
	}
	trimmed = strings.TrimRight(trimmed, "/")
	if strings.HasSuffix(trimmed, "/v1") {
		return trimmed
	}
	return trimmed + "/v1"
}

var _ ports.Provider = (*HTTPProvider)(nil)

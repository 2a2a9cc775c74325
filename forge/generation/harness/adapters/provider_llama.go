//go:build llama && !no_llama

package adapters

import (
	"context"
	"fmt"
	"strings"
	"sync"

	ports "github.com/ZanzyTHEbar/agentforge/forge/generation/harness/ports"
	"github.com/go-skynet/go-llama.cpp"
)

// LlamaProvider runs completions against a local GGUF model. The model is not
// safe for concurrent use, so calls are serialized.
type LlamaProvider struct {
	mu    sync.Mutex
	model *llama.LLama
	cfg   LlamaConfig
}

// NewLlamaProvider loads the model at cfg.ModelPath.
func NewLlamaProvider(cfg LlamaConfig) (*LlamaProvider, error) {
	if strings.TrimSpace(cfg.ModelPath) == "" {
		return nil, fmt.Errorf("llm.model_path is required for the llama provider")
	}
	if cfg.ContextSize <= 0 {
		cfg.ContextSize = 4096
	}

	model, err := llama.New(cfg.ModelPath,
		llama.SetContext(cfg.ContextSize),
		llama.SetGPULayers(cfg.GPULayers),
	)
	if err != nil {
		return nil, fmt.Errorf("llama.New failed: %w", err)
	}
	return &LlamaProvider{model: model, cfg: cfg}, nil
}

// Complete predicts a reply. Cancellation returns early but the prediction
// finishes in the background before the model is released.
func (p *LlamaProvider) Complete(ctx context.Context, in ports.PromptInput, opts ports.Options) (ports.Completion, error) {
	prompt := flattenPrompt(in)
	predictOpts := []llama.PredictOption{
		llama.SetTemperature(opts.Temperature),
		llama.SetTokens(opts.MaxNewTokens),
		llama.SetRepeat(1),
		llama.SetStopWords(append([]string{"<|im_end|>"}, opts.Stop...)...),
	}
	if opts.TopP > 0 {
		predictOpts = append(predictOpts, llama.SetTopP(opts.TopP))
	}
	if p.cfg.Threads > 0 {
		predictOpts = append(predictOpts, llama.SetThreads(p.cfg.Threads))
	}
	if opts.Seed != 0 {
		predictOpts = append(predictOpts, llama.SetSeed(opts.Seed))
	}

	type result struct {
		text string
		err  error
	}
	done := make(chan result, 1)
	go func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		text, err := p.model.Predict(prompt, predictOpts...)
		done <- result{text: text, err: err}
	}()

	select {
	case <-ctx.Done():
		return ports.Completion{}, fmt.Errorf("%w: %v", ports.ErrUnavailable, ctx.Err())
	case r := <-done:
		if r.err != nil {
			return ports.Completion{}, fmt.Errorf("%w: predict: %v", ports.ErrUnavailable, r.err)
		}
		text := strings.TrimSpace(strings.TrimSuffix(r.text, "<|im_end|>"))
		if text == "" {
			return ports.Completion{}, fmt.Errorf("%w: response empty", ports.ErrUnavailable)
		}
		return ports.Completion{Text: text}, nil
	}
}

// Close frees the model.
func (p *LlamaProvider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.model != nil {
		p.model.Free()
		p.model = nil
	}
	return nil
}

var _ ports.Provider = (*LlamaProvider)(nil)

//go:build !llama || no_llama

package adapters

import (
	"context"
	"errors"

	ports "github.com/ZanzyTHEbar/agentforge/forge/generation/harness/ports"
)

var errLlamaNotBuilt = errors.New("llama.cpp support not compiled in; rebuild with -tags llama")

// LlamaProvider is unavailable in builds without the llama tag.
type LlamaProvider struct{}

func NewLlamaProvider(cfg LlamaConfig) (*LlamaProvider, error) {
	return nil, errLlamaNotBuilt
}

func (p *LlamaProvider) Complete(ctx context.Context, in ports.PromptInput, opts ports.Options) (ports.Completion, error) {
	return ports.Completion{}, errLlamaNotBuilt
}

func (p *LlamaProvider) Close() error { return nil }

var _ ports.Provider = (*LlamaProvider)(nil)

package harness

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ZanzyTHEbar/agentforge/forge/config"
	"github.com/ZanzyTHEbar/agentforge/forge/generation/harness/adapters"
	ports "github.com/ZanzyTHEbar/agentforge/forge/generation/harness/ports"
	"github.com/rs/zerolog"
)

// Factory creates and wires harness components from configuration.
type Factory struct {
	harnessConfig *config.HarnessConfig
	llmConfig     *config.LLMConfig
	db            *sql.DB // Optional, for the conversation store
	logger        zerolog.Logger
}

// NewFactory creates a new harness factory.
func NewFactory(harnessConfig *config.HarnessConfig, llmConfig *config.LLMConfig, db *sql.DB, logger zerolog.Logger) *Factory {
	return &Factory{
		harnessConfig: harnessConfig,
		llmConfig:     llmConfig,
		db:            db,
		logger:        logger,
	}
}

// CreateOrchestrator wires an Orchestrator around provider.
func (f *Factory) CreateOrchestrator(provider ports.Provider) *Orchestrator {
	return NewOrchestrator(provider, f.CreateComponents(), f.CreatePolicy())
}

// CreateComponents builds every non-provider collaborator from config.
func (f *Factory) CreateComponents() Components {
	return Components{
		Builder:    NewPromptBuilder(),
		Guardrails: f.CreateGuardrails(),
		Store:      f.CreateStore(),
		Cache:      f.createCache(),
		Limiter:    f.createRateLimiter(),
		Tracer:     f.createTracer(),
		Logger:     f.logger,
	}
}

// CreateProvider builds the inference provider named by llm.provider.
func (f *Factory) CreateProvider() (ports.Provider, error) {
	switch f.llmConfig.Provider {
	case "openai", "":
		p, err := adapters.NewHTTPProvider(adapters.HTTPProviderConfig{
			BaseURLs: f.llmConfig.BaseURLs,
			APIKey:   f.llmConfig.APIKey,
			Model:    f.llmConfig.Model,
			Timeout:  time.Duration(f.llmConfig.TimeoutMs) * time.Millisecond,
		})
		if err != nil {
			return nil, err
		}
		return p, nil
	case "llama":
		p, err := adapters.NewLlamaProvider(adapters.LlamaConfig{
			ModelPath:   f.llmConfig.ModelPath,
			ContextSize: f.llmConfig.ContextSize,
			GPULayers:   f.llmConfig.GPULayers,
		})
		if err != nil {
			return nil, err
		}
		return p, nil
	default:
		return nil, fmt.Errorf("unknown llm provider %q", f.llmConfig.Provider)
	}
}

// DefaultOptions are the sampling options used when an agent leaves them unset.
func (f *Factory) DefaultOptions() ports.Options {
	return ports.Options{
		MaxNewTokens: f.llmConfig.MaxNewTokens,
		Temperature:  f.llmConfig.Temperature,
		TopP:         f.llmConfig.TopP,
		TimeoutMs:    f.llmConfig.TimeoutMs,
	}
}

func (f *Factory) createCache() ports.Cache {
	if !f.harnessConfig.CacheEnabled {
		return &noOpCache{}
	}
	return adapters.NewLRUCache(f.harnessConfig.CacheCapacity)
}

func (f *Factory) createRateLimiter() ports.RateLimiter {
	if !f.harnessConfig.RateLimitEnabled {
		return &noOpRateLimiter{}
	}
	return adapters.NewRateLimiter(f.harnessConfig.RateLimitRPS, f.harnessConfig.RateLimitBurst)
}

func (f *Factory) createTracer() ports.Tracer {
	if !f.harnessConfig.EnableTracing {
		return &noOpTracer{}
	}
	return adapters.NewZerologTracer(f.logger)
}

// CreateStore returns the libsql store when a database is wired, a no-op store otherwise.
func (f *Factory) CreateStore() ports.ConversationStore {
	if f.db == nil {
		return &noOpStore{}
	}
	return adapters.NewLibSQLConversationStore(f.db)
}

// CreateGuardrails creates guardrails from config.
func (f *Factory) CreateGuardrails() *Guardrails {
	guardrails := NewGuardrails()
	guardrails.SetMaxToolCalls(f.harnessConfig.MaxToolCalls)
	guardrails.SetSchemaValidation(f.harnessConfig.EnableGuardrails)

	if f.harnessConfig.EnableGuardrails {
		for _, toolName := range f.harnessConfig.AllowedTools {
			guardrails.AddAllowedTool(toolName)
		}
	}
	return guardrails
}

// CreatePolicy creates a policy from config with validation.
func (f *Factory) CreatePolicy() *Policy {
	policy := DefaultPolicy()
	policy.RetryCount = f.harnessConfig.RetryCount
	if f.harnessConfig.RetryBackoff > 0 {
		policy.RetryBackoff = f.harnessConfig.RetryBackoff
	}
	if f.harnessConfig.ToolTimeout > 0 {
		policy.ToolTimeout = f.harnessConfig.ToolTimeout
	}
	if f.harnessConfig.CacheEnabled {
		policy.CacheTTL = time.Duration(f.harnessConfig.CacheTTLSeconds) * time.Second
	}

	if policy.RetryCount < 0 {
		policy.RetryCount = 0
		f.logger.Warn().Int("retry_count", f.harnessConfig.RetryCount).Msg("RetryCount clamped to minimum of 0")
	}
	if policy.RetryCount > 5 {
		policy.RetryCount = 5
		f.logger.Warn().Int("retry_count", f.harnessConfig.RetryCount).Msg("RetryCount clamped to maximum of 5")
	}
	return policy
}

// noOpCache implements Cache interface with no-op behavior for testing/disabled cache.
type noOpCache struct{}

func (c *noOpCache) Get(ctx context.Context, key string) ([]byte, bool) { return nil, false }
func (c *noOpCache) Set(ctx context.Context, key string, value []byte, ttlSeconds int) error {
	return nil
}
func (c *noOpCache) Delete(ctx context.Context, key string) error { return nil }

type noOpRateLimiter struct{}

func (r *noOpRateLimiter) Acquire(ctx context.Context, key string) (release func(), err error) {
	return func() {}, nil
}

type noOpTracer struct{}

func (t *noOpTracer) StartSpan(ctx context.Context, name string, attrs map[string]any) (context.Context, func(err error)) {
	return ctx, func(err error) {}
}

func (t *noOpTracer) Event(ctx context.Context, name string, attrs map[string]any) {}

type noOpStore struct{}

func (s *noOpStore) SaveTurn(ctx context.Context, conversationID string, turn ports.Turn) error {
	return nil
}

func (s *noOpStore) LoadContext(ctx context.Context, conversationID string, k int) ([]ports.Turn, error) {
	return nil, nil
}

func (s *noOpStore) AppendToolArtifact(ctx context.Context, conversationID, name string, payload []byte) error {
	return nil
}

var (
	_ ports.Cache             = (*noOpCache)(nil)
	_ ports.RateLimiter       = (*noOpRateLimiter)(nil)
	_ ports.Tracer            = (*noOpTracer)(nil)
	_ ports.ConversationStore = (*noOpStore)(nil)
)

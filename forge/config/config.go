package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	internal "github.com/ZanzyTHEbar/agentforge/forge"

	"github.com/spf13/viper"
)

// Config stores all configuration of the application.
// The values are read by viper from a config file or environment variables.
type Config struct {
	Forge    ForgeConfig    `mapstructure:"forge"`
	LLM      LLMConfig      `mapstructure:"llm"`
	Harness  HarnessConfig  `mapstructure:"harness"`
	Team     TeamConfig     `mapstructure:"team"`
	Artifact ArtifactConfig `mapstructure:"artifact"`
	Archive  ArchiveConfig  `mapstructure:"archive"`
	Log      LogConfig      `mapstructure:"log"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
}

// DatabaseConfig stores database connection details.
type DatabaseConfig struct {
	DSN  string `mapstructure:"dsn"`
	Type string `mapstructure:"type"`
	// Embedded-only configuration
	LibSQLDataDir string `mapstructure:"libsql_data_dir"`
}

// ForgeConfig stores application level settings.
type ForgeConfig struct {
	ArtifactsDir       string         `mapstructure:"artifacts_dir"`       // Disk mirror for save_artifact writes, empty disables
	OutputDir          string         `mapstructure:"output_dir"`          // Where bundles are written
	Database           DatabaseConfig `mapstructure:"database"`
	PersistTranscripts bool           `mapstructure:"persist_transcripts"` // Save every committed message to the database
	Concurrency        int            `mapstructure:"concurrency"`         // Max teams running at once
}

// LLMConfig stores inference service settings.
type LLMConfig struct {
	Provider     string   `mapstructure:"provider"`       // "openai" or "llama"
	BaseURLs     []string `mapstructure:"base_urls"`      // Tried in order
	APIKey       string   `mapstructure:"api_key"`        // Bearer token
	Model        string   `mapstructure:"model"`          // Model id sent to the service
	ModelPath    string   `mapstructure:"model_path"`     // Local GGUF file for llama
	MaxNewTokens int      `mapstructure:"max_new_tokens"` // Fallback reply cap
	Temperature  float32  `mapstructure:"temperature"`    // Fallback sampling temperature
	TopP         float32  `mapstructure:"top_p"`
	TimeoutMs    int      `mapstructure:"timeout_ms"`   // Per-request timeout
	ContextSize  int      `mapstructure:"context_size"` // llama only
	GPULayers    int      `mapstructure:"gpu_layers"`   // llama only
}

// HarnessConfig stores per-turn harness settings.
type HarnessConfig struct {
	// Cache settings
	CacheEnabled    bool `mapstructure:"cache_enabled"`
	CacheCapacity   int  `mapstructure:"cache_capacity"`
	CacheTTLSeconds int  `mapstructure:"cache_ttl_seconds"`

	// Rate limiting
	RateLimitEnabled bool    `mapstructure:"rate_limit_enabled"`
	RateLimitRPS     float64 `mapstructure:"rate_limit_rps"`   // Sustained inference calls per second
	RateLimitBurst   int     `mapstructure:"rate_limit_burst"` // Bucket size

	// Retries on RateLimited / Unavailable
	RetryCount   int           `mapstructure:"retry_count"`
	RetryBackoff time.Duration `mapstructure:"retry_backoff"`

	// Tools
	MaxToolCalls int           `mapstructure:"max_tool_calls"` // Per turn
	ToolTimeout  time.Duration `mapstructure:"tool_timeout"`

	// Safety and validation
	EnableGuardrails bool     `mapstructure:"enable_guardrails"`
	AllowedTools     []string `mapstructure:"allowed_tools"` // Empty means every registered tool

	// Telemetry
	EnableTracing bool `mapstructure:"enable_tracing"`
}

// TeamConfig stores conversation settings.
type TeamConfig struct {
	TurnTimeout       time.Duration `mapstructure:"turn_timeout"`
	SelectionTimeout  time.Duration `mapstructure:"selection_timeout"`
	SelectionAttempts int           `mapstructure:"selection_attempts"` // Selection calls per turn before fallback
	DefaultRoster     string        `mapstructure:"default_roster"`
	RosterDir         string        `mapstructure:"roster_dir"` // Extra *.yaml rosters
}

// ArtifactConfig stores extraction and validation settings.
type ArtifactConfig struct {
	SourceMode       string   `mapstructure:"source_mode"` // "transcript", "tools" or "both"
	MinContentLength int      `mapstructure:"min_content_length"`
	MaxContentBytes  int      `mapstructure:"max_content_bytes"`
	BannerPatterns   []string `mapstructure:"banner_patterns"` // Extra regexes, one line each
	Exclusions       []string `mapstructure:"exclusions"`      // gitignore syntax
}

// ArchiveConfig stores packaging settings.
type ArchiveConfig struct {
	ManifestName     string `mapstructure:"manifest_name"`
	CompressionLevel int    `mapstructure:"compression_level"`
}

// LogConfig stores logger settings.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // "console" or "json"
}

// MetricsConfig stores prometheus exposition settings.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

var AppConfig Config

// DefaultExclusions are skipped when harvesting files.
var DefaultExclusions = []string{
	"__pycache__/",
	".git/",
	".gitignore",
	"node_modules/",
	".env",
	"*.pyc",
	"*.log",
	".DS_Store",
	"Thumbs.db",
}

// LoadConfig reads configuration from file or environment variables.
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(".")
		v.AddConfigPath(filepath.Join("etc", internal.DefaultAppName))
		v.AddConfigPath(internal.DefaultConfigPath)
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	setDefaults(v)

	v.SetEnvPrefix("FORGE")
	v.AutomaticEnv()
	// llm.api_key becomes FORGE_LLM_API_KEY
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode into struct: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	AppConfig = cfg
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("forge.artifacts_dir", internal.DefaultArtifactsDir)
	v.SetDefault("forge.output_dir", ".")
	v.SetDefault("forge.database.dsn", internal.DefaultDatabaseDSN)
	v.SetDefault("forge.database.type", internal.DefaultDatabaseType)
	v.SetDefault("forge.database.libsql_data_dir", internal.DefaultDatabaseDir)
	v.SetDefault("forge.persist_transcripts", false)
	v.SetDefault("forge.concurrency", 2)

	v.SetDefault("llm.provider", "openai")
	v.SetDefault("llm.base_urls", []string{"https://api.openai.com"})
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.model", "gpt-4o")
	v.SetDefault("llm.model_path", "")
	v.SetDefault("llm.max_new_tokens", 4000)
	v.SetDefault("llm.temperature", 0.8)
	v.SetDefault("llm.top_p", 1.0)
	v.SetDefault("llm.timeout_ms", 120000)
	v.SetDefault("llm.context_size", 8192)
	v.SetDefault("llm.gpu_layers", 0)

	v.SetDefault("harness.cache_enabled", false)
	v.SetDefault("harness.cache_capacity", 256)
	v.SetDefault("harness.cache_ttl_seconds", 3600)
	v.SetDefault("harness.rate_limit_enabled", true)
	v.SetDefault("harness.rate_limit_rps", 2.0)
	v.SetDefault("harness.rate_limit_burst", 4)
	v.SetDefault("harness.retry_count", 2)
	v.SetDefault("harness.retry_backoff", "500ms")
	v.SetDefault("harness.max_tool_calls", 16)
	v.SetDefault("harness.tool_timeout", "30s")
	v.SetDefault("harness.enable_guardrails", true)
	v.SetDefault("harness.allowed_tools", []string{})
	v.SetDefault("harness.enable_tracing", false)

	v.SetDefault("team.turn_timeout", "3m")
	v.SetDefault("team.selection_timeout", "30s")
	v.SetDefault("team.selection_attempts", 2)
	v.SetDefault("team.default_roster", "backend")
	v.SetDefault("team.roster_dir", "")

	v.SetDefault("artifact.source_mode", "both")
	v.SetDefault("artifact.min_content_length", internal.DefaultMinContentLength)
	v.SetDefault("artifact.max_content_bytes", 1<<20)
	v.SetDefault("artifact.banner_patterns", []string{})
	v.SetDefault("artifact.exclusions", DefaultExclusions)

	v.SetDefault("archive.manifest_name", internal.DefaultManifestName)
	v.SetDefault("archive.compression_level", internal.DefaultCompressionLevel)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")

	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.addr", ":9464")
}

// Validate rejects values no component can work with.
func (c *Config) Validate() error {
	switch c.Artifact.SourceMode {
	case "transcript", "tools", "both":
	default:
		return fmt.Errorf("artifact.source_mode %q: want transcript, tools or both", c.Artifact.SourceMode)
	}
	if c.Artifact.MinContentLength < 1 {
		return fmt.Errorf("artifact.min_content_length must be positive, got %d", c.Artifact.MinContentLength)
	}
	if c.Archive.CompressionLevel < -2 || c.Archive.CompressionLevel > 9 {
		return fmt.Errorf("archive.compression_level %d out of range -2..9", c.Archive.CompressionLevel)
	}
	if strings.TrimSpace(c.Archive.ManifestName) == "" {
		return fmt.Errorf("archive.manifest_name is empty")
	}
	switch c.LLM.Provider {
	case "openai", "llama":
	default:
		return fmt.Errorf("llm.provider %q: want openai or llama", c.LLM.Provider)
	}
	if c.Team.SelectionAttempts < 1 {
		return fmt.Errorf("team.selection_attempts must be positive, got %d", c.Team.SelectionAttempts)
	}
	return nil
}

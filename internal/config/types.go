// Package config provides configuration types for agentcore.
package config

import (
	"fmt"
	"time"
)

// Config represents the main agentcore configuration.
type Config struct {
	Agent     AgentConfig      `toml:"agent"`
	Storage   StorageConfig    `toml:"storage"`
	Quota     QuotaConfig      `toml:"quota"`
	Router    RouterConfig     `toml:"router"`
	Providers []ProviderConfig `toml:"providers" validate:"min=1,dive"`
	Server    ServerConfig     `toml:"server"`
	Log       LogConfig        `toml:"log"`
}

// AgentConfig bounds the execution loop.
type AgentConfig struct {
	MaxIterations     int      `toml:"max_iterations" validate:"min=1,max=100"`
	MaxParallelTools  int      `toml:"max_parallel_tools" validate:"min=1,max=64"`
	ModelRetries      int      `toml:"model_retries" validate:"min=1,max=10"`
	ToolTimeout       Duration `toml:"tool_timeout"`
	TurnTimeout       Duration `toml:"turn_timeout"`
	CheckpointTimeout Duration `toml:"checkpoint_timeout"` // budget for the write after a cancelled turn
}

// StorageConfig contains database paths.
type StorageConfig struct {
	DataDir      string `toml:"data_dir" validate:"required"`
	CheckpointDB string `toml:"checkpoint_db" validate:"required"`
	RunsDB       string `toml:"runs_db" validate:"required"`
}

// QuotaConfig limits what a single caller can do.
type QuotaConfig struct {
	MaxRunsPerHour    int `toml:"max_runs_per_hour" validate:"min=0"` // 0 disables the limit
	MaxInsightsPerRun int `toml:"max_insights_per_run" validate:"min=0"`
}

// RouterConfig holds the tier pools and routing overrides.
type RouterConfig struct {
	PIIKeywords []string                `toml:"pii_keywords"`
	ToolTiers   map[string]string       `toml:"tool_tiers"`
	Pools       map[string][]ModelEntry `toml:"pools" validate:"dive,dive"`
}

// ModelEntry is one model in a tier pool.
type ModelEntry struct {
	Provider           string  `toml:"provider" validate:"required"`
	Model              string  `toml:"model" validate:"required"`
	Temperature        float64 `toml:"temperature" validate:"min=0,max=2"`
	MaxTokens          int     `toml:"max_tokens" validate:"min=1"`
	EstimatedCost      float64 `toml:"estimated_cost" validate:"min=0"`
	EstimatedLatencyMs int     `toml:"estimated_latency_ms" validate:"min=0"`
	Compliant          bool    `toml:"compliant"`
}

// ProviderConfig configures an OpenAI-compatible endpoint.
type ProviderConfig struct {
	Name      string   `toml:"name" validate:"required"`
	BaseURL   string   `toml:"base_url" validate:"required,url"`
	APIKeyEnv string   `toml:"api_key_env"` // empty for endpoints without auth
	Timeout   Duration `toml:"timeout"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Listen       string   `toml:"listen" validate:"required"`
	ReadTimeout  Duration `toml:"read_timeout"`
	WriteTimeout Duration `toml:"write_timeout"`
}

// LogConfig configures structured logging.
type LogConfig struct {
	Level  string `toml:"level" validate:"oneof=debug info warn error"`
	Format string `toml:"format" validate:"oneof=text json"`
}

// Duration is a time.Duration written as a string ("30s") in TOML.
type Duration struct {
	time.Duration
}

// D is shorthand for building a Duration.
func D(d time.Duration) Duration {
	return Duration{Duration: d}
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", text, err)
	}
	d.Duration = v
	return nil
}

// Package config handles agentcore configuration loading and management.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"

	apperrors "github.com/flynn-ai/agentcore/internal/errors"
	"github.com/flynn-ai/agentcore/internal/model"
)

// Default returns the default configuration.
func Default() *Config {
	homeDir, _ := os.UserHomeDir()
	dataDir := filepath.Join(homeDir, ".agentcore")

	return &Config{
		Agent: AgentConfig{
			MaxIterations:     15,
			MaxParallelTools:  8,
			ModelRetries:      3,
			ToolTimeout:       D(30 * time.Second),
			TurnTimeout:       D(3 * time.Minute),
			CheckpointTimeout: D(5 * time.Second),
		},
		Storage: StorageConfig{
			DataDir:      dataDir,
			CheckpointDB: filepath.Join(dataDir, "checkpoints.db"),
			RunsDB:       filepath.Join(dataDir, "runs.db"),
		},
		Quota: QuotaConfig{
			MaxRunsPerHour:    5,
			MaxInsightsPerRun: 10,
		},
		Router: RouterConfig{
			PIIKeywords: slices.Clone(model.DefaultPIIKeywords),
			ToolTiers:   map[string]string{},
			Pools: map[string][]ModelEntry{
				string(model.TierFastCheap): {
					{Provider: "openai", Model: "gpt-4o-mini", Temperature: 0.3, MaxTokens: 1024, EstimatedCost: 0.0006, EstimatedLatencyMs: 800},
				},
				string(model.TierLargeContext): {
					{Provider: "openai", Model: "gpt-4.1", Temperature: 0.4, MaxTokens: 4096, EstimatedCost: 0.01, EstimatedLatencyMs: 2500},
				},
				string(model.TierHighReasoning): {
					{Provider: "openai", Model: "o3", Temperature: 1, MaxTokens: 8192, EstimatedCost: 0.04, EstimatedLatencyMs: 9000},
				},
				string(model.TierSecurePrivate): {
					{Provider: "private", Model: "llama-3.3-70b-instruct", Temperature: 0.2, MaxTokens: 4096, EstimatedCost: 0.004, EstimatedLatencyMs: 4000, Compliant: true},
				},
			},
		},
		Providers: []ProviderConfig{
			{Name: "openai", BaseURL: "https://api.openai.com/v1", APIKeyEnv: "OPENAI_API_KEY", Timeout: D(60 * time.Second)},
			{Name: "private", BaseURL: "http://localhost:8000/v1", Timeout: D(120 * time.Second)},
		},
		Server: ServerConfig{
			Listen:       "127.0.0.1:8420",
			ReadTimeout:  D(30 * time.Second),
			WriteTimeout: D(5 * time.Minute),
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load loads the configuration from the given path.
// If the file doesn't exist, returns defaults.
func Load(configPath string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	// Tables present in the file replace the defaults wholesale.
	cfg.Router.Pools = nil
	cfg.Providers = nil
	md, err := toml.Decode(string(data), cfg)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeConfigInvalid, "parse config", apperrors.CategoryValidation)
	}
	def := Default()
	if !md.IsDefined("router", "pools") {
		cfg.Router.Pools = def.Router.Pools
	}
	if !md.IsDefined("providers") {
		cfg.Providers = def.Providers
	}

	return expandPaths(cfg), nil
}

// Save saves the configuration to the given path.
func (c *Config) Save(configPath string) error {
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	file, err := os.Create(configPath)
	if err != nil {
		return err
	}
	defer file.Close()

	encoder := toml.NewEncoder(file)
	return encoder.Encode(c)
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field constraints and cross-field rules.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return apperrors.Wrap(err, apperrors.CodeConfigInvalid, "invalid configuration", apperrors.CategoryValidation)
	}

	var problems []string
	providers := make(map[string]bool, len(c.Providers))
	for _, p := range c.Providers {
		if providers[p.Name] {
			problems = append(problems, fmt.Sprintf("provider %q defined twice", p.Name))
		}
		providers[p.Name] = true
	}
	for _, tier := range model.Tiers {
		if len(c.Router.Pools[string(tier)]) == 0 {
			problems = append(problems, fmt.Sprintf("pool %s is empty", tier))
		}
	}
	for name, pool := range c.Router.Pools {
		if !model.Tier(name).Valid() {
			problems = append(problems, fmt.Sprintf("unknown pool %q", name))
		}
		for _, m := range pool {
			if !providers[m.Provider] {
				problems = append(problems, fmt.Sprintf("pool %s: model %s uses unknown provider %q", name, m.Model, m.Provider))
			}
		}
	}
	for tool, tier := range c.Router.ToolTiers {
		if !model.Tier(tier).Valid() {
			problems = append(problems, fmt.Sprintf("tool %s: unknown tier %q", tool, tier))
		}
	}
	if c.Agent.ToolTimeout.Duration <= 0 || c.Agent.TurnTimeout.Duration <= 0 {
		problems = append(problems, "agent timeouts must be positive")
	}

	if len(problems) > 0 {
		slices.Sort(problems)
		return apperrors.NewBuilder(apperrors.CodeConfigInvalid, "invalid configuration: "+strings.Join(problems, "; ")).
			Validation().
			WithSuggestion("Run `agentcore config init` to write a complete default file").
			Build()
	}
	return nil
}

// RouterPools converts the configured pools for model.NewRouter.
func (c *Config) RouterPools() map[model.Tier][]model.Configuration {
	pools := make(map[model.Tier][]model.Configuration, len(c.Router.Pools))
	for name, entries := range c.Router.Pools {
		tier := model.Tier(name)
		for _, e := range entries {
			pools[tier] = append(pools[tier], model.Configuration{
				Provider:           e.Provider,
				Model:              e.Model,
				Temperature:        e.Temperature,
				MaxTokens:          e.MaxTokens,
				EstimatedCost:      e.EstimatedCost,
				EstimatedLatencyMs: e.EstimatedLatencyMs,
				Tier:               tier,
				Compliant:          e.Compliant,
			})
		}
	}
	return pools
}

// ToolTierMap converts the configured tool tier overrides.
func (c *Config) ToolTierMap() map[string]model.Tier {
	out := make(map[string]model.Tier, len(c.Router.ToolTiers))
	for tool, tier := range c.Router.ToolTiers {
		out[tool] = model.Tier(tier)
	}
	return out
}

// Provider returns the named provider config.
func (c *Config) Provider(name string) (ProviderConfig, bool) {
	for _, p := range c.Providers {
		if p.Name == name {
			return p, true
		}
	}
	return ProviderConfig{}, false
}

// APIKey resolves the provider's key from its environment variable.
func (p ProviderConfig) APIKey() string {
	if p.APIKeyEnv == "" {
		return ""
	}
	return os.Getenv(p.APIKeyEnv)
}

// SlogLevel returns the configured log level.
func (l LogConfig) SlogLevel() slog.Level {
	switch l.Level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// expandPaths expands a leading ~ in storage paths.
func expandPaths(cfg *Config) *Config {
	homeDir, _ := os.UserHomeDir()

	for _, p := range []*string{&cfg.Storage.DataDir, &cfg.Storage.CheckpointDB, &cfg.Storage.RunsDB} {
		if strings.HasPrefix(*p, "~") {
			*p = filepath.Join(homeDir, (*p)[1:])
		}
	}
	return cfg
}

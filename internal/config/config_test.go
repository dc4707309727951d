package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/flynn-ai/agentcore/internal/errors"
	"github.com/flynn-ai/agentcore/internal/model"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 15, cfg.Agent.MaxIterations)
	assert.Equal(t, 5, cfg.Quota.MaxRunsPerHour)

	pools := cfg.RouterPools()
	for _, tier := range model.Tiers {
		require.NotEmpty(t, pools[tier], tier)
		assert.Equal(t, tier, pools[tier][0].Tier)
	}
	assert.True(t, pools[model.TierSecurePrivate][0].Compliant)
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "agentcore.toml")
	cfg := Default()
	cfg.Agent.ToolTimeout = D(7 * time.Second)
	cfg.Router.ToolTiers = map[string]string{"analyzeRisk": "high-reasoning"}
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 7*time.Second, loaded.Agent.ToolTimeout.Duration)
	assert.Equal(t, cfg.Router.Pools, loaded.Router.Pools)
	assert.Equal(t, cfg.Providers, loaded.Providers)
	assert.Equal(t, model.TierHighReasoning, loaded.ToolTierMap()["analyzeRisk"])
	require.NoError(t, loaded.Validate())
}

func TestLoadPartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agentcore.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[agent]
max_iterations = 4
tool_timeout = "2s"

[storage]
data_dir = "~/agentcore-data"

[log]
level = "debug"
format = "json"
`), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 4, cfg.Agent.MaxIterations)
	assert.Equal(t, 2*time.Second, cfg.Agent.ToolTimeout.Duration)
	assert.Equal(t, 3*time.Minute, cfg.Agent.TurnTimeout.Duration, "unset keys keep defaults")
	assert.NotContains(t, cfg.Storage.DataDir, "~")
	assert.Len(t, cfg.Providers, 2)
	assert.Len(t, cfg.Router.Pools, 4)
	require.NoError(t, cfg.Validate())
}

func TestLoadPoolsReplaceDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agentcore.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[[providers]]
name = "local"
base_url = "http://127.0.0.1:9000/v1"

[[router.pools.fast-cheap]]
provider = "local"
model = "small"
max_tokens = 512
`), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Len(t, cfg.Providers, 1)
	require.Len(t, cfg.Router.Pools, 1)
	assert.Equal(t, "small", cfg.Router.Pools["fast-cheap"][0].Model)

	err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pool secure-private is empty")
}

func TestLoadRejectsBadDuration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agentcore.toml")
	require.NoError(t, os.WriteFile(path, []byte("[agent]\ntool_timeout = \"soon\"\n"), 0644))

	_, err := Load(path)
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeConfigInvalid, apperrors.GetCode(err))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"iterations", func(c *Config) { c.Agent.MaxIterations = 0 }, "MaxIterations"},
		{"log level", func(c *Config) { c.Log.Level = "loud" }, "Level"},
		{"provider url", func(c *Config) { c.Providers[0].BaseURL = "not a url" }, "BaseURL"},
		{"pool entry", func(c *Config) { c.Router.Pools["fast-cheap"][0].Model = "" }, "Model"},
		{"unknown provider", func(c *Config) { c.Router.Pools["fast-cheap"][0].Provider = "ghost" }, `unknown provider "ghost"`},
		{"duplicate provider", func(c *Config) { c.Providers = append(c.Providers, c.Providers[0]) }, "defined twice"},
		{"unknown pool", func(c *Config) { c.Router.Pools["turbo"] = c.Router.Pools["fast-cheap"] }, `unknown pool "turbo"`},
		{"tool tier", func(c *Config) { c.Router.ToolTiers["listTasks"] = "warp" }, `unknown tier "warp"`},
		{"timeouts", func(c *Config) { c.Agent.ToolTimeout = D(0) }, "timeouts must be positive"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
			assert.Equal(t, apperrors.CategoryValidation, apperrors.GetCategory(err))
		})
	}
}

func TestProviderLookup(t *testing.T) {
	cfg := Default()
	p, ok := cfg.Provider("openai")
	require.True(t, ok)
	t.Setenv("OPENAI_API_KEY", "sk-from-env")
	assert.Equal(t, "sk-from-env", p.APIKey())

	_, ok = cfg.Provider("missing")
	assert.False(t, ok)
}

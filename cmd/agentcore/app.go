package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/flynn-ai/agentcore/internal/agent"
	"github.com/flynn-ai/agentcore/internal/checkpoint"
	"github.com/flynn-ai/agentcore/internal/config"
	"github.com/flynn-ai/agentcore/internal/model"
	"github.com/flynn-ai/agentcore/internal/prompt"
	"github.com/flynn-ai/agentcore/internal/records"
	"github.com/flynn-ai/agentcore/internal/runlog"
	"github.com/flynn-ai/agentcore/internal/tools"
)

// loadConfig reads and validates the config named by --config.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// newLogger builds the process logger from [log]. Output goes to stderr so
// the mcp command keeps stdout for the protocol.
func newLogger(lc config.LogConfig, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: lc.SlogLevel()}
	var h slog.Handler
	if lc.Format == "json" {
		h = slog.NewJSONHandler(w, opts)
	} else {
		h = slog.NewTextHandler(w, opts)
	}
	return slog.New(h)
}

func newRouter(cfg *config.Config, logger *slog.Logger) (*model.Router, error) {
	return model.NewRouter(model.RouterConfig{
		Pools:       cfg.RouterPools(),
		ToolTiers:   cfg.ToolTierMap(),
		PIIKeywords: cfg.Router.PIIKeywords,
		Tools:       tools.Catalog{},
		Logger:      logger,
	})
}

func newProviders(cfg *config.Config) (*model.ProviderSet, error) {
	set := model.NewProviderSet()
	for _, p := range cfg.Providers {
		// agent.model_retries bounds retries; the client makes one request per call.
		client, err := model.NewOpenAIClient(&model.OpenAIConfig{
			Name:    p.Name,
			APIKey:  p.APIKey(),
			BaseURL: p.BaseURL,
			Timeout: p.Timeout.Duration,
		})
		if err != nil {
			return nil, fmt.Errorf("provider %s: %w", p.Name, err)
		}
		set.Register(client)
	}
	return set, nil
}

// newRecordStore returns the in-memory record store, optionally seeded from
// a JSON file of the form {"students": [{...}], "tasks": [...]}.
func newRecordStore(seedPath string) (*records.MemoryStore, error) {
	store := records.NewMemoryStore()
	if seedPath == "" {
		return store, nil
	}

	data, err := os.ReadFile(seedPath)
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}
	var seed map[string][]records.Record
	if err := json.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("parse seed file: %w", err)
	}
	for entity, recs := range seed {
		if err := store.Seed(entity, recs...); err != nil {
			return nil, fmt.Errorf("seed %s: %w", entity, err)
		}
	}
	return store, nil
}

// app holds everything a long-running command needs.
type app struct {
	cfg         *config.Config
	logger      *slog.Logger
	router      *model.Router
	registry    *tools.Registry
	checkpoints *checkpoint.SQLiteStore
	runs        *runlog.Store
	orch        *agent.Orchestrator
}

func newApp(cfg *config.Config, logger *slog.Logger, seedPath string) (*app, error) {
	if err := os.MkdirAll(cfg.Storage.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	router, err := newRouter(cfg, logger)
	if err != nil {
		return nil, err
	}
	providers, err := newProviders(cfg)
	if err != nil {
		return nil, err
	}
	recs, err := newRecordStore(seedPath)
	if err != nil {
		return nil, err
	}
	registry, err := tools.NewRegistry(recs, tools.Options{})
	if err != nil {
		return nil, err
	}

	cps, err := checkpoint.OpenSQLite(cfg.Storage.CheckpointDB, logger)
	if err != nil {
		return nil, fmt.Errorf("open checkpoint store: %w", err)
	}
	runs, err := runlog.Open(cfg.Storage.RunsDB)
	if err != nil {
		cps.Close()
		return nil, fmt.Errorf("open run log: %w", err)
	}

	orch, err := agent.New(agent.Config{
		Router:            router,
		Providers:         providers,
		Tools:             registry,
		Checkpoints:       cps,
		RunLog:            runs,
		Prompt:            prompt.NewBuilder(),
		Quota:             agent.NewQuota(cfg.Quota.MaxRunsPerHour),
		Logger:            logger,
		MaxIterations:     cfg.Agent.MaxIterations,
		MaxParallelTools:  cfg.Agent.MaxParallelTools,
		ModelRetries:      cfg.Agent.ModelRetries,
		ToolTimeout:       cfg.Agent.ToolTimeout.Duration,
		TurnTimeout:       cfg.Agent.TurnTimeout.Duration,
		CheckpointTimeout: cfg.Agent.CheckpointTimeout.Duration,
		MaxInsights:       cfg.Quota.MaxInsightsPerRun,
	})
	if err != nil {
		runs.Close()
		cps.Close()
		return nil, err
	}

	return &app{
		cfg:         cfg,
		logger:      logger,
		router:      router,
		registry:    registry,
		checkpoints: cps,
		runs:        runs,
		orch:        orch,
	}, nil
}

func (a *app) Close() error {
	var firstErr error
	if err := a.runs.Close(); err != nil {
		firstErr = err
	}
	if err := a.checkpoints.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

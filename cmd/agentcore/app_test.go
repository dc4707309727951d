package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flynn-ai/agentcore/internal/agent"
	"github.com/flynn-ai/agentcore/internal/config"
	"github.com/flynn-ai/agentcore/internal/records"
	"github.com/flynn-ai/agentcore/internal/tools"
)

func TestNewRecordStoreSeeds(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seed.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"students": [{"id": "s1", "name": "Ada"}],
		"tasks": [{"id": "t1", "student_id": "s1", "title": "Draft essay"}]
	}`), 0o644))

	store, err := newRecordStore(path)
	require.NoError(t, err)

	rec, err := store.Get(context.Background(), records.EntityStudents, "s1")
	require.NoError(t, err)
	assert.Equal(t, "Ada", rec.String("name"))

	_, err = newRecordStore(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestNewRecordStoreRejectsUnknownEntity(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seed.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"spaceships": [{"id": "x"}]}`), 0o644))

	_, err := newRecordStore(path)
	assert.Error(t, err)
}

func TestNewLoggerFormat(t *testing.T) {
	var buf bytes.Buffer
	newLogger(config.LogConfig{Level: "info", Format: "json"}, &buf).Info("hello", "k", "v")
	assert.Contains(t, buf.String(), `"msg":"hello"`)

	buf.Reset()
	newLogger(config.LogConfig{Level: "warn", Format: "text"}, &buf).Info("dropped")
	assert.Empty(t, buf.String())
}

func TestNewAppWiresStores(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Storage.DataDir = dir
	cfg.Storage.CheckpointDB = filepath.Join(dir, "checkpoints.db")
	cfg.Storage.RunsDB = filepath.Join(dir, "runs.db")
	require.NoError(t, cfg.Validate())

	a, err := newApp(cfg, newLogger(cfg.Log, io.Discard), "")
	require.NoError(t, err)
	defer a.Close()

	threads, err := a.checkpoints.ListThreads(context.Background())
	require.NoError(t, err)
	assert.Empty(t, threads)
	assert.NotNil(t, a.orch.Stats())
}

func TestModelRetriesBoundProviderRequests(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	dir := t.TempDir()
	cfg := config.Default()
	cfg.Storage.DataDir = dir
	cfg.Storage.CheckpointDB = filepath.Join(dir, "checkpoints.db")
	cfg.Storage.RunsDB = filepath.Join(dir, "runs.db")
	cfg.Agent.ModelRetries = 2
	for i := range cfg.Providers {
		cfg.Providers[i].BaseURL = srv.URL
	}
	require.NoError(t, cfg.Validate())

	a, err := newApp(cfg, newLogger(cfg.Log, io.Discard), "")
	require.NoError(t, err)
	defer a.Close()

	_, err = a.orch.RunTurn(context.Background(), agent.TurnRequest{
		Message: "what are my tasks?",
		Role:    tools.RoleStudent,
		Mode:    tools.ModeChat,
	})
	var turnErr *agent.TurnError
	require.True(t, errors.As(err, &turnErr), "got %v", err)
	assert.Equal(t, int32(1+cfg.Agent.ModelRetries), hits.Load())
}

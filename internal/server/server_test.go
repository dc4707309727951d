package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flynn-ai/agentcore/internal/agent"
	"github.com/flynn-ai/agentcore/internal/checkpoint"
	apperrors "github.com/flynn-ai/agentcore/internal/errors"
	"github.com/flynn-ai/agentcore/internal/model"
	"github.com/flynn-ai/agentcore/internal/records"
	"github.com/flynn-ai/agentcore/internal/tools"
	"github.com/flynn-ai/agentcore/pkg/protocol"
)

// echoProvider answers every request with the last user message, calling
// listTasks first when the message asks for it.
type echoProvider struct {
	mu    sync.Mutex
	calls int
}

func (p *echoProvider) Name() string { return "stub" }

func (p *echoProvider) Invoke(_ context.Context, req *model.Request) (*model.Response, error) {
	p.mu.Lock()
	p.calls++
	p.mu.Unlock()

	last := req.Messages[len(req.Messages)-1]
	if last.Role == model.RoleUser && strings.Contains(last.Content, "tasks") {
		return &model.Response{ToolCalls: []model.ToolCall{{Name: "listTasks", Input: map[string]any{}}}}, nil
	}
	return &model.Response{Content: "echo: " + lastUser(req.Messages)}, nil
}

func lastUser(msgs []model.Message) string {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == model.RoleUser {
			return msgs[i].Content
		}
	}
	return ""
}

type testEnv struct {
	srv   *httptest.Server
	store *checkpoint.MemoryStore
}

func newTestEnv(t *testing.T, quota *agent.Quota) *testEnv {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	pools := make(map[model.Tier][]model.Configuration)
	for _, tier := range model.Tiers {
		pools[tier] = []model.Configuration{{Provider: "stub", Model: "m-" + string(tier), EstimatedCost: 0.01}}
	}
	router, err := model.NewRouter(model.RouterConfig{Pools: pools, Tools: tools.Catalog{}, Logger: logger})
	require.NoError(t, err)

	reg, err := tools.NewRegistry(records.NewMemoryStore(), tools.Options{})
	require.NoError(t, err)

	store := checkpoint.NewMemoryStore()
	orch, err := agent.New(agent.Config{
		Router:      router,
		Providers:   model.NewProviderSet(&echoProvider{}),
		Tools:       reg,
		Checkpoints: store,
		Quota:       quota,
		Logger:      logger,
		RetryPolicy: &apperrors.Policy{MaxAttempts: 1, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, Multiplier: 1},
	})
	require.NoError(t, err)

	s := New(Options{
		Orchestrator: orch,
		Router:       router,
		Tools:        reg,
		Checkpoints:  store,
		Logger:       logger,
	})
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)
	return &testEnv{srv: srv, store: store}
}

func (e *testEnv) post(t *testing.T, path string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, json.NewEncoder(&buf).Encode(body))
	resp, err := http.Post(e.srv.URL+path, "application/json", &buf)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func (e *testEnv) get(t *testing.T, path string) *http.Response {
	t.Helper()
	resp, err := http.Get(e.srv.URL + path)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func TestTurnEndpoint(t *testing.T) {
	env := newTestEnv(t, nil)

	resp := env.post(t, "/v1/turns", protocol.TurnRequest{Message: "hello", ThreadID: "t1", Role: "student", Mode: "chat"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	out := decode[protocol.TurnResponse](t, resp)
	assert.Equal(t, "t1", out.ThreadID)
	assert.Equal(t, "echo: hello", out.Response)
	assert.Equal(t, "complete", out.StopReason)
	assert.NotEmpty(t, out.CheckpointID)
}

func TestTurnEndpointRunsTools(t *testing.T) {
	env := newTestEnv(t, nil)

	resp := env.post(t, "/v1/turns", protocol.TurnRequest{Message: "show my tasks", ThreadID: "t1", Role: "student", Mode: "chat"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	out := decode[protocol.TurnResponse](t, resp)
	require.Len(t, out.ToolCalls, 1)
	assert.Equal(t, "listTasks", out.ToolCalls[0].Name)
	require.NotNil(t, out.ToolCalls[0].Result)
	assert.True(t, out.ToolCalls[0].Result.Success)
}

func TestTurnEndpointRejectsBadInput(t *testing.T) {
	env := newTestEnv(t, nil)

	t.Run("malformed json", func(t *testing.T) {
		resp, err := http.Post(env.srv.URL+"/v1/turns", "application/json", strings.NewReader("{"))
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

		body := decode[errorBody](t, resp)
		require.NotNil(t, body.Fault)
		assert.Equal(t, "validation", body.Fault.Category)
		assert.False(t, body.Fault.Retryable)
	})

	t.Run("unknown role", func(t *testing.T) {
		resp := env.post(t, "/v1/turns", protocol.TurnRequest{Message: "hi", Role: "janitor"})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("empty message", func(t *testing.T) {
		resp := env.post(t, "/v1/turns", protocol.TurnRequest{Role: "student"})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func TestTurnEndpointQuota(t *testing.T) {
	env := newTestEnv(t, agent.NewQuota(1))
	req := protocol.TurnRequest{Message: "hi", ThreadID: "t1", Role: "student", CallerID: "alice"}

	first := env.post(t, "/v1/turns", req)
	require.Equal(t, http.StatusOK, first.StatusCode)

	second := env.post(t, "/v1/turns", req)
	require.Equal(t, http.StatusTooManyRequests, second.StatusCode)
	assert.NotEmpty(t, second.Header.Get("Retry-After"))

	body := decode[errorBody](t, second)
	assert.Equal(t, "quota", body.Fault.Category)
	assert.Positive(t, body.Fault.RetryAfterSeconds)
}

func TestListTools(t *testing.T) {
	env := newTestEnv(t, nil)

	names := func(defs []protocol.ToolDefinition) []string {
		out := make([]string, len(defs))
		for i, d := range defs {
			out[i] = d.Name
		}
		return out
	}

	all := decode[[]protocol.ToolDefinition](t, env.get(t, "/v1/tools"))
	assert.Contains(t, names(all), "deleteRecord")

	student := decode[[]protocol.ToolDefinition](t, env.get(t, "/v1/tools?role=student&mode=chat"))
	assert.Contains(t, names(student), "listTasks")
	assert.NotContains(t, names(student), "deleteRecord")
	for _, d := range student {
		assert.NotEmpty(t, d.Parameters, d.Name)
	}

	resp := env.get(t, "/v1/tools?role=student&exclude_write=true&only_read=true")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestRouteEndpoint(t *testing.T) {
	env := newTestEnv(t, nil)

	yes := true
	resp := env.post(t, "/v1/route", protocol.RouteRequest{Tool: "listTasks", HasPII: &yes})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	out := decode[protocol.RouteResponse](t, resp)
	assert.Equal(t, "secure-private", out.Tier)
	assert.True(t, out.Compliant)
	assert.True(t, out.HasPII)
	assert.Equal(t, "explicit", out.PIISource)

	bad := env.post(t, "/v1/route", protocol.RouteRequest{Complexity: "galactic"})
	assert.Equal(t, http.StatusBadRequest, bad.StatusCode)
}

func TestThreadEndpoints(t *testing.T) {
	env := newTestEnv(t, nil)
	for _, msg := range []string{"one", "two"} {
		resp := env.post(t, "/v1/turns", protocol.TurnRequest{Message: msg, ThreadID: "t1", Role: "student"})
		require.Equal(t, http.StatusOK, resp.StatusCode)
	}

	threads := decode[[]checkpoint.ThreadSummary](t, env.get(t, "/v1/threads"))
	require.Len(t, threads, 1)
	assert.Equal(t, 2, threads[0].Checkpoints)

	cps := decode[[]checkpointView](t, env.get(t, "/v1/threads/t1/checkpoints"))
	require.Len(t, cps, 2)
	assert.Equal(t, cps[1].CheckpointID, cps[0].ParentID, "newest first")
	assert.Equal(t, 4, cps[0].Messages)

	limited := decode[[]checkpointView](t, env.get(t, "/v1/threads/t1/checkpoints?limit=1"))
	assert.Len(t, limited, 1)

	assert.Equal(t, http.StatusBadRequest, env.get(t, "/v1/threads/t1/checkpoints?limit=-1").StatusCode)
	assert.Equal(t, http.StatusNotFound, env.get(t, "/v1/threads/t1/checkpoints?before=missing").StatusCode)

	req, err := http.NewRequest(http.MethodDelete, env.srv.URL+"/v1/threads/t1", nil)
	require.NoError(t, err)
	del, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	del.Body.Close()
	assert.Equal(t, http.StatusNoContent, del.StatusCode)

	after := decode[[]checkpoint.ThreadSummary](t, env.get(t, "/v1/threads"))
	assert.Empty(t, after)
}

func TestRunsWithoutRunLog(t *testing.T) {
	env := newTestEnv(t, nil)

	resp := env.get(t, "/v1/runs")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	dismiss := env.post(t, "/v1/insights/abc/dismiss", struct{}{})
	assert.Equal(t, http.StatusNotFound, dismiss.StatusCode)
}

func TestHealthStatsAndMetrics(t *testing.T) {
	env := newTestEnv(t, nil)
	env.post(t, "/v1/turns", protocol.TurnRequest{Message: "hi", ThreadID: "t1", Role: "student"})

	health := decode[map[string]string](t, env.get(t, "/health"))
	assert.Equal(t, "ok", health["status"])

	stats := decode[map[string]json.RawMessage](t, env.get(t, "/stats"))
	assert.Contains(t, stats, "stats")
	assert.Contains(t, stats, "cost")

	resp := env.get(t, "/metrics")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "agentcore_turns_total")
}

func TestTurnStream(t *testing.T) {
	env := newTestEnv(t, nil)
	url := "ws" + strings.TrimPrefix(env.srv.URL, "http") + "/v1/turns/stream"

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(protocol.TurnRequest{Message: "show my tasks", ThreadID: "ws", Role: "student", Mode: "chat"}))

	var events []protocol.StreamEvent
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	for {
		var ev protocol.StreamEvent
		require.NoError(t, conn.ReadJSON(&ev))
		events = append(events, ev)
		if ev.Terminal() {
			break
		}
	}

	require.NotEmpty(t, events)
	assert.Equal(t, protocol.EventToolCall, events[0].Type)
	final := events[len(events)-1]
	assert.Equal(t, protocol.EventComplete, final.Type)
	require.NotNil(t, final.Result)
	assert.Equal(t, "ws", final.Result.ThreadID)

	_, _, err = conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "server closes after the terminal event: %v", err)
}

func TestTurnStreamRejectsBadFirstFrame(t *testing.T) {
	env := newTestEnv(t, nil)
	url := "ws" + strings.TrimPrefix(env.srv.URL, "http") + "/v1/turns/stream"

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(protocol.TurnRequest{Message: "hi", Role: "janitor"}))

	var ev protocol.StreamEvent
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, protocol.EventError, ev.Type)
	require.NotNil(t, ev.Fault)
	assert.Equal(t, "validation", ev.Fault.Category)
}

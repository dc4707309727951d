package mcpserver

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flynn-ai/agentcore/internal/records"
	"github.com/flynn-ai/agentcore/internal/tools"
	"github.com/flynn-ai/agentcore/internal/tools/executor"
)

func newRegistry(t *testing.T) *tools.Registry {
	t.Helper()
	reg, err := tools.NewRegistry(records.NewMemoryStore(), tools.Options{})
	require.NoError(t, err)
	return reg
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func connect(t *testing.T, s *Server) *mcp.ClientSession {
	t.Helper()
	ctx := context.Background()
	serverT, clientT := mcp.NewInMemoryTransports()

	ss, err := s.MCP().Connect(ctx, serverT, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ss.Close() })

	client := mcp.NewClient(&mcp.Implementation{Name: "test-client", Version: "v0"}, nil)
	cs, err := client.Connect(ctx, clientT, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = cs.Close() })
	return cs
}

func toolNames(ids []tools.ToolID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}

func TestNewValidatesRole(t *testing.T) {
	_, err := New(newRegistry(t), Options{Role: "janitor"})
	require.Error(t, err)

	_, err = New(nil, Options{Role: tools.RoleStudent})
	require.Error(t, err)
}

func TestExposedToolsFollowRole(t *testing.T) {
	reg := newRegistry(t)

	student, err := New(reg, Options{Role: tools.RoleStudent, Mode: tools.ModeChat, Logger: quietLogger()})
	require.NoError(t, err)
	assert.Contains(t, toolNames(student.Tools()), "listTasks")
	assert.NotContains(t, toolNames(student.Tools()), "deleteRecord")

	admin, err := New(reg, Options{Role: tools.RoleAdmin, Mode: tools.ModeChat, Logger: quietLogger()})
	require.NoError(t, err)
	assert.NotContains(t, toolNames(admin.Tools()), "deleteRecord", "confirmation tools are hidden by default")

	confirmed, err := New(reg, Options{Role: tools.RoleAdmin, Mode: tools.ModeChat, AllowConfirmation: true, Logger: quietLogger()})
	require.NoError(t, err)
	assert.Contains(t, toolNames(confirmed.Tools()), "deleteRecord")
}

func TestListToolsOverMCP(t *testing.T) {
	s, err := New(newRegistry(t), Options{Role: tools.RoleStudent, Mode: tools.ModeChat, Logger: quietLogger()})
	require.NoError(t, err)
	cs := connect(t, s)

	res, err := cs.ListTools(context.Background(), nil)
	require.NoError(t, err)

	var names []string
	for _, tool := range res.Tools {
		names = append(names, tool.Name)
		assert.NotEmpty(t, tool.Description, tool.Name)
	}
	assert.ElementsMatch(t, toolNames(s.Tools()), names)
}

func TestCallToolOverMCP(t *testing.T) {
	s, err := New(newRegistry(t), Options{Role: tools.RoleStudent, Mode: tools.ModeChat, Logger: quietLogger()})
	require.NoError(t, err)
	cs := connect(t, s)
	ctx := context.Background()

	t.Run("success", func(t *testing.T) {
		res, err := cs.CallTool(ctx, &mcp.CallToolParams{Name: "listTasks", Arguments: map[string]any{}})
		require.NoError(t, err)
		assert.False(t, res.IsError)

		require.Len(t, res.Content, 1)
		text, ok := res.Content[0].(*mcp.TextContent)
		require.True(t, ok)

		var out executor.Result
		require.NoError(t, json.Unmarshal([]byte(text.Text), &out))
		assert.True(t, out.Success)
	})

	t.Run("missing record is a tool error", func(t *testing.T) {
		res, err := cs.CallTool(ctx, &mcp.CallToolParams{Name: "getStudentProfile", Arguments: map[string]any{"student_id": "nobody"}})
		require.NoError(t, err)
		assert.True(t, res.IsError)
	})

	t.Run("unlisted tool", func(t *testing.T) {
		_, err := cs.CallTool(ctx, &mcp.CallToolParams{Name: "deleteRecord", Arguments: map[string]any{}})
		assert.Error(t, err)
	})
}

// Package mcpserver exposes the tool catalog to MCP clients.
//
// A server is built for one role and mode. Only the tools that role may call
// are listed, and every call goes through the same registry the turn loop
// uses, so results look the same to an MCP client as they do to the model.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	apperrors "github.com/flynn-ai/agentcore/internal/errors"
	"github.com/flynn-ai/agentcore/internal/metrics"
	"github.com/flynn-ai/agentcore/internal/tools"
	"github.com/flynn-ai/agentcore/internal/tools/executor"
)

const implementationName = "agentcore"

// Options configures a Server.
type Options struct {
	Role tools.Role
	Mode tools.Mode

	// AllowConfirmation lists confirmation-gated tools as well. MCP has no
	// per-call confirmation, so they are hidden unless the operator opts in.
	AllowConfirmation bool

	Filter      tools.FilterOptions
	ToolTimeout time.Duration
	Version     string
	Logger      *slog.Logger
}

// Server wraps an MCP server bound to a tool registry.
type Server struct {
	reg     *tools.Registry
	mcp     *mcp.Server
	ids     []tools.ToolID
	timeout time.Duration
	logger  *slog.Logger
}

// New builds a server exposing the tools opts.Role may call in opts.Mode.
func New(reg *tools.Registry, opts Options) (*Server, error) {
	if reg == nil {
		return nil, fmt.Errorf("mcpserver: registry is required")
	}
	if !opts.Role.Valid() {
		return nil, fmt.Errorf("mcpserver: unknown role %q", opts.Role)
	}
	ids, err := tools.FilterTools(tools.All(), opts.Role, opts.Mode, tools.FilterOptions{
		IncludeAdmin: opts.Role == tools.RoleAdmin || opts.Filter.IncludeAdmin,
		ExcludeWrite: opts.Filter.ExcludeWrite,
		OnlyRead:     opts.Filter.OnlyRead,
	})
	if err != nil {
		return nil, err
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	version := opts.Version
	if version == "" {
		version = "dev"
	}
	timeout := opts.ToolTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	s := &Server{
		reg:     reg,
		mcp:     mcp.NewServer(&mcp.Implementation{Name: implementationName, Version: version}, nil),
		timeout: timeout,
		logger:  logger,
	}
	for _, def := range reg.Definitions(ids) {
		id, _ := tools.Lookup(def.Name)
		if def.RequiresConfirmation && !opts.AllowConfirmation {
			continue
		}
		s.ids = append(s.ids, id)
		s.mcp.AddTool(&mcp.Tool{
			Name:        def.Name,
			Title:       def.DisplayName,
			Description: def.Description,
			InputSchema: def.Parameters,
		}, s.handler(id))
	}
	logger.Debug("mcp tools registered", "role", opts.Role, "mode", opts.Mode, "count", len(s.ids))
	return s, nil
}

// Tools returns the exposed tools in catalog order.
func (s *Server) Tools() []tools.ToolID {
	return s.ids
}

// MCP returns the underlying server, for custom transports.
func (s *Server) MCP() *mcp.Server {
	return s.mcp
}

// ServeStdio serves over stdin/stdout until the client disconnects or ctx ends.
func (s *Server) ServeStdio(ctx context.Context) error {
	return s.mcp.Run(ctx, &mcp.StdioTransport{})
}

func (s *Server) handler(id tools.ToolID) mcp.ToolHandler {
	return func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		input := map[string]any{}
		if raw := req.Params.Arguments; len(raw) > 0 {
			if err := json.Unmarshal(raw, &input); err != nil {
				return errorResult(executor.NewCodedErrorResult(apperrors.CodeToolInvalidParams, fmt.Errorf("arguments must be a JSON object: %w", err))), nil
			}
		}

		ctx, cancel := context.WithTimeout(ctx, s.timeout)
		defer cancel()

		start := time.Now()
		res, err := s.reg.Execute(ctx, id, input)
		switch {
		case ctx.Err() == context.DeadlineExceeded:
			res = executor.NewCodedErrorResult(apperrors.CodeToolTimeout, fmt.Errorf("%s timed out after %s", id, s.timeout))
		case err != nil:
			s.logger.Warn("mcp tool failed", "tool", id, "error", err)
			res = executor.NewCodedErrorResult(apperrors.CodeToolExecutionFailed, err)
		case res == nil:
			res = executor.NewCodedErrorResult(apperrors.CodeToolExecutionFailed, fmt.Errorf("%s returned no result", id))
		}
		res = executor.TimedResult(res, start)

		if !res.Success {
			metrics.ObserveToolCall(id.String(), metrics.OutcomeError)
			return errorResult(res), nil
		}
		metrics.ObserveToolCall(id.String(), metrics.OutcomeSuccess)
		return &mcp.CallToolResult{Content: []mcp.Content{&mcp.TextContent{Text: res.JSON()}}}, nil
	}
}

func errorResult(res *executor.Result) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: res.JSON()}},
		IsError: true,
	}
}

package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/flynn-ai/agentcore/internal/mcpserver"
	"github.com/flynn-ai/agentcore/internal/tools"
)

var (
	mcpRole              string
	mcpMode              string
	mcpAllowConfirmation bool
	mcpReadOnly          bool
	mcpSeedPath          string
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the role's tools over MCP (stdio)",
	Long: `Serves the tools the given role may call in the given mode as Model Context Protocol
tools on stdin/stdout. Logs go to stderr.`,
	RunE: runMCP,
}

func init() {
	mcpCmd.Flags().StringVar(&mcpRole, "role", string(tools.RoleStudent), "Caller role (student, counselor, admin)")
	mcpCmd.Flags().StringVar(&mcpMode, "mode", string(tools.ModeChat), "Interaction mode (chat, autonomous, review)")
	mcpCmd.Flags().BoolVar(&mcpAllowConfirmation, "allow-confirmation", false, "Also expose tools that normally need confirmation")
	mcpCmd.Flags().BoolVar(&mcpReadOnly, "read-only", false, "Expose read-level tools only")
	mcpCmd.Flags().StringVar(&mcpSeedPath, "seed", "", "JSON file of records to load into the record store")
}

func runMCP(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg.Log, os.Stderr)

	recs, err := newRecordStore(mcpSeedPath)
	if err != nil {
		return err
	}
	registry, err := tools.NewRegistry(recs, tools.Options{})
	if err != nil {
		return err
	}

	srv, err := mcpserver.New(registry, mcpserver.Options{
		Role:              tools.Role(mcpRole),
		Mode:              tools.Mode(mcpMode),
		AllowConfirmation: mcpAllowConfirmation,
		Filter:            tools.FilterOptions{OnlyRead: mcpReadOnly},
		ToolTimeout:       cfg.Agent.ToolTimeout.Duration,
		Version:           version,
		Logger:            logger,
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("mcp server starting", "role", mcpRole, "mode", mcpMode, "tools", len(srv.Tools()))
	return srv.ServeStdio(ctx)
}

package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

var version = "dev"

var rootCmd = &cobra.Command{
	Use:   "agentcore",
	Short: "agentcore - role-aware agent orchestration",
	Long: `agentcore runs tool-using model turns for students, counselors and admins.
It routes each turn to a model tier, runs the role's tools, and checkpoints every thread.`,
	SilenceUsage: true,
}

var (
	configPath string
	logLevel   string
)

func init() {
	homeDir, _ := os.UserHomeDir()
	defaultConfig := filepath.Join(homeDir, ".agentcore", "config.toml")

	rootCmd.PersistentFlags().StringVar(&configPath, "config", defaultConfig, "Path to config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override [log] level (debug, info, warn, error)")
	rootCmd.Version = version

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(mcpCmd)
	rootCmd.AddCommand(toolsCmd)
	rootCmd.AddCommand(routeCmd)
	rootCmd.AddCommand(threadsCmd)
	rootCmd.AddCommand(configCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/flynn-ai/agentcore/internal/server"
)

var (
	listenAddr string
	seedPath   string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP and websocket API",
	Long:  `Starts the agentcore API server. Turns are checkpointed to the configured SQLite database.`,
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&listenAddr, "listen", "", "Listen address (overrides [server] listen)")
	serveCmd.Flags().StringVar(&seedPath, "seed", "", "JSON file of records to load into the record store")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if listenAddr != "" {
		cfg.Server.Listen = listenAddr
	}
	logger := newLogger(cfg.Log, os.Stderr)

	a, err := newApp(cfg, logger, seedPath)
	if err != nil {
		return err
	}

	srv := server.New(server.Options{
		Addr:         cfg.Server.Listen,
		ReadTimeout:  cfg.Server.ReadTimeout.Duration,
		WriteTimeout: cfg.Server.WriteTimeout.Duration,
		Orchestrator: a.orch,
		Router:       a.router,
		Tools:        a.registry,
		Checkpoints:  a.checkpoints,
		Runs:         a.runs,
		DBPaths:      []string{cfg.Storage.CheckpointDB, cfg.Storage.RunsDB},
		Logger:       logger,
	})

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	serverErr := make(chan error, 1)
	go func() {
		err := srv.Start()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case sig := <-sigCh:
		logger.Info("shutting down", "signal", sig.String())
	case err := <-serverErr:
		if err != nil {
			a.Close()
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", "error", err)
	}
	if err := a.Close(); err != nil {
		logger.Warn("close stores", "error", err)
	}
	logger.Info("shutdown complete")
	return nil
}

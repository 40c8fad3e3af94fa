package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethpandaops/artifactoor/pkg/agent"
	"github.com/ethpandaops/artifactoor/pkg/config"
	"github.com/ethpandaops/artifactoor/pkg/storage"
	"github.com/spf13/cobra"
)

var agentCmd = &cobra.Command{
	Use:   "agent",
	Short: "Start the upload agent",
	Long: `Start the artifactoor agent on a build worker. The agent accepts
upload tasks over HTTP and executes them against its own storage gateway.`,
	RunE: runAgent,
}

func init() {
	rootCmd.AddCommand(agentCmd)
}

func runAgent(cmd *cobra.Command, args []string) error {
	if cfgFile == "" {
		return fmt.Errorf("config file is required (use --config)")
	}

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("validating config: %w", err)
	}

	if err := cfg.ValidateAgent(); err != nil {
		return fmt.Errorf("validating agent config: %w", err)
	}

	// Set up context with signal handling.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	gateway, err := storage.NewGateway(log, &cfg.Storage)
	if err != nil {
		return fmt.Errorf("creating storage gateway: %w", err)
	}

	srv, err := agent.NewServer(log, &cfg.Agent, gateway, version)
	if err != nil {
		return fmt.Errorf("creating agent server: %w", err)
	}

	if err := srv.Start(ctx); err != nil {
		return fmt.Errorf("starting agent server: %w", err)
	}

	// Wait for shutdown signal.
	sig := <-sigCh
	log.WithField("signal", sig).Info("Shutting down agent server")
	cancel()

	if err := srv.Stop(); err != nil {
		return fmt.Errorf("stopping agent server: %w", err)
	}

	return nil
}

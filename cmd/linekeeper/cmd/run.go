package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/solatis/linekeeper/internal/core/config"
	"github.com/solatis/linekeeper/internal/core/server"
	"github.com/solatis/linekeeper/internal/logging"
)

const Version = "0.1.0"

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Build the configured line and run it until interrupted",
	RunE:  runLine,
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().String("rules", "", "dependency rule file (overrides rules.file)")
	runCmd.Flags().String("metrics-addr", "", "prometheus listen address (overrides metrics.addr)")
}

func runLine(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if cmd.Flags().Changed("rules") {
		cfg.Rules.File, _ = cmd.Flags().GetString("rules")
	}
	if cmd.Flags().Changed("metrics-addr") {
		cfg.Metrics.Addr, _ = cmd.Flags().GetString("metrics-addr")
	}

	srv, err := server.NewLineServer(cfg)
	if err != nil {
		return fmt.Errorf("failed to build line: %w", err)
	}

	logger := logging.New("cmd")
	logger.Info("starting linekeeper", slog.String("version", Version), slog.String("line", cfg.Name))

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	runErr := srv.Start(ctx)

	logger.Info("shutting down gracefully")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return runErr
}

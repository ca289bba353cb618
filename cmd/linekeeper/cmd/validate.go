package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/solatis/linekeeper/internal/core/config"
	"github.com/solatis/linekeeper/internal/core/server"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check the line configuration and compile its rules without running",
	RunE:  runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) (err error) {
	cfg, err := config.LoadConfig(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	srv, err := server.NewLineServer(cfg)
	if err != nil {
		return fmt.Errorf("invalid line: %w", err)
	}
	defer releaseLine(srv, &err)

	fmt.Fprintf(cmd.OutOrStdout(), "line %q ok: %d modules, %d rules\n", cfg.Name, len(srv.Line().Modules()), srv.Rules().Len())
	return nil
}

type shutdowner interface {
	Shutdown(ctx context.Context) error
}

// releaseLine shuts srv down and joins any failure into *errp.
func releaseLine(srv shutdowner, errp *error) {
	if err := srv.Shutdown(context.Background()); err != nil {
		*errp = errors.Join(*errp, fmt.Errorf("failed to release line: %w", err))
	}
}

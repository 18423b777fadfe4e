// Package serve implements the read-API server command.
package serve

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/arbminer/arbminer/cmd/common"
	"github.com/arbminer/arbminer/internal/api"
)

// Command returns the serve command for use in the root command.
func Command() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the read API over HTTP",
		Long: `Serve starts the HTTP API exposing crawl state, discovered products,
run history and accepted matches. Endpoints backed by the database answer
503 when storage is disabled.`,
		RunE: runServe,
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	deps, err := common.Build(ctx)
	if err != nil {
		return fmt.Errorf("failed to initialize dependencies: %w", err)
	}
	defer deps.Close()

	server := api.NewServer(deps.Cfg.Server, api.Deps{
		States:   deps.StateStore(),
		Products: deps.ProductRepository(),
		Runs:     deps.RunRepository(),
		Matches:  deps.MatchRepository(),
		Metrics:  deps.Metrics,
	}, deps.Log)

	deps.Log.Info("starting API server", "address", deps.Cfg.Server.Address)
	if err := server.Run(ctx); err != nil {
		return fmt.Errorf("API server failed: %w", err)
	}
	return nil
}

package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/orgwarden/orgwarden/pkg/api"
	"github.com/orgwarden/orgwarden/pkg/config"
	"github.com/orgwarden/orgwarden/pkg/store"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the run history API",
	Long: `Start the HTTP API exposing the recorded reconciliation runs.
Requires run history to be enabled in the app configuration.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(log, cfgDir)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	if !cfg.App.History.Enabled {
		return fmt.Errorf("run history is not enabled in config")
	}

	ctx, stop := signal.NotifyContext(
		cmd.Context(), syscall.SIGINT, syscall.SIGTERM,
	)
	defer stop()

	st := store.NewStore(log, &cfg.App.History.Database)
	if err := st.Start(ctx); err != nil {
		return fmt.Errorf("starting store: %w", err)
	}

	srv := api.NewServer(log, &cfg.App.API, st)

	if err := srv.Start(ctx); err != nil {
		if stopErr := st.Stop(); stopErr != nil {
			log.WithError(stopErr).Warn("Failed to stop store")
		}

		return fmt.Errorf("starting api server: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		<-gctx.Done()
		log.Info("Shutting down API server")

		if err := srv.Stop(); err != nil {
			return fmt.Errorf("stopping api server: %w", err)
		}

		if err := st.Stop(); err != nil {
			return fmt.Errorf("stopping store: %w", err)
		}

		return nil
	})

	return g.Wait()
}

package cli

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/raysh454/scanhub/internal/app"
	"github.com/raysh454/scanhub/internal/logging"
)

func newServeCmd(opts *globalOptions) *cobra.Command {
	var listen string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the API server and scan worker",
		Long: `Start the HTTP API and the scan worker in one process.

Configuration comes from --config (YAML) and SCANHUB_* environment
variables. SIGINT or SIGTERM stops accepting work, lets running scans
finish within shutdown_timeout and then aborts the rest.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := app.LoadConfig(opts.configPath)
			if err != nil {
				return err
			}
			if listen != "" {
				cfg.Server.ListenAddr = listen
			}
			return runServe(cmd.Context(), cfg)
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "override server.listen_addr")
	return cmd
}

func runServe(parent context.Context, cfg *app.Config) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger, cleanup := logging.New(cfg.Logging)
	defer func() { _ = cleanup() }()

	application, err := app.NewApplication(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("build application: %w", err)
	}
	if err := application.Start(); err != nil {
		_ = application.Shutdown(context.Background())
		return fmt.Errorf("start: %w", err)
	}
	logger.Info("scanhub listening", logging.Field{Key: "addr", Value: application.Addr()})

	waitErr := application.Wait(ctx)
	stop()
	logger.Info("shutting down")

	if err := application.Shutdown(context.Background()); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return waitErr
}

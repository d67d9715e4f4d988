package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	routedhttp "github.com/fyrsmithlabs/routed/internal/http"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the routed HTTP server",
	Long: `Start the routed HTTP API server.

The server exposes routing, outcome reporting, stats, and Prometheus
metrics. It also watches the rule directory and picks up scoring rule
versions committed by out-of-band aggregation runs.

Examples:
  # Start with the default config
  routed serve

  # Start with an explicit config file
  routed serve --config ./config.yaml`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	a, err := setup()
	if err != nil {
		return err
	}
	defer a.close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv, err := routedhttp.NewServer(a.router, a.logger, &routedhttp.Config{
		Host: a.cfg.Server.Host,
		Port: a.cfg.Server.Port,
	})
	if err != nil {
		return err
	}

	// Pick up rule versions committed while the server runs.
	go func() {
		if err := a.rules.Watch(ctx); err != nil && !errors.Is(err, context.Canceled) {
			a.logger.Warn("rule watcher stopped", zap.Error(err))
		}
	}()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout.Duration())
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}

	a.logger.Info("server shutdown complete")
	return nil
}

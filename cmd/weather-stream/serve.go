package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	httpapi "github.com/i474232898/weather-stream/internal/api/http"
	"github.com/i474232898/weather-stream/internal/stream"
)

func newServeCmd() *cobra.Command {
	var host string
	var port int

	cmd := &cobra.Command{
		Use:     "serve",
		Aliases: []string{"sse"},
		Short:   "Run the HTTP server with the event stream and REST tools",
		RunE: func(cmd *cobra.Command, _ []string) error {
			d, err := loadDeps()
			if err != nil {
				return err
			}
			defer d.close()

			if cmd.Flags().Changed("host") {
				d.cfg.Host = host
			}
			if cmd.Flags().Changed("port") {
				d.cfg.Port = port
			}
			return serve(d)
		},
	}
	cmd.Flags().StringVar(&host, "host", "", "listen host (overrides HOST)")
	cmd.Flags().IntVar(&port, "port", 0, "listen port (overrides PORT)")
	return cmd
}

func serve(d *deps) error {
	logger := d.logger

	// Wait for termination signal
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cache, checks, err := d.alertCache(ctx)
	if err != nil {
		return err
	}

	opts := stream.DefaultOptions()
	opts.HeartbeatInterval = d.cfg.SSEHeartbeatInterval
	opts.MaxConnections = d.cfg.SSEMaxConnections

	manager := stream.NewManager(d.provider, cache, d.publisher(), opts, logger)
	defer func() {
		if err := manager.Close(); err != nil {
			logger.Warn("error closing stream manager", zap.Error(err))
		}
	}()
	if err := manager.Start(ctx); err != nil {
		return err
	}

	app := httpapi.NewApp(d.cfg.Debug)
	httpapi.RegisterHealthRoutes(app, manager, checks...)
	httpapi.RegisterRoutes(app, d.service)
	httpapi.RegisterStreamRoutes(app, d.service, manager, logger)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", zap.String("addr", d.cfg.Addr()))
		errCh <- app.Listen(d.cfg.Addr())
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	// Ending the streams first lets their responses complete.
	manager.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		logger.Error("error during shutdown", zap.Error(err))
	}
	return nil
}

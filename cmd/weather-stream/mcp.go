package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/i474232898/weather-stream/internal/mcpserver"
)

func newMCPCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the weather tools as an MCP server over stdio",
		RunE: func(*cobra.Command, []string) error {
			d, err := loadDeps()
			if err != nil {
				return err
			}
			defer d.close()

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			d.logger.Info("mcp server reading from stdin")
			return mcpserver.NewServer(d.service, version, d.logger).Serve(ctx, os.Stdin, os.Stdout)
		},
	}
}

// Package mcpserver exposes the weather tools as a Model Context Protocol
// server over stdio.
package mcpserver

import (
	"context"
	"errors"
	"io"

	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/i474232898/weather-stream/internal/weather"
)

const serverName = "weather-stream"

// Server wraps the MCP server with the weather tools registered.
type Server struct {
	mcp    *server.MCPServer
	logger *zap.Logger
}

// NewServer creates a Server exposing the tools backed by svc.
func NewServer(svc *weather.Service, version string, logger *zap.Logger) *Server {
	logger = logger.Named("mcp")

	s := server.NewMCPServer(serverName, version,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
	)
	s.AddTools(buildTools(svc, logger)...)

	return &Server{mcp: s, logger: logger}
}

// Serve reads newline-delimited requests from in and writes responses to out
// until in is exhausted or ctx is cancelled.
func (s *Server) Serve(ctx context.Context, in io.Reader, out io.Writer) error {
	stdio := server.NewStdioServer(s.mcp)
	stdio.SetErrorLogger(zap.NewStdLog(s.logger))

	err := stdio.Listen(ctx, in, out)
	if errors.Is(err, context.Canceled) || errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

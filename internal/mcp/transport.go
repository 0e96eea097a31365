package mcp

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sirupsen/logrus"
)

// TransportType selects how the MCP server talks to its client.
type TransportType string

const (
	TransportStdio TransportType = "stdio"
	TransportHTTP  TransportType = "http"
)

const httpShutdownTimeout = 10 * time.Second

// DetectTransport picks the transport from command line flags, then the
// MCP_TRANSPORT environment value, then the configured value, defaulting to stdio.
func DetectTransport(args []string, envValue, configured string, logger *logrus.Logger) TransportType {
	for _, arg := range args {
		switch arg {
		case "--stdio", "-stdio":
			logger.Debug("Detected stdio transport via command line argument")
			return TransportStdio
		case "--http", "-http":
			logger.Debug("Detected HTTP transport via command line argument")
			return TransportHTTP
		}
	}

	sources := []struct{ name, value string }{
		{"environment", envValue},
		{"configuration", configured},
	}
	for _, source := range sources {
		if source.value == "" {
			continue
		}
		if t, ok := parseTransport(source.value); ok {
			logger.WithFields(logrus.Fields{"source": source.name, "transport_type": t}).Debug("Detected transport")
			return t
		}
		logger.WithFields(logrus.Fields{"source": source.name, "transport_type": source.value}).Warn("Unknown transport type")
	}

	return TransportStdio
}

func parseTransport(value string) (TransportType, bool) {
	switch value {
	case "stdio":
		return TransportStdio, true
	case "http", "http-sse", "streamable-http":
		return TransportHTTP, true
	default:
		return "", false
	}
}

// serve runs server over the chosen transport until ctx is cancelled.
func serve(ctx context.Context, server *mcp.Server, transport TransportType, addr string, logger *logrus.Logger) error {
	logger.WithField("transport_type", transport).Info("Transport initialized")

	if transport != TransportHTTP {
		if err := server.Run(ctx, &mcp.StdioTransport{}); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("MCP server failed: %w", err)
		}
		return nil
	}

	handler := mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server {
		return server
	}, nil)
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.WithField("addr", addr).Info("MCP streamable HTTP transport listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("MCP HTTP transport failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), httpShutdownTimeout)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}

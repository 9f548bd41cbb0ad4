package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/sirupsen/logrus"

	"github.com/athapong/litgraph/pkg/config"
	"github.com/athapong/litgraph/services"
	"github.com/athapong/litgraph/tools"
)

func main() {
	envFile := flag.String("env", ".env", "Path to environment file")
	enableSSE := flag.Bool("sse", false, "Enable SSE server")
	sseAddr := flag.String("sse-addr", ":8080", "Address for SSE server to listen on")
	sseBasePath := flag.String("sse-base-path", "/mcp", "Base path for SSE endpoints")
	logLevel := flag.String("log-level", "info", "Logging level (debug, info, warn, error)")
	flag.Parse()

	// stdout belongs to the stdio transport
	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	level, err := logrus.ParseLevel(*logLevel)
	if err != nil {
		logger.Fatalf("Invalid log level: %v", err)
	}
	logger.SetLevel(level)

	cfg, err := config.Load(*envFile)
	if err != nil {
		logger.Fatalf("Invalid configuration: %v", err)
	}

	ctx := context.Background()
	stack, err := services.Open(ctx, cfg, logger)
	if err != nil {
		logger.Fatalf("Failed to open backends: %v", err)
	}
	defer stack.Close(ctx)

	if err := stack.Publications.LoadState(ctx); err != nil {
		logger.Fatalf("Failed to load publication state: %v", err)
	}

	// Create MCP server
	mcpServer := server.NewMCPServer(
		"litgraph",
		"1.0.0",
		server.WithLogging(),
		server.WithToolCapabilities(true),
	)

	tools.RegisterToolManagerTool(mcpServer)

	if tools.EnabledTools("publications") {
		tools.RegisterPublicationTools(mcpServer, stack.Publications)
	}

	if tools.EnabledTools("graph") {
		tools.RegisterGraphTools(mcpServer, stack.Upserter)
	}

	if *enableSSE || os.Getenv("ENABLE_SSE") == "true" {
		sseServer := server.NewSSEServer(
			mcpServer,
			server.WithBasePath(*sseBasePath),
			server.WithKeepAlive(true),
		)

		go func() {
			logger.Infof("Starting SSE server on %s with base path %s", *sseAddr, *sseBasePath)
			if err := sseServer.Start(*sseAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Fatalf("Failed to start SSE server: %v", err)
			}
		}()

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

		sig := <-sigCh
		logger.Infof("Received signal %v, shutting down...", sig)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := sseServer.Shutdown(shutdownCtx); err != nil {
			logger.Errorf("Error during SSE server shutdown: %v", err)
		}
		logger.Info("SSE server shutdown complete")
	} else {
		if err := server.ServeStdio(mcpServer); err != nil {
			logger.Errorf("Server error: %v", err)
		}
	}
}

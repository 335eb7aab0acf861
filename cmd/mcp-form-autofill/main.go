package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/a3tai/mcp-form-autofill/internal/config"
	"github.com/a3tai/mcp-form-autofill/internal/mcp"
	"github.com/a3tai/mcp-form-autofill/internal/pipeline"
)

var (
	version   = "dev"     // This will be set by build flags
	buildTime = "unknown" // This will be set by build flags
	gitCommit = "unknown" // This will be set by build flags
)

func main() {
	// Check for version flag before parsing other flags
	if versionRequested(os.Args[1:]) {
		printVersion(os.Stdout)
		return
	}

	if err := config.LoadDotEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load .env: %v\n", err)
		os.Exit(1)
	}

	cfg, err := config.LoadFromFlags()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if version != "dev" {
		cfg.Version = version
	}

	logger := cfg.NewLogger(os.Stderr)
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.WithError(err).Error("Server stopped with error")
		os.Exit(1)
	}
}

// run wires the processor into the MCP server and serves until ctx ends
func run(ctx context.Context, cfg *config.Config, logger *logrus.Logger) error {
	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}
	logger.WithFields(logrus.Fields{
		"mode":      cfg.Mode,
		"directory": cfg.DocumentDirectory,
		"version":   cfg.Version,
	}).Debug("Starting with configuration: ", cfg.String())

	processor, err := pipeline.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to create processor: %w", err)
	}
	defer func() {
		if err := processor.Close(); err != nil {
			logger.WithError(err).Warn("Failed to close processor")
		}
	}()

	server, err := mcp.NewServer(cfg, processor, logger)
	if err != nil {
		return fmt.Errorf("failed to create MCP server: %w", err)
	}
	return server.Run(ctx)
}

func versionRequested(args []string) bool {
	for _, arg := range args {
		if arg == "-version" || arg == "--version" || arg == "-v" {
			return true
		}
	}
	return false
}

// printVersion prints version information
func printVersion(w io.Writer) {
	fmt.Fprintf(w, "MCP Form Autofill\n")
	fmt.Fprintf(w, "Version: %s\n", version)
	fmt.Fprintf(w, "Build Time: %s\n", buildTime)
	fmt.Fprintf(w, "Git Commit: %s\n", gitCommit)
	fmt.Fprintf(w, "Built with: %s\n", runtime.Version())
}

// DueTrack sync agent - per-device companion that keeps submissions
// flowing to the backend even when connectivity is unreliable.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/duetrack/duetrack/internal/agent"
	"github.com/duetrack/duetrack/internal/config"
	"github.com/duetrack/duetrack/internal/logging"
	"github.com/duetrack/duetrack/internal/traces"
)

var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	logger := logging.New("info", "text")

	logger.Info("starting duetrack agent",
		"version", Version,
		"commit", Commit,
		"build_time", BuildTime,
	)

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	if cfg.BackendURL == "" {
		logger.Error("BACKEND_URL is required")
		os.Exit(1)
	}

	a, err := agent.New(cfg, agent.WithLogger(logger))
	if err != nil {
		logger.Error("failed to create agent", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTraces, err := traces.Init(ctx, cfg.OTLPEndpoint, logger)
	if err != nil {
		logger.Error("failed to init tracing", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := shutdownTraces(context.Background()); err != nil {
			logger.Warn("trace shutdown", "error", err)
		}
	}()

	if err := a.Run(ctx); err != nil {
		logger.Error("agent error", "error", err)
		os.Exit(1)
	}
}

// Command server runs the HTTP API for bounded tabu lists.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/caarlos0/env/v10"

	"github.com/SebastienMelki/tabu/internal/gateway"
	"github.com/SebastienMelki/tabu/internal/nats"
	"github.com/SebastienMelki/tabu/internal/observability"
	"github.com/SebastienMelki/tabu/internal/tabu"
)

// Config holds all server configuration.
type Config struct {
	// LogLevel is the log level (debug, info, warn, error)
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	// LogFormat is the log format (json, text)
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`

	// ServiceName is the OTel meter scope name
	ServiceName string `env:"SERVICE_NAME" envDefault:"tabu-server"`

	// HTTP gateway configuration
	Gateway gateway.Config `envPrefix:""`

	// Tabu registry configuration
	Tabu tabu.Config `envPrefix:""`

	// NATS configuration
	NATS nats.Config `envPrefix:""`
}

func main() {
	// Load configuration from environment
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		slog.Error("failed to parse config", "error", err)
		os.Exit(1)
	}

	// Setup logger
	logger := setupLogger(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)

	logger.Info("starting tabu server",
		"log_level", cfg.LogLevel,
		"http_addr", cfg.Gateway.Addr,
		"nats_enabled", cfg.NATS.Enabled,
		"max_lists", cfg.Tabu.MaxLists,
		"max_capacity", cfg.Tabu.MaxCapacity,
	)

	if err := run(cfg, logger); err != nil {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}

func run(cfg Config, logger *slog.Logger) error {
	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Setup signal handling
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	obs, err := observability.New(cfg.ServiceName)
	if err != nil {
		return err
	}
	defer func() {
		if err := obs.Shutdown(context.Background()); err != nil {
			logger.Error("metrics shutdown error", "error", err)
		}
	}()

	checks := map[string]gateway.HealthChecker{}

	// Lifecycle events are optional. A nil publisher disables them.
	var publisher tabu.EventPublisher
	if cfg.NATS.Enabled {
		natsClient, err := nats.NewClient(ctx, cfg.NATS, logger)
		if err != nil {
			return err
		}
		defer func() {
			if err := natsClient.Drain(); err != nil {
				logger.Error("NATS drain error", "error", err)
			}
		}()

		streamMgr := nats.NewStreamManager(natsClient.JetStream(), cfg.NATS.Stream, logger)
		if _, err := streamMgr.EnsureStream(ctx); err != nil {
			return err
		}

		publisher = nats.NewPublisher(natsClient.JetStream(), cfg.NATS.Stream.Name, cfg.NATS.PublishTimeout, logger)
		checks["nats"] = natsClient
	}

	registry := tabu.New(cfg.Tabu, obs.Metrics(), publisher, logger)
	registry.Start(ctx)
	defer registry.Stop()

	server, err := gateway.NewServer(cfg.Gateway, []gateway.RouteRegistrar{registry}, gateway.Options{
		Observability: obs,
		Checks:        checks,
	}, logger)
	if err != nil {
		return err
	}

	// Start server in goroutine
	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	// Wait for shutdown signal or error
	select {
	case sig := <-sigCh:
		logger.Info("received shutdown signal", "signal", sig)
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	// Graceful shutdown
	logger.Info("initiating graceful shutdown")
	cancel()

	return server.Shutdown(context.Background())
}

// setupLogger creates a logger based on configuration.
func setupLogger(level, format string) *slog.Logger {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: logLevel,
	}

	var handler slog.Handler
	if format == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}

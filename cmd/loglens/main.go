package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/loglens-lab/project-loglens/internal/analytics"
	corecfg "github.com/loglens-lab/project-loglens/internal/core/config"
	"github.com/loglens-lab/project-loglens/internal/generator"
	"github.com/loglens-lab/project-loglens/internal/pipeline"
	"github.com/loglens-lab/project-loglens/internal/server"
)

func main() {
	configPath := flag.String("config", "", "Path to configuration file (optional)")
	flag.Parse()

	// 0. Initialize Logger
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// 1. Load Configuration
	cfg, err := corecfg.Load(*configPath)
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}
	slog.Info("Loaded config", "config", cfg)

	// 2. Initialize Analytics Engine (all state is in-memory)
	engine := analytics.NewEngine(cfg.Analytics.Precision)

	// 3. Initialize Ingestion Pipeline
	processor := pipeline.NewProcessor(engine, pipeline.Options{
		BatchSize:     cfg.Pipeline.BatchSize,
		MaxConcurrent: cfg.Pipeline.MaxConcurrent,
		ChunkSize:     cfg.Pipeline.ChunkSizeKB * 1024,
	})

	// 4. Initialize Server
	srv := server.New(fmtAddr(cfg.Server.Host, cfg.Server.Port), engine, cfg.Server.Mode)
	engine.RegisterRoutes(srv.Engine)
	processor.RegisterRoutes(srv.Engine)
	generator.RegisterRoutes(srv.Engine)

	// 5. Start Services
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Signal handler → triggers the shutdown sequence below.
	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
		<-quit
		slog.Info("Signal received, shutting down...")
		cancel()
	}()

	// HTTP server blocks until ctx is cancelled.
	if err := srv.Run(ctx); err != nil {
		slog.Error("Server stopped with error", "error", err)
	}

	slog.Info("Shutdown complete")
}

func fmtAddr(host string, port int) string {
	return fmt.Sprintf("%s:%d", host, port)
}

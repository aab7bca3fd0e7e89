package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/gattrose/gattrose-ng/internal/app"
	"github.com/gattrose/gattrose-ng/internal/config"
	"github.com/gattrose/gattrose-ng/internal/telemetry"
)

func main() {
	cfg := config.Load()

	level := slog.LevelInfo
	if cfg.Debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	shutdownTracer, err := telemetry.InitTracer()
	if err != nil {
		slog.Error("tracer init failed", "error", err)
	} else {
		defer func() {
			if err := shutdownTracer(context.Background()); err != nil {
				slog.Error("tracer shutdown failed", "error", err)
			}
		}()
	}

	engine, err := app.New(cfg, logger)
	if err != nil {
		slog.Error("engine init failed", "error", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	slog.Info("gattrose-ng starting",
		"sim", cfg.Simulated(), "tcp", cfg.TCPAddr, "http", cfg.HTTPAddr)

	if err := engine.Run(ctx); err != nil {
		slog.Error("engine error", "error", err)
		cancel()
		os.Exit(1)
	}
}

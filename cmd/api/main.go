package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/calai-cam/backend/config"
	"github.com/calai-cam/backend/internal/database"
	"github.com/calai-cam/backend/internal/server"
	"github.com/calai-cam/backend/pkg/logging"
)

func main() {
	logging.Setup()

	cfg := config.Load()

	db, err := database.Connect(cfg)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	if err := database.Migrate(db); err != nil {
		slog.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}

	rdb, err := database.NewRedisClient(cfg)
	if err != nil {
		slog.Warn("redis unavailable, continuing without cache and rate limiting", "error", err)
	}

	storage, err := config.NewS3Config(context.Background(), cfg)
	if err != nil {
		slog.Warn("object storage unavailable, images will not be persisted", "error", err)
	}

	if cfg.SimulationMode() {
		slog.Warn("N8N_WEBHOOK_URL not set, running analysis in simulation mode")
	}

	srv := server.New(cfg, db, rdb, storage)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	case sig := <-quit:
		slog.Info("shutting down", "signal", sig.String())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("forced shutdown", "error", err)
		os.Exit(1)
	}

	if rdb != nil {
		_ = rdb.Close()
	}
	slog.Info("server stopped")
}

// encounterd serves live tabletop encounters: room lifecycle, turn
// processing, chat, and WebSocket event fan-out.
package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/encounterlive/encounterd/pkg/api"
	"github.com/encounterlive/encounterd/pkg/broadcast"
	"github.com/encounterlive/encounterd/pkg/chat"
	"github.com/encounterlive/encounterd/pkg/config"
	"github.com/encounterlive/encounterd/pkg/persist"
	"github.com/encounterlive/encounterd/pkg/room"
	"github.com/encounterlive/encounterd/pkg/version"
)

func main() {
	envFile := flag.String("env-file", ".env", "Path to environment file")
	flag.Parse()

	if err := godotenv.Load(*envFile); err != nil {
		slog.Warn("Could not load env file, continuing with existing environment",
			"path", *envFile, "error", err)
	}

	cfg := config.FromEnv()
	slog.Info("Starting encounterd",
		"version", version.Full(), "addr", cfg.Server.ListenAddr)

	ctx := context.Background()

	// Snapshot persistence is optional; without a database rooms live
	// in memory only and reaped rooms are discarded.
	var store room.SnapshotStore
	var pg *persist.PGStore
	if cfg.Server.DatabaseURL != "" {
		var err error
		pg, err = persist.NewPGStore(ctx, cfg.Server.DatabaseURL)
		if err != nil {
			slog.Error("Failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer pg.Close()
		store = pg
	} else {
		slog.Info("No DATABASE_URL set, running without snapshot persistence")
	}

	broadcaster := broadcast.New(cfg.Broadcast, prometheus.DefaultRegisterer)
	manager := room.NewManager(cfg.Room, cfg.Engine, broadcaster, store)
	manager.Start()
	chatService := chat.NewService(cfg.Chat, chat.NewFilter())

	server := api.NewServer(cfg.Server, manager, chatService, broadcaster)

	errCh := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "addr", cfg.Server.ListenAddr)
		if err := server.Start(cfg.Server.ListenAddr); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigCh:
		slog.Info("Shutdown signal received", "signal", sig)
	case err := <-errCh:
		slog.Error("Server error triggered shutdown", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, cfg.Server.ShutdownTimeout)
	defer cancel()

	// Stop accepting requests first, then snapshot and stop the rooms,
	// then flush pending event batches.
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}
	if err := manager.Shutdown(shutdownCtx); err != nil {
		slog.Error("Room manager shutdown error", "error", err)
	}
	broadcaster.Close()

	slog.Info("Shutdown complete")
}

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cursorshare/backend/internal/config"
	"github.com/cursorshare/backend/internal/frontend"
	"github.com/cursorshare/backend/internal/mock"
	"github.com/cursorshare/backend/internal/presence"
	"github.com/cursorshare/backend/internal/session"
	"github.com/cursorshare/backend/internal/stats"
	"github.com/cursorshare/backend/internal/ws"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/logs"
)

const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

func main() {
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "cursorshare: %v\n", err)
	}
	os.Exit(code)
}

func run() (int, error) {
	mockMode := flag.Bool("mock", false, "Attach in-process bot participants")
	configPath := flag.String("config", "config.yaml", "Path to config file")
	port := flag.Int("port", 0, "Override server port")
	flag.Parse()

	// A .env file is optional; real environment variables win.
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return exitConfig, fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.ApplyEnv(); err != nil {
		return exitConfig, err
	}
	if *port > 0 {
		cfg.Server.Port = *port
	}
	if err := cfg.Validate(); err != nil {
		return exitConfig, err
	}

	log := logs.GetLoggerFromString(cfg.Log.Level)

	colors, err := presence.NewColorPolicy(cfg.Presence.ColorPolicy, cfg.Presence.Palette)
	if err != nil {
		return exitConfig, err
	}

	hub := ws.NewHub(log, ws.Options{
		SendBuffer:      cfg.Transport.SendBuffer,
		MaxConnections:  cfg.Transport.MaxConnections,
		MaxMessageBytes: cfg.Transport.MaxMessageBytes,
		WriteTimeout:    cfg.Transport.WriteTimeout,
		PongTimeout:     cfg.Transport.PongTimeout,
		PingInterval:    cfg.Transport.PingInterval,
	})
	coordinator := presence.NewCoordinator(log, hub, session.NewRegistry(), colors)
	coordinator.Start()

	collector, err := stats.NewCollector(coordinator.Count, hub.ClientCount)
	if err != nil {
		log.Warn("Process stats unavailable", "error", err)
	}
	var statsSource ws.StatsSource
	if collector != nil {
		statsSource = collector
	}

	server := ws.NewServer(log, hub, coordinator, statsSource, frontend.Handler(), cfg.Server.AllowedOrigins)
	mux := http.NewServeMux()
	server.SetupRoutes(mux)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if *mockMode {
		log.Info("Starting in mock mode", "bots", cfg.Mock.Bots, "tick", cfg.Mock.Tick)
		gen := mock.NewGenerator(log, hub, cfg.Mock.Bots, cfg.Mock.Tick)
		if err := gen.Start(ctx); err != nil {
			return exitRuntime, fmt.Errorf("starting mock bots: %w", err)
		}
	}

	httpServer := ws.NewHTTPServer(cfg.Addr(), mux)
	errCh := make(chan error, 1)
	go func() {
		log.Info("Server listening", "addr", cfg.Addr(), "color_policy", cfg.Presence.ColorPolicy)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return exitRuntime, fmt.Errorf("server error: %w", err)
		}
	case <-ctx.Done():
		log.Info("Shutting down...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Warn("HTTP shutdown", "error", err)
	}
	hub.Shutdown()

	return exitOK, nil
}

// STEM Forge - study timer and boss-challenge server
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/stemforge/stem-forge/internal/api"
	"github.com/stemforge/stem-forge/internal/battle"
	"github.com/stemforge/stem-forge/internal/config"
	"github.com/stemforge/stem-forge/internal/content"
	"github.com/stemforge/stem-forge/internal/identity"
	"github.com/stemforge/stem-forge/internal/live"
	"github.com/stemforge/stem-forge/internal/middleware"
	"github.com/stemforge/stem-forge/internal/notify"
	"github.com/stemforge/stem-forge/internal/pomodoro"
	"github.com/stemforge/stem-forge/internal/store"
	"github.com/stemforge/stem-forge/internal/worker"
	"github.com/stemforge/stem-forge/web"
)

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))
	slog.SetDefault(logger)

	slog.Info("Starting server", "port", cfg.Port, "dev", cfg.IsDevelopment())

	// Initialize dependencies.
	repo, err := store.NewSQLite(cfg.DBPath)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := repo.Close(); closeErr != nil {
			slog.Error("Failed to close repository", "error", closeErr)
		}
	}()

	if err := repo.Ping(context.Background()); err != nil {
		slog.Error("Database health check failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Database connected", "path", cfg.DBPath)

	catalog := content.NewCatalog(contentSource(cfg))
	loadCtx, cancelLoad := context.WithTimeout(context.Background(), cfg.Timeout.ContentLoad)
	if err := catalog.Load(loadCtx); err != nil {
		slog.Warn("Serving built-in challenges", "error", err)
	}
	cancelLoad()

	hub := live.NewHub()
	sinks := notify.Multi{notify.LogNotifier{Logger: logger}, hub}
	if cfg.Telegram.Token != "" {
		tg, err := notify.NewTelegramNotifier(cfg.Telegram.Token, cfg.Telegram.ChatID, cfg.Timeout.Notify)
		if err != nil {
			slog.Warn("Telegram notifications disabled", "error", err)
		} else {
			slog.Info("Telegram notifications enabled", "bot", tg.Username())
			sinks = append(sinks, tg)
		}
	}

	timers := pomodoro.NewManager(repo, pomodoro.ManagerOptions{
		Engine: pomodoro.Options{
			Notifier:       sinks,
			NotifyTimeout:  cfg.Timeout.Notify,
			AutoStartDelay: cfg.Timer.AutoStartDelay,
			Observer:       hub.PublishSnapshot,
		},
		TickInterval: cfg.Timer.TickInterval,
	})
	defer timers.Close()

	battles := battle.NewManager(repo)

	// Initialize handlers.
	healthHandler := api.NewHealthHandler(repo, cfg.Timeout.HealthCheck, catalog, timers)
	timerHandler := api.NewTimerHandler(timers, repo)
	challengeHandler := api.NewChallengeHandler(catalog, repo)
	battleHandler := api.NewBattleHandler(battles, catalog)
	wsHandler := live.NewWebSocketHandler(hub, timers, cfg.AllowedOrigins, cfg.IsDevelopment())

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	if cfg.LogRequests {
		r.Use(chiMiddleware.Logger)
	}
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))
	r.Use(middleware.CORS(cfg.AllowedOrigins))
	r.Use(identity.Middleware(repo, cfg.IsDevelopment()))

	healthHandler.RegisterHealth(r)
	timerHandler.RegisterRoutes(r)
	challengeHandler.RegisterRoutes(r)
	battleHandler.RegisterRoutes(r)

	// WebSocket endpoint.
	r.Get("/ws/timer", wsHandler.ServeHTTP)

	// Serve embedded frontend (SPA catch-all).
	r.Handle("/*", web.SPAHandler())

	// WebSocket streams are long-lived, so there is no WriteTimeout.
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	jobs, err := worker.New(worker.Options{
		Timers:        timers,
		Battles:       battles,
		Content:       catalog,
		IdleTTL:       cfg.Timer.IdleTTL,
		ReloadTimeout: cfg.Timeout.ContentLoad,
		Schedules: worker.Schedules{
			Sweep:    cfg.Schedule.Sweep,
			Rollover: cfg.Schedule.Rollover,
			Reload:   cfg.Schedule.Reload,
		},
	})
	if err != nil {
		slog.Error("Failed to schedule background jobs", "error", err)
		os.Exit(1)
	}
	jobs.Start()
	slog.Info("Background jobs started", "jobs", jobs.Jobs(), "idle_ttl", cfg.Timer.IdleTTL)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Start server.
	go func() {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal.
	<-ctx.Done()
	stop()

	slog.Info("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Timeout.Shutdown)
	defer cancel()

	jobs.Stop(shutdownCtx)

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("Server stopped successfully")
}

// contentSource picks the configured challenge source, or nil for the
// built-in list.
func contentSource(cfg *config.Config) content.Source {
	switch {
	case cfg.Content.URL != "":
		return content.NewHTTPSource(cfg.Content.URL)
	case cfg.Content.Path != "":
		return content.FileSource{Path: cfg.Content.Path}
	default:
		return nil
	}
}

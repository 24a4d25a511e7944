// Infoundr - multi-persona startup advisory assistant
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

	"github.com/infoundr/infoundr/internal/api"
	"github.com/infoundr/infoundr/internal/command"
	"github.com/infoundr/infoundr/internal/completion"
	"github.com/infoundr/infoundr/internal/config"
	"github.com/infoundr/infoundr/internal/connector/asana"
	"github.com/infoundr/infoundr/internal/connector/githubc"
	"github.com/infoundr/infoundr/internal/credential"
	"github.com/infoundr/infoundr/internal/dispatch"
	"github.com/infoundr/infoundr/internal/identity"
	"github.com/infoundr/infoundr/internal/middleware"
	"github.com/infoundr/infoundr/internal/persona"
	"github.com/infoundr/infoundr/internal/router"
	"github.com/infoundr/infoundr/internal/slackbot"
	"github.com/infoundr/infoundr/internal/store"
	"github.com/infoundr/infoundr/web"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

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
	slog.Info("Database connected")

	// Load the persona roster and back it with the completion upstream.
	roster, err := persona.LoadRoster(cfg.PersonasPath)
	if err != nil {
		slog.Error("Failed to load persona roster", "path", cfg.PersonasPath, "error", err)
		os.Exit(1)
	}

	completer, err := completion.NewClient(completion.Config{
		APIKey:  cfg.Completion.APIKey,
		BaseURL: cfg.Completion.BaseURL,
		Model:   cfg.Completion.Model,
		Timeout: cfg.Completion.Timeout,
	}, logger)
	if err != nil {
		slog.Error("Failed to create completion client", "error", err)
		os.Exit(1)
	}

	registry, err := persona.NewRegistry(roster, completer, cfg.SessionMaxTurns, logger)
	if err != nil {
		slog.Error("Failed to build persona registry", "error", err)
		os.Exit(1)
	}
	slog.Info("Personas loaded", "count", len(registry.Names()))

	// Connectors and credential management.
	asanaClient := asana.NewClient(logger)
	githubClient := githubc.NewClient(logger)
	creds := credential.NewService(repo, asanaClient, githubClient, logger)

	// Parse, dispatch, route.
	parser := command.NewParser(registry)
	dispatcher := dispatch.New(registry, creds, asanaClient, githubClient, repo, logger)
	rt := router.New(parser, dispatcher, repo, cfg.ThreadLockTimeout, logger)

	handler := api.NewHandler(repo, rt, registry, logger)

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))
	r.Use(middleware.CORS([]string{"*"}))
	r.Use(identity.Middleware(repo, cfg.IsDevelopment()))

	handler.RegisterRoutes(r)

	// WebSocket endpoint.
	r.Get("/ws/chat", handler.ChatSocket)

	// Serve embedded frontend (SPA catch-all).
	r.Handle("/*", web.SPAHandler())

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // websocket connections stay open indefinitely
		IdleTimeout:  120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Optional Slack transport.
	if cfg.Slack.Enabled() {
		bot := slackbot.New(cfg.Slack.BotToken, cfg.Slack.AppToken, rt, logger)
		go func() {
			if err := bot.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				slog.Error("Slack transport stopped", "error", err)
			}
		}()
		slog.Info("Slack transport enabled")
	} else {
		slog.Info("Slack transport disabled (SLACK_APP_TOKEN not set)")
	}

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

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("Server stopped successfully")
}

// WhibO - anonymous chat server
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
	"github.com/whibo/whibo-server/internal/api"
	"github.com/whibo/whibo-server/internal/chat"
	"github.com/whibo/whibo-server/internal/config"
	"github.com/whibo/whibo-server/internal/middleware"
	"github.com/whibo/whibo-server/internal/store"
	"github.com/whibo/whibo-server/internal/transport"
	"github.com/whibo/whibo-server/web"
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

	// Initialize the moderation-settings store.
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

	// Saved moderation settings override configured defaults.
	bannedWords := cfg.BannedWords
	rateLimit := cfg.RateLimit
	maintenance := false
	if saved, loadErr := repo.LoadSettings(context.Background()); loadErr != nil {
		slog.Warn("Failed to load saved moderation settings", "error", loadErr)
	} else if saved != nil {
		bannedWords = saved.BannedWords
		rateLimit = saved.RateLimit
		maintenance = saved.Maintenance
		slog.Info("Restored moderation settings", "banned_terms", len(bannedWords), "rate_limit", rateLimit, "maintenance", maintenance)
	}

	// Initialize services.
	issuer := api.NewTokenIssuer(cfg.AdminToken)
	coord := chat.NewCoordinator(chat.Options{
		BannedWords:  bannedWords,
		RateLimit:    rateLimit,
		Maintenance:  maintenance,
		Authenticate: issuer.Validate,
		Settings:     repo,
	})

	// Initialize handlers.
	apiHandler := api.NewHandler(coord, issuer)
	wsHandler := transport.NewHandler(coord, cfg.FrontendURL, cfg.IsDevelopment())

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))
	r.Use(middleware.CORS([]string{"*"}))

	apiHandler.RegisterRoutes(r)

	// WebSocket endpoint.
	r.Get("/ws", wsHandler.ServeHTTP)

	// Serve embedded frontend shell.
	r.Handle("/*", web.StaticHandler())

	// Create server.
	// Note: websocket connections are long-lived, so no WriteTimeout.
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  0,
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Start the periodic admin snapshot broadcaster.
	coord.StartSnapshotWorker(ctx, cfg.SnapshotInterval)
	slog.Info("Admin snapshot worker started", "interval", cfg.SnapshotInterval)

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

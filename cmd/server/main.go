// Adaptive tutoring response server.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"

	"github.com/ashureev/tutor-engine/internal/api"
	"github.com/ashureev/tutor-engine/internal/bootstrap"
	"github.com/ashureev/tutor-engine/internal/config"
	"github.com/ashureev/tutor-engine/internal/identity"
	"github.com/ashureev/tutor-engine/internal/logging"
	"github.com/ashureev/tutor-engine/internal/middleware"
	"github.com/ashureev/tutor-engine/internal/stream"
)

func main() {
	logger := logging.Setup(os.Stdout, "info")

	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}
	logger = logging.Setup(os.Stdout, cfg.LogLevel)

	slog.Info("Starting server", "port", cfg.Port, "dev", cfg.IsDevelopment(), "provider", cfg.Generator.Provider)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.Build(ctx, cfg, logger)
	if err != nil {
		slog.Error("Failed to initialize tutor engine", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := app.Close(); closeErr != nil {
			slog.Error("Failed to shut down cleanly", "error", closeErr)
		}
	}()

	limiter := api.NewRateLimiter(cfg.RateLimit.Requests, cfg.RateLimit.Window)
	defer limiter.Stop()

	// Initialize handlers.
	baseHandler := api.NewHandler(app.Repo, app.Service, cfg.MaxRequestBodyBytes)
	tutorHandler := api.NewTutorHandler(baseHandler, limiter)
	learnerHandler := api.NewLearnerHandler(baseHandler)
	healthHandler := api.NewHealthHandler(app.Repo, app.Generator.Name())

	conns := stream.NewConnManager()
	wsHandler := stream.NewHandler(app.Service, conns, stream.Options{
		AllowedOrigin: cfg.FrontendURL,
		IsDev:         cfg.IsDevelopment(),
		Limiter:       limiter,
		MaxFrameBytes: cfg.MaxRequestBodyBytes,
	})

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))
	r.Use(middleware.CORS(allowedOrigins(cfg), api.SourceHeader))
	r.Use(logging.Middleware(logger))
	r.Use(identity.Middleware)

	healthHandler.RegisterHealth(r)
	tutorHandler.RegisterRoutes(r)
	learnerHandler.RegisterRoutes(r)

	// WebSocket endpoint.
	r.Get("/ws/tutor", wsHandler.ServeHTTP)

	// No WriteTimeout: websocket sessions are long lived.
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	var retentionDone <-chan struct{}
	if app.Retention != nil {
		retentionDone = app.Retention.Start(ctx)
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

	conns.CloseAll()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
	}
	if retentionDone != nil {
		<-retentionDone
	}

	slog.Info("Server stopped successfully")
}

func allowedOrigins(cfg *config.Config) []string {
	if cfg.IsDevelopment() || cfg.FrontendURL == "" {
		return []string{"*"}
	}
	return []string{strings.TrimRight(cfg.FrontendURL, "/")}
}

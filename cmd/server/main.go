// AgentDock - multi-tenant coding-agent execution backplane.
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

	"github.com/agentdock/agentdock/internal/agent"
	"github.com/agentdock/agentdock/internal/api"
	"github.com/agentdock/agentdock/internal/config"
	"github.com/agentdock/agentdock/internal/container"
	"github.com/agentdock/agentdock/internal/domain"
	"github.com/agentdock/agentdock/internal/files"
	"github.com/agentdock/agentdock/internal/identity"
	"github.com/agentdock/agentdock/internal/middleware"
	"github.com/agentdock/agentdock/internal/pty"
	"github.com/agentdock/agentdock/internal/store"
	"github.com/agentdock/agentdock/internal/ws"
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
	registry, err := store.NewSQLite(cfg.DBPath, cfg.Retry)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := registry.Close(); closeErr != nil {
			slog.Error("Failed to close registry", "error", closeErr)
		}
	}()

	if err := registry.Ping(context.Background()); err != nil {
		slog.Error("Database health check failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Database connected")

	mgr, err := container.NewDockerManager(cfg, registry)
	if err != nil {
		slog.Error("Failed to initialize container manager", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := mgr.Close(); closeErr != nil {
			slog.Error("Failed to close container manager", "error", closeErr)
		}
	}()
	slog.Info("Container manager initialized")

	// Ensure the managed bridge network exists for user containers.
	networkID, err := mgr.EnsureNetwork(context.Background())
	if err != nil {
		slog.Error("Failed to ensure container network", "error", err)
		os.Exit(1)
	}
	slog.Info("Container network ready", "network_id", networkID)

	// Align registry records with whatever Docker actually has running.
	if err := mgr.Reconcile(context.Background()); err != nil {
		slog.Error("Boot reconciliation failed", "error", err)
		os.Exit(1)
	}

	// Initialize brokers.
	brokers := map[domain.Provider]*agent.Broker{
		domain.ProviderClaude: agent.NewBroker(domain.ProviderClaude, mgr, cfg),
		domain.ProviderCursor: agent.NewBroker(domain.ProviderCursor, mgr, cfg),
		domain.ProviderCodex:  agent.NewBroker(domain.ProviderCodex, mgr, cfg),
	}
	ptyBroker := pty.NewBroker(mgr, cfg)
	gateway := files.NewGateway(mgr, cfg.ProjectsRoot, cfg.Timeout.FileWrite)

	// Initialize handlers.
	hub := ws.NewHub()
	router := ws.NewRouter(brokers, ptyBroker, hub, cfg.FrontendURL, cfg.IsDevelopment())
	healthHandler := api.NewHealthHandler(registry, cfg)
	containerHandler := api.NewContainerHandler(mgr, cfg, ptyBroker.CloseUser)
	filesHandler := api.NewFilesHandler(gateway)

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(middleware.CORS([]string{"*"}))
	r.Use(identity.Middleware(cfg.IsDevelopment()))

	healthHandler.RegisterHealth(r)
	containerHandler.RegisterRoutes(r)
	filesHandler.RegisterRoutes(r)

	// WebSocket endpoints.
	r.Get("/ws", router.ServeChat)
	r.Get("/shell", router.ServeShell)

	// Note: WebSocket connections require long timeouts (no WriteTimeout).
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Start idle reaper.
	container.StartReaper(ctx, mgr, cfg.Timeout.ReapInterval, cfg.Timeout.ContainerIdle, ptyBroker.CloseUser)

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

package api

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/mcoot/arenaengine/internal/api/handler"
	"github.com/mcoot/arenaengine/internal/api/middleware"
	"github.com/mcoot/arenaengine/internal/gateway"
	"github.com/mcoot/arenaengine/internal/metrics"
	"github.com/mcoot/arenaengine/internal/services/auth"
	"github.com/mcoot/arenaengine/internal/services/engine"
	"github.com/mcoot/arenaengine/internal/services/liveness"
	"github.com/mcoot/arenaengine/internal/services/rules"
	"github.com/mcoot/arenaengine/internal/storage"
)

// RouterConfig holds configuration for the API router
type RouterConfig struct {
	Logger      *slog.Logger
	AuthService *auth.Service
	Engine      *engine.Engine
	Storage     storage.Storage
	Rules       *rules.Registry
	Metrics     *metrics.Collector
	// Gateway serves /ws when set
	Gateway *gateway.Gateway
	// Supervisor is reported on by the health endpoint when set
	Supervisor *liveness.Supervisor
	// Shutdown is called by the admin shutdown endpoint
	Shutdown func()
}

// NewRouter creates a new API router with all routes configured
func NewRouter(cfg RouterConfig) http.Handler {
	r := mux.NewRouter()

	// Create handlers
	sessionHandler := handler.NewSessionHandler(cfg.Engine, cfg.Storage)
	playerHandler := handler.NewPlayerHandler(cfg.Storage)
	resultHandler := handler.NewResultHandler(cfg.Storage)
	adminHandler := handler.NewAdminHandler(cfg.AuthService, cfg.Shutdown, cfg.Logger)
	healthHandler := handler.NewHealthHandler(cfg.Engine, cfg.Storage, cfg.Gateway, cfg.Supervisor, cfg.Rules)

	// Create middleware
	authMiddleware := middleware.Auth(cfg.AuthService)
	loggingMiddleware := middleware.Logging(cfg.Logger, cfg.Metrics)
	recoveryMiddleware := middleware.Recovery(cfg.Logger)

	// Websocket endpoint; the gateway recovers its own panics
	if cfg.Gateway != nil {
		r.Handle("/ws", middleware.RequestID(loggingMiddleware(cfg.Gateway))).Methods(http.MethodGet)
	}
	if cfg.Metrics != nil {
		r.Handle("/metrics", cfg.Metrics.Handler()).Methods(http.MethodGet)
	}

	// API subrouter with common middleware
	api := r.PathPrefix("/api/v1").Subrouter()
	api.Use(middleware.RequestID)
	api.Use(recoveryMiddleware)
	api.Use(loggingMiddleware)

	// Health check endpoint (no auth)
	api.HandleFunc("/health", healthHandler.Get).Methods(http.MethodGet)

	// Reads need any valid token; mutations and private data need the admin role
	adminOnly := func(h http.HandlerFunc) http.Handler { return middleware.RequireAdmin(h) }

	sessions := api.PathPrefix("/sessions").Subrouter()
	sessions.Use(authMiddleware)
	sessions.HandleFunc("", sessionHandler.List).Methods(http.MethodGet)
	sessions.HandleFunc("/{id}", sessionHandler.Get).Methods(http.MethodGet)
	sessions.Handle("/{id}", adminOnly(sessionHandler.Terminate)).Methods(http.MethodDelete)
	sessions.Handle("/{id}/start", adminOnly(sessionHandler.Start)).Methods(http.MethodPost)

	players := api.PathPrefix("/players").Subrouter()
	players.Use(authMiddleware)
	players.HandleFunc("/{id}/stats", playerHandler.Stats).Methods(http.MethodGet)
	players.Handle("/{id}/analyses", adminOnly(playerHandler.Analyses)).Methods(http.MethodGet)

	results := api.PathPrefix("/results").Subrouter()
	results.Use(authMiddleware)
	results.HandleFunc("", resultHandler.List).Methods(http.MethodGet)

	admin := api.PathPrefix("/admin").Subrouter()
	admin.Use(authMiddleware)
	admin.Use(middleware.RequireAdmin)
	admin.HandleFunc("/tokens", adminHandler.IssueToken).Methods(http.MethodPost)
	admin.HandleFunc("/shutdown", adminHandler.Shutdown).Methods(http.MethodPost)

	return r
}

package api

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/mcoot/georally/internal/api/handler"
	"github.com/mcoot/georally/internal/api/middleware"
	"github.com/mcoot/georally/internal/metrics"
	"github.com/mcoot/georally/internal/services/matchmaking"
	"github.com/mcoot/georally/internal/services/session"
)

// RouterConfig holds configuration for the API router
type RouterConfig struct {
	Logger      *slog.Logger
	Registry    *session.Registry
	Queue       *matchmaking.Queue
	Connections handler.Connections
	Metrics     *metrics.Metrics
	// Gateway serves the websocket upgrade on /ws
	Gateway http.Handler
}

// NewRouter creates a new API router with all routes configured
func NewRouter(cfg RouterConfig) http.Handler {
	r := mux.NewRouter()

	// Create handlers
	healthHandler := handler.NewHealthHandler(cfg.Registry, cfg.Connections)
	queueHandler := handler.NewQueueHandler(cfg.Queue)
	sessionHandler := handler.NewSessionHandler(cfg.Registry)

	// Create middleware
	loggingMiddleware := middleware.Logging(cfg.Logger)
	recoveryMiddleware := middleware.Recovery(cfg.Logger)

	// API subrouter with common middleware
	api := r.PathPrefix("/api/v1").Subrouter()
	api.Use(recoveryMiddleware)
	api.Use(loggingMiddleware)

	api.HandleFunc("/health", healthHandler.Get).Methods(http.MethodGet)
	api.HandleFunc("/queue", queueHandler.Get).Methods(http.MethodGet)
	api.HandleFunc("/sessions/{id}", sessionHandler.Get).Methods(http.MethodGet)

	if cfg.Metrics != nil {
		r.Handle("/metrics", cfg.Metrics.Handler()).Methods(http.MethodGet)
	}
	if cfg.Gateway != nil {
		r.Handle("/ws", recoveryMiddleware(loggingMiddleware(cfg.Gateway))).Methods(http.MethodGet)
	}

	return r
}

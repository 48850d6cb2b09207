// Package api exposes the query surface, subscription management, and the
// prediction endpoints over HTTP.
package api

import (
	"context"
	"encoding/json"
	"log"
	"net/http"

	"whale-watch/internal/dispatch"
	"whale-watch/internal/observability"
	"whale-watch/internal/scanner"
	"whale-watch/internal/settlement"
	"whale-watch/internal/storage"
)

// HealthReporter exposes the scan loop state for the health endpoint.
type HealthReporter interface {
	Health(ctx context.Context) scanner.Health
}

// StatsArchive serves long-horizon aggregates from the analytics store.
// Optional; stats fall back to the retained window without it.
type StatsArchive interface {
	CountByAsset(ctx context.Context) (map[string]uint64, error)
}

// Server wires the HTTP handlers to the pipeline components.
type Server struct {
	movements    storage.MovementStore
	alerts       storage.AlertStore
	registry     *dispatch.Registry
	dispatcher   *dispatch.Dispatcher
	orchestrator *settlement.Orchestrator
	health       HealthReporter
	archive      StatsArchive
	hub          *Hub
	logger       *log.Logger
}

// Options configures a Server.
type Options struct {
	Movements    storage.MovementStore
	Alerts       storage.AlertStore
	Registry     *dispatch.Registry
	Dispatcher   *dispatch.Dispatcher
	Orchestrator *settlement.Orchestrator
	Health       HealthReporter
	Archive      StatsArchive // optional
	Hub          *Hub         // optional; /ws/alerts 404s without it
	Logger       *log.Logger
}

// NewServer creates the API server.
func NewServer(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &Server{
		movements:    opts.Movements,
		alerts:       opts.Alerts,
		registry:     opts.Registry,
		dispatcher:   opts.Dispatcher,
		orchestrator: opts.Orchestrator,
		health:       opts.Health,
		archive:      opts.Archive,
		hub:          opts.Hub,
		logger:       logger,
	}
}

// Router returns the HTTP handler for all API routes.
func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /movements", s.handleMovements)
	mux.HandleFunc("GET /alerts", s.handleAlerts)
	mux.HandleFunc("GET /stats", s.handleStats)
	mux.HandleFunc("GET /health", s.handleHealth)

	mux.HandleFunc("POST /subscriptions", s.handleRegisterSubscription)
	mux.HandleFunc("GET /subscriptions", s.handleListSubscriptions)
	mux.HandleFunc("DELETE /subscriptions/{id}", s.handleRevokeSubscription)
	if s.dispatcher != nil {
		mux.HandleFunc("GET /deliveries", s.handleListDeliveries)
	}

	mux.HandleFunc("POST /predictions", s.handleSubmitPrediction)
	mux.HandleFunc("GET /predictions/{id}", s.handleGetPrediction)
	mux.HandleFunc("POST /predictions/{id}/settle", s.handleSettlePrediction)

	if s.hub != nil {
		mux.HandleFunc("GET /ws/alerts", s.hub.handleUpgrade)
	}
	mux.Handle("GET /metrics", observability.Handler())

	return mux
}

// writeJSON writes a JSON response with the given status code.
func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Printf("encode response: %v", err)
	}
}

// writeError writes a JSON error body with the given status code.
func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}

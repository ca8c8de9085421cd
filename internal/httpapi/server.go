// Package httpapi serves the operational surface: order routing, router
// state, recent decisions, health, and Prometheus metrics.
package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/liquidroute/liquidroute/internal/market"
	"github.com/liquidroute/liquidroute/internal/router"
)

// StateSource is the router surface the API exposes.
type StateSource interface {
	RouteOrder(ctx context.Context, order *router.Order) (*router.RoutingDecision, error)
	UpdateMarketCondition(condition market.Condition) error
	GetState() router.State
	RecentDecision(id string) (*router.RoutingDecision, bool)
}

// Server is the HTTP front end over the router.
type Server struct {
	source   StateSource
	registry *prometheus.Registry
	srv      *http.Server
	started  time.Time
}

// New builds the server on the given listen address. The registry may be nil
// to disable the /metrics endpoint.
func New(addr string, source StateSource, registry *prometheus.Registry) *Server {
	s := &Server{
		source:   source,
		registry: registry,
		started:  time.Now(),
	}
	r := mux.NewRouter()
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/route", s.handleRoute).Methods(http.MethodPost)
	r.HandleFunc("/condition", s.handleCondition).Methods(http.MethodPut)
	r.HandleFunc("/state", s.handleState).Methods(http.MethodGet)
	r.HandleFunc("/decisions/{id}", s.handleDecision).Methods(http.MethodGet)
	if registry != nil {
		r.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	}
	s.srv = &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	return s
}

// Handler exposes the mux for tests.
func (s *Server) Handler() http.Handler { return s.srv.Handler }

// Start serves until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	log.Info().Str("addr", s.srv.Addr).Msg("HTTP API listening")
	if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"uptime": time.Since(s.started).String(),
	})
}

func (s *Server) handleRoute(w http.ResponseWriter, r *http.Request) {
	var order router.Order
	if err := json.NewDecoder(r.Body).Decode(&order); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "malformed order: " + err.Error()})
		return
	}
	decision, err := s.source.RouteOrder(r.Context(), &order)
	if err != nil {
		switch {
		case router.IsValidation(err):
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		case router.IsInsufficientLiquidity(err):
			writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
		default:
			writeJSON(w, http.StatusBadGateway, map[string]string{"error": err.Error()})
		}
		return
	}
	writeJSON(w, http.StatusOK, decision)
}

func (s *Server) handleCondition(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Condition market.Condition `json:"condition"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "malformed body: " + err.Error()})
		return
	}
	if err := s.source.UpdateMarketCondition(body.Condition); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"condition": string(body.Condition)})
}

func (s *Server) handleState(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.source.GetState())
}

func (s *Server) handleDecision(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	decision, ok := s.source.RecentDecision(id)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "decision not found"})
		return
	}
	writeJSON(w, http.StatusOK, decision)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn().Err(err).Msg("Failed to encode HTTP response")
	}
}

// Package health exposes HTTP endpoints for monitoring the circuit
// breaker registry: /health for probes, /circuits for introspection, and
// /metrics for prometheus scraping.
package health

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vietddude/resilience/breaker"
)

// Status is the aggregate health of the process.
type Status string

const (
	StatusHealthy  Status = "healthy"
	StatusDegraded Status = "degraded"
	StatusCritical Status = "critical"
)

// Server provides HTTP endpoints for health monitoring.
type Server struct {
	registry *breaker.Registry
	server   *http.Server
}

// NewServer creates a new health server over the given registry.
func NewServer(registry *breaker.Registry, port int) *Server {
	mux := http.NewServeMux()
	s := &Server{
		registry: registry,
		server: &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: mux,
		},
	}

	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/circuits", s.handleCircuits)
	mux.HandleFunc("/circuits/reset", s.handleReset)
	mux.Handle("/metrics", promhttp.Handler())

	return s
}

// Handler returns the underlying mux, for embedding into an existing
// server instead of running a dedicated one.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	return s.server.ListenAndServe()
}

// Stop stops the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// Aggregate reports overall status from the circuit snapshots: any open
// circuit is critical, any half-open circuit is degraded.
func Aggregate(snaps []breaker.Snapshot) Status {
	status := StatusHealthy
	for _, snap := range snaps {
		switch snap.Status {
		case breaker.Open.String():
			return StatusCritical
		case breaker.HalfOpen.String():
			status = StatusDegraded
		}
	}
	return status
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	snaps := s.registry.SnapshotAll()
	status := Aggregate(snaps)

	response := map[string]string{"status": string(status)}
	w.Header().Set("Content-Type", "application/json")

	if status == StatusCritical {
		w.WriteHeader(http.StatusServiceUnavailable)
	} else {
		w.WriteHeader(http.StatusOK)
	}

	json.NewEncoder(w).Encode(response)
}

func (s *Server) handleCircuits(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s.registry.SnapshotAll())
}

// handleReset closes a circuit on operator request:
// POST /circuits/reset?key=<operation-key>
func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	key := r.URL.Query().Get("key")
	if key == "" {
		http.Error(w, "missing key parameter", http.StatusBadRequest)
		return
	}

	if !s.registry.Reset(key) {
		http.Error(w, "unknown circuit key", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "reset", "key": key})
}

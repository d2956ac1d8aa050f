// Package server exposes the watchdog's admin HTTP API: aggregate health,
// Prometheus metrics, per-target status and the manual probe/remediate
// overrides.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ledgerops/bridgewatch/internal/core/domain"
	"github.com/ledgerops/bridgewatch/internal/remediate"
	"github.com/ledgerops/bridgewatch/internal/watchdog"
)

// LoopHandle is the per-target control surface the server needs.
type LoopHandle interface {
	Status() watchdog.Snapshot
	RunCycle(ctx context.Context)
	ForceRemediate(ctx context.Context, reason string) (remediate.Outcome, error)
}

// Server holds the chi router and its dependencies.
type Server struct {
	loops   map[string]LoopHandle
	order   []string
	router  chi.Router
	logger  *slog.Logger
	httpSrv *http.Server
}

// New creates a new Server and registers all routes.
func New(port int, loops map[string]LoopHandle, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	order := make([]string, 0, len(loops))
	for id := range loops {
		order = append(order, id)
	}
	sort.Strings(order)

	s := &Server{
		loops:  loops,
		order:  order,
		router: chi.NewRouter(),
		logger: logger,
	}
	s.registerRoutes()
	s.httpSrv = &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: s.router,
	}
	return s
}

// Router returns the chi router (for mounting or testing).
func (s *Server) Router() chi.Router {
	return s.router
}

// Start starts the HTTP server and blocks until it is shut down.
func (s *Server) Start() error {
	if err := s.httpSrv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop shuts the HTTP server down gracefully.
func (s *Server) Stop(ctx context.Context) error {
	return s.httpSrv.Shutdown(ctx)
}

func (s *Server) registerRoutes() {
	r := s.router
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)

	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Get("/api/targets", s.handleListTargets)
	r.Get("/api/targets/{id}", s.handleGetTarget)
	r.Post("/api/targets/{id}/probe", s.handleForceProbe)
	r.Post("/api/targets/{id}/remediate", s.handleForceRemediate)
}

// --- Response helpers ---

type envelope struct {
	Data  interface{} `json:"data"`
	Error string      `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(envelope{Data: data})
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(envelope{Error: msg})
}

// --- Handlers ---

// handleHealth reports the worst state across all targets. Only CRITICAL
// turns the endpoint unhealthy; DEGRADED and HEALING mean the watchdog is
// still on the case.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	overall := "healthy"
	code := http.StatusOK

	for _, id := range s.order {
		switch s.loops[id].Status().Status.State {
		case domain.StateCritical:
			overall = "critical"
			code = http.StatusServiceUnavailable
		case domain.StateDegraded, domain.StateHealing:
			if overall != "critical" {
				overall = "degraded"
			}
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"status": overall})
}

func (s *Server) handleListTargets(w http.ResponseWriter, r *http.Request) {
	snaps := make([]watchdog.Snapshot, 0, len(s.order))
	for _, id := range s.order {
		snaps = append(snaps, s.loops[id].Status())
	}
	writeJSON(w, http.StatusOK, snaps)
}

func (s *Server) handleGetTarget(w http.ResponseWriter, r *http.Request) {
	loop, ok := s.loops[chi.URLParam(r, "id")]
	if !ok {
		writeError(w, http.StatusNotFound, "target not found")
		return
	}
	writeJSON(w, http.StatusOK, loop.Status())
}

func (s *Server) handleForceProbe(w http.ResponseWriter, r *http.Request) {
	loop, ok := s.loops[chi.URLParam(r, "id")]
	if !ok {
		writeError(w, http.StatusNotFound, "target not found")
		return
	}

	loop.RunCycle(r.Context())
	writeJSON(w, http.StatusOK, loop.Status())
}

type remediateRequest struct {
	Reason string `json:"reason"`
}

func (s *Server) handleForceRemediate(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	loop, ok := s.loops[id]
	if !ok {
		writeError(w, http.StatusNotFound, "target not found")
		return
	}

	var req remediateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Reason == "" {
		req.Reason = "manual remediation via admin api"
	}

	out, err := loop.ForceRemediate(r.Context(), req.Reason)
	if err != nil {
		s.logger.Error("forced remediation failed", "target", id, "error", err)
		var trErr *remediate.TriggerError
		if errors.As(err, &trErr) {
			writeError(w, http.StatusBadGateway, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// --- Middleware ---

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (sw *statusWriter) WriteHeader(code int) {
	sw.status = code
	sw.ResponseWriter.WriteHeader(code)
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)
		s.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", sw.status,
			"duration", time.Since(start),
		)
	})
}

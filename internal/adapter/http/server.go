package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/couchcryptid/flood-report-etl/internal/domain"
)

// ReadinessChecker reports whether the service is ready to serve traffic.
type ReadinessChecker = sharedobs.ReadinessChecker

// RunHistory reads recorded run summaries.
type RunHistory interface {
	List(ctx context.Context, jobID string, limit int) ([]domain.Summary, error)
	Get(ctx context.Context, runID string) (domain.Summary, error)
}

// ErrNotFound may be wrapped by RunHistory.Get for unknown runs.
var ErrNotFound = errors.New("not found")

const maxRunsLimit = 500

// Server exposes health, readiness, metrics, and run history endpoints.
type Server struct {
	httpServer *http.Server
	history    RunHistory
	notFound   func(error) bool
	logger     *slog.Logger
}

// Option customizes a Server.
type Option func(*Server)

// WithRunHistory serves GET /runs and GET /runs/{id} from h. isNotFound
// classifies Get errors that should answer 404; nil matches ErrNotFound.
func WithRunHistory(h RunHistory, isNotFound func(error) bool) Option {
	return func(s *Server) {
		s.history = h
		if isNotFound != nil {
			s.notFound = isNotFound
		}
	}
}

// NewServer creates an HTTP server with /healthz, /readyz, and /metrics routes.
func NewServer(addr string, ready ReadinessChecker, logger *slog.Logger, opts ...Option) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		notFound: func(err error) bool { return errors.Is(err, ErrNotFound) },
		logger:   logger,
	}
	for _, opt := range opts {
		opt(s)
	}

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", handleReady(ready))
	mux.Handle("GET /metrics", promhttp.Handler())
	if s.history != nil {
		mux.HandleFunc("GET /runs", s.handleListRuns)
		mux.HandleFunc("GET /runs/{id}", s.handleGetRun)
	}

	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func handleReady(checker ReadinessChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := checker.CheckReadiness(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "not ready",
				"error":  err.Error(),
			})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}

// handleListRuns serves GET /runs?job_id=...&limit=...
func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > maxRunsLimit {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "limit must be between 1 and 500"})
			return
		}
		limit = n
	}

	runs, err := s.history.List(r.Context(), r.URL.Query().Get("job_id"), limit)
	if err != nil {
		s.logger.Error("list runs failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "run history unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	run, err := s.history.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		if s.notFound(err) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "run not found"})
			return
		}
		s.logger.Error("get run failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "run history unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck // best-effort response
}

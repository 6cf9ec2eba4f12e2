// Package http serves the operational endpoints of the sync service.
package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/couchcryptid/forecast-sync/internal/domain"
	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// StatusSource reports readiness and the outcome of the last synced file.
type StatusSource interface {
	sharedobs.ReadinessChecker
	LastReport() *domain.SyncReport
}

// Server exposes /healthz, /readyz, /status and /metrics.
type Server struct {
	httpServer *http.Server
	status     StatusSource
	logger     *slog.Logger
}

// NewServer creates the HTTP server. It does not start listening.
func NewServer(addr string, status StatusSource, logger *slog.Logger) *Server {
	mux := http.NewServeMux()
	s := &Server{
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       10 * time.Second,
			WriteTimeout:      10 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
		status: status,
		logger: logger,
	}

	mux.HandleFunc("GET /healthz", sharedobs.LivenessHandler())
	mux.HandleFunc("GET /readyz", sharedobs.ReadinessHandler(status))
	mux.HandleFunc("GET /status", s.handleStatus)
	mux.Handle("GET /metrics", promhttp.Handler())
	return s
}

// Start listens until Shutdown; it returns http.ErrServerClosed then.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

// handleStatus returns the last sync report, or 204 before the first file.
func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	report := s.status.LastReport()
	if report == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	sharedobs.WriteJSON(w, http.StatusOK, report)
}

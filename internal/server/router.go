// Package server exposes the memory store, the dispatcher and the
// orchestrator over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/rcliao/recall/internal/config"
	"github.com/rcliao/recall/internal/logging"
	"github.com/rcliao/recall/internal/metrics"
)

// NewRouter creates a chi router with middleware and routes.
func NewRouter(h *Handler, m *metrics.Manager, metricsPath string, log zerolog.Logger) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID, middleware.RealIP)
	r.Use(requestLogger(log))
	r.Use(middleware.Recoverer)

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/units", func(r chi.Router) {
			r.Post("/", h.InsertUnit)
			r.Get("/", h.ListUnits)
			r.Get("/{id}", h.GetUnit)
			r.Get("/{id}/provenance", h.GetProvenance)
		})
		r.Post("/retrieve", h.Retrieve)
		r.Post("/consolidate", h.Consolidate)
		r.Post("/decay", h.Decay)
		r.Post("/handle", h.Handle)
		r.Post("/dispatch", h.Dispatch)
	})

	r.Get("/healthz", h.Health)

	if m.Enabled() {
		if metricsPath == "" {
			metricsPath = "/metrics"
		}
		r.Handle(metricsPath, m.Handler())
	}

	return r
}

// requestLogger logs one line per request.
func requestLogger(log zerolog.Logger) func(http.Handler) http.Handler {
	log = logging.Component(log, "http")
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			log.Info().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Int("size", ww.BytesWritten()).
				Dur("duration", time.Since(start)).
				Str("request_id", middleware.GetReqID(r.Context())).
				Msg("http request")
		})
	}
}

// Server is the HTTP server lifecycle.
type Server struct {
	server *http.Server
	log    zerolog.Logger
}

// New creates an HTTP server for the router.
func New(cfg config.ServerConfig, router http.Handler, log zerolog.Logger) *Server {
	return &Server{
		server: &http.Server{
			Addr:              cfg.Addr,
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		},
		log: logging.Component(log, "server"),
	}
}

// Start serves until Shutdown is called.
func (s *Server) Start() error {
	s.log.Info().Str("addr", s.server.Addr).Msg("starting HTTP server")

	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("start HTTP server: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("shutting down HTTP server")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown HTTP server: %w", err)
	}
	return nil
}

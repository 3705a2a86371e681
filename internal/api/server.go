// Package api exposes the visualization core over HTTP: ephemeris
// metadata/refresh, per-tick positions, sky plot, DOP, and session control.
package api

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/star/gnssviz/internal/auth"
	"github.com/star/gnssviz/internal/ephemeris"
	"github.com/star/gnssviz/internal/health"
	"github.com/star/gnssviz/internal/metrics"
	"github.com/star/gnssviz/internal/session"
	"github.com/star/gnssviz/internal/stream"
)

// Deps are the collaborators the server exposes.
type Deps struct {
	Session *session.Session
	Fetcher *ephemeris.Fetcher
	Cache   *ephemeris.Cache // optional; refresh skips caching when nil
	Stream  *stream.Handler  // optional; stream route omitted when nil
}

// Server holds the HTTP server and its dependencies.
type Server struct {
	httpServer *http.Server
	deps       Deps
	logger     *slog.Logger
}

// NewServer creates a configured HTTP server.
func NewServer(addr string, deps Deps, logger *slog.Logger, authCfg auth.Config) *Server {
	s := &Server{
		deps:   deps,
		logger: logger,
	}

	mux := http.NewServeMux()

	// Register routes.
	mux.HandleFunc("GET /healthz", health.Healthz)
	mux.HandleFunc("GET /readyz", health.Readyz(func() bool {
		return deps.Session.Store().Len() > 0
	}))
	mux.Handle("GET /metrics", metrics.Handler())

	mux.HandleFunc("GET /api/v1/ephemeris/metadata", s.handleMetadata)
	mux.HandleFunc("POST /api/v1/ephemeris/refresh", s.handleRefresh)
	mux.HandleFunc("GET /api/v1/positions", s.handlePositions)
	mux.HandleFunc("GET /api/v1/sky", s.handleSky)
	mux.HandleFunc("GET /api/v1/dop", s.handleDOP)
	mux.HandleFunc("GET /api/v1/satellites/{norad_id}", s.handleSatellite)
	mux.HandleFunc("GET /api/v1/session", s.handleGetSession)
	mux.HandleFunc("POST /api/v1/session", s.handleUpdateSession)

	if deps.Stream != nil {
		mux.HandleFunc("GET /api/v1/stream/positions", deps.Stream.HandlePositions)
	}

	// Build middleware chain: metrics -> logging -> auth -> mux.
	var handler http.Handler = mux
	handler = auth.Middleware(authCfg)(handler)
	handler = loggingMiddleware(logger)(handler)
	handler = metrics.Middleware(handler)

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

// HTTPServer returns the underlying *http.Server for external control (e.g. shutdown).
func (s *Server) HTTPServer() *http.Server {
	return s.httpServer
}

// ListenAndServe starts the HTTP server.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// probePath returns true for health/readiness probe paths that should not log at INFO.
func probePath(path string) bool {
	return path == "/healthz" || path == "/readyz"
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.statusCode = code
	sr.ResponseWriter.WriteHeader(code)
}

func loggingMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sr := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(sr, r)

			duration := time.Since(start)
			level := slog.LevelInfo
			if probePath(r.URL.Path) {
				level = slog.LevelDebug
			}

			logger.Log(r.Context(), level, "request",
				"component", "api",
				"method", r.Method,
				"path", r.URL.Path,
				"status", strconv.Itoa(sr.statusCode),
				"duration_ms", duration.Milliseconds(),
				"remote_ip", r.RemoteAddr,
			)
		})
	}
}

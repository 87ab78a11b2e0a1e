package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"

	"github.com/SebastienMelki/tabu/internal/observability"
)

// RouteRegistrar mounts a module's endpoints on the server mux.
type RouteRegistrar interface {
	RegisterRoutes(mux *http.ServeMux)
}

// HealthChecker reports whether a dependency is ready to serve.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Server is the HTTP server for the tabu API.
type Server struct {
	config     Config
	httpServer *http.Server
	checks     map[string]HealthChecker
	logger     *slog.Logger
}

// Options carries the server's optional collaborators.
type Options struct {
	// Observability serves /metrics and records HTTP metrics when set.
	Observability *observability.Module

	// Checks are consulted by /ready, keyed by dependency name.
	Checks map[string]HealthChecker
}

// NewServer creates a new HTTP server mounting every registrar's routes
// together with /health, /ready and, when configured, /metrics.
func NewServer(cfg Config, routes []RouteRegistrar, opts Options, logger *slog.Logger) (*Server, error) {
	if len(routes) == 0 {
		return nil, ErrNoRoutes
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		config: cfg,
		checks: opts.Checks,
		logger: logger.With("component", "http-server"),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /ready", s.handleReady)
	for _, r := range routes {
		r.RegisterRoutes(mux)
	}

	var metrics *observability.Metrics
	if opts.Observability != nil {
		mux.Handle("GET /metrics", opts.Observability.MetricsHandler())
		metrics = opts.Observability.Metrics()
	}

	// HTTPMetrics must wrap the mux directly to see the matched pattern.
	handler := Chain(mux,
		Recovery(s.logger),
		RequestID,
		RateLimit(cfg.RateLimit),
		PerClientRateLimit(cfg.RateLimit),
		BodySizeLimit(cfg.MaxBodyBytes),
		observability.HTTPMetrics(metrics),
	)

	s.httpServer = &http.Server{
		Addr:           cfg.Addr,
		Handler:        handler,
		ReadTimeout:    cfg.ReadTimeout,
		WriteTimeout:   cfg.WriteTimeout,
		IdleTimeout:    cfg.IdleTimeout,
		MaxHeaderBytes: cfg.MaxHeaderBytes,
	}

	return s, nil
}

// Handler returns the fully wrapped root handler.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start listens on the configured address and serves until Shutdown.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.config.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.config.Addr, err)
	}
	return s.Serve(ln)
}

// Serve serves requests on ln. It returns nil after a graceful shutdown.
func (s *Server) Serve(ln net.Listener) error {
	s.logger.Info("HTTP server listening", "addr", ln.Addr().String())

	if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("HTTP server error: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the server, waiting at most the configured
// shutdown timeout for in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.config.ShutdownTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.ShutdownTimeout)
		defer cancel()
	}

	s.logger.Info("shutting down HTTP server")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shut down HTTP server: %w", err)
	}
	return nil
}

// handleHealth handles GET /health (liveness).
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleReady handles GET /ready. It fails when any dependency check does.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	status := http.StatusOK
	results := make(map[string]string, len(s.checks))

	for name, check := range s.checks {
		if err := check.HealthCheck(r.Context()); err != nil {
			s.logger.Warn("readiness check failed", "dependency", name, "error", err)
			results[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		results[name] = "ok"
	}

	state := "ready"
	if status != http.StatusOK {
		state = "not_ready"
	}

	writeJSON(w, status, map[string]interface{}{
		"status": state,
		"checks": results,
	})
}

// writeJSON writes a JSON response with the given status code and body.
func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

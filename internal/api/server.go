package api

import (
	"context"
	"crypto/tls"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"snippet-runner/internal/config"
	"snippet-runner/internal/monitor"
	"snippet-runner/internal/runtime"
)

// Server is the HTTP front of the runner.
type Server struct {
	httpServer *http.Server
	handlers   *Handlers
	cfg        *config.Config
}

// NewServer wires routes and middleware. launcher names the active isolation
// mode and is reported by /health.
func NewServer(cfg *config.Config, exec Executor, runtimes *runtime.Registry, metrics *monitor.Metrics, launcher string) (*Server, error) {
	maxBody, err := cfg.MaxRequestBodyBytes()
	if err != nil {
		return nil, err
	}

	s := &Server{
		handlers: NewHandlers(exec, runtimes, launcher),
		cfg:      cfg,
	}

	s.httpServer = &http.Server{
		Addr:         cfg.Address(),
		Handler:      s.routes(metrics, maxBody),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	return s, nil
}

// Handler exposes the routed handler, mainly for tests.
func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

func (s *Server) routes(metrics *monitor.Metrics, maxBody int64) http.Handler {
	r := chi.NewRouter()

	// Outermost first.
	r.Use(RecoveryMiddleware)
	r.Use(RequestIDMiddleware)
	r.Use(chimiddleware.RealIP)
	r.Use(LoggingMiddleware)
	r.Use(CORSMiddleware(s.cfg.Server.CORSOrigins))
	r.Use(MaxBodyMiddleware(maxBody))

	r.Get("/health", s.handlers.HandleHealth)
	if s.cfg.Metrics.Enabled {
		r.Method(http.MethodGet, s.cfg.Metrics.Path, promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))
	}

	r.Group(func(r chi.Router) {
		r.Use(MetricsMiddleware(metrics))
		r.Post("/run-code", s.handlers.HandleRunCode)
		r.Post("/execute", s.handlers.HandleExecute)
		r.Get("/languages", s.handlers.HandleLanguages)
	})

	return r
}

// Start begins listening for requests. Uses TLS if configured.
func (s *Server) Start() error {
	if s.cfg.TLS.Enabled {
		log.Info().
			Str("addr", s.httpServer.Addr).
			Str("cert", s.cfg.TLS.CertFile).
			Msg("starting HTTPS server with TLS")

		s.httpServer.TLSConfig = &tls.Config{
			MinVersion: tls.VersionTLS12,
		}
		return s.httpServer.ListenAndServeTLS(s.cfg.TLS.CertFile, s.cfg.TLS.KeyFile)
	}

	log.Info().
		Str("addr", s.httpServer.Addr).
		Msg("starting HTTP server")
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	log.Info().Msg("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

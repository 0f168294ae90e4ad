// Package server builds the HTTP router and its middleware chain.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/iemabdullah/ai-generator-2api/internal/auth"
	"github.com/iemabdullah/ai-generator-2api/internal/codec"
	"github.com/iemabdullah/ai-generator-2api/internal/domain"
)

// ServiceName labels inbound spans.
const ServiceName = "ai-generator-2api"

type Server struct {
	Router *chi.Mux
	Port   int
	logger *slog.Logger
	auth   *auth.Authenticator
	http   *http.Server
}

// Options configure the router.
type Options struct {
	Port           int
	RequestTimeout time.Duration
	Authenticator  *auth.Authenticator
}

func New(opts Options, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	r := chi.NewRouter()

	// Apply middleware in order
	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(logger))
	r.Use(CORSMiddleware)
	r.Use(TimeoutMiddleware(opts.RequestTimeout))
	r.Use(middleware.Recoverer)

	// Wrap with OpenTelemetry HTTP instrumentation
	r.Use(func(next http.Handler) http.Handler {
		return otelhttp.NewHandler(next, ServiceName)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		codec.WriteError(w, domain.ErrNotFound("Endpoint not found: "+r.URL.Path))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		codec.WriteError(w, domain.ErrMethodNotAllowed(fmt.Sprintf("Method %s not allowed on %s", r.Method, r.URL.Path)))
	})
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Write([]byte("ok"))
	})

	return &Server{
		Router: r,
		Port:   opts.Port,
		logger: logger,
		auth:   opts.Authenticator,
	}
}

// Handle registers h for method and path, behind the bearer check when
// protected is set.
func (s *Server) Handle(method, path string, h http.HandlerFunc, protected bool) {
	if protected {
		s.Router.With(AuthMiddleware(s.auth)).Method(method, path, h)
	} else {
		s.Router.Method(method, path, h)
	}
	s.logger.Debug("registered handler",
		slog.String("method", method),
		slog.String("path", path),
		slog.Bool("protected", protected))
}

// HTTPServer returns the http.Server used by Serve, creating it on first use.
func (s *Server) HTTPServer() *http.Server {
	if s.http == nil {
		s.http = &http.Server{
			Addr:              fmt.Sprintf(":%d", s.Port),
			Handler:           s.Router,
			ReadHeaderTimeout: 10 * time.Second,
		}
	}
	return s.http
}

// Serve accepts connections on ln until Shutdown is called.
func (s *Server) Serve(ln net.Listener) error {
	s.logger.Info("starting server", slog.String("addr", ln.Addr().String()))
	if err := s.HTTPServer().Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}

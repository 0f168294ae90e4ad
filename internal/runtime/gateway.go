// Package runtime provides the Gateway struct and lifecycle management.
package runtime

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"golang.org/x/crypto/acme/autocert"

	"github.com/iemabdullah/ai-generator-2api/internal/adapter"
	"github.com/iemabdullah/ai-generator-2api/internal/auth"
	"github.com/iemabdullah/ai-generator-2api/internal/config"
	"github.com/iemabdullah/ai-generator-2api/internal/console"
	"github.com/iemabdullah/ai-generator-2api/internal/frontdoor/openai"
	"github.com/iemabdullah/ai-generator-2api/internal/identity"
	"github.com/iemabdullah/ai-generator-2api/internal/server"
	"github.com/iemabdullah/ai-generator-2api/internal/telemetry"
	"github.com/iemabdullah/ai-generator-2api/internal/tokens"
	"github.com/iemabdullah/ai-generator-2api/internal/upstream"
)

// Gateway owns the HTTP server and everything behind it.
// Gateway can be embedded in larger applications or run standalone.
type Gateway struct {
	// Dependencies (injected via options)
	config         *config.Config
	logger         *slog.Logger
	upstreamClient *http.Client
	listener       net.Listener
	telemetryOut   io.Writer

	// Internal state
	server         *server.Server
	challenge      *http.Server
	tracerShutdown func(context.Context) error
	errCh          chan error

	mu      sync.Mutex
	started bool
}

// New creates a new Gateway with the given options.
func New(opts ...Option) (*Gateway, error) {
	gw := &Gateway{
		logger:       slog.Default(),
		telemetryOut: os.Stdout,
		errCh:        make(chan error, 2),
	}

	for _, opt := range opts {
		if err := opt(gw); err != nil {
			return nil, fmt.Errorf("apply option: %w", err)
		}
	}

	if gw.config == nil {
		return nil, fmt.Errorf("config required (use WithConfig or WithConfigFile)")
	}
	if err := gw.config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	gw.server = gw.buildServer()
	return gw, nil
}

// Handler returns the fully wired router.
func (g *Gateway) Handler() http.Handler {
	return g.server.Router
}

func (g *Gateway) buildServer() *server.Server {
	cfg := g.config

	authenticator := auth.NewAuthenticator(cfg.Auth.MasterKey)
	if authenticator.Open() {
		g.logger.Warn("open-auth mode: every request is accepted without a key")
	}

	srv := server.New(server.Options{
		Port:           cfg.Server.Port,
		RequestTimeout: cfg.Server.RequestTimeout,
		Authenticator:  authenticator,
	}, g.logger)

	synth := identity.NewSynthesizer(identity.Profile{
		Origin:         cfg.Upstream.Origin,
		UserAgent:      cfg.Upstream.UserAgent,
		AcceptLanguage: cfg.Upstream.AcceptLanguage,
	})

	upstreamOpts := []upstream.Option{upstream.WithProvider(cfg.Upstream.Provider)}
	if g.upstreamClient != nil {
		upstreamOpts = append(upstreamOpts, upstream.WithHTTPClient(g.upstreamClient))
	}
	client := upstream.New(cfg.Upstream.Origin, cfg.Upstream.Timeout, upstreamOpts...)

	pipeline := adapter.New(synth, client, cfg.Upstream.Model, g.logger)
	handler := openai.NewHandler(pipeline, tokens.NewCounter(""), g.logger)

	for _, route := range openai.CreateHandlerRegistrations(handler, "") {
		srv.Handle(route.Method, route.Path, route.Handler, route.Protected)
	}

	info := console.Info{
		ProjectName: cfg.Project.Name,
		Version:     cfg.Project.Version,
		Model:       cfg.Upstream.Model,
	}
	if cfg.OpenAuth() {
		info.APIKey = cfg.Auth.MasterKey
	}
	srv.Handle(http.MethodGet, "/", console.NewHandler(info, g.logger).ServeHTTP, false)

	return srv
}

// Start initializes telemetry and starts serving in the background.
func (g *Gateway) Start(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.started {
		return errors.New("gateway already started")
	}

	cfg := g.config
	shutdown, err := telemetry.InitTracer(cfg.Project.Name, cfg.Project.Version, cfg.Telemetry.Enabled, g.telemetryOut, g.logger)
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	g.tracerShutdown = shutdown

	ln := g.listener
	if ln == nil {
		if cfg.Server.TLS.Enabled {
			ln, err = g.listenTLS(ctx)
		} else {
			ln, err = net.Listen("tcp", fmt.Sprintf(":%d", cfg.Server.Port))
		}
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
	}
	g.listener = ln

	go func() {
		if err := g.server.Serve(ln); err != nil {
			g.logger.Error("server error", slog.String("error", err.Error()))
			g.errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	g.started = true
	g.logger.Info("gateway started",
		slog.String("addr", ln.Addr().String()),
		slog.String("upstream", cfg.Upstream.Origin),
		slog.String("model", cfg.Upstream.Model),
		slog.Bool("tls", cfg.Server.TLS.Enabled))

	return nil
}

// listenTLS serves ACME certificates on :443 and answers HTTP-01 challenges
// on :80, redirecting everything else to HTTPS.
func (g *Gateway) listenTLS(ctx context.Context) (net.Listener, error) {
	tlsCfg := g.config.Server.TLS
	mgr := &autocert.Manager{
		Cache:      autocert.DirCache(tlsCfg.CacheDir),
		Prompt:     autocert.AcceptTOS,
		HostPolicy: autocert.HostWhitelist(tlsCfg.Domain),
		Email:      tlsCfg.Email,
	}

	g.challenge = &http.Server{
		Addr:              ":80",
		Handler:           mgr.HTTPHandler(http.HandlerFunc(redirectHTTPS)),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		g.logger.Info("http challenge/redirect listening", slog.String("addr", ":80"))
		if err := g.challenge.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			g.errCh <- fmt.Errorf("http challenge server: %w", err)
		}
	}()

	var lc net.ListenConfig
	inner, err := lc.Listen(ctx, "tcp", ":443")
	if err != nil {
		return nil, err
	}
	return tls.NewListener(inner, &tls.Config{
		GetCertificate: mgr.GetCertificate,
		MinVersion:     tls.VersionTLS12,
		NextProtos:     []string{"h2", "http/1.1"},
	}), nil
}

func redirectHTTPS(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, "https://"+r.Host+r.RequestURI, http.StatusMovedPermanently)
}

// Addr returns the listening address once started.
func (g *Gateway) Addr() net.Addr {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.listener == nil {
		return nil
	}
	return g.listener.Addr()
}

// Errors reports fatal server errors that happen after Start returns.
func (g *Gateway) Errors() <-chan error {
	return g.errCh
}

// Shutdown gracefully stops the gateway.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.logger.Info("shutting down gateway")

	var errs []error
	if err := g.server.Shutdown(ctx); err != nil {
		g.logger.Error("failed to shutdown server", slog.String("error", err.Error()))
		errs = append(errs, err)
	}
	if g.challenge != nil {
		if err := g.challenge.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if g.tracerShutdown != nil {
		if err := g.tracerShutdown(ctx); err != nil {
			g.logger.Error("failed to shutdown tracer", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	g.started = false
	g.logger.Info("gateway shutdown complete")
	return errors.Join(errs...)
}

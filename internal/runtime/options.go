package runtime

import (
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"

	"github.com/iemabdullah/ai-generator-2api/internal/config"
)

// Option is a functional option for configuring a Gateway.
type Option func(*Gateway) error

// WithConfig uses an already loaded configuration.
func WithConfig(cfg *config.Config) Option {
	return func(g *Gateway) error {
		if cfg == nil {
			return fmt.Errorf("config is nil")
		}
		g.config = cfg
		return nil
	}
}

// WithConfigFile loads configuration from path plus the environment.
func WithConfigFile(path string) Option {
	return func(g *Gateway) error {
		cfg, err := config.Load(path)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		g.config = cfg
		return nil
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(g *Gateway) error {
		g.logger = logger
		return nil
	}
}

// WithUpstreamHTTPClient replaces the HTTP client used to reach the upstream site.
func WithUpstreamHTTPClient(client *http.Client) Option {
	return func(g *Gateway) error {
		g.upstreamClient = client
		return nil
	}
}

// WithListener serves on ln instead of opening the configured port.
func WithListener(ln net.Listener) Option {
	return func(g *Gateway) error {
		g.listener = ln
		return nil
	}
}

// WithTelemetryWriter sets where exported spans are written when telemetry is enabled.
func WithTelemetryWriter(w io.Writer) Option {
	return func(g *Gateway) error {
		g.telemetryOut = w
		return nil
	}
}

// Package config loads the gateway configuration from an optional YAML file
// overlaid with AIGEN_ environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// OpenAuthKey is the master key value that disables bearer authentication.
const OpenAuthKey = "1"

// EnvPrefix prefixes every environment override, e.g. AIGEN_SERVER__PORT.
const EnvPrefix = "AIGEN_"

type Config struct {
	Project   ProjectConfig   `koanf:"project"`
	Server    ServerConfig    `koanf:"server"`
	Auth      AuthConfig      `koanf:"auth"`
	Upstream  UpstreamConfig  `koanf:"upstream"`
	Log       LogConfig       `koanf:"log"`
	Telemetry TelemetryConfig `koanf:"telemetry"`
}

type ProjectConfig struct {
	Name    string `koanf:"name"`
	Version string `koanf:"version"`
}

type ServerConfig struct {
	Port           int           `koanf:"port"`
	RequestTimeout time.Duration `koanf:"request_timeout"`
	TLS            TLSConfig     `koanf:"tls"`
}

// TLSConfig enables ACME certificates for a single domain.
type TLSConfig struct {
	Enabled  bool   `koanf:"enabled"`
	Domain   string `koanf:"domain"`
	Email    string `koanf:"email"`
	CacheDir string `koanf:"cache_dir"`
}

type AuthConfig struct {
	MasterKey string `koanf:"master_key"`
}

// UpstreamConfig describes the image generation site the gateway fronts.
type UpstreamConfig struct {
	Origin         string        `koanf:"origin"`
	Model          string        `koanf:"model"`
	Provider       string        `koanf:"provider"`
	Timeout        time.Duration `koanf:"timeout"`
	UserAgent      string        `koanf:"user_agent"`
	AcceptLanguage string        `koanf:"accept_language"`
}

type LogConfig struct {
	Level  string `koanf:"level"`  // debug, info, warn, error
	Format string `koanf:"format"` // json, text
}

type TelemetryConfig struct {
	Enabled bool `koanf:"enabled"`
}

// OpenAuth reports whether the configured key disables authentication.
func (c *Config) OpenAuth() bool {
	return c.Auth.MasterKey == OpenAuthKey
}

var defaults = map[string]any{
	"project.name":             "ai-generator-flux-pure",
	"project.version":          "2.4.0",
	"server.port":              8080,
	"server.request_timeout":   "120s",
	"server.tls.enabled":       false,
	"server.tls.cache_dir":     "./data/autocert",
	"auth.master_key":          OpenAuthKey,
	"upstream.origin":          "https://ai-image-generator.co",
	"upstream.model":           "flux-schnell",
	"upstream.provider":        "replicate",
	"upstream.timeout":         "90s",
	"upstream.user_agent":      "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/142.0.0.0 Safari/537.36",
	"upstream.accept_language": "zh-CN,zh;q=0.9,en;q=0.8",
	"log.level":                "info",
	"log.format":               "json",
	"telemetry.enabled":        false,
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// Load reads path (if it exists), applies environment overrides and fills in
// defaults. An empty path skips the file.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			// File not found is OK, we'll use env vars
			if !errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("load %s: %w", path, err)
			}
		}
	}

	// Load environment variables (can override file config)
	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "__", ".")
	}), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	// The worker-era variable name is still honoured when nothing else set a key.
	if !k.Exists("auth.master_key") {
		if legacy := os.Getenv("API_MASTER_KEY"); legacy != "" {
			k.Set("auth.master_key", legacy)
		}
	}

	for key, value := range defaults {
		if !k.Exists(key) {
			k.Set(key, value)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	cfg.Auth.MasterKey = substituteEnvVars(cfg.Auth.MasterKey)
	cfg.Upstream.Origin = strings.TrimRight(cfg.Upstream.Origin, "/")

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the values that would otherwise fail at request time.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	u, err := url.Parse(c.Upstream.Origin)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("upstream.origin %q is not an absolute URL", c.Upstream.Origin)
	}
	if strings.TrimSpace(c.Upstream.Model) == "" {
		return errors.New("upstream.model is required")
	}
	if c.Auth.MasterKey == "" {
		return errors.New("auth.master_key is required")
	}
	switch c.Log.Format {
	case "json", "text":
	default:
		return fmt.Errorf("log.format %q must be json or text", c.Log.Format)
	}
	if c.Server.TLS.Enabled && c.Server.TLS.Domain == "" {
		return errors.New("server.tls.domain is required when tls is enabled")
	}
	return nil
}

func substituteEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		// Extract variable name from ${VAR_NAME}
		varName := envVarPattern.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

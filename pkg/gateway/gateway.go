// Package gateway provides the public API for embedding the image gateway.
// This is the stable API for external consumers.
package gateway

import (
	"github.com/iemabdullah/ai-generator-2api/internal/config"
	"github.com/iemabdullah/ai-generator-2api/internal/runtime"
)

// Gateway serves the OpenAI-compatible endpoints.
// See internal/runtime.Gateway for full documentation.
type Gateway = runtime.Gateway

// Option is a functional option for configuring a Gateway.
type Option = runtime.Option

// Config is the gateway configuration.
type Config = config.Config

// New creates a new Gateway with the given options.
// Example:
//
//	gw, err := gateway.New(
//	    gateway.WithConfigFile("config.yaml"),
//	)
var New = runtime.New

// LoadConfig reads a YAML file overlaid with AIGEN_ environment variables.
var LoadConfig = config.Load

// Configuration options
var (
	WithConfig     = runtime.WithConfig
	WithConfigFile = runtime.WithConfigFile

	WithLogger             = runtime.WithLogger
	WithUpstreamHTTPClient = runtime.WithUpstreamHTTPClient
	WithListener           = runtime.WithListener
	WithTelemetryWriter    = runtime.WithTelemetryWriter
)

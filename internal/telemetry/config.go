// Package telemetry installs the OpenTelemetry tracer and meter providers
// that the pipeline packages reach through otel.Tracer and otel.Meter.
//
// Telemetry is off by default. When on, spans and metrics go to one OTLP
// collector over gRPC or HTTP, and every export carries the pipeline's
// backend choices as resource attributes.
package telemetry

import (
	"fmt"
	"strings"
	"time"

	"github.com/fyrsmithlabs/insightflow/internal/config"
)

// Supported OTLP protocols.
const (
	ProtocolGRPC = "grpc"
	ProtocolHTTP = "http/protobuf"
)

const (
	defaultExportInterval  = 15 * time.Second
	defaultShutdownTimeout = 5 * time.Second
)

// Config describes one OTLP destination.
type Config struct {
	Enabled        bool
	Endpoint       string
	Protocol       string
	Insecure       bool
	ServiceName    string
	ServiceVersion string
	SampleRate     float64

	// Pipeline is recorded on the resource, e.g. vectorstore=qdrant.
	Pipeline map[string]string

	ExportInterval  time.Duration
	ShutdownTimeout time.Duration
}

// NewDefaultConfig returns a disabled config.
func NewDefaultConfig() *Config {
	return &Config{
		Endpoint:        "localhost:4317",
		Protocol:        ProtocolGRPC,
		Insecure:        true,
		ServiceName:     "insightflow",
		ServiceVersion:  "dev",
		SampleRate:      1.0,
		ExportInterval:  defaultExportInterval,
		ShutdownTimeout: defaultShutdownTimeout,
	}
}

// FromApp derives the telemetry config from the application config.
func FromApp(app *config.Config, version string) *Config {
	cfg := NewDefaultConfig()
	t := app.Telemetry
	cfg.Enabled = t.Enabled
	if t.Endpoint != "" {
		cfg.Endpoint = t.Endpoint
	}
	if t.Protocol != "" {
		cfg.Protocol = t.Protocol
	}
	if t.ServiceName != "" {
		cfg.ServiceName = t.ServiceName
	}
	if version != "" {
		cfg.ServiceVersion = version
	}
	cfg.Insecure = t.Insecure
	cfg.SampleRate = t.SampleRate
	cfg.Pipeline = map[string]string{
		"vectorstore":        app.VectorStore.Provider,
		"embedding.provider": app.Embedding.Provider,
		"embedding.model":    app.Embedding.Model,
		"chat.model":         app.Chat.Model,
	}
	return cfg
}

// Validate checks an enabled config. A disabled config is always valid.
func (c *Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	switch {
	case c.Endpoint == "":
		return fmt.Errorf("telemetry endpoint is required")
	case c.ServiceName == "":
		return fmt.Errorf("telemetry service name is required")
	case c.Protocol != ProtocolGRPC && c.Protocol != ProtocolHTTP:
		return fmt.Errorf("telemetry protocol must be %s or %s, got %q", ProtocolGRPC, ProtocolHTTP, c.Protocol)
	case c.SampleRate < 0 || c.SampleRate > 1:
		return fmt.Errorf("telemetry sample rate must be within [0, 1], got %g", c.SampleRate)
	case c.Insecure && !isLoopback(c.Endpoint):
		return fmt.Errorf("insecure export is only allowed to a loopback collector, got %s", c.Endpoint)
	}
	return nil
}

// hostPort strips an http(s) scheme; the OTLP exporters want host:port.
func hostPort(endpoint string) string {
	endpoint = strings.TrimPrefix(endpoint, "https://")
	return strings.TrimPrefix(endpoint, "http://")
}

func isLoopback(endpoint string) bool {
	host := hostPort(endpoint)
	switch {
	case strings.HasPrefix(host, "["):
		if end := strings.Index(host, "]"); end != -1 {
			host = host[1:end]
		}
	case strings.Count(host, ":") == 1:
		host = host[:strings.LastIndex(host, ":")]
	}
	return host == "localhost" || host == "::1" || strings.HasPrefix(host, "127.")
}

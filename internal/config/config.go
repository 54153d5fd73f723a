// Package config provides configuration loading for insightflow.
//
// A Config is built once at startup (defaults, then an optional YAML file,
// then environment variables) and passed explicitly to every component
// constructor.
package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidConfig is returned by Validate for any rejected setting.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config holds the complete insightflow configuration.
type Config struct {
	Server      ServerConfig      `koanf:"server"`
	Qdrant      QdrantConfig      `koanf:"qdrant"`
	VectorStore VectorStoreConfig `koanf:"vectorstore"`
	Embedding   EmbeddingConfig   `koanf:"embedding"`
	Chat        ChatConfig        `koanf:"chat"`
	OpenAI      OpenAIConfig      `koanf:"openai"`
	Chunking    ChunkingConfig    `koanf:"chunking"`
	Ingest      IngestConfig      `koanf:"ingest"`
	Extraction  ExtractionConfig  `koanf:"extraction"`
	ObjectStore ObjectStoreConfig `koanf:"objectstore"`
	Events      EventsConfig      `koanf:"events"`
	Logging     LoggingConfig     `koanf:"logging"`
	Telemetry   TelemetryConfig   `koanf:"telemetry"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"http_port"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
	RequestTimeout  time.Duration `koanf:"request_timeout"`
}

// QdrantConfig holds vector index connection settings.
type QdrantConfig struct {
	// URL is the gRPC endpoint, e.g. http://localhost:6334.
	// An https scheme enables TLS.
	URL               string        `koanf:"url"`
	Collection        string        `koanf:"collection"`
	IndexingThreshold int           `koanf:"indexing_threshold"`
	APIKey            Secret        `koanf:"api_key"`
	RequestTimeout    time.Duration `koanf:"request_timeout"`
}

// Endpoint splits URL into host, port and TLS flag.
func (q QdrantConfig) Endpoint() (host string, port int, useTLS bool, err error) {
	raw := q.URL
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", 0, false, fmt.Errorf("parsing qdrant url %q: %w", q.URL, err)
	}
	host = u.Hostname()
	if host == "" {
		return "", 0, false, fmt.Errorf("qdrant url %q has no host", q.URL)
	}
	port = 6334
	if p := u.Port(); p != "" {
		port, err = strconv.Atoi(p)
		if err != nil {
			return "", 0, false, fmt.Errorf("qdrant url %q: invalid port: %w", q.URL, err)
		}
	}
	return host, port, u.Scheme == "https", nil
}

// VectorStoreConfig selects the vector index implementation.
type VectorStoreConfig struct {
	// Provider is "qdrant" or "chromem".
	Provider string `koanf:"provider"`
	// ChromemPath enables persistence for the chromem provider.
	// Empty keeps the index in memory.
	ChromemPath     string `koanf:"chromem_path"`
	ChromemCompress bool   `koanf:"chromem_compress"`
}

// EmbeddingConfig holds embedding provider settings.
type EmbeddingConfig struct {
	// Provider is one of "openai", "ollama", "tei" or "fastembed".
	Provider string `koanf:"provider"`
	Model    string `koanf:"model"`
	BaseURL  string `koanf:"base_url"`
	// RateLimit caps provider calls per second. Zero disables limiting.
	RateLimit float64 `koanf:"rate_limit"`
	// CacheRedisURL enables the query embedding cache when set.
	CacheRedisURL string        `koanf:"cache_redis_url"`
	CacheTTL      time.Duration `koanf:"cache_ttl"`
	// CacheDir is the fastembed model cache directory.
	CacheDir string `koanf:"cache_dir"`
}

// ChatConfig holds generation provider settings.
type ChatConfig struct {
	// Provider is "openai" or "ollama".
	Provider    string  `koanf:"provider"`
	Model       string  `koanf:"model"`
	BaseURL     string  `koanf:"base_url"`
	Temperature float64 `koanf:"temperature"`
	RateLimit   float64 `koanf:"rate_limit"`
}

// OpenAIConfig holds credentials shared by the OpenAI providers.
type OpenAIConfig struct {
	APIKey Secret `koanf:"api_key"`
}

// ChunkingConfig controls how page text is windowed.
type ChunkingConfig struct {
	Size    int `koanf:"size"`
	Overlap int `koanf:"overlap"`
}

// IngestConfig controls optional ingestion behavior.
type IngestConfig struct {
	// StableIDs derives point ids from scope, page and offset so that
	// re-ingesting a document overwrites instead of duplicating.
	StableIDs     bool   `koanf:"stable_ids"`
	RedactSecrets bool   `koanf:"redact_secrets"`
	SecretsAllow  string `koanf:"secrets_allowlist"`
	// AllowedPaths restricts local file paths to these glob patterns.
	// Empty allows any path.
	AllowedPaths []string `koanf:"allowed_paths"`
}

// ExtractionConfig holds document text extraction settings.
type ExtractionConfig struct {
	PDFToTextPath string        `koanf:"pdftotext_path"`
	TikaURL       string        `koanf:"tika_url"`
	Timeout       time.Duration `koanf:"timeout"`
}

// ObjectStoreConfig enables s3:// file paths when Endpoint is set.
type ObjectStoreConfig struct {
	Endpoint  string `koanf:"endpoint"`
	AccessKey string `koanf:"access_key"`
	SecretKey Secret `koanf:"secret_key"`
	UseSSL    bool   `koanf:"use_ssl"`
	Region    string `koanf:"region"`
}

// EventsConfig enables NATS document events when NATSURL is set.
type EventsConfig struct {
	NATSURL       string `koanf:"nats_url"`
	SubjectPrefix string `koanf:"subject_prefix"`
}

// LoggingConfig is the user-facing subset of logging.Config.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	OTEL   bool   `koanf:"otel"`
}

// TelemetryConfig is the user-facing subset of telemetry.Config.
type TelemetryConfig struct {
	Enabled     bool    `koanf:"enabled"`
	Endpoint    string  `koanf:"endpoint"`
	Protocol    string  `koanf:"protocol"`
	Insecure    bool    `koanf:"insecure"`
	ServiceName string  `koanf:"service_name"`
	SampleRate  float64 `koanf:"sample_rate"`
}

// Default returns a Config populated with every default value.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	applyDerivedDefaults(cfg)
	return cfg
}

// applyDefaults sets default values for missing configuration fields.
// Loaded values are decoded on top of these, so an explicit zero in a file
// or the environment wins.
func applyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8000
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 10 * time.Second
	}
	if cfg.Server.RequestTimeout == 0 {
		cfg.Server.RequestTimeout = 120 * time.Second
	}

	if cfg.Qdrant.URL == "" {
		cfg.Qdrant.URL = "http://localhost:6334"
	}
	if cfg.Qdrant.Collection == "" {
		cfg.Qdrant.Collection = "insightflow_chunks"
	}
	if cfg.Qdrant.IndexingThreshold == 0 {
		cfg.Qdrant.IndexingThreshold = 20000
	}
	if cfg.Qdrant.RequestTimeout == 0 {
		cfg.Qdrant.RequestTimeout = 30 * time.Second
	}

	if cfg.VectorStore.Provider == "" {
		cfg.VectorStore.Provider = "qdrant"
	}

	if cfg.Embedding.Provider == "" {
		cfg.Embedding.Provider = "openai"
	}
	if cfg.Embedding.CacheTTL == 0 {
		cfg.Embedding.CacheTTL = time.Hour
	}

	if cfg.Chat.Provider == "" {
		cfg.Chat.Provider = "openai"
	}
	if cfg.Chat.Model == "" {
		cfg.Chat.Model = "gpt-4o-mini"
	}
	if cfg.Chat.Temperature == 0 {
		cfg.Chat.Temperature = 0.2
	}

	if cfg.Chunking.Size == 0 {
		cfg.Chunking.Size = 1000
	}
	if cfg.Chunking.Overlap == 0 {
		cfg.Chunking.Overlap = 150
	}

	if cfg.Extraction.PDFToTextPath == "" {
		cfg.Extraction.PDFToTextPath = "pdftotext"
	}
	if cfg.Extraction.Timeout == 0 {
		cfg.Extraction.Timeout = 60 * time.Second
	}

	if cfg.Events.SubjectPrefix == "" {
		cfg.Events.SubjectPrefix = "insightflow"
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}

	if cfg.Telemetry.Endpoint == "" {
		cfg.Telemetry.Endpoint = "localhost:4317"
	}
	if cfg.Telemetry.Protocol == "" {
		cfg.Telemetry.Protocol = "grpc"
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = "insightflow"
	}
	if cfg.Telemetry.SampleRate == 0 {
		cfg.Telemetry.SampleRate = 1.0
	}
	cfg.Telemetry.Insecure = true
}

// applyDerivedDefaults fills values that depend on other loaded settings.
func applyDerivedDefaults(cfg *Config) {
	if cfg.Embedding.Model == "" {
		cfg.Embedding.Model = defaultEmbeddingModel(cfg.Embedding.Provider)
	}
}

func defaultEmbeddingModel(provider string) string {
	switch provider {
	case "ollama":
		return "nomic-embed-text"
	case "tei", "fastembed":
		return "BAAI/bge-small-en-v1.5"
	default:
		return "text-embedding-3-small"
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("%w: server.http_port must be 1-65535, got %d", ErrInvalidConfig, c.Server.Port)
	}
	if c.Server.Host != "" && net.ParseIP(c.Server.Host) == nil && c.Server.Host != "localhost" {
		return fmt.Errorf("%w: server.host must be an IP address or localhost, got %q", ErrInvalidConfig, c.Server.Host)
	}

	switch c.VectorStore.Provider {
	case "qdrant":
		if _, _, _, err := c.Qdrant.Endpoint(); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
		}
		if c.Qdrant.Collection == "" {
			return fmt.Errorf("%w: qdrant.collection is required", ErrInvalidConfig)
		}
		if c.Qdrant.IndexingThreshold < 0 {
			return fmt.Errorf("%w: qdrant.indexing_threshold must be >= 0", ErrInvalidConfig)
		}
	case "chromem":
	default:
		return fmt.Errorf("%w: vectorstore.provider must be qdrant or chromem, got %q", ErrInvalidConfig, c.VectorStore.Provider)
	}

	switch c.Embedding.Provider {
	case "openai":
		if !c.OpenAI.APIKey.IsSet() && c.Embedding.BaseURL == "" {
			return fmt.Errorf("%w: openai.api_key is required for the openai embedding provider", ErrInvalidConfig)
		}
	case "tei":
		if c.Embedding.BaseURL == "" {
			return fmt.Errorf("%w: embedding.base_url is required for the tei provider", ErrInvalidConfig)
		}
	case "ollama", "fastembed":
	default:
		return fmt.Errorf("%w: unknown embedding.provider %q", ErrInvalidConfig, c.Embedding.Provider)
	}
	if c.Embedding.RateLimit < 0 {
		return fmt.Errorf("%w: embedding.rate_limit must be >= 0", ErrInvalidConfig)
	}

	switch c.Chat.Provider {
	case "openai":
		if !c.OpenAI.APIKey.IsSet() && c.Chat.BaseURL == "" {
			return fmt.Errorf("%w: openai.api_key is required for the openai chat provider", ErrInvalidConfig)
		}
	case "ollama":
	default:
		return fmt.Errorf("%w: unknown chat.provider %q", ErrInvalidConfig, c.Chat.Provider)
	}
	if c.Chat.Temperature < 0 || c.Chat.Temperature > 2 {
		return fmt.Errorf("%w: chat.temperature must be within [0, 2], got %v", ErrInvalidConfig, c.Chat.Temperature)
	}
	if c.Chat.RateLimit < 0 {
		return fmt.Errorf("%w: chat.rate_limit must be >= 0", ErrInvalidConfig)
	}

	if c.Chunking.Size <= 0 {
		return fmt.Errorf("%w: chunking.size must be > 0, got %d", ErrInvalidConfig, c.Chunking.Size)
	}
	if c.Chunking.Overlap < 0 || c.Chunking.Overlap >= c.Chunking.Size {
		return fmt.Errorf("%w: chunking.overlap must be within [0, size), got %d", ErrInvalidConfig, c.Chunking.Overlap)
	}

	if c.ObjectStore.Endpoint != "" && c.ObjectStore.AccessKey == "" {
		return fmt.Errorf("%w: objectstore.access_key is required when objectstore.endpoint is set", ErrInvalidConfig)
	}

	if c.Logging.Format != "json" && c.Logging.Format != "console" {
		return fmt.Errorf("%w: logging.format must be json or console, got %q", ErrInvalidConfig, c.Logging.Format)
	}

	if c.Telemetry.SampleRate < 0 || c.Telemetry.SampleRate > 1 {
		return fmt.Errorf("%w: telemetry.sample_rate must be within [0, 1]", ErrInvalidConfig)
	}

	return nil
}

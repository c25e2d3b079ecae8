// Package config provides configuration loading for kijkod.
//
// Configuration is layered: hardcoded defaults, then an optional YAML file
// (~/.config/kijko/config.yaml), then environment variable overrides.
package config

import (
	"fmt"
	"net/url"
	"time"
)

// Config is the root configuration for the kijko gateway.
type Config struct {
	Server        ServerConfig        `koanf:"server"`
	Realtime      RealtimeConfig      `koanf:"realtime"`
	Ingest        IngestConfig        `koanf:"ingest"`
	NATS          NATSConfig          `koanf:"nats"`
	VectorStore   VectorStoreConfig   `koanf:"vectorstore"`
	Embeddings    EmbeddingsConfig    `koanf:"embeddings"`
	Store         StoreConfig         `koanf:"store"`
	GitHub        GitHubConfig        `koanf:"github"`
	Observability ObservabilityConfig `koanf:"observability"`
	RateLimit     RateLimitConfig     `koanf:"ratelimit"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Port            int           `koanf:"port"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// RealtimeConfig configures the WebSocket hub and the progress client
// defaults advertised to CLI consumers.
type RealtimeConfig struct {
	// WriteTimeout bounds a single frame write to a client.
	WriteTimeout time.Duration `koanf:"write_timeout"`

	// PingInterval is the server-side keepalive cadence.
	PingInterval time.Duration `koanf:"ping_interval"`

	// SendBuffer is the per-connection outbound queue length. Clients
	// that cannot drain their queue are dropped.
	SendBuffer int `koanf:"send_buffer"`
}

// IngestConfig configures the ingestion pipeline.
type IngestConfig struct {
	// Workdir is where repositories are cloned before parsing.
	Workdir string `koanf:"workdir"`

	// MaxFileSize is the per-file indexing cap in bytes.
	MaxFileSize int64 `koanf:"max_file_size"`

	// ChunkSize and ChunkOverlap drive the fixed/recursive splitters.
	ChunkSize    int `koanf:"chunk_size"`
	ChunkOverlap int `koanf:"chunk_overlap"`
}

// NATSConfig configures the event bus connection.
type NATSConfig struct {
	URL string `koanf:"url"`

	// Embedded starts an in-process NATS server instead of dialing URL.
	Embedded bool `koanf:"embedded"`
}

// VectorStoreConfig selects and configures the vector store provider.
type VectorStoreConfig struct {
	// Provider is "chromem" (embedded, default) or "qdrant".
	Provider string `koanf:"provider"`

	// Path is the chromem persistence directory.
	Path string `koanf:"path"`

	// Addr is the qdrant gRPC address (host:port).
	Addr string `koanf:"addr"`

	// VectorSize must match the embedding model dimension.
	VectorSize int `koanf:"vector_size"`
}

// EmbeddingsConfig configures the embedding backend (TEI or any
// OpenAI-compatible endpoint).
type EmbeddingsConfig struct {
	BaseURL string `koanf:"base_url"`
	Model   string `koanf:"model"`
	APIKey  Secret `koanf:"api_key"`
}

// StoreConfig configures project/history/notification persistence.
type StoreConfig struct {
	// Path is the directory for JSON snapshot files.
	Path string `koanf:"path"`
}

// GitHubConfig configures repository URL validation.
type GitHubConfig struct {
	Token Secret `koanf:"token"`
}

// ObservabilityConfig configures logging and telemetry export.
type ObservabilityConfig struct {
	ServiceName     string `koanf:"service_name"`
	LogLevel        string `koanf:"log_level"`
	LogFormat       string `koanf:"log_format"`
	EnableTelemetry bool   `koanf:"enable_telemetry"`

	// OTLPEndpoint is the collector address, e.g. localhost:4317.
	OTLPEndpoint string `koanf:"otlp_endpoint"`

	// OTLPProtocol is "grpc" or "http".
	OTLPProtocol string `koanf:"otlp_protocol"`
}

// RateLimitConfig configures per-client API rate limiting.
type RateLimitConfig struct {
	// RPS is the sustained requests-per-second budget per client IP.
	RPS float64 `koanf:"rps"`

	// Burst is the short-term burst allowance.
	Burst int `koanf:"burst"`
}

// Validate checks the configuration for structural errors.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be in range 1-65535, got %d", c.Server.Port)
	}
	if c.Server.ShutdownTimeout <= 0 {
		return fmt.Errorf("server.shutdown_timeout must be positive")
	}
	switch c.VectorStore.Provider {
	case "chromem", "qdrant":
	default:
		return fmt.Errorf("vectorstore.provider must be chromem or qdrant, got %q", c.VectorStore.Provider)
	}
	if c.VectorStore.VectorSize <= 0 {
		return fmt.Errorf("vectorstore.vector_size must be positive")
	}
	if c.Embeddings.BaseURL != "" {
		if _, err := url.Parse(c.Embeddings.BaseURL); err != nil {
			return fmt.Errorf("embeddings.base_url invalid: %w", err)
		}
	}
	if !c.NATS.Embedded && c.NATS.URL == "" {
		return fmt.Errorf("nats.url required when nats.embedded is false")
	}
	if c.Ingest.ChunkSize <= 0 {
		return fmt.Errorf("ingest.chunk_size must be positive")
	}
	if c.Ingest.ChunkOverlap < 0 || c.Ingest.ChunkOverlap >= c.Ingest.ChunkSize {
		return fmt.Errorf("ingest.chunk_overlap must be in range [0, chunk_size)")
	}
	if c.RateLimit.RPS <= 0 {
		return fmt.Errorf("ratelimit.rps must be positive")
	}
	switch c.Observability.OTLPProtocol {
	case "", "grpc", "http":
	default:
		return fmt.Errorf("observability.otlp_protocol must be grpc or http, got %q", c.Observability.OTLPProtocol)
	}
	return nil
}

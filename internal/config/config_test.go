package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestApplyDefaults(t *testing.T) {
	var cfg Config
	applyDefaults(&cfg)

	if cfg.Server.Port != 8787 {
		t.Errorf("Server.Port = %d, want 8787", cfg.Server.Port)
	}
	if cfg.Server.ShutdownTimeout != 10*time.Second {
		t.Errorf("Server.ShutdownTimeout = %v, want 10s", cfg.Server.ShutdownTimeout)
	}
	if cfg.VectorStore.Provider != "chromem" {
		t.Errorf("VectorStore.Provider = %q, want chromem", cfg.VectorStore.Provider)
	}
	if cfg.VectorStore.VectorSize != 384 {
		t.Errorf("VectorStore.VectorSize = %d, want 384", cfg.VectorStore.VectorSize)
	}
	if cfg.Realtime.SendBuffer != 32 {
		t.Errorf("Realtime.SendBuffer = %d, want 32", cfg.Realtime.SendBuffer)
	}
	if cfg.RateLimit.RPS != 20 {
		t.Errorf("RateLimit.RPS = %v, want 20", cfg.RateLimit.RPS)
	}
}

func TestConfigValidate(t *testing.T) {
	valid := func() *Config {
		var cfg Config
		applyDefaults(&cfg)
		return &cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{
			name:    "defaults are valid",
			mutate:  func(*Config) {},
			wantErr: false,
		},
		{
			name:    "port out of range",
			mutate:  func(c *Config) { c.Server.Port = 70000 },
			wantErr: true,
		},
		{
			name:    "unknown vectorstore provider",
			mutate:  func(c *Config) { c.VectorStore.Provider = "pinecone" },
			wantErr: true,
		},
		{
			name:    "missing nats url without embedded",
			mutate:  func(c *Config) { c.NATS.URL = "" },
			wantErr: true,
		},
		{
			name: "embedded nats allows empty url",
			mutate: func(c *Config) {
				c.NATS.URL = ""
				c.NATS.Embedded = true
			},
			wantErr: false,
		},
		{
			name:    "overlap exceeds chunk size",
			mutate:  func(c *Config) { c.Ingest.ChunkOverlap = c.Ingest.ChunkSize },
			wantErr: true,
		},
		{
			name:    "bad otlp protocol",
			mutate:  func(c *Config) { c.Observability.OTLPProtocol = "udp" },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoadWithFile_Permissions(t *testing.T) {
	if os.Getuid() == 0 {
		t.Skip("permission checks are not meaningful as root")
	}

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("server:\n  port: 9999\n"), 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := LoadWithFile(path); err == nil {
		t.Error("LoadWithFile() should reject world-readable config files")
	}
}

func TestLoadWithFile_ReadsValues(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := "server:\n  port: 9999\nvectorstore:\n  provider: qdrant\n"
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadWithFile(path)
	if err != nil {
		t.Fatalf("LoadWithFile() error = %v", err)
	}
	if cfg.Server.Port != 9999 {
		t.Errorf("Server.Port = %d, want 9999", cfg.Server.Port)
	}
	if cfg.VectorStore.Provider != "qdrant" {
		t.Errorf("VectorStore.Provider = %q, want qdrant", cfg.VectorStore.Provider)
	}
	// Untouched fields keep defaults.
	if cfg.Embeddings.Model != "BAAI/bge-small-en-v1.5" {
		t.Errorf("Embeddings.Model = %q, want default", cfg.Embeddings.Model)
	}
}

func TestSecretRedaction(t *testing.T) {
	s := Secret("hunter2")
	if s.String() != "[REDACTED]" {
		t.Errorf("Secret.String() = %q, want [REDACTED]", s.String())
	}
	if s.Value() != "hunter2" {
		t.Errorf("Secret.Value() = %q, want hunter2", s.Value())
	}
	if !s.IsSet() {
		t.Error("Secret.IsSet() = false, want true")
	}

	b, err := s.MarshalJSON()
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != `"[REDACTED]"` {
		t.Errorf("Secret.MarshalJSON() = %s, want \"[REDACTED]\"", b)
	}
}

func TestDurationUnmarshal(t *testing.T) {
	var d Duration
	if err := d.UnmarshalText([]byte("2m30s")); err != nil {
		t.Fatal(err)
	}
	if d.Duration() != 2*time.Minute+30*time.Second {
		t.Errorf("Duration = %v, want 2m30s", d.Duration())
	}

	if err := d.UnmarshalText([]byte("-5s")); err == nil {
		t.Error("UnmarshalText should reject negative durations")
	}
}

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func validConfig() Config {
	return Config{
		Server: ServerConfig{
			Address:           "0.0.0.0",
			Port:              8080,
			MaxChunkSizeBytes: 1 << 20,
			ReadTimeout:       10,
			WriteTimeout:      10,
		},
		Session: SessionConfig{
			IdleTimeout:   120,
			SweepInterval: 30,
		},
		Buffer: BufferConfig{
			AudioWindowSeconds: 30,
			IMUMaxSamples:      2000,
		},
		Gate: GateConfig{
			Delta:           0.2,
			StabilityK:      2,
			StallTimeoutMS:  1500,
			VADThresholdRMS: 250,
			VADMinSilenceMS: 700,
		},
		Recognizer: RecognizerConfig{
			Endpoint:      "http://localhost:9000/v1/complete",
			APIKey:        "test-key",
			Timeout:       30,
			MaxRetries:    3,
			MaxConcurrent: 8,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name        string
		mutate      func(*Config)
		expectError bool
		errorMsg    string
	}{
		{
			name:   "valid configuration",
			mutate: func(*Config) {},
		},
		{
			name:        "invalid port",
			mutate:      func(c *Config) { c.Server.Port = 0 },
			expectError: true,
			errorMsg:    "port",
		},
		{
			name:        "empty address",
			mutate:      func(c *Config) { c.Server.Address = "" },
			expectError: true,
			errorMsg:    "address",
		},
		{
			name:        "tiny chunk limit",
			mutate:      func(c *Config) { c.Server.MaxChunkSizeBytes = 100 },
			expectError: true,
			errorMsg:    "max_chunk_size_bytes",
		},
		{
			name:        "zero idle timeout",
			mutate:      func(c *Config) { c.Session.IdleTimeout = 0 },
			expectError: true,
			errorMsg:    "idle_timeout",
		},
		{
			name:        "zero audio window",
			mutate:      func(c *Config) { c.Buffer.AudioWindowSeconds = 0 },
			expectError: true,
			errorMsg:    "audio_window_seconds",
		},
		{
			name:        "delta out of range",
			mutate:      func(c *Config) { c.Gate.Delta = 1.0 },
			expectError: true,
			errorMsg:    "delta",
		},
		{
			name:        "zero stability K",
			mutate:      func(c *Config) { c.Gate.StabilityK = 0 },
			expectError: true,
			errorMsg:    "stability_k",
		},
		{
			name:   "transcriber section omitted",
			mutate: func(c *Config) { c.Transcriber = TranscriberConfig{} },
		},
		{
			name:        "transcriber endpoint without timeout",
			mutate:      func(c *Config) { c.Transcriber = TranscriberConfig{Endpoint: "http://localhost:9100/v1/transcribe"} },
			expectError: true,
			errorMsg:    "timeout",
		},
		{
			name:        "empty recognizer endpoint",
			mutate:      func(c *Config) { c.Recognizer.Endpoint = "" },
			expectError: true,
			errorMsg:    "endpoint",
		},
		{
			name:        "negative retries",
			mutate:      func(c *Config) { c.Recognizer.MaxRetries = -1 },
			expectError: true,
			errorMsg:    "max_retries",
		},
		{
			name:        "bad log level",
			mutate:      func(c *Config) { c.Logging.Level = "verbose" },
			expectError: true,
			errorMsg:    "level",
		},
		{
			name:        "bad log format",
			mutate:      func(c *Config) { c.Logging.Format = "xml" },
			expectError: true,
			errorMsg:    "format",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)

			err := cfg.Validate()
			if tt.expectError {
				if err == nil {
					t.Fatal("expected validation error, got nil")
				}
				if tt.errorMsg != "" && !strings.Contains(err.Error(), tt.errorMsg) {
					t.Errorf("error %q does not mention %q", err.Error(), tt.errorMsg)
				}
			} else if err != nil {
				t.Fatalf("unexpected validation error: %v", err)
			}
		})
	}
}

func TestLoad(t *testing.T) {
	content := `
server:
  address: "127.0.0.1"
  port: 8080
  max_chunk_size_bytes: 1048576
  read_timeout: 10
  write_timeout: 10
session:
  idle_timeout: 120
  sweep_interval: 30
buffer:
  audio_window_seconds: 30.0
  imu_max_samples: 2000
gate:
  delta: 0.2
  stability_k: 2
  stall_timeout_ms: 1500
  vad_threshold_rms: 250.0
  vad_min_silence_ms: 700
transcriber:
  endpoint: "http://localhost:9100/v1/transcribe"
  api_key: "k"
  timeout: 10
recognizer:
  endpoint: "http://localhost:9000/v1/complete"
  api_key: "${BRIDGE_TEST_API_KEY}"
  timeout: 30
  max_retries: 3
  max_concurrent: 8
logging:
  level: "debug"
  format: "text"
  output: "stdout"
`
	t.Setenv("BRIDGE_TEST_API_KEY", "secret-from-env")

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Errorf("port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.Recognizer.APIKey != "secret-from-env" {
		t.Errorf("api_key = %q, env expansion failed", cfg.Recognizer.APIKey)
	}
	if cfg.Session.GetIdleTimeout() != 120*time.Second {
		t.Errorf("idle timeout = %v, want 2m", cfg.Session.GetIdleTimeout())
	}
	if cfg.Gate.GetStallTimeout() != 1500*time.Millisecond {
		t.Errorf("stall timeout = %v, want 1.5s", cfg.Gate.GetStallTimeout())
	}
	if !cfg.Transcriber.Enabled() || cfg.Transcriber.GetTimeout() != 10*time.Second {
		t.Errorf("transcriber = %+v, want enabled with 10s timeout", cfg.Transcriber)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/config.yaml"); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(path, []byte("server: ["), 0o644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Error("expected error for invalid YAML")
	}
}

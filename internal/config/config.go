package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete service configuration.
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Session     SessionConfig     `yaml:"session"`
	Buffer      BufferConfig      `yaml:"buffer"`
	Gate        GateConfig        `yaml:"gate"`
	Transcriber TranscriberConfig `yaml:"transcriber"`
	Recognizer  RecognizerConfig  `yaml:"recognizer"`
	Logging     LoggingConfig     `yaml:"logging"`
}

// ServerConfig contains HTTP/WebSocket transport configuration.
// Timeouts are in seconds. An empty AuthToken disables bearer auth.
type ServerConfig struct {
	Address           string `yaml:"address"`
	Port              int    `yaml:"port"`
	MaxChunkSizeBytes int    `yaml:"max_chunk_size_bytes"`
	AuthToken         string `yaml:"auth_token"`
	ReadTimeout       int    `yaml:"read_timeout"`
	WriteTimeout      int    `yaml:"write_timeout"`
}

// SessionConfig contains session lifecycle parameters.
type SessionConfig struct {
	IdleTimeout   int `yaml:"idle_timeout"`   // seconds
	SweepInterval int `yaml:"sweep_interval"` // seconds
}

// BufferConfig contains per-session buffer bounds.
type BufferConfig struct {
	AudioWindowSeconds float64 `yaml:"audio_window_seconds"`
	IMUMaxSamples      int     `yaml:"imu_max_samples"`
}

// GateConfig contains transcript stability gate tuning. Delta trades
// finalization latency against reversal noise and must stay a runtime
// parameter.
type GateConfig struct {
	Delta           float64 `yaml:"delta"`
	StabilityK      int     `yaml:"stability_k"`
	StallTimeoutMS  int     `yaml:"stall_timeout_ms"`
	VADThresholdRMS float64 `yaml:"vad_threshold_rms"`
	VADMinSilenceMS int     `yaml:"vad_min_silence_ms"`
}

// TranscriberConfig contains the optional streaming speech service that
// produces partial hypotheses for the stability gate. An empty endpoint
// disables local transcription; transcripts then come only from
// externally observed hypotheses or explicit query text.
type TranscriberConfig struct {
	Endpoint string `yaml:"endpoint"`
	APIKey   string `yaml:"api_key"`
	Timeout  int    `yaml:"timeout"` // seconds
}

// RecognizerConfig contains the external Recognizer client configuration.
type RecognizerConfig struct {
	Endpoint      string `yaml:"endpoint"`
	APIKey        string `yaml:"api_key"`
	Timeout       int    `yaml:"timeout"` // seconds
	MaxRetries    int    `yaml:"max_retries"`
	MaxConcurrent int    `yaml:"max_concurrent"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads and parses the configuration file. Environment variable
// references in the raw file (e.g. ${RECOGNIZER_API_KEY}) are expanded
// before parsing so secrets stay out of the checked-in config.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	expanded := os.ExpandEnv(string(data))

	var config Config
	if err := yaml.Unmarshal([]byte(expanded), &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// Validate performs validation of the complete configuration.
func (c *Config) Validate() error {
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server config: %w", err)
	}
	if err := c.Session.Validate(); err != nil {
		return fmt.Errorf("session config: %w", err)
	}
	if err := c.Buffer.Validate(); err != nil {
		return fmt.Errorf("buffer config: %w", err)
	}
	if err := c.Gate.Validate(); err != nil {
		return fmt.Errorf("gate config: %w", err)
	}
	if err := c.Transcriber.Validate(); err != nil {
		return fmt.Errorf("transcriber config: %w", err)
	}
	if err := c.Recognizer.Validate(); err != nil {
		return fmt.Errorf("recognizer config: %w", err)
	}
	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}
	return nil
}

// Validate validates server configuration.
func (s *ServerConfig) Validate() error {
	if s.Port < 1 || s.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", s.Port)
	}
	if s.Address == "" {
		return fmt.Errorf("address cannot be empty")
	}
	if s.MaxChunkSizeBytes < 1024 {
		return fmt.Errorf("max_chunk_size_bytes must be at least 1024, got %d", s.MaxChunkSizeBytes)
	}
	if s.ReadTimeout < 1 {
		return fmt.Errorf("read_timeout must be at least 1 second, got %d", s.ReadTimeout)
	}
	if s.WriteTimeout < 1 {
		return fmt.Errorf("write_timeout must be at least 1 second, got %d", s.WriteTimeout)
	}
	return nil
}

// Validate validates session lifecycle configuration.
func (s *SessionConfig) Validate() error {
	if s.IdleTimeout < 1 {
		return fmt.Errorf("idle_timeout must be at least 1 second, got %d", s.IdleTimeout)
	}
	if s.SweepInterval < 1 {
		return fmt.Errorf("sweep_interval must be at least 1 second, got %d", s.SweepInterval)
	}
	return nil
}

// Validate validates buffer bounds.
func (b *BufferConfig) Validate() error {
	if b.AudioWindowSeconds <= 0 {
		return fmt.Errorf("audio_window_seconds must be positive, got %f", b.AudioWindowSeconds)
	}
	if b.IMUMaxSamples < 1 {
		return fmt.Errorf("imu_max_samples must be at least 1, got %d", b.IMUMaxSamples)
	}
	return nil
}

// Validate validates gate tuning.
func (g *GateConfig) Validate() error {
	if g.Delta <= 0 || g.Delta >= 1 {
		return fmt.Errorf("delta must be between 0 and 1 (exclusive), got %f", g.Delta)
	}
	if g.StabilityK < 1 {
		return fmt.Errorf("stability_k must be at least 1, got %d", g.StabilityK)
	}
	if g.StallTimeoutMS < 1 {
		return fmt.Errorf("stall_timeout_ms must be at least 1, got %d", g.StallTimeoutMS)
	}
	if g.VADThresholdRMS < 0 {
		return fmt.Errorf("vad_threshold_rms cannot be negative, got %f", g.VADThresholdRMS)
	}
	if g.VADMinSilenceMS < 1 {
		return fmt.Errorf("vad_min_silence_ms must be at least 1, got %d", g.VADMinSilenceMS)
	}
	return nil
}

// Validate validates transcriber configuration. The section is optional;
// timeout is only checked when an endpoint is set.
func (t *TranscriberConfig) Validate() error {
	if t.Endpoint == "" {
		return nil
	}
	if t.Timeout < 1 {
		return fmt.Errorf("timeout must be at least 1 second, got %d", t.Timeout)
	}
	return nil
}

// Validate validates Recognizer client configuration.
func (r *RecognizerConfig) Validate() error {
	if r.Endpoint == "" {
		return fmt.Errorf("endpoint cannot be empty")
	}
	if r.Timeout < 1 {
		return fmt.Errorf("timeout must be at least 1 second, got %d", r.Timeout)
	}
	if r.MaxRetries < 0 {
		return fmt.Errorf("max_retries cannot be negative, got %d", r.MaxRetries)
	}
	if r.MaxConcurrent < 1 {
		return fmt.Errorf("max_concurrent must be at least 1, got %d", r.MaxConcurrent)
	}
	return nil
}

// Validate validates logging configuration.
func (l *LoggingConfig) Validate() error {
	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[l.Level] {
		return fmt.Errorf("level must be one of [debug, info, warn, error], got '%s'", l.Level)
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("format must be 'json' or 'text', got '%s'", l.Format)
	}
	return nil
}

// GetIdleTimeout returns the session idle timeout as a time.Duration.
func (s *SessionConfig) GetIdleTimeout() time.Duration {
	return time.Duration(s.IdleTimeout) * time.Second
}

// GetSweepInterval returns the sweep interval as a time.Duration.
func (s *SessionConfig) GetSweepInterval() time.Duration {
	return time.Duration(s.SweepInterval) * time.Second
}

// GetStallTimeout returns the gate stall timeout as a time.Duration.
func (g *GateConfig) GetStallTimeout() time.Duration {
	return time.Duration(g.StallTimeoutMS) * time.Millisecond
}

// GetVADMinSilence returns the VAD silence window as a time.Duration.
func (g *GateConfig) GetVADMinSilence() time.Duration {
	return time.Duration(g.VADMinSilenceMS) * time.Millisecond
}

// Enabled reports whether a local transcriber is configured.
func (t *TranscriberConfig) Enabled() bool {
	return t.Endpoint != ""
}

// GetTimeout returns the transcriber request timeout as a time.Duration.
func (t *TranscriberConfig) GetTimeout() time.Duration {
	return time.Duration(t.Timeout) * time.Second
}

// GetTimeout returns the Recognizer timeout as a time.Duration.
func (r *RecognizerConfig) GetTimeout() time.Duration {
	return time.Duration(r.Timeout) * time.Second
}

// GetReadTimeout returns the HTTP read timeout as a time.Duration.
func (s *ServerConfig) GetReadTimeout() time.Duration {
	return time.Duration(s.ReadTimeout) * time.Second
}

// GetWriteTimeout returns the HTTP write timeout as a time.Duration.
func (s *ServerConfig) GetWriteTimeout() time.Duration {
	return time.Duration(s.WriteTimeout) * time.Second
}

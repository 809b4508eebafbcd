package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/farmountain/SmartGlass-AI-Agent-sub000/internal/asr"
	"github.com/farmountain/SmartGlass-AI-Agent-sub000/internal/config"
	"github.com/farmountain/SmartGlass-AI-Agent-sub000/internal/ingest"
	"github.com/farmountain/SmartGlass-AI-Agent-sub000/internal/metrics"
	"github.com/farmountain/SmartGlass-AI-Agent-sub000/internal/recognizer"
	"github.com/farmountain/SmartGlass-AI-Agent-sub000/internal/server"
	"github.com/farmountain/SmartGlass-AI-Agent-sub000/internal/session"
	"github.com/farmountain/SmartGlass-AI-Agent-sub000/internal/turn"
)

const (
	defaultConfigPath = "configs/config.yaml"
	serviceName       = "smartglass-bridge"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	// Load .env before config so ${VAR} references in YAML resolve
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "Failed to load .env file: %v\n", err)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := initLogger(cfg.Logging)

	logger.Info("Service starting",
		slog.String("service", serviceName),
		slog.String("version", server.Version),
		slog.String("config_path", *configPath),
	)
	logger.Info("Configuration loaded",
		slog.String("bind_address", cfg.Server.Address),
		slog.Int("port", cfg.Server.Port),
		slog.Int("max_chunk_size_bytes", cfg.Server.MaxChunkSizeBytes),
		slog.Duration("session_idle_timeout", cfg.Session.GetIdleTimeout()),
		slog.Float64("gate_delta", cfg.Gate.Delta),
		slog.Int("gate_stability_k", cfg.Gate.StabilityK),
		slog.String("recognizer_endpoint", cfg.Recognizer.Endpoint),
		slog.String("log_level", cfg.Logging.Level),
	)

	// Initialize Prometheus metrics
	appMetrics := metrics.NewDefault()

	// Session registry with idle eviction
	registry := session.NewRegistry(session.RegistryConfig{
		IdleTimeout:        cfg.Session.GetIdleTimeout(),
		SweepInterval:      cfg.Session.GetSweepInterval(),
		AudioWindowSeconds: cfg.Buffer.AudioWindowSeconds,
		IMUMaxSamples:      cfg.Buffer.IMUMaxSamples,
	}, logger, appMetrics)

	// Optional streaming speech service feeding the stability gate
	var transcriber asr.Transcriber
	if cfg.Transcriber.Enabled() {
		t, err := asr.NewHTTPTranscriber(cfg.Transcriber.Endpoint, cfg.Transcriber.APIKey, cfg.Transcriber.GetTimeout())
		if err != nil {
			logger.Error("Failed to create transcriber", slog.String("error", err.Error()))
			os.Exit(1)
		}
		transcriber = t
		logger.Info("Local transcriber enabled", slog.String("endpoint", cfg.Transcriber.Endpoint))
	}

	// Per-session recognition: stability gate, VAD, transcription pump
	recognition := asr.NewManager(asr.ManagerConfig{
		Gate: asr.GateParams{
			Delta:        cfg.Gate.Delta,
			StabilityK:   cfg.Gate.StabilityK,
			StallTimeout: cfg.Gate.GetStallTimeout(),
		},
		VADThresholdRMS: cfg.Gate.VADThresholdRMS,
		VADMinSilence:   cfg.Gate.GetVADMinSilence(),
		WindowSeconds:   cfg.Buffer.AudioWindowSeconds,
	}, transcriber, logger, appMetrics)
	registry.SetReleaseFunc(recognition.Release)

	// Recognizer HTTP client
	recClient, err := recognizer.NewClient(recognizer.Config{
		Endpoint:      cfg.Recognizer.Endpoint,
		APIKey:        cfg.Recognizer.APIKey,
		Timeout:       cfg.Recognizer.GetTimeout(),
		MaxRetries:    cfg.Recognizer.MaxRetries,
		MaxConcurrent: cfg.Recognizer.MaxConcurrent,
	}, appMetrics)
	if err != nil {
		logger.Error("Failed to create recognizer client", slog.String("error", err.Error()))
		os.Exit(1)
	}

	ingestor := ingest.New(registry, recognition, cfg.Server.MaxChunkSizeBytes, logger, appMetrics)
	orchestrator := turn.New(registry, recognition, recClient, logger, appMetrics)

	apiServer := server.New(cfg.Server, registry, ingestor, orchestrator, recognition, recClient, logger, appMetrics)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(apiServer.Start)
	group.Go(func() error {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		select {
		case sig := <-sigChan:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-groupCtx.Done():
		}
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		return apiServer.Shutdown(shutdownCtx)
	})

	logger.Info("Service started successfully",
		slog.String("address", fmt.Sprintf("%s:%d", cfg.Server.Address, cfg.Server.Port)),
	)

	if err := group.Wait(); err != nil {
		logger.Error("Service error", slog.String("error", err.Error()))
	}

	// Shutdown ordering: transport drained above, then sessions, then
	// in-flight recognizer requests.
	registry.Stop()
	if err := recClient.Close(); err != nil {
		logger.Error("Error closing recognizer client", slog.String("error", err.Error()))
	}

	stats := recClient.GetStats()
	logger.Info("Final recognizer statistics",
		slog.Uint64("total_requests", stats.TotalRequests),
		slog.Uint64("success_requests", stats.SuccessRequests),
		slog.Uint64("failed_requests", stats.FailedRequests),
		slog.Uint64("total_retries", stats.TotalRetries),
	)

	logger.Info("Service stopped")
}

// initLogger creates and configures the structured logger based on configuration
func initLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
	}

	var output *os.File
	switch cfg.Output {
	case "stderr":
		output = os.Stderr
	case "stdout", "":
		output = os.Stdout
	default:
		// Assume it's a file path
		file, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open log file %s: %v, falling back to stdout\n", cfg.Output, err)
			output = os.Stdout
		} else {
			output = file
		}
	}

	var handler slog.Handler
	switch cfg.Format {
	case "json":
		handler = slog.NewJSONHandler(output, opts)
	default:
		handler = slog.NewTextHandler(output, opts)
	}

	return slog.New(handler)
}

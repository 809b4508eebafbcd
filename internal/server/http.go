package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/farmountain/SmartGlass-AI-Agent-sub000/internal/asr"
	"github.com/farmountain/SmartGlass-AI-Agent-sub000/internal/config"
	"github.com/farmountain/SmartGlass-AI-Agent-sub000/internal/ingest"
	"github.com/farmountain/SmartGlass-AI-Agent-sub000/internal/metrics"
	"github.com/farmountain/SmartGlass-AI-Agent-sub000/internal/protocol"
	"github.com/farmountain/SmartGlass-AI-Agent-sub000/internal/recognizer"
	"github.com/farmountain/SmartGlass-AI-Agent-sub000/internal/session"
	"github.com/farmountain/SmartGlass-AI-Agent-sub000/internal/turn"
)

// Version is reported to clients in the session init response.
const Version = "1.0.0"

// RecognizerStats exposes client statistics for the stats endpoint.
type RecognizerStats interface {
	GetStats() recognizer.ClientStats
}

// Server is the HTTP and WebSocket front end.
type Server struct {
	echo         *echo.Echo
	config       config.ServerConfig
	registry     *session.Registry
	ingestor     *ingest.Ingestor
	orchestrator *turn.Orchestrator
	recognition  *asr.Manager
	recStats     RecognizerStats
	logger       *slog.Logger
	metrics      *metrics.Metrics
	startedAt    time.Time
}

// New creates the API server. recStats may be nil when the Recognizer
// implementation does not expose client statistics.
func New(
	cfg config.ServerConfig,
	registry *session.Registry,
	ingestor *ingest.Ingestor,
	orchestrator *turn.Orchestrator,
	recognition *asr.Manager,
	recStats RecognizerStats,
	logger *slog.Logger,
	m *metrics.Metrics,
) *Server {
	s := &Server{
		config:       cfg,
		registry:     registry,
		ingestor:     ingestor,
		orchestrator: orchestrator,
		recognition:  recognition,
		recStats:     recStats,
		logger:       logger,
		metrics:      m,
		startedAt:    time.Now(),
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Server.ReadTimeout = cfg.GetReadTimeout()
	e.Server.WriteTimeout = cfg.GetWriteTimeout()

	e.Use(middleware.Recover())
	e.Use(s.metricsMiddleware)

	e.GET("/healthz", s.handleHealth)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	v1 := e.Group("/v1", s.authMiddleware)
	v1.POST("/session", s.handleSessionInit)
	v1.POST("/session/:id/chunk", s.handleChunk)
	v1.POST("/session/:id/turn", s.handleTurnComplete)
	v1.DELETE("/session/:id", s.handleSessionClose)
	v1.GET("/sessions", s.handleSessions)
	v1.GET("/sessions/:id", s.handleSessionDetail)
	v1.GET("/stats", s.handleStats)
	v1.GET("/stream", s.handleStream)

	s.echo = e
	return s
}

// Start begins serving. Blocks until the listener fails or Shutdown is
// called.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Address, s.config.Port)
	s.logger.Info("http server starting", slog.String("address", addr))
	if err := s.echo.Start(addr); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server failed: %w", err)
	}
	return nil
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// authMiddleware enforces the bearer token when one is configured.
// WebSocket upgrades pass the token the same way.
func (s *Server) authMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if s.config.AuthToken == "" {
			return next(c)
		}
		auth := c.Request().Header.Get("Authorization")
		token, ok := strings.CutPrefix(auth, "Bearer ")
		if !ok || token != s.config.AuthToken {
			return s.writeError(c, fmt.Errorf("missing or invalid bearer token: %w", protocol.ErrUnauthorized))
		}
		return next(c)
	}
}

// metricsMiddleware records request counts and latency per route.
func (s *Server) metricsMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		err := next(c)
		s.metrics.RecordHTTPRequest(
			c.Request().Method,
			c.Path(),
			strconv.Itoa(c.Response().Status),
			time.Since(start).Seconds(),
		)
		return err
	}
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"status":          "ok",
		"version":         Version,
		"uptime_seconds":  int64(time.Since(s.startedAt).Seconds()),
		"active_sessions": s.registry.ActiveCount(),
	})
}

func (s *Server) handleSessionInit(c echo.Context) error {
	var req protocol.SessionInitRequest
	if err := c.Bind(&req); err != nil {
		return s.writeError(c, fmt.Errorf("malformed session init body: %w", protocol.ErrInvalidRequest))
	}

	sess, err := s.registry.Create(&req)
	if err != nil {
		return s.writeError(c, err)
	}
	s.recognition.Attach(context.Background(), sess.ID)

	return c.JSON(http.StatusCreated, &protocol.SessionInitResponse{
		SessionID:         sess.ID,
		ServerVersion:     Version,
		MaxChunkSizeBytes: s.config.MaxChunkSizeBytes,
		Capabilities:      sess.Capabilities,
	})
}

func (s *Server) handleChunk(c echo.Context) error {
	var req protocol.StreamChunkRequest
	if err := c.Bind(&req); err != nil {
		return s.writeError(c, fmt.Errorf("malformed chunk body: %w", protocol.ErrInvalidChunk))
	}
	// The path is authoritative for the session id.
	req.SessionID = c.Param("id")

	resp, err := s.ingestor.Ingest(&req)
	if err != nil {
		return s.writeError(c, err)
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) handleTurnComplete(c echo.Context) error {
	var req protocol.TurnCompleteRequest
	if err := c.Bind(&req); err != nil {
		return s.writeError(c, fmt.Errorf("malformed turn body: %w", protocol.ErrInvalidRequest))
	}
	req.SessionID = c.Param("id")

	resp, err := s.orchestrator.CompleteTurn(c.Request().Context(), &req)
	if err != nil {
		return s.writeError(c, err)
	}
	return c.JSON(http.StatusOK, resp)
}

// handleSessionClose is idempotent on the wire: closing an unknown or
// already-closed session still acknowledges closed.
func (s *Server) handleSessionClose(c echo.Context) error {
	id := c.Param("id")
	if _, err := s.registry.Close(id); err != nil {
		s.logger.Debug("close for unknown session", slog.String("session_id", id))
	}
	return c.JSON(http.StatusOK, &protocol.SessionCloseResponse{
		SessionID: id,
		Closed:    true,
	})
}

func (s *Server) handleSessions(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"sessions": s.registry.Snapshot(),
	})
}

func (s *Server) handleSessionDetail(c echo.Context) error {
	sess, err := s.registry.Get(c.Param("id"))
	if err != nil {
		return s.writeError(c, err)
	}
	return c.JSON(http.StatusOK, sess.Snapshot())
}

func (s *Server) handleStats(c echo.Context) error {
	stats := map[string]any{
		"uptime_seconds":  int64(time.Since(s.startedAt).Seconds()),
		"active_sessions": s.registry.ActiveCount(),
	}
	if s.recStats != nil {
		stats["recognizer"] = s.recStats.GetStats()
	}
	return c.JSON(http.StatusOK, stats)
}

// writeError maps an error chain onto the wire taxonomy and HTTP status.
func (s *Server) writeError(c echo.Context, err error) error {
	code := protocol.CodeFor(err)

	status := http.StatusInternalServerError
	switch code {
	case protocol.CodeSessionNotFound:
		status = http.StatusNotFound
	case protocol.CodeInvalidChunk, protocol.CodeInvalidRequest:
		status = http.StatusBadRequest
	case protocol.CodeBufferOverflow:
		status = http.StatusRequestEntityTooLarge
	case protocol.CodeUnauthorized:
		status = http.StatusUnauthorized
	}

	message := err.Error()
	if code == protocol.CodeInternalError {
		// Do not leak internals to the device.
		s.logger.Error("internal error", slog.String("error", err.Error()))
		message = "internal error"
	}

	return c.JSON(status, &protocol.ErrorResponse{
		Error:   code,
		Message: message,
	})
}

package server

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/farmountain/SmartGlass-AI-Agent-sub000/internal/protocol"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  64 * 1024,
	WriteBufferSize: 64 * 1024,
	// Devices connect from app-embedded webviews and native clients;
	// bearer auth is the trust boundary, not the Origin header.
	CheckOrigin: func(*http.Request) bool { return true },
}

// wsConn wraps one WebSocket connection with a write lock so turn
// results and chunk acks from concurrent handlers never interleave
// mid-frame.
type wsConn struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (w *wsConn) writeJSON(v any) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return w.conn.WriteJSON(v)
}

// handleStream serves the persistent streaming channel. One envelope in,
// one envelope out; chunk and turn envelopes reuse the same handlers as
// the HTTP routes.
func (s *Server) handleStream(c echo.Context) error {
	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}
	ws := &wsConn{conn: conn}
	defer conn.Close()

	remote := conn.RemoteAddr().String()
	s.logger.Info("stream connected", slog.String("remote", remote))
	defer s.logger.Info("stream disconnected", slog.String("remote", remote))

	ctx := c.Request().Context()
	for {
		var env protocol.Envelope
		if err := conn.ReadJSON(&env); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Warn("stream read failed",
					slog.String("remote", remote),
					slog.String("error", err.Error()))
			}
			return nil
		}

		if err := env.Validate(); err != nil {
			if werr := ws.writeJSON(&protocol.Envelope{
				Type: protocol.EnvelopeError,
				WireError: &protocol.ErrorResponse{
					Error:   protocol.CodeInvalidRequest,
					Message: err.Error(),
				},
			}); werr != nil {
				return nil
			}
			continue
		}

		if err := s.dispatchEnvelope(ctx, ws, &env); err != nil {
			return nil
		}
	}
}

// dispatchEnvelope routes one request envelope and writes the reply.
// Returns an error only when the connection is unusable.
func (s *Server) dispatchEnvelope(ctx context.Context, ws *wsConn, env *protocol.Envelope) error {
	switch env.Type {
	case protocol.EnvelopeSessionInit:
		sess, err := s.registry.Create(env.Init)
		if err != nil {
			return ws.writeJSON(errorEnvelope(err))
		}
		s.recognition.Attach(context.Background(), sess.ID)
		return ws.writeJSON(&protocol.Envelope{
			Type: protocol.EnvelopeSessionCreated,
			Created: &protocol.SessionInitResponse{
				SessionID:         sess.ID,
				ServerVersion:     Version,
				MaxChunkSizeBytes: s.config.MaxChunkSizeBytes,
				Capabilities:      sess.Capabilities,
			},
		})

	case protocol.EnvelopeChunk:
		resp, err := s.ingestor.Ingest(env.Chunk)
		if err != nil {
			return ws.writeJSON(errorEnvelope(err))
		}
		return ws.writeJSON(&protocol.Envelope{
			Type:     protocol.EnvelopeChunkAck,
			ChunkAck: resp,
		})

	case protocol.EnvelopeTurnComplete:
		// Turn completion blocks on the Recognizer round trip; run it
		// off the read loop so the device keeps pipelining chunks on
		// this connection while the turn is in flight.
		turn := env.Turn
		go func() {
			out := &protocol.Envelope{Type: protocol.EnvelopeTurnResult}
			resp, err := s.orchestrator.CompleteTurn(ctx, turn)
			if err != nil {
				out = errorEnvelope(err)
			} else {
				out.TurnDone = resp
			}
			if werr := ws.writeJSON(out); werr != nil {
				s.logger.Debug("stream turn result write failed",
					slog.String("session_id", turn.SessionID),
					slog.String("error", werr.Error()))
			}
		}()
		return nil

	case protocol.EnvelopeSessionClose:
		id := env.Close.SessionID
		if _, err := s.registry.Close(id); err != nil {
			s.logger.Debug("stream close for unknown session", slog.String("session_id", id))
		}
		return ws.writeJSON(&protocol.Envelope{
			Type:     protocol.EnvelopeSessionClosed,
			CloseAck: &protocol.SessionCloseResponse{SessionID: id, Closed: true},
		})
	}
	return nil
}

func errorEnvelope(err error) *protocol.Envelope {
	code := protocol.CodeFor(err)
	message := err.Error()
	if code == protocol.CodeInternalError {
		message = "internal error"
	}
	return &protocol.Envelope{
		Type: protocol.EnvelopeError,
		WireError: &protocol.ErrorResponse{
			Error:   code,
			Message: message,
		},
	}
}

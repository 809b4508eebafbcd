package protocol

import (
	"fmt"
)

// Envelope message types for the persistent WebSocket stream. Requests and
// responses share the envelope; the Type field selects which payload
// pointer is populated.
const (
	EnvelopeSessionInit  = "session.init"
	EnvelopeChunk        = "chunk"
	EnvelopeTurnComplete = "turn.complete"
	EnvelopeSessionClose = "session.close"

	EnvelopeSessionCreated = "session.created"
	EnvelopeChunkAck       = "chunk.ack"
	EnvelopeTurnResult     = "turn.result"
	EnvelopeSessionClosed  = "session.closed"
	EnvelopeError          = "error"
)

// Envelope is the framing for WebSocket traffic. Exactly one payload
// field matching Type is set.
type Envelope struct {
	Type string `json:"type"`

	Init  *SessionInitRequest  `json:"init,omitempty"`
	Chunk *StreamChunkRequest  `json:"chunk,omitempty"`
	Turn  *TurnCompleteRequest `json:"turn,omitempty"`
	Close *SessionCloseRequest `json:"close,omitempty"`

	Created   *SessionInitResponse  `json:"created,omitempty"`
	ChunkAck  *StreamChunkResponse  `json:"chunk_ack,omitempty"`
	TurnDone  *TurnCompleteResponse `json:"turn_result,omitempty"`
	CloseAck  *SessionCloseResponse `json:"closed,omitempty"`
	WireError *ErrorResponse        `json:"error,omitempty"`
}

// Validate checks that a request envelope carries the payload its type
// announces.
func (e *Envelope) Validate() error {
	switch e.Type {
	case EnvelopeSessionInit:
		if e.Init == nil {
			return fmt.Errorf("%s envelope missing init payload", e.Type)
		}
	case EnvelopeChunk:
		if e.Chunk == nil {
			return fmt.Errorf("%s envelope missing chunk payload", e.Type)
		}
	case EnvelopeTurnComplete:
		if e.Turn == nil {
			return fmt.Errorf("%s envelope missing turn payload", e.Type)
		}
	case EnvelopeSessionClose:
		if e.Close == nil {
			return fmt.Errorf("%s envelope missing close payload", e.Type)
		}
	default:
		return fmt.Errorf("unknown envelope type %q", e.Type)
	}
	return nil
}

package protocol

import (
	"errors"
)

// ErrorCode is the wire-level error taxonomy. Validation failures map to
// exactly one code; stale sequences are acknowledged as duplicates and
// never surface here.
type ErrorCode string

const (
	CodeSessionNotFound ErrorCode = "session_not_found"
	CodeInvalidChunk    ErrorCode = "invalid_chunk"
	CodeInvalidRequest  ErrorCode = "invalid_request"
	CodeBufferOverflow  ErrorCode = "buffer_overflow"
	CodeUnauthorized    ErrorCode = "unauthorized"
	CodeInternalError   ErrorCode = "internal_error"
)

// Sentinel errors returned by the ingestion and orchestration layers.
// The transport maps them onto ErrorCode values via CodeFor.
var (
	// ErrSessionNotFound covers unknown and closed session ids.
	ErrSessionNotFound = errors.New("session not found")
	// ErrInvalidChunk covers malformed chunk types, metadata and payloads.
	ErrInvalidChunk = errors.New("invalid chunk")
	// ErrInvalidRequest covers malformed non-chunk requests (bad
	// client_version, missing fields).
	ErrInvalidRequest = errors.New("invalid request")
	// ErrBufferOverflow covers single chunks exceeding the configured
	// payload limit. The session buffer is left untouched.
	ErrBufferOverflow = errors.New("buffer overflow")
	// ErrUnauthorized covers failed bearer-token checks.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrTurnCancelled is returned when a session closes while its turn
	// completion is in flight. On the wire a closed session reads as
	// session_not_found.
	ErrTurnCancelled = errors.New("turn cancelled: session closed")
)

// ErrorResponse is the structured error envelope.
type ErrorResponse struct {
	Error   ErrorCode         `json:"error"`
	Message string            `json:"message"`
	Details map[string]string `json:"details,omitempty"`
}

// CodeFor maps an error chain onto its wire code. Unrecognized errors are
// internal: unexpected failures must never leak implementation detail.
func CodeFor(err error) ErrorCode {
	switch {
	case errors.Is(err, ErrSessionNotFound), errors.Is(err, ErrTurnCancelled):
		return CodeSessionNotFound
	case errors.Is(err, ErrInvalidChunk):
		return CodeInvalidChunk
	case errors.Is(err, ErrInvalidRequest):
		return CodeInvalidRequest
	case errors.Is(err, ErrBufferOverflow):
		return CodeBufferOverflow
	case errors.Is(err, ErrUnauthorized):
		return CodeUnauthorized
	default:
		return CodeInternalError
	}
}

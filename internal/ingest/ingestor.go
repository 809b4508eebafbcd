package ingest

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/farmountain/SmartGlass-AI-Agent-sub000/internal/asr"
	"github.com/farmountain/SmartGlass-AI-Agent-sub000/internal/media"
	"github.com/farmountain/SmartGlass-AI-Agent-sub000/internal/metrics"
	"github.com/farmountain/SmartGlass-AI-Agent-sub000/internal/protocol"
	"github.com/farmountain/SmartGlass-AI-Agent-sub000/internal/session"
)

// Ingestor validates sensor chunks and applies them to session buffers.
type Ingestor struct {
	registry     *session.Registry
	recognition  *asr.Manager
	logger       *slog.Logger
	metrics      *metrics.Metrics
	maxChunkSize int
}

// New creates a chunk ingestor.
func New(registry *session.Registry, recognition *asr.Manager, maxChunkSize int, logger *slog.Logger, m *metrics.Metrics) *Ingestor {
	return &Ingestor{
		registry:     registry,
		recognition:  recognition,
		logger:       logger,
		metrics:      m,
		maxChunkSize: maxChunkSize,
	}
}

// Ingest validates one chunk and commits it to the session buffer.
// Duplicates acknowledge without mutating anything; every rejection
// leaves the buffer untouched. Validation never panics the caller: an
// unexpected panic degrades to an internal error for this chunk only.
func (ing *Ingestor) Ingest(req *protocol.StreamChunkRequest) (resp *protocol.StreamChunkResponse, err error) {
	defer func() {
		if r := recover(); r != nil {
			ing.logger.Error("panic during chunk ingestion",
				slog.String("session_id", req.SessionID),
				slog.Int64("sequence", req.SequenceNumber),
				slog.Any("panic", r))
			resp = nil
			err = fmt.Errorf("chunk ingestion panicked: %v", r)
		}
	}()

	sess, err := ing.registry.Get(req.SessionID)
	if err != nil {
		return nil, err
	}
	if sess.State() == session.StateClosed {
		return nil, fmt.Errorf("session %s is closed: %w", req.SessionID, protocol.ErrSessionNotFound)
	}

	if !protocol.IsValidChunkType(req.ChunkType) {
		ing.metrics.RecordChunkRejected(string(req.ChunkType), "unknown_type")
		return nil, fmt.Errorf("unknown chunk type %q: %w", req.ChunkType, protocol.ErrInvalidChunk)
	}

	if sess.IsDuplicate(req.ChunkType, req.SequenceNumber) {
		return ing.duplicateAck(req), nil
	}

	if len(req.Payload) == 0 {
		ing.metrics.RecordChunkRejected(string(req.ChunkType), "empty_payload")
		return nil, fmt.Errorf("empty chunk payload: %w", protocol.ErrInvalidChunk)
	}
	if len(req.Payload) > ing.maxChunkSize {
		ing.metrics.RecordChunkRejected(string(req.ChunkType), "oversize")
		return nil, fmt.Errorf("chunk payload %d bytes exceeds limit %d: %w",
			len(req.Payload), ing.maxChunkSize, protocol.ErrBufferOverflow)
	}

	if err := req.Meta.ValidateFor(req.ChunkType); err != nil {
		ing.metrics.RecordChunkRejected(string(req.ChunkType), "invalid_meta")
		return nil, fmt.Errorf("%v: %w", err, protocol.ErrInvalidChunk)
	}

	// Decode before taking the commit lock so parsing of distinct
	// chunks stays concurrent.
	var (
		audioSamples []int16
		frame        *media.Frame
		imuSamples   []media.IMUSample
	)
	switch req.ChunkType {
	case protocol.ChunkTypeAudio:
		audioSamples, err = media.DecodePCM16(req.Payload, req.Meta.Audio)
	case protocol.ChunkTypeFrame:
		frame, err = media.DecodeFrame(req.Payload, req.Meta.Frame, time.UnixMilli(req.TimestampMS))
	case protocol.ChunkTypeIMU:
		imuSamples, err = media.DecodeIMU(req.Payload, req.Meta.IMU, req.TimestampMS)
	}
	if err != nil {
		ing.metrics.RecordChunkRejected(string(req.ChunkType), "decode_failed")
		return nil, fmt.Errorf("%v: %w", err, protocol.ErrInvalidChunk)
	}

	// The duplicate re-check, buffer mutation and sequence commit must
	// be one atomic span: concurrent retries of the same sequence
	// number would otherwise each pass the check and each append.
	sess.IngestLock()
	defer sess.IngestUnlock()

	if sess.IsDuplicate(req.ChunkType, req.SequenceNumber) {
		return ing.duplicateAck(req), nil
	}

	switch req.ChunkType {
	case protocol.ChunkTypeAudio:
		dropped := sess.Buffer().AppendAudio(audioSamples, req.Meta.Audio.SampleRate)
		if dropped > 0 {
			ing.metrics.RecordAudioDropped(dropped)
			ing.logger.Debug("audio window overflow, dropped oldest samples",
				slog.String("session_id", sess.ID),
				slog.Int("dropped", dropped))
		}
		ing.recognition.FeedAudio(sess.ID, audioSamples, req.Meta.Audio.SampleRate)
	case protocol.ChunkTypeFrame:
		sess.Buffer().SetFrame(frame)
	case protocol.ChunkTypeIMU:
		if dropped := sess.Buffer().AppendIMU(imuSamples); dropped > 0 {
			ing.metrics.RecordIMUDropped(dropped)
		}
	}

	sess.CommitSeq(req.ChunkType, req.SequenceNumber)
	ing.metrics.RecordChunkIngested(string(req.ChunkType), len(req.Payload))

	return &protocol.StreamChunkResponse{
		SessionID:      req.SessionID,
		SequenceNumber: req.SequenceNumber,
		Status:         protocol.StatusAccepted,
	}, nil
}

// duplicateAck acknowledges an already-committed sequence number
// without mutating the session.
func (ing *Ingestor) duplicateAck(req *protocol.StreamChunkRequest) *protocol.StreamChunkResponse {
	ing.metrics.RecordChunkDuplicate(string(req.ChunkType))
	ing.logger.Debug("duplicate chunk acknowledged",
		slog.String("session_id", req.SessionID),
		slog.String("chunk_type", string(req.ChunkType)),
		slog.Int64("sequence", req.SequenceNumber))
	return &protocol.StreamChunkResponse{
		SessionID:      req.SessionID,
		SequenceNumber: req.SequenceNumber,
		Status:         protocol.StatusBuffered,
		Message:        "duplicate sequence number, already ingested",
	}
}

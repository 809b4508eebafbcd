package turn

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/farmountain/SmartGlass-AI-Agent-sub000/internal/asr"
	"github.com/farmountain/SmartGlass-AI-Agent-sub000/internal/media"
	"github.com/farmountain/SmartGlass-AI-Agent-sub000/internal/metrics"
	"github.com/farmountain/SmartGlass-AI-Agent-sub000/internal/protocol"
	"github.com/farmountain/SmartGlass-AI-Agent-sub000/internal/recognizer"
	"github.com/farmountain/SmartGlass-AI-Agent-sub000/internal/session"
)

// Orchestrator completes turns: one Recognizer round trip per request,
// serialized per session by the session's turn lock.
type Orchestrator struct {
	registry    *session.Registry
	recognition *asr.Manager
	recognizer  recognizer.Recognizer
	logger      *slog.Logger
	metrics     *metrics.Metrics
}

// New creates a turn orchestrator.
func New(registry *session.Registry, recognition *asr.Manager, rec recognizer.Recognizer, logger *slog.Logger, m *metrics.Metrics) *Orchestrator {
	return &Orchestrator{
		registry:    registry,
		recognition: recognition,
		recognizer:  rec,
		logger:      logger,
		metrics:     m,
	}
}

// CompleteTurn drains the session's buffers, resolves the transcript
// and asks the Recognizer for a response. Concurrent completions on the
// same session serialize; each sees its own drain window. A session
// close while the Recognizer call is in flight aborts the turn.
func (o *Orchestrator) CompleteTurn(ctx context.Context, req *protocol.TurnCompleteRequest) (*protocol.TurnCompleteResponse, error) {
	if req.SessionID == "" {
		return nil, fmt.Errorf("session_id is required: %w", protocol.ErrInvalidRequest)
	}
	turnID := req.TurnID
	if turnID == "" {
		turnID = uuid.NewString()
	}

	sess, err := o.registry.Get(req.SessionID)
	if err != nil {
		return nil, err
	}

	sess.TurnLock()
	defer sess.TurnUnlock()

	if err := sess.BeginTurn(); err != nil {
		return nil, err
	}
	defer sess.EndTurn()

	startTime := time.Now()

	// Drain is the atomic snapshot boundary: chunks arriving after this
	// point belong to the next turn's window.
	samples, sampleRate := sess.Buffer().DrainAudio()
	imuSamples := sess.Buffer().DrainIMU()
	frame := sess.Buffer().LatestFrame()

	transcript := o.resolveTranscript(sess.ID, req.QueryText)

	var audioWAV []byte
	var audioMS int64
	if len(samples) > 0 {
		audioMS = media.DurationMS(len(samples), sampleRate)
		audioWAV, err = media.EncodeWAV(samples, sampleRate)
		if err != nil {
			o.metrics.RecordTurnFailed()
			return nil, fmt.Errorf("failed to encode turn audio: %w", err)
		}
	}

	recReq := &recognizer.Request{
		SessionID:    sess.ID,
		TurnID:       turnID,
		Transcript:   transcript,
		QueryText:    req.QueryText,
		Language:     req.Language,
		CloudOffload: req.CloudOffload,
		AudioMS:      audioMS,
		Metadata:     req.Metadata,
		AudioWAV:     audioWAV,
		Frame:        frame,
		IMU:          imuSamples,
	}

	// A session close cancels the in-flight Recognizer call.
	callCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(sess.Context(), cancel)
	defer stop()

	recResp, err := o.recognizer.Complete(callCtx, recReq)
	if err != nil {
		if sess.Context().Err() != nil {
			o.metrics.RecordTurnCancelled()
			o.logger.Info("turn aborted by session close",
				slog.String("session_id", sess.ID),
				slog.String("turn_id", turnID))
			return nil, fmt.Errorf("turn %s: %w", turnID, protocol.ErrTurnCancelled)
		}
		o.metrics.RecordTurnFailed()
		return nil, fmt.Errorf("turn %s: %w", turnID, err)
	}

	actions := make([]protocol.Action, 0, len(recResp.Actions))
	for _, a := range recResp.Actions {
		actions = append(actions, protocol.Action{
			Type:       a.Type,
			Parameters: a.Parameters,
			Priority:   protocol.ParsePriority(a.Priority),
		})
	}

	// The Recognizer may refine the transcript; its version wins.
	finalTranscript := recResp.Transcript
	if finalTranscript == "" {
		finalTranscript = transcript
	}

	elapsed := time.Since(startTime)
	o.metrics.RecordTurnCompleted(elapsed.Seconds(), audioMS)
	o.logger.Info("turn completed",
		slog.String("session_id", sess.ID),
		slog.String("turn_id", turnID),
		slog.Int64("audio_ms", audioMS),
		slog.Bool("has_frame", frame != nil),
		slog.Int("imu_samples", len(imuSamples)),
		slog.Int("actions", len(actions)),
		slog.Duration("duration", elapsed))

	return &protocol.TurnCompleteResponse{
		SessionID:  sess.ID,
		TurnID:     turnID,
		Response:   recResp.Response,
		Transcript: finalTranscript,
		Actions:    actions,
		Metadata:   recResp.Metadata,
	}, nil
}

// resolveTranscript picks the turn's transcript. An explicit query text
// bypasses speech entirely; otherwise the gate's final is consumed,
// force-finalizing a pending partial if stability never settled.
func (o *Orchestrator) resolveTranscript(sessionID, queryText string) string {
	if queryText != "" {
		return ""
	}

	gate, ok := o.recognition.GateFor(sessionID)
	if !ok {
		return ""
	}
	if text, ok := gate.TakeFinal(); ok {
		return text
	}
	if gate.ForceFinal(asr.ForceReasonTurnComplete) {
		if text, ok := gate.TakeFinal(); ok {
			return text
		}
	}
	return ""
}

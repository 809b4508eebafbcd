package turn

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/farmountain/SmartGlass-AI-Agent-sub000/internal/asr"
	"github.com/farmountain/SmartGlass-AI-Agent-sub000/internal/media"
	"github.com/farmountain/SmartGlass-AI-Agent-sub000/internal/metrics"
	"github.com/farmountain/SmartGlass-AI-Agent-sub000/internal/protocol"
	"github.com/farmountain/SmartGlass-AI-Agent-sub000/internal/recognizer"
	"github.com/farmountain/SmartGlass-AI-Agent-sub000/internal/session"
)

// fakeRecognizer records requests and returns a canned response.
type fakeRecognizer struct {
	mu       sync.Mutex
	requests []*recognizer.Request
	response *recognizer.Response
	err      error
	block    chan struct{} // when set, Complete waits for ctx or close
}

func (f *fakeRecognizer) Complete(ctx context.Context, req *recognizer.Request) (*recognizer.Response, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()

	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.response, nil
}

func (f *fakeRecognizer) lastRequest() *recognizer.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.requests) == 0 {
		return nil
	}
	return f.requests[len(f.requests)-1]
}

type fixture struct {
	orchestrator *Orchestrator
	registry     *session.Registry
	recognition  *asr.Manager
	recognizer   *fakeRecognizer
}

func newFixture(t *testing.T, rec *fakeRecognizer) *fixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	m := metrics.New(prometheus.NewRegistry())

	registry := session.NewRegistry(session.RegistryConfig{
		IdleTimeout:        time.Hour,
		SweepInterval:      time.Hour,
		AudioWindowSeconds: 30,
		IMUMaxSamples:      2000,
	}, logger, m)
	t.Cleanup(registry.Stop)

	recognition := asr.NewManager(asr.ManagerConfig{
		Gate:          asr.GateParams{Delta: 0.2, StabilityK: 2, StallTimeout: time.Hour},
		VADMinSilence: time.Hour,
		WindowSeconds: 30,
	}, nil, logger, m)
	registry.SetReleaseFunc(recognition.Release)

	return &fixture{
		orchestrator: New(registry, recognition, rec, logger, m),
		registry:     registry,
		recognition:  recognition,
		recognizer:   rec,
	}
}

func (fx *fixture) newSession(t *testing.T) *session.Session {
	t.Helper()
	sess, err := fx.registry.Create(&protocol.SessionInitRequest{
		DeviceID:      "glasses-001",
		ClientVersion: "1.0.0",
	})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	fx.recognition.Attach(context.Background(), sess.ID)
	return sess
}

// TestCompleteTurnFullContext buffers audio, a frame and IMU samples,
// finalizes a transcript and checks the Recognizer sees the whole turn
// context while the drained buffers start empty for the next turn.
func TestCompleteTurnFullContext(t *testing.T) {
	rec := &fakeRecognizer{response: &recognizer.Response{
		Response: "That is a red mug on your desk.",
		Actions: []recognizer.ResponseAction{
			{Type: "display_text", Parameters: map[string]string{"text": "red mug"}, Priority: "high"},
			{Type: "haptic_pulse", Priority: "not-a-priority"},
		},
	}}
	fx := newFixture(t, rec)
	sess := fx.newSession(t)

	sess.Buffer().AppendAudio(make([]int16, 16000), 16000) // one second
	sess.Buffer().SetFrame(&media.Frame{Encoding: "jpeg", Data: []byte{0xFF, 0xD8}, Width: 640, Height: 480})
	sess.Buffer().AppendIMU([]media.IMUSample{{Sensor: "accelerometer", Z: 9.8}})

	// Stable hypotheses: first observation plus two agreements at K=2.
	gate, _ := fx.recognition.GateFor(sess.ID)
	gate.Observe("what am I looking at")
	gate.Observe("what am I looking at")
	gate.Observe("what am I looking at")

	resp, err := fx.orchestrator.CompleteTurn(context.Background(), &protocol.TurnCompleteRequest{
		SessionID: sess.ID,
		TurnID:    "turn-1",
		Language:  "en",
	})
	if err != nil {
		t.Fatalf("CompleteTurn failed: %v", err)
	}

	if resp.Response != "That is a red mug on your desk." {
		t.Errorf("response = %q", resp.Response)
	}
	if resp.Transcript != "what am I looking at" {
		t.Errorf("transcript = %q", resp.Transcript)
	}
	if len(resp.Actions) != 2 {
		t.Fatalf("actions = %+v", resp.Actions)
	}
	if resp.Actions[0].Priority != protocol.PriorityHigh {
		t.Errorf("action priority = %q, want high", resp.Actions[0].Priority)
	}
	if resp.Actions[1].Priority != protocol.PriorityNormal {
		t.Errorf("unknown priority mapped to %q, want normal", resp.Actions[1].Priority)
	}

	sent := rec.lastRequest()
	if sent == nil {
		t.Fatal("recognizer never called")
	}
	if sent.Transcript != "what am I looking at" {
		t.Errorf("sent transcript = %q", sent.Transcript)
	}
	if sent.AudioMS != 1000 {
		t.Errorf("sent audio_ms = %d, want 1000", sent.AudioMS)
	}
	if len(sent.AudioWAV) == 0 {
		t.Error("no WAV audio sent")
	}
	if sent.Frame == nil {
		t.Error("no frame sent")
	}
	if len(sent.IMU) != 1 {
		t.Errorf("sent %d imu samples, want 1", len(sent.IMU))
	}

	// Audio and IMU windows drained; the frame is retained for the next
	// turn's visual context.
	stats := sess.Buffer().Stats()
	if stats.AudioSamples != 0 || stats.IMUSamples != 0 {
		t.Errorf("buffers not drained: %+v", stats)
	}
	if !stats.HasFrame {
		t.Error("frame was discarded by turn completion")
	}
	if sess.State() != session.StateActive {
		t.Errorf("state after turn = %v, want active", sess.State())
	}
}

// TestCompleteTurnQueryTextBypass sends explicit query text and checks
// the gate is left alone.
func TestCompleteTurnQueryTextBypass(t *testing.T) {
	rec := &fakeRecognizer{response: &recognizer.Response{Response: "ok"}}
	fx := newFixture(t, rec)
	sess := fx.newSession(t)

	gate, _ := fx.recognition.GateFor(sess.ID)
	gate.Observe("half finished thought")

	resp, err := fx.orchestrator.CompleteTurn(context.Background(), &protocol.TurnCompleteRequest{
		SessionID: sess.ID,
		QueryText: "battery status",
	})
	if err != nil {
		t.Fatalf("CompleteTurn failed: %v", err)
	}
	if resp.TurnID == "" {
		t.Error("no turn id generated")
	}

	sent := rec.lastRequest()
	if sent.QueryText != "battery status" {
		t.Errorf("query text = %q", sent.QueryText)
	}
	if sent.Transcript != "" {
		t.Errorf("transcript = %q, want empty with query text", sent.Transcript)
	}

	// The pending partial survives for the next turn.
	if pending, ok := gate.Pending(); !ok || pending != "half finished thought" {
		t.Errorf("pending = %q, %v", pending, ok)
	}
}

// TestCompleteTurnForcesPendingPartial completes a turn while the gate
// still holds an unstable partial; the partial is force-finalized.
func TestCompleteTurnForcesPendingPartial(t *testing.T) {
	rec := &fakeRecognizer{response: &recognizer.Response{Response: "ok"}}
	fx := newFixture(t, rec)
	sess := fx.newSession(t)

	gate, _ := fx.recognition.GateFor(sess.ID)
	gate.Observe("take a")
	gate.Observe("take a note about the meeting")

	resp, err := fx.orchestrator.CompleteTurn(context.Background(), &protocol.TurnCompleteRequest{
		SessionID: sess.ID,
		TurnID:    "turn-1",
	})
	if err != nil {
		t.Fatalf("CompleteTurn failed: %v", err)
	}
	if resp.Transcript != "take a note about the meeting" {
		t.Errorf("transcript = %q, want the forced partial", resp.Transcript)
	}
}

func TestCompleteTurnUnknownSession(t *testing.T) {
	fx := newFixture(t, &fakeRecognizer{response: &recognizer.Response{}})

	_, err := fx.orchestrator.CompleteTurn(context.Background(), &protocol.TurnCompleteRequest{
		SessionID: "ghost",
	})
	if !errors.Is(err, protocol.ErrSessionNotFound) {
		t.Errorf("error = %v, want ErrSessionNotFound", err)
	}
}

// TestCompleteTurnAbortsOnClose closes the session while the Recognizer
// call is in flight and checks the turn reports cancellation.
func TestCompleteTurnAbortsOnClose(t *testing.T) {
	rec := &fakeRecognizer{
		response: &recognizer.Response{Response: "never delivered"},
		block:    make(chan struct{}),
	}
	fx := newFixture(t, rec)
	sess := fx.newSession(t)

	errCh := make(chan error, 1)
	go func() {
		_, err := fx.orchestrator.CompleteTurn(context.Background(), &protocol.TurnCompleteRequest{
			SessionID: sess.ID,
			TurnID:    "turn-1",
		})
		errCh <- err
	}()

	// Wait until the Recognizer call is in flight, then close.
	deadline := time.Now().Add(2 * time.Second)
	for rec.lastRequest() == nil && time.Now().Before(deadline) {
		time.Sleep(2 * time.Millisecond)
	}
	if rec.lastRequest() == nil {
		t.Fatal("recognizer call never started")
	}
	if _, err := fx.registry.Close(sess.ID); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	select {
	case err := <-errCh:
		if !errors.Is(err, protocol.ErrTurnCancelled) {
			t.Errorf("error = %v, want ErrTurnCancelled", err)
		}
		if protocol.CodeFor(err) != protocol.CodeSessionNotFound {
			t.Errorf("wire code = %q, want session_not_found", protocol.CodeFor(err))
		}
	case <-time.After(5 * time.Second):
		t.Fatal("turn did not abort after session close")
	}
}

// TestSequentialTurnsSeeOwnWindows runs two turns and checks each drain
// only covers audio buffered since the previous turn.
func TestSequentialTurnsSeeOwnWindows(t *testing.T) {
	rec := &fakeRecognizer{response: &recognizer.Response{Response: "ok"}}
	fx := newFixture(t, rec)
	sess := fx.newSession(t)

	sess.Buffer().AppendAudio(make([]int16, 8000), 16000) // 500ms
	if _, err := fx.orchestrator.CompleteTurn(context.Background(), &protocol.TurnCompleteRequest{
		SessionID: sess.ID, TurnID: "turn-1",
	}); err != nil {
		t.Fatalf("first turn failed: %v", err)
	}
	if got := rec.lastRequest().AudioMS; got != 500 {
		t.Errorf("first turn audio_ms = %d, want 500", got)
	}

	sess.Buffer().AppendAudio(make([]int16, 4000), 16000) // 250ms
	if _, err := fx.orchestrator.CompleteTurn(context.Background(), &protocol.TurnCompleteRequest{
		SessionID: sess.ID, TurnID: "turn-2",
	}); err != nil {
		t.Fatalf("second turn failed: %v", err)
	}
	if got := rec.lastRequest().AudioMS; got != 250 {
		t.Errorf("second turn audio_ms = %d, want 250", got)
	}
}

func TestCompleteTurnRecognizerFailure(t *testing.T) {
	rec := &fakeRecognizer{err: errors.New("upstream exploded")}
	fx := newFixture(t, rec)
	sess := fx.newSession(t)

	_, err := fx.orchestrator.CompleteTurn(context.Background(), &protocol.TurnCompleteRequest{
		SessionID: sess.ID, TurnID: "turn-1",
	})
	if err == nil {
		t.Fatal("expected error from recognizer failure")
	}
	if protocol.CodeFor(err) != protocol.CodeInternalError {
		t.Errorf("wire code = %q, want internal_error", protocol.CodeFor(err))
	}

	// The session stays usable after a failed turn.
	if sess.State() != session.StateActive {
		t.Errorf("state after failed turn = %v, want active", sess.State())
	}
}

package asr

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/farmountain/SmartGlass-AI-Agent-sub000/internal/media"
	"github.com/farmountain/SmartGlass-AI-Agent-sub000/internal/metrics"
)

// Transcriber produces a text hypothesis for an audio window. The
// manager calls it from a single goroutine per session, so stateful
// implementations need no locking of their own.
type Transcriber interface {
	Transcribe(ctx context.Context, samples []int16, sampleRate int) (string, error)
}

// ManagerConfig tunes per-session recognition.
type ManagerConfig struct {
	Gate            GateParams
	VADThresholdRMS float64
	VADMinSilence   time.Duration
	// WindowSeconds bounds the audio window handed to the transcriber.
	WindowSeconds float64
}

type audioBatch struct {
	samples    []int16
	sampleRate int
}

type entry struct {
	gate   *Gate
	vad    *EnergyVAD
	feedCh chan audioBatch
	cancel context.CancelFunc
	done   chan struct{}
}

// Manager owns one stability gate, voice activity detector and
// transcription pump per session. The pump goroutine is the only
// hypothesis writer for its gate, so hypothesis ordering per session is
// fixed by construction.
type Manager struct {
	config      ManagerConfig
	transcriber Transcriber
	logger      *slog.Logger
	metrics     *metrics.Metrics

	mu      sync.Mutex
	entries map[string]*entry
}

// NewManager creates a recognition manager. The transcriber may be nil
// when no local hypothesis source is configured; gates then receive
// hypotheses only through ObserveHypothesis.
func NewManager(config ManagerConfig, transcriber Transcriber, logger *slog.Logger, m *metrics.Metrics) *Manager {
	return &Manager{
		config:      config,
		transcriber: transcriber,
		logger:      logger,
		metrics:     m,
		entries:     make(map[string]*entry),
	}
}

// Attach creates the gate, VAD and pump for a session. The pump stops
// when ctx is cancelled or the session is released.
func (m *Manager) Attach(ctx context.Context, sessionID string) {
	m.mu.Lock()
	if _, exists := m.entries[sessionID]; exists {
		m.mu.Unlock()
		return
	}

	pumpCtx, cancel := context.WithCancel(ctx)
	e := &entry{
		gate:   NewGate(m.config.Gate, m.logger.With(slog.String("session_id", sessionID)), m.metrics),
		vad:    NewEnergyVAD(m.config.VADThresholdRMS, m.config.VADMinSilence),
		feedCh: make(chan audioBatch, 64),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	m.entries[sessionID] = e
	m.mu.Unlock()

	go m.pump(pumpCtx, sessionID, e)
}

// Release stops the session's pump and discards its gate. Idempotent.
func (m *Manager) Release(sessionID string) {
	m.mu.Lock()
	e, ok := m.entries[sessionID]
	if ok {
		delete(m.entries, sessionID)
	}
	m.mu.Unlock()

	if !ok {
		return
	}
	e.cancel()
	<-e.done
}

// GateFor returns the session's gate.
func (m *Manager) GateFor(sessionID string) (*Gate, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[sessionID]
	if !ok {
		return nil, false
	}
	return e.gate, true
}

// FeedAudio hands decoded mono samples to the session's pump. Drops the
// batch when the pump is saturated; hypotheses are advisory and the
// session buffer keeps the authoritative audio.
func (m *Manager) FeedAudio(sessionID string, samples []int16, sampleRate int) {
	m.mu.Lock()
	e, ok := m.entries[sessionID]
	m.mu.Unlock()
	if !ok {
		return
	}

	batch := audioBatch{samples: samples, sampleRate: sampleRate}
	select {
	case e.feedCh <- batch:
	default:
		m.logger.Debug("recognition pump saturated, dropping batch",
			slog.String("session_id", sessionID),
			slog.Int("samples", len(samples)))
	}
}

// ObserveHypothesis feeds an externally produced hypothesis into the
// session's gate, bypassing the transcriber.
func (m *Manager) ObserveHypothesis(sessionID, hypothesis string) (Result, bool) {
	gate, ok := m.GateFor(sessionID)
	if !ok {
		return Result{}, false
	}
	return gate.Observe(hypothesis), true
}

// pump is the per-session recognition loop: accumulate audio, detect
// utterance boundaries, refresh the hypothesis, watch for stalls.
func (m *Manager) pump(ctx context.Context, sessionID string, e *entry) {
	defer close(e.done)

	stallTick := m.config.Gate.StallTimeout / 4
	if stallTick <= 0 {
		stallTick = 250 * time.Millisecond
	}
	ticker := time.NewTicker(stallTick)
	defer ticker.Stop()

	var window []int16
	var sampleRate int

	for {
		select {
		case <-ctx.Done():
			return

		case batch := <-e.feedCh:
			if batch.sampleRate != sampleRate {
				sampleRate = batch.sampleRate
				window = nil
			}
			window = append(window, batch.samples...)
			if max := int(m.config.WindowSeconds * float64(sampleRate)); max > 0 && len(window) > max {
				window = append(window[:0], window[len(window)-max:]...)
			}

			endOfUtterance := e.vad.Process(media.RMS(batch.samples), time.Now())

			if m.transcriber != nil && len(window) > 0 {
				hyp, err := m.transcriber.Transcribe(ctx, window, sampleRate)
				if err != nil {
					m.logger.Warn("transcription failed",
						slog.String("session_id", sessionID),
						slog.String("error", err.Error()))
				} else if hyp != "" {
					e.gate.Observe(hyp)
				}
			}

			if endOfUtterance {
				if e.gate.ForceFinal(ForceReasonSilence) {
					window = nil
				}
			}

		case <-ticker.C:
			if e.gate.CheckStall() {
				window = nil
			}
		}
	}
}

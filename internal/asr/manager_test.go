package asr

import (
	"context"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/farmountain/SmartGlass-AI-Agent-sub000/internal/metrics"
)

// fixedTranscriber always returns the same hypothesis.
type fixedTranscriber struct {
	hypothesis string
	calls      atomic.Int64
}

func (f *fixedTranscriber) Transcribe(_ context.Context, _ []int16, _ int) (string, error) {
	f.calls.Add(1)
	return f.hypothesis, nil
}

func testManager(t *testing.T, tr Transcriber) *Manager {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	m := NewManager(ManagerConfig{
		Gate: GateParams{
			Delta:        0.2,
			StabilityK:   2,
			StallTimeout: time.Hour,
		},
		VADThresholdRMS: 1 << 14, // out of reach for the quiet test audio
		VADMinSilence:   time.Hour,
		WindowSeconds:   30,
	}, tr, logger, metrics.New(prometheus.NewRegistry()))
	return m
}

func TestManagerPumpFinalizes(t *testing.T) {
	tr := &fixedTranscriber{hypothesis: "take a photo"}
	m := testManager(t, tr)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m.Attach(ctx, "sess-1")
	defer m.Release("sess-1")

	// Three identical hypotheses: first observation plus K=2 agreements.
	for i := 0; i < 3; i++ {
		m.FeedAudio("sess-1", make([]int16, 160), 16000)
	}

	gate, ok := m.GateFor("sess-1")
	if !ok {
		t.Fatal("no gate for attached session")
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if text, ok := gate.TakeFinal(); ok {
			if text != "take a photo" {
				t.Fatalf("final = %q", text)
			}
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("gate never finalized; transcriber called %d times", tr.calls.Load())
}

func TestManagerAttachIdempotent(t *testing.T) {
	m := testManager(t, nil)
	ctx := context.Background()

	m.Attach(ctx, "sess-1")
	gate1, _ := m.GateFor("sess-1")
	m.Attach(ctx, "sess-1")
	gate2, _ := m.GateFor("sess-1")

	if gate1 != gate2 {
		t.Error("second Attach replaced the gate")
	}
	m.Release("sess-1")
}

func TestManagerRelease(t *testing.T) {
	m := testManager(t, nil)
	m.Attach(context.Background(), "sess-1")

	m.Release("sess-1")
	if _, ok := m.GateFor("sess-1"); ok {
		t.Error("gate survived release")
	}

	// Idempotent; feeding a released session is a no-op.
	m.Release("sess-1")
	m.FeedAudio("sess-1", make([]int16, 16), 16000)
}

func TestManagerObserveHypothesis(t *testing.T) {
	m := testManager(t, nil)
	m.Attach(context.Background(), "sess-1")
	defer m.Release("sess-1")

	if _, ok := m.ObserveHypothesis("unknown", "hello"); ok {
		t.Error("observed hypothesis for unknown session")
	}

	res, ok := m.ObserveHypothesis("sess-1", "open the navigation")
	if !ok {
		t.Fatal("ObserveHypothesis failed for attached session")
	}
	if res.Final {
		t.Error("first hypothesis finalized")
	}
}

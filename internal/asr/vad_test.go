package asr

import (
	"testing"
	"time"
)

func TestEnergyVADEndOfUtterance(t *testing.T) {
	v := NewEnergyVAD(250, 700*time.Millisecond)
	now := time.Now()

	// Silence before any speech never fires.
	if v.Process(10, now) {
		t.Error("fired on leading silence")
	}

	// Speech.
	if v.Process(800, now.Add(100*time.Millisecond)) {
		t.Error("fired during speech")
	}

	// Silence starts; the window has not elapsed yet.
	if v.Process(50, now.Add(200*time.Millisecond)) {
		t.Error("fired at silence onset")
	}
	if v.Process(40, now.Add(600*time.Millisecond)) {
		t.Error("fired before min silence elapsed")
	}

	// 700ms past silence onset: end of utterance.
	if !v.Process(30, now.Add(950*time.Millisecond)) {
		t.Fatal("did not fire after min silence")
	}

	// Fires once; continued silence stays quiet.
	if v.Process(20, now.Add(2*time.Second)) {
		t.Error("fired twice for one utterance")
	}
}

func TestEnergyVADSpeechResetsSilence(t *testing.T) {
	v := NewEnergyVAD(250, 500*time.Millisecond)
	now := time.Now()

	v.Process(800, now)
	// Silence onset, then speech resumes.
	v.Process(50, now.Add(100*time.Millisecond))
	v.Process(900, now.Add(300*time.Millisecond))

	// Old silence onset must not count toward the new pause.
	if v.Process(50, now.Add(700*time.Millisecond)) {
		t.Error("fired using a stale silence onset")
	}
	if v.Process(50, now.Add(800*time.Millisecond)) {
		t.Error("fired before the new silence window elapsed")
	}
	if !v.Process(50, now.Add(1300*time.Millisecond)) {
		t.Error("did not fire after the new silence window")
	}
}

func TestEnergyVADReset(t *testing.T) {
	v := NewEnergyVAD(250, 100*time.Millisecond)
	now := time.Now()

	v.Process(800, now)
	v.Reset()

	// Reset discards speech state; silence alone cannot fire.
	if v.Process(10, now.Add(time.Second)) {
		t.Error("fired after reset without new speech")
	}
}

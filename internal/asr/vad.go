package asr

import (
	"sync"
	"time"
)

// VAD detects end-of-utterance boundaries in an audio stream.
type VAD interface {
	// Process consumes the RMS energy of one audio chunk and reports
	// whether it marks an end of utterance.
	Process(rms float64, at time.Time) bool
	// Reset clears detector state at utterance boundaries.
	Reset()
}

// EnergyVAD is a threshold detector: an utterance ends when energy
// stays below the threshold for at least MinSilence after speech was
// heard. Simple, but robust enough to gate forced finalization; the
// heavyweight speech detection lives in the transcriber.
type EnergyVAD struct {
	threshold  float64
	minSilence time.Duration

	mu           sync.Mutex
	speechActive bool
	silenceSince time.Time
}

// NewEnergyVAD creates an energy threshold voice activity detector.
func NewEnergyVAD(threshold float64, minSilence time.Duration) *EnergyVAD {
	return &EnergyVAD{
		threshold:  threshold,
		minSilence: minSilence,
	}
}

// Process consumes one chunk's RMS energy. Returns true exactly once
// per utterance, when silence has held for MinSilence after speech.
func (v *EnergyVAD) Process(rms float64, at time.Time) bool {
	v.mu.Lock()
	defer v.mu.Unlock()

	if rms >= v.threshold {
		v.speechActive = true
		v.silenceSince = time.Time{}
		return false
	}

	if !v.speechActive {
		return false
	}

	if v.silenceSince.IsZero() {
		v.silenceSince = at
		return false
	}
	if at.Sub(v.silenceSince) < v.minSilence {
		return false
	}

	// End of utterance. Rearm for the next one.
	v.speechActive = false
	v.silenceSince = time.Time{}
	return true
}

// Reset clears detector state.
func (v *EnergyVAD) Reset() {
	v.mu.Lock()
	v.speechActive = false
	v.silenceSince = time.Time{}
	v.mu.Unlock()
}

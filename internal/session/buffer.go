package session

import (
	"sync"

	"github.com/farmountain/SmartGlass-AI-Agent-sub000/internal/media"
)

// BufferStats is a point-in-time snapshot of buffer occupancy.
type BufferStats struct {
	AudioSamples        int   `json:"audio_samples"`
	AudioSampleRate     int   `json:"audio_sample_rate"`
	AudioDroppedSamples int64 `json:"audio_dropped_samples"`
	HasFrame            bool  `json:"has_frame"`
	IMUSamples          int   `json:"imu_samples"`
	IMUDroppedSamples   int64 `json:"imu_dropped_samples"`
}

// Buffer accumulates sensor data for one session between turns. Audio
// and IMU are bounded sliding windows that drop oldest data under
// pressure; only the newest video frame is retained.
type Buffer struct {
	mu sync.Mutex

	audioWindowSeconds float64
	maxAudioSamples    int // derived from the first audio chunk's sample rate
	audio              []int16
	sampleRate         int
	audioDropped       int64

	frame *media.Frame

	maxIMUSamples int
	imu           []media.IMUSample
	imuDropped    int64
}

// NewBuffer creates a buffer bounded by an audio window in seconds and a
// fixed IMU sample cap. The audio cap in samples is resolved once the
// first audio chunk declares its sample rate.
func NewBuffer(audioWindowSeconds float64, maxIMUSamples int) *Buffer {
	return &Buffer{
		audioWindowSeconds: audioWindowSeconds,
		maxIMUSamples:      maxIMUSamples,
	}
}

// AppendAudio adds decoded mono samples at the given rate. Returns the
// number of oldest samples dropped to stay inside the window. A sample
// rate change mid-session resets the window to the new rate.
func (b *Buffer) AppendAudio(samples []int16, sampleRate int) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	if sampleRate != b.sampleRate {
		b.sampleRate = sampleRate
		b.maxAudioSamples = int(b.audioWindowSeconds * float64(sampleRate))
		if len(b.audio) > 0 {
			b.audioDropped += int64(len(b.audio))
			b.audio = nil
		}
	}

	b.audio = append(b.audio, samples...)

	dropped := 0
	if b.maxAudioSamples > 0 && len(b.audio) > b.maxAudioSamples {
		dropped = len(b.audio) - b.maxAudioSamples
		b.audio = append(b.audio[:0], b.audio[dropped:]...)
		b.audioDropped += int64(dropped)
	}
	return dropped
}

// DrainAudio atomically takes all buffered audio, leaving the audio
// buffer empty. The returned slice is owned by the caller; samples
// appended concurrently with the drain land in the next window.
func (b *Buffer) DrainAudio() ([]int16, int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := b.audio
	b.audio = nil
	return out, b.sampleRate
}

// SetFrame replaces the retained frame. Older frames are discarded; a
// turn always sees the newest visual snapshot.
func (b *Buffer) SetFrame(f *media.Frame) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.frame = f
}

// LatestFrame returns the retained frame without consuming it, or nil.
// The frame survives turn completion so a follow-up query can reference
// the same scene.
func (b *Buffer) LatestFrame() *media.Frame {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.frame
}

// AppendIMU adds decoded inertial samples, returning how many oldest
// samples were dropped to stay inside the cap.
func (b *Buffer) AppendIMU(samples []media.IMUSample) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.imu = append(b.imu, samples...)

	dropped := 0
	if b.maxIMUSamples > 0 && len(b.imu) > b.maxIMUSamples {
		dropped = len(b.imu) - b.maxIMUSamples
		b.imu = append(b.imu[:0], b.imu[dropped:]...)
		b.imuDropped += int64(dropped)
	}
	return dropped
}

// DrainIMU atomically takes all buffered IMU samples.
func (b *Buffer) DrainIMU() []media.IMUSample {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := b.imu
	b.imu = nil
	return out
}

// Clear discards all buffered data including the retained frame.
func (b *Buffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.audio = nil
	b.frame = nil
	b.imu = nil
}

// Stats returns a snapshot of buffer occupancy.
func (b *Buffer) Stats() BufferStats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return BufferStats{
		AudioSamples:        len(b.audio),
		AudioSampleRate:     b.sampleRate,
		AudioDroppedSamples: b.audioDropped,
		HasFrame:            b.frame != nil,
		IMUSamples:          len(b.imu),
		IMUDroppedSamples:   b.imuDropped,
	}
}

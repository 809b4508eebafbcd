package media

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/farmountain/SmartGlass-AI-Agent-sub000/internal/protocol"
)

// DecodePCM16 converts a little-endian PCM-16 payload into samples.
// Stereo payloads are downmixed to mono so the accumulator and the
// Recognizer always see a single channel.
func DecodePCM16(payload []byte, meta *protocol.AudioMeta) ([]int16, error) {
	if meta == nil {
		return nil, fmt.Errorf("audio metadata is required")
	}
	if err := meta.Validate(); err != nil {
		return nil, err
	}
	if len(payload) == 0 {
		return nil, fmt.Errorf("empty audio payload")
	}
	if len(payload)%2 != 0 {
		return nil, fmt.Errorf("pcm payload length must be even, got %d bytes", len(payload))
	}

	frameBytes := 2 * meta.Channels
	if len(payload)%frameBytes != 0 {
		return nil, fmt.Errorf("pcm payload length %d not aligned to %d-channel frames", len(payload), meta.Channels)
	}

	frames := len(payload) / frameBytes
	samples := make([]int16, frames)
	for i := 0; i < frames; i++ {
		off := i * frameBytes
		if meta.Channels == 1 {
			samples[i] = int16(binary.LittleEndian.Uint16(payload[off : off+2]))
			continue
		}
		left := int16(binary.LittleEndian.Uint16(payload[off : off+2]))
		right := int16(binary.LittleEndian.Uint16(payload[off+2 : off+4]))
		samples[i] = int16((int32(left) + int32(right)) / 2)
	}

	return samples, nil
}

// DurationMS reports the duration of a sample run at the given rate.
func DurationMS(sampleCount, sampleRate int) int64 {
	if sampleRate <= 0 {
		return 0
	}
	return int64(sampleCount) * 1000 / int64(sampleRate)
}

// RMS computes the root-mean-square energy of a sample window. Used by
// the default voice-activity detector.
func RMS(samples []int16) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sumSquares float64
	for _, s := range samples {
		sumSquares += float64(s) * float64(s)
	}
	return math.Sqrt(sumSquares / float64(len(samples)))
}

package media

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/farmountain/SmartGlass-AI-Agent-sub000/internal/protocol"
)

// imuSampleBytes is the packed size of one three-axis float32 sample.
const imuSampleBytes = 12

// IMUSample is one decoded three-axis inertial reading.
type IMUSample struct {
	Sensor      string  `json:"sensor"`
	X           float32 `json:"x"`
	Y           float32 `json:"y"`
	Z           float32 `json:"z"`
	TimestampMS int64   `json:"timestamp_ms"`
}

// DecodeIMU unpacks little-endian float32 x/y/z triples. The payload
// length must match the declared sample count exactly.
func DecodeIMU(payload []byte, meta *protocol.IMUMeta, timestampMS int64) ([]IMUSample, error) {
	if meta == nil {
		return nil, fmt.Errorf("imu metadata is required")
	}
	if err := meta.Validate(); err != nil {
		return nil, err
	}

	want := meta.SampleCount * imuSampleBytes
	if len(payload) != want {
		return nil, fmt.Errorf("imu payload size mismatch: declared %d samples need %d bytes, got %d",
			meta.SampleCount, want, len(payload))
	}

	samples := make([]IMUSample, meta.SampleCount)
	for i := 0; i < meta.SampleCount; i++ {
		off := i * imuSampleBytes
		x := math.Float32frombits(binary.LittleEndian.Uint32(payload[off : off+4]))
		y := math.Float32frombits(binary.LittleEndian.Uint32(payload[off+4 : off+8]))
		z := math.Float32frombits(binary.LittleEndian.Uint32(payload[off+8 : off+12]))
		if isInvalid(x) || isInvalid(y) || isInvalid(z) {
			return nil, fmt.Errorf("imu sample %d contains NaN or Inf", i)
		}
		samples[i] = IMUSample{
			Sensor:      meta.Sensor,
			X:           x,
			Y:           y,
			Z:           z,
			TimestampMS: timestampMS,
		}
	}

	return samples, nil
}

func isInvalid(v float32) bool {
	f := float64(v)
	return math.IsNaN(f) || math.IsInf(f, 0)
}

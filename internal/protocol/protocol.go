package protocol

import (
	"fmt"
)

// ChunkType identifies one of the three sensor chunk variants carried by
// StreamChunk messages. The set is closed: dispatch is a switch over the
// tag, never a type hierarchy.
type ChunkType string

const (
	ChunkTypeAudio ChunkType = "audio"
	ChunkTypeFrame ChunkType = "frame"
	ChunkTypeIMU   ChunkType = "imu"
)

// IsValidChunkType checks whether the chunk type is one of the known variants.
func IsValidChunkType(t ChunkType) bool {
	return t == ChunkTypeAudio || t == ChunkTypeFrame || t == ChunkTypeIMU
}

// Audio payload encodings accepted from the bridge device.
const (
	AudioEncodingPCM16 = "pcm_s16le"
)

// Frame payload encodings accepted from the bridge device.
const (
	FrameEncodingJPEG = "jpeg"
	FrameEncodingPNG  = "png"
	FrameEncodingWebP = "webp"
)

// AudioMeta describes an audio chunk payload.
type AudioMeta struct {
	SampleRate int    `json:"sample_rate"`
	Channels   int    `json:"channels"`
	Encoding   string `json:"encoding"`
}

// Validate checks audio metadata against the supported formats.
func (m *AudioMeta) Validate() error {
	if m.SampleRate <= 0 {
		return fmt.Errorf("sample_rate must be positive, got %d", m.SampleRate)
	}
	if m.Channels != 1 && m.Channels != 2 {
		return fmt.Errorf("channels must be 1 or 2, got %d", m.Channels)
	}
	if m.Encoding != AudioEncodingPCM16 {
		return fmt.Errorf("unsupported audio encoding %q", m.Encoding)
	}
	return nil
}

// FrameMeta describes a video frame chunk payload. Only the newest frame
// is retained per session, so IsKeyframe marks frames the client considers
// a complete visual snapshot.
type FrameMeta struct {
	Width      int    `json:"width"`
	Height     int    `json:"height"`
	Encoding   string `json:"encoding"`
	IsKeyframe bool   `json:"is_keyframe"`
}

// Validate checks frame metadata against the supported formats.
func (m *FrameMeta) Validate() error {
	switch m.Encoding {
	case FrameEncodingJPEG, FrameEncodingPNG, FrameEncodingWebP:
	default:
		return fmt.Errorf("unsupported frame encoding %q", m.Encoding)
	}
	if m.Width < 0 || m.Height < 0 {
		return fmt.Errorf("frame dimensions cannot be negative, got %dx%d", m.Width, m.Height)
	}
	return nil
}

// IMU sensor kinds accepted from the bridge device.
const (
	IMUSensorAccel = "accelerometer"
	IMUSensorGyro  = "gyroscope"
	IMUSensorMag   = "magnetometer"
)

// IMUMeta describes an inertial chunk payload: SampleCount packed
// three-axis samples for a single sensor kind.
type IMUMeta struct {
	Sensor      string `json:"sensor"`
	SampleCount int    `json:"sample_count"`
}

// Validate checks IMU metadata against the supported sensor kinds.
func (m *IMUMeta) Validate() error {
	switch m.Sensor {
	case IMUSensorAccel, IMUSensorGyro, IMUSensorMag:
	default:
		return fmt.Errorf("unsupported imu sensor %q", m.Sensor)
	}
	if m.SampleCount <= 0 {
		return fmt.Errorf("sample_count must be positive, got %d", m.SampleCount)
	}
	return nil
}

// ChunkMeta is the per-variant metadata union. Exactly the field matching
// the chunk type must be set.
type ChunkMeta struct {
	Audio *AudioMeta `json:"audio,omitempty"`
	Frame *FrameMeta `json:"frame,omitempty"`
	IMU   *IMUMeta   `json:"imu,omitempty"`
}

// ValidateFor checks that the metadata variant matches the chunk type and
// is itself well formed.
func (m *ChunkMeta) ValidateFor(t ChunkType) error {
	switch t {
	case ChunkTypeAudio:
		if m.Audio == nil {
			return fmt.Errorf("audio chunk requires audio metadata")
		}
		return m.Audio.Validate()
	case ChunkTypeFrame:
		if m.Frame == nil {
			return fmt.Errorf("frame chunk requires frame metadata")
		}
		return m.Frame.Validate()
	case ChunkTypeIMU:
		if m.IMU == nil {
			return fmt.Errorf("imu chunk requires imu metadata")
		}
		return m.IMU.Validate()
	default:
		return fmt.Errorf("unknown chunk type %q", t)
	}
}

// ChunkStatus is the per-chunk acknowledgement status on the wire.
type ChunkStatus string

const (
	// StatusAccepted acknowledges a chunk that mutated the session buffer.
	StatusAccepted ChunkStatus = "accepted"
	// StatusBuffered acknowledges a duplicate or stale chunk without any
	// buffer mutation. Client retries are expected; this is not an error.
	StatusBuffered ChunkStatus = "buffered"
	// StatusError indicates the chunk was rejected.
	StatusError ChunkStatus = "error"
)

// Priority orders actions returned by the Recognizer.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// ParsePriority maps a Recognizer-supplied priority string onto the
// closed set, defaulting to normal for empty or unknown values.
func ParsePriority(s string) Priority {
	switch Priority(s) {
	case PriorityLow, PriorityNormal, PriorityHigh, PriorityUrgent:
		return Priority(s)
	default:
		return PriorityNormal
	}
}

// Capabilities flags which sensor streams a session will carry.
type Capabilities struct {
	Audio bool `json:"audio"`
	Video bool `json:"video"`
	IMU   bool `json:"imu"`
}

// DefaultCapabilities enables all streams; used when SessionInit omits
// the capabilities object.
func DefaultCapabilities() Capabilities {
	return Capabilities{Audio: true, Video: true, IMU: true}
}

// SessionInitRequest opens a new streaming session.
type SessionInitRequest struct {
	DeviceID      string        `json:"device_id"`
	ClientVersion string        `json:"client_version"`
	Capabilities  *Capabilities `json:"capabilities,omitempty"`
}

// SessionInitResponse returns the session handle and server limits.
type SessionInitResponse struct {
	SessionID         string       `json:"session_id"`
	ServerVersion     string       `json:"server_version"`
	MaxChunkSizeBytes int          `json:"max_chunk_size_bytes"`
	Capabilities      Capabilities `json:"capabilities"`
}

// StreamChunkRequest carries one sensor chunk. Payload is base64 on the
// wire (encoding/json []byte semantics).
type StreamChunkRequest struct {
	SessionID      string    `json:"session_id"`
	ChunkType      ChunkType `json:"chunk_type"`
	SequenceNumber int64     `json:"sequence_number"`
	TimestampMS    int64     `json:"timestamp_ms"`
	Payload        []byte    `json:"payload"`
	Meta           ChunkMeta `json:"meta"`
}

// StreamChunkResponse acknowledges one chunk.
type StreamChunkResponse struct {
	SessionID      string      `json:"session_id"`
	SequenceNumber int64       `json:"sequence_number"`
	Status         ChunkStatus `json:"status"`
	Message        string      `json:"message,omitempty"`
}

// TurnCompleteRequest closes the current turn and requests a response.
// QueryText, when present, bypasses the transcript requirement.
type TurnCompleteRequest struct {
	SessionID    string            `json:"session_id"`
	TurnID       string            `json:"turn_id"`
	QueryText    string            `json:"query_text,omitempty"`
	Language     string            `json:"language,omitempty"`
	CloudOffload bool              `json:"cloud_offload,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

// Action is one typed action mapped from the Recognizer output.
type Action struct {
	Type       string            `json:"action_type"`
	Parameters map[string]string `json:"parameters,omitempty"`
	Priority   Priority          `json:"priority"`
}

// TurnCompleteResponse carries the Recognizer response for one turn.
type TurnCompleteResponse struct {
	SessionID  string            `json:"session_id"`
	TurnID     string            `json:"turn_id"`
	Response   string            `json:"response"`
	Transcript string            `json:"transcript,omitempty"`
	Actions    []Action          `json:"actions"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// SessionCloseRequest closes a session. Closing is idempotent.
type SessionCloseRequest struct {
	SessionID string `json:"session_id"`
}

// SessionCloseResponse acknowledges a close.
type SessionCloseResponse struct {
	SessionID string `json:"session_id"`
	Closed    bool   `json:"closed"`
}

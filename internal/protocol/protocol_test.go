package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"
)

func TestIsValidChunkType(t *testing.T) {
	tests := []struct {
		chunkType ChunkType
		valid     bool
	}{
		{ChunkTypeAudio, true},
		{ChunkTypeFrame, true},
		{ChunkTypeIMU, true},
		{ChunkType("video"), false},
		{ChunkType(""), false},
	}

	for _, tt := range tests {
		if got := IsValidChunkType(tt.chunkType); got != tt.valid {
			t.Errorf("IsValidChunkType(%q) = %v, want %v", tt.chunkType, got, tt.valid)
		}
	}
}

func TestChunkMetaValidateFor(t *testing.T) {
	tests := []struct {
		name      string
		chunkType ChunkType
		meta      ChunkMeta
		wantErr   bool
	}{
		{
			name:      "valid audio",
			chunkType: ChunkTypeAudio,
			meta:      ChunkMeta{Audio: &AudioMeta{SampleRate: 16000, Channels: 1, Encoding: AudioEncodingPCM16}},
		},
		{
			name:      "audio missing meta",
			chunkType: ChunkTypeAudio,
			meta:      ChunkMeta{},
			wantErr:   true,
		},
		{
			name:      "audio bad encoding",
			chunkType: ChunkTypeAudio,
			meta:      ChunkMeta{Audio: &AudioMeta{SampleRate: 16000, Channels: 1, Encoding: "opus"}},
			wantErr:   true,
		},
		{
			name:      "audio zero sample rate",
			chunkType: ChunkTypeAudio,
			meta:      ChunkMeta{Audio: &AudioMeta{Channels: 1, Encoding: AudioEncodingPCM16}},
			wantErr:   true,
		},
		{
			name:      "audio three channels",
			chunkType: ChunkTypeAudio,
			meta:      ChunkMeta{Audio: &AudioMeta{SampleRate: 16000, Channels: 3, Encoding: AudioEncodingPCM16}},
			wantErr:   true,
		},
		{
			name:      "valid keyframe",
			chunkType: ChunkTypeFrame,
			meta:      ChunkMeta{Frame: &FrameMeta{Width: 640, Height: 480, Encoding: FrameEncodingJPEG, IsKeyframe: true}},
		},
		{
			name:      "frame bad encoding",
			chunkType: ChunkTypeFrame,
			meta:      ChunkMeta{Frame: &FrameMeta{Encoding: "h264"}},
			wantErr:   true,
		},
		{
			name:      "frame negative dimensions",
			chunkType: ChunkTypeFrame,
			meta:      ChunkMeta{Frame: &FrameMeta{Width: -1, Encoding: FrameEncodingPNG}},
			wantErr:   true,
		},
		{
			name:      "valid imu",
			chunkType: ChunkTypeIMU,
			meta:      ChunkMeta{IMU: &IMUMeta{Sensor: IMUSensorAccel, SampleCount: 4}},
		},
		{
			name:      "imu unknown sensor",
			chunkType: ChunkTypeIMU,
			meta:      ChunkMeta{IMU: &IMUMeta{Sensor: "barometer", SampleCount: 1}},
			wantErr:   true,
		},
		{
			name:      "imu zero samples",
			chunkType: ChunkTypeIMU,
			meta:      ChunkMeta{IMU: &IMUMeta{Sensor: IMUSensorGyro}},
			wantErr:   true,
		},
		{
			name:      "mismatched variant",
			chunkType: ChunkTypeFrame,
			meta:      ChunkMeta{Audio: &AudioMeta{SampleRate: 16000, Channels: 1, Encoding: AudioEncodingPCM16}},
			wantErr:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.meta.ValidateFor(tt.chunkType)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateFor(%q) error = %v, wantErr %v", tt.chunkType, err, tt.wantErr)
			}
		})
	}
}

func TestParsePriority(t *testing.T) {
	tests := []struct {
		input string
		want  Priority
	}{
		{"low", PriorityLow},
		{"normal", PriorityNormal},
		{"high", PriorityHigh},
		{"urgent", PriorityUrgent},
		{"", PriorityNormal},
		{"critical", PriorityNormal},
	}

	for _, tt := range tests {
		if got := ParsePriority(tt.input); got != tt.want {
			t.Errorf("ParsePriority(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestCodeFor(t *testing.T) {
	tests := []struct {
		err  error
		want ErrorCode
	}{
		{ErrSessionNotFound, CodeSessionNotFound},
		{fmt.Errorf("lookup: %w", ErrSessionNotFound), CodeSessionNotFound},
		{ErrTurnCancelled, CodeSessionNotFound},
		{ErrInvalidChunk, CodeInvalidChunk},
		{ErrInvalidRequest, CodeInvalidRequest},
		{ErrBufferOverflow, CodeBufferOverflow},
		{ErrUnauthorized, CodeUnauthorized},
		{errors.New("disk on fire"), CodeInternalError},
	}

	for _, tt := range tests {
		if got := CodeFor(tt.err); got != tt.want {
			t.Errorf("CodeFor(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}

func TestEnvelopeValidate(t *testing.T) {
	tests := []struct {
		name     string
		envelope Envelope
		wantErr  bool
	}{
		{
			name:     "init with payload",
			envelope: Envelope{Type: EnvelopeSessionInit, Init: &SessionInitRequest{DeviceID: "dev-1"}},
		},
		{
			name:     "chunk missing payload",
			envelope: Envelope{Type: EnvelopeChunk},
			wantErr:  true,
		},
		{
			name:     "turn with payload",
			envelope: Envelope{Type: EnvelopeTurnComplete, Turn: &TurnCompleteRequest{SessionID: "s"}},
		},
		{
			name:     "close missing payload",
			envelope: Envelope{Type: EnvelopeSessionClose},
			wantErr:  true,
		},
		{
			name:     "unknown type",
			envelope: Envelope{Type: "ping"},
			wantErr:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.envelope.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestStreamChunkRequestPayloadBase64(t *testing.T) {
	req := StreamChunkRequest{
		SessionID:      "s-1",
		ChunkType:      ChunkTypeAudio,
		SequenceNumber: 3,
		Payload:        []byte{0x01, 0x02, 0x03},
	}

	data, err := json.Marshal(req)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	var decoded StreamChunkRequest
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}

	if len(decoded.Payload) != 3 || decoded.Payload[0] != 0x01 {
		t.Errorf("payload did not survive the wire: %v", decoded.Payload)
	}
}

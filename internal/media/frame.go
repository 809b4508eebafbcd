package media

import (
	"bytes"
	"fmt"
	"image"
	"time"

	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/webp"

	"github.com/farmountain/SmartGlass-AI-Agent-sub000/internal/protocol"
)

// Frame is a decoded visual snapshot. Data keeps the original encoded
// bytes (the Recognizer accepts compressed images); Width/Height come
// from the decoded image header rather than the client metadata.
type Frame struct {
	Width      int
	Height     int
	Encoding   string
	IsKeyframe bool
	Data       []byte
	CapturedAt time.Time
}

// formatNames maps image registry format names onto wire encodings.
var formatNames = map[string]string{
	"jpeg": protocol.FrameEncodingJPEG,
	"png":  protocol.FrameEncodingPNG,
	"webp": protocol.FrameEncodingWebP,
}

// DecodeFrame validates an encoded frame payload against its declared
// metadata. The payload must actually decode as the declared format; a
// declared/actual mismatch is rejected the same as a corrupt payload.
func DecodeFrame(payload []byte, meta *protocol.FrameMeta, capturedAt time.Time) (*Frame, error) {
	if meta == nil {
		return nil, fmt.Errorf("frame metadata is required")
	}
	if err := meta.Validate(); err != nil {
		return nil, err
	}
	if len(payload) == 0 {
		return nil, fmt.Errorf("empty frame payload")
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s frame: %w", meta.Encoding, err)
	}

	wireFormat, ok := formatNames[format]
	if !ok {
		return nil, fmt.Errorf("decoded unexpected image format %q", format)
	}
	if wireFormat != meta.Encoding {
		return nil, fmt.Errorf("declared encoding %q but payload is %q", meta.Encoding, wireFormat)
	}

	return &Frame{
		Width:      cfg.Width,
		Height:     cfg.Height,
		Encoding:   wireFormat,
		IsKeyframe: meta.IsKeyframe,
		Data:       payload,
		CapturedAt: capturedAt,
	}, nil
}

package asr

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/farmountain/SmartGlass-AI-Agent-sub000/internal/media"
)

// HTTPTranscriber posts the accumulated audio window to an external
// speech service and returns its text hypothesis. Called from a single
// pump goroutine per session, so no locking is needed.
type HTTPTranscriber struct {
	endpoint string
	apiKey   string
	client   *http.Client
}

// NewHTTPTranscriber creates a transcriber for the given endpoint.
func NewHTTPTranscriber(endpoint, apiKey string, timeout time.Duration) (*HTTPTranscriber, error) {
	if endpoint == "" {
		return nil, fmt.Errorf("transcriber endpoint cannot be empty")
	}
	return &HTTPTranscriber{
		endpoint: endpoint,
		apiKey:   apiKey,
		client:   &http.Client{Timeout: timeout},
	}, nil
}

type transcribeResponse struct {
	Text string `json:"text"`
}

// Transcribe sends the window as WAV and returns the hypothesis text.
// An empty window yields an empty hypothesis without a request.
func (t *HTTPTranscriber) Transcribe(ctx context.Context, samples []int16, sampleRate int) (string, error) {
	if len(samples) == 0 {
		return "", nil
	}

	wav, err := media.EncodeWAV(samples, sampleRate)
	if err != nil {
		return "", fmt.Errorf("failed to encode audio window: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, bytes.NewReader(wav))
	if err != nil {
		return "", fmt.Errorf("failed to create transcribe request: %w", err)
	}
	req.Header.Set("Content-Type", "audio/wav")
	if t.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+t.apiKey)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("transcribe request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("transcriber returned status %d: %s", resp.StatusCode, string(body))
	}

	var decoded transcribeResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", fmt.Errorf("failed to decode transcriber response: %w", err)
	}
	return decoded.Text, nil
}

package recognizer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"mime/multipart"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/farmountain/SmartGlass-AI-Agent-sub000/internal/media"
	"github.com/farmountain/SmartGlass-AI-Agent-sub000/internal/metrics"
)

// Recognizer produces a response for a completed turn. The orchestrator
// depends on this interface; tests substitute fakes for the HTTP client.
type Recognizer interface {
	Complete(ctx context.Context, request *Request) (*Response, error)
}

// Request carries the full turn context.
type Request struct {
	SessionID    string            `json:"session_id"`
	TurnID       string            `json:"turn_id"`
	Transcript   string            `json:"transcript,omitempty"`
	QueryText    string            `json:"query_text,omitempty"`
	Language     string            `json:"language,omitempty"`
	CloudOffload bool              `json:"cloud_offload"`
	AudioMS      int64             `json:"audio_ms"`
	Metadata     map[string]string `json:"metadata,omitempty"`

	// Binary context, sent as multipart files rather than JSON.
	AudioWAV []byte            `json:"-"`
	Frame    *media.Frame      `json:"-"`
	IMU      []media.IMUSample `json:"imu,omitempty"`
}

// ResponseAction is one action suggested by the Recognizer.
type ResponseAction struct {
	Type       string            `json:"action_type"`
	Parameters map[string]string `json:"parameters,omitempty"`
	Priority   string            `json:"priority,omitempty"`
}

// Response is the Recognizer's answer for one turn.
type Response struct {
	Response   string            `json:"response"`
	Transcript string            `json:"transcript,omitempty"`
	Actions    []ResponseAction  `json:"actions,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// Config contains Recognizer client configuration.
type Config struct {
	Endpoint      string
	APIKey        string
	Timeout       time.Duration
	MaxRetries    int
	MaxConcurrent int
}

// ClientStats is a snapshot of client activity.
type ClientStats struct {
	TotalRequests   uint64        `json:"total_requests"`
	SuccessRequests uint64        `json:"success_requests"`
	FailedRequests  uint64        `json:"failed_requests"`
	SuccessRate     float64       `json:"success_rate"`
	TotalRetries    uint64        `json:"total_retries"`
	AvgResponseTime time.Duration `json:"avg_response_time"`
	ActiveRequests  int           `json:"active_requests"`
}

// Client is the HTTP Recognizer client with retry, backoff and a
// concurrency cap.
type Client struct {
	config     Config
	httpClient *http.Client
	metrics    *metrics.Metrics
	semaphore  chan struct{}

	mu              sync.RWMutex
	totalRequests   uint64
	successRequests uint64
	failedRequests  uint64
	totalRetries    uint64
	avgResponseTime time.Duration
}

// NewClient creates a Recognizer HTTP client.
func NewClient(config Config, m *metrics.Metrics) (*Client, error) {
	if config.Endpoint == "" {
		return nil, fmt.Errorf("endpoint cannot be empty")
	}
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}
	if config.MaxRetries < 0 {
		config.MaxRetries = 3
	}
	if config.MaxConcurrent <= 0 {
		config.MaxConcurrent = 10
	}

	httpClient := &http.Client{
		Timeout: config.Timeout,
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	return &Client{
		config:     config,
		httpClient: httpClient,
		metrics:    m,
		semaphore:  make(chan struct{}, config.MaxConcurrent),
	}, nil
}

// Complete sends the turn context and returns the Recognizer response.
// Retries transient failures with exponential backoff; honors ctx
// cancellation between attempts and during requests.
func (c *Client) Complete(ctx context.Context, request *Request) (*Response, error) {
	select {
	case c.semaphore <- struct{}{}:
		defer func() { <-c.semaphore }()
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	startTime := time.Now()
	c.incrementTotalRequests()

	var lastErr error
	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if attempt > 0 {
			c.incrementTotalRetries()
			c.metrics.RecordRecognizerRetry()

			backoff := time.Duration(math.Pow(2, float64(attempt-1))) * time.Second
			if backoff > 30*time.Second {
				backoff = 30 * time.Second
			}
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		response, err := c.doRequest(ctx, request)
		if err == nil {
			elapsed := time.Since(startTime)
			c.incrementSuccessRequests()
			c.updateAvgResponseTime(elapsed)
			c.metrics.RecordRecognizerSuccess(elapsed.Seconds())
			return response, nil
		}

		lastErr = err
		if !isRetryableError(err) {
			break
		}
	}

	c.incrementFailedRequests()
	c.metrics.RecordRecognizerFailure(time.Since(startTime).Seconds())
	return nil, fmt.Errorf("recognizer request failed after %d attempts: %w", c.config.MaxRetries+1, lastErr)
}

// doRequest performs a single HTTP request to the Recognizer API.
func (c *Client) doRequest(ctx context.Context, request *Request) (*Response, error) {
	body, contentType, err := c.createMultipartRequest(request)
	if err != nil {
		return nil, fmt.Errorf("failed to create multipart request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.Endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}

	httpReq.Header.Set("Content-Type", contentType)
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("User-Agent", "SmartGlass-Bridge/1.0")
	if c.config.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("HTTP error %d: %s", resp.StatusCode, string(respBody))
	}

	var out Response
	if err := json.Unmarshal(respBody, &out); err != nil {
		return nil, fmt.Errorf("failed to parse response JSON: %w", err)
	}
	return &out, nil
}

// createMultipartRequest builds the multipart body: a JSON "turn" part
// with the structured context plus optional audio and frame file parts.
func (c *Client) createMultipartRequest(request *Request) (io.Reader, string, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	turnJSON, err := json.Marshal(request)
	if err != nil {
		return nil, "", fmt.Errorf("failed to marshal turn context: %w", err)
	}
	if err := writer.WriteField("turn", string(turnJSON)); err != nil {
		return nil, "", fmt.Errorf("failed to write turn field: %w", err)
	}

	if len(request.AudioWAV) > 0 {
		fileWriter, err := writer.CreateFormFile("audio", request.TurnID+".wav")
		if err != nil {
			return nil, "", fmt.Errorf("failed to create audio part: %w", err)
		}
		if _, err := fileWriter.Write(request.AudioWAV); err != nil {
			return nil, "", fmt.Errorf("failed to write audio data: %w", err)
		}
	}

	if request.Frame != nil && len(request.Frame.Data) > 0 {
		filename := fmt.Sprintf("%s.%s", request.TurnID, request.Frame.Encoding)
		fileWriter, err := writer.CreateFormFile("frame", filename)
		if err != nil {
			return nil, "", fmt.Errorf("failed to create frame part: %w", err)
		}
		if _, err := fileWriter.Write(request.Frame.Data); err != nil {
			return nil, "", fmt.Errorf("failed to write frame data: %w", err)
		}
	}

	if err := writer.Close(); err != nil {
		return nil, "", fmt.Errorf("failed to close multipart writer: %w", err)
	}

	return &buf, writer.FormDataContentType(), nil
}

// isRetryableError reports whether an attempt is worth retrying:
// timeouts, connection failures, 5xx and rate limiting.
func isRetryableError(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	errStr := err.Error()
	if strings.Contains(errStr, "HTTP error 5") {
		return true
	}
	if strings.Contains(errStr, "HTTP error 429") {
		return true
	}
	if strings.Contains(errStr, "connection") ||
		strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "refused") {
		return true
	}
	return false
}

func (c *Client) incrementTotalRequests() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.totalRequests++
}

func (c *Client) incrementSuccessRequests() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.successRequests++
}

func (c *Client) incrementFailedRequests() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failedRequests++
}

func (c *Client) incrementTotalRetries() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.totalRetries++
}

func (c *Client) updateAvgResponseTime(responseTime time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.avgResponseTime == 0 {
		c.avgResponseTime = responseTime
	} else {
		c.avgResponseTime = (c.avgResponseTime + responseTime) / 2
	}
}

// GetStats returns current client statistics.
func (c *Client) GetStats() ClientStats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	successRate := float64(0)
	if c.totalRequests > 0 {
		successRate = float64(c.successRequests) / float64(c.totalRequests) * 100
	}

	return ClientStats{
		TotalRequests:   c.totalRequests,
		SuccessRequests: c.successRequests,
		FailedRequests:  c.failedRequests,
		SuccessRate:     successRate,
		TotalRetries:    c.totalRetries,
		AvgResponseTime: c.avgResponseTime,
		ActiveRequests:  len(c.semaphore),
	}
}

// Close waits for all active requests to complete.
func (c *Client) Close() error {
	for i := 0; i < c.config.MaxConcurrent; i++ {
		c.semaphore <- struct{}{}
	}
	return nil
}

package detection

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"perch/internal/frames"
)

// ClientConfig carries the inference endpoint and the acceptance rules the
// client applies to raw model output.
type ClientConfig struct {
	Endpoint            string
	ConfidenceThreshold float64
	ClassID             int
	MinAreaRatio        float64
	ROI                 ROI
	Timeout             time.Duration
}

// Client posts frames to an HTTP inference sidecar and filters the response
// down to accepted bird detections. It implements Detector.
type Client struct {
	cfg        ClientConfig
	httpClient *http.Client
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient overrides the underlying HTTP client, primarily for tests.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		if httpClient != nil {
			c.httpClient = httpClient
		}
	}
}

// NewClient builds a detection client for the given sidecar endpoint.
func NewClient(cfg ClientConfig, opts ...Option) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	c := &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type detectRequest struct {
	Image               string  `json:"image"`
	ConfidenceThreshold float64 `json:"confidence_threshold"`
}

type detectResponse struct {
	Detections []Detection `json:"detections"`
}

// Detect sends the frame to the sidecar and returns the detections that pass
// the configured filters. A transport or decode failure is returned to the
// caller; the session engine treats it as "no detection" for that tick.
func (c *Client) Detect(ctx context.Context, frame *frames.Frame) ([]Detection, error) {
	if frame == nil || len(frame.Data) == 0 {
		return nil, fmt.Errorf("detect: empty frame")
	}
	payload, err := json.Marshal(detectRequest{
		Image:               base64.StdEncoding.EncodeToString(frame.Data),
		ConfidenceThreshold: c.cfg.ConfidenceThreshold,
	})
	if err != nil {
		return nil, fmt.Errorf("detect: encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("detect: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("detect: call %s: %w", c.cfg.Endpoint, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("detect: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("detect: %s returned status %d", c.cfg.Endpoint, resp.StatusCode)
	}

	var decoded detectResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, fmt.Errorf("detect: decode response: %w", err)
	}

	return Filter(decoded.Detections, c.cfg.ROI, frame.Width, frame.Height, c.cfg.ClassID, c.cfg.ConfidenceThreshold, c.cfg.MinAreaRatio), nil
}

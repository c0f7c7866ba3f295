// Package mlclient talks to the remote image analysis service.
package mlclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"
)

// ErrNotConfigured is returned when no service URL is configured.
var ErrNotConfigured = errors.New("ml service not configured")

const maxErrorBody = 4 << 10

// ImageAnalysis is the service's verdict on one image.
type ImageAnalysis struct {
	Summary   string   `json:"summary"`
	Objects   []string `json:"objects"`
	CrimeType string   `json:"crimeType"`
}

// Health is the service's health report.
type Health struct {
	Status string `json:"status"`
	Model  string `json:"model,omitempty"`
}

// Client calls the ML service over HTTP. Every call is bounded by the
// configured timeout.
type Client struct {
	client  *http.Client
	baseURL string
	logger  *slog.Logger
}

// New creates a client for baseURL. An empty baseURL yields a client whose
// calls fail with ErrNotConfigured.
func New(baseURL string, timeout time.Duration, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	transport := &http.Transport{
		MaxIdleConns:        20,
		MaxIdleConnsPerHost: 20,
		IdleConnTimeout:     90 * time.Second,
	}
	return &Client{
		client: &http.Client{
			Transport: transport,
			Timeout:   timeout,
		},
		baseURL: strings.TrimRight(baseURL, "/"),
		logger:  logger,
	}
}

// Configured reports whether a service URL is set.
func (c *Client) Configured() bool {
	return c.baseURL != ""
}

// AnalyzeImage uploads an image to /analyze as multipart field "image".
func (c *Client) AnalyzeImage(ctx context.Context, filename, contentType string, image io.Reader) (*ImageAnalysis, error) {
	if !c.Configured() {
		return nil, ErrNotConfigured
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="image"; filename=%q`, filename))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	header.Set("Content-Type", contentType)
	part, err := mw.CreatePart(header)
	if err != nil {
		return nil, fmt.Errorf("create form part: %w", err)
	}
	if _, err := io.Copy(part, image); err != nil {
		return nil, fmt.Errorf("copy image: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("close form: %w", err)
	}

	var out ImageAnalysis
	if err := c.do(ctx, http.MethodPost, "/analyze", &body, mw.FormDataContentType(), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Health queries /health.
func (c *Client) Health(ctx context.Context) (*Health, error) {
	if !c.Configured() {
		return nil, ErrNotConfigured
	}
	var out Health
	if err := c.do(ctx, http.MethodGet, "/health", nil, "", &out); err != nil {
		return nil, err
	}
	if out.Status == "" {
		out.Status = "ok"
	}
	return &out, nil
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, contentType string, out any) error {
	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("ml service unreachable: %w", err)
	}
	defer resp.Body.Close()

	c.logger.DebugContext(ctx, "ml request completed",
		"method", method,
		"path", path,
		"status", resp.StatusCode,
		"latency_ms", time.Since(start).Milliseconds(),
	)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return statusError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode ml response: %w", err)
	}
	return nil
}

func statusError(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	var payload struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	msg := strings.TrimSpace(string(data))
	if json.Unmarshal(data, &payload) == nil {
		if payload.Error != "" {
			msg = payload.Error
		} else if payload.Message != "" {
			msg = payload.Message
		}
	}
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}
	return fmt.Errorf("ml service returned %d: %s", resp.StatusCode, msg)
}

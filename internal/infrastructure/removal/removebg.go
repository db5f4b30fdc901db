// Package removal implements the background-removal transform on the
// remove.bg HTTP API.
package removal

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/cutout/backend/internal/application/pipeline"
	"github.com/cutout/backend/internal/infrastructure/config"
	"go.uber.org/zap"
)

var _ pipeline.BackgroundRemover = (*RemoveBgClient)(nil)

// RemoveBgClient submits images to remove.bg and returns the cut-out PNG.
type RemoveBgClient struct {
	apiKey     string
	endpoint   string
	httpClient *http.Client
	logger     *zap.Logger
}

// RemoveBgClientOption is a functional option for configuring RemoveBgClient
type RemoveBgClientOption func(*RemoveBgClient)

// WithHTTPClient sets a custom HTTP client (tests)
func WithHTTPClient(client *http.Client) RemoveBgClientOption {
	return func(c *RemoveBgClient) {
		c.httpClient = client
	}
}

// WithEndpoint overrides the service endpoint (tests)
func WithEndpoint(endpoint string) RemoveBgClientOption {
	return func(c *RemoveBgClient) {
		c.endpoint = endpoint
	}
}

// WithLogger sets a custom logger for RemoveBgClient
func WithLogger(logger *zap.Logger) RemoveBgClientOption {
	return func(c *RemoveBgClient) {
		c.logger = logger
	}
}

// NewRemoveBgClient creates a new RemoveBgClient from configuration
func NewRemoveBgClient(cfg *config.RemoveBgConfig, opts ...RemoveBgClientOption) (*RemoveBgClient, error) {
	if cfg == nil || !cfg.Configured() {
		return nil, errors.New("remove.bg API key is required")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 45 * time.Second
	}

	client := &RemoveBgClient{
		apiKey:     cfg.APIKey,
		endpoint:   cfg.Endpoint,
		httpClient: &http.Client{Timeout: timeout},
		logger:     zap.NewNop(),
	}

	for _, opt := range opts {
		opt(client)
	}

	return client, nil
}

// errorResponse is the service's JSON error envelope
type errorResponse struct {
	Errors []struct {
		Title  string `json:"title"`
		Detail string `json:"detail"`
	} `json:"errors"`
}

// RemoveBackground submits the image as a multipart upload and returns the
// raw response bytes. A non-200 status becomes a *pipeline.TransformError
// carrying the service's own error detail when it provided one.
func (c *RemoveBgClient) RemoveBackground(ctx context.Context, image []byte) ([]byte, error) {
	if len(image) == 0 {
		return nil, errors.New("image bytes are required")
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	part, err := writer.CreateFormFile("image_file", "image")
	if err != nil {
		return nil, fmt.Errorf("failed to create multipart form: %w", err)
	}
	if _, err := part.Write(image); err != nil {
		return nil, fmt.Errorf("failed to write image bytes: %w", err)
	}
	if err := writer.WriteField("size", "auto"); err != nil {
		return nil, fmt.Errorf("failed to write form field: %w", err)
	}
	if err := writer.WriteField("format", "png"); err != nil {
		return nil, fmt.Errorf("failed to write form field: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to finalize multipart form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, &body)
	if err != nil {
		return nil, fmt.Errorf("failed to create transform request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("X-Api-Key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call transform service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail := extractErrorDetail(resp.Body)
		c.logger.Warn("Transform service rejected image",
			zap.Int("status", resp.StatusCode),
			zap.String("detail", detail))
		return nil, &pipeline.TransformError{StatusCode: resp.StatusCode, Detail: detail}
	}

	output, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read transform response: %w", err)
	}

	c.logger.Debug("Background removed",
		zap.Int("input_bytes", len(image)),
		zap.Int("output_bytes", len(output)))
	return output, nil
}

// extractErrorDetail pulls the human-readable message out of the service's
// JSON error envelope. Unparseable bodies yield an empty detail.
func extractErrorDetail(r io.Reader) string {
	raw, err := io.ReadAll(io.LimitReader(r, 4096))
	if err != nil {
		return ""
	}
	var envelope errorResponse
	if err := json.Unmarshal(raw, &envelope); err != nil || len(envelope.Errors) == 0 {
		return ""
	}
	first := envelope.Errors[0]
	if first.Detail != "" {
		return first.Detail
	}
	return first.Title
}

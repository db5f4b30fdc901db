// Package messaging implements the WhatsApp send and media-fetch
// capabilities on the Twilio REST API.
package messaging

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cutout/backend/internal/application/bot"
	"github.com/cutout/backend/internal/application/pipeline"
	"github.com/cutout/backend/internal/infrastructure/config"
	"go.uber.org/zap"
)

var (
	_ bot.Messenger         = (*TwilioClient)(nil)
	_ pipeline.MediaFetcher = (*TwilioClient)(nil)
)

// TwilioClient sends WhatsApp messages and fetches inbound media. The same
// account credentials authenticate both directions: outbound sends use the
// Messages endpoint and inbound media URLs require basic auth on GET.
type TwilioClient struct {
	accountSID string
	authToken  string
	from       string
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

// TwilioClientOption is a functional option for configuring TwilioClient
type TwilioClientOption func(*TwilioClient)

// WithHTTPClient sets a custom HTTP client (tests)
func WithHTTPClient(client *http.Client) TwilioClientOption {
	return func(c *TwilioClient) {
		c.httpClient = client
	}
}

// WithBaseURL overrides the Twilio API base URL (tests)
func WithBaseURL(baseURL string) TwilioClientOption {
	return func(c *TwilioClient) {
		c.baseURL = strings.TrimRight(baseURL, "/")
	}
}

// WithLogger sets a custom logger for TwilioClient
func WithLogger(logger *zap.Logger) TwilioClientOption {
	return func(c *TwilioClient) {
		c.logger = logger
	}
}

// NewTwilioClient creates a new TwilioClient from configuration
func NewTwilioClient(cfg *config.TwilioConfig, opts ...TwilioClientOption) (*TwilioClient, error) {
	if cfg == nil || !cfg.Configured() {
		return nil, errors.New("twilio credentials are required")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	client := &TwilioClient{
		accountSID: cfg.AccountSID,
		authToken:  cfg.AuthToken,
		from:       cfg.WhatsAppFrom,
		baseURL:    "https://api.twilio.com",
		httpClient: &http.Client{Timeout: timeout},
		logger:     zap.NewNop(),
	}

	for _, opt := range opts {
		opt(client)
	}

	return client, nil
}

// SendText sends a plain text WhatsApp message
func (c *TwilioClient) SendText(ctx context.Context, to, body string) error {
	return c.send(ctx, to, body, "")
}

// SendDocument sends a message carrying a media URL. Twilio delivers the
// linked asset as an attachment; the body becomes its caption.
func (c *TwilioClient) SendDocument(ctx context.Context, to, body, mediaURL string) error {
	if mediaURL == "" {
		return errors.New("media URL is required")
	}
	return c.send(ctx, to, body, mediaURL)
}

func (c *TwilioClient) send(ctx context.Context, to, body, mediaURL string) error {
	if to == "" {
		return errors.New("recipient is required")
	}

	form := url.Values{}
	form.Set("From", c.from)
	form.Set("To", whatsAppAddress(to))
	form.Set("Body", body)
	if mediaURL != "" {
		form.Set("MediaUrl", mediaURL)
	}

	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json", c.baseURL, c.accountSID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("failed to create send request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(c.accountSID, c.authToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		c.logger.Warn("Message send rejected",
			zap.Int("status", resp.StatusCode),
			zap.String("to", to))
		return fmt.Errorf("message send failed with status %d: %s", resp.StatusCode, strings.TrimSpace(string(detail)))
	}

	c.logger.Debug("Message sent",
		zap.String("to", to),
		zap.Bool("has_media", mediaURL != ""))
	return nil
}

// FetchMedia downloads an inbound media asset. Twilio media URLs require
// the account credentials on GET. Reads are capped at maxBytes; one byte
// over returns pipeline.ErrMediaTooLarge without buffering the rest.
func (c *TwilioClient) FetchMedia(ctx context.Context, mediaURL string, maxBytes int64) ([]byte, error) {
	if mediaURL == "" {
		return nil, errors.New("media URL is required")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, mediaURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create media request: %w", err)
	}
	req.SetBasicAuth(c.accountSID, c.authToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch media: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("media fetch failed with status %d", resp.StatusCode)
	}

	// The advertised length is checked first so oversized assets are
	// rejected before a single body byte is read.
	if resp.ContentLength > maxBytes {
		return nil, pipeline.ErrMediaTooLarge
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read media body: %w", err)
	}
	if int64(len(data)) > maxBytes {
		return nil, pipeline.ErrMediaTooLarge
	}

	c.logger.Debug("Media fetched", zap.Int("bytes", len(data)))
	return data, nil
}

// whatsAppAddress prefixes the channel scheme expected by the Messages API.
// Canonical phone identities are stored without it.
func whatsAppAddress(phone string) string {
	if strings.HasPrefix(phone, "whatsapp:") {
		return phone
	}
	return "whatsapp:" + phone
}

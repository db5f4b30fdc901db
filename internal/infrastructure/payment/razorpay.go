// Package payment implements the Razorpay order-creation client used by the
// checkout flow.
package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cutout/backend/internal/infrastructure/config"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Order is a created payment order as returned by the gateway
type Order struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"` // minor units (paise)
	Currency string `json:"currency"`
	Receipt  string `json:"receipt"`
	Status   string `json:"status"`
}

// OrderCreator creates payment orders. Satisfied by RazorpayClient; the HTTP
// handler depends on this interface so tests can stub the gateway.
type OrderCreator interface {
	CreateOrder(ctx context.Context, phone string) (*Order, error)
	KeyID() string
}

// RazorpayClient creates premium-upgrade orders at a fixed price.
type RazorpayClient struct {
	keyID      string
	keySecret  string
	endpoint   string
	amount     int64 // premium price in minor units
	currency   string
	httpClient *http.Client
	logger     *zap.Logger
}

var _ OrderCreator = (*RazorpayClient)(nil)

// RazorpayClientOption is a functional option for configuring RazorpayClient
type RazorpayClientOption func(*RazorpayClient)

// WithHTTPClient sets a custom HTTP client (tests)
func WithHTTPClient(client *http.Client) RazorpayClientOption {
	return func(c *RazorpayClient) {
		c.httpClient = client
	}
}

// WithEndpoint overrides the gateway endpoint (tests)
func WithEndpoint(endpoint string) RazorpayClientOption {
	return func(c *RazorpayClient) {
		c.endpoint = strings.TrimRight(endpoint, "/")
	}
}

// WithLogger sets a custom logger for RazorpayClient
func WithLogger(logger *zap.Logger) RazorpayClientOption {
	return func(c *RazorpayClient) {
		c.logger = logger
	}
}

// NewRazorpayClient creates a new RazorpayClient from configuration. The
// configured premium price is converted to minor units once, here, so a
// malformed price fails at startup rather than at first checkout.
func NewRazorpayClient(cfg *config.RazorpayConfig, opts ...RazorpayClientOption) (*RazorpayClient, error) {
	if cfg == nil || !cfg.Configured() {
		return nil, errors.New("razorpay credentials are required")
	}

	price, err := decimal.NewFromString(cfg.PremiumPrice)
	if err != nil {
		return nil, fmt.Errorf("invalid premium price %q: %w", cfg.PremiumPrice, err)
	}
	if price.IsNegative() || price.IsZero() {
		return nil, fmt.Errorf("premium price must be positive, got %s", cfg.PremiumPrice)
	}
	minorUnits := price.Mul(decimal.NewFromInt(100))
	if !minorUnits.IsInteger() {
		return nil, fmt.Errorf("premium price %s has sub-minor-unit precision", cfg.PremiumPrice)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	client := &RazorpayClient{
		keyID:      cfg.KeyID,
		keySecret:  cfg.KeySecret,
		endpoint:   strings.TrimRight(cfg.Endpoint, "/"),
		amount:     minorUnits.IntPart(),
		currency:   cfg.Currency,
		httpClient: &http.Client{Timeout: timeout},
		logger:     zap.NewNop(),
	}

	for _, opt := range opts {
		opt(client)
	}

	return client, nil
}

// KeyID returns the public key identifier embedded in checkout pages
func (c *RazorpayClient) KeyID() string {
	return c.keyID
}

// CreateOrder creates a premium-upgrade order for the given phone. The
// receipt is a fresh UUID so gateway-side reconciliation can always tell
// orders apart; the phone travels in the order notes.
func (c *RazorpayClient) CreateOrder(ctx context.Context, phone string) (*Order, error) {
	payload := map[string]any{
		"amount":   c.amount,
		"currency": c.currency,
		"receipt":  uuid.NewString(),
		"notes": map[string]string{
			"phone": phone,
		},
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode order payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/orders", bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("failed to create order request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(c.keyID, c.keySecret)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call payment gateway: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read gateway response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		c.logger.Warn("Order creation rejected",
			zap.Int("status", resp.StatusCode),
			zap.String("phone", phone))
		return nil, fmt.Errorf("order creation failed with status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var order Order
	if err := json.Unmarshal(body, &order); err != nil {
		return nil, fmt.Errorf("failed to decode order response: %w", err)
	}

	c.logger.Info("Payment order created",
		zap.String("order_id", order.ID),
		zap.Int64("amount", order.Amount),
		zap.String("currency", order.Currency))
	return &order, nil
}

package payment

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/cutout/backend/internal/infrastructure/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRazorpayConfig(endpoint string) *config.RazorpayConfig {
	return &config.RazorpayConfig{
		KeyID:        "rzp_test_key",
		KeySecret:    "rzp_test_secret",
		Endpoint:     endpoint,
		CheckoutURL:  "https://pay.example/checkout",
		PremiumPrice: "499.00",
		Currency:     "INR",
		Timeout:      5 * time.Second,
	}
}

func TestCreateOrder(t *testing.T) {
	var payload map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/orders", r.URL.Path)
		user, pass, ok := r.BasicAuth()
		require.True(t, ok)
		assert.Equal(t, "rzp_test_key", user)
		assert.Equal(t, "rzp_test_secret", pass)

		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))

		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":       "order_ABC",
			"amount":   49900,
			"currency": "INR",
			"receipt":  payload["receipt"],
			"status":   "created",
		})
	}))
	defer srv.Close()

	client, err := NewRazorpayClient(testRazorpayConfig(srv.URL))
	require.NoError(t, err)

	order, err := client.CreateOrder(context.Background(), "+14155550100")
	assert.NoError(t, err)
	assert.Equal(t, "order_ABC", order.ID)
	assert.Equal(t, int64(49900), order.Amount)
	assert.Equal(t, "INR", order.Currency)

	// Price converted to minor units exactly
	assert.Equal(t, float64(49900), payload["amount"])
	notes := payload["notes"].(map[string]any)
	assert.Equal(t, "+14155550100", notes["phone"])
	assert.NotEmpty(t, payload["receipt"])
}

func TestCreateOrderDistinctReceipts(t *testing.T) {
	receipts := make(map[string]bool)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]any
		_ = json.NewDecoder(r.Body).Decode(&payload)
		receipts[payload["receipt"].(string)] = true
		_ = json.NewEncoder(w).Encode(map[string]any{"id": "order_X"})
	}))
	defer srv.Close()

	client, err := NewRazorpayClient(testRazorpayConfig(srv.URL))
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err := client.CreateOrder(context.Background(), "+14155550100")
		require.NoError(t, err)
	}
	assert.Len(t, receipts, 3)
}

func TestCreateOrderGatewayError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"description":"bad key"}}`))
	}))
	defer srv.Close()

	client, err := NewRazorpayClient(testRazorpayConfig(srv.URL))
	require.NoError(t, err)

	_, err = client.CreateOrder(context.Background(), "+14155550100")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "401")
}

func TestNewRazorpayClientValidation(t *testing.T) {
	t.Run("missing credentials", func(t *testing.T) {
		_, err := NewRazorpayClient(&config.RazorpayConfig{})
		assert.Error(t, err)
	})

	t.Run("malformed price", func(t *testing.T) {
		cfg := testRazorpayConfig("http://unused")
		cfg.PremiumPrice = "lots"
		_, err := NewRazorpayClient(cfg)
		assert.Error(t, err)
	})

	t.Run("zero price", func(t *testing.T) {
		cfg := testRazorpayConfig("http://unused")
		cfg.PremiumPrice = "0"
		_, err := NewRazorpayClient(cfg)
		assert.Error(t, err)
	})

	t.Run("sub paisa precision", func(t *testing.T) {
		cfg := testRazorpayConfig("http://unused")
		cfg.PremiumPrice = "499.005"
		_, err := NewRazorpayClient(cfg)
		assert.Error(t, err)
	})
}

func TestKeyID(t *testing.T) {
	client, err := NewRazorpayClient(testRazorpayConfig("http://unused"))
	require.NoError(t, err)
	assert.Equal(t, "rzp_test_key", client.KeyID())
}

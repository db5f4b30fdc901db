package handler

import (
	"context"
	"errors"
	"net/http"

	apppayment "github.com/cutout/backend/internal/application/payment"
	"github.com/cutout/backend/internal/domain/subscriber"
	infrapayment "github.com/cutout/backend/internal/infrastructure/payment"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// AssertionVerifier authenticates a checkout callback and applies the upgrade
type AssertionVerifier interface {
	Verify(ctx context.Context, assertion apppayment.Assertion) error
}

// PaymentHandler serves the checkout page's API: order creation before the
// payment and assertion verification after it.
type PaymentHandler struct {
	orders   infrapayment.OrderCreator
	verifier AssertionVerifier
	logger   *zap.Logger
}

// NewPaymentHandler creates a new PaymentHandler
func NewPaymentHandler(orders infrapayment.OrderCreator, verifier AssertionVerifier, logger *zap.Logger) *PaymentHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PaymentHandler{
		orders:   orders,
		verifier: verifier,
		logger:   logger,
	}
}

// RegisterRoutes registers payment routes on the versioned API group
func (h *PaymentHandler) RegisterRoutes(rg *gin.RouterGroup) {
	payment := rg.Group("/payment")
	{
		payment.POST("/order", h.CreateOrder)
		payment.POST("/verify", h.Verify)
	}
}

// createOrderRequest is the order creation payload from the checkout page
type createOrderRequest struct {
	Phone string `json:"phone" binding:"required"`
}

// orderData is the order creation response payload
type orderData struct {
	OrderID  string `json:"order_id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	KeyID    string `json:"key_id"`
}

// CreateOrder creates a premium-upgrade order for the checkout page
func (h *PaymentHandler) CreateOrder(c *gin.Context) {
	if h.orders == nil {
		respondError(c, http.StatusServiceUnavailable, "PAYMENT_NOT_CONFIGURED", "Payment capability is not configured")
		return
	}

	var req createOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}

	phone, err := subscriber.NormalizePhone(req.Phone)
	if err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_PHONE", "Phone number is not in a recognized format")
		return
	}

	order, err := h.orders.CreateOrder(c.Request.Context(), phone)
	if err != nil {
		h.logger.Error("Order creation failed", zap.String("phone", phone), zap.Error(err))
		respondError(c, http.StatusBadGateway, "ORDER_FAILED", "Could not create payment order")
		return
	}

	respondOK(c, orderData{
		OrderID:  order.ID,
		Amount:   order.Amount,
		Currency: order.Currency,
		KeyID:    h.orders.KeyID(),
	})
}

// Verify authenticates a payment assertion and upgrades the subscriber.
// Invalid signatures and unknown subscribers map to distinct client errors;
// everything else is a store failure.
func (h *PaymentHandler) Verify(c *gin.Context) {
	if h.verifier == nil {
		respondError(c, http.StatusServiceUnavailable, "PAYMENT_NOT_CONFIGURED", "Payment capability is not configured")
		return
	}

	var assertion apppayment.Assertion
	if err := c.ShouldBindJSON(&assertion); err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}

	err := h.verifier.Verify(c.Request.Context(), assertion)
	switch {
	case err == nil:
		respondOK(c, gin.H{"upgraded": true})
	case errors.Is(err, apppayment.ErrInvalidSignature):
		respondError(c, http.StatusUnauthorized, "INVALID_SIGNATURE", "Payment signature verification failed")
	case errors.Is(err, apppayment.ErrUserNotFound):
		respondError(c, http.StatusNotFound, "USER_NOT_FOUND", "No subscriber record for the given phone")
	default:
		h.logger.Error("Payment verification failed", zap.Error(err))
		respondError(c, http.StatusInternalServerError, "VERIFY_FAILED", "Could not verify payment")
	}
}

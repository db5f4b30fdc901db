package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	apppayment "github.com/cutout/backend/internal/application/payment"
	infrapayment "github.com/cutout/backend/internal/infrastructure/payment"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockOrderCreator is a mock implementation of infrapayment.OrderCreator
type MockOrderCreator struct {
	mock.Mock
}

func (m *MockOrderCreator) CreateOrder(ctx context.Context, phone string) (*infrapayment.Order, error) {
	args := m.Called(ctx, phone)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*infrapayment.Order), args.Error(1)
}

func (m *MockOrderCreator) KeyID() string {
	return "rzp_test_key"
}

// MockVerifier is a mock implementation of AssertionVerifier
type MockVerifier struct {
	mock.Mock
}

func (m *MockVerifier) Verify(ctx context.Context, assertion apppayment.Assertion) error {
	args := m.Called(ctx, assertion)
	return args.Error(0)
}

func newPaymentEngine(o infrapayment.OrderCreator, v AssertionVerifier) *gin.Engine {
	gin.SetMode(gin.TestMode)
	engine := gin.New()
	api := engine.Group("/api/v1")
	NewPaymentHandler(o, v, nil).RegisterRoutes(api)
	return engine
}

func postJSON(engine *gin.Engine, path string, body any) *httptest.ResponseRecorder {
	raw, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	return w
}

func decodeResponse(t *testing.T, w *httptest.ResponseRecorder) APIResponse {
	t.Helper()
	var resp APIResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestCreateOrderEndpoint(t *testing.T) {
	orders := new(MockOrderCreator)
	engine := newPaymentEngine(orders, new(MockVerifier))

	orders.On("CreateOrder", mock.Anything, "+14155550100").Return(&infrapayment.Order{
		ID:       "order_ABC",
		Amount:   49900,
		Currency: "INR",
	}, nil)

	w := postJSON(engine, "/api/v1/payment/order", gin.H{"phone": "14155550100"})
	assert.Equal(t, http.StatusOK, w.Code)

	resp := decodeResponse(t, w)
	assert.True(t, resp.Success)
	data := resp.Data.(map[string]any)
	assert.Equal(t, "order_ABC", data["order_id"])
	assert.Equal(t, "rzp_test_key", data["key_id"])
}

func TestCreateOrderInvalidPhone(t *testing.T) {
	engine := newPaymentEngine(new(MockOrderCreator), new(MockVerifier))

	w := postJSON(engine, "/api/v1/payment/order", gin.H{"phone": "garbage"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INVALID_PHONE", decodeResponse(t, w).Error.Code)
}

func TestCreateOrderMissingPhone(t *testing.T) {
	engine := newPaymentEngine(new(MockOrderCreator), new(MockVerifier))

	w := postJSON(engine, "/api/v1/payment/order", gin.H{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCreateOrderGatewayFailure(t *testing.T) {
	orders := new(MockOrderCreator)
	engine := newPaymentEngine(orders, new(MockVerifier))

	orders.On("CreateOrder", mock.Anything, mock.Anything).Return(nil, errors.New("gateway down"))

	w := postJSON(engine, "/api/v1/payment/order", gin.H{"phone": "+14155550100"})
	assert.Equal(t, http.StatusBadGateway, w.Code)
}

func TestCreateOrderNotConfigured(t *testing.T) {
	engine := newPaymentEngine(nil, new(MockVerifier))

	w := postJSON(engine, "/api/v1/payment/order", gin.H{"phone": "+14155550100"})
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func validAssertionBody() gin.H {
	return gin.H{
		"razorpay_order_id":   "order_ABC",
		"razorpay_payment_id": "pay_XYZ",
		"razorpay_signature":  "deadbeef",
		"phone":               "+14155550100",
	}
}

func TestVerifyEndpointSuccess(t *testing.T) {
	verifier := new(MockVerifier)
	engine := newPaymentEngine(new(MockOrderCreator), verifier)

	verifier.On("Verify", mock.Anything, apppayment.Assertion{
		OrderRef:   "order_ABC",
		PaymentRef: "pay_XYZ",
		Signature:  "deadbeef",
		Phone:      "+14155550100",
	}).Return(nil)

	w := postJSON(engine, "/api/v1/payment/verify", validAssertionBody())
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, decodeResponse(t, w).Success)
	verifier.AssertExpectations(t)
}

func TestVerifyEndpointInvalidSignature(t *testing.T) {
	verifier := new(MockVerifier)
	engine := newPaymentEngine(new(MockOrderCreator), verifier)

	verifier.On("Verify", mock.Anything, mock.Anything).Return(apppayment.ErrInvalidSignature)

	w := postJSON(engine, "/api/v1/payment/verify", validAssertionBody())
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "INVALID_SIGNATURE", decodeResponse(t, w).Error.Code)
}

func TestVerifyEndpointUnknownUser(t *testing.T) {
	verifier := new(MockVerifier)
	engine := newPaymentEngine(new(MockOrderCreator), verifier)

	verifier.On("Verify", mock.Anything, mock.Anything).Return(apppayment.ErrUserNotFound)

	w := postJSON(engine, "/api/v1/payment/verify", validAssertionBody())
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "USER_NOT_FOUND", decodeResponse(t, w).Error.Code)
}

func TestVerifyEndpointStoreFailure(t *testing.T) {
	verifier := new(MockVerifier)
	engine := newPaymentEngine(new(MockOrderCreator), verifier)

	verifier.On("Verify", mock.Anything, mock.Anything).Return(errors.New("db gone"))

	w := postJSON(engine, "/api/v1/payment/verify", validAssertionBody())
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestVerifyEndpointMissingFields(t *testing.T) {
	verifier := new(MockVerifier)
	engine := newPaymentEngine(new(MockOrderCreator), verifier)

	w := postJSON(engine, "/api/v1/payment/verify", gin.H{"phone": "+14155550100"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	verifier.AssertNotCalled(t, "Verify", mock.Anything, mock.Anything)
}

// Package payment authenticates asynchronous purchase notifications from
// the checkout page and applies the resulting tier upgrade.
package payment

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"github.com/cutout/backend/internal/domain/shared"
	"github.com/cutout/backend/internal/domain/subscriber"
	"go.uber.org/zap"
)

var (
	// ErrInvalidSignature is returned when the assertion's signature does not
	// match the HMAC computed with the pre-shared secret. No partial trust is
	// given to a structurally valid but mis-signed assertion.
	ErrInvalidSignature = errors.New("payment: invalid signature")
	// ErrUserNotFound is returned when the assertion names an identity with
	// no usage record. The payment path never creates records.
	ErrUserNotFound = errors.New("payment: user not found")
)

// Assertion is an inbound claim that a payment occurred. It is validated and
// discarded; only PaymentRef survives into the subscriber record.
type Assertion struct {
	OrderRef   string `json:"razorpay_order_id" binding:"required"`
	PaymentRef string `json:"razorpay_payment_id" binding:"required"`
	Signature  string `json:"razorpay_signature" binding:"required"`
	Phone      string `json:"phone" binding:"required"`
}

// SubscriberUpgrader is the slice of the quota service the verifier needs
type SubscriberUpgrader interface {
	Find(ctx context.Context, phone string) (*subscriber.Subscriber, error)
	Upgrade(ctx context.Context, sub *subscriber.Subscriber, subscriptionRef string) error
}

// Verifier validates signed upgrade notifications and upgrades the
// subscriber record on success. Verification runs before any mutation;
// rejected assertions never reach the quota manager.
type Verifier struct {
	secret      []byte
	subscribers SubscriberUpgrader
	processed   shared.IdempotencyStore
	replayTTL   time.Duration
	logger      *zap.Logger
}

// VerifierOption is a functional option for configuring Verifier
type VerifierOption func(*Verifier)

// WithIdempotencyStore enables replay absorption for already-applied
// payment references. A replayed verified assertion succeeds without a
// second upgrade.
func WithIdempotencyStore(store shared.IdempotencyStore, ttl time.Duration) VerifierOption {
	return func(v *Verifier) {
		v.processed = store
		v.replayTTL = ttl
	}
}

// NewVerifier creates a new payment Verifier
func NewVerifier(secret string, subscribers SubscriberUpgrader, logger *zap.Logger, opts ...VerifierOption) *Verifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	v := &Verifier{
		secret:      []byte(secret),
		subscribers: subscribers,
		replayTTL:   shared.DefaultIdempotencyConfig().TTL,
		logger:      logger,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Signature computes the expected checkout signature: HMAC-SHA256 over
// "orderRef|paymentRef" keyed with the pre-shared secret, lowercase hex.
func Signature(secret []byte, orderRef, paymentRef string) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(orderRef + "|" + paymentRef))
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify authenticates the assertion and, on success, upgrades the named
// subscriber to PREMIUM. Returns ErrInvalidSignature or ErrUserNotFound on
// rejection; any other error is a store failure.
func (v *Verifier) Verify(ctx context.Context, assertion Assertion) error {
	expected := Signature(v.secret, assertion.OrderRef, assertion.PaymentRef)
	if !hmac.Equal([]byte(expected), []byte(assertion.Signature)) {
		v.logger.Warn("Payment signature verification failed",
			zap.String("order_ref", assertion.OrderRef),
			zap.String("payment_ref", assertion.PaymentRef))
		return ErrInvalidSignature
	}

	phone, err := subscriber.NormalizePhone(assertion.Phone)
	if err != nil {
		return ErrUserNotFound
	}

	if v.processed != nil {
		already, err := v.processed.IsProcessed(ctx, v.replayKey(assertion.PaymentRef))
		if err != nil {
			v.logger.Warn("Idempotency check failed, continuing", zap.Error(err))
		} else if already {
			v.logger.Info("Payment already applied, absorbing replay",
				zap.String("payment_ref", assertion.PaymentRef))
			return nil
		}
	}

	sub, err := v.subscribers.Find(ctx, phone)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			v.logger.Warn("Payment for unknown subscriber",
				zap.String("phone", phone),
				zap.String("payment_ref", assertion.PaymentRef))
			return ErrUserNotFound
		}
		return err
	}

	if err := v.subscribers.Upgrade(ctx, sub, assertion.PaymentRef); err != nil {
		return err
	}

	if v.processed != nil {
		if _, err := v.processed.MarkProcessed(ctx, v.replayKey(assertion.PaymentRef), v.replayTTL); err != nil {
			v.logger.Warn("Failed to mark payment as processed", zap.Error(err))
		}
	}

	v.logger.Info("Payment verified, subscriber upgraded",
		zap.String("phone", phone),
		zap.String("order_ref", assertion.OrderRef),
		zap.String("payment_ref", assertion.PaymentRef))
	return nil
}

func (v *Verifier) replayKey(paymentRef string) string {
	return "payment:" + paymentRef
}

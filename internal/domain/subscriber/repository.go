package subscriber

import (
	"context"
	"time"
)

// Repository persists subscribers. The store's unique key on phone is the
// race arbiter for first contact, and the conditional-update primitives
// below are the only atomicity mechanism the application relies on; no
// in-process lock is held across these calls.
type Repository interface {
	// FindByPhone returns the subscriber for a canonical phone number,
	// or shared.ErrNotFound.
	FindByPhone(ctx context.Context, phone string) (*Subscriber, error)

	// Create inserts a new subscriber. Returns shared.ErrAlreadyExists when
	// another request won the creation race; callers re-fetch instead of
	// treating that as a failure.
	Create(ctx context.Context, sub *Subscriber) error

	// ResetPeriod zeroes the counter and advances the period boundary.
	// Applied on the first read that observes an expired period.
	ResetPeriod(ctx context.Context, phone string, resetAt time.Time) error

	// ConsumeImage atomically increments the counter if and only if it is
	// still below limit, as a single conditional UPDATE. Returns false when
	// the limit was already reached (including when a concurrent request
	// consumed the last unit after the caller's read).
	ConsumeImage(ctx context.Context, phone string, limit int) (bool, error)

	// Upgrade moves the subscriber to PREMIUM in one update: sets the
	// subscription reference, zeroes the counter and advances the period.
	Upgrade(ctx context.Context, phone string, subscriptionRef string, resetAt time.Time) error
}

// Package quota enforces the monthly image allowance attached to each
// subscriber record.
package quota

import (
	"context"
	"errors"
	"time"

	"github.com/cutout/backend/internal/domain/shared"
	"github.com/cutout/backend/internal/domain/subscriber"
	"go.uber.org/zap"
)

// ConsumeResult is the outcome of a consumption attempt
type ConsumeResult struct {
	Allowed bool // whether a unit was consumed
	Used    int  // counter value after the attempt
	Limit   int  // limit for the subscriber's tier
}

// Remaining returns the units left in the current period
func (r ConsumeResult) Remaining() int {
	remaining := r.Limit - r.Used
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Service reads, creates, resets and increments subscriber records while
// enforcing tier limits. All check-and-increment atomicity is delegated to
// the repository's conditional updates; the service holds no locks.
type Service struct {
	repo   subscriber.Repository
	logger *zap.Logger
	now    func() time.Time
}

// Option is a functional option for configuring Service
type Option func(*Service)

// WithClock overrides the time source (used by tests)
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// NewService creates a new quota Service
func NewService(repo subscriber.Repository, logger *zap.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Service{
		repo:   repo,
		logger: logger,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// LimitFor returns the monthly limit for a tier. Pure function, no I/O.
func LimitFor(tier subscriber.Tier) int {
	return tier.MonthlyLimit()
}

// GetOrCreate returns the record for the phone number, creating a FREE-tier
// record on first contact. Two near-simultaneous first contacts are resolved
// by the store's unique key: the loser of the insert race re-fetches. A read
// observing an expired period resets the counter before the record is
// returned, so every quota decision sees a current-period value.
func (s *Service) GetOrCreate(ctx context.Context, phone string) (*subscriber.Subscriber, error) {
	canonical, err := subscriber.NormalizePhone(phone)
	if err != nil {
		return nil, err
	}

	sub, err := s.repo.FindByPhone(ctx, canonical)
	if errors.Is(err, shared.ErrNotFound) {
		sub, err = subscriber.NewSubscriber(canonical, s.now())
		if err != nil {
			return nil, err
		}
		createErr := s.repo.Create(ctx, sub)
		if errors.Is(createErr, shared.ErrAlreadyExists) {
			// Lost the creation race, the winner's record is authoritative
			s.logger.Debug("Subscriber creation race, re-fetching",
				zap.String("phone", canonical))
			sub, err = s.repo.FindByPhone(ctx, canonical)
			if err != nil {
				return nil, err
			}
		} else if createErr != nil {
			return nil, createErr
		} else {
			s.logger.Info("New subscriber created",
				zap.String("phone", canonical),
				zap.String("tier", string(sub.Tier)))
			return sub, nil
		}
	} else if err != nil {
		return nil, err
	}

	return s.resetIfExpired(ctx, sub)
}

// Find returns the record for the phone number without creating one.
// Used by the payment path, where an unknown identity is a rejection.
func (s *Service) Find(ctx context.Context, phone string) (*subscriber.Subscriber, error) {
	canonical, err := subscriber.NormalizePhone(phone)
	if err != nil {
		return nil, err
	}
	sub, err := s.repo.FindByPhone(ctx, canonical)
	if err != nil {
		return nil, err
	}
	return s.resetIfExpired(ctx, sub)
}

// TryConsume attempts to consume one image unit. The increment is a single
// conditional UPDATE in the store, so interleaved attempts for the same
// phone (webhook redelivery, double-sends) can never push the counter past
// the limit. On Allowed the in-memory record is advanced to match the store.
func (s *Service) TryConsume(ctx context.Context, sub *subscriber.Subscriber) (ConsumeResult, error) {
	limit := sub.Limit()
	consumed, err := s.repo.ConsumeImage(ctx, sub.Phone, limit)
	if err != nil {
		return ConsumeResult{}, err
	}

	if !consumed {
		s.logger.Info("Quota limit reached",
			zap.String("phone", sub.Phone),
			zap.String("tier", string(sub.Tier)),
			zap.Int("limit", limit))
		return ConsumeResult{Allowed: false, Used: sub.ImagesProcessed, Limit: limit}, nil
	}

	sub.ImagesProcessed++
	return ConsumeResult{Allowed: true, Used: sub.ImagesProcessed, Limit: limit}, nil
}

// Upgrade moves the subscriber to PREMIUM with a fresh billing period and
// records the payment reference. Persisted as one update.
func (s *Service) Upgrade(ctx context.Context, sub *subscriber.Subscriber, subscriptionRef string) error {
	if subscriptionRef == "" {
		return shared.NewDomainError("INVALID_SUBSCRIPTION_REF", "Subscription reference cannot be empty")
	}

	resetAt := subscriber.NextMonthStart(s.now())
	if err := s.repo.Upgrade(ctx, sub.Phone, subscriptionRef, resetAt); err != nil {
		return err
	}

	sub.Tier = subscriber.TierPremium
	sub.ImagesProcessed = 0
	sub.SubscriptionRef = &subscriptionRef
	sub.PeriodResetAt = resetAt

	s.logger.Info("Subscriber upgraded to premium",
		zap.String("phone", sub.Phone),
		zap.String("subscription_ref", subscriptionRef))
	return nil
}

// resetIfExpired applies the period rollover before the record is used for
// any quota decision.
func (s *Service) resetIfExpired(ctx context.Context, sub *subscriber.Subscriber) (*subscriber.Subscriber, error) {
	now := s.now()
	if !sub.PeriodExpired(now) {
		return sub, nil
	}

	resetAt := subscriber.NextMonthStart(now)
	if err := s.repo.ResetPeriod(ctx, sub.Phone, resetAt); err != nil {
		return nil, err
	}

	sub.ImagesProcessed = 0
	sub.PeriodResetAt = resetAt

	s.logger.Info("Billing period reset",
		zap.String("phone", sub.Phone),
		zap.Time("period_reset_at", resetAt))
	return sub, nil
}

// Package subscriber contains the usage record that meters image processing
// per phone number and the tier limits attached to it.
package subscriber

import (
	"regexp"
	"strings"
	"time"

	"github.com/cutout/backend/internal/domain/shared"
)

// Tier is the subscription level of a subscriber
type Tier string

const (
	// TierFree is the default tier for new subscribers
	TierFree Tier = "FREE"
	// TierPremium is the paid tier unlocked by a verified payment
	TierPremium Tier = "PREMIUM"
)

// Monthly image limits per tier
const (
	FreeMonthlyLimit    = 3
	PremiumMonthlyLimit = 100
)

// IsValid returns true if the tier is a known value
func (t Tier) IsValid() bool {
	return t == TierFree || t == TierPremium
}

// MonthlyLimit returns the number of images a subscriber on this tier
// may process per calendar month. Pure function, no I/O.
func (t Tier) MonthlyLimit() int {
	if t == TierPremium {
		return PremiumMonthlyLimit
	}
	return FreeMonthlyLimit
}

var phonePattern = regexp.MustCompile(`^\+[0-9]{6,15}$`)

// NormalizePhone converts a raw sender identity to the canonical form:
// a leading "+" followed by digits. The messaging platform prefixes
// identities with a channel scheme ("whatsapp:+14155550100"), and the
// checkout page may submit the number without the "+".
func NormalizePhone(raw string) (string, error) {
	phone := strings.TrimSpace(raw)
	if idx := strings.IndexByte(phone, ':'); idx >= 0 {
		phone = phone[idx+1:]
	}
	if phone != "" && phone[0] != '+' {
		phone = "+" + phone
	}
	if !phonePattern.MatchString(phone) {
		return "", shared.NewDomainError("INVALID_PHONE", "Phone number must be a leading + followed by digits")
	}
	return phone, nil
}

// Subscriber is the usage record for one phone number. There is exactly
// one record per canonical phone number; it is created lazily on first
// contact and never deleted by the application.
type Subscriber struct {
	Phone           string    // canonical identity, immutable after creation
	Tier            Tier      // FREE or PREMIUM
	ImagesProcessed int       // counter for the current billing period
	SubscriptionRef *string   // payment transaction id, set on upgrade
	PeriodResetAt   time.Time // first instant of the next calendar month
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// NewSubscriber creates a FREE-tier subscriber with a fresh billing period
func NewSubscriber(phone string, now time.Time) (*Subscriber, error) {
	canonical, err := NormalizePhone(phone)
	if err != nil {
		return nil, err
	}
	return &Subscriber{
		Phone:           canonical,
		Tier:            TierFree,
		ImagesProcessed: 0,
		PeriodResetAt:   NextMonthStart(now),
		CreatedAt:       now,
		UpdatedAt:       now,
	}, nil
}

// NextMonthStart returns the first instant of the calendar month
// following now, in UTC.
func NextMonthStart(now time.Time) time.Time {
	utc := now.UTC()
	return time.Date(utc.Year(), utc.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, 1, 0)
}

// PeriodExpired reports whether the billing period has rolled over and
// the counter must be reset before any quota decision uses this record.
func (s *Subscriber) PeriodExpired(now time.Time) bool {
	return !now.Before(s.PeriodResetAt)
}

// Limit returns the monthly limit for the subscriber's current tier
func (s *Subscriber) Limit() int {
	return s.Tier.MonthlyLimit()
}

// Remaining returns how many images the subscriber may still process
// this period. Never negative.
func (s *Subscriber) Remaining() int {
	remaining := s.Limit() - s.ImagesProcessed
	if remaining < 0 {
		return 0
	}
	return remaining
}

// LimitReached reports whether the subscriber has exhausted the period quota
func (s *Subscriber) LimitReached() bool {
	return s.ImagesProcessed >= s.Limit()
}

// IsPremium reports whether the subscriber is on the paid tier
func (s *Subscriber) IsPremium() bool {
	return s.Tier == TierPremium
}

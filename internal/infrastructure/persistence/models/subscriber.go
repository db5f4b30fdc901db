// Package models contains the GORM persistence models and their mappings
// to domain entities.
package models

import (
	"time"

	"github.com/cutout/backend/internal/domain/subscriber"
)

// SubscriberModel maps the subscriber usage record to the subscribers table.
// The unique index on phone arbitrates the first-contact creation race.
type SubscriberModel struct {
	Phone           string    `gorm:"primaryKey;size:20"`
	Tier            string    `gorm:"size:10;not null"`
	ImagesProcessed int       `gorm:"not null"`
	SubscriptionRef *string   `gorm:"size:64"`
	PeriodResetAt   time.Time `gorm:"not null"`
	CreatedAt       time.Time `gorm:"not null"`
	UpdatedAt       time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (SubscriberModel) TableName() string {
	return "subscribers"
}

// ToDomain converts the model to the domain entity
func (m *SubscriberModel) ToDomain() *subscriber.Subscriber {
	return &subscriber.Subscriber{
		Phone:           m.Phone,
		Tier:            subscriber.Tier(m.Tier),
		ImagesProcessed: m.ImagesProcessed,
		SubscriptionRef: m.SubscriptionRef,
		PeriodResetAt:   m.PeriodResetAt,
		CreatedAt:       m.CreatedAt,
		UpdatedAt:       m.UpdatedAt,
	}
}

// FromDomain populates the model from the domain entity
func (m *SubscriberModel) FromDomain(s *subscriber.Subscriber) {
	m.Phone = s.Phone
	m.Tier = string(s.Tier)
	m.ImagesProcessed = s.ImagesProcessed
	m.SubscriptionRef = s.SubscriptionRef
	m.PeriodResetAt = s.PeriodResetAt
	m.CreatedAt = s.CreatedAt
	m.UpdatedAt = s.UpdatedAt
}

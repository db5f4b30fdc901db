package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/cutout/backend/internal/domain/shared"
	"github.com/cutout/backend/internal/domain/subscriber"
	"github.com/cutout/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

// GormSubscriberRepository implements subscriber.Repository using GORM
type GormSubscriberRepository struct {
	db *gorm.DB
}

// NewGormSubscriberRepository creates a new GormSubscriberRepository
func NewGormSubscriberRepository(db *gorm.DB) *GormSubscriberRepository {
	return &GormSubscriberRepository{db: db}
}

// FindByPhone finds a subscriber by canonical phone number
func (r *GormSubscriberRepository) FindByPhone(ctx context.Context, phone string) (*subscriber.Subscriber, error) {
	var model models.SubscriberModel
	if err := r.db.WithContext(ctx).First(&model, "phone = ?", phone).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// Create inserts a new subscriber. The unique key on phone arbitrates
// concurrent first contacts; the loser gets shared.ErrAlreadyExists and
// should re-fetch.
func (r *GormSubscriberRepository) Create(ctx context.Context, sub *subscriber.Subscriber) error {
	var model models.SubscriberModel
	model.FromDomain(sub)

	if err := r.db.WithContext(ctx).Create(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return shared.ErrAlreadyExists
		}
		return err
	}
	return nil
}

// ResetPeriod zeroes the counter and advances the period boundary
func (r *GormSubscriberRepository) ResetPeriod(ctx context.Context, phone string, resetAt time.Time) error {
	result := r.db.WithContext(ctx).
		Model(&models.SubscriberModel{}).
		Where("phone = ?", phone).
		Updates(map[string]any{
			"images_processed": 0,
			"period_reset_at":  resetAt,
			"updated_at":       time.Now(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// ConsumeImage increments the counter if and only if it is still below
// limit, in one conditional UPDATE. Interleaved calls for the same phone
// cannot overshoot: the WHERE clause re-checks the counter inside the
// statement, so at most limit increments ever succeed per period.
func (r *GormSubscriberRepository) ConsumeImage(ctx context.Context, phone string, limit int) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.SubscriberModel{}).
		Where("phone = ? AND images_processed < ?", phone, limit).
		Updates(map[string]any{
			"images_processed": gorm.Expr("images_processed + 1"),
			"updated_at":       time.Now(),
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// Upgrade applies the premium upgrade in a single UPDATE
func (r *GormSubscriberRepository) Upgrade(ctx context.Context, phone string, subscriptionRef string, resetAt time.Time) error {
	result := r.db.WithContext(ctx).
		Model(&models.SubscriberModel{}).
		Where("phone = ?", phone).
		Updates(map[string]any{
			"tier":             string(subscriber.TierPremium),
			"images_processed": 0,
			"subscription_ref": subscriptionRef,
			"period_reset_at":  resetAt,
			"updated_at":       time.Now(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// Ensure GormSubscriberRepository implements the domain interface
var _ subscriber.Repository = (*GormSubscriberRepository)(nil)

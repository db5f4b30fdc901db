package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/cutout/backend/internal/domain/shared"
	"github.com/cutout/backend/internal/domain/subscriber"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func newMockRepo(t *testing.T) (*GormSubscriberRepository, sqlmock.Sqlmock) {
	t.Helper()

	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	db, err := gorm.Open(postgres.New(postgres.Config{
		Conn:                 sqlDB,
		PreferSimpleProtocol: true,
	}), &gorm.Config{
		Logger:                 gormlogger.Default.LogMode(gormlogger.Silent),
		SkipDefaultTransaction: true,
		TranslateError:         true,
	})
	require.NoError(t, err)

	return NewGormSubscriberRepository(db), mock
}

func subscriberRows(phone string, used int) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows([]string{
		"phone", "tier", "images_processed", "subscription_ref",
		"period_reset_at", "created_at", "updated_at",
	}).AddRow(phone, "FREE", used, nil, time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC), now, now)
}

func TestFindByPhone(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery(`SELECT \* FROM "subscribers" WHERE phone = \$1`).
		WithArgs("+14155550100", 1).
		WillReturnRows(subscriberRows("+14155550100", 2))

	sub, err := repo.FindByPhone(context.Background(), "+14155550100")
	assert.NoError(t, err)
	assert.Equal(t, "+14155550100", sub.Phone)
	assert.Equal(t, subscriber.TierFree, sub.Tier)
	assert.Equal(t, 2, sub.ImagesProcessed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindByPhoneNotFound(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery(`SELECT \* FROM "subscribers" WHERE phone = \$1`).
		WithArgs("+14155550100", 1).
		WillReturnRows(sqlmock.NewRows([]string{"phone"}))

	_, err := repo.FindByPhone(context.Background(), "+14155550100")
	assert.ErrorIs(t, err, shared.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreate(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec(`INSERT INTO "subscribers"`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	sub, err := subscriber.NewSubscriber("+14155550100", time.Now())
	require.NoError(t, err)

	assert.NoError(t, repo.Create(context.Background(), sub))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestConsumeImageGranted(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec(`UPDATE "subscribers" SET .* WHERE phone = \$\d+ AND images_processed < \$\d+`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	granted, err := repo.ConsumeImage(context.Background(), "+14155550100", 3)
	assert.NoError(t, err)
	assert.True(t, granted)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestConsumeImageDeniedAtLimit(t *testing.T) {
	repo, mock := newMockRepo(t)

	// Zero rows affected means the WHERE guard failed: counter at limit
	mock.ExpectExec(`UPDATE "subscribers" SET .* WHERE phone = \$\d+ AND images_processed < \$\d+`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	granted, err := repo.ConsumeImage(context.Background(), "+14155550100", 3)
	assert.NoError(t, err)
	assert.False(t, granted)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestResetPeriod(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec(`UPDATE "subscribers" SET .* WHERE phone = \$\d+`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.ResetPeriod(context.Background(), "+14155550100", time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC))
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestResetPeriodUnknownPhone(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec(`UPDATE "subscribers" SET .* WHERE phone = \$\d+`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.ResetPeriod(context.Background(), "+19998887777", time.Now())
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestUpgrade(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec(`UPDATE "subscribers" SET .* WHERE phone = \$\d+`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Upgrade(context.Background(), "+14155550100", "pay_XYZ", time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC))
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpgradeUnknownPhone(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec(`UPDATE "subscribers" SET .* WHERE phone = \$\d+`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Upgrade(context.Background(), "+19998887777", "pay_XYZ", time.Now())
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

// Package cache provides the idempotency store implementations backing
// payment-callback deduplication.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/cutout/backend/internal/domain/shared"
	"github.com/cutout/backend/internal/infrastructure/config"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

var _ shared.IdempotencyStore = (*RedisIdempotencyStore)(nil)

const idempotencyKeyPrefix = "payment:processed:"

// RedisIdempotencyStore implements shared.IdempotencyStore on Redis. SETNX
// gives the atomic mark-if-absent the at-least-once callback delivery needs,
// and it survives process restarts unlike the in-memory store.
type RedisIdempotencyStore struct {
	client *redis.Client
	logger *zap.Logger
}

// RedisIdempotencyStoreOption is a functional option for the store
type RedisIdempotencyStoreOption func(*RedisIdempotencyStore)

// WithLogger sets a custom logger for RedisIdempotencyStore
func WithLogger(logger *zap.Logger) RedisIdempotencyStoreOption {
	return func(s *RedisIdempotencyStore) {
		s.logger = logger
	}
}

// NewRedisIdempotencyStore connects to Redis and verifies the connection
func NewRedisIdempotencyStore(cfg *config.RedisConfig, opts ...RedisIdempotencyStoreOption) (*RedisIdempotencyStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	store := &RedisIdempotencyStore{
		client: client,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(store)
	}
	return store, nil
}

// MarkProcessed marks a key as processed using SETNX. Returns true only for
// the first caller; concurrent duplicates observe false.
func (s *RedisIdempotencyStore) MarkProcessed(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := s.client.SetNX(ctx, idempotencyKeyPrefix+key, "1", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to mark key processed: %w", err)
	}
	if !ok {
		s.logger.Debug("Duplicate key observed", zap.String("key", key))
	}
	return ok, nil
}

// IsProcessed checks whether a key was already marked
func (s *RedisIdempotencyStore) IsProcessed(ctx context.Context, key string) (bool, error) {
	n, err := s.client.Exists(ctx, idempotencyKeyPrefix+key).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check key: %w", err)
	}
	return n > 0, nil
}

// Close closes the underlying Redis connection
func (s *RedisIdempotencyStore) Close() error {
	return s.client.Close()
}

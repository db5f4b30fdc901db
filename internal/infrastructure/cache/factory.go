package cache

import (
	"github.com/cutout/backend/internal/domain/shared"
	"github.com/cutout/backend/internal/infrastructure/config"
	"go.uber.org/zap"
)

// NewIdempotencyStore selects the store implementation from configuration.
// Redis when enabled and reachable, the in-memory store otherwise. A Redis
// connection failure falls back rather than blocking startup; the degraded
// guarantee is logged.
func NewIdempotencyStore(cfg *config.RedisConfig, logger *zap.Logger) shared.IdempotencyStore {
	if logger == nil {
		logger = zap.NewNop()
	}

	if cfg != nil && cfg.Enabled {
		store, err := NewRedisIdempotencyStore(cfg, WithLogger(logger))
		if err == nil {
			logger.Info("Using Redis idempotency store",
				zap.String("host", cfg.Host), zap.Int("port", cfg.Port))
			return store
		}
		logger.Warn("Redis unavailable, falling back to in-memory idempotency store",
			zap.Error(err))
	}

	return NewInMemoryIdempotencyStore()
}

package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/spec-kit/issue-service/internal/config"
)

// redisProbeTimeout bounds the reachability check at startup.
const redisProbeTimeout = 2 * time.Second

// Redis wraps the go-redis client backing the token revocation list.
type Redis struct {
	Client *redis.Client
}

// NewRedis builds a client and probes it once. The boolean reports whether
// Redis answered within redisProbeTimeout; callers fall back to in-process
// state when it did not. The client is returned either way so readiness can
// keep probing it.
func NewRedis(ctx context.Context, cfg config.RedisConfig, logger *zap.Logger) (*Redis, bool) {
	client := redis.NewClient(&redis.Options{
		Addr:        cfg.Addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: redisProbeTimeout,
	})
	r := &Redis{Client: client}

	probeCtx, cancel := context.WithTimeout(ctx, redisProbeTimeout)
	defer cancel()
	if err := r.Ping(probeCtx); err != nil {
		logger.Warn("redis unavailable; token revocation kept in process",
			zap.String("addr", cfg.Addr),
			zap.Error(err))
		return r, false
	}

	logger.Info("connected to redis", zap.String("addr", cfg.Addr))
	return r, true
}

// Close closes the client.
func (r *Redis) Close() {
	if r != nil && r.Client != nil {
		_ = r.Client.Close()
	}
}

// Ping verifies Redis connectivity.
func (r *Redis) Ping(ctx context.Context) error {
	if r == nil || r.Client == nil {
		return errors.New("redis client not configured")
	}
	return r.Client.Ping(ctx).Err()
}

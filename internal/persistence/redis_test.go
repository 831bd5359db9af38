package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/spec-kit/issue-service/internal/config"
)

func TestNewRedis_UnreachableReportsFallback(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)

	start := time.Now()
	r, ok := NewRedis(context.Background(), config.RedisConfig{Addr: "127.0.0.1:1"}, zap.New(core))
	t.Cleanup(r.Close)

	assert.False(t, ok)
	require.NotNil(t, r)
	assert.Less(t, time.Since(start), redisProbeTimeout+time.Second)
	assert.Equal(t, 1, logs.FilterMessage("redis unavailable; token revocation kept in process").Len())
}

func TestNewRedis_CanceledContextReportsFallback(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r, ok := NewRedis(ctx, config.RedisConfig{Addr: "127.0.0.1:6379"}, zap.NewNop())
	t.Cleanup(r.Close)
	assert.False(t, ok)
}

func TestRedis_PingWithoutClient(t *testing.T) {
	var r *Redis
	assert.Error(t, r.Ping(context.Background()))
	r.Close()
}

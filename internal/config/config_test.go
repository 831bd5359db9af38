package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("POSTGRES_DSN", "")
	t.Setenv("APP_PORT", "")
	t.Setenv("AUTH_BCRYPT_COST", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:5000", cfg.App.Addr())
	assert.Empty(t, cfg.Postgres.DSN)
	assert.Equal(t, 10, cfg.Auth.BcryptCost)
	assert.Equal(t, "jwt", cfg.Auth.CookieName)
	assert.Equal(t, 5*time.Second, cfg.Postgres.QueryTimeout())
	assert.Equal(t, 15*24*time.Hour, cfg.Auth.TokenTTL())
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("APP_PORT", "8081")
	t.Setenv("POSTGRES_QUERY_TIMEOUT_SECONDS", "2")
	t.Setenv("AUTH_COOKIE_SECURE", "true")
	t.Setenv("CORS_ALLOWED_ORIGINS", " http://a.test , ,http://b.test")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:8081", cfg.App.Addr())
	assert.Equal(t, 2*time.Second, cfg.Postgres.QueryTimeout())
	assert.True(t, cfg.Auth.CookieSecure)
	assert.Equal(t, "http://a.test,http://b.test", cfg.App.AllowedOrigins())
}

func TestLoad_InvalidRedisDB(t *testing.T) {
	t.Setenv("REDIS_DB", "zero")

	_, err := Load()
	assert.Error(t, err)
}

func TestGetEnvAsInt_FallsBackOnGarbage(t *testing.T) {
	t.Setenv("SOME_INT", "abc")
	assert.Equal(t, 7, getEnvAsInt("SOME_INT", 7))
}

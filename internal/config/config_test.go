package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("APP_ENV", "test")
	t.Setenv("APP_PORT", "8080")
	t.Setenv("MONGO_URI", "mongodb://localhost:27017/?replicaSet=rs0")
	t.Setenv("MONGO_DB", "georegions")
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("MAPS_API_KEY", "key")
}

func TestLoadDefaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, time.Hour, cfg.AccessTTL)
	assert.Equal(t, 7*24*time.Hour, cfg.RefreshTTL)
	assert.Equal(t, 10, cfg.BcryptCost)
	assert.Equal(t, 10, cfg.GeocodeRPS)
	assert.Equal(t, "overlap", cfg.DuplicatePolicy)
	assert.Equal(t, 5*time.Second, cfg.RequestTimeout)
	assert.False(t, cfg.AMQPEnabled)
	assert.Equal(t, "logs", cfg.AuditLogDir)
	assert.True(t, cfg.Cache.Methods["GET"])
}

func TestLoadOverrides(t *testing.T) {
	setRequired(t)
	t.Setenv("ACCESS_TOKEN_TTL_MIN", "15")
	t.Setenv("DUPLICATE_POLICY", "EXACT")
	t.Setenv("REQUEST_TIMEOUT", "2s")
	t.Setenv("AMQP_ENABLED", "yes")
	t.Setenv("REDIS_HOST", "cache")
	t.Setenv("REDIS_PORT", "6380")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 15*time.Minute, cfg.AccessTTL)
	assert.Equal(t, "exact", cfg.DuplicatePolicy)
	assert.Equal(t, 2*time.Second, cfg.RequestTimeout)
	assert.True(t, cfg.AMQPEnabled)
	assert.Equal(t, "cache:6380", cfg.Redis.Addr)
}

func TestLoadCollectsErrors(t *testing.T) {
	setRequired(t)
	t.Setenv("MONGO_URI", "")
	t.Setenv("MAPS_API_KEY", "")
	t.Setenv("BCRYPT_COST", "lots")
	t.Setenv("DUPLICATE_POLICY", "fuzzy")

	_, err := Load()
	require.Error(t, err)
	for _, want := range []string{"MONGO_URI", "MAPS_API_KEY", "BCRYPT_COST", "DUPLICATE_POLICY"} {
		assert.Contains(t, err.Error(), want)
	}
}

func TestRateLimitConfigClamps(t *testing.T) {
	t.Setenv("RATE_LIMIT_CAPACITY", "0")
	t.Setenv("RATE_LIMIT_REFILL_INTERVAL", "1m")
	t.Setenv("RATE_LIMIT_TTL", "1s")

	cfg := LoadRateLimitConfig()
	assert.Equal(t, 1, cfg.Capacity)
	assert.Equal(t, 5*time.Minute, cfg.TTL)
}

package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoad_Defaults(t *testing.T) {
	for _, k := range []string{"PORT", "STATE_BACKEND", "STATE_TTL", "STALE_DATE_DAYS", "DATABASE_DRIVER"} {
		t.Setenv(k, "")
	}
	cfg := Load()

	assert.Equal(t, "8080", cfg.ServerPort)
	assert.Equal(t, "memory", cfg.StateBackend)
	assert.Equal(t, time.Hour, cfg.StateTTL)
	assert.Equal(t, 5*time.Minute, cfg.DedupTTL)
	assert.Equal(t, "sqlite3", cfg.DatabaseDriver)
	assert.Equal(t, 90*24*time.Hour, cfg.StaleAfter())
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("STATE_BACKEND", "redis")
	t.Setenv("REDIS_DB", "3")
	t.Setenv("STATE_TTL", "30m")
	t.Setenv("STALE_DATE_DAYS", "30")
	t.Setenv("AUDIT_STREAM_ENABLED", "true")
	t.Setenv("RATE_LIMIT_REQUESTS", "not-a-number")

	cfg := Load()

	assert.Equal(t, "redis", cfg.StateBackend)
	assert.Equal(t, 3, cfg.RedisDB)
	assert.Equal(t, 30*time.Minute, cfg.StateTTL)
	assert.Equal(t, 30*24*time.Hour, cfg.StaleAfter())
	assert.True(t, cfg.AuditStreamEnabled)
	assert.Equal(t, 60, cfg.RateLimitRequests)
}

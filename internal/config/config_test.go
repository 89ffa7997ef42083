package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func unset(t *testing.T, keys ...string) {
	t.Helper()
	for _, k := range keys {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
}

func TestLoad_Defaults(t *testing.T) {
	unset(t, "HTTP_PORT", "STORE_TIMEOUT_MS", "IDEMPOTENCY_TTL_SEC", "KAFKA_BROKERS")

	cfg := Load()

	assert.Equal(t, "8080", cfg.HTTPPort)
	assert.Equal(t, 5*time.Second, cfg.StoreTimeout)
	assert.Equal(t, 24*time.Hour, cfg.IdempotencyTTL)
	assert.Empty(t, cfg.KafkaBrokers)
}

func TestLoad_FromEnv(t *testing.T) {
	t.Setenv("HTTP_PORT", "9000")
	t.Setenv("STORE_TIMEOUT_MS", "250")
	t.Setenv("MEMORY_STORE", "true")
	t.Setenv("RATE_LIMIT_RPS", "not-a-number")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,,")

	cfg := Load()

	assert.Equal(t, "9000", cfg.HTTPPort)
	assert.Equal(t, 250*time.Millisecond, cfg.StoreTimeout)
	assert.True(t, cfg.MemoryStore)
	assert.Equal(t, 10, cfg.RateLimitRPS)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
}

func TestLoadAudit(t *testing.T) {
	t.Setenv("ES_INDEX", "audit-test")

	cfg := LoadAudit()

	assert.Equal(t, "audit-test", cfg.ESIndex)
	assert.Equal(t, "audit-service-group", cfg.GroupID)
}

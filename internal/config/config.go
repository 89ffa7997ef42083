package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Server settings
	HTTPPort string
	GRPCPort string

	// Store settings
	DatabaseURL  string
	DBMaxConns   int
	StoreTimeout time.Duration
	MemoryStore  bool

	// Redis settings
	RedisAddr      string
	IdempotencyTTL time.Duration

	// JWT settings
	JWTSecret string

	// Rate limiting settings
	RateLimitRPS   int
	RateLimitBurst int

	// Event settings
	KafkaBrokers []string
	KafkaTopic   string
	NATSURL      string

	LogLevel string

	// Feature flags
	DevMode bool
}

// Load reads the environment, after merging an optional .env file.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		HTTPPort:       getEnv("HTTP_PORT", "8080"),
		GRPCPort:       getEnv("GRPC_PORT", "9090"),
		DatabaseURL:    getEnv("DATABASE_URL", ""),
		DBMaxConns:     getIntEnv("DB_MAX_CONNS", 10),
		StoreTimeout:   getDurationEnv("STORE_TIMEOUT_MS", 5000) * time.Millisecond,
		MemoryStore:    getBoolEnv("MEMORY_STORE", false),
		RedisAddr:      getEnv("REDIS_ADDR", "localhost:6379"),
		IdempotencyTTL: getDurationEnv("IDEMPOTENCY_TTL_SEC", 86400) * time.Second,
		JWTSecret:      getEnv("JWT_SECRET", "dev-secret-key"),
		RateLimitRPS:   getIntEnv("RATE_LIMIT_RPS", 10),
		RateLimitBurst: getIntEnv("RATE_LIMIT_BURST", 20),
		KafkaBrokers:   getListEnv("KAFKA_BROKERS"),
		KafkaTopic:     getEnv("KAFKA_TOPIC", "transaction-events"),
		NATSURL:        getEnv("NATS_URL", ""),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		DevMode:        getBoolEnv("DEV_MODE", false),
	}
}

// AuditConfig configures the audit indexer process.
type AuditConfig struct {
	KafkaBroker string
	KafkaTopic  string
	GroupID     string
	ESURL       string
	ESIndex     string
	DLQTopic    string
	LogLevel    string
}

func LoadAudit() *AuditConfig {
	_ = godotenv.Load()

	return &AuditConfig{
		KafkaBroker: getEnv("KAFKA_BROKER", "localhost:9092"),
		KafkaTopic:  getEnv("KAFKA_TOPIC", "transaction-events"),
		GroupID:     getEnv("KAFKA_GROUP_ID", "audit-service-group"),
		ESURL:       getEnv("ES_URL", "http://localhost:9200"),
		ESIndex:     getEnv("ES_INDEX", "ledger-transactions"),
		DLQTopic:    getEnv("DLQ_TOPIC", "transaction-events-dlq"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getIntEnv(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return fallback
}

// getDurationEnv returns a unitless count; callers multiply by the unit.
func getDurationEnv(key string, fallback int) time.Duration {
	return time.Duration(getIntEnv(key, fallback))
}

func getBoolEnv(key string, fallback bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return fallback
}

func getListEnv(key string) []string {
	value, ok := os.LookupEnv(key)
	if !ok {
		return nil
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

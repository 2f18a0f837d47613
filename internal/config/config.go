// Package config provides environment configuration for the API server.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application.
type Config struct {
	// Server settings
	ServerPort         string
	ServerReadTimeout  time.Duration
	ServerWriteTimeout time.Duration

	// NATS settings
	NATSURL            string
	NATSCAFile         string
	NATSCertFile       string
	NATSKeyFile        string
	NATSToken          string
	AuditStreamEnabled bool

	// JWT settings
	JWTSecret     string
	JWTExpiration time.Duration

	// LLM settings
	AnthropicAPIKey string
	OpenAIAPIKey    string
	DefaultLLM      string
	LLMModel        string

	// Rate limiting
	RateLimitRequests int
	RateLimitWindow   time.Duration

	// Logging
	LogLevel       string
	LogDevelopment bool

	// Tracing
	TracingEndpoint string
	TracingEnabled  bool

	// Conversation state and deduplication
	StateBackend  string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	StateTTL      time.Duration
	DedupTTL      time.Duration
	SweepInterval time.Duration

	// Record store
	DatabaseDriver string
	DatabaseURL    string

	// Domain tables
	RequirementsFile string
	AliasesFile      string
	StaleDateDays    int
	DefaultLanguage  string
}

// Load reads configuration from environment variables. A .env file in the
// working directory is read first when present; real environment wins.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		// Server
		ServerPort:         getEnv("PORT", "8080"),
		ServerReadTimeout:  getDurationEnv("SERVER_READ_TIMEOUT", 30*time.Second),
		ServerWriteTimeout: getDurationEnv("SERVER_WRITE_TIMEOUT", 120*time.Second),

		// NATS
		NATSURL:            getEnv("NATS_URL", "nats://localhost:4222"),
		NATSCAFile:         getEnv("NATS_CA_FILE", ""),
		NATSCertFile:       getEnv("NATS_CERT_FILE", ""),
		NATSKeyFile:        getEnv("NATS_KEY_FILE", ""),
		NATSToken:          getEnv("NATS_TOKEN", ""),
		AuditStreamEnabled: getBoolEnv("AUDIT_STREAM_ENABLED", false),

		// JWT
		JWTSecret:     getEnv("JWT_SECRET", "development-secret-change-in-production"),
		JWTExpiration: getDurationEnv("JWT_EXPIRATION", 15*time.Minute),

		// LLM
		AnthropicAPIKey: getEnv("ANTHROPIC_API_KEY", ""),
		OpenAIAPIKey:    getEnv("OPENAI_API_KEY", ""),
		DefaultLLM:      getEnv("DEFAULT_LLM", "anthropic"),
		LLMModel:        getEnv("LLM_MODEL", ""),

		// Rate limiting
		RateLimitRequests: getIntEnv("RATE_LIMIT_REQUESTS", 60),
		RateLimitWindow:   getDurationEnv("RATE_LIMIT_WINDOW", time.Minute),

		// Logging
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		LogDevelopment: getBoolEnv("LOG_DEVELOPMENT", false),

		// Tracing
		TracingEndpoint: getEnv("TRACING_ENDPOINT", "localhost:4318"),
		TracingEnabled:  getBoolEnv("TRACING_ENABLED", false),

		// State
		StateBackend:  getEnv("STATE_BACKEND", "memory"),
		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getIntEnv("REDIS_DB", 0),
		StateTTL:      getDurationEnv("STATE_TTL", time.Hour),
		DedupTTL:      getDurationEnv("DEDUP_TTL", 5*time.Minute),
		SweepInterval: getDurationEnv("SWEEP_INTERVAL", time.Minute),

		// Store
		DatabaseDriver: getEnv("DATABASE_DRIVER", "sqlite3"),
		DatabaseURL:    getEnv("DATABASE_URL", "file:field-ops.db?_foreign_keys=on"),

		// Domain
		RequirementsFile: getEnv("REQUIREMENTS_FILE", ""),
		AliasesFile:      getEnv("ALIASES_FILE", ""),
		StaleDateDays:    getIntEnv("STALE_DATE_DAYS", 90),
		DefaultLanguage:  getEnv("DEFAULT_LANGUAGE", "tr"),
	}
}

// StaleAfter returns the age at which a received date needs acknowledgement.
func (c *Config) StaleAfter() time.Duration {
	return time.Duration(c.StaleDateDays) * 24 * time.Hour
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	DBHost       string
	DBPort       string
	DBUser       string
	DBPassword   string
	DBName       string
	DBSSLMode    string
	DBLogQueries bool

	ServerPort string
	ServerHost string

	// Collaboration engine
	MaxLag         uint64        // reject operations further behind than this
	ConflictLag    uint64        // flag operations further behind than this
	LockTimeout    time.Duration // per-session lock wait before "busy"
	SessionTTL     time.Duration // 0 = sessions never expire
	ConflictPolicy string        // "annotate" or "reject"

	// Fan-out worker pool
	FanoutWorkers   int
	FanoutQueueSize int

	// Redis pub/sub; empty means events stay on this node
	RedisAddr string

	// Per-connection websocket rate limit
	WSOpsPerSecond float64
	WSBurst        int

	// Observability
	JaegerEndpoint   string
	TraceSampleRatio float64 // fraction of root traces kept, 0..1
}

func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	cfg := &Config{
		DBHost:       getEnv("DB_HOST", "localhost"),
		DBPort:       getEnv("DB_PORT", "5432"),
		DBUser:       getEnv("DB_USER", "postgres"),
		DBPassword:   getEnv("DB_PASSWORD", "postgres"),
		DBName:       getEnv("DB_NAME", "collab_engine"),
		DBSSLMode:    getEnv("DB_SSLMODE", "disable"),
		DBLogQueries: getEnvBool("DB_LOG_QUERIES", false),

		ServerPort: getEnv("SERVER_PORT", "8080"),
		ServerHost: getEnv("SERVER_HOST", "localhost"),

		MaxLag:         uint64(getEnvInt("COLLAB_MAX_LAG", 200)),
		ConflictLag:    uint64(getEnvInt("COLLAB_CONFLICT_LAG", 20)),
		LockTimeout:    getEnvDuration("COLLAB_LOCK_TIMEOUT", 5*time.Second),
		SessionTTL:     getEnvDuration("COLLAB_SESSION_TTL", 0),
		ConflictPolicy: getEnv("COLLAB_CONFLICT_POLICY", "annotate"),

		FanoutWorkers:   getEnvInt("FANOUT_WORKERS", 4),
		FanoutQueueSize: getEnvInt("FANOUT_QUEUE_SIZE", 1024),

		RedisAddr: getEnv("REDIS_ADDR", ""),

		WSOpsPerSecond: getEnvFloat("WS_OPS_PER_SECOND", 50),
		WSBurst:        getEnvInt("WS_BURST", 100),

		JaegerEndpoint:   getEnv("JAEGER_ENDPOINT", "http://localhost:14268/api/traces"),
		TraceSampleRatio: getEnvFloat("TRACE_SAMPLE_RATIO", 1),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	switch c.ConflictPolicy {
	case "annotate", "reject":
	default:
		return fmt.Errorf("COLLAB_CONFLICT_POLICY must be \"annotate\" or \"reject\", got %q", c.ConflictPolicy)
	}
	if c.MaxLag > 0 && c.ConflictLag > c.MaxLag {
		return fmt.Errorf("COLLAB_CONFLICT_LAG (%d) cannot exceed COLLAB_MAX_LAG (%d)", c.ConflictLag, c.MaxLag)
	}
	if c.LockTimeout <= 0 {
		return fmt.Errorf("COLLAB_LOCK_TIMEOUT must be positive")
	}
	if c.FanoutWorkers < 1 || c.FanoutQueueSize < 1 {
		return fmt.Errorf("FANOUT_WORKERS and FANOUT_QUEUE_SIZE must be at least 1")
	}
	if c.TraceSampleRatio < 0 || c.TraceSampleRatio > 1 {
		return fmt.Errorf("TRACE_SAMPLE_RATIO must be between 0 and 1, got %v", c.TraceSampleRatio)
	}
	return nil
}

func (c *Config) DatabaseURL() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.DBHost, c.DBPort, c.DBUser, c.DBPassword, c.DBName, c.DBSSLMode)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if result, err := strconv.Atoi(value); err == nil {
			return result
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if result, err := strconv.ParseFloat(value, 64); err == nil {
			return result
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if result, err := strconv.ParseBool(value); err == nil {
			return result
		}
	}
	return defaultValue
}

// getEnvDuration accepts Go durations ("250ms", "30m") or plain seconds
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}

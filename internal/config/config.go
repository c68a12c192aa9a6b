package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	ServerPort string
	ServerHost string

	// Collaboration
	HeartbeatInterval time.Duration
	WriteTimeout      time.Duration
	SendQueueSize     int
	MaxMessageBytes   int64
	StrictFormatting  bool

	// Presence journal (optional, diagnostic only)
	DatabaseEnabled  bool
	DBHost           string
	DBPort           string
	DBUser           string
	DBPassword       string
	DBName           string
	DBSSLMode        string
	JournalWorkers   int
	JournalQueueSize int

	// Observability
	JaegerEndpoint string
	MetricsEnabled bool
}

func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	cfg := &Config{
		ServerPort: getEnv("SERVER_PORT", getEnv("PORT", "8080")),
		ServerHost: getEnv("SERVER_HOST", "localhost"),

		HeartbeatInterval: getEnvDuration("HEARTBEAT_INTERVAL", 30*time.Second),
		WriteTimeout:      getEnvDuration("WRITE_TIMEOUT", 10*time.Second),
		SendQueueSize:     getEnvInt("SEND_QUEUE_SIZE", 256),
		MaxMessageBytes:   int64(getEnvInt("MAX_MESSAGE_BYTES", 0)),
		StrictFormatting:  getEnvBool("STRICT_FORMATTING", true),

		DatabaseEnabled:  getEnvBool("DATABASE_ENABLED", false),
		DBHost:           getEnv("DB_HOST", "localhost"),
		DBPort:           getEnv("DB_PORT", "5432"),
		DBUser:           getEnv("DB_USER", "postgres"),
		DBPassword:       getEnv("DB_PASSWORD", "postgres"),
		DBName:           getEnv("DB_NAME", "collab_sync"),
		DBSSLMode:        getEnv("DB_SSLMODE", "disable"),
		JournalWorkers:   getEnvInt("JOURNAL_WORKERS", 2),
		JournalQueueSize: getEnvInt("JOURNAL_QUEUE_SIZE", 256),

		JaegerEndpoint: getEnv("JAEGER_ENDPOINT", ""),
		MetricsEnabled: getEnvBool("METRICS_ENABLED", true),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate rejects settings the server cannot run with
func (c *Config) Validate() error {
	if c.HeartbeatInterval <= 0 {
		return fmt.Errorf("HEARTBEAT_INTERVAL must be positive, got %s", c.HeartbeatInterval)
	}
	if c.WriteTimeout <= 0 {
		return fmt.Errorf("WRITE_TIMEOUT must be positive, got %s", c.WriteTimeout)
	}
	if c.SendQueueSize < 1 {
		return fmt.Errorf("SEND_QUEUE_SIZE must be at least 1, got %d", c.SendQueueSize)
	}
	if c.MaxMessageBytes < 0 {
		return fmt.Errorf("MAX_MESSAGE_BYTES must not be negative, got %d", c.MaxMessageBytes)
	}
	if c.DatabaseEnabled && (c.JournalWorkers < 1 || c.JournalQueueSize < 1) {
		return fmt.Errorf("journal needs at least one worker and a queue (workers=%d, queue=%d)",
			c.JournalWorkers, c.JournalQueueSize)
	}
	return nil
}

func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%s", c.ServerHost, c.ServerPort)
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
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

// getEnvDuration accepts Go durations ("30s") or a bare number of seconds
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

package config

import (
	"fmt"
	"os"
	"strconv"
)

// Config holds all configuration for the application, loaded from
// environment variables.
type Config struct {
	// Server configuration
	ServerPort string
	ServerHost string

	// Database configuration. Driver selects the backend: "sqlite" for the
	// local embedded database, "postgres" for a hosted instance.
	DBDriver   string
	SQLitePath string
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string

	// Redis configuration. Optional: rate limiting and summary caching are
	// disabled when RedisAddr is empty.
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// External workflow configuration. An empty WorkflowURL switches the
	// dispatcher into simulation mode.
	WorkflowURL string
	AppBaseURL  string

	// S3 image storage. Optional: uploads keep a null image URL when the
	// bucket is not configured.
	S3Bucket  string
	AWSRegion string

	// JWT configuration
	JWTSecret string
}

// Load builds Config from the environment with development defaults.
func Load() *Config {
	return &Config{
		ServerPort: getEnv("SERVER_PORT", "8080"),
		ServerHost: getEnv("SERVER_HOST", "0.0.0.0"),

		DBDriver:   getEnv("DB_DRIVER", "sqlite"),
		SQLitePath: getEnv("SQLITE_PATH", "data/app.db"),
		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnv("DB_PORT", "5432"),
		DBUser:     getEnv("DB_USER", "postgres"),
		DBPassword: os.Getenv("DB_PASSWORD"),
		DBName:     getEnv("DB_NAME", "calai"),
		DBSSLMode:  getEnv("DB_SSL_MODE", "disable"),

		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		WorkflowURL: os.Getenv("N8N_WEBHOOK_URL"),
		AppBaseURL:  getEnv("APP_BASE_URL", "http://localhost:8080"),

		S3Bucket:  os.Getenv("S3_BUCKET_NAME"),
		AWSRegion: os.Getenv("AWS_REGION"),

		JWTSecret: getEnv("JWT_SECRET", "change-me"),
	}
}

// SimulationMode reports whether the analysis dispatcher should simulate
// the external workflow instead of calling it.
func (c *Config) SimulationMode() bool {
	return c.WorkflowURL == ""
}

// PostgresDSN builds the connection string for the postgres backend.
func (c *Config) PostgresDSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.DBHost, c.DBPort, c.DBUser, c.DBPassword, c.DBName, c.DBSSLMode,
	)
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			return parsed
		}
	}
	return def
}

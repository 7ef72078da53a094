package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application settings, populated from the environment.
type Config struct {
	Database DatabaseConfig
	Server   ServerConfig
	Logging  LoggingConfig
	Pipeline PipelineConfig
}

// DatabaseConfig holds PostgreSQL connection settings
type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	Database        string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// ServerConfig holds HTTP API server settings
type ServerConfig struct {
	Host string
	Port int
}

// LoggingConfig holds logger settings
type LoggingConfig struct {
	Level string
}

// PipelineConfig holds batch pipeline settings
type PipelineConfig struct {
	// DataDir is the default directory of per-station source files.
	DataDir string
	// StatsBatchSize bounds the per-transaction row count when
	// persisting yearly statistics. Tunable, not an invariant.
	StatsBatchSize int
}

// LoadConfig reads configuration from a .env file (if present) and the
// environment, applying defaults where unset.
func LoadConfig() (*Config, error) {
	// A missing .env file is fine; real deployments set env vars directly.
	_ = godotenv.Load()

	connMaxLifetime, err := getenvDuration("DB_CONN_MAX_LIFETIME", "30m")
	if err != nil {
		return nil, err
	}
	connMaxIdleTime, err := getenvDuration("DB_CONN_MAX_IDLE_TIME", "5m")
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Database: DatabaseConfig{
			Host:            getenvDefault("DB_HOST", "localhost"),
			Port:            getenvInt("DB_PORT", 5432),
			User:            getenvDefault("DB_USER", "weather"),
			Password:        os.Getenv("DB_PASSWORD"),
			Database:        getenvDefault("DB_NAME", "weather"),
			SSLMode:         getenvDefault("DB_SSLMODE", "disable"),
			MaxOpenConns:    getenvInt("DB_MAX_OPEN_CONNS", 10),
			MaxIdleConns:    getenvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: connMaxLifetime,
			ConnMaxIdleTime: connMaxIdleTime,
		},
		Server: ServerConfig{
			Host: getenvDefault("SERVER_HOST", "0.0.0.0"),
			Port: getenvInt("SERVER_PORT", 8080),
		},
		Logging: LoggingConfig{
			Level: getenvDefault("LOG_LEVEL", "info"),
		},
		Pipeline: PipelineConfig{
			DataDir:        getenvDefault("DATA_DIR", "./wx_data"),
			StatsBatchSize: getenvInt("STATS_BATCH_SIZE", 1000),
		},
	}

	return cfg, nil
}

// Validate checks configuration invariants
func (c *Config) Validate() error {
	if c.Database.Host == "" {
		return fmt.Errorf("DB_HOST is required")
	}
	if c.Database.Port <= 0 || c.Database.Port > 65535 {
		return fmt.Errorf("DB_PORT must be between 1 and 65535")
	}
	if c.Database.Database == "" {
		return fmt.Errorf("DB_NAME is required")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("SERVER_PORT must be between 1 and 65535")
	}
	if c.Pipeline.StatsBatchSize <= 0 {
		return fmt.Errorf("STATS_BATCH_SIZE must be positive")
	}
	return nil
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getenvDuration(key, def string) (time.Duration, error) {
	raw := getenvDefault(key, def)
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

package config

import (
	"fmt"
	"time"

	"peercall-backend/pkg/env"
)

// Config holds all configuration for the signaling service
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	JWT      JWTConfig
	Call     CallConfig
	Log      LogConfig
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port           int
	Environment    string // development, staging, production
	ServiceName    string
	MaxConnections int
}

// DatabaseConfig holds CockroachDB configuration
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
	PoolSize int
	Timeout  time.Duration
}

// JWTConfig holds JWT configuration
type JWTConfig struct {
	Secret        string
	TokenDuration time.Duration
}

// CallConfig holds call session manager configuration
type CallConfig struct {
	RingTimeout        time.Duration
	PresenceSweepEvery time.Duration
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string
	Format string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:           env.GetInt("PORT", 8080),
			Environment:    env.GetString("ENV", "development"),
			ServiceName:    env.GetString("SERVICE_NAME", "peercall-signaling"),
			MaxConnections: env.GetInt("WS_MAX_CONNECTIONS", 1000),
		},
		Database: DatabaseConfig{
			Host:     env.GetString("COCKROACH_HOST", "localhost"),
			Port:     env.GetInt("COCKROACH_PORT", 26257),
			User:     env.GetString("COCKROACH_USER", "root"),
			Password: env.GetStringFromFile("COCKROACH_PASSWORD", ""),
			Database: env.GetString("COCKROACH_DATABASE", "peercall_db"),
			SSLMode:  env.GetString("COCKROACH_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			Host:     env.GetString("REDIS_HOST", "localhost"),
			Port:     env.GetInt("REDIS_PORT", 6379),
			Password: env.GetStringFromFile("REDIS_PASSWORD", ""),
			DB:       env.GetInt("REDIS_DB", 0),
			PoolSize: env.GetInt("REDIS_POOL_SIZE", 10),
			Timeout:  env.GetDuration("REDIS_TIMEOUT", 5*time.Second),
		},
		JWT: JWTConfig{
			Secret:        env.GetStringFromFile("JWT_SECRET", ""),
			TokenDuration: env.GetDuration("JWT_TOKEN_DURATION", 15*time.Minute),
		},
		Call: CallConfig{
			RingTimeout:        env.GetDuration("CALL_RING_TIMEOUT", 30*time.Second),
			PresenceSweepEvery: env.GetDuration("PRESENCE_SWEEP_INTERVAL", 5*time.Minute),
		},
		Log: LogConfig{
			Level:  env.GetString("LOG_LEVEL", "info"),
			Format: env.GetString("LOG_FORMAT", "json"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks required configuration values
func (c *Config) Validate() error {
	if c.JWT.Secret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if len(c.JWT.Secret) < 32 {
		return fmt.Errorf("JWT_SECRET must be at least 32 characters")
	}
	if c.Call.RingTimeout <= 0 {
		return fmt.Errorf("CALL_RING_TIMEOUT must be positive")
	}
	return nil
}

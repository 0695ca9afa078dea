// Package config loads the server configuration from the environment.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Store drivers.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverRedis    = "redis"
)

// Config holds all runtime settings.
type Config struct {
	Port            int           `env:"PORT"                 envDefault:"3000"`
	AllowedOrigins  string        `env:"CORS_ALLOWED_ORIGINS" envDefault:"http://localhost:3000,http://localhost:5173"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT"     envDefault:"30s"`

	StoreDriver   string `env:"STORE_DRIVER"   envDefault:"memory"`
	StoreDSN      string `env:"STORE_DSN"      envDefault:"study_rooms.db"`
	StoreDebug    bool   `env:"STORE_DEBUG"`
	RedisAddr     string `env:"REDIS_ADDR"     envDefault:"localhost:6379"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB"       envDefault:"0"`
	RedisPrefix   string `env:"REDIS_PREFIX"   envDefault:"studyrooms:"`
	HistoryLimit  int    `env:"HISTORY_LIMIT"  envDefault:"50"`

	SweepInterval time.Duration `env:"SWEEP_INTERVAL" envDefault:"30s"`
	WriteTimeout  time.Duration `env:"WRITE_TIMEOUT"  envDefault:"10s"`
	ChatRate      float64       `env:"CHAT_RATE"      envDefault:"10"`
	ChatBurst     int           `env:"CHAT_BURST"     envDefault:"20"`
}

// Load reads an optional .env file and parses the environment into a Config.
func Load() (Config, error) {
	// .env is optional; a missing file is not an error.
	_ = godotenv.Load()

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks settings that have no safe fallback.
func (c Config) Validate() error {
	switch c.StoreDriver {
	case DriverMemory, DriverSQLite, DriverPostgres, DriverRedis:
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid PORT %d", c.Port)
	}
	if c.HistoryLimit <= 0 {
		return fmt.Errorf("HISTORY_LIMIT must be positive, got %d", c.HistoryLimit)
	}
	if c.SweepInterval <= 0 {
		return fmt.Errorf("SWEEP_INTERVAL must be positive, got %s", c.SweepInterval)
	}
	return nil
}

// Addr returns the HTTP listen address.
func (c Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

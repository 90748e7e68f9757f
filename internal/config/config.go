// Package config loads the engine's runtime configuration from
// environment variables or a YAML file, and loads blueprint documents
// from YAML.
//
// Grounded on smilemakc-mbflow's internal/infrastructure/config.Load()
// (env-var-with-fallback Config loading) for the env path, and
// C360Studio-semspec's config.Config/DefaultConfig/Validate/LoadFromFile
// (yaml.Unmarshal over a defaulted struct, plus an explicit Validate
// step) for the YAML-file path and its shape.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds every tunable the engine's runtime components need:
// process-level settings the teacher's Config already had (Port,
// LogLevel, DatabaseDSN), plus the distributed adapter's coordination
// store addresses and timing knobs, which have no teacher analogue
// because the teacher runs in a single process.
type Config struct {
	Port        string `yaml:"port"`
	LogLevel    string `yaml:"logLevel"`
	DatabaseDSN string `yaml:"databaseDsn"`

	RedisAddr string `yaml:"redisAddr"`
	NATSURL   string `yaml:"natsUrl"`

	HeartbeatInterval time.Duration `yaml:"heartbeatInterval"`
	PillTTL           time.Duration `yaml:"pillTtl"`
	NodelockTTL       time.Duration `yaml:"nodelockTtl"`
}

// DefaultConfig returns a Config with the same sensible defaults
// DefaultConfig establishes for Semspec's settings, sized for this
// engine's own tunables.
func DefaultConfig() *Config {
	return &Config{
		Port:              "8080",
		LogLevel:          "info",
		DatabaseDSN:       "",
		RedisAddr:         "localhost:6379",
		NATSURL:           "nats://127.0.0.1:4222",
		HeartbeatInterval: 10 * time.Second,
		PillTTL:           time.Hour,
		NodelockTTL:       30 * time.Second,
	}
}

// Validate checks that the configuration is usable, the same
// fail-fast-on-missing-required-field shape Validate takes for Semspec's
// model settings.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("port is required")
	}
	if c.HeartbeatInterval <= 0 {
		return fmt.Errorf("heartbeatInterval must be positive")
	}
	if c.PillTTL <= 0 {
		return fmt.Errorf("pillTtl must be positive")
	}
	if c.NodelockTTL <= 0 {
		return fmt.Errorf("nodelockTtl must be positive")
	}
	return nil
}

// Load reads Config fields from environment variables, falling back to
// DefaultConfig's values, the same getEnv(key, fallback)-per-field shape
// the teacher's own Load uses.
func Load() *Config {
	def := DefaultConfig()
	return &Config{
		Port:              getEnv("FLOWCRAFT_PORT", def.Port),
		LogLevel:          getEnv("FLOWCRAFT_LOG_LEVEL", def.LogLevel),
		DatabaseDSN:       getEnv("FLOWCRAFT_DATABASE_DSN", def.DatabaseDSN),
		RedisAddr:         getEnv("FLOWCRAFT_REDIS_ADDR", def.RedisAddr),
		NATSURL:           getEnv("FLOWCRAFT_NATS_URL", def.NATSURL),
		HeartbeatInterval: getEnvDuration("FLOWCRAFT_HEARTBEAT_INTERVAL", def.HeartbeatInterval),
		PillTTL:           getEnvDuration("FLOWCRAFT_PILL_TTL", def.PillTTL),
		NodelockTTL:       getEnvDuration("FLOWCRAFT_NODELOCK_TTL", def.NodelockTTL),
	}
}

// LoadFromFile reads and parses a YAML config file over DefaultConfig's
// values, the same DefaultConfig()-then-yaml.Unmarshal-then-Validate
// shape LoadFromFile uses.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return d
}

// GetPortInt returns Port as an integer, the same convenience accessor
// the teacher's Config offers its string-typed Port field.
func (c *Config) GetPortInt() int {
	p, _ := strconv.Atoi(c.Port)
	return p
}

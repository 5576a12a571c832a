// Package config provides configuration management for the realtime
// standalone server. Settings load from an optional YAML file, with
// environment variables taking precedence, and sensible defaults for
// everything else.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the realtime server.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Engine   EngineConfig   `yaml:"engine"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// DatabaseConfig holds database connection configuration. An empty Driver
// disables persistence: revocations and activity live in memory only.
type DatabaseConfig struct {
	Driver   string `yaml:"driver"` // mysql, postgres, sqlite3, or empty for none
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	Prefix   string `yaml:"prefix"` // Table prefix (default: "realtime_")
}

// EngineConfig holds realtime engine configuration.
type EngineConfig struct {
	AcknowledgeTimeout  time.Duration `yaml:"acknowledge_timeout"` // Acknowledged publication wait
	FanoutLimit         int           `yaml:"fanout_limit"`        // Concurrent recipient deliveries
	ActivityTTL         time.Duration `yaml:"activity_ttl"`        // Session activity retention
	CacheCapacity       int           `yaml:"cache_capacity"`      // In-memory cache bound
	RevocationStateful  time.Duration `yaml:"revocation_stateful_ttl"`
	RevocationStateless time.Duration `yaml:"revocation_stateless_ttl"`
	EnableNotifications bool          `yaml:"enable_notifications"`
}

// Load builds the configuration: defaults, then the YAML file at path (if
// path is non-empty), then environment variables.
func Load(path string) (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8080,
		},
		Database: DatabaseConfig{
			Host:   "localhost",
			Prefix: "realtime_",
		},
		Engine: EngineConfig{
			AcknowledgeTimeout:  60 * time.Second,
			FanoutLimit:         100,
			ActivityTTL:         60 * time.Second,
			CacheCapacity:       10000,
			EnableNotifications: true,
		},
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	cfg.applyEnv()

	if cfg.Database.Driver != "" && cfg.Database.Driver != "sqlite3" && cfg.Database.Password == "" {
		return nil, fmt.Errorf("DB_PASSWORD is required for driver %q", cfg.Database.Driver)
	}

	return cfg, nil
}

// applyEnv overlays environment variables onto the configuration.
func (c *Config) applyEnv() {
	c.Server.Host = getEnv("SERVER_HOST", c.Server.Host)
	c.Server.Port = getEnvInt("SERVER_PORT", c.Server.Port)

	c.Database.Driver = getEnv("DB_DRIVER", c.Database.Driver)
	c.Database.Host = getEnv("DB_HOST", c.Database.Host)
	c.Database.Port = getEnvInt("DB_PORT", c.Database.Port)
	c.Database.User = getEnv("DB_USER", c.Database.User)
	c.Database.Password = getEnv("DB_PASSWORD", c.Database.Password)
	c.Database.Database = getEnv("DB_NAME", c.Database.Database)
	c.Database.Prefix = getEnv("DB_PREFIX", c.Database.Prefix)

	c.Engine.AcknowledgeTimeout = getEnvDuration("REALTIME_ACK_TIMEOUT", c.Engine.AcknowledgeTimeout)
	c.Engine.FanoutLimit = getEnvInt("REALTIME_FANOUT_LIMIT", c.Engine.FanoutLimit)
	c.Engine.ActivityTTL = getEnvDuration("REALTIME_ACTIVITY_TTL", c.Engine.ActivityTTL)
	c.Engine.CacheCapacity = getEnvInt("REALTIME_CACHE_CAPACITY", c.Engine.CacheCapacity)
	c.Engine.RevocationStateful = getEnvDuration("REALTIME_REVOCATION_STATEFUL_TTL", c.Engine.RevocationStateful)
	c.Engine.RevocationStateless = getEnvDuration("REALTIME_REVOCATION_STATELESS_TTL", c.Engine.RevocationStateless)
	c.Engine.EnableNotifications = getEnvBool("REALTIME_ENABLE_NOTIFICATIONS", c.Engine.EnableNotifications)
}

// PersistenceEnabled reports whether a database driver is configured.
func (c *Config) PersistenceEnabled() bool {
	return c.Database.Driver != ""
}

// GetDSN returns the database connection string based on driver.
func (c *DatabaseConfig) GetDSN() string {
	switch strings.ToLower(c.Driver) {
	case "mysql":
		return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true",
			c.User, c.Password, c.Host, c.Port, c.Database)
	case "postgres":
		return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
			c.Host, c.Port, c.User, c.Password, c.Database)
	case "sqlite3":
		return c.Database // SQLite uses file path as DSN
	default:
		return ""
	}
}

// getEnv retrieves environment variable or returns default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt retrieves environment variable as integer or returns default value.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvBool retrieves environment variable as boolean or returns default value.
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

// getEnvDuration retrieves environment variable as a duration string
// ("30s", "5m") or returns default value.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

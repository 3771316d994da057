// Package config provides configuration management for the coordination
// room server. It supports loading configuration from environment
// variables, config files, and defaults.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration sections for the server.
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Database    DatabaseConfig    `mapstructure:"database"`
	NATS        NATSConfig        `mapstructure:"nats"`
	Room        RoomConfig        `mapstructure:"room"`
	Store       StoreConfig       `mapstructure:"store"`
	Docs        DocsConfig        `mapstructure:"docs"`
	Maintenance MaintenanceConfig `mapstructure:"maintenance"`
	Logging     LoggingConfig     `mapstructure:"logging"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	ReadTimeout  int    `mapstructure:"readTimeout"`  // in seconds
	WriteTimeout int    `mapstructure:"writeTimeout"` // in seconds

	// BroadcastURL is the base URL the Task Service posts room broadcasts
	// to. Empty means the local server (http://127.0.0.1:{port}).
	BroadcastURL string `mapstructure:"broadcastUrl"`
}

// DatabaseConfig holds task store configuration. Driver selects the
// backend: "sqlite3" (file at Path), "pgx" (DSN fields), or "memory".
type DatabaseConfig struct {
	Driver   string `mapstructure:"driver"`
	Path     string `mapstructure:"path"` // sqlite file path
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbName"`
	SSLMode  string `mapstructure:"sslMode"`
	MaxConns int    `mapstructure:"maxConns"`
	MinConns int    `mapstructure:"minConns"`
}

// NATSConfig holds NATS messaging configuration. An empty URL selects the
// in-memory event bus.
type NATSConfig struct {
	URL           string `mapstructure:"url"`
	ClientID      string `mapstructure:"clientId"`
	MaxReconnects int    `mapstructure:"maxReconnects"`
}

// RoomConfig holds the per-room coordination timing and cap settings.
type RoomConfig struct {
	HeartbeatIntervalSec      int `mapstructure:"heartbeatInterval"`      // seconds
	BlockedSummaryIntervalSec int `mapstructure:"blockedSummaryInterval"` // seconds
	UnblockPingIntervalSec    int `mapstructure:"unblockPingInterval"`    // seconds
	MaxQueryHistory           int `mapstructure:"maxQueryHistory"`
	MaxCoordinationPatterns   int `mapstructure:"maxCoordinationPatterns"`
}

// StoreConfig holds the retry policy for transient store failures.
type StoreConfig struct {
	RetryAttempts int `mapstructure:"retryAttempts"`
	RetryBaseMs   int `mapstructure:"retryBaseMs"`
	RetryFactor   int `mapstructure:"retryFactor"`
}

// DocsConfig holds the docs-tool collaborator configuration.
type DocsConfig struct {
	// CatalogPath points at the YAML knowledge catalog. Empty disables the
	// docs tool; docs.query then answers with docs.error.
	CatalogPath string `mapstructure:"catalogPath"`
	MaxResults  int    `mapstructure:"maxResults"`
}

// MaintenanceConfig holds the background maintenance scheduler settings.
type MaintenanceConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Schedule string `mapstructure:"schedule"` // 5-field cron expression
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"outputPath"`
}

// ReadTimeoutDuration returns the read timeout as a time.Duration.
func (s *ServerConfig) ReadTimeoutDuration() time.Duration {
	return time.Duration(s.ReadTimeout) * time.Second
}

// WriteTimeoutDuration returns the write timeout as a time.Duration.
func (s *ServerConfig) WriteTimeoutDuration() time.Duration {
	return time.Duration(s.WriteTimeout) * time.Second
}

// HeartbeatInterval returns the heartbeat period as a time.Duration.
func (r *RoomConfig) HeartbeatInterval() time.Duration {
	return time.Duration(r.HeartbeatIntervalSec) * time.Second
}

// BlockedSummaryInterval returns the blocked-summary period as a time.Duration.
func (r *RoomConfig) BlockedSummaryInterval() time.Duration {
	return time.Duration(r.BlockedSummaryIntervalSec) * time.Second
}

// UnblockPingInterval returns the ack-reminder period as a time.Duration.
func (r *RoomConfig) UnblockPingInterval() time.Duration {
	return time.Duration(r.UnblockPingIntervalSec) * time.Second
}

// RetryBase returns the initial backoff delay as a time.Duration.
func (s *StoreConfig) RetryBase() time.Duration {
	return time.Duration(s.RetryBaseMs) * time.Millisecond
}

// detectDefaultLogFormat returns "json" in production-looking environments
// and "console" for terminal use.
func detectDefaultLogFormat() string {
	if os.Getenv("KUBERNETES_SERVICE_HOST") != "" {
		return "json"
	}
	if env := os.Getenv("CHATROOM_ENV"); env == "production" || env == "prod" {
		return "json"
	}
	return "console"
}

// setDefaults configures default values for all configuration options.
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.readTimeout", 30)
	v.SetDefault("server.writeTimeout", 30)
	v.SetDefault("server.broadcastUrl", "")

	// Database defaults - SQLite file unless overridden
	v.SetDefault("database.driver", "sqlite3")
	v.SetDefault("database.path", "chatroom.db")
	v.SetDefault("database.host", "")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "chatroom")
	v.SetDefault("database.password", "")
	v.SetDefault("database.dbName", "chatroom")
	v.SetDefault("database.sslMode", "disable")
	v.SetDefault("database.maxConns", 25)
	v.SetDefault("database.minConns", 5)

	// NATS defaults - empty URL means use in-memory event bus
	v.SetDefault("nats.url", "")
	v.SetDefault("nats.clientId", "chatroom-server")
	v.SetDefault("nats.maxReconnects", 10)

	// Room coordination defaults
	v.SetDefault("room.heartbeatInterval", 30)
	v.SetDefault("room.blockedSummaryInterval", 20)
	v.SetDefault("room.unblockPingInterval", 10)
	v.SetDefault("room.maxQueryHistory", 100)
	v.SetDefault("room.maxCoordinationPatterns", 50)

	// Store retry defaults
	v.SetDefault("store.retryAttempts", 3)
	v.SetDefault("store.retryBaseMs", 150)
	v.SetDefault("store.retryFactor", 2)

	// Docs tool defaults
	v.SetDefault("docs.catalogPath", "")
	v.SetDefault("docs.maxResults", 3)

	// Maintenance defaults
	v.SetDefault("maintenance.enabled", true)
	v.SetDefault("maintenance.schedule", "*/5 * * * *")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", detectDefaultLogFormat())
	v.SetDefault("logging.outputPath", "stdout")
}

// Load reads configuration from environment variables, config file, and
// defaults. Environment variables use the prefix CHATROOM_ with snake_case
// naming. The config file should be named config.yaml and placed in the
// current directory, ./config, or /etc/chatroom/.
func Load() (*Config, error) {
	return LoadWithPath("")
}

// LoadWithPath reads configuration from the specified path or default locations.
func LoadWithPath(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix("CHATROOM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// AutomaticEnv does not handle camelCase to SNAKE_CASE conversion, so
	// bind the keys whose env var naming differs from the config key.
	_ = v.BindEnv("database.path", "CHATROOM_DB_PATH", "CHATROOM_DATABASE_PATH")
	_ = v.BindEnv("server.broadcastUrl", "CHATROOM_SERVER_BROADCAST_URL")
	_ = v.BindEnv("docs.catalogPath", "CHATROOM_DOCS_CATALOG_PATH")

	v.SetConfigName("config")
	v.SetConfigType("yaml")

	if configPath != "" {
		v.AddConfigPath(configPath)
	}
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/chatroom/")

	// Read config file (ignore if not found)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// validate checks that all required configuration fields are set.
func validate(cfg *Config) error {
	var errs []string

	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		errs = append(errs, "server.port must be between 1 and 65535")
	}

	switch cfg.Database.Driver {
	case "sqlite3":
		if cfg.Database.Path == "" {
			errs = append(errs, "database.path is required for the sqlite3 driver")
		}
	case "pgx":
		if cfg.Database.Host == "" {
			errs = append(errs, "database.host is required for the pgx driver")
		}
		if cfg.Database.User == "" {
			errs = append(errs, "database.user is required for the pgx driver")
		}
		if cfg.Database.DBName == "" {
			errs = append(errs, "database.dbName is required for the pgx driver")
		}
	case "memory":
	default:
		errs = append(errs, "database.driver must be one of: sqlite3, pgx, memory")
	}

	if cfg.Room.HeartbeatIntervalSec <= 0 {
		errs = append(errs, "room.heartbeatInterval must be positive")
	}
	if cfg.Room.BlockedSummaryIntervalSec <= 0 {
		errs = append(errs, "room.blockedSummaryInterval must be positive")
	}
	if cfg.Room.UnblockPingIntervalSec <= 0 {
		errs = append(errs, "room.unblockPingInterval must be positive")
	}
	if cfg.Room.MaxQueryHistory <= 0 {
		errs = append(errs, "room.maxQueryHistory must be positive")
	}
	if cfg.Room.MaxCoordinationPatterns <= 0 {
		errs = append(errs, "room.maxCoordinationPatterns must be positive")
	}

	if cfg.Store.RetryAttempts <= 0 {
		errs = append(errs, "store.retryAttempts must be positive")
	}
	if cfg.Store.RetryBaseMs <= 0 {
		errs = append(errs, "store.retryBaseMs must be positive")
	}
	if cfg.Store.RetryFactor < 1 {
		errs = append(errs, "store.retryFactor must be at least 1")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(cfg.Logging.Level)] {
		errs = append(errs, "logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "console": true, "text": true}
	if !validFormats[strings.ToLower(cfg.Logging.Format)] {
		errs = append(errs, "logging.format must be one of: json, console, text")
	}

	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}

	return nil
}

// DSN returns the PostgreSQL connection string.
func (d *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode,
	)
}

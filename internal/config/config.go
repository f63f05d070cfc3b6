package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// ErrInvalid marks configuration rejected by Validate.
var ErrInvalid = errors.New("invalid config")

// History backends.
const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
)

// Config holds server configuration values.
type Config struct {
	Host              string        `mapstructure:"host" yaml:"host"`
	Port              string        `mapstructure:"port" yaml:"port"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`

	LogLevel  string `mapstructure:"log_level" yaml:"log_level"`
	LogFormat string `mapstructure:"log_format" yaml:"log_format"`

	DefaultUser string `mapstructure:"default_user" yaml:"default_user"`
	TimeFormat  string `mapstructure:"time_format" yaml:"time_format"`
	TimeZone    string `mapstructure:"time_zone" yaml:"time_zone"`

	HistoryBackend string `mapstructure:"history_backend" yaml:"history_backend"`
	// HistoryLimit caps retained messages; 0 keeps every message for the life of the process.
	HistoryLimit int    `mapstructure:"history_limit" yaml:"history_limit"`
	DatabasePath string `mapstructure:"database_path" yaml:"database_path"`

	ClientBuffer    int      `mapstructure:"client_buffer" yaml:"client_buffer"`
	MaxMessageBytes int64    `mapstructure:"max_message_bytes" yaml:"max_message_bytes"`
	AllowedOrigins  []string `mapstructure:"allowed_origins" yaml:"allowed_origins"`

	// RequireAuth turns the open relay into one that only accepts signed tokens.
	RequireAuth bool   `mapstructure:"require_auth" yaml:"require_auth"`
	JWTSecret   string `mapstructure:"jwt_secret" yaml:"jwt_secret"`
	JWTIssuer   string `mapstructure:"jwt_issuer" yaml:"jwt_issuer"`
	JWTAudience string `mapstructure:"jwt_audience" yaml:"jwt_audience"`
}

// Default returns configuration with reasonable starter defaults.
func Default() Config {
	return Config{
		Port:              "5000",
		ReadHeaderTimeout: 5 * time.Second,
		ShutdownTimeout:   5 * time.Second,
		LogLevel:          "info",
		LogFormat:         "console",
		DefaultUser:       "Anonymous",
		TimeFormat:        "15:04:05",
		TimeZone:          "Local",
		HistoryBackend:    BackendMemory,
		DatabasePath:      ":memory:",
		ClientBuffer:      64,
		MaxMessageBytes:   1 << 20,
		AllowedOrigins:    []string{"*"},
		JWTIssuer:         "chatrelay",
	}
}

// Addr is the listen address built from Host and Port.
func (c Config) Addr() string {
	return net.JoinHostPort(c.Host, c.Port)
}

// Location resolves TimeZone.
func (c Config) Location() (*time.Location, error) {
	switch c.TimeZone {
	case "", "Local":
		return time.Local, nil
	case "UTC":
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(c.TimeZone)
	if err != nil {
		return nil, fmt.Errorf("load time zone %q: %w", c.TimeZone, err)
	}
	return loc, nil
}

// AllowsAnyOrigin reports whether the origin list contains "*".
func (c Config) AllowsAnyOrigin() bool {
	for _, o := range c.AllowedOrigins {
		if strings.TrimSpace(o) == "*" {
			return true
		}
	}
	return false
}

// Validate checks that the configuration is safe to run.
func (c Config) Validate() error {
	port, err := strconv.Atoi(c.Port)
	if err != nil || port < 0 || port > 65535 {
		return fmt.Errorf("%w: port must be a number between 0 and 65535, got %q", ErrInvalid, c.Port)
	}
	if c.HistoryLimit < 0 {
		return fmt.Errorf("%w: history_limit must not be negative", ErrInvalid)
	}
	switch c.HistoryBackend {
	case BackendMemory, BackendSQLite:
	default:
		return fmt.Errorf("%w: history_backend must be %q or %q, got %q", ErrInvalid, BackendMemory, BackendSQLite, c.HistoryBackend)
	}
	if c.HistoryBackend == BackendSQLite && c.DatabasePath == "" {
		return fmt.Errorf("%w: database_path is required for the sqlite backend", ErrInvalid)
	}
	if c.ClientBuffer < 1 {
		return fmt.Errorf("%w: client_buffer must be at least 1", ErrInvalid)
	}
	if c.MaxMessageBytes <= 0 {
		return fmt.Errorf("%w: max_message_bytes must be positive", ErrInvalid)
	}
	if c.TimeFormat == "" {
		return fmt.Errorf("%w: time_format must not be empty", ErrInvalid)
	}
	if _, err := c.Location(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if len(c.AllowedOrigins) == 0 {
		return fmt.Errorf("%w: allowed_origins must list at least one origin or \"*\"", ErrInvalid)
	}
	for _, origin := range c.AllowedOrigins {
		origin = strings.TrimSpace(origin)
		if origin == "*" {
			continue
		}
		u, err := url.Parse(origin)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("%w: allowed origin %q must look like https://host[:port]", ErrInvalid, origin)
		}
	}
	if c.RequireAuth && c.JWTSecret == "" {
		return fmt.Errorf("%w: jwt_secret is required when require_auth is true", ErrInvalid)
	}
	return nil
}

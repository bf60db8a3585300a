// Package config loads and validates the fbmon configuration file.
package config

import (
	"bytes"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/tessro/fbmon/internal/paths"
)

// Environment variables that override file settings.
const (
	EnvHost = "FBMON_HOST"
	EnvPort = "FBMON_PORT"
)

// Default values.
const (
	DefaultHost              = "127.0.0.1"
	DefaultPort              = 5005
	DefaultNamespace         = "/api"
	DefaultPath              = "/socket.io/"
	DefaultReconnectDelay    = time.Second
	DefaultReconnectMaxDelay = 30 * time.Second
	DefaultLogLevel          = "info"
)

// Config is the fbmon configuration.
type Config struct {
	Server ServerConfig `toml:"server"`
	Client ClientConfig `toml:"client"`
	Log    LogConfig    `toml:"log"`
}

// ServerConfig locates the optimizer server.
type ServerConfig struct {
	Host      string `toml:"host"`
	Port      int    `toml:"port"`
	Namespace string `toml:"namespace"`
	Path      string `toml:"path"`
	Secure    bool   `toml:"secure"`
}

// ClientConfig tunes the connection.
type ClientConfig struct {
	// RequestTimeout fails unanswered requests. Zero waits forever.
	RequestTimeout    time.Duration `toml:"request_timeout"`
	ReconnectDelay    time.Duration `toml:"reconnect_delay"`
	ReconnectMaxDelay time.Duration `toml:"reconnect_max_delay"`
	// ReconnectAttempts gives up after this many failed attempts. Zero retries forever.
	ReconnectAttempts int `toml:"reconnect_attempts"`
	// SelectFirstProject selects the first listed project on startup.
	SelectFirstProject bool `toml:"select_first_project"`
}

// LogConfig controls logging.
type LogConfig struct {
	Level string `toml:"level"`
	// File is the log file path. Empty uses the default location.
	File string `toml:"file"`
}

// Defaults returns the configuration used when no file exists.
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Host:      DefaultHost,
			Port:      DefaultPort,
			Namespace: DefaultNamespace,
			Path:      DefaultPath,
		},
		Client: ClientConfig{
			ReconnectDelay:     DefaultReconnectDelay,
			ReconnectMaxDelay:  DefaultReconnectMaxDelay,
			SelectFirstProject: true,
		},
		Log: LogConfig{
			Level: DefaultLogLevel,
		},
	}
}

// Load reads the config file from its default location and applies
// environment overrides. A missing file yields the defaults.
func Load() (*Config, error) {
	path, err := paths.ConfigPath()
	if err != nil {
		return nil, err
	}
	return LoadFromPath(path)
}

// LoadFromPath reads the config file at path over the defaults and applies
// environment overrides. A missing file yields the defaults.
func LoadFromPath(path string) (*Config, error) {
	cfg := Defaults()
	if _, err := toml.DecodeFile(path, cfg); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("load config %s: %w", path, err)
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// ApplyEnv overrides the server address from FBMON_HOST and FBMON_PORT.
func (c *Config) ApplyEnv() error {
	if host := strings.TrimSpace(os.Getenv(EnvHost)); host != "" {
		c.Server.Host = host
	}
	if port := strings.TrimSpace(os.Getenv(EnvPort)); port != "" {
		n, err := strconv.Atoi(port)
		if err != nil {
			return &ValidationError{
				Field:   EnvPort,
				Value:   port,
				Message: "must be a number",
				Err:     ErrInvalidPort,
			}
		}
		c.Server.Port = n
	}
	return nil
}

// Validate checks every field.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Server.Host) == "" {
		return &ValidationError{Field: "server.host", Message: "cannot be empty", Err: ErrEmptyHost}
	}
	if err := ValidatePort(c.Server.Port); err != nil {
		return err
	}
	if err := ValidateNamespace(c.Server.Namespace); err != nil {
		return err
	}
	if err := ValidatePath(c.Server.Path); err != nil {
		return err
	}
	durations := []struct {
		field string
		d     time.Duration
	}{
		{"client.request_timeout", c.Client.RequestTimeout},
		{"client.reconnect_delay", c.Client.ReconnectDelay},
		{"client.reconnect_max_delay", c.Client.ReconnectMaxDelay},
	}
	for _, d := range durations {
		if err := ValidateDuration(d.field, d.d); err != nil {
			return err
		}
	}
	if c.Client.ReconnectAttempts < 0 {
		return &ValidationError{
			Field:   "client.reconnect_attempts",
			Value:   strconv.Itoa(c.Client.ReconnectAttempts),
			Message: "cannot be negative",
			Err:     ErrNegativeValue,
		}
	}
	return ValidateLogLevel(c.Log.Level)
}

// Encode renders the configuration as TOML.
func (c *Config) Encode() ([]byte, error) {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(c); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Address returns host:port of the server.
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

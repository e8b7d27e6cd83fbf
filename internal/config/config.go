// Package config loads, validates and saves the shell's TOML configuration.
//
// The file lives at <data-dir>/config.toml and is seeded on first run from
// the embedded config.default.toml. Values left out of the file keep their
// defaults. The TDENGINE_CLOUD_URL and TDENGINE_CLOUD_TOKEN environment
// variables override the connection section; see [Config.ApplyEnv].
package config

//go:generate go run ../../cmd/genconfig

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/bmatcuk/doublestar/v4"
	"tools.zach/dev/tshell/internal/atomicfile"
	"tools.zach/dev/tshell/internal/cancel"
	"tools.zach/dev/tshell/internal/client"
	"tools.zach/dev/tshell/internal/logger"
)

// Environment variables read by [Config.ApplyEnv].
const (
	EnvCloudURL   = "TDENGINE_CLOUD_URL"
	EnvCloudToken = "TDENGINE_CLOUD_TOKEN"
)

// ///////////////////////////////////////////////
// Configuration Types
// ///////////////////////////////////////////////

// Config represents the top-level shell configuration.
type Config struct {
	// Connection locates and authenticates the server.
	Connection ConnectionConfig `toml:"connection"`
	// Cancel controls what an interrupt signal does.
	Cancel CancelConfig `toml:"cancel"`
	// History controls the statement history file.
	History HistoryConfig `toml:"history"`
	// Shell holds interactive prompt settings.
	Shell ShellConfig `toml:"shell"`
	// Log holds logging settings.
	Log LogConfig `toml:"log"`
}

// ConnectionConfig holds REST connection settings.
type ConnectionConfig struct {
	// Scheme is "http" or "https".
	Scheme string `toml:"scheme"`
	// Host is the server host name or address.
	Host string `toml:"host"`
	// Port is the REST port.
	Port int `toml:"port"`
	// User and Password are used for basic auth when Token is empty.
	User     string `toml:"user"`
	Password string `toml:"password"`
	// Database is the default database, empty for none.
	Database string `toml:"database"`
	// Token authenticates cloud instances.
	Token string `toml:"token"`
	// Retries is how often a request is retried on connection errors.
	Retries int `toml:"retries"`
	// TimeoutSeconds bounds one request attempt; 0 disables the limit.
	TimeoutSeconds int `toml:"timeout_seconds"`
}

// CancelConfig holds interrupt handling settings.
type CancelConfig struct {
	// Policy is "stop" (cancel the running query) or "exit" (quit the shell).
	Policy string `toml:"policy"`
	// RetryMinMS and RetryMaxMS bound the backoff after a failed wait.
	RetryMinMS int `toml:"retry_min_ms"`
	RetryMaxMS int `toml:"retry_max_ms"`
	// WarnAfterFailures is how many consecutive wait failures trigger a warning.
	WarnAfterFailures int `toml:"warn_after_failures"`
}

// HistoryConfig holds statement history settings.
type HistoryConfig struct {
	// Enabled turns history recording on.
	Enabled bool `toml:"enabled"`
	// MaxEntries bounds the history file.
	MaxEntries int `toml:"max_entries"`
	// Ignore lists glob patterns; matching statements are not recorded.
	Ignore []string `toml:"ignore"`
}

// ShellConfig holds interactive prompt settings.
type ShellConfig struct {
	// Prompt is printed before each statement.
	Prompt string `toml:"prompt"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	// Level is the minimum log level (trace, debug, info, warn, error, fail).
	Level string `toml:"level"`
	// MaxSizeMB is the maximum log file size in megabytes before rotation.
	MaxSizeMB int `toml:"max_size_mb"`
}

// ///////////////////////////////////////////////
// Default Configuration
// ///////////////////////////////////////////////

// DefaultConfig returns a Config populated with defaults that reach a local
// server with its stock credentials.
func DefaultConfig() *Config {
	return &Config{
		Connection: ConnectionConfig{
			Scheme:   "http",
			Host:     "localhost",
			Port:     6041,
			User:     "root",
			Password: "taosdata",
			Retries:  2,
		},
		Cancel: CancelConfig{
			Policy:            string(cancel.PolicyStop),
			RetryMinMS:        10,
			RetryMaxMS:        1000,
			WarnAfterFailures: 10,
		},
		History: HistoryConfig{
			Enabled:    true,
			MaxEntries: 1000,
			Ignore:     []string{},
		},
		Shell: ShellConfig{
			Prompt: "tshell> ",
		},
		Log: LogConfig{
			Level:     "info",
			MaxSizeMB: 10,
		},
	}
}

// ExampleConfig returns the Config written to config.default.toml.
func ExampleConfig() *Config {
	return DefaultConfig()
}

// ///////////////////////////////////////////////
// Loading and Saving
// ///////////////////////////////////////////////

// Load reads the configuration at path. A missing file yields DefaultConfig.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultConfig(), nil
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes TOML over DefaultConfig and validates the result.
func Parse(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	md, err := toml.Decode(string(data), cfg)
	if err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, fmt.Errorf("parse config: unknown keys: %s", strings.Join(keys, ", "))
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

// Save writes the config to path as TOML. The file may hold a password, so it
// is written owner-only.
func (c *Config) Save(path string) error {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(c); err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	return atomicfile.Write(path, buf.Bytes(), 0o600)
}

// ///////////////////////////////////////////////
// Environment Overrides
// ///////////////////////////////////////////////

// ApplyEnv applies cloud overrides read through getenv. A URL such as
// "https://gw.cloud.example:443" sets scheme, host and port; a bare host
// keeps the configured port. A port that does not parse is an error.
func (c *Config) ApplyEnv(getenv func(string) string) error {
	if raw := strings.TrimSpace(getenv(EnvCloudURL)); raw != "" {
		scheme := c.Connection.Scheme
		rest := raw
		for _, s := range []string{"http", "https"} {
			if after, ok := strings.CutPrefix(raw, s+"://"); ok {
				scheme, rest = s, after
			}
		}
		rest = strings.TrimRight(rest, "/")

		host, port, err := splitHostPort(rest, c.Connection.Port)
		if err != nil {
			return fmt.Errorf("%s: %w in %q", EnvCloudURL, err, raw)
		}
		if host == "" {
			return fmt.Errorf("%s: missing host in %q", EnvCloudURL, raw)
		}
		c.Connection.Scheme, c.Connection.Host, c.Connection.Port = scheme, host, port
	}
	if tok := strings.TrimSpace(getenv(EnvCloudToken)); tok != "" {
		c.Connection.Token = tok
	}
	return nil
}

// splitHostPort splits "host:port", "[v6]:port", "[v6]" or "host". A missing
// port yields def. Brackets are stripped from IPv6 hosts.
func splitHostPort(s string, def int) (string, int, error) {
	host, portStr := s, ""
	if rest, ok := strings.CutPrefix(s, "["); ok {
		end := strings.IndexByte(rest, ']')
		if end < 0 {
			return "", 0, errors.New("unclosed bracket")
		}
		host, portStr = rest[:end], rest[end+1:]
		if portStr != "" {
			p, ok := strings.CutPrefix(portStr, ":")
			if !ok {
				return "", 0, errors.New("invalid port")
			}
			portStr = p
		} else {
			return host, def, nil
		}
	} else if i := strings.LastIndexByte(s, ':'); i >= 0 {
		host, portStr = s[:i], s[i+1:]
	} else {
		return host, def, nil
	}

	p, err := strconv.Atoi(portStr)
	if err != nil || p <= 0 || p > 65535 {
		return "", 0, errors.New("invalid port")
	}
	return host, p, nil
}

// ///////////////////////////////////////////////
// Validation
// ///////////////////////////////////////////////

// Validate checks that all configuration values are within acceptable ranges.
func (c *Config) Validate() error {
	switch c.Connection.Scheme {
	case "http", "https":
	default:
		return fmt.Errorf("invalid connection.scheme %q: must be http or https", c.Connection.Scheme)
	}
	if c.Connection.Host == "" {
		return fmt.Errorf("connection.host must not be empty")
	}
	if c.Connection.Port <= 0 || c.Connection.Port > 65535 {
		return fmt.Errorf("connection.port must be 1-65535, got %d", c.Connection.Port)
	}
	if c.Connection.Retries < 0 {
		return fmt.Errorf("connection.retries must be >= 0, got %d", c.Connection.Retries)
	}
	if c.Connection.TimeoutSeconds < 0 {
		return fmt.Errorf("connection.timeout_seconds must be >= 0, got %d", c.Connection.TimeoutSeconds)
	}

	if _, err := cancel.ParsePolicy(c.Cancel.Policy); err != nil {
		return fmt.Errorf("cancel.policy: %w", err)
	}
	if c.Cancel.RetryMinMS <= 0 {
		return fmt.Errorf("cancel.retry_min_ms must be > 0, got %d", c.Cancel.RetryMinMS)
	}
	if c.Cancel.RetryMaxMS < c.Cancel.RetryMinMS {
		return fmt.Errorf("cancel.retry_max_ms (%d) must be >= retry_min_ms (%d)", c.Cancel.RetryMaxMS, c.Cancel.RetryMinMS)
	}
	if c.Cancel.WarnAfterFailures <= 0 {
		return fmt.Errorf("cancel.warn_after_failures must be > 0, got %d", c.Cancel.WarnAfterFailures)
	}

	if c.History.MaxEntries <= 0 {
		return fmt.Errorf("history.max_entries must be > 0, got %d", c.History.MaxEntries)
	}
	for _, p := range c.History.Ignore {
		if !doublestar.ValidatePattern(p) {
			return fmt.Errorf("invalid history.ignore pattern %q", p)
		}
	}

	if _, err := logger.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	if c.Log.MaxSizeMB <= 0 {
		return fmt.Errorf("log.max_size_mb must be > 0, got %d", c.Log.MaxSizeMB)
	}
	return nil
}

// ///////////////////////////////////////////////
// Component Options
// ///////////////////////////////////////////////

// ClientOptions returns the REST client options for this config.
func (c *Config) ClientOptions() client.Options {
	return client.Options{
		Scheme:   c.Connection.Scheme,
		Host:     c.Connection.Host,
		Port:     c.Connection.Port,
		User:     c.Connection.User,
		Password: c.Connection.Password,
		Database: c.Connection.Database,
		Token:    c.Connection.Token,
		RetryMax: c.Connection.Retries,
		Timeout:  time.Duration(c.Connection.TimeoutSeconds) * time.Second,
	}
}

// CancelOptions returns the worker options for this config. The policy has
// already been checked by Validate.
func (c *Config) CancelOptions() cancel.Options {
	p, _ := cancel.ParsePolicy(c.Cancel.Policy)
	return cancel.Options{
		Policy:    p,
		RetryMin:  time.Duration(c.Cancel.RetryMinMS) * time.Millisecond,
		RetryMax:  time.Duration(c.Cancel.RetryMaxMS) * time.Millisecond,
		WarnAfter: c.Cancel.WarnAfterFailures,
	}
}

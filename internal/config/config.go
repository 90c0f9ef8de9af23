// Package config handles configuration loading and validation.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/alecthomas/kong"
	"github.com/bmatcuk/doublestar/v4"
	"github.com/goccy/go-yaml"
	toml "github.com/pelletier/go-toml/v2"
)

// configSearchPaths lists paths checked in order when no explicit config is given.
var configSearchPaths = []string{
	"/etc/simple-web-proxy/config.toml",
	"config.toml",
	"config.json",
}

// reservedPaths are served by the proxy itself and never forwarded.
var reservedPaths = []string{"/", "/favicon.ico", "/styles.css", "/script.js", "/healthz", "/proxy/status", "/raw"}

// DefaultUserAgent is sent upstream unless overridden.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36"

// CLI holds command-line arguments parsed by Kong.
type CLI struct {
	Config    string           `kong:"short='c',help='Path to config file (.toml, .yaml, .json).',env='CONFIG_PATH'"`
	Host      string           `kong:"help='Listen host (overrides config).',env='HOST'"`
	Port      int              `kong:"short='p',help='Listen port (overrides config).',env='PORT'"`
	UserAgent string           `kong:"name='user-agent',help='Outbound User-Agent (overrides config).',env='PROXY_USER_AGENT'"`
	LogLevel  string           `kong:"help='Log level: error|warn|info|debug (overrides config).',env='LOG_LEVEL'"`
	Version   kong.VersionFlag `kong:"help='Print version and exit.'"`
}

// Config is the top-level application configuration. It is built once at
// startup and shared read-only afterwards.
type Config struct {
	Server   ServerConfig   `toml:"server" yaml:"server"`
	Proxy    ProxyConfig    `toml:"proxy" yaml:"proxy"`
	Advanced AdvancedConfig `toml:"advanced" yaml:"advanced"`
	Log      LogConfig      `toml:"log" yaml:"log"`
	Metrics  MetricsConfig  `toml:"metrics" yaml:"metrics"`

	filePath string // resolved config file path (unexported)
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string          `toml:"host" yaml:"host"`
	Port         int             `toml:"port" yaml:"port"`
	BodyMaxBytes int64           `toml:"body_max_bytes" yaml:"body_max_bytes"`
	RateLimit    RateLimitConfig `toml:"rate_limit" yaml:"rate_limit"`
}

// RateLimitConfig controls per-IP request rate limiting.
type RateLimitConfig struct {
	Enabled           bool    `toml:"enabled" yaml:"enabled"`
	RequestsPerSecond float64 `toml:"requests_per_second" yaml:"requests_per_second"`
}

// ProxyConfig holds the privacy behaviour applied to every proxied exchange.
type ProxyConfig struct {
	UserAgent                   string   `toml:"user_agent" yaml:"user_agent"`
	RemoveTracking              bool     `toml:"remove_tracking" yaml:"remove_tracking"`
	RemoveFrameOptions          bool     `toml:"remove_frame_options" yaml:"remove_frame_options"`
	RemoveContentSecurityPolicy bool     `toml:"remove_content_security_policy" yaml:"remove_content_security_policy"`
	DoNotTrack                  bool     `toml:"do_not_track" yaml:"do_not_track"`
	ClearCookies                bool     `toml:"clear_cookies" yaml:"clear_cookies"`
	BlockPrivateNetworks        bool     `toml:"block_private_networks" yaml:"block_private_networks"`
	DenyHosts                   []string `toml:"deny_hosts" yaml:"deny_hosts"`
	IdleConnections             int      `toml:"idle_connections" yaml:"idle_connections"`
}

// AdvancedConfig holds rewriting and budget settings.
type AdvancedConfig struct {
	RewriteURLs     bool  `toml:"rewrite_urls" yaml:"rewrite_urls"`
	RemoveScripts   bool  `toml:"remove_scripts" yaml:"remove_scripts"`
	TimeoutMillis   int   `toml:"timeout_ms" yaml:"timeout_ms"`
	MaxContentSize  int64 `toml:"max_content_size" yaml:"max_content_size"` // 0 disables the budget
	StrictSizeLimit bool  `toml:"strict_size_limit" yaml:"strict_size_limit"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Enabled    bool   `toml:"enabled" yaml:"enabled"`
	Level      string `toml:"level" yaml:"level"`
	Format     string `toml:"format" yaml:"format"`
	File       string `toml:"file" yaml:"file"`
	MaxSizeMB  int    `toml:"max_size_mb" yaml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups" yaml:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days" yaml:"max_age_days"`
	Compress   bool   `toml:"compress" yaml:"compress"`
}

// MetricsConfig holds Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool   `toml:"enabled" yaml:"enabled"`
	Path    string `toml:"path" yaml:"path"`
}

// Defaults returns the built-in configuration that a config file is merged over.
func Defaults() Config {
	return Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         3000,
			BodyMaxBytes: 10 * 1024 * 1024,
		},
		Proxy: ProxyConfig{
			UserAgent:                   DefaultUserAgent,
			RemoveTracking:              true,
			RemoveFrameOptions:          true,
			RemoveContentSecurityPolicy: true,
			DoNotTrack:                  true,
			ClearCookies:                true,
			IdleConnections:             100,
		},
		Advanced: AdvancedConfig{
			RewriteURLs:     true,
			RemoveScripts:   false,
			TimeoutMillis:   30000,
			MaxContentSize:  10 * 1024 * 1024,
			StrictSizeLimit: true,
		},
		Log: LogConfig{
			Enabled: true,
			Level:   "info",
			Format:  "text",
		},
		Metrics: MetricsConfig{
			Path: "/metrics",
		},
	}
}

// Load builds the configuration: defaults, then the optional config file,
// then CLI overrides. When no explicit path is given (via --config or
// CONFIG_PATH), the search paths are tried; if none exists the defaults are used.
func Load(cli *CLI) (*Config, error) {
	cfg := Defaults()

	path := cli.Config
	if path == "" {
		path = findConfig()
	}
	if path != "" {
		if err := cfg.decodeFile(path); err != nil {
			return nil, err
		}
		cfg.filePath = path
	}

	cfg.applyCLI(cli)

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config: validate: %w", err)
	}
	return &cfg, nil
}

// decodeFile decodes the file on top of the receiver, so keys missing from
// the file keep their current value.
func (c *Config) decodeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: read %s: %w", path, err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml", ".json":
		err = yaml.Unmarshal(data, c)
	default:
		err = toml.Unmarshal(data, c)
	}
	if err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	return nil
}

// applyCLI overrides config values with non-zero CLI flags.
func (c *Config) applyCLI(cli *CLI) {
	if cli.Host != "" {
		c.Server.Host = cli.Host
	}
	if cli.Port != 0 {
		c.Server.Port = cli.Port
	}
	if cli.UserAgent != "" {
		c.Proxy.UserAgent = cli.UserAgent
	}
	if cli.LogLevel != "" {
		c.Log.Level = cli.LogLevel
	}
}

func (c *Config) validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be 1–65535; got %d", c.Server.Port)
	}
	if c.Server.BodyMaxBytes <= 0 {
		return fmt.Errorf("server.body_max_bytes must be positive; got %d", c.Server.BodyMaxBytes)
	}
	if c.Server.RateLimit.Enabled && c.Server.RateLimit.RequestsPerSecond <= 0 {
		return fmt.Errorf("server.rate_limit.requests_per_second must be > 0 when rate limiting is enabled; got %v", c.Server.RateLimit.RequestsPerSecond)
	}

	if strings.TrimSpace(c.Proxy.UserAgent) == "" {
		return fmt.Errorf("proxy.user_agent must not be empty")
	}
	if c.Proxy.IdleConnections < 0 {
		return fmt.Errorf("proxy.idle_connections must be non-negative; got %d", c.Proxy.IdleConnections)
	}
	for _, p := range c.Proxy.DenyHosts {
		if !doublestar.ValidatePattern(p) {
			return fmt.Errorf("proxy.deny_hosts: invalid pattern %q", p)
		}
	}

	if c.Advanced.TimeoutMillis <= 0 {
		return fmt.Errorf("advanced.timeout_ms must be positive; got %d", c.Advanced.TimeoutMillis)
	}
	if c.Advanced.MaxContentSize < 0 {
		return fmt.Errorf("advanced.max_content_size must be non-negative; got %d", c.Advanced.MaxContentSize)
	}

	switch strings.ToLower(c.Log.Level) {
	case "error", "warn", "info", "debug":
	default:
		return fmt.Errorf("log.level must be one of: error, warn, info, debug; got %q", c.Log.Level)
	}
	switch strings.ToLower(c.Log.Format) {
	case "json", "text":
	default:
		return fmt.Errorf("log.format must be one of: json, text; got %q", c.Log.Format)
	}
	if c.Log.MaxSizeMB < 0 || c.Log.MaxBackups < 0 || c.Log.MaxAgeDays < 0 {
		return fmt.Errorf("log rotation settings must be non-negative")
	}

	if c.Metrics.Enabled {
		p := c.Metrics.Path
		if p == "" || p[0] != '/' {
			return fmt.Errorf("metrics.path must start with '/'; got %q", p)
		}
		for _, reserved := range reservedPaths {
			if p == reserved || (reserved != "/" && strings.HasPrefix(p, reserved+"/")) {
				return fmt.Errorf("metrics.path %q conflicts with reserved route %q", p, reserved)
			}
		}
	}

	return nil
}

// Timeout returns the outbound exchange budget.
func (c *AdvancedConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutMillis) * time.Millisecond
}

// findConfig returns the first config path that exists, or empty string.
func findConfig() string {
	return findConfigInPaths(configSearchPaths)
}

// findConfigInPaths returns the first path that exists on disk, or empty string.
func findConfigInPaths(paths []string) string {
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// Addr returns the server listen address as host:port.
func (c *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// FilePath returns the config file the configuration was read from, if any.
func (c *Config) FilePath() string {
	return c.filePath
}

// WarnPermissions logs a warning if the config file is writable by group or others.
func (c *Config) WarnPermissions(logger *slog.Logger) {
	if c.filePath == "" {
		return
	}
	info, err := os.Stat(c.filePath)
	if err != nil {
		return
	}
	if perm := info.Mode().Perm(); perm&0o022 != 0 {
		logger.Warn("config file is writable by group/others; consider chmod 644",
			"path", c.filePath,
			"mode", fmt.Sprintf("%04o", perm),
		)
	}
}

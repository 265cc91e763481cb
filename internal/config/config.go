// Package config loads storefront client configuration from defaults, an
// optional YAML file, an optional .env file and the environment, in that
// order of precedence (later wins).
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	// LocalAPIURL is the backend used when the storefront runs on a loopback host.
	LocalAPIURL = "http://localhost:5000/api"
	// RemoteAPIURL is the deployed backend.
	RemoteAPIURL = "https://tasselgroup-back.onrender.com/api"
)

// Session storage backends.
const (
	SessionBackendMemory = "memory"
	SessionBackendFile   = "file"
	SessionBackendRedis  = "redis"
)

// Config is the complete client configuration.
type Config struct {
	// APIURL overrides base URL resolution when set.
	APIURL string `yaml:"api_url" env:"STOREFRONT_API_URL"`
	// Origin is the storefront's own origin; its host selects the default
	// backend and it prefixes payment return/cancel URLs.
	Origin string `yaml:"origin" env:"STOREFRONT_ORIGIN"`
	// NotifyURL overrides the payment notify URL.
	NotifyURL string `yaml:"notify_url" env:"STOREFRONT_NOTIFY_URL"`

	Timeout           time.Duration `yaml:"timeout" env:"STOREFRONT_TIMEOUT"`
	MaxRetries        int           `yaml:"max_retries" env:"STOREFRONT_MAX_RETRIES"`
	RetryDelay        time.Duration `yaml:"retry_delay" env:"STOREFRONT_RETRY_DELAY"`
	RequestsPerSecond float64       `yaml:"requests_per_second" env:"STOREFRONT_REQUESTS_PER_SECOND"`
	Burst             int           `yaml:"burst" env:"STOREFRONT_BURST"`

	// ManualCheckoutRequiresAuth makes the manual (email) order path require
	// a signed-in identity, like the online path.
	ManualCheckoutRequiresAuth bool `yaml:"manual_checkout_requires_auth" env:"STOREFRONT_MANUAL_CHECKOUT_REQUIRES_AUTH"`

	Session SessionConfig `yaml:"session"`

	LogLevel  string `yaml:"log_level" env:"STOREFRONT_LOG_LEVEL"`
	LogFormat string `yaml:"log_format" env:"STOREFRONT_LOG_FORMAT"`

	// BaseURL is resolved once by Resolve and never recomputed per call.
	BaseURL string `yaml:"-"`
}

// SessionConfig selects where the bearer token and identity are persisted.
type SessionConfig struct {
	Backend       string `yaml:"backend" env:"STOREFRONT_SESSION_BACKEND"`
	Path          string `yaml:"path" env:"STOREFRONT_SESSION_PATH"`
	RedisAddr     string `yaml:"redis_addr" env:"STOREFRONT_REDIS_ADDR"`
	RedisPassword string `yaml:"redis_password" env:"STOREFRONT_REDIS_PASSWORD"`
	RedisDB       int    `yaml:"redis_db" env:"STOREFRONT_REDIS_DB"`
	RedisPrefix   string `yaml:"redis_prefix" env:"STOREFRONT_REDIS_PREFIX"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Origin:                     "http://localhost:3000",
		Timeout:                    10 * time.Second,
		MaxRetries:                 2,
		RetryDelay:                 300 * time.Millisecond,
		Burst:                      1,
		ManualCheckoutRequiresAuth: true,
		Session: SessionConfig{
			Backend:     SessionBackendFile,
			Path:        defaultSessionPath(),
			RedisAddr:   "localhost:6379",
			RedisPrefix: "storefront:",
		},
		LogLevel:  "info",
		LogFormat: "text",
	}
}

// LoadOptions names the optional files consulted by Load.
type LoadOptions struct {
	// ConfigPath is a YAML file; empty skips it.
	ConfigPath string
	// EnvFile is a dotenv file. When empty, ./.env is loaded if present.
	EnvFile string
}

// Load builds the configuration and resolves the base URL.
func Load(opts LoadOptions) (*Config, error) {
	cfg := Default()

	if opts.ConfigPath != "" {
		if err := cfg.LoadFile(opts.ConfigPath); err != nil {
			return nil, err
		}
	}

	if opts.EnvFile != "" {
		if err := godotenv.Load(opts.EnvFile); err != nil {
			return nil, fmt.Errorf("load env file %s: %w", opts.EnvFile, err)
		}
	} else if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			return nil, fmt.Errorf("load .env: %w", err)
		}
	}

	if err := cfg.LoadEnv(); err != nil {
		return nil, err
	}

	cfg.Resolve()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile overlays a YAML file onto c.
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return fmt.Errorf("failed to read config: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}
	return nil
}

// LoadEnv overlays STOREFRONT_* environment variables onto c. Unset
// variables leave the current values alone.
func (c *Config) LoadEnv() error {
	err := envdecode.Decode(c)
	if err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return fmt.Errorf("failed to decode environment: %w", err)
	}
	return nil
}

// Resolve computes BaseURL from the override and the origin host.
func (c *Config) Resolve() {
	c.BaseURL = ResolveBaseURL(c.APIURL, c.Origin)
}

// Validate checks ranges and enumerations.
func (c *Config) Validate() error {
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive, got %s", c.Timeout)
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max_retries cannot be negative, got %d", c.MaxRetries)
	}
	if c.RetryDelay < 0 {
		return fmt.Errorf("retry_delay cannot be negative, got %s", c.RetryDelay)
	}
	if c.RequestsPerSecond < 0 {
		return fmt.Errorf("requests_per_second cannot be negative, got %v", c.RequestsPerSecond)
	}
	if _, err := url.ParseRequestURI(c.BaseURL); err != nil {
		return fmt.Errorf("invalid API base URL %q: %w", c.BaseURL, err)
	}

	switch c.Session.Backend {
	case SessionBackendMemory:
	case SessionBackendFile:
		if c.Session.Path == "" {
			return fmt.Errorf("session.path is required for the file backend")
		}
	case SessionBackendRedis:
		if c.Session.RedisAddr == "" {
			return fmt.Errorf("session.redis_addr is required for the redis backend")
		}
	default:
		return fmt.Errorf("unknown session backend %q", c.Session.Backend)
	}
	return nil
}

// PaymentNotifyURL returns the configured notify URL or the backend default.
func (c *Config) PaymentNotifyURL() string {
	if c.NotifyURL != "" {
		return c.NotifyURL
	}
	return strings.TrimRight(c.BaseURL, "/") + "/payment/notify"
}

// ResolveBaseURL picks the backend: an explicit override wins, a loopback
// origin host maps to the local backend, anything else to the deployed one.
func ResolveBaseURL(override, origin string) string {
	if s := strings.TrimSpace(override); s != "" {
		return strings.TrimRight(s, "/")
	}
	switch originHost(origin) {
	case "localhost", "127.0.0.1":
		return LocalAPIURL
	default:
		return RemoteAPIURL
	}
}

func originHost(origin string) string {
	origin = strings.TrimSpace(origin)
	if origin == "" {
		return ""
	}
	if !strings.Contains(origin, "://") {
		origin = "//" + origin
	}
	u, err := url.Parse(origin)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}

func defaultSessionPath() string {
	dir, err := os.UserConfigDir()
	if err != nil || dir == "" {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "tasselgroup", "session.json")
}

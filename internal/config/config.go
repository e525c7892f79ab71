// Package config loads process configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Prefix is prepended to every environment variable, e.g. CHATFLOW_HTTP_ADDR.
const Prefix = "CHATFLOW"

// Config is the full process configuration.
type Config struct {
	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"text"`

	HTTP     HTTPConfig     `envconfig:"HTTP"`
	Store    StoreConfig    `envconfig:"STORE"`
	WhatsApp WhatsAppConfig `envconfig:"WHATSAPP"`
	Runtime  RuntimeConfig  `envconfig:"RUNTIME"`
	External ExternalConfig `envconfig:"EXTERNAL"`
}

// HTTPConfig configures the webhook and management server.
type HTTPConfig struct {
	Addr            string        `envconfig:"ADDR" default:":8080"`
	ReadTimeout     time.Duration `envconfig:"READ_TIMEOUT" default:"15s"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"10s"`
}

// StoreConfig selects persistence backends.
type StoreConfig struct {
	// Sessions is one of memory, file, redis, sqlite.
	Sessions   string        `envconfig:"SESSIONS" default:"memory"`
	Dir        string        `envconfig:"DIR" default:".chatflow/sessions"`
	RedisURL   string        `envconfig:"REDIS_URL"`
	SessionTTL time.Duration `envconfig:"SESSION_TTL" default:"24h"`

	// SQLitePath enables the SQLite flow repository and channel directory.
	// Empty keeps flows in memory.
	SQLitePath string `envconfig:"SQLITE_PATH"`

	// EncryptionKey (base64, 32 bytes) seals sessions at rest with AES-GCM.
	// FallbackKeys are older keys still accepted on read.
	EncryptionKey string   `envconfig:"ENCRYPTION_KEY"`
	FallbackKeys  []string `envconfig:"FALLBACK_KEYS"`
}

// WhatsAppConfig configures the channel adapter and an optional bootstrap channel.
type WhatsAppConfig struct {
	VerifyToken   string `envconfig:"VERIFY_TOKEN"`
	BaseURL       string `envconfig:"BASE_URL" default:"https://graph.facebook.com/v19.0"`
	ProjectID     string `envconfig:"PROJECT_ID"`
	PhoneNumberID string `envconfig:"PHONE_NUMBER_ID"`
	AccessToken   string `envconfig:"ACCESS_TOKEN"`
}

// RuntimeConfig bounds a single step.
type RuntimeConfig struct {
	MaxSteps     int           `envconfig:"MAX_STEPS" default:"64"`
	MaxInputSize int           `envconfig:"MAX_INPUT_SIZE" default:"4096"`
	LockTimeout  time.Duration `envconfig:"LOCK_TIMEOUT" default:"10s"`
	LockTTL      time.Duration `envconfig:"LOCK_TTL" default:"30s"`
}

// ExternalConfig is the apiCall retry policy.
type ExternalConfig struct {
	Attempts       int           `envconfig:"ATTEMPTS" default:"3"`
	InitialBackoff time.Duration `envconfig:"INITIAL_BACKOFF" default:"200ms"`
	MaxBackoff     time.Duration `envconfig:"MAX_BACKOFF" default:"2s"`
	Multiplier     float64       `envconfig:"BACKOFF_MULTIPLIER" default:"2"`
	Timeout        time.Duration `envconfig:"TIMEOUT" default:"10s"`
}

// Load reads envFile (if it exists) into the environment, then processes
// CHATFLOW_* variables. Variables already set take precedence over the file.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", envFile, err)
		}
	}

	var cfg Config
	if err := envconfig.Process(Prefix, &cfg); err != nil {
		return nil, fmt.Errorf("process environment configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	switch c.Store.Sessions {
	case "memory", "file", "sqlite":
	case "redis":
		if c.Store.RedisURL == "" {
			return errors.New("CHATFLOW_STORE_REDIS_URL is required for the redis session store")
		}
	default:
		return fmt.Errorf("unknown session store %q", c.Store.Sessions)
	}
	if c.Store.Sessions == "sqlite" && c.Store.SQLitePath == "" {
		return errors.New("CHATFLOW_STORE_SQLITE_PATH is required for the sqlite session store")
	}
	if c.Runtime.MaxSteps <= 0 {
		return errors.New("CHATFLOW_RUNTIME_MAX_STEPS must be positive")
	}
	if c.External.Attempts <= 0 {
		return errors.New("CHATFLOW_EXTERNAL_ATTEMPTS must be positive")
	}
	return nil
}

// HasBootstrapChannel reports whether a channel binding was configured.
func (c *Config) HasBootstrapChannel() bool {
	w := c.WhatsApp
	return w.ProjectID != "" && w.PhoneNumberID != "" && w.AccessToken != ""
}

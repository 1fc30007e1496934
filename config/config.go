package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"go.pilab.hu/recovery/internal/federation"
)

// Cache backends for the on-device session cache.
const (
	CacheBackendBolt   = "bolt"
	CacheBackendRedis  = "redis"
	CacheBackendMemory = "memory"
)

// SessionConfig holds all configuration for the session tooling.
// Tags use mapstructure for Viper unmarshalling; every key can be overridden
// by the environment variable of the same name.
type SessionConfig struct {
	LogLevel        string `mapstructure:"LOG_LEVEL"`
	LogPretty       bool   `mapstructure:"LOG_PRETTY"`
	OtelServiceName string `mapstructure:"OTEL_SERVICE_NAME"`
	OtelStdout      bool   `mapstructure:"OTEL_STDOUT"`
	AuditLog        string `mapstructure:"AUDIT_LOG"` // stdout, stderr or empty

	MongoURI    string `mapstructure:"MONGO_URI"`
	MongoDBName string `mapstructure:"MONGO_DB_NAME"`

	CacheBackend   string        `mapstructure:"CACHE_BACKEND"`
	CacheKey       string        `mapstructure:"CACHE_KEY"`
	BoltPath       string        `mapstructure:"BOLT_PATH"`
	RedisAddr      string        `mapstructure:"REDIS_ADDR"`
	RedisPassword  string        `mapstructure:"REDIS_PASSWORD"`
	RedisDB        int           `mapstructure:"REDIS_DB"`
	RedisKeyPrefix string        `mapstructure:"REDIS_KEY_PREFIX"`
	CacheTTL       time.Duration `mapstructure:"CACHE_TTL"`

	PostAuthTarget    string `mapstructure:"POST_AUTH_TARGET"`
	SignedOutTarget   string `mapstructure:"SIGNED_OUT_TARGET"`
	SeedFromCache     bool   `mapstructure:"SEED_FROM_CACHE"`
	MinPasswordLength int    `mapstructure:"MIN_PASSWORD_LENGTH"`

	GoogleClientID     string `mapstructure:"GOOGLE_CLIENT_ID"`
	GoogleClientSecret string `mapstructure:"GOOGLE_CLIENT_SECRET"`
	GoogleRedirectURL  string `mapstructure:"GOOGLE_REDIRECT_URL"`
	AppleClientID      string `mapstructure:"APPLE_CLIENT_ID"`
	AppleClientSecret  string `mapstructure:"APPLE_CLIENT_SECRET"`
	AppleRedirectURL   string `mapstructure:"APPLE_REDIRECT_URL"`

	HTTPAddr string `mapstructure:"HTTP_ADDR"`
}

var ErrInvalidConfig = errors.New("invalid configuration")

// Google returns the Google client configuration, or false when it is not set up.
func (c *SessionConfig) Google() (federation.ProviderConfig, bool) {
	return federation.ProviderConfig{
		ClientID:     c.GoogleClientID,
		ClientSecret: c.GoogleClientSecret,
		RedirectURL:  c.GoogleRedirectURL,
	}, c.GoogleClientID != ""
}

// Apple returns the Apple client configuration, or false when it is not set up.
func (c *SessionConfig) Apple() (federation.ProviderConfig, bool) {
	return federation.ProviderConfig{
		ClientID:     c.AppleClientID,
		ClientSecret: c.AppleClientSecret,
		RedirectURL:  c.AppleRedirectURL,
	}, c.AppleClientID != ""
}

// Validate checks the values that cannot be defaulted.
func (c *SessionConfig) Validate() error {
	switch c.CacheBackend {
	case CacheBackendBolt:
		if c.BoltPath == "" {
			return fmt.Errorf("%w: BOLT_PATH is required for the bolt cache", ErrInvalidConfig)
		}
	case CacheBackendRedis:
		if c.RedisAddr == "" {
			return fmt.Errorf("%w: REDIS_ADDR is required for the redis cache", ErrInvalidConfig)
		}
	case CacheBackendMemory:
	default:
		return fmt.Errorf("%w: unknown CACHE_BACKEND %q", ErrInvalidConfig, c.CacheBackend)
	}
	if c.MongoURI == "" {
		return fmt.Errorf("%w: MONGO_URI is required", ErrInvalidConfig)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_PRETTY", true)
	v.SetDefault("OTEL_SERVICE_NAME", "recovery-session")
	v.SetDefault("OTEL_STDOUT", false)
	v.SetDefault("AUDIT_LOG", "")
	v.SetDefault("MONGO_URI", "mongodb://localhost:27017")
	v.SetDefault("MONGO_DB_NAME", "recovery_dev")
	v.SetDefault("CACHE_BACKEND", CacheBackendBolt)
	v.SetDefault("CACHE_KEY", "session")
	v.SetDefault("BOLT_PATH", "session.db")
	v.SetDefault("REDIS_ADDR", "localhost:6379")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("REDIS_KEY_PREFIX", "recovery")
	v.SetDefault("CACHE_TTL", "0s")
	v.SetDefault("POST_AUTH_TARGET", "/onboarding")
	v.SetDefault("SIGNED_OUT_TARGET", "/welcome")
	v.SetDefault("SEED_FROM_CACHE", true)
	v.SetDefault("MIN_PASSWORD_LENGTH", 6)
	v.SetDefault("HTTP_ADDR", "127.0.0.1:8089")

	// Keys without a default must still be known to Unmarshal so
	// AutomaticEnv can fill them.
	for _, key := range []string{
		"REDIS_PASSWORD",
		"GOOGLE_CLIENT_ID", "GOOGLE_CLIENT_SECRET", "GOOGLE_REDIRECT_URL",
		"APPLE_CLIENT_ID", "APPLE_CLIENT_SECRET", "APPLE_REDIRECT_URL",
	} {
		v.SetDefault(key, "")
	}
}

// LoadConfig reads configuration from file, environment variables, and defaults.
// A non-empty configFile replaces the search paths.
func LoadConfig(configFile string) (*SessionConfig, error) {
	v := viper.New()

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("/etc/recovery-session/")
		v.AddConfigPath("$HOME/.recovery-session")
		v.AddConfigPath(".")
	}

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		// A missing file means defaults and env vars only.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg SessionConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}
	cfg.CacheBackend = strings.ToLower(cfg.CacheBackend)

	return &cfg, nil
}

// Package config loads SDK configuration from an optional YAML file, an optional
// .env file and PAYKIT_ environment variables, in that order of precedence
// (later sources override earlier ones).
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	dErrors "paykit/pkg/domain-errors"
	pstrings "paykit/pkg/platform/strings"
)

const envPrefix = "PAYKIT_"

// Config is the complete SDK configuration.
type Config struct {
	APIKey  string `koanf:"api_key"`
	BaseURL string `koanf:"base_url"`
	// Store names the app store events are attributed to (e.g. "play_store").
	Store string `koanf:"store"`

	Log        LogConfig       `koanf:"log"`
	Storage    StorageConfig   `koanf:"storage"`
	Redis      RedisConfig     `koanf:"redis"`
	Transport  TransportConfig `koanf:"transport"`
	Attributes AttributeConfig `koanf:"attributes"`
	Profile    ProfileConfig   `koanf:"profile"`
	Analytics  AnalyticsConfig `koanf:"analytics"`
}

type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// StorageConfig selects the persisted key-value store.
type StorageConfig struct {
	Driver    string `koanf:"driver"` // memory, sqlite, postgres, redis
	DSN       string `koanf:"dsn"`
	Namespace string `koanf:"namespace"`
}

// RedisConfig is used when Storage.Driver is "redis".
type RedisConfig struct {
	URL          string        `koanf:"url"`
	PoolSize     int           `koanf:"pool_size"`
	MinIdleConns int           `koanf:"min_idle_conns"`
	DialTimeout  time.Duration `koanf:"dial_timeout"`
	ReadTimeout  time.Duration `koanf:"read_timeout"`
	WriteTimeout time.Duration `koanf:"write_timeout"`
}

type TransportConfig struct {
	Timeout time.Duration `koanf:"timeout"`
}

type AttributeConfig struct {
	Timeout     time.Duration `koanf:"timeout"`
	IPLookupURL string        `koanf:"ip_lookup_url"`
}

type ProfileConfig struct {
	StaleWindow   time.Duration `koanf:"stale_window"`
	ReadyTimeout  time.Duration `koanf:"ready_timeout"`
	ReadyAttempts int           `koanf:"ready_attempts"`
}

type AnalyticsConfig struct {
	Sink           string        `koanf:"sink"` // http or kafka
	MaxAttempts    int           `koanf:"max_attempts"`
	InitialBackoff time.Duration `koanf:"initial_backoff"`
	MaxBackoff     time.Duration `koanf:"max_backoff"`
	Kafka          KafkaConfig   `koanf:"kafka"`
}

type KafkaConfig struct {
	Brokers     string `koanf:"brokers"` // comma separated
	Topic       string `koanf:"topic"`
	CreateTopic bool   `koanf:"create_topic"`
}

// BrokerList returns the configured brokers, trimmed and deduplicated.
func (k KafkaConfig) BrokerList() []string {
	return pstrings.SplitList(k.Brokers)
}

var defaults = map[string]any{
	"base_url":                  "https://api.paykit.dev/api/v1",
	"store":                     "play_store",
	"log.level":                 "info",
	"log.format":                "json",
	"storage.driver":            "sqlite",
	"storage.dsn":               "paykit.db",
	"storage.namespace":         "paykit",
	"redis.pool_size":           10,
	"redis.min_idle_conns":      1,
	"redis.dial_timeout":        "5s",
	"redis.read_timeout":        "3s",
	"redis.write_timeout":       "3s",
	"transport.timeout":         "10s",
	"attributes.timeout":        "5s",
	"attributes.ip_lookup_url":  "https://api.ipify.org",
	"profile.stale_window":      "2h",
	"profile.ready_timeout":     "10s",
	"profile.ready_attempts":    3,
	"analytics.sink":            "http",
	"analytics.max_attempts":    3,
	"analytics.initial_backoff": "500ms",
	"analytics.max_backoff":     "5s",
	"analytics.kafka.topic":     "paykit.events",
}

// Load builds a Config. path names an optional YAML file; a missing file is not
// an error. A .env file in the working directory is loaded if present.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("load config file: %w", err)
			}
		}
	}

	// Double underscore separates nesting so single underscores survive in key names:
	// PAYKIT_STORAGE__DRIVER -> storage.driver, PAYKIT_API_KEY -> api_key.
	if err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, envPrefix)), "__", ".")
	}), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	for key, v := range defaults {
		if !k.Exists(key) {
			if err := k.Set(key, v); err != nil {
				return nil, fmt.Errorf("set default %s: %w", key, err)
			}
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeConfiguration, "decode config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks required fields and value ranges.
func (c *Config) Validate() error {
	if c.APIKey == "" {
		return dErrors.New(dErrors.CodeConfiguration, "api_key required")
	}
	u, err := url.Parse(c.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return dErrors.New(dErrors.CodeConfiguration, "base_url must be an absolute URL")
	}
	switch c.Storage.Driver {
	case "memory":
	case "sqlite", "postgres":
		if c.Storage.DSN == "" {
			return dErrors.New(dErrors.CodeConfiguration, "storage.dsn required for "+c.Storage.Driver)
		}
	case "redis":
		if c.Redis.URL == "" {
			return dErrors.New(dErrors.CodeConfiguration, "redis.url required for redis storage")
		}
	default:
		return dErrors.New(dErrors.CodeConfiguration, "unsupported storage.driver: "+c.Storage.Driver)
	}
	switch c.Analytics.Sink {
	case "http":
	case "kafka":
		if len(c.Analytics.Kafka.BrokerList()) == 0 {
			return dErrors.New(dErrors.CodeConfiguration, "analytics.kafka.brokers required for kafka sink")
		}
		if c.Analytics.Kafka.Topic == "" {
			return dErrors.New(dErrors.CodeConfiguration, "analytics.kafka.topic required for kafka sink")
		}
	default:
		return dErrors.New(dErrors.CodeConfiguration, "unsupported analytics.sink: "+c.Analytics.Sink)
	}
	if c.Transport.Timeout <= 0 || c.Attributes.Timeout <= 0 {
		return dErrors.New(dErrors.CodeConfiguration, "timeouts must be positive")
	}
	if c.Profile.StaleWindow <= 0 || c.Profile.ReadyTimeout <= 0 || c.Profile.ReadyAttempts < 1 {
		return dErrors.New(dErrors.CodeConfiguration, "profile settings must be positive")
	}
	if c.Analytics.MaxAttempts < 1 {
		return dErrors.New(dErrors.CodeConfiguration, "analytics.max_attempts must be at least 1")
	}
	return nil
}

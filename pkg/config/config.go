// Package config loads the settings shared by the expensesync binaries from a
// YAML file and EXPENSESYNC_* environment variables.
package config

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/illmade-knight/go-expensesync/pkg/apiclient"
	"github.com/illmade-knight/go-expensesync/pkg/broadcast"
	"github.com/illmade-knight/go-expensesync/pkg/cache"
	"github.com/illmade-knight/go-expensesync/pkg/microservice"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// Broadcast kinds.
const (
	BroadcastNone   = "none"
	BroadcastRedis  = "redis"
	BroadcastPubsub = "pubsub"
)

// APIConfig locates the remote expense API.
type APIConfig struct {
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
}

// CacheConfig tunes the cache coordinator.
type CacheConfig struct {
	KeepUnusedFor time.Duration `yaml:"keep_unused_for"`
}

// ServerConfig configures the reference expense API served by cmd/expenseapi.
type ServerConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	PositionalRows bool     `yaml:"positional_rows"`
}

// BroadcastConfig selects how invalidations reach other processes. Kind is
// one of BroadcastNone, BroadcastRedis or BroadcastPubsub; only the matching
// sub-config is read.
type BroadcastConfig struct {
	Kind   string                 `yaml:"kind"`
	Redis  broadcast.RedisConfig  `yaml:"redis"`
	Pubsub broadcast.PubsubConfig `yaml:"pubsub"`
}

// Config is the full configuration of a binary.
type Config struct {
	microservice.BaseConfig `yaml:",inline"`

	API       APIConfig       `yaml:"api"`
	Cache     CacheConfig     `yaml:"cache"`
	Broadcast BroadcastConfig `yaml:"broadcast"`
	Server    ServerConfig    `yaml:"server"`
}

// NewConfigDefaults returns the configuration used when no file or
// environment override is given.
func NewConfigDefaults() *Config {
	return &Config{
		BaseConfig: microservice.BaseConfig{
			LogLevel:    "info",
			HTTPPort:    ":8000",
			ServiceName: "expensesync",
		},
		API: APIConfig{
			BaseURL: apiclient.DefaultBaseURL,
			Timeout: 10 * time.Second,
		},
		Cache: CacheConfig{
			KeepUnusedFor: cache.DefaultKeepUnusedFor,
		},
		Broadcast: BroadcastConfig{
			Kind: BroadcastNone,
			Redis: broadcast.RedisConfig{
				Addr:    "localhost:6379",
				Channel: broadcast.DefaultRedisChannel,
			},
		},
		Server: ServerConfig{
			AllowedOrigins: []string{"http://localhost:5173"},
		},
	}
}

// Load reads path over the defaults, applies environment overrides and
// validates the result. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := NewConfigDefaults()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	setString := func(name string, dst *string) {
		if v, ok := os.LookupEnv(name); ok {
			*dst = v
		}
	}
	setDuration := func(name string, dst *time.Duration) error {
		v, ok := os.LookupEnv(name)
		if !ok {
			return nil
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", name, err)
		}
		*dst = d
		return nil
	}

	setString("EXPENSESYNC_LOG_LEVEL", &c.LogLevel)
	setString("EXPENSESYNC_HTTP_PORT", &c.HTTPPort)
	setString("EXPENSESYNC_API_URL", &c.API.BaseURL)
	setString("EXPENSESYNC_BROADCAST", &c.Broadcast.Kind)
	setString("EXPENSESYNC_REDIS_ADDR", &c.Broadcast.Redis.Addr)
	setString("EXPENSESYNC_REDIS_PASSWORD", &c.Broadcast.Redis.Password)
	setString("EXPENSESYNC_REDIS_CHANNEL", &c.Broadcast.Redis.Channel)
	setString("EXPENSESYNC_PUBSUB_PROJECT_ID", &c.Broadcast.Pubsub.ProjectID)
	setString("EXPENSESYNC_PUBSUB_TOPIC_ID", &c.Broadcast.Pubsub.TopicID)
	setString("EXPENSESYNC_PUBSUB_SUBSCRIPTION_ID", &c.Broadcast.Pubsub.SubscriptionID)

	if v, ok := os.LookupEnv("EXPENSESYNC_REDIS_DB"); ok {
		db, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid EXPENSESYNC_REDIS_DB: %w", err)
		}
		c.Broadcast.Redis.DB = db
	}
	if err := setDuration("EXPENSESYNC_API_TIMEOUT", &c.API.Timeout); err != nil {
		return err
	}
	return setDuration("EXPENSESYNC_KEEP_UNUSED_FOR", &c.Cache.KeepUnusedFor)
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("invalid log_level %q: %w", c.LogLevel, err)
	}
	if c.API.BaseURL == "" {
		return fmt.Errorf("api.base_url is required")
	}
	if c.API.Timeout <= 0 {
		return fmt.Errorf("api.timeout must be positive, got %s", c.API.Timeout)
	}
	if c.Cache.KeepUnusedFor <= 0 {
		return fmt.Errorf("cache.keep_unused_for must be positive, got %s", c.Cache.KeepUnusedFor)
	}
	switch c.Broadcast.Kind {
	case BroadcastNone:
	case BroadcastRedis:
		if c.Broadcast.Redis.Addr == "" {
			return fmt.Errorf("broadcast.redis.addr is required for the redis broadcast")
		}
	case BroadcastPubsub:
		p := c.Broadcast.Pubsub
		if p.ProjectID == "" || p.TopicID == "" || p.SubscriptionID == "" {
			return fmt.Errorf("broadcast.pubsub needs project_id, topic_id and subscription_id")
		}
	default:
		return fmt.Errorf("unknown broadcast.kind %q", c.Broadcast.Kind)
	}
	return nil
}

// ClientConfig returns the API client settings.
func (c *Config) ClientConfig() *apiclient.Config {
	return &apiclient.Config{BaseURL: c.API.BaseURL, Timeout: c.API.Timeout}
}

// CoordinatorConfig returns the cache settings. The invalidation hook is left
// for the caller to install.
func (c *Config) CoordinatorConfig() *cache.Config {
	return &cache.Config{KeepUnusedFor: c.Cache.KeepUnusedFor}
}

// NewLogger builds a console logger writing to w at the given level.
func NewLogger(level string, w io.Writer) (zerolog.Logger, error) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return zerolog.Nop(), fmt.Errorf("invalid log level %q: %w", level, err)
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}).
		Level(lvl).
		With().Timestamp().
		Logger(), nil
}

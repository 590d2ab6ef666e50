package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
	_ "time/tzdata"

	libconfig "plugin/backend/libs/config"
)

// Store drivers.
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
)

// Change feed drivers.
const (
	FeedNone     = "none"
	FeedPostgres = "postgres"
	FeedRedis    = "redis"
)

// Config represents marketplace configuration loaded from YAML/env.
type Config struct {
	HTTP struct {
		Port string `yaml:"port" env:"PLUGIN_HTTP_PORT" default:"8080"`
	} `yaml:"http"`
	Store struct {
		Driver string `yaml:"driver" env:"PLUGIN_STORE_DRIVER" default:"memory"`
	} `yaml:"store"`
	Database struct {
		DSN          string `yaml:"dsn" env:"PLUGIN_POSTGRES_DSN"`
		MaxOpenConns int    `yaml:"maxOpenConns" env:"PLUGIN_POSTGRES_MAX_OPEN_CONNS"`
	} `yaml:"database"`
	Feed struct {
		Driver  string `yaml:"driver" env:"PLUGIN_FEED_DRIVER" default:"none"`
		Channel string `yaml:"channel" env:"PLUGIN_FEED_CHANNEL"`
	} `yaml:"feed"`
	Redis struct {
		Addr            string        `yaml:"addr" env:"PLUGIN_REDIS_ADDR" default:"localhost:6379"`
		Password        string        `yaml:"password" env:"PLUGIN_REDIS_PASSWORD"`
		DB              int           `yaml:"db" env:"PLUGIN_REDIS_DB"`
		ClientName      string        `yaml:"clientName" env:"PLUGIN_REDIS_CLIENT_NAME" default:"plugin-marketplace"`
		MaxRetries      int           `yaml:"maxRetries" env:"PLUGIN_REDIS_MAX_RETRIES" default:"5"`
		PoolSize        int           `yaml:"poolSize" env:"PLUGIN_REDIS_POOL_SIZE" default:"4"`
		ConnMaxIdleTime time.Duration `yaml:"connMaxIdleTime" env:"PLUGIN_REDIS_CONN_MAX_IDLE" default:"5m"`
	} `yaml:"redis"`
	JWT struct {
		Secret           string `yaml:"secret" env:"PLUGIN_JWT_SECRET"`
		ExpiresInMinutes int    `yaml:"expiresInMinutes" env:"PLUGIN_JWT_EXPIRES_MINUTES" default:"60"`
	} `yaml:"jwt"`
	Timezone  string `yaml:"timezone" env:"PLUGIN_TIMEZONE" default:"UTC"`
	RateLimit struct {
		RPS   float64 `yaml:"rps" env:"PLUGIN_RATE_RPS" default:"20"`
		Burst int     `yaml:"burst" env:"PLUGIN_RATE_BURST" default:"40"`
	} `yaml:"rateLimit"`
	Realtime struct {
		AwaitTimeout time.Duration `yaml:"awaitTimeout" env:"PLUGIN_AWAIT_TIMEOUT" default:"15s"`
		WriteTimeout time.Duration `yaml:"writeTimeout" env:"PLUGIN_WS_WRITE_TIMEOUT" default:"10s"`
	} `yaml:"realtime"`
	Tracing struct {
		Endpoint string `yaml:"endpoint" env:"PLUGIN_OTLP_ENDPOINT"`
		Insecure bool   `yaml:"insecure" env:"PLUGIN_OTLP_INSECURE"`
	} `yaml:"tracing"`
}

// Load reads configuration using the shared config loader.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := libconfig.LoadConfig(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks driver combinations and required secrets.
func (c *Config) Validate() error {
	c.Store.Driver = strings.ToLower(strings.TrimSpace(c.Store.Driver))
	c.Feed.Driver = strings.ToLower(strings.TrimSpace(c.Feed.Driver))
	if c.Feed.Driver == "" {
		c.Feed.Driver = FeedNone
	}

	switch c.Store.Driver {
	case StoreMemory:
		if c.Feed.Driver != FeedNone {
			return fmt.Errorf("config: feed %q needs the postgres store", c.Feed.Driver)
		}
	case StorePostgres:
		if c.Database.DSN == "" {
			return errors.New("config: database DSN is required for the postgres store")
		}
	default:
		return fmt.Errorf("config: unknown store driver %q", c.Store.Driver)
	}

	switch c.Feed.Driver {
	case FeedNone, FeedPostgres:
	case FeedRedis:
		if c.Redis.Addr == "" {
			return errors.New("config: redis address is required for the redis feed")
		}
	default:
		return fmt.Errorf("config: unknown feed driver %q", c.Feed.Driver)
	}

	if c.JWT.Secret == "" {
		return errors.New("config: jwt secret is required")
	}
	if c.JWT.ExpiresInMinutes <= 0 {
		c.JWT.ExpiresInMinutes = 60
	}
	if c.RateLimit.RPS <= 0 || c.RateLimit.Burst <= 0 {
		return errors.New("config: rate limit rps and burst must be positive")
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	return nil
}

// HTTPAddress ensures we always return host:port formatted string.
func (c *Config) HTTPAddress() string {
	port := strings.TrimSpace(c.HTTP.Port)
	if port == "" {
		port = "8080"
	}
	if strings.HasPrefix(port, ":") {
		return port
	}
	return fmt.Sprintf(":%s", port)
}

// JWTExpiration converts configured expiry to duration.
func (c *Config) JWTExpiration() time.Duration {
	if c.JWT.ExpiresInMinutes <= 0 {
		return time.Hour
	}
	return time.Duration(c.JWT.ExpiresInMinutes) * time.Minute
}

// Location resolves the zone schedules are evaluated in.
func (c *Config) Location() (*time.Location, error) {
	name := strings.TrimSpace(c.Timezone)
	if name == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("config: timezone %q: %w", name, err)
	}
	return loc, nil
}

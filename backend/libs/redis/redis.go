// Package redis builds the go-redis client shared by the change feed.
package redis

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	defaultDialTimeout     = 5 * time.Second
	defaultReadTimeout     = 3 * time.Second
	defaultWriteTimeout    = 3 * time.Second
	defaultClientName      = "plugin-marketplace"
	defaultMaxRetries      = 5
	defaultMinRetryBackoff = 50 * time.Millisecond
	defaultMaxRetryBackoff = 2 * time.Second
	defaultPoolSize        = 4
	defaultConnMaxIdleTime = 5 * time.Minute
)

// Options configures the client. Zero values take the package defaults; MaxRetries of -1
// disables retries.
type Options struct {
	Addr     string
	Password string
	DB       int

	// ClientName is reported by CLIENT LIST so feed subscribers can be told apart.
	ClientName string

	MaxRetries      int
	MinRetryBackoff time.Duration
	MaxRetryBackoff time.Duration

	// PoolSize bounds command connections. Each SUBSCRIBE holds one more outside the pool.
	PoolSize        int
	ConnMaxIdleTime time.Duration
	ConnMaxLifetime time.Duration

	DialTimeout time.Duration
}

// NewRedisClient returns a configured go-redis client and validates the connection with PING.
func NewRedisClient(ctx context.Context, opts Options) (*redis.Client, error) {
	ro, err := opts.clientOptions()
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(ro)

	pingCtx, cancel := context.WithTimeout(ctx, ro.DialTimeout)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, err
	}

	return client, nil
}

func (o Options) clientOptions() (*redis.Options, error) {
	addr := strings.TrimSpace(o.Addr)
	if addr == "" {
		return nil, errors.New("redis: addr is empty")
	}
	if o.MinRetryBackoff > 0 && o.MaxRetryBackoff > 0 && o.MinRetryBackoff > o.MaxRetryBackoff {
		return nil, errors.New("redis: min retry backoff exceeds max retry backoff")
	}

	return &redis.Options{
		Addr:            addr,
		Password:        o.Password,
		DB:              o.DB,
		ClientName:      or(strings.TrimSpace(o.ClientName), defaultClientName),
		MaxRetries:      or(o.MaxRetries, defaultMaxRetries),
		MinRetryBackoff: or(o.MinRetryBackoff, defaultMinRetryBackoff),
		MaxRetryBackoff: or(o.MaxRetryBackoff, defaultMaxRetryBackoff),
		PoolSize:        or(o.PoolSize, defaultPoolSize),
		ConnMaxIdleTime: or(o.ConnMaxIdleTime, defaultConnMaxIdleTime),
		ConnMaxLifetime: o.ConnMaxLifetime,
		DialTimeout:     or(o.DialTimeout, defaultDialTimeout),
		ReadTimeout:     defaultReadTimeout,
		WriteTimeout:    defaultWriteTimeout,
	}, nil
}

func or[T comparable](v, fallback T) T {
	var zero T
	if v == zero {
		return fallback
	}
	return v
}

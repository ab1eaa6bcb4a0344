// Package redis provides a Redis/Valkey cache driver built on valkey-go.
package redis

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/valkey-io/valkey-go"

	"github.com/chikitsa-cloud/chikitsa-go/internal/platform/cache"
	"github.com/chikitsa-cloud/chikitsa-go/internal/platform/logutil"
)

func init() {
	cache.RegisterDriver("redis", func(config map[string]any, log *slog.Logger) (cache.CacheWithCounter, error) {
		cfg := DefaultConfig()
		if config != nil {
			if err := mapstructure.WeakDecode(config, cfg); err != nil {
				return nil, fmt.Errorf("redis cache config: %w", err)
			}
		}
		c, err := New(cfg)
		if err != nil {
			return nil, err
		}
		logutil.NoopIfNil(log).Info("redis cache connected", "addr", cfg.Addr, "db", cfg.DB)
		return c, nil
	})
}

// Config holds Redis connection configuration.
type Config struct {
	Addr        string        `mapstructure:"addr"`     // host:port
	Password    string        `mapstructure:"password"` // optional
	DB          int           `mapstructure:"db"`
	KeyPrefix   string        `mapstructure:"key_prefix"`
	DialTimeout time.Duration `mapstructure:"-"`
	DefaultTTL  time.Duration `mapstructure:"-"`

	DialTimeoutMS     int `mapstructure:"dial_timeout_ms"`
	DefaultTTLSeconds int `mapstructure:"default_ttl_seconds"`
}

// DefaultConfig returns defaults for a local Redis.
func DefaultConfig() *Config {
	return &Config{
		Addr:        "localhost:6379",
		KeyPrefix:   "chikitsa:",
		DialTimeout: 5 * time.Second,
		DefaultTTL:  cache.TTLIdentity,
	}
}

func (c *Config) normalize() {
	if c.DialTimeoutMS > 0 {
		c.DialTimeout = time.Duration(c.DialTimeoutMS) * time.Millisecond
	}
	if c.DefaultTTLSeconds > 0 {
		c.DefaultTTL = time.Duration(c.DefaultTTLSeconds) * time.Second
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = 5 * time.Second
	}
	if c.DefaultTTL <= 0 {
		c.DefaultTTL = cache.TTLIdentity
	}
}

// Cache is a cache.CacheWithCounter backed by a Redis-protocol server.
type Cache struct {
	client     valkey.Client
	prefix     string
	defaultTTL time.Duration
}

// New connects to Redis and verifies the connection with PING.
// It fails fast when the server is unreachable.
func New(cfg *Config) (*Cache, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	cfg.normalize()

	client, err := valkey.NewClient(valkey.ClientOption{
		InitAddress:       []string{cfg.Addr},
		Password:          cfg.Password,
		SelectDB:          cfg.DB,
		Dialer:            net.Dialer{Timeout: cfg.DialTimeout},
		DisableCache:      true,
		ForceSingleClient: true,
	})
	if err != nil {
		return nil, fmt.Errorf("redis connect %s: %w", cfg.Addr, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.DialTimeout)
	defer cancel()
	if err := client.Do(ctx, client.B().Ping().Build()).Error(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis health check %s: %w", cfg.Addr, err)
	}

	return &Cache{client: client, prefix: cfg.KeyPrefix, defaultTTL: cfg.DefaultTTL}, nil
}

func (c *Cache) key(k string) string { return c.prefix + k }

func (c *Cache) ttlOrDefault(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return c.defaultTTL
	}
	return ttl
}

// Get retrieves a value by key.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, error) {
	b, err := c.client.Do(ctx, c.client.B().Get().Key(c.key(key)).Build()).AsBytes()
	if valkey.IsValkeyNil(err) {
		return nil, cache.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return b, nil
}

// Set stores a value with the given TTL.
func (c *Cache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	ms := c.ttlOrDefault(ttl).Milliseconds()
	cmd := c.client.B().Set().Key(c.key(key)).Value(valkey.BinaryString(value)).PxMilliseconds(ms).Build()
	return c.client.Do(ctx, cmd).Error()
}

// Delete removes a key.
func (c *Cache) Delete(ctx context.Context, key string) error {
	return c.client.Do(ctx, c.client.B().Del().Key(c.key(key)).Build()).Error()
}

// Exists checks if a key exists.
func (c *Cache) Exists(ctx context.Context, key string) (bool, error) {
	n, err := c.client.Do(ctx, c.client.B().Exists().Key(c.key(key)).Build()).AsInt64()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Increment adds delta to a fixed-window counter. The window starts on the
// first increment and is not extended by later ones.
func (c *Cache) Increment(ctx context.Context, key string, delta int64, ttl time.Duration) (int64, time.Time, error) {
	k := c.key("ctr:" + key)
	window := c.ttlOrDefault(ttl)

	n, err := c.client.Do(ctx, c.client.B().Incrby().Key(k).Increment(delta).Build()).AsInt64()
	if err != nil {
		return 0, time.Time{}, err
	}
	if n == delta {
		if err := c.client.Do(ctx, c.client.B().Pexpire().Key(k).Milliseconds(window.Milliseconds()).Build()).Error(); err != nil {
			return 0, time.Time{}, err
		}
		return n, time.Now().Add(window), nil
	}

	pttl, err := c.client.Do(ctx, c.client.B().Pttl().Key(k).Build()).AsInt64()
	if err != nil {
		return 0, time.Time{}, err
	}
	if pttl < 0 {
		// Counter lost its expiry; restart the window.
		if err := c.client.Do(ctx, c.client.B().Pexpire().Key(k).Milliseconds(window.Milliseconds()).Build()).Error(); err != nil {
			return 0, time.Time{}, err
		}
		pttl = window.Milliseconds()
	}
	return n, time.Now().Add(time.Duration(pttl) * time.Millisecond), nil
}

// GetCount returns the current counter value.
func (c *Cache) GetCount(ctx context.Context, key string) (int64, error) {
	n, err := c.client.Do(ctx, c.client.B().Get().Key(c.key("ctr:"+key)).Build()).AsInt64()
	if valkey.IsValkeyNil(err) {
		return 0, nil
	}
	return n, err
}

// Reset clears a counter.
func (c *Cache) Reset(ctx context.Context, key string) error {
	return c.client.Do(ctx, c.client.B().Del().Key(c.key("ctr:"+key)).Build()).Error()
}

// Close releases the client.
func (c *Cache) Close() error {
	c.client.Close()
	return nil
}

var _ cache.CacheWithCounter = (*Cache)(nil)

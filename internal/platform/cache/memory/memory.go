// Package memory provides an in-process cache driver with TTL support.
package memory

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/mitchellh/mapstructure"

	"github.com/chikitsa-cloud/chikitsa-go/internal/platform/cache"
)

func init() {
	cache.RegisterDriver("memory", func(config map[string]any, _ *slog.Logger) (cache.CacheWithCounter, error) {
		var c Config
		if config != nil {
			if err := mapstructure.WeakDecode(config, &c); err != nil {
				return nil, err
			}
		}
		c.ApplyDefaults()
		return New(time.Duration(c.DefaultTTLSeconds)*time.Second, time.Duration(c.CleanupIntervalSeconds)*time.Second), nil
	})
}

// Config is the memory driver config under [cache.drivers.memory].
type Config struct {
	DefaultTTLSeconds      int `mapstructure:"default_ttl_seconds"`
	CleanupIntervalSeconds int `mapstructure:"cleanup_interval_seconds"`
}

// ApplyDefaults fills unset fields.
func (c *Config) ApplyDefaults() {
	if c.DefaultTTLSeconds <= 0 {
		c.DefaultTTLSeconds = int(cache.TTLIdentity / time.Second)
	}
	if c.CleanupIntervalSeconds <= 0 {
		c.CleanupIntervalSeconds = 300
	}
}

type entry struct {
	value     []byte
	count     int64
	expiresAt time.Time
}

func (e *entry) expired(now time.Time) bool {
	return now.After(e.expiresAt)
}

// Cache is an in-memory cache. Values and counters live in separate keyspaces.
type Cache struct {
	mu         sync.RWMutex
	values     map[string]*entry
	counters   map[string]*entry
	defaultTTL time.Duration
	now        func() time.Time
	stop       chan struct{}
	stopOnce   sync.Once
}

// New creates a new in-memory cache.
// cleanupInterval specifies how often expired entries are swept (0 disables).
func New(defaultTTL, cleanupInterval time.Duration) *Cache {
	c := &Cache{
		values:     make(map[string]*entry),
		counters:   make(map[string]*entry),
		defaultTTL: defaultTTL,
		now:        time.Now,
		stop:       make(chan struct{}),
	}
	if cleanupInterval > 0 {
		go c.sweepLoop(cleanupInterval)
	}
	return c
}

func (c *Cache) sweepLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.sweep()
		case <-c.stop:
			return
		}
	}
}

func (c *Cache) sweep() {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	for k, e := range c.values {
		if e.expired(now) {
			delete(c.values, k)
		}
	}
	for k, e := range c.counters {
		if e.expired(now) {
			delete(c.counters, k)
		}
	}
}

func (c *Cache) ttlOrDefault(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return c.defaultTTL
	}
	return ttl
}

// Get retrieves a copy of the value stored under key.
func (c *Cache) Get(_ context.Context, key string) ([]byte, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.values[key]
	if !ok {
		return nil, cache.ErrNotFound
	}
	if e.expired(c.now()) {
		return nil, cache.ErrExpired
	}
	out := make([]byte, len(e.value))
	copy(out, e.value)
	return out, nil
}

// Set stores a copy of value under key.
func (c *Cache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	v := make([]byte, len(value))
	copy(v, value)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.values[key] = &entry{value: v, expiresAt: c.now().Add(c.ttlOrDefault(ttl))}
	return nil
}

// Delete removes a key.
func (c *Cache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.values, key)
	return nil
}

// Exists reports whether key holds an unexpired value.
func (c *Cache) Exists(_ context.Context, key string) (bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.values[key]
	return ok && !e.expired(c.now()), nil
}

// Increment adds delta to a fixed-window counter.
func (c *Cache) Increment(_ context.Context, key string, delta int64, ttl time.Duration) (int64, time.Time, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	e, ok := c.counters[key]
	if !ok || e.expired(now) {
		e = &entry{expiresAt: now.Add(c.ttlOrDefault(ttl))}
		c.counters[key] = e
	}
	e.count += delta
	return e.count, e.expiresAt, nil
}

// GetCount returns the current counter value.
func (c *Cache) GetCount(_ context.Context, key string) (int64, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.counters[key]
	if !ok || e.expired(c.now()) {
		return 0, nil
	}
	return e.count, nil
}

// Reset clears a counter.
func (c *Cache) Reset(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.counters, key)
	return nil
}

// Close stops the sweep goroutine. Safe to call more than once.
func (c *Cache) Close() error {
	c.stopOnce.Do(func() { close(c.stop) })
	return nil
}

var _ cache.CacheWithCounter = (*Cache)(nil)

// Package cache provides TTL key-value storage for directory metadata and
// rate-limit counters, with pluggable drivers.
package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"
)

var (
	ErrNotFound = errors.New("key not found")
	ErrExpired  = errors.New("key expired")
)

// Cache provides TTL-based key-value storage.
type Cache interface {
	// Get retrieves a value by key. Returns ErrNotFound if not present.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores a value with the given TTL. If TTL is 0, use default.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes a key.
	Delete(ctx context.Context, key string) error

	// Exists checks if a key exists and is not expired.
	Exists(ctx context.Context, key string) (bool, error)

	// Close releases resources.
	Close() error
}

// Counter provides fixed-window counters for rate limiting.
type Counter interface {
	// Increment adds delta to the counter and returns the new value and the
	// time the window resets. A missing key starts a new window of ttl.
	Increment(ctx context.Context, key string, delta int64, ttl time.Duration) (int64, time.Time, error)

	// GetCount returns the current counter value. Returns 0 if not found.
	GetCount(ctx context.Context, key string) (int64, error)

	// Reset sets the counter to 0.
	Reset(ctx context.Context, key string) error
}

// CacheWithCounter combines Cache and Counter interfaces.
type CacheWithCounter interface {
	Cache
	Counter
}

// Default TTLs for different cache categories.
const (
	TTLIdentity  = time.Minute     // Directory display metadata
	TTLRateLimit = 1 * time.Minute // Rate limit window
)

// Factory builds a driver from its raw config map.
type Factory func(config map[string]any, log *slog.Logger) (CacheWithCounter, error)

var (
	driversMu sync.RWMutex
	drivers   = make(map[string]Factory)
)

// RegisterDriver makes a cache driver available by name.
// It panics if called twice with the same name.
func RegisterDriver(name string, f Factory) {
	driversMu.Lock()
	defer driversMu.Unlock()
	if _, dup := drivers[name]; dup {
		panic("cache: RegisterDriver called twice for driver " + name)
	}
	drivers[name] = f
}

// New builds the named driver. An empty name selects "memory".
func New(name string, config map[string]any, log *slog.Logger) (CacheWithCounter, error) {
	if name == "" {
		name = "memory"
	}
	driversMu.RLock()
	f, ok := drivers[name]
	driversMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("cache: unknown driver %q (available: %v)", name, Drivers())
	}
	return f(config, log)
}

// Drivers returns the sorted names of registered drivers.
func Drivers() []string {
	driversMu.RLock()
	defer driversMu.RUnlock()
	names := make([]string, 0, len(drivers))
	for name := range drivers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

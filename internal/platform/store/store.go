// Package store provides the persistence driver abstraction and registry.
package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/chikitsa-cloud/chikitsa-go/internal/components/directory"
	"github.com/chikitsa-cloud/chikitsa-go/internal/components/familyaccess"
	"github.com/chikitsa-cloud/chikitsa-go/internal/components/records"
)

// Driver is a persistence backend. It is constructed once per process,
// initialized before use and closed on shutdown. Implementations must be safe
// for concurrent use.
type Driver interface {
	// Init opens connections and creates schema.
	Init(ctx context.Context) error

	// Close releases resources held by the driver.
	Close() error

	// Name returns the driver name (memory, sqlite).
	Name() string

	// Ping reports whether the backend is reachable.
	Ping(ctx context.Context) error

	Ledger() familyaccess.Ledger
	Directory() directory.Store
	Records() records.Store
}

// DriverConfig holds configuration for driver selection and initialization.
type DriverConfig struct {
	// Driver is the driver name: memory, sqlite
	Driver string `json:"driver"`

	// DataDir is the directory for the sqlite database file.
	DataDir string `json:"data_dir"`

	// BusyTimeoutMS is how long sqlite waits on a locked database.
	BusyTimeoutMS int `json:"busy_timeout_ms"`
}

// DriverFactory creates a driver instance.
type DriverFactory func(cfg *DriverConfig) (Driver, error)

var (
	driversMu sync.RWMutex
	drivers   = make(map[string]DriverFactory)
)

// Register registers a driver factory by name.
// This is typically called from init() in driver packages.
func Register(name string, factory DriverFactory) {
	driversMu.Lock()
	defer driversMu.Unlock()
	drivers[name] = factory
}

// New creates a driver instance based on the configuration.
func New(cfg *DriverConfig) (Driver, error) {
	driversMu.RLock()
	factory, ok := drivers[cfg.Driver]
	driversMu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("unknown driver: %s", cfg.Driver)
	}
	return factory(cfg)
}

// Open creates and initializes a driver in one step.
func Open(ctx context.Context, cfg *DriverConfig) (Driver, error) {
	d, err := New(cfg)
	if err != nil {
		return nil, err
	}
	if err := d.Init(ctx); err != nil {
		_ = d.Close()
		return nil, fmt.Errorf("init %s store: %w", cfg.Driver, err)
	}
	return d, nil
}

// AvailableDrivers returns the registered driver names, sorted.
func AvailableDrivers() []string {
	driversMu.RLock()
	defer driversMu.RUnlock()

	names := make([]string, 0, len(drivers))
	for name := range drivers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

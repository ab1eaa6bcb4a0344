package service

import (
	"fmt"
	"sort"
	"sync"
)

// CoreServices are constructed even when no [http.services.<name>] table exists.
var CoreServices = []string{"api"}

var (
	registryMu sync.RWMutex
	registry   = make(map[string]NewService)
)

// Register adds a constructor under name. A duplicate name is an error.
func Register(name string, newFunc NewService) error {
	registryMu.Lock()
	defer registryMu.Unlock()

	if _, exists := registry[name]; exists {
		return fmt.Errorf("service %q already registered", name)
	}
	registry[name] = newFunc
	return nil
}

// MustRegister is Register for init(); it panics on a duplicate.
func MustRegister(name string, newFunc NewService) {
	if err := Register(name, newFunc); err != nil {
		panic(err)
	}
}

// Get returns the constructor for name, or nil.
func Get(name string) NewService {
	registryMu.RLock()
	defer registryMu.RUnlock()
	return registry[name]
}

// RegisteredServices returns the registered names, sorted.
func RegisteredServices() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Enabled returns CoreServices followed by any other configured name, in
// sorted order without duplicates.
func Enabled(configured map[string]map[string]any) []string {
	seen := make(map[string]bool, len(CoreServices)+len(configured))
	names := make([]string, 0, len(CoreServices)+len(configured))
	for _, name := range CoreServices {
		if !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	}
	extra := make([]string, 0, len(configured))
	for name := range configured {
		if !seen[name] {
			seen[name] = true
			extra = append(extra, name)
		}
	}
	sort.Strings(extra)
	return append(names, extra...)
}

// resetRegistry is for testing only.
func resetRegistry() {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry = make(map[string]NewService)
}

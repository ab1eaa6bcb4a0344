package interceptors

import (
	"fmt"
	"sort"
	"sync"
)

var (
	registryMu sync.RWMutex
	registry   = make(map[string]NewInterceptor)
)

// Register adds an interceptor constructor. It is called from init() and
// panics when name is taken.
func Register(name string, fn NewInterceptor) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, dup := registry[name]; dup {
		panic(fmt.Sprintf("interceptors: %q registered twice", name))
	}
	registry[name] = fn
}

// Get returns the constructor registered under name.
func Get(name string) (NewInterceptor, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	fn, ok := registry[name]
	return fn, ok
}

// Names returns the registered interceptor names, sorted.
func Names() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

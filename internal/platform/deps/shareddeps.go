// Package deps provides shared dependencies for all services.
package deps

import (
	"sync"

	"github.com/chikitsa-cloud/chikitsa-go/internal/components/directory"
	"github.com/chikitsa-cloud/chikitsa-go/internal/components/familyaccess"
	"github.com/chikitsa-cloud/chikitsa-go/internal/components/records"
	"github.com/chikitsa-cloud/chikitsa-go/internal/platform/cache"
	"github.com/chikitsa-cloud/chikitsa-go/internal/platform/config"
	"github.com/chikitsa-cloud/chikitsa-go/internal/platform/http/realip"
	"github.com/chikitsa-cloud/chikitsa-go/internal/platform/metrics"
	"github.com/chikitsa-cloud/chikitsa-go/internal/platform/store"
)

var (
	sharedDeps     *Deps
	sharedDepsOnce sync.Once
)

// Deps holds shared dependencies for all services. Everything here is
// constructed once in main and read by service constructors.
type Deps struct {
	// Store is the opened persistence driver (ledger, directory, records).
	Store store.Driver

	// FamilyAccess bundles the request, invite, grant and query workflows.
	FamilyAccess *familyaccess.Service

	// Records serves medical record metadata gated by family access.
	Records *records.Catalog

	// Directory is the writable identity store; Resolver is its cached read path.
	Directory directory.Store
	Resolver  *directory.CachedResolver

	// Config (for handlers that need config values)
	Config *config.Config

	// Cache provides cache access for interceptors (rate limiting)
	Cache cache.CacheWithCounter

	// Metrics is the Prometheus collector set. May be nil.
	Metrics *metrics.Metrics

	// RealIP provides trusted-proxy-aware client IP extraction.
	// This is the single source of truth for client identity in logging and rate limiting.
	RealIP *realip.TrustedProxies
}

// SetDeps sets the shared dependencies. Must be called once at startup
// before any services are constructed.
func SetDeps(d *Deps) {
	sharedDepsOnce.Do(func() {
		sharedDeps = d
	})
}

// GetDeps returns the shared dependencies.
// Returns nil if SetDeps has not been called.
func GetDeps() *Deps {
	return sharedDeps
}

// ResetDeps is for testing only. Resets the singleton.
func ResetDeps() {
	sharedDeps = nil
	sharedDepsOnce = sync.Once{}
}

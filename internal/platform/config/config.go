// Package config provides configuration loading and validation.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config holds the server configuration.
type Config struct {
	// Mode is the operating mode: strict or dev.
	Mode string `toml:"mode"`

	// ListenAddr is the address to listen on.
	// Example: ":8080"
	ListenAddr string `toml:"listen_addr"`

	// Server holds server-level settings.
	Server ServerConfig `toml:"server"`

	// Logging configuration
	Logging LoggingConfig `toml:"logging"`

	// Store selects and configures the persistence driver.
	Store StoreConfig `toml:"store"`

	// Auth configures bearer token verification for the API.
	Auth AuthConfig `toml:"auth"`

	// Invites configures family invite tokens.
	Invites InvitesConfig `toml:"invites"`

	// Directory configures display-identity lookups for listings.
	Directory DirectoryConfig `toml:"directory"`

	// Cache selects the directory metadata and rate-limit counter backend.
	Cache CacheConfig `toml:"cache"`

	// Tracing configures OpenTelemetry span export.
	Tracing TracingConfig `toml:"tracing"`

	// HTTP holds per-service HTTP configuration.
	HTTP HTTPConfig `toml:"http"`
}

// CacheConfig holds cache driver settings.
type CacheConfig struct {
	// Driver is memory or redis. Default: memory.
	Driver string `toml:"driver"`

	// Drivers holds raw per-driver config under [cache.drivers.<name>].
	Drivers map[string]map[string]any `toml:"drivers"`
}

// DriverConfig returns the raw config map for the selected driver.
func (c CacheConfig) DriverConfig() map[string]any {
	if c.Drivers == nil {
		return nil
	}
	return c.Drivers[c.Driver]
}

// TracingConfig holds OTLP trace export settings.
type TracingConfig struct {
	// Endpoint is the OTLP/HTTP collector URL. Empty disables tracing.
	Endpoint string `toml:"endpoint"`

	// ServiceName is reported as service.name. Default: chikitsa-go.
	ServiceName string `toml:"service_name"`
}

// HTTPConfig holds per-service HTTP configuration.
// Services are configured under [http.services.<svcname>].
type HTTPConfig struct {
	// Services maps service names to their raw config maps.
	// Each service decodes its own config via cfg.Decode() with Setter interface.
	Services map[string]map[string]any `toml:"services"`

	// Interceptors holds raw interceptor config under [http.interceptors.<name>].
	// Rate limit profiles live at [http.interceptors.ratelimit.profiles.<profile>].
	Interceptors map[string]map[string]any `toml:"interceptors"`
}

// ServerConfig holds server-level settings.
type ServerConfig struct {
	// TrustedProxies is a list of CIDR ranges for trusted reverse proxies.
	// X-Forwarded-* headers are only honored from these addresses.
	// Default: ["127.0.0.0/8", "::1/128"]
	TrustedProxies []string `toml:"trusted_proxies"`

	// ShutdownTimeoutSeconds bounds graceful shutdown. Default: 30.
	ShutdownTimeoutSeconds int `toml:"shutdown_timeout_seconds"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: trace, debug, info, warn, error.
	// Default: info in strict mode, debug in dev mode.
	Level string `toml:"level"`

	// AllowSensitive permits logging of sensitive values (invite tokens).
	// Default: false. Use only for debugging.
	AllowSensitive bool `toml:"allow_sensitive"`
}

// StoreConfig holds persistence settings.
type StoreConfig struct {
	// Driver is the persistence driver: sqlite or memory.
	Driver string `toml:"driver"`

	// DataDir is the directory holding the sqlite database.
	DataDir string `toml:"data_dir"`

	// BusyTimeoutMS is how long sqlite waits on a locked database. Default: 5000.
	BusyTimeoutMS int `toml:"busy_timeout_ms"`
}

// AuthConfig holds bearer token settings.
type AuthConfig struct {
	// JWTSecret is the HS256 key used to verify bearer tokens. Required in strict mode.
	JWTSecret string `toml:"jwt_secret"`

	// Issuer, when set, must match the token's iss claim.
	Issuer string `toml:"issuer"`
}

// InvitesConfig holds invite token settings.
type InvitesConfig struct {
	// DefaultTTLHours applies when a client does not ask for a lifetime. Default: 24.
	DefaultTTLHours int `toml:"default_ttl_hours"`

	// MaxTTLHours caps the lifetime a client may ask for. Default: 168 (7 days).
	MaxTTLHours int `toml:"max_ttl_hours"`

	// Provider is embedded in QR invite strings ("<token>@<provider>").
	// Must be a bare host[:port] without scheme.
	Provider string `toml:"provider"`
}

// DirectoryConfig holds user directory lookup settings.
type DirectoryConfig struct {
	// LookupTimeoutMS bounds a single identity lookup. Default: 500.
	LookupTimeoutMS int `toml:"lookup_timeout_ms"`

	// CacheTTLSeconds caches display metadata; 0 disables the cache. Default: 60.
	CacheTTLSeconds int `toml:"cache_ttl_seconds"`

	// MaxConcurrency bounds parallel lookups per listing. Default: 8.
	MaxConcurrency int `toml:"max_concurrency"`
}

// LookupTimeout returns the per-lookup timeout as a duration.
func (d DirectoryConfig) LookupTimeout() time.Duration {
	return time.Duration(d.LookupTimeoutMS) * time.Millisecond
}

// CacheTTL returns the cache TTL as a duration.
func (d DirectoryConfig) CacheTTL() time.Duration {
	return time.Duration(d.CacheTTLSeconds) * time.Second
}

// ShutdownTimeout returns the graceful shutdown bound as a duration.
func (s ServerConfig) ShutdownTimeout() time.Duration {
	return time.Duration(s.ShutdownTimeoutSeconds) * time.Second
}

// Redacted returns a string representation of the config with secrets redacted.
func (c *Config) Redacted() string {
	var sb strings.Builder
	sb.WriteString("Config{\n")
	sb.WriteString(fmt.Sprintf("  Mode: %q,\n", c.Mode))
	sb.WriteString(fmt.Sprintf("  ListenAddr: %q,\n", c.ListenAddr))
	sb.WriteString("  Server: {\n")
	sb.WriteString(fmt.Sprintf("    TrustedProxies: %v,\n", c.Server.TrustedProxies))
	sb.WriteString(fmt.Sprintf("    ShutdownTimeoutSeconds: %d,\n", c.Server.ShutdownTimeoutSeconds))
	sb.WriteString("  },\n")
	sb.WriteString("  Logging: {\n")
	sb.WriteString(fmt.Sprintf("    Level: %q,\n", c.Logging.Level))
	sb.WriteString(fmt.Sprintf("    AllowSensitive: %v,\n", c.Logging.AllowSensitive))
	sb.WriteString("  },\n")
	sb.WriteString("  Store: {\n")
	sb.WriteString(fmt.Sprintf("    Driver: %q,\n", c.Store.Driver))
	sb.WriteString(fmt.Sprintf("    DataDir: %q,\n", c.Store.DataDir))
	sb.WriteString(fmt.Sprintf("    BusyTimeoutMS: %d,\n", c.Store.BusyTimeoutMS))
	sb.WriteString("  },\n")
	sb.WriteString("  Auth: {\n")
	if c.Auth.JWTSecret != "" {
		sb.WriteString("    JWTSecret: [REDACTED],\n")
	} else {
		sb.WriteString("    JWTSecret: \"\",\n")
	}
	sb.WriteString(fmt.Sprintf("    Issuer: %q,\n", c.Auth.Issuer))
	sb.WriteString("  },\n")
	sb.WriteString("  Invites: {\n")
	sb.WriteString(fmt.Sprintf("    DefaultTTLHours: %d,\n", c.Invites.DefaultTTLHours))
	sb.WriteString(fmt.Sprintf("    MaxTTLHours: %d,\n", c.Invites.MaxTTLHours))
	sb.WriteString(fmt.Sprintf("    Provider: %q,\n", c.Invites.Provider))
	sb.WriteString("  },\n")
	sb.WriteString("  Directory: {\n")
	sb.WriteString(fmt.Sprintf("    LookupTimeoutMS: %d,\n", c.Directory.LookupTimeoutMS))
	sb.WriteString(fmt.Sprintf("    CacheTTLSeconds: %d,\n", c.Directory.CacheTTLSeconds))
	sb.WriteString(fmt.Sprintf("    MaxConcurrency: %d,\n", c.Directory.MaxConcurrency))
	sb.WriteString("  },\n")
	sb.WriteString(fmt.Sprintf("  Cache: {Driver: %q},\n", c.Cache.Driver))
	sb.WriteString(fmt.Sprintf("  Tracing: {Endpoint: %q, ServiceName: %q},\n", c.Tracing.Endpoint, c.Tracing.ServiceName))
	sb.WriteString(fmt.Sprintf("  HTTPServices: %d,\n", len(c.HTTP.Services)))
	sb.WriteString(fmt.Sprintf("  HTTPInterceptors: %d,\n", len(c.HTTP.Interceptors)))
	sb.WriteString("}")
	return sb.String()
}

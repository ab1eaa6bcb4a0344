// Package config provides configuration loading and validation.
package config

import (
	"fmt"
	"log/slog"
	"net"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"

	"github.com/chikitsa-cloud/chikitsa-go/internal/platform/hostport"
)

// Mode represents the server operating mode.
type Mode string

const (
	ModeStrict Mode = "strict"
	ModeDev    Mode = "dev"
)

// devJWTSecret signs tokens in dev mode when no secret is configured.
const devJWTSecret = "chikitsa-dev-secret-do-not-use-in-production"

// ParseMode parses a mode string, returning an error for invalid values.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "strict", "":
		return ModeStrict, nil
	case "dev":
		return ModeDev, nil
	default:
		return "", fmt.Errorf("invalid mode %q: must be one of strict, dev", s)
	}
}

// LoaderOptions controls how configuration is loaded.
type LoaderOptions struct {
	// ConfigPath is the path to a TOML config file (optional).
	// If provided but file is missing or invalid, loading fails.
	ConfigPath string

	// ModeFlag is the --mode flag value (overrides config file and env mode).
	ModeFlag string

	// FlagOverrides are CLI flag values that override file and env values.
	FlagOverrides FlagOverrides

	// Environ replaces the process environment when non-nil. Tests use it.
	Environ map[string]string

	// Logger is used for warning messages (e.g., undecoded keys).
	// If nil, slog.Default() is used.
	Logger *slog.Logger
}

// FlagOverrides holds CLI flag values that override config file values.
type FlagOverrides struct {
	ListenAddr            *string
	LoggingLevel          *string
	LoggingAllowSensitive *string // "true", "false", or "" (unset)
	StoreDriver           *string
	StoreDataDir          *string
	InvitesProvider       *string
}

// envOverrides holds CHIKITSA_* environment values. Empty means unset.
type envOverrides struct {
	Mode                  string `env:"CHIKITSA_MODE"`
	ListenAddr            string `env:"CHIKITSA_LISTEN_ADDR"`
	LoggingLevel          string `env:"CHIKITSA_LOGGING_LEVEL"`
	LoggingAllowSensitive string `env:"CHIKITSA_LOGGING_ALLOW_SENSITIVE"`
	StoreDriver           string `env:"CHIKITSA_STORE_DRIVER"`
	StoreDataDir          string `env:"CHIKITSA_STORE_DATA_DIR"`
	JWTSecret             string `env:"CHIKITSA_AUTH_JWT_SECRET"`
	InvitesProvider       string `env:"CHIKITSA_INVITES_PROVIDER"`
	CacheDriver           string `env:"CHIKITSA_CACHE_DRIVER"`
	TracingEndpoint       string `env:"CHIKITSA_TRACING_ENDPOINT"`
}

// fileConfig mirrors Config but with pointer fields to detect presence.
type fileConfig struct {
	Mode       string `toml:"mode"`
	ListenAddr string `toml:"listen_addr"`

	Server    *serverConfig    `toml:"server"`
	Logging   *loggingConfig   `toml:"logging"`
	Store     *storeConfig     `toml:"store"`
	Auth      *AuthConfig      `toml:"auth"`
	Invites   *invitesConfig   `toml:"invites"`
	Directory *directoryConfig `toml:"directory"`
	Cache     *CacheConfig     `toml:"cache"`
	Tracing   *TracingConfig   `toml:"tracing"`
	HTTP      *httpFileConfig  `toml:"http"`
}

type serverConfig struct {
	TrustedProxies         []string `toml:"trusted_proxies"`
	ShutdownTimeoutSeconds int      `toml:"shutdown_timeout_seconds"`
}

type loggingConfig struct {
	Level          string `toml:"level"`
	AllowSensitive *bool  `toml:"allow_sensitive"`
}

type storeConfig struct {
	Driver        string `toml:"driver"`
	DataDir       string `toml:"data_dir"`
	BusyTimeoutMS int    `toml:"busy_timeout_ms"`
}

type invitesConfig struct {
	DefaultTTLHours int    `toml:"default_ttl_hours"`
	MaxTTLHours     int    `toml:"max_ttl_hours"`
	Provider        string `toml:"provider"`
}

type directoryConfig struct {
	LookupTimeoutMS int  `toml:"lookup_timeout_ms"`
	CacheTTLSeconds *int `toml:"cache_ttl_seconds"`
	MaxConcurrency  int  `toml:"max_concurrency"`
}

// httpFileConfig holds per-service HTTP configuration from TOML.
type httpFileConfig struct {
	Services     map[string]map[string]any `toml:"services"`
	Interceptors map[string]map[string]any `toml:"interceptors"`
}

// Load loads configuration with the following precedence:
//  1. Determine mode (flag > env > file > default "strict")
//  2. Start from mode preset
//  3. Overlay TOML config file values
//  4. Overlay CHIKITSA_* environment variables
//  5. Overlay CLI flags
//  6. Validate enum fields and required values
//
// If ConfigPath is provided but the file is missing, unreadable, or invalid TOML,
// Load returns an error (fail fast). Unknown TOML keys produce a warning
// but do not fail the load.
func Load(opts LoaderOptions) (*Config, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var fc fileConfig

	if opts.ConfigPath != "" {
		data, err := os.ReadFile(opts.ConfigPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", opts.ConfigPath, err)
		}
		md, err := toml.Decode(string(data), &fc)
		if err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", opts.ConfigPath, err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			keys := make([]string, 0, len(undecoded))
			for _, k := range undecoded {
				keys = append(keys, k.String())
			}
			logger.Warn("config file contains undecoded keys", "path", opts.ConfigPath, "keys", keys)
		}
	}

	var eo envOverrides
	if err := env.ParseWithOptions(&eo, env.Options{Environment: opts.Environ}); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}

	modeStr := "strict"
	if fc.Mode != "" {
		modeStr = fc.Mode
	}
	if eo.Mode != "" {
		modeStr = eo.Mode
	}
	if opts.ModeFlag != "" {
		modeStr = opts.ModeFlag
	}

	mode, err := ParseMode(modeStr)
	if err != nil {
		return nil, err
	}

	cfg := presetForMode(mode)

	if opts.ConfigPath != "" {
		overlayFileConfig(cfg, &fc)
	}
	overlayEnv(cfg, &eo)
	overlayFlags(cfg, opts.FlagOverrides)

	if mode == ModeDev && cfg.Auth.JWTSecret == "" {
		logger.Warn("auth.jwt_secret not set; using built-in dev secret")
		cfg.Auth.JWTSecret = devJWTSecret
	}

	if err := validateEnums(cfg); err != nil {
		return nil, err
	}
	if err := validateRequired(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func presetForMode(mode Mode) *Config {
	switch mode {
	case ModeDev:
		return DevConfig()
	default:
		return StrictConfig()
	}
}

// StrictConfig returns the production preset.
func StrictConfig() *Config {
	return &Config{
		Mode:       string(ModeStrict),
		ListenAddr: ":8080",
		Server: ServerConfig{
			TrustedProxies:         []string{"127.0.0.0/8", "::1/128"},
			ShutdownTimeoutSeconds: 30,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Store: StoreConfig{
			Driver:        "sqlite",
			DataDir:       "./data",
			BusyTimeoutMS: 5000,
		},
		Invites: InvitesConfig{
			DefaultTTLHours: 24,
			MaxTTLHours:     168,
			Provider:        "localhost:8080",
		},
		Directory: DirectoryConfig{
			LookupTimeoutMS: 500,
			CacheTTLSeconds: 60,
			MaxConcurrency:  8,
		},
		Cache: CacheConfig{
			Driver: "memory",
		},
		Tracing: TracingConfig{
			ServiceName: "chikitsa-go",
		},
		HTTP: HTTPConfig{
			Services: map[string]map[string]any{
				"api": {"ratelimit": map[string]any{"profile": "redeem"}},
			},
			Interceptors: map[string]map[string]any{
				"ratelimit": {
					"profiles": map[string]any{
						"redeem": map[string]any{
							"requests_per_window": 10,
							"window_seconds":      60,
							"key_prefix":          "ratelimit:redeem:",
						},
					},
				},
			},
		},
	}
}

// DevConfig returns the development preset.
func DevConfig() *Config {
	cfg := StrictConfig()
	cfg.Mode = string(ModeDev)
	cfg.Logging.Level = "debug"
	cfg.Store.Driver = "memory"
	return cfg
}

func overlayFileConfig(cfg *Config, fc *fileConfig) {
	if fc.ListenAddr != "" {
		cfg.ListenAddr = fc.ListenAddr
	}

	if fc.Server != nil {
		if fc.Server.TrustedProxies != nil {
			cfg.Server.TrustedProxies = fc.Server.TrustedProxies
		}
		if fc.Server.ShutdownTimeoutSeconds > 0 {
			cfg.Server.ShutdownTimeoutSeconds = fc.Server.ShutdownTimeoutSeconds
		}
	}

	if fc.Logging != nil {
		if fc.Logging.Level != "" {
			cfg.Logging.Level = fc.Logging.Level
		}
		if fc.Logging.AllowSensitive != nil {
			cfg.Logging.AllowSensitive = *fc.Logging.AllowSensitive
		}
	}

	if fc.Store != nil {
		if fc.Store.Driver != "" {
			cfg.Store.Driver = fc.Store.Driver
		}
		if fc.Store.DataDir != "" {
			cfg.Store.DataDir = fc.Store.DataDir
		}
		if fc.Store.BusyTimeoutMS > 0 {
			cfg.Store.BusyTimeoutMS = fc.Store.BusyTimeoutMS
		}
	}

	if fc.Auth != nil {
		if fc.Auth.JWTSecret != "" {
			cfg.Auth.JWTSecret = fc.Auth.JWTSecret
		}
		if fc.Auth.Issuer != "" {
			cfg.Auth.Issuer = fc.Auth.Issuer
		}
	}

	if fc.Invites != nil {
		if fc.Invites.DefaultTTLHours != 0 {
			cfg.Invites.DefaultTTLHours = fc.Invites.DefaultTTLHours
		}
		if fc.Invites.MaxTTLHours != 0 {
			cfg.Invites.MaxTTLHours = fc.Invites.MaxTTLHours
		}
		if fc.Invites.Provider != "" {
			cfg.Invites.Provider = fc.Invites.Provider
		}
	}

	if fc.Directory != nil {
		if fc.Directory.LookupTimeoutMS > 0 {
			cfg.Directory.LookupTimeoutMS = fc.Directory.LookupTimeoutMS
		}
		if fc.Directory.CacheTTLSeconds != nil {
			cfg.Directory.CacheTTLSeconds = *fc.Directory.CacheTTLSeconds
		}
		if fc.Directory.MaxConcurrency > 0 {
			cfg.Directory.MaxConcurrency = fc.Directory.MaxConcurrency
		}
	}

	if fc.Cache != nil {
		if fc.Cache.Driver != "" {
			cfg.Cache.Driver = fc.Cache.Driver
		}
		if fc.Cache.Drivers != nil {
			cfg.Cache.Drivers = fc.Cache.Drivers
		}
	}

	if fc.Tracing != nil {
		if fc.Tracing.Endpoint != "" {
			cfg.Tracing.Endpoint = fc.Tracing.Endpoint
		}
		if fc.Tracing.ServiceName != "" {
			cfg.Tracing.ServiceName = fc.Tracing.ServiceName
		}
	}

	if fc.HTTP != nil {
		if fc.HTTP.Services != nil {
			cfg.HTTP.Services = fc.HTTP.Services
		}
		if fc.HTTP.Interceptors != nil {
			cfg.HTTP.Interceptors = fc.HTTP.Interceptors
		}
	}
}

func overlayEnv(cfg *Config, eo *envOverrides) {
	if eo.ListenAddr != "" {
		cfg.ListenAddr = eo.ListenAddr
	}
	if eo.LoggingLevel != "" {
		cfg.Logging.Level = eo.LoggingLevel
	}
	if eo.LoggingAllowSensitive != "" {
		cfg.Logging.AllowSensitive = eo.LoggingAllowSensitive == "true"
	}
	if eo.StoreDriver != "" {
		cfg.Store.Driver = eo.StoreDriver
	}
	if eo.StoreDataDir != "" {
		cfg.Store.DataDir = eo.StoreDataDir
	}
	if eo.JWTSecret != "" {
		cfg.Auth.JWTSecret = eo.JWTSecret
	}
	if eo.InvitesProvider != "" {
		cfg.Invites.Provider = eo.InvitesProvider
	}
	if eo.CacheDriver != "" {
		cfg.Cache.Driver = eo.CacheDriver
	}
	if eo.TracingEndpoint != "" {
		cfg.Tracing.Endpoint = eo.TracingEndpoint
	}
}

func overlayFlags(cfg *Config, f FlagOverrides) {
	if f.ListenAddr != nil && *f.ListenAddr != "" {
		cfg.ListenAddr = *f.ListenAddr
	}
	if f.LoggingLevel != nil && *f.LoggingLevel != "" {
		cfg.Logging.Level = *f.LoggingLevel
	}
	if f.LoggingAllowSensitive != nil && *f.LoggingAllowSensitive != "" {
		// Parse "true" or "false" string (only apply when explicitly set)
		cfg.Logging.AllowSensitive = *f.LoggingAllowSensitive == "true"
	}
	if f.StoreDriver != nil && *f.StoreDriver != "" {
		cfg.Store.Driver = *f.StoreDriver
	}
	if f.StoreDataDir != nil && *f.StoreDataDir != "" {
		cfg.Store.DataDir = *f.StoreDataDir
	}
	if f.InvitesProvider != nil && *f.InvitesProvider != "" {
		cfg.Invites.Provider = *f.InvitesProvider
	}
}

// validateEnums validates enum-like config fields and returns an error for invalid values.
func validateEnums(cfg *Config) error {
	switch cfg.Logging.Level {
	case "trace", "debug", "info", "warn", "error":
		// valid
	default:
		return fmt.Errorf("invalid logging.level %q: must be one of trace, debug, info, warn, error", cfg.Logging.Level)
	}

	switch cfg.Store.Driver {
	case "sqlite", "memory":
		// valid
	default:
		return fmt.Errorf("invalid store.driver %q: must be one of sqlite, memory", cfg.Store.Driver)
	}

	switch cfg.Cache.Driver {
	case "memory", "redis":
		// valid
	default:
		return fmt.Errorf("invalid cache.driver %q: must be one of memory, redis", cfg.Cache.Driver)
	}

	for _, cidr := range cfg.Server.TrustedProxies {
		if _, _, err := net.ParseCIDR(cidr); err != nil {
			return fmt.Errorf("invalid server.trusted_proxies entry %q: %w", cidr, err)
		}
	}

	return nil
}

func validateRequired(cfg *Config) error {
	if cfg.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret is required in %s mode", cfg.Mode)
	}
	if cfg.Store.Driver == "sqlite" && strings.TrimSpace(cfg.Store.DataDir) == "" {
		return fmt.Errorf("store.data_dir is required for the sqlite driver")
	}
	if cfg.Invites.DefaultTTLHours <= 0 {
		return fmt.Errorf("invites.default_ttl_hours must be positive, got %d", cfg.Invites.DefaultTTLHours)
	}
	if cfg.Invites.MaxTTLHours < cfg.Invites.DefaultTTLHours {
		return fmt.Errorf("invites.max_ttl_hours (%d) must be >= invites.default_ttl_hours (%d)",
			cfg.Invites.MaxTTLHours, cfg.Invites.DefaultTTLHours)
	}
	if cfg.Invites.Provider != "" {
		provider, err := hostport.Provider(cfg.Invites.Provider)
		if err != nil {
			return fmt.Errorf("invalid invites.provider %q: %w", cfg.Invites.Provider, err)
		}
		cfg.Invites.Provider = provider
	}
	if cfg.Directory.CacheTTLSeconds < 0 {
		return fmt.Errorf("directory.cache_ttl_seconds must not be negative")
	}
	return nil
}

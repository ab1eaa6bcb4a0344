package interceptors

import (
	"errors"
	"fmt"
	"log/slog"
)

// ErrProfileNotFound is returned when a named profile is missing or malformed.
var ErrProfileNotFound = errors.New("interceptors: profile not found")

// GetProfileConfig returns the raw map at
// cfg[interceptor]["profiles"][profile]. cfg is normally
// Config.HTTP.Interceptors.
func GetProfileConfig(cfg map[string]map[string]any, interceptor, profile string) (map[string]any, error) {
	section, ok := cfg[interceptor]
	if !ok {
		return nil, fmt.Errorf("%w: no [http.interceptors.%s] section for %q", ErrProfileNotFound, interceptor, profile)
	}
	profiles, ok := section["profiles"].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: [http.interceptors.%s.profiles] missing or not a table", ErrProfileNotFound, interceptor)
	}
	conf, ok := profiles[profile].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: %s profile %q", ErrProfileNotFound, interceptor, profile)
	}
	return conf, nil
}

// Build constructs interceptor with the named profile. An empty profile
// yields Passthrough.
func Build(cfg map[string]map[string]any, interceptor, profile string, log *slog.Logger) (Middleware, error) {
	if profile == "" {
		return Passthrough, nil
	}
	conf, err := GetProfileConfig(cfg, interceptor, profile)
	if err != nil {
		return nil, err
	}
	newFn, ok := Get(interceptor)
	if !ok {
		return nil, fmt.Errorf("interceptors: %q is not registered", interceptor)
	}
	mw, err := newFn(conf, log)
	if err != nil {
		return nil, fmt.Errorf("interceptors: build %s profile %q: %w", interceptor, profile, err)
	}
	return mw, nil
}

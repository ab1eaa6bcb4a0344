// Package interceptors builds named HTTP middleware from config profiles.
// Profiles live under [http.interceptors.<name>.profiles.<profile>] and a
// service picks one by name, so several routes can share a limit.
package interceptors

import (
	"log/slog"
	"net/http"
)

// Middleware wraps an http.Handler.
type Middleware func(http.Handler) http.Handler

// NewInterceptor builds a middleware from one profile's raw config.
type NewInterceptor func(conf map[string]any, log *slog.Logger) (Middleware, error)

// Passthrough returns next unchanged.
func Passthrough(next http.Handler) http.Handler { return next }

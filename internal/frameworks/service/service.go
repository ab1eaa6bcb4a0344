// Package service defines the mountable HTTP service contract and a
// name-keyed registry that service packages join from init().
package service

import (
	"log/slog"
	"net/http"
)

// Service is an HTTP surface mounted under Prefix.
type Service interface {
	Handler() http.Handler
	// Prefix is the mount point without slashes, e.g. "api".
	Prefix() string
	Close() error
	// Unprotected lists paths relative to Prefix that skip the auth gate.
	Unprotected() []string
}

// NewService builds a service from its [http.services.<name>] map.
type NewService func(conf map[string]any, log *slog.Logger) (Service, error)

package server

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/chikitsa-cloud/chikitsa-go/internal/frameworks/service"
	"github.com/chikitsa-cloud/chikitsa-go/internal/platform/deps"
	"github.com/chikitsa-cloud/chikitsa-go/internal/platform/http/auth"
	httpmw "github.com/chikitsa-cloud/chikitsa-go/internal/platform/http/middleware"
	"github.com/chikitsa-cloud/chikitsa-go/internal/platform/tracing"
)

// RouteGroup defines an endpoint group with its auth requirements.
type RouteGroup struct {
	Name         string
	PathPrefix   string
	RequiresAuth bool
}

// routeGroups is consulted after service-declared exceptions. Paths that
// match nothing require auth.
var routeGroups = []RouteGroup{
	{Name: "metrics", PathPrefix: "/metrics", RequiresAuth: false},
	{Name: "api", PathPrefix: "/api", RequiresAuth: true},
}

// GetRouteGroups returns the route group definitions for testing.
func GetRouteGroups() []RouteGroup {
	return routeGroups
}

// IsAuthRequired reports whether path needs a bearer token. A service's
// Unprotected() paths win over its route group.
func IsAuthRequired(path string, mountedServices []service.Service) bool {
	for _, svc := range mountedServices {
		if svc == nil {
			continue
		}
		base := ""
		if p := strings.Trim(svc.Prefix(), "/"); p != "" {
			base = "/" + p
		}
		for _, unprotected := range svc.Unprotected() {
			if pathMatchesPrefix(path, base+unprotected) {
				return false
			}
		}
	}

	for _, rg := range routeGroups {
		if pathMatchesPrefix(path, rg.PathPrefix) {
			return rg.RequiresAuth
		}
	}
	return true
}

// pathMatchesPrefix checks if path equals or is a subpath of prefix.
func pathMatchesPrefix(path, prefix string) bool {
	if path == prefix {
		return true
	}
	return strings.HasPrefix(path, prefix) && path[len(prefix)] == '/'
}

func (s *Server) mountService(r chi.Router, svc service.Service) {
	if svc == nil {
		return
	}
	prefix := strings.Trim(svc.Prefix(), "/")
	if prefix == "" {
		r.Mount("/", svc.Handler())
	} else {
		r.Mount("/"+prefix, svc.Handler())
	}
	s.mountedServices = append(s.mountedServices, svc)
}

// setupRoutes builds the router. Middleware order is fixed:
// tracing -> RequestID -> request logger -> access log -> recoverer -> metrics -> auth gate.
func (s *Server) setupRoutes() chi.Router {
	d := deps.GetDeps()
	r := chi.NewRouter()

	r.Use(httpmw.Tracing(tracing.Tracer("http")))
	r.Use(chimw.RequestID)
	r.Use(httpmw.RequestLogger(s.logger, d.RealIP))
	r.Use(httpmw.AccessLog(s.logger))
	r.Use(chimw.Recoverer)
	r.Use(d.Metrics.Middleware)

	// The closure reads s.mountedServices per request, after mounting below.
	r.Use(auth.NewAuthGate(auth.GateConfig{
		RequireAuth: func(path string) bool { return IsAuthRequired(path, s.mountedServices) },
		Secret:      []byte(s.cfg.Auth.JWTSecret),
		Issuer:      s.cfg.Auth.Issuer,
		Log:         s.logger,
	}))

	if d.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", d.Metrics.Handler())
	}

	for _, svc := range s.services {
		s.mountService(r, svc)
	}

	return r
}
